package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bft-labs/dualcap/pkg/log"
)

// MetricsPath is where the exporter serves the registry.
const MetricsPath = "/metrics"

// MetricsServer exposes a Prometheus registry over HTTP.
type MetricsServer struct {
	listener net.Listener
	server   *http.Server
	logger   log.Logger
}

// ListenMetrics binds addr immediately so a bad address fails before any
// capture starts. Use ":0" for an ephemeral port.
func ListenMetrics(addr string, gatherer prometheus.Gatherer, logger log.Logger) (*MetricsServer, error) {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle(MetricsPath, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return &MetricsServer{
		listener: ln,
		server: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger.With(log.Component("metrics")),
	}, nil
}

// Addr returns the bound address.
func (m *MetricsServer) Addr() string {
	return m.listener.Addr().String()
}

// Run serves until ctx is cancelled, then shuts the server down.
func (m *MetricsServer) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		errc <- m.server.Serve(m.listener)
	}()
	m.logger.Info("prometheus exporter listening", log.String("addr", m.Addr()))

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := m.server.Shutdown(shutdownCtx); err != nil {
		m.logger.Warn("metrics server shutdown", log.Err(err))
		return m.server.Close()
	}
	return nil
}

// Close releases the listener of a server that was never run.
func (m *MetricsServer) Close() error {
	return m.listener.Close()
}
