package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bft-labs/dualcap/internal/adapters/fs"
	httpadapter "github.com/bft-labs/dualcap/internal/adapters/http"
	"github.com/bft-labs/dualcap/internal/adapters/serial"
	"github.com/bft-labs/dualcap/internal/domain"
	"github.com/bft-labs/dualcap/internal/ingest"
	"github.com/bft-labs/dualcap/internal/ports"
	"github.com/bft-labs/dualcap/internal/stats"
	"github.com/bft-labs/dualcap/internal/writer"
	"github.com/bft-labs/dualcap/pkg/binlog"
	"github.com/bft-labs/dualcap/pkg/csi"
	"github.com/bft-labs/dualcap/pkg/lifecycle"
	"github.com/bft-labs/dualcap/pkg/log"
	"github.com/bft-labs/dualcap/pkg/logfile"
)

// Unit names as reported in the liveness view and in hung-unit errors.
const (
	UnitSerial      = "serial"
	UnitParser      = "csi-parser"
	UnitCSIWriter   = "csi-writer"
	UnitAudio       = "audio"
	UnitAudioWriter = "audio-writer"
	UnitMetrics     = "metrics"
)

// Deps are the device and output adapters a session runs on.
type Deps struct {
	Opener ports.SerialOpener
	Lister ports.PortLister
	Audio  ports.AudioBackend

	// Metadata defaults to metadata.json in the session directory.
	Metadata ports.MetadataStore

	// Registry receives the session metrics. A private registry is created
	// when MetricsAddr is set and Registry is nil.
	Registry *prometheus.Registry

	// Status receives the live status line and the final summary.
	Status io.Writer

	// WatchDir overrides the directory watched for serial hot-plug.
	WatchDir string

	Logger log.Logger
}

// Result describes a finished session.
type Result struct {
	Dir      string
	Metadata domain.SessionMetadata
	CSI      stats.StreamSummary
	Audio    stats.StreamSummary
	Elapsed  time.Duration

	// Hung lists units that missed the shutdown deadline.
	Hung []string
}

// Controller orchestrates one capture session.
type Controller struct {
	cfg    Config
	deps   Deps
	lm     *lifecycle.DefaultManager
	logger log.Logger
}

// NewController returns a controller for cfg. cfg is expected to be
// validated already; device capability is checked by Run.
func NewController(cfg Config, deps Deps) *Controller {
	if deps.Logger == nil {
		deps.Logger = log.NewNoopLogger()
	}
	if deps.Status == nil {
		deps.Status = io.Discard
	}
	logger := deps.Logger.With(log.Component("session"))
	return &Controller{
		cfg:    cfg,
		deps:   deps,
		lm:     lifecycle.NewManager(logger, nil),
		logger: logger,
	}
}

// State returns the session lifecycle state.
func (c *Controller) State() lifecycle.State {
	return c.lm.State()
}

// pipeline holds everything opened during startup.
type pipeline struct {
	port      ports.SerialPort
	portName  string
	device    ports.AudioDeviceInfo
	csiFile   *logfile.LogFile
	audioFile *logfile.LogFile
	metrics   *stats.Metrics
	server    *httpadapter.MetricsServer
}

func (p *pipeline) abort(logger log.Logger) {
	if p.port != nil {
		if err := p.port.Close(); err != nil {
			logger.Warn("close serial port", log.Err(err))
		}
	}
	for _, f := range []*logfile.LogFile{p.csiFile, p.audioFile} {
		if f != nil {
			f.Close()
		}
	}
	if p.server != nil {
		p.server.Close()
	}
}

// Run executes the session until ctx is cancelled or a unit fails. Startup
// failures are returned before any unit runs. A cancelled ctx is a normal
// stop and returns a nil error.
func (c *Controller) Run(ctx context.Context) (Result, error) {
	res := Result{Dir: c.cfg.Dir()}

	if err := c.lm.TransitionTo(lifecycle.StateStarting, "run"); err != nil {
		return res, err
	}

	p, md, err := c.prepare(ctx)
	if err != nil {
		c.lm.TransitionTo(lifecycle.StateCrashed, "startup failed")
		return res, err
	}
	res.Metadata = md
	c.logger = c.logger.With(log.String("session", md.SessionID))
	unitLogger := c.deps.Logger.With(log.String("session", md.SessionID))

	snapshots := make(chan domain.Snapshot, snapshotQueue)
	aggOpts := []stats.Option{stats.WithLiveness(c.lm.Units)}
	if p.metrics != nil {
		aggOpts = append(aggOpts, stats.WithMetrics(p.metrics))
	}
	agg := stats.NewAggregator(snapshots, aggOpts...)

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.lm.SetCancel(cancel)

	c.start(runCtx, p, snapshots, unitLogger)

	if err := c.lm.TransitionTo(lifecycle.StateRunning, "units started"); err != nil {
		c.logger.Warn("state transition", log.Err(err))
	}
	c.logger.Info("session started",
		log.String("dir", res.Dir),
		log.Bool("csi", md.CSIEnabled),
		log.Bool("audio", md.AudioEnabled),
	)

	fault := c.loop(ctx, agg)

	// Phase one: signal. Phase two: wait with a deadline.
	c.lm.TransitionTo(lifecycle.StateStopping, "shutdown")
	c.lm.Cancel()
	waitErr := c.lm.WaitWithTimeout(c.cfg.ShutdownTimeout)
	res.Hung = c.lm.Pending()

	errs := []error{fault}
	errs = append(errs, agg.Drain()...)
	errs = append(errs, c.shutdownErrors()...)
	if waitErr != nil {
		errs = append(errs, fmt.Errorf("%w: %w", domain.ErrShutdownTimeout, waitErr))
	}
	runErr := errors.Join(dedupe(errs)...)

	res.CSI, _ = agg.Stream(domain.StreamCSI)
	res.Audio, _ = agg.Stream(domain.StreamAudio)
	res.Elapsed = agg.Elapsed()

	fmt.Fprintf(c.deps.Status, "\n%s", agg.Summary())

	if runErr != nil {
		c.lm.TransitionTo(lifecycle.StateCrashed, runErr.Error())
		c.logger.Error("session ended with errors",
			log.String("severity", domain.Severity(runErr)),
			log.Err(runErr),
		)
		return res, runErr
	}
	c.lm.TransitionTo(lifecycle.StateStopped, "shutdown complete")
	c.logger.Info("session complete", log.String("dir", res.Dir), log.Duration("elapsed", res.Elapsed))
	return res, nil
}

// prepare validates devices, opens the serial port and log files, binds the
// metrics listener and persists the session metadata.
func (c *Controller) prepare(ctx context.Context) (*pipeline, domain.SessionMetadata, error) {
	cfg := c.cfg
	p := &pipeline{}
	var md domain.SessionMetadata

	if cfg.NoCSI && cfg.NoAudio {
		return nil, md, domain.ConfigError("no stream enabled")
	}

	if !cfg.NoAudio {
		if c.deps.Audio == nil {
			return nil, md, domain.ConfigError("audio enabled without an audio backend")
		}
		dev, err := c.checkAudio()
		if err != nil {
			return nil, md, err
		}
		p.device = dev
	}

	if !cfg.NoCSI {
		if c.deps.Opener == nil {
			return nil, md, domain.ConfigError("csi enabled without a serial opener")
		}
		d := &serial.Discoverer{
			Lister:   c.deps.Lister,
			Match:    cfg.PortMatch,
			Fallback: cfg.FallbackPort,
			WatchDir: c.deps.WatchDir,
			Logger:   c.logger,
		}
		name, err := d.Wait(ctx, cfg.SerialPort, cfg.WaitForPort)
		if err != nil {
			return nil, md, domain.DeviceError(cfg.SerialPort, err)
		}
		port, err := c.deps.Opener.Open(ctx, ports.SerialConfig{
			Name:        name,
			Baud:        cfg.Baud,
			ReadTimeout: cfg.ReadTimeout,
		})
		if err != nil {
			return nil, md, domain.DeviceError(name, err)
		}
		p.port, p.portName = port, name
		c.logger.Info("serial port opened", log.String("port", name), log.Int("baud", cfg.Baud))
	}

	if cfg.MetricsAddr != "" {
		reg := c.deps.Registry
		if reg == nil {
			reg = prometheus.NewRegistry()
		}
		p.metrics = stats.NewMetrics(reg)
		srv, err := httpadapter.ListenMetrics(cfg.MetricsAddr, reg, c.logger)
		if err != nil {
			p.abort(c.logger)
			return nil, md, domain.ConfigError("metrics listener %s: %v", cfg.MetricsAddr, err)
		}
		p.server = srv
	}

	md = domain.SessionMetadata{
		SessionID:             uuid.NewString(),
		FormatVersion:         binlog.Version,
		StartTimeUTC:          time.Now().UTC(),
		SampleRate:            cfg.SampleRate,
		Channels:              cfg.Channels,
		AudioDType:            binlog.AudioDType,
		CSIPort:               p.portName,
		AudioDeviceIndex:      p.device.Index,
		AudioDeviceName:       p.device.Name,
		ChunkSamples:          cfg.ChunkSamples,
		CSILayout:             cfg.Layout.String(),
		CSIFormatDescriptor:   cfg.Layout.Descriptor(),
		AudioFormatDescriptor: binlog.AudioDescriptor,
		FileSizeLimit:         cfg.FileSizeLimit,
		CSIEnabled:            !cfg.NoCSI,
		AudioEnabled:          !cfg.NoAudio,
	}
	if cfg.NoAudio {
		md.AudioDeviceIndex = -1
	}

	store := c.deps.Metadata
	if store == nil {
		store = fs.NewMetadataFile(c.cfg.Dir())
	}
	if err := store.Save(ctx, md); err != nil {
		p.abort(c.logger)
		return nil, md, domain.PersistenceError("metadata", err)
	}

	var err error
	if !cfg.NoCSI {
		if p.csiFile, err = logfile.Open(c.cfg.Dir(), string(domain.StreamCSI), cfg.FileSizeLimit); err != nil {
			p.abort(c.logger)
			return nil, md, domain.PersistenceError(string(domain.StreamCSI), err)
		}
	}
	if !cfg.NoAudio {
		if p.audioFile, err = logfile.Open(c.cfg.Dir(), string(domain.StreamAudio), cfg.FileSizeLimit); err != nil {
			p.abort(c.logger)
			return nil, md, domain.PersistenceError(string(domain.StreamAudio), err)
		}
	}
	return p, md, nil
}

// checkAudio finds the requested capture device and confirms it supports
// the requested rate and channel count with 16-bit samples.
func (c *Controller) checkAudio() (ports.AudioDeviceInfo, error) {
	devices, err := c.deps.Audio.Devices()
	if err != nil {
		return ports.AudioDeviceInfo{}, domain.DeviceError("audio", err)
	}
	if len(devices) == 0 {
		return ports.AudioDeviceInfo{}, domain.DeviceError("audio", errors.New("no capture devices"))
	}

	var dev *ports.AudioDeviceInfo
	if c.cfg.AudioDevice < 0 {
		dev = &devices[0]
		for i := range devices {
			if devices[i].IsDefault {
				dev = &devices[i]
				break
			}
		}
	} else {
		for i := range devices {
			if devices[i].Index == c.cfg.AudioDevice {
				dev = &devices[i]
				break
			}
		}
	}
	if dev == nil {
		return ports.AudioDeviceInfo{}, domain.ConfigError("audio device %d not found (%d devices)", c.cfg.AudioDevice, len(devices))
	}

	if !supports(dev.Formats, c.cfg.SampleRate, c.cfg.Channels) {
		return ports.AudioDeviceInfo{}, domain.ConfigError("audio device %d (%s) does not support %d Hz x %d ch int16: %s",
			dev.Index, dev.Name, c.cfg.SampleRate, c.cfg.Channels, describeFormats(dev.Formats))
	}
	c.logger.Info("audio device selected", log.Int("index", dev.Index), log.String("name", dev.Name))
	return *dev, nil
}

// supports reports whether any native format accepts the request. A device
// that lists no formats is assumed to convert.
func supports(formats []ports.AudioFormat, rate, channels uint32) bool {
	if len(formats) == 0 {
		return true
	}
	for _, f := range formats {
		if (f.SampleRate == 0 || f.SampleRate == rate) && (f.Channels == 0 || f.Channels == channels) && f.S16 {
			return true
		}
	}
	return false
}

func describeFormats(formats []ports.AudioFormat) string {
	parts := make([]string, 0, len(formats))
	for _, f := range formats {
		enc := "f32"
		if f.S16 {
			enc = "s16"
		}
		parts = append(parts, fmt.Sprintf("%dHz/%dch/%s", f.SampleRate, f.Channels, enc))
	}
	return strings.Join(parts, ", ")
}

// start launches every unit. Sources are started after their consumers so
// nothing is queued before it can be drained.
func (c *Controller) start(ctx context.Context, p *pipeline, snapshots chan domain.Snapshot, logger log.Logger) {
	cfg := c.cfg
	wopts := func(threshold int) writer.Options {
		return writer.Options{
			Threshold:     threshold,
			FlushInterval: cfg.FlushInterval,
			StatsInterval: cfg.StatsInterval,
			Grace:         cfg.ShutdownGrace,
		}
	}

	if p.server != nil {
		c.lm.Go(ctx, UnitMetrics, p.server.Run)
	}

	if !cfg.NoCSI {
		raw := make(chan []byte, cfg.RawQueue)
		records := make(chan binlog.CSIRecord, cfg.RecordQueue)

		parser := csi.NewParser(csi.WithHeaderSize(cfg.HeaderSize), csi.WithMaxPayload(cfg.MaxPayload))
		cw := writer.NewCSIWriter(records, p.csiFile, cfg.Layout, snapshots, wopts(cfg.CSIWriteThreshold), logger)
		pu := ingest.NewParseUnit(parser, raw, records, snapshots, cfg.StatsInterval, cfg.ShutdownGrace, logger)
		si := ingest.NewSerialIngest(p.port, p.portName, raw, snapshots, ingest.SerialOptions{
			ReadSize:      cfg.ReadSize,
			StatsInterval: cfg.StatsInterval,
		}, logger)

		c.lm.Go(ctx, UnitCSIWriter, cw.Run)
		c.lm.Go(ctx, UnitParser, pu.Run)
		c.lm.Go(ctx, UnitSerial, si.Run)
	}

	if !cfg.NoAudio {
		chunks := make(chan binlog.AudioRecord, cfg.AudioQueue)
		ai := ingest.NewAudioIngest(c.deps.Audio, ports.AudioStreamConfig{
			DeviceIndex:  p.device.Index,
			SampleRate:   cfg.SampleRate,
			Channels:     cfg.Channels,
			PeriodFrames: uint32(cfg.ChunkSamples) / cfg.Channels,
		}, p.device.Name, chunks, snapshots, ingest.AudioOptions{
			ChunkSamples:  cfg.ChunkSamples,
			StatsInterval: cfg.StatsInterval,
		}, logger)
		aw := writer.NewAudioWriter(chunks, p.audioFile, ai.Release, snapshots, wopts(cfg.AudioWriteThreshold), logger)

		c.lm.Go(ctx, UnitAudioWriter, aw.Run)
		c.lm.Go(ctx, UnitAudio, ai.Run)
	}
}

// loop renders status on every stats tick until ctx is cancelled or a unit
// fails. It returns the fault, or nil for a requested stop.
func (c *Controller) loop(ctx context.Context, agg *stats.Aggregator) error {
	ticker := time.NewTicker(c.cfg.StatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("stop requested")
			return nil

		case ex := <-c.lm.Exits():
			agg.Drain()
			if ex.Err != nil {
				return fmt.Errorf("%w: %s: %w", domain.ErrWorkerDied, ex.Name, ex.Err)
			}
			return fmt.Errorf("%w: %s exited", domain.ErrWorkerDied, ex.Name)

		case <-ticker.C:
			// A snapshot only carries an error in a unit's final report.
			if faults := agg.Drain(); len(faults) > 0 {
				return fmt.Errorf("%w: %w", domain.ErrWorkerDied, faults[0])
			}
			if err := agg.DeadError(); err != nil {
				return err
			}
			io.WriteString(c.deps.Status, agg.StatusLine())
		}
	}
}

// shutdownErrors collects unit errors delivered during shutdown.
func (c *Controller) shutdownErrors() []error {
	var errs []error
	for {
		select {
		case ex := <-c.lm.Exits():
			if ex.Err != nil {
				c.logger.Warn("unit failed during shutdown", log.String("unit", ex.Name), log.Err(ex.Err))
				errs = append(errs, ex.Err)
			}
		default:
			return errs
		}
	}
}

// dedupe drops nils and errors whose message is already present. A unit
// failure reaches the controller both on Exits and in its final snapshot.
func dedupe(errs []error) []error {
	var out []error
	for _, err := range errs {
		if err == nil {
			continue
		}
		dup := false
		for _, seen := range out {
			if errors.Is(seen, err) || strings.Contains(seen.Error(), err.Error()) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, err)
		}
	}
	return out
}
