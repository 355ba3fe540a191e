package ingest

import (
	"context"
	"time"

	"github.com/bft-labs/dualcap/internal/domain"
	"github.com/bft-labs/dualcap/internal/ports"
	"github.com/bft-labs/dualcap/internal/stats"
	"github.com/bft-labs/dualcap/pkg/log"
)

// DefaultReadSize is the bulk read size of the serial loop.
const DefaultReadSize = 4096

// SerialIngest owns the serial port and forwards raw chunks to the parser.
type SerialIngest struct {
	port          ports.SerialPort
	name          string
	out           chan<- []byte
	readSize      int
	statsInterval time.Duration
	reporter      *stats.Reporter
	logger        log.Logger

	chunks  uint64
	bytes   uint64
	dropped uint64
}

// SerialOptions tunes a SerialIngest.
type SerialOptions struct {
	ReadSize      int
	StatsInterval time.Duration
}

// NewSerialIngest reads from port, which it closes when Run returns.
func NewSerialIngest(port ports.SerialPort, name string, out chan<- []byte, snapshots chan<- domain.Snapshot, opts SerialOptions, logger log.Logger) *SerialIngest {
	if opts.ReadSize <= 0 {
		opts.ReadSize = DefaultReadSize
	}
	if opts.StatsInterval <= 0 {
		opts.StatsInterval = time.Second
	}
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &SerialIngest{
		port:          port,
		name:          name,
		out:           out,
		readSize:      opts.ReadSize,
		statsInterval: opts.StatsInterval,
		reporter:      stats.NewReporter(snapshots, domain.StreamCSI, "serial"),
		logger:        logger.With(log.Component("serial"), log.String("port", name)),
	}
}

// Run reads until ctx is cancelled or the device fails. The output channel
// is closed on return so the parser can drain and finish.
func (s *SerialIngest) Run(ctx context.Context) (err error) {
	defer func() {
		close(s.out)
		if cerr := s.port.Close(); cerr != nil {
			s.logger.Warn("close serial port", log.Err(cerr))
		}
		s.report(err)
		s.logger.Debug("serial ingest stopped",
			log.Uint64("chunks", s.chunks),
			log.Uint64("bytes", s.bytes),
			log.Uint64("dropped", s.dropped),
		)
	}()

	nextReport := time.Now().Add(s.statsInterval)
	for {
		if ctx.Err() != nil {
			return nil
		}

		buf := make([]byte, s.readSize)
		n, rerr := s.port.Read(buf)
		if rerr != nil {
			if ctx.Err() != nil {
				return nil
			}
			return domain.DeviceError(s.name, rerr)
		}

		if n > 0 {
			select {
			case s.out <- buf[:n]:
				s.chunks++
				s.bytes += uint64(n)
			default:
				s.dropped++
				if s.dropped == 1 || s.dropped%1000 == 0 {
					s.logger.Warn("raw queue full, dropping serial data", log.Uint64("dropped", s.dropped))
				}
			}
		}

		if now := time.Now(); !now.Before(nextReport) {
			s.report(nil)
			nextReport = now.Add(s.statsInterval)
		}
	}
}

func (s *SerialIngest) report(err error) {
	s.reporter.Report(domain.Snapshot{
		Records: s.chunks,
		Bytes:   s.bytes,
		Dropped: s.dropped,
		Err:     err,
	})
}
