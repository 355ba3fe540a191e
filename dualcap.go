// Package dualcap records a CSI stream from a serial-attached capture board
// and a microphone stream side by side, into rotating binary logs with
// embedded host timestamps.
//
// Example usage:
//
//	cfg := dualcap.DefaultConfig()
//	cfg.SessionName = "kitchen-01"
//	rec, err := dualcap.New(cfg, dualcap.WithLogger(logger))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	res, err := rec.Run(ctx)
package dualcap

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bft-labs/dualcap/internal/adapters/audio"
	"github.com/bft-labs/dualcap/internal/adapters/serial"
	"github.com/bft-labs/dualcap/internal/adapters/sim"
	"github.com/bft-labs/dualcap/internal/ports"
	"github.com/bft-labs/dualcap/internal/session"
	"github.com/bft-labs/dualcap/pkg/binlog"
	"github.com/bft-labs/dualcap/pkg/csi"
	"github.com/bft-labs/dualcap/pkg/log"
	"github.com/bft-labs/dualcap/pkg/logfile"
)

// Config holds the configuration of a capture session.
type Config = session.Config

// Result describes a finished session.
type Result = session.Result

// SimConfig shapes the synthetic CSI stream of a simulated session.
type SimConfig = sim.GeneratorConfig

// AudioDevice describes a capture device.
type AudioDevice = ports.AudioDeviceInfo

// SerialPort describes an enumerated serial port.
type SerialPort = ports.PortInfo

// DefaultConfig returns a Config with the capture board's defaults: a packed
// 10-byte header at 2 Mbaud and 44.1 kHz mono audio in 1024-sample chunks.
func DefaultConfig() Config {
	return Config{
		OutputDir:           ".",
		SerialPort:          serial.AutoPort,
		Baud:                2000000,
		ReadSize:            32 << 10,
		ReadTimeout:         100 * time.Millisecond,
		HeaderSize:          csi.PackedHeaderSize,
		MaxPayload:          csi.DefaultMaxPayload,
		Layout:              binlog.LayoutChannel,
		AudioDevice:         -1,
		SampleRate:          44100,
		Channels:            1,
		ChunkSamples:        1024,
		FileSizeLimit:       logfile.DefaultLimit,
		CSIWriteThreshold:   128 << 10,
		AudioWriteThreshold: 64 << 10,
		FlushInterval:       500 * time.Millisecond,
		StatsInterval:       time.Second,
		RawQueue:            256,
		RecordQueue:         4096,
		AudioQueue:          256,
		ShutdownTimeout:     10 * time.Second,
		ShutdownGrace:       2 * time.Second,
	}
}

// Option configures optional behavior of a Recorder.
type Option func(*options)

type options struct {
	logger   log.Logger
	status   io.Writer
	registry *prometheus.Registry
	simulate bool
	sim      SimConfig
}

// WithLogger sets a logger for structured logging.
// If not provided, a no-op logger is used (no output).
func WithLogger(logger log.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithStatus sets where the live status line and the final summary are
// written. Defaults to os.Stdout.
func WithStatus(w io.Writer) Option {
	return func(o *options) {
		o.status = w
	}
}

// WithRegistry registers session metrics in reg instead of a private
// registry. Metrics are only collected when Config.MetricsAddr is set.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) {
		o.registry = reg
	}
}

// WithSimulation replaces both devices with synthetic sources: a serial
// port emitting CSI frames mixed with line noise per gen, and a microphone
// producing a tone.
func WithSimulation(gen SimConfig) Option {
	return func(o *options) {
		o.simulate = true
		o.sim = gen
	}
}

// Recorder runs capture sessions on real or simulated devices.
type Recorder struct {
	cfg  Config
	opts options
}

// New returns a Recorder for cfg.
func New(cfg Config, opts ...Option) (*Recorder, error) {
	o := options{logger: log.NewNoopLogger(), status: os.Stdout}
	for _, opt := range opts {
		opt(&o)
	}
	return &Recorder{cfg: cfg, opts: o}, nil
}

// Run records until ctx is cancelled or a device or write failure ends the
// session.
func (r *Recorder) Run(ctx context.Context) (Result, error) {
	deps := session.Deps{
		Registry: r.opts.registry,
		Status:   r.opts.status,
		Logger:   r.opts.logger,
	}

	if r.opts.simulate {
		gen := r.opts.sim
		if gen.HeaderSize == 0 {
			gen.HeaderSize = r.cfg.HeaderSize
		}
		deps.Opener = &sim.SerialOpener{Generator: gen}
		deps.Lister = sim.Lister{}
		deps.Audio = &sim.AudioBackend{Realtime: true}
		return session.NewController(r.cfg, deps).Run(ctx)
	}

	deps.Opener = serial.TarmOpener{}
	deps.Lister = serial.EnumeratorLister{}
	if !r.cfg.NoAudio {
		backend, err := audio.NewMalgoBackend(r.opts.logger)
		if err != nil {
			return Result{Dir: r.cfg.Dir()}, err
		}
		defer backend.Close()
		deps.Audio = backend
	}
	return session.NewController(r.cfg, deps).Run(ctx)
}

// AudioDevices lists the capture devices of the platform audio backend.
func AudioDevices(logger log.Logger) ([]AudioDevice, error) {
	backend, err := audio.NewMalgoBackend(logger)
	if err != nil {
		return nil, err
	}
	defer backend.Close()
	return backend.Devices()
}

// SerialPorts lists the serial ports visible to the enumerator.
func SerialPorts() ([]SerialPort, error) {
	return serial.EnumeratorLister{}.List()
}
