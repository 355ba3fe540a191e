// Package audio captures signed 16-bit audio through miniaudio (malgo).
package audio

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/bft-labs/dualcap/internal/ports"
	"github.com/bft-labs/dualcap/pkg/log"
)

// ErrNoDevice is returned when the requested device index does not exist.
var ErrNoDevice = errors.New("audio device not found")

// MalgoBackend implements ports.AudioBackend on a miniaudio context.
type MalgoBackend struct {
	mu      sync.Mutex
	ctx     *malgo.AllocatedContext
	devices []malgo.DeviceInfo
	logger  log.Logger
}

// NewMalgoBackend initializes a miniaudio context on the platform's default
// backends.
func NewMalgoBackend(logger log.Logger) (*MalgoBackend, error) {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(msg string) {
		logger.Debug("miniaudio", log.String("msg", msg))
	})
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}
	return &MalgoBackend{ctx: ctx, logger: logger}, nil
}

// Devices lists capture devices with their native formats.
func (b *MalgoBackend) Devices() ([]ports.AudioDeviceInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	infos, err := b.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("list capture devices: %w", err)
	}
	b.devices = infos

	out := make([]ports.AudioDeviceInfo, 0, len(infos))
	for i, info := range infos {
		dev := ports.AudioDeviceInfo{
			Index:     i,
			Name:      info.Name(),
			IsDefault: info.IsDefault != 0,
		}
		// Native formats are only reported by a full device query.
		full, err := b.ctx.DeviceInfo(malgo.Capture, info.ID, malgo.Shared)
		if err != nil {
			b.logger.Debug("device format query failed", log.String("device", dev.Name), log.Err(err))
		} else {
			for j := 0; j < int(full.FormatCount) && j < len(full.Formats); j++ {
				f := full.Formats[j]
				dev.Formats = append(dev.Formats, ports.AudioFormat{
					SampleRate: f.SampleRate,
					Channels:   f.Channels,
					S16:        f.Format == malgo.FormatS16 || f.Format == malgo.FormatUnknown,
				})
			}
		}
		out = append(out, dev)
	}
	return out, nil
}

// Open prepares a capture stream on the device at cfg.DeviceIndex.
// A negative index selects the system default device.
func (b *MalgoBackend) Open(cfg ports.AudioStreamConfig, cb ports.AudioCallbacks) (ports.AudioStream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	dc := malgo.DefaultDeviceConfig(malgo.Capture)
	dc.Capture.Format = malgo.FormatS16
	dc.Capture.Channels = cfg.Channels
	dc.SampleRate = cfg.SampleRate
	dc.PeriodSizeInFrames = cfg.PeriodFrames

	if cfg.DeviceIndex >= 0 {
		if b.devices == nil {
			infos, err := b.ctx.Devices(malgo.Capture)
			if err != nil {
				return nil, fmt.Errorf("list capture devices: %w", err)
			}
			b.devices = infos
		}
		if cfg.DeviceIndex >= len(b.devices) {
			return nil, fmt.Errorf("%w: index %d of %d", ErrNoDevice, cfg.DeviceIndex, len(b.devices))
		}
		dc.Capture.DeviceID = b.devices[cfg.DeviceIndex].ID.Pointer()
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, frames uint32) {
			if cb.Data != nil {
				cb.Data(input, frames)
			}
		},
		Stop: func() {
			if cb.Stopped != nil {
				cb.Stopped()
			}
		},
	}

	dev, err := malgo.InitDevice(b.ctx.Context, dc, callbacks)
	if err != nil {
		return nil, fmt.Errorf("init capture device: %w", err)
	}
	return &malgoStream{dev: dev}, nil
}

// Close releases the miniaudio context.
func (b *MalgoBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ctx == nil {
		return nil
	}
	err := b.ctx.Uninit()
	b.ctx.Free()
	b.ctx = nil
	return err
}

type malgoStream struct {
	mu      sync.Mutex
	dev     *malgo.Device
	started bool
}

func (s *malgoStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.dev.Start(); err != nil {
		return err
	}
	s.started = true
	return nil
}

func (s *malgoStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil
	}
	s.started = false
	return s.dev.Stop()
}

func (s *malgoStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dev == nil {
		return nil
	}
	s.dev.Uninit()
	s.dev = nil
	return nil
}
