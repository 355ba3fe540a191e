package sim

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/bft-labs/dualcap/internal/ports"
)

// AudioBackend is a capture backend with one simulated device.
type AudioBackend struct {
	// Formats restricts the device's native formats. Empty accepts any
	// rate and channel count.
	Formats []ports.AudioFormat

	// Periods stops delivering data after this many callbacks. Zero means
	// unlimited.
	Periods int

	// FailAfter makes the driver stop the stream on its own after this many
	// callbacks. Zero disables it.
	FailAfter int

	// Realtime paces callbacks at the sample rate. Without it callbacks are
	// delivered back to back.
	Realtime bool

	OpenErr error
}

func (b *AudioBackend) Devices() ([]ports.AudioDeviceInfo, error) {
	return []ports.AudioDeviceInfo{{
		Index:     0,
		Name:      "Simulated microphone",
		IsDefault: true,
		Formats:   b.Formats,
	}}, nil
}

func (b *AudioBackend) Open(cfg ports.AudioStreamConfig, cb ports.AudioCallbacks) (ports.AudioStream, error) {
	if b.OpenErr != nil {
		return nil, b.OpenErr
	}
	if cfg.DeviceIndex > 0 {
		return nil, fmt.Errorf("sim: no capture device %d", cfg.DeviceIndex)
	}
	if cfg.SampleRate == 0 || cfg.Channels == 0 {
		return nil, fmt.Errorf("sim: invalid stream config %+v", cfg)
	}
	period := cfg.PeriodFrames
	if period == 0 {
		period = cfg.SampleRate / 100
	}
	return &audioStream{
		cfg:       cfg,
		period:    period,
		cb:        cb,
		periods:   b.Periods,
		failAfter: b.FailAfter,
		realtime:  b.Realtime,
	}, nil
}

func (b *AudioBackend) Close() error { return nil }

type audioStream struct {
	cfg       ports.AudioStreamConfig
	period    uint32
	cb        ports.AudioCallbacks
	periods   int
	failAfter int
	realtime  bool

	mu   sync.Mutex
	done chan struct{}
	wg   sync.WaitGroup
}

func (s *audioStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return nil
	}
	s.done = make(chan struct{})
	s.wg.Add(1)
	go s.run(s.done)
	return nil
}

// run plays the driver thread: one callback per period with a 440 Hz tone.
func (s *audioStream) run(done chan struct{}) {
	defer s.wg.Done()

	frameBytes := int(s.cfg.Channels) * 2
	buf := make([]byte, int(s.period)*frameBytes)

	var ticker *time.Ticker
	if s.realtime {
		ticker = time.NewTicker(time.Duration(s.period) * time.Second / time.Duration(s.cfg.SampleRate))
		defer ticker.Stop()
	}

	var n uint64
	for calls := 0; ; calls++ {
		if s.failAfter > 0 && calls == s.failAfter {
			if s.cb.Stopped != nil {
				s.cb.Stopped()
			}
			return
		}
		if s.periods > 0 && calls == s.periods {
			<-done
			return
		}

		for i := 0; i < int(s.period); i++ {
			v := int16(8000 * math.Sin(2*math.Pi*440*float64(n)/float64(s.cfg.SampleRate)))
			for c := 0; c < int(s.cfg.Channels); c++ {
				binary.LittleEndian.PutUint16(buf[i*frameBytes+c*2:], uint16(v))
			}
			n++
		}

		if ticker != nil {
			select {
			case <-done:
				return
			case <-ticker.C:
			}
		} else {
			select {
			case <-done:
				return
			default:
			}
		}
		if s.cb.Data != nil {
			s.cb.Data(buf, s.period)
		}
	}
}

func (s *audioStream) Stop() error {
	s.mu.Lock()
	done := s.done
	s.done = nil
	s.mu.Unlock()

	if done != nil {
		close(done)
		s.wg.Wait()
	}
	return nil
}

func (s *audioStream) Close() error {
	return s.Stop()
}
