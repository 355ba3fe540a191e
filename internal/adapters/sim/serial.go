package sim

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/bft-labs/dualcap/internal/ports"
	"github.com/bft-labs/dualcap/pkg/csi"
)

// ErrUnplugged is returned by a ScriptedPort configured to fail.
var ErrUnplugged = errors.New("sim: device unplugged")

// ScriptedPort returns Data in Chunk-sized reads, then behaves like an idle
// line: every read waits for the timeout and returns 0, nil. With Fail set,
// the read after the script is exhausted returns ErrUnplugged instead.
type ScriptedPort struct {
	Data    []byte
	Chunk   int
	Fail    bool
	Timeout time.Duration

	mu     sync.Mutex
	off    int
	closed chan struct{}
	once   sync.Once
}

func (s *ScriptedPort) Read(p []byte) (int, error) {
	s.init()
	s.mu.Lock()
	if s.off < len(s.Data) {
		n := s.Chunk
		if n <= 0 || n > len(p) {
			n = len(p)
		}
		n = copy(p[:n], s.Data[s.off:])
		s.off += n
		s.mu.Unlock()
		return n, nil
	}
	s.mu.Unlock()

	if s.Fail {
		return 0, ErrUnplugged
	}
	select {
	case <-s.closed:
		return 0, io.EOF
	case <-time.After(s.timeout()):
		return 0, nil
	}
}

// Consumed reports whether the whole script has been read.
func (s *ScriptedPort) Consumed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.off >= len(s.Data)
}

func (s *ScriptedPort) Close() error {
	s.init()
	s.once.Do(func() { close(s.closed) })
	return nil
}

func (s *ScriptedPort) init() {
	s.mu.Lock()
	if s.closed == nil {
		s.closed = make(chan struct{})
	}
	s.mu.Unlock()
}

func (s *ScriptedPort) timeout() time.Duration {
	if s.Timeout <= 0 {
		return 10 * time.Millisecond
	}
	return s.Timeout
}

// GeneratorConfig shapes the synthetic CSI stream.
type GeneratorConfig struct {
	// FrameRate is frames per second.
	FrameRate int

	// PayloadSize is the CSI buffer length of every frame.
	PayloadSize int

	// HeaderSize is the on-wire header size (10 or 12).
	HeaderSize int

	// NoiseProb is the probability of line noise before a frame.
	NoiseProb float64

	Seed int64
}

// GeneratorPort emits synthetic CSI frames at a fixed rate.
type GeneratorPort struct {
	cfg     GeneratorConfig
	timeout time.Duration
	rng     *rand.Rand
	start   time.Time
	sent    int
	pending []byte
	closed  chan struct{}
	once    sync.Once
}

// NewGeneratorPort returns a port producing frames per cfg.
func NewGeneratorPort(cfg GeneratorConfig, readTimeout time.Duration) *GeneratorPort {
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = 100
	}
	if cfg.PayloadSize <= 0 {
		cfg.PayloadSize = 128
	}
	if cfg.HeaderSize < csi.PackedHeaderSize {
		cfg.HeaderSize = csi.PackedHeaderSize
	}
	if readTimeout <= 0 {
		readTimeout = 100 * time.Millisecond
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &GeneratorPort{
		cfg:     cfg,
		timeout: readTimeout,
		rng:     rand.New(rand.NewSource(seed)),
		start:   time.Now(),
		closed:  make(chan struct{}),
	}
}

// Read returns the frames due since the previous read, waiting at most the
// read timeout for the next one.
func (g *GeneratorPort) Read(p []byte) (int, error) {
	deadline := time.Now().Add(g.timeout)
	for len(g.pending) == 0 {
		g.produce()
		if len(g.pending) > 0 {
			break
		}
		wait := time.Second / time.Duration(g.cfg.FrameRate)
		if remaining := time.Until(deadline); remaining < wait {
			wait = remaining
		}
		if wait <= 0 {
			return 0, nil
		}
		select {
		case <-g.closed:
			return 0, io.EOF
		case <-time.After(wait):
		}
	}
	n := copy(p, g.pending)
	g.pending = g.pending[n:]
	return n, nil
}

func (g *GeneratorPort) produce() {
	due := int(time.Since(g.start) * time.Duration(g.cfg.FrameRate) / time.Second)
	for ; g.sent < due; g.sent++ {
		if g.rng.Float64() < g.cfg.NoiseProb {
			noise := make([]byte, 1+g.rng.Intn(16))
			for i := range noise {
				noise[i] = byte(g.rng.Intn(256))
				// Line noise never carries a whole magic.
				if i > 0 && noise[i-1] == csi.Magic[0] && noise[i] == csi.Magic[1] {
					noise[i] = 0
				}
			}
			g.pending = append(g.pending, noise...)
		}
		payload := make([]byte, g.cfg.PayloadSize)
		g.rng.Read(payload)
		g.pending = csi.AppendFrame(g.pending, csi.Frame{
			RSSI:      int8(-40 - g.rng.Intn(40)),
			Channel:   uint8(1 + g.rng.Intn(13)),
			Timestamp: uint32(time.Since(g.start) / time.Microsecond),
			Payload:   payload,
		}, g.cfg.HeaderSize)
	}
}

func (g *GeneratorPort) Close() error {
	g.once.Do(func() { close(g.closed) })
	return nil
}

// SerialOpener hands out simulated ports.
type SerialOpener struct {
	// Port, when set, is returned by every Open.
	Port ports.SerialPort

	// Generator configures the synthetic port used when Port is nil.
	Generator GeneratorConfig

	// Err fails every Open.
	Err error
}

func (o *SerialOpener) Open(ctx context.Context, cfg ports.SerialConfig) (ports.SerialPort, error) {
	if o.Err != nil {
		return nil, o.Err
	}
	if o.Port != nil {
		return o.Port, nil
	}
	return NewGeneratorPort(o.Generator, cfg.ReadTimeout), nil
}

// Lister reports a single simulated ESP32 port.
type Lister struct {
	Name string
}

func (l Lister) List() ([]ports.PortInfo, error) {
	name := l.Name
	if name == "" {
		name = "sim0"
	}
	return []ports.PortInfo{{Name: name, Description: "ESP32 (simulated)", IsUSB: true, VID: "303A", PID: "1001"}}, nil
}
