package ingest

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bft-labs/dualcap/internal/domain"
	"github.com/bft-labs/dualcap/internal/ports"
	"github.com/bft-labs/dualcap/internal/stats"
	"github.com/bft-labs/dualcap/pkg/binlog"
	"github.com/bft-labs/dualcap/pkg/log"
)

// ErrStreamStopped is reported when the driver stops a capture stream that
// the session did not stop.
var ErrStreamStopped = errors.New("capture stream stopped by driver")

// spareChunks is the number of chunk buffers beyond the queue capacity:
// one being filled by the callback and the ones held by the writer.
const spareChunks = 4

// AudioOptions tunes an AudioIngest.
type AudioOptions struct {
	// ChunkSamples is the number of int16 values per chunk.
	ChunkSamples  int
	StatsInterval time.Duration
}

// AudioIngest owns the capture stream. Its callback copies samples into
// pre-allocated fixed-size chunks and enqueues full chunks without blocking.
type AudioIngest struct {
	backend       ports.AudioBackend
	cfg           ports.AudioStreamConfig
	device        string
	chunkSamples  int
	statsInterval time.Duration
	out           chan binlog.AudioRecord
	free          chan []int16
	reporter      *stats.Reporter
	logger        log.Logger
	now           func() time.Time

	// Owned by the driver callback.
	cur  []int16
	fill int

	chunks         atomic.Uint64
	dropped        atomic.Uint64
	droppedSamples atomic.Uint64

	stopping  atomic.Bool
	stopped   chan struct{}
	stopOnce  sync.Once
	closeOnce sync.Once
}

// NewAudioIngest prepares capture on backend. Chunks are delivered on out,
// whose capacity bounds the queue; the chunk pool is sized from it.
func NewAudioIngest(backend ports.AudioBackend, cfg ports.AudioStreamConfig, device string, out chan binlog.AudioRecord, snapshots chan<- domain.Snapshot, opts AudioOptions, logger log.Logger) *AudioIngest {
	if opts.ChunkSamples <= 0 {
		opts.ChunkSamples = 1024
	}
	if opts.StatsInterval <= 0 {
		opts.StatsInterval = time.Second
	}
	if logger == nil {
		logger = log.NewNoopLogger()
	}

	pool := cap(out) + spareChunks
	free := make(chan []int16, pool)
	for i := 0; i < pool; i++ {
		free <- make([]int16, opts.ChunkSamples)
	}

	return &AudioIngest{
		backend:       backend,
		cfg:           cfg,
		device:        device,
		chunkSamples:  opts.ChunkSamples,
		statsInterval: opts.StatsInterval,
		out:           out,
		free:          free,
		reporter:      stats.NewReporter(snapshots, domain.StreamAudio, "audio"),
		logger:        logger.With(log.Component("audio"), log.String("device", device)),
		now:           time.Now,
		stopped:       make(chan struct{}),
	}
}

// Release returns a chunk's buffer to the pool once it has been encoded.
func (a *AudioIngest) Release(rec binlog.AudioRecord) {
	if cap(rec.Samples) < a.chunkSamples {
		return
	}
	select {
	case a.free <- rec.Samples[:a.chunkSamples]:
	default:
	}
}

// Run opens and starts the stream, then waits for cancellation or a driver
// stop. The output channel is closed once the stream can no longer call back.
func (a *AudioIngest) Run(ctx context.Context) (err error) {
	defer func() {
		a.closeOut()
		a.report(err)
	}()

	stream, err := a.backend.Open(a.cfg, ports.AudioCallbacks{
		Data:    a.onData,
		Stopped: a.onStopped,
	})
	if err != nil {
		return domain.DeviceError(a.device, err)
	}
	defer func() {
		a.stopping.Store(true)
		if serr := stream.Stop(); serr != nil {
			a.logger.Warn("stop capture stream", log.Err(serr))
		}
		if cerr := stream.Close(); cerr != nil {
			a.logger.Warn("close capture stream", log.Err(cerr))
		}
		if a.fill > 0 {
			a.logger.Debug("discarded partial chunk", log.Int("samples", a.fill))
		}
	}()

	if err := stream.Start(); err != nil {
		return domain.DeviceError(a.device, err)
	}
	a.logger.Info("audio capture started",
		log.Int64("sample_rate", int64(a.cfg.SampleRate)),
		log.Int64("channels", int64(a.cfg.Channels)),
		log.Int("chunk_samples", a.chunkSamples),
	)

	ticker := time.NewTicker(a.statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-a.stopped:
			return domain.DeviceError(a.device, ErrStreamStopped)
		case <-ticker.C:
			a.report(nil)
		}
	}
}

// onData runs on the driver thread. It never blocks and never allocates.
func (a *AudioIngest) onData(input []byte, _ uint32) {
	for len(input) >= binlog.SampleWidth {
		if a.cur == nil {
			select {
			case a.cur = <-a.free:
				a.fill = 0
			default:
				a.droppedSamples.Add(uint64(len(input) / binlog.SampleWidth))
				return
			}
		}

		n := len(input) / binlog.SampleWidth
		if room := a.chunkSamples - a.fill; n > room {
			n = room
		}
		dst := a.cur[a.fill : a.fill+n]
		for i := range dst {
			dst[i] = int16(binary.LittleEndian.Uint16(input[i*binlog.SampleWidth:]))
		}
		a.fill += n
		input = input[n*binlog.SampleWidth:]

		if a.fill == a.chunkSamples {
			a.emit()
		}
	}
}

func (a *AudioIngest) emit() {
	rec := binlog.AudioRecord{
		HostTimestamp: unixSeconds(a.now()),
		Samples:       a.cur,
	}
	select {
	case a.out <- rec:
		a.chunks.Add(1)
	default:
		a.dropped.Add(1)
		select {
		case a.free <- a.cur:
		default:
		}
	}
	a.cur = nil
	a.fill = 0
}

func (a *AudioIngest) onStopped() {
	if a.stopping.Load() {
		return
	}
	a.stopOnce.Do(func() { close(a.stopped) })
}

func (a *AudioIngest) closeOut() {
	a.closeOnce.Do(func() { close(a.out) })
}

func (a *AudioIngest) report(err error) {
	chunks := a.chunks.Load()
	a.reporter.Report(domain.Snapshot{
		Records: chunks,
		Bytes:   chunks * uint64(a.chunkSamples*binlog.SampleWidth),
		Dropped: a.dropped.Load() + a.droppedSamples.Load()/uint64(a.chunkSamples),
		Err:     err,
	})
}

// DroppedSamples returns the samples lost because no chunk buffer was free.
func (a *AudioIngest) DroppedSamples() uint64 {
	return a.droppedSamples.Load()
}

func unixSeconds(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/1e9
}
