package stats

import (
	"fmt"
	"time"

	"github.com/bft-labs/dualcap/internal/domain"
	"github.com/bft-labs/dualcap/pkg/lifecycle"
)

// StreamSummary is the merged view of one stream.
type StreamSummary struct {
	Stream       domain.Stream
	Records      uint64
	Bytes        uint64
	Rate         float64
	FileIndex    int
	FileSize     int64
	HasFile      bool
	Dropped      uint64
	Resyncs      uint64
	SkippedBytes uint64
}

// Aggregator merges the latest snapshot of every unit. It is owned by the
// session controller's goroutine.
type Aggregator struct {
	in       <-chan domain.Snapshot
	latest   map[string]domain.Snapshot
	start    time.Time
	now      func() time.Time
	liveness func() []lifecycle.UnitStatus
	metrics  *Metrics
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithLiveness sets the source of unit liveness, usually the lifecycle
// manager's Units method.
func WithLiveness(fn func() []lifecycle.UnitStatus) Option {
	return func(a *Aggregator) { a.liveness = fn }
}

// WithMetrics mirrors every snapshot into m.
func WithMetrics(m *Metrics) Option {
	return func(a *Aggregator) { a.metrics = m }
}

// WithClock overrides the clock used for elapsed time.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// NewAggregator reads snapshots from in.
func NewAggregator(in <-chan domain.Snapshot, opts ...Option) *Aggregator {
	a := &Aggregator{
		in:     in,
		latest: make(map[string]domain.Snapshot),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.start = a.now()
	return a
}

// Drain consumes every queued snapshot without blocking and returns the
// failures they carried.
func (a *Aggregator) Drain() []error {
	var faults []error
	for {
		select {
		case s, ok := <-a.in:
			if !ok {
				return faults
			}
			a.merge(s)
			if s.Err != nil {
				faults = append(faults, s.Err)
			}
		default:
			return faults
		}
	}
}

func (a *Aggregator) merge(s domain.Snapshot) {
	a.latest[s.Source] = s
	if a.metrics != nil {
		a.metrics.Observe(s)
	}
}

// Dead returns the units that have exited. While a session is running every
// unit is expected to be alive, so any entry is a fault.
func (a *Aggregator) Dead() []lifecycle.UnitStatus {
	if a.liveness == nil {
		return nil
	}
	var dead []lifecycle.UnitStatus
	for _, u := range a.liveness() {
		if a.metrics != nil {
			a.metrics.SetUp(u.Name, !u.Exited)
		}
		if u.Exited {
			dead = append(dead, u)
		}
	}
	return dead
}

// DeadError describes dead units as an ErrWorkerDied error, or returns nil.
func (a *Aggregator) DeadError() error {
	dead := a.Dead()
	if len(dead) == 0 {
		return nil
	}
	u := dead[0]
	if u.Err != nil {
		return fmt.Errorf("%w: %s: %w", domain.ErrWorkerDied, u.Name, u.Err)
	}
	return fmt.Errorf("%w: %s exited", domain.ErrWorkerDied, u.Name)
}

// Elapsed returns the time since the aggregator was created.
func (a *Aggregator) Elapsed() time.Duration {
	return a.now().Sub(a.start)
}

// Stream merges the latest snapshots of every unit of one stream.
func (a *Aggregator) Stream(stream domain.Stream) (StreamSummary, bool) {
	sum := StreamSummary{Stream: stream}
	found := false
	var bestRate float64

	for _, s := range a.latest {
		if s.Stream != stream {
			continue
		}
		found = true
		sum.Dropped += s.Dropped
		sum.Resyncs += s.Resyncs
		sum.SkippedBytes += s.SkippedBytes
		if s.Rate > bestRate {
			bestRate = s.Rate
		}
		if s.Writer {
			sum.Records = s.Records
			sum.Bytes = s.Bytes
			sum.Rate = s.Rate
			sum.FileIndex = s.FileIndex
			sum.FileSize = s.FileSize
			sum.HasFile = true
		}
	}
	if !sum.HasFile {
		sum.Rate = bestRate
	}
	return sum, found
}
