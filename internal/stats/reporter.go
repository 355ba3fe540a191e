package stats

import (
	"time"

	"github.com/bft-labs/dualcap/internal/domain"
)

// Reporter sends a unit's snapshots to the stats queue. Each unit owns its
// Reporter; the send never blocks.
type Reporter struct {
	stream domain.Stream
	source string
	out    chan<- domain.Snapshot
	now    func() time.Time

	last        time.Time
	lastRecords uint64
	missed      uint64
}

// NewReporter returns a reporter for the named unit. A nil out discards
// every snapshot.
func NewReporter(out chan<- domain.Snapshot, stream domain.Stream, source string) *Reporter {
	r := &Reporter{stream: stream, source: source, out: out, now: time.Now}
	r.last = r.now()
	return r
}

// Report stamps s with the unit identity, the time and the record rate since
// the previous report, then offers it to the queue. It returns false when
// the queue was full and the snapshot was discarded; the next one carries
// the same cumulative counters.
func (r *Reporter) Report(s domain.Snapshot) bool {
	now := r.now()
	s.Stream = r.stream
	s.Source = r.source
	s.At = now

	if dt := now.Sub(r.last).Seconds(); dt > 0 && s.Records >= r.lastRecords {
		s.Rate = float64(s.Records-r.lastRecords) / dt
	}
	r.last = now
	r.lastRecords = s.Records

	if r.out == nil {
		return true
	}
	select {
	case r.out <- s:
		return true
	default:
		r.missed++
		return false
	}
}

// Missed returns how many snapshots were discarded.
func (r *Reporter) Missed() uint64 {
	return r.missed
}

// Source returns the unit name.
func (r *Reporter) Source() string {
	return r.source
}
