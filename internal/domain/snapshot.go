package domain

import "time"

// Stream identifies one of the two capture pipelines.
type Stream string

const (
	StreamCSI   Stream = "csi"
	StreamAudio Stream = "audio"
)

// Snapshot is a point-in-time report from one unit. Units send snapshots on
// the stats queue and never share counters directly.
type Snapshot struct {
	Stream Stream

	// Source names the reporting unit, for example "serial" or "csi-writer".
	Source string

	// Records and Bytes are cumulative since the unit started.
	Records uint64
	Bytes   uint64

	// Rate is records per second since the previous snapshot.
	Rate float64

	// Writer is set by writer units; FileIndex and FileSize are only
	// meaningful then.
	Writer    bool
	FileIndex int
	FileSize  int64

	// Dropped counts items lost to a full queue or exhausted buffer pool.
	Dropped uint64

	Resyncs      uint64
	SkippedBytes uint64

	At time.Time

	// Err is set when the unit hit a failure. Fatal errors end the session.
	Err error
}
