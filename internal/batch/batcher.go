// Package batch accumulates encoded records in memory until they are worth a
// write syscall.
package batch

import "time"

// Batcher accumulates encoded records until a flush is due.
type Batcher interface {
	// Add appends one encoded record. It reports whether the byte threshold
	// has been reached.
	Add(record []byte) bool

	// ShouldFlush reports whether the threshold or the flush interval is due.
	ShouldFlush() bool

	// Bytes returns the pending bytes. Valid until Reset.
	Bytes() []byte

	// Records returns the number of pending records.
	Records() int

	// Reset clears the batch after a flush.
	Reset()

	// HasPending returns true if there are records waiting to be flushed.
	HasPending() bool
}

// Buffer is a Batcher over one contiguous byte slice, so a flush is a
// single write and rotation can only fall between whole records.
type Buffer struct {
	buf       []byte
	records   int
	threshold int
	interval  time.Duration
	lastFlush time.Time
	now       func() time.Time
}

// NewBuffer returns a Buffer flushing at threshold bytes or every interval.
// A zero interval disables the time trigger.
func NewBuffer(threshold int, interval time.Duration) *Buffer {
	if threshold <= 0 {
		threshold = 1
	}
	b := &Buffer{
		buf:       make([]byte, 0, threshold+threshold/4),
		threshold: threshold,
		interval:  interval,
		now:       time.Now,
	}
	b.lastFlush = b.now()
	return b
}

// Add appends record to the batch.
func (b *Buffer) Add(record []byte) bool {
	b.buf = append(b.buf, record...)
	b.records++
	return len(b.buf) >= b.threshold
}

// Append lets callers encode directly into the batch tail:
//
//	b.Append(func(dst []byte) []byte { return binlog.AppendAudio(dst, rec) })
func (b *Buffer) Append(encode func(dst []byte) []byte) bool {
	b.buf = encode(b.buf)
	b.records++
	return len(b.buf) >= b.threshold
}

// ShouldFlush returns true once the threshold is reached, or when the flush
// interval has elapsed with records pending.
func (b *Buffer) ShouldFlush() bool {
	if len(b.buf) == 0 {
		return false
	}
	if len(b.buf) >= b.threshold {
		return true
	}
	return b.interval > 0 && b.now().Sub(b.lastFlush) >= b.interval
}

// Bytes returns the pending bytes.
func (b *Buffer) Bytes() []byte {
	return b.buf
}

// Records returns the number of pending records.
func (b *Buffer) Records() int {
	return b.records
}

// Len returns the number of pending bytes.
func (b *Buffer) Len() int {
	return len(b.buf)
}

// Reset clears the batch and restarts the flush interval. The backing array
// is kept for reuse.
func (b *Buffer) Reset() {
	b.buf = b.buf[:0]
	b.records = 0
	b.lastFlush = b.now()
}

// HasPending returns true if there are records waiting to be flushed.
func (b *Buffer) HasPending() bool {
	return len(b.buf) > 0
}

// SinceFlush returns the time since the last Reset.
func (b *Buffer) SinceFlush() time.Duration {
	return b.now().Sub(b.lastFlush)
}
