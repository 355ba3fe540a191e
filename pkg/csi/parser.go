package csi

import (
	"bytes"
	"encoding/binary"
	"time"

	"github.com/bft-labs/dualcap/pkg/binlog"
)

// Magic marks the start of every frame on the wire.
var Magic = [2]byte{0xFA, 0xFA}

const (
	// PackedHeaderSize is magic(2) + len(2) + rssi(1) + channel(1) + timestamp(4).
	PackedHeaderSize = 10

	// PaddedHeaderSize is the packed header followed by two reserved bytes.
	PaddedHeaderSize = 12

	// DefaultMaxPayload bounds the length field; larger values are treated
	// as a false magic.
	DefaultMaxPayload = 2048
)

// Stats are the parser's own counters. They are only touched by the
// goroutine that owns the parser.
type Stats struct {
	// Frames is the number of records emitted.
	Frames uint64

	// Resyncs counts false frame starts stepped over: implausible headers
	// and the losing alignment of an FA FA FA run.
	Resyncs uint64

	// SkippedBytes counts bytes dropped while searching for a frame start,
	// including the bytes of every resync.
	SkippedBytes uint64

	// Discarded counts bytes of trailing partial frames dropped by Flush.
	Discarded uint64
}

// Option configures a Parser.
type Option func(*Parser)

// WithHeaderSize sets the on-wire header size (10 or 12).
func WithHeaderSize(n int) Option {
	return func(p *Parser) {
		if n >= PackedHeaderSize {
			p.headerSize = n
		}
	}
}

// WithMaxPayload sets the largest length field accepted as genuine.
// A length of zero is never genuine: zero-length frames are skipped as a
// false magic.
func WithMaxPayload(n int) Option {
	return func(p *Parser) {
		if n > 0 {
			p.maxPayload = n
		}
	}
}

// WithClock overrides the wall clock used for host timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Parser) {
		if now != nil {
			p.now = now
		}
	}
}

// Parser turns an arbitrary byte stream into CSI records.
//
// Bytes are appended with Feed and complete frames are pulled with Next.
// Next never blocks: it returns false when the buffer holds no complete frame
// and can be called again after more bytes arrive. A Parser is not safe for
// concurrent use.
type Parser struct {
	buf        []byte
	off        int
	headerSize int
	maxPayload int
	ended      bool
	now        func() time.Time
	stats      Stats
}

// NewParser returns a parser for packed 10-byte headers unless configured otherwise.
func NewParser(opts ...Option) *Parser {
	p := &Parser{
		headerSize: PackedHeaderSize,
		maxPayload: DefaultMaxPayload,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Feed appends a chunk of raw bytes.
func (p *Parser) Feed(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	if p.off > 0 {
		n := copy(p.buf, p.buf[p.off:])
		p.buf = p.buf[:n]
		p.off = 0
	}
	p.buf = append(p.buf, chunk...)
}

// Next extracts the next complete frame.
// It returns false when more input is needed. Frames with a zero length
// field are never returned.
//
// A magic followed by a third 0xFA can start at either of two bytes. Next
// then holds the frame back until the bytes after both candidates tell them
// apart, or until End is called.
func (p *Parser) Next() (binlog.CSIRecord, bool) {
	for {
		data := p.buf[p.off:]

		idx := bytes.Index(data, Magic[:])
		if idx < 0 {
			// The magic may straddle the next chunk boundary.
			keep := 0
			if len(data) > 0 && data[len(data)-1] == Magic[0] {
				keep = 1
			}
			p.skip(len(data) - keep)
			return binlog.CSIRecord{}, false
		}
		if idx > 0 {
			p.skip(idx)
			data = data[idx:]
		}

		if len(data) < p.headerSize {
			return binlog.CSIRecord{}, false
		}

		if data[2] == Magic[0] {
			switch p.align(data) {
			case alignWait:
				return binlog.CSIRecord{}, false
			case alignNext:
				p.stats.Resyncs++
				p.skip(1)
				continue
			}
		}

		n := int(binary.LittleEndian.Uint16(data[2:4]))
		if !p.plausible(n) {
			p.resync()
			continue
		}
		total := p.headerSize + n
		if len(data) < total {
			return binlog.CSIRecord{}, false
		}

		payload := make([]byte, n)
		copy(payload, data[p.headerSize:total])
		rec := binlog.CSIRecord{
			HostTimestamp:   unixSeconds(p.now()),
			DeviceTimestamp: binary.LittleEndian.Uint32(data[6:10]),
			RSSI:            int8(data[4]),
			Channel:         data[5],
			Payload:         payload,
		}
		p.advance(total)
		p.stats.Frames++
		return rec, true
	}
}

// End marks the end of input. Frames held back for lack of following bytes
// are released by the next calls to Next. Flush clears the mark.
func (p *Parser) End() {
	p.ended = true
}

// Flush drops whatever is buffered, typically a frame truncated at the end
// of the stream, and returns the number of bytes dropped.
func (p *Parser) Flush() int {
	n := len(p.buf) - p.off
	p.stats.Discarded += uint64(n)
	p.buf = p.buf[:0]
	p.off = 0
	p.ended = false
	return n
}

// Buffered returns the number of bytes awaiting a complete frame.
func (p *Parser) Buffered() int {
	return len(p.buf) - p.off
}

// Stats returns a copy of the parser counters.
func (p *Parser) Stats() Stats {
	return p.stats
}

// HeaderSize returns the configured on-wire header size.
func (p *Parser) HeaderSize() int {
	return p.headerSize
}

func (p *Parser) plausible(n int) bool {
	return n > 0 && n <= p.maxPayload
}

type alignment int

const (
	alignHere alignment = iota
	alignNext
	alignWait
)

type verdict int

const (
	undecided verdict = iota
	rejected
	unconfirmed
	confirmed
)

// align picks between a frame at data[0] and one at data[1] when both bytes
// start a magic. A candidate whose frame is followed by another magic (or by
// the end of input) wins. Failing that the shorter frame wins: a false
// alignment borrows a neighbouring byte as the high byte of its length.
func (p *Parser) align(data []byte) alignment {
	here, nHere := p.judge(data, 0)
	next, nNext := p.judge(data, 1)
	switch {
	case next == rejected:
		return alignHere
	case here == rejected:
		return alignNext
	case here == confirmed:
		return alignHere
	case next == confirmed:
		return alignNext
	case here == undecided || next == undecided:
		return alignWait
	case nNext < nHere:
		return alignNext
	default:
		return alignHere
	}
}

// judge classifies the frame candidate starting at data[off].
func (p *Parser) judge(data []byte, off int) (verdict, int) {
	if len(data) < off+p.headerSize {
		if p.ended {
			return rejected, 0
		}
		return undecided, 0
	}
	n := int(binary.LittleEndian.Uint16(data[off+2 : off+4]))
	if !p.plausible(n) {
		return rejected, n
	}
	end := off + p.headerSize + n
	switch {
	case len(data) >= end+len(Magic):
		if data[end] == Magic[0] && data[end+1] == Magic[1] {
			return confirmed, n
		}
		return unconfirmed, n
	case !p.ended:
		return undecided, n
	case len(data) == end:
		return confirmed, n
	case len(data) > end:
		return unconfirmed, n
	default:
		return rejected, n
	}
}

func (p *Parser) skip(n int) {
	if n <= 0 {
		return
	}
	p.stats.SkippedBytes += uint64(n)
	p.advance(n)
}

// resync steps over the two magic bytes of a header that failed validation.
func (p *Parser) resync() {
	p.stats.Resyncs++
	p.skip(len(Magic))
}

func (p *Parser) advance(n int) {
	p.off += n
	if p.off >= len(p.buf) {
		p.buf = p.buf[:0]
		p.off = 0
	}
}

func unixSeconds(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/1e9
}
