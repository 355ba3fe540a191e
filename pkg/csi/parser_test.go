package csi

import (
	"bytes"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/bft-labs/dualcap/pkg/binlog"
)

func drain(p *Parser) []binlog.CSIRecord {
	var out []binlog.CSIRecord
	for rec, ok := p.Next(); ok; rec, ok = p.Next() {
		out = append(out, rec)
	}
	return out
}

func TestParser_SingleFrame(t *testing.T) {
	input := []byte{
		0xFA, 0xFA, // magic
		0x03, 0x00, // length
		0xFF,                   // rssi
		0x01,                   // channel
		0x01, 0x00, 0x00, 0x00, // device timestamp
		0x01, 0x02, 0x03, // payload
	}

	p := NewParser()
	p.Feed(input)
	recs := drain(p)

	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	r := recs[0]
	if r.RSSI != -1 || r.Channel != 1 || r.DeviceTimestamp != 1 {
		t.Fatalf("record = %+v", r)
	}
	if !bytes.Equal(r.Payload, []byte{1, 2, 3}) {
		t.Fatalf("payload = % x", r.Payload)
	}
	if r.PayloadLen() != 3 {
		t.Fatalf("payload len = %d", r.PayloadLen())
	}
	if p.Buffered() != 0 {
		t.Fatalf("buffered = %d, want 0", p.Buffered())
	}
}

func TestParser_SignedRSSI(t *testing.T) {
	tests := []struct {
		raw  byte
		want int8
	}{
		{0xFF, -1},
		{0x7F, 127},
		{0x80, -128},
		{0x00, 0},
		{0xC4, -60},
	}

	for _, tt := range tests {
		frame := AppendFrame(nil, Frame{Payload: []byte{1}}, PackedHeaderSize)
		frame[4] = tt.raw

		p := NewParser()
		p.Feed(frame)
		recs := drain(p)
		if len(recs) != 1 {
			t.Fatalf("raw %#x: got %d records", tt.raw, len(recs))
		}
		if recs[0].RSSI != tt.want {
			t.Errorf("raw %#x: rssi = %d, want %d", tt.raw, recs[0].RSSI, tt.want)
		}
	}
}

func TestParser_GarbageBetweenFrames(t *testing.T) {
	a := Frame{RSSI: -30, Channel: 6, Timestamp: 100, Payload: []byte{1, 2, 3, 4}}
	b := Frame{RSSI: -31, Channel: 6, Timestamp: 200, Payload: []byte{5, 6}}

	var stream []byte
	stream = AppendFrame(stream, a, PackedHeaderSize)
	stream = append(stream, 0x11, 0x22, 0x33, 0x44, 0x55)
	stream = AppendFrame(stream, b, PackedHeaderSize)

	p := NewParser()
	p.Feed(stream)
	recs := drain(p)

	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	if !bytes.Equal(recs[0].Payload, a.Payload) || !bytes.Equal(recs[1].Payload, b.Payload) {
		t.Fatalf("payloads = % x / % x", recs[0].Payload, recs[1].Payload)
	}
	if got := p.Stats().SkippedBytes; got != 5 {
		t.Fatalf("skipped bytes = %d, want 5", got)
	}
}

func TestParser_MagicInsidePayload(t *testing.T) {
	payload := []byte{0xFA, 0xFA, 0x02, 0x00, 0x00, 0x00, 0xFA, 0xFA}
	var stream []byte
	stream = AppendFrame(stream, Frame{Timestamp: 1, Payload: payload}, PackedHeaderSize)
	stream = AppendFrame(stream, Frame{Timestamp: 2, Payload: []byte{7}}, PackedHeaderSize)

	p := NewParser()
	// Split inside the payload so the embedded magic arrives before the frame is complete.
	p.Feed(stream[:PackedHeaderSize+3])
	if recs := drain(p); len(recs) != 0 {
		t.Fatalf("got %d records before frame completed", len(recs))
	}
	p.Feed(stream[PackedHeaderSize+3:])
	recs := drain(p)

	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	if !bytes.Equal(recs[0].Payload, payload) {
		t.Fatalf("payload = % x, want % x", recs[0].Payload, payload)
	}
	if recs[1].DeviceTimestamp != 2 {
		t.Fatalf("second record timestamp = %d", recs[1].DeviceTimestamp)
	}
	if p.Stats().Resyncs != 0 {
		t.Fatalf("unexpected resyncs: %d", p.Stats().Resyncs)
	}
}

func TestParser_TruncatedFrameAtEnd(t *testing.T) {
	frame := AppendFrame(nil, Frame{Payload: []byte{1, 2, 3, 4, 5}}, PackedHeaderSize)
	truncated := frame[:len(frame)-2]

	p := NewParser()
	p.Feed(truncated)
	if recs := drain(p); len(recs) != 0 {
		t.Fatalf("truncated frame emitted %d records", len(recs))
	}
	if p.Buffered() != len(truncated) {
		t.Fatalf("buffered = %d, want %d", p.Buffered(), len(truncated))
	}

	if n := p.Flush(); n != len(truncated) {
		t.Fatalf("flush dropped %d, want %d", n, len(truncated))
	}
	if p.Stats().Discarded != uint64(len(truncated)) {
		t.Fatalf("discarded = %d", p.Stats().Discarded)
	}
	if p.Buffered() != 0 {
		t.Fatalf("buffered after flush = %d", p.Buffered())
	}
}

func TestParser_ResyncAdvancesTwoBytes(t *testing.T) {
	tests := []struct {
		name   string
		header []byte
	}{
		{"zero length", []byte{0xFA, 0xFA, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}},
		{"oversized length", []byte{0xFA, 0xFA, 0xFF, 0xFF, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewParser()
			// Only the bad header: one resync and then the rest is scanned as filler.
			p.Feed(tt.header)
			if recs := drain(p); len(recs) != 0 {
				t.Fatalf("bad header emitted %d records", len(recs))
			}
			st := p.Stats()
			if st.Resyncs != 1 {
				t.Fatalf("resyncs = %d, want 1", st.Resyncs)
			}
			if st.SkippedBytes != uint64(len(tt.header)) {
				t.Fatalf("skipped = %d, want %d", st.SkippedBytes, len(tt.header))
			}

			// A genuine frame directly after the bad header is not lost.
			p = NewParser()
			stream := append(append([]byte{}, tt.header...), AppendFrame(nil, Frame{Timestamp: 9, Payload: []byte{1}}, PackedHeaderSize)...)
			p.Feed(stream)
			recs := drain(p)
			if len(recs) != 1 || recs[0].DeviceTimestamp != 9 {
				t.Fatalf("records after resync = %+v", recs)
			}
		})
	}
}

func TestParser_ResyncStepExact(t *testing.T) {
	// The bad header's own bytes hold a genuine magic two bytes in.
	good := AppendFrame(nil, Frame{Timestamp: 5, Payload: []byte{0xAB}}, PackedHeaderSize)
	next := AppendFrame(nil, Frame{Timestamp: 6, Payload: []byte{0xCD}}, PackedHeaderSize)
	stream := append(append([]byte{0xFA, 0xFA}, good...), next...)
	// FA FA FA FA 01 00 ... : the first header reads length 0xFAFA (too
	// long), the second 0x01FA, which only the following magic rules out.

	p := NewParser()
	p.Feed(stream)
	recs := drain(p)

	if len(recs) != 2 || recs[0].DeviceTimestamp != 5 || recs[1].DeviceTimestamp != 6 {
		t.Fatalf("records = %+v", recs)
	}
	if st := p.Stats(); st.Resyncs != 2 || st.SkippedBytes != 2 {
		t.Fatalf("stats = %+v, want 2 resyncs and 2 skipped bytes", st)
	}
}

func TestParser_FillerEndingInMagicByte(t *testing.T) {
	filler := []byte{0x01, 0x02, 0xFA}

	build := func(gap bool) []byte {
		var stream []byte
		for i := 1; i <= 3; i++ {
			if gap || i == 1 {
				stream = append(stream, filler...)
			}
			stream = AppendFrame(stream, Frame{Timestamp: uint32(i), Channel: 1, Payload: []byte{1, 2, 3}}, PackedHeaderSize)
		}
		return stream
	}

	tests := []struct {
		name  string
		input []byte
		chunk int
		end   bool
	}{
		{"trailing zeros", append(build(true), make([]byte, 1100)...), 0, false},
		{"end of input", build(true), 0, true},
		{"back to back frames byte by byte", build(false), 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewParser()
			var recs []binlog.CSIRecord
			if tt.chunk == 0 {
				p.Feed(tt.input)
				recs = drain(p)
			} else {
				for i := 0; i < len(tt.input); i += tt.chunk {
					p.Feed(tt.input[i:min(i+tt.chunk, len(tt.input))])
					recs = append(recs, drain(p)...)
				}
			}
			if tt.end {
				p.End()
				recs = append(recs, drain(p)...)
			}

			if len(recs) != 3 {
				t.Fatalf("got %d records, want 3: %+v", len(recs), recs)
			}
			for i, r := range recs {
				if r.DeviceTimestamp != uint32(i+1) || r.Channel != 1 || !bytes.Equal(r.Payload, []byte{1, 2, 3}) {
					t.Fatalf("record %d = %+v", i, r)
				}
			}
		})
	}
}

func TestParser_HeldBackUntilEnd(t *testing.T) {
	stream := append([]byte{0xFA}, AppendFrame(nil, Frame{Timestamp: 4, Payload: []byte{9, 9, 9}}, PackedHeaderSize)...)

	p := NewParser()
	p.Feed(stream)
	if recs := drain(p); len(recs) != 0 {
		t.Fatalf("ambiguous frame emitted before end: %+v", recs)
	}
	p.End()
	recs := drain(p)
	if len(recs) != 1 || recs[0].DeviceTimestamp != 4 {
		t.Fatalf("records = %+v", recs)
	}
	if p.Buffered() != 0 {
		t.Fatalf("buffered = %d, want 0", p.Buffered())
	}
}

func TestParser_MagicSplitAcrossChunks(t *testing.T) {
	frame := AppendFrame(nil, Frame{Timestamp: 3, Payload: []byte{1, 2}}, PackedHeaderSize)
	stream := append([]byte{0x01, 0x02, 0x03}, frame...)

	p := NewParser()
	p.Feed(stream[:4]) // filler + first magic byte
	if recs := drain(p); len(recs) != 0 {
		t.Fatalf("unexpected records")
	}
	if p.Buffered() != 1 {
		t.Fatalf("buffered = %d, want 1 retained magic byte", p.Buffered())
	}
	p.Feed(stream[4:])
	recs := drain(p)
	if len(recs) != 1 || recs[0].DeviceTimestamp != 3 {
		t.Fatalf("records = %+v", recs)
	}
}

func TestParser_NoMagicRetainsAtMostOneByte(t *testing.T) {
	p := NewParser()
	p.Feed(bytes.Repeat([]byte{0x42}, 100))
	drain(p)
	if p.Buffered() != 0 {
		t.Fatalf("buffered = %d, want 0", p.Buffered())
	}
	p.Feed([]byte{0x42, 0xFA})
	drain(p)
	if p.Buffered() != 1 {
		t.Fatalf("buffered = %d, want 1", p.Buffered())
	}
}

func TestParser_KFramesWithFiller(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	const k = 200

	var want []Frame
	var stream []byte
	for i := 0; i < k; i++ {
		filler := make([]byte, rng.Intn(20))
		for j := range filler {
			prev := len(stream) > 0 && stream[len(stream)-1] == Magic[0]
			if j > 0 {
				prev = filler[j-1] == Magic[0]
			}
			// Any byte except the second half of a magic.
			b := byte(rng.Intn(256))
			for prev && b == Magic[1] {
				b = byte(rng.Intn(256))
			}
			filler[j] = b
		}
		if i == 0 || i == k/2 {
			filler = append(filler, 0x17, Magic[0])
		}
		stream = append(stream, filler...)

		payload := make([]byte, 1+rng.Intn(300))
		rng.Read(payload)
		f := Frame{
			RSSI:      int8(rng.Intn(256) - 128),
			Channel:   uint8(rng.Intn(14)),
			Timestamp: rng.Uint32(),
			Payload:   payload,
		}
		want = append(want, f)
		stream = AppendFrame(stream, f, PackedHeaderSize)
	}

	// Feed in random chunk sizes to exercise restartability.
	p := NewParser()
	var got []binlog.CSIRecord
	for len(stream) > 0 {
		n := 1 + rng.Intn(64)
		if n > len(stream) {
			n = len(stream)
		}
		p.Feed(stream[:n])
		stream = stream[n:]
		got = append(got, drain(p)...)
	}
	p.End()
	got = append(got, drain(p)...)

	if len(got) != k {
		t.Fatalf("got %d records, want %d", len(got), k)
	}
	for i := range want {
		g, w := got[i], want[i]
		if g.RSSI != w.RSSI || g.Channel != w.Channel || g.DeviceTimestamp != w.Timestamp || !bytes.Equal(g.Payload, w.Payload) {
			t.Fatalf("record %d = %+v, want %+v", i, g, w)
		}
	}
	if p.Stats().Frames != k {
		t.Fatalf("frames stat = %d", p.Stats().Frames)
	}
}

func TestParser_PaddedHeader(t *testing.T) {
	stream := AppendFrame(nil, Frame{RSSI: -5, Channel: 11, Timestamp: 77, Payload: []byte{9, 9}}, PaddedHeaderSize)
	if len(stream) != PaddedHeaderSize+2 {
		t.Fatalf("frame length = %d", len(stream))
	}

	p := NewParser(WithHeaderSize(PaddedHeaderSize))
	p.Feed(stream)
	recs := drain(p)
	if len(recs) != 1 {
		t.Fatalf("got %d records", len(recs))
	}
	if !bytes.Equal(recs[0].Payload, []byte{9, 9}) || recs[0].Channel != 11 {
		t.Fatalf("record = %+v", recs[0])
	}
}

func TestParser_HostTimestampAtExtraction(t *testing.T) {
	base := time.Unix(1700000000, 0)
	calls := 0
	clock := func() time.Time {
		calls++
		return base.Add(time.Duration(calls) * time.Second)
	}

	p := NewParser(WithClock(clock))
	p.Feed(AppendFrame(nil, Frame{Payload: []byte{1}}, PackedHeaderSize))
	if calls != 0 {
		t.Fatalf("clock read on Feed")
	}
	rec, ok := p.Next()
	if !ok {
		t.Fatal("expected a record")
	}
	if math.Abs(rec.HostTimestamp-1700000001) > 1e-6 {
		t.Fatalf("host timestamp = %f", rec.HostTimestamp)
	}
}

func TestParser_MaxPayloadOption(t *testing.T) {
	p := NewParser(WithMaxPayload(4))
	var stream []byte
	stream = AppendFrame(stream, Frame{Timestamp: 1, Payload: make([]byte, 5)}, PackedHeaderSize)
	stream = AppendFrame(stream, Frame{Timestamp: 2, Payload: make([]byte, 4)}, PackedHeaderSize)
	p.Feed(stream)
	recs := drain(p)

	if len(recs) != 1 || recs[0].DeviceTimestamp != 2 {
		t.Fatalf("records = %+v", recs)
	}
	if p.Stats().Resyncs != 1 {
		t.Fatalf("resyncs = %d, want 1", p.Stats().Resyncs)
	}
}
