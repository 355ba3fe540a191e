package writer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"testing"
	"time"

	"github.com/bft-labs/dualcap/internal/domain"
	"github.com/bft-labs/dualcap/pkg/binlog"
	"github.com/bft-labs/dualcap/pkg/logfile"
)

func run(t *testing.T, ctx context.Context, fn func(context.Context) error) error {
	t.Helper()
	errc := make(chan error, 1)
	go func() { errc <- fn(ctx) }()
	select {
	case err := <-errc:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("writer did not return")
		return nil
	}
}

func readAll(t *testing.T, dir, prefix string) ([]string, []byte) {
	t.Helper()
	parts, err := logfile.Parts(dir, prefix)
	if err != nil {
		t.Fatalf("Parts: %v", err)
	}
	var all []byte
	for _, p := range parts {
		data, err := os.ReadFile(p)
		if err != nil {
			t.Fatal(err)
		}
		all = append(all, data...)
	}
	return parts, all
}

func TestCSIWriter_RotatesOnRecordBoundaries(t *testing.T) {
	dir := t.TempDir()
	file, err := logfile.Open(dir, "csi_log", 1000)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	in := make(chan binlog.CSIRecord, 256)
	var want []byte
	for i := 0; i < 100; i++ {
		rec := binlog.CSIRecord{
			HostTimestamp:   float64(i) / 10,
			DeviceTimestamp: uint32(i),
			RSSI:            -50,
			Channel:         6,
			Payload:         bytes.Repeat([]byte{byte(i)}, 40),
		}
		want = binlog.AppendCSI(want, rec, binlog.LayoutChannel)
		in <- rec
	}
	close(in)

	snaps := make(chan domain.Snapshot, 16)
	w := NewCSIWriter(in, file, binlog.LayoutChannel, snaps, Options{Threshold: 300}, nil)
	if err := run(t, context.Background(), w.Run); err != nil {
		t.Fatalf("Run: %v", err)
	}

	parts, all := readAll(t, dir, "csi_log")
	if len(parts) < 3 {
		t.Fatalf("expected rotation, got %d parts", len(parts))
	}
	if !bytes.Equal(all, want) {
		t.Fatalf("written bytes (%d) differ from the encoded stream (%d)", len(all), len(want))
	}

	for _, p := range parts {
		f, err := os.Open(p)
		if err != nil {
			t.Fatal(err)
		}
		r := binlog.NewCSIReader(f, binlog.LayoutChannel)
		for {
			if _, err := r.Next(); err == io.EOF {
				break
			} else if err != nil {
				t.Fatalf("%s: %v", p, err)
			}
		}
		f.Close()
	}

	var last domain.Snapshot
	for len(snaps) > 0 {
		last = <-snaps
	}
	if !last.Writer || last.Records != 100 || last.Bytes != uint64(len(want)) || last.Source != "csi-writer" {
		t.Fatalf("final snapshot = %+v", last)
	}
}

func TestAudioWriter_TotalPayload(t *testing.T) {
	const (
		n     = 25
		chunk = 512
	)
	dir := t.TempDir()
	file, err := logfile.Open(dir, "audio_log", 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	in := make(chan binlog.AudioRecord, n)
	for i := 0; i < n; i++ {
		samples := make([]int16, chunk)
		samples[0] = int16(i)
		in <- binlog.AudioRecord{HostTimestamp: float64(i), Samples: samples}
	}
	close(in)

	released := 0
	w := NewAudioWriter(in, file, func(binlog.AudioRecord) { released++ }, nil, Options{Threshold: 1 << 20}, nil)
	if err := run(t, context.Background(), w.Run); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if released != n {
		t.Fatalf("released %d buffers, want %d", released, n)
	}

	_, all := readAll(t, dir, "audio_log")
	r := binlog.NewAudioReader(bytes.NewReader(all))
	payload, records := 0, 0
	for {
		rec, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("record %d: %v", records, err)
		}
		if rec.Samples[0] != int16(records) {
			t.Fatalf("record %d out of order", records)
		}
		payload += rec.PayloadBytes()
		records++
	}
	if records != n {
		t.Fatalf("records = %d, want %d", records, n)
	}
	if payload != n*chunk*binlog.SampleWidth {
		t.Fatalf("payload = %d, want %d", payload, n*chunk*binlog.SampleWidth)
	}
}

func TestWriter_FlushesOnInterval(t *testing.T) {
	dir := t.TempDir()
	file, err := logfile.Open(dir, "csi_log", 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	in := make(chan binlog.CSIRecord, 1)
	w := NewCSIWriter(in, file, binlog.LayoutNoChannel, nil, Options{Threshold: 1 << 20, FlushInterval: 20 * time.Millisecond}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx) }()

	in <- binlog.CSIRecord{Payload: []byte{1, 2, 3}}

	deadline := time.Now().Add(5 * time.Second)
	for file.Size() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if file.Size() != int64(binlog.LayoutNoChannel.HeaderSize()+3) {
		t.Fatalf("size after interval = %d", file.Size())
	}

	close(in)
	cancel()
	if err := <-errc; err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestWriter_FlushesPendingOnGraceExpiry(t *testing.T) {
	dir := t.TempDir()
	file, err := logfile.Open(dir, "csi_log", 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	in := make(chan binlog.CSIRecord, 4)
	in <- binlog.CSIRecord{Payload: []byte{9}}
	w := NewCSIWriter(in, file, binlog.LayoutChannel, nil, Options{Threshold: 1 << 20, FlushInterval: time.Hour, Grace: 20 * time.Millisecond}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := run(t, ctx, w.Run); err != nil {
		t.Fatalf("Run: %v", err)
	}

	_, all := readAll(t, dir, "csi_log")
	if len(all) != binlog.LayoutChannel.HeaderSize()+1 {
		t.Fatalf("pending batch not flushed: %d bytes on disk", len(all))
	}
}

func TestWriter_PersistenceErrorIsFatal(t *testing.T) {
	file, err := logfile.Open(t.TempDir(), "csi_log", 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	file.Close()

	in := make(chan binlog.CSIRecord, 1)
	in <- binlog.CSIRecord{Payload: []byte{1}}
	close(in)

	snaps := make(chan domain.Snapshot, 4)
	w := NewCSIWriter(in, file, binlog.LayoutChannel, snaps, Options{Threshold: 1}, nil)
	err = run(t, context.Background(), w.Run)
	if !errors.Is(err, domain.ErrPersistence) || !errors.Is(err, logfile.ErrClosed) {
		t.Fatalf("err = %v, want persistence error", err)
	}
	if s := <-snaps; s.Err == nil {
		t.Fatalf("snapshot missing error: %+v", s)
	}
}
