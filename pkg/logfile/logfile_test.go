package logfile

import (
	"bytes"
	"errors"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/bft-labs/dualcap/pkg/binlog"
)

func TestPartName(t *testing.T) {
	tests := []struct {
		prefix string
		index  int
		want   string
	}{
		{"csi_log", 0, "csi_log_part_000.bin"},
		{"audio_log", 7, "audio_log_part_007.bin"},
		{"csi_log", 123, "csi_log_part_123.bin"},
		{"csi_log", 1000, "csi_log_part_1000.bin"},
	}
	for _, tt := range tests {
		if got := PartName(tt.prefix, tt.index); got != tt.want {
			t.Errorf("PartName(%q, %d) = %q, want %q", tt.prefix, tt.index, got, tt.want)
		}
	}
}

func TestOpen_CreatesFirstPart(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "session")
	lf, err := Open(dir, "csi_log", 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer lf.Close()

	if lf.Index() != 0 || lf.Size() != 0 {
		t.Fatalf("index=%d size=%d", lf.Index(), lf.Size())
	}
	if lf.Limit() != DefaultLimit {
		t.Fatalf("limit = %d, want %d", lf.Limit(), DefaultLimit)
	}
	if _, err := os.Stat(filepath.Join(dir, "csi_log_part_000.bin")); err != nil {
		t.Fatalf("part 000 missing: %v", err)
	}
}

func TestMaybeRotate_AtLimit(t *testing.T) {
	dir := t.TempDir()
	lf, err := Open(dir, "p", 10)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer lf.Close()

	lf.Write(make([]byte, 9))
	if rotated, err := lf.MaybeRotate(); err != nil || rotated {
		t.Fatalf("rotated=%v err=%v below limit", rotated, err)
	}

	lf.Write(make([]byte, 1))
	rotated, err := lf.MaybeRotate()
	if err != nil || !rotated {
		t.Fatalf("rotated=%v err=%v at limit", rotated, err)
	}
	if lf.Index() != 1 || lf.Size() != 0 {
		t.Fatalf("after rotation index=%d size=%d", lf.Index(), lf.Size())
	}
	if lf.Total() != 10 {
		t.Fatalf("total = %d", lf.Total())
	}
	if filepath.Base(lf.Path()) != "p_part_001.bin" {
		t.Fatalf("path = %s", lf.Path())
	}

	info, err := os.Stat(filepath.Join(dir, "p_part_000.bin"))
	if err != nil {
		t.Fatalf("stat part 000: %v", err)
	}
	if info.Size() != 10 {
		t.Fatalf("part 000 size = %d", info.Size())
	}
}

func TestWriteAfterClose(t *testing.T) {
	lf, err := Open(t.TempDir(), "p", 10)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := lf.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := lf.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := lf.Write([]byte{1}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Write err = %v, want ErrClosed", err)
	}
	if _, err := lf.MaybeRotate(); !errors.Is(err, ErrClosed) {
		t.Fatalf("MaybeRotate err = %v, want ErrClosed", err)
	}
}

// Concatenating every part equals writing the same batches to one file, and
// every part decodes on record boundaries.
func TestRotation_ConcatenationEqualsSingleFile(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	var batches [][]byte
	for i := 0; i < 60; i++ {
		var batch []byte
		for j := 0; j < 1+rng.Intn(4); j++ {
			payload := make([]byte, 1+rng.Intn(200))
			rng.Read(payload)
			batch = binlog.AppendCSI(batch, binlog.CSIRecord{
				HostTimestamp:   float64(i),
				DeviceTimestamp: uint32(i*10 + j),
				RSSI:            int8(-j),
				Channel:         uint8(j),
				Payload:         payload,
			}, binlog.LayoutChannel)
		}
		batches = append(batches, batch)
	}

	rotDir := t.TempDir()
	single := t.TempDir()

	rot, err := Open(rotDir, "csi_log", 700)
	if err != nil {
		t.Fatalf("Open rotating: %v", err)
	}
	one, err := Open(single, "csi_log", 1<<40)
	if err != nil {
		t.Fatalf("Open single: %v", err)
	}

	for _, b := range batches {
		if _, err := rot.Write(b); err != nil {
			t.Fatalf("Write: %v", err)
		}
		if _, err := rot.MaybeRotate(); err != nil {
			t.Fatalf("MaybeRotate: %v", err)
		}
		if _, err := one.Write(b); err != nil {
			t.Fatalf("Write single: %v", err)
		}
		if _, err := one.MaybeRotate(); err != nil {
			t.Fatalf("MaybeRotate single: %v", err)
		}
	}
	if err := rot.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := one.Close(); err != nil {
		t.Fatalf("Close single: %v", err)
	}

	parts, err := Parts(rotDir, "csi_log")
	if err != nil {
		t.Fatalf("Parts: %v", err)
	}
	if len(parts) < 3 {
		t.Fatalf("expected several parts, got %d", len(parts))
	}

	var joined []byte
	records := 0
	for _, p := range parts {
		data, err := os.ReadFile(p)
		if err != nil {
			t.Fatalf("read %s: %v", p, err)
		}
		joined = append(joined, data...)

		r := binlog.NewCSIReader(bytes.NewReader(data), binlog.LayoutChannel)
		for {
			_, err := r.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Fatalf("%s does not end on a record boundary: %v", filepath.Base(p), err)
			}
			records++
		}
	}

	want, err := os.ReadFile(filepath.Join(single, "csi_log_part_000.bin"))
	if err != nil {
		t.Fatalf("read single: %v", err)
	}
	if !bytes.Equal(joined, want) {
		t.Fatalf("concatenated parts (%d bytes) differ from single file (%d bytes)", len(joined), len(want))
	}
	if records == 0 {
		t.Fatal("no records decoded")
	}
}

func TestParts_StopsAtGap(t *testing.T) {
	dir := t.TempDir()
	for _, i := range []int{0, 1, 3} {
		if err := os.WriteFile(filepath.Join(dir, PartName("a", i)), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	parts, err := Parts(dir, "a")
	if err != nil {
		t.Fatalf("Parts: %v", err)
	}
	if len(parts) != 2 {
		t.Fatalf("parts = %v", parts)
	}
}
