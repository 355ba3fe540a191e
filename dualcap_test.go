package dualcap

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bft-labs/dualcap/pkg/logfile"
)

func TestRecorder_SimulatedSession(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OutputDir = t.TempDir()
	cfg.SessionName = "sim"
	cfg.SampleRate = 8000
	cfg.ChunkSamples = 160
	cfg.StatsInterval = 50 * time.Millisecond
	cfg.FlushInterval = 50 * time.Millisecond
	cfg.ReadTimeout = 20 * time.Millisecond

	rec, err := New(cfg, WithStatus(io.Discard), WithSimulation(SimConfig{FrameRate: 200, PayloadSize: 64, Seed: 1}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	res, err := rec.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Dir != filepath.Join(cfg.OutputDir, "sim") {
		t.Fatalf("Dir = %q", res.Dir)
	}
	if res.CSI.Records == 0 || res.Audio.Records == 0 {
		t.Fatalf("nothing recorded: csi %+v audio %+v", res.CSI, res.Audio)
	}

	for _, prefix := range []string{"csi", "audio"} {
		parts, err := logfile.Parts(res.Dir, prefix)
		if err != nil || len(parts) == 0 {
			t.Fatalf("%s parts = %v, %v", prefix, parts, err)
		}
	}
	if _, err := os.Stat(filepath.Join(res.Dir, "metadata.json")); err != nil {
		t.Fatalf("metadata: %v", err)
	}
}
