package cliconfig

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bft-labs/dualcap/internal/domain"
)

func TestApplyFileConfig(t *testing.T) {
	trueVal := true
	zero := 0

	tests := []struct {
		name       string
		fileConfig FileConfig
		changed    map[string]bool
		check      func(t *testing.T, cfg Config)
		wantErr    bool
	}{
		{
			name: "applies config values",
			fileConfig: FileConfig{
				OutputDir:     "/captures",
				SerialPort:    "/dev/ttyACM1",
				Baud:          115200,
				HeaderSize:    12,
				FlushInterval: "1s",
				AudioDevice:   &zero,
				NoAudio:       &trueVal,
				PortMatch:     []string{"CP2102"},
			},
			changed: map[string]bool{},
			check: func(t *testing.T, cfg Config) {
				if cfg.OutputDir != "/captures" || cfg.SerialPort != "/dev/ttyACM1" || cfg.Baud != 115200 {
					t.Errorf("strings/ints not applied: %+v", cfg)
				}
				if cfg.HeaderSize != 12 || cfg.FlushInterval != time.Second {
					t.Errorf("header/flush not applied: %+v", cfg)
				}
				if cfg.AudioDevice != 0 || !cfg.NoAudio {
					t.Errorf("pointer fields not applied: device=%d noAudio=%v", cfg.AudioDevice, cfg.NoAudio)
				}
				if len(cfg.PortMatch) != 1 || cfg.PortMatch[0] != "CP2102" {
					t.Errorf("PortMatch = %q", cfg.PortMatch)
				}
			},
		},
		{
			name:       "respects changed flags",
			fileConfig: FileConfig{Baud: 115200, SampleRate: 48000},
			changed:    map[string]bool{"baud": true},
			check: func(t *testing.T, cfg Config) {
				if cfg.Baud != DefaultConfig().Baud {
					t.Errorf("Baud = %d, flag value should win", cfg.Baud)
				}
				if cfg.SampleRate != 48000 {
					t.Errorf("SampleRate = %d, want 48000", cfg.SampleRate)
				}
			},
		},
		{
			name:       "absent keys keep defaults",
			fileConfig: FileConfig{},
			changed:    map[string]bool{},
			check: func(t *testing.T, cfg Config) {
				def := DefaultConfig()
				if cfg.AudioDevice != def.AudioDevice || cfg.ChunkSamples != def.ChunkSamples || cfg.NoCSI {
					t.Errorf("defaults overwritten: %+v", cfg)
				}
			},
		},
		{
			name:       "invalid duration",
			fileConfig: FileConfig{ShutdownGrace: "later"},
			changed:    map[string]bool{},
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			err := ApplyFileConfig(&cfg, tt.fileConfig, tt.changed)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ApplyFileConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestLoadFileConfig_Formats(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		file    string
		content string
	}{
		{
			file: "config.toml",
			content: `
output_dir = "/captures"
serial_port = "/dev/ttyUSB0"
port_match = ["ESP32", "303A"]
audio_device = 2
flush_interval = "250ms"
no_audio = true
`,
		},
		{
			file: "config.yaml",
			content: `
output_dir: /captures
serial_port: /dev/ttyUSB0
port_match: [ESP32, 303A]
audio_device: 2
flush_interval: 250ms
no_audio: true
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			path := filepath.Join(dir, tt.file)
			if err := os.WriteFile(path, []byte(strings.TrimSpace(tt.content)), 0o644); err != nil {
				t.Fatal(err)
			}

			fc, err := LoadFileConfig(path)
			if err != nil {
				t.Fatalf("LoadFileConfig: %v", err)
			}
			if fc.OutputDir != "/captures" || fc.SerialPort != "/dev/ttyUSB0" || fc.FlushInterval != "250ms" {
				t.Errorf("scalars = %+v", fc)
			}
			if len(fc.PortMatch) != 2 || fc.PortMatch[1] != "303A" {
				t.Errorf("PortMatch = %q", fc.PortMatch)
			}
			if fc.AudioDevice == nil || *fc.AudioDevice != 2 {
				t.Errorf("AudioDevice = %v", fc.AudioDevice)
			}
			if fc.NoAudio == nil || !*fc.NoAudio || fc.NoCSI != nil {
				t.Errorf("bools = no_audio %v no_csi %v", fc.NoAudio, fc.NoCSI)
			}
		})
	}
}

func TestLoadFileConfig_Errors(t *testing.T) {
	dir := t.TempDir()

	if _, err := LoadFileConfig(filepath.Join(dir, "missing.toml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file error = %v", err)
	}

	bad := filepath.Join(dir, "bad.toml")
	if err := os.WriteFile(bad, []byte("baud = = 3"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFileConfig(bad); !errors.Is(err, domain.ErrConfig) {
		t.Errorf("malformed file error = %v, want ErrConfig", err)
	}
}

func TestDefaultConfigPath(t *testing.T) {
	t.Setenv("HOME", "/home/capture")
	if got := DefaultConfigPath(); got != filepath.Join("/home/capture", ".dualcap", "config.toml") {
		t.Errorf("DefaultConfigPath() = %q", got)
	}
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if FileExists(path) {
		t.Fatal("FileExists reported a missing file")
	}
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if !FileExists(path) {
		t.Fatal("FileExists missed an existing file")
	}
}
