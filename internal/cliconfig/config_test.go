package cliconfig

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bft-labs/dualcap/internal/domain"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.SerialPort != "auto" {
		t.Errorf("SerialPort = %v, want auto", cfg.SerialPort)
	}
	if cfg.HeaderSize != 10 {
		t.Errorf("HeaderSize = %v, want 10", cfg.HeaderSize)
	}
	if cfg.FileSizeLimit != 500<<20 {
		t.Errorf("FileSizeLimit = %v, want 500MiB", cfg.FileSizeLimit)
	}
	if cfg.AudioDevice != -1 {
		t.Errorf("AudioDevice = %v, want -1", cfg.AudioDevice)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
	if !strings.HasPrefix(cfg.SessionName, "capture_") {
		t.Errorf("derived SessionName = %q", cfg.SessionName)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"both streams disabled", func(c *Config) { c.NoCSI, c.NoAudio = true, true }, true},
		{"padded header", func(c *Config) { c.HeaderSize = 12 }, false},
		{"odd header", func(c *Config) { c.HeaderSize = 11 }, true},
		{"odd header ignored without csi", func(c *Config) { c.HeaderSize = 11; c.NoCSI = true }, false},
		{"max payload too large", func(c *Config) { c.MaxPayload = 70000 }, true},
		{"bad layout", func(c *Config) { c.CSILayout = "wide" }, true},
		{"nochannel layout", func(c *Config) { c.CSILayout = "nochannel" }, false},
		{"chunk not a multiple of channels", func(c *Config) { c.Channels = 2; c.ChunkSamples = 1023 }, true},
		{"stereo chunk", func(c *Config) { c.Channels = 2; c.ChunkSamples = 2048 }, false},
		{"chunk ignored without audio", func(c *Config) { c.ChunkSamples = 0; c.NoAudio = true }, false},
		{"zero sample rate", func(c *Config) { c.SampleRate = 0 }, true},
		{"zero queue", func(c *Config) { c.AudioQueue = 0 }, true},
		{"grace above timeout", func(c *Config) { c.ShutdownGrace = time.Minute }, true},
		{"session name with separator", func(c *Config) { c.SessionName = "a/b" }, true},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, domain.ErrConfig) {
				t.Fatalf("error %v does not wrap ErrConfig", err)
			}
		})
	}
}

func TestConfig_ValidateFillsDerivedDefaults(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OutputDir = ""
	cfg.SerialPort = ""
	cfg.SessionName = "run1"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.OutputDir != "." || cfg.SerialPort != "auto" || cfg.SessionName != "run1" {
		t.Fatalf("derived config = %+v", cfg)
	}
}

func TestConfigSetter(t *testing.T) {
	s := newConfigSetter(map[string]bool{"baud": true})

	baud := 1
	s.setInt("baud", 9600, &baud)
	if baud != 1 {
		t.Errorf("changed flag overwritten: baud = %d", baud)
	}

	size := 4
	s.setInt("read-size", 0, &size)
	if size != 4 {
		t.Errorf("zero value applied: read-size = %d", size)
	}

	dev := -1
	zero := 0
	s.setIntPtr("audio-device", &zero, &dev)
	if dev != 0 {
		t.Errorf("explicit zero device not applied: %d", dev)
	}

	var d time.Duration
	if err := s.setDuration("flush-interval", "nope", &d); !errors.Is(err, domain.ErrConfig) {
		t.Errorf("setDuration error = %v, want ErrConfig", err)
	}

	var match []string
	s.setStringsFromString("port-match", " CP210x, ,ESP32 ", &match)
	if len(match) != 2 || match[0] != "CP210x" || match[1] != "ESP32" {
		t.Errorf("match = %q", match)
	}
}
