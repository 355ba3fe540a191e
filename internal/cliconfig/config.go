package cliconfig

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bft-labs/dualcap/internal/adapters/serial"
	"github.com/bft-labs/dualcap/internal/domain"
	"github.com/bft-labs/dualcap/pkg/binlog"
	"github.com/bft-labs/dualcap/pkg/csi"
	"github.com/bft-labs/dualcap/pkg/log"
	"github.com/bft-labs/dualcap/pkg/logfile"
)

// Config holds CLI configuration for dualcap.
type Config struct {
	OutputDir   string
	SessionName string

	SerialPort   string
	FallbackPort string
	PortMatch    []string
	Baud         int
	ReadSize     int
	ReadTimeout  time.Duration
	WaitForPort  time.Duration

	HeaderSize int
	MaxPayload int
	CSILayout  string

	// AudioDevice is the capture device index; negative selects the
	// system default.
	AudioDevice  int
	SampleRate   int
	Channels     int
	ChunkSamples int

	FileSizeLimit       int64
	CSIWriteThreshold   int
	AudioWriteThreshold int
	FlushInterval       time.Duration
	StatsInterval       time.Duration

	RawQueue    int
	RecordQueue int
	AudioQueue  int

	ShutdownTimeout time.Duration
	ShutdownGrace   time.Duration

	MetricsAddr string
	NoCSI       bool
	NoAudio     bool
	Simulate    bool
	LogLevel    string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		OutputDir:           ".",
		SerialPort:          serial.AutoPort,
		PortMatch:           append([]string(nil), serial.DefaultMatch...),
		Baud:                2000000,
		ReadSize:            32 << 10,
		ReadTimeout:         100 * time.Millisecond,
		HeaderSize:          csi.PackedHeaderSize,
		MaxPayload:          csi.DefaultMaxPayload,
		CSILayout:           binlog.LayoutChannel.String(),
		AudioDevice:         -1,
		SampleRate:          44100,
		Channels:            1,
		ChunkSamples:        1024,
		FileSizeLimit:       logfile.DefaultLimit,
		CSIWriteThreshold:   128 << 10,
		AudioWriteThreshold: 64 << 10,
		FlushInterval:       500 * time.Millisecond,
		StatsInterval:       time.Second,
		RawQueue:            256,
		RecordQueue:         4096,
		AudioQueue:          256,
		ShutdownTimeout:     10 * time.Second,
		ShutdownGrace:       2 * time.Second,
		LogLevel:            "info",
	}
}

// Validate checks the configuration for errors and sets derived defaults.
// Every error wraps domain.ErrConfig.
func (c *Config) Validate() error {
	if c.NoCSI && c.NoAudio {
		return domain.ConfigError("no-csi and no-audio leave nothing to record")
	}
	if c.OutputDir == "" {
		c.OutputDir = "."
	}
	if c.SessionName == "" {
		c.SessionName = fmt.Sprintf("capture_%d", time.Now().Unix())
	}
	if strings.ContainsAny(c.SessionName, `/\`) {
		return domain.ConfigError("session name %q must not contain path separators", c.SessionName)
	}
	if c.SerialPort == "" {
		c.SerialPort = serial.AutoPort
	}

	if !c.NoCSI {
		if c.Baud <= 0 {
			return domain.ConfigError("baud must be positive")
		}
		if c.ReadSize <= 0 {
			return domain.ConfigError("read size must be positive")
		}
		if c.ReadTimeout <= 0 {
			return domain.ConfigError("read timeout must be positive")
		}
		if c.HeaderSize != csi.PackedHeaderSize && c.HeaderSize != csi.PaddedHeaderSize {
			return domain.ConfigError("header size must be %d or %d, got %d", csi.PackedHeaderSize, csi.PaddedHeaderSize, c.HeaderSize)
		}
		if c.MaxPayload <= 0 || c.MaxPayload > 0xFFFF {
			return domain.ConfigError("max payload must be in 1..65535, got %d", c.MaxPayload)
		}
		if _, err := binlog.ParseLayout(c.CSILayout); err != nil {
			return domain.ConfigError("csi layout: %v", err)
		}
	}

	if !c.NoAudio {
		if c.SampleRate <= 0 {
			return domain.ConfigError("sample rate must be positive")
		}
		if c.Channels <= 0 {
			return domain.ConfigError("channels must be positive")
		}
		if c.ChunkSamples <= 0 || c.ChunkSamples%c.Channels != 0 {
			return domain.ConfigError("chunk samples (%d) must be a positive multiple of channels (%d)", c.ChunkSamples, c.Channels)
		}
	}

	if c.FileSizeLimit <= 0 {
		return domain.ConfigError("file size limit must be positive")
	}
	if c.FlushInterval <= 0 || c.StatsInterval <= 0 {
		return domain.ConfigError("flush and stats intervals must be positive")
	}
	if c.RawQueue <= 0 || c.RecordQueue <= 0 || c.AudioQueue <= 0 {
		return domain.ConfigError("queue capacities must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		return domain.ConfigError("shutdown timeout must be positive")
	}
	if c.ShutdownGrace <= 0 || c.ShutdownGrace >= c.ShutdownTimeout {
		return domain.ConfigError("shutdown grace (%s) must be positive and below the shutdown timeout (%s)", c.ShutdownGrace, c.ShutdownTimeout)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return domain.ConfigError("log level: %v", err)
	}
	return nil
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

func (s *configSetter) setStrings(flag string, value []string, dst *[]string) {
	if len(value) == 0 || s.changed[flag] {
		return
	}
	*dst = append([]string(nil), value...)
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setIntPtr applies any value, zero and negatives included, when present.
func (s *configSetter) setIntPtr(flag string, value *int, dst *int) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

func (s *configSetter) setInt64(flag string, value int64, dst *int64) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return domain.ConfigError("parse %s: %v", flag, err)
	}
	*dst = d
	return nil
}

func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return domain.ConfigError("parse %s: %v", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

func (s *configSetter) setInt64FromString(flag, value string, dst *int64) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return domain.ConfigError("parse %s: %v", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setStringsFromString splits a comma separated list.
func (s *configSetter) setStringsFromString(flag, value string, dst *[]string) {
	if value == "" || s.changed[flag] {
		return
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) > 0 {
		*dst = out
	}
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
