package cliconfig

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/bft-labs/dualcap/internal/domain"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
// Pointer fields distinguish an explicit zero or false from an absent key.
type FileConfig struct {
	OutputDir           string   `toml:"output_dir" yaml:"output_dir"`
	SessionName         string   `toml:"session_name" yaml:"session_name"`
	SerialPort          string   `toml:"serial_port" yaml:"serial_port"`
	FallbackPort        string   `toml:"fallback_port" yaml:"fallback_port"`
	PortMatch           []string `toml:"port_match" yaml:"port_match"`
	Baud                int      `toml:"baud" yaml:"baud"`
	ReadSize            int      `toml:"read_size" yaml:"read_size"`
	ReadTimeout         string   `toml:"read_timeout" yaml:"read_timeout"`
	WaitForPort         string   `toml:"wait_for_port" yaml:"wait_for_port"`
	HeaderSize          int      `toml:"header_size" yaml:"header_size"`
	MaxPayload          int      `toml:"max_payload" yaml:"max_payload"`
	CSILayout           string   `toml:"csi_layout" yaml:"csi_layout"`
	AudioDevice         *int     `toml:"audio_device" yaml:"audio_device"`
	SampleRate          int      `toml:"sample_rate" yaml:"sample_rate"`
	Channels            int      `toml:"channels" yaml:"channels"`
	ChunkSamples        int      `toml:"chunk_samples" yaml:"chunk_samples"`
	FileSizeLimit       int64    `toml:"file_size_limit" yaml:"file_size_limit"`
	CSIWriteThreshold   int      `toml:"csi_write_threshold" yaml:"csi_write_threshold"`
	AudioWriteThreshold int      `toml:"audio_write_threshold" yaml:"audio_write_threshold"`
	FlushInterval       string   `toml:"flush_interval" yaml:"flush_interval"`
	StatsInterval       string   `toml:"stats_interval" yaml:"stats_interval"`
	RawQueue            int      `toml:"raw_queue" yaml:"raw_queue"`
	RecordQueue         int      `toml:"record_queue" yaml:"record_queue"`
	AudioQueue          int      `toml:"audio_queue" yaml:"audio_queue"`
	ShutdownTimeout     string   `toml:"shutdown_timeout" yaml:"shutdown_timeout"`
	ShutdownGrace       string   `toml:"shutdown_grace" yaml:"shutdown_grace"`
	MetricsAddr         string   `toml:"metrics_addr" yaml:"metrics_addr"`
	NoCSI               *bool    `toml:"no_csi" yaml:"no_csi"`
	NoAudio             *bool    `toml:"no_audio" yaml:"no_audio"`
	Simulate            *bool    `toml:"simulate" yaml:"simulate"`
	LogLevel            string   `toml:"log_level" yaml:"log_level"`
}

// LoadFileConfig reads and parses a config file from the given path.
// Files ending in .yaml or .yml are YAML; anything else is TOML.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &fc)
	default:
		err = toml.Unmarshal(b, &fc)
	}
	if err != nil {
		return fc, domain.ConfigError("parse %s: %v", path, err)
	}
	return fc, nil
}

// DefaultConfigPath returns ~/.dualcap/config.toml if the user home
// directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".dualcap", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("output-dir", fc.OutputDir, &cfg.OutputDir)
	s.setString("session-name", fc.SessionName, &cfg.SessionName)
	s.setString("serial-port", fc.SerialPort, &cfg.SerialPort)
	s.setString("fallback-port", fc.FallbackPort, &cfg.FallbackPort)
	s.setStrings("port-match", fc.PortMatch, &cfg.PortMatch)
	s.setString("csi-layout", fc.CSILayout, &cfg.CSILayout)
	s.setString("metrics-addr", fc.MetricsAddr, &cfg.MetricsAddr)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)

	durations := []struct {
		flag  string
		value string
		dst   *time.Duration
	}{
		{"read-timeout", fc.ReadTimeout, &cfg.ReadTimeout},
		{"wait-for-port", fc.WaitForPort, &cfg.WaitForPort},
		{"flush-interval", fc.FlushInterval, &cfg.FlushInterval},
		{"stats-interval", fc.StatsInterval, &cfg.StatsInterval},
		{"shutdown-timeout", fc.ShutdownTimeout, &cfg.ShutdownTimeout},
		{"shutdown-grace", fc.ShutdownGrace, &cfg.ShutdownGrace},
	}
	for _, d := range durations {
		if err := s.setDuration(d.flag, d.value, d.dst); err != nil {
			return err
		}
	}

	s.setInt("baud", fc.Baud, &cfg.Baud)
	s.setInt("read-size", fc.ReadSize, &cfg.ReadSize)
	s.setInt("header-size", fc.HeaderSize, &cfg.HeaderSize)
	s.setInt("max-payload", fc.MaxPayload, &cfg.MaxPayload)
	s.setIntPtr("audio-device", fc.AudioDevice, &cfg.AudioDevice)
	s.setInt("sample-rate", fc.SampleRate, &cfg.SampleRate)
	s.setInt("channels", fc.Channels, &cfg.Channels)
	s.setInt("chunk-samples", fc.ChunkSamples, &cfg.ChunkSamples)
	s.setInt64("file-size-limit", fc.FileSizeLimit, &cfg.FileSizeLimit)
	s.setInt("csi-write-threshold", fc.CSIWriteThreshold, &cfg.CSIWriteThreshold)
	s.setInt("audio-write-threshold", fc.AudioWriteThreshold, &cfg.AudioWriteThreshold)
	s.setInt("raw-queue", fc.RawQueue, &cfg.RawQueue)
	s.setInt("record-queue", fc.RecordQueue, &cfg.RecordQueue)
	s.setInt("audio-queue", fc.AudioQueue, &cfg.AudioQueue)

	s.setBool("no-csi", fc.NoCSI, &cfg.NoCSI)
	s.setBool("no-audio", fc.NoAudio, &cfg.NoAudio)
	s.setBool("simulate", fc.Simulate, &cfg.Simulate)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
