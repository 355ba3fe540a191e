package cliconfig

import (
	"os"
	"strconv"
	"time"

	"github.com/bft-labs/dualcap/internal/domain"
)

// EnvPrefix prefixes every environment variable read by ApplyEnvConfig.
const EnvPrefix = "DUALCAP_"

func env(key string) string {
	return os.Getenv(EnvPrefix + key)
}

// ApplyEnvConfig applies configuration from environment variables (DUALCAP_*).
// These override file config but are overridden by flags (changed map).
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("output-dir", env("OUTPUT_DIR"), &cfg.OutputDir)
	s.setString("session-name", env("SESSION_NAME"), &cfg.SessionName)
	s.setString("serial-port", env("SERIAL_PORT"), &cfg.SerialPort)
	s.setString("fallback-port", env("FALLBACK_PORT"), &cfg.FallbackPort)
	s.setStringsFromString("port-match", env("PORT_MATCH"), &cfg.PortMatch)
	s.setString("csi-layout", env("CSI_LAYOUT"), &cfg.CSILayout)
	s.setString("metrics-addr", env("METRICS_ADDR"), &cfg.MetricsAddr)
	s.setString("log-level", env("LOG_LEVEL"), &cfg.LogLevel)

	durations := []struct {
		flag string
		key  string
		dst  *time.Duration
	}{
		{"read-timeout", "READ_TIMEOUT", &cfg.ReadTimeout},
		{"wait-for-port", "WAIT_FOR_PORT", &cfg.WaitForPort},
		{"flush-interval", "FLUSH_INTERVAL", &cfg.FlushInterval},
		{"stats-interval", "STATS_INTERVAL", &cfg.StatsInterval},
		{"shutdown-timeout", "SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout},
		{"shutdown-grace", "SHUTDOWN_GRACE", &cfg.ShutdownGrace},
	}
	for _, d := range durations {
		if err := s.setDuration(d.flag, env(d.key), d.dst); err != nil {
			return err
		}
	}

	ints := []struct {
		flag string
		key  string
		dst  *int
	}{
		{"baud", "BAUD", &cfg.Baud},
		{"read-size", "READ_SIZE", &cfg.ReadSize},
		{"header-size", "HEADER_SIZE", &cfg.HeaderSize},
		{"max-payload", "MAX_PAYLOAD", &cfg.MaxPayload},
		{"sample-rate", "SAMPLE_RATE", &cfg.SampleRate},
		{"channels", "CHANNELS", &cfg.Channels},
		{"chunk-samples", "CHUNK_SAMPLES", &cfg.ChunkSamples},
		{"csi-write-threshold", "CSI_WRITE_THRESHOLD", &cfg.CSIWriteThreshold},
		{"audio-write-threshold", "AUDIO_WRITE_THRESHOLD", &cfg.AudioWriteThreshold},
		{"raw-queue", "RAW_QUEUE", &cfg.RawQueue},
		{"record-queue", "RECORD_QUEUE", &cfg.RecordQueue},
		{"audio-queue", "AUDIO_QUEUE", &cfg.AudioQueue},
	}
	for _, i := range ints {
		if err := s.setIntFromString(i.flag, env(i.key), i.dst); err != nil {
			return err
		}
	}

	// audio_device accepts negative values, so it bypasses the positive-only setter.
	if v := env("AUDIO_DEVICE"); v != "" && !changed["audio-device"] {
		idx, err := strconv.Atoi(v)
		if err != nil {
			return domain.ConfigError("parse audio-device: %v", err)
		}
		cfg.AudioDevice = idx
	}

	if err := s.setInt64FromString("file-size-limit", env("FILE_SIZE_LIMIT"), &cfg.FileSizeLimit); err != nil {
		return err
	}

	s.setBoolFromString("no-csi", env("NO_CSI"), &cfg.NoCSI)
	s.setBoolFromString("no-audio", env("NO_AUDIO"), &cfg.NoAudio)
	s.setBoolFromString("simulate", env("SIMULATE"), &cfg.Simulate)

	return nil
}
