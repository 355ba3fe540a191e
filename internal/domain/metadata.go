package domain

import "time"

// SessionMetadata describes a session's recordings. It is written once
// before any unit starts and never modified.
type SessionMetadata struct {
	SessionID             string    `json:"session_id"`
	FormatVersion         string    `json:"format_version"`
	StartTimeUTC          time.Time `json:"start_time_utc"`
	SampleRate            uint32    `json:"sample_rate"`
	Channels              uint32    `json:"channels"`
	AudioDType            string    `json:"audio_dtype"`
	CSIPort               string    `json:"csi_port"`
	AudioDeviceIndex      int       `json:"audio_device_index"`
	AudioDeviceName       string    `json:"audio_device_name,omitempty"`
	ChunkSamples          int       `json:"chunk_samples"`
	CSILayout             string    `json:"csi_layout"`
	CSIFormatDescriptor   string    `json:"csi_format_descriptor"`
	AudioFormatDescriptor string    `json:"audio_format_descriptor"`
	FileSizeLimit         int64     `json:"file_size_limit"`
	CSIEnabled            bool      `json:"csi_enabled"`
	AudioEnabled          bool      `json:"audio_enabled"`
}
