package session

import (
	"path/filepath"
	"time"

	"github.com/bft-labs/dualcap/pkg/binlog"
)

// Config is the resolved configuration of one capture session.
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
	HeaderSize   int
	MaxPayload   int
	Layout       binlog.Layout

	AudioDevice  int
	SampleRate   uint32
	Channels     uint32
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
}

// Dir returns the directory the session writes into.
func (c Config) Dir() string {
	return filepath.Join(c.OutputDir, c.SessionName)
}

// snapshotQueue bounds the stats queue. Every unit reports about once per
// stats interval, so this holds several intervals of backlog.
const snapshotQueue = 64
