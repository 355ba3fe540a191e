package ports

import (
	"context"
	"time"
)

// SerialPort is an open serial device.
//
// Read blocks for at most the read timeout the port was opened with. A read
// that times out returns 0, nil; implementations normalize driver-specific
// timeout signalling to that.
type SerialPort interface {
	Read(p []byte) (int, error)
	Close() error
}

// SerialConfig describes how to open a serial device.
type SerialConfig struct {
	Name        string
	Baud        int
	ReadTimeout time.Duration
}

// SerialOpener opens serial devices.
type SerialOpener interface {
	Open(ctx context.Context, cfg SerialConfig) (SerialPort, error)
}

// PortInfo describes a serial port found on the system.
type PortInfo struct {
	Name         string
	Description  string
	IsUSB        bool
	VID          string
	PID          string
	SerialNumber string
}

// PortLister enumerates the serial ports present on the system.
type PortLister interface {
	List() ([]PortInfo, error)
}
