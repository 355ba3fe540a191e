package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent the failure classes of a capture session.
// Wrapped errors are checked with errors.Is.
var (
	// ErrFrameCorrupt marks a framing error on the serial stream. The parser
	// recovers from it locally; it is counted, never fatal.
	ErrFrameCorrupt = errors.New("dualcap: corrupt frame")

	// ErrDevice is a serial or audio open/read/stream failure.
	ErrDevice = errors.New("dualcap: device error")

	// ErrConfig is an unsupported device, rate or channel combination.
	ErrConfig = errors.New("dualcap: invalid configuration")

	// ErrPersistence is a failed write to the session directory.
	ErrPersistence = errors.New("dualcap: persistence error")

	// ErrWorkerDied is returned when a unit exits while the session is running.
	ErrWorkerDied = errors.New("dualcap: worker died")

	// ErrShutdownTimeout is returned when units did not finish in time.
	ErrShutdownTimeout = errors.New("dualcap: shutdown timeout")
)

// DeviceError wraps err as a device failure on the named device.
func DeviceError(device string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrDevice, device, err)
}

// PersistenceError wraps err as a failed write for the named stream.
func PersistenceError(stream string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, stream, err)
}

// ConfigError formats a configuration failure.
func ConfigError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...))
}

// Severity returns the tag a failure is reported with.
func Severity(err error) string {
	switch {
	case err == nil:
		return "INFO"
	case errors.Is(err, ErrFrameCorrupt):
		return "WARN"
	case errors.Is(err, ErrDevice),
		errors.Is(err, ErrPersistence),
		errors.Is(err, ErrConfig),
		errors.Is(err, ErrWorkerDied):
		return "FATAL"
	default:
		return "ERROR"
	}
}
