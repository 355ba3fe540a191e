package ports

// AudioFormat is one native capture format of a device. Zero fields match
// any value.
type AudioFormat struct {
	SampleRate uint32
	Channels   uint32
	S16        bool
}

// AudioDeviceInfo describes a capture device.
type AudioDeviceInfo struct {
	Index     int
	Name      string
	IsDefault bool
	Formats   []AudioFormat
}

// AudioStreamConfig requests a capture stream. Samples are always signed
// 16-bit interleaved.
type AudioStreamConfig struct {
	DeviceIndex  int
	SampleRate   uint32
	Channels     uint32
	PeriodFrames uint32
}

// AudioCallbacks are invoked on the driver's real-time thread.
type AudioCallbacks struct {
	// Data receives interleaved little-endian int16 frames. The slice is only
	// valid for the duration of the call.
	Data func(input []byte, frames uint32)

	// Stopped is called when the driver stops the stream on its own, for
	// example after the device was unplugged.
	Stopped func()
}

// AudioBackend enumerates capture devices and opens streams on them.
type AudioBackend interface {
	Devices() ([]AudioDeviceInfo, error)
	Open(cfg AudioStreamConfig, cb AudioCallbacks) (AudioStream, error)
	Close() error
}

// AudioStream is an opened capture stream.
type AudioStream interface {
	Start() error
	Stop() error
	Close() error
}
