// Package audio defines the capture abstraction and PCM primitives used by
// voxwriter.
//
// The primary abstractions are:
//
//   - [Device] opens a capture [Stream] on a sound device and delivers
//     samples to a [PushFunc] on the device's own goroutine.
//   - [FrameBuffer] collects pushed samples and yields fixed-size [Frame]
//     values to a single consumer.
//
// Implementations of [Device] live in adapter packages (audio/portaudio for
// real hardware, audio/mock for tests). The package lives under pkg/ because
// external code is expected to implement [Device].
package audio

// PushFunc receives captured mono samples. overflow is true when the device
// reported lost input before this block. Implementations of [Device] call it
// from their own goroutine; it must not block.
type PushFunc func(samples []int16, overflow bool)

// CaptureConfig describes how a capture stream is opened.
type CaptureConfig struct {
	// Device selects the input device by name or numeric index. Empty selects
	// the system default input.
	Device string

	// SampleRate in Hz.
	SampleRate int

	// Channels is always 1 for voxwriter; adapters reject other values.
	Channels int

	// BlockSize is the number of samples per callback, normally one frame.
	BlockSize int
}

// DeviceInfo describes an input device reported by a [Lister].
type DeviceInfo struct {
	ID               string
	Name             string
	Default          bool
	MaxInputChannels int
}

// Stream is an open capture stream. Samples flow to the [PushFunc] between
// Start and Close.
type Stream interface {
	// DeviceName returns the human-readable name of the opened device.
	DeviceName() string

	// Start begins delivering samples.
	Start() error

	// Close stops capture and releases the device. It is safe to call more
	// than once; later calls return nil.
	Close() error
}

// Device opens capture streams.
//
// Implementations must be safe for concurrent use, although voxwriter opens
// at most one stream at a time.
type Device interface {
	// Open prepares a stream for cfg. Samples are not delivered until
	// [Stream.Start] is called.
	Open(cfg CaptureConfig, push PushFunc) (Stream, error)
}

// Lister is implemented by devices that can enumerate inputs.
type Lister interface {
	Devices() ([]DeviceInfo, error)
}
