// Package vad defines the Engine interface for Voice Activity Detection backends.
//
// A VAD engine wraps a frame-level speech detector (WebRTC VAD, an energy
// detector, or a custom model) and surfaces it as a stateful, per-stream
// session. Each session keeps its own detection state so that independent
// streams can be processed side by side.
//
// VAD is synchronous: ProcessFrame returns immediately with a detection
// result, which makes it suitable for the recording loop that gates
// transcription input.
//
// Implementations must be safe for concurrent use across different sessions.
// A single SessionHandle should not be shared across goroutines unless the
// implementation explicitly documents thread safety for that type.
package vad

import "errors"

// ErrFrameSize is returned by ProcessFrame when the frame length does not
// match the session's configured frame duration, or when the session was
// configured with a frame duration the engine cannot classify. It signals a
// programming error in the caller, not a runtime condition.
var ErrFrameSize = errors.New("vad: unsupported frame size")

// ErrClosed is returned by ProcessFrame after Close.
var ErrClosed = errors.New("vad: session closed")

// Config holds the parameters for a VAD session.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Must match the rate of the PCM
	// frames passed to ProcessFrame.
	SampleRate int

	// FrameSizeMs is the duration of each audio frame in milliseconds. Engines
	// operate on fixed frame sizes (10, 20, or 30 ms). ProcessFrame returns
	// ErrFrameSize if the supplied frame does not match this size.
	FrameSizeMs int

	// Aggressiveness selects how strongly borderline frames are rejected as
	// non-speech, from 0 (least) to 3 (most). voxwriter uses 3.
	Aggressiveness int

	// SpeechThreshold is an engine-specific level above which a frame counts
	// as speech. Engines that do not use a threshold ignore it; zero selects
	// the engine default.
	SpeechThreshold float64
}

// FrameBytes returns the expected frame length in bytes for cfg.
func (c Config) FrameBytes() int {
	return c.SampleRate * c.FrameSizeMs / 1000 * 2
}

// SessionHandle represents an active VAD session for a single audio stream. It is
// an interface so that test code can supply mock implementations without a live
// engine. Each session maintains its own detection state; Reset clears this state
// without closing the session.
type SessionHandle interface {
	// ProcessFrame analyses a single audio frame and returns the detection result.
	// The frame must be raw little-endian 16-bit mono PCM at the SampleRate and
	// FrameSizeMs configured when the session was created. Returns an error
	// wrapping ErrFrameSize if the frame length is wrong.
	//
	// This method is called synchronously in the recording loop; it must not block.
	ProcessFrame(frame []byte) (VADEvent, error)

	// Reset clears accumulated detection state without closing the session.
	Reset()

	// Close releases all resources associated with the session. After Close,
	// ProcessFrame returns ErrClosed. Calling Close more than once is safe and
	// returns nil.
	Close() error
}

// Engine is the factory for VAD sessions. It is the top-level interface
// implemented by each VAD backend.
//
// Implementations must be safe for concurrent use: multiple goroutines may call
// NewSession simultaneously to create independent sessions.
type Engine interface {
	// NewSession creates a new VAD session with the given configuration. The session
	// is immediately ready to accept audio frames.
	//
	// Returns an error if the configuration is invalid (e.g., unsupported sample
	// rate, frame size, or aggressiveness out of range).
	NewSession(cfg Config) (SessionHandle, error)
}
