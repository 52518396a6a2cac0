package audio

import (
	"fmt"
	"slices"
	"time"
)

// BitsPerSample is fixed at 16: every stage of the pipeline carries signed
// 16-bit PCM.
const BitsPerSample = 16

// SupportedSampleRates lists the capture rates the speech gate accepts.
var SupportedSampleRates = []int{8000, 16000, 32000, 48000, 96000}

// SupportedFrameDurations lists the frame lengths (ms) the speech gate accepts.
var SupportedFrameDurations = []int{10, 20, 30}

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// String returns e.g. "16000Hz mono".
func (f Format) String() string {
	return formatString(f.SampleRate, f.Channels)
}

// Frame is one fixed-duration slice of mono 16-bit PCM. Frames are the unit of
// speech classification and are consumed in arrival order.
type Frame struct {
	// Samples holds exactly FrameSamples(SampleRate, Duration) values.
	Samples []int16

	// SampleRate in Hz.
	SampleRate int

	// Offset marks where the frame starts, relative to the start of capture.
	Offset time.Duration
}

// Duration returns the playback length of the frame.
func (f Frame) Duration() time.Duration {
	return SamplesDuration(len(f.Samples), f.SampleRate)
}

// FrameSamples returns the number of samples in a frame of durationMs at
// sampleRate: sampleRate × durationMs / 1000.
func FrameSamples(sampleRate, durationMs int) int {
	return sampleRate * durationMs / 1000
}

// SamplesDuration converts a sample count at sampleRate into a duration.
// Returns 0 for a non-positive rate.
func SamplesDuration(n, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(sampleRate))
}

// ValidateFrameFormat reports whether sampleRate and durationMs are one of
// the supported speech-gate combinations.
func ValidateFrameFormat(sampleRate, durationMs int) error {
	if !slices.Contains(SupportedSampleRates, sampleRate) {
		return fmt.Errorf("audio: unsupported sample rate %d; supported: %v", sampleRate, SupportedSampleRates)
	}
	if !slices.Contains(SupportedFrameDurations, durationMs) {
		return fmt.Errorf("audio: unsupported frame duration %dms; supported: %v", durationMs, SupportedFrameDurations)
	}
	return nil
}
