package stt

import "time"

// Transcript is the result of a single transcription job.
type Transcript struct {
	// Text is the transcribed speech content as returned by the provider,
	// without post-processing.
	Text string

	// Language is the language the provider used or detected. May be empty.
	Language string

	// Duration is the length of the audio that was transcribed.
	Duration time.Duration

	// Segments holds per-segment detail when the provider reports it.
	Segments []Segment
}

// Segment is a contiguous piece of recognised speech.
type Segment struct {
	Text  string
	Start time.Duration
	End   time.Duration
}
