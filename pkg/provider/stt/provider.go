// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a batch transcription engine (the OpenAI
// transcription API, an in-process whisper.cpp model, or a whisper.cpp HTTP
// server) behind a uniform interface: it receives the path of a finished
// single-channel 16-bit PCM WAV recording and returns the recognised text.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
)

// ErrEmptyAudio is returned when the recording handed to a provider contains
// no samples.
var ErrEmptyAudio = errors.New("stt: empty audio")

// Request describes one transcription job.
type Request struct {
	// AudioPath is the path of a mono 16-bit PCM WAV file. The caller owns the
	// file and removes it after Transcribe returns.
	AudioPath string

	// SampleRate of the WAV file in Hz. Providers that read the WAV header may
	// ignore it.
	SampleRate int

	// Language is an ISO-639-1 code ("en", "de"). Empty or "auto" lets the
	// provider detect the language.
	Language string

	// Prompt is free-form text that biases recognition toward expected
	// vocabulary or style.
	Prompt string

	// Temperature is the decoding sampling temperature in [0, 1].
	Temperature float64

	// ConditionOnPreviousText lets local models carry decoder context across
	// segments. Remote providers ignore it.
	ConditionOnPreviousText bool

	// VADFilter asks local models to drop non-speech audio before inference.
	// Remote providers ignore it.
	VADFilter bool
}

// AutoLanguage reports whether lang requests automatic language detection.
func AutoLanguage(lang string) bool {
	return lang == "" || lang == "auto"
}

// Provider is the abstraction over any batch STT backend.
type Provider interface {
	// Transcribe recognises the speech in req.AudioPath. A recording without
	// recognisable speech yields a Transcript with empty Text and a nil error.
	Transcribe(ctx context.Context, req Request) (Transcript, error)

	// Name identifies the backend in logs and metrics, e.g. "openai".
	Name() string
}
