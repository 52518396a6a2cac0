// Package webrtc provides a VAD engine backed by the WebRTC voice activity
// detector (cgo, via github.com/maxhawkins/go-webrtcvad).
//
// WebRTC VAD classifies 10, 20, or 30 ms frames of 16-bit mono PCM at 8, 16,
// 32, or 48 kHz. Frames captured at 96 kHz are decimated 2:1 before
// classification; the frame-length check always applies to the frame as
// captured.
package webrtc

import (
	"fmt"
	"slices"
	"sync"

	webrtcvad "github.com/maxhawkins/go-webrtcvad"

	"github.com/MrWong99/voxwriter/pkg/audio"
	"github.com/MrWong99/voxwriter/pkg/provider/vad"
)

// DefaultAggressiveness is the most aggressive WebRTC mode: a frame is only
// classified as speech with strong confidence.
const DefaultAggressiveness = 3

// nativeRates are the sample rates WebRTC VAD accepts directly.
var nativeRates = []int{8000, 16000, 32000, 48000}

// Engine creates WebRTC VAD sessions. The zero value is ready to use.
type Engine struct{}

// New returns a WebRTC VAD engine.
func New() *Engine { return &Engine{} }

// Compile-time interface assertion.
var _ vad.Engine = (*Engine)(nil)

// NewSession implements [vad.Engine]. cfg.Aggressiveness must be in [0, 3].
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if err := audio.ValidateFrameFormat(cfg.SampleRate, cfg.FrameSizeMs); err != nil {
		return nil, fmt.Errorf("webrtc vad: %w: %w", vad.ErrFrameSize, err)
	}
	if cfg.Aggressiveness < 0 || cfg.Aggressiveness > 3 {
		return nil, fmt.Errorf("webrtc vad: aggressiveness %d out of range [0, 3]", cfg.Aggressiveness)
	}

	rate := cfg.SampleRate
	decimate := 1
	if !slices.Contains(nativeRates, rate) {
		decimate = 2
		rate /= decimate
	}
	if !webrtcvad.ValidRateAndFrameLength(rate, rate*cfg.FrameSizeMs/1000) {
		return nil, fmt.Errorf("webrtc vad: %w: %d Hz / %d ms", vad.ErrFrameSize, cfg.SampleRate, cfg.FrameSizeMs)
	}

	v, err := webrtcvad.New()
	if err != nil {
		return nil, fmt.Errorf("webrtc vad: create detector: %w", err)
	}
	if err := v.SetMode(cfg.Aggressiveness); err != nil {
		return nil, fmt.Errorf("webrtc vad: set mode %d: %w", cfg.Aggressiveness, err)
	}

	return &session{
		v:          v,
		rate:       rate,
		decimate:   decimate,
		frameBytes: cfg.FrameBytes(),
	}, nil
}

// session is a single WebRTC VAD stream. It is safe for concurrent use.
type session struct {
	mu         sync.Mutex
	v          *webrtcvad.VAD
	rate       int
	decimate   int
	frameBytes int
	wasSpeech  bool
	closed     bool
}

// ProcessFrame implements [vad.SessionHandle].
func (s *session) ProcessFrame(frame []byte) (vad.VADEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return vad.VADEvent{}, vad.ErrClosed
	}
	if len(frame) != s.frameBytes {
		return vad.VADEvent{}, fmt.Errorf("webrtc vad: %w: got %d bytes, want %d", vad.ErrFrameSize, len(frame), s.frameBytes)
	}

	pcm := frame
	if s.decimate > 1 {
		pcm = decimatePCM(frame, s.decimate)
	}

	speech, err := s.v.Process(s.rate, pcm)
	if err != nil {
		return vad.VADEvent{}, fmt.Errorf("webrtc vad: process frame: %w", err)
	}

	ev := vad.VADEvent{Type: vad.Transition(s.wasSpeech, speech)}
	if speech {
		ev.Probability = 1
	}
	s.wasSpeech = speech
	return ev, nil
}

// Reset implements [vad.SessionHandle].
func (s *session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wasSpeech = false
}

// Close implements [vad.SessionHandle]. The detector memory is released by
// the binding's finalizer.
func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.v = nil
	return nil
}

// decimatePCM averages every factor consecutive samples of little-endian
// 16-bit PCM.
func decimatePCM(pcm []byte, factor int) []byte {
	samples := audio.BytesToInt16(pcm)
	out := make([]int16, len(samples)/factor)
	for i := range out {
		var sum int
		for j := range factor {
			sum += int(samples[i*factor+j])
		}
		out[i] = int16(sum / factor)
	}
	return audio.Int16ToBytes(out)
}
