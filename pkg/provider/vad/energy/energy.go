// Package energy provides a pure-Go VAD engine that classifies frames by
// their root-mean-square level. It needs no cgo and is the fallback engine
// for builds without the WebRTC detector.
package energy

import (
	"fmt"
	"math"
	"sync"

	"github.com/MrWong99/voxwriter/pkg/audio"
	"github.com/MrWong99/voxwriter/pkg/provider/vad"
)

// thresholds maps aggressiveness 0..3 to the default RMS level (in PCM sample
// units, 0–32767) a frame must reach to count as speech.
var thresholds = [4]float64{200, 300, 500, 800}

// Engine creates energy VAD sessions.
type Engine struct{}

// New returns an energy VAD engine.
func New() *Engine { return &Engine{} }

var _ vad.Engine = (*Engine)(nil)

// NewSession implements [vad.Engine]. A positive cfg.SpeechThreshold
// overrides the aggressiveness-derived RMS threshold.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if err := audio.ValidateFrameFormat(cfg.SampleRate, cfg.FrameSizeMs); err != nil {
		return nil, fmt.Errorf("energy vad: %w: %w", vad.ErrFrameSize, err)
	}
	if cfg.Aggressiveness < 0 || cfg.Aggressiveness > 3 {
		return nil, fmt.Errorf("energy vad: aggressiveness %d out of range [0, 3]", cfg.Aggressiveness)
	}
	threshold := thresholds[cfg.Aggressiveness]
	if cfg.SpeechThreshold > 0 {
		threshold = cfg.SpeechThreshold
	}
	return &session{threshold: threshold, frameBytes: cfg.FrameBytes()}, nil
}

type session struct {
	mu         sync.Mutex
	threshold  float64
	frameBytes int
	wasSpeech  bool
	closed     bool
}

func (s *session) ProcessFrame(frame []byte) (vad.VADEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return vad.VADEvent{}, vad.ErrClosed
	}
	if len(frame) != s.frameBytes {
		return vad.VADEvent{}, fmt.Errorf("energy vad: %w: got %d bytes, want %d", vad.ErrFrameSize, len(frame), s.frameBytes)
	}

	level := RMS(audio.BytesToInt16(frame))
	speech := level >= s.threshold
	ev := vad.VADEvent{
		Type:        vad.Transition(s.wasSpeech, speech),
		Probability: math.Min(level/(2*s.threshold), 1),
	}
	s.wasSpeech = speech
	return ev, nil
}

func (s *session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wasSpeech = false
}

func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// RMS returns the root-mean-square level of samples in PCM sample units.
// Returns 0 for an empty slice.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}
