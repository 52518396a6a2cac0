package energy

import (
	"errors"
	"math"
	"testing"

	"github.com/MrWong99/voxwriter/pkg/audio"
	"github.com/MrWong99/voxwriter/pkg/provider/vad"
)

func tone(n int, amp float64) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(amp * math.Sin(2*math.Pi*440*float64(i)/16000))
	}
	return out
}

func newSession(t *testing.T, cfg vad.Config) vad.SessionHandle {
	t.Helper()
	s, err := New().NewSession(cfg)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRMS(t *testing.T) {
	t.Parallel()
	if got := RMS(nil); got != 0 {
		t.Errorf("RMS(nil) = %v, want 0", got)
	}
	if got := RMS([]int16{1000, -1000, 1000, -1000}); got != 1000 {
		t.Errorf("RMS(square) = %v, want 1000", got)
	}
}

func TestNewSession_Validation(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		cfg     vad.Config
		frameSz bool
	}{
		{"bad rate", vad.Config{SampleRate: 44100, FrameSizeMs: 30}, true},
		{"bad frame", vad.Config{SampleRate: 16000, FrameSizeMs: 25}, true},
		{"bad aggressiveness", vad.Config{SampleRate: 16000, FrameSizeMs: 30, Aggressiveness: 4}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New().NewSession(tt.cfg)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errors.Is(err, vad.ErrFrameSize); got != tt.frameSz {
				t.Errorf("errors.Is(err, ErrFrameSize) = %v, want %v", got, tt.frameSz)
			}
		})
	}
}

func TestProcessFrame_Transitions(t *testing.T) {
	t.Parallel()
	cfg := vad.Config{SampleRate: 16000, FrameSizeMs: 30, Aggressiveness: 3}
	s := newSession(t, cfg)
	n := audio.FrameSamples(16000, 30)

	loud := audio.Int16ToBytes(tone(n, 8000))
	quiet := audio.Int16ToBytes(make([]int16, n))

	want := []struct {
		frame []byte
		typ   vad.VADEventType
	}{
		{quiet, vad.VADSilence},
		{loud, vad.VADSpeechStart},
		{loud, vad.VADSpeechContinue},
		{quiet, vad.VADSpeechEnd},
		{quiet, vad.VADSilence},
	}
	for i, w := range want {
		ev, err := s.ProcessFrame(w.frame)
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if ev.Type != w.typ {
			t.Errorf("frame %d: type = %v, want %v", i, ev.Type, w.typ)
		}
	}
}

func TestProcessFrame_ThresholdOverride(t *testing.T) {
	t.Parallel()
	n := audio.FrameSamples(16000, 10)
	frame := audio.Int16ToBytes(tone(n, 1000)) // RMS ≈ 707

	s := newSession(t, vad.Config{SampleRate: 16000, FrameSizeMs: 10, Aggressiveness: 3, SpeechThreshold: 5000})
	ev, err := s.ProcessFrame(frame)
	if err != nil {
		t.Fatal(err)
	}
	if ev.IsSpeech() {
		t.Error("frame below overridden threshold classified as speech")
	}
}

func TestProcessFrame_WrongSize(t *testing.T) {
	t.Parallel()
	s := newSession(t, vad.Config{SampleRate: 16000, FrameSizeMs: 30})
	_, err := s.ProcessFrame(make([]byte, 100))
	if !errors.Is(err, vad.ErrFrameSize) {
		t.Fatalf("err = %v, want ErrFrameSize", err)
	}
}

func TestProcessFrame_AfterClose(t *testing.T) {
	t.Parallel()
	cfg := vad.Config{SampleRate: 16000, FrameSizeMs: 30}
	s, err := New().NewSession(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if _, err := s.ProcessFrame(make([]byte, cfg.FrameBytes())); !errors.Is(err, vad.ErrClosed) {
		t.Errorf("err = %v, want ErrClosed", err)
	}
}

func TestReset(t *testing.T) {
	t.Parallel()
	s := newSession(t, vad.Config{SampleRate: 16000, FrameSizeMs: 30})
	n := audio.FrameSamples(16000, 30)
	loud := audio.Int16ToBytes(tone(n, 8000))

	if _, err := s.ProcessFrame(loud); err != nil {
		t.Fatal(err)
	}
	s.Reset()
	ev, err := s.ProcessFrame(loud)
	if err != nil {
		t.Fatal(err)
	}
	if ev.Type != vad.VADSpeechStart {
		t.Errorf("after Reset type = %v, want speech_start", ev.Type)
	}
}
