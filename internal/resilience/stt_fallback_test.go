package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/voxwriter/pkg/provider/stt"
	sttmock "github.com/MrWong99/voxwriter/pkg/provider/stt/mock"
)

func TestSTTFallback_Transcribe_PrimarySuccess(t *testing.T) {
	primary := &sttmock.Provider{Result: stt.Transcript{Text: "from primary"}}
	secondary := &sttmock.Provider{}

	fb := NewSTTFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	tr, err := fb.Transcribe(context.Background(), stt.Request{AudioPath: "rec.wav", Language: "en"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.Text != "from primary" {
		t.Errorf("Text = %q, want %q", tr.Text, "from primary")
	}
	if primary.CallCount() != 1 {
		t.Fatalf("primary called %d times, want 1", primary.CallCount())
	}
	if secondary.CallCount() != 0 {
		t.Fatalf("secondary called %d times, want 0", secondary.CallCount())
	}
	if got := primary.Calls[0].Req.Language; got != "en" {
		t.Errorf("request language = %q, want en", got)
	}
}

func TestSTTFallback_Transcribe_Failover(t *testing.T) {
	primary := &sttmock.Provider{Err: errors.New("primary down")}
	secondary := &sttmock.Provider{Result: stt.Transcript{Text: "local"}}

	fb := NewSTTFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	tr, err := fb.Transcribe(context.Background(), stt.Request{AudioPath: "rec.wav"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.Text != "local" {
		t.Errorf("Text = %q, want local", tr.Text)
	}
	if secondary.CallCount() != 1 {
		t.Fatalf("secondary called %d times, want 1", secondary.CallCount())
	}
	if secondary.Calls[0].Req.AudioPath != "rec.wav" {
		t.Errorf("secondary got path %q", secondary.Calls[0].Req.AudioPath)
	}
}

func TestSTTFallback_Transcribe_AllFail(t *testing.T) {
	primary := &sttmock.Provider{Err: errors.New("primary down")}
	secondary := &sttmock.Provider{Err: errors.New("secondary down")}

	fb := NewSTTFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	_, err := fb.Transcribe(context.Background(), stt.Request{})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestSTTFallback_Name(t *testing.T) {
	fb := NewSTTFallback(&sttmock.Provider{}, "openai", FallbackConfig{})
	fb.AddFallback("whisper-native", &sttmock.Provider{})
	if got, want := fb.Name(), "fallback(openai,whisper-native)"; got != want {
		t.Errorf("Name() = %q, want %q", got, want)
	}
}
