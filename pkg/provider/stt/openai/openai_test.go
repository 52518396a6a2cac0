package openai_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/voxwriter/pkg/audio"
	"github.com/MrWong99/voxwriter/pkg/provider/stt"
	"github.com/MrWong99/voxwriter/pkg/provider/stt/openai"
)

// captured holds the multipart fields of the last request seen by the fake
// server.
type captured struct {
	mu       sync.Mutex
	path     string
	auth     string
	fields   map[string]string
	fileSize int
}

func newFakeServer(t *testing.T, status int, text string) (*httptest.Server, *captured) {
	t.Helper()
	c := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.path = r.URL.Path
		c.auth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		c.fields = map[string]string{}
		for k, v := range r.MultipartForm.Value {
			c.fields[k] = v[0]
		}
		if fh := r.MultipartForm.File["file"]; len(fh) > 0 {
			f, _ := fh[0].Open()
			b, _ := io.ReadAll(f)
			f.Close()
			c.fileSize = len(b)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]string{"message": "boom", "type": "server_error"}})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"text": text})
	}))
	t.Cleanup(srv.Close)
	return srv, c
}

func writeWAV(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rec.wav")
	samples := make([]int16, 1600)
	for i := range samples {
		samples[i] = int16(i % 300)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := audio.WriteWAV(f, samples, 16000); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNew_EmptyKey(t *testing.T) {
	t.Parallel()
	if _, err := openai.New(""); err == nil {
		t.Fatal("expected error for empty api key")
	}
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()
	p, err := openai.New("sk-test")
	if err != nil {
		t.Fatal(err)
	}
	if p.Model() != openai.DefaultModel {
		t.Errorf("Model() = %q, want %q", p.Model(), openai.DefaultModel)
	}
	if p.Name() != "openai" {
		t.Errorf("Name() = %q", p.Name())
	}
}

func TestTranscribe_SendsParameters(t *testing.T) {
	t.Parallel()
	srv, c := newFakeServer(t, http.StatusOK, "  Hello world.  ")
	p, err := openai.New("sk-test",
		openai.WithBaseURL(srv.URL+"/v1"),
		openai.WithModel("whisper-1"),
		openai.WithMaxRetries(0),
	)
	if err != nil {
		t.Fatal(err)
	}

	tr, err := p.Transcribe(context.Background(), stt.Request{
		AudioPath:   writeWAV(t),
		Language:    "en",
		Prompt:      "Dictation.",
		Temperature: 0.2,
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if tr.Text != "Hello world." {
		t.Errorf("Text = %q, want %q", tr.Text, "Hello world.")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.path != "/v1/audio/transcriptions" {
		t.Errorf("path = %q", c.path)
	}
	if c.auth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", c.auth)
	}
	for k, want := range map[string]string{"model": "whisper-1", "language": "en", "prompt": "Dictation."} {
		if got := c.fields[k]; got != want {
			t.Errorf("field %s = %q, want %q", k, got, want)
		}
	}
	if !strings.HasPrefix(c.fields["temperature"], "0.2") {
		t.Errorf("temperature = %q", c.fields["temperature"])
	}
	if c.fileSize != 44+1600*2 {
		t.Errorf("uploaded %d bytes, want %d", c.fileSize, 44+1600*2)
	}
}

func TestTranscribe_AutoLanguageOmitted(t *testing.T) {
	t.Parallel()
	srv, c := newFakeServer(t, http.StatusOK, "hi")
	p, _ := openai.New("sk-test", openai.WithBaseURL(srv.URL+"/v1"), openai.WithMaxRetries(0))

	if _, err := p.Transcribe(context.Background(), stt.Request{AudioPath: writeWAV(t), Language: "auto"}); err != nil {
		t.Fatal(err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range []string{"language", "prompt", "temperature"} {
		if _, ok := c.fields[k]; ok {
			t.Errorf("field %s sent, want omitted", k)
		}
	}
}

func TestTranscribe_ServerError(t *testing.T) {
	t.Parallel()
	srv, _ := newFakeServer(t, http.StatusInternalServerError, "")
	p, _ := openai.New("sk-test", openai.WithBaseURL(srv.URL+"/v1"), openai.WithMaxRetries(0))

	_, err := p.Transcribe(context.Background(), stt.Request{AudioPath: writeWAV(t)})
	if err == nil {
		t.Fatal("expected error for HTTP 500")
	}
}

func TestTranscribe_MissingFile(t *testing.T) {
	t.Parallel()
	p, _ := openai.New("sk-test")
	_, err := p.Transcribe(context.Background(), stt.Request{AudioPath: filepath.Join(t.TempDir(), "missing.wav")})
	if err == nil {
		t.Fatal("expected error for missing audio file")
	}
}

func TestTranscribe_Timeout(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)
	p, _ := openai.New("sk-test",
		openai.WithBaseURL(srv.URL+"/v1"),
		openai.WithTimeout(50*time.Millisecond),
		openai.WithMaxRetries(0),
	)
	if _, err := p.Transcribe(context.Background(), stt.Request{AudioPath: writeWAV(t)}); err == nil {
		t.Fatal("expected timeout error")
	}
}
