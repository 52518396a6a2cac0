// Package whisper provides local whisper.cpp-backed STT providers.
//
// Two variants are available:
//
//   - ServerProvider talks to a running whisper-server binary, which exposes
//     a REST API at POST /inference. The recording is uploaded as a WAV file.
//   - NativeProvider (native.go) runs inference in-process through the
//     whisper.cpp cgo bindings. The model is loaded once at construction and
//     reused for every transcription.
//
// Usage:
//
//	p, err := whisper.NewServer("http://localhost:8080",
//	    whisper.WithServerTimeout(time.Minute),
//	)
//	tr, err := p.Transcribe(ctx, stt.Request{AudioPath: path, Language: "en"})
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/voxwriter/pkg/provider/stt"
)

const defaultServerTimeout = 2 * time.Minute

// Compile-time assertion that ServerProvider implements stt.Provider.
var _ stt.Provider = (*ServerProvider)(nil)

// ServerOption is a functional option for configuring a ServerProvider.
type ServerOption func(*ServerProvider)

// WithServerModel sets the model identifier forwarded to the whisper.cpp
// server. When empty the server uses whichever model it was started with.
func WithServerModel(model string) ServerOption {
	return func(p *ServerProvider) { p.model = model }
}

// WithServerTimeout bounds each inference request. Defaults to two minutes.
func WithServerTimeout(d time.Duration) ServerOption {
	return func(p *ServerProvider) { p.httpClient.Timeout = d }
}

// WithHTTPClient replaces the HTTP client used for inference requests.
func WithHTTPClient(c *http.Client) ServerOption {
	return func(p *ServerProvider) { p.httpClient = c }
}

// ServerProvider implements stt.Provider backed by a whisper.cpp HTTP server.
type ServerProvider struct {
	serverURL  string
	model      string
	httpClient *http.Client
}

// NewServer creates a ServerProvider for the whisper.cpp server at serverURL
// (e.g., "http://localhost:8080"). serverURL must be non-empty.
func NewServer(serverURL string, opts ...ServerOption) (*ServerProvider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &ServerProvider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		httpClient: &http.Client{Timeout: defaultServerTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Name implements stt.Provider.
func (p *ServerProvider) Name() string { return "whisper-server" }

// Transcribe uploads req.AudioPath to the /inference endpoint as
// multipart/form-data and returns the transcribed text.
func (p *ServerProvider) Transcribe(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	f, err := os.Open(req.AudioPath)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: open audio: %w", err)
	}
	defer f.Close()

	body, contentType, err := p.buildForm(f, filepath.Base(req.AudioPath), req)
	if err != nil {
		return stt.Transcript{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+"/inference", body)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return stt.Transcript{}, fmt.Errorf("whisper: server returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var result struct {
		Text     string `json:"text"`
		Language string `json:"language"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: parse JSON response: %w", err)
	}

	return stt.Transcript{
		Text:     strings.TrimSpace(result.Text),
		Language: result.Language,
	}, nil
}

// buildForm writes the multipart request body. The recordings are at most a
// few minutes of mono PCM, so the form is assembled in memory.
func (p *ServerProvider) buildForm(audioFile io.Reader, name string, req stt.Request) (io.Reader, string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		return nil, "", fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := io.Copy(fw, audioFile); err != nil {
		return nil, "", fmt.Errorf("whisper: write wav data: %w", err)
	}

	fields := [][2]string{
		{"response_format", "json"},
		{"temperature", strconv.FormatFloat(req.Temperature, 'f', -1, 64)},
	}
	if stt.AutoLanguage(req.Language) {
		fields = append(fields, [2]string{"language", "auto"})
	} else {
		fields = append(fields, [2]string{"language", req.Language})
	}
	if req.Prompt != "" {
		fields = append(fields, [2]string{"prompt", req.Prompt})
	}
	if !req.ConditionOnPreviousText {
		fields = append(fields, [2]string{"max_context", "0"})
	}
	if p.model != "" {
		fields = append(fields, [2]string{"model", p.model})
	}
	for _, kv := range fields {
		if err := mw.WriteField(kv[0], kv[1]); err != nil {
			return nil, "", fmt.Errorf("whisper: write %s field: %w", kv[0], err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("whisper: close multipart writer: %w", err)
	}
	return &body, mw.FormDataContentType(), nil
}
