// Package openai provides an STT provider backed by the OpenAI audio
// transcription endpoint (POST /v1/audio/transcriptions).
//
// Usage:
//
//	p, err := openai.New(apiKey,
//	    openai.WithModel("whisper-1"),
//	    openai.WithTimeout(30*time.Second),
//	)
//	tr, err := p.Transcribe(ctx, stt.Request{AudioPath: path, Language: "en"})
package openai

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/voxwriter/pkg/provider/stt"
)

// DefaultModel is the transcription model used when none is configured.
const DefaultModel = "whisper-1"

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the transcription model (e.g. "whisper-1",
// "gpt-4o-transcribe"). Defaults to DefaultModel.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithBaseURL points the client at an OpenAI-compatible server instead of
// api.openai.com. The URL should include the /v1 prefix.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// WithTimeout bounds each transcription request. Zero means no per-request
// timeout beyond the caller's context.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.timeout = d }
}

// WithMaxRetries sets how often the client retries failed requests.
// Defaults to the client library's default.
func WithMaxRetries(n int) Option {
	return func(p *Provider) { p.maxRetries = &n }
}

// Provider implements stt.Provider using the official OpenAI Go client.
// The API key is held by this provider only; no process-wide state is set.
type Provider struct {
	model      string
	baseURL    string
	timeout    time.Duration
	maxRetries *int
	client     oai.Client
}

// New creates a Provider authenticated with apiKey. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai: apiKey must not be empty")
	}
	p := &Provider{model: DefaultModel}
	for _, o := range opts {
		o(p)
	}
	if p.model == "" {
		p.model = DefaultModel
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if p.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(p.baseURL))
	}
	if p.timeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(p.timeout))
	}
	if p.maxRetries != nil {
		reqOpts = append(reqOpts, option.WithMaxRetries(*p.maxRetries))
	}
	p.client = oai.NewClient(reqOpts...)
	return p, nil
}

// Name implements stt.Provider.
func (p *Provider) Name() string { return "openai" }

// Model returns the configured transcription model.
func (p *Provider) Model() string { return p.model }

// Transcribe uploads the WAV file at req.AudioPath and returns the text of the
// response. Language, prompt, and temperature are forwarded only when set.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	f, err := os.Open(req.AudioPath)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("openai: open audio: %w", err)
	}
	defer f.Close()

	params := oai.AudioTranscriptionNewParams{
		File:  f,
		Model: oai.AudioModel(p.model),
	}
	if !stt.AutoLanguage(req.Language) {
		params.Language = oai.String(req.Language)
	}
	if req.Prompt != "" {
		params.Prompt = oai.String(req.Prompt)
	}
	if req.Temperature > 0 {
		params.Temperature = oai.Float(req.Temperature)
	}

	res, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("openai: transcribe: %w", err)
	}

	lang := req.Language
	if stt.AutoLanguage(lang) {
		lang = ""
	}
	return stt.Transcript{
		Text:     strings.TrimSpace(res.Text),
		Language: lang,
	}, nil
}
