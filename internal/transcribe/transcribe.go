// Package transcribe routes a finished recording to the configured speech-to-text
// backend.
//
// A [Dispatcher] writes the samples to a temporary WAV file that is removed
// before Dispatch returns, hands its path to the remote provider or to the
// local one, and returns the trimmed text. The local provider is normally a
// [Lazy] so the model is built on first use and then kept for later sessions.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MrWong99/voxwriter/internal/observe"
	"github.com/MrWong99/voxwriter/internal/resilience"
	"github.com/MrWong99/voxwriter/pkg/audio"
	"github.com/MrWong99/voxwriter/pkg/provider/stt"
)

// ErrProvider marks errors returned by a transcription backend, as opposed to
// temporary file errors.
var ErrProvider = errors.New("transcribe: provider failed")

// RequestOptions are the per-request settings of one backend.
type RequestOptions struct {
	Language                string
	Prompt                  string
	Temperature             float64
	ConditionOnPreviousText bool
	VADFilter               bool
}

// Config selects the dispatch branch.
type Config struct {
	// UseAPI routes recordings to the remote provider; otherwise the local
	// provider is used.
	UseAPI bool

	// FallbackToLocal retries on the local provider when the remote one fails.
	FallbackToLocal bool

	Remote RequestOptions
	Local  RequestOptions

	// TempDir holds the temporary WAV files. Empty uses the system default.
	TempDir string

	// Breaker configures the circuit breakers used with FallbackToLocal.
	Breaker resilience.CircuitBreakerConfig
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithMetrics records request counts, errors and latency per backend.
func WithMetrics(m *observe.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// Dispatcher sends finished recordings to a transcription backend. It is safe
// for concurrent use if its providers are.
type Dispatcher struct {
	cfg     Config
	metrics *observe.Metrics
	target  stt.Provider
}

// New returns a Dispatcher. remote is required when cfg.UseAPI is set; local
// is required when cfg.UseAPI is false or cfg.FallbackToLocal is set.
func New(cfg Config, remote, local stt.Provider, opts ...Option) (*Dispatcher, error) {
	d := &Dispatcher{cfg: cfg}
	for _, o := range opts {
		o(d)
	}

	switch {
	case cfg.UseAPI && remote == nil:
		return nil, errors.New("transcribe: remote provider required when use_api is set")
	case (!cfg.UseAPI || cfg.FallbackToLocal) && local == nil:
		return nil, errors.New("transcribe: local provider required")
	}

	if !cfg.UseAPI {
		d.target = d.bind(local, cfg.Local)
		return d, nil
	}
	primary := d.bind(remote, cfg.Remote)
	if !cfg.FallbackToLocal {
		d.target = primary
		return d, nil
	}
	fb := resilience.NewSTTFallback(primary, remote.Name(), resilience.FallbackConfig{CircuitBreaker: cfg.Breaker})
	fb.AddFallback(local.Name(), d.bind(local, cfg.Local))
	d.target = fb
	return d, nil
}

// Name returns the name of the backend recordings are sent to.
func (d *Dispatcher) Name() string { return d.target.Name() }

// Dispatch transcribes samples recorded at sampleRate. An empty recording
// yields "" without contacting any backend. The temporary WAV file is gone
// when Dispatch returns, whether it succeeded or not. Backend failures wrap
// [ErrProvider].
func (d *Dispatcher) Dispatch(ctx context.Context, samples []int16, sampleRate int) (string, error) {
	if len(samples) == 0 {
		return "", nil
	}

	var text string
	err := audio.WithTempWAV(d.cfg.TempDir, samples, sampleRate, func(path string) error {
		observe.Logger(ctx).Debug("transcribing audio file",
			"provider", d.target.Name(),
			"path", path,
			"duration", audio.SamplesDuration(len(samples), sampleRate),
		)
		tr, err := d.target.Transcribe(ctx, stt.Request{AudioPath: path, SampleRate: sampleRate})
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrProvider, d.target.Name(), err)
		}
		text = strings.TrimSpace(tr.Text)
		return nil
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

func (d *Dispatcher) bind(p stt.Provider, opts RequestOptions) stt.Provider {
	return &bound{p: p, opts: opts, metrics: d.metrics}
}

// bound applies one backend's request options and records its metrics.
type bound struct {
	p       stt.Provider
	opts    RequestOptions
	metrics *observe.Metrics
}

func (b *bound) Name() string { return b.p.Name() }

func (b *bound) Transcribe(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	req.Language = b.opts.Language
	req.Prompt = b.opts.Prompt
	req.Temperature = b.opts.Temperature
	req.ConditionOnPreviousText = b.opts.ConditionOnPreviousText
	req.VADFilter = b.opts.VADFilter

	name := b.p.Name()
	start := time.Now()
	tr, err := b.p.Transcribe(ctx, req)
	if err != nil {
		b.metrics.RecordProviderRequest(ctx, name, "stt", "error")
		b.metrics.RecordProviderError(ctx, name, "stt")
		observe.Logger(ctx).Warn("transcription failed", "provider", name, "err", err)
		return stt.Transcript{}, err
	}
	b.metrics.RecordProviderRequest(ctx, name, "stt", "ok")
	b.metrics.RecordSTT(ctx, name, time.Since(start).Seconds())
	observe.Logger(ctx).Debug("transcription done",
		slog.String("provider", name),
		slog.Duration("latency", time.Since(start)),
		slog.String("language", tr.Language),
	)
	return tr, nil
}
