// This file contains the NativeProvider implementation backed by the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a)
// and headers (whisper.h) must be available at link time via LIBRARY_PATH
// and C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/voxwriter/pkg/audio"
	"github.com/MrWong99/voxwriter/pkg/provider/stt"
)

// Devices lists the accepted values for WithDevice.
var Devices = []string{"auto", "cpu", "cuda"}

// ComputeTypes lists the accepted values for WithComputeType.
var ComputeTypes = []string{"default", "auto", "int8", "int8_float16", "int16", "float16", "float32"}

// Compile-time assertion that NativeProvider satisfies stt.Provider.
var _ stt.Provider = (*NativeProvider)(nil)

// NativeProvider implements stt.Provider using whisper.cpp Go bindings
// (CGO). The model is loaded once at construction and reused by every
// Transcribe call; calls are serialised because whisper contexts are not
// thread-safe and inference saturates the configured threads anyway.
type NativeProvider struct {
	modelPath   string
	device      string
	computeType string
	threads     uint
	filter      *SpeechFilter

	mu    sync.Mutex
	model whisperlib.Model
}

// NativeOption is a functional option for configuring a NativeProvider.
type NativeOption func(*NativeProvider)

// WithDevice selects the inference device. whisper.cpp picks its backend at
// build time, so the value is validated and logged but does not change the
// backend. Defaults to "auto".
func WithDevice(device string) NativeOption {
	return func(p *NativeProvider) { p.device = device }
}

// WithComputeType selects the numeric precision. Like WithDevice it is
// validated and logged only; the precision is fixed by the model file.
// Defaults to "default".
func WithComputeType(ct string) NativeOption {
	return func(p *NativeProvider) { p.computeType = ct }
}

// WithThreads sets the number of inference threads. Zero keeps the
// whisper.cpp default.
func WithThreads(n uint) NativeOption {
	return func(p *NativeProvider) { p.threads = n }
}

// WithSpeechFilter enables removal of non-speech audio before inference for
// requests that set VADFilter.
func WithSpeechFilter(f SpeechFilter) NativeOption {
	return func(p *NativeProvider) { p.filter = &f }
}

// NewNative creates a NativeProvider that loads the whisper.cpp model from
// the given file path. The caller must call Close when the provider is no
// longer needed.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	p := &NativeProvider{
		modelPath:   modelPath,
		device:      "auto",
		computeType: "default",
	}
	for _, o := range opts {
		o(p)
	}
	if !slices.Contains(Devices, p.device) {
		return nil, fmt.Errorf("whisper: unsupported device %q; supported: %v", p.device, Devices)
	}
	if !slices.Contains(ComputeTypes, p.computeType) {
		return nil, fmt.Errorf("whisper: unsupported compute type %q; supported: %v", p.computeType, ComputeTypes)
	}

	start := time.Now()
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	p.model = model
	slog.Info("whisper model loaded",
		"path", modelPath,
		"device", p.device,
		"compute_type", p.computeType,
		"multilingual", model.IsMultilingual(),
		"elapsed", time.Since(start),
	)
	return p, nil
}

// Name implements stt.Provider.
func (p *NativeProvider) Name() string { return "whisper-native" }

// Close releases the whisper model. Calling Close more than once is safe.
func (p *NativeProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.model == nil {
		return nil
	}
	err := p.model.Close()
	p.model = nil
	return err
}

// Transcribe decodes req.AudioPath, optionally strips non-speech audio,
// resamples to the model rate, and runs inference with a fresh context.
func (p *NativeProvider) Transcribe(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	if err := ctx.Err(); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: %w", err)
	}

	samples, rate, err := audio.ReadWAVFile(req.AudioPath)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: %w", err)
	}
	if len(samples) == 0 {
		return stt.Transcript{}, stt.ErrEmptyAudio
	}
	duration := audio.SamplesDuration(len(samples), rate)

	if req.VADFilter && p.filter != nil {
		samples, err = p.filter.Apply(samples, rate)
		if err != nil {
			return stt.Transcript{}, err
		}
		if len(samples) == 0 {
			return stt.Transcript{Duration: duration}, nil
		}
	}

	pcm := audio.Int16ToFloat32(audio.Resample(samples, rate, whisperlib.SampleRate))

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.model == nil {
		return stt.Transcript{}, errors.New("whisper: provider is closed")
	}

	// Each context is NOT thread-safe, but the model can be shared.
	wctx, err := p.model.NewContext()
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: create context: %w", err)
	}
	p.configure(wctx, req)

	if err := wctx.Process(pcm, nil, nil, nil); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: process audio: %w", err)
	}

	tr := stt.Transcript{Duration: duration, Language: wctx.DetectedLanguage()}
	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stt.Transcript{}, fmt.Errorf("whisper: read segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		if text == "" {
			continue
		}
		parts = append(parts, text)
		tr.Segments = append(tr.Segments, stt.Segment{Text: text, Start: segment.Start, End: segment.End})
	}
	tr.Text = strings.Join(parts, " ")
	return tr, nil
}

func (p *NativeProvider) configure(wctx whisperlib.Context, req stt.Request) {
	lang := req.Language
	if stt.AutoLanguage(lang) {
		lang = "auto"
	}
	if err := wctx.SetLanguage(lang); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", lang, "err", err)
	}
	if req.Prompt != "" {
		wctx.SetInitialPrompt(req.Prompt)
	}
	wctx.SetTemperature(float32(req.Temperature))
	if !req.ConditionOnPreviousText {
		wctx.SetMaxContext(0)
	}
	if p.threads > 0 {
		wctx.SetThreads(p.threads)
	}
}
