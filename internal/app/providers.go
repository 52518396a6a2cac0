package app

import (
	"fmt"
	"log/slog"

	"github.com/MrWong99/voxwriter/internal/config"
	"github.com/MrWong99/voxwriter/internal/transcribe"
	"github.com/MrWong99/voxwriter/pkg/audio"
	"github.com/MrWong99/voxwriter/pkg/provider/stt"
	"github.com/MrWong99/voxwriter/pkg/provider/vad"
)

// RemoteProvider is the registry name of the remote transcription API.
const RemoteProvider = "openai"

// Providers holds the collaborators a session needs. Remote is nil unless
// the remote API is enabled; Local is nil unless the local model may be
// used.
type Providers struct {
	Capture audio.Device
	VAD     vad.Engine
	Remote  stt.Provider
	Local   *transcribe.Lazy
}

// needsLocal reports whether cfg can route recordings to the local model.
func needsLocal(cfg *config.Config) bool {
	t := cfg.Transcription
	return !t.UseAPI || t.FallbackToLocal
}

// BuildProviders instantiates the providers named in cfg through reg. The
// local model is not constructed here; it is built by the first session that
// needs it.
func BuildProviders(cfg *config.Config, reg *config.Registry) (*Providers, error) {
	ps := &Providers{}

	capture, err := reg.CreateCapture(cfg.Audio)
	if err != nil {
		return nil, fmt.Errorf("create capture device %q: %w", cfg.Audio.Backend, err)
	}
	ps.Capture = capture
	slog.Info("provider created", "kind", "capture", "name", cfg.Audio.Backend)

	engine, err := reg.CreateVAD(cfg.VAD)
	if err != nil {
		return nil, fmt.Errorf("create vad engine %q: %w", cfg.VAD.Name, err)
	}
	ps.VAD = engine
	slog.Info("provider created", "kind", "vad", "name", cfg.VAD.Name)

	if cfg.Transcription.UseAPI {
		p, err := reg.CreateSTT(RemoteProvider, cfg)
		if err != nil {
			return nil, fmt.Errorf("create stt provider %q: %w", RemoteProvider, err)
		}
		ps.Remote = p
		slog.Info("provider created", "kind", "stt", "name", RemoteProvider, "model", cfg.Transcription.APIOptions.Model)
	}

	if needsLocal(cfg) {
		ps.Local = newLocal(cfg, reg)
	}
	return ps, nil
}

// newLocal returns a lazily constructed local model bound to cfg.
func newLocal(cfg *config.Config, reg *config.Registry) *transcribe.Lazy {
	name := cfg.Transcription.LocalModelOptions.Provider
	l := transcribe.NewLazy(name, func() (stt.Provider, error) {
		return reg.CreateSTT(name, cfg)
	})
	l.SetVerbose(cfg.Server.PrintToTerminal)
	return l
}

// dispatcherConfig maps the transcription section onto the dispatcher.
func dispatcherConfig(cfg *config.Config) transcribe.Config {
	api := cfg.Transcription.APIOptions
	local := cfg.Transcription.LocalModelOptions
	return transcribe.Config{
		UseAPI:          cfg.Transcription.UseAPI,
		FallbackToLocal: cfg.Transcription.FallbackToLocal,
		Remote: transcribe.RequestOptions{
			Language:    api.Language,
			Prompt:      api.InitialPrompt,
			Temperature: api.Temperature,
		},
		Local: transcribe.RequestOptions{
			Language:                local.Language,
			Prompt:                  local.InitialPrompt,
			Temperature:             local.Temperature,
			ConditionOnPreviousText: local.ConditionOnPreviousText,
			VADFilter:               local.VADFilter,
		},
	}
}

// newDispatcher builds the dispatcher for cfg over ps.
func newDispatcher(cfg *config.Config, ps *Providers, opts ...transcribe.Option) (*transcribe.Dispatcher, error) {
	var local stt.Provider
	if ps.Local != nil {
		local = ps.Local
	}
	return transcribe.New(dispatcherConfig(cfg), ps.Remote, local, opts...)
}
