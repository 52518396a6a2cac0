package config_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/voxwriter/internal/config"
	"github.com/MrWong99/voxwriter/pkg/audio"
	"github.com/MrWong99/voxwriter/pkg/provider/stt"
	"github.com/MrWong99/voxwriter/pkg/provider/vad"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleYAML = `
server:
  listen_addr: ":9090"
  log_level: debug
  print_to_terminal: true

audio:
  sound_device: "USB Microphone"
  sample_rate: 48000
  frame_duration_ms: 20
  silence_duration_ms: 700
  cancel_policy: immediate
  poll_interval: 10ms

vad:
  name: energy
  aggressiveness: 2
  energy_threshold: 450

transcription:
  use_api: true
  fallback_to_local: true
  api_options:
    model: whisper-1
    language: en
    initial_prompt: "Kubernetes, Grafana"
    temperature: 0.2
    timeout: 30s
  local_model_options:
    provider: whisper-server
    server_url: http://localhost:8081
    language: en
    condition_on_previous_text: false
    vad_filter: true

post_processing:
  remove_trailing_period: true
  add_trailing_space: true
  remove_capitalization: false
`

// ── YAML loading ──────────────────────────────────────────────────────────────

func TestLoadFromReader_Valid(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("server.listen_addr: got %q, want %q", cfg.Server.ListenAddr, ":9090")
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("server.log_level: got %q, want %q", cfg.Server.LogLevel, config.LogDebug)
	}
	if !cfg.Server.PrintToTerminal {
		t.Error("server.print_to_terminal: got false, want true")
	}
	if cfg.Audio.SampleRate != 48000 || cfg.Audio.FrameDurationMs != 20 || cfg.Audio.SilenceDurationMs != 700 {
		t.Errorf("audio: got %+v", cfg.Audio)
	}
	if cfg.Audio.PollInterval != 10*time.Millisecond {
		t.Errorf("audio.poll_interval: got %v, want 10ms", cfg.Audio.PollInterval)
	}
	if cfg.VAD.Name != "energy" || cfg.VAD.Aggressiveness != 2 || cfg.VAD.EnergyThreshold != 450 {
		t.Errorf("vad: got %+v", cfg.VAD)
	}
	api := cfg.Transcription.APIOptions
	if api.Language != "en" || api.Temperature != 0.2 || api.Timeout != 30*time.Second {
		t.Errorf("transcription.api_options: got %+v", api)
	}
	local := cfg.Transcription.LocalModelOptions
	if local.Provider != "whisper-server" || local.ConditionOnPreviousText || !local.VADFilter {
		t.Errorf("transcription.local_model_options: got %+v", local)
	}
	if !cfg.PostProcessing.RemoveTrailingPeriod || !cfg.PostProcessing.AddTrailingSpace || cfg.PostProcessing.RemoveCapitalization {
		t.Errorf("post_processing: got %+v", cfg.PostProcessing)
	}
}

func TestLoadFromReader_EmptyUsesDefaults(t *testing.T) {
	for _, doc := range []string{"", "{}"} {
		cfg, err := config.LoadFromReader(strings.NewReader(doc))
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", doc, err)
		}
		want := config.Defaults()
		if *cfg != *want {
			t.Errorf("LoadFromReader(%q) = %+v, want defaults %+v", doc, cfg, want)
		}
	}
}

func TestDefaults(t *testing.T) {
	cfg := config.Defaults()
	if cfg.Audio.SampleRate != 16000 {
		t.Errorf("sample_rate = %d, want 16000", cfg.Audio.SampleRate)
	}
	if cfg.Audio.FrameDurationMs != 30 || cfg.Audio.BufferDurationMs != 300 || cfg.Audio.SilenceDurationMs != 900 {
		t.Errorf("audio durations = %+v", cfg.Audio)
	}
	if cfg.Audio.MinDuration() != time.Second {
		t.Errorf("MinDuration() = %v, want 1s", cfg.Audio.MinDuration())
	}
	if cfg.VAD.Aggressiveness != 3 {
		t.Errorf("vad.aggressiveness = %d, want 3", cfg.VAD.Aggressiveness)
	}
	if cfg.Transcription.UseAPI {
		t.Error("use_api defaults to true, want false")
	}
	if !cfg.Transcription.LocalModelOptions.ConditionOnPreviousText {
		t.Error("condition_on_previous_text defaults to false, want true")
	}
	if cfg.Transcription.APIOptions.Model != "whisper-1" {
		t.Errorf("api model = %q, want whisper-1", cfg.Transcription.APIOptions.Model)
	}
	if err := config.Validate(cfg); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestLoadFromReader_OmittedKeysKeepDefaults(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader("audio:\n  sample_rate: 8000\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Audio.SampleRate != 8000 {
		t.Errorf("sample_rate = %d, want 8000", cfg.Audio.SampleRate)
	}
	if cfg.Audio.SilenceDurationMs != config.DefaultSilenceDurationMs {
		t.Errorf("silence_duration_ms = %d, want default", cfg.Audio.SilenceDurationMs)
	}
	if !cfg.Transcription.LocalModelOptions.ConditionOnPreviousText {
		t.Error("condition_on_previous_text lost its default")
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	_, err := config.LoadFromReader(strings.NewReader("audio:\n  samplerate: 16000\n"))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

// ── Validation ────────────────────────────────────────────────────────────────

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		mention string
	}{
		{"log level", "server:\n  log_level: verbose\n", "log_level"},
		{"sample rate", "audio:\n  sample_rate: 44100\n", "sample_rate"},
		{"frame duration", "audio:\n  frame_duration_ms: 25\n", "frame_duration_ms"},
		{"silence shorter than frame", "audio:\n  silence_duration_ms: 10\n", "silence_duration_ms"},
		{"negative min duration", "audio:\n  min_duration_ms: -1\n", "min_duration_ms"},
		{"zero min duration", "audio:\n  min_duration_ms: 0\n", "min_duration_ms"},
		{"cancel policy", "audio:\n  cancel_policy: never\n", "cancel_policy"},
		{"vad name", "vad:\n  name: silero\n", "vad.name"},
		{"aggressiveness", "vad:\n  aggressiveness: 4\n", "aggressiveness"},
		{"api temperature", "transcription:\n  api_options:\n    temperature: 1.5\n", "api_options.temperature"},
		{"local temperature", "transcription:\n  local_model_options:\n    temperature: -0.1\n", "local_model_options.temperature"},
		{"local provider", "transcription:\n  local_model_options:\n    provider: faster-whisper\n", "provider"},
		{"server url", "transcription:\n  local_model_options:\n    provider: whisper-server\n", "server_url"},
		{"api model", "transcription:\n  use_api: true\n  api_options:\n    model: \"\"\n", "api_options.model"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.mention) {
				t.Errorf("error should mention %q, got: %v", tt.mention, err)
			}
		})
	}
}

func TestValidate_LocalOptionsIgnoredWhenRemoteOnly(t *testing.T) {
	yaml := `
transcription:
  use_api: true
  local_model_options:
    provider: whisper-server
`
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := config.Defaults()
	cfg.Server.LogLevel = "loud"
	cfg.Audio.SampleRate = 11025
	cfg.VAD.Aggressiveness = -1

	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"log_level", "sample_rate", "aggressiveness"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error should mention %q, got: %v", want, err)
		}
	}
}

func TestValidProviderNames(t *testing.T) {
	for _, kind := range []string{"stt", "local", "vad", "capture"} {
		if len(config.ValidProviderNames[kind]) == 0 {
			t.Errorf("ValidProviderNames[%q] is empty", kind)
		}
	}
}

// ── Registry ─────────────────────────────────────────────────────────────────

func TestRegistry_Unknown(t *testing.T) {
	reg := config.NewRegistry()

	if _, err := reg.CreateSTT("nonexistent", config.Defaults()); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateSTT: expected ErrProviderNotRegistered, got: %v", err)
	}
	if _, err := reg.CreateVAD(config.VADConfig{Name: "nonexistent"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateVAD: expected ErrProviderNotRegistered, got: %v", err)
	}
	if _, err := reg.CreateCapture(config.AudioConfig{Backend: "nonexistent"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateCapture: expected ErrProviderNotRegistered, got: %v", err)
	}
}

func TestRegistry_RegisteredSTT(t *testing.T) {
	reg := config.NewRegistry()
	want := &stubSTT{}
	var gotCfg *config.Config
	reg.RegisterSTT("stub", func(cfg *config.Config) (stt.Provider, error) {
		gotCfg = cfg
		return want, nil
	})
	cfg := config.Defaults()
	got, err := reg.CreateSTT("stub", cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Error("returned provider is not the expected instance")
	}
	if gotCfg != cfg {
		t.Error("factory did not receive the config")
	}
}

func TestRegistry_RegisteredVADAndCapture(t *testing.T) {
	reg := config.NewRegistry()
	wantVAD := &stubVAD{}
	wantDev := &stubDevice{}
	reg.RegisterVAD("stub", func(c config.VADConfig) (vad.Engine, error) { return wantVAD, nil })
	reg.RegisterCapture("stub", func(c config.AudioConfig) (audio.Device, error) { return wantDev, nil })

	gotVAD, err := reg.CreateVAD(config.VADConfig{Name: "stub"})
	if err != nil || gotVAD != wantVAD {
		t.Errorf("CreateVAD = %v, %v", gotVAD, err)
	}
	gotDev, err := reg.CreateCapture(config.AudioConfig{Backend: "stub"})
	if err != nil || gotDev != wantDev {
		t.Errorf("CreateCapture = %v, %v", gotDev, err)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	reg := config.NewRegistry()
	factoryErr := errors.New("model file missing")
	reg.RegisterSTT("broken", func(*config.Config) (stt.Provider, error) { return nil, factoryErr })

	_, err := reg.CreateSTT("broken", config.Defaults())
	if !errors.Is(err, factoryErr) {
		t.Errorf("expected factory error, got: %v", err)
	}
}

func TestRegistry_STTNames(t *testing.T) {
	reg := config.NewRegistry()
	for _, n := range []string{"whisper-server", "openai", "whisper-native"} {
		reg.RegisterSTT(n, func(*config.Config) (stt.Provider, error) { return &stubSTT{}, nil })
	}
	got := strings.Join(reg.STTNames(), ",")
	if want := "openai,whisper-native,whisper-server"; got != want {
		t.Errorf("STTNames() = %q, want %q", got, want)
	}
}

// ── stubs ────────────────────────────────────────────────────────────────────

type stubSTT struct{}

func (*stubSTT) Transcribe(context.Context, stt.Request) (stt.Transcript, error) {
	return stt.Transcript{}, nil
}
func (*stubSTT) Name() string { return "stub" }

type stubVAD struct{}

func (*stubVAD) NewSession(vad.Config) (vad.SessionHandle, error) { return nil, nil }

type stubDevice struct{}

func (*stubDevice) Open(audio.CaptureConfig, audio.PushFunc) (audio.Stream, error) { return nil, nil }
