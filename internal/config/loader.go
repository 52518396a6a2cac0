package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/voxwriter/internal/recorder"
	"github.com/MrWong99/voxwriter/pkg/audio"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to reject unknown VAD and local model names and to warn
// about unknown capture backends.
var ValidProviderNames = map[string][]string{
	"stt":     {"openai", "whisper-native", "whisper-server"},
	"local":   {"whisper-native", "whisper-server"},
	"vad":     {"webrtc", "energy"},
	"capture": {"portaudio"},
}

// Load reads the YAML configuration file at path, overlays the environment
// (including a .env file in the working directory, if present) and returns a
// validated [Config].
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	cfg, err := loadBytes(data, "")
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// loadBytes decodes data, applies the environment from envFile, and validates.
func loadBytes(data []byte, envFile string) (*Config, error) {
	cfg, err := decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	env, err := LoadEnv(envFile)
	if err != nil {
		return nil, err
	}
	env.Apply(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of [Defaults] and
// validates the result. The environment is not consulted. Useful in tests
// where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg, err := decode(r)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(r io.Reader) (*Config, error) {
	cfg := Defaults()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	// An empty document keeps every default.
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Audio
	a := cfg.Audio
	if !slices.Contains(audio.SupportedSampleRates, a.SampleRate) {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d is invalid; valid values: %v", a.SampleRate, audio.SupportedSampleRates))
	}
	if !slices.Contains(audio.SupportedFrameDurations, a.FrameDurationMs) {
		errs = append(errs, fmt.Errorf("audio.frame_duration_ms %d is invalid; valid values: %v", a.FrameDurationMs, audio.SupportedFrameDurations))
	}
	if a.SilenceDurationMs < a.FrameDurationMs {
		errs = append(errs, fmt.Errorf("audio.silence_duration_ms %d must be at least one frame (%dms)", a.SilenceDurationMs, a.FrameDurationMs))
	}
	if a.BufferDurationMs < 0 {
		errs = append(errs, fmt.Errorf("audio.buffer_duration_ms %d must not be negative", a.BufferDurationMs))
	}
	if a.MinDurationMs <= 0 {
		errs = append(errs, fmt.Errorf("audio.min_duration_ms %d must be positive", a.MinDurationMs))
	}
	if a.PollInterval < 0 {
		errs = append(errs, fmt.Errorf("audio.poll_interval %v must not be negative", a.PollInterval))
	}
	if _, err := recorder.ParseCancelPolicy(a.CancelPolicy); err != nil {
		errs = append(errs, fmt.Errorf("audio.cancel_policy %q is invalid; valid values: debounce, immediate", a.CancelPolicy))
	}
	validateProviderName("capture", a.Backend)

	// VAD
	if !slices.Contains(ValidProviderNames["vad"], cfg.VAD.Name) {
		errs = append(errs, fmt.Errorf("vad.name %q is invalid; valid values: %v", cfg.VAD.Name, ValidProviderNames["vad"]))
	}
	if cfg.VAD.Aggressiveness < 0 || cfg.VAD.Aggressiveness > 3 {
		errs = append(errs, fmt.Errorf("vad.aggressiveness %d is out of range [0, 3]", cfg.VAD.Aggressiveness))
	}
	if cfg.VAD.EnergyThreshold < 0 {
		errs = append(errs, fmt.Errorf("vad.energy_threshold %.1f must not be negative", cfg.VAD.EnergyThreshold))
	}

	// Transcription
	t := cfg.Transcription
	if t.UseAPI {
		if t.APIOptions.Model == "" {
			errs = append(errs, errors.New("transcription.api_options.model is required when use_api is true"))
		}
		if t.APIOptions.APIKey == "" {
			slog.Warn("transcription.use_api is set but no API key is configured; set OPENAI_API_KEY")
		}
	}
	if err := checkTemperature("transcription.api_options.temperature", t.APIOptions.Temperature); err != nil {
		errs = append(errs, err)
	}
	if t.APIOptions.Timeout < 0 {
		errs = append(errs, fmt.Errorf("transcription.api_options.timeout %v must not be negative", t.APIOptions.Timeout))
	}

	local := t.LocalModelOptions
	if !t.UseAPI || t.FallbackToLocal {
		if !slices.Contains(ValidProviderNames["local"], local.Provider) {
			errs = append(errs, fmt.Errorf("transcription.local_model_options.provider %q is invalid; valid values: %v", local.Provider, ValidProviderNames["local"]))
		}
		if local.Provider == "whisper-server" && local.ServerURL == "" {
			errs = append(errs, errors.New("transcription.local_model_options.server_url is required for whisper-server"))
		}
		if local.Provider == "whisper-native" && local.Model == "" {
			errs = append(errs, errors.New("transcription.local_model_options.model is required for whisper-native"))
		}
	}
	if t.FallbackToLocal && !t.UseAPI {
		slog.Warn("transcription.fallback_to_local has no effect when use_api is false")
	}
	if err := checkTemperature("transcription.local_model_options.temperature", local.Temperature); err != nil {
		errs = append(errs, err)
	}
	if local.Threads < 0 {
		errs = append(errs, fmt.Errorf("transcription.local_model_options.threads %d must not be negative", local.Threads))
	}

	return errors.Join(errs...)
}

func checkTemperature(field string, v float64) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("%s %.2f is out of range [0, 1]", field, v)
	}
	return nil
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
