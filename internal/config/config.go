// Package config provides the configuration schema, loader, and provider registry
// for voxwriter.
package config

import (
	"time"

	"github.com/MrWong99/voxwriter/internal/transcript"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for voxwriter.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server         ServerConfig        `yaml:"server"`
	Audio          AudioConfig         `yaml:"audio"`
	VAD            VADConfig           `yaml:"vad"`
	Transcription  TranscriptionConfig `yaml:"transcription"`
	PostProcessing transcript.Options  `yaml:"post_processing"`
}

// ServerConfig holds logging and the optional HTTP listener for health and
// metrics endpoints.
type ServerConfig struct {
	// ListenAddr is the TCP address for /healthz, /readyz and /metrics
	// (e.g., ":9090"). Empty disables the listener.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// PrintToTerminal raises per-session progress lines from debug to info.
	PrintToTerminal bool `yaml:"print_to_terminal"`
}

// AudioConfig controls capture and the recording loop.
type AudioConfig struct {
	// Backend selects the registered capture device implementation.
	Backend string `yaml:"backend"`

	// SoundDevice selects the input by name or index. Empty uses the system
	// default input.
	SoundDevice string `yaml:"sound_device"`

	// SampleRate in Hz: 8000, 16000, 32000, 48000 or 96000.
	SampleRate int `yaml:"sample_rate"`

	// FrameDurationMs is the VAD frame length: 10, 20 or 30.
	FrameDurationMs int `yaml:"frame_duration_ms"`

	// SilenceDurationMs of non-speech after speech that ends an utterance.
	SilenceDurationMs int `yaml:"silence_duration_ms"`

	// BufferDurationMs sizes the initial frame buffer capacity. It does not
	// affect when recordings stop.
	BufferDurationMs int `yaml:"buffer_duration_ms"`

	// MinDurationMs is the shortest recording that may be finalized.
	MinDurationMs int `yaml:"min_duration_ms"`

	// CancelPolicy is "debounce" or "immediate".
	CancelPolicy string `yaml:"cancel_policy"`

	// PollInterval bounds each wait for new samples.
	PollInterval time.Duration `yaml:"poll_interval"`
}

// VADConfig selects the speech gate backend.
type VADConfig struct {
	// Name of the registered VAD engine: "webrtc" or "energy".
	Name string `yaml:"name"`

	// Aggressiveness from 0 to 3 of the whisper-native speech filter. The
	// recording gate always runs at 3.
	Aggressiveness int `yaml:"aggressiveness"`

	// EnergyThreshold overrides the RMS threshold of the energy engine.
	// Zero keeps the default for the aggressiveness level.
	EnergyThreshold float64 `yaml:"energy_threshold"`
}

// TranscriptionConfig chooses between remote and local dispatch.
type TranscriptionConfig struct {
	// UseAPI selects the remote API. When false the local model is used.
	UseAPI bool `yaml:"use_api"`

	// FallbackToLocal retries a failed remote request on the local model.
	// Only meaningful when UseAPI is true.
	FallbackToLocal bool `yaml:"fallback_to_local"`

	APIOptions        APIOptions        `yaml:"api_options"`
	LocalModelOptions LocalModelOptions `yaml:"local_model_options"`
}

// APIOptions configures the remote transcription API.
type APIOptions struct {
	Model         string  `yaml:"model"`
	Language      string  `yaml:"language"`
	InitialPrompt string  `yaml:"initial_prompt"`
	Temperature   float64 `yaml:"temperature"`

	// APIKey is normally supplied through OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the API endpoint.
	BaseURL string `yaml:"base_url"`

	// Timeout per request. Zero keeps the client default.
	Timeout time.Duration `yaml:"timeout"`
}

// LocalModelOptions configures the local speech model.
type LocalModelOptions struct {
	// Provider is "whisper-native" (in-process) or "whisper-server" (HTTP).
	Provider string `yaml:"provider"`

	// Model is a model file path for whisper-native, or a model name sent to
	// whisper-server.
	Model string `yaml:"model"`

	Device      string `yaml:"device"`
	ComputeType string `yaml:"compute_type"`

	Language                string  `yaml:"language"`
	InitialPrompt           string  `yaml:"initial_prompt"`
	ConditionOnPreviousText bool    `yaml:"condition_on_previous_text"`
	Temperature             float64 `yaml:"temperature"`
	VADFilter               bool    `yaml:"vad_filter"`

	// ServerURL is the whisper-server base URL.
	ServerURL string `yaml:"server_url"`

	// Threads for whisper-native inference. Zero lets whisper.cpp decide.
	Threads int `yaml:"threads"`
}

// Default configuration values.
const (
	DefaultCaptureBackend    = "portaudio"
	DefaultSampleRate        = 16000
	DefaultFrameDurationMs   = 30
	DefaultSilenceDurationMs = 900
	DefaultBufferDurationMs  = 300
	DefaultMinDurationMs     = 1000
	DefaultCancelPolicy      = "debounce"
	DefaultPollInterval      = 5 * time.Millisecond
	DefaultVAD               = "webrtc"
	DefaultAggressiveness    = 3
	DefaultAPIModel          = "whisper-1"
	DefaultLocalProvider     = "whisper-native"
	DefaultLocalModel        = "base"
	DefaultDevice            = "auto"
	DefaultComputeType       = "default"
)

// Defaults returns a Config populated with the default values. The loader
// decodes YAML on top of it, so omitted keys keep their defaults.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{LogLevel: LogInfo},
		Audio: AudioConfig{
			Backend:           DefaultCaptureBackend,
			SampleRate:        DefaultSampleRate,
			FrameDurationMs:   DefaultFrameDurationMs,
			SilenceDurationMs: DefaultSilenceDurationMs,
			BufferDurationMs:  DefaultBufferDurationMs,
			MinDurationMs:     DefaultMinDurationMs,
			CancelPolicy:      DefaultCancelPolicy,
			PollInterval:      DefaultPollInterval,
		},
		VAD: VADConfig{
			Name:           DefaultVAD,
			Aggressiveness: DefaultAggressiveness,
		},
		Transcription: TranscriptionConfig{
			APIOptions: APIOptions{Model: DefaultAPIModel},
			LocalModelOptions: LocalModelOptions{
				Provider:                DefaultLocalProvider,
				Model:                   DefaultLocalModel,
				Device:                  DefaultDevice,
				ComputeType:             DefaultComputeType,
				ConditionOnPreviousText: true,
			},
		},
	}
}

// MinDuration returns MinDurationMs as a duration.
func (a AudioConfig) MinDuration() time.Duration {
	return time.Duration(a.MinDurationMs) * time.Millisecond
}
