package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// DefaultEnvFile is read by [LoadEnv] when no other file is named.
const DefaultEnvFile = ".env"

// EnvOverrides holds settings taken from the process environment. Non-empty
// values win over the YAML file.
type EnvOverrides struct {
	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL"`
	SoundDevice   string `env:"VOXWRITER_SOUND_DEVICE"`
	LogLevel      string `env:"VOXWRITER_LOG_LEVEL"`
}

// LoadEnv loads envFile (DefaultEnvFile when empty) into the process
// environment if it exists, then parses the overrides. Variables already set
// in the environment are not replaced by the file.
func LoadEnv(envFile string) (EnvOverrides, error) {
	if envFile == "" {
		envFile = DefaultEnvFile
	}
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return EnvOverrides{}, fmt.Errorf("config: load %q: %w", envFile, err)
		}
	}

	var ov EnvOverrides
	if err := env.Parse(&ov); err != nil {
		return EnvOverrides{}, fmt.Errorf("config: parse environment: %w", err)
	}
	return ov, nil
}

// Apply copies the non-empty overrides into cfg.
func (o EnvOverrides) Apply(cfg *Config) {
	if o.OpenAIAPIKey != "" {
		cfg.Transcription.APIOptions.APIKey = o.OpenAIAPIKey
	}
	if o.OpenAIBaseURL != "" {
		cfg.Transcription.APIOptions.BaseURL = o.OpenAIBaseURL
	}
	if o.SoundDevice != "" {
		cfg.Audio.SoundDevice = o.SoundDevice
	}
	if o.LogLevel != "" {
		cfg.Server.LogLevel = LogLevel(o.LogLevel)
	}
}
