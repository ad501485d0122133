// Package config loads and validates voicescribe settings from a YAML file,
// a .env file, and environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/kbukum/voicescribe/logger"
	"github.com/kbukum/voicescribe/quota"
	"github.com/kbukum/voicescribe/transcription/engines"
	"github.com/kbukum/voicescribe/validation"
)

// Settings is the full configuration of the voicescribe core.
type Settings struct {
	Name        string `yaml:"name" mapstructure:"name"`
	Environment string `yaml:"environment" mapstructure:"environment" validate:"omitempty,oneof=development staging production"`

	Logging       logger.Config         `yaml:"logging" mapstructure:"logging"`
	Database      DatabaseSettings      `yaml:"database" mapstructure:"database"`
	Quota         quota.Config          `yaml:"quota" mapstructure:"quota"`
	Transcription TranscriptionSettings `yaml:"transcription" mapstructure:"transcription"`
	Pipeline      PipelineSettings      `yaml:"pipeline" mapstructure:"pipeline"`
	Media         MediaSettings         `yaml:"media" mapstructure:"media"`
	Observability ObservabilitySettings `yaml:"observability" mapstructure:"observability"`
}

// DatabaseSettings configures the persistence collaborator.
type DatabaseSettings struct {
	DSN string `yaml:"dsn" mapstructure:"dsn" validate:"required"`
}

// TranscriptionSettings selects the backends and dispatch behavior.
type TranscriptionSettings struct {
	// Engine is the primary backend; FallbackEngine is optional.
	Engine         string        `yaml:"engine" mapstructure:"engine" validate:"required"`
	FallbackEngine string        `yaml:"fallback_engine" mapstructure:"fallback_engine"`
	MaxRetries     int           `yaml:"max_retries" mapstructure:"max_retries"`
	RetryDelay     time.Duration `yaml:"retry_delay" mapstructure:"retry_delay"`

	OpenAIAPIKey     string `yaml:"openai_api_key" mapstructure:"openai_api_key"`
	ElevenLabsAPIKey string `yaml:"elevenlabs_api_key" mapstructure:"elevenlabs_api_key"`
	GeminiAPIKey     string `yaml:"gemini_api_key" mapstructure:"gemini_api_key"`
	GeminiPrompt     string `yaml:"gemini_prompt" mapstructure:"gemini_prompt"`
}

// Credentials extracts the per-vendor keys for engine construction.
func (t TranscriptionSettings) Credentials() engines.Credentials {
	return engines.Credentials{
		OpenAIAPIKey:     t.OpenAIAPIKey,
		ElevenLabsAPIKey: t.ElevenLabsAPIKey,
		GeminiAPIKey:     t.GeminiAPIKey,
		GeminiPrompt:     t.GeminiPrompt,
	}
}

// PipelineSettings configures the job pipeline.
type PipelineSettings struct {
	// MaxMessageLength bounds one outgoing message; longer transcripts are
	// chunked.
	MaxMessageLength int `yaml:"max_message_length" mapstructure:"max_message_length"`
}

// MediaSettings configures the media normalizer.
type MediaSettings struct {
	FFmpegPath string `yaml:"ffmpeg_path" mapstructure:"ffmpeg_path"`
}

// ObservabilitySettings configures OTLP trace and metric export. Disabled
// by default; spans and counters become no-ops without a provider.
type ObservabilitySettings struct {
	Enabled    bool    `yaml:"enabled" mapstructure:"enabled"`
	Endpoint   string  `yaml:"endpoint" mapstructure:"endpoint"`
	Insecure   bool    `yaml:"insecure" mapstructure:"insecure"`
	SampleRate float64 `yaml:"sample_rate" mapstructure:"sample_rate"`
}

// ApplyDefaults applies default values to all sections.
func (s *Settings) ApplyDefaults() {
	if s.Name == "" {
		s.Name = "voicescribe"
	}
	if s.Environment == "" {
		s.Environment = "development"
	}
	s.Logging.ApplyDefaults()
	s.Quota.ApplyDefaults()
	if s.Transcription.MaxRetries == 0 {
		s.Transcription.MaxRetries = 3
	}
	if s.Transcription.RetryDelay == 0 {
		s.Transcription.RetryDelay = 5 * time.Second
	}
	if s.Pipeline.MaxMessageLength == 0 {
		s.Pipeline.MaxMessageLength = 4096
	}
	if s.Media.FFmpegPath == "" {
		s.Media.FFmpegPath = "ffmpeg"
	}
	if s.Observability.Endpoint == "" {
		s.Observability.Endpoint = "localhost:4318"
	}
	if s.Observability.SampleRate == 0 {
		s.Observability.SampleRate = 1.0
	}
}

// Validate validates the settings.
func (s *Settings) Validate() error {
	if err := validation.Validate(s); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := s.Logging.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := engines.Validate(s.Transcription.Engine); err != nil {
		return fmt.Errorf("config: transcription.engine: %w", err)
	}
	if s.Transcription.FallbackEngine != "" {
		if err := engines.Validate(s.Transcription.FallbackEngine); err != nil {
			return fmt.Errorf("config: transcription.fallback_engine: %w", err)
		}
		if s.Transcription.FallbackEngine == s.Transcription.Engine {
			return fmt.Errorf("config: transcription.fallback_engine must differ from the primary engine")
		}
	}
	return nil
}
