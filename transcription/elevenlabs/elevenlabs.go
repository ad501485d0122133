// Package elevenlabs implements a transcription backend on the ElevenLabs
// speech-to-text API (scribe_v1).
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/kbukum/voicescribe/provider"
	"github.com/kbukum/voicescribe/transcription"
)

const (
	// ModelScribeV1 is the scribe_v1 speech-to-text model.
	ModelScribeV1 = "scribe_v1"

	defaultBaseURL = "https://api.elevenlabs.io/v1"
	defaultTimeout = 120 * time.Second
)

// Config holds configuration for the ElevenLabs transcription provider.
type Config struct {
	APIKey  string        `json:"api_key" yaml:"api_key"`
	Model   string        `json:"model" yaml:"model"`
	BaseURL string        `json:"base_url,omitempty" yaml:"base_url"`
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// Provider implements transcription.Provider against the ElevenLabs API.
type Provider struct {
	cfg    Config
	client *http.Client
}

// NewProvider creates a new ElevenLabs transcription provider.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("elevenlabs: api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = ModelScribeV1
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Provider{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}, nil
}

// Factory returns a provider.Factory that creates ElevenLabs providers from
// a generic config map.
func Factory() provider.Factory[transcription.Provider] {
	return func(cfg map[string]any) (transcription.Provider, error) {
		ec := Config{}
		if v, ok := cfg["api_key"].(string); ok {
			ec.APIKey = v
		}
		if v, ok := cfg["base_url"].(string); ok {
			ec.BaseURL = v
		}
		if v, ok := cfg["timeout"].(time.Duration); ok {
			ec.Timeout = v
		}
		return NewProvider(ec)
	}
}

// Name returns the provider name.
func (p *Provider) Name() string { return "elevenlabs-" + p.cfg.Model }

// IsAvailable reports whether the provider is configured with credentials.
func (p *Provider) IsAvailable(_ context.Context) bool {
	return p.cfg.APIKey != ""
}

// Transcribe uploads the audio stream and returns the transcript.
func (p *Provider) Transcribe(ctx context.Context, req transcription.Request) (*transcription.Result, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", "audio")
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: create form file: %w", err)
	}
	if _, err := io.Copy(part, req.Audio); err != nil {
		return nil, fmt.Errorf("elevenlabs: write audio data: %w", err)
	}
	_ = writer.WriteField("model_id", p.cfg.Model)
	writer.Close()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/speech-to-text", &buf)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	httpReq.Header.Set("xi-api-key", p.cfg.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("elevenlabs: error (status %d): %s", resp.StatusCode, string(body))
	}

	var result struct {
		Text         string `json:"text"`
		LanguageCode string `json:"language_code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("elevenlabs: decode response: %w", err)
	}

	return &transcription.Result{Text: result.Text, Language: result.LanguageCode}, nil
}
