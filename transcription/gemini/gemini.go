// Package gemini implements a transcription backend on the Gemini
// generateContent API, sending the audio inline with a transcription prompt.
package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kbukum/voicescribe/provider"
	"github.com/kbukum/voicescribe/transcription"
)

const (
	// ModelFlash is the gemini-2.5-flash model.
	ModelFlash = "gemini-2.5-flash"
	// ModelFlashLite is the gemini-2.5-flash-lite model.
	ModelFlashLite = "gemini-2.5-flash-lite"

	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultTimeout = 120 * time.Second
	defaultPrompt  = "Transcribe this audio verbatim. Return only the transcript text."
)

// Config holds configuration for the Gemini transcription provider.
type Config struct {
	APIKey  string        `json:"api_key" yaml:"api_key"`
	Model   string        `json:"model" yaml:"model"`
	Prompt  string        `json:"prompt,omitempty" yaml:"prompt"`
	BaseURL string        `json:"base_url,omitempty" yaml:"base_url"`
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// Provider implements transcription.Provider against the Gemini API.
type Provider struct {
	cfg    Config
	client *http.Client
}

// NewProvider creates a new Gemini transcription provider.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = ModelFlash
	}
	if cfg.Prompt == "" {
		cfg.Prompt = defaultPrompt
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

// Factory returns a provider.Factory that creates Gemini providers with the
// given model from a generic config map.
func Factory(model string) provider.Factory[transcription.Provider] {
	return func(cfg map[string]any) (transcription.Provider, error) {
		gc := Config{Model: model}
		if v, ok := cfg["api_key"].(string); ok {
			gc.APIKey = v
		}
		if v, ok := cfg["prompt"].(string); ok {
			gc.Prompt = v
		}
		if v, ok := cfg["base_url"].(string); ok {
			gc.BaseURL = v
		}
		if v, ok := cfg["timeout"].(time.Duration); ok {
			gc.Timeout = v
		}
		return NewProvider(gc)
	}
}

// Name returns the provider name.
func (p *Provider) Name() string { return p.cfg.Model }

// IsAvailable reports whether the provider is configured with credentials.
func (p *Provider) IsAvailable(_ context.Context) bool {
	return p.cfg.APIKey != ""
}

// --- Gemini API request/response types ---

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// Transcribe sends the audio inline with the transcription prompt and
// returns the model's text.
func (p *Provider) Transcribe(ctx context.Context, req transcription.Request) (*transcription.Result, error) {
	audio, err := io.ReadAll(req.Audio)
	if err != nil {
		return nil, fmt.Errorf("gemini: read audio: %w", err)
	}

	body, err := json.Marshal(generateRequest{
		Contents: []content{{
			Parts: []part{
				{Text: p.cfg.Prompt},
				{InlineData: &inlineData{
					MIMEType: req.MIMEType,
					Data:     base64.StdEncoding.EncodeToString(audio),
				}},
			},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: encode request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", p.cfg.BaseURL, p.cfg.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("gemini: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", p.cfg.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gemini: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("gemini: error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("gemini: decode response: %w", err)
	}

	text := collectText(&result)
	if text == "" {
		return nil, fmt.Errorf("gemini: empty response for model %s", p.cfg.Model)
	}
	return &transcription.Result{Text: text}, nil
}

func collectText(resp *generateResponse) string {
	var sb strings.Builder
	for _, cand := range resp.Candidates {
		for _, pt := range cand.Content.Parts {
			sb.WriteString(pt.Text)
		}
	}
	return strings.TrimSpace(sb.String())
}
