// Package engines maps engine names to transcription backend factories.
// Engine selection is fixed configuration resolved once at startup; no
// backend instances are created at package load.
package engines

import (
	"fmt"
	"strings"

	"github.com/kbukum/voicescribe/provider"
	"github.com/kbukum/voicescribe/transcription"
	"github.com/kbukum/voicescribe/transcription/elevenlabs"
	"github.com/kbukum/voicescribe/transcription/gemini"
	"github.com/kbukum/voicescribe/transcription/openai"
)

// Engine names accepted in configuration.
const (
	OpenAIWhisper             = "openai-whisper"
	OpenAIGPT4oMiniTranscribe = "openai-gpt-4o-mini-transcribe"
	ElevenLabsScribeV1        = "elevenlabs-scribe-v1"
	GeminiFlash               = "gemini-2.5-flash"
	GeminiFlashLite           = "gemini-2.5-flash-lite"
)

// Credentials holds the per-vendor API keys used to construct backends.
type Credentials struct {
	OpenAIAPIKey     string
	ElevenLabsAPIKey string
	GeminiAPIKey     string
	GeminiPrompt     string
}

// Registry returns a registry with every built-in engine factory registered.
func Registry() *provider.Registry[transcription.Provider] {
	reg := transcription.NewRegistry()
	reg.RegisterFactory(OpenAIWhisper, openai.Factory(openai.ModelWhisper))
	reg.RegisterFactory(OpenAIGPT4oMiniTranscribe, openai.Factory(openai.ModelGPT4oMiniTranscribe))
	reg.RegisterFactory(ElevenLabsScribeV1, elevenlabs.Factory())
	reg.RegisterFactory(GeminiFlash, gemini.Factory(gemini.ModelFlash))
	reg.RegisterFactory(GeminiFlashLite, gemini.Factory(gemini.ModelFlashLite))
	return reg
}

// New constructs the named engine with the matching vendor credentials.
func New(name string, creds Credentials) (transcription.Provider, error) {
	return Registry().Create(name, configFor(name, creds))
}

func configFor(name string, creds Credentials) map[string]any {
	switch {
	case strings.HasPrefix(name, "openai-"):
		return map[string]any{"api_key": creds.OpenAIAPIKey}
	case strings.HasPrefix(name, "elevenlabs-"):
		return map[string]any{"api_key": creds.ElevenLabsAPIKey}
	case strings.HasPrefix(name, "gemini-"):
		cfg := map[string]any{"api_key": creds.GeminiAPIKey}
		if creds.GeminiPrompt != "" {
			cfg["prompt"] = creds.GeminiPrompt
		}
		return cfg
	}
	return nil
}

// Names returns the sorted list of registered engine names, for config
// validation messages.
func Names() []string {
	return Registry().List()
}

// Validate reports whether name is a known engine.
func Validate(name string) error {
	reg := Registry()
	for _, n := range reg.List() {
		if n == name {
			return nil
		}
	}
	return fmt.Errorf("unknown transcription engine %q (available: %v)", name, reg.List())
}
