// Package transcription defines the transcription backend capability and
// the dispatcher that drives it.
//
// A backend is anything that can turn an audio stream into text. Concrete
// backends live in subpackages (openai, elevenlabs, gemini) and are
// selected by engine name through the engines subpackage. The Dispatcher
// retries the primary backend with linear backoff and makes exactly one
// attempt against an optional fallback backend before giving up.
package transcription
