package transcription

import "io"

// Request holds parameters for a transcription call.
type Request struct {
	// Audio is the audio stream to transcribe. Backends consume it once.
	Audio io.Reader
	// MIMEType is the MIME type of the audio stream.
	MIMEType string
	// Language is the expected language of the audio (e.g. "en").
	Language string
}

// Result holds the result of a transcription call.
type Result struct {
	// Text is the full transcription text.
	Text string
	// Duration is the audio duration in seconds, when the backend reports it.
	Duration float64
	// Language is the detected or specified language, when reported.
	Language string
}
