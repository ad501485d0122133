// Package media converts container formats into audio streams the
// transcription backends accept. Video input is demuxed with ffmpeg
// into a raw AAC/ADTS stream without re-encoding.
package media

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kbukum/voicescribe/process"
)

// AudioMIMEType is the MIME type of every stream produced by ToAudio.
const AudioMIMEType = "audio/aac"

const defaultFFmpegBinary = "ffmpeg"

// runFunc matches process.Run and exists so tests can substitute the
// subprocess invocation.
type runFunc func(ctx context.Context, cmd process.Command) (*process.Result, error)

// Normalizer extracts the audio track from video media.
type Normalizer struct {
	ffmpegPath string
	run        runFunc
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithFFmpegPath overrides the ffmpeg binary path.
func WithFFmpegPath(path string) Option {
	return func(n *Normalizer) {
		n.ffmpegPath = path
	}
}

// withRunner substitutes the subprocess runner. Test use only.
func withRunner(run runFunc) Option {
	return func(n *Normalizer) {
		n.run = run
	}
}

// NewNormalizer creates a Normalizer using ffmpeg from PATH unless overridden.
func NewNormalizer(opts ...Option) *Normalizer {
	n := &Normalizer{
		ffmpegPath: defaultFFmpegBinary,
		run:        process.Run,
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

// ToAudio reads raw video bytes and returns an audio-only ADTS stream plus
// its MIME type. A non-zero transcoder exit is returned as an error carrying
// the transcoder's stderr verbatim; malformed input is not retried.
func (n *Normalizer) ToAudio(ctx context.Context, video io.Reader) ([]byte, string, error) {
	tmp, err := os.CreateTemp("", "voicescribe-*.media")
	if err != nil {
		return nil, "", fmt.Errorf("media: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, video); err != nil {
		tmp.Close()
		return nil, "", fmt.Errorf("media: buffer input: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, "", fmt.Errorf("media: flush input: %w", err)
	}

	// -vn drops the video track; the audio track is copied as-is into an
	// ADTS container on stdout.
	result, err := n.run(ctx, process.Command{
		Binary: n.ffmpegPath,
		Args:   []string{"-i", tmp.Name(), "-vn", "-c:a", "copy", "-f", "adts", "-"},
	})
	if err != nil {
		detail := ""
		if result != nil {
			detail = strings.TrimSpace(string(result.Stderr))
		}
		if detail == "" {
			return nil, "", fmt.Errorf("media: extract audio: %w", err)
		}
		return nil, "", fmt.Errorf("media: extract audio: %s", detail)
	}

	return result.Stdout, AudioMIMEType, nil
}

// IsVideo reports whether a MIME type requires normalization before dispatch.
func IsVideo(mimeType string) bool {
	return strings.HasPrefix(mimeType, "video/")
}
