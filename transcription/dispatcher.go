package transcription

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/kbukum/voicescribe/logger"
)

// ExhaustedError is returned by Dispatch when every configured attempt
// failed: all primary retries plus the single fallback attempt, if one
// was configured. Attempts holds the error of each attempt in order.
type ExhaustedError struct {
	Attempts []error
}

// Error returns the most recent attempt's message.
func (e *ExhaustedError) Error() string {
	if len(e.Attempts) == 0 {
		return "transcription: no attempts made"
	}
	return e.Attempts[len(e.Attempts)-1].Error()
}

// Unwrap exposes all accumulated attempt errors for errors.Is / errors.As.
func (e *ExhaustedError) Unwrap() []error { return e.Attempts }

// NoticeFunc surfaces an interim progress notice to the submitter while the
// dispatcher is waiting between attempts. Failures to deliver a notice are
// the caller's concern; the dispatcher ignores them.
type NoticeFunc func(ctx context.Context, label string)

// AttemptHook observes the outcome of every backend attempt, success or
// failure. Metrics wiring.
type AttemptHook func(ctx context.Context, engine string, success bool)

// DispatchConfig configures retry behavior against the primary backend.
type DispatchConfig struct {
	// MaxRetries is the number of attempts against the primary backend.
	MaxRetries int
	// RetryDelay is the base delay; attempt N waits RetryDelay * N.
	RetryDelay time.Duration
}

// ApplyDefaults applies default values to dispatch configuration.
func (c *DispatchConfig) ApplyDefaults() {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 5 * time.Second
	}
}

// Dispatcher drives transcription attempts against a primary backend with
// bounded retries and an optional single-shot fallback backend. Which
// backend is primary and which is fallback is fixed configuration, not a
// per-job decision.
type Dispatcher struct {
	primary  Provider
	fallback Provider
	cfg      DispatchConfig
	notify   NoticeFunc
	observe  AttemptHook
	log      *logger.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithFallback sets the fallback backend tried once after the primary is
// exhausted.
func WithFallback(p Provider) DispatcherOption {
	return func(d *Dispatcher) {
		d.fallback = p
	}
}

// WithNotice sets the interim progress notice callback.
func WithNotice(fn NoticeFunc) DispatcherOption {
	return func(d *Dispatcher) {
		d.notify = fn
	}
}

// WithAttemptHook sets the per-attempt observer.
func WithAttemptHook(fn AttemptHook) DispatcherOption {
	return func(d *Dispatcher) {
		d.observe = fn
	}
}

// WithLogger sets the dispatcher's logger.
func WithLogger(log *logger.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.log = log
	}
}

// NewDispatcher creates a Dispatcher for the given primary backend.
func NewDispatcher(primary Provider, cfg DispatchConfig, opts ...DispatcherOption) *Dispatcher {
	cfg.ApplyDefaults()
	d := &Dispatcher{
		primary: primary,
		cfg:     cfg,
	}
	for _, o := range opts {
		o(d)
	}
	if d.log == nil {
		d.log = logger.NewDefault("voicescribe")
	}
	return d
}

// Notify returns a copy of the dispatcher that delivers interim notices
// through fn. Backends and retry configuration are shared; this binds the
// notices of one Dispatch call to that job's progress channel.
func (d *Dispatcher) Notify(fn NoticeFunc) *Dispatcher {
	clone := *d
	clone.notify = fn
	return &clone
}

// Dispatch transcribes the audio stream, retrying the primary backend up to
// MaxRetries times with linear backoff and falling back once if a fallback
// backend is configured. A backend reporting itself unavailable is skipped
// with a recorded error instead of retried. The stream is rewound before
// every attempt because backends consume it once. On total failure the
// returned error is an *ExhaustedError carrying every attempt's error.
func (d *Dispatcher) Dispatch(ctx context.Context, audio io.ReadSeeker, mimeType string) (string, error) {
	var attempts []error

	if !d.primary.IsAvailable(ctx) {
		attempts = append(attempts, fmt.Errorf("transcription: backend %q not available", d.primary.Name()))
		d.log.Warn("primary backend not available", logger.Fields(
			logger.FieldEngine, d.primary.Name(),
		))
		return d.dispatchFallback(ctx, audio, mimeType, attempts)
	}

	for attempt := 1; attempt <= d.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if _, err := audio.Seek(0, io.SeekStart); err != nil {
			return "", fmt.Errorf("transcription: rewind audio: %w", err)
		}

		result, err := d.primary.Transcribe(ctx, Request{Audio: audio, MIMEType: mimeType})
		if d.observe != nil {
			d.observe(ctx, d.primary.Name(), err == nil)
		}
		if err == nil {
			return result.Text, nil
		}

		attempts = append(attempts, err)
		d.log.Warn("transcription attempt failed", logger.Fields(
			logger.FieldEngine, d.primary.Name(),
			logger.FieldAttempt, attempt,
			logger.FieldError, err.Error(),
		))

		if attempt == d.cfg.MaxRetries {
			break
		}

		wait := d.cfg.RetryDelay * time.Duration(attempt)
		if d.notify != nil {
			d.notify(ctx, fmt.Sprintf("Attempt %d/%d, waiting %d seconds...",
				attempt, d.cfg.MaxRetries, int(wait.Seconds())))
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
	}

	return d.dispatchFallback(ctx, audio, mimeType, attempts)
}

// dispatchFallback makes the single fallback attempt, if a fallback backend
// is configured and available, and finalizes the accumulated errors.
func (d *Dispatcher) dispatchFallback(ctx context.Context, audio io.ReadSeeker, mimeType string, attempts []error) (string, error) {
	if d.fallback != nil {
		if !d.fallback.IsAvailable(ctx) {
			attempts = append(attempts, fmt.Errorf("transcription: backend %q not available", d.fallback.Name()))
			d.log.Warn("fallback backend not available", logger.Fields(
				logger.FieldEngine, d.fallback.Name(),
			))
			return "", &ExhaustedError{Attempts: attempts}
		}
		if d.notify != nil {
			d.notify(ctx, "Last attempt...")
		}
		if _, err := audio.Seek(0, io.SeekStart); err != nil {
			return "", fmt.Errorf("transcription: rewind audio: %w", err)
		}
		result, err := d.fallback.Transcribe(ctx, Request{Audio: audio, MIMEType: mimeType})
		if d.observe != nil {
			d.observe(ctx, d.fallback.Name(), err == nil)
		}
		if err == nil {
			return result.Text, nil
		}
		attempts = append(attempts, err)
		d.log.Warn("fallback transcription failed", logger.Fields(
			logger.FieldEngine, d.fallback.Name(),
			logger.FieldError, err.Error(),
		))
	}

	return "", &ExhaustedError{Attempts: attempts}
}
