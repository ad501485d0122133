// Package pipeline drives one submission from admission to transcript
// delivery.
//
// The runner is a per-job state machine: Init, Downloading, Normalizing
// (video only), Transcribing, Sending, Done, with Failed reachable from
// any non-terminal state. Progress is a single message edited in place;
// an edit is skipped when the label did not change, and edit failures
// never abort the job. Whatever media handle the download acquired is
// released exactly once on every exit path.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kbukum/voicescribe/logger"
	"github.com/kbukum/voicescribe/media"
	"github.com/kbukum/voicescribe/observability"
	"github.com/kbukum/voicescribe/quota"
	"github.com/kbukum/voicescribe/store"
	"github.com/kbukum/voicescribe/transcription"
)

// Config holds pipeline configuration.
type Config struct {
	// MaxMessageLength bounds every outgoing message; transcripts longer
	// than this are chunked and failure notices truncated.
	MaxMessageLength int
}

// ApplyDefaults applies default values to pipeline configuration.
func (c *Config) ApplyDefaults() {
	if c.MaxMessageLength <= 0 {
		c.MaxMessageLength = 4096
	}
}

// Runner executes jobs. One Runner serves all jobs; per-job state lives
// on the Job value, so concurrent Run calls do not interfere.
type Runner struct {
	messenger  Messenger
	ledger     *quota.Ledger
	dispatcher *transcription.Dispatcher
	normalizer *media.Normalizer
	cfg        Config
	log        *logger.Logger
	metrics    *observability.JobMetrics
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLogger sets the runner's logger.
func WithLogger(log *logger.Logger) RunnerOption {
	return func(r *Runner) {
		r.log = log.WithComponent("pipeline")
	}
}

// WithMetrics sets the runner's metrics sink. A nil sink is valid and
// records nothing.
func WithMetrics(m *observability.JobMetrics) RunnerOption {
	return func(r *Runner) {
		r.metrics = m
	}
}

// WithNormalizer substitutes the media normalizer.
func WithNormalizer(n *media.Normalizer) RunnerOption {
	return func(r *Runner) {
		r.normalizer = n
	}
}

// NewRunner creates a Runner on the given collaborators.
func NewRunner(m Messenger, ledger *quota.Ledger, d *transcription.Dispatcher, cfg Config, opts ...RunnerOption) *Runner {
	cfg.ApplyDefaults()
	r := &Runner{
		messenger:  m,
		ledger:     ledger,
		dispatcher: d,
		cfg:        cfg,
	}
	for _, o := range opts {
		o(r)
	}
	if r.log == nil {
		r.log = logger.NewDefault("voicescribe").WithComponent("pipeline")
	}
	if r.normalizer == nil {
		r.normalizer = media.NewNormalizer()
	}
	return r
}

// Run processes one job to a terminal state. An admission rejection is
// not an error: the job stops before Downloading, the user is told, and
// nil is returned. Terminal failures come back as a *StageError tagged
// with the failing state; the user sees the state name and the last
// error's message, truncated.
func (r *Runner) Run(ctx context.Context, job *Job) error {
	ctx, span := observability.StartSpan(ctx, "pipeline.run",
		trace.WithAttributes(
			attribute.String("job.mime_type", job.MIMEType),
			attribute.Int("job.duration_seconds", job.DurationSeconds),
		))
	defer span.End()
	start := time.Now()

	user, outcome, err := r.ledger.Admit(ctx, job.UserHash, job.DurationSeconds)
	if err != nil {
		return r.fail(ctx, span, job, start, err)
	}
	r.metrics.RecordAdmission(ctx, string(outcome))
	span.SetAttributes(attribute.String("admission.outcome", string(outcome)))

	switch outcome {
	case quota.Exceeded:
		// Admission rejection, not a failure: the job never starts and
		// no usage record is written.
		r.notifyWarning(ctx, job, exceededMessage(job, user))
		r.metrics.RecordJob(ctx, "rejected", time.Since(start))
		return nil
	case quota.ApprovedWithWarning:
		r.notifyWarning(ctx, job, lowBalanceMessage(user))
	}

	r.advance(ctx, job, StateDownloading)
	handle, err := r.messenger.DownloadMedia(ctx, job.Locator)
	if err != nil {
		return r.fail(ctx, span, job, start, err)
	}
	defer handle.Close()

	payload, err := io.ReadAll(handle)
	if err != nil {
		return r.fail(ctx, span, job, start, err)
	}

	mimeType := job.MIMEType
	if media.IsVideo(mimeType) {
		r.advance(ctx, job, StateNormalizing)
		payload, mimeType, err = r.normalizer.ToAudio(ctx, bytes.NewReader(payload))
		if err != nil {
			return r.fail(ctx, span, job, start, err)
		}
	}

	r.advance(ctx, job, StateTranscribing)
	dispatcher := r.dispatcher.Notify(func(ctx context.Context, label string) {
		r.editProgress(ctx, job, label)
	})
	transcript, err := dispatcher.Dispatch(ctx, bytes.NewReader(payload), mimeType)
	if err != nil {
		return r.fail(ctx, span, job, start, err)
	}

	r.advance(ctx, job, StateSending)
	chunks := ChunkTranscript(transcript, r.cfg.MaxMessageLength)
	if err := r.messenger.SendTranscript(ctx, job, chunks); err != nil {
		return r.fail(ctx, span, job, start, err)
	}

	if err := r.ledger.Settle(ctx, user, job.DurationSeconds, time.Since(start).Seconds()); err != nil {
		// The transcript is already delivered; surface the settlement
		// failure to operators only.
		r.log.Error("settlement failed after delivery", logger.Fields(
			logger.FieldUserHash, job.UserHash,
			logger.FieldState, job.state.String(),
			logger.FieldError, err.Error(),
		))
		span.RecordError(err)
		span.SetStatus(codes.Error, "settlement failed")
		r.metrics.RecordJob(ctx, "settle_error", time.Since(start))
		job.state = StateFailed
		return &StageError{State: StateSending, Err: err}
	}

	job.state = StateDone
	r.metrics.RecordJob(ctx, "success", time.Since(start))
	r.log.Info("job done", logger.Fields(
		logger.FieldUserHash, job.UserHash,
		logger.FieldDuration, job.DurationSeconds,
	))
	return nil
}

// advance moves the job to the next state and pushes its label.
func (r *Runner) advance(ctx context.Context, job *Job, next State) {
	job.state = next
	r.editProgress(ctx, job, next.Label())
}

// editProgress edits the progress message in place. The edit is skipped
// when the label is unchanged, and delivery failures are swallowed: a
// progress edit is a non-critical side effect, never a job failure.
func (r *Runner) editProgress(ctx context.Context, job *Job, label string) {
	if label == job.lastLabel {
		return
	}
	job.lastLabel = label
	if err := r.messenger.SendProgress(ctx, job, label); err != nil {
		r.log.Debug("progress edit failed",
			logger.Fields(logger.FieldUserHash, job.UserHash),
			logger.ErrorFields("send_progress", err))
	}
}

func (r *Runner) notifyWarning(ctx context.Context, job *Job, text string) {
	if err := r.messenger.SendWarning(ctx, job, text); err != nil {
		r.log.Debug("warning delivery failed",
			logger.Fields(logger.FieldUserHash, job.UserHash),
			logger.ErrorFields("send_warning", err))
	}
}

// fail moves the job to Failed, reports a redacted message to the user,
// full detail to the observability sink tagged with the failing state,
// and appends the failed usage record.
func (r *Runner) fail(ctx context.Context, span trace.Span, job *Job, start time.Time, cause error) error {
	failedIn := job.state
	job.state = StateFailed

	text := truncate(fmt.Sprintf("error (%s): %s", failedIn, cause.Error()), r.cfg.MaxMessageLength)
	if err := r.messenger.SendError(ctx, job, text); err != nil {
		r.log.Debug("error notice delivery failed",
			logger.Fields(logger.FieldUserHash, job.UserHash),
			logger.ErrorFields("send_error", err))
	}

	span.RecordError(cause)
	span.SetStatus(codes.Error, failedIn.String())
	span.SetAttributes(attribute.String("pipeline.state", failedIn.String()))
	r.log.Error("job failed", logger.Fields(
		logger.FieldUserHash, job.UserHash,
		logger.FieldState, failedIn.String(),
		logger.FieldError, cause.Error(),
	))
	r.metrics.RecordJob(ctx, "failed", time.Since(start))

	if err := r.ledger.RecordFailure(ctx, job.UserHash, job.DurationSeconds); err != nil {
		r.log.Error("failed usage record not written", logger.Fields(
			logger.FieldUserHash, job.UserHash,
			logger.FieldError, err.Error(),
		))
	}

	return &StageError{State: failedIn, Err: cause}
}

func exceededMessage(job *Job, user *store.User) string {
	remaining := 0
	if user != nil {
		remaining = user.FreeSeconds + user.PurchasedSeconds
	}
	return fmt.Sprintf(
		"Not enough transcription time left: this file needs %d seconds but only %d remain. Purchase more minutes to continue.",
		job.DurationSeconds, remaining)
}

func lowBalanceMessage(user *store.User) string {
	remaining := 0
	if user != nil {
		remaining = user.FreeSeconds + user.PurchasedSeconds
	}
	return fmt.Sprintf(
		"Heads up: only %d seconds of transcription time remain on your balance.",
		remaining)
}
