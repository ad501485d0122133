package pipeline

import (
	"context"
	"io"
)

// MediaHandle is the transport-side resource holding the downloaded raw
// media. Close releases it; the runner guarantees exactly one Close on
// every exit path after a successful download.
type MediaHandle interface {
	io.ReadCloser
}

// Messenger is the transport collaborator the pipeline talks back through.
// Implementations map a Job onto whatever conversation or channel the
// submission arrived on.
type Messenger interface {
	// DownloadMedia fetches the raw media named by the locator.
	// Implementations bound the download with their own timeout.
	DownloadMedia(ctx context.Context, locator string) (MediaHandle, error)
	// SendProgress edits the job's progress message in place.
	SendProgress(ctx context.Context, job *Job, label string) error
	// SendTranscript delivers the transcript chunks; the first chunk
	// replaces the progress message, the rest go out as new messages.
	SendTranscript(ctx context.Context, job *Job, chunks []string) error
	// SendError replaces the progress message with a failure notice.
	SendError(ctx context.Context, job *Job, text string) error
	// SendWarning sends a standalone notice (low balance, quota exceeded)
	// independent of the progress message.
	SendWarning(ctx context.Context, job *Job, text string) error
}
