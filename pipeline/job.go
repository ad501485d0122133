package pipeline

// State is a job's position in the processing pipeline.
type State int

// Pipeline states in processing order. Failed is terminal and reachable
// from any non-terminal state.
const (
	StateInit State = iota
	StateDownloading
	StateNormalizing
	StateTranscribing
	StateSending
	StateDone
	StateFailed
)

var stateNames = map[State]string{
	StateInit:         "Init",
	StateDownloading:  "Downloading",
	StateNormalizing:  "Normalizing",
	StateTranscribing: "Transcribing",
	StateSending:      "Sending",
	StateDone:         "Done",
	StateFailed:       "Failed",
}

var stateLabels = map[State]string{
	StateInit:         "Starting...",
	StateDownloading:  "Downloading media...",
	StateNormalizing:  "Extracting audio...",
	StateTranscribing: "Transcribing...",
	StateSending:      "Sending transcript...",
	StateDone:         "Done",
	StateFailed:       "Failed",
}

// String returns the state's name, used in failure messages and logs.
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "Unknown"
}

// Label returns the state's user-facing progress label.
func (s State) Label() string {
	if label, ok := stateLabels[s]; ok {
		return label
	}
	return s.String()
}

// Job is one submission's in-flight processing context. The transport
// layer fills the exported fields; the runner owns the state.
type Job struct {
	// UserHash identifies the submitter; never a raw identity.
	UserHash string
	// Locator tells the transport collaborator which media to download.
	Locator string
	// MIMEType is the declared media type of the submission.
	MIMEType string
	// DurationSeconds is the declared media duration, used for admission
	// and settlement.
	DurationSeconds int

	state     State
	lastLabel string
}

// State returns the job's current pipeline state.
func (j *Job) State() State { return j.state }
