package pipeline

import (
	"fmt"
)

// StageError is a terminal job failure tagged with the pipeline state it
// happened in.
type StageError struct {
	State State
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline %s: %v", e.State, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
