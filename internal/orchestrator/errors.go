package orchestrator

import "github.com/kestrelav/streamcore/internal/model"

// StateError reports an operation attempted in a state that doesn't
// permit it, per the §4.6 state machine table.
type StateError struct {
	From model.PipelineState
	Op   string
}

func (e *StateError) Error() string {
	return "pipeline: op " + e.Op + " not permitted in state " + string(e.From)
}

func (e *StateError) Unwrap() error { return model.ErrStateViolation }
