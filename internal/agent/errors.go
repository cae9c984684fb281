package agent

import (
	"errors"
	"fmt"
)

// Common sentinel errors for agent operations.
var (
	// ErrMaxIterations indicates the loop hit its iteration cap while the
	// model was still requesting tools.
	ErrMaxIterations = errors.New("max iterations exceeded")

	// ErrNoProvider indicates no reasoning-model provider is configured.
	ErrNoProvider = errors.New("no provider configured")

	// ErrEmptyMessage indicates the caller sent no user message.
	ErrEmptyMessage = errors.New("user message is required")

	// ErrToolPanic indicates a tool panicked during execution.
	ErrToolPanic = errors.New("tool panicked")

	// ErrToolTimeout indicates a tool execution timed out.
	ErrToolTimeout = errors.New("tool execution timed out")
)

// Phase is a distinct state of the tool-calling loop.
type Phase string

const (
	// PhaseAwaitingModel means the loop is waiting on model inference.
	PhaseAwaitingModel Phase = "awaiting-model"

	// PhaseExecutingTools means requested tools are being executed.
	PhaseExecutingTools Phase = "executing-tools"

	// PhaseDone is the terminal success state.
	PhaseDone Phase = "done"

	// PhaseFailed is the terminal failure state.
	PhaseFailed Phase = "failed"
)

// LoopError wraps a failure with the phase and iteration it occurred in.
type LoopError struct {
	Phase     Phase
	Iteration int
	Cause     error
}

// Error implements the error interface.
func (e *LoopError) Error() string {
	return fmt.Sprintf("loop error at %s (iteration %d): %v", e.Phase, e.Iteration, e.Cause)
}

// Unwrap returns the underlying error.
func (e *LoopError) Unwrap() error {
	return e.Cause
}

// IsMaxIterations reports whether err is the iteration-cap failure. Callers
// use it to distinguish cap exhaustion from model-call failures.
func IsMaxIterations(err error) bool {
	return errors.Is(err, ErrMaxIterations)
}
