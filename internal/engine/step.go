package engine

import (
	"context"

	"github.com/rendis/handoff/internal/validation"
)

// ExecContext is the data handed to a step at execution time. ResumeData
// is nil on the first execution and carries the caller-supplied payload
// on every resume. Steps retain no state between invocations: everything
// needed to continue lives in the run's persisted fields.
type ExecContext struct {
	Input      map[string]any
	ResumeData map[string]any
}

// Resuming reports whether this execution was triggered by a resume call.
func (ec ExecContext) Resuming() bool {
	return ec.ResumeData != nil
}

// StepOutcome is the tagged result of a step execution: the step either
// suspends with a payload or completes with an output, never both and
// never neither.
type StepOutcome struct {
	suspended bool
	payload   map[string]any
	output    map[string]any
}

// Suspend builds an outcome that pauses the run, handing the payload
// back to the caller so a UI can render an input affordance.
func Suspend(payload map[string]any) StepOutcome {
	return StepOutcome{suspended: true, payload: payload}
}

// Complete builds an outcome that finishes the step with a typed output.
func Complete(output map[string]any) StepOutcome {
	return StepOutcome{output: output}
}

// Suspended reports whether the step chose to suspend.
func (o StepOutcome) Suspended() bool { return o.suspended }

// Payload returns the suspend payload, or nil when the step completed.
func (o StepOutcome) Payload() map[string]any { return o.payload }

// Output returns the terminal output, or nil when the step suspended.
func (o StepOutcome) Output() map[string]any { return o.output }

// Step is a pure unit of work within a workflow. Execute decides to
// suspend or complete solely from the data in its ExecContext; it must
// not block waiting for external input.
type Step interface {
	// ID identifies the step within its workflow and is matched against
	// resume requests.
	ID() string

	// ResumeSchema returns the JSON Schema resume payloads are validated
	// against before Execute is re-invoked. Nil means no validation.
	ResumeSchema() *validation.Schema

	// Execute runs the step. Returning an error fails the run; invalid
	// human input is expressed by re-suspending, not by erroring.
	Execute(ctx context.Context, ec ExecContext) (StepOutcome, error)
}
