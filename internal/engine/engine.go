// Package engine implements the suspendable workflow run machinery: a
// run lifecycle FSM, a step contract that suspends by returning a tagged
// outcome rather than blocking, and the engine that drives both against
// the run store. Suspension is a persisted state transition, not a
// captured stack: the resuming request may be served by another process.
package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/handoff/internal/logging"
	"github.com/rendis/handoff/internal/store"
	"github.com/rendis/handoff/internal/streaming"
	"github.com/rendis/handoff/pkg/schema"
)

// RunResult is returned by Start and Resume with the run outcome.
// Steps maps each executed step to its snapshot so callers can read the
// suspend payload of the step that paused the run.
type RunResult struct {
	RunID          string                   `json:"run_id"`
	Status         schema.RunStatus         `json:"status"`
	SuspendPayload map[string]any           `json:"suspend_payload,omitempty"`
	Result         map[string]any           `json:"result,omitempty"`
	Suspended      []string                 `json:"suspended,omitempty"`
	Steps          map[string]*StepSnapshot `json:"steps,omitempty"`
}

// StepSnapshot is the per-step view exposed in a RunResult.
type StepSnapshot struct {
	Status         schema.RunStatus `json:"status"`
	SuspendPayload map[string]any   `json:"suspend_payload,omitempty"`
}

// Engine drives workflow runs through their lifecycle against the store.
// Safe for concurrent use; each run is logically owned by one
// conversation and races on the same run are rejected by the store's
// conditional updates.
type Engine struct {
	store    store.Store
	registry *Registry
	fsm      *RunFSM
	hub      streaming.EventHub
	logger   *slog.Logger
}

// NewEngine creates an Engine. hub may be nil to disable live events.
func NewEngine(s store.Store, registry *Registry, hub streaming.EventHub, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &Engine{
		store:    s,
		registry: registry,
		fsm:      NewRunFSM(s),
		hub:      hub,
		logger:   logger,
	}
}

// Registry returns the engine's workflow registry.
func (e *Engine) Registry() *Registry { return e.registry }

// NewRunID generates a run identifier. Postcondition: never empty or
// whitespace-only, unique with overwhelming probability.
func NewRunID() string {
	return uuid.New().String()
}

// CreateRun allocates a new run for the named workflow in running status
// with no active output. A blank or whitespace-only runID is replaced by
// a generated one, so callers never need to re-check the returned ID.
func (e *Engine) CreateRun(ctx context.Context, workflowID, runID string) (*store.Run, error) {
	wf, err := e.registry.Get(workflowID)
	if err != nil {
		return nil, err
	}

	runID = strings.TrimSpace(runID)
	if runID == "" {
		runID = NewRunID()
	}

	run := &store.Run{
		ID:            runID,
		WorkflowID:    wf.Name,
		Status:        schema.RunStatusRunning,
		CurrentStepID: wf.Steps[0].ID(),
		CreatedAt:     time.Now().UTC(),
	}
	if err := e.store.CreateRun(ctx, run); err != nil {
		return nil, err
	}

	ctx = logging.WithRunID(ctx, runID)
	if err := e.fsm.Transition(ctx, runID, run.CurrentStepID, schema.RunStatusCreated, schema.RunStatusRunning); err != nil {
		return nil, err
	}
	e.publish(ctx, runID, run.CurrentStepID, schema.EventRunStarted, nil)
	e.logger.InfoContext(ctx, "run created", "workflow", wf.Name)

	return run, nil
}

// GetRun returns the current snapshot of a run.
func (e *Engine) GetRun(ctx context.Context, runID string) (*store.Run, error) {
	return e.store.GetRun(ctx, runID)
}

// Start validates input against the workflow's input schema and executes
// the run's first step. The run either suspends with a payload or
// completes with a result validated against the output schema.
func (e *Engine) Start(ctx context.Context, runID string, input map[string]any) (*RunResult, error) {
	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status != schema.RunStatusRunning {
		return nil, schema.NewErrorf(schema.ErrCodeState,
			"run %q is %s, cannot start", runID, run.Status)
	}

	wf, err := e.registry.Get(run.WorkflowID)
	if err != nil {
		return nil, err
	}
	if wf.InputSchema != nil {
		if err := wf.InputSchema.Validate(input); err != nil {
			return nil, err
		}
	}

	ctx = logging.WithRunID(ctx, runID)
	run.Input = input
	return e.executeFrom(ctx, run, wf, 0, ExecContext{Input: input}, true)
}

// Resume re-invokes a suspended run's current step with the original
// input plus the caller-supplied resume data. The step may suspend again
// or complete. Resuming a run that is not suspended is always an error.
func (e *Engine) Resume(ctx context.Context, runID, stepID string, resumeData map[string]any) (*RunResult, error) {
	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status != schema.RunStatusSuspended {
		return nil, schema.NewErrorf(schema.ErrCodeState,
			"run %q is %s, not suspended", runID, run.Status)
	}
	if stepID != run.CurrentStepID {
		return nil, schema.NewErrorf(schema.ErrCodeState,
			"run %q is suspended at step %q, not %q", runID, run.CurrentStepID, stepID).WithStep(stepID)
	}

	wf, err := e.registry.Get(run.WorkflowID)
	if err != nil {
		return nil, err
	}
	stepIdx := -1
	for i, s := range wf.Steps {
		if s.ID() == stepID {
			stepIdx = i
			break
		}
	}
	if stepIdx < 0 {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound,
			"workflow %q has no step %q", wf.Name, stepID).WithStep(stepID)
	}

	step := wf.Steps[stepIdx]
	if rs := step.ResumeSchema(); rs != nil {
		if err := rs.Validate(resumeData); err != nil {
			return nil, err
		}
	}

	ctx = logging.WithRunID(logging.WithStepID(ctx, stepID), runID)

	// Conditional update first: a concurrent resume racing this one loses
	// here, before anything is appended to the event log.
	expect := schema.RunStatusSuspended
	running := schema.RunStatusRunning
	if err := e.store.UpdateRun(ctx, runID, store.RunUpdate{
		Status:       &running,
		ExpectStatus: &expect,
	}); err != nil {
		return nil, err
	}
	if err := e.fsm.Transition(ctx, runID, stepID, schema.RunStatusSuspended, schema.RunStatusRunning); err != nil {
		return nil, err
	}
	e.publish(ctx, runID, stepID, schema.EventRunResumed, nil)

	if resumeData == nil {
		resumeData = map[string]any{}
	}
	return e.executeFrom(ctx, run, wf, stepIdx, ExecContext{Input: run.Input, ResumeData: resumeData}, false)
}

// executeFrom runs the step chain starting at index until a step
// suspends, the chain completes, or a step fails. persistInput records
// the run's input alongside the first outcome after Start.
func (e *Engine) executeFrom(ctx context.Context, run *store.Run, wf *Workflow, index int, ec ExecContext, persistInput bool) (*RunResult, error) {
	steps := make(map[string]*StepSnapshot)
	output := ec.Input

	for i := index; i < len(wf.Steps); i++ {
		step := wf.Steps[i]
		stepCtx := logging.WithStepID(ctx, step.ID())

		outcome, err := step.Execute(stepCtx, ec)
		if err != nil {
			return nil, e.failRun(stepCtx, run, step.ID(), err)
		}

		if outcome.Suspended() {
			return e.suspendRun(stepCtx, run, step.ID(), outcome.Payload(), steps, persistInput, ec.Input)
		}

		output = outcome.Output()
		steps[step.ID()] = &StepSnapshot{Status: schema.RunStatusCompleted}
		// Subsequent steps in a chain consume the previous step's output;
		// only the resumed step sees the resume data.
		ec = ExecContext{Input: output}
	}

	return e.completeRun(ctx, run, wf, output, steps, persistInput)
}

func (e *Engine) suspendRun(ctx context.Context, run *store.Run, stepID string, payload map[string]any, steps map[string]*StepSnapshot, persistInput bool, input map[string]any) (*RunResult, error) {
	if err := e.fsm.Transition(ctx, run.ID, stepID, schema.RunStatusRunning, schema.RunStatusSuspended); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	suspended := schema.RunStatusSuspended
	running := schema.RunStatusRunning
	update := store.RunUpdate{
		Status:         &suspended,
		CurrentStepID:  &stepID,
		SuspendPayload: payload,
		SuspendedAt:    &now,
		ExpectStatus:   &running,
	}
	if persistInput {
		update.Input = input
		update.ChatID = chatIDOf(input)
	}
	if err := e.store.UpdateRun(ctx, run.ID, update); err != nil {
		return nil, err
	}

	e.publish(ctx, run.ID, stepID, schema.EventRunSuspended, payload)
	e.logger.InfoContext(ctx, "run suspended")

	steps[stepID] = &StepSnapshot{Status: schema.RunStatusSuspended, SuspendPayload: payload}
	return &RunResult{
		RunID:          run.ID,
		Status:         schema.RunStatusSuspended,
		SuspendPayload: payload,
		Suspended:      []string{stepID},
		Steps:          steps,
	}, nil
}

func (e *Engine) completeRun(ctx context.Context, run *store.Run, wf *Workflow, result map[string]any, steps map[string]*StepSnapshot, persistInput bool) (*RunResult, error) {
	if wf.OutputSchema != nil {
		if err := wf.OutputSchema.Validate(result); err != nil {
			return nil, e.failRun(ctx, run, run.CurrentStepID, err)
		}
	}

	lastStep := wf.Steps[len(wf.Steps)-1].ID()
	if err := e.fsm.Transition(ctx, run.ID, lastStep, schema.RunStatusRunning, schema.RunStatusCompleted); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	completed := schema.RunStatusCompleted
	running := schema.RunStatusRunning
	update := store.RunUpdate{
		Status:              &completed,
		Result:              result,
		ClearSuspendPayload: true,
		CompletedAt:         &now,
		ExpectStatus:        &running,
	}
	if persistInput {
		update.Input = run.Input
		update.ChatID = chatIDOf(run.Input)
	}
	if err := e.store.UpdateRun(ctx, run.ID, update); err != nil {
		return nil, err
	}

	e.publish(ctx, run.ID, lastStep, schema.EventRunCompleted, result)
	e.logger.InfoContext(ctx, "run completed")

	return &RunResult{
		RunID:  run.ID,
		Status: schema.RunStatusCompleted,
		Result: result,
		Steps:  steps,
	}, nil
}

// failRun records a step failure. Not reached for invalid human input,
// which steps express by re-suspending.
func (e *Engine) failRun(ctx context.Context, run *store.Run, stepID string, cause error) error {
	if err := e.fsm.Transition(ctx, run.ID, stepID, schema.RunStatusRunning, schema.RunStatusFailed); err != nil {
		e.logger.ErrorContext(ctx, "failed transition after step error", "error", err)
	}

	errJSON, _ := json.Marshal(map[string]string{"message": cause.Error()})
	failed := schema.RunStatusFailed
	if err := e.store.UpdateRun(ctx, run.ID, store.RunUpdate{
		Status: &failed,
		Error:  errJSON,
	}); err != nil {
		e.logger.ErrorContext(ctx, "failed persisting run failure", "error", err)
	}

	e.publish(ctx, run.ID, stepID, schema.EventRunFailed, map[string]any{"error": cause.Error()})
	e.logger.ErrorContext(ctx, "run failed", "error", cause)

	if he, ok := cause.(*schema.HandoffError); ok {
		return he
	}
	return schema.NewErrorf(schema.ErrCodeState, "step %s failed: %s", stepID, cause.Error()).
		WithStep(stepID).WithCause(cause)
}

// chatIDOf lifts the conversation identifier workflows accept in their
// input so it is queryable on the run record. Nil when absent, leaving
// the stored value untouched.
func chatIDOf(input map[string]any) *string {
	if s, ok := input["chatId"].(string); ok && s != "" {
		return &s
	}
	return nil
}

func (e *Engine) publish(ctx context.Context, runID, stepID, eventType string, payload any) {
	if e.hub == nil {
		return
	}
	_ = e.hub.Publish(ctx, streaming.StreamEvent{
		RunID:     runID,
		StepID:    stepID,
		EventType: eventType,
		Payload:   payload,
	})
}
