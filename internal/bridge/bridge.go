// Package bridge adapts an agent tool invocation into a workflow run
// lifecycle call and translates the run's resulting state into a
// tool-observable shape.
package bridge

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/rendis/handoff/internal/engine"
	"github.com/rendis/handoff/pkg/schema"
)

// ToolResult is what the agent's tool-calling mechanism observes after a
// workflow is started. When suspended, SuspendPayload carries exactly
// what the step handed back so a UI layer can render an input affordance.
type ToolResult struct {
	WorkflowRunID  string         `json:"workflowRunId"`
	Suspended      bool           `json:"suspended"`
	SuspendPayload map[string]any `json:"suspendPayload,omitempty"`
	Output         map[string]any `json:"output,omitempty"`
}

// AsMap flattens the result into the wire shape fed back to the agent:
// completed runs spread their typed output fields at the top level.
func (t *ToolResult) AsMap() map[string]any {
	m := map[string]any{
		"workflowRunId": t.WorkflowRunID,
		"suspended":     t.Suspended,
	}
	if t.Suspended {
		m["suspendPayload"] = t.SuspendPayload
		return m
	}
	for k, v := range t.Output {
		m[k] = v
	}
	return m
}

// Bridge starts workflow runs on behalf of agent tools.
type Bridge struct {
	engine *engine.Engine
	logger *slog.Logger
}

// New creates a Bridge.
func New(eng *engine.Engine, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &Bridge{engine: eng, logger: logger}
}

// StartWorkflow resolves the target workflow by name, creates a run and
// starts it with the tool's input. A fallback run ID is generated up
// front so a resumable handle always exists; an empty resolved run ID is
// a hard failure because it would make resume impossible later.
func (b *Bridge) StartWorkflow(ctx context.Context, workflowName string, input map[string]any) (*ToolResult, error) {
	fallbackID := engine.NewRunID()

	run, err := b.engine.CreateRun(ctx, workflowName, fallbackID)
	if err != nil {
		return nil, err
	}

	runID := strings.TrimSpace(run.ID)
	if runID == "" {
		return nil, schema.NewErrorf(schema.ErrCodeState,
			"workflow %q produced an empty run ID", workflowName)
	}

	result, err := b.engine.Start(ctx, runID, input)
	if err != nil {
		return nil, err
	}

	b.logger.InfoContext(ctx, "workflow started via tool",
		"workflow", workflowName, "run_id", runID, "status", result.Status)

	if result.Status == schema.RunStatusSuspended {
		return &ToolResult{
			WorkflowRunID:  runID,
			Suspended:      true,
			SuspendPayload: result.SuspendPayload,
		}, nil
	}
	return &ToolResult{
		WorkflowRunID: runID,
		Suspended:     false,
		Output:        result.Result,
	}, nil
}
