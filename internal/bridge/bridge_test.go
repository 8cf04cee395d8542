package bridge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/handoff/internal/engine"
	"github.com/rendis/handoff/internal/store"
	"github.com/rendis/handoff/internal/workflows"
	"github.com/rendis/handoff/pkg/schema"
)

func newTestBridge(t *testing.T) (*Bridge, *engine.Engine) {
	t.Helper()
	registry := engine.NewRegistry()
	require.NoError(t, workflows.Register(registry))
	eng := engine.NewEngine(store.NewMemoryStore(), registry, nil, nil)
	return New(eng, nil), eng
}

func TestBridge_StartWorkflowSuspends(t *testing.T) {
	b, _ := newTestBridge(t)

	result, err := b.StartWorkflow(context.Background(), workflows.WorkflowEmail, map[string]any{
		"message": "drop your email",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, result.WorkflowRunID)
	assert.True(t, result.Suspended)
	assert.Equal(t, "drop your email", result.SuspendPayload["message"])
	assert.Nil(t, result.Output)
}

func TestBridge_RunIDIsResumable(t *testing.T) {
	b, eng := newTestBridge(t)
	ctx := context.Background()

	result, err := b.StartWorkflow(ctx, workflows.WorkflowEmail, map[string]any{})
	require.NoError(t, err)

	// The handle returned to the tool must locate the suspended run.
	final, err := eng.Resume(ctx, result.WorkflowRunID, workflows.StepRequestEmail, map[string]any{
		"email": "user@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, schema.RunStatusCompleted, final.Status)
}

func TestBridge_UnknownWorkflowFailsFast(t *testing.T) {
	b, _ := newTestBridge(t)

	_, err := b.StartWorkflow(context.Background(), "no-such-workflow", map[string]any{})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeNotFound, schema.CodeOf(err))
}

func TestBridge_InvalidInputPropagates(t *testing.T) {
	b, _ := newTestBridge(t)

	_, err := b.StartWorkflow(context.Background(), workflows.WorkflowChoice, map[string]any{
		"question": "pick",
		"options":  []any{map[string]any{"id": "a", "label": "A"}},
	})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))
}

func TestToolResult_AsMap(t *testing.T) {
	suspended := &ToolResult{
		WorkflowRunID:  "run-1",
		Suspended:      true,
		SuspendPayload: map[string]any{"message": "waiting"},
	}
	m := suspended.AsMap()
	assert.Equal(t, "run-1", m["workflowRunId"])
	assert.Equal(t, true, m["suspended"])
	assert.Equal(t, map[string]any{"message": "waiting"}, m["suspendPayload"])

	completed := &ToolResult{
		WorkflowRunID: "run-2",
		Output:        map[string]any{"email": "a@b.co", "submitted": true},
	}
	m = completed.AsMap()
	assert.Equal(t, false, m["suspended"])
	assert.Equal(t, "a@b.co", m["email"])
	assert.Equal(t, true, m["submitted"])
	assert.NotContains(t, m, "suspendPayload")
}
