package workflows

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/handoff/internal/engine"
	"github.com/rendis/handoff/internal/store"
	"github.com/rendis/handoff/pkg/schema"
)

func newEmailEngine(t *testing.T) *engine.Engine {
	t.Helper()
	registry := engine.NewRegistry()
	require.NoError(t, Register(registry))
	return engine.NewEngine(store.NewMemoryStore(), registry, nil, nil)
}

func startEmailRun(t *testing.T, eng *engine.Engine, input map[string]any) *engine.RunResult {
	t.Helper()
	ctx := context.Background()
	run, err := eng.CreateRun(ctx, WorkflowEmail, "")
	require.NoError(t, err)
	result, err := eng.Start(ctx, run.ID, input)
	require.NoError(t, err)
	return result
}

func TestEmailWorkflow_SuspendsWithPrompt(t *testing.T) {
	eng := newEmailEngine(t)

	result := startEmailRun(t, eng, map[string]any{
		"message": "Leave your email and we'll follow up.",
		"chatId":  "chat-7",
	})

	assert.Equal(t, schema.RunStatusSuspended, result.Status)
	assert.Equal(t, []string{StepRequestEmail}, result.Suspended)
	assert.Equal(t, "Leave your email and we'll follow up.", result.SuspendPayload["message"])
	assert.Equal(t, "chat-7", result.SuspendPayload["chatId"])
}

func TestEmailWorkflow_DefaultPromptWhenMessageOmitted(t *testing.T) {
	eng := newEmailEngine(t)

	result := startEmailRun(t, eng, map[string]any{})

	assert.Equal(t, DefaultEmailPrompt, result.SuspendPayload["message"])
	assert.NotContains(t, result.SuspendPayload, "chatId")
}

func TestEmailWorkflow_ValidEmailCompletes(t *testing.T) {
	eng := newEmailEngine(t)
	ctx := context.Background()

	result := startEmailRun(t, eng, map[string]any{})
	result, err := eng.Resume(ctx, result.RunID, StepRequestEmail, map[string]any{"email": "  jane@example.com  "})
	require.NoError(t, err)

	assert.Equal(t, schema.RunStatusCompleted, result.Status)
	assert.Equal(t, "jane@example.com", result.Result["email"])
	assert.Equal(t, true, result.Result["submitted"])
}

func TestEmailWorkflow_InvalidEmailResuspends(t *testing.T) {
	eng := newEmailEngine(t)
	ctx := context.Background()

	for _, bad := range []string{"", "plainaddress", "two@@example.com", "@example.com", "user@", "user@nodot", "user@dot.", "a b@example.com"} {
		result := startEmailRun(t, eng, map[string]any{})
		result, err := eng.Resume(ctx, result.RunID, StepRequestEmail, map[string]any{"email": bad})
		require.NoError(t, err, "email %q", bad)

		assert.Equal(t, schema.RunStatusSuspended, result.Status, "email %q", bad)
		assert.Equal(t, "invalid_email", result.SuspendPayload["reason"], "email %q", bad)
		assert.NotEmpty(t, result.SuspendPayload["message"])
	}
}

func TestEmailWorkflow_RetryAfterInvalidEmail(t *testing.T) {
	eng := newEmailEngine(t)
	ctx := context.Background()

	result := startEmailRun(t, eng, map[string]any{})

	result, err := eng.Resume(ctx, result.RunID, StepRequestEmail, map[string]any{"email": "nope"})
	require.NoError(t, err)
	assert.Equal(t, schema.RunStatusSuspended, result.Status)

	result, err = eng.Resume(ctx, result.RunID, StepRequestEmail, map[string]any{"email": "ok@example.com"})
	require.NoError(t, err)
	assert.Equal(t, schema.RunStatusCompleted, result.Status)
}

func TestEmailWorkflow_MissingEmailFieldResuspends(t *testing.T) {
	eng := newEmailEngine(t)
	ctx := context.Background()

	result := startEmailRun(t, eng, map[string]any{})
	result, err := eng.Resume(ctx, result.RunID, StepRequestEmail, map[string]any{})
	require.NoError(t, err)

	assert.Equal(t, schema.RunStatusSuspended, result.Status)
	assert.Equal(t, "invalid_email", result.SuspendPayload["reason"])
}

func TestValidEmail(t *testing.T) {
	valid := []string{"a@b.co", "jane.doe@sub.example.com", "x+tag@example.io"}
	for _, s := range valid {
		assert.True(t, ValidEmail(s), s)
	}

	invalid := []string{"", "a", "a@b", "a@.com", "a@b.", "@b.com", "a@", "a@@b.com", "a b@c.com"}
	for _, s := range invalid {
		assert.False(t, ValidEmail(s), s)
	}
}
