package store

import (
	"encoding/json"
	"time"

	"github.com/rendis/handoff/pkg/schema"
)

// Run is the persisted representation of a workflow run.
type Run struct {
	ID             string           `json:"id"`
	WorkflowID     string           `json:"workflow_id"`
	Status         schema.RunStatus `json:"status"`
	CurrentStepID  string           `json:"current_step_id"`
	ChatID         string           `json:"chat_id,omitempty"`
	Input          map[string]any   `json:"input,omitempty"`
	SuspendPayload map[string]any   `json:"suspend_payload,omitempty"`
	Result         map[string]any   `json:"result,omitempty"`
	Error          json.RawMessage  `json:"error,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	SuspendedAt    *time.Time       `json:"suspended_at,omitempty"`
	CompletedAt    *time.Time       `json:"completed_at,omitempty"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// Event is an immutable entry in the run event log.
type Event struct {
	ID        int64           `json:"id"`
	RunID     string          `json:"run_id"`
	StepID    string          `json:"step_id,omitempty"`
	Type      string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Sequence  int64           `json:"sequence"`
}

// RunUpdate specifies mutable fields of a run. Nil pointer fields are
// left unchanged. ExpectStatus, when set, makes the whole update
// conditional: if the run's current status differs the update is
// rejected with a CONFLICT error and nothing is written.
type RunUpdate struct {
	Status              *schema.RunStatus `json:"status,omitempty"`
	CurrentStepID       *string           `json:"current_step_id,omitempty"`
	ChatID              *string           `json:"chat_id,omitempty"`
	Input               map[string]any    `json:"input,omitempty"`
	SuspendPayload      map[string]any    `json:"suspend_payload,omitempty"`
	ClearSuspendPayload bool              `json:"clear_suspend_payload,omitempty"`
	Result              map[string]any    `json:"result,omitempty"`
	Error               json.RawMessage   `json:"error,omitempty"`
	SuspendedAt         *time.Time        `json:"suspended_at,omitempty"`
	CompletedAt         *time.Time        `json:"completed_at,omitempty"`
	ExpectStatus        *schema.RunStatus `json:"expect_status,omitempty"`
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status         *schema.RunStatus `json:"status,omitempty"`
	WorkflowID     string            `json:"workflow_id,omitempty"`
	SuspendedSince *time.Time        `json:"suspended_since,omitempty"`
	Limit          int               `json:"limit,omitempty"`
}
