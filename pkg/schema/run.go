package schema

// RunStatus enumerates the lifecycle states of a workflow run.
type RunStatus string

const (
	RunStatusCreated   RunStatus = "created"
	RunStatusRunning   RunStatus = "running"
	RunStatusSuspended RunStatus = "suspended"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run lifecycle event types, published on every FSM transition.
const (
	EventRunStarted   = "run.started"
	EventRunSuspended = "run.suspended"
	EventRunResumed   = "run.resumed"
	EventRunCompleted = "run.completed"
	EventRunFailed    = "run.failed"
	EventRunStale     = "run.stale"
)

// ResumeRequest is the wire shape accepted by the resume endpoint
// and the support.resume MCP tool.
type ResumeRequest struct {
	WorkflowRunID     string             `json:"workflowRunId"`
	Step              string             `json:"step"`
	ResumeData        map[string]any     `json:"resumeData"`
	EscalationContext *EscalationContext `json:"escalationContext,omitempty"`
}

// ResumeResponse is returned by the resume endpoint.
type ResumeResponse struct {
	Status         RunStatus      `json:"status"`
	Output         map[string]any `json:"output,omitempty"`
	Suspended      bool           `json:"suspended"`
	SuspendedSteps []string       `json:"suspendedSteps,omitempty"`
	EscalationID   string         `json:"escalationId,omitempty"`
}
