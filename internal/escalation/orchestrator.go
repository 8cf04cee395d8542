// Package escalation decides how a conversation is handed off to a
// human: emergencies short-circuit with a fixed safety message, every
// other reason drives the email-collection workflow to gather a contact
// address.
package escalation

import (
	"context"
	"log/slog"
	"os"

	"github.com/rendis/handoff/internal/bridge"
	"github.com/rendis/handoff/internal/workflows"
	"github.com/rendis/handoff/pkg/schema"
)

// Request is the input to a single escalation decision.
type Request struct {
	Reason             schema.EscalationReason `json:"reason"`
	Question           string                  `json:"question"`
	ChatID             string                  `json:"chatId,omitempty"`
	SearchResultsCount *int                    `json:"searchResultsCount,omitempty"`
}

// Result is the tool-observable outcome of an escalation.
type Result struct {
	Escalated      bool                    `json:"escalated"`
	Reason         schema.EscalationReason `json:"reason"`
	Question       string                  `json:"question"`
	Message        string                  `json:"message"`
	RequiresEmail  bool                    `json:"requiresEmail"`
	WorkflowRunID  string                  `json:"workflowRunId,omitempty"`
	Suspended      bool                    `json:"suspended,omitempty"`
	SuspendPayload map[string]any          `json:"suspendPayload,omitempty"`
	Output         map[string]any          `json:"output,omitempty"`
}

// EmergencyMessage is returned verbatim on the emergency path. That path
// never attempts to collect contact information: speed matters more than
// follow-up capture.
const EmergencyMessage = "If this is a medical or safety emergency, please stop and call your local emergency number or seek immediate in-person help right away. Our team cannot provide emergency assistance."

const (
	noResultsMessage     = "I couldn't find anything in our help center that answers this. I'd like to connect you with a member of our team who can help directly."
	userRequestMessage   = "Of course — I'll get a member of our team to follow up with you personally."
	lowConfidenceMessage = "I'm not confident I can answer this accurately, so I'd rather hand you over to a member of our team."
	sensitiveMessage     = "This is something our team should handle personally rather than an automated assistant."
)

// Orchestrator performs escalation decisions. rules may be nil.
type Orchestrator struct {
	bridge *bridge.Bridge
	rules  *Rules
	logger *slog.Logger
}

// New creates an Orchestrator.
func New(b *bridge.Bridge, rules *Rules, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &Orchestrator{bridge: b, rules: rules, logger: logger}
}

// Escalate routes the request and either short-circuits (emergency) or
// starts the email-collection workflow. If the workflow cannot be
// started the composed message is returned without a run handle so the
// conversation is not blocked by an infrastructure fault.
func (o *Orchestrator) Escalate(ctx context.Context, req Request) (*Result, error) {
	if !schema.ValidReason(req.Reason) {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"unknown escalation reason %q", req.Reason)
	}

	reason := o.rules.Route(ctx, req)
	if reason != req.Reason {
		o.logger.InfoContext(ctx, "escalation re-routed by rule",
			"from", req.Reason, "to", reason)
	}

	if reason == schema.ReasonEmergency {
		return &Result{
			Escalated:     true,
			Reason:        reason,
			Question:      req.Question,
			Message:       EmergencyMessage,
			RequiresEmail: false,
		}, nil
	}

	message := messageFor(reason)
	input := map[string]any{"message": message}
	if req.ChatID != "" {
		input["chatId"] = req.ChatID
	}

	toolResult, err := o.bridge.StartWorkflow(ctx, workflows.WorkflowEmail, input)
	if err != nil {
		o.logger.WarnContext(ctx, "email workflow unavailable, degrading to plain message",
			"reason", reason, "error", err)
		return &Result{
			Escalated:     true,
			Reason:        reason,
			Question:      req.Question,
			Message:       message,
			RequiresEmail: true,
		}, nil
	}

	return &Result{
		Escalated:      true,
		Reason:         reason,
		Question:       req.Question,
		Message:        message,
		RequiresEmail:  true,
		WorkflowRunID:  toolResult.WorkflowRunID,
		Suspended:      toolResult.Suspended,
		SuspendPayload: toolResult.SuspendPayload,
		Output:         toolResult.Output,
	}, nil
}

// messageFor selects the user-facing wording for each non-emergency reason.
func messageFor(reason schema.EscalationReason) string {
	switch reason {
	case schema.ReasonNoResults:
		return noResultsMessage
	case schema.ReasonUserRequest:
		return userRequestMessage
	case schema.ReasonSensitive:
		return sensitiveMessage
	default:
		return lowConfidenceMessage
	}
}

// AsMap flattens the result into the shape fed back to the agent.
func (r *Result) AsMap() map[string]any {
	m := map[string]any{
		"escalated":     r.Escalated,
		"reason":        string(r.Reason),
		"question":      r.Question,
		"message":       r.Message,
		"requiresEmail": r.RequiresEmail,
	}
	if r.WorkflowRunID != "" {
		m["workflowRunId"] = r.WorkflowRunID
		m["suspended"] = r.Suspended
	}
	if r.SuspendPayload != nil {
		m["suspendPayload"] = r.SuspendPayload
	}
	for k, v := range r.Output {
		m[k] = v
	}
	return m
}
