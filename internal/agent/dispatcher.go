package agent

import (
	"context"
	"log/slog"
	"os"

	"github.com/rendis/handoff/internal/bridge"
	"github.com/rendis/handoff/internal/escalation"
	"github.com/rendis/handoff/internal/workflows"
	"github.com/rendis/handoff/pkg/schema"
)

// Tool names exposed to the agent.
const (
	ToolEscalate       = "escalate_to_human"
	ToolCollectEmail   = "collect_email"
	ToolMultipleChoice = "ask_multiple_choice"
)

// ToolDispatcher routes agent tool calls to the workflow bridge and the
// escalation orchestrator.
type ToolDispatcher struct {
	bridge    *bridge.Bridge
	escalator *escalation.Orchestrator
	logger    *slog.Logger
}

// NewToolDispatcher creates a ToolDispatcher.
func NewToolDispatcher(b *bridge.Bridge, esc *escalation.Orchestrator, logger *slog.Logger) *ToolDispatcher {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &ToolDispatcher{bridge: b, escalator: esc, logger: logger}
}

// Specs returns the tool declarations handed to the agent.
func (d *ToolDispatcher) Specs() []ToolSpec {
	return []ToolSpec{
		{
			Name:        ToolEscalate,
			Description: "Hand the conversation to a human. Use reason 'emergency' for urgent safety issues, 'no_results' when the help center had nothing relevant, 'user_request' when the user asked for a person, 'sensitive' for topics needing human judgment, 'low_confidence' otherwise.",
			Schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"reason": map[string]any{
						"type": "string",
						"enum": []string{"no_results", "low_confidence", "user_request", "sensitive", "emergency"},
					},
					"question":           map[string]any{"type": "string"},
					"chatId":             map[string]any{"type": "string"},
					"searchResultsCount": map[string]any{"type": "integer"},
				},
				"required": []string{"reason", "question"},
			},
		},
		{
			Name:        ToolCollectEmail,
			Description: "Ask the user for their email address so the team can follow up. The conversation pauses until the user submits one.",
			Schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"message": map[string]any{"type": "string"},
					"chatId":  map[string]any{"type": "string"},
				},
			},
		},
		{
			Name:        ToolMultipleChoice,
			Description: "Ask the user to pick one of at least two options. The conversation pauses until the user selects one.",
			Schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"question": map[string]any{"type": "string"},
					"options": map[string]any{
						"type":     "array",
						"minItems": 2,
						"items": map[string]any{
							"type": "object",
							"properties": map[string]any{
								"id":    map[string]any{"type": "string"},
								"label": map[string]any{"type": "string"},
							},
							"required": []string{"id", "label"},
						},
					},
					"chatId": map[string]any{"type": "string"},
				},
				"required": []string{"question", "options"},
			},
		},
	}
}

// Dispatch executes one tool call and returns the tool-observable result.
func (d *ToolDispatcher) Dispatch(ctx context.Context, call ToolCall) (map[string]any, error) {
	d.logger.InfoContext(ctx, "dispatching tool call", "tool", call.Name)

	switch call.Name {
	case ToolEscalate:
		req := escalation.Request{
			Reason:   schema.EscalationReason(stringInput(call.Input, "reason")),
			Question: stringInput(call.Input, "question"),
			ChatID:   stringInput(call.Input, "chatId"),
		}
		if n, ok := intInput(call.Input, "searchResultsCount"); ok {
			req.SearchResultsCount = &n
		}
		result, err := d.escalator.Escalate(ctx, req)
		if err != nil {
			return nil, err
		}
		return result.AsMap(), nil

	case ToolCollectEmail:
		input := map[string]any{}
		if msg := stringInput(call.Input, "message"); msg != "" {
			input["message"] = msg
		}
		if chatID := stringInput(call.Input, "chatId"); chatID != "" {
			input["chatId"] = chatID
		}
		result, err := d.bridge.StartWorkflow(ctx, workflows.WorkflowEmail, input)
		if err != nil {
			return nil, err
		}
		return result.AsMap(), nil

	case ToolMultipleChoice:
		input := map[string]any{
			"question": stringInput(call.Input, "question"),
			"options":  call.Input["options"],
		}
		if chatID := stringInput(call.Input, "chatId"); chatID != "" {
			input["chatId"] = chatID
		}
		result, err := d.bridge.StartWorkflow(ctx, workflows.WorkflowChoice, input)
		if err != nil {
			return nil, err
		}
		return result.AsMap(), nil

	default:
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "tool %q not registered", call.Name)
	}
}

func stringInput(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func intInput(m map[string]any, key string) (int, bool) {
	switch n := m[key].(type) {
	case int:
		return n, true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
