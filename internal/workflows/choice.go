package workflows

import (
	"context"
	"strings"

	"github.com/rendis/handoff/internal/engine"
	"github.com/rendis/handoff/internal/validation"
)

const (
	WorkflowChoice     = "multiple-choice"
	StepMultipleChoice = "multiple-choice-step"
)

const invalidOptionPrompt = "That option isn't on the list. Please pick one of the offered choices."

const choiceInputSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["question", "options"],
  "properties": {
    "question": { "type": "string", "minLength": 1 },
    "options": {
      "type": "array",
      "minItems": 2,
      "items": {
        "type": "object",
        "required": ["id", "label"],
        "properties": {
          "id": { "type": "string", "minLength": 1 },
          "label": { "type": "string" }
        },
        "additionalProperties": false
      }
    },
    "chatId": { "type": "string" }
  },
  "additionalProperties": false
}`

const choiceResumeSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "selectedOptionId": { "type": "string" }
  }
}`

const choiceOutputSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["selectedOptionId", "selectedOptionLabel", "submitted"],
  "properties": {
    "selectedOptionId": { "type": "string", "minLength": 1 },
    "selectedOptionLabel": { "type": "string" },
    "submitted": { "type": "boolean" }
  },
  "additionalProperties": false
}`

// Option is one selectable entry presented to the user.
type Option struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// NewChoiceWorkflow builds the multiple-choice workflow definition.
func NewChoiceWorkflow() *engine.Workflow {
	return &engine.Workflow{
		Name:         WorkflowChoice,
		Description:  "Asks the user to pick one of at least two options.",
		Steps:        []engine.Step{&choiceStep{}},
		InputSchema:  validation.MustCompile("handoff://schemas/multiple-choice/input.json", choiceInputSchema),
		OutputSchema: validation.MustCompile("handoff://schemas/multiple-choice/output.json", choiceOutputSchema),
	}
}

type choiceStep struct{}

func (s *choiceStep) ID() string { return StepMultipleChoice }

func (s *choiceStep) ResumeSchema() *validation.Schema {
	return choiceResumeCompiled
}

var choiceResumeCompiled = validation.MustCompile("handoff://schemas/multiple-choice/resume.json", choiceResumeSchema)

func (s *choiceStep) Execute(_ context.Context, ec engine.ExecContext) (engine.StepOutcome, error) {
	options := parseOptions(ec.Input)

	if !ec.Resuming() {
		return engine.Suspend(choicePrompt(ec.Input, options, "", "")), nil
	}

	selected, _ := ec.ResumeData["selectedOptionId"].(string)
	selected = strings.TrimSpace(selected)
	for _, opt := range options {
		if opt.ID == selected {
			return engine.Complete(map[string]any{
				"selectedOptionId":    opt.ID,
				"selectedOptionLabel": opt.Label,
				"submitted":           true,
			}), nil
		}
	}

	return engine.Suspend(choicePrompt(ec.Input, options, "invalid_option", invalidOptionPrompt)), nil
}

func choicePrompt(input map[string]any, options []Option, reason, message string) map[string]any {
	payload := map[string]any{
		"question": input["question"],
		"options":  optionMaps(options),
	}
	if chatID, ok := input["chatId"].(string); ok && chatID != "" {
		payload["chatId"] = chatID
	}
	if reason != "" {
		payload["reason"] = reason
		payload["message"] = message
	}
	return payload
}

// parseOptions reads the options array out of the run input. The input
// schema guarantees the shape, but the step tolerates a sparse one since
// payloads round-trip through JSON.
func parseOptions(input map[string]any) []Option {
	raw, _ := input["options"].([]any)
	options := make([]Option, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		id, _ := m["id"].(string)
		label, _ := m["label"].(string)
		if id == "" {
			continue
		}
		options = append(options, Option{ID: id, Label: label})
	}
	return options
}

func optionMaps(options []Option) []map[string]any {
	out := make([]map[string]any, len(options))
	for i, opt := range options {
		out[i] = map[string]any{"id": opt.ID, "label": opt.Label}
	}
	return out
}

// Register adds both concrete workflows to the registry.
func Register(r *engine.Registry) error {
	if err := r.Register(NewEmailWorkflow()); err != nil {
		return err
	}
	return r.Register(NewChoiceWorkflow())
}
