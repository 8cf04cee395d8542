// Package workflows defines the concrete human-in-the-loop workflows:
// email collection and multiple choice. Both are single-step and follow
// the same policy: missing and invalid resume input re-suspend with a
// clarifying reason, because the counterpart is a human who can retry.
package workflows

import (
	"context"
	"strings"

	"github.com/rendis/handoff/internal/engine"
	"github.com/rendis/handoff/internal/validation"
)

// Workflow and step identifiers, matched by the resume endpoint.
const (
	WorkflowEmail    = "collect-email"
	StepRequestEmail = "request-email-step"
)

// DefaultEmailPrompt is used when the caller supplies no message.
const DefaultEmailPrompt = "Please share your email address so a member of our team can follow up with you."

const invalidEmailPrompt = "That doesn't look like a valid email address. Please enter it in the form name@example.com."

const emailInputSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "message": { "type": "string" },
    "chatId": { "type": "string" }
  },
  "additionalProperties": false
}`

// Resume fields are typed but not required: a missing email is handled
// by re-suspending, not by a schema failure.
const emailResumeSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "email": { "type": "string" }
  }
}`

const emailOutputSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["email", "submitted"],
  "properties": {
    "email": { "type": "string", "minLength": 3 },
    "submitted": { "type": "boolean" }
  },
  "additionalProperties": false
}`

// NewEmailWorkflow builds the email-collection workflow definition.
func NewEmailWorkflow() *engine.Workflow {
	return &engine.Workflow{
		Name:         WorkflowEmail,
		Description:  "Collects a contact email address from the user.",
		Steps:        []engine.Step{&emailStep{}},
		InputSchema:  validation.MustCompile("handoff://schemas/collect-email/input.json", emailInputSchema),
		OutputSchema: validation.MustCompile("handoff://schemas/collect-email/output.json", emailOutputSchema),
	}
}

type emailStep struct{}

func (s *emailStep) ID() string { return StepRequestEmail }

func (s *emailStep) ResumeSchema() *validation.Schema {
	return emailResumeCompiled
}

var emailResumeCompiled = validation.MustCompile("handoff://schemas/collect-email/resume.json", emailResumeSchema)

func (s *emailStep) Execute(_ context.Context, ec engine.ExecContext) (engine.StepOutcome, error) {
	if !ec.Resuming() {
		return engine.Suspend(emailPrompt(ec.Input, promptMessage(ec.Input))), nil
	}

	email, _ := ec.ResumeData["email"].(string)
	email = strings.TrimSpace(email)
	if !ValidEmail(email) {
		payload := emailPrompt(ec.Input, invalidEmailPrompt)
		payload["reason"] = "invalid_email"
		return engine.Suspend(payload), nil
	}

	return engine.Complete(map[string]any{
		"email":     email,
		"submitted": true,
	}), nil
}

func promptMessage(input map[string]any) string {
	if msg, ok := input["message"].(string); ok && strings.TrimSpace(msg) != "" {
		return msg
	}
	return DefaultEmailPrompt
}

func emailPrompt(input map[string]any, message string) map[string]any {
	payload := map[string]any{"message": message}
	if chatID, ok := input["chatId"].(string); ok && chatID != "" {
		payload["chatId"] = chatID
	}
	return payload
}

// ValidEmail applies a permissive local@domain.tld shape: exactly one @,
// non-empty segments, and a dotted domain with a non-empty TLD.
func ValidEmail(s string) bool {
	if strings.Count(s, "@") != 1 {
		return false
	}
	local, domain, _ := strings.Cut(s, "@")
	if local == "" || domain == "" {
		return false
	}
	if strings.ContainsAny(s, " \t\n") {
		return false
	}
	dot := strings.LastIndex(domain, ".")
	if dot <= 0 || dot == len(domain)-1 {
		return false
	}
	return true
}
