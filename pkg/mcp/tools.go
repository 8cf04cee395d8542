package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/rendis/handoff/internal/escalation"
	"github.com/rendis/handoff/internal/retrieval"
	"github.com/rendis/handoff/internal/workflows"
	"github.com/rendis/handoff/pkg/schema"
)

// handleEscalate routes the conversation to a human.
func (s *HandoffServer) handleEscalate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	reason, err := req.RequireString("reason")
	if err != nil {
		return mcp.NewToolResultError("reason is required"), nil
	}
	question, err := req.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError("question is required"), nil
	}

	escReq := escalation.Request{
		Reason:   schema.EscalationReason(reason),
		Question: question,
		ChatID:   req.GetString("chat_id", ""),
	}
	if count := req.GetInt("search_results_count", -1); count >= 0 {
		escReq.SearchResultsCount = &count
	}

	result, escErr := s.escalator.Escalate(ctx, escReq)
	if escErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("escalation failed: %v", escErr)), nil
	}

	return marshalResult(result.AsMap())
}

// handleCollectEmail starts the email-collection workflow; the returned
// run ID is the handle for the follow-up support.resume call.
func (s *HandoffServer) handleCollectEmail(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input := map[string]any{}
	if message := req.GetString("message", ""); message != "" {
		input["message"] = message
	}
	if chatID := req.GetString("chat_id", ""); chatID != "" {
		input["chatId"] = chatID
	}

	result, err := s.bridge.StartWorkflow(ctx, workflows.WorkflowEmail, input)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to start email collection: %v", err)), nil
	}

	return marshalResult(result.AsMap())
}

// handleMultipleChoice starts the multiple-choice workflow.
func (s *HandoffServer) handleMultipleChoice(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := req.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError("question is required"), nil
	}

	args := req.GetArguments()
	options, ok := args["options"].([]any)
	if !ok || len(options) < 2 {
		return mcp.NewToolResultError("options must be an array with at least two entries"), nil
	}

	input := map[string]any{
		"question": question,
		"options":  options,
	}
	if chatID := req.GetString("chat_id", ""); chatID != "" {
		input["chatId"] = chatID
	}

	result, startErr := s.bridge.StartWorkflow(ctx, workflows.WorkflowChoice, input)
	if startErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to start multiple choice: %v", startErr)), nil
	}

	return marshalResult(result.AsMap())
}

// handleResume continues a suspended run with the collected data. The
// step may re-suspend when the data does not satisfy it, in which case
// the result carries a fresh suspend payload to present to the user.
func (s *HandoffServer) handleResume(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID, err := req.RequireString("workflow_run_id")
	if err != nil {
		return mcp.NewToolResultError("workflow_run_id is required"), nil
	}
	step, err := req.RequireString("step")
	if err != nil {
		return mcp.NewToolResultError("step is required"), nil
	}
	resumeData := mcp.ParseStringMap(req, "resume_data", nil)
	if resumeData == nil {
		return mcp.NewToolResultError("resume_data is required"), nil
	}

	if _, lookupErr := s.engine.Registry().ByStepID(step); lookupErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("unknown step: %v", lookupErr)), nil
	}

	result, resumeErr := s.engine.Resume(ctx, runID, step, resumeData)
	if resumeErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("resume failed: %v", resumeErr)), nil
	}

	return marshalResult(map[string]any{
		"workflowRunId":  result.RunID,
		"status":         result.Status,
		"suspended":      result.Status == schema.RunStatusSuspended,
		"suspendedSteps": result.Suspended,
		"suspendPayload": result.SuspendPayload,
		"output":         result.Result,
	})
}

// handleSearch queries the knowledge base. Search is best-effort like
// the chat pipeline: backend failures yield an empty result set rather
// than a tool error.
func (s *HandoffServer) handleSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("query is required"), nil
	}
	namespace := req.GetString("namespace", "")
	topK := req.GetInt("top_k", retrieval.DefaultTopK)

	result := s.pipeline.Augment(ctx, query, namespace, topK)

	sources := make([]retrieval.Source, len(result.Results))
	for i, hit := range result.Results {
		sources[i] = hit.AsSource()
	}

	return marshalResult(map[string]any{
		"resultCount": result.ResultCount,
		"hasResults":  result.HasResults,
		"isNoMatch":   result.IsNoMatch,
		"context":     result.Context,
		"sources":     sources,
	})
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
