// Package agent defines the LLM chat capability consumed by the chat
// endpoint and the tool dispatcher that routes tool invocations to the
// workflow bridge and the escalation orchestrator.
package agent

import (
	"context"

	"github.com/rendis/handoff/internal/retrieval"
)

// Message is a single entry in a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Standard role constants.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ToolSpec declares a tool the agent may call. Schema is JSON Schema
// properties in the shape LLM providers expect.
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Schema      map[string]any `json:"schema"`
}

// ToolCall is a single tool invocation requested by the agent.
type ToolCall struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

// FrameType tags a frame in the response stream.
type FrameType string

const (
	FrameText       FrameType = "text"
	FrameSources    FrameType = "sources"
	FrameToolCall   FrameType = "tool_call"
	FrameToolResult FrameType = "tool_result"
	FrameError      FrameType = "error"
	FrameDone       FrameType = "done"
)

// Frame is one chunk of a streamed agent response. Exactly one payload
// field is set, according to Type.
type Frame struct {
	Type       FrameType          `json:"type"`
	Text       string             `json:"text,omitempty"`
	Sources    []retrieval.Source `json:"sources,omitempty"`
	ToolCall   *ToolCall          `json:"toolCall,omitempty"`
	ToolResult map[string]any     `json:"toolResult,omitempty"`
	Error      string             `json:"error,omitempty"`
}

// ChatAgent accepts a message list and tool declarations and produces a
// streamed response. The returned channel is closed when the turn ends;
// implementations own the tool loop and emit tool_call/tool_result
// frames as they go.
type ChatAgent interface {
	StreamChat(ctx context.Context, messages []Message, tools []ToolSpec) (<-chan Frame, error)
}
