// Package mcp exposes the support agent's capabilities as MCP tools so
// external agents can escalate conversations, collect user input through
// suspendable workflows, and search the knowledge base over stdio.
package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/handoff/internal/bridge"
	"github.com/rendis/handoff/internal/engine"
	"github.com/rendis/handoff/internal/escalation"
	"github.com/rendis/handoff/internal/retrieval"
)

// HandoffServerDeps holds the dependencies for creating a HandoffServer.
type HandoffServerDeps struct {
	Engine    *engine.Engine
	Bridge    *bridge.Bridge
	Escalator *escalation.Orchestrator
	Pipeline  *retrieval.Pipeline
	Logger    *slog.Logger
}

// HandoffServer wraps an MCP server with support-handoff tool handlers.
type HandoffServer struct {
	engine    *engine.Engine
	bridge    *bridge.Bridge
	escalator *escalation.Orchestrator
	pipeline  *retrieval.Pipeline
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewHandoffServer creates a new HandoffServer with all 5 tools registered.
func NewHandoffServer(deps HandoffServerDeps) *HandoffServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &HandoffServer{
		engine:    deps.Engine,
		bridge:    deps.Bridge,
		escalator: deps.Escalator,
		pipeline:  deps.Pipeline,
		logger:    logger,
	}

	mcpSrv := server.NewMCPServer(
		"handoff",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Handoff is a conversational support engine with human-in-the-loop workflows. Use support.search to query the knowledge base, support.escalate to hand a conversation to a human, support.collect_email and support.multiple_choice to gather structured user input, and support.resume to continue a suspended workflow run with the collected data."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *HandoffServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *HandoffServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// tools returns the 5 registered MCP tools as ServerTool entries.
func (s *HandoffServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: escalateTool(), Handler: s.handleEscalate},
		{Tool: collectEmailTool(), Handler: s.handleCollectEmail},
		{Tool: multipleChoiceTool(), Handler: s.handleMultipleChoice},
		{Tool: resumeTool(), Handler: s.handleResume},
		{Tool: searchTool(), Handler: s.handleSearch},
	}
}

// --- Tool definitions ---

func escalateTool() mcp.Tool {
	return mcp.NewTool("support.escalate",
		mcp.WithDescription("Escalate the conversation to a human support agent"),
		mcp.WithString("reason", mcp.Required(),
			mcp.Enum("no_results", "low_confidence", "user_request", "sensitive", "emergency"),
			mcp.Description("Why the conversation needs a human"),
		),
		mcp.WithString("question", mcp.Required(), mcp.Description("The user question that triggered the escalation")),
		mcp.WithString("chat_id", mcp.Description("Conversation identifier for correlation")),
		mcp.WithNumber("search_results_count", mcp.Description("How many knowledge base results the triggering search returned")),
	)
}

func collectEmailTool() mcp.Tool {
	return mcp.NewTool("support.collect_email",
		mcp.WithDescription("Start an email-collection workflow; suspends until the user supplies an address"),
		mcp.WithString("message", mcp.Description("Prompt shown to the user when asking for the email")),
		mcp.WithString("chat_id", mcp.Description("Conversation identifier for correlation")),
	)
}

func multipleChoiceTool() mcp.Tool {
	return mcp.NewTool("support.multiple_choice",
		mcp.WithDescription("Ask the user a multiple-choice question; suspends until an option is selected"),
		mcp.WithString("question", mcp.Required(), mcp.Description("The question to present")),
		mcp.WithArray("options", mcp.Required(), mcp.Description("Choices as objects with id and label; at least two")),
		mcp.WithString("chat_id", mcp.Description("Conversation identifier for correlation")),
	)
}

func resumeTool() mcp.Tool {
	return mcp.NewTool("support.resume",
		mcp.WithDescription("Resume a suspended workflow run with collected user data"),
		mcp.WithString("workflow_run_id", mcp.Required(), mcp.Description("Run handle returned when the workflow suspended")),
		mcp.WithString("step", mcp.Required(),
			mcp.Enum("request-email-step", "multiple-choice-step"),
			mcp.Description("Step identifier the run is suspended at"),
		),
		mcp.WithObject("resume_data", mcp.Required(), mcp.Description("Data the suspended step asked for, e.g. {\"email\": ...} or {\"selectedOptionId\": ...}")),
	)
}

func searchTool() mcp.Tool {
	return mcp.NewTool("support.search",
		mcp.WithDescription("Search the support knowledge base"),
		mcp.WithString("query", mcp.Required(), mcp.Description("Free-text search query")),
		mcp.WithString("namespace", mcp.Description("Knowledge base namespace to search in")),
		mcp.WithNumber("top_k", mcp.Description("Number of documents to return (default 5)")),
	)
}
