// Package server exposes the HTTP API: a streaming chat endpoint, the
// workflow resume endpoint, run queries, and live run event feeds.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"

	"github.com/rendis/handoff/internal/agent"
	"github.com/rendis/handoff/internal/engine"
	"github.com/rendis/handoff/internal/retrieval"
	"github.com/rendis/handoff/internal/streaming"
	"github.com/rendis/handoff/pkg/schema"
)

// Deps holds the dependencies for the API server.
type Deps struct {
	Engine     *engine.Engine
	Pipeline   *retrieval.Pipeline
	Agent      agent.ChatAgent
	Dispatcher *agent.ToolDispatcher
	Hub        streaming.EventHub
	Logger     *slog.Logger

	// DefaultTopK is the retrieval depth used when a chat request does
	// not name one. Zero means the pipeline default.
	DefaultTopK int
}

// Server serves the support agent HTTP API.
type Server struct {
	deps Deps
}

// New creates a Server.
func New(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &Server{deps: deps}
}

// Handler returns the HTTP handler for all API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("POST /api/workflows/resume", s.handleResume)
	mux.HandleFunc("GET /api/runs/{id}", s.handleGetRun)
	mux.HandleFunc("GET /api/workflows", s.handleListWorkflows)

	mux.HandleFunc("GET /sse/events", s.handleSSEGlobal)
	mux.HandleFunc("GET /sse/runs/{id}", s.handleSSERun)

	return mux
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.deps.Engine.GetRun(r.Context(), r.PathValue("id"))
	if err != nil {
		writeHandoffError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Engine.Registry().List())
}

// handleSSEGlobal streams all run events to the client via Server-Sent Events.
func (s *Server) handleSSEGlobal(w http.ResponseWriter, r *http.Request) {
	s.serveSSE(w, r, streaming.EventFilter{})
}

// handleSSERun streams events for a specific run.
func (s *Server) handleSSERun(w http.ResponseWriter, r *http.Request) {
	s.serveSSE(w, r, streaming.EventFilter{RunID: r.PathValue("id")})
}

// serveSSE is the common SSE implementation for run event feeds.
func (s *Server) serveSSE(w http.ResponseWriter, r *http.Request, filter streaming.EventFilter) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	setSSEHeaders(w)

	ch, cancel, err := s.deps.Hub.Subscribe(r.Context(), filter)
	if err != nil {
		s.deps.Logger.Error("SSE subscribe failed", "error", err)
		http.Error(w, "subscribe failed", http.StatusInternalServerError)
		return
	}
	defer cancel()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			writeSSEEvent(w, flusher, event.EventType, event)
		}
	}
}

func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

func writeSSEEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	_, _ = w.Write([]byte("event: " + eventType + "\ndata: " + string(data) + "\n\n"))
	flusher.Flush()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeHandoffError maps a structured error to its HTTP status. End
// users see the error message, never the cause chain.
func writeHandoffError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch schema.CodeOf(err) {
	case schema.ErrCodeValidation:
		status = http.StatusBadRequest
	case schema.ErrCodeNotFound:
		status = http.StatusNotFound
	case schema.ErrCodeState, schema.ErrCodeInvalidTransition, schema.ErrCodeConflict:
		status = http.StatusConflict
	case schema.ErrCodeBackend:
		status = http.StatusBadGateway
	}
	writeError(w, status, err.Error())
}
