package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/handoff/internal/agent"
	"github.com/rendis/handoff/internal/bridge"
	"github.com/rendis/handoff/internal/engine"
	"github.com/rendis/handoff/internal/escalation"
	"github.com/rendis/handoff/internal/retrieval"
	"github.com/rendis/handoff/internal/store"
	"github.com/rendis/handoff/internal/streaming"
	"github.com/rendis/handoff/internal/workflows"
	"github.com/rendis/handoff/pkg/schema"
)

// scriptedAgent emits a fixed frame sequence, ignoring its input.
type scriptedAgent struct {
	frames []agent.Frame
}

func (a *scriptedAgent) StreamChat(ctx context.Context, _ []agent.Message, _ []agent.ToolSpec) (<-chan agent.Frame, error) {
	out := make(chan agent.Frame)
	go func() {
		defer close(out)
		for _, f := range a.frames {
			select {
			case out <- f:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// stubRetriever returns n canned hits.
type stubRetriever struct{ n int }

func (s *stubRetriever) Search(_ context.Context, _, _ string, _ int, _ *retrieval.RerankSpec) ([]retrieval.RawHit, error) {
	hits := make([]retrieval.RawHit, s.n)
	for i := range hits {
		hits[i] = retrieval.RawHit{
			ID:     fmt.Sprintf("doc-%d", i),
			Score:  0.9,
			Fields: map[string]any{"title": "Doc", "text": "body"},
		}
	}
	return hits, nil
}

type testEnv struct {
	handler http.Handler
	engine  *engine.Engine
	bridge  *bridge.Bridge
}

func newTestServer(t *testing.T, frames []agent.Frame, hits int) *testEnv {
	t.Helper()

	registry := engine.NewRegistry()
	require.NoError(t, workflows.Register(registry))
	hub := streaming.NewMemoryHub()
	eng := engine.NewEngine(store.NewMemoryStore(), registry, hub, nil)
	br := bridge.New(eng, nil)
	pipeline := retrieval.NewPipeline(&stubRetriever{n: hits}, nil)

	srv := New(Deps{
		Engine:     eng,
		Pipeline:   pipeline,
		Agent:      &scriptedAgent{frames: frames},
		Dispatcher: agent.NewToolDispatcher(br, escalation.New(br, nil, nil), nil),
		Hub:        hub,
		Logger:     nil,
	})
	return &testEnv{handler: srv.Handler(), engine: eng, bridge: br}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) suspendEmailRun(t *testing.T) string {
	t.Helper()
	result, err := e.bridge.StartWorkflow(context.Background(), workflows.WorkflowEmail, map[string]any{})
	require.NoError(t, err)
	require.True(t, result.Suspended)
	return result.WorkflowRunID
}

func TestResumeEndpoint_CompletesEmailRun(t *testing.T) {
	env := newTestServer(t, nil, 0)
	runID := env.suspendEmailRun(t)

	rec := env.do(t, "POST", "/api/workflows/resume", fmt.Sprintf(
		`{"workflowRunId":%q,"step":"request-email-step","resumeData":{"email":"jane@example.com"}}`, runID))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp schema.ResumeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, schema.RunStatusCompleted, resp.Status)
	assert.False(t, resp.Suspended)
	assert.Equal(t, "jane@example.com", resp.Output["email"])
	assert.Empty(t, resp.EscalationID)
}

func TestResumeEndpoint_EscalationContextYieldsID(t *testing.T) {
	env := newTestServer(t, nil, 0)
	runID := env.suspendEmailRun(t)

	rec := env.do(t, "POST", "/api/workflows/resume", fmt.Sprintf(
		`{"workflowRunId":%q,"step":"request-email-step","resumeData":{"email":"jane@example.com"},
		  "escalationContext":{"reason":"no_results","question":"how do I export?"}}`, runID))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp schema.ResumeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, schema.RunStatusCompleted, resp.Status)
	assert.NotEmpty(t, resp.EscalationID)
}

func TestResumeEndpoint_ResuspendsOnInvalidEmail(t *testing.T) {
	env := newTestServer(t, nil, 0)
	runID := env.suspendEmailRun(t)

	rec := env.do(t, "POST", "/api/workflows/resume", fmt.Sprintf(
		`{"workflowRunId":%q,"step":"request-email-step","resumeData":{"email":"not-an-email"},
		  "escalationContext":{"reason":"no_results","question":"q"}}`, runID))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp schema.ResumeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, schema.RunStatusSuspended, resp.Status)
	assert.True(t, resp.Suspended)
	assert.Equal(t, []string{workflows.StepRequestEmail}, resp.SuspendedSteps)
	// No handoff until the run actually completes.
	assert.Empty(t, resp.EscalationID)
}

func TestResumeEndpoint_WrappedBody(t *testing.T) {
	env := newTestServer(t, nil, 0)
	runID := env.suspendEmailRun(t)

	rec := env.do(t, "POST", "/api/workflows/resume", fmt.Sprintf(
		`{"body":{"workflowRunId":%q,"step":"request-email-step","resumeData":{"email":"a@b.co"}}}`, runID))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp schema.ResumeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, schema.RunStatusCompleted, resp.Status)
}

func TestResumeEndpoint_UnknownStep(t *testing.T) {
	env := newTestServer(t, nil, 0)

	rec := env.do(t, "POST", "/api/workflows/resume",
		`{"workflowRunId":"run-1","step":"mystery-step","resumeData":{}}`)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestResumeEndpoint_MissingFields(t *testing.T) {
	env := newTestServer(t, nil, 0)

	rec := env.do(t, "POST", "/api/workflows/resume", `{"step":"request-email-step","resumeData":{}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, "POST", "/api/workflows/resume", `{"workflowRunId":"run-1","resumeData":{}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResumeEndpoint_NotSuspendedConflicts(t *testing.T) {
	env := newTestServer(t, nil, 0)
	runID := env.suspendEmailRun(t)

	body := fmt.Sprintf(`{"workflowRunId":%q,"step":"request-email-step","resumeData":{"email":"a@b.co"}}`, runID)
	rec := env.do(t, "POST", "/api/workflows/resume", body)
	require.Equal(t, http.StatusOK, rec.Code)

	// Second resume hits a completed run.
	rec = env.do(t, "POST", "/api/workflows/resume", body)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetRunEndpoint(t *testing.T) {
	env := newTestServer(t, nil, 0)
	runID := env.suspendEmailRun(t)

	rec := env.do(t, "GET", "/api/runs/"+runID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var run store.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, runID, run.ID)
	assert.Equal(t, schema.RunStatusSuspended, run.Status)

	rec = env.do(t, "GET", "/api/runs/unknown", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListWorkflowsEndpoint(t *testing.T) {
	env := newTestServer(t, nil, 0)

	rec := env.do(t, "GET", "/api/workflows", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var infos []engine.WorkflowInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &infos))
	require.Len(t, infos, 2)
	assert.Equal(t, workflows.WorkflowEmail, infos[0].Name)
	assert.Equal(t, workflows.WorkflowChoice, infos[1].Name)
}

// parseSSE splits a raw SSE body into (event, data) pairs.
func parseSSE(t *testing.T, body string) [][2]string {
	t.Helper()
	var events [][2]string
	for _, block := range strings.Split(strings.TrimSpace(body), "\n\n") {
		var event, data string
		for _, line := range strings.Split(block, "\n") {
			if rest, ok := strings.CutPrefix(line, "event: "); ok {
				event = rest
			}
			if rest, ok := strings.CutPrefix(line, "data: "); ok {
				data = rest
			}
		}
		events = append(events, [2]string{event, data})
	}
	return events
}

func TestChatEndpoint_SourcesFrameFirst(t *testing.T) {
	env := newTestServer(t, []agent.Frame{
		{Type: agent.FrameText, Text: "You can cancel"},
		{Type: agent.FrameText, Text: " from settings."},
	}, 2)

	rec := env.do(t, "POST", "/api/chat",
		`{"messages":[{"role":"user","content":"how do I cancel?"}],"data":{"namespace":"help"}}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	events := parseSSE(t, rec.Body.String())
	require.GreaterOrEqual(t, len(events), 4)
	assert.Equal(t, "sources", events[0][0])
	assert.Equal(t, "text", events[1][0])
	assert.Equal(t, "text", events[2][0])
	assert.Equal(t, "done", events[len(events)-1][0])

	var sourcesFrame agent.Frame
	require.NoError(t, json.Unmarshal([]byte(events[0][1]), &sourcesFrame))
	assert.Len(t, sourcesFrame.Sources, 2)
}

func TestChatEndpoint_NoResultsSkipsSourcesFrame(t *testing.T) {
	env := newTestServer(t, []agent.Frame{
		{Type: agent.FrameText, Text: "hi"},
	}, 0)

	rec := env.do(t, "POST", "/api/chat", `{"messages":[{"role":"user","content":"hello"}]}`)

	require.Equal(t, http.StatusOK, rec.Code)
	events := parseSSE(t, rec.Body.String())
	require.Len(t, events, 2)
	assert.Equal(t, "text", events[0][0])
	assert.Equal(t, "done", events[1][0])
}

func TestChatEndpoint_EmptyMessagesRejected(t *testing.T) {
	env := newTestServer(t, nil, 0)

	rec := env.do(t, "POST", "/api/chat", `{"messages":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
