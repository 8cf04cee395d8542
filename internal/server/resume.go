package server

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/rendis/handoff/internal/logging"
	"github.com/rendis/handoff/pkg/schema"
)

// handleResume continues a suspended run with caller-supplied data. The
// request names the step, not the workflow: the step identifier is
// resolved back to its owning workflow before the run is resumed.
func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	var req schema.ResumeRequest
	if err := decodeInto(r, &req); err != nil {
		writeHandoffError(w, err)
		return
	}

	req.WorkflowRunID = strings.TrimSpace(req.WorkflowRunID)
	if req.WorkflowRunID == "" {
		writeError(w, http.StatusBadRequest, "workflowRunId is required")
		return
	}
	if req.Step == "" {
		writeError(w, http.StatusBadRequest, "step is required")
		return
	}

	ctx := logging.WithRunID(r.Context(), req.WorkflowRunID)

	wf, err := s.deps.Engine.Registry().ByStepID(req.Step)
	if err != nil {
		writeHandoffError(w, err)
		return
	}

	result, err := s.deps.Engine.Resume(ctx, req.WorkflowRunID, req.Step, req.ResumeData)
	if err != nil {
		writeHandoffError(w, err)
		return
	}

	resp := schema.ResumeResponse{
		Status:         result.Status,
		Output:         result.Result,
		Suspended:      result.Status == schema.RunStatusSuspended,
		SuspendedSteps: result.Suspended,
	}

	// A completed resume with an escalation context means a human handoff
	// is ready to be persisted: merge the collected email into the context
	// and hand the record off under a fresh escalation ID.
	if result.Status == schema.RunStatusCompleted && req.EscalationContext != nil {
		esc := *req.EscalationContext
		if email, ok := result.Result["email"].(string); ok && esc.Email == "" {
			esc.Email = email
		}
		resp.EscalationID = uuid.New().String()
		s.deps.Logger.InfoContext(ctx, "escalation handoff ready",
			"escalation_id", resp.EscalationID,
			"workflow", wf.Name,
			"reason", esc.Reason,
			"has_email", esc.Email != "")
	}

	writeJSON(w, http.StatusOK, resp)
}
