package server

import (
	"net/http"

	"github.com/rendis/handoff/internal/agent"
	"github.com/rendis/handoff/internal/logging"
	"github.com/rendis/handoff/internal/retrieval"
)

// chatRequest is the wire shape accepted by the chat endpoint. The
// optional data block carries side-channel retrieval parameters.
type chatRequest struct {
	Messages []agent.Message `json:"messages"`
	Data     *chatData       `json:"data,omitempty"`
}

type chatData struct {
	Namespace string `json:"namespace,omitempty"`
	TopK      int    `json:"topK,omitempty"`
	ChatID    string `json:"chatId,omitempty"`
}

// handleChat runs one conversation turn: retrieval augmentation on the
// latest user message, then the agent's streamed response multiplexed
// with the synthetic sources frame, encoded as Server-Sent Events.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeInto(r, &req); err != nil {
		writeHandoffError(w, err)
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	var namespace string
	topK := s.deps.DefaultTopK
	if topK <= 0 {
		topK = retrieval.DefaultTopK
	}
	if req.Data != nil {
		namespace = req.Data.Namespace
		if req.Data.TopK > 0 {
			topK = req.Data.TopK
		}
		if req.Data.ChatID != "" {
			ctx = logging.WithChatID(ctx, req.Data.ChatID)
		}
	}

	// Augmentation is best-effort: an empty query or a backend failure
	// yields an empty result and the turn proceeds unaugmented.
	query := latestUserMessage(req.Messages)
	augmented := s.deps.Pipeline.Augment(ctx, query, namespace, topK)

	messages := injectContext(req.Messages, augmented)

	frames, err := s.deps.Agent.StreamChat(ctx, messages, s.deps.Dispatcher.Specs())
	if err != nil {
		writeHandoffError(w, err)
		return
	}

	setSSEHeaders(w)

	// The handler owns the terminal frame: agent-emitted done frames are
	// swallowed so the client sees exactly one.
	out := agent.Multiplex(ctx, augmented, frames)
	for frame := range out {
		if frame.Type == agent.FrameDone {
			continue
		}
		writeSSEEvent(w, flusher, string(frame.Type), frame)
	}
	writeSSEEvent(w, flusher, string(agent.FrameDone), agent.Frame{Type: agent.FrameDone})
}

// latestUserMessage returns the content of the most recent user turn,
// which drives retrieval. Empty when the conversation has none.
func latestUserMessage(messages []agent.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == agent.RoleUser {
			return messages[i].Content
		}
	}
	return ""
}

// injectContext prepends the retrieved document context as a system
// message so the agent grounds its answer in it. The original message
// slice is never mutated.
func injectContext(messages []agent.Message, augmented *retrieval.AugmentResult) []agent.Message {
	if augmented == nil || !augmented.HasResults {
		return messages
	}
	out := make([]agent.Message, 0, len(messages)+1)
	out = append(out, agent.Message{
		Role: agent.RoleSystem,
		Content: "Use the following retrieved documents to answer the user's question. " +
			"If they do not contain the answer, say so and offer to escalate.\n\n" + augmented.Context,
	})
	out = append(out, messages...)
	return out
}
