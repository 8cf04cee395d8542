package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// DefaultTopK is the number of documents kept after reranking.
const DefaultTopK = 5

// contextSeparator joins the per-document blocks of a context string.
const contextSeparator = "\n\n"

// AugmentResult is the pipeline output attached to an outbound agent
// request. IsNoMatch is always the negation of HasResults.
type AugmentResult struct {
	Context     string `json:"context"`
	Results     []Hit  `json:"results"`
	ResultCount int    `json:"resultCount"`
	HasResults  bool   `json:"hasResults"`
	IsNoMatch   bool   `json:"isNoMatch"`
}

// Pipeline performs retrieval augmentation for a chat turn.
type Pipeline struct {
	retriever Retriever
	logger    *slog.Logger
}

// NewPipeline creates a Pipeline.
func NewPipeline(r Retriever, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &Pipeline{retriever: r, logger: logger}
}

// Augment queries the backend for 2k candidates with a cross-encoder
// rerank down to k and normalizes the hits. An empty query
// short-circuits without touching the backend, and any backend failure
// degrades to an empty result set: augmentation is best-effort and must
// never fail the chat turn.
func (p *Pipeline) Augment(ctx context.Context, query, namespace string, k int) *AugmentResult {
	query = strings.TrimSpace(query)
	if query == "" {
		return emptyResult()
	}
	if k <= 0 {
		k = DefaultTopK
	}

	raw, err := p.retriever.Search(ctx, namespace, query, 2*k, &RerankSpec{Query: query, TopK: k})
	if err != nil {
		p.logger.WarnContext(ctx, "retrieval failed, continuing without augmentation",
			"namespace", namespace, "error", err)
		return emptyResult()
	}

	hits := NormalizeAll(raw)
	if len(hits) > k {
		hits = hits[:k]
	}
	if len(hits) == 0 {
		return emptyResult()
	}

	return &AugmentResult{
		Context:     FormatContext(hits),
		Results:     hits,
		ResultCount: len(hits),
		HasResults:  true,
		IsNoMatch:   false,
	}
}

func emptyResult() *AugmentResult {
	return &AugmentResult{
		Results:     []Hit{},
		ResultCount: 0,
		HasResults:  false,
		IsNoMatch:   true,
	}
}

// FormatContext renders the normalized hits as the textual context block
// handed to the agent.
func FormatContext(hits []Hit) string {
	blocks := make([]string, len(hits))
	for i, h := range hits {
		blocks[i] = fmt.Sprintf("[Document: %s, ID: %s, Score: %.4f]\n%s", h.Title, h.ID, h.Score, h.Content)
	}
	return strings.Join(blocks, contextSeparator)
}
