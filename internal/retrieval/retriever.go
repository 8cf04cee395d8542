// Package retrieval queries the vector search backend, normalizes its
// heterogeneous result shapes into a single document record, and formats
// the context block injected into agent requests. Retrieval is advisory:
// backend failures degrade to empty results, never to a failed turn.
package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rendis/handoff/pkg/schema"
)

// RawHit is one backend result before normalization. Source systems
// supply the document under either a fields or a metadata container.
type RawHit struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Fields   map[string]any `json:"fields,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// RerankSpec asks the backend for a cross-encoder rerank of the
// candidate set down to TopK.
type RerankSpec struct {
	Query string `json:"query"`
	TopK  int    `json:"topK"`
}

// Retriever is the search backend capability.
type Retriever interface {
	Search(ctx context.Context, namespace, query string, topK int, rerank *RerankSpec) ([]RawHit, error)
}

const defaultSearchTimeout = 15 * time.Second

// HTTPRetriever talks to a JSON search backend over HTTP.
type HTTPRetriever struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPRetriever creates a retriever against the given base URL. A
// missing URL is a configuration fault, reported eagerly rather than as
// a degraded empty result on every search.
func NewHTTPRetriever(baseURL, apiKey string, timeout time.Duration) (*HTTPRetriever, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, schema.NewError(schema.ErrCodeConfig,
			"missing retrieval backend URL: set HANDOFF_SEARCH_BASE_URL or search_base_url in settings.json")
	}
	if timeout <= 0 {
		timeout = defaultSearchTimeout
	}
	return &HTTPRetriever{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

type searchRequest struct {
	Namespace string      `json:"namespace"`
	Query     string      `json:"query"`
	TopK      int         `json:"topK"`
	Rerank    *RerankSpec `json:"rerank,omitempty"`
}

type searchResponse struct {
	Hits []RawHit `json:"hits"`
}

// Search posts a query to the backend. Errors carry the backend,
// namespace and a remediation hint; callers in the pipeline degrade
// rather than propagate them.
func (r *HTTPRetriever) Search(ctx context.Context, namespace, query string, topK int, rerank *RerankSpec) ([]RawHit, error) {
	body, err := json.Marshal(searchRequest{
		Namespace: namespace,
		Query:     query,
		TopK:      topK,
		Rerank:    rerank,
	})
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeBackend, "marshal search request").WithCause(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/v1/search", bytes.NewReader(body))
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeBackend, "build search request").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, r.backendError(namespace, "search request failed; check that the retrieval backend is reachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, r.backendError(namespace,
			fmt.Sprintf("search returned HTTP %d: %s", resp.StatusCode, string(snippet)), nil)
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, r.backendError(namespace, "decode search response; the backend may have changed its result format", err)
	}
	return parsed.Hits, nil
}

func (r *HTTPRetriever) backendError(namespace, message string, cause error) *schema.HandoffError {
	e := schema.NewError(schema.ErrCodeBackend, message).WithDetails(map[string]any{
		"backend":   r.baseURL,
		"namespace": namespace,
	})
	if cause != nil {
		e = e.WithCause(cause)
	}
	return e
}
