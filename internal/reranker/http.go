package reranker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPCrossEncoder scores pairs against a cross-encoder scoring service
// (e.g. a hosted ms-marco-MiniLM model) over its JSON rerank endpoint.
type HTTPCrossEncoder struct {
	baseURL string
	client  *http.Client
}

// HTTPOption is a functional option for configuring HTTPCrossEncoder.
type HTTPOption func(*HTTPCrossEncoder)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(c *HTTPCrossEncoder) {
		c.client = client
	}
}

// NewHTTPCrossEncoder creates a client for a cross-encoder scoring service.
func NewHTTPCrossEncoder(baseURL string, opts ...HTTPOption) *HTTPCrossEncoder {
	c := &HTTPCrossEncoder{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type scoreRequest struct {
	Query string   `json:"query"`
	Texts []string `json:"texts"`
}

type scoreResponse struct {
	Scores []float32 `json:"scores"`
}

// ScorePairs posts (query, texts) to the scoring service and returns raw
// relevance scores in input order.
func (c *HTTPCrossEncoder) ScorePairs(ctx context.Context, query string, texts []string) ([]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(scoreRequest{Query: query, Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal score request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, string(respBody))
	}

	var result scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode score response: %w", err)
	}

	if len(result.Scores) != len(texts) {
		return nil, fmt.Errorf("score count mismatch: got %d, want %d", len(result.Scores), len(texts))
	}

	return result.Scores, nil
}

// Ensure HTTPCrossEncoder implements CrossEncoder.
var _ CrossEncoder = (*HTTPCrossEncoder)(nil)
