package reranker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/corpwise/corpwise/internal/llm"
)

// LLMCrossEncoder uses an LLM to score query-document pairs. The model sees
// both query and document together, approximating a cross-encoder. Scores
// come back in [0,1] and are mapped onto the raw scale shared with the HTTP
// implementation.
type LLMCrossEncoder struct {
	llmClient llm.LLM
	model     string
}

// LLMOption is a functional option for configuring LLMCrossEncoder.
type LLMOption func(*LLMCrossEncoder)

// WithModel sets the model used for scoring.
func WithModel(model string) LLMOption {
	return func(r *LLMCrossEncoder) {
		r.model = model
	}
}

// NewLLMCrossEncoder creates a new LLM-backed pair scorer.
func NewLLMCrossEncoder(llmClient llm.LLM, opts ...LLMOption) *LLMCrossEncoder {
	r := &LLMCrossEncoder{llmClient: llmClient}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// relevanceScore represents the structured output from the LLM.
type relevanceScore struct {
	DocIndex int     `json:"doc_index"`
	Score    float32 `json:"score"`
	Reason   string  `json:"reason,omitempty"`
}

type scoresPayload struct {
	Scores []relevanceScore `json:"scores"`
}

// ScorePairs asks the LLM to score each text's relevance to the query.
func (r *LLMCrossEncoder) ScorePairs(ctx context.Context, query string, texts []string) ([]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	prompt := r.buildPrompt(query, texts)

	opts := llm.GenerateOptions{
		Model:       r.model,
		Temperature: 0.0, // Deterministic scoring
		MaxTokens:   1024,
	}

	response, err := r.llmClient.Generate(ctx, prompt, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	unit, err := parseScores(response, len(texts))
	if err != nil {
		return nil, fmt.Errorf("failed to parse scores: %w", err)
	}

	raw := make([]float32, len(unit))
	for i, s := range unit {
		raw[i] = RawFromUnit(s)
	}
	return raw, nil
}

func (r *LLMCrossEncoder) buildPrompt(query string, texts []string) string {
	var sb strings.Builder

	sb.WriteString("You are a relevance scoring system. Score each document's relevance to the query.\n\n")
	sb.WriteString("Query: ")
	sb.WriteString(query)
	sb.WriteString("\n\n")

	sb.WriteString("Documents to score:\n")
	for i, text := range texts {
		// Truncate content to avoid token limits
		if len(text) > 500 {
			text = text[:500] + "..."
		}
		sb.WriteString(fmt.Sprintf("[Doc %d]: %s\n\n", i, text))
	}

	sb.WriteString(`Score each document from 0.0 to 1.0 based on relevance to the query.
Output ONLY valid JSON in this exact format:
{"scores": [{"doc_index": 0, "score": 0.9}, {"doc_index": 1, "score": 0.3}, ...]}

Be strict: irrelevant documents should score below 0.3, somewhat relevant 0.3-0.7, highly relevant above 0.7.
Output only JSON, no explanation:`)

	return sb.String()
}

// parseScores extracts [0,1] scores from the LLM response, tolerating
// markdown code fences around the JSON.
func parseScores(response string, numTexts int) ([]float32, error) {
	response = strings.TrimSpace(response)

	if idx := strings.Index(response, "```json"); idx != -1 {
		start := idx + 7
		if end := strings.Index(response[start:], "```"); end != -1 {
			response = response[start : start+end]
		}
	} else if idx := strings.Index(response, "```"); idx != -1 {
		start := idx + 3
		if end := strings.Index(response[start:], "```"); end != -1 {
			response = response[start : start+end]
		}
	}

	response = strings.TrimSpace(response)

	var parsed scoresPayload
	if err := json.Unmarshal([]byte(response), &parsed); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	// Default score for entries the model skipped
	scores := make([]float32, numTexts)
	for i := range scores {
		scores[i] = 0.5
	}

	for _, s := range parsed.Scores {
		if s.DocIndex >= 0 && s.DocIndex < numTexts {
			score := s.Score
			if score < 0 {
				score = 0
			}
			if score > 1 {
				score = 1
			}
			scores[s.DocIndex] = score
		}
	}

	return scores, nil
}

// Ensure LLMCrossEncoder implements CrossEncoder.
var _ CrossEncoder = (*LLMCrossEncoder)(nil)
