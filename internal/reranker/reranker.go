// Package reranker provides pairwise (query, text) relevance scoring for
// retrieval candidates.
//
// Reranking evaluates query-document pairs together rather than
// independently, which improves precision when the top vector results have
// similar scores. It is the main latency-variable stage of the pipeline, so
// callers bound it with a timeout and fall back to the pre-rerank order.
//
// Scores are on the raw ms-marco cross-encoder scale (roughly -10..+10);
// implementations that score in [0,1] map onto this scale.
package reranker

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when the scoring backend cannot be reached.
var ErrUnavailable = errors.New("reranker unavailable")

// CrossEncoder scores the relevance of each text to the query.
type CrossEncoder interface {
	// ScorePairs returns one raw relevance score per text, in input order.
	ScorePairs(ctx context.Context, query string, texts []string) ([]float32, error)
}

// RawFromUnit maps a [0,1] relevance score onto the raw cross-encoder scale.
func RawFromUnit(score float32) float32 {
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score*20 - 10
}
