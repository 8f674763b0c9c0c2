package retrieval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCrossEncoder struct {
	scores []float32
	err    error
	calls  int
}

func (f *fakeCrossEncoder) ScorePairs(ctx context.Context, query string, texts []string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.scores[:len(texts)], nil
}

func newTestReranker(ce *fakeCrossEncoder) *ConditionalReranker {
	return NewConditionalReranker(ce, RerankConfig{Timeout: time.Second}, nil)
}

func TestRerankSkipHeuristicClearWinner(t *testing.T) {
	ce := &fakeCrossEncoder{scores: []float32{9, 8, 7}}
	r := newTestReranker(ce)

	candidates := []*Chunk{
		{Text: "top", NormScore: 0.9},
		{Text: "second", NormScore: 0.6},
		{Text: "third", NormScore: 0.5},
	}

	out := r.Rerank(context.Background(), "q", candidates, candidates)
	assert.False(t, out.CEUsed)
	assert.Equal(t, 0, ce.calls, "cross encoder must not run when the skip heuristic fires")
	require.Len(t, out.Chunks, 3)
	assert.Equal(t, "top", out.Chunks[0].Text)
}

func TestRerankSkipHeuristicSingleCandidate(t *testing.T) {
	ce := &fakeCrossEncoder{scores: []float32{9}}
	r := newTestReranker(ce)

	out := r.Rerank(context.Background(), "q", []*Chunk{{Text: "only", NormScore: 0.9}}, nil)
	assert.False(t, out.CEUsed)
	assert.Equal(t, 0, ce.calls)
	require.Len(t, out.Chunks, 1)
}

func TestRerankSkipHeuristicNarrowGapRuns(t *testing.T) {
	// Top score is high but the margin is under the gap threshold, so the
	// cross encoder decides.
	ce := &fakeCrossEncoder{scores: []float32{4, 8}}
	r := newTestReranker(ce)

	candidates := []*Chunk{
		{Text: "first", NormScore: 0.9},
		{Text: "second", NormScore: 0.8},
	}

	out := r.Rerank(context.Background(), "q", candidates, candidates)
	assert.True(t, out.CEUsed)
	assert.Equal(t, 1, ce.calls)
	require.NotEmpty(t, out.Chunks)
	assert.Equal(t, "second", out.Chunks[0].Text)
}

func TestRerankFailureFallsBackToFusedOrder(t *testing.T) {
	ce := &fakeCrossEncoder{err: errors.New("connection refused")}
	r := newTestReranker(ce)

	candidates := []*Chunk{
		{Text: "a", NormScore: 0.5},
		{Text: "b", NormScore: 0.4},
	}
	ranked := []*Chunk{
		{Text: "r1", NormScore: 0.5},
		{Text: "r2", NormScore: 0.45},
		{Text: "r3", NormScore: 0.4},
		{Text: "r4", NormScore: 0.3},
	}

	out := r.Rerank(context.Background(), "q", candidates, ranked)
	assert.False(t, out.CEUsed)
	require.Len(t, out.Chunks, 3)
	assert.Equal(t, "r1", out.Chunks[0].Text)
	assert.Equal(t, "r2", out.Chunks[1].Text)
}

func TestRerankWeakBestScoreFallsBack(t *testing.T) {
	// All CE scores below the acceptance minimum: treated as a failed pass.
	ce := &fakeCrossEncoder{scores: []float32{2.0, 1.0}}
	r := newTestReranker(ce)

	candidates := []*Chunk{
		{Text: "a", NormScore: 0.5},
		{Text: "b", NormScore: 0.4},
	}

	out := r.Rerank(context.Background(), "q", candidates, candidates)
	assert.False(t, out.CEUsed)
	require.Len(t, out.Chunks, 2)
	assert.Equal(t, "a", out.Chunks[0].Text)
}

func TestRerankFloorFiltering(t *testing.T) {
	ce := &fakeCrossEncoder{scores: []float32{5.0, -2.0, 4.0}}
	r := newTestReranker(ce)

	candidates := []*Chunk{
		{Text: "strong", NormScore: 0.5},
		{Text: "noise", NormScore: 0.45},
		{Text: "good", NormScore: 0.4},
	}

	out := r.Rerank(context.Background(), "q", candidates, candidates)
	assert.True(t, out.CEUsed)
	require.Len(t, out.Chunks, 2)
	assert.Equal(t, "strong", out.Chunks[0].Text)
	assert.Equal(t, "good", out.Chunks[1].Text)
}

func TestRerankAttachesScores(t *testing.T) {
	ce := &fakeCrossEncoder{scores: []float32{6.5, 4.0}}
	r := newTestReranker(ce)

	candidates := []*Chunk{
		{Text: "a", NormScore: 0.5},
		{Text: "b", NormScore: 0.4},
	}

	out := r.Rerank(context.Background(), "q", candidates, candidates)
	require.True(t, out.CEUsed)
	for _, c := range out.Chunks {
		require.NotNil(t, c.CEScore)
	}
	assert.InDelta(t, 6.5, float64(*out.Chunks[0].CEScore), 1e-6)
}

func TestRerankEmptyCandidates(t *testing.T) {
	r := newTestReranker(&fakeCrossEncoder{})
	out := r.Rerank(context.Background(), "q", nil, nil)
	assert.Empty(t, out.Chunks)
	assert.False(t, out.CEUsed)
}
