package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func ptr(f float32) *float32 { return &f }

func TestChunkConfidenceWithoutCE(t *testing.T) {
	e := NewEstimator(EstimatorConfig{})
	assert.InDelta(t, 0.8, e.ChunkConfidence(&Chunk{NormScore: 0.8}), 1e-6)
	// NormScore can exceed 1 after the uploaded boost; confidence clamps.
	assert.InDelta(t, 1.0, e.ChunkConfidence(&Chunk{NormScore: 2.1}), 1e-6)
}

func TestChunkConfidenceBlend(t *testing.T) {
	e := NewEstimator(EstimatorConfig{})

	// CE score of +10 normalizes to 1.0: 0.4*0.5 + 0.6*1.0 = 0.8
	c := &Chunk{NormScore: 0.5, CEScore: ptr(10)}
	assert.InDelta(t, 0.8, e.ChunkConfidence(c), 1e-6)

	// CE score of 0 normalizes to 0.5: 0.4*0.5 + 0.6*0.5 = 0.5
	c = &Chunk{NormScore: 0.5, CEScore: ptr(0)}
	assert.InDelta(t, 0.5, e.ChunkConfidence(c), 1e-6)

	// CE score of -10 normalizes to 0: pure retrieval contribution.
	c = &Chunk{NormScore: 1.0, CEScore: ptr(-10)}
	assert.InDelta(t, 0.4, e.ChunkConfidence(c), 1e-6)
}

func TestNormalizeCEClamps(t *testing.T) {
	assert.InDelta(t, 1.0, normalizeCE(15), 1e-6)
	assert.InDelta(t, 0.0, normalizeCE(-15), 1e-6)
	assert.InDelta(t, 0.675, normalizeCE(3.5), 1e-6)
}

func TestAggregateMaxOverSemantic(t *testing.T) {
	e := NewEstimator(EstimatorConfig{})

	chunks := []*Chunk{
		{Origin: OriginSemantic, Confidence: 0.5},
		{Origin: OriginSemantic, Confidence: 0.9},
		{Origin: OriginKeyword, Confidence: 0.99},
	}
	assert.InDelta(t, 0.9, e.Aggregate(chunks), 1e-6)
}

func TestAggregateKeywordOnlyIsZero(t *testing.T) {
	e := NewEstimator(EstimatorConfig{})
	chunks := []*Chunk{
		{Origin: OriginKeyword, Confidence: 0.95},
	}
	assert.Zero(t, e.Aggregate(chunks))
	assert.Zero(t, e.Aggregate(nil))
}

func TestLabelBuckets(t *testing.T) {
	e := NewEstimator(EstimatorConfig{})

	assert.Equal(t, ConfidenceHigh, e.Label(0.75))
	assert.Equal(t, ConfidenceHigh, e.Label(0.9))
	assert.Equal(t, ConfidenceMedium, e.Label(0.45))
	assert.Equal(t, ConfidenceMedium, e.Label(0.7449))
	assert.Equal(t, ConfidenceLow, e.Label(0.4499))
	assert.Equal(t, ConfidenceLow, e.Label(0))
}

func TestLabelMonotonic(t *testing.T) {
	e := NewEstimator(EstimatorConfig{})
	rank := map[ConfidenceLabel]int{ConfidenceLow: 0, ConfidenceMedium: 1, ConfidenceHigh: 2}

	prev := ConfidenceLow
	for s := float32(0); s <= 1.0; s += 0.01 {
		label := e.Label(s)
		assert.GreaterOrEqual(t, rank[label], rank[prev], "label regressed at %f", s)
		prev = label
	}
}
