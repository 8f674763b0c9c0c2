// Package retrieval implements the hybrid retrieval pipeline: semantic and
// keyword search, score fusion and diversification, conditional reranking,
// and confidence estimation.
package retrieval

import (
	"strings"

	"github.com/corpwise/corpwise/internal/tenant"
)

// Origin identifies which retriever produced a chunk.
type Origin string

const (
	// OriginSemantic marks chunks from the vector index
	OriginSemantic Origin = "semantic"
	// OriginKeyword marks chunks from the full-text index
	OriginKeyword Origin = "keyword"
)

// Chunk is a retrieved evidence unit. It is created per-request by a
// retriever, mutated in place as normalization, boost, and confidence fields
// are computed, and discarded at the end of the request.
type Chunk struct {
	Text    string
	Source  string
	Section string

	// DocID is set only for tenant-uploaded material.
	DocID string

	Origin Origin

	// Score is the raw retriever score (cosine similarity or ts_rank).
	Score float32

	// NormScore is the fused, weighted, boosted score in a shared scale.
	NormScore float32

	// CEScore is the raw cross-encoder relevance score, present only when
	// reranking ran.
	CEScore *float32

	// Confidence is the blended per-chunk confidence in [0,1].
	Confidence float32
}

// Uploaded reports whether the chunk comes from tenant-uploaded content.
func (c *Chunk) Uploaded() bool {
	return c.DocID != ""
}

// ceScoreOrZero returns the cross-encoder score, or zero when reranking did
// not run for this chunk.
func (c *Chunk) ceScoreOrZero() float32 {
	if c.CEScore == nil {
		return 0
	}
	return *c.CEScore
}

// Query is an immutable retrieval request.
type Query struct {
	RawText        string
	NormalizedText string
	Namespace      tenant.Namespace
	TopK           int

	// DisableRerank bypasses cross-encoder scoring for tenants that turn
	// the reranker off; the fused order stands.
	DisableRerank bool
}

// NewQuery builds a retrieval query. The normalized text is lower-cased,
// trimmed, and stripped of tenant-name tokens so a tenant's branding does
// not bias retrieval.
func NewQuery(raw string, ns tenant.Namespace, topK int) Query {
	return Query{
		RawText:        raw,
		NormalizedText: normalizeQueryText(raw, ns.Key),
		Namespace:      ns,
		TopK:           topK,
	}
}

func normalizeQueryText(raw, tenantKey string) string {
	text := strings.ToLower(strings.TrimSpace(raw))
	if tenantKey == "" || tenantKey == tenant.NoTenantNamespace {
		return text
	}

	fields := strings.Fields(text)
	kept := fields[:0]
	for _, f := range fields {
		if strings.Trim(f, ".,!?;:\"'") == tenantKey {
			continue
		}
		kept = append(kept, f)
	}
	return strings.Join(kept, " ")
}
