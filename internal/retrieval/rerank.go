package retrieval

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/corpwise/corpwise/internal/reranker"
)

// RerankOutcome is the explicit result of the conditional rerank stage.
type RerankOutcome struct {
	// Chunks is the final evidence set, at most topK entries.
	Chunks []*Chunk

	// CEUsed reports whether cross-encoder scores determined the order.
	CEUsed bool
}

// ConditionalReranker decides whether a cross-encoder pass is worth its
// latency and falls back to the fused order when scoring fails, times out,
// or produces nothing acceptable.
type ConditionalReranker struct {
	ce      reranker.CrossEncoder
	timeout time.Duration

	skipTopNorm  float32
	skipGap      float32
	minCEScore   float32
	ceScoreFloor float32
	topK         int

	logger *slog.Logger
}

// RerankConfig holds the skip-heuristic and acceptance thresholds.
type RerankConfig struct {
	SkipTopNorm  float32
	SkipGap      float32
	MinCEScore   float32
	CEScoreFloor float32
	TopK         int
	Timeout      time.Duration
}

// NewConditionalReranker creates the conditional rerank stage. A nil cross
// encoder disables reranking entirely (every call takes the skip path).
func NewConditionalReranker(ce reranker.CrossEncoder, cfg RerankConfig, logger *slog.Logger) *ConditionalReranker {
	if cfg.SkipTopNorm <= 0 {
		cfg.SkipTopNorm = 0.85
	}
	if cfg.SkipGap <= 0 {
		cfg.SkipGap = 0.15
	}
	if cfg.MinCEScore == 0 {
		cfg.MinCEScore = 3.5
	}
	if cfg.CEScoreFloor == 0 {
		cfg.CEScoreFloor = 0.3
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ConditionalReranker{
		ce:           ce,
		timeout:      cfg.Timeout,
		skipTopNorm:  cfg.SkipTopNorm,
		skipGap:      cfg.SkipGap,
		minCEScore:   cfg.MinCEScore,
		ceScoreFloor: cfg.CEScoreFloor,
		topK:         cfg.TopK,
		logger:       logger,
	}
}

// Rerank applies the skip heuristic to the diversified candidates and, when
// it does not fire, scores every candidate pairwise against the query.
// ranked is the full fused order used as the fallback when reranking fails.
func (r *ConditionalReranker) Rerank(ctx context.Context, query string, candidates, ranked []*Chunk) RerankOutcome {
	if len(candidates) == 0 {
		return RerankOutcome{}
	}

	if r.shouldSkip(candidates) || r.ce == nil {
		return RerankOutcome{Chunks: topN(candidates, r.topK), CEUsed: false}
	}

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Text
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	scores, err := r.ce.ScorePairs(ctx, query, texts)
	latency := time.Since(start)
	if err != nil || len(scores) != len(candidates) {
		// Scoring failed or timed out; the fused order stands.
		r.logger.Warn("rerank failed, falling back to fused order",
			"error", err, "latency_ms", latency.Milliseconds())
		return RerankOutcome{Chunks: topN(ranked, r.topK), CEUsed: false}
	}

	for i, c := range candidates {
		score := scores[i]
		c.CEScore = &score
	}

	reranked := make([]*Chunk, len(candidates))
	copy(reranked, candidates)
	sort.SliceStable(reranked, func(i, j int) bool {
		return reranked[i].ceScoreOrZero() > reranked[j].ceScoreOrZero()
	})

	r.logger.Debug("rerank complete",
		"latency_ms", latency.Milliseconds(),
		"top_ce", reranked[0].ceScoreOrZero(),
	)

	// A weak best score means the cross encoder found nothing relevant;
	// treat the pass as failed.
	if reranked[0].ceScoreOrZero() < r.minCEScore {
		return RerankOutcome{Chunks: topN(ranked, r.topK), CEUsed: false}
	}

	kept := make([]*Chunk, 0, len(reranked))
	for _, c := range reranked {
		if c.ceScoreOrZero() >= r.ceScoreFloor {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		// The best chunk cleared MinCEScore, so keep it as a last resort.
		kept = reranked[:1]
	}

	return RerankOutcome{Chunks: topN(kept, r.topK), CEUsed: true}
}

// PassThrough returns the candidates in fused order without scoring, for
// tenants that have reranking turned off.
func (r *ConditionalReranker) PassThrough(candidates []*Chunk) RerankOutcome {
	if len(candidates) == 0 {
		return RerankOutcome{}
	}
	return RerankOutcome{Chunks: topN(candidates, r.topK), CEUsed: false}
}

// shouldSkip fires when the top candidate is decisively ahead: a high
// normalized score and either no competition or a wide margin.
func (r *ConditionalReranker) shouldSkip(candidates []*Chunk) bool {
	if len(candidates) == 0 || candidates[0].NormScore < r.skipTopNorm {
		return false
	}
	if len(candidates) == 1 {
		return true
	}
	return candidates[0].NormScore-candidates[1].NormScore >= r.skipGap
}

func topN(chunks []*Chunk, n int) []*Chunk {
	if len(chunks) > n {
		return chunks[:n]
	}
	return chunks
}
