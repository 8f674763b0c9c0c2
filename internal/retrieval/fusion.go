package retrieval

import (
	"log/slog"
	"sort"
)

// Fuser merges semantic and keyword candidates into one ranked,
// source-diversified list.
type Fuser struct {
	semanticWeight float32
	keywordWeight  float32
	uploadedBoost  float32
	maxPerSource   int
	maxTotal       int
	logger         *slog.Logger
}

// FuserConfig holds fusion weights and diversification caps.
type FuserConfig struct {
	SemanticWeight float32
	KeywordWeight  float32
	UploadedBoost  float32
	MaxPerSource   int
	MaxTotal       int
}

// NewFuser creates a fusion engine. Zero config values fall back to the
// production defaults (0.6/0.4 weights, 5x boost, 1 per source, 6 total).
func NewFuser(cfg FuserConfig, logger *slog.Logger) *Fuser {
	if cfg.SemanticWeight <= 0 {
		cfg.SemanticWeight = 0.6
	}
	if cfg.KeywordWeight <= 0 {
		cfg.KeywordWeight = 0.4
	}
	if cfg.UploadedBoost <= 0 {
		cfg.UploadedBoost = 5.0
	}
	if cfg.MaxPerSource <= 0 {
		cfg.MaxPerSource = 1
	}
	if cfg.MaxTotal <= 0 {
		cfg.MaxTotal = 6
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fuser{
		semanticWeight: cfg.SemanticWeight,
		keywordWeight:  cfg.KeywordWeight,
		uploadedBoost:  cfg.UploadedBoost,
		maxPerSource:   cfg.MaxPerSource,
		maxTotal:       cfg.MaxTotal,
		logger:         logger,
	}
}

// normalizeScores maps scores into [0,1] by dividing by the batch maximum.
// An empty or all-zero batch normalizes to all zeros.
func normalizeScores(scores []float32) []float32 {
	if len(scores) == 0 {
		return nil
	}

	var max float32
	for _, s := range scores {
		if s > max {
			max = s
		}
	}

	normalized := make([]float32, len(scores))
	if max == 0 {
		return normalized
	}
	for i, s := range scores {
		normalized[i] = s / max
	}
	return normalized
}

// Fuse normalizes both batches independently, applies origin weights and the
// uploaded-document boost, and returns the union sorted descending by
// NormScore. The boost applies only to semantic-origin chunks so a single
// lexical hit can never overwhelm the ranking.
func (f *Fuser) Fuse(semantic, keyword []*Chunk) []*Chunk {
	semanticScores := make([]float32, len(semantic))
	for i, c := range semantic {
		semanticScores[i] = c.Score
	}
	keywordScores := make([]float32, len(keyword))
	for i, c := range keyword {
		keywordScores[i] = c.Score
	}

	for i, s := range normalizeScores(semanticScores) {
		c := semantic[i]
		c.NormScore = s * f.semanticWeight
		if c.Uploaded() {
			c.NormScore *= f.uploadedBoost
			f.logger.Debug("boosted uploaded chunk", "source", c.Source, "doc_id", c.DocID)
		}
	}
	for i, s := range normalizeScores(keywordScores) {
		keyword[i].NormScore = s * f.keywordWeight
	}

	ranked := make([]*Chunk, 0, len(semantic)+len(keyword))
	ranked = append(ranked, semantic...)
	ranked = append(ranked, keyword...)

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].NormScore > ranked[j].NormScore
	})

	return ranked
}

// Diversify walks the ranked list keeping at most maxPerSource chunks per
// distinct source and at most maxTotal chunks overall. This bounds context
// size and prevents one document from monopolizing the evidence set.
func (f *Fuser) Diversify(ranked []*Chunk) []*Chunk {
	seen := make(map[string]int)
	diversified := make([]*Chunk, 0, f.maxTotal)

	for _, c := range ranked {
		seen[c.Source]++
		if seen[c.Source] <= f.maxPerSource {
			diversified = append(diversified, c)
		}
		if len(diversified) >= f.maxTotal {
			break
		}
	}

	return diversified
}
