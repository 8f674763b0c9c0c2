package retrieval

// ConfidenceLabel buckets the aggregate confidence for the chat response.
type ConfidenceLabel string

const (
	ConfidenceHigh   ConfidenceLabel = "high"
	ConfidenceMedium ConfidenceLabel = "medium"
	ConfidenceLow    ConfidenceLabel = "low"
)

// Estimator blends retrieval and cross-encoder signals into per-chunk and
// aggregate confidence scores on a [0,1] scale.
type Estimator struct {
	retrievalWeight float32
	ceWeight        float32
	high            float32
	medium          float32
}

// EstimatorConfig holds the blend weights and label cut points.
type EstimatorConfig struct {
	RetrievalWeight float32
	CEWeight        float32
	High            float32
	Medium          float32
}

func NewEstimator(cfg EstimatorConfig) *Estimator {
	if cfg.RetrievalWeight <= 0 {
		cfg.RetrievalWeight = 0.4
	}
	if cfg.CEWeight <= 0 {
		cfg.CEWeight = 0.6
	}
	if cfg.High <= 0 {
		cfg.High = 0.75
	}
	if cfg.Medium <= 0 {
		cfg.Medium = 0.45
	}
	return &Estimator{
		retrievalWeight: cfg.RetrievalWeight,
		ceWeight:        cfg.CEWeight,
		high:            cfg.High,
		medium:          cfg.Medium,
	}
}

// ChunkConfidence scores one chunk. Without a cross-encoder score the
// normalized retrieval score stands on its own.
func (e *Estimator) ChunkConfidence(c *Chunk) float32 {
	if c.CEScore == nil {
		return clamp01(c.NormScore)
	}
	ceNorm := normalizeCE(*c.CEScore)
	return clamp01(e.retrievalWeight*c.NormScore + e.ceWeight*ceNorm)
}

// Aggregate scores the whole evidence set as the maximum confidence among
// semantic chunks. Keyword-only evidence yields zero: the answer engine
// should not sound certain when the vector index found nothing.
func (e *Estimator) Aggregate(chunks []*Chunk) float32 {
	var best float32
	var any bool
	for _, c := range chunks {
		if c.Origin != OriginSemantic {
			continue
		}
		any = true
		if c.Confidence > best {
			best = c.Confidence
		}
	}
	if !any {
		return 0
	}
	return best
}

// Label maps an aggregate confidence to its bucket.
func (e *Estimator) Label(confidence float32) ConfidenceLabel {
	switch {
	case confidence >= e.high:
		return ConfidenceHigh
	case confidence >= e.medium:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// normalizeCE maps a raw ms-marco style score (roughly -10..+10) onto [0,1].
func normalizeCE(raw float32) float32 {
	return clamp01((raw + 10) / 20)
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
