package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// Result is the output of a full retrieval pass for one question.
type Result struct {
	// Context is the assembled evidence text handed to the generator.
	Context string

	// Sources lists the distinct source names backing the evidence,
	// dominant source first when one exists.
	Sources []string

	// Chunks is the final evidence set in presentation order.
	Chunks []*Chunk

	// Confidence is the aggregate confidence over the evidence set.
	Confidence float32

	// Label is the confidence bucket for Confidence.
	Label ConfidenceLabel

	// CEUsed reports whether the cross encoder ordered the evidence.
	CEUsed bool
}

// Empty reports whether retrieval found no usable evidence.
func (r *Result) Empty() bool { return len(r.Chunks) == 0 }

// Pipeline runs the retrieval stages for one tenant question: semantic and
// keyword search in parallel, score fusion, source diversification,
// conditional reranking, and confidence estimation.
type Pipeline struct {
	semantic  *SemanticRetriever
	keyword   *KeywordRetriever
	fuser     *Fuser
	reranker  *ConditionalReranker
	estimator *Estimator
	logger    *slog.Logger
}

func NewPipeline(semantic *SemanticRetriever, keyword *KeywordRetriever, fuser *Fuser, reranker *ConditionalReranker, estimator *Estimator, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		semantic:  semantic,
		keyword:   keyword,
		fuser:     fuser,
		reranker:  reranker,
		estimator: estimator,
		logger:    logger,
	}
}

// Retrieve runs the full pipeline. An empty evidence set is a valid result,
// not an error; only infrastructure failures surface as errors.
func (p *Pipeline) Retrieve(ctx context.Context, query *Query) (*Result, error) {
	var (
		wg        sync.WaitGroup
		semChunks []*Chunk
		kwChunks  []*Chunk
		semErr    error
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		semChunks, semErr = p.semantic.Search(ctx, *query)
	}()

	if p.keyword != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			chunks, err := p.keyword.Search(ctx, *query)
			if err != nil {
				// Keyword search is best effort; semantic results carry
				// the answer without it.
				p.logger.Warn("keyword search failed", "namespace", query.Namespace.Key, "error", err)
				return
			}
			kwChunks = chunks
		}()
	}

	wg.Wait()
	if semErr != nil {
		return nil, fmt.Errorf("semantic search: %w", semErr)
	}

	if len(semChunks) == 0 && len(kwChunks) == 0 {
		return &Result{}, nil
	}

	ranked := p.fuser.Fuse(semChunks, kwChunks)
	diversified := p.fuser.Diversify(ranked)

	var outcome RerankOutcome
	if query.DisableRerank {
		outcome = p.reranker.PassThrough(diversified)
	} else {
		outcome = p.reranker.Rerank(ctx, query.NormalizedText, diversified, ranked)
	}
	if len(outcome.Chunks) == 0 {
		return &Result{}, nil
	}

	for _, c := range outcome.Chunks {
		c.Confidence = p.estimator.ChunkConfidence(c)
	}
	aggregate := p.estimator.Aggregate(outcome.Chunks)

	ordered := orderForContext(outcome.Chunks)

	result := &Result{
		Context:    buildContext(ordered),
		Sources:    collectSources(ordered),
		Chunks:     ordered,
		Confidence: aggregate,
		Label:      p.estimator.Label(aggregate),
		CEUsed:     outcome.CEUsed,
	}

	p.logger.Info("retrieval complete",
		"namespace", query.Namespace.Key,
		"chunks", len(result.Chunks),
		"confidence", result.Confidence,
		"label", result.Label,
		"ce_used", result.CEUsed,
	)
	return result, nil
}

// orderForContext sorts evidence so the strongest chunk leads the prompt:
// by cross-encoder score when present, otherwise by normalized score.
func orderForContext(chunks []*Chunk) []*Chunk {
	ordered := make([]*Chunk, len(chunks))
	copy(ordered, chunks)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.CEScore != nil || b.CEScore != nil {
			return a.ceScoreOrZero() > b.ceScoreOrZero()
		}
		return a.NormScore > b.NormScore
	})
	return ordered
}

func buildContext(chunks []*Chunk) string {
	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		text := compressChunk(c.Text)
		if text == "" {
			continue
		}
		if c.Section != "" {
			parts = append(parts, fmt.Sprintf("[%s] %s", c.Section, text))
		} else {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n")
}

// compressChunk collapses runs of whitespace so chunk boundaries and stray
// formatting from ingestion do not bloat the prompt.
func compressChunk(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// collectSources returns the distinct sources in evidence order. When one
// source backs at least 70% of the chunks it is listed alone; mixing a
// stray second source into the citation line misleads more than it informs.
func collectSources(chunks []*Chunk) []string {
	if len(chunks) == 0 {
		return nil
	}
	counts := make(map[string]int)
	order := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if c.Source == "" {
			continue
		}
		if _, ok := counts[c.Source]; !ok {
			order = append(order, c.Source)
		}
		counts[c.Source]++
	}
	if len(order) == 0 {
		return nil
	}
	for _, src := range order {
		if float32(counts[src])/float32(len(chunks)) >= 0.7 {
			return []string{src}
		}
	}
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	return order
}
