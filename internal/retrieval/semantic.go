package retrieval

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/corpwise/corpwise/internal/embedder"
	"github.com/corpwise/corpwise/internal/vectorstore"
)

// SemanticRetriever queries the vector index within a tenant namespace and
// applies per-origin score floors.
type SemanticRetriever struct {
	gateway embedder.Gateway
	store   vectorstore.VectorStore

	// minScore applies to baseline/system content; minUploadedScore to
	// tenant-uploaded content (doc_id present). Uploaded content is
	// intentionally easier to surface.
	minScore         float32
	minUploadedScore float32

	logger *slog.Logger
}

// NewSemanticRetriever creates a semantic retriever.
func NewSemanticRetriever(gateway embedder.Gateway, store vectorstore.VectorStore, minScore, minUploadedScore float32, logger *slog.Logger) *SemanticRetriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &SemanticRetriever{
		gateway:          gateway,
		store:            store,
		minScore:         minScore,
		minUploadedScore: minUploadedScore,
		logger:           logger,
	}
}

// Search embeds the query and returns above-floor candidates from the
// query's namespace. It never merges across namespaces.
func (r *SemanticRetriever) Search(ctx context.Context, q Query) ([]*Chunk, error) {
	vector, err := r.gateway.Embed(ctx, q.NormalizedText, q.Namespace.Dimension)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := r.store.Search(ctx, q.Namespace.CollectionKey(), vector, q.TopK)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	chunks := make([]*Chunk, 0, len(results))
	for _, res := range results {
		floor := r.minScore
		if res.DocID != "" {
			floor = r.minUploadedScore
		}
		if res.Score < floor {
			continue
		}
		if res.Text == "" || res.Source == "" {
			continue
		}

		chunks = append(chunks, &Chunk{
			Text:    res.Text,
			Source:  res.Source,
			Section: res.Section,
			DocID:   res.DocID,
			Origin:  OriginSemantic,
			Score:   res.Score,
		})
	}

	r.logger.Debug("semantic search",
		"namespace", q.Namespace.Key,
		"matches", len(results),
		"above_floor", len(chunks),
	)

	return chunks, nil
}
