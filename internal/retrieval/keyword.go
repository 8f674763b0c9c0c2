package retrieval

import (
	"context"
	"fmt"

	"github.com/corpwise/corpwise/internal/repository"
)

// KeywordRetriever queries the full-text index within a tenant namespace.
// It is independent of the embedding gateway and remains available as a
// fallback signal when vectors yield nothing.
type KeywordRetriever struct {
	repo  repository.KeywordRepository
	limit int
}

// NewKeywordRetriever creates a keyword retriever.
func NewKeywordRetriever(repo repository.KeywordRepository, limit int) *KeywordRetriever {
	if limit <= 0 {
		limit = 3
	}
	return &KeywordRetriever{repo: repo, limit: limit}
}

// Search returns lexical matches from the query's namespace.
func (r *KeywordRetriever) Search(ctx context.Context, q Query) ([]*Chunk, error) {
	matches, err := r.repo.Search(ctx, q.Namespace.Key, q.NormalizedText, r.limit)
	if err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}

	chunks := make([]*Chunk, 0, len(matches))
	for _, m := range matches {
		if m.Text == "" || m.Source == "" {
			continue
		}
		chunks = append(chunks, &Chunk{
			Text:    m.Text,
			Source:  m.Source,
			Section: m.Section,
			DocID:   m.DocID,
			Origin:  OriginKeyword,
			Score:   m.Score,
		})
	}

	return chunks, nil
}
