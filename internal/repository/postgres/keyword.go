package postgres

import (
	"context"
	"fmt"

	"github.com/corpwise/corpwise/internal/repository"
)

// KeywordRepo implements repository.KeywordRepository using Postgres
// full-text search. Rows live in keyword_chunks with a precomputed tsvector
// column; every query filters on the namespace column, including the
// sentinel no-tenant partition.
type KeywordRepo struct {
	db *DB
}

// NewKeywordRepo creates a new keyword search repository
func NewKeywordRepo(db *DB) *KeywordRepo {
	return &KeywordRepo{db: db}
}

// Search returns lexical matches ranked by ts_rank within a namespace.
func (r *KeywordRepo) Search(ctx context.Context, namespace, query string, limit int) ([]repository.KeywordMatch, error) {
	if limit <= 0 {
		limit = 5
	}

	sql := `
		SELECT text, source, COALESCE(section, ''), COALESCE(doc_id, ''),
		       ts_rank(search_vector, websearch_to_tsquery('english', $2)) AS rank
		FROM keyword_chunks
		WHERE namespace = $1
		  AND search_vector @@ websearch_to_tsquery('english', $2)
		ORDER BY rank DESC
		LIMIT $3
	`
	rows, err := r.db.Pool.Query(ctx, sql, namespace, query, limit)
	if err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}
	defer rows.Close()

	var matches []repository.KeywordMatch
	for rows.Next() {
		var m repository.KeywordMatch
		if err := rows.Scan(&m.Text, &m.Source, &m.Section, &m.DocID, &m.Score); err != nil {
			return nil, fmt.Errorf("failed to scan keyword match: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("keyword search rows: %w", err)
	}

	return matches, nil
}

// Ensure KeywordRepo implements the interface
var _ repository.KeywordRepository = (*KeywordRepo)(nil)
