package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/corpwise/corpwise/internal/repository"
)

// CacheRepo implements repository.CacheRepository on Postgres
type CacheRepo struct {
	db *DB
}

// NewCacheRepo creates a new response cache repository
func NewCacheRepo(db *DB) *CacheRepo {
	return &CacheRepo{db: db}
}

// Get retrieves a cache entry by namespace and question hash
func (r *CacheRepo) Get(ctx context.Context, namespace, questionHash string) (*repository.CacheEntry, error) {
	query := `
		SELECT id, namespace, question_hash, question, answer, sources, confidence, hit_count, created_at
		FROM response_cache
		WHERE namespace = $1 AND question_hash = $2
	`
	var entry repository.CacheEntry
	err := r.db.Pool.QueryRow(ctx, query, namespace, questionHash).Scan(
		&entry.ID, &entry.Namespace, &entry.QuestionHash, &entry.Question,
		&entry.Answer, &entry.Sources, &entry.Confidence, &entry.HitCount,
		&entry.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}
	return &entry, nil
}

// Insert stores a new cache entry
func (r *CacheRepo) Insert(ctx context.Context, entry *repository.CacheEntry) error {
	query := `
		INSERT INTO response_cache (id, namespace, question_hash, question, answer, sources, confidence, hit_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (namespace, question_hash) DO NOTHING
	`
	_, err := r.db.Pool.Exec(ctx, query,
		entry.ID, entry.Namespace, entry.QuestionHash, entry.Question,
		entry.Answer, entry.Sources, entry.Confidence, entry.HitCount,
		entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert cache entry: %w", err)
	}
	return nil
}

// IncrementHit bumps the hit counter for an entry. Best-effort.
func (r *CacheRepo) IncrementHit(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE response_cache SET hit_count = hit_count + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to increment hit count: %w", err)
	}
	return nil
}

// Ensure CacheRepo implements the interface
var _ repository.CacheRepository = (*CacheRepo)(nil)
