package postgres

import (
	"context"
	"fmt"

	"github.com/corpwise/corpwise/internal/repository"
)

// NegativeLogRepo implements repository.NegativeLogRepository
type NegativeLogRepo struct {
	db *DB
}

// NewNegativeLogRepo creates a new negative retrieval log repository
func NewNegativeLogRepo(db *DB) *NegativeLogRepo {
	return &NegativeLogRepo{db: db}
}

// Insert records a weak retrieval outcome
func (r *NegativeLogRepo) Insert(ctx context.Context, entry *repository.NegativeRetrieval) error {
	query := `
		INSERT INTO negative_retrieval_logs
			(namespace, question, confidence, answer_conf_score, ce_used, top_ce_score, sources, missing_reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.Pool.Exec(ctx, query,
		entry.Namespace, entry.Question, entry.Confidence, entry.AnswerScore, entry.CEUsed,
		entry.TopCEScore, entry.Sources, entry.MissingReason, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert negative retrieval log: %w", err)
	}
	return nil
}

// Ensure NegativeLogRepo implements the interface
var _ repository.NegativeLogRepository = (*NegativeLogRepo)(nil)
