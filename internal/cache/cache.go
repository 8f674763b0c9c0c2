// Package cache implements the feedback-gated response cache: answers are
// written only when a user endorses them, and lookups return verbatim
// answers keyed by a normalized question hash.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/corpwise/corpwise/internal/repository"
)

// Service fronts the cache repository with normalization and write gating.
type Service struct {
	repo   repository.CacheRepository
	logger *slog.Logger
}

func NewService(repo repository.CacheRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// Normalize canonicalizes a question for hashing: lowercase, trimmed, with
// interior whitespace collapsed so trivial rephrasings share a cache key.
func Normalize(question string) string {
	return strings.Join(strings.Fields(strings.ToLower(question)), " ")
}

// Hash returns the hex-encoded sha256 of the normalized question.
func Hash(question string) string {
	sum := sha256.Sum256([]byte(Normalize(question)))
	return hex.EncodeToString(sum[:])
}

// stripTenantTokens drops question tokens that equal the namespace key, so
// "acme refund policy" and "refund policy" share a cache key within acme.
func stripTenantTokens(question, namespace string) string {
	ns := strings.ToLower(strings.TrimSpace(namespace))
	if ns == "" {
		return question
	}
	fields := strings.Fields(question)
	kept := fields[:0]
	for _, f := range fields {
		if strings.ToLower(f) != ns {
			kept = append(kept, f)
		}
	}
	if len(kept) == 0 {
		return question
	}
	return strings.Join(kept, " ")
}

// Lookup returns a cached answer for the question within the namespace, or
// nil on a miss. A hit bumps the entry's hit count; a failed bump does not
// fail the lookup.
func (s *Service) Lookup(ctx context.Context, namespace, question string) (*repository.CacheEntry, error) {
	hash := Hash(stripTenantTokens(question, namespace))
	entry, err := s.repo.Get(ctx, namespace, hash)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("cache lookup: %w", err)
	}

	if err := s.repo.IncrementHit(ctx, entry.ID); err != nil {
		s.logger.Warn("cache hit count update failed", "entry_id", entry.ID, "error", err)
	}
	s.logger.Info("cache hit", "namespace", namespace, "hits", entry.HitCount+1)
	return entry, nil
}

// Store writes an endorsed answer. Empty answers and degraded-mode apologies
// never enter the cache. Concurrent stores of the same question are
// first-writer-wins; the duplicate write is silently dropped.
func (s *Service) Store(ctx context.Context, namespace, question, answer string, sources []string, confidence string) error {
	if strings.TrimSpace(answer) == "" || strings.Contains(strings.ToLower(answer), "temporarily unable") {
		return nil
	}

	stripped := stripTenantTokens(question, namespace)
	entry := &repository.CacheEntry{
		ID:           uuid.New(),
		Namespace:    namespace,
		QuestionHash: Hash(stripped),
		Question:     Normalize(stripped),
		Answer:       answer,
		Sources:      sources,
		Confidence:   confidence,
		CreatedAt:    time.Now(),
	}
	if err := s.repo.Insert(ctx, entry); err != nil {
		return fmt.Errorf("cache store: %w", err)
	}
	s.logger.Info("cached answer", "namespace", namespace, "confidence", confidence)
	return nil
}
