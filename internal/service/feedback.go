package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/corpwise/corpwise/internal/cache"
	"github.com/corpwise/corpwise/internal/repository"
)

// ErrNoExchange is returned when a conversation has no completed
// question/answer pair to endorse.
var ErrNoExchange = errors.New("conversation has no answered exchange")

// FeedbackRequest records a user's verdict on the latest answer in a
// conversation.
type FeedbackRequest struct {
	ConversationID string
	Helpful        bool
	Comment        string
}

// FeedbackService turns positive feedback into response-cache writes. It is
// the only path that populates the cache.
type FeedbackService struct {
	conversations repository.ConversationRepository
	cache         *cache.Service
	logger        *slog.Logger
}

func NewFeedbackService(conversations repository.ConversationRepository, cacheSvc *cache.Service, logger *slog.Logger) *FeedbackService {
	if logger == nil {
		logger = slog.Default()
	}
	return &FeedbackService{conversations: conversations, cache: cacheSvc, logger: logger}
}

// Submit processes one feedback event. Negative feedback is acknowledged
// and logged; positive feedback promotes the conversation's last exchange
// into the response cache under its namespace.
func (s *FeedbackService) Submit(ctx context.Context, req FeedbackRequest) error {
	if req.ConversationID == "" {
		return errors.New("conversation_id is required")
	}

	if !req.Helpful {
		s.logger.Info("negative feedback received",
			"conversation_id", req.ConversationID, "comment", req.Comment)
		return nil
	}

	question, answer, namespace, err := s.conversations.LastExchange(ctx, req.ConversationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNoExchange
		}
		return fmt.Errorf("load last exchange: %w", err)
	}
	if strings.TrimSpace(question) == "" || strings.TrimSpace(answer) == "" {
		return ErrNoExchange
	}

	if err := s.cache.Store(ctx, namespace, question, answer, nil, "high"); err != nil {
		return fmt.Errorf("promote answer to cache: %w", err)
	}
	s.logger.Info("answer endorsed", "conversation_id", req.ConversationID, "namespace", namespace)
	return nil
}
