package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/corpwise/corpwise/internal/repository"
)

// ConversationRepo implements repository.ConversationRepository
type ConversationRepo struct {
	db *DB
}

// NewConversationRepo creates a new conversation repository
func NewConversationRepo(db *DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

// AppendTurn creates the conversation on first use and appends the
// user/assistant pair. Messages are stored as a JSONB array so the append is
// a single upsert, mirroring the conversation log's write pattern.
func (r *ConversationRepo) AppendTurn(ctx context.Context, conversationID, namespace, userID, title string, user, assistant repository.Message) (err error) {
	turn, err := json.Marshal([]repository.Message{user, assistant})
	if err != nil {
		return fmt.Errorf("failed to marshal turn: %w", err)
	}

	query := `
		INSERT INTO conversations (conversation_id, namespace, user_id, title, messages, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (conversation_id) DO UPDATE
		SET messages = conversations.messages || EXCLUDED.messages,
		    updated_at = NOW()
	`
	_, err = r.db.Pool.Exec(ctx, query, conversationID, namespace, userID, title, turn)
	if err != nil {
		return fmt.Errorf("failed to append turn: %w", err)
	}
	return nil
}

// RecentMessages returns the last n messages of a conversation, oldest first.
// A missing conversation yields an empty history, not an error.
func (r *ConversationRepo) RecentMessages(ctx context.Context, conversationID string, limit int) ([]repository.Message, error) {
	var messagesJSON []byte
	err := r.db.Pool.QueryRow(ctx,
		`SELECT messages FROM conversations WHERE conversation_id = $1`,
		conversationID).Scan(&messagesJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	var messages []repository.Message
	if err := json.Unmarshal(messagesJSON, &messages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal messages: %w", err)
	}

	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return messages, nil
}

// LastExchange returns the most recent user question and assistant answer.
func (r *ConversationRepo) LastExchange(ctx context.Context, conversationID string) (string, string, string, error) {
	var messagesJSON []byte
	var namespace string
	err := r.db.Pool.QueryRow(ctx,
		`SELECT messages, namespace FROM conversations WHERE conversation_id = $1`,
		conversationID).Scan(&messagesJSON, &namespace)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", "", "", repository.ErrNotFound
		}
		return "", "", "", fmt.Errorf("failed to get conversation: %w", err)
	}

	var messages []repository.Message
	if err := json.Unmarshal(messagesJSON, &messages); err != nil {
		return "", "", "", fmt.Errorf("failed to unmarshal messages: %w", err)
	}

	if len(messages) < 2 {
		return "", "", "", repository.ErrNotFound
	}
	last := messages[len(messages)-1]
	prev := messages[len(messages)-2]
	if last.Role != "assistant" || prev.Role != "user" {
		return "", "", "", repository.ErrNotFound
	}
	return prev.Content, last.Content, namespace, nil
}

// Ensure ConversationRepo implements the interface
var _ repository.ConversationRepository = (*ConversationRepo)(nil)
