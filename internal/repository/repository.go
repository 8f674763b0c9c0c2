// Package repository defines domain models and data access interfaces for
// tenants, the response cache, conversations, keyword search, and retrieval
// quality logs.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Tenant represents a tenant in the system. Slug is the external tenant
// identifier used in requests and as the namespace key.
type Tenant struct {
	ID        uuid.UUID
	Slug      string
	Name      string
	APIKey    string
	Tier      string
	Config    TenantConfig
	Usage     TenantUsage
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TenantConfig holds tenant-specific configuration
type TenantConfig struct {
	LLMModel     string `json:"llm_model"`
	SystemPrompt string `json:"system_prompt"`
	TopK         int    `json:"top_k"`
	// RerankerEnabled toggles cross-encoder reranking for the tenant.
	// Nil means the default (enabled).
	RerankerEnabled *bool `json:"reranker_enabled,omitempty"`
	// IntentDomains overrides the built-in per-intent source allow-lists.
	// Keys are intent names, values are source-name keywords.
	IntentDomains map[string][]string `json:"intent_domains,omitempty"`
}

// TenantUsage holds tenant usage statistics
type TenantUsage struct {
	QueriesThisMonth int64      `json:"queries_this_month"`
	LastQueryAt      *time.Time `json:"last_query_at,omitempty"`
}

// CacheEntry is a previously validated (question, answer) pair scoped to a
// namespace. AnswerText never changes after creation; only HitCount moves.
type CacheEntry struct {
	ID           uuid.UUID
	Namespace    string
	QuestionHash string
	Question     string
	Answer       string
	Sources      []string
	Confidence   string
	HitCount     int64
	CreatedAt    time.Time
}

// Message is a single turn in a conversation
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// KeywordMatch is a lexical full-text match from the keyword index
type KeywordMatch struct {
	Text    string
	Source  string
	Section string
	DocID   string
	Score   float32
}

// NegativeRetrieval records a low/medium-confidence outcome for
// retrieval-quality triage
type NegativeRetrieval struct {
	Namespace     string
	Question      string
	Confidence    string
	AnswerScore   float32
	CEUsed        bool
	TopCEScore    *float32
	Sources       []string
	MissingReason string
	CreatedAt     time.Time
}

// TenantRepository defines operations for tenant persistence
type TenantRepository interface {
	Create(ctx context.Context, tenant *Tenant) error
	GetByID(ctx context.Context, id uuid.UUID) (*Tenant, error)
	GetBySlug(ctx context.Context, slug string) (*Tenant, error)
	GetByAPIKey(ctx context.Context, apiKey string) (*Tenant, error)
	List(ctx context.Context, limit, offset int) ([]*Tenant, int, error)
	Update(ctx context.Context, tenant *Tenant) error
	Delete(ctx context.Context, id uuid.UUID) error

	// IncrementQueryCount bumps the monthly usage counter. Best-effort;
	// callers may ignore the error.
	IncrementQueryCount(ctx context.Context, slug string) error
}

// CacheRepository defines operations for the tenant-scoped response cache
type CacheRepository interface {
	Get(ctx context.Context, namespace, questionHash string) (*CacheEntry, error)
	Insert(ctx context.Context, entry *CacheEntry) error
	IncrementHit(ctx context.Context, id uuid.UUID) error
}

// ConversationRepository defines upsert-with-append conversation persistence
type ConversationRepository interface {
	// AppendTurn creates the conversation on first use and appends the
	// user/assistant pair on every call.
	AppendTurn(ctx context.Context, conversationID, namespace, userID, title string, user, assistant Message) error
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]Message, error)
	// LastExchange returns the most recent user question and assistant
	// answer, plus the conversation's namespace.
	LastExchange(ctx context.Context, conversationID string) (question, answer, namespace string, err error)
}

// KeywordRepository defines namespace-scoped lexical search
type KeywordRepository interface {
	Search(ctx context.Context, namespace, query string, limit int) ([]KeywordMatch, error)
}

// NegativeLogRepository records weak retrieval outcomes
type NegativeLogRepository interface {
	Insert(ctx context.Context, entry *NegativeRetrieval) error
}
