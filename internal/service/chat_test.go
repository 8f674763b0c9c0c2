package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corpwise/corpwise/internal/cache"
	"github.com/corpwise/corpwise/internal/config"
	"github.com/corpwise/corpwise/internal/llm"
	"github.com/corpwise/corpwise/internal/repository"
	"github.com/corpwise/corpwise/internal/retrieval"
	"github.com/corpwise/corpwise/internal/tenant"
	"github.com/corpwise/corpwise/internal/vectorstore"
)

type fakeTenantRepo struct {
	bySlug     map[string]*repository.Tenant
	queryCount map[string]int
}

func newFakeTenantRepo(tenants ...*repository.Tenant) *fakeTenantRepo {
	f := &fakeTenantRepo{
		bySlug:     make(map[string]*repository.Tenant),
		queryCount: make(map[string]int),
	}
	for _, t := range tenants {
		f.bySlug[t.Slug] = t
	}
	return f
}

func (f *fakeTenantRepo) Create(ctx context.Context, t *repository.Tenant) error {
	f.bySlug[t.Slug] = t
	return nil
}
func (f *fakeTenantRepo) GetByID(ctx context.Context, id uuid.UUID) (*repository.Tenant, error) {
	return nil, repository.ErrNotFound
}
func (f *fakeTenantRepo) GetBySlug(ctx context.Context, slug string) (*repository.Tenant, error) {
	if t, ok := f.bySlug[slug]; ok {
		return t, nil
	}
	return nil, repository.ErrNotFound
}
func (f *fakeTenantRepo) GetByAPIKey(ctx context.Context, apiKey string) (*repository.Tenant, error) {
	for _, t := range f.bySlug {
		if t.APIKey == apiKey {
			return t, nil
		}
	}
	return nil, repository.ErrNotFound
}
func (f *fakeTenantRepo) List(ctx context.Context, limit, offset int) ([]*repository.Tenant, int, error) {
	return nil, 0, nil
}
func (f *fakeTenantRepo) Update(ctx context.Context, t *repository.Tenant) error { return nil }
func (f *fakeTenantRepo) Delete(ctx context.Context, id uuid.UUID) error         { return nil }
func (f *fakeTenantRepo) IncrementQueryCount(ctx context.Context, slug string) error {
	f.queryCount[slug]++
	return nil
}

type fakeCacheRepo struct {
	entries map[string]*repository.CacheEntry
	hits    int
}

func newFakeCacheRepo() *fakeCacheRepo {
	return &fakeCacheRepo{entries: make(map[string]*repository.CacheEntry)}
}

func (f *fakeCacheRepo) Get(ctx context.Context, namespace, questionHash string) (*repository.CacheEntry, error) {
	if e, ok := f.entries[namespace+"/"+questionHash]; ok {
		return e, nil
	}
	return nil, repository.ErrNotFound
}
func (f *fakeCacheRepo) Insert(ctx context.Context, entry *repository.CacheEntry) error {
	k := entry.Namespace + "/" + entry.QuestionHash
	if _, ok := f.entries[k]; !ok {
		f.entries[k] = entry
	}
	return nil
}
func (f *fakeCacheRepo) IncrementHit(ctx context.Context, id uuid.UUID) error {
	f.hits++
	return nil
}

type fakeConversationRepo struct {
	turns     []repository.Message
	namespace string
	exchange  [3]string // question, answer, namespace
	hasPair   bool
}

func (f *fakeConversationRepo) AppendTurn(ctx context.Context, conversationID, namespace, userID, title string, user, assistant repository.Message) error {
	f.turns = append(f.turns, user, assistant)
	f.namespace = namespace
	f.exchange = [3]string{user.Content, assistant.Content, namespace}
	f.hasPair = true
	return nil
}
func (f *fakeConversationRepo) RecentMessages(ctx context.Context, conversationID string, limit int) ([]repository.Message, error) {
	return nil, nil
}
func (f *fakeConversationRepo) LastExchange(ctx context.Context, conversationID string) (string, string, string, error) {
	if !f.hasPair {
		return "", "", "", repository.ErrNotFound
	}
	return f.exchange[0], f.exchange[1], f.exchange[2], nil
}

type fakeNegativeRepo struct {
	entries []*repository.NegativeRetrieval
}

func (f *fakeNegativeRepo) Insert(ctx context.Context, entry *repository.NegativeRetrieval) error {
	f.entries = append(f.entries, entry)
	return nil
}

type fakeLLM struct {
	reply string
	err   error
	calls int
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string, opts llm.GenerateOptions) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

type fakeGateway struct{}

func (fakeGateway) Embed(ctx context.Context, text string, dimension int) ([]float32, error) {
	return make([]float32, dimension), nil
}

type fakeVectorStore struct {
	results map[string][]vectorstore.SearchResult
	err     error
}

func (f *fakeVectorStore) CreateCollection(ctx context.Context, c string, d int) error { return nil }
func (f *fakeVectorStore) DeleteCollection(ctx context.Context, c string) error        { return nil }
func (f *fakeVectorStore) CollectionExists(ctx context.Context, c string) (bool, error) {
	return true, nil
}
func (f *fakeVectorStore) Upsert(ctx context.Context, c string, p []vectorstore.Point) error {
	return nil
}
func (f *fakeVectorStore) Search(ctx context.Context, collection string, vector []float32, topK int) ([]vectorstore.SearchResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.results[collection], nil
}
func (f *fakeVectorStore) DeleteByDocID(ctx context.Context, c, d string) error { return nil }

type fakeCE struct {
	scores []float32
}

func (f *fakeCE) ScorePairs(ctx context.Context, query string, texts []string) ([]float32, error) {
	if len(f.scores) < len(texts) {
		return nil, errors.New("not enough scores")
	}
	return f.scores[:len(texts)], nil
}

type chatFixture struct {
	svc           *ChatService
	tenants       *fakeTenantRepo
	cacheRepo     *fakeCacheRepo
	cacheSvc      *cache.Service
	conversations *fakeConversationRepo
	negatives     *fakeNegativeRepo
	generator     *fakeLLM
}

func newChatFixture(t *testing.T, store *fakeVectorStore, generator *fakeLLM) *chatFixture {
	t.Helper()

	tenants := newFakeTenantRepo(&repository.Tenant{
		ID:   uuid.New(),
		Slug: "acme",
		Name: "Acme",
		Tier: tenant.TierStarter,
	})
	cacheRepo := newFakeCacheRepo()
	cacheSvc := cache.NewService(cacheRepo, nil)
	conversations := &fakeConversationRepo{}
	negatives := &fakeNegativeRepo{}

	resolver := tenant.NewResolver(tenants, nil)
	semantic := retrieval.NewSemanticRetriever(fakeGateway{}, store, 0.75, 0.60, nil)
	fuser := retrieval.NewFuser(retrieval.FuserConfig{}, nil)
	reranker := retrieval.NewConditionalReranker(&fakeCE{scores: []float32{8, 7, 6, 5, 4, 3}}, retrieval.RerankConfig{Timeout: time.Second}, nil)
	estimator := retrieval.NewEstimator(retrieval.EstimatorConfig{})
	pipeline := retrieval.NewPipeline(semantic, nil, fuser, reranker, estimator, nil)

	svc := NewChatService(resolver, pipeline, cacheSvc, generator,
		tenants, conversations, negatives, config.RetrievalConfig{}, nil)

	return &chatFixture{
		svc:           svc,
		tenants:       tenants,
		cacheRepo:     cacheRepo,
		cacheSvc:      cacheSvc,
		conversations: conversations,
		negatives:     negatives,
		generator:     generator,
	}
}

func emptyStore() *fakeVectorStore {
	return &fakeVectorStore{results: map[string][]vectorstore.SearchResult{}}
}

func acmeStore(results ...vectorstore.SearchResult) *fakeVectorStore {
	ns := tenant.Namespace{Key: "acme", Dimension: 384}
	return &fakeVectorStore{results: map[string][]vectorstore.SearchResult{
		ns.CollectionKey(): results,
	}}
}

func TestProcessChatEmptyQuestion(t *testing.T) {
	fx := newChatFixture(t, emptyStore(), &fakeLLM{reply: "unused"})

	answer := fx.svc.ProcessChat(context.Background(), ChatRequest{TenantID: "acme", Question: "   "})

	assert.Equal(t, msgInvalidQuestion, answer.Reply)
	assert.Empty(t, answer.Sources)
	assert.Equal(t, "low", answer.Confidence)
	assert.False(t, answer.Cached)
	assert.Zero(t, fx.generator.calls, "no generation for an empty question")
}

func TestProcessChatCacheHit(t *testing.T) {
	fx := newChatFixture(t, emptyStore(), &fakeLLM{reply: "unused"})
	ctx := context.Background()

	require.NoError(t, fx.cacheSvc.Store(ctx, "acme", "what is the refund policy",
		"30 days.", []string{"policy.md"}, "high"))

	answer := fx.svc.ProcessChat(ctx, ChatRequest{
		TenantID:       "acme",
		ConversationID: "c1",
		Question:       "What IS the refund policy",
	})

	assert.True(t, answer.Cached)
	assert.Equal(t, "30 days.", answer.Reply)
	assert.Equal(t, "high", answer.Confidence)
	assert.Equal(t, []string{"policy.md"}, answer.Sources)
	assert.Equal(t, 1, fx.cacheRepo.hits)
	assert.Zero(t, fx.generator.calls, "cache hit must not generate")
	assert.Empty(t, fx.conversations.turns, "cache hit skips persistence")
}

func TestProcessChatConversational(t *testing.T) {
	fx := newChatFixture(t, emptyStore(), &fakeLLM{reply: "Hello! Welcome to Acme."})

	answer := fx.svc.ProcessChat(context.Background(), ChatRequest{
		TenantID:       "acme",
		ConversationID: "c1",
		Question:       "hello there",
	})

	assert.Equal(t, "Hello! Welcome to Acme.", answer.Reply)
	assert.Equal(t, "high", answer.Confidence)
	assert.False(t, answer.Cached)
	assert.Equal(t, 1, fx.generator.calls)
}

func TestProcessChatEmptyRetrievalRefuses(t *testing.T) {
	fx := newChatFixture(t, emptyStore(), &fakeLLM{reply: "unused"})

	answer := fx.svc.ProcessChat(context.Background(), ChatRequest{
		TenantID:       "acme",
		ConversationID: "c1",
		Question:       "details about the acquisition timeline",
	})

	assert.Equal(t, msgRefusal, answer.Reply)
	assert.Equal(t, "low", answer.Confidence)
	assert.Empty(t, answer.Sources)
	assert.Zero(t, fx.generator.calls, "no generation without evidence")
	require.Len(t, fx.negatives.entries, 1)
	assert.Equal(t, "no_chunks", fx.negatives.entries[0].MissingReason)
}

func TestProcessChatHighConfidenceDoesNotWriteCache(t *testing.T) {
	store := acmeStore(vectorstore.SearchResult{
		Text:   "the refund window is thirty days from the purchase date for all retail customers",
		Source: "policy.md",
		Score:  0.95,
	})
	generated := "The refund window is thirty days from the purchase date for all retail customers under standard terms."
	fx := newChatFixture(t, store, &fakeLLM{reply: generated})

	answer := fx.svc.ProcessChat(context.Background(), ChatRequest{
		TenantID:       "acme",
		ConversationID: "c1",
		Question:       "what is the refund window for retail customers from the purchase date",
	})

	assert.Equal(t, "high", answer.Confidence)
	assert.Equal(t, generated, answer.Reply)
	assert.Empty(t, fx.cacheRepo.entries, "only feedback may write the cache")
}

func TestProcessChatPersistsTurnAndUsage(t *testing.T) {
	store := acmeStore(vectorstore.SearchResult{
		Text:   "the refund window is thirty days from the purchase date for all retail customers",
		Source: "policy.md",
		Score:  0.95,
	})
	fx := newChatFixture(t, store, &fakeLLM{reply: "Thirty days."})

	fx.svc.ProcessChat(context.Background(), ChatRequest{
		UserID:         "u1",
		TenantID:       "acme",
		ConversationID: "c1",
		Question:       "what is the refund window",
	})

	require.Len(t, fx.conversations.turns, 2)
	assert.Equal(t, "user", fx.conversations.turns[0].Role)
	assert.Equal(t, "assistant", fx.conversations.turns[1].Role)
	assert.Equal(t, "acme", fx.conversations.namespace)
	assert.Equal(t, 1, fx.tenants.queryCount["acme"])
}

func TestProcessChatRetrievalFailureIsApology(t *testing.T) {
	fx := newChatFixture(t, &fakeVectorStore{err: errors.New("qdrant down")}, &fakeLLM{reply: "unused"})

	answer := fx.svc.ProcessChat(context.Background(), ChatRequest{
		TenantID:       "acme",
		ConversationID: "c1",
		Question:       "what is the refund policy",
	})

	assert.Equal(t, msgUnavailable, answer.Reply)
	assert.Equal(t, "low", answer.Confidence)
	assert.Empty(t, answer.Sources)
}

func TestProcessChatRateLimitedGeneration(t *testing.T) {
	store := acmeStore(vectorstore.SearchResult{
		Text:   "the refund window is thirty days from the purchase date for all retail customers",
		Source: "policy.md",
		Score:  0.95,
	})
	fx := newChatFixture(t, store, &fakeLLM{err: llm.ErrRateLimited})

	answer := fx.svc.ProcessChat(context.Background(), ChatRequest{
		TenantID:       "acme",
		ConversationID: "c1",
		Question:       "what is the refund window",
	})

	assert.Equal(t, msgRateLimited, answer.Reply)
	assert.Equal(t, "low", answer.Confidence)
}

func TestFeedbackPromotesAnswerToCache(t *testing.T) {
	store := acmeStore(vectorstore.SearchResult{
		Text:   "the refund window is thirty days from the purchase date for all retail customers",
		Source: "policy.md",
		Score:  0.95,
	})
	generated := "The refund window is thirty days from the purchase date for all retail customers under standard terms."
	fx := newChatFixture(t, store, &fakeLLM{reply: generated})
	ctx := context.Background()

	question := "what is the refund window for retail customers from the purchase date"
	fx.svc.ProcessChat(ctx, ChatRequest{
		TenantID:       "acme",
		ConversationID: "c1",
		Question:       question,
	})
	require.Empty(t, fx.cacheRepo.entries)

	feedback := NewFeedbackService(fx.conversations, fx.cacheSvc, nil)
	require.NoError(t, feedback.Submit(ctx, FeedbackRequest{ConversationID: "c1", Helpful: true}))
	require.Len(t, fx.cacheRepo.entries, 1)

	// The next identical question is served from cache.
	answer := fx.svc.ProcessChat(ctx, ChatRequest{
		TenantID:       "acme",
		ConversationID: "c2",
		Question:       question,
	})
	assert.True(t, answer.Cached)
	assert.Equal(t, generated, answer.Reply)
}

func TestFeedbackNotHelpfulWritesNothing(t *testing.T) {
	fx := newChatFixture(t, emptyStore(), &fakeLLM{reply: "unused"})
	feedback := NewFeedbackService(fx.conversations, fx.cacheSvc, nil)

	fx.conversations.hasPair = true
	fx.conversations.exchange = [3]string{"q", "a", "acme"}

	require.NoError(t, feedback.Submit(context.Background(), FeedbackRequest{ConversationID: "c1", Helpful: false}))
	assert.Empty(t, fx.cacheRepo.entries)
}

func TestFeedbackWithoutExchange(t *testing.T) {
	fx := newChatFixture(t, emptyStore(), &fakeLLM{reply: "unused"})
	feedback := NewFeedbackService(fx.conversations, fx.cacheSvc, nil)

	err := feedback.Submit(context.Background(), FeedbackRequest{ConversationID: "missing", Helpful: true})
	assert.ErrorIs(t, err, ErrNoExchange)
}
