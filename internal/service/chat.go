// Package service implements business logic for chat orchestration, answer
// feedback, and tenant management.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/corpwise/corpwise/internal/cache"
	"github.com/corpwise/corpwise/internal/config"
	"github.com/corpwise/corpwise/internal/intent"
	"github.com/corpwise/corpwise/internal/llm"
	"github.com/corpwise/corpwise/internal/repository"
	"github.com/corpwise/corpwise/internal/retrieval"
	"github.com/corpwise/corpwise/internal/tenant"
)

// Fixed user-facing answers for degraded or out-of-band outcomes.
const (
	msgInvalidQuestion = "Please ask a valid question."
	msgRefusal         = "I do not have sufficient internal information to answer this question."
	msgRateLimited     = "System is busy. Please try again in a minute."
	msgProcessFailed   = "I found some info but couldn't process it. Please check the sources."
	msgVerifySources   = "I found relevant documents but they might not fully answer your question. Please verify the sources below."
	msgUnavailable     = "I'm temporarily unable to access internal knowledge."
)

const historyLimit = 10

// ChatRequest is one question within a conversation.
type ChatRequest struct {
	UserID         string
	ConversationID string
	TenantID       string
	Question       string
}

// Answer is the orchestrator's reply to a chat request.
type Answer struct {
	Reply      string   `json:"reply"`
	Sources    []string `json:"sources"`
	Confidence string   `json:"confidence"`
	Cached     bool     `json:"cached"`
}

// ChatService orchestrates a chat turn: intent routing, cache lookup, the
// retrieval pipeline, generation, calibration, and persistence.
type ChatService struct {
	resolver      *tenant.Resolver
	pipeline      *retrieval.Pipeline
	cache         *cache.Service
	generator     llm.LLM
	tenants       repository.TenantRepository
	conversations repository.ConversationRepository
	negatives     repository.NegativeLogRepository

	generationFloor float32
	topK            int
	logger          *slog.Logger
	now             func() time.Time
}

// NewChatService wires the orchestrator. The negatives repository may be nil
// to disable retrieval-quality logging.
func NewChatService(
	resolver *tenant.Resolver,
	pipeline *retrieval.Pipeline,
	cacheSvc *cache.Service,
	generator llm.LLM,
	tenants repository.TenantRepository,
	conversations repository.ConversationRepository,
	negatives repository.NegativeLogRepository,
	retrievalCfg config.RetrievalConfig,
	logger *slog.Logger,
) *ChatService {
	if logger == nil {
		logger = slog.Default()
	}
	floor := retrievalCfg.GenerationFloor
	if floor <= 0 {
		floor = 0.4
	}
	topK := retrievalCfg.TopK
	if topK <= 0 {
		topK = 8
	}
	return &ChatService{
		resolver:        resolver,
		pipeline:        pipeline,
		cache:           cacheSvc,
		generator:       generator,
		tenants:         tenants,
		conversations:   conversations,
		negatives:       negatives,
		generationFloor: floor,
		topK:            topK,
		logger:          logger,
		now:             time.Now,
	}
}

// ProcessChat runs one chat turn. It never returns a transport error for
// pipeline failures; degraded outcomes become fixed low-confidence answers.
func (s *ChatService) ProcessChat(ctx context.Context, req ChatRequest) *Answer {
	if strings.TrimSpace(req.Question) == "" {
		return &Answer{Reply: msgInvalidQuestion, Sources: []string{}, Confidence: "low"}
	}

	ns := s.resolver.Resolve(ctx, req.TenantID)
	it := intent.Detect(req.Question)
	s.logger.Info("chat turn", "intent", it, "namespace", ns.Key, "conversation_id", req.ConversationID)

	tenantCfg := s.tenantConfig(ctx, ns)

	if intent.IsConversational(req.Question) {
		answer := s.directAnswer(ctx, req, ns, intent.Greeting, tenantCfg)
		s.persistTurn(ctx, req, ns, answer.Reply)
		return answer
	}

	if it != intent.SystemInfo {
		if entry, err := s.cache.Lookup(ctx, ns.Key, req.Question); err != nil {
			s.logger.Warn("cache lookup failed", "error", err)
		} else if entry != nil {
			return &Answer{
				Reply:      entry.Answer,
				Sources:    entry.Sources,
				Confidence: entry.Confidence,
				Cached:     true,
			}
		}
	}

	var answer *Answer
	switch it {
	case intent.SystemInfo, intent.Greeting, intent.DateTime:
		answer = s.directAnswer(ctx, req, ns, it, tenantCfg)
	default:
		answer = s.retrievalAnswer(ctx, req, ns, it, tenantCfg)
	}

	s.persistTurn(ctx, req, ns, answer.Reply)
	return answer
}

// directAnswer handles intents that never consult the knowledge base.
func (s *ChatService) directAnswer(ctx context.Context, req ChatRequest, ns tenant.Namespace, it intent.Intent, cfg repository.TenantConfig) *Answer {
	history := s.recentHistory(ctx, req.ConversationID)
	messages := append(history, repository.Message{Role: "user", Content: req.Question})

	prompt := buildPrompt(messages, directAnswerContext(it, s.now()), ns.Key)
	reply, err := s.generator.Generate(ctx, prompt, llm.GenerateOptions{Model: cfg.LLMModel})
	if err != nil {
		s.logger.Error("direct answer generation failed", "intent", it, "error", err)
		if errors.Is(err, llm.ErrRateLimited) {
			return &Answer{Reply: msgRateLimited, Sources: []string{}, Confidence: "low"}
		}
		return &Answer{Reply: msgUnavailable, Sources: []string{}, Confidence: "low"}
	}
	return &Answer{Reply: strings.TrimSpace(reply), Sources: []string{}, Confidence: "high"}
}

// retrievalAnswer runs the full RAG flow for fact, explanation, and general
// questions.
func (s *ChatService) retrievalAnswer(ctx context.Context, req ChatRequest, ns tenant.Namespace, it intent.Intent, cfg repository.TenantConfig) *Answer {
	topK := s.topK
	if cfg.TopK > 0 {
		topK = cfg.TopK
	}

	query := retrieval.NewQuery(req.Question, ns, topK)
	if cfg.RerankerEnabled != nil && !*cfg.RerankerEnabled {
		query.DisableRerank = true
	}
	result, err := s.pipeline.Retrieve(ctx, &query)
	if err != nil {
		s.logger.Error("retrieval failed", "namespace", ns.Key, "error", err)
		return &Answer{Reply: msgUnavailable, Sources: []string{}, Confidence: "low"}
	}

	chunks := result.Chunks
	chunks = filterChunksByQuery(chunks, req.Question)
	chunks = dominantChunks(chunks)

	domains := cfg.IntentDomains
	if len(domains) == 0 {
		domains = intent.DefaultDomains()
	}
	chunks = restrictChunksByIntent(chunks, it, domains)

	context, sources := rebuildContext(chunks)
	score := aggregateConfidence(chunks)
	label := confidenceLabel(score)

	history := s.recentHistory(ctx, req.ConversationID)
	messages := append(history, repository.Message{Role: "user", Content: req.Question})
	prompt := buildPrompt(messages, context, ns.Key)

	var answer *Answer
	if strings.TrimSpace(context) != "" && score >= s.generationFloor {
		answer = s.generateCalibrated(ctx, prompt, context, score, sources, cfg)
	} else if label == "low" {
		answer = &Answer{Reply: msgRefusal, Sources: []string{}, Confidence: "low"}
	} else {
		answer = &Answer{Reply: msgVerifySources, Sources: sources, Confidence: label}
	}

	if answer.Confidence != "high" {
		s.logNegative(ctx, ns, req.Question, answer.Confidence, score, result.CEUsed, chunks, answer.Sources)
	}
	return answer
}

func (s *ChatService) generateCalibrated(ctx context.Context, prompt, context string, score float32, sources []string, cfg repository.TenantConfig) *Answer {
	raw, err := s.generator.Generate(ctx, prompt, llm.GenerateOptions{Model: cfg.LLMModel})
	if err != nil {
		if errors.Is(err, llm.ErrRateLimited) {
			return &Answer{Reply: msgRateLimited, Sources: []string{}, Confidence: "low"}
		}
		s.logger.Error("generation failed", "error", err)
		return &Answer{Reply: msgProcessFailed, Sources: sources, Confidence: "low"}
	}

	cleaned := stripDisallowedPrefixes(strings.TrimSpace(raw))
	reply, label := calibrateAnswer(cleaned, context, score)
	return &Answer{Reply: reply, Sources: sources, Confidence: label}
}

// tenantConfig fetches the tenant's stored config; unknown tenants run on
// zero-value defaults.
func (s *ChatService) tenantConfig(ctx context.Context, ns tenant.Namespace) repository.TenantConfig {
	if !ns.IsTenant() {
		return repository.TenantConfig{}
	}
	t, err := s.tenants.GetBySlug(ctx, ns.Key)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("tenant config lookup failed", "namespace", ns.Key, "error", err)
		}
		return repository.TenantConfig{}
	}
	return t.Config
}

func (s *ChatService) recentHistory(ctx context.Context, conversationID string) []repository.Message {
	if conversationID == "" {
		return nil
	}
	history, err := s.conversations.RecentMessages(ctx, conversationID, historyLimit)
	if err != nil {
		s.logger.Warn("history fetch failed", "conversation_id", conversationID, "error", err)
		return nil
	}
	return history
}

// persistTurn appends the user question and assistant reply to the
// conversation and bumps tenant usage. Both are best effort; a storage
// failure never surfaces to the caller.
func (s *ChatService) persistTurn(ctx context.Context, req ChatRequest, ns tenant.Namespace, reply string) {
	if req.ConversationID == "" {
		return
	}
	now := s.now()
	err := s.conversations.AppendTurn(ctx, req.ConversationID, ns.Key, req.UserID,
		conversationTitle(req.Question),
		repository.Message{Role: "user", Content: req.Question, Timestamp: now},
		repository.Message{Role: "assistant", Content: reply, Timestamp: now},
	)
	if err != nil {
		s.logger.Error("conversation persist failed", "conversation_id", req.ConversationID, "error", err)
	}

	if ns.IsTenant() {
		if err := s.tenants.IncrementQueryCount(ctx, ns.Key); err != nil {
			s.logger.Warn("usage counter update failed", "namespace", ns.Key, "error", err)
		}
	}
}

func (s *ChatService) logNegative(ctx context.Context, ns tenant.Namespace, question, confidence string, score float32, ceUsed bool, chunks []*retrieval.Chunk, sources []string) {
	if s.negatives == nil {
		return
	}
	entry := &repository.NegativeRetrieval{
		Namespace:     ns.Key,
		Question:      question,
		Confidence:    confidence,
		AnswerScore:   score,
		CEUsed:        ceUsed,
		Sources:       sources,
		MissingReason: missingReason(score, len(chunks)),
		CreatedAt:     s.now(),
	}
	if len(chunks) > 0 && chunks[0].CEScore != nil {
		entry.TopCEScore = chunks[0].CEScore
	}
	if err := s.negatives.Insert(ctx, entry); err != nil {
		s.logger.Warn("negative retrieval log failed", "error", err)
	}
}

func missingReason(score float32, chunkCount int) string {
	switch {
	case chunkCount == 0:
		return "no_chunks"
	case score < 0.4:
		return "low_confidence"
	default:
		return "partial_match"
	}
}

// aggregateConfidence recomputes the answer-level confidence after the
// post-retrieval filters, as the maximum over the surviving semantic chunks.
func aggregateConfidence(chunks []*retrieval.Chunk) float32 {
	var best float32
	var any bool
	for _, c := range chunks {
		if c.Origin != retrieval.OriginSemantic {
			continue
		}
		any = true
		if c.Confidence > best {
			best = c.Confidence
		}
	}
	if !any {
		return 0
	}
	return best
}

func confidenceLabel(score float32) string {
	switch {
	case score >= 0.75:
		return "high"
	case score >= 0.45:
		return "medium"
	default:
		return "low"
	}
}

func conversationTitle(question string) string {
	if len(question) > 50 {
		return question[:50] + "..."
	}
	return question
}
