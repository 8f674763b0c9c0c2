package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/corpwise/corpwise/internal/auth"
	"github.com/corpwise/corpwise/internal/cache"
	"github.com/corpwise/corpwise/internal/config"
	"github.com/corpwise/corpwise/internal/embedder"
	"github.com/corpwise/corpwise/internal/llm"
	"github.com/corpwise/corpwise/internal/repository/postgres"
	"github.com/corpwise/corpwise/internal/reranker"
	"github.com/corpwise/corpwise/internal/retrieval"
	"github.com/corpwise/corpwise/internal/server"
	"github.com/corpwise/corpwise/internal/service"
	"github.com/corpwise/corpwise/internal/tenant"
	"github.com/corpwise/corpwise/internal/vectorstore"
)

func main() {
	logLevel := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("failed to run server", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	slog.Info("starting answer engine",
		"http_port", cfg.HTTPPort,
		"environment", cfg.Environment,
		"llm_provider", cfg.LLMProvider,
	)

	db, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()
	slog.Info("connected to PostgreSQL")

	tenantRepo := postgres.NewTenantRepo(db)
	cacheRepo := postgres.NewCacheRepo(db)
	conversationRepo := postgres.NewConversationRepo(db)
	keywordRepo := postgres.NewKeywordRepo(db)
	negativeRepo := postgres.NewNegativeLogRepo(db)

	vectorStore, err := vectorstore.NewQdrantStore(ctx, cfg.QdrantGRPCURL)
	if err != nil {
		return fmt.Errorf("failed to connect to Qdrant: %w", err)
	}
	defer vectorStore.Close()
	slog.Info("connected to Qdrant")

	// One embedder per subscription tier, fronted by the TTL cache.
	tierGateway := embedder.NewTierGateway(
		embedder.NewOllamaEmbedder(embedder.OllamaConfig{
			BaseURL:   cfg.OllamaEmbedURL,
			Model:     embedder.ModelForDimension[384],
			Dimension: 384,
		}),
		embedder.NewOllamaEmbedder(embedder.OllamaConfig{
			BaseURL:   cfg.OllamaEmbedURL,
			Model:     embedder.ModelForDimension[768],
			Dimension: 768,
		}),
		embedder.NewOllamaEmbedder(embedder.OllamaConfig{
			BaseURL:   cfg.OllamaEmbedURL,
			Model:     embedder.ModelForDimension[1024],
			Dimension: 1024,
		}),
	)
	embedGateway := embedder.NewCachingGateway(tierGateway, cfg.EmbedCacheEntries, cfg.EmbedCacheTTL)

	generator, closeGenerator, err := newGenerator(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeGenerator()

	var crossEncoder reranker.CrossEncoder
	if cfg.RerankerURL != "" {
		crossEncoder = reranker.NewHTTPCrossEncoder(cfg.RerankerURL)
		slog.Info("initialized HTTP cross encoder", "url", cfg.RerankerURL)
	} else {
		crossEncoder = reranker.NewLLMCrossEncoder(generator)
		slog.Info("initialized LLM-judged cross encoder")
	}

	resolver := tenant.NewResolver(tenantRepo, logger())
	semantic := retrieval.NewSemanticRetriever(embedGateway, vectorStore,
		cfg.Retrieval.MinSemanticScore, cfg.Retrieval.MinUploadedScore, logger())
	keyword := retrieval.NewKeywordRetriever(keywordRepo, cfg.Retrieval.KeywordLimit)
	fuser := retrieval.NewFuser(retrieval.FuserConfig{
		SemanticWeight: cfg.Retrieval.SemanticWeight,
		KeywordWeight:  cfg.Retrieval.KeywordWeight,
		UploadedBoost:  cfg.Retrieval.UploadedBoost,
		MaxPerSource:   cfg.Retrieval.MaxPerSource,
		MaxTotal:       cfg.Retrieval.MaxTotal,
	}, logger())
	conditional := retrieval.NewConditionalReranker(crossEncoder, retrieval.RerankConfig{
		SkipTopNorm:  cfg.Retrieval.SkipTopNorm,
		SkipGap:      cfg.Retrieval.SkipGap,
		MinCEScore:   cfg.Retrieval.MinCEScore,
		CEScoreFloor: cfg.Retrieval.CEScoreFloor,
		TopK:         cfg.Retrieval.RerankTopK,
		Timeout:      cfg.RerankerTimeout,
	}, logger())
	estimator := retrieval.NewEstimator(retrieval.EstimatorConfig{
		High:   cfg.Retrieval.HighConfidence,
		Medium: cfg.Retrieval.MediumConfidence,
	})
	pipeline := retrieval.NewPipeline(semantic, keyword, fuser, conditional, estimator, logger())

	cacheSvc := cache.NewService(cacheRepo, logger())
	chatSvc := service.NewChatService(resolver, pipeline, cacheSvc, generator,
		tenantRepo, conversationRepo, negativeRepo, cfg.Retrieval, logger())
	feedbackSvc := service.NewFeedbackService(conversationRepo, cacheSvc, logger())
	tenantSvc := service.NewTenantService(tenantRepo, vectorStore, logger())

	jwtManager := auth.NewJWTManager(&auth.JWTConfig{
		Secret: cfg.JWTSecret,
		Expiry: cfg.JWTExpiry,
		Issuer: "corpwise",
	})
	authMiddleware := auth.NewMiddleware(tenantRepo, jwtManager, cfg.AdminAPIKey)

	httpServer := server.NewHTTPServer(server.HTTPServerConfig{
		Port:           cfg.HTTPPort,
		Logger:         logger(),
		AllowedOrigins: []string{"*"},
		Auth:           authMiddleware,
		Chat:           chatSvc,
		Feedback:       feedbackSvc,
		Tenants:        tenantSvc,
		Ready:          db.Ping,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		slog.Info("received signal, shutting down", "signal", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	return httpServer.Shutdown(shutdownCtx)
}

// newGenerator selects the generation backend from config.
func newGenerator(ctx context.Context, cfg *config.Config) (llm.LLM, func(), error) {
	switch cfg.LLMProvider {
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			return nil, nil, fmt.Errorf("GEMINI_API_KEY is required when LLM_PROVIDER=gemini")
		}
		client, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey,
			llm.GeminiWithModel(cfg.GeminiModel),
			llm.GeminiWithQPS(cfg.GeminiQPS),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create gemini client: %w", err)
		}
		slog.Info("initialized Gemini LLM", "model", cfg.GeminiModel)
		return client, func() { _ = client.Close() }, nil
	case "ollama":
		client := llm.NewOllamaClient(
			llm.WithBaseURL(cfg.OllamaURL),
			llm.WithModel(cfg.OllamaLLMModel),
		)
		slog.Info("initialized Ollama LLM", "model", cfg.OllamaLLMModel)
		return client, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown LLM provider %q", cfg.LLMProvider)
	}
}

func logger() *slog.Logger {
	return slog.Default()
}
