package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/corpwise/corpwise/internal/repository"
	"github.com/corpwise/corpwise/internal/tenant"
	"github.com/corpwise/corpwise/internal/vectorstore"
)

// ErrInvalidTenant marks a tenant request rejected by validation.
var ErrInvalidTenant = errors.New("invalid tenant")

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,62}$`)

// CreateTenantRequest specifies a new tenant.
type CreateTenantRequest struct {
	Slug   string
	Name   string
	Tier   string
	Config *repository.TenantConfig
}

// TenantService manages tenant lifecycle: metadata, API keys, and the
// per-tenant vector collection sized to the subscription tier.
type TenantService struct {
	repo        repository.TenantRepository
	vectorStore vectorstore.VectorStore
	logger      *slog.Logger
}

func NewTenantService(repo repository.TenantRepository, vectorStore vectorstore.VectorStore, logger *slog.Logger) *TenantService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TenantService{repo: repo, vectorStore: vectorStore, logger: logger}
}

// Create provisions a tenant: validates the slug and tier, issues an API
// key, persists the record, and creates the tier-dimensioned vector
// collection. Collection creation is best effort; it can be retried on
// first ingestion.
func (s *TenantService) Create(ctx context.Context, req CreateTenantRequest) (*repository.Tenant, error) {
	slug := tenant.Canonicalize(req.Slug)
	if slug == tenant.NoTenantNamespace || !slugPattern.MatchString(slug) {
		return nil, fmt.Errorf("%w: slug %q", ErrInvalidTenant, req.Slug)
	}
	if req.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidTenant)
	}

	tier := strings.ToLower(req.Tier)
	if tier == "" {
		tier = tenant.TierStarter
	}
	switch tier {
	case tenant.TierStarter, tenant.TierProfessional, tenant.TierEnterprise:
	default:
		return nil, fmt.Errorf("%w: unknown tier %q", ErrInvalidTenant, req.Tier)
	}

	apiKey, err := generateAPIKey()
	if err != nil {
		return nil, fmt.Errorf("generate api key: %w", err)
	}

	cfg := buildTenantConfig(req.Config)

	now := time.Now()
	t := &repository.Tenant{
		ID:        uuid.New(),
		Slug:      slug,
		Name:      req.Name,
		APIKey:    apiKey,
		Tier:      tier,
		Config:    cfg,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("create tenant: %w", err)
	}

	ns := tenant.Namespace{Key: slug, Dimension: tenant.TierDimension(tier)}
	if err := s.vectorStore.CreateCollection(ctx, ns.CollectionKey(), ns.Dimension); err != nil {
		s.logger.Error("vector collection creation failed",
			"tenant", slug, "collection", ns.CollectionKey(), "error", err)
	}

	s.logger.Info("tenant created", "tenant", slug, "tier", tier, "dimension", ns.Dimension)
	return t, nil
}

// Get returns a tenant by slug.
func (s *TenantService) Get(ctx context.Context, slug string) (*repository.Tenant, error) {
	return s.repo.GetBySlug(ctx, tenant.Canonicalize(slug))
}

// List pages through tenants.
func (s *TenantService) List(ctx context.Context, limit, offset int) ([]*repository.Tenant, int, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return s.repo.List(ctx, limit, offset)
}

// UpdateConfig merges non-zero fields of the patch into the tenant config.
func (s *TenantService) UpdateConfig(ctx context.Context, slug string, patch repository.TenantConfig) (*repository.Tenant, error) {
	t, err := s.repo.GetBySlug(ctx, tenant.Canonicalize(slug))
	if err != nil {
		return nil, err
	}

	if patch.LLMModel != "" {
		t.Config.LLMModel = patch.LLMModel
	}
	if patch.SystemPrompt != "" {
		t.Config.SystemPrompt = patch.SystemPrompt
	}
	if patch.TopK > 0 {
		t.Config.TopK = patch.TopK
	}
	if patch.IntentDomains != nil {
		t.Config.IntentDomains = patch.IntentDomains
	}
	if patch.RerankerEnabled != nil {
		t.Config.RerankerEnabled = patch.RerankerEnabled
	}
	t.UpdatedAt = time.Now()

	if err := s.repo.Update(ctx, t); err != nil {
		return nil, fmt.Errorf("update tenant: %w", err)
	}
	return t, nil
}

// Delete removes a tenant and its vector collection.
func (s *TenantService) Delete(ctx context.Context, slug string) error {
	t, err := s.repo.GetBySlug(ctx, tenant.Canonicalize(slug))
	if err != nil {
		return err
	}

	ns := tenant.Namespace{Key: t.Slug, Dimension: tenant.TierDimension(t.Tier)}
	if err := s.vectorStore.DeleteCollection(ctx, ns.CollectionKey()); err != nil {
		s.logger.Error("vector collection deletion failed",
			"tenant", t.Slug, "collection", ns.CollectionKey(), "error", err)
	}

	return s.repo.Delete(ctx, t.ID)
}

// generateAPIKey returns "cw_" plus 32 random hex chars.
func generateAPIKey() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return "cw_" + hex.EncodeToString(bytes), nil
}

func buildTenantConfig(override *repository.TenantConfig) repository.TenantConfig {
	var cfg repository.TenantConfig
	if override == nil {
		return cfg
	}
	if override.LLMModel != "" {
		cfg.LLMModel = override.LLMModel
	}
	if override.SystemPrompt != "" {
		cfg.SystemPrompt = override.SystemPrompt
	}
	if override.TopK > 0 {
		cfg.TopK = override.TopK
	}
	if override.IntentDomains != nil {
		cfg.IntentDomains = override.IntentDomains
	}
	cfg.RerankerEnabled = override.RerankerEnabled
	return cfg
}
