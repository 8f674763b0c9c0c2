// Package tenant resolves tenant identifiers to isolated retrieval
// namespaces and embedding dimension tiers.
package tenant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/corpwise/corpwise/internal/repository"
)

// NoTenantNamespace is the sentinel partition for requests without a tenant
// identity. It is its own isolated partition, never a fallback into tenant
// data.
const NoTenantNamespace = "none"

// Subscription tiers and their embedding dimensions.
const (
	TierStarter      = "starter"
	TierProfessional = "professional"
	TierEnterprise   = "enterprise"
)

// tierDimensions maps subscription tiers to vector dimensions.
var tierDimensions = map[string]int{
	TierStarter:      384,
	TierProfessional: 768,
	TierEnterprise:   1024,
}

// DefaultDimension is the smallest tier's dimension, used for unknown
// tenants and the no-tenant partition.
const DefaultDimension = 384

// TierDimension returns the vector dimension for a subscription tier,
// defaulting to the smallest tier for unknown values.
func TierDimension(tier string) int {
	if dim, ok := tierDimensions[strings.ToLower(tier)]; ok {
		return dim
	}
	return DefaultDimension
}

// Namespace is an isolated partition of the vector and keyword indexes.
type Namespace struct {
	Key       string
	Dimension int
}

// IsTenant reports whether the namespace belongs to a real tenant.
func (n Namespace) IsTenant() bool {
	return n.Key != NoTenantNamespace
}

// CollectionKey yields the vector collection identity for this namespace.
func (n Namespace) CollectionKey() string {
	return fmt.Sprintf("tenant_%s_%d", n.Key, n.Dimension)
}

// Resolver maps tenant identifiers to namespaces.
type Resolver struct {
	tenants repository.TenantRepository
	logger  *slog.Logger
}

// NewResolver creates a namespace resolver backed by tenant metadata.
func NewResolver(tenants repository.TenantRepository, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{tenants: tenants, logger: logger}
}

// Resolve canonicalizes a tenant identifier into a namespace. An absent
// identifier resolves to the sentinel no-tenant partition; an unknown tenant
// degrades to the smallest dimension tier without error. Neither case ever
// resolves into another tenant's partition.
func (r *Resolver) Resolve(ctx context.Context, tenantID string) Namespace {
	key := Canonicalize(tenantID)
	if key == NoTenantNamespace {
		return Namespace{Key: NoTenantNamespace, Dimension: DefaultDimension}
	}

	dim := DefaultDimension
	t, err := r.tenants.GetBySlug(ctx, key)
	if err != nil {
		r.logger.Debug("unknown tenant, using default tier", "tenant", key, "error", err)
	} else {
		dim = TierDimension(t.Tier)
	}

	return Namespace{Key: key, Dimension: dim}
}

// Canonicalize lower-cases and trims a tenant identifier, mapping the empty
// identifier to the sentinel no-tenant key.
func Canonicalize(tenantID string) string {
	key := strings.ToLower(strings.TrimSpace(tenantID))
	if key == "" {
		return NoTenantNamespace
	}
	return key
}
