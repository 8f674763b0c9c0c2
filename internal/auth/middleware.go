// Package auth provides authentication middleware for API key and JWT-based
// tenant authentication.
package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/corpwise/corpwise/internal/repository"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	// APIKeyHeader is the request header for API key authentication
	APIKeyHeader = "X-API-Key"

	// tenantContextKey is the context key for storing tenant info
	tenantContextKey contextKey = "tenant"
)

// TenantInfo holds tenant information extracted from authentication
type TenantInfo struct {
	ID     uuid.UUID
	Slug   string
	Name   string
	Config repository.TenantConfig
}

// Middleware authenticates requests by tenant API key or bearer JWT and
// stores the resolved tenant in the request context.
type Middleware struct {
	tenantRepo  repository.TenantRepository
	jwtManager  *JWTManager
	adminAPIKey string
}

// NewMiddleware creates authentication middleware. The JWT manager may be
// nil to disable bearer-token authentication.
func NewMiddleware(tenantRepo repository.TenantRepository, jwtManager *JWTManager, adminAPIKey string) *Middleware {
	return &Middleware{
		tenantRepo:  tenantRepo,
		jwtManager:  jwtManager,
		adminAPIKey: adminAPIKey,
	}
}

// RequireTenant authenticates the request as a tenant. API keys take
// precedence; a bearer token is accepted when no API key is present.
func (m *Middleware) RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if apiKey := strings.TrimSpace(r.Header.Get(APIKeyHeader)); apiKey != "" {
			tenant, err := m.tenantRepo.GetByAPIKey(r.Context(), apiKey)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, "invalid API key")
				return
			}
			next.ServeHTTP(w, r.WithContext(withTenant(r.Context(), tenant)))
			return
		}

		if token := bearerToken(r); token != "" && m.jwtManager != nil {
			claims, err := m.jwtManager.ValidateToken(token)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			tenant, err := m.tenantRepo.GetBySlug(r.Context(), claims.TenantSlug)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, "unknown tenant")
				return
			}
			next.ServeHTTP(w, r.WithContext(withTenant(r.Context(), tenant)))
			return
		}

		writeAuthError(w, http.StatusUnauthorized, "missing credentials")
	})
}

// RequireAdmin authenticates the request against the admin API key.
func (m *Middleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.adminAPIKey == "" {
			writeAuthError(w, http.StatusForbidden, "admin API key not configured")
			return
		}
		if strings.TrimSpace(r.Header.Get(APIKeyHeader)) != m.adminAPIKey {
			writeAuthError(w, http.StatusForbidden, "invalid admin API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func withTenant(ctx context.Context, t *repository.Tenant) context.Context {
	return context.WithValue(ctx, tenantContextKey, &TenantInfo{
		ID:     t.ID,
		Slug:   t.Slug,
		Name:   t.Name,
		Config: t.Config,
	})
}

// TenantFromContext extracts tenant info from context
func TenantFromContext(ctx context.Context) (*TenantInfo, bool) {
	tenant, ok := ctx.Value(tenantContextKey).(*TenantInfo)
	return tenant, ok
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
