package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/corpwise/corpwise/internal/repository"
)

// TenantRepo implements repository.TenantRepository
type TenantRepo struct {
	db *DB
}

// NewTenantRepo creates a new tenant repository
func NewTenantRepo(db *DB) *TenantRepo {
	return &TenantRepo{db: db}
}

const tenantColumns = `id, slug, name, api_key, tier, config, queries_this_month, last_query_at, created_at, updated_at`

// Create creates a new tenant
func (r *TenantRepo) Create(ctx context.Context, tenant *repository.Tenant) error {
	configJSON, err := json.Marshal(tenant.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	query := `
		INSERT INTO tenants (id, slug, name, api_key, tier, config, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = r.db.Pool.Exec(ctx, query,
		tenant.ID, tenant.Slug, tenant.Name, tenant.APIKey, tenant.Tier,
		configJSON, tenant.CreatedAt, tenant.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create tenant: %w", err)
	}
	return nil
}

// GetByID retrieves a tenant by ID
func (r *TenantRepo) GetByID(ctx context.Context, id uuid.UUID) (*repository.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE id = $1`
	return r.scanTenant(ctx, query, id)
}

// GetBySlug retrieves a tenant by its external identifier
func (r *TenantRepo) GetBySlug(ctx context.Context, slug string) (*repository.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE slug = $1`
	return r.scanTenant(ctx, query, slug)
}

// GetByAPIKey retrieves a tenant by API key
func (r *TenantRepo) GetByAPIKey(ctx context.Context, apiKey string) (*repository.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE api_key = $1`
	return r.scanTenant(ctx, query, apiKey)
}

func (r *TenantRepo) scanTenant(ctx context.Context, query string, args ...any) (*repository.Tenant, error) {
	var tenant repository.Tenant
	var configJSON []byte

	err := r.db.Pool.QueryRow(ctx, query, args...).Scan(
		&tenant.ID, &tenant.Slug, &tenant.Name, &tenant.APIKey, &tenant.Tier,
		&configJSON, &tenant.Usage.QueriesThisMonth, &tenant.Usage.LastQueryAt,
		&tenant.CreatedAt, &tenant.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}

	if err := json.Unmarshal(configJSON, &tenant.Config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &tenant, nil
}

// List retrieves all tenants with pagination
func (r *TenantRepo) List(ctx context.Context, limit, offset int) ([]*repository.Tenant, int, error) {
	var total int
	err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM tenants`).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count tenants: %w", err)
	}

	query := `
		SELECT ` + tenantColumns + `
		FROM tenants
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := r.db.Pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []*repository.Tenant
	for rows.Next() {
		var tenant repository.Tenant
		var configJSON []byte
		if err := rows.Scan(&tenant.ID, &tenant.Slug, &tenant.Name, &tenant.APIKey, &tenant.Tier,
			&configJSON, &tenant.Usage.QueriesThisMonth, &tenant.Usage.LastQueryAt,
			&tenant.CreatedAt, &tenant.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan tenant: %w", err)
		}
		if err := json.Unmarshal(configJSON, &tenant.Config); err != nil {
			return nil, 0, fmt.Errorf("failed to unmarshal config: %w", err)
		}
		tenants = append(tenants, &tenant)
	}

	return tenants, total, nil
}

// Update updates a tenant
func (r *TenantRepo) Update(ctx context.Context, tenant *repository.Tenant) error {
	configJSON, err := json.Marshal(tenant.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	query := `
		UPDATE tenants
		SET name = $2, tier = $3, config = $4, updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.Pool.Exec(ctx, query, tenant.ID, tenant.Name, tenant.Tier, configJSON)
	if err != nil {
		return fmt.Errorf("failed to update tenant: %w", err)
	}
	if result.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Delete deletes a tenant
func (r *TenantRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Pool.Exec(ctx, `DELETE FROM tenants WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete tenant: %w", err)
	}
	if result.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// IncrementQueryCount bumps the monthly usage counter atomically.
// Eventual consistency under concurrent hits is acceptable; the counter is
// never used for authorization.
func (r *TenantRepo) IncrementQueryCount(ctx context.Context, slug string) error {
	_, err := r.db.Pool.Exec(ctx, `
		UPDATE tenants
		SET queries_this_month = queries_this_month + 1, last_query_at = NOW()
		WHERE slug = $1
	`, slug)
	if err != nil {
		return fmt.Errorf("failed to increment query count: %w", err)
	}
	return nil
}

// Ensure TenantRepo implements the interface
var _ repository.TenantRepository = (*TenantRepo)(nil)
