package tenant

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Registry provides access to tenant metadata.
type Registry interface {
	// GetByID retrieves tenant by UUID string.
	GetByID(ctx context.Context, tenantID string) (*Tenant, error)

	// GetBySlug retrieves tenant by its URL-safe identifier.
	GetBySlug(ctx context.Context, slug string) (*Tenant, error)

	// ListActive returns all active tenants.
	ListActive(ctx context.Context) ([]*Tenant, error)

	// ListAll returns all tenants.
	ListAll(ctx context.Context) ([]*Tenant, error)

	// Create inserts a new tenant row and populates t.ID.
	Create(ctx context.Context, t *Tenant) error

	// UpdateStatusByID updates tenant status by UUID string.
	UpdateStatusByID(ctx context.Context, tenantID string, status Status) error
}

const tenantColumns = `id, slug, display_name, status, plan, api_key_hash, created_at, updated_at, settings`

// PostgresRegistry implements Registry against the platform database.
type PostgresRegistry struct {
	pool *pgxpool.Pool
}

func NewPostgresRegistry(pool *pgxpool.Pool) *PostgresRegistry {
	return &PostgresRegistry{pool: pool}
}

func (r *PostgresRegistry) GetByID(ctx context.Context, tenantID string) (*Tenant, error) {
	var t Tenant
	err := pgxscan.Get(ctx, r.pool, &t, `
		SELECT `+tenantColumns+`
		FROM tenants
		WHERE id = $1
	`, tenantID)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, ErrTenantNotFound
		}
		return nil, fmt.Errorf("get tenant by id: %w", err)
	}
	return &t, nil
}

func (r *PostgresRegistry) GetBySlug(ctx context.Context, slug string) (*Tenant, error) {
	var t Tenant
	err := pgxscan.Get(ctx, r.pool, &t, `
		SELECT `+tenantColumns+`
		FROM tenants
		WHERE slug = $1
	`, slug)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, ErrTenantNotFound
		}
		return nil, fmt.Errorf("get tenant by slug: %w", err)
	}
	return &t, nil
}

func (r *PostgresRegistry) ListActive(ctx context.Context) ([]*Tenant, error) {
	var tenants []*Tenant
	err := pgxscan.Select(ctx, r.pool, &tenants, `
		SELECT `+tenantColumns+`
		FROM tenants
		WHERE status = $1
		ORDER BY slug
	`, StatusActive)
	if err != nil {
		return nil, fmt.Errorf("list active tenants: %w", err)
	}
	return tenants, nil
}

func (r *PostgresRegistry) ListAll(ctx context.Context) ([]*Tenant, error) {
	var tenants []*Tenant
	err := pgxscan.Select(ctx, r.pool, &tenants, `
		SELECT `+tenantColumns+`
		FROM tenants
		ORDER BY slug
	`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	return tenants, nil
}

func (r *PostgresRegistry) Create(ctx context.Context, t *Tenant) error {
	if t == nil {
		return fmt.Errorf("tenant is nil")
	}
	if t.Status == "" {
		t.Status = StatusActive
	}
	if t.Plan == "" {
		t.Plan = PlanStandard
	}

	// settings is JSONB with default '{}', but we still pass it explicitly for clarity.
	if t.Settings == nil {
		t.Settings = map[string]any{}
	}

	// Return generated UUID.
	err := r.pool.QueryRow(ctx, `
		INSERT INTO tenants (slug, display_name, status, plan, api_key_hash, settings)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, t.Slug, t.DisplayName, t.Status, t.Plan, t.APIKeyHash, t.Settings).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("create tenant: %w", err)
	}
	return nil
}

func (r *PostgresRegistry) UpdateStatusByID(ctx context.Context, tenantID string, status Status) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE tenants
		SET status = $2, updated_at = now()
		WHERE id = $1
	`, tenantID, status)
	if err != nil {
		return fmt.Errorf("update tenant status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTenantNotFound
	}
	return nil
}

var _ Registry = (*PostgresRegistry)(nil)

// --- Caching decorator ---

type cachedTenant struct {
	tenant   *Tenant
	cachedAt time.Time
}

// CachedRegistry wraps a Registry with a TTL cache for the hot
// per-request GetByID lookup. Status changes propagate within TTL.
type CachedRegistry struct {
	inner Registry
	ttl   time.Duration

	mu    sync.RWMutex
	byID  map[string]cachedTenant
}

// NewCachedRegistry creates a caching decorator with the given TTL.
func NewCachedRegistry(inner Registry, ttl time.Duration) *CachedRegistry {
	return &CachedRegistry{
		inner: inner,
		ttl:   ttl,
		byID:  make(map[string]cachedTenant),
	}
}

func (c *CachedRegistry) GetByID(ctx context.Context, tenantID string) (*Tenant, error) {
	c.mu.RLock()
	entry, ok := c.byID[tenantID]
	c.mu.RUnlock()
	if ok && time.Since(entry.cachedAt) < c.ttl {
		return entry.tenant, nil
	}

	t, err := c.inner.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.byID[tenantID] = cachedTenant{tenant: t, cachedAt: time.Now()}
	c.mu.Unlock()
	return t, nil
}

func (c *CachedRegistry) GetBySlug(ctx context.Context, slug string) (*Tenant, error) {
	return c.inner.GetBySlug(ctx, slug)
}

func (c *CachedRegistry) ListActive(ctx context.Context) ([]*Tenant, error) {
	return c.inner.ListActive(ctx)
}

func (c *CachedRegistry) ListAll(ctx context.Context) ([]*Tenant, error) {
	return c.inner.ListAll(ctx)
}

func (c *CachedRegistry) Create(ctx context.Context, t *Tenant) error {
	return c.inner.Create(ctx, t)
}

func (c *CachedRegistry) UpdateStatusByID(ctx context.Context, tenantID string, status Status) error {
	if err := c.inner.UpdateStatusByID(ctx, tenantID, status); err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.byID, tenantID)
	c.mu.Unlock()
	return nil
}

var _ Registry = (*CachedRegistry)(nil)
