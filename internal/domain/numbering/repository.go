// Package numbering provides the tenant-facing numbering service: it binds
// the pure engine in core/numbering to the configuration store and the
// transaction boundary that serializes allocations.
package numbering

import (
	"context"

	corenumbering "numera/internal/core/numbering"
)

// Repository is the configuration store contract.
// Exactly one config row exists per tenant; Save replaces it atomically.
type Repository interface {
	// Get retrieves the tenant's config. Read path, no locking.
	Get(ctx context.Context) (*corenumbering.Config, error)

	// GetForUpdate retrieves the config with a row lock. Must be called
	// inside a transaction; the lock is the per-tenant serialization point
	// for allocations and overrides.
	GetForUpdate(ctx context.Context) (*corenumbering.Config, error)

	// Save replaces the tenant's config. No partial writes are observable.
	Save(ctx context.Context, cfg corenumbering.Config) error

	// CreateDefault inserts the default config for a freshly provisioned
	// tenant and returns the stored row. No-op if a config already exists.
	CreateDefault(ctx context.Context) (*corenumbering.Config, error)
}
