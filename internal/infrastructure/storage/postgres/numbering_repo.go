package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"numera/internal/core/apperror"
	corenumbering "numera/internal/core/numbering"
	"numera/internal/core/tenant"
	"numera/internal/domain/numbering"
)

const numberingConfigsTable = "numbering_configs"

var numberingConfigColumns = []string{
	"prefix_template", "format_template", "sequence_length",
	"reset_frequency", "allow_manual_override", "next_sequence",
	"last_period_key", "updated_at",
}

// Compile-time check.
var _ numbering.Repository = (*NumberingRepo)(nil)

// NumberingRepo implements numbering.Repository over a single row per
// tenant in numbering_configs. That one row is the serialization point
// for the tenant's allocations: GetForUpdate locks it, and every
// concurrent allocator queues behind the lock.
type NumberingRepo struct{}

// NewNumberingRepo creates a new numbering config repository.
func NewNumberingRepo() *NumberingRepo {
	return &NumberingRepo{}
}

func (r *NumberingRepo) builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func (r *NumberingRepo) get(ctx context.Context, forUpdate bool) (*corenumbering.Config, error) {
	tenantID := tenant.MustGetTenantID(ctx)

	q := r.builder().
		Select(numberingConfigColumns...).
		From(numberingConfigsTable).
		Where(squirrel.Eq{"tenant_id": tenantID})
	if forUpdate {
		q = q.Suffix("FOR UPDATE")
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var cfg corenumbering.Config
	querier := MustGetTxManager(ctx).GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &cfg, sql, args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NewNotFound("numbering config", tenantID)
		}
		return nil, fmt.Errorf("get numbering config: %w", err)
	}

	return &cfg, nil
}

// Get retrieves the tenant's numbering configuration.
func (r *NumberingRepo) Get(ctx context.Context) (*corenumbering.Config, error) {
	return r.get(ctx, false)
}

// GetForUpdate retrieves the configuration holding its row lock.
// Must run inside a transaction; outside one the lock releases
// immediately and provides nothing.
func (r *NumberingRepo) GetForUpdate(ctx context.Context) (*corenumbering.Config, error) {
	return r.get(ctx, true)
}

// Save replaces the tenant's configuration atomically.
func (r *NumberingRepo) Save(ctx context.Context, cfg corenumbering.Config) error {
	tenantID := tenant.MustGetTenantID(ctx)

	q := r.builder().
		Update(numberingConfigsTable).
		Set("prefix_template", cfg.PrefixTemplate).
		Set("format_template", cfg.FormatTemplate).
		Set("sequence_length", cfg.SequenceLength).
		Set("reset_frequency", cfg.ResetFrequency).
		Set("allow_manual_override", cfg.AllowManualOverride).
		Set("next_sequence", cfg.NextSequence).
		Set("last_period_key", cfg.LastPeriodKey).
		Set("updated_at", cfg.UpdatedAt).
		Where(squirrel.Eq{"tenant_id": tenantID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	querier := MustGetTxManager(ctx).GetQuerier(ctx)
	tag, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update numbering config: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("numbering config", tenantID)
	}

	return nil
}

// CreateDefault provisions the tenant's initial configuration. Idempotent:
// an existing row is left untouched and returned.
func (r *NumberingRepo) CreateDefault(ctx context.Context) (*corenumbering.Config, error) {
	tenantID := tenant.MustGetTenantID(ctx)
	cfg := corenumbering.DefaultConfig()
	cfg.UpdatedAt = time.Now()

	q := r.builder().
		Insert(numberingConfigsTable).
		Columns("tenant_id", "prefix_template", "format_template", "sequence_length",
			"reset_frequency", "allow_manual_override", "next_sequence",
			"last_period_key", "updated_at").
		Values(tenantID, cfg.PrefixTemplate, cfg.FormatTemplate, cfg.SequenceLength,
			cfg.ResetFrequency, cfg.AllowManualOverride, cfg.NextSequence,
			cfg.LastPeriodKey, cfg.UpdatedAt).
		Suffix("ON CONFLICT (tenant_id) DO NOTHING")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert: %w", err)
	}

	querier := MustGetTxManager(ctx).GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return nil, fmt.Errorf("insert default config: %w", err)
	}

	return r.Get(ctx)
}
