package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"

	appctx "numera/internal/core/context"
	"numera/internal/core/id"
	corenumbering "numera/internal/core/numbering"
	"numera/internal/core/tenant"
	"numera/internal/domain/invoicing"
	"numera/internal/domain/numbering"
)

// CompressionAlgo specifies the compression algorithm used.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// AuditEntry is a single record in the compliance trail. Changes holds a
// field-level diff; large payloads are stored zstd-compressed.
type AuditEntry struct {
	ID                id.ID           `db:"id"`
	TenantID          string          `db:"tenant_id"`
	Action            string          `db:"action"`
	UserID            string          `db:"user_id"`
	Changes           json.RawMessage `db:"changes"`
	ChangesCompressed []byte          `db:"changes_compressed"`
	CompressionAlgo   CompressionAlgo `db:"compression_algo"`
	CreatedAt         time.Time       `db:"created_at"`
}

// Compile-time checks.
var (
	_ numbering.Auditor = (*AuditService)(nil)
	_ invoicing.Auditor = (*AuditService)(nil)
)

// AuditService records configuration changes and overrides. Invoice
// numbers are legally significant, so every mutation of the numbering
// rules keeps a before/after trail.
type AuditService struct {
	txManager         *TxManager
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int // bytes
}

// NewAuditService creates a new audit service.
func NewAuditService(txManager *TxManager) (*AuditService, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &AuditService{
		txManager:         txManager,
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: 10 * 1024,
	}, nil
}

// Log records an audit entry. Runs on the transaction in ctx when one is
// active, so the trail commits together with the audited change.
func (s *AuditService) Log(ctx context.Context, entry AuditEntry) error {
	if entry.TenantID == "" {
		entry.TenantID = tenant.GetTenantID(ctx)
	}
	if entry.UserID == "" {
		entry.UserID = appctx.GetUserID(ctx)
	}
	if id.IsNil(entry.ID) {
		entry.ID = id.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	// Compress large changes
	entry.CompressionAlgo = CompressionNone
	if len(entry.Changes) > s.compressThreshold {
		entry.ChangesCompressed = s.encoder.EncodeAll(entry.Changes, nil)
		entry.Changes = nil
		entry.CompressionAlgo = CompressionZstd
	}

	sql := `
		INSERT INTO numbering_audit (
			id, tenant_id, action, user_id,
			changes, changes_compressed, compression_algo, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	querier := s.txManager.GetQuerier(ctx)
	_, err := querier.Exec(ctx, sql,
		entry.ID, entry.TenantID, entry.Action, entry.UserID,
		entry.Changes, entry.ChangesCompressed, entry.CompressionAlgo,
		entry.CreatedAt,
	)

	return err
}

// RecordAllocation implements invoicing.Auditor. It ties a consumed number
// to the record that consumed it.
func (s *AuditService) RecordAllocation(ctx context.Context, ref, number string) error {
	changesJSON, err := json.Marshal(map[string]string{
		"ref":    ref,
		"number": number,
	})
	if err != nil {
		return fmt.Errorf("marshal changes: %w", err)
	}

	return s.Log(ctx, AuditEntry{
		Action:  "numbering.allocation",
		Changes: changesJSON,
	})
}

// RecordConfigChange implements numbering.Auditor with a field-level diff
// of the two config states.
func (s *AuditService) RecordConfigChange(ctx context.Context, action string, before, after corenumbering.Config) error {
	changes := Diff(configState(before), configState(after))
	changesJSON, err := json.Marshal(changes)
	if err != nil {
		return fmt.Errorf("marshal changes: %w", err)
	}

	return s.Log(ctx, AuditEntry{
		Action:  action,
		Changes: changesJSON,
	})
}

// History retrieves the tenant's audit trail, newest first.
func (s *AuditService) History(ctx context.Context, limit int) ([]AuditEntry, error) {
	sql := `
		SELECT id, tenant_id, action, user_id,
			   changes, changes_compressed, compression_algo, created_at
		FROM numbering_audit
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := s.txManager.GetQuerier(ctx).Query(ctx, sql, tenant.MustGetTenantID(ctx), limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var e AuditEntry
		err := rows.Scan(
			&e.ID, &e.TenantID, &e.Action, &e.UserID,
			&e.Changes, &e.ChangesCompressed, &e.CompressionAlgo, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}

		// Decompress if needed
		if e.CompressionAlgo == CompressionZstd && len(e.ChangesCompressed) > 0 {
			decompressed, err := s.decoder.DecodeAll(e.ChangesCompressed, nil)
			if err != nil {
				return nil, fmt.Errorf("decompress changes: %w", err)
			}
			e.Changes = decompressed
			e.ChangesCompressed = nil
		}

		entries = append(entries, e)
	}

	return entries, rows.Err()
}

func configState(cfg corenumbering.Config) map[string]any {
	return map[string]any{
		"prefixTemplate":      cfg.PrefixTemplate,
		"formatTemplate":      cfg.FormatTemplate,
		"sequenceLength":      cfg.SequenceLength,
		"resetFrequency":      string(cfg.ResetFrequency),
		"allowManualOverride": cfg.AllowManualOverride,
		"nextSequence":        cfg.NextSequence,
		"lastPeriodKey":       cfg.LastPeriodKey,
	}
}

// Diff calculates the difference between old and new entity states.
func Diff(oldState, newState map[string]any) map[string]any {
	changes := make(map[string]any)

	for key, newVal := range newState {
		oldVal, exists := oldState[key]
		if !exists {
			changes[key] = map[string]any{"old": nil, "new": newVal}
		} else if !equal(oldVal, newVal) {
			changes[key] = map[string]any{"old": oldVal, "new": newVal}
		}
	}

	for key, oldVal := range oldState {
		if _, exists := newState[key]; !exists {
			changes[key] = map[string]any{"old": oldVal, "new": nil}
		}
	}

	return changes
}

// equal compares two values for equality.
func equal(a, b any) bool {
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}
