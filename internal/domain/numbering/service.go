package numbering

import (
	"context"
	"fmt"
	"time"

	"numera/internal/core/apperror"
	appctx "numera/internal/core/context"
	corenumbering "numera/internal/core/numbering"
	"numera/internal/core/security"
	"numera/internal/core/tenant"
	"numera/internal/core/tx"
	"numera/pkg/logger"
)

// Auditor records configuration changes for the compliance trail.
// Implemented by the postgres audit store; nil disables auditing.
type Auditor interface {
	RecordConfigChange(ctx context.Context, action string, before, after corenumbering.Config) error
}

// Audit actions recorded by this service.
const (
	AuditActionConfigUpdate = "numbering.config_update"
	AuditActionOverride     = "numbering.manual_override"
)

// Service provides business operations over the numbering engine.
// TxManager may be nil, in which case it is obtained from the request
// context (set by the tenant middleware).
type Service struct {
	repo      Repository
	txManager tx.Manager
	auditor   Auditor

	// now is injectable for tests.
	now func() time.Time
}

// NewService creates a new numbering service.
func NewService(repo Repository, txManager tx.Manager, auditor Auditor) *Service {
	return &Service{
		repo:      repo,
		txManager: txManager,
		auditor:   auditor,
		now:       time.Now,
	}
}

func (s *Service) getTxManager(ctx context.Context) (tx.Manager, error) {
	if s.txManager != nil {
		return s.txManager, nil
	}
	return tenant.GetTxManager(ctx)
}

// readOnly runs fn in a read-only transaction when the manager supports
// them; otherwise fn runs in autocommit mode.
func (s *Service) readOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	txm, err := s.getTxManager(ctx)
	if err != nil {
		return apperror.NewInternal(err).WithDetail("missing", "tx_manager")
	}
	if ro, ok := txm.(tx.ReadOnlyManager); ok {
		return ro.ReadOnly(ctx, fn)
	}
	return fn(ctx)
}

// GetConfig returns the tenant's config together with its validation
// result, so the settings UI can show pending warnings.
func (s *Service) GetConfig(ctx context.Context) (*corenumbering.Config, corenumbering.Result, error) {
	var cfg *corenumbering.Config
	err := s.readOnly(ctx, func(ctx context.Context) error {
		var err error
		cfg, err = s.repo.Get(ctx)
		return err
	})
	if err != nil {
		return nil, corenumbering.Result{}, err
	}
	return cfg, corenumbering.Validate(*cfg), nil
}

// AllocateNext consumes the next invoice number for the tenant.
//
// The read-allocate-save cycle runs in one transaction holding the config
// row lock, so two concurrent calls for the same tenant can never observe
// the same counter value. Lock conflicts from the storage layer propagate
// unchanged; retry policy belongs to the caller.
func (s *Service) AllocateNext(ctx context.Context) (*corenumbering.Allocation, error) {
	txm, err := s.getTxManager(ctx)
	if err != nil {
		return nil, apperror.NewInternal(err).WithDetail("missing", "tx_manager")
	}

	var alloc *corenumbering.Allocation
	err = txm.RunInTransaction(ctx, func(ctx context.Context) error {
		cfg, err := s.repo.GetForUpdate(ctx)
		if err != nil {
			return err
		}

		alloc, err = corenumbering.AllocateNext(*cfg, s.now())
		if err != nil {
			return err
		}

		if err := s.repo.Save(ctx, alloc.Config); err != nil {
			return fmt.Errorf("save counter state: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "invoice number allocated",
		"number", alloc.Number,
		"sequence", alloc.Sequence,
		"period_key", alloc.Config.LastPeriodKey)

	return alloc, nil
}

// Preview renders the next number without consuming it. Read path, no lock.
func (s *Service) Preview(ctx context.Context) (string, []corenumbering.Issue, error) {
	var cfg *corenumbering.Config
	err := s.readOnly(ctx, func(ctx context.Context) error {
		var err error
		cfg, err = s.repo.Get(ctx)
		return err
	})
	if err != nil {
		return "", nil, err
	}
	return corenumbering.Preview(*cfg, s.now())
}

// UpdateConfig applies an edited rule set. The counter state is
// preserved: rule edits never move the counter, only a manual override
// does. Changing the reset frequency clears the stored period key so the
// old regime's key cannot trigger a spurious reset.
//
// Validation errors block the save and are returned inside the Result;
// warnings are returned alongside a successful save.
func (s *Service) UpdateConfig(ctx context.Context, incoming corenumbering.Config) (corenumbering.Result, error) {
	if !appctx.Can(ctx, security.CapabilityNumberingWrite) {
		return corenumbering.Result{}, apperror.NewForbidden("role lacks numbering write capability")
	}

	txm, err := s.getTxManager(ctx)
	if err != nil {
		return corenumbering.Result{}, apperror.NewInternal(err).WithDetail("missing", "tx_manager")
	}

	var res corenumbering.Result
	err = txm.RunInTransaction(ctx, func(ctx context.Context) error {
		// Same lock as allocation: a rules change cannot race an in-flight
		// allocation into a lost update.
		current, err := s.repo.GetForUpdate(ctx)
		if err != nil {
			return err
		}

		updated := *current
		updated.PrefixTemplate = incoming.PrefixTemplate
		updated.FormatTemplate = incoming.FormatTemplate
		updated.SequenceLength = incoming.SequenceLength
		updated.ResetFrequency = incoming.ResetFrequency
		updated.AllowManualOverride = incoming.AllowManualOverride
		updated.UpdatedAt = s.now()

		// A key stored under the old frequency must not read as a period
		// change, which would reset the counter and reissue numbers. The
		// counter continues; the next allocation stamps a fresh key.
		if updated.ResetFrequency != current.ResetFrequency {
			updated.LastPeriodKey = ""
		}

		res = corenumbering.Validate(updated)
		if !res.Valid() {
			return apperror.NewValidation("numbering configuration is invalid").
				WithDetail("errors", res.Errors)
		}

		if err := s.repo.Save(ctx, updated); err != nil {
			return fmt.Errorf("save config: %w", err)
		}

		s.audit(ctx, AuditActionConfigUpdate, *current, updated)
		return nil
	})
	return res, err
}

// ManualOverride replaces the counter with an operator-chosen value.
// Applied under the allocation lock; gated by the engine on both the
// per-tenant switch and the acting role.
func (s *Service) ManualOverride(ctx context.Context, requestedNext int64) (*corenumbering.Config, error) {
	txm, err := s.getTxManager(ctx)
	if err != nil {
		return nil, apperror.NewInternal(err).WithDetail("missing", "tx_manager")
	}

	var updated corenumbering.Config
	err = txm.RunInTransaction(ctx, func(ctx context.Context) error {
		current, err := s.repo.GetForUpdate(ctx)
		if err != nil {
			return err
		}

		updated, err = corenumbering.ApplyManualOverride(*current, requestedNext, actingRole(ctx))
		if err != nil {
			return err
		}
		updated.UpdatedAt = s.now()

		if err := s.repo.Save(ctx, updated); err != nil {
			return fmt.Errorf("save config: %w", err)
		}

		s.audit(ctx, AuditActionOverride, *current, updated)
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "numbering counter overridden",
		"next_sequence", updated.NextSequence,
		"user_id", security.GetUserID(ctx))

	return &updated, nil
}

func (s *Service) audit(ctx context.Context, action string, before, after corenumbering.Config) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.RecordConfigChange(ctx, action, before, after); err != nil {
		// Best effort: the business write already happened in this tx.
		logger.Warn(ctx, "audit record failed", "action", action, "error", err)
	}
}

// actingRole resolves the role the engine's override gate is checked
// against. Admin users act as the admin role regardless of assignments.
func actingRole(ctx context.Context) security.Role {
	u := appctx.GetUser(ctx)
	if u == nil {
		return ""
	}
	if u.IsAdmin {
		return security.RoleAdmin
	}
	for _, r := range u.Roles {
		if r.Can(security.CapabilityNumberingOverride) {
			return r
		}
	}
	if len(u.Roles) > 0 {
		return u.Roles[0]
	}
	return ""
}
