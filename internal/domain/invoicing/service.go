package invoicing

import (
	"context"
	"fmt"
	"time"

	"numera/internal/core/apperror"
	appctx "numera/internal/core/context"
	"numera/internal/core/id"
	corenumbering "numera/internal/core/numbering"
	"numera/internal/core/security"
	"numera/internal/core/tenant"
	"numera/internal/core/tx"
	"numera/pkg/logger"
)

// NumberSource allocates the next invoice number. Satisfied by the
// numbering domain service; the interface keeps issuance testable without
// a live counter.
type NumberSource interface {
	AllocateNext(ctx context.Context) (*corenumbering.Allocation, error)
}

// Auditor records number consumption events. Nil disables auditing.
type Auditor interface {
	RecordAllocation(ctx context.Context, ref, number string) error
}

// Service provides business operations for invoices.
// TxManager may be nil, in which case it is obtained from the request
// context (set by the tenant middleware).
type Service struct {
	repo      Repository
	numbers   NumberSource
	txManager tx.Manager
	auditor   Auditor

	now func() time.Time
}

// NewService creates a new invoice service.
func NewService(repo Repository, numbers NumberSource, txManager tx.Manager, auditor Auditor) *Service {
	return &Service{
		repo:      repo,
		numbers:   numbers,
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

// Create stores a new draft invoice. Drafts carry no number; the number is
// allocated only at issuance so abandoned drafts never burn sequence values.
func (s *Service) Create(ctx context.Context, inv *Invoice) error {
	if err := inv.Validate(ctx); err != nil {
		return err
	}

	txm, err := s.getTxManager(ctx)
	if err != nil {
		return apperror.NewInternal(err).WithDetail("missing", "tx_manager")
	}
	err = txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, inv); err != nil {
			return fmt.Errorf("create invoice: %w", err)
		}
		if err := s.repo.SaveLines(ctx, inv.ID, inv.Lines); err != nil {
			return fmt.Errorf("save lines: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "invoice created", "id", inv.ID, "customer", inv.CustomerName)
	return nil
}

// GetByID retrieves an invoice with lines.
func (s *Service) GetByID(ctx context.Context, invoiceID id.ID) (*Invoice, error) {
	var inv *Invoice
	err := s.readOnly(ctx, func(ctx context.Context) error {
		var err error
		inv, err = s.repo.GetByID(ctx, invoiceID)
		if err != nil {
			return err
		}

		lines, err := s.repo.GetLines(ctx, invoiceID)
		if err != nil {
			return fmt.Errorf("get lines: %w", err)
		}
		inv.Lines = lines
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// Update replaces a draft invoice's content. Issued invoices are immutable.
func (s *Service) Update(ctx context.Context, inv *Invoice) error {
	if err := inv.CanModify(); err != nil {
		return err
	}
	if err := inv.Validate(ctx); err != nil {
		return err
	}

	txm, err := s.getTxManager(ctx)
	if err != nil {
		return apperror.NewInternal(err).WithDetail("missing", "tx_manager")
	}
	return txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.Update(ctx, inv); err != nil {
			return fmt.Errorf("update invoice: %w", err)
		}
		if err := s.repo.SaveLines(ctx, inv.ID, inv.Lines); err != nil {
			return fmt.Errorf("save lines: %w", err)
		}
		return nil
	})
}

// Delete removes a draft invoice. Issued invoices must be voided instead.
func (s *Service) Delete(ctx context.Context, invoiceID id.ID) error {
	inv, err := s.repo.GetByID(ctx, invoiceID)
	if err != nil {
		return err
	}
	if err := inv.CanModify(); err != nil {
		return err
	}
	return s.repo.Delete(ctx, invoiceID)
}

// Issue finalizes a draft invoice: it allocates the next invoice number and
// stamps it on the invoice in one transaction. The allocation's counter
// save and the invoice update commit together, so a crash between them can
// neither lose nor replay a number.
func (s *Service) Issue(ctx context.Context, invoiceID id.ID) (*Invoice, error) {
	if !appctx.Can(ctx, security.CapabilityInvoiceIssue) {
		return nil, apperror.NewForbidden("role lacks invoice issue capability")
	}

	txm, err := s.getTxManager(ctx)
	if err != nil {
		return nil, apperror.NewInternal(err).WithDetail("missing", "tx_manager")
	}

	var inv *Invoice
	err = txm.RunInTransaction(ctx, func(ctx context.Context) error {
		inv, err = s.repo.GetForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		if inv.IsIssued() {
			return apperror.NewInvoiceIssued(inv.Number)
		}
		if err := inv.Validate(ctx); err != nil {
			return err
		}

		// Nested transaction call: the allocator reuses this transaction,
		// so the counter moves under the same commit.
		alloc, err := s.numbers.AllocateNext(ctx)
		if err != nil {
			return fmt.Errorf("allocate number: %w", err)
		}

		// The counter can be moved backwards by a manual override. Refuse
		// to stamp a number another invoice already carries.
		if existing, err := s.repo.GetByNumber(ctx, alloc.Number); err == nil && existing != nil {
			return apperror.NewDuplicate("invoice", "number", alloc.Number)
		} else if err != nil && !apperror.IsNotFound(err) {
			return fmt.Errorf("check number: %w", err)
		}

		issuedAt := s.now()
		inv.Number = alloc.Number
		inv.Status = StatusIssued
		inv.IssuedAt = &issuedAt
		inv.UpdatedAt = issuedAt

		if err := s.repo.Update(ctx, inv); err != nil {
			return fmt.Errorf("update invoice: %w", err)
		}

		// Best effort: issuance proceeds even if the trail write fails.
		if s.auditor != nil {
			if err := s.auditor.RecordAllocation(ctx, inv.ID.String(), inv.Number); err != nil {
				logger.Warn(ctx, "allocation audit failed", "error", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "invoice issued",
		"id", inv.ID,
		"number", inv.Number,
		"total", inv.Total.String())

	return inv, nil
}

// Void cancels an issued invoice. The allocated number stays consumed:
// sequences may have gaps but never duplicates.
func (s *Service) Void(ctx context.Context, invoiceID id.ID) (*Invoice, error) {
	if !appctx.Can(ctx, security.CapabilityInvoiceIssue) {
		return nil, apperror.NewForbidden("role lacks invoice issue capability")
	}

	txm, err := s.getTxManager(ctx)
	if err != nil {
		return nil, apperror.NewInternal(err).WithDetail("missing", "tx_manager")
	}

	var inv *Invoice
	err = txm.RunInTransaction(ctx, func(ctx context.Context) error {
		inv, err = s.repo.GetForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		if inv.Status != StatusIssued {
			return apperror.NewBusinessRule("INVOICE_NOT_ISSUED", "only issued invoices can be voided")
		}

		inv.Status = StatusVoid
		inv.UpdatedAt = s.now()
		return s.repo.Update(ctx, inv)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "invoice voided", "id", inv.ID, "number", inv.Number)
	return inv, nil
}

// List retrieves invoices matching the filter, with the total match count.
// The page and the count read the same snapshot.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Invoice, int, error) {
	var (
		invoices []*Invoice
		total    int
	)
	err := s.readOnly(ctx, func(ctx context.Context) error {
		var err error
		invoices, total, err = s.repo.List(ctx, filter)
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	return invoices, total, nil
}
