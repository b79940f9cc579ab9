package invoicing

import (
	"context"
	"time"

	"numera/internal/core/id"
)

// Repository defines storage operations for invoices. All operations are
// scoped to the tenant carried in the context.
type Repository interface {
	Create(ctx context.Context, inv *Invoice) error
	GetByID(ctx context.Context, invoiceID id.ID) (*Invoice, error)
	GetByNumber(ctx context.Context, number string) (*Invoice, error)
	Update(ctx context.Context, inv *Invoice) error
	Delete(ctx context.Context, invoiceID id.ID) error

	GetLines(ctx context.Context, invoiceID id.ID) ([]InvoiceLine, error)
	SaveLines(ctx context.Context, invoiceID id.ID, lines []InvoiceLine) error

	List(ctx context.Context, filter ListFilter) ([]*Invoice, int, error)

	// GetForUpdate locks the invoice row for the issuance transaction.
	GetForUpdate(ctx context.Context, invoiceID id.ID) (*Invoice, error)
}

// ListFilter narrows List results.
type ListFilter struct {
	Status   *Status
	Customer string
	DateFrom *time.Time
	DateTo   *time.Time

	Limit  int
	Offset int
}
