package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"numera/internal/core/apperror"
	"numera/internal/core/id"
	"numera/internal/core/tenant"
	"numera/internal/domain/invoicing"
)

const (
	invoicesTable     = "invoices"
	invoiceLinesTable = "invoice_lines"
)

var invoiceColumns = []string{
	"id", "number", "status", "customer_name", "customer_email", "currency",
	"subtotal", "tax_amount", "total", "issued_at", "due_at",
	"created_at", "updated_at", "version",
}

// Compile-time check.
var _ invoicing.Repository = (*InvoiceRepo)(nil)

// InvoiceRepo implements invoicing.Repository. All queries are scoped by
// the tenant carried in the context.
type InvoiceRepo struct{}

// NewInvoiceRepo creates a new invoice repository.
func NewInvoiceRepo() *InvoiceRepo {
	return &InvoiceRepo{}
}

func (r *InvoiceRepo) builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func (r *InvoiceRepo) baseSelect(ctx context.Context) squirrel.SelectBuilder {
	return r.builder().
		Select(invoiceColumns...).
		From(invoicesTable).
		Where(squirrel.Eq{"tenant_id": tenant.MustGetTenantID(ctx)})
}

// Create inserts a new invoice header.
func (r *InvoiceRepo) Create(ctx context.Context, inv *invoicing.Invoice) error {
	q := r.builder().
		Insert(invoicesTable).
		Columns("id", "tenant_id", "number", "status", "customer_name", "customer_email",
			"currency", "subtotal", "tax_amount", "total", "issued_at", "due_at",
			"created_at", "updated_at", "version").
		Values(inv.ID, tenant.MustGetTenantID(ctx), inv.Number, inv.Status,
			inv.CustomerName, inv.CustomerEmail, inv.Currency,
			inv.Subtotal, inv.TaxAmount, inv.Total, inv.IssuedAt, inv.DueAt,
			inv.CreatedAt, inv.UpdatedAt, inv.Version)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := MustGetTxManager(ctx).GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert invoice: %w", err)
	}

	return nil
}

func (r *InvoiceRepo) getWhere(ctx context.Context, pred any, key any, forUpdate bool) (*invoicing.Invoice, error) {
	q := r.baseSelect(ctx).Where(pred)
	if forUpdate {
		q = q.Suffix("FOR UPDATE")
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var inv invoicing.Invoice
	querier := MustGetTxManager(ctx).GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &inv, sql, args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NewNotFound("invoice", key)
		}
		return nil, fmt.Errorf("get invoice: %w", err)
	}

	return &inv, nil
}

// GetByID retrieves an invoice header by ID.
func (r *InvoiceRepo) GetByID(ctx context.Context, invoiceID id.ID) (*invoicing.Invoice, error) {
	return r.getWhere(ctx, squirrel.Eq{"id": invoiceID}, invoiceID, false)
}

// GetByNumber retrieves an invoice header by its allocated number.
func (r *InvoiceRepo) GetByNumber(ctx context.Context, number string) (*invoicing.Invoice, error) {
	return r.getWhere(ctx, squirrel.Eq{"number": number}, number, false)
}

// GetForUpdate retrieves an invoice header holding its row lock.
func (r *InvoiceRepo) GetForUpdate(ctx context.Context, invoiceID id.ID) (*invoicing.Invoice, error) {
	return r.getWhere(ctx, squirrel.Eq{"id": invoiceID}, invoiceID, true)
}

// Update replaces an invoice header. Version is checked for optimistic
// locking and incremented on success.
func (r *InvoiceRepo) Update(ctx context.Context, inv *invoicing.Invoice) error {
	q := r.builder().
		Update(invoicesTable).
		Set("number", inv.Number).
		Set("status", inv.Status).
		Set("customer_name", inv.CustomerName).
		Set("customer_email", inv.CustomerEmail).
		Set("currency", inv.Currency).
		Set("subtotal", inv.Subtotal).
		Set("tax_amount", inv.TaxAmount).
		Set("total", inv.Total).
		Set("issued_at", inv.IssuedAt).
		Set("due_at", inv.DueAt).
		Set("updated_at", inv.UpdatedAt).
		Set("version", inv.Version+1).
		Where(squirrel.Eq{
			"tenant_id": tenant.MustGetTenantID(ctx),
			"id":        inv.ID,
			"version":   inv.Version,
		})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	querier := MustGetTxManager(ctx).GetQuerier(ctx)
	tag, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update invoice: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewConcurrentModification("invoice", inv.ID)
	}
	inv.Version++

	return nil
}

// Delete removes an invoice and its lines.
func (r *InvoiceRepo) Delete(ctx context.Context, invoiceID id.ID) error {
	querier := MustGetTxManager(ctx).GetQuerier(ctx)

	if _, err := querier.Exec(ctx,
		"DELETE FROM "+invoiceLinesTable+" WHERE invoice_id = $1", invoiceID); err != nil {
		return fmt.Errorf("delete lines: %w", err)
	}

	tag, err := querier.Exec(ctx,
		"DELETE FROM "+invoicesTable+" WHERE tenant_id = $1 AND id = $2",
		tenant.MustGetTenantID(ctx), invoiceID)
	if err != nil {
		return fmt.Errorf("delete invoice: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("invoice", invoiceID)
	}

	return nil
}

// GetLines retrieves lines for an invoice.
func (r *InvoiceRepo) GetLines(ctx context.Context, invoiceID id.ID) ([]invoicing.InvoiceLine, error) {
	q := r.builder().
		Select("line_id", "line_no", "description", "quantity",
			"unit_price", "tax_rate", "tax_amount", "amount").
		From(invoiceLinesTable).
		Where(squirrel.Eq{"invoice_id": invoiceID}).
		OrderBy("line_no")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var lines []invoicing.InvoiceLine
	querier := MustGetTxManager(ctx).GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &lines, sql, args...); err != nil {
		return nil, fmt.Errorf("get lines: %w", err)
	}

	return lines, nil
}

// SaveLines saves lines for an invoice (delete existing + insert new).
func (r *InvoiceRepo) SaveLines(ctx context.Context, invoiceID id.ID, lines []invoicing.InvoiceLine) error {
	querier := MustGetTxManager(ctx).GetQuerier(ctx)

	deleteSQL := "DELETE FROM " + invoiceLinesTable + " WHERE invoice_id = $1"
	if _, err := querier.Exec(ctx, deleteSQL, invoiceID); err != nil {
		return fmt.Errorf("delete existing lines: %w", err)
	}

	if len(lines) == 0 {
		return nil
	}

	q := r.builder().
		Insert(invoiceLinesTable).
		Columns("line_id", "invoice_id", "line_no", "description",
			"quantity", "unit_price", "tax_rate", "tax_amount", "amount")

	for _, line := range lines {
		q = q.Values(
			line.LineID, invoiceID, line.LineNo, line.Description,
			line.Quantity, line.UnitPrice, line.TaxRate, line.TaxAmount, line.Amount,
		)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert lines: %w", err)
	}

	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert lines: %w", err)
	}

	return nil
}

// List retrieves invoices with filtering, returning the total match count.
func (r *InvoiceRepo) List(ctx context.Context, filter invoicing.ListFilter) ([]*invoicing.Invoice, int, error) {
	q := r.baseSelect(ctx)

	if filter.Status != nil {
		q = q.Where(squirrel.Eq{"status": *filter.Status})
	}
	if filter.Customer != "" {
		q = q.Where(squirrel.ILike{"customer_name": "%" + filter.Customer + "%"})
	}
	if filter.DateFrom != nil {
		q = q.Where(squirrel.GtOrEq{"created_at": *filter.DateFrom})
	}
	if filter.DateTo != nil {
		q = q.Where(squirrel.LtOrEq{"created_at": *filter.DateTo})
	}

	countQ := r.builder().Select("COUNT(*)").FromSelect(q, "sub")
	countSQL, countArgs, err := countQ.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count: %w", err)
	}

	querier := MustGetTxManager(ctx).GetQuerier(ctx)
	var total int
	if err := querier.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count: %w", err)
	}

	q = q.OrderBy("created_at DESC")
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build query: %w", err)
	}

	var invoices []*invoicing.Invoice
	if err := pgxscan.Select(ctx, querier, &invoices, sql, args...); err != nil {
		return nil, 0, fmt.Errorf("list invoices: %w", err)
	}

	return invoices, total, nil
}
