// Package invoicing provides the invoice document: draft lifecycle,
// totals, and issuance with an allocated invoice number.
package invoicing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"numera/internal/core/apperror"
	"numera/internal/core/id"
)

// Status is the invoice lifecycle state.
type Status string

const (
	// StatusDraft invoices carry no number and may be edited freely.
	StatusDraft Status = "draft"

	// StatusIssued invoices hold an allocated number and are immutable.
	StatusIssued Status = "issued"

	// StatusVoid invoices are cancelled after issuance. The number stays
	// consumed; gaps in the sequence are acceptable, duplicates are not.
	StatusVoid Status = "void"
)

// Invoice represents a customer invoice.
// Number is empty until the invoice is issued.
type Invoice struct {
	ID     id.ID  `db:"id" json:"id"`
	Number string `db:"number" json:"number,omitempty"`
	Status Status `db:"status" json:"status"`

	CustomerName  string `db:"customer_name" json:"customerName"`
	CustomerEmail string `db:"customer_email" json:"customerEmail,omitempty"`
	Currency      string `db:"currency" json:"currency"`

	// Totals (calculated from lines)
	Subtotal  decimal.Decimal `db:"subtotal" json:"subtotal"`
	TaxAmount decimal.Decimal `db:"tax_amount" json:"taxAmount"`
	Total     decimal.Decimal `db:"total" json:"total"`

	IssuedAt  *time.Time `db:"issued_at" json:"issuedAt,omitempty"`
	DueAt     *time.Time `db:"due_at" json:"dueAt,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time  `db:"updated_at" json:"updatedAt"`

	// Version for optimistic locking on draft edits.
	Version int `db:"version" json:"version"`

	// Table part: invoice lines
	Lines []InvoiceLine `db:"-" json:"lines"`
}

// InvoiceLine represents a billed position.
type InvoiceLine struct {
	LineID id.ID `db:"line_id" json:"lineId"`
	LineNo int   `db:"line_no" json:"lineNo"`

	Description string          `db:"description" json:"description"`
	Quantity    decimal.Decimal `db:"quantity" json:"quantity"`
	UnitPrice   decimal.Decimal `db:"unit_price" json:"unitPrice"`

	// TaxRate is a percentage, e.g. 20 for 20%.
	TaxRate   decimal.Decimal `db:"tax_rate" json:"taxRate"`
	TaxAmount decimal.Decimal `db:"tax_amount" json:"taxAmount"`
	Amount    decimal.Decimal `db:"amount" json:"amount"`
}

// NewInvoice creates a draft invoice.
func NewInvoice(customerName, currency string) *Invoice {
	now := time.Now()
	return &Invoice{
		ID:           id.New(),
		Status:       StatusDraft,
		CustomerName: customerName,
		Currency:     currency,
		CreatedAt:    now,
		UpdatedAt:    now,
		Version:      1,
		Lines:        make([]InvoiceLine, 0),
	}
}

var hundred = decimal.NewFromInt(100)

// AddLine appends a billed position and recalculates totals.
func (inv *Invoice) AddLine(description string, quantity, unitPrice, taxRate decimal.Decimal) {
	base := quantity.Mul(unitPrice)
	tax := base.Mul(taxRate).Div(hundred).Round(2)

	inv.Lines = append(inv.Lines, InvoiceLine{
		LineID:      id.New(),
		LineNo:      len(inv.Lines) + 1,
		Description: description,
		Quantity:    quantity,
		UnitPrice:   unitPrice,
		TaxRate:     taxRate,
		TaxAmount:   tax,
		Amount:      base.Add(tax),
	})
	inv.recalculateTotals()
}

// recalculateTotals updates invoice totals from lines.
func (inv *Invoice) recalculateTotals() {
	subtotal := decimal.Zero
	tax := decimal.Zero
	for _, line := range inv.Lines {
		subtotal = subtotal.Add(line.Quantity.Mul(line.UnitPrice))
		tax = tax.Add(line.TaxAmount)
	}
	inv.Subtotal = subtotal.Round(2)
	inv.TaxAmount = tax.Round(2)
	inv.Total = inv.Subtotal.Add(inv.TaxAmount)
}

// IsIssued reports whether the invoice has been finalized.
func (inv *Invoice) IsIssued() bool {
	return inv.Status == StatusIssued || inv.Status == StatusVoid
}

// CanModify returns an error when the invoice is no longer editable.
func (inv *Invoice) CanModify() error {
	if inv.IsIssued() {
		return apperror.NewInvoiceIssued(inv.Number)
	}
	return nil
}

// Validate checks the invoice for structural correctness.
func (inv *Invoice) Validate(ctx context.Context) error {
	if inv.CustomerName == "" {
		return apperror.NewValidation("customer name is required").
			WithDetail("field", "customerName")
	}
	if inv.Currency == "" {
		return apperror.NewValidation("currency is required").
			WithDetail("field", "currency")
	}
	if len(inv.Lines) == 0 {
		return apperror.NewValidation("at least one line is required").
			WithDetail("field", "lines")
	}

	for i, line := range inv.Lines {
		if line.Description == "" {
			return apperror.NewValidation("line description is required").
				WithDetail("field", "lines").
				WithDetail("lineNo", i+1)
		}
		if !line.Quantity.IsPositive() {
			return apperror.NewValidation("quantity must be positive").
				WithDetail("field", "lines").
				WithDetail("lineNo", i+1)
		}
		if line.UnitPrice.IsNegative() {
			return apperror.NewValidation("unit price must not be negative").
				WithDetail("field", "lines").
				WithDetail("lineNo", i+1)
		}
		if line.TaxRate.IsNegative() {
			return apperror.NewValidation("tax rate must not be negative").
				WithDetail("field", "lines").
				WithDetail("lineNo", i+1)
		}
	}

	return nil
}
