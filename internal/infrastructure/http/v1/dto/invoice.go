package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"numera/internal/domain/invoicing"
)

// --- Request DTOs ---

// CreateInvoiceRequest represents a request to create a draft invoice.
type CreateInvoiceRequest struct {
	CustomerName  string               `json:"customerName" binding:"required"`
	CustomerEmail string               `json:"customerEmail,omitempty"`
	Currency      string               `json:"currency" binding:"required"`
	DueAt         *time.Time           `json:"dueAt,omitempty"`
	Lines         []InvoiceLineRequest `json:"lines" binding:"required,min=1,dive"`
}

// InvoiceLineRequest represents a line in create/update requests.
type InvoiceLineRequest struct {
	Description string          `json:"description" binding:"required"`
	Quantity    decimal.Decimal `json:"quantity" binding:"required"`
	UnitPrice   decimal.Decimal `json:"unitPrice" binding:"required"`
	TaxRate     decimal.Decimal `json:"taxRate"`
}

// ToEntity converts request to domain entity.
func (r *CreateInvoiceRequest) ToEntity() *invoicing.Invoice {
	inv := invoicing.NewInvoice(r.CustomerName, r.Currency)
	inv.CustomerEmail = r.CustomerEmail
	inv.DueAt = r.DueAt

	for _, line := range r.Lines {
		inv.AddLine(line.Description, line.Quantity, line.UnitPrice, line.TaxRate)
	}

	return inv
}

// ListInvoicesRequest contains invoice list filters.
type ListInvoicesRequest struct {
	Status   string `form:"status"`
	Customer string `form:"customer"`
	Limit    int    `form:"limit"`
	Offset   int    `form:"offset"`
}

// ToFilter converts the request to a repository filter.
func (r *ListInvoicesRequest) ToFilter() invoicing.ListFilter {
	filter := invoicing.ListFilter{
		Customer: r.Customer,
		Limit:    r.Limit,
		Offset:   r.Offset,
	}
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 20
	}
	if r.Status != "" {
		status := invoicing.Status(r.Status)
		filter.Status = &status
	}
	return filter
}

// --- Response DTOs ---

// InvoiceResponse represents an invoice in API responses.
type InvoiceResponse struct {
	ID            string                `json:"id"`
	Number        string                `json:"number,omitempty"`
	Status        string                `json:"status"`
	CustomerName  string                `json:"customerName"`
	CustomerEmail string                `json:"customerEmail,omitempty"`
	Currency      string                `json:"currency"`
	Subtotal      decimal.Decimal       `json:"subtotal"`
	TaxAmount     decimal.Decimal       `json:"taxAmount"`
	Total         decimal.Decimal       `json:"total"`
	IssuedAt      *time.Time            `json:"issuedAt,omitempty"`
	DueAt         *time.Time            `json:"dueAt,omitempty"`
	CreatedAt     time.Time             `json:"createdAt"`
	UpdatedAt     time.Time             `json:"updatedAt"`
	Lines         []InvoiceLineResponse `json:"lines,omitempty"`
}

// InvoiceLineResponse represents a line in API responses.
type InvoiceLineResponse struct {
	LineNo      int             `json:"lineNo"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	TaxRate     decimal.Decimal `json:"taxRate"`
	TaxAmount   decimal.Decimal `json:"taxAmount"`
	Amount      decimal.Decimal `json:"amount"`
}

// FromInvoice builds the response from a domain invoice.
func FromInvoice(inv *invoicing.Invoice) InvoiceResponse {
	resp := InvoiceResponse{
		ID:            inv.ID.String(),
		Number:        inv.Number,
		Status:        string(inv.Status),
		CustomerName:  inv.CustomerName,
		CustomerEmail: inv.CustomerEmail,
		Currency:      inv.Currency,
		Subtotal:      inv.Subtotal,
		TaxAmount:     inv.TaxAmount,
		Total:         inv.Total,
		IssuedAt:      inv.IssuedAt,
		DueAt:         inv.DueAt,
		CreatedAt:     inv.CreatedAt,
		UpdatedAt:     inv.UpdatedAt,
	}
	for _, line := range inv.Lines {
		resp.Lines = append(resp.Lines, InvoiceLineResponse{
			LineNo:      line.LineNo,
			Description: line.Description,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			TaxRate:     line.TaxRate,
			TaxAmount:   line.TaxAmount,
			Amount:      line.Amount,
		})
	}
	return resp
}
