package handlers

import (
	"github.com/gin-gonic/gin"

	"numera/internal/core/apperror"
	"numera/internal/core/id"
	"numera/internal/domain/invoicing"
	"numera/internal/infrastructure/http/v1/dto"
)

// InvoiceHandler serves invoice endpoints.
type InvoiceHandler struct {
	*BaseHandler
	service *invoicing.Service
}

// NewInvoiceHandler creates a new invoice handler.
func NewInvoiceHandler(base *BaseHandler, service *invoicing.Service) *InvoiceHandler {
	return &InvoiceHandler{
		BaseHandler: base,
		service:     service,
	}
}

// RegisterRoutes registers invoice endpoints on the router group.
func (h *InvoiceHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Create)
	rg.GET("", h.List)
	rg.GET("/:id", h.GetByID)
	rg.DELETE("/:id", h.Delete)
	rg.POST("/:id/issue", h.Issue)
	rg.POST("/:id/void", h.Void)
}

func (h *InvoiceHandler) parseID(c *gin.Context) (id.ID, bool) {
	invoiceID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid invoice id").WithDetail("id", c.Param("id")))
		return id.Nil(), false
	}
	return invoiceID, true
}

// Create stores a new draft invoice.
func (h *InvoiceHandler) Create(c *gin.Context) {
	var req dto.CreateInvoiceRequest
	if !h.BindJSON(c, &req) {
		return
	}

	inv := req.ToEntity()
	if err := h.service.Create(c.Request.Context(), inv); err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, inv.ID.String())
}

// GetByID retrieves an invoice with lines.
func (h *InvoiceHandler) GetByID(c *gin.Context) {
	invoiceID, ok := h.parseID(c)
	if !ok {
		return
	}

	inv, err := h.service.GetByID(c.Request.Context(), invoiceID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromInvoice(inv))
}

// List retrieves invoices with filtering.
func (h *InvoiceHandler) List(c *gin.Context) {
	var req dto.ListInvoicesRequest
	if !h.BindQuery(c, &req) {
		return
	}

	filter := req.ToFilter()
	invoices, total, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}

	items := make([]dto.InvoiceResponse, 0, len(invoices))
	for _, inv := range invoices {
		items = append(items, dto.FromInvoice(inv))
	}

	h.OK(c, dto.ListResponse{
		Items:      items,
		TotalCount: total,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	})
}

// Delete removes a draft invoice.
func (h *InvoiceHandler) Delete(c *gin.Context) {
	invoiceID, ok := h.parseID(c)
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), invoiceID); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}

// Issue finalizes a draft invoice and allocates its number.
func (h *InvoiceHandler) Issue(c *gin.Context) {
	invoiceID, ok := h.parseID(c)
	if !ok {
		return
	}

	inv, err := h.service.Issue(c.Request.Context(), invoiceID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromInvoice(inv))
}

// Void cancels an issued invoice. Its number stays consumed.
func (h *InvoiceHandler) Void(c *gin.Context) {
	invoiceID, ok := h.parseID(c)
	if !ok {
		return
	}

	inv, err := h.service.Void(c.Request.Context(), invoiceID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromInvoice(inv))
}
