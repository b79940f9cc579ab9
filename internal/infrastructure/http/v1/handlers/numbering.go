package handlers

import (
	"github.com/gin-gonic/gin"

	corenumbering "numera/internal/core/numbering"
	"numera/internal/core/security"
	"numera/internal/domain/numbering"
	"numera/internal/infrastructure/http/v1/dto"
	"numera/internal/infrastructure/http/v1/middleware"
	"numera/internal/infrastructure/storage/postgres"
)

// NumberingHandler serves the numbering configuration endpoints.
type NumberingHandler struct {
	*BaseHandler
	service *numbering.Service
	audit   *postgres.AuditService
}

// NewNumberingHandler creates a new numbering handler.
func NewNumberingHandler(base *BaseHandler, service *numbering.Service, audit *postgres.AuditService) *NumberingHandler {
	return &NumberingHandler{
		BaseHandler: base,
		service:     service,
		audit:       audit,
	}
}

// RegisterRoutes registers numbering endpoints on the router group.
func (h *NumberingHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.GetConfig)
	rg.PUT("", h.UpdateConfig)
	rg.POST("/validate", h.ValidateConfig)
	rg.GET("/preview", h.Preview)
	rg.POST("/allocate", h.Allocate)
	// Gated twice: here and in the engine, so a different transport
	// cannot bypass the check.
	rg.POST("/override", middleware.RequireCapability(security.CapabilityNumberingOverride), h.Override)
	rg.GET("/audit", h.AuditHistory)
}

// GetConfig returns the tenant's configuration with current warnings.
func (h *NumberingHandler) GetConfig(c *gin.Context) {
	cfg, res, err := h.service.GetConfig(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromConfig(*cfg, res.Warnings))
}

// UpdateConfig applies an edited rule set. Validation errors are returned
// through the error middleware; warnings ride along with the saved config.
func (h *NumberingHandler) UpdateConfig(c *gin.Context) {
	var req dto.UpdateNumberingConfigRequest
	if !h.BindJSON(c, &req) {
		return
	}

	res, err := h.service.UpdateConfig(c.Request.Context(), req.ToConfig())
	if err != nil {
		h.Error(c, err)
		return
	}

	cfg, _, err := h.service.GetConfig(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromConfig(*cfg, res.Warnings))
}

// ValidateConfig checks a candidate rule set without saving it. Always 200:
// the findings are the payload, not an error.
func (h *NumberingHandler) ValidateConfig(c *gin.Context) {
	var req dto.ValidateNumberingConfigRequest
	if !h.BindJSON(c, &req) {
		return
	}

	res := corenumbering.Validate(req.ToConfig())
	h.OK(c, dto.ValidationResultResponse{
		Valid:    res.Valid(),
		Errors:   res.Errors,
		Warnings: res.Warnings,
	})
}

// Preview renders the next number without consuming it.
func (h *NumberingHandler) Preview(c *gin.Context) {
	number, warnings, err := h.service.Preview(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.PreviewResponse{Number: number, Warnings: warnings})
}

// Allocate consumes the next invoice number. Exposed for integrations that
// number documents outside this service; invoice issuance allocates
// internally instead of calling this.
func (h *NumberingHandler) Allocate(c *gin.Context) {
	alloc, err := h.service.AllocateNext(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.AllocationResponse{
		Number:   alloc.Number,
		Sequence: alloc.Sequence,
		Warnings: alloc.Warnings,
	})
}

// Override sets the counter to an operator-chosen value.
func (h *NumberingHandler) Override(c *gin.Context) {
	var req dto.ManualOverrideRequest
	if !h.BindJSON(c, &req) {
		return
	}

	cfg, err := h.service.ManualOverride(c.Request.Context(), req.NextSequence)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromConfig(*cfg, nil))
}

// AuditHistory returns the tenant's configuration audit trail.
func (h *NumberingHandler) AuditHistory(c *gin.Context) {
	limit := h.ParseIntQuery(c, "limit", 50)
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	entries, err := h.audit.History(c.Request.Context(), limit)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, gin.H{"items": entries})
}
