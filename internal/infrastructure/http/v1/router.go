// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"numera/internal/core/security"
	"numera/internal/core/tenant"
	"numera/internal/domain/invoicing"
	"numera/internal/domain/numbering"
	"numera/internal/infrastructure/http/v1/handlers"
	"numera/internal/infrastructure/http/v1/middleware"
	"numera/internal/infrastructure/storage/postgres"
	"numera/pkg/logger"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	// Pool is the shared database pool. All tenant data lives in one
	// database, scoped by tenant_id.
	Pool *postgres.Pool

	// TxManager runs all transactional work.
	TxManager *postgres.TxManager

	// TenantRegistry resolves tenants from the X-Tenant-ID header.
	TenantRegistry tenant.Registry

	// Logger for request logging
	Logger *logger.Logger

	// JWTValidator for token validation
	JWTValidator middleware.JWTValidator

	// NumberingService serves configuration and allocation endpoints.
	NumberingService *numbering.Service

	// InvoiceService serves invoice endpoints.
	InvoiceService *invoicing.Service

	// AuditService serves the configuration audit trail.
	AuditService *postgres.AuditService

	// Version is reported by the info endpoint.
	Version string
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	// Health endpoints (no auth, no tenant required)
	healthHandler := handlers.NewHealthHandler(cfg.Pool.Unwrap(), cfg.Version)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	// API v1
	apiV1 := router.Group("/api/v1")
	{
		protected := apiV1.Group("")
		protected.Use(middleware.Tenant(cfg.TenantRegistry, cfg.Pool, cfg.TxManager)) // 1. Resolve tenant, scope DB access
		protected.Use(middleware.Auth(cfg.JWTValidator))                              // 2. Validate JWT
		protected.Use(middleware.UserContext())                                       // 3. Add UserID to context for domain layer

		baseHandler := handlers.NewBaseHandler()

		// --- NUMBERING ---
		{
			handler := handlers.NewNumberingHandler(baseHandler, cfg.NumberingService, cfg.AuditService)
			group := protected.Group("/numbering")
			group.Use(middleware.RequireCapability(security.CapabilityNumberingRead))
			handler.RegisterRoutes(group)
		}

		// --- INVOICES ---
		{
			handler := handlers.NewInvoiceHandler(baseHandler, cfg.InvoiceService)
			group := protected.Group("/invoices")
			group.Use(middleware.RequireCapability(security.CapabilityInvoiceRead))
			handler.RegisterRoutes(group)
		}
	}

	return router
}
