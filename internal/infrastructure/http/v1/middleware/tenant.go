package middleware

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"numera/internal/core/apperror"
	"numera/internal/core/tenant"
	"numera/internal/infrastructure/storage/postgres"
	"numera/pkg/logger"
)

// TenantHeader is the HTTP header for tenant identification.
// Accepts a tenant UUID or slug.
const TenantHeader = "X-Tenant-ID"

// Tenant middleware resolves the tenant from the header and injects the
// database pool and TxManager into the request context. All rows are
// tenant-scoped, so this middleware MUST run before any repository call.
func Tenant(registry tenant.Registry, pool *postgres.Pool, txManager *postgres.TxManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		raw := c.GetHeader(TenantHeader)
		if raw == "" {
			_ = c.Error(
				apperror.NewValidation("tenant is required").
					WithDetail("header", TenantHeader),
			)
			c.Abort()
			return
		}

		var (
			t   *tenant.Tenant
			err error
		)
		if _, parseErr := uuid.Parse(raw); parseErr == nil {
			t, err = registry.GetByID(ctx, raw)
		} else {
			t, err = registry.GetBySlug(ctx, raw)
		}
		if err != nil {
			logger.Warn(ctx, "tenant resolution failed", "tenant", raw, "error", err)

			switch {
			case errors.Is(err, tenant.ErrTenantNotFound):
				_ = c.Error(apperror.NewNotFound("tenant", raw))
			default:
				_ = c.Error(apperror.NewInternal(err).WithDetail("tenant", raw))
			}
			c.Abort()
			return
		}

		if t.Status != tenant.StatusActive {
			_ = c.Error(apperror.NewForbidden("tenant is not active").WithDetail("tenant_id", t.ID))
			c.Abort()
			return
		}

		ctx = tenant.WithPool(ctx, pool.Unwrap())
		ctx = tenant.WithTxManager(ctx, txManager)
		ctx = tenant.WithTenant(ctx, t)

		c.Request = c.Request.WithContext(ctx)

		// Also set in Gin context for handlers that use c.Get()
		c.Set("tenant_id", t.ID)

		c.Next()
	}
}
