package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"numera/internal/core/apperror"
	appctx "numera/internal/core/context"
	"numera/internal/core/security"
	"numera/internal/core/tenant"
	"numera/internal/domain/auth"
)

// JWTValidator interface for token validation.
type JWTValidator interface {
	ValidateToken(tokenString string) (*appctx.UserContext, error)
}

// Auth middleware authenticates the request: interactive callers present a
// JWT bearer token, server-to-server callers present the tenant API key in
// X-API-Key. API-key callers act as a service identity with the manager
// role (allocation and issuance, no configuration changes).
func Auth(validator JWTValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			if apiKey := c.GetHeader("X-API-Key"); apiKey != "" {
				authenticateAPIKey(c, apiKey)
				return
			}
			abortUnauthorized(c, "missing authorization header")
			return
		}

		// Check Bearer prefix
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			abortUnauthorized(c, "invalid authorization header format")
			return
		}

		user, err := validator.ValidateToken(parts[1])
		if err != nil {
			_ = c.Error(apperror.NewUnauthorized("invalid token"))
			c.Abort()
			return
		}

		// Enforce tenant match: the tenant resolved from X-Tenant-ID must
		// match the token's tenant.
		resolvedTenantID := tenant.GetTenantID(c.Request.Context())
		if resolvedTenantID != "" && user.TenantID != "" && resolvedTenantID != user.TenantID {
			_ = c.Error(
				apperror.NewForbidden("tenant mismatch").
					WithDetail("header_tenant_id", resolvedTenantID).
					WithDetail("token_tenant_id", user.TenantID),
			)
			c.Abort()
			return
		}

		// Add user to context
		ctx := appctx.WithUser(c.Request.Context(), user)
		c.Request = c.Request.WithContext(ctx)

		// Store in gin context for easy access
		c.Set("user_id", user.UserID)

		c.Next()
	}
}

func authenticateAPIKey(c *gin.Context, apiKey string) {
	t := tenant.GetTenant(c.Request.Context())
	if t == nil || !auth.CheckAPIKey(t.APIKeyHash, apiKey) {
		abortUnauthorized(c, "invalid api key")
		return
	}

	user := &appctx.UserContext{
		UserID:   "service:" + t.Slug,
		TenantID: t.ID,
		Roles:    []security.Role{security.RoleManager},
	}
	ctx := appctx.WithUser(c.Request.Context(), user)
	c.Request = c.Request.WithContext(ctx)
	c.Set("user_id", user.UserID)

	c.Next()
}

func abortUnauthorized(c *gin.Context, message string) {
	_ = c.Error(apperror.NewUnauthorized(message))
	c.Abort()
}
