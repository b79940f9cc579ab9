package middleware

import (
	"github.com/gin-gonic/gin"

	"numera/internal/core/apperror"
	appctx "numera/internal/core/context"
	"numera/internal/core/security"
)

// RequireCapability checks the authenticated user's roles for a capability.
// Admins automatically hold all capabilities.
//
// Role gates on mutating operations are enforced a second time inside the
// domain layer; this middleware just fails the obvious cases early.
func RequireCapability(cap security.Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := appctx.GetUser(c.Request.Context())
		if user == nil {
			_ = c.Error(apperror.NewUnauthorized("authentication required"))
			c.Abort()
			return
		}

		if !appctx.Can(c.Request.Context(), cap) {
			_ = c.Error(
				apperror.NewForbidden("insufficient permissions").
					WithDetail("required_capability", string(cap)),
			)
			c.Abort()
			return
		}

		c.Next()
	}
}
