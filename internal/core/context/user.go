// Package context provides request-scoped values extraction.
package context

import (
	"context"

	"numera/internal/core/security"
)

// UserContext contains authenticated user information.
type UserContext struct {
	UserID    string
	TenantID  string
	Email     string
	Roles     []security.Role
	IsAdmin   bool
	SessionID string
}

type userContextKey struct{}

// WithUser adds UserContext to context.
func WithUser(ctx context.Context, user *UserContext) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// GetUser returns UserContext from context.
func GetUser(ctx context.Context) *UserContext {
	if v, ok := ctx.Value(userContextKey{}).(*UserContext); ok {
		return v
	}
	return nil
}

// GetUserID returns user ID from context or empty string.
func GetUserID(ctx context.Context) string {
	if u := GetUser(ctx); u != nil {
		return u.UserID
	}
	return ""
}

// GetTenantID returns tenant ID from context or empty string.
func GetTenantID(ctx context.Context) string {
	if u := GetUser(ctx); u != nil {
		return u.TenantID
	}
	return ""
}

// GetRoles returns the user's roles, or nil when unauthenticated.
func GetRoles(ctx context.Context) []security.Role {
	if u := GetUser(ctx); u != nil {
		return u.Roles
	}
	return nil
}

// HasRole checks if user has specific role.
func HasRole(ctx context.Context, role security.Role) bool {
	u := GetUser(ctx)
	if u == nil {
		return false
	}
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Can reports whether the user holds the capability through any role.
// Admins hold every capability.
func Can(ctx context.Context, cap security.Capability) bool {
	u := GetUser(ctx)
	if u == nil {
		return false
	}
	if u.IsAdmin {
		return true
	}
	return security.AnyCan(u.Roles, cap)
}
