// Package context provides request-scoped values extraction.
package context

import (
	"context"
)

// CallerContext describes who is asking for a sequence value.
// It is filled by HTTP middleware (JWT claims or headers) and by the CLI.
type CallerContext struct {
	UserID    string
	CompanyID string // active company, empty when none
	Timezone  string // IANA name, empty means UTC
	Roles     []string
}

type callerContextKey struct{}

// WithCaller adds CallerContext to context.
func WithCaller(ctx context.Context, caller *CallerContext) context.Context {
	return context.WithValue(ctx, callerContextKey{}, caller)
}

// GetCaller returns CallerContext from context.
func GetCaller(ctx context.Context) *CallerContext {
	if v, ok := ctx.Value(callerContextKey{}).(*CallerContext); ok {
		return v
	}
	return nil
}

// GetUserID returns user ID from context or empty string.
func GetUserID(ctx context.Context) string {
	if c := GetCaller(ctx); c != nil {
		return c.UserID
	}
	return ""
}

// GetCompanyID returns the active company ID from context or empty string.
func GetCompanyID(ctx context.Context) string {
	if c := GetCaller(ctx); c != nil {
		return c.CompanyID
	}
	return ""
}

// GetTimezone returns the caller timezone from context or empty string.
func GetTimezone(ctx context.Context) string {
	if c := GetCaller(ctx); c != nil {
		return c.Timezone
	}
	return ""
}

// HasRole checks if caller has specific role.
func HasRole(ctx context.Context, role string) bool {
	c := GetCaller(ctx)
	if c == nil {
		return false
	}
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}
