package middleware

import (
	"slices"
	"strings"

	"github.com/gin-gonic/gin"

	"seqnum/internal/core/apperror"
	appctx "seqnum/internal/core/context"
)

// Caller headers, used when the token does not carry the value or when
// no token is sent.
const (
	HeaderUserID    = "X-User-ID"
	HeaderCompanyID = "X-Company-ID"
	HeaderTimezone  = "X-Timezone"
)

// JWTValidator interface for token validation.
type JWTValidator interface {
	ValidateToken(tokenString string) (*appctx.CallerContext, error)
}

// Auth middleware requires a valid bearer token and populates caller context.
func Auth(validator JWTValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortUnauthorized(c, "missing authorization header")
			return
		}

		token, ok := bearerToken(authHeader)
		if !ok {
			abortUnauthorized(c, "invalid authorization header format")
			return
		}

		caller, err := validator.ValidateToken(token)
		if err != nil {
			abortUnauthorized(c, "invalid token")
			return
		}

		setCaller(c, withHeaders(c, caller))
		c.Next()
	}
}

// OptionalAuth validates a token if present. Without one, the caller is
// built from the X-User-ID, X-Company-ID and X-Timezone headers.
func OptionalAuth(validator JWTValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := &appctx.CallerContext{}

		if authHeader := c.GetHeader("Authorization"); authHeader != "" && validator != nil {
			token, ok := bearerToken(authHeader)
			if !ok {
				abortUnauthorized(c, "invalid authorization header format")
				return
			}
			validated, err := validator.ValidateToken(token)
			if err != nil {
				abortUnauthorized(c, "invalid token")
				return
			}
			caller = validated
		}

		setCaller(c, withHeaders(c, caller))
		c.Next()
	}
}

// RequireRole middleware checks if caller has one of roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := appctx.GetCaller(c.Request.Context())
		if caller == nil || caller.UserID == "" {
			abortUnauthorized(c, "authentication required")
			return
		}

		for _, required := range roles {
			if slices.Contains(caller.Roles, required) {
				c.Next()
				return
			}
		}
		_ = c.Error(
			apperror.NewForbidden("insufficient permissions").
				WithDetail("required_roles", roles),
		)
		c.Abort()
	}
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// withHeaders fills fields the token left empty.
func withHeaders(c *gin.Context, caller *appctx.CallerContext) *appctx.CallerContext {
	if caller.UserID == "" {
		caller.UserID = c.GetHeader(HeaderUserID)
	}
	if caller.CompanyID == "" {
		caller.CompanyID = c.GetHeader(HeaderCompanyID)
	}
	if caller.Timezone == "" {
		caller.Timezone = c.GetHeader(HeaderTimezone)
	}
	return caller
}

func setCaller(c *gin.Context, caller *appctx.CallerContext) {
	ctx := appctx.WithCaller(c.Request.Context(), caller)
	c.Request = c.Request.WithContext(ctx)
	c.Set("user_id", caller.UserID)
	c.Set("company_id", caller.CompanyID)
}

func abortUnauthorized(c *gin.Context, message string) {
	_ = c.Error(apperror.NewUnauthorized(message))
	c.Abort()
}
