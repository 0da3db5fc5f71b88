// Package middleware provides HTTP middleware components.
package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"seqnum/internal/core/apperror"
	appctx "seqnum/internal/core/context"
	"seqnum/pkg/logger"
)

// Recovery turns a panic into a 500 INTERNAL_ERROR body. It is the outermost
// middleware, so it writes the response itself. The stack goes to the log
// only.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if p := recover(); p != nil {
				ctx := c.Request.Context()
				logger.Error(ctx, "panic recovered",
					"panic", p,
					"method", c.Request.Method,
					"route", c.FullPath(),
					"stack", string(debug.Stack()),
				)

				appErr := apperror.NewInternal(fmt.Errorf("panic: %v", p)).
					WithDetail("request_id", appctx.GetRequestID(ctx))
				if c.Writer.Written() {
					c.Abort()
					return
				}
				c.AbortWithStatusJSON(appErr.HTTPStatus, appErr.Body())
			}
		}()
		c.Next()
	}
}
