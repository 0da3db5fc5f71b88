package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"seqnum/internal/core/apperror"
	"seqnum/pkg/logger"
)

// retryAfterSeconds is advertised on retryable errors such as a locked
// row-backed sequence.
const retryAfterSeconds = "1"

// ErrorHandler writes the last gin error as an AppError body. Causes are
// logged and never sent.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err

		// If response already written by handler, do not override it.
		if c.Writer.Written() {
			return
		}

		ctx := c.Request.Context()
		appErr, ok := apperror.AsAppError(err)
		if !ok {
			logger.Error(ctx, "unhandled error", "error", err)
			appErr = apperror.NewInternal(err).WithDetail("request_id", c.GetString("request_id"))
			c.JSON(http.StatusInternalServerError, appErr.Body())
			return
		}

		if appErr.Err != nil {
			if appErr.Retryable {
				logger.Warn(ctx, "request error", "code", appErr.Code, "cause", appErr.Err)
			} else {
				logger.Error(ctx, "request error", "code", appErr.Code, "cause", appErr.Err)
			}
		}
		if appErr.Retryable {
			c.Header("Retry-After", retryAfterSeconds)
		}
		c.JSON(appErr.HTTPStatus, appErr.Body())
	}
}
