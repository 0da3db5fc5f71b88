package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"seqnum/pkg/logger"
)

// Logger puts log into the request context and writes one entry per
// request. Level follows the status: busy rows and client errors warn,
// server errors are errors, health checks are debug.
func Logger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Request = c.Request.WithContext(logger.WithLogger(c.Request.Context(), log))

		c.Next()

		status := c.Writer.Status()
		entry := log.WithContext(c.Request.Context())
		fields := []any{
			"method", c.Request.Method,
			"path", path,
			"route", c.FullPath(),
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, "error", c.Errors.Last().Error())
		}

		switch {
		case status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable:
			entry.Errorw("http request", fields...)
		case status >= http.StatusBadRequest:
			entry.Warnw("http request", fields...)
		case strings.HasPrefix(path, "/health/"), path == "/metrics":
			entry.Debugw("http request", fields...)
		default:
			entry.Infow("http request", fields...)
		}
	}
}
