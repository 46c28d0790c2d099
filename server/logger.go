package server

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		attrs := []any{
			"method", c.Request.Method,
			"status", c.Writer.Status(),
			"path", c.Request.URL.Path,
			"latency", time.Since(start),
		}
		if c.Errors != nil {
			slog.Warn("HTTP request", append(attrs, "errors", c.Errors.String())...)
			return
		}
		slog.Debug("HTTP request", attrs...)
	}
}
