package main

import (
	"context"
	"log"
	"log/slog"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// requestLogger logs every request through slog. Server errors log at
// Error, everything else at Debug so production output stays quiet.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		fields := []any{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"ip", c.ClientIP(),
			"latency_ms", time.Since(start).Milliseconds(),
		}
		if q := c.Request.URL.RawQuery; q != "" {
			fields = append(fields, "query", q)
		}
		if len(c.Errors) > 0 {
			fields = append(fields, "errors", c.Errors.String())
		}

		if status >= 500 {
			logger.Error("http request", fields...)
			return
		}
		logger.Debug("http request", fields...)
	}
}

// newServerErrorLog adapts net/http's ErrorLog to slog. Handshake
// failures for hosts outside the autocert policy are dropped; scanners
// hitting the raw IP produce a steady stream of them.
func newServerErrorLog(logger *slog.Logger) *log.Logger {
	return log.New(&serverErrorWriter{logger: logger}, "", 0)
}

type serverErrorWriter struct {
	logger *slog.Logger
}

func (w *serverErrorWriter) Write(p []byte) (int, error) {
	msg := strings.TrimSpace(string(p))
	switch {
	case msg == "":
	case strings.Contains(msg, "TLS handshake error") && strings.Contains(msg, "not configured"):
	default:
		w.logger.Log(context.Background(), slog.LevelWarn, "http server", "message", msg)
	}
	return len(p), nil
}
