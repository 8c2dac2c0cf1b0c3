package main

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestServerErrorLogDropsHostPolicyNoise(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	errorLog := newServerErrorLog(logger)

	errorLog.Print("http: TLS handshake error from 203.0.113.7:4431: acme/autocert: host \"203.0.113.7\" not configured in HostWhitelist")
	if buf.Len() != 0 {
		t.Fatalf("host-policy handshake noise should be dropped, got %q", buf.String())
	}

	errorLog.Print("http: TLS handshake error from 203.0.113.7:4431: EOF")
	out := buf.String()
	if !strings.Contains(out, "http server") || !strings.Contains(out, "EOF") {
		t.Fatalf("real server errors should reach the log, got %q", out)
	}
	if !strings.Contains(out, `"level":"WARN"`) {
		t.Fatalf("server errors should log at warn, got %q", out)
	}
}

func TestRequestLoggerLevels(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	router := gin.New()
	router.Use(requestLogger(logger))
	router.GET("/ok", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	router.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ok?x=1", nil))
	out := buf.String()
	if !strings.Contains(out, `"level":"DEBUG"`) {
		t.Fatalf("successful requests should log at debug, got %q", out)
	}
	if !strings.Contains(out, `"path":"/ok"`) || !strings.Contains(out, `"query":"x=1"`) {
		t.Fatalf("expected path and query fields, got %q", out)
	}

	buf.Reset()
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	out = buf.String()
	if !strings.Contains(out, `"level":"ERROR"`) {
		t.Fatalf("5xx requests should log at error, got %q", out)
	}
	if strings.Contains(out, `"query"`) {
		t.Fatalf("empty query should be omitted, got %q", out)
	}
}
