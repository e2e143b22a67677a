package middleware

import (
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func TestRedact(t *testing.T) {
	in := "id=123e4567-e89b-12d3-a456-426614174000&email=jane@example.com&tel=+1 212-555-1212"
	out := redact(in)
	for _, leak := range []string{"123e4567", "jane@example.com", "555-1212"} {
		if strings.Contains(out, leak) {
			t.Fatalf("%q leaked in %q", leak, out)
		}
	}
	for _, tag := range []string{"[REDACTED:id]", "[REDACTED:email]", "[REDACTED:phone]"} {
		if !strings.Contains(out, tag) {
			t.Fatalf("missing %s in %q", tag, out)
		}
	}
}

func TestRedactingLogger_AccessLine(t *testing.T) {
	buf := captureLogs(t)
	r := gin.New()
	r.Use(RequestID(), Identity(), RedactingLogger(RedactOptions{MaskHeaders: []string{"X-Client-Secret"}}))
	r.POST("/posts/:id/publish", func(c *gin.Context) { c.Status(http.StatusConflict) })

	do(r, http.MethodPost, "/posts/p-1/publish?who=jane@example.com", map[string]string{
		"Authorization":   "Bearer tok",
		"X-Client-Secret": "shh",
		HeaderUserID:      "alice",
		requestIDHeader:   "rid-9",
	})

	lines := logLines(t, buf)
	if len(lines) != 1 {
		t.Fatalf("want one line, got %d", len(lines))
	}
	l := lines[0]
	checks := map[string]any{
		"level":      "warn",
		"message":    "http_request",
		"route":      "/posts/:id/publish",
		"post_id":    "p-1",
		"user_id":    "alice",
		"request_id": "rid-9",
		"status":     float64(http.StatusConflict),
		"query":      "who=[REDACTED:email]",
	}
	for k, want := range checks {
		if l[k] != want {
			t.Errorf("%s=%v want %v", k, l[k], want)
		}
	}
	headers, _ := l["headers"].(map[string]any)
	if headers["Authorization"] != "[REDACTED]" || headers["X-Client-Secret"] != "[REDACTED]" {
		t.Fatalf("headers not masked: %v", headers)
	}
}

func TestRedactingLogger_AttachesScopedLogger(t *testing.T) {
	buf := captureLogs(t)
	r := gin.New()
	r.Use(RequestID(), RedactingLogger(RedactOptions{}))
	r.GET("/posts/:id", func(c *gin.Context) {
		LoggerFrom(c).Info().Msg("from handler")
		zerolog.Ctx(c.Request.Context()).Info().Msg("from service")
		c.Status(http.StatusOK)
	})
	do(r, http.MethodGet, "/posts/abc", nil)

	lines := logLines(t, buf)
	if len(lines) != 3 {
		t.Fatalf("want 3 lines, got %d", len(lines))
	}
	for _, l := range lines[:2] {
		if l["post_id"] != "abc" || l["request_id"] == nil {
			t.Fatalf("scoped fields missing: %v", l)
		}
	}
}

func TestRedactingLogger_ServerErrorLevel(t *testing.T) {
	buf := captureLogs(t)
	r := gin.New()
	r.Use(RedactingLogger(RedactOptions{}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusBadGateway) })
	do(r, http.MethodGet, "/x", nil)
	if lines := logLines(t, buf); lines[0]["level"] != "error" {
		t.Fatalf("level=%v", lines[0]["level"])
	}
}
