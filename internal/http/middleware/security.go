package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// SecurityOptions configures SecurityHeaders.
type SecurityOptions struct {
	// EnableHSTS sends Strict-Transport-Security on HTTPS requests only.
	// Enable it only when TLS reaches the process or a trusted proxy.
	EnableHSTS bool
	HSTSMaxAge time.Duration // <= 0 means 180 days

	// NoStore marks responses uncacheable. Leave it off for routes that rely
	// on ETag revalidation.
	NoStore bool

	// ExposeHeaders lists response headers browser clients may read.
	ExposeHeaders []string
}

// DefaultExposeHeaders are the response headers the API's clients read.
var DefaultExposeHeaders = []string{"X-Request-ID", "ETag", "Idempotency-Replayed", "Retry-After"}

// SecurityHeaders sets conservative headers for a JSON API.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	maxAge := int(opt.HSTSMaxAge.Seconds())
	if maxAge <= 0 {
		maxAge = int((180 * 24 * time.Hour).Seconds())
	}
	hsts := "max-age=" + strconv.Itoa(maxAge) + "; includeSubDomains"
	expose := strings.Join(opt.ExposeHeaders, ", ")

	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cross-Origin-Resource-Policy", "same-origin")

		if opt.NoStore {
			h.Set("Cache-Control", "no-store")
		}
		if opt.EnableHSTS && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security", hsts)
		}
		if expose != "" && h.Get("Access-Control-Expose-Headers") == "" {
			h.Set("Access-Control-Expose-Headers", expose)
		}
		c.Next()
	}
}

// isHTTPS trusts X-Forwarded-Proto, so the proxy must overwrite it.
func isHTTPS(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
