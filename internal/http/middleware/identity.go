package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// HeaderUserID carries the caller identity until real auth sits in front
	// of the API.
	HeaderUserID = "X-User-ID"
	// DefaultUserID owns requests that name no user.
	DefaultUserID = "demo-user"

	ctxKeyUserID = "userID"
)

// Identity copies X-User-ID into the Gin context unless an upstream
// authenticator already set "userID".
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := c.Get(ctxKeyUserID); !ok {
			if h := strings.TrimSpace(c.GetHeader(HeaderUserID)); h != "" {
				c.Set(ctxKeyUserID, h)
			}
		}
		c.Next()
	}
}

// UserID resolves the caller: context value, then header, then DefaultUserID.
func UserID(c *gin.Context) string {
	if c == nil {
		return DefaultUserID
	}
	if v, ok := c.Get(ctxKeyUserID); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader(HeaderUserID)); h != "" {
			return h
		}
	}
	return DefaultUserID
}

// CronAuth guards the cron trigger routes with a shared bearer secret. An
// empty secret leaves the routes open, which is the local development setup.
func CronAuth(secret string) gin.HandlerFunc {
	want := []byte("Bearer " + secret)
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}
		got := []byte(strings.TrimSpace(c.GetHeader("Authorization")))
		if subtle.ConstantTimeCompare(got, want) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "unauthorized",
				"message":    "missing or invalid cron secret",
			})
			return
		}
		c.Next()
	}
}
