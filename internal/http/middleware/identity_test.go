package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestUserID_Resolution(t *testing.T) {
	if got := UserID(nil); got != DefaultUserID {
		t.Fatalf("nil context: got %q", got)
	}

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if got := UserID(c); got != DefaultUserID {
		t.Fatalf("no request: got %q", got)
	}

	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.Header.Set(HeaderUserID, "  alice ")
	if got := UserID(c); got != "alice" {
		t.Fatalf("header: got %q", got)
	}

	c.Set(ctxKeyUserID, "bob")
	if got := UserID(c); got != "bob" {
		t.Fatalf("context wins over header: got %q", got)
	}
}

func TestIdentity_DoesNotOverrideUpstream(t *testing.T) {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if c.GetHeader("X-Auth") == "yes" {
			c.Set(ctxKeyUserID, "authenticated")
		}
		c.Next()
	})
	r.Use(Identity())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(ctxKeyUserID)) })

	if w := do(r, http.MethodGet, "/", map[string]string{HeaderUserID: "u1"}); w.Body.String() != "u1" {
		t.Fatalf("want u1, got %q", w.Body.String())
	}
	w := do(r, http.MethodGet, "/", map[string]string{HeaderUserID: "u1", "X-Auth": "yes"})
	if w.Body.String() != "authenticated" {
		t.Fatalf("upstream identity overwritten: %q", w.Body.String())
	}
	if w := do(r, http.MethodGet, "/", nil); w.Body.String() != "" {
		t.Fatalf("no header should leave context empty, got %q", w.Body.String())
	}
}

func TestCronAuth(t *testing.T) {
	newRouter := func(secret string) *gin.Engine {
		r := gin.New()
		r.Use(RequestID())
		r.POST("/cron/scheduler", CronAuth(secret), func(c *gin.Context) { c.Status(http.StatusOK) })
		return r
	}

	open := newRouter("")
	if w := do(open, http.MethodPost, "/cron/scheduler", nil); w.Code != http.StatusOK {
		t.Fatalf("empty secret should pass, got %d", w.Code)
	}

	guarded := newRouter("s3cret")
	cases := []struct {
		name   string
		auth   string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong", "Bearer nope", http.StatusUnauthorized},
		{"no scheme", "s3cret", http.StatusUnauthorized},
		{"ok", "Bearer s3cret", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			hdr := map[string]string{}
			if tc.auth != "" {
				hdr["Authorization"] = tc.auth
			}
			w := do(guarded, http.MethodPost, "/cron/scheduler", hdr)
			if w.Code != tc.status {
				t.Fatalf("status=%d want %d", w.Code, tc.status)
			}
			if tc.status == http.StatusUnauthorized {
				body := decodeBody(t, w)
				rid, _ := body["request_id"].(string)
				if body["code"] != "unauthorized" || rid == "" {
					t.Fatalf("unexpected body: %v", body)
				}
			}
		})
	}
}
