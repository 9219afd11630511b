package security

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(middleware gin.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	r := gin.New()
	r.Use(middleware)
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHeadersMiddleware_SetsSecurityHeaders(t *testing.T) {
	w := serve(HeadersMiddleware(), httptest.NewRequest(http.MethodGet, "/ping", nil))

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", w.Header().Get("Referrer-Policy"))
	assert.Contains(t, w.Header().Get("Content-Security-Policy"), "default-src 'none'")
	assert.NotEmpty(t, w.Header().Get("Permissions-Policy"))
}

func TestCORSMiddleware_OriginFiltering(t *testing.T) {
	cases := []struct {
		name    string
		allowed []string
		origin  string
		granted bool
	}{
		{"listed origin", []string{"https://app.mediplex.test"}, "https://app.mediplex.test", true},
		{"wildcard", []string{"*"}, "https://anywhere.test", true},
		{"foreign origin", []string{"https://app.mediplex.test"}, "https://evil.test", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ping", nil)
			req.Header.Set("Origin", tc.origin)
			w := serve(CORSMiddleware(tc.allowed), req)

			got := w.Header().Get("Access-Control-Allow-Origin") != ""
			assert.Equal(t, tc.granted, got)
		})
	}
}

func TestCORSMiddleware_TenantHeadersAllowed(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://app.mediplex.test")
	w := serve(CORSMiddleware([]string{"https://app.mediplex.test"}), req)

	allowed := w.Header().Get("Access-Control-Allow-Headers")
	assert.Contains(t, allowed, "Authorization")
	assert.Contains(t, allowed, "X-Organization-ID")
}

func TestCORSMiddleware_Preflight(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/ping", nil)
	req.Header.Set("Origin", "https://app.mediplex.test")
	w := serve(CORSMiddleware([]string{"*"}), req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.NotEmpty(t, w.Header().Get("Access-Control-Allow-Methods"))
}

func TestCORSMiddleware_NoCredentialsWithWildcard(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://anywhere.test")
	w := serve(CORSMiddleware([]string{"*"}), req)

	assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
}
