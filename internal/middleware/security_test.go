package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func headersFor(t *testing.T, production bool, path string) http.Header {
	t.Helper()
	r := gin.New()
	r.Use(SecurityHeaders(production))
	r.Any("/*any", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w.Header()
}

func TestSecurityHeadersBaseline(t *testing.T) {
	h := headersFor(t, false, "/api/v1/url/abc/stats")

	assert.Equal(t, "nosniff", h.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", h.Get("X-Frame-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", h.Get("Referrer-Policy"))
	assert.Contains(t, h.Get("Permissions-Policy"), "geolocation=()")
	assert.Contains(t, h.Get("Permissions-Policy"), "accelerometer=()")
}

func TestSecurityHeadersCSPSplit(t *testing.T) {
	api := headersFor(t, false, "/api/v1/url/abc/stats")
	assert.Equal(t, "default-src 'none'; frame-ancestors 'none';", api.Get("Content-Security-Policy"))

	html := headersFor(t, false, "/")
	assert.Contains(t, html.Get("Content-Security-Policy"), "default-src 'self'")
	assert.Contains(t, html.Get("Content-Security-Policy"), "script-src 'self' https://cdnjs.cloudflare.com")
}

func TestSecurityHeadersCacheControlTiers(t *testing.T) {
	api := headersFor(t, false, "/api/v1/auth/login")
	assert.Equal(t, "no-store, no-cache, must-revalidate, private", api.Get("Cache-Control"))
	assert.Equal(t, "no-cache", api.Get("Pragma"))
	assert.Equal(t, "0", api.Get("Expires"))

	static := headersFor(t, false, "/static/app.js")
	assert.Equal(t, "public, max-age=31536000, immutable", static.Get("Cache-Control"))
	assert.Empty(t, static.Get("Pragma"))

	page := headersFor(t, false, "/")
	assert.Equal(t, "no-cache", page.Get("Cache-Control"))
}

func TestSecurityHeadersHSTSProductionOnly(t *testing.T) {
	dev := headersFor(t, false, "/")
	assert.Empty(t, dev.Get("Strict-Transport-Security"))

	prod := headersFor(t, true, "/")
	assert.Equal(t, "max-age=31536000; includeSubDomains; preload", prod.Get("Strict-Transport-Security"))
}

func TestSecurityHeadersSkipDocs(t *testing.T) {
	h := headersFor(t, true, "/docs")
	assert.Empty(t, h.Get("Content-Security-Policy"))
	assert.Empty(t, h.Get("X-Frame-Options"))
}

func corsEngine() *gin.Engine {
	r := gin.New()
	r.Use(CORS(DefaultCORSConfig()))
	r.GET("/resource", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	return r
}

func TestCORSEchoesAllowedOrigin(t *testing.T) {
	r := corsEngine()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/resource", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), "X-Request-ID")
	assert.Equal(t, "Origin", w.Header().Get("Vary"))
}

func TestCORSUnknownOriginGetsNoGrant(t *testing.T) {
	r := corsEngine()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/resource", nil)
	req.Header.Set("Origin", "https://evil.example")
	r.ServeHTTP(w, req)

	// The request still succeeds; the browser enforces the missing grant.
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Origin", w.Header().Get("Vary"))
}

func TestCORSPreflight(t *testing.T) {
	r := corsEngine()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/resource", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "PATCH")
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Authorization")
	assert.Equal(t, "86400", w.Header().Get("Access-Control-Max-Age"))
}

func TestCORSPreflightFromUnknownOrigin(t *testing.T) {
	r := corsEngine()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/resource", nil)
	req.Header.Set("Origin", "https://evil.example")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Methods"))
}
