package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// Security header values. API routes get the deny-all CSP; the HTML pages
// (landing, challenge) get one that allows self-hosted assets plus the CDN
// the landing page pulls from.
const (
	cspAPI  = "default-src 'none'; frame-ancestors 'none';"
	cspHTML = "default-src 'self'; " +
		"script-src 'self' https://cdnjs.cloudflare.com; " +
		"style-src 'self' https://cdnjs.cloudflare.com 'unsafe-inline'; " +
		"img-src 'self' data: https:; " +
		"font-src 'self' https://cdnjs.cloudflare.com; " +
		"connect-src 'self'; " +
		"frame-ancestors 'none'; " +
		"base-uri 'self'; " +
		"form-action 'self';"
	permissionsPolicy = "geolocation=(), microphone=(), camera=(), payment=(), " +
		"usb=(), magnetometer=(), gyroscope=(), accelerometer=()"
	hstsPolicy = "max-age=31536000; includeSubDomains; preload"
)

// sensitivePathPrefixes never reach a shared cache: token and admin surfaces.
var sensitivePathPrefixes = []string{"/api/v1/auth/", "/api/v1/admin/"}

// SecurityHeaders stamps the response security headers on every request.
// Headers are set before dispatch so they ride along with whatever the
// handler, or the error funnel, writes. HSTS is production-only; once a
// browser sees it, plain HTTP stops working.
func SecurityHeaders(production bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if skipEdge(c.Request.URL.Path) {
			c.Next()
			return
		}

		path := c.Request.URL.Path
		api := strings.HasPrefix(path, "/api/")
		h := c.Writer.Header()

		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Permissions-Policy", permissionsPolicy)
		if api {
			h.Set("Content-Security-Policy", cspAPI)
		} else {
			h.Set("Content-Security-Policy", cspHTML)
		}
		if production {
			h.Set("Strict-Transport-Security", hstsPolicy)
		}

		switch {
		case api || hasAnyPrefix(path, sensitivePathPrefixes):
			h.Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
			h.Set("Pragma", "no-cache")
			h.Set("Expires", "0")
		case strings.HasPrefix(path, "/static/"):
			h.Set("Cache-Control", "public, max-age=31536000, immutable")
		default:
			h.Set("Cache-Control", "no-cache")
		}

		c.Next()
	}
}

func hasAnyPrefix(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// CORSConfig holds the cross-origin policy.
type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           int // preflight cache duration in seconds
}

// DefaultCORSConfig allows the local frontend dev servers with credentials,
// which the cookie-based auth flow requires.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedOrigins: []string{
			"http://localhost:5173",
			"http://localhost:3000",
			"http://localhost:8000",
		},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposedHeaders: []string{
			"X-Request-ID", "X-Response-Time", "X-Cache",
			"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset",
		},
		AllowCredentials: true,
		MaxAge:           86400,
	}
}

// CORS returns the cross-origin middleware. With credentials enabled the
// allowed origin is echoed back exactly, never wildcarded.
func CORS(cfg CORSConfig) gin.HandlerFunc {
	methods := strings.Join(cfg.AllowedMethods, ", ")
	headers := strings.Join(cfg.AllowedHeaders, ", ")
	exposed := strings.Join(cfg.ExposedHeaders, ", ")
	maxAge := strconv.Itoa(cfg.MaxAge)

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		c.Header("Vary", "Origin")

		allowed := ""
		for _, candidate := range cfg.AllowedOrigins {
			if candidate == origin || (candidate == "*" && !cfg.AllowCredentials) {
				allowed = candidate
				break
			}
		}

		if allowed != "" {
			c.Header("Access-Control-Allow-Origin", allowed)
			if cfg.AllowCredentials {
				c.Header("Access-Control-Allow-Credentials", "true")
			}
			if exposed != "" {
				c.Header("Access-Control-Expose-Headers", exposed)
			}
		}

		if c.Request.Method == http.MethodOptions {
			if allowed != "" {
				c.Header("Access-Control-Allow-Methods", methods)
				c.Header("Access-Control-Allow-Headers", headers)
				c.Header("Access-Control-Max-Age", maxAge)
			}
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
