package middleware

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zarlabs/zar/internal/config"
	"github.com/zarlabs/zar/internal/database"
	"github.com/zarlabs/zar/internal/logger"
)

const (
	// maxCacheKeyLength is the raw fingerprint size above which keys are
	// hashed.
	maxCacheKeyLength = 250
	// maxCacheBody is the largest response body the cache will store.
	maxCacheBody = 1 << 20
)

// sensitiveParams anywhere in the query string disqualify a request from
// caching. Substring match on the lowercased query, so "api_key" and
// "session_id" are caught too.
var sensitiveParams = []string{"password", "token", "key", "secret", "auth", "session"}

// noCachePrefixes are never served from cache: cookie-scoped surfaces, the
// token endpoints, health probes, and static assets (which carry their own
// immutable cache policy).
var noCachePrefixes = []string{
	"/favicon.ico",
	"/static",
	"/api/v1/auth",
	"/api/v1/user",
	"/api/v1/admin",
	"/health",
	"/ready",
	"/live",
}

// fingerprintHeaders differentiate cached variants per client.
var fingerprintHeaders = []string{"authorization", "accept-language", "user-agent"}

// routeTTLPrefixes map path prefixes to the named per-route TTLs in
// CacheConfig. First match wins; unmatched paths use the default TTL.
var routeTTLPrefixes = []struct {
	prefix string
	route  string
}{
	{"/api/v1/url", "stats"},
	{"/api/v1/user", "user_urls"},
	{"/api/v1/admin", "admin"},
}

// cachedResponse is the stored shape of one response.
type cachedResponse struct {
	Content   []byte            `json:"content"`
	Status    int               `json:"status_code"`
	Headers   map[string]string `json:"headers"`
	MediaType string            `json:"media_type"`
	CachedAt  time.Time         `json:"cached_at"`
}

// ResponseCache is a read-through cache for idempotent GETs. Lookups happen
// inline; writes go through a bounded set of background slots so a slow cache
// never delays a response. Every response carries X-Cache: HIT, MISS, or
// BYPASS.
type ResponseCache struct {
	cache *database.RedisDB
	cfg   config.CacheConfig
	sem   chan struct{}
	log   *logger.Logger
}

// NewResponseCache creates the cache middleware.
func NewResponseCache(cache *database.RedisDB, cfg config.CacheConfig, log *logger.Logger) *ResponseCache {
	slots := cfg.MaxConcurrentOps
	if slots < 1 {
		slots = 1
	}
	return &ResponseCache{
		cache: cache,
		cfg:   cfg,
		sem:   make(chan struct{}, slots),
		log:   log,
	}
}

// captureWriter tees the response body while it streams to the client.
// Bodies past maxCacheBody stop accumulating and are not stored.
type captureWriter struct {
	gin.ResponseWriter
	body     bytes.Buffer
	overflow bool
}

func (w *captureWriter) capture(b []byte) {
	if w.overflow {
		return
	}
	if w.body.Len()+len(b) > maxCacheBody {
		w.overflow = true
		w.body.Reset()
		return
	}
	w.body.Write(b)
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.capture(b)
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.capture([]byte(s))
	return w.ResponseWriter.WriteString(s)
}

// Middleware returns the read-through handler.
func (rc *ResponseCache) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rc.cacheable(c) {
			c.Header("X-Cache", "BYPASS")
			c.Next()
			return
		}

		key := rc.key(c)

		if entry, ok := rc.lookup(c.Request.Context(), key); ok {
			rc.replay(c, key, entry)
			return
		}

		writer := &captureWriter{ResponseWriter: c.Writer}
		c.Writer = writer
		c.Header("X-Cache", "MISS")
		c.Header("X-Cache-Key", keyTag(key))

		c.Next()

		if len(c.Errors) > 0 || writer.Status() != http.StatusOK ||
			writer.overflow || writer.body.Len() == 0 {
			return
		}
		rc.store(key, rc.ttlFor(c.Request.URL.Path), writer)
	}
}

// cacheable applies the eligibility rules: GET only, no sensitive query
// parameters, no excluded prefix, no client no-cache directive, and an
// Authorization header only on the public surface.
func (rc *ResponseCache) cacheable(c *gin.Context) bool {
	if c.Request.Method != http.MethodGet {
		return false
	}

	path := c.Request.URL.Path
	if hasAnyPrefix(path, noCachePrefixes) {
		return false
	}

	query := strings.ToLower(c.Request.URL.RawQuery)
	for _, param := range sensitiveParams {
		if strings.Contains(query, param) {
			return false
		}
	}

	cacheControl := strings.ToLower(c.GetHeader("Cache-Control"))
	if strings.Contains(cacheControl, "no-cache") || strings.Contains(cacheControl, "no-store") {
		return false
	}

	if c.GetHeader("Authorization") != "" && !strings.HasPrefix(path, "/public/") {
		return false
	}

	return true
}

// key builds the cache key from the request fingerprint. Long fingerprints
// collapse to an md5 hex digest.
func (rc *ResponseCache) key(c *gin.Context) string {
	parts := make([]string, 0, len(fingerprintHeaders))
	for _, name := range fingerprintHeaders {
		if value := c.GetHeader(name); value != "" {
			if len(value) > 50 {
				value = value[:50]
			}
			parts = append(parts, name+":"+value)
		}
	}

	fingerprint := c.Request.URL.Path + "?" + c.Request.URL.RawQuery + "|" + strings.Join(parts, ",")
	if len(fingerprint) > maxCacheKeyLength {
		sum := md5.Sum([]byte(fingerprint))
		return rc.cfg.Prefix + hex.EncodeToString(sum[:])
	}

	sanitized := strings.NewReplacer(" ", "_", "/", ":").Replace(fingerprint)
	return rc.cfg.Prefix + sanitized
}

// keyTag is the short key fragment exposed in X-Cache-Key.
func keyTag(key string) string {
	if i := strings.LastIndexByte(key, ':'); i >= 0 {
		key = key[i+1:]
	}
	if len(key) > 20 {
		key = key[:20]
	}
	return key
}

// ttlFor resolves the per-route TTL by path prefix.
func (rc *ResponseCache) ttlFor(path string) time.Duration {
	for _, mapping := range routeTTLPrefixes {
		if strings.HasPrefix(path, mapping.prefix) {
			return rc.cfg.TTLFor(mapping.route)
		}
	}
	return rc.cfg.DefaultTTL
}

// lookup fetches and validates a stored entry. Entries older than twice the
// default TTL are evicted and treated as misses, as are corrupted ones.
func (rc *ResponseCache) lookup(ctx context.Context, key string) (*cachedResponse, bool) {
	var entry cachedResponse
	found, err := rc.cache.GetJSON(ctx, key, &entry)
	if err != nil {
		rc.log.Warnw("response cache read failed", "error", err, "key", key)
		if err := rc.cache.Delete(ctx, key); err != nil {
			rc.log.Warnw("response cache eviction failed", "error", err, "key", key)
		}
		return nil, false
	}
	if !found {
		return nil, false
	}

	if time.Since(entry.CachedAt) > 2*rc.cfg.DefaultTTL {
		if err := rc.cache.Delete(ctx, key); err != nil {
			rc.log.Warnw("response cache eviction failed", "error", err, "key", key)
		}
		return nil, false
	}

	return &entry, true
}

// replay writes a stored response and short-circuits the chain.
func (rc *ResponseCache) replay(c *gin.Context, key string, entry *cachedResponse) {
	h := c.Writer.Header()
	for name, value := range entry.Headers {
		h.Set(name, value)
	}
	h.Set("X-Cache", "HIT")
	h.Set("X-Cache-Key", keyTag(key))

	if rc.cfg.Debug {
		rc.log.Debugw("response cache hit", "key", key, "age", time.Since(entry.CachedAt))
	}

	c.Data(entry.Status, entry.MediaType, entry.Content)
	c.Abort()
}

// store queues an async cache write. When every slot is busy the write is
// skipped; the next miss will try again.
func (rc *ResponseCache) store(key string, ttl time.Duration, writer *captureWriter) {
	entry := &cachedResponse{
		Content:   bytes.Clone(writer.body.Bytes()),
		Status:    writer.Status(),
		Headers:   storableHeaders(writer.Header()),
		MediaType: writer.Header().Get("Content-Type"),
		CachedAt:  time.Now().UTC(),
	}

	select {
	case rc.sem <- struct{}{}:
	default:
		rc.log.Warnw("response cache slots busy, skipping write", "key", key)
		return
	}

	go func() {
		defer func() { <-rc.sem }()
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := rc.cache.SetJSON(ctx, key, entry, ttl); err != nil {
			rc.log.Warnw("response cache write failed", "error", err, "key", key)
		} else if rc.cfg.Debug {
			rc.log.Debugw("response cached", "key", key, "ttl", ttl)
		}
	}()
}

// storableHeaders filters out credentials and the per-request headers that
// must be recomputed on every response.
func storableHeaders(h http.Header) map[string]string {
	skip := map[string]struct{}{
		"Set-Cookie":            {},
		"Authorization":         {},
		"X-Api-Key":             {},
		"X-Cache":               {},
		"X-Cache-Key":           {},
		"X-Request-Id":          {},
		"X-Response-Time":       {},
		"X-Ratelimit-Limit":     {},
		"X-Ratelimit-Remaining": {},
		"X-Ratelimit-Reset":     {},
		"Content-Length":        {},
	}

	headers := make(map[string]string, len(h))
	for name, values := range h {
		if _, drop := skip[http.CanonicalHeaderKey(name)]; drop || len(values) == 0 {
			continue
		}
		headers[name] = values[0]
	}
	return headers
}
