package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zarlabs/zar/internal/apperr"
	"github.com/zarlabs/zar/internal/config"
	"github.com/zarlabs/zar/internal/database"
	"github.com/zarlabs/zar/internal/logger"
	"github.com/zarlabs/zar/internal/models"
)

// ViolationSink persists rate-limit overflows for the admin surface.
type ViolationSink interface {
	RecordViolation(ctx context.Context, v *models.RateLimitViolation) error
}

// RateLimiter enforces a fixed-window counter per client identifier. One
// pipelined INCR+EXPIRE per request; two requests racing past the limit in
// the same window both fail closed, which is the intended semantics.
type RateLimiter struct {
	cache      *database.RedisDB
	violations ViolationSink
	cfg        config.RateLimitConfig
	now        func() time.Time
	log        *logger.Logger
}

// NewRateLimiter creates the rate limiter middleware.
func NewRateLimiter(cache *database.RedisDB, violations ViolationSink, cfg config.RateLimitConfig, log *logger.Logger) *RateLimiter {
	return &RateLimiter{
		cache:      cache,
		violations: violations,
		cfg:        cfg,
		now:        time.Now,
		log:        log,
	}
}

// Middleware returns the rate-limit handler. Every response carries the
// X-RateLimit-* headers; overflows add Retry-After and fail with 429 through
// the error funnel. A cache outage fails open so the service keeps serving.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if skipEdge(c.Request.URL.Path) {
			c.Next()
			return
		}

		identifier := ClientIdentity(c)

		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		count, ttl, err := rl.cache.IncrementWindow(ctx, database.RateLimitKey(identifier), rl.cfg.Window)
		cancel()
		if err != nil {
			rl.log.Errorw("rate limiter unavailable, failing open",
				"error", err, "client", identifier)
			c.Next()
			return
		}

		reset := int(ttl.Seconds())
		if reset < 0 {
			reset = int(rl.cfg.Window.Seconds())
		}
		remaining := rl.cfg.MaxRequests - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.FormatInt(rl.cfg.MaxRequests, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.Itoa(reset))

		if count > rl.cfg.MaxRequests {
			rl.recordViolation(c, identifier, count)
			c.Header("Retry-After", strconv.Itoa(reset))
			c.Error(apperr.RateLimited(fmt.Sprintf("Rate limit exceeded. Try again in %d seconds.", reset)).
				WithMeta("client", identifier).
				WithMeta("attempts", count))
			c.Abort()
			return
		}

		c.Next()
	}
}

// recordViolation upserts the overflow row for this window and logs it.
// Persistence uses a detached context: the 429 goes out even when the client
// has already hung up.
func (rl *RateLimiter) recordViolation(c *gin.Context, identifier string, count int64) {
	now := rl.now().UTC()
	violation := &models.RateLimitViolation{
		IPAddress:     identifier,
		Path:          c.Request.URL.Path,
		Method:        c.Request.Method,
		WindowStart:   now.Truncate(rl.cfg.Window),
		LastAttemptAt: now,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rl.violations.RecordViolation(ctx, violation); err != nil {
		rl.log.Errorw("rate limit violation not persisted",
			"error", err, "client", identifier)
	}

	rl.log.Warnw("rate limit exceeded",
		"client", identifier,
		"path", violation.Path,
		"method", violation.Method,
		"attempts", count,
	)
}
