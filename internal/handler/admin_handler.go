package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/zarlabs/zar/internal/apperr"
	"github.com/zarlabs/zar/internal/config"
	"github.com/zarlabs/zar/internal/database"
	"github.com/zarlabs/zar/internal/models"
	"github.com/zarlabs/zar/internal/monitor"
	"github.com/zarlabs/zar/internal/repository"
	"github.com/zarlabs/zar/internal/security"
	"github.com/zarlabs/zar/internal/service"
)

// AdminHandler is the operator surface: account and URL administration,
// domain trust overrides, log/violation listings, runtime metrics, and the
// cache flush. The listing endpoints read repositories directly; they carry
// no business rules, only pagination.
type AdminHandler struct {
	auth    *service.AuthService
	urls    *service.URLService
	domains *service.DomainService
	logs    *repository.LogRepository
	limits  *repository.RateLimitRepository
	monitor *monitor.SystemMonitor
	tokens  *security.TokenService
	cache   *database.RedisDB
	cfg     config.CacheConfig
}

func NewAdminHandler(
	auth *service.AuthService,
	urls *service.URLService,
	domains *service.DomainService,
	logs *repository.LogRepository,
	limits *repository.RateLimitRepository,
	mon *monitor.SystemMonitor,
	tokens *security.TokenService,
	cache *database.RedisDB,
	cfg config.CacheConfig,
) *AdminHandler {
	return &AdminHandler{
		auth:    auth,
		urls:    urls,
		domains: domains,
		logs:    logs,
		limits:  limits,
		monitor: mon,
		tokens:  tokens,
		cache:   cache,
		cfg:     cfg,
	}
}

// Login handles POST /api/v1/admin/login, exchanging the operator
// password for a short-lived admin bearer token.
func (h *AdminHandler) Login(c *gin.Context) {
	var req models.AdminLoginRequest
	if err := bind(c, &req); err != nil {
		fail(c, err)
		return
	}
	if !h.tokens.VerifyAdminPassword(req.Password) {
		fail(c, apperr.Unauthorized("Invalid admin credentials"))
		return
	}
	token, expiry, err := h.tokens.MintAdminToken()
	if err != nil {
		fail(c, apperr.Internal(err))
		return
	}
	c.JSON(http.StatusOK, models.TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int64(time.Until(expiry).Seconds()),
	})
}

// Users handles GET /api/v1/admin/users.
func (h *AdminHandler) Users(c *gin.Context) {
	page := pageFrom(c)
	users, total, err := h.auth.ListUsers(c.Request.Context(), page)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, models.Paginate(total, page, users))
}

// DeleteUser handles DELETE /api/v1/admin/users/:user_id.
func (h *AdminHandler) DeleteUser(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		fail(c, apperr.BadRequest("Invalid user id"))
		return
	}
	if err := h.auth.DeleteUser(c.Request.Context(), userID); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// URLs handles GET /api/v1/admin/urls. ?active=true restricts the listing
// to live, unexpired URLs.
func (h *AdminHandler) URLs(c *gin.Context) {
	page := pageFrom(c)
	activeOnly, _ := strconv.ParseBool(c.Query("active"))
	urls, total, err := h.urls.AdminURLs(c.Request.Context(), page, activeOnly)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, models.Paginate(total, page, urls))
}

// DeleteURL handles DELETE /api/v1/admin/urls/:short_code. The default is a
// soft delete; ?hard=true removes the row and its analytics.
func (h *AdminHandler) DeleteURL(c *gin.Context) {
	hard, _ := strconv.ParseBool(c.Query("hard"))
	if err := h.urls.AdminDelete(c.Request.Context(), c.Param("short_code"), hard); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Domains handles GET /api/v1/admin/domains.
func (h *AdminHandler) Domains(c *gin.Context) {
	page := pageFrom(c)
	domains, total, err := h.domains.List(c.Request.Context(), page)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, models.Paginate(total, page, domains))
}

// SetDomainSecure handles PATCH /api/v1/admin/domains/:id. Marking a domain
// insecure soft-deletes every URL pointing at it.
func (h *AdminHandler) SetDomainSecure(c *gin.Context) {
	domainID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		fail(c, apperr.BadRequest("Invalid domain id"))
		return
	}
	var req models.SetDomainSecureRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, err)
		return
	}
	if err := h.domains.SetSecure(c.Request.Context(), domainID, *req.IsSecure); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": domainID, "is_secure": *req.IsSecure})
}

// Logs handles GET /api/v1/admin/logs. ?level filters by severity.
func (h *AdminHandler) Logs(c *gin.Context) {
	page := pageFrom(c)
	entries, total, err := h.logs.List(c.Request.Context(), c.Query("level"), page)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, models.Paginate(total, page, entries))
}

// LogStats handles GET /api/v1/admin/logs/stats.
func (h *AdminHandler) LogStats(c *gin.Context) {
	stats, err := h.logs.Stats(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// RateLimits handles GET /api/v1/admin/rate-limits. ?min_attempts hides
// clients below the threshold.
func (h *AdminHandler) RateLimits(c *gin.Context) {
	page := pageFrom(c)
	minAttempts, _ := strconv.Atoi(c.Query("min_attempts"))
	violations, total, err := h.limits.List(c.Request.Context(), minAttempts, page)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, models.Paginate(total, page, violations))
}

// Metrics handles GET /api/v1/admin/metrics.
func (h *AdminHandler) Metrics(c *gin.Context) {
	c.JSON(http.StatusOK, h.monitor.Snapshot())
}

// UserSessions handles GET /api/v1/admin/sessions/:user_id.
func (h *AdminHandler) UserSessions(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		fail(c, apperr.BadRequest("Invalid user id"))
		return
	}
	page := pageFrom(c)
	sessions, total, err := h.auth.Sessions(c.Request.Context(), userID, page)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, models.Paginate(total, page, sessions))
}

// FlushCache handles DELETE /api/v1/admin/cache, dropping every cached
// response so a config or content change takes effect immediately.
func (h *AdminHandler) FlushCache(c *gin.Context) {
	ctx := c.Request.Context()
	keys, err := h.cache.KeysByPrefix(ctx, h.cfg.Prefix)
	if err != nil {
		fail(c, apperr.Upstream("Cache unavailable", err))
		return
	}
	if len(keys) > 0 {
		if err := h.cache.Delete(ctx, keys...); err != nil {
			fail(c, apperr.Upstream("Cache unavailable", err))
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"detail": "Cache flushed", "deleted": len(keys)})
}
