package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/zarlabs/zar/internal/middleware"
	"github.com/zarlabs/zar/internal/models"
	"github.com/zarlabs/zar/internal/security"
	"github.com/zarlabs/zar/internal/service"
)

// URLHandler serves the shorten, redirect, verify, and stats endpoints.
type URLHandler struct {
	urls   *service.URLService
	auth   *service.AuthService
	tokens *security.TokenService
}

// NewURLHandler creates a new URL handler.
func NewURLHandler(urls *service.URLService, auth *service.AuthService, tokens *security.TokenService) *URLHandler {
	return &URLHandler{urls: urls, auth: auth, tokens: tokens}
}

// Shorten handles POST /api/v1/url. Authentication is optional; a valid
// refresh cookie without an access token triggers a silent refresh so the
// created URL still lands on the caller's account.
func (h *URLHandler) Shorten(c *gin.Context) {
	var req models.CreateURLRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, err)
		return
	}

	resp, err := h.urls.Shorten(c.Request.Context(), req, h.resolveUser(c))
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// resolveUser returns the authenticated user, if any. When only a refresh
// cookie is present it mints a fresh access token, slides the session, and
// re-sets both cookies on the way out. A stale cookie just means anonymous.
func (h *URLHandler) resolveUser(c *gin.Context) *uuid.UUID {
	if userID, ok := middleware.UserID(c); ok {
		return &userID
	}

	raw := security.RefreshTokenFrom(c)
	if raw == "" {
		return nil
	}
	pair, err := h.auth.Refresh(c.Request.Context(), raw)
	if err != nil {
		return nil
	}

	h.tokens.SetAuthCookies(c, pair.AccessToken, pair.AccessExpiry, pair.RefreshToken.String(), pair.RefreshExpiry)
	c.Set(middleware.ContextUserID, pair.UserID)
	return &pair.UserID
}

// Redirect handles GET /{short_code}: 307 to the original URL, the password
// challenge for protected links, or 307 to the expired page.
func (h *URLHandler) Redirect(c *gin.Context) {
	shortCode := c.Param("short_code")

	res, err := h.urls.Resolve(c.Request.Context(), shortCode, clickInfo(c))
	if err != nil {
		fail(c, err)
		return
	}

	if res.Kind == service.ResolveChallenge {
		renderChallenge(c, http.StatusOK, shortCode, false)
		return
	}
	c.Redirect(http.StatusTemporaryRedirect, res.Location)
}

// Verify handles POST /{short_code}/verify, accepting the challenge form or
// a JSON body. Success is a 303 so the browser turns the POST into a GET.
func (h *URLHandler) Verify(c *gin.Context) {
	shortCode := c.Param("short_code")

	var req models.VerifyPasswordRequest
	if err := bind(c, &req); err != nil {
		fail(c, err)
		return
	}

	res, err := h.urls.VerifyPassword(c.Request.Context(), shortCode, req.Password, clickInfo(c))
	if err != nil {
		if errors.Is(err, service.ErrWrongPassword) {
			renderChallenge(c, http.StatusUnauthorized, shortCode, true)
			return
		}
		fail(c, err)
		return
	}

	if res.Kind == service.ResolveExpired {
		c.Redirect(http.StatusTemporaryRedirect, res.Location)
		return
	}
	c.Redirect(http.StatusSeeOther, res.Location)
}

// Stats handles GET /api/v1/url/{short_code}/stats.
func (h *URLHandler) Stats(c *gin.Context) {
	stats, err := h.urls.Stats(c.Request.Context(), c.Param("short_code"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
