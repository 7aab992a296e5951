package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zarlabs/zar/internal/middleware"
	"github.com/zarlabs/zar/internal/models"
	"github.com/zarlabs/zar/internal/security"
	"github.com/zarlabs/zar/internal/service"
)

// AuthHandler exposes signup, login, and session management. Tokens travel
// both in the JSON body (for API clients) and in cookies (for the browser
// pages), so every grant goes through setCookies.
type AuthHandler struct {
	auth   *service.AuthService
	tokens *security.TokenService
}

func NewAuthHandler(auth *service.AuthService, tokens *security.TokenService) *AuthHandler {
	return &AuthHandler{auth: auth, tokens: tokens}
}

// Signup handles POST /api/v1/auth/signup.
func (h *AuthHandler) Signup(c *gin.Context) {
	var req models.SignupRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, err)
		return
	}
	user, err := h.auth.Signup(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

// Login handles POST /api/v1/auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, err)
		return
	}
	pair, err := h.auth.Login(c.Request.Context(), req, deviceFrom(c))
	if err != nil {
		fail(c, err)
		return
	}
	h.setCookies(c, pair)
	c.JSON(http.StatusOK, pair.Response())
}

// Refresh handles POST /api/v1/auth/refresh. The refresh token is read from
// the cookie, never from the body, so it stays out of request logs.
func (h *AuthHandler) Refresh(c *gin.Context) {
	pair, err := h.auth.Refresh(c.Request.Context(), security.RefreshTokenFrom(c))
	if err != nil {
		fail(c, err)
		return
	}
	h.setCookies(c, pair)
	c.JSON(http.StatusOK, pair.Response())
}

// Logout handles POST /api/v1/auth/logout. Revoking an unknown or absent
// token is not an error: the outcome the client asked for already holds.
func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.auth.Logout(c.Request.Context(), security.RefreshTokenFrom(c)); err != nil {
		fail(c, err)
		return
	}
	h.tokens.ClearAuthCookies(c)
	c.JSON(http.StatusOK, gin.H{"detail": "Logged out"})
}

// LogoutAll handles POST /api/v1/auth/logout/all, revoking every session of
// the authenticated user.
func (h *AuthHandler) LogoutAll(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	revoked, err := h.auth.LogoutAll(c.Request.Context(), userID)
	if err != nil {
		fail(c, err)
		return
	}
	h.tokens.ClearAuthCookies(c)
	c.JSON(http.StatusOK, gin.H{"detail": "Logged out everywhere", "revoked_sessions": revoked})
}

// Me handles GET /api/v1/auth/me.
func (h *AuthHandler) Me(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	user, err := h.auth.User(c.Request.Context(), userID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *AuthHandler) setCookies(c *gin.Context, pair *service.TokenPair) {
	h.tokens.SetAuthCookies(c, pair.AccessToken, pair.AccessExpiry, pair.RefreshToken.String(), pair.RefreshExpiry)
}
