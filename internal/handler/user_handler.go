package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zarlabs/zar/internal/middleware"
	"github.com/zarlabs/zar/internal/models"
	"github.com/zarlabs/zar/internal/service"
)

// UserHandler serves the authenticated user's own surface: their URLs,
// sessions, and dashboard stats. Every route sits behind RequireUser, so
// the user id is always present on the context.
type UserHandler struct {
	urls *service.URLService
	auth *service.AuthService
}

func NewUserHandler(urls *service.URLService, auth *service.AuthService) *UserHandler {
	return &UserHandler{urls: urls, auth: auth}
}

// URLs handles GET /api/v1/user/urls.
func (h *UserHandler) URLs(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	page := pageFrom(c)
	results, total, err := h.urls.UserURLs(c.Request.Context(), userID, page)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, models.Paginate(total, page, results))
}

// DeleteURL handles DELETE /api/v1/user/url. The short code travels in the
// body rather than the path so the route never collides with /user/urls.
func (h *UserHandler) DeleteURL(c *gin.Context) {
	var req models.DeleteURLRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, err)
		return
	}
	userID, _ := middleware.UserID(c)
	if err := h.urls.DeleteOwned(c.Request.Context(), userID, req.ShortCode); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SetFavorite handles PATCH /api/v1/user/url/:short_code/favorite.
func (h *UserHandler) SetFavorite(c *gin.Context) {
	var req models.FavoriteRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, err)
		return
	}
	userID, _ := middleware.UserID(c)
	shortCode := c.Param("short_code")
	if err := h.urls.SetFavorite(c.Request.Context(), userID, shortCode, *req.IsFavorite); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"short_code": shortCode, "is_favorite": *req.IsFavorite})
}

// Sessions handles GET /api/v1/user/sessions. Raw refresh tokens never
// appear in the payload; the Session model withholds them.
func (h *UserHandler) Sessions(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	page := pageFrom(c)
	sessions, total, err := h.auth.Sessions(c.Request.Context(), userID, page)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, models.Paginate(total, page, sessions))
}

// Stats handles GET /api/v1/user/stats.
func (h *UserHandler) Stats(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	stats, err := h.urls.UserStats(c.Request.Context(), userID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
