package middleware

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/zarlabs/zar/internal/apperr"
	"github.com/zarlabs/zar/internal/security"
)

// RequireUser admits only requests carrying a valid access token, from the
// Authorization header or the access cookie, and stores the user ID in the
// context.
func RequireUser(tokens *security.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := authenticate(c, tokens)
		if err != nil {
			c.Error(err)
			c.Abort()
			return
		}
		c.Set(ContextUserID, userID)
		c.Next()
	}
}

// OptionalUser stores the user ID when a valid access token is present and
// stays silent otherwise. Handlers that treat anonymous and owned flows
// differently read the context.
func OptionalUser(tokens *security.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID, err := authenticate(c, tokens); err == nil {
			c.Set(ContextUserID, userID)
		}
		c.Next()
	}
}

// RequireAdmin admits only requests whose bearer token passes the admin
// gate. The gate is verified on every call, never cached.
func RequireAdmin(tokens *security.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !tokens.VerifyAdminToken(security.BearerToken(c)) {
			c.Error(apperr.Forbidden("Admin access is required"))
			c.Abort()
			return
		}
		c.Next()
	}
}

func authenticate(c *gin.Context, tokens *security.TokenService) (uuid.UUID, *apperr.Error) {
	token := security.BearerToken(c)
	if token == "" {
		return uuid.Nil, apperr.Unauthorized("Not authenticated")
	}
	userID, err := tokens.VerifyAccessToken(token)
	if err != nil {
		if errors.Is(err, security.ErrExpiredToken) {
			return uuid.Nil, apperr.Unauthorized("Token has expired")
		}
		return uuid.Nil, apperr.Unauthorized("Could not validate credentials")
	}
	return userID, nil
}

// UserID returns the authenticated user set by RequireUser or OptionalUser.
func UserID(c *gin.Context) (uuid.UUID, bool) {
	value, exists := c.Get(ContextUserID)
	if !exists {
		return uuid.Nil, false
	}
	id, ok := value.(uuid.UUID)
	return id, ok
}
