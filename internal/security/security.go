// Package security implements password hashing, token issuance and
// verification, the admin gate, and the cookie policy.
package security

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/zarlabs/zar/internal/config"
)

// Cookie names the token pair travels under.
const (
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")
)

// HashPassword bcrypt-hashes the trimmed input at the default cost.
func HashPassword(raw string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(strings.TrimSpace(raw)), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword compares the trimmed input against a bcrypt hash.
// bcrypt's comparison is constant-time over the derived key.
func VerifyPassword(raw, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(strings.TrimSpace(raw))) == nil
}

// TokenService mints and verifies the JWT access tokens and carries the
// cookie policy. The signing algorithm is fixed by configuration and is the
// only method accepted during verification.
type TokenService struct {
	cfg        config.AuthConfig
	production bool
	method     jwt.SigningMethod

	now func() time.Time
}

// NewTokenService builds a TokenService for the configured algorithm.
// Unknown algorithm names fall back to HS256.
func NewTokenService(cfg config.AuthConfig, production bool) *TokenService {
	return &TokenService{
		cfg:        cfg,
		production: production,
		method:     signingMethod(cfg.Algorithm),
		now:        time.Now,
	}
}

func signingMethod(name string) jwt.SigningMethod {
	switch name {
	case "HS384":
		return jwt.SigningMethodHS384
	case "HS512":
		return jwt.SigningMethodHS512
	default:
		return jwt.SigningMethodHS256
	}
}

// AccessTokenTTL is the configured access-token lifetime.
func (t *TokenService) AccessTokenTTL() time.Duration { return t.cfg.AccessTokenExpire }

// RefreshTokenTTL is the configured refresh-token lifetime.
func (t *TokenService) RefreshTokenTTL() time.Duration { return t.cfg.RefreshTokenExpire }

// MintAccessToken signs a JWT with the user ID as subject.
func (t *TokenService) MintAccessToken(userID uuid.UUID) (string, time.Time, error) {
	return t.mint(userID.String())
}

// MintAdminToken signs the admin-gate JWT. The subject is the configured
// admin password string; routes behind the gate verify it on every call.
func (t *TokenService) MintAdminToken() (string, time.Time, error) {
	return t.mint(t.cfg.AdminPassword)
}

func (t *TokenService) mint(subject string) (string, time.Time, error) {
	expiresAt := t.now().Add(t.cfg.AccessTokenExpire)
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(t.now()),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	signed, err := jwt.NewWithClaims(t.method, claims).SignedString([]byte(t.cfg.SecretKey))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Subject verifies the signature and expiry of a token and returns its
// subject claim.
func (t *TokenService) Subject(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(t.cfg.SecretKey), nil
	}, jwt.WithValidMethods([]string{t.method.Alg()}), jwt.WithTimeFunc(t.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", ErrInvalidToken
	}
	if !parsed.Valid {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// VerifyAccessToken returns the user ID a valid access token was minted for.
func (t *TokenService) VerifyAccessToken(token string) (uuid.UUID, error) {
	subject, err := t.Subject(token)
	if err != nil {
		return uuid.Nil, err
	}
	userID, err := uuid.Parse(subject)
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}
	return userID, nil
}

// VerifyAdminToken reports whether the token passes the admin gate. An empty
// configured password closes the gate entirely.
func (t *TokenService) VerifyAdminToken(token string) bool {
	if t.cfg.AdminPassword == "" {
		return false
	}
	subject, err := t.Subject(token)
	return err == nil && subject == t.cfg.AdminPassword
}

// VerifyAdminPassword checks a raw password against the configured one.
// Used by the admin login endpoint that mints the gate token.
func (t *TokenService) VerifyAdminPassword(raw string) bool {
	return t.cfg.AdminPassword != "" && raw == t.cfg.AdminPassword
}

// NewRefreshToken returns a fresh server-side refresh token value.
func (t *TokenService) NewRefreshToken() uuid.UUID {
	return uuid.New()
}

// SetAuthCookies writes the token pair as HttpOnly cookies on path "/".
// Production gets Secure + SameSite=None; everything else SameSite=Lax.
func (t *TokenService) SetAuthCookies(c *gin.Context, access string, accessExpiry time.Time, refresh string, refreshExpiry time.Time) {
	t.setCookie(c, AccessTokenCookie, access, accessExpiry)
	t.setCookie(c, RefreshTokenCookie, refresh, refreshExpiry)
}

// ClearAuthCookies expires both cookies on the client.
func (t *TokenService) ClearAuthCookies(c *gin.Context) {
	t.applySameSite(c)
	c.SetCookie(AccessTokenCookie, "", -1, "/", "", t.production, true)
	c.SetCookie(RefreshTokenCookie, "", -1, "/", "", t.production, true)
}

func (t *TokenService) setCookie(c *gin.Context, name, value string, expiry time.Time) {
	maxAge := int(expiry.Sub(t.now()).Seconds())
	if maxAge < 0 {
		maxAge = 0
	}
	t.applySameSite(c)
	c.SetCookie(name, value, maxAge, "/", "", t.production, true)
}

func (t *TokenService) applySameSite(c *gin.Context) {
	if t.production {
		c.SetSameSite(http.SameSiteNoneMode)
	} else {
		c.SetSameSite(http.SameSiteLaxMode)
	}
}

// BearerToken extracts the access token from the Authorization header or the
// access cookie, in that order.
func BearerToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if cookie, err := c.Cookie(AccessTokenCookie); err == nil {
		return cookie
	}
	return ""
}

// RefreshTokenFrom extracts the refresh cookie, if present.
func RefreshTokenFrom(c *gin.Context) string {
	cookie, err := c.Cookie(RefreshTokenCookie)
	if err != nil {
		return ""
	}
	return cookie
}
