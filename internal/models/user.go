package models

import (
	"time"

	"github.com/google/uuid"
)

// User is an account holder. Emails are stored lowercase and trimmed; the
// password hash never crosses any interface.
type User struct {
	ID           uuid.UUID  `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
}

// LoginAttempt tracks credential failures for one user. A row exists for
// every user from signup onward.
type LoginAttempt struct {
	UserID        uuid.UUID  `json:"user_id"`
	Attempts      int        `json:"attempts"`
	LastFailedAt  *time.Time `json:"last_failed_at,omitempty"`
	LockedUntil   *time.Time `json:"locked_until,omitempty"`
	LastSuccessAt *time.Time `json:"last_success_at,omitempty"`
}

// Locked reports whether logins are rejected at the given instant.
func (a *LoginAttempt) Locked(now time.Time) bool {
	return a.LockedUntil != nil && now.Before(*a.LockedUntil)
}

// Session is one refresh-token grant, unique per
// (user_id, device_ip, user_agent). Re-authenticating from the same device
// replaces the token on the existing row.
type Session struct {
	ID           int64      `json:"id"`
	UserID       uuid.UUID  `json:"user_id"`
	RefreshToken uuid.UUID  `json:"-"`
	IssuedAt     time.Time  `json:"issued_at"`
	ExpiresAt    time.Time  `json:"expires_at"`
	Revoked      bool       `json:"revoked"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty"`
	DeviceName   *string    `json:"device_name,omitempty"`
	DeviceIP     string     `json:"device_ip"`
	UserAgent    string     `json:"user_agent"`
	LastUsedAt   time.Time  `json:"last_used_at"`
}

// Usable reports whether the session can still mint access tokens.
func (s *Session) Usable(now time.Time) bool {
	return !s.Revoked && now.Before(s.ExpiresAt)
}

// SignupRequest creates an account.
type SignupRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8,max=128"`
}

// LoginRequest exchanges credentials for a cookie pair.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// AdminLoginRequest exchanges the operator password for an admin token.
// Accepts a form post as well, matching OAuth2 password-style tooling.
type AdminLoginRequest struct {
	Password string `form:"password" json:"password" binding:"required"`
}

// TokenResponse is the login/refresh body; the same tokens also travel as
// HttpOnly cookies.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}
