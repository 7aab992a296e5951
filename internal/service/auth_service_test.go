package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/zarlabs/zar/internal/apperr"
	"github.com/zarlabs/zar/internal/config"
	"github.com/zarlabs/zar/internal/logger"
	"github.com/zarlabs/zar/internal/models"
	"github.com/zarlabs/zar/internal/repository"
	"github.com/zarlabs/zar/internal/security"
)

const testIphoneUA = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15"

var authTestCfg = config.AuthConfig{
	SecretKey:          "service-test-secret",
	Algorithm:          "HS256",
	AdminPassword:      "op-secret",
	AccessTokenExpire:  15 * time.Minute,
	RefreshTokenExpire: 7 * 24 * time.Hour,
	MaxFailedAttempts:  5,
	LockTime:           15 * time.Minute,
}

func newAuthService(t *testing.T) (*AuthService, *mockUserStore, *mockSessionStore) {
	t.Helper()
	users := new(mockUserStore)
	sessions := new(mockSessionStore)
	tokens := security.NewTokenService(authTestCfg, false)
	return NewAuthService(users, sessions, tokens, authTestCfg, logger.NewNop()), users, sessions
}

func hashedUser(t *testing.T, password string) *models.User {
	t.Helper()
	hash, err := security.HashPassword(password)
	require.NoError(t, err)
	return &models.User{
		ID:           uuid.New(),
		Email:        "ada@example.com",
		PasswordHash: hash,
	}
}

// Failed attempts keep accumulating after a lock expires, so the very next
// failure re-locks the account instead of granting five fresh tries.
func TestLoginReLocksAfterLockExpires(t *testing.T) {
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	svc, users, sessions := newAuthService(t)
	svc.now = func() time.Time { return base }

	user := hashedUser(t, "right-password")
	expiredLock := base.Add(-time.Minute)
	attempt := &models.LoginAttempt{UserID: user.ID, Attempts: 5, LockedUntil: &expiredLock}

	users.On("GetByEmail", mock.Anything, "ada@example.com").Return(user, attempt, nil)
	users.On("SaveAttempts", mock.Anything, mock.MatchedBy(func(a *models.LoginAttempt) bool {
		return a.Attempts == 6 &&
			a.LockedUntil != nil && a.LockedUntil.Equal(base.Add(authTestCfg.LockTime)) &&
			a.LastFailedAt != nil && a.LastFailedAt.Equal(base)
	})).Return(nil).Once()

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "ada@example.com",
		Password: "wrong-password",
	}, Device{})

	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 403, appErr.Status)
	assert.Equal(t, "Account temporarily locked, try again later", appErr.Detail)
	users.AssertExpectations(t)
	sessions.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
}

// A lock ends exactly at its LockedUntil instant: a correct login at that
// instant succeeds and resets the counters.
func TestLoginAtLockExpiryInstant(t *testing.T) {
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	svc, users, sessions := newAuthService(t)
	svc.now = func() time.Time { return base }

	user := hashedUser(t, "right-password")
	lockEnd := base
	attempt := &models.LoginAttempt{UserID: user.ID, Attempts: 5, LockedUntil: &lockEnd}

	users.On("GetByEmail", mock.Anything, "ada@example.com").Return(user, attempt, nil)
	users.On("SaveAttempts", mock.Anything, mock.MatchedBy(func(a *models.LoginAttempt) bool {
		return a.Attempts == 0 && a.LockedUntil == nil && a.LastFailedAt == nil &&
			a.LastSuccessAt != nil && a.LastSuccessAt.Equal(base)
	})).Return(nil).Once()
	users.On("TouchLastLogin", mock.Anything, user.ID, base).Return(nil).Once()

	var saved *models.Session
	sessions.On("Upsert", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { saved = args.Get(1).(*models.Session) }).
		Return(nil).Once()

	pair, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "ada@example.com",
		Password: "right-password",
	}, Device{IP: "203.0.113.9", UserAgent: testIphoneUA})

	require.NoError(t, err)
	assert.Equal(t, user.ID, pair.UserID)
	assert.Equal(t, pair.RefreshToken, saved.RefreshToken)
	require.NotNil(t, saved.DeviceName)
	assert.Equal(t, "iPhone", *saved.DeviceName)
	assert.True(t, saved.IssuedAt.Equal(base))
	assert.True(t, saved.ExpiresAt.Equal(base.Add(authTestCfg.RefreshTokenExpire)))
	users.AssertExpectations(t)
}

func TestLoginTruncatesOversizedDeviceFields(t *testing.T) {
	svc, users, sessions := newAuthService(t)

	user := hashedUser(t, "right-password")
	users.On("GetByEmail", mock.Anything, mock.Anything).
		Return(user, &models.LoginAttempt{UserID: user.ID}, nil)
	users.On("SaveAttempts", mock.Anything, mock.Anything).Return(nil)
	users.On("TouchLastLogin", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	var saved *models.Session
	sessions.On("Upsert", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { saved = args.Get(1).(*models.Session) }).
		Return(nil)

	longIP := strings.Repeat("f", 80)
	longUA := strings.Repeat("x", 300)
	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    user.Email,
		Password: "right-password",
	}, Device{IP: longIP, UserAgent: longUA})

	require.NoError(t, err)
	assert.Len(t, saved.DeviceIP, 45)
	assert.Len(t, saved.UserAgent, 255)
}

// Refresh keeps the token and slides its expiry; only the access token is
// reminted.
func TestRefreshSlidesExpiry(t *testing.T) {
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	svc, _, sessions := newAuthService(t)
	svc.now = func() time.Time { return base }

	token := uuid.New()
	userID := uuid.New()
	session := &models.Session{
		ID:           42,
		UserID:       userID,
		RefreshToken: token,
		ExpiresAt:    base.Add(time.Hour),
	}

	sessions.On("GetByRefreshToken", mock.Anything, token).Return(session, nil)
	sessions.On("Touch", mock.Anything, int64(42), base.Add(authTestCfg.RefreshTokenExpire), base).
		Return(nil).Once()

	pair, err := svc.Refresh(context.Background(), token.String())

	require.NoError(t, err)
	assert.Equal(t, token, pair.RefreshToken)
	assert.True(t, pair.RefreshExpiry.Equal(base.Add(authTestCfg.RefreshTokenExpire)))
	assert.Equal(t, userID, pair.UserID)
	assert.NotEmpty(t, pair.AccessToken)
	sessions.AssertExpectations(t)
}

// A session revoked between the read and the touch must not be resurrected.
func TestRefreshLosesTouchRace(t *testing.T) {
	svc, _, sessions := newAuthService(t)

	token := uuid.New()
	sessions.On("GetByRefreshToken", mock.Anything, token).Return(&models.Session{
		ID:           42,
		UserID:       uuid.New(),
		RefreshToken: token,
		ExpiresAt:    time.Now().Add(time.Hour),
	}, nil)
	sessions.On("Touch", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(repository.ErrNotFound)

	_, err := svc.Refresh(context.Background(), token.String())

	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 401, appErr.Status)
	assert.Equal(t, "Session expired or revoked", appErr.Detail)
}

// Sessions expire at their ExpiresAt instant, not one tick later.
func TestRefreshRejectsSessionAtExpiryInstant(t *testing.T) {
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	svc, _, sessions := newAuthService(t)
	svc.now = func() time.Time { return base }

	token := uuid.New()
	sessions.On("GetByRefreshToken", mock.Anything, token).Return(&models.Session{
		ID:           42,
		UserID:       uuid.New(),
		RefreshToken: token,
		ExpiresAt:    base,
	}, nil)

	_, err := svc.Refresh(context.Background(), token.String())

	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 401, appErr.Status)
	sessions.AssertNotCalled(t, "Touch", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestLogoutIgnoresMalformedToken(t *testing.T) {
	svc, _, sessions := newAuthService(t)

	require.NoError(t, svc.Logout(context.Background(), "not-a-uuid"))
	sessions.AssertNotCalled(t, "Revoke", mock.Anything, mock.Anything, mock.Anything)
}

func TestPurgeSessionsUsesRetentionWindow(t *testing.T) {
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	svc, _, sessions := newAuthService(t)
	svc.now = func() time.Time { return base }

	sessions.On("PurgeStale", mock.Anything, base, sessionRetention).
		Return(int64(2), nil).Once()

	require.NoError(t, svc.PurgeSessions(context.Background()))
	sessions.AssertExpectations(t)
}
