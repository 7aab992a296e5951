package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zarlabs/zar/internal/apperr"
	"github.com/zarlabs/zar/internal/config"
	"github.com/zarlabs/zar/internal/logger"
	"github.com/zarlabs/zar/internal/models"
	"github.com/zarlabs/zar/internal/repository"
	"github.com/zarlabs/zar/internal/security"
)

// Revoked sessions are kept for audit this long before the janitor drops
// them; expired ones go as soon as they lapse.
const sessionRetention = 30 * 24 * time.Hour

// UserStore is the slice of the user repository the service consumes.
type UserStore interface {
	Create(ctx context.Context, email, passwordHash string) (*models.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, *models.LoginAttempt, error)
	SaveAttempts(ctx context.Context, attempt *models.LoginAttempt) error
	TouchLastLogin(ctx context.Context, userID uuid.UUID, at time.Time) error
	List(ctx context.Context, page models.Page) ([]models.User, int64, error)
	Delete(ctx context.Context, userID uuid.UUID) error
}

// SessionStore is the slice of the session repository the service consumes.
type SessionStore interface {
	Upsert(ctx context.Context, session *models.Session) error
	GetByRefreshToken(ctx context.Context, token uuid.UUID) (*models.Session, error)
	Touch(ctx context.Context, sessionID int64, expiresAt, usedAt time.Time) error
	Revoke(ctx context.Context, token uuid.UUID, at time.Time) error
	RevokeAll(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error)
	ListByUser(ctx context.Context, userID uuid.UUID, page models.Page) ([]models.Session, int64, error)
	PurgeStale(ctx context.Context, now time.Time, retention time.Duration) (int64, error)
}

// Device identifies the client of a login so the session row can be
// fingerprinted per (user, ip, user agent).
type Device struct {
	IP        string
	UserAgent string
}

// TokenPair carries freshly minted credentials and their expiries, ready to
// be set as cookies.
type TokenPair struct {
	UserID        uuid.UUID
	AccessToken   string
	AccessExpiry  time.Time
	AccessTTL     time.Duration
	RefreshToken  uuid.UUID
	RefreshExpiry time.Time
}

// Response is the JSON body that travels alongside the cookies.
func (p *TokenPair) Response() models.TokenResponse {
	return models.TokenResponse{
		AccessToken: p.AccessToken,
		TokenType:   "bearer",
		ExpiresIn:   int64(p.AccessTTL.Seconds()),
	}
}

// AuthService owns accounts, credential verification with lockout, and the
// refresh-token session lifecycle.
type AuthService struct {
	users    UserStore
	sessions SessionStore
	tokens   *security.TokenService
	cfg      config.AuthConfig
	now      func() time.Time
	log      *logger.Logger
}

// NewAuthService wires the account subsystem.
func NewAuthService(users UserStore, sessions SessionStore, tokens *security.TokenService, cfg config.AuthConfig, log *logger.Logger) *AuthService {
	return &AuthService{
		users:    users,
		sessions: sessions,
		tokens:   tokens,
		cfg:      cfg,
		now:      time.Now,
		log:      log,
	}
}

// Signup registers an account. The email is normalised to lowercase so the
// unique constraint is case-insensitive in practice.
func (s *AuthService) Signup(ctx context.Context, req models.SignupRequest) (*models.User, error) {
	email := normalizeEmail(req.Email)

	hash, err := security.HashPassword(req.Password)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	user, err := s.users.Create(ctx, email, hash)
	if errors.Is(err, repository.ErrAlreadyExists) {
		return nil, apperr.Conflict("Email already registered")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return user, nil
}

// Login verifies credentials under the lockout state machine and, on
// success, grants a token pair bound to the calling device.
//
// The lock is checked before the password: a locked account answers 403 no
// matter what credentials arrive, so the lock cannot be probed. Failed
// attempts keep accumulating after a lock expires; one more failure re-locks
// immediately until a success resets the counter.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest, device Device) (*TokenPair, error) {
	now := s.now()

	user, attempt, err := s.users.GetByEmail(ctx, normalizeEmail(req.Email))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.Unauthorized("Incorrect email or password")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}

	if attempt.Locked(now) {
		return nil, apperr.Forbidden("Account temporarily locked, try again later")
	}

	if !security.VerifyPassword(req.Password, user.PasswordHash) {
		attempt.Attempts++
		attempt.LastFailedAt = &now
		locked := attempt.Attempts >= s.cfg.MaxFailedAttempts
		if locked {
			until := now.Add(s.cfg.LockTime)
			attempt.LockedUntil = &until
		}
		if err := s.users.SaveAttempts(ctx, attempt); err != nil {
			return nil, apperr.Internal(err)
		}
		if locked {
			s.log.Warnw("account locked after repeated failures", "user_id", user.ID, "attempts", attempt.Attempts)
			return nil, apperr.Forbidden("Account temporarily locked, try again later")
		}
		return nil, apperr.Unauthorized("Incorrect email or password")
	}

	attempt.Attempts = 0
	attempt.LastFailedAt = nil
	attempt.LockedUntil = nil
	attempt.LastSuccessAt = &now
	if err := s.users.SaveAttempts(ctx, attempt); err != nil {
		return nil, apperr.Internal(err)
	}
	if err := s.users.TouchLastLogin(ctx, user.ID, now); err != nil {
		return nil, apperr.Internal(err)
	}

	return s.grant(ctx, user.ID, device, now)
}

// grant mints an access token and upserts the device's session row with a
// fresh refresh token.
func (s *AuthService) grant(ctx context.Context, userID uuid.UUID, device Device, now time.Time) (*TokenPair, error) {
	access, accessExpiry, err := s.tokens.MintAccessToken(userID)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	refresh := s.tokens.NewRefreshToken()
	refreshExpiry := now.Add(s.tokens.RefreshTokenTTL())

	deviceName := DeviceName(device.UserAgent)
	session := &models.Session{
		UserID:       userID,
		RefreshToken: refresh,
		IssuedAt:     now,
		ExpiresAt:    refreshExpiry,
		DeviceName:   &deviceName,
		DeviceIP:     truncate(device.IP, 45),
		UserAgent:    truncate(device.UserAgent, 255),
		LastUsedAt:   now,
	}
	if err := s.sessions.Upsert(ctx, session); err != nil {
		return nil, apperr.Internal(err)
	}

	return &TokenPair{
		UserID:        userID,
		AccessToken:   access,
		AccessExpiry:  accessExpiry,
		AccessTTL:     s.tokens.AccessTokenTTL(),
		RefreshToken:  refresh,
		RefreshExpiry: refreshExpiry,
	}, nil
}

// Refresh exchanges a refresh cookie for a new access token. The refresh
// token itself is kept and its expiry slides forward, so a device stays
// signed in as long as it keeps coming back.
func (s *AuthService) Refresh(ctx context.Context, rawToken string) (*TokenPair, error) {
	token, err := uuid.Parse(rawToken)
	if err != nil {
		return nil, apperr.Unauthorized("Invalid refresh token")
	}

	session, err := s.sessions.GetByRefreshToken(ctx, token)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.Unauthorized("Invalid refresh token")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}

	now := s.now()
	if !session.Usable(now) {
		return nil, apperr.Unauthorized("Session expired or revoked")
	}

	access, accessExpiry, err := s.tokens.MintAccessToken(session.UserID)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	refreshExpiry := now.Add(s.tokens.RefreshTokenTTL())
	if err := s.sessions.Touch(ctx, session.ID, refreshExpiry, now); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.Unauthorized("Session expired or revoked")
		}
		return nil, apperr.Internal(err)
	}

	return &TokenPair{
		UserID:        session.UserID,
		AccessToken:   access,
		AccessExpiry:  accessExpiry,
		AccessTTL:     s.tokens.AccessTokenTTL(),
		RefreshToken:  token,
		RefreshExpiry: refreshExpiry,
	}, nil
}

// Logout revokes the presented refresh token. Unknown or malformed tokens
// are treated as already logged out.
func (s *AuthService) Logout(ctx context.Context, rawToken string) error {
	token, err := uuid.Parse(rawToken)
	if err != nil {
		return nil
	}
	if err := s.sessions.Revoke(ctx, token, s.now()); err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// LogoutAll revokes every session of the user and reports how many fell.
func (s *AuthService) LogoutAll(ctx context.Context, userID uuid.UUID) (int64, error) {
	n, err := s.sessions.RevokeAll(ctx, userID, s.now())
	if err != nil {
		return 0, apperr.Internal(err)
	}
	return n, nil
}

// User fetches a single account by id.
func (s *AuthService) User(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("User not found")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return user, nil
}

// Sessions lists the user's sessions, most recently used first.
func (s *AuthService) Sessions(ctx context.Context, userID uuid.UUID, page models.Page) ([]models.Session, int64, error) {
	sessions, total, err := s.sessions.ListByUser(ctx, userID, page)
	if err != nil {
		return nil, 0, apperr.Internal(err)
	}
	return sessions, total, nil
}

// ListUsers is the operator's account listing.
func (s *AuthService) ListUsers(ctx context.Context, page models.Page) ([]models.User, int64, error) {
	users, total, err := s.users.List(ctx, page)
	if err != nil {
		return nil, 0, apperr.Internal(err)
	}
	return users, total, nil
}

// DeleteUser removes an account and, via cascade, its sessions, lockout
// state, and ownership edges.
func (s *AuthService) DeleteUser(ctx context.Context, userID uuid.UUID) error {
	err := s.users.Delete(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound("User not found")
	}
	if err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// PurgeSessions drops sessions that expired, plus revoked ones older than
// the audit retention. The background janitor runs it on each cleanup tick.
func (s *AuthService) PurgeSessions(ctx context.Context) error {
	n, err := s.sessions.PurgeStale(ctx, s.now(), sessionRetention)
	if err != nil {
		return err
	}
	if n > 0 {
		s.log.Infow("stale sessions purged", "count", n)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
