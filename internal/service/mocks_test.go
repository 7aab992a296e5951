package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/zarlabs/zar/internal/models"
)

// mockURLStore implements URLStore.
type mockURLStore struct {
	mock.Mock
}

func (m *mockURLStore) Create(ctx context.Context, url *models.ShortURL) error {
	args := m.Called(ctx, url)
	return args.Error(0)
}

func (m *mockURLStore) FindReusable(ctx context.Context, domainID int, originalURL string, title *string, expiresAt *time.Time, userID *uuid.UUID) (*models.OwnedURL, error) {
	args := m.Called(ctx, domainID, originalURL, title, expiresAt, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.OwnedURL), args.Error(1)
}

func (m *mockURLStore) GetByShortCode(ctx context.Context, shortCode string) (*models.ShortURL, error) {
	args := m.Called(ctx, shortCode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ShortURL), args.Error(1)
}

func (m *mockURLStore) AttachOwner(ctx context.Context, urlID int, userID uuid.UUID, favorite bool) error {
	args := m.Called(ctx, urlID, userID, favorite)
	return args.Error(0)
}

func (m *mockURLStore) RecordClick(ctx context.Context, event *models.URLAnalyticEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *mockURLStore) Stats(ctx context.Context, shortCode string) (*models.URLStats, error) {
	args := m.Called(ctx, shortCode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.URLStats), args.Error(1)
}

func (m *mockURLStore) ListByUser(ctx context.Context, userID uuid.UUID, page models.Page) ([]models.OwnedURL, int64, error) {
	args := m.Called(ctx, userID, page)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]models.OwnedURL), args.Get(1).(int64), args.Error(2)
}

func (m *mockURLStore) ListAll(ctx context.Context, page models.Page, activeOnly bool) ([]models.OwnedURL, int64, error) {
	args := m.Called(ctx, page, activeOnly)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]models.OwnedURL), args.Get(1).(int64), args.Error(2)
}

func (m *mockURLStore) SetFavorite(ctx context.Context, userID uuid.UUID, shortCode string, favorite bool) error {
	args := m.Called(ctx, userID, shortCode, favorite)
	return args.Error(0)
}

func (m *mockURLStore) DeleteOwned(ctx context.Context, userID uuid.UUID, shortCode string) error {
	args := m.Called(ctx, userID, shortCode)
	return args.Error(0)
}

func (m *mockURLStore) SoftDelete(ctx context.Context, shortCode string) error {
	args := m.Called(ctx, shortCode)
	return args.Error(0)
}

func (m *mockURLStore) HardDelete(ctx context.Context, shortCode string) error {
	args := m.Called(ctx, shortCode)
	return args.Error(0)
}

func (m *mockURLStore) SoftDeleteExpired(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockURLStore) UserStats(ctx context.Context, userID uuid.UUID) (*models.UserStats, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.UserStats), args.Error(1)
}

// mockDomainScreen implements DomainScreen.
type mockDomainScreen struct {
	mock.Mock
}

func (m *mockDomainScreen) EnsureSafe(ctx context.Context, rawURL string) (*models.Domain, error) {
	args := m.Called(ctx, rawURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Domain), args.Error(1)
}

// mockDomainStore implements DomainStore.
type mockDomainStore struct {
	mock.Mock
}

func (m *mockDomainStore) Upsert(ctx context.Context, canonical string) (*models.Domain, error) {
	args := m.Called(ctx, canonical)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Domain), args.Error(1)
}

func (m *mockDomainStore) GetByID(ctx context.Context, domainID int) (*models.Domain, error) {
	args := m.Called(ctx, domainID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Domain), args.Error(1)
}

func (m *mockDomainStore) SetSecure(ctx context.Context, domainID int, secure bool) error {
	args := m.Called(ctx, domainID, secure)
	return args.Error(0)
}

func (m *mockDomainStore) MarkInsecure(ctx context.Context, domainID int) error {
	args := m.Called(ctx, domainID)
	return args.Error(0)
}

func (m *mockDomainStore) List(ctx context.Context, page models.Page) ([]models.Domain, int64, error) {
	args := m.Called(ctx, page)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]models.Domain), args.Get(1).(int64), args.Error(2)
}

// mockThreatChecker implements ThreatChecker.
type mockThreatChecker struct {
	mock.Mock
}

func (m *mockThreatChecker) Check(ctx context.Context, url string) (bool, error) {
	args := m.Called(ctx, url)
	return args.Bool(0), args.Error(1)
}

// mockUserStore implements UserStore.
type mockUserStore struct {
	mock.Mock
}

func (m *mockUserStore) Create(ctx context.Context, email, passwordHash string) (*models.User, error) {
	args := m.Called(ctx, email, passwordHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *mockUserStore) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *mockUserStore) GetByEmail(ctx context.Context, email string) (*models.User, *models.LoginAttempt, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(*models.User), args.Get(1).(*models.LoginAttempt), args.Error(2)
}

func (m *mockUserStore) SaveAttempts(ctx context.Context, attempt *models.LoginAttempt) error {
	args := m.Called(ctx, attempt)
	return args.Error(0)
}

func (m *mockUserStore) TouchLastLogin(ctx context.Context, userID uuid.UUID, at time.Time) error {
	args := m.Called(ctx, userID, at)
	return args.Error(0)
}

func (m *mockUserStore) List(ctx context.Context, page models.Page) ([]models.User, int64, error) {
	args := m.Called(ctx, page)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]models.User), args.Get(1).(int64), args.Error(2)
}

func (m *mockUserStore) Delete(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

// mockSessionStore implements SessionStore.
type mockSessionStore struct {
	mock.Mock
}

func (m *mockSessionStore) Upsert(ctx context.Context, session *models.Session) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *mockSessionStore) GetByRefreshToken(ctx context.Context, token uuid.UUID) (*models.Session, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Session), args.Error(1)
}

func (m *mockSessionStore) Touch(ctx context.Context, sessionID int64, expiresAt, usedAt time.Time) error {
	args := m.Called(ctx, sessionID, expiresAt, usedAt)
	return args.Error(0)
}

func (m *mockSessionStore) Revoke(ctx context.Context, token uuid.UUID, at time.Time) error {
	args := m.Called(ctx, token, at)
	return args.Error(0)
}

func (m *mockSessionStore) RevokeAll(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error) {
	args := m.Called(ctx, userID, at)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockSessionStore) ListByUser(ctx context.Context, userID uuid.UUID, page models.Page) ([]models.Session, int64, error) {
	args := m.Called(ctx, userID, page)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]models.Session), args.Get(1).(int64), args.Error(2)
}

func (m *mockSessionStore) PurgeStale(ctx context.Context, now time.Time, retention time.Duration) (int64, error) {
	args := m.Called(ctx, now, retention)
	return args.Get(0).(int64), args.Error(1)
}
