package service

import (
	"context"
	"errors"
	"fmt"
	neturl "net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zarlabs/zar/internal/apperr"
	"github.com/zarlabs/zar/internal/config"
	"github.com/zarlabs/zar/internal/logger"
	"github.com/zarlabs/zar/internal/models"
	"github.com/zarlabs/zar/internal/repository"
	"github.com/zarlabs/zar/internal/security"
	"github.com/zarlabs/zar/internal/shortcode"
)

// ErrWrongPassword reports a failed link-password challenge. The handler
// re-renders the challenge page with a 401 instead of funnelling JSON.
var ErrWrongPassword = errors.New("wrong link password")

// URLStore is the slice of the URL repository the service consumes.
type URLStore interface {
	Create(ctx context.Context, url *models.ShortURL) error
	FindReusable(ctx context.Context, domainID int, originalURL string, title *string, expiresAt *time.Time, userID *uuid.UUID) (*models.OwnedURL, error)
	GetByShortCode(ctx context.Context, shortCode string) (*models.ShortURL, error)
	AttachOwner(ctx context.Context, urlID int, userID uuid.UUID, favorite bool) error
	RecordClick(ctx context.Context, event *models.URLAnalyticEvent) error
	Stats(ctx context.Context, shortCode string) (*models.URLStats, error)
	ListByUser(ctx context.Context, userID uuid.UUID, page models.Page) ([]models.OwnedURL, int64, error)
	ListAll(ctx context.Context, page models.Page, activeOnly bool) ([]models.OwnedURL, int64, error)
	SetFavorite(ctx context.Context, userID uuid.UUID, shortCode string, favorite bool) error
	DeleteOwned(ctx context.Context, userID uuid.UUID, shortCode string) error
	SoftDelete(ctx context.Context, shortCode string) error
	HardDelete(ctx context.Context, shortCode string) error
	SoftDeleteExpired(ctx context.Context) (int64, error)
	UserStats(ctx context.Context, userID uuid.UUID) (*models.UserStats, error)
}

// DomainScreen is the face of DomainService toward the shortener.
type DomainScreen interface {
	EnsureSafe(ctx context.Context, rawURL string) (*models.Domain, error)
}

// ClickInfo carries the request facts recorded per resolution.
type ClickInfo struct {
	IP        string
	UserAgent string
	Referer   string
}

// ResolutionKind discriminates what the redirect handler must do next.
type ResolutionKind int

const (
	// ResolveRedirect sends the visitor to Location.
	ResolveRedirect ResolutionKind = iota
	// ResolveExpired sends the visitor to the expired page at Location.
	ResolveExpired
	// ResolveChallenge renders the password challenge page.
	ResolveChallenge
)

// Resolution is the outcome of resolving a short code.
type Resolution struct {
	Kind     ResolutionKind
	Location string
}

// URLService implements shortening, resolution, and the owner and operator
// operations over short URLs.
type URLService struct {
	store      URLStore
	domains    DomainScreen
	analytics  *Analytics
	qr         *QRUploader
	cfg        config.ShortenerConfig
	baseURL    string
	expiredURL string
	genCode    func() (string, error)
	now        func() time.Time
	log        *logger.Logger
}

// NewURLService wires the shortener core.
func NewURLService(
	store URLStore,
	domains DomainScreen,
	analytics *Analytics,
	qr *QRUploader,
	shortener config.ShortenerConfig,
	server config.ServerConfig,
	log *logger.Logger,
) *URLService {
	return &URLService{
		store:      store,
		domains:    domains,
		analytics:  analytics,
		qr:         qr,
		cfg:        shortener,
		baseURL:    strings.TrimRight(server.BaseURL, "/"),
		expiredURL: server.ExpiredPageURL,
		genCode:    shortcode.NewGenerator(shortener.CodeLength).Generate,
		now:        time.Now,
		log:        log,
	}
}

// Shorten creates or reuses a short URL. Reuse applies only when the request
// carries no password: password hashes are salted, so two requests for the
// same destination cannot be matched against each other, and a protected row
// must never be handed to a caller who did not set its password.
func (s *URLService) Shorten(ctx context.Context, req models.CreateURLRequest, userID *uuid.UUID) (*models.URLResponse, error) {
	domain, err := s.domains.EnsureSafe(ctx, req.URL)
	if err != nil {
		return nil, err
	}

	if req.Password == "" {
		existing, err := s.store.FindReusable(ctx, domain.ID, req.URL, req.Title, req.ExpiresAt, userID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.Internal(err)
		}
		if existing != nil {
			return s.response(&existing.ShortURL, existing.IsFavorite), nil
		}
	}

	url := &models.ShortURL{
		DomainID:    domain.ID,
		OriginalURL: req.URL,
		Title:       req.Title,
		Descr:       req.Descr,
		ExpiresAt:   req.ExpiresAt,
	}
	if req.Password != "" {
		hash, err := security.HashPassword(req.Password)
		if err != nil {
			return nil, apperr.Internal(err)
		}
		url.PasswordHash = &hash
	}

	for attempt := 1; ; attempt++ {
		code, err := s.genCode()
		if err != nil {
			return nil, apperr.Internal(err)
		}
		url.ShortCode = code

		err = s.store.Create(ctx, url)
		if err == nil {
			break
		}
		if errors.Is(err, repository.ErrCheckViolated) {
			return nil, apperr.BadRequest("Invalid URL or expiry date")
		}
		if !errors.Is(err, repository.ErrAlreadyExists) {
			return nil, apperr.Internal(err)
		}
		if attempt >= s.cfg.MaxRetries {
			s.log.Errorw("short code space exhausted", "attempts", attempt, "length", s.cfg.CodeLength)
			return nil, apperr.Conflict("Could not allocate a unique short code")
		}
	}

	favorite := false
	if userID != nil {
		if err := s.store.AttachOwner(ctx, url.ID, *userID, req.IsFavorite); err != nil {
			return nil, apperr.Internal(err)
		}
		favorite = req.IsFavorite
	}

	s.qr.Enqueue(url.ID, s.shortURL(url.ShortCode))

	return s.response(url, favorite), nil
}

// Resolve decides what a GET on a short code does: 404 via error, expired
// redirect, password challenge, or a click-counted redirect to the original
// URL. The click is committed before the caller writes the redirect.
func (s *URLService) Resolve(ctx context.Context, shortCode string, click ClickInfo) (*Resolution, error) {
	url, err := s.load(ctx, shortCode)
	if err != nil {
		return nil, err
	}

	if url.IsExpired(s.now()) {
		return &Resolution{Kind: ResolveExpired, Location: s.expiredLocation(url)}, nil
	}
	if url.HasPassword() {
		return &Resolution{Kind: ResolveChallenge}, nil
	}

	if err := s.recordClick(ctx, url, click); err != nil {
		return nil, err
	}
	return &Resolution{Kind: ResolveRedirect, Location: url.OriginalURL}, nil
}

// VerifyPassword handles the challenge form post. Unprotected codes pass
// straight through so a stray post still lands on the destination.
func (s *URLService) VerifyPassword(ctx context.Context, shortCode, password string, click ClickInfo) (*Resolution, error) {
	url, err := s.load(ctx, shortCode)
	if err != nil {
		return nil, err
	}

	if url.IsExpired(s.now()) {
		return &Resolution{Kind: ResolveExpired, Location: s.expiredLocation(url)}, nil
	}
	if url.HasPassword() && !security.VerifyPassword(password, *url.PasswordHash) {
		return nil, ErrWrongPassword
	}

	if err := s.recordClick(ctx, url, click); err != nil {
		return nil, err
	}
	return &Resolution{Kind: ResolveRedirect, Location: url.OriginalURL}, nil
}

// Stats returns the aggregated analytics of one short code.
func (s *URLService) Stats(ctx context.Context, shortCode string) (*models.URLStats, error) {
	stats, err := s.store.Stats(ctx, shortCode)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("Short URL not found")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return stats, nil
}

// UserURLs lists the caller's URLs, favourites and all.
func (s *URLService) UserURLs(ctx context.Context, userID uuid.UUID, page models.Page) ([]models.URLResponse, int64, error) {
	rows, total, err := s.store.ListByUser(ctx, userID, page)
	if err != nil {
		return nil, 0, apperr.Internal(err)
	}
	return s.responses(rows), total, nil
}

// AdminURLs lists every URL, optionally only active ones.
func (s *URLService) AdminURLs(ctx context.Context, page models.Page, activeOnly bool) ([]models.URLResponse, int64, error) {
	rows, total, err := s.store.ListAll(ctx, page, activeOnly)
	if err != nil {
		return nil, 0, apperr.Internal(err)
	}
	return s.responses(rows), total, nil
}

// SetFavorite toggles the favourite flag on one of the caller's URLs.
func (s *URLService) SetFavorite(ctx context.Context, userID uuid.UUID, shortCode string, favorite bool) error {
	return s.ownedOp(s.store.SetFavorite(ctx, userID, shortCode, favorite))
}

// DeleteOwned removes one of the caller's URLs outright.
func (s *URLService) DeleteOwned(ctx context.Context, userID uuid.UUID, shortCode string) error {
	return s.ownedOp(s.store.DeleteOwned(ctx, userID, shortCode))
}

func (s *URLService) ownedOp(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound("Short URL not found")
	}
	if err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// AdminDelete removes any URL as the operator: soft delete by default, hard
// delete on request.
func (s *URLService) AdminDelete(ctx context.Context, shortCode string, hard bool) error {
	var err error
	if hard {
		err = s.store.HardDelete(ctx, shortCode)
	} else {
		err = s.store.SoftDelete(ctx, shortCode)
	}
	return s.ownedOp(err)
}

// UserStats returns the caller's dashboard aggregates.
func (s *URLService) UserStats(ctx context.Context, userID uuid.UUID) (*models.UserStats, error) {
	stats, err := s.store.UserStats(ctx, userID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return stats, nil
}

// CleanupExpired soft-deletes every URL whose expiry has passed. The
// background janitor runs it on each cleanup tick.
func (s *URLService) CleanupExpired(ctx context.Context) error {
	n, err := s.store.SoftDeleteExpired(ctx)
	if err != nil {
		return fmt.Errorf("cleanup expired urls: %w", err)
	}
	if n > 0 {
		s.log.Infow("expired urls deactivated", "count", n)
	}
	return nil
}

func (s *URLService) load(ctx context.Context, shortCode string) (*models.ShortURL, error) {
	url, err := s.store.GetByShortCode(ctx, shortCode)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("Short URL not found")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if !url.IsActive {
		return nil, apperr.NotFound("Short URL not found")
	}
	return url, nil
}

func (s *URLService) recordClick(ctx context.Context, url *models.ShortURL, click ClickInfo) error {
	event := s.analytics.Event(url.ID, s.now(), click.IP, click.UserAgent, click.Referer)
	if err := s.store.RecordClick(ctx, &event); err != nil {
		return apperr.Internal(err)
	}
	return nil
}

func (s *URLService) expiredLocation(url *models.ShortURL) string {
	q := neturl.Values{}
	q.Set("original_url", url.OriginalURL)
	q.Set("expired_at", url.ExpiresAt.UTC().Format(time.RFC3339))
	return s.expiredURL + "?" + q.Encode()
}

func (s *URLService) shortURL(code string) string {
	return s.baseURL + "/" + code
}

func (s *URLService) response(url *models.ShortURL, favorite bool) *models.URLResponse {
	return &models.URLResponse{
		ID:          url.ID,
		ShortCode:   url.ShortCode,
		ShortURL:    s.shortURL(url.ShortCode),
		OriginalURL: url.OriginalURL,
		Title:       url.Title,
		Clicks:      url.Clicks,
		IsProtected: url.HasPassword(),
		IsFavorite:  favorite,
		IsActive:    url.IsActive,
		ExpiresAt:   url.ExpiresAt,
		CreatedAt:   url.CreatedAt,
		QRCodeURL:   s.qr.PublicURL(url.ID),
	}
}

func (s *URLService) responses(rows []models.OwnedURL) []models.URLResponse {
	out := make([]models.URLResponse, 0, len(rows))
	for i := range rows {
		out = append(out, *s.response(&rows[i].ShortURL, rows[i].IsFavorite))
	}
	return out
}
