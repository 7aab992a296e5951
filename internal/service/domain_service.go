package service

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/zarlabs/zar/internal/apperr"
	"github.com/zarlabs/zar/internal/database"
	"github.com/zarlabs/zar/internal/logger"
	"github.com/zarlabs/zar/internal/models"
	"github.com/zarlabs/zar/internal/repository"
)

// Cached verdict values under safe_domains: keys.
const (
	verdictSafe   = "safe"
	verdictUnsafe = "unsafe"
)

// DomainStore is the slice of the domain repository the service consumes.
type DomainStore interface {
	Upsert(ctx context.Context, canonical string) (*models.Domain, error)
	GetByID(ctx context.Context, domainID int) (*models.Domain, error)
	SetSecure(ctx context.Context, domainID int, secure bool) error
	MarkInsecure(ctx context.Context, domainID int) error
	List(ctx context.Context, page models.Page) ([]models.Domain, int64, error)
}

// ThreatChecker screens one URL against threat intelligence;
// safebrowsing.Client implements it.
type ThreatChecker interface {
	Check(ctx context.Context, url string) (flagged bool, err error)
}

// DomainService canonicalises destination URLs and screens their domains.
// Verdicts are cached in redis so repeat shortens of the same host skip the
// upstream call for CacheTTL.
type DomainService struct {
	store   DomainStore
	cache   *database.RedisDB
	checker ThreatChecker
	ttl     time.Duration
	log     *logger.Logger
}

// NewDomainService wires the screen. checker may be nil (no API key), which
// skips the upstream screen entirely and trusts the stored is_secure flag.
func NewDomainService(store DomainStore, cache *database.RedisDB, checker ThreatChecker, ttl time.Duration, log *logger.Logger) *DomainService {
	return &DomainService{store: store, cache: cache, checker: checker, ttl: ttl, log: log}
}

// Canonicalize reduces a URL to scheme://host/ with a lowercased host.
func Canonicalize(rawURL string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", apperr.BadRequest("URL must include a scheme and a host")
	}
	return parsed.Scheme + "://" + strings.ToLower(parsed.Host) + "/", nil
}

// EnsureSafe canonicalises the destination, upserts its domain row, and runs
// the safety screen. It returns the domain only when the URL may be
// shortened; an unsafe or flagged domain surfaces as a 400.
func (s *DomainService) EnsureSafe(ctx context.Context, rawURL string) (*models.Domain, error) {
	canonical, err := Canonicalize(rawURL)
	if err != nil {
		return nil, err
	}

	domain, err := s.store.Upsert(ctx, canonical)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	if !domain.IsSecure || !s.screen(ctx, domain) {
		return nil, apperr.BadRequest("URL flagged as potentially malicious")
	}
	return domain, nil
}

// screen applies the tiered verdict lookup: cached verdict first, then the
// threat-intelligence API. A cache read failure falls through to the API; an
// API failure fails closed and caches nothing, so the next attempt retries.
func (s *DomainService) screen(ctx context.Context, domain *models.Domain) bool {
	key := database.SafeDomainKey(domain.URL)

	verdict, found, err := s.cache.GetString(ctx, key)
	if err != nil {
		s.log.Warnw("verdict cache read failed", "domain", domain.URL, "error", err)
	} else if found {
		return verdict == verdictSafe
	}

	if s.checker == nil {
		return true
	}

	flagged, err := s.checker.Check(ctx, domain.URL)
	if err != nil {
		s.log.Errorw("threat lookup failed, treating domain as unsafe", "domain", domain.URL, "error", err)
		return false
	}

	if flagged {
		if err := s.store.MarkInsecure(ctx, domain.ID); err != nil {
			s.log.Errorw("flag insecure domain", "domain", domain.URL, "error", err)
		}
		s.cacheVerdict(ctx, key, verdictUnsafe)
		return false
	}

	s.cacheVerdict(ctx, key, verdictSafe)
	return true
}

func (s *DomainService) cacheVerdict(ctx context.Context, key, verdict string) {
	if err := s.cache.SetString(ctx, key, verdict, s.ttl); err != nil {
		s.log.Warnw("verdict cache write failed", "key", key, "error", err)
	}
}

// SetSecure flips a domain's safety flag (admin action) and drops any cached
// verdict so the next shorten re-screens the host.
func (s *DomainService) SetSecure(ctx context.Context, domainID int, secure bool) error {
	domain, err := s.store.GetByID(ctx, domainID)
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound("Domain not found")
	}
	if err != nil {
		return apperr.Internal(err)
	}

	if err := s.store.SetSecure(ctx, domainID, secure); err != nil {
		return apperr.Internal(err)
	}

	if err := s.cache.Delete(ctx, database.SafeDomainKey(domain.URL)); err != nil {
		s.log.Warnw("drop cached verdict", "domain", domain.URL, "error", err)
	}
	return nil
}

// List returns a page of known domains.
func (s *DomainService) List(ctx context.Context, page models.Page) ([]models.Domain, int64, error) {
	domains, total, err := s.store.List(ctx, page)
	if err != nil {
		return nil, 0, apperr.Internal(err)
	}
	return domains, total, nil
}
