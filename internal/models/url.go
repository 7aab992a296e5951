package models

import (
	"time"
)

// Domain is the canonical scheme://host/ grouping for shortened URLs.
// is_secure starts true and is flipped when the threat-intelligence screen
// reports the host; flipping it soft-deletes every URL under the domain.
type Domain struct {
	ID        int       `json:"id"`
	URL       string    `json:"url"`
	IsSecure  bool      `json:"is_secure"`
	CreatedAt time.Time `json:"created_at"`
}

// ShortURL is the primary entity: one short code addressing one destination.
type ShortURL struct {
	ID           int        `json:"id"`
	DomainID     int        `json:"domain_id"`
	OriginalURL  string     `json:"original_url"`
	ShortCode    string     `json:"short_code"`
	Clicks       int64      `json:"clicks"`
	PasswordHash *string    `json:"-"`
	Title        *string    `json:"title,omitempty"`
	Descr        *string    `json:"descr,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	IsActive     bool       `json:"is_active"`
	CreatedAt    time.Time  `json:"created_at"`
}

// IsExpired reports whether the URL is past its expiry at the given instant.
// The bound is exclusive: a URL expiring exactly now is already expired.
func (u *ShortURL) IsExpired(now time.Time) bool {
	return u.ExpiresAt != nil && !now.Before(*u.ExpiresAt)
}

// HasPassword reports whether resolution must go through the challenge page.
func (u *ShortURL) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

// UserURL attaches ownership metadata to a ShortURL. One owner per URL.
type UserURL struct {
	URLID      int       `json:"url_id"`
	UserID     string    `json:"user_id"`
	IsFavorite bool      `json:"is_favorite"`
	CreatedAt  time.Time `json:"created_at"`
}

// OwnedURL is a ShortURL row joined with its ownership edge.
type OwnedURL struct {
	ShortURL
	IsFavorite bool `json:"is_favorite"`
}

// Device types recorded per analytic event, in matching priority order.
const (
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceDesktop = "desktop"
	DeviceBot     = "bot"
	DeviceUnknown = "unknown"
)

// URLAnalyticEvent is the append-only click record.
type URLAnalyticEvent struct {
	ID          int64     `json:"id"`
	URLID       int       `json:"url_id"`
	ClickedAt   time.Time `json:"clicked_at"`
	IPAddress   string    `json:"ip_address"`
	CountryCode *string   `json:"country_code,omitempty"`
	City        *string   `json:"city,omitempty"`
	UserAgent   *string   `json:"user_agent,omitempty"`
	Referer     *string   `json:"referer,omitempty"`
	DeviceType  string    `json:"device_type"`
	Browser     *string   `json:"browser,omitempty"`
	OS          *string   `json:"os,omitempty"`
}

// CreateURLRequest is the POST /api/v1/url payload.
type CreateURLRequest struct {
	URL        string     `json:"url" binding:"required,url"`
	Password   string     `json:"password,omitempty" binding:"omitempty,min=4,max=128"`
	Title      *string    `json:"title,omitempty" binding:"omitempty,max=255"`
	Descr      *string    `json:"descr,omitempty" binding:"omitempty,max=1024"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	IsFavorite bool       `json:"is_favorite,omitempty"`
}

// URLResponse is the canonical representation returned by create, list, and
// admin endpoints. IsProtected stands in for the hash, which never leaves
// the server.
type URLResponse struct {
	ID          int        `json:"id"`
	ShortCode   string     `json:"short_code"`
	ShortURL    string     `json:"short_url"`
	OriginalURL string     `json:"original_url"`
	Title       *string    `json:"title,omitempty"`
	Clicks      int64      `json:"clicks"`
	IsProtected bool       `json:"is_protected"`
	IsFavorite  bool       `json:"is_favorite"`
	IsActive    bool       `json:"is_active"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	QRCodeURL   string     `json:"qr_code_url,omitempty"`
}

// VerifyPasswordRequest is the form body posted by the challenge page.
type VerifyPasswordRequest struct {
	Password string `form:"password" json:"password" binding:"required"`
}

// DeleteURLRequest identifies the owned URL to remove.
type DeleteURLRequest struct {
	ShortCode string `json:"short_code" binding:"required"`
}

// FavoriteRequest sets the favourite flag on an owned URL. The pointer keeps
// an explicit false distinguishable from an absent field.
type FavoriteRequest struct {
	IsFavorite *bool `json:"is_favorite" binding:"required"`
}

// SetDomainSecureRequest flips a domain's trust flag.
type SetDomainSecureRequest struct {
	IsSecure *bool `json:"is_secure" binding:"required"`
}

// CountRow is a generic (name, count) aggregate used by the stats payload.
type CountRow struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// TimelinePoint is one day of event volume.
type TimelinePoint struct {
	Day   time.Time `json:"day"`
	Count int64     `json:"count"`
}

// URLStats aggregates the analytic events of one short code.
type URLStats struct {
	ShortCode        string           `json:"short_code"`
	TotalClicks      int64            `json:"total_clicks"`
	UniqueVisitors   int64            `json:"unique_visitors"`
	FirstClick       *time.Time       `json:"first_click,omitempty"`
	LastClick        *time.Time       `json:"last_click,omitempty"`
	Devices          map[string]int64 `json:"devices"`
	Browsers         map[string]int64 `json:"browsers"`
	OperatingSystems map[string]int64 `json:"operating_systems"`
	TopCountries     []CountRow       `json:"top_countries"`
	TopCities        []CountRow       `json:"top_cities"`
	TopReferers      []CountRow       `json:"top_referers"`
	Timeline         []TimelinePoint  `json:"timeline"`
}

// UserStats is the per-user dashboard aggregate.
type UserStats struct {
	TotalURLs     int64 `json:"total_urls"`
	ActiveURLs    int64 `json:"active_urls"`
	TotalClicks   int64 `json:"total_clicks"`
	FavoriteURLs  int64 `json:"favorite_urls"`
	ProtectedURLs int64 `json:"protected_urls"`
}
