package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zarlabs/zar/internal/models"
)

// URLRepository handles short-URL rows, their ownership edges, and the
// analytic events hanging off them.
type URLRepository struct {
	db *pgxpool.Pool
}

// NewURLRepository creates a new URL repository.
func NewURLRepository(db *pgxpool.Pool) *URLRepository {
	return &URLRepository{db: db}
}

const urlColumns = `id, domain_id, original_url, short_code, clicks, password_hash, title, descr, expires_at, is_active, created_at`

func scanURL(row pgx.Row, u *models.ShortURL) error {
	return row.Scan(
		&u.ID,
		&u.DomainID,
		&u.OriginalURL,
		&u.ShortCode,
		&u.Clicks,
		&u.PasswordHash,
		&u.Title,
		&u.Descr,
		&u.ExpiresAt,
		&u.IsActive,
		&u.CreatedAt,
	)
}

// Create inserts the URL and fills in its generated fields. The short code
// carries the only unique constraint on the table, so a unique violation
// always means a code collision and surfaces as ErrAlreadyExists; CHECK
// violations (blank URL, expiry before creation) surface as ErrCheckViolated.
func (r *URLRepository) Create(ctx context.Context, url *models.ShortURL) error {
	query := `
		INSERT INTO urls (domain_id, original_url, original_url_hash, short_code, password_hash, title, descr, expires_at)
		VALUES ($1, $2, decode(md5($2), 'hex'), $3, $4, $5, $6, $7)
		RETURNING id, clicks, is_active, created_at
	`

	err := r.db.QueryRow(ctx, query,
		url.DomainID,
		url.OriginalURL,
		url.ShortCode,
		url.PasswordHash,
		url.Title,
		url.Descr,
		url.ExpiresAt,
	).Scan(&url.ID, &url.Clicks, &url.IsActive, &url.CreatedAt)

	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if isCheckViolation(err) {
		return ErrCheckViolated
	}
	if err != nil {
		return fmt.Errorf("create url: %w", err)
	}
	return nil
}

// FindReusable returns the newest active, unexpired, password-free URL under
// the domain that matches the request on destination, title, expiry, and
// ownership slot. Anonymous requests only reuse unowned rows; authenticated
// requests only reuse rows already owned by the same user.
func (r *URLRepository) FindReusable(ctx context.Context, domainID int, originalURL string, title *string, expiresAt *time.Time, userID *uuid.UUID) (*models.OwnedURL, error) {
	query := `
		SELECT ` + urlColumns + `, COALESCE(uu.is_favorite, FALSE)
		FROM urls u
		LEFT JOIN user_urls uu ON uu.url_id = u.id
		WHERE u.domain_id = $1
		  AND u.original_url_hash = decode(md5($2), 'hex')
		  AND u.password_hash IS NULL
		  AND u.is_active
		  AND (u.expires_at IS NULL OR u.expires_at > NOW())
		  AND u.title IS NOT DISTINCT FROM $3
		  AND u.expires_at IS NOT DISTINCT FROM $4
		  AND (
			($5::uuid IS NULL AND uu.url_id IS NULL)
			OR ($5::uuid IS NOT NULL AND uu.user_id = $5)
		  )
		ORDER BY u.created_at DESC
		LIMIT 1
	`

	owned := &models.OwnedURL{}
	row := r.db.QueryRow(ctx, query, domainID, originalURL, title, expiresAt, userID)
	err := row.Scan(
		&owned.ID,
		&owned.DomainID,
		&owned.OriginalURL,
		&owned.ShortCode,
		&owned.Clicks,
		&owned.PasswordHash,
		&owned.Title,
		&owned.Descr,
		&owned.ExpiresAt,
		&owned.IsActive,
		&owned.CreatedAt,
		&owned.IsFavorite,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find reusable url: %w", err)
	}
	return owned, nil
}

// GetByShortCode retrieves a URL by its short code, active or not.
func (r *URLRepository) GetByShortCode(ctx context.Context, shortCode string) (*models.ShortURL, error) {
	query := `SELECT ` + urlColumns + ` FROM urls WHERE short_code = $1`

	url := &models.ShortURL{}
	err := scanURL(r.db.QueryRow(ctx, query, shortCode), url)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get url: %w", err)
	}
	return url, nil
}

// AttachOwner inserts the ownership edge. url_id is the primary key of
// user_urls: a second owner loses the race and the edge stays with the first.
func (r *URLRepository) AttachOwner(ctx context.Context, urlID int, userID uuid.UUID, favorite bool) error {
	query := `
		INSERT INTO user_urls (url_id, user_id, is_favorite)
		VALUES ($1, $2, $3)
		ON CONFLICT (url_id) DO NOTHING
	`
	if _, err := r.db.Exec(ctx, query, urlID, userID, favorite); err != nil {
		return fmt.Errorf("attach owner: %w", err)
	}
	return nil
}

// RecordClick bumps the click counter through increment_url_clicks and
// appends the analytic event in the same transaction, so the counter is
// observable as soon as the redirect goes out and no half-written event
// survives a cancellation.
func (r *URLRepository) RecordClick(ctx context.Context, event *models.URLAnalyticEvent) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin record click: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT increment_url_clicks($1)`, event.URLID); err != nil {
		return fmt.Errorf("increment clicks: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO url_analytics (url_id, clicked_at, ip_address, country_code, city, user_agent, referer, device_type, browser, os)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		event.URLID,
		event.ClickedAt,
		event.IPAddress,
		event.CountryCode,
		event.City,
		event.UserAgent,
		event.Referer,
		event.DeviceType,
		event.Browser,
		event.OS,
	)
	if err != nil {
		return fmt.Errorf("insert analytic event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit record click: %w", err)
	}
	return nil
}

// Stats aggregates the analytic events of one short code.
func (r *URLRepository) Stats(ctx context.Context, shortCode string) (*models.URLStats, error) {
	url, err := r.GetByShortCode(ctx, shortCode)
	if err != nil {
		return nil, err
	}

	stats := &models.URLStats{ShortCode: shortCode, TotalClicks: url.Clicks}

	err = r.db.QueryRow(ctx, `
		SELECT COUNT(DISTINCT ip_address), MIN(clicked_at), MAX(clicked_at)
		FROM url_analytics WHERE url_id = $1
	`, url.ID).Scan(&stats.UniqueVisitors, &stats.FirstClick, &stats.LastClick)
	if err != nil {
		return nil, fmt.Errorf("aggregate clicks: %w", err)
	}

	if stats.Devices, err = r.countMap(ctx, `
		SELECT device_type, COUNT(*) FROM url_analytics WHERE url_id = $1 GROUP BY device_type
	`, url.ID); err != nil {
		return nil, err
	}
	if stats.Browsers, err = r.countMap(ctx, `
		SELECT COALESCE(browser, 'unknown'), COUNT(*) FROM url_analytics WHERE url_id = $1 GROUP BY 1
	`, url.ID); err != nil {
		return nil, err
	}
	if stats.OperatingSystems, err = r.countMap(ctx, `
		SELECT COALESCE(os, 'unknown'), COUNT(*) FROM url_analytics WHERE url_id = $1 GROUP BY 1
	`, url.ID); err != nil {
		return nil, err
	}

	if stats.TopCountries, err = r.countRows(ctx, `
		SELECT country_code, COUNT(*) FROM url_analytics
		WHERE url_id = $1 AND country_code IS NOT NULL
		GROUP BY 1 ORDER BY 2 DESC, 1 LIMIT 10
	`, url.ID); err != nil {
		return nil, err
	}
	if stats.TopCities, err = r.countRows(ctx, `
		SELECT city, COUNT(*) FROM url_analytics
		WHERE url_id = $1 AND city IS NOT NULL
		GROUP BY 1 ORDER BY 2 DESC, 1 LIMIT 10
	`, url.ID); err != nil {
		return nil, err
	}
	if stats.TopReferers, err = r.countRows(ctx, `
		SELECT referer, COUNT(*) FROM url_analytics
		WHERE url_id = $1 AND referer IS NOT NULL
		GROUP BY 1 ORDER BY 2 DESC, 1 LIMIT 10
	`, url.ID); err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, `
		SELECT date_trunc('day', clicked_at) AS day, COUNT(*)
		FROM url_analytics
		WHERE url_id = $1 AND clicked_at > NOW() - INTERVAL '30 days'
		GROUP BY 1 ORDER BY 1
	`, url.ID)
	if err != nil {
		return nil, fmt.Errorf("click timeline: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var point models.TimelinePoint
		if err := rows.Scan(&point.Day, &point.Count); err != nil {
			return nil, fmt.Errorf("scan timeline point: %w", err)
		}
		stats.Timeline = append(stats.Timeline, point)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate timeline: %w", err)
	}

	return stats, nil
}

func (r *URLRepository) countMap(ctx context.Context, query string, args ...any) (map[string]int64, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("count aggregate: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var name string
		var count int64
		if err := rows.Scan(&name, &count); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[name] = count
	}
	return counts, rows.Err()
}

func (r *URLRepository) countRows(ctx context.Context, query string, args ...any) ([]models.CountRow, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("count aggregate: %w", err)
	}
	defer rows.Close()

	var result []models.CountRow
	for rows.Next() {
		var row models.CountRow
		if err := rows.Scan(&row.Name, &row.Count); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// ListByUser returns a page of the user's URLs, newest first.
func (r *URLRepository) ListByUser(ctx context.Context, userID uuid.UUID, page models.Page) ([]models.OwnedURL, int64, error) {
	var total int64
	if err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM user_urls WHERE user_id = $1
	`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count user urls: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+urlColumns+`, uu.is_favorite
		FROM urls u
		JOIN user_urls uu ON uu.url_id = u.id
		WHERE uu.user_id = $1
		ORDER BY u.created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, page.Limit, page.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list user urls: %w", err)
	}
	defer rows.Close()

	urls, err := collectOwned(rows, page.Limit)
	if err != nil {
		return nil, 0, err
	}
	return urls, total, nil
}

func collectOwned(rows pgx.Rows, capacity int) ([]models.OwnedURL, error) {
	urls := make([]models.OwnedURL, 0, capacity)
	for rows.Next() {
		var u models.OwnedURL
		err := rows.Scan(
			&u.ID,
			&u.DomainID,
			&u.OriginalURL,
			&u.ShortCode,
			&u.Clicks,
			&u.PasswordHash,
			&u.Title,
			&u.Descr,
			&u.ExpiresAt,
			&u.IsActive,
			&u.CreatedAt,
			&u.IsFavorite,
		)
		if err != nil {
			return nil, fmt.Errorf("scan url: %w", err)
		}
		urls = append(urls, u)
	}
	return urls, rows.Err()
}

// ListAll returns a page of every URL, optionally filtered on is_active.
func (r *URLRepository) ListAll(ctx context.Context, page models.Page, activeOnly bool) ([]models.OwnedURL, int64, error) {
	filter := ""
	if activeOnly {
		filter = "WHERE u.is_active"
	}

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM urls u `+filter).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count urls: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+urlColumns+`, COALESCE(uu.is_favorite, FALSE)
		FROM urls u
		LEFT JOIN user_urls uu ON uu.url_id = u.id
		`+filter+`
		ORDER BY u.created_at DESC
		LIMIT $1 OFFSET $2
	`, page.Limit, page.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list urls: %w", err)
	}
	defer rows.Close()

	urls, err := collectOwned(rows, page.Limit)
	if err != nil {
		return nil, 0, err
	}
	return urls, total, nil
}

// SetFavorite toggles the favourite flag on the caller's ownership edge.
func (r *URLRepository) SetFavorite(ctx context.Context, userID uuid.UUID, shortCode string, favorite bool) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE user_urls uu SET is_favorite = $3
		FROM urls u
		WHERE uu.url_id = u.id AND uu.user_id = $1 AND u.short_code = $2
	`, userID, shortCode, favorite)
	if err != nil {
		return fmt.Errorf("set favorite: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteOwned removes the user's URL outright; the cascade takes the
// ownership edge and the analytic events with it. Rows owned by someone else
// (or by nobody) are left alone and report ErrNotFound.
func (r *URLRepository) DeleteOwned(ctx context.Context, userID uuid.UUID, shortCode string) error {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM urls u
		USING user_urls uu
		WHERE uu.url_id = u.id AND uu.user_id = $1 AND u.short_code = $2
	`, userID, shortCode)
	if err != nil {
		return fmt.Errorf("delete owned url: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SoftDelete flips is_active off, retaining the row for audit.
func (r *URLRepository) SoftDelete(ctx context.Context, shortCode string) error {
	tag, err := r.db.Exec(ctx, `UPDATE urls SET is_active = FALSE WHERE short_code = $1`, shortCode)
	if err != nil {
		return fmt.Errorf("soft delete url: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// HardDelete removes the row and everything cascading from it.
func (r *URLRepository) HardDelete(ctx context.Context, shortCode string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM urls WHERE short_code = $1`, shortCode)
	if err != nil {
		return fmt.Errorf("hard delete url: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SoftDeleteExpired deactivates every URL past its expiry. The cleanup job
// calls this on its interval; rows stay for audit.
func (r *URLRepository) SoftDeleteExpired(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE urls SET is_active = FALSE
		WHERE is_active AND expires_at IS NOT NULL AND expires_at < NOW()
	`)
	if err != nil {
		return 0, fmt.Errorf("soft delete expired urls: %w", err)
	}
	return tag.RowsAffected(), nil
}

// UserStats aggregates the dashboard counters for one user.
func (r *URLRepository) UserStats(ctx context.Context, userID uuid.UUID) (*models.UserStats, error) {
	stats := &models.UserStats{}
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE u.is_active AND (u.expires_at IS NULL OR u.expires_at > NOW())),
		       COALESCE(SUM(u.clicks), 0),
		       COUNT(*) FILTER (WHERE uu.is_favorite),
		       COUNT(*) FILTER (WHERE u.password_hash IS NOT NULL)
		FROM user_urls uu
		JOIN urls u ON u.id = uu.url_id
		WHERE uu.user_id = $1
	`, userID).Scan(
		&stats.TotalURLs,
		&stats.ActiveURLs,
		&stats.TotalClicks,
		&stats.FavoriteURLs,
		&stats.ProtectedURLs,
	)
	if err != nil {
		return nil, fmt.Errorf("user stats: %w", err)
	}
	return stats, nil
}
