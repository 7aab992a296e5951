package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zarlabs/zar/internal/models"
)

// RateLimitRepository aggregates 429 overflows per client, path, method, and
// window.
type RateLimitRepository struct {
	db *pgxpool.Pool
}

// NewRateLimitRepository creates a new rate-limit repository.
func NewRateLimitRepository(db *pgxpool.Pool) *RateLimitRepository {
	return &RateLimitRepository{db: db}
}

// RecordViolation upserts one overflow. Repeat offences within the same
// window land on the same row, bumping attempts and last_attempt_at.
func (r *RateLimitRepository) RecordViolation(ctx context.Context, v *models.RateLimitViolation) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO rate_limit_logs (ip_address, path, method, window_start, attempts, last_attempt_at)
		VALUES ($1, $2, $3, $4, 1, $5)
		ON CONFLICT (ip_address, path, method, window_start) DO UPDATE SET
			attempts        = rate_limit_logs.attempts + 1,
			last_attempt_at = EXCLUDED.last_attempt_at
	`, v.IPAddress, v.Path, v.Method, v.WindowStart, v.LastAttemptAt)
	if err != nil {
		return fmt.Errorf("record rate limit violation: %w", err)
	}
	return nil
}

// List returns a page of violations with at least minAttempts overflows,
// worst offenders first.
func (r *RateLimitRepository) List(ctx context.Context, minAttempts int, page models.Page) ([]models.RateLimitViolation, int64, error) {
	if minAttempts < 1 {
		minAttempts = 1
	}

	var total int64
	if err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM rate_limit_logs WHERE attempts >= $1
	`, minAttempts).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count violations: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, ip_address, path, method, window_start, attempts, created_at, last_attempt_at
		FROM rate_limit_logs
		WHERE attempts >= $1
		ORDER BY attempts DESC, last_attempt_at DESC
		LIMIT $2 OFFSET $3
	`, minAttempts, page.Limit, page.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list violations: %w", err)
	}
	defer rows.Close()

	violations := make([]models.RateLimitViolation, 0, page.Limit)
	for rows.Next() {
		var v models.RateLimitViolation
		if err := rows.Scan(
			&v.ID, &v.IPAddress, &v.Path, &v.Method,
			&v.WindowStart, &v.Attempts, &v.CreatedAt, &v.LastAttemptAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan violation: %w", err)
		}
		violations = append(violations, v)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate violations: %w", err)
	}
	return violations, total, nil
}
