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

// SessionRepository handles refresh-token sessions.
type SessionRepository struct {
	db *pgxpool.Pool
}

// NewSessionRepository creates a new session repository.
func NewSessionRepository(db *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = `id, user_id, refresh_token, issued_at, expires_at, revoked, revoked_at, device_name, device_ip, user_agent, last_used_at`

func scanSession(row pgx.Row, s *models.Session) error {
	return row.Scan(
		&s.ID,
		&s.UserID,
		&s.RefreshToken,
		&s.IssuedAt,
		&s.ExpiresAt,
		&s.Revoked,
		&s.RevokedAt,
		&s.DeviceName,
		&s.DeviceIP,
		&s.UserAgent,
		&s.LastUsedAt,
	)
}

// Upsert stores the session keyed on the device fingerprint
// (user_id, device_ip, user_agent). Logging in again from the same device
// replaces the refresh token on the existing row instead of accumulating one
// row per login; a revoked row is resurrected by the new grant.
func (r *SessionRepository) Upsert(ctx context.Context, session *models.Session) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO sessions (user_id, refresh_token, issued_at, expires_at, device_name, device_ip, user_agent, last_used_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $3)
		ON CONFLICT (user_id, device_ip, user_agent) DO UPDATE SET
			refresh_token = EXCLUDED.refresh_token,
			issued_at     = EXCLUDED.issued_at,
			expires_at    = EXCLUDED.expires_at,
			revoked       = FALSE,
			revoked_at    = NULL,
			device_name   = EXCLUDED.device_name,
			last_used_at  = EXCLUDED.last_used_at
		RETURNING id, revoked, last_used_at
	`,
		session.UserID,
		session.RefreshToken,
		session.IssuedAt,
		session.ExpiresAt,
		session.DeviceName,
		session.DeviceIP,
		session.UserAgent,
	).Scan(&session.ID, &session.Revoked, &session.LastUsedAt)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// GetByRefreshToken retrieves a session by its token value, revoked or not;
// the caller decides usability.
func (r *SessionRepository) GetByRefreshToken(ctx context.Context, token uuid.UUID) (*models.Session, error) {
	session := &models.Session{}
	err := scanSession(r.db.QueryRow(ctx, `
		SELECT `+sessionColumns+` FROM sessions WHERE refresh_token = $1
	`, token), session)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return session, nil
}

// Touch extends the session on a silent refresh: the token value stays, the
// expiry slides, and last_used_at is stamped.
func (r *SessionRepository) Touch(ctx context.Context, sessionID int64, expiresAt, usedAt time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE sessions SET expires_at = $2, last_used_at = $3
		WHERE id = $1 AND NOT revoked
	`, sessionID, expiresAt, usedAt)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Revoke invalidates one session by token value. Revoking an already-revoked
// or unknown token is not an error; logout is idempotent.
func (r *SessionRepository) Revoke(ctx context.Context, token uuid.UUID, at time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE sessions SET revoked = TRUE, revoked_at = $2
		WHERE refresh_token = $1 AND NOT revoked
	`, token, at)
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// RevokeAll invalidates every live session of one user and reports how many
// it took down.
func (r *SessionRepository) RevokeAll(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE sessions SET revoked = TRUE, revoked_at = $2
		WHERE user_id = $1 AND NOT revoked
	`, userID, at)
	if err != nil {
		return 0, fmt.Errorf("revoke all sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListByUser returns a page of the user's sessions, most recently used first.
func (r *SessionRepository) ListByUser(ctx context.Context, userID uuid.UUID, page models.Page) ([]models.Session, int64, error) {
	var total int64
	if err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM sessions WHERE user_id = $1
	`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count sessions: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE user_id = $1
		ORDER BY last_used_at DESC
		LIMIT $2 OFFSET $3
	`, userID, page.Limit, page.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]models.Session, 0, page.Limit)
	for rows.Next() {
		var s models.Session
		if err := rows.Scan(
			&s.ID, &s.UserID, &s.RefreshToken, &s.IssuedAt, &s.ExpiresAt,
			&s.Revoked, &s.RevokedAt, &s.DeviceName, &s.DeviceIP, &s.UserAgent, &s.LastUsedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, total, nil
}

// PurgeStale deletes sessions that expired before now, or were revoked
// longer than retention ago. The cleanup job calls this on its interval.
func (r *SessionRepository) PurgeStale(ctx context.Context, now time.Time, retention time.Duration) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM sessions
		WHERE expires_at < $1
		   OR (revoked AND revoked_at < $2)
	`, now, now.Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
