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

// UserRepository handles accounts and their login-attempt records.
type UserRepository struct {
	db *pgxpool.Pool
}

// NewUserRepository creates a new user repository.
func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts the account and its login-attempt row in one transaction.
// Duplicate emails surface as ErrAlreadyExists.
func (r *UserRepository) Create(ctx context.Context, email, passwordHash string) (*models.User, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin create user: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	user := &models.User{Email: email, PasswordHash: passwordHash}
	err = tx.QueryRow(ctx, `
		INSERT INTO users (email, password_hash)
		VALUES ($1, $2)
		RETURNING id, created_at
	`, email, passwordHash).Scan(&user.ID, &user.CreatedAt)
	if isUniqueViolation(err) {
		return nil, ErrAlreadyExists
	}
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	if _, err := tx.Exec(ctx, `INSERT INTO login_attempts (user_id) VALUES ($1)`, user.ID); err != nil {
		return nil, fmt.Errorf("insert login attempts: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit create user: %w", err)
	}
	return user, nil
}

// GetByID retrieves a user by primary key.
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user := &models.User{}
	err := r.db.QueryRow(ctx, `
		SELECT id, email, password_hash, created_at, last_login_at
		FROM users WHERE id = $1
	`, id).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.LastLoginAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// GetByEmail retrieves a user together with their login-attempt record, which
// the lockout state machine needs on every login.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, *models.LoginAttempt, error) {
	user := &models.User{}
	attempt := &models.LoginAttempt{}
	err := r.db.QueryRow(ctx, `
		SELECT u.id, u.email, u.password_hash, u.created_at, u.last_login_at,
		       a.attempts, a.last_failed_at, a.locked_until, a.last_success_at
		FROM users u
		JOIN login_attempts a ON a.user_id = u.id
		WHERE u.email = $1
	`, email).Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.LastLoginAt,
		&attempt.Attempts, &attempt.LastFailedAt, &attempt.LockedUntil, &attempt.LastSuccessAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("get user by email: %w", err)
	}
	attempt.UserID = user.ID
	return user, attempt, nil
}

// SaveAttempts persists the full login-attempt state. The service owns the
// state machine; this writes whatever transition it computed.
func (r *UserRepository) SaveAttempts(ctx context.Context, attempt *models.LoginAttempt) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE login_attempts
		SET attempts = $2, last_failed_at = $3, locked_until = $4, last_success_at = $5
		WHERE user_id = $1
	`, attempt.UserID, attempt.Attempts, attempt.LastFailedAt, attempt.LockedUntil, attempt.LastSuccessAt)
	if err != nil {
		return fmt.Errorf("save login attempts: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchLastLogin stamps the successful-login time.
func (r *UserRepository) TouchLastLogin(ctx context.Context, userID uuid.UUID, at time.Time) error {
	if _, err := r.db.Exec(ctx, `UPDATE users SET last_login_at = $2 WHERE id = $1`, userID, at); err != nil {
		return fmt.Errorf("touch last login: %w", err)
	}
	return nil
}

// List returns a page of users, newest first.
func (r *UserRepository) List(ctx context.Context, page models.Page) ([]models.User, int64, error) {
	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, email, password_hash, created_at, last_login_at
		FROM users
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, page.Limit, page.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]models.User, 0, page.Limit)
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.LastLoginAt); err != nil {
			return nil, 0, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate users: %w", err)
	}
	return users, total, nil
}

// Delete removes the account. Sessions, login attempts, and ownership edges
// cascade through their foreign keys; the URLs themselves survive unowned.
func (r *UserRepository) Delete(ctx context.Context, userID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
