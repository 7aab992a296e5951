package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zarlabs/zar/internal/models"
)

// DomainRepository handles the canonical-domain table.
type DomainRepository struct {
	db *pgxpool.Pool
}

// NewDomainRepository creates a new domain repository.
func NewDomainRepository(db *pgxpool.Pool) *DomainRepository {
	return &DomainRepository{db: db}
}

// Upsert inserts the canonical URL if unseen and returns the row either way.
// The insert races safely: ON CONFLICT DO NOTHING plus the union select
// resolves concurrent first sightings to the same id.
func (r *DomainRepository) Upsert(ctx context.Context, canonical string) (*models.Domain, error) {
	query := `
		WITH ins AS (
			INSERT INTO domains (url, url_hash)
			VALUES ($1, decode(md5($1), 'hex'))
			ON CONFLICT (url_hash) DO NOTHING
			RETURNING id, url, is_secure, created_at
		)
		SELECT id, url, is_secure, created_at FROM ins
		UNION ALL
		SELECT id, url, is_secure, created_at FROM domains WHERE url_hash = decode(md5($1), 'hex')
		LIMIT 1
	`

	domain := &models.Domain{}
	err := r.db.QueryRow(ctx, query, canonical).Scan(
		&domain.ID,
		&domain.URL,
		&domain.IsSecure,
		&domain.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert domain: %w", err)
	}

	return domain, nil
}

// GetByID looks a domain up by primary key.
func (r *DomainRepository) GetByID(ctx context.Context, domainID int) (*models.Domain, error) {
	query := `
		SELECT id, url, is_secure, created_at
		FROM domains
		WHERE id = $1
	`

	domain := &models.Domain{}
	err := r.db.QueryRow(ctx, query, domainID).Scan(
		&domain.ID,
		&domain.URL,
		&domain.IsSecure,
		&domain.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get domain: %w", err)
	}

	return domain, nil
}

// SetSecure flips the safety flag. Turning a domain insecure soft-deletes
// every URL under it in the same transaction.
func (r *DomainRepository) SetSecure(ctx context.Context, domainID int, secure bool) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin set secure: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `UPDATE domains SET is_secure = $2 WHERE id = $1`, domainID, secure)
	if err != nil {
		return fmt.Errorf("update domain: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	if !secure {
		if _, err := tx.Exec(ctx, `UPDATE urls SET is_active = FALSE WHERE domain_id = $1`, domainID); err != nil {
			return fmt.Errorf("deactivate domain urls: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit set secure: %w", err)
	}
	return nil
}

// MarkInsecure records a threat-intel verdict against the domain.
func (r *DomainRepository) MarkInsecure(ctx context.Context, domainID int) error {
	return r.SetSecure(ctx, domainID, false)
}

// List returns a page of domains, newest first.
func (r *DomainRepository) List(ctx context.Context, page models.Page) ([]models.Domain, int64, error) {
	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM domains`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count domains: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, url, is_secure, created_at
		FROM domains
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, page.Limit, page.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list domains: %w", err)
	}
	defer rows.Close()

	domains := make([]models.Domain, 0, page.Limit)
	for rows.Next() {
		var d models.Domain
		if err := rows.Scan(&d.ID, &d.URL, &d.IsSecure, &d.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan domain: %w", err)
		}
		domains = append(domains, d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate domains: %w", err)
	}

	return domains, total, nil
}
