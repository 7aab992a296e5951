package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zarlabs/zar/internal/models"
)

// LogRepository persists funnelled log entries and serves the admin log
// surface.
type LogRepository struct {
	db *pgxpool.Pool
}

// NewLogRepository creates a new log repository.
func NewLogRepository(db *pgxpool.Pool) *LogRepository {
	return &LogRepository{db: db}
}

// Insert writes one log row. Callers tolerate failures here: the funnel falls
// back to stderr logging rather than delaying the response.
func (r *LogRepository) Insert(ctx context.Context, entry *models.LogEntry) error {
	if entry.Metadata == nil {
		entry.Metadata = map[string]any{}
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO logs (level, message, path, method, status_code, user_id, stacktrace, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		entry.Level,
		entry.Message,
		entry.Path,
		entry.Method,
		entry.StatusCode,
		entry.UserID,
		entry.Stacktrace,
		entry.Metadata,
	)
	if err != nil {
		return fmt.Errorf("insert log entry: %w", err)
	}
	return nil
}

// List returns a page of log entries, newest first, optionally filtered by
// level.
func (r *LogRepository) List(ctx context.Context, level string, page models.Page) ([]models.LogEntry, int64, error) {
	filter := ""
	args := []any{page.Limit, page.Offset}
	if level != "" {
		filter = "WHERE level = $3"
		args = append(args, level)
	}

	var total int64
	countArgs := args[2:]
	countFilter := ""
	if level != "" {
		countFilter = "WHERE level = $1"
	}
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM logs `+countFilter, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count logs: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, level, message, path, method, status_code, user_id, stacktrace, metadata, created_at
		FROM logs
		`+filter+`
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list logs: %w", err)
	}
	defer rows.Close()

	entries := make([]models.LogEntry, 0, page.Limit)
	for rows.Next() {
		var e models.LogEntry
		if err := rows.Scan(
			&e.ID, &e.Level, &e.Message, &e.Path, &e.Method,
			&e.StatusCode, &e.UserID, &e.Stacktrace, &e.Metadata, &e.CreatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan log entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate logs: %w", err)
	}
	return entries, total, nil
}

// Stats summarises the logs table: counts by level, by status code, and a
// seven-day timeline.
func (r *LogRepository) Stats(ctx context.Context) (*models.LogStats, error) {
	stats := &models.LogStats{
		ByLevel:  make(map[string]int64),
		ByStatus: make(map[string]int64),
	}

	rows, err := r.db.Query(ctx, `SELECT level, COUNT(*) FROM logs GROUP BY level`)
	if err != nil {
		return nil, fmt.Errorf("log level counts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var level string
		var count int64
		if err := rows.Scan(&level, &count); err != nil {
			return nil, fmt.Errorf("scan level count: %w", err)
		}
		stats.ByLevel[level] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate level counts: %w", err)
	}

	rows, err = r.db.Query(ctx, `
		SELECT status_code::text, COUNT(*) FROM logs
		WHERE status_code IS NOT NULL
		GROUP BY status_code
	`)
	if err != nil {
		return nil, fmt.Errorf("log status counts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		stats.ByStatus[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}

	rows, err = r.db.Query(ctx, `
		SELECT date_trunc('day', created_at) AS day, COUNT(*)
		FROM logs
		WHERE created_at > NOW() - INTERVAL '7 days'
		GROUP BY 1 ORDER BY 1
	`)
	if err != nil {
		return nil, fmt.Errorf("log timeline: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var point models.TimelinePoint
		if err := rows.Scan(&point.Day, &point.Count); err != nil {
			return nil, fmt.Errorf("scan timeline point: %w", err)
		}
		stats.ByDay = append(stats.ByDay, point)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate timeline: %w", err)
	}

	return stats, nil
}
