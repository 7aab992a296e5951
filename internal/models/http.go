package models

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// ErrorResponse is the body every funnelled error produces.
type ErrorResponse struct {
	Detail    string    `json:"detail"`
	Path      string    `json:"path"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status   string            `json:"status"`
	Version  string            `json:"version"`
	Services map[string]string `json:"services"`
}

// DefaultPageLimit is both the default and the ceiling for list endpoints.
const DefaultPageLimit = 64

// Page is a validated limit/offset pair.
type Page struct {
	Limit  int
	Offset int
}

// NewPage clamps limit into (0, DefaultPageLimit] and offset to ≥ 0.
func NewPage(limit, offset int) Page {
	if limit <= 0 || limit > DefaultPageLimit {
		limit = DefaultPageLimit
	}
	if offset < 0 {
		offset = 0
	}
	return Page{Limit: limit, Offset: offset}
}

// PaginatedResponse is the envelope every list endpoint returns.
type PaginatedResponse struct {
	Total   int64 `json:"total"`
	Limit   int   `json:"limit"`
	Offset  int   `json:"offset"`
	Page    int   `json:"page"`
	Pages   int   `json:"pages"`
	Results any   `json:"results"`
}

// Paginate builds the envelope, deriving page and pages from the offset.
func Paginate(total int64, page Page, results any) PaginatedResponse {
	return PaginatedResponse{
		Total:   total,
		Limit:   page.Limit,
		Offset:  page.Offset,
		Page:    page.Offset/page.Limit + 1,
		Pages:   int(math.Ceil(float64(total) / float64(page.Limit))),
		Results: results,
	}
}

// LogEntry is a persisted structured log row.
type LogEntry struct {
	ID         int64          `json:"id"`
	Level      string         `json:"level"`
	Message    string         `json:"message"`
	Path       *string        `json:"path,omitempty"`
	Method     *string        `json:"method,omitempty"`
	StatusCode *int           `json:"status_code,omitempty"`
	UserID     *uuid.UUID     `json:"user_id,omitempty"`
	Stacktrace *string        `json:"stacktrace,omitempty"`
	Metadata   map[string]any `json:"metadata"`
	CreatedAt  time.Time      `json:"created_at"`
}

// RateLimitViolation aggregates 429s per (ip, path, method, window).
type RateLimitViolation struct {
	ID            int64     `json:"id"`
	IPAddress     string    `json:"ip_address"`
	Path          string    `json:"path"`
	Method        string    `json:"method"`
	WindowStart   time.Time `json:"window_start"`
	Attempts      int       `json:"attempts"`
	CreatedAt     time.Time `json:"created_at"`
	LastAttemptAt time.Time `json:"last_attempt_at"`
}

// LogStats summarises the logs table for the admin dashboard.
type LogStats struct {
	ByLevel  map[string]int64 `json:"by_level"`
	ByStatus map[string]int64 `json:"by_status"`
	ByDay    []TimelinePoint  `json:"by_day"`
}
