// Package apperr defines the error shape every handler and service returns.
// An Error carries enough to produce the HTTP response and the persisted log
// entry without the caller inspecting concrete failure types.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Level is the severity the funnel logs an error at.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
	LevelFatal Level = "FATAL"
)

// Error is the single error currency of the service. Status drives the HTTP
// response, Detail is the client-visible message, Level and Metadata feed the
// log entry, and Err preserves the underlying cause for errors.Is/As.
type Error struct {
	Status   int
	Detail   string
	Level    Level
	Metadata map[string]any
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Detail, e.Err)
	}
	return e.Detail
}

func (e *Error) Unwrap() error { return e.Err }

// WithErr attaches an underlying cause and returns the same error.
func (e *Error) WithErr(err error) *Error {
	e.Err = err
	return e
}

// WithMeta attaches a metadata key/value pair and returns the same error.
func (e *Error) WithMeta(key string, value any) *Error {
	if e.Metadata == nil {
		e.Metadata = make(map[string]any, 1)
	}
	e.Metadata[key] = value
	return e
}

func levelFor(status int) Level {
	if status >= http.StatusInternalServerError {
		return LevelError
	}
	return LevelWarn
}

// New builds an Error with the level implied by its status.
func New(status int, detail string) *Error {
	return &Error{Status: status, Detail: detail, Level: levelFor(status)}
}

func BadRequest(detail string) *Error { return New(http.StatusBadRequest, detail) }

func Unauthorized(detail string) *Error { return New(http.StatusUnauthorized, detail) }

func Forbidden(detail string) *Error { return New(http.StatusForbidden, detail) }

func NotFound(detail string) *Error { return New(http.StatusNotFound, detail) }

func Conflict(detail string) *Error { return New(http.StatusConflict, detail) }

func TooLarge(detail string) *Error { return New(http.StatusRequestEntityTooLarge, detail) }

func RateLimited(detail string) *Error { return New(http.StatusTooManyRequests, detail) }

// Validation is a 422 carrying per-field messages in the log metadata.
func Validation(fields map[string]string) *Error {
	meta := make(map[string]any, len(fields))
	for k, v := range fields {
		meta[k] = v
	}
	return &Error{
		Status:   http.StatusUnprocessableEntity,
		Detail:   "request validation failed",
		Level:    LevelWarn,
		Metadata: meta,
	}
}

// Upstream marks a dependency failure outside the process.
func Upstream(detail string, err error) *Error {
	return &Error{
		Status: http.StatusBadGateway,
		Detail: detail,
		Level:  LevelError,
		Err:    err,
	}
}

// Internal is the catch-all 500; the cause stays in logs only.
func Internal(err error) *Error {
	return &Error{
		Status: http.StatusInternalServerError,
		Detail: "internal server error",
		Level:  LevelError,
		Err:    err,
	}
}

// From normalises any error into an *Error, defaulting to Internal.
func From(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(err)
}
