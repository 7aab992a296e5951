package middleware

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zarlabs/zar/internal/apperr"
	"github.com/zarlabs/zar/internal/logger"
	"github.com/zarlabs/zar/internal/models"
	"github.com/zarlabs/zar/internal/monitor"
)

// LogSink persists funnelled errors. Failures fall back to stderr.
type LogSink interface {
	Insert(ctx context.Context, entry *models.LogEntry) error
}

// ErrorFunnel converts attached apperr errors and recovered panics into the
// canonical {detail, path, timestamp} response, logs them at the mapped
// level, and persists a log row without delaying the response.
type ErrorFunnel struct {
	logs    LogSink
	monitor *monitor.SystemMonitor
	log     *logger.Logger
}

// NewErrorFunnel creates the funnel. logs may be nil in tests; persistence is
// then skipped.
func NewErrorFunnel(logs LogSink, mon *monitor.SystemMonitor, log *logger.Logger) *ErrorFunnel {
	return &ErrorFunnel{logs: logs, monitor: mon, log: log}
}

// Middleware returns the funnel handler. Its recover wraps everything
// registered after it, so a panic anywhere downstream becomes a generic 500
// logged at FATAL with the stack attached.
func (f *ErrorFunnel) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				stack := string(debug.Stack())
				appErr := apperr.Internal(fmt.Errorf("panic: %v", rec))
				appErr.Level = apperr.LevelFatal
				f.handle(c, appErr, &stack)
				c.Abort()
			}
		}()

		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		f.handle(c, apperr.From(c.Errors.Last().Err), nil)
	}
}

func (f *ErrorFunnel) handle(c *gin.Context, appErr *apperr.Error, stack *string) {
	f.monitor.IncrementError()

	path := c.Request.URL.Path
	fields := []any{
		"method", c.Request.Method,
		"path", path,
		"status", appErr.Status,
		"detail", appErr.Detail,
	}
	if requestID := c.GetString(ContextRequestID); requestID != "" {
		fields = append(fields, "request_id", requestID)
	}
	if appErr.Err != nil {
		fields = append(fields, "error", appErr.Err)
	}
	switch appErr.Level {
	case apperr.LevelFatal:
		f.log.Errorw("panic recovered", fields...)
	case apperr.LevelError:
		f.log.Errorw("request error", fields...)
	default:
		f.log.Warnw("request error", fields...)
	}

	f.persist(c, appErr, stack)

	if c.Writer.Written() {
		return
	}
	if appErr.Status == http.StatusUnauthorized {
		c.Header("WWW-Authenticate", "Bearer")
	}
	c.JSON(appErr.Status, models.ErrorResponse{
		Detail:    appErr.Detail,
		Path:      path,
		Timestamp: time.Now().UTC(),
	})
}

// persist writes the log row from a detached goroutine so the response is
// never held up by the pool. A failed insert degrades to stderr.
func (f *ErrorFunnel) persist(c *gin.Context, appErr *apperr.Error, stack *string) {
	if f.logs == nil {
		return
	}

	path := c.Request.URL.Path
	method := c.Request.Method
	status := appErr.Status
	entry := &models.LogEntry{
		Level:      string(appErr.Level),
		Message:    appErr.Error(),
		Path:       &path,
		Method:     &method,
		StatusCode: &status,
		Stacktrace: stack,
		Metadata:   make(map[string]any, len(appErr.Metadata)+1),
	}
	for k, v := range appErr.Metadata {
		entry.Metadata[k] = v
	}
	if requestID := c.GetString(ContextRequestID); requestID != "" {
		entry.Metadata["request_id"] = requestID
	}
	if userID, ok := UserID(c); ok {
		entry.UserID = &userID
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := f.logs.Insert(ctx, entry); err != nil {
			fmt.Fprintf(os.Stderr, "log persistence failed: %v (%s %s -> %d: %s)\n",
				err, method, path, status, entry.Message)
		}
	}()
}
