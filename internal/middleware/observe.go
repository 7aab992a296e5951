// Package middleware holds the edge chain: observability, security headers,
// CORS, body cap, rate limiting, authentication gates, the error funnel, and
// the read-through response cache. Handlers never write error bodies
// themselves; they attach an apperr.Error and the funnel renders it.
package middleware

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sony/sonyflake"

	"github.com/zarlabs/zar/internal/apperr"
	"github.com/zarlabs/zar/internal/logger"
	"github.com/zarlabs/zar/internal/monitor"
)

// Context keys set by the edge chain for downstream handlers.
const (
	ContextUserID    = "user_id"
	ContextRequestID = "request_id"
)

// docsPaths are exempt from the edge chain: no body cap, no rate limit, no
// injected headers.
var docsPaths = map[string]struct{}{
	"/docs":         {},
	"/redoc":        {},
	"/openapi.json": {},
}

func skipEdge(path string) bool {
	_, ok := docsPaths[path]
	return ok
}

// ClientIdentity derives the stable client identifier used for rate limiting
// and analytics: first X-Forwarded-For hop, then X-Real-IP, then the socket
// peer address.
func ClientIdentity(c *gin.Context) string {
	if forwarded := c.GetHeader("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if realIP := c.GetHeader("X-Real-IP"); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(c.Request.RemoteAddr)
	if err != nil {
		return c.Request.RemoteAddr
	}
	return host
}

// timingWriter stamps X-Response-Time just before the first byte of the
// response goes out, so the header covers handler time without being lost to
// an already-flushed header block.
type timingWriter struct {
	gin.ResponseWriter
	start   time.Time
	stamped bool
}

func (w *timingWriter) stamp() {
	if w.stamped {
		return
	}
	w.stamped = true
	w.Header().Set("X-Response-Time", fmt.Sprintf("%.2fms", w.elapsedMS()))
}

func (w *timingWriter) elapsedMS() float64 {
	return float64(time.Since(w.start)) / float64(time.Millisecond)
}

func (w *timingWriter) WriteHeader(code int) {
	w.stamp()
	w.ResponseWriter.WriteHeader(code)
}

func (w *timingWriter) Write(b []byte) (int, error) {
	w.stamp()
	return w.ResponseWriter.Write(b)
}

func (w *timingWriter) WriteString(s string) (int, error) {
	w.stamp()
	return w.ResponseWriter.WriteString(s)
}

// Observer is the outermost middleware: it assigns the request ID, stamps
// response timing, feeds the system monitor, and writes the access log.
type Observer struct {
	monitor *monitor.SystemMonitor
	ids     *sonyflake.Sonyflake
	log     *logger.Logger
}

// NewObserver creates the observer. ids may be nil; request IDs then fall
// back to UUIDs.
func NewObserver(mon *monitor.SystemMonitor, ids *sonyflake.Sonyflake, log *logger.Logger) *Observer {
	return &Observer{monitor: mon, ids: ids, log: log}
}

func (o *Observer) requestID() string {
	if o.ids != nil {
		if id, err := o.ids.NextID(); err == nil {
			return fmt.Sprintf("%x", id)
		}
	}
	return uuid.NewString()
}

// Middleware returns the observer handler.
func (o *Observer) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if skipEdge(c.Request.URL.Path) {
			c.Next()
			return
		}

		requestID := o.requestID()
		c.Set(ContextRequestID, requestID)
		c.Header("X-Request-ID", requestID)

		writer := &timingWriter{ResponseWriter: c.Writer, start: time.Now()}
		c.Writer = writer

		c.Next()

		writer.stamp()
		elapsed := writer.elapsedMS()
		o.monitor.IncrementRequest()
		o.monitor.ObserveResponseTime(elapsed)

		status := c.Writer.Status()
		fields := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration_ms", elapsed,
			"client", ClientIdentity(c),
			"request_id", requestID,
		}
		switch {
		case status >= 500:
			o.log.Errorw("request failed", fields...)
		case status >= 400:
			o.log.Warnw("request rejected", fields...)
		default:
			o.log.Infow("request", fields...)
		}
	}
}

// BodyLimit rejects oversized request bodies with 413. A declared
// Content-Length over the cap fails immediately; bodies of unknown length are
// read up to cap+1 bytes and re-attached for downstream binding. A body of
// exactly maxBytes passes.
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	tooLarge := fmt.Sprintf("Request entity too large. Max allowed: %d bytes", maxBytes)
	return func(c *gin.Context) {
		if skipEdge(c.Request.URL.Path) {
			c.Next()
			return
		}

		if c.Request.ContentLength > maxBytes {
			c.Error(apperr.TooLarge(tooLarge).WithMeta("content_length", c.Request.ContentLength))
			c.Abort()
			return
		}

		if c.Request.ContentLength < 0 && c.Request.Body != nil {
			body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBytes+1))
			if err != nil {
				c.Error(apperr.BadRequest("Malformed request body").WithErr(err))
				c.Abort()
				return
			}
			if int64(len(body)) > maxBytes {
				c.Error(apperr.TooLarge(tooLarge))
				c.Abort()
				return
			}
			c.Request.Body = io.NopCloser(bytes.NewReader(body))
		}

		c.Next()
	}
}
