package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zarlabs/zar/internal/apperr"
	"github.com/zarlabs/zar/internal/logger"
	"github.com/zarlabs/zar/internal/models"
)

type captureSink struct {
	entries chan *models.LogEntry
}

func newCaptureSink() *captureSink {
	return &captureSink{entries: make(chan *models.LogEntry, 1)}
}

func (s *captureSink) Insert(_ context.Context, entry *models.LogEntry) error {
	s.entries <- entry
	return nil
}

func (s *captureSink) wait(t *testing.T) *models.LogEntry {
	t.Helper()
	select {
	case entry := <-s.entries:
		return entry
	case <-time.After(2 * time.Second):
		t.Fatal("no log entry persisted")
		return nil
	}
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) models.ErrorResponse {
	t.Helper()
	var body models.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestFunnelRendersAttachedError(t *testing.T) {
	mon := testMonitor()
	r := gin.New()
	r.Use(NewErrorFunnel(nil, mon, logger.NewNop()).Middleware())
	r.GET("/missing", func(c *gin.Context) {
		c.Error(apperr.NotFound("Short URL not found"))
		c.Abort()
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))

	require.Equal(t, http.StatusNotFound, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, "Short URL not found", body.Detail)
	assert.Equal(t, "/missing", body.Path)
	assert.WithinDuration(t, time.Now().UTC(), body.Timestamp, time.Minute)

	assert.Equal(t, int64(1), mon.Snapshot().TotalErrors)
}

func TestFunnelHidesInternalCauses(t *testing.T) {
	r := gin.New()
	r.Use(NewErrorFunnel(nil, testMonitor(), logger.NewNop()).Middleware())
	r.GET("/boom", func(c *gin.Context) {
		c.Error(errors.New("pq: connection refused"))
		c.Abort()
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, "internal server error", body.Detail)
	assert.NotContains(t, w.Body.String(), "connection refused")
}

func TestFunnelRecoversPanics(t *testing.T) {
	sink := newCaptureSink()
	mon := testMonitor()
	r := gin.New()
	r.Use(NewErrorFunnel(sink, mon, logger.NewNop()).Middleware())
	r.GET("/panic", func(c *gin.Context) {
		panic("nil map write")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal server error", decodeError(t, w).Detail)

	entry := sink.wait(t)
	assert.Equal(t, "FATAL", entry.Level)
	require.NotNil(t, entry.Stacktrace)
	assert.Contains(t, *entry.Stacktrace, "goroutine")
	assert.Equal(t, int64(1), mon.Snapshot().TotalErrors)
}

func TestFunnelSets401Challenge(t *testing.T) {
	r := gin.New()
	r.Use(NewErrorFunnel(nil, testMonitor(), logger.NewNop()).Middleware())
	r.GET("/private", func(c *gin.Context) {
		c.Error(apperr.Unauthorized("Not authenticated"))
		c.Abort()
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/private", nil))

	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))
}

func TestFunnelPersistsValidationMetadata(t *testing.T) {
	sink := newCaptureSink()
	r := gin.New()
	r.Use(NewErrorFunnel(sink, testMonitor(), logger.NewNop()).Middleware())
	r.POST("/form", func(c *gin.Context) {
		c.Error(apperr.Validation(map[string]string{"email": "email is not a valid email address"}))
		c.Abort()
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/form", nil))

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "request validation failed", decodeError(t, w).Detail)

	entry := sink.wait(t)
	assert.Equal(t, "WARN", entry.Level)
	assert.Equal(t, "email is not a valid email address", entry.Metadata["email"])
	require.NotNil(t, entry.StatusCode)
	assert.Equal(t, http.StatusUnprocessableEntity, *entry.StatusCode)
}

func TestFunnelLeavesWrittenResponsesAlone(t *testing.T) {
	r := gin.New()
	r.Use(NewErrorFunnel(nil, testMonitor(), logger.NewNop()).Middleware())
	r.GET("/written", func(c *gin.Context) {
		c.String(http.StatusTeapot, "already out")
		c.Error(apperr.Internal(errors.New("too late")))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/written", nil))

	require.Equal(t, http.StatusTeapot, w.Code)
	assert.Equal(t, "already out", w.Body.String())
}

func TestFunnelIgnoresCleanRequests(t *testing.T) {
	mon := testMonitor()
	r := gin.New()
	r.Use(NewErrorFunnel(nil, mon, logger.NewNop()).Middleware())
	r.GET("/fine", func(c *gin.Context) { c.String(http.StatusOK, "fine") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fine", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(0), mon.Snapshot().TotalErrors)
}
