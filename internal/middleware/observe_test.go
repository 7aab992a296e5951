package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zarlabs/zar/internal/logger"
	"github.com/zarlabs/zar/internal/monitor"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testMonitor() *monitor.SystemMonitor {
	return monitor.New(time.Hour, logger.NewNop())
}

// newEngine builds a router with the given chain and an error funnel so
// attached errors render the way they do in production.
func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(NewErrorFunnel(nil, testMonitor(), logger.NewNop()).Middleware())
	r.Use(mw...)
	return r
}

func TestClientIdentity(t *testing.T) {
	tests := []struct {
		name       string
		forwarded  string
		realIP     string
		remoteAddr string
		want       string
	}{
		{"forwarded for wins", "9.9.9.9, 10.0.0.1", "1.1.1.1", "2.2.2.2:1234", "9.9.9.9"},
		{"forwarded for trimmed", " 9.9.9.9 ", "", "2.2.2.2:1234", "9.9.9.9"},
		{"real ip next", "", "1.1.1.1", "2.2.2.2:1234", "1.1.1.1"},
		{"socket peer last", "", "", "2.2.2.2:1234", "2.2.2.2"},
		{"unparseable peer returned raw", "", "", "not-an-addr", "not-an-addr"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			c.Request.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				c.Request.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			if tt.realIP != "" {
				c.Request.Header.Set("X-Real-IP", tt.realIP)
			}

			assert.Equal(t, tt.want, ClientIdentity(c))
		})
	}
}

func TestObserverStampsRequestIDAndTiming(t *testing.T) {
	mon := testMonitor()
	r := gin.New()
	r.Use(NewObserver(mon, nil, logger.NewNop()).Middleware())
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.Regexp(t, regexp.MustCompile(`^\d+\.\d{2}ms$`), w.Header().Get("X-Response-Time"))

	snap := mon.Snapshot()
	assert.Equal(t, int64(1), snap.TotalRequests)
	assert.Equal(t, int64(0), snap.TotalErrors)
}

func TestObserverStampsTimingWithoutBody(t *testing.T) {
	r := gin.New()
	r.Use(NewObserver(testMonitor(), nil, logger.NewNop()).Middleware())
	r.GET("/empty", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/empty", nil))

	require.Equal(t, http.StatusNoContent, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Response-Time"))
}

func TestObserverSkipsDocsPaths(t *testing.T) {
	r := gin.New()
	r.Use(NewObserver(testMonitor(), nil, logger.NewNop()).Middleware())
	r.GET("/docs", func(c *gin.Context) { c.String(http.StatusOK, "docs") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/docs", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("X-Request-ID"))
	assert.Empty(t, w.Header().Get("X-Response-Time"))
}

func TestBodyLimitDeclaredLength(t *testing.T) {
	r := newEngine(BodyLimit(16))
	r.POST("/echo", func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		require.NoError(t, err)
		c.String(http.StatusOK, string(body))
	})

	t.Run("under the cap", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader("small")))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "small", w.Body.String())
	})

	t.Run("exactly the cap", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(strings.Repeat("x", 16))))

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("over the cap", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(strings.Repeat("x", 17))))

		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		assert.Contains(t, w.Body.String(), "Request entity too large. Max allowed: 16 bytes")
	})
}

// chunkedBody hides its length so httptest leaves ContentLength at -1,
// matching a chunked upload.
type chunkedBody struct{ io.Reader }

func TestBodyLimitUnknownLength(t *testing.T) {
	r := newEngine(BodyLimit(16))
	r.POST("/echo", func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		require.NoError(t, err)
		c.String(http.StatusOK, string(body))
	})

	t.Run("body re-attached for the handler", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/echo", chunkedBody{strings.NewReader("streamed")})
		require.Equal(t, int64(-1), req.ContentLength)
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "streamed", w.Body.String())
	})

	t.Run("oversized stream rejected", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/echo", chunkedBody{strings.NewReader(strings.Repeat("x", 17))})
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	})
}
