package logger

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func newRouter(t *testing.T) (*gin.Engine, func() []map[string]any) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	base, logs := observed()
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(GinRequestIDKey, "req-42")
		c.Next()
	})
	r.Use(Recovery(base), GinMiddleware(base))
	return r, func() []map[string]any {
		out := make([]map[string]any, 0, logs.Len())
		for _, e := range logs.All() {
			m := e.ContextMap()
			m["_msg"] = e.Message
			m["_level"] = e.Level
			out = append(out, m)
		}
		return out
	}
}

func TestGinMiddleware_LogsRequest(t *testing.T) {
	r, entries := newRouter(t)
	var ctxRequestID string
	r.POST("/api/v1/sync/:entity_type", func(c *gin.Context) {
		ctxRequestID = GetRequestID(c.Request.Context())
		GetGinLogger(c).Info("handler")
		c.Status(http.StatusAccepted)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/sync/part?force=true", nil))
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "req-42", ctxRequestID)

	got := entries()
	require.Len(t, got, 2)
	assert.Equal(t, "handler", got[0]["_msg"])
	assert.Equal(t, "req-42", got[0]["request_id"])
	access := got[1]
	assert.Equal(t, "HTTP Request", access["_msg"])
	assert.Equal(t, zapcore.InfoLevel, access["_level"])
	assert.Equal(t, int64(http.StatusAccepted), access["status"])
	assert.Equal(t, "force=true", access["query"])
	assert.Equal(t, "part", access["entity_type"])
	assert.Equal(t, http.MethodPost, access["method"])
}

func TestGinMiddleware_LevelByStatus(t *testing.T) {
	r, entries := newRouter(t)
	r.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	r.GET("/broken", func(c *gin.Context) { c.Status(http.StatusServiceUnavailable) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/broken", nil))

	got := entries()
	require.Len(t, got, 2)
	assert.Equal(t, zapcore.WarnLevel, got[0]["_level"])
	assert.Equal(t, zapcore.ErrorLevel, got[1]["_level"])
}

func TestRecovery(t *testing.T) {
	r, entries := newRouter(t)
	r.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), `"request_id":"req-42"`)
	var panicked bool
	for _, e := range entries() {
		if e["_msg"] == "Panic recovered" {
			panicked = true
		}
	}
	assert.True(t, panicked)
}

func TestGetGinLogger_NotSet(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.NotNil(t, GetGinLogger(c))
}
