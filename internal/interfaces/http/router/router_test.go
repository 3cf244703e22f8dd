package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	syncapp "github.com/partsync/backend/internal/application/sync"
	"github.com/partsync/backend/internal/domain/datasync"
	"github.com/partsync/backend/internal/domain/shared"
	"github.com/partsync/backend/internal/interfaces/http/handler"
	"github.com/partsync/backend/internal/interfaces/http/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubSyncService answers every call with the same running part log
type stubSyncService struct {
	log *datasync.SyncLog
}

func (s *stubSyncService) RunSync(context.Context, datasync.EntityType, bool) (*datasync.SyncLog, error) {
	return s.log, nil
}

func (s *stubSyncService) ScheduleSync(datasync.EntityType, time.Duration) (syncapp.ScheduledSync, error) {
	return syncapp.ScheduledSync{}, nil
}

func (s *stubSyncService) CancelSync(context.Context, datasync.EntityType) (*datasync.SyncLog, error) {
	return nil, syncapp.ErrNoActiveSync
}

func (s *stubSyncService) GetSyncStatus(context.Context, datasync.EntityType) (*datasync.SyncLog, error) {
	return s.log, nil
}

func (s *stubSyncService) ListHistory(context.Context, datasync.SyncLogFilter) (shared.Paginated[*datasync.SyncLog], error) {
	return shared.NewPaginated([]*datasync.SyncLog{s.log}, 1, 1, 20), nil
}

func newStub(t *testing.T) *stubSyncService {
	t.Helper()
	log, err := datasync.NewSyncLog(datasync.EntityPart, datasync.TriggerManual)
	require.NoError(t, err)
	require.NoError(t, log.Start())
	return &stubSyncService{log: log}
}

func serve(engine *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestNewRouter(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine)

	assert.NotNil(t, r)
	assert.Equal(t, "v1", r.apiVersion)
	assert.Empty(t, r.registrars)
}

func TestRouterWithAPIVersion(t *testing.T) {
	r := NewRouter(gin.New(), WithAPIVersion("v2"))
	assert.Equal(t, "v2", r.apiVersion)
}

func TestRouterSetup(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine, WithAPIVersion("v2"))
	r.Register(RegistrarFunc(func(rg *gin.RouterGroup) {
		rg.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	}))
	assert.Len(t, r.registrars, 1)
	r.Setup()

	w := serve(engine, http.MethodGet, "/api/v2/ping")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())
}

func TestNewEngine_Routes(t *testing.T) {
	engine, err := NewEngine(EngineConfig{
		CORS:   middleware.DefaultCORSConfig(),
		Sync:   newStub(t),
		System: handler.NewSystemHandler("test", nil),
	})
	require.NoError(t, err)

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/api/v1/system/info", http.StatusOK},
		{http.MethodPost, "/api/v1/sync/part", http.StatusAccepted},
		{http.MethodGet, "/api/v1/sync/part/status", http.StatusOK},
		{http.MethodPost, "/api/v1/sync/part/cancel", http.StatusNotFound},
		{http.MethodGet, "/api/v1/sync/history", http.StatusOK},
		{http.MethodGet, "/api/v1/nothing", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := serve(engine, tt.method, tt.path)
			assert.Equal(t, tt.want, w.Code)
			assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
			assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
		})
	}
}

func TestNewEngine_TriggerLimiterGuardsWritesOnly(t *testing.T) {
	engine, err := NewEngine(EngineConfig{
		CORS:           middleware.DefaultCORSConfig(),
		Sync:           newStub(t),
		TriggerLimiter: middleware.NewRateLimiter(1, 1),
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusAccepted, serve(engine, http.MethodPost, "/api/v1/sync/part").Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(engine, http.MethodPost, "/api/v1/sync/part").Code)
	assert.Equal(t, http.StatusOK, serve(engine, http.MethodGet, "/api/v1/sync/part/status").Code)
}

func TestNewEngine_RecordsHTTPMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	engine, err := NewEngine(EngineConfig{
		Meter:  provider.Meter("router-test"),
		CORS:   middleware.DefaultCORSConfig(),
		System: handler.NewSystemHandler("test", nil),
	})
	require.NoError(t, err)
	serve(engine, http.MethodGet, "/health")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	var names []string
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			names = append(names, m.Name)
		}
	}
	assert.Contains(t, names, "http_server_request_total")
	assert.Contains(t, names, "http_server_request_duration_seconds")
}

func TestNewEngine_InvalidTrustedProxy(t *testing.T) {
	_, err := NewEngine(EngineConfig{TrustedProxies: []string{"not-an-ip"}})
	assert.Error(t, err)
}
