package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/partsync/backend/internal/infrastructure/logger"
	"github.com/partsync/backend/internal/interfaces/http/dto"
	"github.com/partsync/backend/internal/interfaces/http/handler"
	"github.com/partsync/backend/internal/interfaces/http/middleware"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// DefaultMaxBodyBytes caps request bodies. Sync endpoints take tiny JSON.
const DefaultMaxBodyBytes = 1 << 20

// EngineConfig holds what NewEngine needs to assemble the HTTP surface
type EngineConfig struct {
	Logger         *zap.Logger
	Meter          metric.Meter // nil disables HTTP metrics
	Tracing        middleware.TracingConfig
	CORS           middleware.CORSConfig
	TrustedProxies []string
	MaxBodyBytes   int64
	// TriggerLimiter throttles the state-changing sync routes. Nil disables it.
	TriggerLimiter *middleware.RateLimiter

	Sync   handler.SyncService
	System *handler.SystemHandler
}

// NewEngine builds the gin engine with the middleware chain and the sync
// and system routes.
func NewEngine(cfg EngineConfig) (*gin.Engine, error) {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, err
	}

	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(middleware.Tracing(cfg.Tracing))
	engine.Use(middleware.SpanEnricher())
	engine.Use(logger.GinMiddleware(log))
	if cfg.Meter != nil {
		engine.Use(middleware.HTTPMetrics(cfg.Meter, log))
	}
	engine.Use(middleware.CORSWithConfig(cfg.CORS))
	engine.Use(middleware.Secure())
	engine.Use(middleware.BodyLimit(cfg.MaxBodyBytes))

	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, dto.NewErrorResponse(dto.ErrCodeNotFound, "Route not found", middleware.GetRequestID(c)))
	})

	r := NewRouter(engine)
	if cfg.System != nil {
		engine.GET("/health", cfg.System.Health)
		r.Register(RegistrarFunc(func(rg *gin.RouterGroup) {
			rg.GET("/system/info", cfg.System.GetSystemInfo)
		}))
	}
	if cfg.Sync != nil {
		var extra []gin.HandlerFunc
		if cfg.TriggerLimiter != nil {
			extra = append(extra, middleware.RateLimit(cfg.TriggerLimiter))
		}
		syncHandler := handler.NewSyncHandler(cfg.Sync)
		r.Register(RegistrarFunc(func(rg *gin.RouterGroup) {
			syncHandler.RegisterRoutes(rg, extra...)
		}))
	}
	r.Setup()

	return engine, nil
}
