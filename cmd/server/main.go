package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	syncapp "github.com/partsync/backend/internal/application/sync"
	"github.com/partsync/backend/internal/domain/datasync"
	"github.com/partsync/backend/internal/domain/shared"
	"github.com/partsync/backend/internal/infrastructure/config"
	"github.com/partsync/backend/internal/infrastructure/connector"
	"github.com/partsync/backend/internal/infrastructure/event"
	"github.com/partsync/backend/internal/infrastructure/lock"
	"github.com/partsync/backend/internal/infrastructure/logger"
	"github.com/partsync/backend/internal/infrastructure/mapping"
	"github.com/partsync/backend/internal/infrastructure/migration"
	"github.com/partsync/backend/internal/infrastructure/persistence"
	"github.com/partsync/backend/internal/infrastructure/scheduler"
	"github.com/partsync/backend/internal/infrastructure/storage"
	"github.com/partsync/backend/internal/infrastructure/telemetry"
	"github.com/partsync/backend/internal/interfaces/http/dto"
	"github.com/partsync/backend/internal/interfaces/http/handler"
	"github.com/partsync/backend/internal/interfaces/http/middleware"
	"github.com/partsync/backend/internal/interfaces/http/router"
	"github.com/partsync/backend/migrations"
	"go.uber.org/zap"
)

// version is stamped at build time with -ldflags "-X main.version=..."
var version = "dev"

const shutdownTimeout = 30 * time.Second

//	@title			partsync API
//	@version		1.0
//	@description	Triggers and monitors catalog synchronization from the legacy system and industry reference exports.
//	@BasePath		/api/v1

func main() {
	configPath := flag.String("config", "", "Config file (default: config.toml lookup)")
	runMigrations := flag.Bool("migrate", true, "Apply schema migrations before serving")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(logger.FromAppConfig(cfg))
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() { _ = log.Sync() }()

	log.Info("Starting partsync",
		zap.String("version", version),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("db_driver", cfg.Database.Driver),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telemetry
	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		Insecure:          cfg.Telemetry.Insecure,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		LogsEnabled:       cfg.Telemetry.Enabled,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := tp.Shutdown(sctx); err != nil {
			log.Warn("Telemetry shutdown failed", zap.Error(err))
		}
	}()
	if tp.LogsEnabled() {
		log = tp.BridgeLogger(log, logger.ParseLevel(cfg.Log.Level))
	}
	meter := tp.Meter("github.com/partsync/backend")

	// Continuous profiling
	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:           cfg.Profiling.Enabled,
		ServerAddress:     cfg.Profiling.ServerAddress,
		ApplicationName:   cfg.Profiling.ApplicationName,
		BasicAuthUser:     cfg.Profiling.BasicAuthUser,
		BasicAuthPassword: cfg.Profiling.BasicAuthPassword,
		ProfileTypes:      cfg.Profiling.ProfileTypes,
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	defer func() {
		if err := profiler.Stop(); err != nil {
			log.Warn("Profiler stop failed", zap.Error(err))
		}
	}()
	if cfg.Profiling.SpanProfiles && profiler.IsEnabled() {
		tp.EnableSpanProfiles()
	}

	// Catalog database
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	if *runMigrations {
		if err := migrateSchema(db, cfg, log); err != nil {
			log.Fatal("Failed to migrate catalog schema", zap.Error(err))
		}
	}

	gormMetrics, err := telemetry.InstrumentGorm(db.DB, meter, telemetry.GormConfig{
		Tracing:  cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		DBSystem: dbSystem(cfg.Database.Driver),
	}, log)
	if err != nil {
		log.Fatal("Failed to instrument database", zap.Error(err))
	}
	gormMetrics.StartPoolStats(ctx)
	defer gormMetrics.Stop()

	syncLogRepo := persistence.NewGormSyncLogRepository(db.DB)
	checkpointRepo := persistence.NewGormCheckpointRepository(db.DB)
	catalogStore := persistence.NewGormCatalogStore(db.DB)

	// Sources
	opener, err := newOpener(cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize object storage", zap.Error(err))
	}
	connectors, err := connector.NewRegistry(cfg, opener, log)
	if err != nil {
		log.Fatal("Failed to initialize source connectors", zap.Error(err))
	}
	defer func() {
		if err := connectors.Close(); err != nil {
			log.Warn("Error closing source connectors", zap.Error(err))
		}
	}()
	log.Info("Source connectors ready", zap.Strings("sources", connectors.Names()))

	mappers, err := mapping.Load(cfg.Sync.MappingFile)
	if err != nil {
		log.Fatal("Failed to load field mappings", zap.Error(err))
	}

	// Per-entity lease
	locker, closeLocker, err := newLocker(cfg)
	if err != nil {
		log.Fatal("Failed to initialize sync locker", zap.Error(err))
	}
	defer closeLocker()

	// Sync-finished events
	bus := event.NewInMemoryEventBus(log)
	eventHandler, err := newEventHandler(cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize event publishing", zap.Error(err))
	}
	bus.Subscribe(eventHandler, datasync.EventTypeSyncFinished)
	if err := bus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}

	syncMetrics, err := telemetry.NewSyncMetrics(telemetry.SyncMetricsConfig{Meter: meter, Logger: log})
	if err != nil {
		log.Fatal("Failed to create sync metrics", zap.Error(err))
	}

	// Pipeline and service
	pipeline := syncapp.NewPipeline(
		syncapp.NewImporter(catalogStore, log),
		checkpointRepo,
		syncapp.RetryPolicy{
			MaxRetries: cfg.Sync.MaxRetries,
			BaseDelay:  cfg.Sync.RetryBaseDelay,
			MaxDelay:   cfg.Sync.RetryMaxDelay,
		},
		syncMetrics,
		log,
	)
	syncService, err := syncapp.NewService(syncapp.ServiceDeps{
		Logs:        syncLogRepo,
		Checkpoints: checkpointRepo,
		Connectors:  connectors,
		Mappers:     mappers,
		Pipeline:    pipeline,
		Locker:      locker,
		Publisher:   bus,
		Metrics:     syncMetrics,
		Logger:      log,
	}, syncapp.ServiceConfig{
		BatchSize:            cfg.Sync.BatchSize,
		ProcessorConcurrency: cfg.Sync.ProcessorConcurrency,
		LockTTL:              cfg.Sync.LockTTL,
		Rules: syncapp.RuleConfig{
			ManufacturerCodes: cfg.Sync.ManufacturerCodes,
			CategoryCodes:     cfg.Sync.CategoryCodes,
		},
		Routes: cfg.Entities,
	})
	if err != nil {
		log.Fatal("Failed to create sync service", zap.Error(err))
	}

	if cfg.Sync.ReconcileOnStartup {
		n, err := syncService.Reconcile(ctx)
		if err != nil {
			log.Error("Failed to reconcile orphaned sync logs", zap.Error(err))
		} else if n > 0 {
			log.Warn("Marked orphaned sync logs as failed", zap.Int("count", n))
		}
	}

	// Scheduler
	schedCfg := scheduler.DefaultSyncSchedulerConfig()
	schedCfg.Workers = cfg.Sync.Workers
	schedCfg.QueueSize = cfg.Sync.QueueSize
	syncScheduler, err := scheduler.NewSyncScheduler(schedCfg, syncService, log)
	if err != nil {
		log.Fatal("Failed to create sync scheduler", zap.Error(err))
	}
	syncService.AttachScheduler(syncScheduler)
	if err := syncScheduler.Start(ctx); err != nil {
		log.Fatal("Failed to start sync scheduler", zap.Error(err))
	}

	periodic, err := scheduler.NewPeriodicTrigger(entitySchedules(cfg.Sync.Schedules), syncScheduler, log)
	if err != nil {
		log.Fatal("Failed to create periodic sync trigger", zap.Error(err))
	}
	if err := periodic.Start(ctx); err != nil {
		log.Fatal("Failed to start periodic sync trigger", zap.Error(err))
	}

	// HTTP
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	cors := middleware.DefaultCORSConfig()
	cors.AllowOrigins = cfg.HTTP.AllowOrigins
	var limiter *middleware.RateLimiter
	if cfg.HTTP.TriggerRateLimit > 0 {
		limiter = middleware.NewRateLimiter(cfg.HTTP.TriggerRateLimit, cfg.HTTP.TriggerBurst)
	}
	engine, err := router.NewEngine(router.EngineConfig{
		Logger: log,
		Meter:  meter,
		Tracing: middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     cfg.Telemetry.Enabled,
		},
		CORS:           cors,
		TrustedProxies: cfg.HTTP.TrustedProxies,
		MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
		TriggerLimiter: limiter,
		Sync:           syncService,
		System: handler.NewSystemHandler(version, map[string]handler.HealthCheck{
			"database": func(context.Context) error { return db.Ping() },
		}, handler.WithPoolStats(func() (dto.PoolStats, error) {
			st, err := db.Stats()
			if err != nil {
				return dto.PoolStats{}, err
			}
			return dto.PoolStats{
				MaxOpen:      st.MaxOpenConnections,
				Open:         st.OpenConnections,
				InUse:        st.InUse,
				Idle:         st.Idle,
				WaitCount:    st.WaitCount,
				WaitDuration: st.WaitDuration.String(),
			}, nil
		})),
	})
	if err != nil {
		log.Fatal("Failed to build HTTP engine", zap.Error(err))
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down server...")
	case err := <-serveErr:
		log.Error("HTTP server failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := periodic.Stop(shutdownCtx); err != nil {
		log.Warn("Periodic trigger did not stop cleanly", zap.Error(err))
	}
	if err := syncScheduler.Stop(shutdownCtx); err != nil {
		log.Warn("Sync scheduler did not stop cleanly", zap.Error(err))
	}
	// Running pipelines stop at their next batch boundary; their checkpoints
	// let the next process resume.
	if err := syncService.Shutdown(shutdownCtx); err != nil {
		log.Warn("Sync service did not stop cleanly", zap.Error(err))
	}
	if err := bus.Stop(shutdownCtx); err != nil {
		log.Warn("Event bus did not stop cleanly", zap.Error(err))
	}
	if c, ok := eventHandler.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			log.Warn("Error closing event publisher", zap.Error(err))
		}
	}

	log.Info("Server exited gracefully")
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// migrateSchema applies the SQL migrations on postgres. sqlite databases are
// local or test stores and are created from the models.
func migrateSchema(db *persistence.Database, cfg *config.Config, log *zap.Logger) error {
	if cfg.Database.Driver == config.DriverSQLite {
		return db.AutoMigrate()
	}
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	m, err := migration.New(sqlDB, migration.Source{FS: migrations.FS}, log)
	if err != nil {
		return err
	}
	// Closing the migrator would close sqlDB, which the server still uses
	return m.Up()
}

func dbSystem(driver string) string {
	if driver == config.DriverSQLite {
		return "sqlite"
	}
	return "postgresql"
}

// newOpener reads reference exports from disk, and from S3 when any
// reference source lives there
func newOpener(cfg *config.Config, log *zap.Logger) (*storage.Opener, error) {
	for _, ref := range cfg.References {
		if strings.HasPrefix(ref.Location, "s3://") {
			reader, err := storage.NewS3ObjectReader(&cfg.Storage, storage.WithLogger(log))
			if err != nil {
				return nil, err
			}
			return storage.NewOpener(reader), nil
		}
	}
	return storage.NewOpener(nil), nil
}

func newLocker(cfg *config.Config) (lock.Locker, func(), error) {
	if cfg.Sync.LockBackend == "redis" {
		l, err := lock.NewRedisLocker(cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		return l, func() { _ = l.Close() }, nil
	}
	return lock.NewMemoryLocker(time.Minute), func() {}, nil
}

func newEventHandler(cfg *config.Config, log *zap.Logger) (shared.EventHandler, error) {
	if cfg.Kafka.Enabled {
		return event.NewKafkaHandler(cfg.Kafka, log)
	}
	return event.NewLogHandler(log), nil
}

func entitySchedules(raw map[string]time.Duration) map[datasync.EntityType]time.Duration {
	out := make(map[datasync.EntityType]time.Duration, len(raw))
	for name, interval := range raw {
		out[datasync.NormalizeEntityType(name)] = interval
	}
	return out
}
