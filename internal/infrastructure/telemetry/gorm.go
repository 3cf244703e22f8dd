package telemetry

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// GormConfig configures instrumentation of the catalog database.
type GormConfig struct {
	// Tracing registers otelgorm spans for every statement
	Tracing bool
	// WithQueryVariables puts bound values into span statements (dev only)
	WithQueryVariables bool
	DBSystem           string
	SlowQueryThreshold time.Duration
	PoolStatsInterval  time.Duration
}

// DefaultGormConfig returns the production defaults.
func DefaultGormConfig() GormConfig {
	return GormConfig{
		DBSystem:           "postgresql",
		SlowQueryThreshold: 200 * time.Millisecond,
		PoolStatsInterval:  15 * time.Second,
	}
}

// GormInstrumentation records query metrics, annotates query spans, and
// samples connection pool stats.
type GormInstrumentation struct {
	cfg    GormConfig
	logger *zap.Logger
	sqlDB  *sql.DB

	queryTotal     *Counter
	queryDuration  *Histogram
	slowQueryTotal *Counter
	poolConns      *Gauge
	poolConnsMax   *Gauge

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type queryStartKey struct{}

// InstrumentGorm registers tracing and metrics callbacks on db.
func InstrumentGorm(db *gorm.DB, meter metric.Meter, cfg GormConfig, logger *zap.Logger) (*GormInstrumentation, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultGormConfig()
	if cfg.SlowQueryThreshold <= 0 {
		cfg.SlowQueryThreshold = defaults.SlowQueryThreshold
	}
	if cfg.PoolStatsInterval <= 0 {
		cfg.PoolStatsInterval = defaults.PoolStatsInterval
	}
	if cfg.DBSystem == "" {
		cfg.DBSystem = defaults.DBSystem
	}

	g := &GormInstrumentation{cfg: cfg, logger: logger, stopCh: make(chan struct{})}
	var err error
	if g.queryTotal, err = NewCounter(meter, "db_query_total", "Database queries by operation", "{query}"); err != nil {
		return nil, err
	}
	if g.queryDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "db_query_duration_seconds",
		Description: "Database query latency",
		Unit:        "s",
		Boundaries:  DBDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if g.slowQueryTotal, err = NewCounter(meter, "db_slow_query_total", "Queries slower than the slow query threshold", "{query}"); err != nil {
		return nil, err
	}
	if g.poolConns, err = NewGauge(meter, "db_pool_connections", "Pool connections by state", "{connection}"); err != nil {
		return nil, err
	}
	if g.poolConnsMax, err = NewGauge(meter, "db_pool_connections_max", "Maximum open connections", "{connection}"); err != nil {
		return nil, err
	}

	if cfg.Tracing {
		opts := []otelgorm.Option{otelgorm.WithDBName(cfg.DBSystem)}
		if !cfg.WithQueryVariables {
			opts = append(opts, otelgorm.WithoutQueryVariables())
		}
		if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
			return nil, err
		}
	}
	if err := g.register(db); err != nil {
		return nil, err
	}
	if g.sqlDB, err = db.DB(); err != nil {
		return nil, err
	}

	logger.Info("Database instrumentation registered",
		zap.Bool("tracing", cfg.Tracing),
		zap.Duration("slow_query_threshold", cfg.SlowQueryThreshold),
	)
	return g, nil
}

func (g *GormInstrumentation) register(db *gorm.DB) error {
	cb := db.Callback()
	return errors.Join(
		cb.Create().Before("gorm:create").Register("partsync:before_create", g.before),
		cb.Create().After("gorm:create").Register("partsync:after_create", g.after("INSERT")),
		cb.Query().Before("gorm:query").Register("partsync:before_query", g.before),
		cb.Query().After("gorm:query").Register("partsync:after_query", g.after("SELECT")),
		cb.Update().Before("gorm:update").Register("partsync:before_update", g.before),
		cb.Update().After("gorm:update").Register("partsync:after_update", g.after("UPDATE")),
		cb.Delete().Before("gorm:delete").Register("partsync:before_delete", g.before),
		cb.Delete().After("gorm:delete").Register("partsync:after_delete", g.after("DELETE")),
		cb.Row().Before("gorm:row").Register("partsync:before_row", g.before),
		cb.Row().After("gorm:row").Register("partsync:after_row", g.after("")),
		cb.Raw().Before("gorm:raw").Register("partsync:before_raw", g.before),
		cb.Raw().After("gorm:raw").Register("partsync:after_raw", g.after("")),
	)
}

func (g *GormInstrumentation) before(db *gorm.DB) {
	ctx := db.Statement.Context
	if ctx == nil {
		ctx = context.Background()
	}
	db.Statement.Context = context.WithValue(ctx, queryStartKey{}, time.Now())
}

// after returns the callback recording a finished statement. An empty
// operation is detected from the SQL text.
func (g *GormInstrumentation) after(operation string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		ctx := db.Statement.Context
		if ctx == nil {
			return
		}
		op := operation
		if op == "" {
			op = detectOperation(db.Statement.SQL.String())
		}
		var elapsed time.Duration
		if start, ok := ctx.Value(queryStartKey{}).(time.Time); ok {
			elapsed = time.Since(start)
		}
		g.RecordQuery(ctx, op, db.Statement.Table, elapsed)
		g.annotateSpan(db, elapsed)
	}
}

// RecordQuery records one statement.
func (g *GormInstrumentation) RecordQuery(ctx context.Context, operation, table string, d time.Duration) {
	op := AttrDBOperation.String(operation)
	g.queryTotal.Inc(ctx, op)
	g.queryDuration.RecordDuration(ctx, d, op)
	if d > g.cfg.SlowQueryThreshold {
		if table == "" {
			table = "unknown"
		}
		g.slowQueryTotal.Inc(ctx, op, AttrDBTable.String(table))
	}
}

func (g *GormInstrumentation) annotateSpan(db *gorm.DB, elapsed time.Duration) {
	span := trace.SpanFromContext(db.Statement.Context)
	if !span.IsRecording() {
		return
	}
	attrs := []attribute.KeyValue{attribute.Int64("db.rows_affected", db.Statement.RowsAffected)}
	if db.Statement.Table != "" {
		attrs = append(attrs, attribute.String("db.sql.table", db.Statement.Table))
	}
	span.SetAttributes(attrs...)
	if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
		span.RecordError(db.Error)
		span.SetStatus(codes.Error, db.Error.Error())
	}
	if elapsed > g.cfg.SlowQueryThreshold {
		span.AddEvent("slow_query", trace.WithAttributes(
			attribute.Int64("duration_ms", elapsed.Milliseconds()),
			attribute.Int64("threshold_ms", g.cfg.SlowQueryThreshold.Milliseconds()),
		))
	}
}

func detectOperation(stmt string) string {
	stmt = strings.ToUpper(strings.TrimSpace(stmt))
	for _, op := range []string{"SELECT", "INSERT", "UPDATE", "DELETE"} {
		if strings.HasPrefix(stmt, op) {
			return op
		}
	}
	return "OTHER"
}

// StartPoolStats samples pool statistics until Stop or ctx is done.
func (g *GormInstrumentation) StartPoolStats(ctx context.Context) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		ticker := time.NewTicker(g.cfg.PoolStatsInterval)
		defer ticker.Stop()

		g.collectPoolStats(ctx)
		for {
			select {
			case <-ticker.C:
				g.collectPoolStats(ctx)
			case <-g.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (g *GormInstrumentation) collectPoolStats(ctx context.Context) {
	stats := g.sqlDB.Stats()
	g.poolConnsMax.Record(ctx, int64(stats.MaxOpenConnections))
	g.poolConns.Record(ctx, int64(stats.Idle), AttrDBState.String("idle"))
	g.poolConns.Record(ctx, int64(stats.InUse), AttrDBState.String("in_use"))
	g.poolConns.Record(ctx, int64(stats.OpenConnections), AttrDBState.String("open"))
}

// Stop ends pool sampling. Safe to call more than once.
func (g *GormInstrumentation) Stop() {
	g.stopOnce.Do(func() {
		close(g.stopCh)
		g.wg.Wait()
	})
}
