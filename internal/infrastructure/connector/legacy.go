package connector

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // registers the "postgres" driver
	"github.com/partsync/backend/internal/domain/datasync"
	"github.com/partsync/backend/internal/infrastructure/config"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// LegacyConnector reads the legacy system of record through a bounded
// sqlx pool shared by every entity type routed to it.
type LegacyConnector struct {
	cfg       *config.LegacySourceConfig
	allowlist *Allowlist
	logger    *zap.Logger
	breaker   *gobreaker.CircuitBreaker
	limiter   *rate.Limiter

	mu       sync.Mutex
	db       *sqlx.DB
	refs     int
	injected *sqlx.DB
}

// LegacyOption configures a LegacyConnector
type LegacyOption func(*LegacyConnector)

// WithLegacyLogger sets the logger
func WithLegacyLogger(logger *zap.Logger) LegacyOption {
	return func(c *LegacyConnector) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithLegacyDB uses an existing handle instead of dialing on Open.
func WithLegacyDB(db *sqlx.DB) LegacyOption {
	return func(c *LegacyConnector) {
		c.db = db
		c.injected = db
	}
}

// NewLegacyConnector validates the configuration. No connection is made
// until Open.
func NewLegacyConnector(cfg *config.LegacySourceConfig, opts ...LegacyOption) (*LegacyConnector, error) {
	if cfg == nil {
		return nil, errors.New("legacy source configuration is required")
	}
	allowlist, err := NewAllowlist(cfg.Name, cfg.Allowlist)
	if err != nil {
		return nil, err
	}

	c := &LegacyConnector{
		cfg:       cfg,
		allowlist: allowlist,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "legacy-" + cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			c.logger.Warn("Legacy source circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	if cfg.QueriesPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.QueriesPerSecond), 1)
	} else {
		c.limiter = rate.NewLimiter(rate.Inf, 0)
	}

	return c, nil
}

func (c *LegacyConnector) Name() string         { return c.cfg.Name }
func (c *LegacyConnector) Format() SourceFormat { return FormatLegacySQL }
func (c *LegacyConnector) PageSize() int        { return c.cfg.PageSize }

// Open dials the pool and pings within ConnectTimeout. Calling Open on an
// open connector only counts the caller.
func (c *LegacyConnector) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db != nil {
		c.refs++
		return nil
	}
	if c.injected != nil {
		c.db, c.refs = c.injected, 1
		return nil
	}
	if len(c.allowlist.entries) == 0 {
		return datasync.NewConfigurationError("connector "+c.cfg.Name, "allowlist is empty", nil)
	}

	db, err := sqlx.Open(c.cfg.Driver, c.cfg.DSN())
	if err != nil {
		return datasync.NewConfigurationError("connector "+c.cfg.Name, "cannot open driver "+c.cfg.Driver, err)
	}
	db.SetMaxOpenConns(c.cfg.PoolSize)
	db.SetMaxIdleConns(c.cfg.PoolSize)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		if pingCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return &TimeoutError{Source: c.cfg.Name, Op: "connect", Timeout: c.cfg.ConnectTimeout, Err: err}
		}
		return classify(c.cfg.Name, "connect", c.cfg.ConnectTimeout, err)
	}

	c.db = db
	c.refs = 1
	c.logger.Info("Legacy source connected",
		zap.String("source", c.cfg.Name),
		zap.String("driver", c.cfg.Driver),
		zap.Int("pool_size", c.cfg.PoolSize),
		zap.Strings("allowlist", c.allowlist.Tables()),
	)
	return nil
}

// Query reads one page. The allowlist and the read-only guard run before
// anything touches the network.
func (c *LegacyConnector) Query(ctx context.Context, q Query) ([]datasync.RawRecord, error) {
	if err := c.allowlist.Check(q.Table); err != nil {
		return nil, err
	}

	c.mu.Lock()
	db := c.db
	c.mu.Unlock()
	if db == nil {
		return nil, datasync.NewConfigurationError("connector "+c.cfg.Name, "connector is not open", nil)
	}

	stmt, args, err := buildSelect(c.cfg.Name, sqlx.BindType(db.DriverName()), q)
	if err != nil {
		return nil, err
	}
	if err := guardReadOnly(c.cfg.Name, stmt); err != nil {
		return nil, err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.run(ctx, db, stmt, args, q)
	})
	if err != nil {
		return nil, classify(c.cfg.Name, "query "+q.Table, c.cfg.QueryTimeout, err)
	}
	return out.([]datasync.RawRecord), nil
}

// run executes stmt on a dedicated connection. A connection that hits the
// query timeout is discarded so the pool replaces it.
func (c *LegacyConnector) run(ctx context.Context, db *sqlx.DB, stmt string, args []any, q Query) ([]datasync.RawRecord, error) {
	conn, err := db.Connx(ctx)
	if err != nil {
		return nil, err
	}

	qctx := ctx
	cancel := func() {}
	if c.cfg.QueryTimeout > 0 {
		qctx, cancel = context.WithTimeout(ctx, c.cfg.QueryTimeout)
	}
	defer cancel()

	records, err := c.scan(qctx, conn, stmt, args, q)
	if err != nil && qctx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		_ = conn.Raw(func(any) error { return driver.ErrBadConn })
		_ = conn.Close()
		c.logger.Warn("Legacy query timed out, connection discarded",
			zap.String("source", c.cfg.Name),
			zap.String("table", q.Table),
			zap.Int("offset", q.Offset),
			zap.Duration("timeout", c.cfg.QueryTimeout),
		)
		return nil, &TimeoutError{Source: c.cfg.Name, Op: "query " + q.Table, Timeout: c.cfg.QueryTimeout, Err: err}
	}
	_ = conn.Close()
	return records, err
}

func (c *LegacyConnector) scan(ctx context.Context, conn *sqlx.Conn, stmt string, args []any, q Query) ([]datasync.RawRecord, error) {
	rows, err := conn.QueryxContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	keyIdx := -1
	for i, col := range columns {
		if q.OrderBy != "" && col == q.OrderBy {
			keyIdx = i
		}
	}

	records := make([]datasync.RawRecord, 0, q.Limit)
	for rows.Next() {
		values, err := rows.SliceScan()
		if err != nil {
			return nil, err
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		rowID := strconv.Itoa(q.Offset + len(records) + 1)
		if keyIdx >= 0 && values[keyIdx] != nil {
			rowID = q.OrderBy + "=" + strings.TrimSpace(fmt.Sprint(values[keyIdx]))
		}
		records = append(records, datasync.NewRawRecord(rowID, columns, values))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// Close closes the pool. An injected handle is left to its owner.
func (c *LegacyConnector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil
	}
	if c.refs > 1 {
		c.refs--
		return nil
	}
	c.refs = 0
	var err error
	if c.injected == nil {
		err = c.db.Close()
	}
	c.db = nil
	return err
}
