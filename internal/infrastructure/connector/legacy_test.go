package connector

import (
	"context"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/partsync/backend/internal/domain/datasync"
	"github.com/partsync/backend/internal/infrastructure/config"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func legacyConfig() *config.LegacySourceConfig {
	return &config.LegacySourceConfig{
		Name:            "mainframe",
		Driver:          "postgres",
		Allowlist:       []string{"CATALOG.PARTMAST", "INVENTORY.STKBAL"},
		ConnectTimeout:  time.Second,
		QueryTimeout:    time.Second,
		PoolSize:        2,
		PageSize:        2,
		BreakerFailures: 2,
		BreakerTimeout:  time.Minute,
	}
}

func newMockLegacy(t *testing.T, cfg *config.LegacySourceConfig) (*LegacyConnector, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	c, err := NewLegacyConnector(cfg,
		WithLegacyDB(sqlx.NewDb(db, "postgres")),
		WithLegacyLogger(zaptest.NewLogger(t)),
	)
	require.NoError(t, err)
	require.NoError(t, c.Open(context.Background()))
	return c, mock
}

func TestNewLegacyConnector(t *testing.T) {
	t.Run("rejects malformed allowlist entries", func(t *testing.T) {
		cfg := legacyConfig()
		cfg.Allowlist = []string{"PARTMAST"}
		_, err := NewLegacyConnector(cfg)
		require.Error(t, err)
		assert.True(t, datasync.IsConfigurationError(err))
	})

	t.Run("open with empty allowlist fails before dialing", func(t *testing.T) {
		cfg := legacyConfig()
		cfg.Allowlist = nil
		c, err := NewLegacyConnector(cfg)
		require.NoError(t, err)

		err = c.Open(context.Background())
		require.Error(t, err)
		assert.True(t, datasync.IsConfigurationError(err))
	})

	t.Run("reports identity", func(t *testing.T) {
		c, err := NewLegacyConnector(legacyConfig())
		require.NoError(t, err)
		assert.Equal(t, "mainframe", c.Name())
		assert.Equal(t, FormatLegacySQL, c.Format())
		assert.Equal(t, 2, c.PageSize())
	})
}

func TestLegacyConnector_Query(t *testing.T) {
	ctx := context.Background()

	t.Run("reads an ordered page", func(t *testing.T) {
		c, mock := newMockLegacy(t, legacyConfig())
		mock.ExpectQuery(`SELECT "PARTNO", "MFRCD", "DESC" FROM "CATALOG"."PARTMAST" ORDER BY "PARTNO" LIMIT $1 OFFSET $2`).
			WithArgs(2, 4).
			WillReturnRows(sqlmock.NewRows([]string{"PARTNO", "MFRCD", "DESC"}).
				AddRow("A100  ", []byte("ACD"), "Oil filter").
				AddRow("A200  ", []byte("ACD"), nil))

		records, err := c.Query(ctx, Query{
			Table:   "CATALOG.PARTMAST",
			Columns: []string{"PARTNO", "MFRCD", "DESC"},
			OrderBy: "PARTNO",
			Limit:   2,
			Offset:  4,
		})
		require.NoError(t, err)
		require.Len(t, records, 2)

		assert.Equal(t, "PARTNO=A100", records[0].RowID)
		assert.Equal(t, []string{"PARTNO", "MFRCD", "DESC"}, records[0].Columns)
		assert.Equal(t, "ACD", records[0].Values["MFRCD"])
		assert.Equal(t, "Oil filter", records[0].Values["DESC"])
		assert.Nil(t, records[1].Values["DESC"])
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("renders filters deterministically", func(t *testing.T) {
		c, mock := newMockLegacy(t, legacyConfig())
		mock.ExpectQuery(`SELECT "PARTNO" FROM "inventory"."stkbal" WHERE "DELETED" IS NULL AND "WHSE" = $1 ORDER BY "PARTNO" LIMIT $2 OFFSET $3`).
			WithArgs("01", 2, 0).
			WillReturnRows(sqlmock.NewRows([]string{"PARTNO"}))

		records, err := c.Query(ctx, Query{
			Table:   "inventory.stkbal",
			Columns: []string{"PARTNO"},
			Filter:  map[string]any{"WHSE": "01", "DELETED": nil},
			OrderBy: "PARTNO",
			Limit:   2,
		})
		require.NoError(t, err)
		assert.Empty(t, records)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("disallowed table fails before any query", func(t *testing.T) {
		c, mock := newMockLegacy(t, legacyConfig())

		_, err := c.Query(ctx, Query{Table: "SALES.CUSTMAST", Columns: []string{"CUSTNO"}, OrderBy: "CUSTNO", Limit: 2})
		require.Error(t, err)
		assert.True(t, datasync.IsConfigurationError(err))
		assert.False(t, IsRetryable(err))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("injection through identifiers is refused", func(t *testing.T) {
		c, mock := newMockLegacy(t, legacyConfig())

		_, err := c.Query(ctx, Query{Table: "CATALOG.PARTMAST", Columns: []string{"PARTNO; DROP TABLE X"}, OrderBy: "PARTNO", Limit: 2})
		require.Error(t, err)
		assert.True(t, datasync.IsConfigurationError(err))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("query timeout is a retryable TimeoutError", func(t *testing.T) {
		cfg := legacyConfig()
		cfg.QueryTimeout = 20 * time.Millisecond
		c, mock := newMockLegacy(t, cfg)
		mock.ExpectQuery(`SELECT "PARTNO" FROM "CATALOG"."PARTMAST" ORDER BY "PARTNO" LIMIT $1 OFFSET $2`).
			WithArgs(2, 0).
			WillDelayFor(time.Second).
			WillReturnRows(sqlmock.NewRows([]string{"PARTNO"}).AddRow("A100"))

		_, err := c.Query(ctx, Query{Table: "CATALOG.PARTMAST", Columns: []string{"PARTNO"}, OrderBy: "PARTNO", Limit: 2})
		require.Error(t, err)
		assert.True(t, IsTimeout(err))
		assert.True(t, IsRetryable(err))
	})

	t.Run("circuit opens after consecutive failures", func(t *testing.T) {
		c, mock := newMockLegacy(t, legacyConfig())
		reset := &net.OpError{Op: "read", Net: "tcp", Err: syscall.ECONNRESET}
		q := Query{Table: "CATALOG.PARTMAST", Columns: []string{"PARTNO"}, OrderBy: "PARTNO", Limit: 2}

		for i := 0; i < 2; i++ {
			mock.ExpectQuery(`SELECT "PARTNO" FROM "CATALOG"."PARTMAST" ORDER BY "PARTNO" LIMIT $1 OFFSET $2`).
				WithArgs(2, 0).
				WillReturnError(reset)
			_, err := c.Query(ctx, q)
			require.Error(t, err)
			assert.True(t, IsRetryable(err))
		}

		_, err := c.Query(ctx, q)
		require.Error(t, err)
		assert.ErrorIs(t, err, gobreaker.ErrOpenState)
		assert.True(t, IsRetryable(err))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("closed connector reports configuration error", func(t *testing.T) {
		c, _ := newMockLegacy(t, legacyConfig())
		require.NoError(t, c.Close())

		_, err := c.Query(ctx, Query{Table: "CATALOG.PARTMAST", Columns: []string{"PARTNO"}, OrderBy: "PARTNO", Limit: 2})
		require.Error(t, err)
		assert.True(t, datasync.IsConfigurationError(err))
	})
}
