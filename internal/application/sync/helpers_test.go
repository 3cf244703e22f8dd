package syncapp

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/partsync/backend/internal/domain/datasync"
	"github.com/partsync/backend/internal/infrastructure/connector"
	"github.com/partsync/backend/internal/infrastructure/mapping"
	"github.com/partsync/backend/tests/testutil"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var partColumns = []string{"PARTNO", "MFRCD", "DESC", "CATCD", "UPC", "UOM", "STATUS"}

func partRow(rowID, partNo, mfr, desc, upc string) datasync.RawRecord {
	return datasync.NewRawRecord(rowID, partColumns, []any{partNo, mfr, desc, "BRK", upc, "EA", "A"})
}

func newTestDB(t *testing.T) *gorm.DB {
	return testutil.NewSQLiteDB(t)
}

func testRegistry(t *testing.T) *mapping.Registry {
	t.Helper()
	reg, err := mapping.NewRegistry(mapping.DefaultSchemas()...)
	require.NoError(t, err)
	return reg
}

func testMapper(t *testing.T, et datasync.EntityType) *mapping.Mapper {
	t.Helper()
	m, err := testRegistry(t).Mapper(et)
	require.NoError(t, err)
	return m
}

// process maps rows with the entity's default rule chain and fails the test
// on any record-level rejection
func process(t *testing.T, et datasync.EntityType, rows ...datasync.RawRecord) []*datasync.ValidatedRecord {
	t.Helper()
	p := NewProcessor(testMapper(t, et), RulesFor(et, RuleConfig{}))
	res, err := p.Process(context.Background(), rows)
	require.NoError(t, err)
	require.Zero(t, res.FailedRows, "unexpected rejections: %v", res.Rejections)
	return res.Records
}

// fakeConnector serves rows from memory and can inject query errors
type fakeConnector struct {
	name     string
	pageSize int
	rows     []datasync.RawRecord

	mu      sync.Mutex
	errs    []error
	queries []connector.Query
	opened  int
	closed  int
	// beforeQuery runs before each query, outside the lock
	beforeQuery func(ctx context.Context, q connector.Query)
}

func newFakeConnector(pageSize int, rows ...datasync.RawRecord) *fakeConnector {
	return &fakeConnector{name: "legacy", pageSize: pageSize, rows: rows}
}

func (c *fakeConnector) Name() string                   { return c.name }
func (c *fakeConnector) Format() connector.SourceFormat { return connector.FormatLegacySQL }
func (c *fakeConnector) PageSize() int                  { return c.pageSize }

func (c *fakeConnector) Open(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opened++
	return nil
}

func (c *fakeConnector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

func (c *fakeConnector) Query(ctx context.Context, q connector.Query) ([]datasync.RawRecord, error) {
	if c.beforeQuery != nil {
		c.beforeQuery(ctx, q)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queries = append(c.queries, q)
	if len(c.errs) > 0 {
		err := c.errs[0]
		c.errs = c.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if q.Offset >= len(c.rows) {
		return nil, nil
	}
	end := min(q.Offset+q.Limit, len(c.rows))
	return append([]datasync.RawRecord(nil), c.rows[q.Offset:end]...), nil
}

func (c *fakeConnector) queryOffsets() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int, len(c.queries))
	for i, q := range c.queries {
		out[i] = q.Offset
	}
	return out
}

func partRows(n int) []datasync.RawRecord {
	rows := make([]datasync.RawRecord, n)
	for i := range rows {
		rows[i] = partRow(fmt.Sprintf("%d", i+1), fmt.Sprintf("BP-%04d", i+1), "ACME", "Brake pad", "")
	}
	return rows
}
