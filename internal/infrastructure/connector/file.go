package connector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"

	"github.com/partsync/backend/internal/domain/datasync"
	"github.com/partsync/backend/internal/infrastructure/config"
	"github.com/partsync/backend/internal/infrastructure/storage"
	"go.uber.org/zap"
)

// fileRow is one data row of an export, identified by its position.
type fileRow struct {
	id     string
	values []string
}

// rowStream yields the data rows of an export in file order. Next returns
// io.EOF after the last row.
type rowStream interface {
	Header() []string
	Next() (fileRow, error)
	Close() error
}

// streamFunc takes ownership of rc, closing it on error or on Close.
type streamFunc func(rc io.ReadCloser, cfg *config.ReferenceSourceConfig) (rowStream, error)

// cursor is an open stream positioned after the pos-th row matching filter.
type cursor struct {
	stream rowStream
	filter string
	pos    int
	done   bool
}

// FileConnector serves a reference export (tabular or exchange XML) by
// streaming it. Sequential pages resume from a cursor, so a full run reads
// the export once; a page behind the cursor or a different filter reopens
// the export. Rows keep file order.
type FileConnector struct {
	cfg       *config.ReferenceSourceConfig
	format    SourceFormat
	stream    streamFunc
	prescan   bool
	opener    Opener
	allowlist *Allowlist
	logger    *zap.Logger

	mu     sync.Mutex
	refs   int
	header []string
	index  map[string]int
	cur    *cursor
}

// NewFileConnector resolves the format of a reference source once and
// returns a connector for it.
func NewFileConnector(cfg *config.ReferenceSourceConfig, opener Opener, logger *zap.Logger) (*FileConnector, error) {
	if cfg == nil {
		return nil, errors.New("reference source configuration is required")
	}
	if opener == nil {
		return nil, errors.New("opener is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	format, err := ParseSourceFormat(cfg.Format)
	if err != nil {
		return nil, err
	}

	var (
		stream  streamFunc
		prescan bool
	)
	switch format {
	case FormatTabularCSV:
		stream = newCSVStream
	case FormatTabularXLSX:
		stream = newXLSXStream
	case FormatExchangeXML:
		// the footer count is only known at the end of the document
		stream, prescan = newExchangeStream, true
	default:
		return nil, datasync.NewConfigurationError("connector "+cfg.Name, "format "+cfg.Format+" is not a file format", nil)
	}

	allowlist, err := NewAllowlist(cfg.Name, []string{cfg.Table})
	if err != nil {
		return nil, err
	}

	return &FileConnector{
		cfg:       cfg,
		format:    format,
		stream:    stream,
		prescan:   prescan,
		opener:    opener,
		allowlist: allowlist,
		logger:    logger,
	}, nil
}

func (c *FileConnector) Name() string         { return c.cfg.Name }
func (c *FileConnector) Format() SourceFormat { return c.format }
func (c *FileConnector) PageSize() int        { return c.cfg.PageSize }

// Open checks the export header and positions a cursor at the first row.
// Exchange documents are read through once first so a truncated transfer
// fails here rather than halfway through a run. Opens are counted; the
// export is only reread once every Open has been closed.
func (c *FileConnector) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.refs > 0 {
		c.refs++
		return nil
	}

	rows := -1
	if c.prescan {
		n, err := c.verify(ctx)
		if err != nil {
			return err
		}
		rows = n
	}

	stream, err := c.openStream(ctx)
	if err != nil {
		return err
	}
	header := stream.Header()
	if err := checkHeader(c.cfg, header); err != nil {
		_ = stream.Close()
		return err
	}

	c.header = header
	c.index = make(map[string]int, len(header))
	for i, h := range header {
		c.index[h] = i
	}
	c.cur = &cursor{stream: stream}
	c.refs = 1

	fields := []zap.Field{
		zap.String("source", c.cfg.Name),
		zap.String("format", string(c.format)),
		zap.String("location", c.cfg.Location),
	}
	if rows >= 0 {
		fields = append(fields, zap.Int("rows", rows))
	}
	c.logger.Info("Reference export opened", fields...)
	return nil
}

// Query returns the page of rows matching the filter at Offset. Limit zero
// returns every remaining row.
func (c *FileConnector) Query(ctx context.Context, q Query) ([]datasync.RawRecord, error) {
	if err := c.allowlist.Check(q.Table); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.refs == 0 {
		return nil, datasync.NewConfigurationError("connector "+c.cfg.Name, "connector is not open", nil)
	}
	columns, err := c.resolve(q)
	if err != nil {
		return nil, err
	}

	key := filterKey(q.Filter)
	if c.cur == nil || c.cur.filter != key || c.cur.pos > q.Offset {
		if err := c.rewind(ctx, key); err != nil {
			return nil, err
		}
	}

	cur := c.cur
	out := make([]datasync.RawRecord, 0, min(q.Limit, 4096))
	for n := 0; !cur.done && (q.Limit == 0 || len(out) < q.Limit); n++ {
		if n%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		row, err := cur.stream.Next()
		if err == io.EOF {
			cur.done = true
			break
		}
		if err != nil {
			_ = c.dropCursor()
			return nil, classify(c.cfg.Name, "read "+c.cfg.Location, 0, err)
		}
		if !row.matches(c.index, q.Filter) {
			continue
		}
		cur.pos++
		if cur.pos <= q.Offset {
			continue
		}
		values := make([]any, len(columns))
		for i, col := range columns {
			values[i] = row.cell(c.index[col])
		}
		out = append(out, datasync.NewRawRecord(row.id, columns, values))
	}
	return out, nil
}

// Close releases the export once every Open has been matched.
func (c *FileConnector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.refs > 1 {
		c.refs--
		return nil
	}
	c.refs = 0
	return c.dropCursor()
}

func (c *FileConnector) openStream(ctx context.Context) (rowStream, error) {
	rc, err := c.opener.Open(ctx, c.cfg.Location)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, datasync.NewConfigurationError("connector "+c.cfg.Name, "export not found at "+c.cfg.Location, err)
		}
		return nil, classify(c.cfg.Name, "open "+c.cfg.Location, 0, err)
	}
	stream, err := c.stream(rc, c.cfg)
	if err != nil {
		return nil, classify(c.cfg.Name, "parse "+c.cfg.Location, 0, err)
	}
	return stream, nil
}

// verify reads the whole export without keeping rows and returns the count.
func (c *FileConnector) verify(ctx context.Context) (int, error) {
	stream, err := c.openStream(ctx)
	if err != nil {
		return 0, err
	}
	defer stream.Close()

	for n := 0; ; n++ {
		if n%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
		}
		if _, err := stream.Next(); err != nil {
			if err == io.EOF {
				return n, nil
			}
			return 0, classify(c.cfg.Name, "parse "+c.cfg.Location, 0, err)
		}
	}
}

// rewind reopens the export for a new filter or an earlier offset.
func (c *FileConnector) rewind(ctx context.Context, filter string) error {
	_ = c.dropCursor()
	stream, err := c.openStream(ctx)
	if err != nil {
		return err
	}
	if !slices.Equal(stream.Header(), c.header) {
		_ = stream.Close()
		return datasync.NewConfigurationError("connector "+c.cfg.Name, "export header changed while the connector was open", nil)
	}
	c.cur = &cursor{stream: stream, filter: filter}
	c.logger.Debug("Reference export rewound", zap.String("source", c.cfg.Name))
	return nil
}

func (c *FileConnector) dropCursor() error {
	if c.cur == nil {
		return nil
	}
	err := c.cur.stream.Close()
	c.cur = nil
	return err
}

func (c *FileConnector) resolve(q Query) ([]string, error) {
	columns := q.Columns
	if len(columns) == 0 {
		columns = c.header
	}
	for _, col := range columns {
		if _, ok := c.index[col]; !ok {
			return nil, datasync.NewConfigurationError("connector "+c.cfg.Name, "unknown column "+quote(col), nil)
		}
	}
	for col := range q.Filter {
		if _, ok := c.index[col]; !ok {
			return nil, datasync.NewConfigurationError("connector "+c.cfg.Name, "unknown filter column "+quote(col), nil)
		}
	}
	if q.Limit < 0 || q.Offset < 0 {
		return nil, datasync.NewConfigurationError("connector "+c.cfg.Name, "limit and offset cannot be negative", nil)
	}
	return columns, nil
}

// filterKey identifies a filter so a cursor is only resumed for the same one.
func filterKey(filter map[string]any) string {
	if len(filter) == 0 {
		return ""
	}
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		if v := filter[k]; v == nil {
			b.WriteString("\x00")
		} else {
			b.WriteByte('=')
			b.WriteString(strings.TrimSpace(fmt.Sprint(v)))
		}
		b.WriteByte('\x1f')
	}
	return b.String()
}

func (r fileRow) cell(i int) string {
	if i < len(r.values) {
		return r.values[i]
	}
	return ""
}

func (r fileRow) matches(index map[string]int, filter map[string]any) bool {
	for col, want := range filter {
		got := r.cell(index[col])
		if want == nil {
			if got != "" {
				return false
			}
			continue
		}
		if got != strings.TrimSpace(fmt.Sprint(want)) {
			return false
		}
	}
	return true
}

// checkHeader enforces the fixed schema declared for the export.
func checkHeader(cfg *config.ReferenceSourceConfig, header []string) error {
	if len(header) == 0 {
		return datasync.NewConfigurationError("connector "+cfg.Name, "export has no header", nil)
	}
	if len(cfg.Columns) == 0 {
		return nil
	}

	var missing, extra []string
	for _, col := range cfg.Columns {
		if !slices.Contains(header, col) {
			missing = append(missing, col)
		}
	}
	for _, col := range header {
		if !slices.Contains(cfg.Columns, col) {
			extra = append(extra, col)
		}
	}
	if len(missing) == 0 && len(extra) == 0 {
		return nil
	}
	return datasync.NewConfigurationError("connector "+cfg.Name,
		fmt.Sprintf("export header does not match declared columns (missing %v, unexpected %v)", missing, extra), nil)
}
