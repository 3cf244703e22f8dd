// Package connector reads raw rows from the legacy system of record and from
// industry reference exports. Every connector is read-only and only touches
// allowlisted tables.
package connector

import (
	"context"
	"io"

	"github.com/partsync/backend/internal/domain/datasync"
)

// SourceFormat selects the connector implementation for a source.
type SourceFormat string

const (
	FormatLegacySQL   SourceFormat = "legacy_sql"
	FormatTabularCSV  SourceFormat = "tabular_csv"
	FormatTabularXLSX SourceFormat = "tabular_xlsx"
	FormatExchangeXML SourceFormat = "exchange_xml"
)

// ParseSourceFormat resolves a configured format name.
func ParseSourceFormat(s string) (SourceFormat, error) {
	switch f := SourceFormat(s); f {
	case FormatLegacySQL, FormatTabularCSV, FormatTabularXLSX, FormatExchangeXML:
		return f, nil
	default:
		return "", datasync.NewConfigurationError("connector", "unknown source format "+s, nil)
	}
}

// Query selects one page of rows from an allowlisted table. Rows come back
// ordered by OrderBy so Offset paging is stable.
type Query struct {
	Table   string
	Columns []string
	Filter  map[string]any
	OrderBy string
	Limit   int
	Offset  int
}

// Connector is a read-only source of raw rows.
//
// Open and Close are counted because one connector serves every entity type
// routed to it: each Open must be paired with a Close, and the pool or the
// export stream is released by the last Close.
type Connector interface {
	Name() string
	Format() SourceFormat
	PageSize() int
	Open(ctx context.Context) error
	Query(ctx context.Context, q Query) ([]datasync.RawRecord, error)
	Close() error
}

// Opener opens a reference export location (local path or object storage).
type Opener interface {
	Open(ctx context.Context, location string) (io.ReadCloser, error)
}
