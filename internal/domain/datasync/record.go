package datasync

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the canonical rendering of date fields
const DateLayout = "2006-01-02"

// RawRecord is one source row as read by a connector. Columns keeps the
// source column order.
type RawRecord struct {
	RowID   string
	Columns []string
	Values  map[string]any
}

// NewRawRecord builds a raw record from parallel column and value slices
func NewRawRecord(rowID string, columns []string, values []any) RawRecord {
	r := RawRecord{
		RowID:   rowID,
		Columns: make([]string, 0, len(columns)),
		Values:  make(map[string]any, len(columns)),
	}
	for i, col := range columns {
		r.Columns = append(r.Columns, col)
		if i < len(values) {
			r.Values[col] = values[i]
		} else {
			r.Values[col] = nil
		}
	}
	return r
}

// Get returns the value of a column and whether it was present
func (r RawRecord) Get(column string) (any, bool) {
	v, ok := r.Values[column]
	return v, ok
}

// GetString returns the column rendered as a string
func (r RawRecord) GetString(column string) string {
	v, ok := r.Values[column]
	if !ok || v == nil {
		return ""
	}
	return FormatValue(v)
}

// ValidatedRecord is a raw record after mapping and business rules, expressed
// in catalog field names.
type ValidatedRecord struct {
	EntityType EntityType
	RowID      string
	NaturalKey string
	Fields     map[string]any
}

// Get returns a field value
func (v *ValidatedRecord) Get(field string) (any, bool) {
	val, ok := v.Fields[field]
	return val, ok
}

// GetString returns a field rendered in canonical form
func (v *ValidatedRecord) GetString(field string) string {
	val, ok := v.Fields[field]
	if !ok || val == nil {
		return ""
	}
	return FormatValue(val)
}

// Set assigns a field value
func (v *ValidatedRecord) Set(field string, value any) {
	if v.Fields == nil {
		v.Fields = make(map[string]any)
	}
	v.Fields[field] = value
}

// Delete removes a field
func (v *ValidatedRecord) Delete(field string) {
	delete(v.Fields, field)
}

// Canonical renders all fields as strings, the form stored on catalog
// entities and used for field-by-field comparison.
func (v *ValidatedRecord) Canonical() map[string]string {
	out := make(map[string]string, len(v.Fields))
	for k, val := range v.Fields {
		if val == nil {
			continue
		}
		out[k] = FormatValue(val)
	}
	return out
}

// FormatValue renders a coerced value in canonical string form
func FormatValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	case int:
		return strconv.Itoa(t)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return decimal.NewFromFloat(t).String()
	case float32:
		return decimal.NewFromFloat32(t).String()
	case decimal.Decimal:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case time.Time:
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
			return t.Format(DateLayout)
		}
		return t.UTC().Format(time.RFC3339)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
