package mapping

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/partsync/backend/internal/domain/datasync"
)

// Mapper turns raw source rows into validated records for one entity type.
// It holds no mutable state and is safe for concurrent use.
type Mapper struct {
	schema Schema
}

// NewMapper validates the schema and creates a mapper
func NewMapper(schema Schema) (*Mapper, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	return &Mapper{schema: schema}, nil
}

// Schema returns the mapper's schema
func (m *Mapper) Schema() *Schema {
	return &m.schema
}

// EntityType returns the entity type the mapper produces
func (m *Mapper) EntityType() datasync.EntityType {
	return m.schema.EntityType
}

// Map applies every field mapping to the raw record. A failure on a required
// or key field rejects the whole record and the returned record is nil. A
// failure on an optional field drops only that field. Unmapped source
// columns are ignored.
func (m *Mapper) Map(raw datasync.RawRecord) (*datasync.ValidatedRecord, []datasync.Rejection) {
	rec := &datasync.ValidatedRecord{
		EntityType: m.schema.EntityType,
		RowID:      raw.RowID,
		Fields:     make(map[string]any, len(m.schema.Fields)),
	}
	var rejections []datasync.Rejection
	recordRejected := false

	for _, f := range m.schema.Fields {
		value, present := raw.Get(f.Source)
		fatal := f.Required || m.schema.IsKeyField(f.Target)

		if !present || isEmpty(value) {
			if f.Required {
				rejections = append(rejections, datasync.NewRejection(raw.RowID, f.Target, datasync.RuleRequired,
					fmt.Sprintf("required field '%s' is missing", f.Source)))
				recordRejected = true
			}
			continue
		}

		coerced, err := coerce(value, f)
		if err != nil {
			rejections = append(rejections, fieldRejection(raw.RowID, f, datasync.RuleType,
				fmt.Sprintf("expected %s: %v", f.Type, err), asString(value), fatal))
			recordRejected = recordRejected || fatal
			continue
		}

		if s, ok := coerced.(string); ok {
			checked, rej := checkString(raw.RowID, f, s, fatal)
			if rej != nil {
				rejections = append(rejections, *rej)
				recordRejected = recordRejected || fatal
				continue
			}
			coerced = checked
		}

		rec.Fields[f.Target] = coerced
	}

	if recordRejected {
		return nil, rejections
	}
	if key, ok := m.schema.NaturalKey(rec); ok {
		rec.NaturalKey = key
	}
	return rec, rejections
}

// checkString enforces length limits and allowed values. Over-long values
// are rejected, never truncated.
func checkString(rowID string, f FieldMapping, s string, fatal bool) (string, *datasync.Rejection) {
	n := utf8.RuneCountInString(s)
	if f.MaxLength > 0 && n > f.MaxLength {
		r := fieldRejection(rowID, f, datasync.RuleLength,
			fmt.Sprintf("length %d exceeds maximum %d", n, f.MaxLength), s, fatal)
		return "", &r
	}
	if f.MinLength > 0 && n < f.MinLength {
		r := fieldRejection(rowID, f, datasync.RuleLength,
			fmt.Sprintf("length %d is below minimum %d", n, f.MinLength), s, fatal)
		return "", &r
	}
	if len(f.AllowedValues) > 0 {
		for _, allowed := range f.AllowedValues {
			if strings.EqualFold(allowed, s) {
				return allowed, nil
			}
		}
		r := fieldRejection(rowID, f, datasync.RuleAllowedValue,
			fmt.Sprintf("value must be one of: %s", strings.Join(f.AllowedValues, ", ")), s, fatal)
		return "", &r
	}
	return s, nil
}

func fieldRejection(rowID string, f FieldMapping, rule, reason, value string, fatal bool) datasync.Rejection {
	return datasync.Rejection{
		RowID:          rowID,
		Field:          f.Target,
		Rule:           rule,
		Reason:         reason,
		Value:          value,
		RecordRejected: fatal,
	}
}
