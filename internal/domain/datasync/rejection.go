package datasync

import "fmt"

// Rejection rule names produced by the field mapper. Business rules and the
// importer add their own rule names.
const (
	RuleRequired     = "required"
	RuleType         = "type"
	RuleLength       = "length"
	RuleAllowedValue = "allowed_value"
	RuleNaturalKey   = "natural_key"
	RuleDuplicateKey = "duplicate_key"
	RuleSupersession = "supersession"
)

// Rejection explains why a source row, or one of its fields, was refused
type Rejection struct {
	RowID  string `json:"row_id"`
	Field  string `json:"field,omitempty"`
	Rule   string `json:"rule"`
	Reason string `json:"reason"`
	Value  string `json:"value,omitempty"`
	// RecordRejected is false when only the field was dropped and the rest
	// of the record still imports.
	RecordRejected bool `json:"record_rejected"`
}

// Error implements the error interface
func (r Rejection) Error() string {
	if r.Field != "" {
		return fmt.Sprintf("row %s, field %q: %s", r.RowID, r.Field, r.Reason)
	}
	return fmt.Sprintf("row %s: %s", r.RowID, r.Reason)
}

// NewRejection creates a record-level rejection
func NewRejection(rowID, field, rule, reason string) Rejection {
	return Rejection{
		RowID:          rowID,
		Field:          field,
		Rule:           rule,
		Reason:         reason,
		RecordRejected: true,
	}
}

// WithValue returns a copy of the rejection carrying the offending raw value
func (r Rejection) WithValue(value string) Rejection {
	r.Value = value
	return r
}

// NewDuplicateKeyRejection reports a uniquely-constrained value already owned
// by another catalog entity.
func NewDuplicateKeyRejection(rowID, field, value, ownerKey string) Rejection {
	return Rejection{
		RowID:          rowID,
		Field:          field,
		Rule:           RuleDuplicateKey,
		Reason:         fmt.Sprintf("value already used by %s", ownerKey),
		Value:          value,
		RecordRejected: true,
	}
}

// CountRejectedRows returns the number of distinct rows with a record-level rejection
func CountRejectedRows(rejections []Rejection) int {
	seen := make(map[string]struct{})
	for _, r := range rejections {
		if r.RecordRejected {
			seen[r.RowID] = struct{}{}
		}
	}
	return len(seen)
}
