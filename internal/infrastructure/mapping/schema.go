package mapping

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/partsync/backend/internal/domain/datasync"
)

// KeySeparator joins the parts of a composite natural key
const KeySeparator = "|"

// keyEscaper keeps composite keys unambiguous when a part contains the
// separator or the escape character.
var keyEscaper = strings.NewReplacer(`\`, `\\`, KeySeparator, `\`+KeySeparator)

var fieldNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Schema is the field mapping of one entity type
type Schema struct {
	EntityType datasync.EntityType `mapstructure:"entity_type" validate:"required"`
	Fields     []FieldMapping      `mapstructure:"fields" validate:"required,min=1,dive"`
	// KeyFields are catalog fields whose values form the natural key, in order
	KeyFields []string `mapstructure:"key_fields" validate:"required,min=1,dive,fieldname"`
	// DerivedFields are produced by business rules rather than mapped
	// from a source column. They may appear in KeyFields.
	DerivedFields []string `mapstructure:"derived_fields" validate:"dive,fieldname"`
}

func newSchemaValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("fieldname", func(fl validator.FieldLevel) bool {
		return fieldNamePattern.MatchString(fl.Field().String())
	})
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		f := sl.Current().Interface().(FieldMapping)
		if f.MaxLength > 0 && f.MaxLength < f.MinLength {
			sl.ReportError(f.MaxLength, "MaxLength", "max_length", "gtefield", "MinLength")
		}
		if f.Type != TypeString && (f.MinLength > 0 || f.MaxLength > 0) {
			sl.ReportError(f.Type, "Type", "type", "string_for_length", "")
		}
	}, FieldMapping{})
	return v
}

var schemaValidator = newSchemaValidator()

// Validate checks the schema for structural problems. Any problem is
// returned as a *datasync.ConfigurationError.
func (s *Schema) Validate() error {
	component := fmt.Sprintf("mapping[%s]", s.EntityType)

	if err := schemaValidator.Struct(s); err != nil {
		return datasync.NewConfigurationError(component, "malformed field mapping", err)
	}
	if !s.EntityType.IsValid() {
		return datasync.NewConfigurationError(component, fmt.Sprintf("unknown entity type %q", s.EntityType), nil)
	}

	targets := make(map[string]struct{}, len(s.Fields)+len(s.DerivedFields))
	sources := make(map[string]struct{}, len(s.Fields))
	for _, f := range s.Fields {
		if _, dup := targets[f.Target]; dup {
			return datasync.NewConfigurationError(component, fmt.Sprintf("field %q is mapped more than once", f.Target), nil)
		}
		if _, dup := sources[f.Source]; dup {
			return datasync.NewConfigurationError(component, fmt.Sprintf("source column %q is mapped more than once", f.Source), nil)
		}
		targets[f.Target] = struct{}{}
		sources[f.Source] = struct{}{}
	}
	for _, d := range s.DerivedFields {
		if _, dup := targets[d]; dup {
			return datasync.NewConfigurationError(component, fmt.Sprintf("derived field %q collides with a mapped field", d), nil)
		}
		targets[d] = struct{}{}
	}
	for _, k := range s.KeyFields {
		if _, ok := targets[k]; !ok {
			return datasync.NewConfigurationError(component, fmt.Sprintf("key field %q is neither mapped nor derived", k), nil)
		}
	}
	return nil
}

// SourceColumns returns the mapped source columns in declaration order
func (s *Schema) SourceColumns() []string {
	cols := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		cols = append(cols, f.Source)
	}
	return cols
}

// UniqueFields returns the catalog fields declared unique
func (s *Schema) UniqueFields() []string {
	var out []string
	for _, f := range s.Fields {
		if f.Unique {
			out = append(out, f.Target)
		}
	}
	return out
}

// IsKeyField reports whether a catalog field is part of the natural key
func (s *Schema) IsKeyField(target string) bool {
	for _, k := range s.KeyFields {
		if k == target {
			return true
		}
	}
	return false
}

// NaturalKey joins the canonical key field values. It reports false when any
// key field is missing or empty. Parts of a composite key are escaped so
// distinct values never join to the same key; a single-field key is the
// value itself, which keeps it comparable with superseded_by references.
func (s *Schema) NaturalKey(rec *datasync.ValidatedRecord) (string, bool) {
	parts := make([]string, 0, len(s.KeyFields))
	for _, k := range s.KeyFields {
		v := strings.TrimSpace(rec.GetString(k))
		if v == "" {
			return "", false
		}
		parts = append(parts, v)
	}
	if len(parts) == 1 {
		return parts[0], true
	}
	for i, p := range parts {
		parts[i] = keyEscaper.Replace(p)
	}
	return strings.Join(parts, KeySeparator), true
}
