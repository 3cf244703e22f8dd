// Package mapping declares how source columns map onto catalog fields and
// coerces raw rows into validated records.
package mapping

// FieldType represents the expected type of a mapped field
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeInt     FieldType = "int"
	TypeDecimal FieldType = "decimal"
	TypeDate    FieldType = "date"
	TypeBool    FieldType = "bool"
)

// DefaultDateFormat is used when a date field declares no format
const DefaultDateFormat = "2006-01-02"

// FieldMapping maps one source column onto one catalog field
type FieldMapping struct {
	Source        string    `mapstructure:"source" validate:"required"`
	Target        string    `mapstructure:"target" validate:"required,fieldname"`
	Type          FieldType `mapstructure:"type" validate:"required,oneof=string int decimal date bool"`
	Required      bool      `mapstructure:"required"`
	MinLength     int       `mapstructure:"min_length" validate:"gte=0"`
	MaxLength     int       `mapstructure:"max_length" validate:"gte=0"`
	AllowedValues []string  `mapstructure:"allowed_values" validate:"dive,required"`
	DateFormat    string    `mapstructure:"date_format"`
	Unique        bool      `mapstructure:"unique"`
}

// FieldMappingBuilder helps build field mappings fluently
type FieldMappingBuilder struct {
	m FieldMapping
}

// Field starts a mapping for a source column. The target defaults to the
// source name and the type to string.
func Field(source string) *FieldMappingBuilder {
	return &FieldMappingBuilder{
		m: FieldMapping{
			Source: source,
			Target: source,
			Type:   TypeString,
		},
	}
}

// To sets the catalog field name
func (b *FieldMappingBuilder) To(target string) *FieldMappingBuilder {
	b.m.Target = target
	return b
}

// Required marks the field as required
func (b *FieldMappingBuilder) Required() *FieldMappingBuilder {
	b.m.Required = true
	return b
}

// Int sets the field type to integer
func (b *FieldMappingBuilder) Int() *FieldMappingBuilder {
	b.m.Type = TypeInt
	return b
}

// Decimal sets the field type to decimal
func (b *FieldMappingBuilder) Decimal() *FieldMappingBuilder {
	b.m.Type = TypeDecimal
	return b
}

// Date sets the field type to date with the given layout
func (b *FieldMappingBuilder) Date(layout string) *FieldMappingBuilder {
	b.m.Type = TypeDate
	b.m.DateFormat = layout
	return b
}

// Bool sets the field type to boolean
func (b *FieldMappingBuilder) Bool() *FieldMappingBuilder {
	b.m.Type = TypeBool
	return b
}

// MaxLength sets the maximum length
func (b *FieldMappingBuilder) MaxLength(n int) *FieldMappingBuilder {
	b.m.MaxLength = n
	return b
}

// Length sets both min and max length
func (b *FieldMappingBuilder) Length(min, max int) *FieldMappingBuilder {
	b.m.MinLength = min
	b.m.MaxLength = max
	return b
}

// OneOf restricts the field to a closed set of values
func (b *FieldMappingBuilder) OneOf(values ...string) *FieldMappingBuilder {
	b.m.AllowedValues = values
	return b
}

// Unique marks the catalog field as uniquely constrained
func (b *FieldMappingBuilder) Unique() *FieldMappingBuilder {
	b.m.Unique = true
	return b
}

// Build returns the built field mapping
func (b *FieldMappingBuilder) Build() FieldMapping {
	return b.m
}

func (f FieldMapping) dateLayout() string {
	if f.DateFormat == "" {
		return DefaultDateFormat
	}
	return f.DateFormat
}
