package mapping

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/partsync/backend/internal/domain/datasync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchema_Validate(t *testing.T) {
	base := func() Schema {
		return Schema{
			EntityType: datasync.EntityManufacturer,
			Fields: []FieldMapping{
				Field("MFRCD").To("manufacturer_code").Required().MaxLength(10).Build(),
				Field("MFRNAME").To("name").Build(),
			},
			KeyFields: []string{"manufacturer_code"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(s *Schema)
		wantErr bool
	}{
		{"valid", func(s *Schema) {}, false},
		{"unknown entity type", func(s *Schema) { s.EntityType = "widget" }, true},
		{"no fields", func(s *Schema) { s.Fields = nil }, true},
		{"no key", func(s *Schema) { s.KeyFields = nil }, true},
		{"key not mapped", func(s *Schema) { s.KeyFields = []string{"code"} }, true},
		{"derived key", func(s *Schema) {
			s.DerivedFields = []string{"code"}
			s.KeyFields = []string{"code"}
		}, false},
		{"bad type", func(s *Schema) { s.Fields[1].Type = "money" }, true},
		{"bad target name", func(s *Schema) { s.Fields[1].Target = "Name With Spaces" }, true},
		{"max below min", func(s *Schema) { s.Fields[1].MinLength = 5; s.Fields[1].MaxLength = 2 }, true},
		{"length on decimal", func(s *Schema) { s.Fields[1] = Field("X").To("x").Decimal().MaxLength(3).Build() }, true},
		{"duplicate target", func(s *Schema) { s.Fields[1].Target = "manufacturer_code" }, true},
		{"duplicate source", func(s *Schema) { s.Fields[1].Source = "MFRCD" }, true},
		{"derived collides", func(s *Schema) { s.DerivedFields = []string{"name"} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := base()
			tt.mutate(&s)
			err := s.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, datasync.IsConfigurationError(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSchema_Helpers(t *testing.T) {
	s := Schema{
		EntityType: datasync.EntityCustomer,
		Fields: []FieldMapping{
			Field("CUSTNO").To("customer_number").Required().Build(),
			Field("TAXID").To("tax_id").Unique().Build(),
		},
		KeyFields: []string{"customer_number"},
	}
	assert.Equal(t, []string{"CUSTNO", "TAXID"}, s.SourceColumns())
	assert.Equal(t, []string{"tax_id"}, s.UniqueFields())
	assert.True(t, s.IsKeyField("customer_number"))
	assert.False(t, s.IsKeyField("tax_id"))

	rec := &datasync.ValidatedRecord{}
	_, ok := s.NaturalKey(rec)
	assert.False(t, ok)
	rec.Set("customer_number", "C001")
	key, ok := s.NaturalKey(rec)
	assert.True(t, ok)
	assert.Equal(t, "C001", key)
}

func TestSchema_CompositeKeysDoNotCollide(t *testing.T) {
	s := Schema{
		EntityType: datasync.EntityStock,
		Fields: []FieldMapping{
			Field("MFRCD").To("manufacturer_code").Required().Build(),
			Field("PARTNO").To("part_number").Required().Build(),
			Field("WHSE").To("warehouse_code").Required().Build(),
		},
		KeyFields: []string{"manufacturer_code", "part_number", "warehouse_code"},
	}
	key := func(mfr, part, whse string) string {
		rec := &datasync.ValidatedRecord{}
		rec.Set("manufacturer_code", mfr)
		rec.Set("part_number", part)
		rec.Set("warehouse_code", whse)
		k, ok := s.NaturalKey(rec)
		require.True(t, ok)
		return k
	}

	assert.Equal(t, "ACME|BP100|W1", key("ACME", "BP100", "W1"))
	assert.NotEqual(t, key("A|B", "C", "D"), key("A", "B", "C|D"))
	assert.Equal(t, `A\|B|C|D`, key("A|B", "C", "D"))
	assert.NotEqual(t, key(`A\`, "B", "C"), key("A", `\B`, "C"))
	assert.NotEqual(t, key(`A\|`, "B", "C"), key("A", "|B", "C"))
}

func TestDefaultSchemas_AreValid(t *testing.T) {
	reg, err := NewRegistry(DefaultSchemas()...)
	require.NoError(t, err)
	assert.Len(t, reg.EntityTypes(), len(datasync.AllEntityTypes()))

	for _, et := range datasync.AllEntityTypes() {
		m, err := reg.Mapper(et)
		require.NoError(t, err, et)
		assert.Equal(t, et, m.EntityType())
	}
}

func TestRegistry_MissingMapping(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)
	_, err = reg.Mapper(datasync.EntityPart)
	require.Error(t, err)
	assert.True(t, datasync.IsConfigurationError(err))
}

func TestLoad_FileOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mappings.toml")
	content := `
[[schemas]]
entity_type = "manufacturer"
key_fields = ["manufacturer_code"]

  [[schemas.fields]]
  source = "MFR_CODE"
  target = "manufacturer_code"
  type = "string"
  required = true
  max_length = 8

  [[schemas.fields]]
  source = "MFR_NAME"
  target = "name"
  type = "string"
  unique = true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	reg, err := Load(path)
	require.NoError(t, err)

	m, err := reg.Mapper(datasync.EntityManufacturer)
	require.NoError(t, err)
	assert.Equal(t, []string{"MFR_CODE", "MFR_NAME"}, m.Schema().SourceColumns())
	assert.Equal(t, []string{"name"}, m.Schema().UniqueFields())

	_, err = reg.Mapper(datasync.EntityPart)
	assert.NoError(t, err, "defaults remain for entity types without overrides")
}

func TestLoad_BadFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
	assert.True(t, datasync.IsConfigurationError(err))

	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[[schemas]]
entity_type = "manufacturer"
key_fields = ["code"]
  [[schemas.fields]]
  source = "A"
  target = "name"
  type = "string"
`), 0o600))
	_, err = Load(path)
	require.Error(t, err)
	assert.True(t, datasync.IsConfigurationError(err))
}
