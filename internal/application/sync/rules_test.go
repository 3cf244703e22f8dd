package syncapp

import (
	"testing"

	"github.com/partsync/backend/internal/domain/datasync"
	"github.com/partsync/backend/internal/infrastructure/mapping"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(fields map[string]any) *datasync.ValidatedRecord {
	return &datasync.ValidatedRecord{RowID: "1", Fields: fields}
}

func TestNormalizePartNumberString(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"bp-1234", "BP1234"},
		{" BP 1234 / a ", "BP1234A"},
		{"ＢＰ－１２３４", "BP1234"},
		{"---", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizePartNumberString(tt.in))
		})
	}
}

func TestNormalizePartNumber(t *testing.T) {
	rule := NormalizePartNumber()

	rec := record(map[string]any{mapping.FieldPartNumber: "bp-1234"})
	require.NoError(t, rule.Apply(rec))
	assert.Equal(t, "BP1234", rec.GetString(mapping.FieldNormalizedPartNumber))

	rec = record(map[string]any{mapping.FieldPartNumber: "--"})
	err := rule.Apply(rec)
	var re *RuleError
	require.ErrorAs(t, err, &re)
	assert.True(t, re.Fatal)
	assert.Equal(t, mapping.FieldPartNumber, re.Field)
}

func TestConvertUnits(t *testing.T) {
	rule := ConvertUnits()

	rec := record(map[string]any{
		mapping.FieldLength:        decimal.NewFromInt(10),
		mapping.FieldWidth:         decimal.RequireFromString("2.5"),
		mapping.FieldDimensionUnit: "IN",
		mapping.FieldWeight:        decimal.NewFromInt(2),
		mapping.FieldWeightUnit:    "LB",
	})
	require.NoError(t, rule.Apply(rec))

	length, _ := rec.Get(mapping.FieldLength)
	width, _ := rec.Get(mapping.FieldWidth)
	weight, _ := rec.Get(mapping.FieldWeight)
	assert.True(t, decimal.NewFromInt(254).Equal(length.(decimal.Decimal)))
	assert.True(t, decimal.RequireFromString("63.5").Equal(width.(decimal.Decimal)))
	assert.True(t, decimal.RequireFromString("0.907").Equal(weight.(decimal.Decimal)))
	assert.Equal(t, UnitMillimetre, rec.GetString(mapping.FieldDimensionUnit))
	assert.Equal(t, UnitKilogram, rec.GetString(mapping.FieldWeightUnit))
}

func TestConvertUnits_MissingOrUnknownUnit(t *testing.T) {
	rule := ConvertUnits()

	missing := record(map[string]any{mapping.FieldLength: decimal.NewFromInt(1)})
	var re *RuleError
	require.ErrorAs(t, rule.Apply(missing), &re)
	assert.Equal(t, mapping.FieldDimensionUnit, re.Field)
	assert.True(t, re.Fatal)

	unknown := record(map[string]any{mapping.FieldWeight: decimal.NewFromInt(1), mapping.FieldWeightUnit: "STONE"})
	require.ErrorAs(t, rule.Apply(unknown), &re)
	assert.Contains(t, re.Reason, "STONE")

	none := record(map[string]any{mapping.FieldPartNumber: "X"})
	assert.NoError(t, rule.Apply(none))
}

func TestResolveManufacturer(t *testing.T) {
	rule := ResolveManufacturer(map[string]string{"ACME": "mfr-001"})

	rec := record(map[string]any{mapping.FieldManufacturerCode: "acme"})
	require.NoError(t, rule.Apply(rec))
	assert.Equal(t, "mfr-001", rec.GetString(mapping.FieldManufacturerRef))

	rec = record(map[string]any{mapping.FieldManufacturerCode: "ZZZ"})
	var re *RuleError
	require.ErrorAs(t, rule.Apply(rec), &re)
	assert.True(t, re.Fatal)
}

func TestResolveCategory_UnknownDropsField(t *testing.T) {
	rule := ResolveCategory(map[string]string{"BRK": "cat-brakes"})

	rec := record(map[string]any{mapping.FieldCategoryCode: "brk"})
	require.NoError(t, rule.Apply(rec))
	assert.Equal(t, "cat-brakes", rec.GetString(mapping.FieldCategoryRef))

	rec = record(map[string]any{mapping.FieldCategoryCode: "XXX"})
	var re *RuleError
	require.ErrorAs(t, rule.Apply(rec), &re)
	assert.False(t, re.Fatal)
	_, ok := rec.Get(mapping.FieldCategoryCode)
	assert.False(t, ok)
}

func TestNonNegative(t *testing.T) {
	rule := NonNegative(mapping.FieldPrice, mapping.FieldQuantityOnHand)

	assert.NoError(t, rule.Apply(record(map[string]any{mapping.FieldPrice: decimal.Zero, mapping.FieldQuantityOnHand: int64(3)})))

	var re *RuleError
	require.ErrorAs(t, rule.Apply(record(map[string]any{mapping.FieldQuantityOnHand: int64(-1)})), &re)
	assert.Equal(t, mapping.FieldQuantityOnHand, re.Field)
	require.ErrorAs(t, rule.Apply(record(map[string]any{mapping.FieldPrice: decimal.RequireFromString("-0.01")})), &re)
	assert.Equal(t, mapping.FieldPrice, re.Field)
}

func TestRulesFor(t *testing.T) {
	names := func(rules []Rule) []string {
		out := make([]string, len(rules))
		for i, r := range rules {
			out[i] = r.Name
		}
		return out
	}

	assert.Equal(t, []string{RuleNormalizePartNumber}, names(RulesFor(datasync.EntityPart, RuleConfig{})))
	assert.Equal(t,
		[]string{RuleNormalizePartNumber, RuleResolveManufacturer, RuleResolveCategory},
		names(RulesFor(datasync.EntityPart, RuleConfig{
			ManufacturerCodes: map[string]string{"ACME": "m1"},
			CategoryCodes:     map[string]string{"BRK": "c1"},
		})))
	assert.Equal(t, []string{RuleNormalizePartNumber, RuleConvertUnits}, names(RulesFor(datasync.EntityMeasurement, RuleConfig{})))
	assert.Equal(t, []string{RuleNormalizePartNumber, RuleNonNegative}, names(RulesFor(datasync.EntityPricing, RuleConfig{})))
	assert.Empty(t, RulesFor(datasync.EntityVehicleReference, RuleConfig{}))
}
