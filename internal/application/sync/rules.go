package syncapp

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/partsync/backend/internal/domain/datasync"
	"github.com/partsync/backend/internal/infrastructure/mapping"
	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// Business rule names, reported as the Rule of their rejections
const (
	RuleNormalizePartNumber = "normalize_part_number"
	RuleConvertUnits        = "convert_units"
	RuleResolveManufacturer = "resolve_manufacturer"
	RuleResolveCategory     = "resolve_category"
	RuleNonNegative         = "non_negative"
)

// Canonical units after conversion
const (
	UnitMillimetre = "MM"
	UnitKilogram   = "KG"
)

// RuleError is a business rule failure on one field. Fatal failures reject
// the record; the rest drop the field and keep the record.
type RuleError struct {
	Field  string
	Reason string
	Value  string
	Fatal  bool
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Rule is an entity-specific check or transformation applied after mapping
type Rule struct {
	Name  string
	Apply func(rec *datasync.ValidatedRecord) error
}

// RuleConfig holds the static lookup tables used by resolver rules. Keys are
// matched case-insensitively.
type RuleConfig struct {
	ManufacturerCodes map[string]string
	CategoryCodes     map[string]string
}

// RulesFor returns the rule chain of an entity type, in application order
func RulesFor(entityType datasync.EntityType, cfg RuleConfig) []Rule {
	var rules []Rule
	switch entityType {
	case datasync.EntityPart:
		rules = append(rules, NormalizePartNumber())
		if len(cfg.ManufacturerCodes) > 0 {
			rules = append(rules, ResolveManufacturer(cfg.ManufacturerCodes))
		}
		if len(cfg.CategoryCodes) > 0 {
			rules = append(rules, ResolveCategory(cfg.CategoryCodes))
		}
	case datasync.EntityMeasurement:
		rules = append(rules, NormalizePartNumber(), ConvertUnits())
	case datasync.EntityStock:
		rules = append(rules, NormalizePartNumber(),
			NonNegative(mapping.FieldQuantityOnHand, mapping.FieldQuantityAllocated))
	case datasync.EntityPricing:
		rules = append(rules, NormalizePartNumber(), NonNegative(mapping.FieldPrice))
	case datasync.EntityCustomer:
		rules = append(rules, NonNegative("credit_limit"))
	case datasync.EntityOrder:
		rules = append(rules, NonNegative(mapping.FieldTotalAmount))
	case datasync.EntityPartReference:
		if len(cfg.CategoryCodes) > 0 {
			rules = append(rules, ResolveCategory(cfg.CategoryCodes))
		}
	case datasync.EntityAttributeReference:
		rules = append(rules, NormalizePartNumber(), NonNegative(mapping.FieldQuantity))
	}
	return rules
}

// NormalizePartNumber folds full-width and compatibility characters, upper
// cases, and strips everything but letters and digits into
// normalized_part_number.
func NormalizePartNumber() Rule {
	return Rule{
		Name: RuleNormalizePartNumber,
		Apply: func(rec *datasync.ValidatedRecord) error {
			raw := rec.GetString(mapping.FieldPartNumber)
			if raw == "" {
				return nil
			}
			normalized := NormalizePartNumberString(raw)
			if normalized == "" {
				return &RuleError{
					Field:  mapping.FieldPartNumber,
					Reason: "part number has no letters or digits",
					Value:  raw,
					Fatal:  true,
				}
			}
			rec.Set(mapping.FieldNormalizedPartNumber, normalized)
			return nil
		},
	}
}

// NormalizePartNumberString is the normalization applied by NormalizePartNumber
func NormalizePartNumberString(s string) string {
	s = width.Fold.String(norm.NFKC.String(s))
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

var (
	lengthToMillimetres = map[string]decimal.Decimal{
		"MM": decimal.NewFromInt(1),
		"CM": decimal.NewFromInt(10),
		"M":  decimal.NewFromInt(1000),
		"IN": decimal.RequireFromString("25.4"),
	}
	weightToKilograms = map[string]decimal.Decimal{
		"KG": decimal.NewFromInt(1),
		"G":  decimal.RequireFromString("0.001"),
		"LB": decimal.RequireFromString("0.45359237"),
		"OZ": decimal.RequireFromString("0.028349523125"),
	}
)

// ConvertUnits converts dimensions to millimetres and weight to kilograms.
// A measurement present without a known unit rejects the record.
func ConvertUnits() Rule {
	return Rule{
		Name: RuleConvertUnits,
		Apply: func(rec *datasync.ValidatedRecord) error {
			dims := []string{mapping.FieldLength, mapping.FieldWidth, mapping.FieldHeight}
			if err := convertGroup(rec, dims, mapping.FieldDimensionUnit, lengthToMillimetres, UnitMillimetre, 2); err != nil {
				return err
			}
			return convertGroup(rec, []string{mapping.FieldWeight}, mapping.FieldWeightUnit, weightToKilograms, UnitKilogram, 3)
		},
	}
}

func convertGroup(rec *datasync.ValidatedRecord, fields []string, unitField string, factors map[string]decimal.Decimal, canonical string, places int32) error {
	present := false
	for _, f := range fields {
		if _, ok := rec.Get(f); ok {
			present = true
			break
		}
	}
	if !present {
		return nil
	}

	unit := strings.ToUpper(strings.TrimSpace(rec.GetString(unitField)))
	factor, ok := factors[unit]
	if !ok {
		reason := fmt.Sprintf("unknown unit %q", unit)
		if unit == "" {
			reason = "unit is missing"
		}
		return &RuleError{Field: unitField, Reason: reason, Value: unit, Fatal: true}
	}

	for _, f := range fields {
		v, ok := rec.Get(f)
		if !ok {
			continue
		}
		d, ok := v.(decimal.Decimal)
		if !ok {
			return &RuleError{Field: f, Reason: "not a decimal value", Value: rec.GetString(f), Fatal: true}
		}
		rec.Set(f, d.Mul(factor).Round(places))
	}
	rec.Set(unitField, canonical)
	return nil
}

// ResolveManufacturer maps the source manufacturer code to its catalog
// reference. An unknown code rejects the record.
func ResolveManufacturer(table map[string]string) Rule {
	lookup := lowerKeys(table)
	return Rule{
		Name: RuleResolveManufacturer,
		Apply: func(rec *datasync.ValidatedRecord) error {
			code := rec.GetString(mapping.FieldManufacturerCode)
			if code == "" {
				return nil
			}
			ref, ok := lookup[strings.ToLower(strings.TrimSpace(code))]
			if !ok {
				return &RuleError{
					Field:  mapping.FieldManufacturerCode,
					Reason: "unknown manufacturer code",
					Value:  code,
					Fatal:  true,
				}
			}
			rec.Set(mapping.FieldManufacturerRef, ref)
			return nil
		},
	}
}

// ResolveCategory maps the source category code to its catalog reference.
// Category is optional, so an unknown code drops the field only.
func ResolveCategory(table map[string]string) Rule {
	lookup := lowerKeys(table)
	return Rule{
		Name: RuleResolveCategory,
		Apply: func(rec *datasync.ValidatedRecord) error {
			code := rec.GetString(mapping.FieldCategoryCode)
			if code == "" {
				return nil
			}
			ref, ok := lookup[strings.ToLower(strings.TrimSpace(code))]
			if !ok {
				rec.Delete(mapping.FieldCategoryCode)
				return &RuleError{
					Field:  mapping.FieldCategoryCode,
					Reason: "unknown category code",
					Value:  code,
				}
			}
			rec.Set(mapping.FieldCategoryRef, ref)
			return nil
		},
	}
}

// NonNegative rejects records where any of the numeric fields is below zero
func NonNegative(fields ...string) Rule {
	return Rule{
		Name: RuleNonNegative,
		Apply: func(rec *datasync.ValidatedRecord) error {
			for _, f := range fields {
				v, ok := rec.Get(f)
				if !ok {
					continue
				}
				if isNegative(v) {
					return &RuleError{Field: f, Reason: "must not be negative", Value: rec.GetString(f), Fatal: true}
				}
			}
			return nil
		},
	}
}

func isNegative(v any) bool {
	switch n := v.(type) {
	case decimal.Decimal:
		return n.IsNegative()
	case int:
		return n < 0
	case int64:
		return n < 0
	case int32:
		return n < 0
	case float64:
		return n < 0
	}
	return false
}

func lowerKeys(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return out
}
