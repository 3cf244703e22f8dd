package mapping

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var errEmpty = errors.New("empty value")

// isEmpty reports whether a raw value should be treated as absent. Fixed
// width sources pad CHAR columns, so whitespace-only strings are empty.
func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []byte:
		return strings.TrimSpace(string(t)) == ""
	}
	return false
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case []byte:
		return strings.TrimSpace(string(t))
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case time.Time:
		return t.Format(time.RFC3339)
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", t))
	}
}

// coerce converts a raw source value to the Go type of the field
func coerce(v any, f FieldMapping) (any, error) {
	if isEmpty(v) {
		return nil, errEmpty
	}
	switch f.Type {
	case TypeString:
		return asString(v), nil
	case TypeInt:
		return coerceInt(v)
	case TypeDecimal:
		return coerceDecimal(v)
	case TypeDate:
		return coerceDate(v, f.dateLayout())
	case TypeBool:
		return coerceBool(v)
	}
	return nil, fmt.Errorf("unsupported field type %q", f.Type)
}

func coerceInt(v any) (int64, error) {
	switch t := v.(type) {
	case int:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case int64:
		return t, nil
	case float64:
		if t != math.Trunc(t) {
			return 0, fmt.Errorf("%v is not a whole number", t)
		}
		return int64(t), nil
	case decimal.Decimal:
		if !t.IsInteger() {
			return 0, fmt.Errorf("%s is not a whole number", t)
		}
		return t.IntPart(), nil
	}
	s := asString(v)
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not an integer", s)
	}
	return n, nil
}

func coerceDecimal(v any) (decimal.Decimal, error) {
	switch t := v.(type) {
	case int:
		return decimal.NewFromInt(int64(t)), nil
	case int64:
		return decimal.NewFromInt(t), nil
	case float64:
		return decimal.NewFromFloat(t), nil
	case decimal.Decimal:
		return t, nil
	}
	s := asString(v)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%q is not a decimal number", s)
	}
	return d, nil
}

func coerceDate(v any, layout string) (time.Time, error) {
	if t, ok := v.(time.Time); ok {
		y, m, d := t.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
	}
	s := asString(v)
	t, err := time.Parse(layout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q does not match date format %s", s, layout)
	}
	return t, nil
}

func coerceBool(v any) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case int64:
		if t == 0 || t == 1 {
			return t == 1, nil
		}
	}
	s := strings.ToLower(asString(v))
	switch s {
	case "true", "1", "yes", "y", "t":
		return true, nil
	case "false", "0", "no", "n", "f":
		return false, nil
	}
	return false, fmt.Errorf("%q is not a boolean", s)
}
