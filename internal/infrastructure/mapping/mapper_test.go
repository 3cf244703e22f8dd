package mapping

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/partsync/backend/internal/domain/datasync"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pricingTestSchema() Schema {
	return Schema{
		EntityType: datasync.EntityPricing,
		Fields: []FieldMapping{
			Field("part_no").To("part_number").Required().MaxLength(10).Build(),
			Field("price").To("price").Decimal().Required().Build(),
			Field("qty").To("quantity").Int().Build(),
			Field("currency").To("currency").OneOf("USD", "CAD").Build(),
			Field("effective").To("effective_date").Date("20060102").Build(),
			Field("active").To("active").Bool().Build(),
		},
		KeyFields: []string{"part_number"},
	}
}

func raw(rowID string, kv ...any) datasync.RawRecord {
	cols := make([]string, 0, len(kv)/2)
	vals := make([]any, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		cols = append(cols, kv[i].(string))
		vals = append(vals, kv[i+1])
	}
	return datasync.NewRawRecord(rowID, cols, vals)
}

func TestMapper_Map(t *testing.T) {
	m, err := NewMapper(pricingTestSchema())
	require.NoError(t, err)

	t.Run("valid row", func(t *testing.T) {
		rec, rejections := m.Map(raw("1",
			"part_no", "ABC-123", "price", "19.99", "qty", "4", "currency", "usd",
			"effective", "20240115", "active", "Y", "ignored", "whatever"))
		require.NotNil(t, rec)
		assert.Empty(t, rejections)
		assert.Equal(t, "ABC-123", rec.NaturalKey)
		assert.Equal(t, "ABC-123", rec.Fields["part_number"])
		assert.True(t, decimal.RequireFromString("19.99").Equal(rec.Fields["price"].(decimal.Decimal)))
		assert.Equal(t, int64(4), rec.Fields["quantity"])
		assert.Equal(t, "USD", rec.Fields["currency"], "allowed values normalize to their declared spelling")
		assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), rec.Fields["effective_date"])
		assert.Equal(t, true, rec.Fields["active"])
		_, hasIgnored := rec.Fields["ignored"]
		assert.False(t, hasIgnored)
	})

	t.Run("optional type failure drops only the field", func(t *testing.T) {
		rec, rejections := m.Map(raw("2", "part_no", "ABC-123", "price", "19.99", "qty", "abc"))
		require.NotNil(t, rec)
		require.Len(t, rejections, 1)
		assert.Equal(t, "quantity", rejections[0].Field)
		assert.Equal(t, datasync.RuleType, rejections[0].Rule)
		assert.Equal(t, "abc", rejections[0].Value)
		assert.False(t, rejections[0].RecordRejected)
		assert.Equal(t, "ABC-123", rec.Fields["part_number"])
		_, hasQty := rec.Fields["quantity"]
		assert.False(t, hasQty)
	})

	t.Run("missing required field rejects the record", func(t *testing.T) {
		rec, rejections := m.Map(raw("3", "price", "1.00"))
		assert.Nil(t, rec)
		require.Len(t, rejections, 1)
		assert.Equal(t, datasync.RuleRequired, rejections[0].Rule)
		assert.True(t, rejections[0].RecordRejected)
	})

	t.Run("blank padded value counts as missing", func(t *testing.T) {
		rec, rejections := m.Map(raw("4", "part_no", "     ", "price", "1.00"))
		assert.Nil(t, rec)
		require.Len(t, rejections, 1)
		assert.Equal(t, "part_number", rejections[0].Field)
	})

	t.Run("over-long string is rejected, not truncated", func(t *testing.T) {
		rec, rejections := m.Map(raw("5", "part_no", "ABCDEFGHIJKLMNOP", "price", "1.00"))
		assert.Nil(t, rec)
		require.Len(t, rejections, 1)
		assert.Equal(t, datasync.RuleLength, rejections[0].Rule)
		assert.Equal(t, "ABCDEFGHIJKLMNOP", rejections[0].Value)
	})

	t.Run("every bad field is reported", func(t *testing.T) {
		rec, rejections := m.Map(raw("6", "part_no", "X1", "price", "cheap", "currency", "GBP", "active", "maybe"))
		assert.Nil(t, rec)
		require.Len(t, rejections, 3)
		rules := []string{rejections[0].Rule, rejections[1].Rule, rejections[2].Rule}
		assert.Equal(t, []string{datasync.RuleType, datasync.RuleAllowedValue, datasync.RuleType}, rules)
	})

	t.Run("native driver values", func(t *testing.T) {
		rec, rejections := m.Map(raw("7", "part_no", []byte("N1  "), "price", 12.5, "qty", int64(3),
			"effective", time.Date(2023, 5, 6, 13, 0, 0, 0, time.UTC), "active", int64(0)))
		require.NotNil(t, rec)
		assert.Empty(t, rejections)
		assert.Equal(t, "N1", rec.Fields["part_number"])
		assert.Equal(t, "12.5", rec.Fields["price"].(decimal.Decimal).String())
		assert.Equal(t, int64(3), rec.Fields["quantity"])
		assert.Equal(t, time.Date(2023, 5, 6, 0, 0, 0, 0, time.UTC), rec.Fields["effective_date"])
		assert.Equal(t, false, rec.Fields["active"])
	})

	t.Run("fractional float for int field", func(t *testing.T) {
		rec, rejections := m.Map(raw("8", "part_no", "N1", "price", "1", "qty", 2.5))
		require.NotNil(t, rec)
		require.Len(t, rejections, 1)
		assert.Equal(t, "quantity", rejections[0].Field)
	})
}

func TestMapper_MapIsDeterministic(t *testing.T) {
	m, err := NewMapper(pricingTestSchema())
	require.NoError(t, err)

	in := raw("1", "part_no", "ABC-123", "price", "19.99", "qty", "abc", "currency", "CAD")
	first, firstRej := m.Map(in)
	second, secondRej := m.Map(in)
	assert.Equal(t, first, second)
	assert.Equal(t, firstRej, secondRej)
}

func TestMapper_ConcurrentUse(t *testing.T) {
	m, err := NewMapper(pricingTestSchema())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec, _ := m.Map(raw("r", "part_no", "P"+strings.Repeat("1", i%5+1), "price", "2.00"))
			assert.NotNil(t, rec)
		}(i)
	}
	wg.Wait()
}

func TestMapper_KeyFieldFailureRejectsRecord(t *testing.T) {
	m, err := NewMapper(Schema{
		EntityType: datasync.EntityVehicleReference,
		Fields: []FieldMapping{
			Field("id").To("base_vehicle_id").Int().Build(),
			Field("name").To("name").Build(),
		},
		KeyFields: []string{"base_vehicle_id"},
	})
	require.NoError(t, err)

	rec, rejections := m.Map(raw("1", "id", "x12", "name", "Civic"))
	assert.Nil(t, rec)
	require.Len(t, rejections, 1)
	assert.True(t, rejections[0].RecordRejected)
}
