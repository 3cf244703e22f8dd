package syncapp

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/partsync/backend/internal/domain/datasync"
	"github.com/partsync/backend/internal/infrastructure/mapping"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessor_PreservesInputOrder(t *testing.T) {
	p := NewProcessor(testMapper(t, datasync.EntityPart), RulesFor(datasync.EntityPart, RuleConfig{}), WithConcurrency(4))

	res, err := p.Process(context.Background(), partRows(50))
	require.NoError(t, err)
	require.Len(t, res.Records, 50)
	assert.Zero(t, res.FailedRows)
	for i, rec := range res.Records {
		assert.Equal(t, fmt.Sprintf("%d", i+1), rec.RowID)
		assert.Equal(t, fmt.Sprintf("ACME|BP%04d", i+1), rec.NaturalKey)
	}
}

func TestProcessor_FatalAndNonFatalRejections(t *testing.T) {
	rules := RulesFor(datasync.EntityPart, RuleConfig{
		ManufacturerCodes: map[string]string{"ACME": "mfr-acme"},
		CategoryCodes:     map[string]string{"ENG": "cat-engine"},
	})
	p := NewProcessor(testMapper(t, datasync.EntityPart), rules)

	rows := []datasync.RawRecord{
		partRow("1", "BP-1", "ACME", "ok", ""),
		partRow("2", "", "ACME", "missing part number", ""),
		partRow("3", "BP-3", "NOPE", "unknown manufacturer", ""),
		partRow("4", "BP-4", "ACME", "short upc", "123"),
	}

	res, err := p.Process(context.Background(), rows)
	require.NoError(t, err)

	// row 1 and 4 survive; BRK is not a known category so both lose it
	require.Len(t, res.Records, 2)
	assert.Equal(t, "1", res.Records[0].RowID)
	assert.Equal(t, "4", res.Records[1].RowID)
	assert.Equal(t, "mfr-acme", res.Records[0].GetString(mapping.FieldManufacturerRef))
	_, hasCategory := res.Records[0].Get(mapping.FieldCategoryCode)
	assert.False(t, hasCategory)
	_, hasUPC := res.Records[1].Get("upc")
	assert.False(t, hasUPC)

	assert.Equal(t, 2, res.FailedRows)
	assert.Equal(t, 2, datasync.CountRejectedRows(res.Rejections))

	byRow := map[string][]datasync.Rejection{}
	for _, r := range res.Rejections {
		byRow[r.RowID] = append(byRow[r.RowID], r)
	}
	require.NotEmpty(t, byRow["2"])
	assert.Equal(t, datasync.RuleRequired, byRow["2"][0].Rule)
	assert.True(t, byRow["2"][0].RecordRejected)

	var sawManufacturer bool
	for _, r := range byRow["3"] {
		if r.Rule == RuleResolveManufacturer {
			sawManufacturer = true
			assert.True(t, r.RecordRejected)
			assert.Equal(t, "NOPE", r.Value)
		}
	}
	assert.True(t, sawManufacturer)

	var sawLength bool
	for _, r := range byRow["4"] {
		if r.Rule == datasync.RuleLength {
			sawLength = true
			assert.False(t, r.RecordRejected)
		}
	}
	assert.True(t, sawLength)
}

func TestProcessor_IncompleteNaturalKey(t *testing.T) {
	// without the normalization rule the derived key field is never set
	p := NewProcessor(testMapper(t, datasync.EntityPart), nil)

	res, err := p.Process(context.Background(), []datasync.RawRecord{partRow("9", "BP-9", "ACME", "x", "")})
	require.NoError(t, err)
	assert.Empty(t, res.Records)
	assert.Equal(t, 1, res.FailedRows)
	require.Len(t, res.Rejections, 1)
	assert.Equal(t, datasync.RuleNaturalKey, res.Rejections[0].Rule)
}

func TestProcessor_PlainErrorFromRuleIsFatal(t *testing.T) {
	boom := Rule{Name: "boom", Apply: func(*datasync.ValidatedRecord) error { return errors.New("exploded") }}
	p := NewProcessor(testMapper(t, datasync.EntityPart), append(RulesFor(datasync.EntityPart, RuleConfig{}), boom))

	res, err := p.Process(context.Background(), []datasync.RawRecord{partRow("1", "BP-1", "ACME", "x", "")})
	require.NoError(t, err)
	assert.Empty(t, res.Records)
	require.Len(t, res.Rejections, 1)
	assert.Equal(t, "boom", res.Rejections[0].Rule)
	assert.Equal(t, "exploded", res.Rejections[0].Reason)
}

func TestProcessor_CancelledContext(t *testing.T) {
	p := NewProcessor(testMapper(t, datasync.EntityPart), RulesFor(datasync.EntityPart, RuleConfig{}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Process(ctx, partRows(10))
	assert.ErrorIs(t, err, context.Canceled)
}
