package datasync

import (
	"errors"
	"testing"

	"github.com/partsync/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntityType_IsValid(t *testing.T) {
	for _, et := range AllEntityTypes() {
		assert.True(t, et.IsValid(), et)
	}
	assert.False(t, EntityType("invoice").IsValid())
	assert.False(t, EntityType("").IsValid())
}

func TestEntityType_IsReference(t *testing.T) {
	tests := []struct {
		entityType EntityType
		want       bool
	}{
		{EntityPart, false},
		{EntityPricing, false},
		{EntityVehicleReference, true},
		{EntityPartReference, true},
		{EntityAttributeReference, true},
		{EntityQualifierReference, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.entityType), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.entityType.IsReference())
		})
	}
}

func TestParseEntityType(t *testing.T) {
	et, ok := ParseEntityType("vehicle-reference")
	assert.True(t, ok)
	assert.Equal(t, EntityVehicleReference, et)

	et, ok = ParseEntityType("part")
	assert.True(t, ok)
	assert.Equal(t, EntityPart, et)

	et, ok = ParseEntityType(" Qualifier-Reference ")
	assert.True(t, ok)
	assert.Equal(t, EntityQualifierReference, et)

	assert.Equal(t, EntityAttributeReference, NormalizeEntityType("attribute-reference"))
	assert.Equal(t, EntityType(""), NormalizeEntityType(""))

	_, ok = ParseEntityType("nope")
	assert.False(t, ok)
}

func TestSyncStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status SyncStatus
		want   bool
	}{
		{SyncStatusPending, false},
		{SyncStatusRunning, false},
		{SyncStatusCompleted, true},
		{SyncStatusFailed, true},
		{SyncStatusCancelled, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.IsTerminal())
		})
	}
}

func TestNewSyncLog(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		log, err := NewSyncLog(EntityPart, TriggerManual)
		require.NoError(t, err)
		assert.Equal(t, SyncStatusPending, log.Status)
		assert.Equal(t, EntityPart, log.EntityType)
		assert.Equal(t, TriggerManual, log.Trigger)
		assert.Nil(t, log.StartedAt)
		assert.NotEmpty(t, log.ID)
	})

	t.Run("invalid entity type", func(t *testing.T) {
		_, err := NewSyncLog(EntityType("widget"), TriggerManual)
		require.Error(t, err)
		var de *shared.DomainError
		require.True(t, errors.As(err, &de))
		assert.Equal(t, "INVALID_ENTITY_TYPE", de.Code)
	})

	t.Run("invalid trigger", func(t *testing.T) {
		_, err := NewSyncLog(EntityPart, SyncTrigger("cron"))
		assert.Error(t, err)
	})
}

func TestSyncLog_Lifecycle(t *testing.T) {
	log, err := NewSyncLog(EntityStock, TriggerScheduled)
	require.NoError(t, err)

	require.Error(t, log.ApplyBatch(BatchDelta{Created: 1}), "pending logs reject batches")

	require.NoError(t, log.Start())
	require.NotNil(t, log.StartedAt)
	assert.Equal(t, SyncStatusRunning, log.Status)

	require.NoError(t, log.ApplyBatch(BatchDelta{Offset: 10, Fetched: 10, Created: 6, Updated: 2, Unchanged: 1, Failed: 1,
		Rejections: []Rejection{NewRejection("7", "qty", RuleType, "not an integer")}}))
	require.NoError(t, log.ApplyBatch(BatchDelta{Offset: 15, Fetched: 5, Created: 0, Updated: 0, Unchanged: 5}))

	assert.Equal(t, 8, log.Processed)
	assert.Equal(t, 6, log.Created)
	assert.Equal(t, 2, log.Updated)
	assert.Equal(t, 1, log.Failed)
	assert.Equal(t, 6, log.Unchanged)
	assert.Equal(t, 15, log.Fetched)
	assert.Equal(t, 2, log.BatchesCompleted)
	assert.Equal(t, 15, log.LastOffset)
	assert.True(t, log.CountsConsistent())
	assert.Len(t, log.RejectionSample, 1)

	require.NoError(t, log.Complete())
	assert.Equal(t, SyncStatusCompleted, log.Status)
	require.NotNil(t, log.CompletedAt)
	require.Len(t, log.GetDomainEvents(), 1)
	evt, ok := log.GetDomainEvents()[0].(*SyncFinishedEvent)
	require.True(t, ok)
	assert.Equal(t, SyncStatusCompleted, evt.Status)
	assert.Equal(t, 8, evt.Processed)

	t.Run("terminal logs are immutable", func(t *testing.T) {
		assert.Error(t, log.ApplyBatch(BatchDelta{Created: 1}))
		assert.Error(t, log.Fail("late"))
		assert.Error(t, log.Cancel())
		assert.Error(t, log.Complete())
		assert.Equal(t, 8, log.Processed)
	})
}

func TestSyncLog_ApplyBatchRejectsNegativeCounts(t *testing.T) {
	log, _ := NewSyncLog(EntityPart, TriggerManual)
	require.NoError(t, log.Start())
	assert.Error(t, log.ApplyBatch(BatchDelta{Created: -1}))
	assert.Equal(t, 0, log.BatchesCompleted)
}

func TestSyncLog_FailAndCancel(t *testing.T) {
	t.Run("fail keeps message", func(t *testing.T) {
		log, _ := NewSyncLog(EntityPart, TriggerManual)
		require.NoError(t, log.Start())
		require.NoError(t, log.Fail("connector timeout after 3 retries"))
		assert.Equal(t, SyncStatusFailed, log.Status)
		assert.Equal(t, "connector timeout after 3 retries", log.ErrorMessage)
	})

	t.Run("fail from pending", func(t *testing.T) {
		log, _ := NewSyncLog(EntityPart, TriggerManual)
		require.NoError(t, log.Fail(""))
		assert.Equal(t, "sync failed", log.ErrorMessage)
	})

	t.Run("cancel", func(t *testing.T) {
		log, _ := NewSyncLog(EntityPart, TriggerManual)
		require.NoError(t, log.Start())
		require.NoError(t, log.Cancel())
		assert.Equal(t, SyncStatusCancelled, log.Status)
		assert.Empty(t, log.ErrorMessage)
	})
}

func TestSyncLog_RejectionSampleIsBounded(t *testing.T) {
	log, _ := NewSyncLog(EntityPart, TriggerManual)
	require.NoError(t, log.Start())

	rejections := make([]Rejection, MaxRejectionSample+20)
	for i := range rejections {
		rejections[i] = NewRejection("r", "f", RuleRequired, "missing")
	}
	require.NoError(t, log.ApplyBatch(BatchDelta{Failed: len(rejections), Rejections: rejections}))
	assert.Len(t, log.RejectionSample, MaxRejectionSample)
}

func TestSyncLog_RejectionSampleJSON(t *testing.T) {
	log, _ := NewSyncLog(EntityPart, TriggerManual)

	js, err := log.RejectionSampleJSON()
	require.NoError(t, err)
	assert.Equal(t, "[]", js)

	log.RejectionSample = []Rejection{NewRejection("12", "part_number", RuleRequired, "required field is missing")}
	js, err = log.RejectionSampleJSON()
	require.NoError(t, err)

	restored, _ := NewSyncLog(EntityPart, TriggerManual)
	require.NoError(t, restored.SetRejectionSampleFromJSON(js))
	assert.Equal(t, log.RejectionSample, restored.RejectionSample)

	assert.Error(t, restored.SetRejectionSampleFromJSON("{not json"))
}
