package event

import (
	"testing"

	"github.com/partsync/backend/internal/domain/datasync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func finishedSyncLog(t *testing.T) *datasync.SyncLog {
	t.Helper()
	log, err := datasync.NewSyncLog(datasync.EntityPart, datasync.TriggerManual)
	require.NoError(t, err)
	require.NoError(t, log.Start())
	require.NoError(t, log.ApplyBatch(datasync.BatchDelta{Offset: 10, Fetched: 10, Created: 7, Updated: 1, Unchanged: 1, Failed: 1}))
	require.NoError(t, log.Complete())
	return log
}

func TestEventSerializer_RegisteredTypes(t *testing.T) {
	serializer := NewEventSerializer()

	assert.Equal(t, []string{"CatalogEntityCreated", "CatalogEntityUpdated", "SyncFinished"}, serializer.RegisteredTypes())
}

func TestEventSerializer_SyncFinished(t *testing.T) {
	serializer := NewEventSerializer()
	event := datasync.NewSyncFinishedEvent(finishedSyncLog(t))

	data, err := serializer.Serialize(event)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"entity_type":"part"`)
	assert.Contains(t, string(data), `"status":"completed"`)

	decoded, err := serializer.Deserialize(datasync.EventTypeSyncFinished, data)
	require.NoError(t, err)
	sf, ok := decoded.(*datasync.SyncFinishedEvent)
	require.True(t, ok)
	assert.Equal(t, event.EventID(), sf.EventID())
	assert.Equal(t, 9, sf.Processed)
	assert.Equal(t, 1, sf.Unchanged)
}

func TestEventSerializer_Deserialize_UnknownType(t *testing.T) {
	_, err := NewEventSerializer().Deserialize("Unknown", []byte(`{}`))

	assert.ErrorContains(t, err, "unknown event type")
}

func TestEventSerializer_Deserialize_InvalidJSON(t *testing.T) {
	_, err := NewEventSerializer().Deserialize(datasync.EventTypeSyncFinished, []byte(`{`))

	assert.Error(t, err)
}
