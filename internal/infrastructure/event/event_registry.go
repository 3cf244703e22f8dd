package event

import (
	"github.com/partsync/backend/internal/domain/catalog"
	"github.com/partsync/backend/internal/domain/datasync"
)

// RegisterAllEvents registers every published event type with the serializer
func RegisterAllEvents(serializer *EventSerializer) {
	serializer.Register(datasync.EventTypeSyncFinished, &datasync.SyncFinishedEvent{})
	serializer.Register(catalog.EventTypeEntityCreated, &catalog.EntityCreatedEvent{})
	serializer.Register(catalog.EventTypeEntityUpdated, &catalog.EntityUpdatedEvent{})
}
