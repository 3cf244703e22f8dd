package catalog

import (
	"github.com/google/uuid"
	"github.com/partsync/backend/internal/domain/shared"
)

// AggregateTypeEntity is the aggregate type name of catalog entities
const AggregateTypeEntity = "CatalogEntity"

// Event type constants
const (
	EventTypeEntityCreated = "CatalogEntityCreated"
	EventTypeEntityUpdated = "CatalogEntityUpdated"
)

// EntityCreatedEvent is published when a sync creates a catalog entity
type EntityCreatedEvent struct {
	shared.BaseDomainEvent
	EntityID   uuid.UUID `json:"entity_id"`
	EntityType string    `json:"entity_type"`
	NaturalKey string    `json:"natural_key"`
}

// NewEntityCreatedEvent creates a new EntityCreatedEvent
func NewEntityCreatedEvent(e *Entity) *EntityCreatedEvent {
	return &EntityCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeEntityCreated, AggregateTypeEntity, e.ID),
		EntityID:        e.ID,
		EntityType:      e.EntityType,
		NaturalKey:      e.NaturalKey,
	}
}

// EntityUpdatedEvent is published when a sync changes catalog fields
type EntityUpdatedEvent struct {
	shared.BaseDomainEvent
	EntityID      uuid.UUID `json:"entity_id"`
	EntityType    string    `json:"entity_type"`
	NaturalKey    string    `json:"natural_key"`
	ChangedFields []string  `json:"changed_fields"`
}

// NewEntityUpdatedEvent creates a new EntityUpdatedEvent
func NewEntityUpdatedEvent(e *Entity, changed []string) *EntityUpdatedEvent {
	return &EntityUpdatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeEntityUpdated, AggregateTypeEntity, e.ID),
		EntityID:        e.ID,
		EntityType:      e.EntityType,
		NaturalKey:      e.NaturalKey,
		ChangedFields:   changed,
	}
}
