package catalog

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/partsync/backend/internal/domain/shared"
)

// MaxNaturalKeyLength bounds natural keys stored on catalog entities
const MaxNaturalKeyLength = 255

// Entity is a catalog record of any synced entity type, matched to its
// source by natural key. Attributes hold canonical string renderings of the
// record's fields.
type Entity struct {
	shared.BaseAggregateRoot
	EntityType   string
	NaturalKey   string
	Attributes   map[string]string
	Active       bool
	SupersededBy string
}

// NewEntity creates an active catalog entity
func NewEntity(entityType, naturalKey string, attrs map[string]string) (*Entity, error) {
	if entityType == "" {
		return nil, shared.NewDomainError("INVALID_ENTITY_TYPE", "Entity type cannot be empty")
	}
	if err := validateNaturalKey(naturalKey); err != nil {
		return nil, err
	}

	e := &Entity{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		EntityType:        entityType,
		NaturalKey:        naturalKey,
		Attributes:        copyAttributes(attrs),
		Active:            true,
	}
	e.AddDomainEvent(NewEntityCreatedEvent(e))
	return e, nil
}

func validateNaturalKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return shared.NewDomainError("INVALID_NATURAL_KEY", "Natural key cannot be empty")
	}
	if len(key) > MaxNaturalKeyLength {
		return shared.NewDomainError("INVALID_NATURAL_KEY", fmt.Sprintf("Natural key cannot exceed %d characters", MaxNaturalKeyLength))
	}
	return nil
}

// Diff returns the sorted names of fields whose value in attrs differs from
// the entity. Fields absent from attrs are left alone and not reported.
func (e *Entity) Diff(attrs map[string]string) []string {
	changed := make([]string, 0)
	for k, v := range attrs {
		cur, ok := e.Attributes[k]
		if !ok || cur != v {
			changed = append(changed, k)
		}
	}
	sort.Strings(changed)
	return changed
}

// FieldActive is reported among the changed fields when Reconcile flips the
// active flag
const FieldActive = "active"

// Apply merges attrs into the entity and returns the changed field names.
// Nothing is modified when no field differs.
func (e *Entity) Apply(attrs map[string]string) []string {
	return e.Reconcile(attrs, e.Active)
}

// Reconcile merges attrs and sets whether the source still lists the
// entity, in a single version. A superseded entity stays inactive.
func (e *Entity) Reconcile(attrs map[string]string, listed bool) []string {
	changed := e.Diff(attrs)
	flip := e.Active != listed && e.SupersededBy == ""
	if len(changed) == 0 && !flip {
		return changed
	}
	if e.Attributes == nil {
		e.Attributes = make(map[string]string, len(attrs))
	}
	for _, k := range changed {
		e.Attributes[k] = attrs[k]
	}
	if flip {
		e.Active = listed
		changed = append(changed, FieldActive)
	}
	e.UpdatedAt = time.Now()
	e.IncrementVersion()
	e.AddDomainEvent(NewEntityUpdatedEvent(e, changed))
	return changed
}

// Deactivate marks the entity as replaced by newKey
func (e *Entity) Deactivate(newKey string) error {
	if err := validateNaturalKey(newKey); err != nil {
		return err
	}
	if newKey == e.NaturalKey {
		return shared.NewDomainError("INVALID_SUPERSESSION", "An entity cannot supersede itself")
	}
	e.Active = false
	e.SupersededBy = newKey
	e.UpdatedAt = time.Now()
	e.IncrementVersion()
	return nil
}

// Attribute returns a single attribute value
func (e *Entity) Attribute(name string) string {
	return e.Attributes[name]
}

func copyAttributes(attrs map[string]string) map[string]string {
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}
