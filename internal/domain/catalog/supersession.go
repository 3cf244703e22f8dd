package catalog

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/partsync/backend/internal/domain/shared"
)

// SupersessionLink records that an old catalog identifier was replaced by a
// new one. Links are append-only.
type SupersessionLink struct {
	ID         uuid.UUID
	EntityType string
	OldKey     string
	NewKey     string
	Reason     string
	CreatedAt  time.Time
}

// NewSupersessionLink validates and creates a supersession link
func NewSupersessionLink(entityType, oldKey, newKey, reason string) (*SupersessionLink, error) {
	if entityType == "" {
		return nil, shared.NewDomainError("INVALID_ENTITY_TYPE", "Entity type cannot be empty")
	}
	if err := validateNaturalKey(oldKey); err != nil {
		return nil, err
	}
	if err := validateNaturalKey(newKey); err != nil {
		return nil, err
	}
	if oldKey == newKey {
		return nil, shared.NewDomainError("INVALID_SUPERSESSION", "An entity cannot supersede itself")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, shared.NewDomainError("INVALID_SUPERSESSION", "Supersession reason cannot be empty")
	}

	return &SupersessionLink{
		ID:         uuid.New(),
		EntityType: entityType,
		OldKey:     oldKey,
		NewKey:     newKey,
		Reason:     reason,
		CreatedAt:  time.Now(),
	}, nil
}
