package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/partsync/backend/internal/domain/catalog"
)

// CatalogEntityModel is the persistence model for catalog entities of every
// synced type. Attributes are stored as a JSON object.
type CatalogEntityModel struct {
	AggregateModel
	EntityType   string `gorm:"type:varchar(32);not null;uniqueIndex:idx_catalog_entities_key,priority:1"`
	NaturalKey   string `gorm:"type:varchar(255);not null;uniqueIndex:idx_catalog_entities_key,priority:2"`
	Attributes   string `gorm:"type:text;not null;default:'{}'"`
	Active       bool   `gorm:"not null;default:true"`
	SupersededBy string `gorm:"type:varchar(255)"`
}

// TableName returns the table name for GORM
func (CatalogEntityModel) TableName() string {
	return "catalog_entities"
}

// ToDomain converts the persistence model to a domain Entity
func (m *CatalogEntityModel) ToDomain() (*catalog.Entity, error) {
	attrs := make(map[string]string)
	if m.Attributes != "" {
		if err := json.Unmarshal([]byte(m.Attributes), &attrs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal attributes of %s %q: %w", m.EntityType, m.NaturalKey, err)
		}
	}
	return &catalog.Entity{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		EntityType:        m.EntityType,
		NaturalKey:        m.NaturalKey,
		Attributes:        attrs,
		Active:            m.Active,
		SupersededBy:      m.SupersededBy,
	}, nil
}

// CatalogEntityModelFromDomain creates a persistence model from a domain Entity
func CatalogEntityModelFromDomain(e *catalog.Entity) (*CatalogEntityModel, error) {
	attrs, err := MarshalAttributes(e.Attributes)
	if err != nil {
		return nil, err
	}
	m := &CatalogEntityModel{
		EntityType:   e.EntityType,
		NaturalKey:   e.NaturalKey,
		Attributes:   attrs,
		Active:       e.Active,
		SupersededBy: e.SupersededBy,
	}
	m.FromDomainAggregateRoot(e.BaseAggregateRoot)
	return m, nil
}

// MarshalAttributes renders entity attributes as the stored JSON object.
// encoding/json sorts map keys, so equal attribute sets encode identically.
func MarshalAttributes(attrs map[string]string) (string, error) {
	if len(attrs) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(attrs)
	if err != nil {
		return "", fmt.Errorf("failed to marshal attributes: %w", err)
	}
	return string(data), nil
}

// UniqueValueModel claims a value of a uniquely-constrained field for the
// entity that owns it
type UniqueValueModel struct {
	EntityType string    `gorm:"type:varchar(32);primary_key"`
	Field      string    `gorm:"type:varchar(64);primary_key"`
	Value      string    `gorm:"type:varchar(255);primary_key"`
	OwnerKey   string    `gorm:"type:varchar(255);not null;index"`
	CreatedAt  time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (UniqueValueModel) TableName() string {
	return "catalog_unique_values"
}

// SupersessionLinkModel is the append-only record of a replaced identifier
type SupersessionLinkModel struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key"`
	EntityType string    `gorm:"type:varchar(32);not null;index:idx_supersessions_old,priority:1"`
	OldKey     string    `gorm:"type:varchar(255);not null;index:idx_supersessions_old,priority:2"`
	NewKey     string    `gorm:"type:varchar(255);not null"`
	Reason     string    `gorm:"type:text;not null"`
	CreatedAt  time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SupersessionLinkModel) TableName() string {
	return "catalog_supersessions"
}

// ToDomain converts the persistence model to a domain SupersessionLink
func (m *SupersessionLinkModel) ToDomain() catalog.SupersessionLink {
	return catalog.SupersessionLink{
		ID:         m.ID,
		EntityType: m.EntityType,
		OldKey:     m.OldKey,
		NewKey:     m.NewKey,
		Reason:     m.Reason,
		CreatedAt:  m.CreatedAt,
	}
}

// SupersessionLinkModelFromDomain creates a persistence model from a domain link
func SupersessionLinkModelFromDomain(l *catalog.SupersessionLink) *SupersessionLinkModel {
	return &SupersessionLinkModel{
		ID:         l.ID,
		EntityType: l.EntityType,
		OldKey:     l.OldKey,
		NewKey:     l.NewKey,
		Reason:     l.Reason,
		CreatedAt:  l.CreatedAt,
	}
}
