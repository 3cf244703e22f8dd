// Package datasync holds the vocabulary of the catalog sync subsystem:
// sync logs, checkpoints, raw and validated records, and rejections.
package datasync

import "strings"

// EntityType identifies the kind of catalog data a sync run moves
type EntityType string

const (
	EntityPart               EntityType = "part"
	EntityMeasurement        EntityType = "measurement"
	EntityStock              EntityType = "stock"
	EntityPricing            EntityType = "pricing"
	EntityManufacturer       EntityType = "manufacturer"
	EntityCustomer           EntityType = "customer"
	EntityOrder              EntityType = "order"
	EntityVehicleReference   EntityType = "vehicle_reference"
	EntityPartReference      EntityType = "part_reference"
	EntityAttributeReference EntityType = "attribute_reference"
	EntityQualifierReference EntityType = "qualifier_reference"
)

// AllEntityTypes returns every supported entity type in declaration order
func AllEntityTypes() []EntityType {
	return []EntityType{
		EntityPart,
		EntityMeasurement,
		EntityStock,
		EntityPricing,
		EntityManufacturer,
		EntityCustomer,
		EntityOrder,
		EntityVehicleReference,
		EntityPartReference,
		EntityAttributeReference,
		EntityQualifierReference,
	}
}

// IsValid checks if the entity type is valid
func (e EntityType) IsValid() bool {
	switch e {
	case EntityPart, EntityMeasurement, EntityStock, EntityPricing,
		EntityManufacturer, EntityCustomer, EntityOrder,
		EntityVehicleReference, EntityPartReference,
		EntityAttributeReference, EntityQualifierReference:
		return true
	}
	return false
}

// IsReference returns true for entity types fed by industry reference databases
func (e EntityType) IsReference() bool {
	switch e {
	case EntityVehicleReference, EntityPartReference,
		EntityAttributeReference, EntityQualifierReference:
		return true
	}
	return false
}

// String implements fmt.Stringer
func (e EntityType) String() string {
	return string(e)
}

// NormalizeEntityType folds user input onto the canonical spelling:
// "Vehicle-Reference" becomes "vehicle_reference". The result may still be
// invalid.
func NormalizeEntityType(s string) EntityType {
	return EntityType(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
}

// ParseEntityType converts user input into an EntityType. Hyphenated forms
// such as "vehicle-reference" are accepted.
func ParseEntityType(s string) (EntityType, bool) {
	et := NormalizeEntityType(s)
	return et, et.IsValid()
}
