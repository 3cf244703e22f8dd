package mapping

import "github.com/partsync/backend/internal/domain/datasync"

// Catalog field names shared between mappings and business rules
const (
	FieldPartNumber           = "part_number"
	FieldNormalizedPartNumber = "normalized_part_number"
	FieldManufacturerCode     = "manufacturer_code"
	FieldManufacturerRef      = "manufacturer_ref"
	FieldCategoryCode         = "category_code"
	FieldCategoryRef          = "category_ref"
	FieldSupersededBy         = "superseded_by"
	FieldDimensionUnit        = "dimension_unit"
	FieldWeightUnit           = "weight_unit"
	FieldLength               = "length"
	FieldWidth                = "width"
	FieldHeight               = "height"
	FieldWeight               = "weight"
	FieldPrice                = "price"
	FieldQuantityOnHand       = "quantity_on_hand"
	FieldQuantityAllocated    = "quantity_allocated"
	FieldTotalAmount          = "total_amount"
	FieldQuantity             = "quantity"
	FieldAction               = "action"
)

// ActionWithdraw marks an exchange application the sender has deleted
const ActionWithdraw = "D"

// Mainframe date columns are stored as CCYYMMDD
const legacyDateFormat = "20060102"

// DefaultSchemas returns the built-in mapping for every entity type. Legacy
// entity types use the mainframe column names; reference entity types use
// the column names of the reference exports.
func DefaultSchemas() []Schema {
	return []Schema{
		{
			EntityType: datasync.EntityPart,
			Fields: []FieldMapping{
				Field("PARTNO").To(FieldPartNumber).Required().MaxLength(30).Build(),
				Field("MFRCD").To(FieldManufacturerCode).Required().MaxLength(10).Build(),
				Field("DESC").To("description").MaxLength(120).Build(),
				Field("CATCD").To(FieldCategoryCode).MaxLength(10).Build(),
				Field("UPC").To("upc").Length(12, 14).Unique().Build(),
				Field("UOM").To("unit_of_sale").MaxLength(4).Build(),
				Field("STATUS").To("status").OneOf("A", "I", "D").Build(),
			},
			KeyFields:     []string{FieldManufacturerCode, FieldNormalizedPartNumber},
			DerivedFields: []string{FieldNormalizedPartNumber, FieldManufacturerRef, FieldCategoryRef},
		},
		{
			EntityType: datasync.EntityMeasurement,
			Fields: []FieldMapping{
				Field("PARTNO").To(FieldPartNumber).Required().MaxLength(30).Build(),
				Field("MFRCD").To(FieldManufacturerCode).Required().MaxLength(10).Build(),
				Field("LENGTH").To(FieldLength).Decimal().Build(),
				Field("WIDTH").To(FieldWidth).Decimal().Build(),
				Field("HEIGHT").To(FieldHeight).Decimal().Build(),
				Field("DIMUOM").To(FieldDimensionUnit).OneOf("IN", "CM", "MM", "M").Build(),
				Field("WEIGHT").To(FieldWeight).Decimal().Build(),
				Field("WTUOM").To(FieldWeightUnit).OneOf("LB", "OZ", "KG", "G").Build(),
			},
			KeyFields:     []string{FieldManufacturerCode, FieldNormalizedPartNumber},
			DerivedFields: []string{FieldNormalizedPartNumber},
		},
		{
			EntityType: datasync.EntityStock,
			Fields: []FieldMapping{
				Field("PARTNO").To(FieldPartNumber).Required().MaxLength(30).Build(),
				Field("MFRCD").To(FieldManufacturerCode).Required().MaxLength(10).Build(),
				Field("WHSE").To("warehouse_code").Required().MaxLength(6).Build(),
				Field("QTYOH").To(FieldQuantityOnHand).Int().Required().Build(),
				Field("QTYALLOC").To(FieldQuantityAllocated).Int().Build(),
				Field("ASOF").To("as_of").Date(legacyDateFormat).Build(),
			},
			KeyFields:     []string{FieldManufacturerCode, FieldNormalizedPartNumber, "warehouse_code"},
			DerivedFields: []string{FieldNormalizedPartNumber},
		},
		{
			EntityType: datasync.EntityPricing,
			Fields: []FieldMapping{
				Field("PARTNO").To(FieldPartNumber).Required().MaxLength(30).Build(),
				Field("MFRCD").To(FieldManufacturerCode).Required().MaxLength(10).Build(),
				Field("PRCTYPE").To("price_type").Required().OneOf("LIST", "JOBBER", "DEALER", "CORE").Build(),
				Field("PRICE").To(FieldPrice).Decimal().Required().Build(),
				Field("CURR").To("currency").OneOf("USD", "CAD", "MXN", "EUR").Build(),
				Field("EFFDT").To("effective_date").Date(legacyDateFormat).Build(),
			},
			KeyFields:     []string{FieldManufacturerCode, FieldNormalizedPartNumber, "price_type"},
			DerivedFields: []string{FieldNormalizedPartNumber},
		},
		{
			EntityType: datasync.EntityManufacturer,
			Fields: []FieldMapping{
				Field("MFRCD").To(FieldManufacturerCode).Required().MaxLength(10).Build(),
				Field("MFRNAME").To("name").Required().MaxLength(80).Unique().Build(),
				Field("BRANDID").To("brand_id").Length(4, 4).Unique().Build(),
				Field("ACTIVE").To("active").Bool().Build(),
			},
			KeyFields: []string{FieldManufacturerCode},
		},
		{
			EntityType: datasync.EntityCustomer,
			Fields: []FieldMapping{
				Field("CUSTNO").To("customer_number").Required().MaxLength(12).Build(),
				Field("CUSTNAME").To("name").Required().MaxLength(100).Build(),
				Field("TAXID").To("tax_id").MaxLength(20).Unique().Build(),
				Field("CRLIMIT").To("credit_limit").Decimal().Build(),
				Field("TERMS").To("payment_terms").OneOf("NET30", "NET60", "COD").Build(),
				Field("ACTIVE").To("active").Bool().Build(),
			},
			KeyFields: []string{"customer_number"},
		},
		{
			EntityType: datasync.EntityOrder,
			Fields: []FieldMapping{
				Field("ORDNO").To("order_number").Required().MaxLength(12).Build(),
				Field("CUSTNO").To("customer_number").Required().MaxLength(12).Build(),
				Field("ORDDT").To("order_date").Date(legacyDateFormat).Required().Build(),
				Field("STATUS").To("status").OneOf("OPEN", "SHIPPED", "CLOSED", "CANCELLED").Build(),
				Field("TOTAL").To(FieldTotalAmount).Decimal().Build(),
				Field("CURR").To("currency").OneOf("USD", "CAD", "MXN", "EUR").Build(),
			},
			KeyFields: []string{"order_number"},
		},
		{
			EntityType: datasync.EntityVehicleReference,
			Fields: []FieldMapping{
				Field("BaseVehicleID").To("base_vehicle_id").Int().Required().Build(),
				Field("YearID").To("year").Int().Required().Build(),
				Field("MakeID").To("make_id").Int().Required().Build(),
				Field("MakeName").To("make_name").MaxLength(50).Build(),
				Field("ModelID").To("model_id").Int().Required().Build(),
				Field("ModelName").To("model_name").MaxLength(100).Build(),
			},
			KeyFields: []string{"base_vehicle_id"},
		},
		{
			EntityType: datasync.EntityPartReference,
			Fields: []FieldMapping{
				Field("PartTerminologyID").To("part_terminology_id").Int().Required().Build(),
				Field("PartTerminologyName").To("name").Required().MaxLength(100).Build(),
				Field("CategoryCode").To(FieldCategoryCode).MaxLength(10).Build(),
				Field("SupersededBy").To(FieldSupersededBy).Int().Build(),
			},
			KeyFields:     []string{"part_terminology_id"},
			DerivedFields: []string{FieldCategoryRef},
		},
		{
			EntityType: datasync.EntityAttributeReference,
			Fields: []FieldMapping{
				Field("app_id").To("application_id").Int().Required().Build(),
				Field("action").To(FieldAction).Required().OneOf("A", ActionWithdraw).Build(),
				Field("base_vehicle_id").To("base_vehicle_id").Int().Required().Build(),
				Field("part_type_id").To("part_type_id").Int().Required().Build(),
				Field("position_id").To("position_id").Int().Build(),
				Field("quantity").To(FieldQuantity).Int().Build(),
				Field("part_number").To(FieldPartNumber).Required().MaxLength(30).Build(),
				Field("brand").To("brand_id").MaxLength(4).Build(),
				Field("qualifiers").To("qualifiers").MaxLength(500).Build(),
				Field("notes").To("notes").MaxLength(500).Build(),
				Field("vcdb_version").To("vcdb_version").Date(DefaultDateFormat).Build(),
				Field("pcdb_version").To("pcdb_version").Date(DefaultDateFormat).Build(),
				Field("qdb_version").To("qdb_version").Date(DefaultDateFormat).Build(),
			},
			KeyFields:     []string{"application_id"},
			DerivedFields: []string{FieldNormalizedPartNumber},
		},
		{
			EntityType: datasync.EntityQualifierReference,
			Fields: []FieldMapping{
				Field("QualifierID").To("qualifier_id").Int().Required().Build(),
				Field("QualifierText").To("text").Required().MaxLength(500).Build(),
				Field("QualifierTypeID").To("qualifier_type_id").Int().Build(),
				Field("SupersededBy").To(FieldSupersededBy).Int().Build(),
			},
			KeyFields: []string{"qualifier_id"},
		},
	}
}
