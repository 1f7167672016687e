package core

// EntityType identifies which dataset a record belongs to.
type EntityType string

// Entity type constants.
const (
	EntityProperty EntityType = "Property"
	EntityTenant   EntityType = "Tenant"
	EntityPayment  EntityType = "Payment"
)

// Valid reports whether the entity type is one the pipeline knows about.
func (e EntityType) Valid() bool {
	switch e {
	case EntityProperty, EntityTenant, EntityPayment:
		return true
	}
	return false
}

// Collection returns the storage collection name for the entity type.
func (e EntityType) Collection() string {
	switch e {
	case EntityProperty:
		return "properties"
	case EntityTenant:
		return "tenants"
	case EntityPayment:
		return "payments"
	}
	return string(e)
}

// RawRecord is an ordered view of one parsed spreadsheet row: source column
// header (any language) to the raw cell value. It only exists between the
// parser and the normalizer.
type RawRecord map[string]string

// Record is a canonical, normalized record. Keys are canonical field names
// (full_name, amount, payment_date, ...); values are already coerced.
// Provenance fields are stamped by the ingestion service before any write.
type Record map[string]any

// Provenance keys stamped onto every record before a write attempt.
const (
	FieldImportJobID = "import_job_id"
	FieldImportedAt  = "imported_at"
	FieldImportedBy  = "imported_by"
)

// Severity classifies a field-level problem.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// FieldError describes a single field-level normalization problem.
// These are data, not Go errors: they ride along with the record and are
// attached to chunk results rather than aborting anything.
type FieldError struct {
	ID       string   `json:"id"`
	Row      int      `json:"row"` // 1-indexed row in the source file
	Column   string   `json:"column"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}
