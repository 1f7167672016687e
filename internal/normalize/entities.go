package normalize

// entities.go - per-entity field tables: required fields, header aliases and
// coercion kinds. Alias spellings cover both the English exports and the
// Hebrew spreadsheets customers actually upload.

import (
	"github.com/propertydigital/pdimport/pkg/core"
)

// Kind selects the value coercion applied to a canonical field.
type Kind int

const (
	KindText Kind = iota
	KindDate
	KindAmount
	KindInteger
	KindEnum
)

// FieldSpec maps one canonical field to its recognized header spellings.
// Aliases are matched case-insensitively, first match wins; the slice order
// is the deterministic tie-break.
type FieldSpec struct {
	Canonical    string
	Aliases      []string
	Kind         Kind
	Translations map[string]string // enum fields only: source label -> token
	Default      string            // enum fields only: value when blank
}

// EntityConfig declares how one entity type is normalized.
type EntityConfig struct {
	Required  []string
	Fields    []FieldSpec
	DateField string // target for content-sniffed date columns
}

// statusTranslations maps free-text status labels to canonical tokens.
var statusTranslations = map[string]string{
	"שולם":      "paid",
	"paid":      "paid",
	"ממתין":     "pending",
	"pending":   "pending",
	"באיחור":    "overdue",
	"overdue":   "overdue",
	"בוטל":      "cancelled",
	"cancelled": "cancelled",
	"פעיל":      "active",
	"active":    "active",
}

var paymentTypeTranslations = map[string]string{
	"חשמל":     "electricity",
	"מים":      "water",
	"גז":       "gas",
	"ועד בית":  "vaad_bait",
	"שכר דירה": "rent",
	"ארנונה":   "arnona",
	"תחזוקה":   "maintenance",
}

var paymentMethodTranslations = map[string]string{
	"העברה בנקאית": "bank_transfer",
	"ביט":          "bit",
	"אשראי":        "credit_card",
	"מזומן":        "cash",
	"צק":           "check",
	"צ'ק":          "check",
}

// entityConfigs is the strategy table keyed by entity type. Aliases must be
// disjoint across canonical fields within one entity; an overlap is a
// configuration defect, not a runtime condition.
var entityConfigs = map[core.EntityType]*EntityConfig{
	core.EntityProperty: {
		Required:  []string{"full_name"},
		DateField: "start_date",
		Fields: []FieldSpec{
			{Canonical: "full_name", Aliases: []string{"full_name", "name", "שם", "שם מלא", "שם הנכס", "property_name"}},
			{Canonical: "property_type", Aliases: []string{"property_type", "type", "סוג", "סוג נכס"}},
			{Canonical: "total_units", Aliases: []string{"total_units", "units", "unit_count", "יחידות", "מספר יחידות", "סהכ יחידות"}, Kind: KindInteger},
			{Canonical: "status", Aliases: []string{"status", "סטטוס", "מצב"}, Kind: KindEnum, Translations: statusTranslations, Default: "active"},
			{Canonical: "address_street", Aliases: []string{"address", "street", "כתובת", "רחוב"}},
			{Canonical: "address_city", Aliases: []string{"city", "city_name", "עיר"}},
			{Canonical: "start_date", Aliases: []string{"start_date", "start", "תאריך התחלה", "תחילת תאריך"}, Kind: KindDate},
		},
	},
	core.EntityTenant: {
		Required:  []string{"full_name"},
		DateField: "start_date",
		Fields: []FieldSpec{
			{Canonical: "full_name", Aliases: []string{"full_name", "name", "שם", "שם מלא"}},
			{Canonical: "tenant_id", Aliases: []string{"tenant_id", "id", "מזהה דייר", "ת.ז", "תז"}},
			{Canonical: "property_id", Aliases: []string{"property_id", "prop_id", "מזהה נכס"}},
			{Canonical: "phone", Aliases: []string{"phone", "phone_number", "טלפון", "נייד"}},
			{Canonical: "email", Aliases: []string{"email", "mail", "אימייל", "דוא\"ל"}},
			{Canonical: "status", Aliases: []string{"status", "סטטוס", "מצב"}, Kind: KindEnum, Translations: statusTranslations, Default: "active"},
			{Canonical: "start_date", Aliases: []string{"start_date", "start", "תאריך התחלה", "תחילת תאריך"}, Kind: KindDate},
		},
	},
	core.EntityPayment: {
		Required:  []string{"full_name", "amount", "payment_date"},
		DateField: "payment_date",
		Fields: []FieldSpec{
			{Canonical: "full_name", Aliases: []string{"full_name", "name", "שם", "שם מלא"}},
			{Canonical: "tenant_id", Aliases: []string{"tenant_id", "מזהה דייר", "ת.ז", "תז"}},
			{Canonical: "property_id", Aliases: []string{"property_id", "prop_id", "מזהה נכס"}},
			{Canonical: "amount", Aliases: []string{"amount", "סכום", "price", "cost"}, Kind: KindAmount},
			{Canonical: "payment_date", Aliases: []string{"payment_date", "date", "תאריך תשלום", "תאריך"}, Kind: KindDate},
			{Canonical: "payment_type", Aliases: []string{"payment_type", "סוג תשלום"}, Kind: KindEnum, Translations: paymentTypeTranslations, Default: "other"},
			{Canonical: "payment_method", Aliases: []string{"payment_method", "אמצעי תשלום"}, Kind: KindEnum, Translations: paymentMethodTranslations, Default: "bank_transfer"},
			{Canonical: "status", Aliases: []string{"status", "סטטוס", "מצב"}, Kind: KindEnum, Translations: statusTranslations, Default: "pending"},
			{Canonical: "receipt_number", Aliases: []string{"receipt_number", "receipt", "מספר אסמכתא", "אסמכתא"}},
			{Canonical: "description", Aliases: []string{"description", "notes", "הערות"}},
		},
	},
}

// ConfigFor returns the normalization config for an entity type, or nil if
// the entity type is unknown.
func ConfigFor(entity core.EntityType) *EntityConfig {
	return entityConfigs[entity]
}
