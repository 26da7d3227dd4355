// Package attribute provides the schema catalog and attribute bags backing
// facility and asset records. Each record category owns one schema that lists
// the fields a record of that category may carry; bags are validated against
// the schema of their category and never against another one, even when field
// names overlap.
package attribute

import (
	"errors"
	"fmt"
	"strings"
)

// Category identifies the kind of record and selects its attribute schema.
type Category string

// Built-in record categories. Further categories can be registered at runtime
// or loaded from a schema file.
const (
	// ActivityFacility covers business activities run by the organization
	// (aggregation, processing, trainings).
	ActivityFacility Category = "activity_facility"
	// OfficeEquipment covers furniture, computers and other office assets.
	OfficeEquipment Category = "office_equipment"
	// ShopFacility covers shops, godowns and storage facilities.
	ShopFacility Category = "shop_facility"
)

func (c Category) String() string { return string(c) }

// FieldType enumerates the value types a schema field may declare.
type FieldType string

const (
	TypeText    FieldType = "text"
	TypeNumber  FieldType = "number"
	TypeEnum    FieldType = "enum"
	TypeBoolean FieldType = "boolean"
)

// Valid reports whether the type is one of the supported field types.
func (t FieldType) Valid() bool {
	switch t {
	case TypeText, TypeNumber, TypeEnum, TypeBoolean:
		return true
	default:
		return false
	}
}

// Field describes a single attribute declared by a schema.
type Field struct {
	Name          string    `json:"name" yaml:"name"`
	Label         string    `json:"label,omitempty" yaml:"label,omitempty"`
	Type          FieldType `json:"type" yaml:"type"`
	Required      bool      `json:"required" yaml:"required"`
	AllowedValues []string  `json:"allowed_values,omitempty" yaml:"allowed_values,omitempty"`
	Default       any       `json:"default,omitempty" yaml:"default,omitempty"`
}

// Schema lists the ordered fields permitted for one category.
type Schema struct {
	Category Category `json:"category" yaml:"category"`
	Label    string   `json:"label,omitempty" yaml:"label,omitempty"`
	Aliases  []string `json:"aliases,omitempty" yaml:"aliases,omitempty"`
	Fields   []Field  `json:"fields" yaml:"fields"`
}

// reservedFields are envelope and identifier keys of the record wire format.
// Attribute fields may not reuse them because update payloads flatten
// identifiers and changed attributes into one object.
var reservedFields = map[string]struct{}{
	"id":        {},
	"parent_id": {},
	"category":  {},
	"details":   {},
}

// ErrInvalidSchema indicates a schema definition breaks a structural rule.
var ErrInvalidSchema = errors.New("attribute: invalid schema")

// Field returns the declaration for name.
func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// FieldNames returns the declared field names in schema order.
func (s Schema) FieldNames() []string {
	names := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		names = append(names, f.Name)
	}
	return names
}

// IsNumeric reports whether name is declared as a number field.
func (s Schema) IsNumeric(name string) bool {
	f, ok := s.Field(name)
	return ok && f.Type == TypeNumber
}

// Defaults builds the default bag for the schema: every field declaring a
// default value, in schema order.
func (s Schema) Defaults() Bag {
	bag := NewBag()
	for _, f := range s.Fields {
		if f.Default != nil {
			bag.Set(f.Name, f.Default)
		}
	}
	return bag
}

// Check verifies the structural invariants of the schema definition.
func (s Schema) Check() error {
	if strings.TrimSpace(string(s.Category)) == "" {
		return fmt.Errorf("%w: category must not be empty", ErrInvalidSchema)
	}
	seen := make(map[string]struct{}, len(s.Fields))
	for _, f := range s.Fields {
		if strings.TrimSpace(f.Name) == "" {
			return fmt.Errorf("%w: %s has a field without a name", ErrInvalidSchema, s.Category)
		}
		if _, reserved := reservedFields[f.Name]; reserved {
			return fmt.Errorf("%w: %s field %q uses a reserved name", ErrInvalidSchema, s.Category, f.Name)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("%w: %s declares field %q twice", ErrInvalidSchema, s.Category, f.Name)
		}
		seen[f.Name] = struct{}{}
		if !f.Type.Valid() {
			return fmt.Errorf("%w: %s field %q has unsupported type %q", ErrInvalidSchema, s.Category, f.Name, f.Type)
		}
		if f.Type == TypeEnum && len(f.AllowedValues) == 0 {
			return fmt.Errorf("%w: %s enum field %q declares no allowed values", ErrInvalidSchema, s.Category, f.Name)
		}
		if f.Default != nil {
			if reason, ok := checkValue(f, f.Default); !ok {
				return fmt.Errorf("%w: %s field %q default: %s", ErrInvalidSchema, s.Category, f.Name, reason)
			}
		}
	}
	return nil
}

func (s Schema) clone() Schema {
	out := s
	out.Aliases = append([]string(nil), s.Aliases...)
	out.Fields = make([]Field, len(s.Fields))
	for i, f := range s.Fields {
		f.AllowedValues = append([]string(nil), f.AllowedValues...)
		f.Default = cloneValue(f.Default)
		out.Fields[i] = f
	}
	return out
}

// Builtin returns the schemas of the built-in categories.
func Builtin() []Schema {
	return []Schema{
		{
			Category: ActivityFacility,
			Label:    "Activities",
			Fields: []Field{
				{Name: "name", Label: "Activity name", Type: TypeText, Required: true},
				{Name: "activity_type", Label: "Activity type", Type: TypeEnum, Required: true,
					AllowedValues: []string{"aggregation", "processing", "storage", "input_supply", "training", "marketing"}},
				{Name: "location", Label: "Location", Type: TypeText},
				{Name: "capacity", Label: "Capacity", Type: TypeNumber, Default: 0},
				{Name: "is_operational", Label: "Operational", Type: TypeBoolean, Default: true},
				{Name: "remarks", Label: "Remarks", Type: TypeText},
			},
		},
		{
			Category: OfficeEquipment,
			Label:    "Office equipment",
			Fields: []Field{
				{Name: "name", Label: "Equipment name", Type: TypeText, Required: true},
				{Name: "quantity", Label: "Quantity", Type: TypeNumber, Required: true, Default: 1},
				{Name: "condition", Label: "Condition", Type: TypeEnum,
					AllowedValues: []string{"new", "good", "fair", "poor"}},
				{Name: "is_functional", Label: "Functional", Type: TypeBoolean, Default: true},
				{Name: "remarks", Label: "Remarks", Type: TypeText},
			},
		},
		{
			Category: ShopFacility,
			Label:    "Shops and facilities",
			Aliases:  []string{"shops_and_facilities"},
			Fields: []Field{
				{Name: "name", Label: "Facility name", Type: TypeText, Required: true},
				{Name: "type", Label: "Facility type", Type: TypeEnum, Required: true,
					AllowedValues: []string{"shop", "godown", "cold_storage", "collection_center", "processing_unit"}},
				{Name: "status", Label: "Status", Type: TypeEnum,
					AllowedValues: []string{"available", "unavailable", "under_construction"}},
				{Name: "ownership", Label: "Ownership", Type: TypeEnum,
					AllowedValues: []string{"owned", "rented", "leased"}},
				{Name: "area_sq_ft", Label: "Area (sq ft)", Type: TypeNumber, Default: 0},
				{Name: "remarks", Label: "Remarks", Type: TypeText},
			},
		},
	}
}
