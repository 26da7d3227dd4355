package domain

import (
	"encoding/json"
	"errors"
	"fmt"

	"fpoadmin/pkg/domain/attribute"
)

// ErrNoTypedDetails indicates a category without a typed details variant.
var ErrNoTypedDetails = errors.New("domain: category has no typed details")

// Details is the typed view of a record's attributes. Exactly one variant
// exists per built-in category and each carries only the fields declared by
// that category's schema.
type Details interface {
	Category() attribute.Category
	isDetails()
}

// ActivityFacility lists the attributes of an activity run by the organization.
type ActivityFacility struct {
	Name          string  `json:"name"`
	ActivityType  string  `json:"activity_type"`
	Location      string  `json:"location,omitempty"`
	Capacity      float64 `json:"capacity"`
	IsOperational bool    `json:"is_operational"`
	Remarks       string  `json:"remarks,omitempty"`
}

// OfficeEquipment lists the attributes of an office asset.
type OfficeEquipment struct {
	Name         string  `json:"name"`
	Quantity     float64 `json:"quantity"`
	Condition    string  `json:"condition,omitempty"`
	IsFunctional bool    `json:"is_functional"`
	Remarks      string  `json:"remarks,omitempty"`
}

// ShopFacility lists the attributes of a shop, godown or storage facility.
type ShopFacility struct {
	Name      string  `json:"name"`
	Type      string  `json:"type"`
	Status    string  `json:"status,omitempty"`
	Ownership string  `json:"ownership,omitempty"`
	AreaSqFt  float64 `json:"area_sq_ft"`
	Remarks   string  `json:"remarks,omitempty"`
}

func (ActivityFacility) Category() attribute.Category { return attribute.ActivityFacility }
func (OfficeEquipment) Category() attribute.Category  { return attribute.OfficeEquipment }
func (ShopFacility) Category() attribute.Category     { return attribute.ShopFacility }

func (ActivityFacility) isDetails() {}
func (OfficeEquipment) isDetails()  {}
func (ShopFacility) isDetails()     {}

// DetailsFromBag decodes a bag into the typed variant of category. The bag is
// expected to have passed registry validation already; the registry remains
// the authority on which fields are allowed.
func DetailsFromBag(category attribute.Category, bag attribute.Bag) (Details, error) {
	if raw, opaque := bag.Opaque(); opaque {
		return nil, fmt.Errorf("domain: %s details are undecodable: %q", category, raw)
	}
	data, err := json.Marshal(bag)
	if err != nil {
		return nil, err
	}
	var details Details
	switch category {
	case attribute.ActivityFacility:
		details, err = decodeVariant[ActivityFacility](data)
	case attribute.OfficeEquipment:
		details, err = decodeVariant[OfficeEquipment](data)
	case attribute.ShopFacility:
		details, err = decodeVariant[ShopFacility](data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrNoTypedDetails, category)
	}
	if err != nil {
		return nil, fmt.Errorf("domain: decode %s details: %w", category, err)
	}
	return details, nil
}

func decodeVariant[T Details](data []byte) (Details, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// BagFromDetails converts a typed variant back into an attribute bag.
func BagFromDetails(details Details) (attribute.Bag, error) {
	data, err := json.Marshal(details)
	if err != nil {
		return attribute.Bag{}, err
	}
	return attribute.DecodeDetails(data), nil
}

// Details returns the typed view of the record's attributes.
func (r Record) Details() (Details, error) {
	return DetailsFromBag(r.Category, r.Attributes)
}

// RecordFromDetails builds an unsaved record from a typed variant.
func RecordFromDetails(parentID string, details Details) (Record, error) {
	bag, err := BagFromDetails(details)
	if err != nil {
		return Record{}, err
	}
	return Record{ParentID: parentID, Category: details.Category(), Attributes: bag}, nil
}
