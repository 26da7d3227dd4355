package domain

import (
	"encoding/json"

	"fpoadmin/pkg/domain/attribute"
)

// Record is a facility or asset belonging to an organization. Its category
// selects the attribute schema its Attributes bag must satisfy. ParentID and
// Category are fixed once the record has been created.
type Record struct {
	Base
	ParentID   string             `json:"parent_id"`
	Category   attribute.Category `json:"category"`
	Attributes attribute.Bag      `json:"details"`
}

// NewDraftRecord returns an unsaved record seeded with the category defaults.
func NewDraftRecord(registry *attribute.Registry, parentID string, category attribute.Category) (Record, error) {
	schema, err := registry.Schema(category)
	if err != nil {
		return Record{}, err
	}
	return Record{ParentID: parentID, Category: schema.Category, Attributes: schema.Defaults()}, nil
}

// IsDraft reports whether the record has not been persisted yet.
func (r Record) IsDraft() bool {
	return r.ID == ""
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	out := r
	out.Attributes = r.Attributes.Clone()
	return out
}

// UnmarshalJSON decodes a record whose details may arrive either as an object
// or as a JSON-encoded string.
func (r *Record) UnmarshalJSON(data []byte) error {
	type alias Record
	var aux struct {
		alias
		Details json.RawMessage `json:"details"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = Record(aux.alias)
	r.Attributes = attribute.DecodeDetails(aux.Details)
	return nil
}
