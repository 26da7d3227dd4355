package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"fpoadmin/pkg/domain/attribute"
)

// Identifier keys always present in an update payload.
const (
	FieldID       = "id"
	FieldParentID = "parent_id"
)

// ErrMalformedChangeSet indicates an update payload without usable identifiers.
var ErrMalformedChangeSet = errors.New("domain: malformed change set")

// ChangeSet is the minimal partial update derived from an edit: the record
// identifiers plus every attribute whose value actually changed.
type ChangeSet struct {
	IdentifierFields attribute.Bag
	ChangedFields    attribute.Bag
}

// RecordID returns the id identifier.
func (c ChangeSet) RecordID() string {
	v, _ := c.IdentifierFields.Get(FieldID)
	s, _ := v.(string)
	return s
}

// ParentID returns the parent_id identifier.
func (c ChangeSet) ParentID() string {
	v, _ := c.IdentifierFields.Get(FieldParentID)
	s, _ := v.(string)
	return s
}

// IsEmpty reports whether no attribute changed.
func (c ChangeSet) IsEmpty() bool {
	return c.ChangedFields.Len() == 0
}

// Payload flattens identifiers and changed fields into the update body.
func (c ChangeSet) Payload() attribute.Bag {
	out := c.IdentifierFields.Clone()
	out.Merge(c.ChangedFields)
	return out
}

// MarshalJSON encodes the flat payload.
func (c ChangeSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Payload())
}

// UnmarshalJSON splits a flat update body back into identifiers and changes.
func (c *ChangeSet) UnmarshalJSON(data []byte) error {
	parsed, err := ParseChangeSet(data)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseChangeSet reads a flat update body. The id key is optional since
// transports may carry it out of band; parent_id is kept when present.
func ParseChangeSet(data []byte) (ChangeSet, error) {
	payload := attribute.DecodeDetails(data)
	if raw, opaque := payload.Opaque(); opaque {
		return ChangeSet{}, fmt.Errorf("%w: body is not a JSON object: %s", ErrMalformedChangeSet, truncate(raw, 64))
	}
	cs := ChangeSet{IdentifierFields: attribute.NewBag(), ChangedFields: attribute.NewBag()}
	for _, key := range payload.Keys() {
		value, _ := payload.Get(key)
		switch key {
		case FieldID, FieldParentID:
			if _, ok := value.(string); !ok {
				return ChangeSet{}, fmt.Errorf("%w: %s must be a string", ErrMalformedChangeSet, key)
			}
			cs.IdentifierFields.Set(key, value)
		default:
			cs.ChangedFields.Set(key, value)
		}
	}
	return cs, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// ComputeChangeSet diffs an edited record against its original snapshot. Only
// attributes declared numeric by schema get numeric comparison; identifiers
// come from the original so an edit cannot retarget the update.
func ComputeChangeSet(schema attribute.Schema, original, edited Record) ChangeSet {
	ids := attribute.NewBag()
	ids.Set(FieldID, original.ID)
	ids.Set(FieldParentID, original.ParentID)
	return ChangeSet{
		IdentifierFields: ids,
		ChangedFields:    DiffFields(original.Attributes, edited.Attributes, schema.IsNumeric),
	}
}

// DiffFields returns, in edited order, each field of edited whose value is
// not equal to the same field of original. Fields missing from edited are not
// reported; updates are merge patches and never delete by omission. A numeric
// field missing from original counts as unset, so a blank or nil edit of it
// is not a change.
func DiffFields(original, edited attribute.Bag, numeric func(field string) bool) attribute.Bag {
	changed := attribute.NewBag()
	for _, key := range edited.Keys() {
		after, _ := edited.Get(key)
		before, present := original.Get(key)
		isNumeric := numeric != nil && numeric(key)
		if (present || isNumeric) && valuesEqual(before, after, isNumeric) {
			continue
		}
		changed.Set(key, after)
	}
	return changed
}

// unset stands in for nil and blank strings in numeric comparisons.
type unset struct{}

func valuesEqual(a, b any, numeric bool) bool {
	if numeric {
		na, nb := normalizeNumber(a), normalizeNumber(b)
		fa, aok := na.(float64)
		fb, bok := nb.(float64)
		if aok && bok {
			return fa == fb
		}
		if _, ua := na.(unset); ua {
			_, ub := nb.(unset)
			return ub
		}
	}
	return reflect.DeepEqual(normalizeJSON(a), normalizeJSON(b))
}

func normalizeNumber(v any) any {
	if v == nil {
		return unset{}
	}
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
		return unset{}
	}
	if f, ok := attribute.AsNumber(v); ok {
		return f
	}
	return v
}

// normalizeJSON maps a value onto the shape encoding/json produces when
// decoding into any, so int 2 and float64 2 compare equal.
func normalizeJSON(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}
