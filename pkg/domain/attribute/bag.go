package attribute

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
)

// Bag is an ordered field→value mapping holding the attributes of a record.
// Values are JSON-compatible and deep-copied on Set and Get so a bag never
// shares nested state with its callers. Copying a Bag value shares storage;
// use Clone for an independent copy.
//
// A bag may be opaque: it then carries the raw details text that could not be
// decoded into fields and reports no keys.
type Bag struct {
	keys   []string
	values map[string]any
	raw    *string
}

// NewBag returns an empty bag.
func NewBag() Bag {
	return Bag{values: make(map[string]any)}
}

// BagOf builds a bag from alternating name/value arguments. It panics when a
// name is not a string or a value is missing; it is meant for literals.
func BagOf(pairs ...any) Bag {
	if len(pairs)%2 != 0 {
		panic(fmt.Errorf("attribute: BagOf expects name/value pairs, got %d arguments", len(pairs)))
	}
	bag := NewBag()
	for i := 0; i < len(pairs); i += 2 {
		name, ok := pairs[i].(string)
		if !ok {
			panic(fmt.Errorf("attribute: BagOf name at %d is %T, not string", i, pairs[i]))
		}
		bag.Set(name, pairs[i+1])
	}
	return bag
}

// BagFromMap builds a bag from a plain map. Keys are ordered lexically since
// map iteration carries no order.
func BagFromMap(m map[string]any) Bag {
	bag := NewBag()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		bag.Set(k, m[k])
	}
	return bag
}

// OpaqueBag wraps details text that could not be decoded into fields.
func OpaqueBag(raw string) Bag {
	return Bag{raw: &raw}
}

// Opaque returns the undecoded details text when the bag is opaque.
func (b Bag) Opaque() (string, bool) {
	if b.raw == nil {
		return "", false
	}
	return *b.raw, true
}

// Len reports the number of fields.
func (b Bag) Len() int {
	return len(b.keys)
}

// Keys returns the field names in insertion order.
func (b Bag) Keys() []string {
	if len(b.keys) == 0 {
		return nil
	}
	return slices.Clone(b.keys)
}

// Has reports whether name is present.
func (b Bag) Has(name string) bool {
	_, ok := b.values[name]
	return ok
}

// Get returns a deep copy of the value stored under name.
func (b Bag) Get(name string) (any, bool) {
	if b.values == nil {
		return nil, false
	}
	v, ok := b.values[name]
	if !ok {
		return nil, false
	}
	return cloneValue(v), true
}

// Set stores value under name, keeping the original position of an existing
// field. Setting a field on an opaque bag turns it into a regular bag.
func (b *Bag) Set(name string, value any) {
	if b.values == nil {
		b.values = make(map[string]any)
	}
	b.raw = nil
	if _, exists := b.values[name]; !exists {
		b.keys = append(b.keys, name)
	}
	b.values[name] = cloneValue(value)
}

// Delete removes name from the bag.
func (b *Bag) Delete(name string) {
	if _, exists := b.values[name]; !exists {
		return
	}
	delete(b.values, name)
	if i := slices.Index(b.keys, name); i >= 0 {
		b.keys = slices.Delete(b.keys, i, i+1)
	}
}

// Merge overwrites or appends every field of other into b.
func (b *Bag) Merge(other Bag) {
	for _, k := range other.keys {
		b.Set(k, other.values[k])
	}
}

// Clone returns an independent deep copy.
func (b Bag) Clone() Bag {
	if b.raw != nil {
		return OpaqueBag(*b.raw)
	}
	out := Bag{
		keys:   slices.Clone(b.keys),
		values: make(map[string]any, len(b.values)),
	}
	for k, v := range b.values {
		out.values[k] = cloneValue(v)
	}
	return out
}

// Map returns a deep copy of the fields as a plain map.
func (b Bag) Map() map[string]any {
	out := make(map[string]any, len(b.values))
	for k, v := range b.values {
		out[k] = cloneValue(v)
	}
	return out
}

// MarshalJSON writes the fields as an object in insertion order. Opaque bags
// serialise as their raw text in a JSON string.
func (b Bag) MarshalJSON() ([]byte, error) {
	if b.raw != nil {
		return json.Marshal(*b.raw)
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range b.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(b.values[k])
		if err != nil {
			return nil, fmt.Errorf("attribute: marshal %q: %w", k, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON accepts the forms details arrive in: an object, null, or a
// string holding an encoded object. Anything that does not decode to an
// object is kept as an opaque bag instead of failing.
func (b *Bag) UnmarshalJSON(data []byte) error {
	*b = DecodeDetails(data)
	return nil
}

// DecodeDetails turns a details payload into a bag. Strings are unwrapped and
// decoded when they hold a JSON object; malformed content is retained as an
// opaque bag holding the raw text.
func DecodeDetails(data []byte) Bag {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return NewBag()
	}
	if trimmed[0] == '"' {
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return OpaqueBag(string(trimmed))
		}
		inner := bytes.TrimSpace([]byte(text))
		if len(inner) == 0 {
			return NewBag()
		}
		bag, err := decodeObject(inner)
		if err != nil {
			return OpaqueBag(text)
		}
		return bag
	}
	bag, err := decodeObject(trimmed)
	if err != nil {
		return OpaqueBag(string(trimmed))
	}
	return bag
}

var errNotObject = errors.New("attribute: details are not a JSON object")

// decodeObject reads a JSON object preserving the order of its keys.
func decodeObject(data []byte) (Bag, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return Bag{}, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return Bag{}, errNotObject
	}
	bag := NewBag()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return Bag{}, err
		}
		key, ok := tok.(string)
		if !ok {
			return Bag{}, errNotObject
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return Bag{}, err
		}
		bag.Set(key, value)
	}
	if _, err := dec.Token(); err != nil {
		return Bag{}, err
	}
	if dec.More() {
		return Bag{}, errNotObject
	}
	return bag, nil
}
