package attribute

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
)

// Violation reasons reported by Validate.
const (
	ReasonRequired     = "required"
	ReasonUnknownField = "unknown field"
	ReasonExpectText   = "expected text"
	ReasonExpectNumber = "expected number"
	ReasonExpectBool   = "expected boolean"
	ReasonNotAllowed   = "not an allowed value"
	ReasonUndecodable  = "undecodable details"
)

// DetailsField is the pseudo field reported when a bag could not be decoded.
const DetailsField = "details"

// Violation reports one field that does not conform to its schema.
type Violation struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (v Violation) String() string {
	return v.Field + ": " + v.Reason
}

// ErrSchemaViolation is matched by every *ValidationError.
var ErrSchemaViolation = errors.New("attribute: schema violation")

// ValidationError carries the field-level violations of a rejected bag.
type ValidationError struct {
	Category   Category
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.String())
	}
	return fmt.Sprintf("attribute: %s failed validation: %s", e.Category, strings.Join(parts, "; "))
}

// Is makes errors.Is(err, ErrSchemaViolation) hold for validation errors.
func (e *ValidationError) Is(target error) bool {
	return target == ErrSchemaViolation
}

// Fields maps each violating field to its first reason, convenient for forms.
func (e *ValidationError) Fields() map[string]string {
	out := make(map[string]string, len(e.Violations))
	for _, v := range e.Violations {
		if _, seen := out[v.Field]; !seen {
			out[v.Field] = v.Reason
		}
	}
	return out
}

// Validate checks bag against the schema. Required fields must be present and
// non-blank, present values must match the declared type and enum members,
// and every key in the bag must be declared by this schema.
func (s Schema) Validate(bag Bag) []Violation {
	if _, opaque := bag.Opaque(); opaque {
		return []Violation{{Field: DetailsField, Reason: ReasonUndecodable}}
	}
	var violations []Violation
	for _, f := range s.Fields {
		value, present := bag.Get(f.Name)
		if !present || isBlank(value) {
			if f.Required {
				violations = append(violations, Violation{Field: f.Name, Reason: ReasonRequired})
			}
			continue
		}
		if reason, ok := checkValue(f, value); !ok {
			violations = append(violations, Violation{Field: f.Name, Reason: reason})
		}
	}
	for _, key := range bag.Keys() {
		if _, declared := s.Field(key); !declared {
			violations = append(violations, Violation{Field: key, Reason: ReasonUnknownField})
		}
	}
	return violations
}

// checkValue verifies a non-blank value against the field declaration.
func checkValue(f Field, value any) (string, bool) {
	switch f.Type {
	case TypeText:
		if _, ok := value.(string); !ok {
			return ReasonExpectText, false
		}
	case TypeNumber:
		if _, ok := AsNumber(value); !ok {
			return ReasonExpectNumber, false
		}
	case TypeBoolean:
		if _, ok := value.(bool); !ok {
			return ReasonExpectBool, false
		}
	case TypeEnum:
		str, ok := value.(string)
		if !ok || !slices.Contains(f.AllowedValues, str) {
			return ReasonNotAllowed, false
		}
	}
	return "", true
}

// isBlank treats nil and whitespace-only strings as an absent value. Form
// inputs submit cleared fields as empty strings.
func isBlank(value any) bool {
	if value == nil {
		return true
	}
	if s, ok := value.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

// AsNumber converts the numeric representations a bag may hold to float64.
// Strings are not numbers, even when they parse as one.
func AsNumber(value any) (float64, bool) {
	var f float64
	switch n := value.(type) {
	case int:
		f = float64(n)
	case int8:
		f = float64(n)
	case int16:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint8:
		f = float64(n)
	case uint16:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case float32:
		f = float64(n)
	case float64:
		f = n
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
