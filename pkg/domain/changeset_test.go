package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"fpoadmin/pkg/domain/attribute"
)

func officeSchema(t testing.TB) attribute.Schema {
	t.Helper()
	schema, err := attribute.DefaultRegistry().Schema(attribute.OfficeEquipment)
	require.NoError(t, err)
	return schema
}

func TestComputeChangeSetOnlyChangedFields(t *testing.T) {
	original := Record{
		Base:       Base{ID: "rec-1"},
		ParentID:   "fpo-9",
		Category:   attribute.OfficeEquipment,
		Attributes: attribute.BagOf("name", "Laptop", "quantity", 2, "remarks", ""),
	}
	edited := original.Clone()
	edited.Attributes.Set("quantity", 3)

	cs := ComputeChangeSet(officeSchema(t), original, edited)
	assert.False(t, cs.IsEmpty())
	assert.Equal(t, []string{"quantity"}, cs.ChangedFields.Keys())
	assert.Equal(t, "rec-1", cs.RecordID())
	assert.Equal(t, "fpo-9", cs.ParentID())

	data, err := json.Marshal(cs)
	require.NoError(t, err)
	assert.Equal(t, `{"id":"rec-1","parent_id":"fpo-9","quantity":3}`, string(data))
}

func TestComputeChangeSetIgnoresEditedIdentifiers(t *testing.T) {
	original := Record{Base: Base{ID: "rec-1"}, ParentID: "fpo-9", Attributes: attribute.BagOf("name", "Desk")}
	edited := original.Clone()
	edited.ID = "rec-2"
	edited.ParentID = "fpo-other"

	cs := ComputeChangeSet(officeSchema(t), original, edited)
	assert.True(t, cs.IsEmpty())
	assert.Equal(t, "rec-1", cs.RecordID())
	assert.Equal(t, "fpo-9", cs.ParentID())
}

func TestDiffFieldsNumericNormalisation(t *testing.T) {
	numeric := officeSchema(t).IsNumeric
	cases := []struct {
		name    string
		field   string
		before  any
		absent  bool
		after   any
		changed bool
	}{
		{name: "int vs float", field: "quantity", before: 2, after: 2.0},
		{name: "json number", field: "quantity", before: json.Number("2"), after: float64(2)},
		{name: "blank vs nil", field: "quantity", before: "", after: nil},
		{name: "blank vs zero", field: "quantity", before: "", after: 0, changed: true},
		{name: "value vs nil", field: "quantity", before: 4, after: nil, changed: true},
		{name: "different", field: "quantity", before: 4, after: 5, changed: true},
		{name: "text blank vs nil", field: "remarks", before: "", after: nil, changed: true},
		{name: "text same", field: "remarks", before: "dusty", after: "dusty"},
		{name: "nested equal", field: "remarks", before: map[string]any{"n": 1}, after: map[string]any{"n": 1.0}},
		{name: "missing vs blank", field: "quantity", absent: true, after: ""},
		{name: "missing vs nil", field: "quantity", absent: true, after: nil},
		{name: "missing vs value", field: "quantity", absent: true, after: 0, changed: true},
		{name: "text missing vs blank", field: "remarks", absent: true, after: "", changed: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			original := attribute.BagOf("name", "Desk")
			if !tc.absent {
				original.Set(tc.field, tc.before)
			}
			diff := DiffFields(original, attribute.BagOf(tc.field, tc.after), numeric)
			assert.Equal(t, tc.changed, diff.Has(tc.field))
		})
	}
}

func TestComputeChangeSetBlankNumericOnUnsetField(t *testing.T) {
	schema, err := attribute.DefaultRegistry().Schema(attribute.ActivityFacility)
	require.NoError(t, err)
	original := Record{
		Base:       Base{ID: "rec-3"},
		ParentID:   "fpo-9",
		Category:   attribute.ActivityFacility,
		Attributes: attribute.BagOf("name", "Mill", "activity_type", "processing"),
	}
	edited := original.Clone()
	edited.Attributes.Set("capacity", "")

	cs := ComputeChangeSet(schema, original, edited)
	assert.True(t, cs.IsEmpty(), "changed: %v", cs.ChangedFields.Keys())
}

func TestDiffFieldsAddedAndOmittedFields(t *testing.T) {
	original := attribute.BagOf("name", "Desk", "condition", "good")
	edited := attribute.BagOf("name", "Desk", "remarks", "new")

	diff := DiffFields(original, edited, nil)
	assert.Equal(t, []string{"remarks"}, diff.Keys())
	assert.False(t, diff.Has("condition"))
}

func TestParseChangeSet(t *testing.T) {
	cs, err := ParseChangeSet([]byte(`{"id":"rec-1","parent_id":"fpo-9","quantity":3,"remarks":"moved"}`))
	require.NoError(t, err)
	assert.Equal(t, "rec-1", cs.RecordID())
	assert.Equal(t, []string{"quantity", "remarks"}, cs.ChangedFields.Keys())

	_, err = ParseChangeSet([]byte(`[1,2]`))
	assert.ErrorIs(t, err, ErrMalformedChangeSet)

	_, err = ParseChangeSet([]byte(`{"id":7}`))
	assert.ErrorIs(t, err, ErrMalformedChangeSet)

	var decoded ChangeSet
	require.NoError(t, json.Unmarshal([]byte(`{"parent_id":"fpo-9","name":"Desk"}`), &decoded))
	assert.Equal(t, "", decoded.RecordID())
	assert.Equal(t, "fpo-9", decoded.ParentID())
}

func TestDiffIdempotenceProperty(t *testing.T) {
	reg := attribute.DefaultRegistry()
	categories := reg.Categories()
	rapid.Check(t, func(t *rapid.T) {
		category := rapid.SampledFrom(categories).Draw(t, "category")
		schema, err := reg.Schema(category)
		if err != nil {
			t.Fatalf("schema: %v", err)
		}
		bag := attribute.NewBag()
		for _, f := range schema.Fields {
			switch f.Type {
			case attribute.TypeNumber:
				bag.Set(f.Name, rapid.OneOf(
					rapid.Just[any](nil),
					rapid.Just[any](""),
					rapid.Map(rapid.IntRange(-50, 50), func(i int) any { return i }),
					rapid.Map(rapid.Float64Range(-50, 50), func(f float64) any { return f }),
				).Draw(t, f.Name))
			case attribute.TypeBoolean:
				bag.Set(f.Name, rapid.Bool().Draw(t, f.Name))
			default:
				bag.Set(f.Name, rapid.String().Draw(t, f.Name))
			}
		}
		if diff := DiffFields(bag, bag.Clone(), schema.IsNumeric); diff.Len() != 0 {
			t.Fatalf("diff of identical bags reported %v", diff.Keys())
		}

		// Round tripping through JSON must not introduce spurious changes.
		data, err := json.Marshal(bag)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		decoded := attribute.DecodeDetails(data)
		if diff := DiffFields(bag, decoded, schema.IsNumeric); diff.Len() != 0 {
			t.Fatalf("json round trip reported changes %v", diff.Keys())
		}
	})
}
