package render

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fpoadmin/pkg/domain"
	"fpoadmin/pkg/domain/attribute"
)

func TestWordDiff(t *testing.T) {
	assert.Equal(t, "[-old-]{+new+} paint", WordDiff("old paint", "new paint"))
	assert.Equal(t, "same", WordDiff("same", "same"))
	assert.Equal(t, "{+fresh+}", WordDiff("", "fresh"))
	assert.Equal(t, "[-gone-]", WordDiff("gone", ""))
}

func TestChanges(t *testing.T) {
	schema, err := attribute.DefaultRegistry().Schema(attribute.OfficeEquipment)
	require.NoError(t, err)
	original := attribute.BagOf("name", "Desk", "quantity", 2, "condition", "good", "remarks", "old paint")
	edited := original.Clone()
	edited.Set("quantity", 3)
	edited.Set("remarks", "new paint")
	edited.Set("is_functional", false)

	cs := domain.ComputeChangeSet(schema,
		domain.Record{Base: domain.Base{ID: "r1"}, ParentID: "org-1", Attributes: original},
		domain.Record{Base: domain.Base{ID: "r1"}, ParentID: "org-1", Attributes: edited})

	var buf bytes.Buffer
	require.NoError(t, Changes(&buf, schema, original, cs))
	out := buf.String()
	assert.Contains(t, out, "record r1 (office_equipment)")
	assert.Contains(t, out, "  quantity: 2 -> 3\n")
	assert.Contains(t, out, "  remarks: [-old-]{+new+} paint\n")
	assert.Contains(t, out, "  is_functional: + false\n")
	assert.NotContains(t, out, "name:")

	buf.Reset()
	require.NoError(t, Changes(&buf, schema, original, domain.ChangeSet{}))
	assert.Equal(t, "no changes\n", buf.String())
}

func TestRecordsAndSchema(t *testing.T) {
	var buf bytes.Buffer
	records := []domain.Record{{
		Base:       domain.Base{ID: "r1"},
		Category:   attribute.ShopFacility,
		Attributes: attribute.BagOf("name", "Godown", "type", "godown"),
	}}
	require.NoError(t, Records(&buf, records))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, lines[1], "shop_facility")
	assert.Contains(t, lines[1], `{"name":"Godown","type":"godown"}`)
	assert.Contains(t, lines[0], "SUMMARY")

	buf.Reset()
	schema, err := attribute.DefaultRegistry().Schema(attribute.ActivityFacility)
	require.NoError(t, err)
	require.NoError(t, Schema(&buf, schema))
	assert.Contains(t, buf.String(), "activity_type")
	assert.Contains(t, buf.String(), "aggregation,processing")
}

func TestSummary(t *testing.T) {
	cases := []struct {
		name   string
		record domain.Record
		want   string
	}{
		{
			name: "activity",
			record: domain.Record{Category: attribute.ActivityFacility, Attributes: attribute.BagOf(
				"name", "Mill", "activity_type", "processing", "capacity", 20, "is_operational", true)},
			want: "processing, capacity 20, operational",
		},
		{
			name: "office",
			record: domain.Record{Category: attribute.OfficeEquipment, Attributes: attribute.BagOf(
				"name", "Laptop", "quantity", 2, "condition", "fair", "is_functional", false)},
			want: "2 units, fair, not functional",
		},
		{
			name: "shop",
			record: domain.Record{Category: attribute.ShopFacility, Attributes: attribute.BagOf(
				"name", "Godown", "type", "godown", "ownership", "rented", "area_sq_ft", 1200)},
			want: "godown, rented, 1200 sq ft",
		},
		{
			name:   "schema file category",
			record: domain.Record{Category: "cold_room", Attributes: attribute.BagOf("name", "Room")},
			want:   "-",
		},
		{
			name:   "undecodable",
			record: domain.Record{Category: attribute.ShopFacility, Attributes: attribute.OpaqueBag("{")},
			want:   "-",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Summary(tc.record))
		})
	}
}
