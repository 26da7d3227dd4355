package core

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fpoadmin/pkg/domain"
	"fpoadmin/pkg/domain/attribute"
)

func officeDesk() Bag {
	return attribute.BagOf("name", "Desk", "quantity", 2, "condition", "good", "is_functional", true)
}

func TestServiceCreateAndList(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemoryService(NewDefaultRulesEngine())

	rec, res, err := svc.CreateRecord(ctx, attribute.OfficeEquipment, "fpo-1", officeDesk())
	require.NoError(t, err)
	assert.Empty(t, res.Violations)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "fpo-1", rec.ParentID)
	assert.False(t, rec.CreatedAt.IsZero())

	_, _, err = svc.CreateRecord(ctx, attribute.OfficeEquipment, "fpo-2", officeDesk())
	require.NoError(t, err)

	records, err := svc.ListRecords(ctx, "fpo-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, rec.ID, records[0].ID)

	all, err := svc.ListRecords(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	got, err := svc.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	v, _ := got.Attributes.Get("name")
	assert.Equal(t, "Desk", v)
}

func TestServiceCreateStoresCanonicalCategory(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemoryService(NewDefaultRulesEngine())

	rec, _, err := svc.CreateRecord(ctx, "shops_and_facilities", "fpo-1", attribute.BagOf("name", "Godown", "type", "godown"))
	require.NoError(t, err)
	assert.Equal(t, attribute.ShopFacility, rec.Category)
}

func TestServiceCreateRejectsInvalidDetails(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemoryService(NewDefaultRulesEngine())

	_, _, err := svc.CreateRecord(ctx, attribute.ShopFacility, "fpo-1", attribute.BagOf("name", "Godown"))
	require.ErrorIs(t, err, attribute.ErrSchemaViolation)
	var verr *attribute.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, attribute.ReasonRequired, verr.Fields()["type"])

	_, _, err = svc.CreateRecord(ctx, attribute.Category("greenhouse"), "fpo-1", attribute.NewBag())
	assert.ErrorIs(t, err, attribute.ErrUnknownCategory)

	_, _, err = svc.CreateRecord(ctx, attribute.OfficeEquipment, "", officeDesk())
	assert.ErrorIs(t, err, domain.ErrMalformedChangeSet)

	all, _ := svc.ListRecords(ctx, "")
	assert.Empty(t, all)
}

func TestServiceApplyChangeSetMergesFields(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemoryService(NewDefaultRulesEngine())
	rec, _, err := svc.CreateRecord(ctx, attribute.OfficeEquipment, "fpo-9", officeDesk())
	require.NoError(t, err)

	edited := rec.Clone()
	edited.Attributes.Set("quantity", 3)
	cs := domain.ComputeChangeSet(mustSchema(t, attribute.OfficeEquipment), rec, edited)

	updated, _, err := svc.ApplyChangeSet(ctx, rec.ID, cs)
	require.NoError(t, err)
	q, _ := updated.Attributes.Get("quantity")
	assert.Equal(t, 3, q)
	name, _ := updated.Attributes.Get("name")
	assert.Equal(t, "Desk", name)
	assert.Equal(t, rec.CreatedAt, updated.CreatedAt)
}

func TestServiceApplyChangeSetRejectsMismatchedIdentifiers(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemoryService(NewDefaultRulesEngine())
	rec, _, err := svc.CreateRecord(ctx, attribute.OfficeEquipment, "fpo-9", officeDesk())
	require.NoError(t, err)

	wrongID := domain.ChangeSet{
		IdentifierFields: attribute.BagOf(domain.FieldID, "other", domain.FieldParentID, "fpo-9"),
		ChangedFields:    attribute.BagOf("quantity", 4),
	}
	_, _, err = svc.ApplyChangeSet(ctx, rec.ID, wrongID)
	assert.ErrorIs(t, err, domain.ErrMalformedChangeSet)

	wrongParent := domain.ChangeSet{
		IdentifierFields: attribute.BagOf(domain.FieldID, rec.ID, domain.FieldParentID, "fpo-1"),
		ChangedFields:    attribute.BagOf("quantity", 4),
	}
	_, _, err = svc.ApplyChangeSet(ctx, rec.ID, wrongParent)
	assert.ErrorIs(t, err, domain.ErrMalformedChangeSet)

	stored, err := svc.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	q, _ := stored.Attributes.Get("quantity")
	assert.Equal(t, 2, q)
}

func TestServiceApplyChangeSetValidatesMergedBag(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemoryService(NewDefaultRulesEngine())
	rec, _, err := svc.CreateRecord(ctx, attribute.OfficeEquipment, "fpo-9", officeDesk())
	require.NoError(t, err)

	cs := domain.ChangeSet{
		IdentifierFields: attribute.BagOf(domain.FieldID, rec.ID, domain.FieldParentID, "fpo-9"),
		ChangedFields:    attribute.BagOf("quantity", "three"),
	}
	_, _, err = svc.ApplyChangeSet(ctx, rec.ID, cs)
	assert.ErrorIs(t, err, attribute.ErrSchemaViolation)
}

func TestServiceMissingRecords(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemoryService(NewDefaultRulesEngine())

	_, err := svc.GetRecord(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.DeleteRecord(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, _, err = svc.ApplyChangeSet(ctx, "missing", domain.ChangeSet{ChangedFields: attribute.BagOf("name", "x")})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestServiceDeleteRecord(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemoryService(NewDefaultRulesEngine())
	rec, _, err := svc.CreateRecord(ctx, attribute.OfficeEquipment, "fpo-1", officeDesk())
	require.NoError(t, err)

	_, err = svc.DeleteRecord(ctx, rec.ID)
	require.NoError(t, err)
	_, err = svc.GetRecord(ctx, rec.ID)
	var nf *domain.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, rec.ID, nf.ID)
}

func mustSchema(t *testing.T, category Category) attribute.Schema {
	t.Helper()
	schema, err := attribute.DefaultRegistry().Schema(category)
	require.NoError(t, err)
	return schema
}
