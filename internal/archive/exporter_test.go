package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"fpoadmin/internal/blob/core"
	"fpoadmin/internal/infra/blob/memory"
	"fpoadmin/internal/infra/blob/s3"
	"fpoadmin/pkg/domain"
	"fpoadmin/pkg/domain/attribute"
)

type staticLister struct {
	records map[string][]domain.Record
	fail    map[string]error
	calls   atomic.Int32
}

func (s *staticLister) List(_ context.Context, parentID string) ([]domain.Record, error) {
	s.calls.Add(1)
	if err := s.fail[parentID]; err != nil {
		return nil, err
	}
	return s.records[parentID], nil
}

func sampleRecords() map[string][]domain.Record {
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return map[string][]domain.Record{
		"org-1": {
			{
				Base:       domain.Base{ID: "r2", CreatedAt: created},
				ParentID:   "org-1",
				Category:   attribute.OfficeEquipment,
				Attributes: attribute.BagOf("name", "Desk", "quantity", 2.0, "condition", "good", "is_functional", true, "legacy_code", "D-17"),
			},
			{
				Base:       domain.Base{ID: "r1", CreatedAt: created},
				ParentID:   "org-1",
				Category:   attribute.ShopFacility,
				Attributes: attribute.BagOf("name", "Village shop", "type", "shop", "area_sq_ft", 120),
			},
		},
		"org-2": {},
	}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestExportWritesSnapshotsAndManifest(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	src := &staticLister{records: sampleRecords()}
	now := time.Date(2026, 4, 2, 10, 30, 0, 0, time.UTC)
	exp := NewExporter(src, store, WithWorkers(2), WithClock(fixedClock(now)))

	m, err := exp.Export(ctx, []string{"org-1", "org-2", "org-1", " "})
	require.NoError(t, err)
	assert.Equal(t, "20260402T103000.000Z", m.Snapshot)
	require.Len(t, m.Organizations, 2)
	assert.Equal(t, "org-1", m.Organizations[0].ParentID)
	assert.Equal(t, 2, m.Organizations[0].Records)
	assert.Len(t, m.Organizations[0].Objects, 2)
	assert.Equal(t, 0, m.Organizations[1].Records)
	assert.EqualValues(t, 2, src.calls.Load())

	_, rc, err := store.Get(ctx, "organizations/org-1/20260402T103000.000Z/records.json")
	require.NoError(t, err)
	raw, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	var snap Snapshot
	require.NoError(t, json.Unmarshal(raw, &snap))
	require.Len(t, snap.Records, 2)
	assert.Equal(t, attribute.OfficeEquipment, snap.Records[0].Category)
	assert.Equal(t, attribute.ShopFacility, snap.Records[1].Category)

	_, err = store.Head(ctx, "manifests/20260402T103000.000Z.json")
	require.NoError(t, err)

	_, rc, err = store.Get(ctx, "organizations/org-1/20260402T103000.000Z/records.xlsx")
	require.NoError(t, err)
	wb, err := excelize.OpenReader(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	defer func() { _ = wb.Close() }()

	assert.Equal(t, []string{"activity_facility", "office_equipment", "shop_facility"}, wb.GetSheetList())
	rows, err := wb.GetRows("office_equipment")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"id", "parent_id", "created_at", "updated_at", "name", "quantity", "condition", "is_functional", "remarks", "extra"}, rows[0])
	assert.Equal(t, "r2", rows[1][0])
	assert.Equal(t, "Desk", rows[1][4])
	assert.Equal(t, "2", rows[1][5])
	assert.Equal(t, `{"legacy_code":"D-17"}`, rows[1][9])

	rows, err = wb.GetRows("activity_facility")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestExportRecordsPerOrganizationFailures(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	boom := errors.New("backend unavailable")
	src := &staticLister{
		records: sampleRecords(),
		fail: map[string]error{
			"org-2": boom,
			"org-3": &domain.NotFoundError{Entity: domain.EntityRecord, ID: "org-3"},
		},
	}
	exp := NewExporter(src, store, WithClock(fixedClock(time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC))))

	m, err := exp.Export(ctx, []string{"org-1", "org-2", "org-3"})
	require.ErrorIs(t, err, boom)
	assert.Empty(t, m.Organizations[0].Error)
	assert.Contains(t, m.Organizations[1].Error, "backend unavailable")
	assert.Empty(t, m.Organizations[2].Error)

	_, err = store.Head(ctx, "manifests/"+m.Snapshot+".json")
	assert.NoError(t, err)

	_, err = exp.Export(ctx, nil)
	assert.Error(t, err)
}

type panickingLister struct {
	*staticLister
	panicFor string
}

func (p *panickingLister) List(ctx context.Context, parentID string) ([]domain.Record, error) {
	if parentID == p.panicFor {
		panic("lister exploded")
	}
	return p.staticLister.List(ctx, parentID)
}

func TestExportMarksPanickedOrganizationFailed(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	src := &panickingLister{staticLister: &staticLister{records: sampleRecords()}, panicFor: "org-2"}
	exp := NewExporter(src, store, WithClock(fixedClock(time.Date(2026, 4, 3, 0, 0, 0, 0, time.UTC))))

	m, err := exp.Export(ctx, []string{"org-1", "org-2"})
	require.ErrorIs(t, err, ErrIncomplete)
	assert.Empty(t, m.Organizations[0].Error)
	assert.Equal(t, "org-2", m.Organizations[1].ParentID)
	assert.Equal(t, ErrIncomplete.Error(), m.Organizations[1].Error)

	_, rc, err := store.Get(ctx, "manifests/"+m.Snapshot+".json")
	require.NoError(t, err)
	raw, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	var stored Manifest
	require.NoError(t, json.Unmarshal(raw, &stored))
	require.Len(t, stored.Organizations, 2)
	assert.NotEmpty(t, stored.Organizations[1].Error)
}

func TestExportPresignsWhenSupported(t *testing.T) {
	ctx := context.Background()
	store := s3.NewFake("archive", 0)
	exp := NewExporter(&staticLister{records: sampleRecords()}, store)

	m, err := exp.Export(ctx, []string{"org-1"})
	require.NoError(t, err)
	require.Len(t, m.Organizations[0].Objects, 2)
	for _, obj := range m.Organizations[0].Objects {
		assert.Contains(t, obj.URL, "X-Amz-Signature")
	}
}

func TestPruneKeepsNewestSnapshots(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	src := &staticLister{records: sampleRecords()}
	base := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	for day := range 3 {
		exp := NewExporter(src, store, WithClock(fixedClock(base.AddDate(0, 0, day))))
		_, err := exp.Export(ctx, []string{"org-1"})
		require.NoError(t, err)
	}
	exp := NewExporter(src, store)

	snaps, err := exp.Snapshots(ctx, "org-1")
	require.NoError(t, err)
	require.Len(t, snaps, 3)

	removed, err := exp.Prune(ctx, "org-1", 1)
	require.NoError(t, err)
	assert.Equal(t, 4, removed)

	snaps, err = exp.Snapshots(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"20260403T000000.000Z"}, snaps)

	removed, err = exp.Prune(ctx, "org-1", 5)
	require.NoError(t, err)
	assert.Zero(t, removed)

	_, err = exp.Prune(ctx, "org-1", -1)
	assert.Error(t, err)
}

func TestWriteXLSXOpaqueDetails(t *testing.T) {
	var buf bytes.Buffer
	rec := domain.Record{
		Base:       domain.Base{ID: "r9"},
		ParentID:   "org-1",
		Category:   attribute.ActivityFacility,
		Attributes: attribute.OpaqueBag("{broken"),
	}
	require.NoError(t, WriteXLSX(&buf, attribute.DefaultRegistry(), []domain.Record{rec}))

	wb, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer func() { _ = wb.Close() }()
	rows, err := wb.GetRows("activity_facility")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, `{"details":"{broken"}`, rows[1][len(rows[1])-1])
}

var _ core.Store = memory.New()
