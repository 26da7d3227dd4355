package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"fpoadmin/pkg/domain"
	"fpoadmin/pkg/domain/attribute"
)

const recordsTable = "facility_records"

func godown(parentID string) domain.Record {
	return domain.Record{
		ParentID:   parentID,
		Category:   attribute.ShopFacility,
		Attributes: attribute.BagOf("name", "Godown", "type", "godown", "area_sq_ft", 1200),
	}
}

func TestSQLiteStorePersistAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := NewStore(path, domain.DefaultRulesEngine(), nil)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	ctx := context.Background()

	var keep, drop string
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		a, err := tx.CreateRecord(godown("fpo-1"))
		if err != nil {
			return err
		}
		b, err := tx.CreateRecord(godown("fpo-1"))
		keep, drop = a.ID, b.ID
		return err
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, err := tx.UpdateRecord(keep, func(r *domain.Record) error {
			r.Attributes.Set("status", "available")
			return nil
		}); err != nil {
			return err
		}
		return tx.DeleteRecord(drop)
	}); err != nil {
		t.Fatalf("update/delete: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reloaded, err := NewStore(path, domain.DefaultRulesEngine(), nil)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	t.Cleanup(func() { _ = reloaded.Close() })
	records := reloaded.ListRecords("fpo-1")
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	got := records[0]
	if got.ID != keep || got.Category != attribute.ShopFacility {
		t.Fatalf("unexpected record %+v", got)
	}
	if v, _ := got.Attributes.Get("status"); v != "available" {
		t.Fatalf("expected persisted status, got %v", v)
	}
	if keys := got.Attributes.Keys(); len(keys) != 4 || keys[0] != "name" || keys[3] != "status" {
		t.Fatalf("attribute order lost: %v", keys)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.Before(got.CreatedAt) {
		t.Fatalf("timestamps not restored: %v %v", got.CreatedAt, got.UpdatedAt)
	}
}

func TestSQLiteStoreAppliesMigrations(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "state.db"), nil, nil)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	var tableName string
	if err := store.DB().QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name= ?", recordsTable).Scan(&tableName); err != nil {
		t.Fatalf("lookup records table: %v", err)
	}
	if tableName != recordsTable {
		t.Fatalf("expected %s table, got %s", recordsTable, tableName)
	}
	if store.Path() == "" {
		t.Fatalf("expected path")
	}
}

func TestSQLiteStoreRejectedTransactionWritesNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := NewStore(path, domain.DefaultRulesEngine(), nil)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		rec := godown("fpo-1")
		rec.Attributes.Delete("type")
		_, err := tx.CreateRecord(rec)
		return err
	})
	var violation domain.RuleViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected rule violation, got %v", err)
	}
	var count int
	if err := store.DB().QueryRow("SELECT COUNT(*) FROM " + recordsTable).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no rows, got %d", count)
	}
}
