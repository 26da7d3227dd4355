package domain

import (
	"context"

	"fpoadmin/pkg/domain/attribute"
)

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	CreateRecord(Record) (Record, error)
	UpdateRecord(id string, mutator func(*Record) error) (Record, error)
	DeleteRecord(id string) error
	FindRecord(id string) (Record, bool)
}

// TransactionView provides read-only access to snapshot data for rules.
type TransactionView interface {
	ListRecords(parentID string) []Record
	FindRecord(id string) (Record, bool)
	Registry() *attribute.Registry
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetRecord(id string) (Record, bool)
	ListRecords(parentID string) []Record
	Registry() *attribute.Registry
}

// Gateway persists facility records on behalf of an editing session. It is
// the only collaborator the editor talks to; implementations may be local or
// remote.
type Gateway interface {
	// Create stores a new record and returns the assigned identifier.
	Create(ctx context.Context, category attribute.Category, parentID string, details attribute.Bag) (string, error)
	// Update applies a change set as a merge patch of the record's attributes.
	Update(ctx context.Context, recordID string, changes ChangeSet) error
	// List returns the records owned by parentID.
	List(ctx context.Context, parentID string) ([]Record, error)
	// Delete removes a record permanently.
	Delete(ctx context.Context, recordID string) error
}
