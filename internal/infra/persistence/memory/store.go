// Package memory provides an in-memory implementation of the core persistence
// store used for tests and ephemeral environments.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"fpoadmin/pkg/domain"
	"fpoadmin/pkg/domain/attribute"
)

// Compile-time contract assertions ensuring memory.Store adheres to the domain persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Record aliases domain.Record for in-memory persistence operations.
	Record = domain.Record
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

// CommitHook runs after rules pass and before a transaction's state becomes
// visible. Returning an error aborts the commit.
type CommitHook func(ctx context.Context, changes []Change) error

type memoryState struct {
	records map[string]Record
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Records map[string]Record `json:"records"`
}

func newMemoryState() memoryState {
	return memoryState{records: make(map[string]Record)}
}

func (s memoryState) clone() memoryState {
	out := memoryState{records: make(map[string]Record, len(s.records))}
	for k, v := range s.records {
		out.records[k] = v.Clone()
	}
	return out
}

func (s memoryState) list(parentID string) []Record {
	out := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		if parentID != "" && r.ParentID != parentID {
			continue
		}
		out = append(out, r.Clone())
	}
	sortRecords(out)
	return out
}

// sortRecords orders by creation time with the ID as tie breaker so listings
// are stable across backends.
func sortRecords(records []Record) {
	sort.Slice(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.Before(records[j].CreatedAt)
		}
		return records[i].ID < records[j].ID
	})
}

// Store provides an in-memory transactional store for facility records.
type Store struct {
	mu       sync.RWMutex
	state    memoryState
	engine   *RulesEngine
	registry *attribute.Registry
	nowFn    func() time.Time
	onCommit CommitHook
}

// NewStore constructs an in-memory store backed by the provided rules engine
// and schema registry. A nil registry falls back to the built-in categories.
func NewStore(engine *RulesEngine, registry *attribute.Registry) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	if registry == nil {
		registry = attribute.DefaultRegistry()
	}
	return &Store{
		state:    newMemoryState(),
		engine:   engine,
		registry: registry,
		nowFn:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) newID() string {
	return uuid.NewString()
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := Snapshot{Records: make(map[string]Record, len(s.state.records))}
	for k, v := range s.state.records {
		out.Records[k] = v.Clone()
	}
	return out
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := newMemoryState()
	for k, v := range snapshot.Records {
		if v.ID == "" {
			v.ID = k
		}
		state.records[k] = v.Clone()
	}
	s.state = state
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// Registry returns the schema registry records are validated against.
func (s *Store) Registry() *attribute.Registry {
	return s.registry
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// SetNowFunc replaces the time provider.
func (s *Store) SetNowFunc(fn func() time.Time) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFn = fn
}

// SetCommitHook installs a hook invoked under the store lock for every
// transaction that passed rule evaluation.
func (s *Store) SetCommitHook(hook CommitHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onCommit = hook
}

// transaction represents a mutation set applied to the store state.
type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

// transactionView exposes a read-only snapshot of the transactional state to rules.
type transactionView struct {
	state    *memoryState
	registry *attribute.Registry
}

func newTransactionView(state *memoryState, registry *attribute.Registry) TransactionView {
	return transactionView{state: state, registry: registry}
}

// ListRecords returns the records of parentID, or every record when empty.
func (v transactionView) ListRecords(parentID string) []Record {
	return v.state.list(parentID)
}

// FindRecord looks a record up by ID.
func (v transactionView) FindRecord(id string) (Record, bool) {
	r, ok := v.state.records[id]
	if !ok {
		return Record{}, false
	}
	return r.Clone(), true
}

func (v transactionView) Registry() *attribute.Registry {
	return v.registry
}

// RunInTransaction executes fn within a transactional copy of the store state.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state, s.registry)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	if s.onCommit != nil && len(tx.changes) > 0 {
		if err := s.onCommit(ctx, tx.changes); err != nil {
			return result, fmt.Errorf("commit: %w", err)
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	view := newTransactionView(&snapshot, s.registry)
	return fn(view)
}

// GetRecord returns a record by ID.
func (s *Store) GetRecord(id string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.state.records[id]
	if !ok {
		return Record{}, false
	}
	return r.Clone(), true
}

// ListRecords returns the records of parentID, or every record when empty.
func (s *Store) ListRecords(parentID string) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.list(parentID)
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state, tx.store.registry)
}

// FindRecord exposes record lookup within the transaction scope.
func (tx *transaction) FindRecord(id string) (Record, bool) {
	r, ok := tx.state.records[id]
	if !ok {
		return Record{}, false
	}
	return r.Clone(), true
}

// CreateRecord stores a new record within the transaction.
func (tx *transaction) CreateRecord(r Record) (Record, error) {
	if r.ID == "" {
		r.ID = tx.store.newID()
	}
	if _, exists := tx.state.records[r.ID]; exists {
		return Record{}, fmt.Errorf("record %q already exists", r.ID)
	}
	r.CreatedAt = tx.now
	r.UpdatedAt = tx.now
	if r.Attributes.Len() == 0 {
		if _, opaque := r.Attributes.Opaque(); !opaque {
			r.Attributes = attribute.NewBag()
		}
	}
	tx.state.records[r.ID] = r.Clone()
	tx.recordChange(Change{Entity: domain.EntityRecord, Action: domain.ActionCreate, After: r.Clone()})
	return r.Clone(), nil
}

// UpdateRecord mutates a record using the provided mutator function.
func (tx *transaction) UpdateRecord(id string, mutator func(*Record) error) (Record, error) {
	current, ok := tx.state.records[id]
	if !ok {
		return Record{}, &domain.NotFoundError{Entity: domain.EntityRecord, ID: id}
	}
	before := current.Clone()
	current = current.Clone()
	if err := mutator(&current); err != nil {
		return Record{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.records[id] = current.Clone()
	tx.recordChange(Change{Entity: domain.EntityRecord, Action: domain.ActionUpdate, Before: before, After: current.Clone()})
	return current.Clone(), nil
}

// DeleteRecord removes a record from the transaction state.
func (tx *transaction) DeleteRecord(id string) error {
	current, ok := tx.state.records[id]
	if !ok {
		return &domain.NotFoundError{Entity: domain.EntityRecord, ID: id}
	}
	delete(tx.state.records, id)
	tx.recordChange(Change{Entity: domain.EntityRecord, Action: domain.ActionDelete, Before: current.Clone()})
	return nil
}
