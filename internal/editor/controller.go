// Package editor implements the create/edit/submit state machine used to
// maintain one facility record at a time.
package editor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"fpoadmin/pkg/domain"
	"fpoadmin/pkg/domain/attribute"
)

// Controller misuse errors.
var (
	ErrNoDraft           = errors.New("editor: no active draft")
	ErrCategoryImmutable = errors.New("editor: category of a persisted record cannot change")
	ErrSubmitInProgress  = errors.New("editor: submit in progress")
	ErrNotPersisted      = errors.New("editor: record has no id")
)

// MessageNoChanges is sent to the notifier when an edit changed nothing.
const MessageNoChanges = "no changes to save"

// State is a controller state.
type State string

const (
	StateViewing    State = "viewing"
	StateCreating   State = "creating"
	StateEditing    State = "editing"
	StateSubmitting State = "submitting"
)

// Mode distinguishes drafts for new records from drafts of persisted ones.
type Mode string

const (
	ModeCreate Mode = "create"
	ModeEdit   Mode = "edit"
)

// Draft is the record being created or edited. Original is the frozen
// baseline of an edit and nil for creates.
type Draft struct {
	Mode     Mode
	Record   domain.Record
	Original *domain.Record
}

func (d Draft) clone() Draft {
	out := Draft{Mode: d.Mode, Record: d.Record.Clone()}
	if d.Original != nil {
		orig := d.Original.Clone()
		out.Original = &orig
	}
	return out
}

// OutcomeKind names what a successful submit did.
type OutcomeKind string

const (
	OutcomeCreated   OutcomeKind = "created"
	OutcomeUpdated   OutcomeKind = "updated"
	OutcomeNoChanges OutcomeKind = "no_changes"
)

// Outcome describes a successful submit.
type Outcome struct {
	Kind     OutcomeKind
	RecordID string
	Changes  domain.ChangeSet
}

// Controller drives a single draft through validation, diffing and
// persistence. It is safe for concurrent use; gateway calls run without the
// controller lock held.
type Controller struct {
	gateway  domain.Gateway
	registry *attribute.Registry
	notifier Notifier
	logger   Logger

	mu         sync.Mutex
	state      State
	resume     State
	draft      *Draft
	generation uint64
}

// New returns a controller in the viewing state.
func New(gateway domain.Gateway, opts ...Option) *Controller {
	c := &Controller{
		gateway:  gateway,
		registry: attribute.DefaultRegistry(),
		notifier: noopNotifier{},
		logger:   noopLogger{},
		state:    StateViewing,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// State reports the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Draft returns a copy of the active draft.
func (c *Controller) Draft() (Draft, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.draft == nil {
		return Draft{}, false
	}
	return c.draft.clone(), true
}

// StartCreate opens a draft for a new record seeded with the category defaults.
// An open draft is replaced.
func (c *Controller) StartCreate(parentID string, category attribute.Category) (Draft, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateSubmitting {
		return Draft{}, ErrSubmitInProgress
	}
	rec, err := domain.NewDraftRecord(c.registry, parentID, category)
	if err != nil {
		return Draft{}, err
	}
	c.open(&Draft{Mode: ModeCreate, Record: rec}, StateCreating)
	return c.draft.clone(), nil
}

// StartEdit opens a draft for existing and freezes a copy of it as the diff
// baseline. An open draft is replaced.
func (c *Controller) StartEdit(existing domain.Record) (Draft, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateSubmitting {
		return Draft{}, ErrSubmitInProgress
	}
	if existing.IsDraft() {
		return Draft{}, ErrNotPersisted
	}
	if _, err := c.registry.Schema(existing.Category); err != nil {
		return Draft{}, err
	}
	original := existing.Clone()
	c.open(&Draft{Mode: ModeEdit, Record: existing.Clone(), Original: &original}, StateEditing)
	return c.draft.clone(), nil
}

// SwitchCategory replaces the draft's category and resets its attributes to
// the new category's defaults. Only drafts of new records may switch.
func (c *Controller) SwitchCategory(category attribute.Category) (Draft, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.editableLocked(); err != nil {
		return Draft{}, err
	}
	if c.draft.Mode != ModeCreate {
		return Draft{}, ErrCategoryImmutable
	}
	schema, err := c.registry.Schema(category)
	if err != nil {
		return Draft{}, err
	}
	c.logger.Debug("editor category switched", "from", string(c.draft.Record.Category), "to", string(schema.Category))
	c.draft.Record.Category = schema.Category
	c.draft.Record.Attributes = schema.Defaults()
	return c.draft.clone(), nil
}

// SetAttributes replaces the draft's attributes with a copy of bag.
func (c *Controller) SetAttributes(bag attribute.Bag) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.editableLocked(); err != nil {
		return err
	}
	c.draft.Record.Attributes = bag.Clone()
	return nil
}

// SetField stores a single attribute on the draft.
func (c *Controller) SetField(name string, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.editableLocked(); err != nil {
		return err
	}
	c.draft.Record.Attributes.Set(name, value)
	return nil
}

// Cancel discards the active draft. A submit already dispatched still
// completes, but its result is not applied to the controller.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.draft == nil && c.state == StateViewing {
		return
	}
	c.generation++
	c.draft = nil
	c.transition(StateViewing)
}

// Submit validates the draft and persists it. Creates send the whole bag;
// edits send only the fields that changed. Validation failures return an
// *attribute.ValidationError and keep the draft open. Gateway failures
// restore the draft to its editable state.
func (c *Controller) Submit(ctx context.Context) (Outcome, error) {
	c.mu.Lock()
	if err := c.editableLocked(); err != nil {
		c.mu.Unlock()
		return Outcome{}, err
	}
	draft := c.draft.clone()
	schema, err := c.registry.Schema(draft.Record.Category)
	if err != nil {
		c.mu.Unlock()
		return Outcome{}, err
	}
	if violations := schema.Validate(draft.Record.Attributes); len(violations) > 0 {
		c.mu.Unlock()
		c.logger.Debug("editor draft rejected", "category", string(schema.Category), "violations", len(violations))
		return Outcome{}, &attribute.ValidationError{Category: schema.Category, Violations: violations}
	}

	var changes domain.ChangeSet
	if draft.Mode == ModeEdit {
		changes = domain.ComputeChangeSet(schema, *draft.Original, draft.Record)
		if changes.IsEmpty() {
			c.draft = nil
			c.transition(StateViewing)
			c.mu.Unlock()
			c.notifier.Notify(NoticeInfo, MessageNoChanges)
			return Outcome{Kind: OutcomeNoChanges, RecordID: draft.Original.ID, Changes: changes}, nil
		}
	}

	gen := c.generation
	c.resume = c.state
	c.transition(StateSubmitting)
	c.mu.Unlock()

	// The gateway call outlives caller cancellation; a submit that has been
	// dispatched always completes.
	outcome, err := c.dispatch(context.WithoutCancel(ctx), draft, changes)

	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		c.logger.Info("editor submit finished after draft was discarded", "mode", string(draft.Mode), "error", err)
		return outcome, err
	}
	if err != nil {
		c.transition(c.resume)
		c.mu.Unlock()
		c.logger.Warn("editor submit failed", "mode", string(draft.Mode), "error", err)
		c.notifier.Notify(NoticeError, fmt.Sprintf("could not save record: %v", err))
		return Outcome{}, err
	}
	c.draft = nil
	c.transition(StateViewing)
	c.mu.Unlock()
	c.notifier.Notify(NoticeSuccess, successMessage(outcome.Kind))
	return outcome, nil
}

func (c *Controller) dispatch(ctx context.Context, draft Draft, changes domain.ChangeSet) (Outcome, error) {
	rec := draft.Record
	if draft.Mode == ModeCreate {
		id, err := c.gateway.Create(ctx, rec.Category, rec.ParentID, rec.Attributes)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Kind: OutcomeCreated, RecordID: id}, nil
	}
	if err := c.gateway.Update(ctx, draft.Original.ID, changes); err != nil {
		return Outcome{}, err
	}
	return Outcome{Kind: OutcomeUpdated, RecordID: draft.Original.ID, Changes: changes}, nil
}

// Load lists the records of parentID. A not-found response is an empty list.
func (c *Controller) Load(ctx context.Context, parentID string) ([]domain.Record, error) {
	records, err := c.gateway.List(ctx, parentID)
	if errors.Is(err, domain.ErrNotFound) {
		return []domain.Record{}, nil
	}
	if err != nil {
		c.logger.Warn("editor list failed", "parent_id", parentID, "error", err)
		c.notifier.Notify(NoticeError, fmt.Sprintf("could not load records: %v", err))
		return nil, err
	}
	if records == nil {
		records = []domain.Record{}
	}
	return records, nil
}

// Delete removes a record. An edit draft of the same record is discarded.
func (c *Controller) Delete(ctx context.Context, recordID string) error {
	if err := c.gateway.Delete(ctx, recordID); err != nil {
		c.logger.Warn("editor delete failed", "record_id", recordID, "error", err)
		c.notifier.Notify(NoticeError, fmt.Sprintf("could not delete record: %v", err))
		return err
	}
	c.mu.Lock()
	if c.draft != nil && c.draft.Original != nil && c.draft.Original.ID == recordID {
		c.generation++
		c.draft = nil
		c.transition(StateViewing)
	}
	c.mu.Unlock()
	c.notifier.Notify(NoticeSuccess, "record deleted")
	return nil
}

func (c *Controller) open(d *Draft, state State) {
	if c.draft != nil {
		c.logger.Debug("editor draft replaced", "mode", string(c.draft.Mode))
	}
	c.generation++
	c.draft = d
	c.transition(state)
}

func (c *Controller) editableLocked() error {
	if c.state == StateSubmitting {
		return ErrSubmitInProgress
	}
	if c.draft == nil {
		return ErrNoDraft
	}
	return nil
}

func (c *Controller) transition(to State) {
	if c.state == to {
		return
	}
	c.logger.Debug("editor transition", "from", string(c.state), "to", string(to))
	c.state = to
}

func successMessage(kind OutcomeKind) string {
	if kind == OutcomeCreated {
		return "record created"
	}
	return "changes saved"
}
