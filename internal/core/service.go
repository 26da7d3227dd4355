// Package core hosts the server-side record service: transactional CRUD over
// a PersistentStore with schema validation, rules, and observability hooks.
package core

import (
	"context"
	"fmt"
	"time"

	"fpoadmin/internal/infra/persistence/memory"
	"fpoadmin/pkg/domain"
	"fpoadmin/pkg/domain/attribute"
)

// Service operation names reported to loggers, metrics, tracers and audit.
const (
	OpCreateRecord = "create_record"
	OpUpdateRecord = "update_record"
	OpDeleteRecord = "delete_record"
	OpGetRecord    = "get_record"
	OpListRecords  = "list_records"
)

type operationMetadata struct {
	entity domain.EntityType
	action domain.Action
}

var auditedOperations = map[string]operationMetadata{
	OpCreateRecord: {entity: domain.EntityRecord, action: domain.ActionCreate},
	OpUpdateRecord: {entity: domain.EntityRecord, action: domain.ActionUpdate},
	OpDeleteRecord: {entity: domain.EntityRecord, action: domain.ActionDelete},
}

// Service exposes transactional record operations.
type Service struct {
	store   PersistentStore
	logger  Logger
	audit   AuditRecorder
	metrics MetricsRecorder
	tracer  Tracer
	clock   Clock
}

// NewService constructs a service backed by store.
func NewService(store PersistentStore, opts ...Option) *Service {
	svc := &Service{
		store:   store,
		logger:  noopLogger{},
		audit:   noopAuditRecorder{},
		metrics: noopMetricsRecorder{},
		tracer:  noopTracer{},
		clock:   systemClock{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// NewInMemoryService creates a service over a fresh in-memory store using the
// default schema registry.
func NewInMemoryService(engine *RulesEngine, opts ...Option) *Service {
	return NewService(memory.NewStore(engine, nil), opts...)
}

// Store returns the underlying store.
func (s *Service) Store() PersistentStore {
	return s.store
}

// Registry returns the schema registry used for validation.
func (s *Service) Registry() *attribute.Registry {
	if reg := s.store.Registry(); reg != nil {
		return reg
	}
	return attribute.DefaultRegistry()
}

// CreateRecord validates details against the category schema and persists a
// new record under parentID.
func (s *Service) CreateRecord(ctx context.Context, category Category, parentID string, details Bag) (Record, Result, error) {
	var (
		created Record
		res     Result
	)
	err := s.run(ctx, OpCreateRecord, func(ctx context.Context) (string, error) {
		if parentID == "" {
			return "", fmt.Errorf("%w: parent_id is required", domain.ErrMalformedChangeSet)
		}
		canonical, err := s.validate(category, details)
		if err != nil {
			return "", err
		}
		category = canonical
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			created, err = tx.CreateRecord(Record{
				ParentID:   parentID,
				Category:   category,
				Attributes: details.Clone(),
			})
			return err
		})
		return created.ID, err
	})
	return created, res, err
}

// ApplyChangeSet merges the changed fields of cs into the stored attributes
// of record id. Fields absent from the change set keep their stored values.
// The identifiers carried by cs must match the stored record.
func (s *Service) ApplyChangeSet(ctx context.Context, id string, cs ChangeSet) (Record, Result, error) {
	var (
		updated Record
		res     Result
	)
	err := s.run(ctx, OpUpdateRecord, func(ctx context.Context) (string, error) {
		if rid := cs.RecordID(); rid != "" && rid != id {
			return id, fmt.Errorf("%w: change set targets %q, not %q", domain.ErrMalformedChangeSet, rid, id)
		}
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			var err error
			updated, err = tx.UpdateRecord(id, func(r *Record) error {
				if pid := cs.ParentID(); pid != "" && pid != r.ParentID {
					return fmt.Errorf("%w: parent_id %q does not own record %q", domain.ErrMalformedChangeSet, pid, id)
				}
				r.Attributes.Merge(cs.ChangedFields)
				_, err := s.validate(r.Category, r.Attributes)
				return err
			})
			return err
		})
		return id, err
	})
	return updated, res, err
}

// GetRecord returns the record stored under id.
func (s *Service) GetRecord(ctx context.Context, id string) (Record, error) {
	var rec Record
	err := s.run(ctx, OpGetRecord, func(context.Context) (string, error) {
		var ok bool
		rec, ok = s.store.GetRecord(id)
		if !ok {
			return id, &domain.NotFoundError{Entity: domain.EntityRecord, ID: id}
		}
		return id, nil
	})
	return rec, err
}

// ListRecords returns the records owned by parentID. An empty parentID lists
// every record.
func (s *Service) ListRecords(ctx context.Context, parentID string) ([]Record, error) {
	var records []Record
	err := s.run(ctx, OpListRecords, func(context.Context) (string, error) {
		records = s.store.ListRecords(parentID)
		return parentID, nil
	})
	return records, err
}

// DeleteRecord removes the record stored under id.
func (s *Service) DeleteRecord(ctx context.Context, id string) (Result, error) {
	var res Result
	err := s.run(ctx, OpDeleteRecord, func(ctx context.Context) (string, error) {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			return tx.DeleteRecord(id)
		})
		return id, err
	})
	return res, err
}

// validate checks details against the schema of category and returns the
// canonical category tag.
func (s *Service) validate(category Category, details Bag) (Category, error) {
	schema, err := s.Registry().Schema(category)
	if err != nil {
		return "", err
	}
	if violations := schema.Validate(details); len(violations) > 0 {
		return "", &attribute.ValidationError{Category: schema.Category, Violations: violations}
	}
	return schema.Category, nil
}

func (s *Service) run(ctx context.Context, op string, fn func(context.Context) (string, error)) error {
	started := time.Now()
	ctx, span := s.tracer.Start(ctx, op)
	entityID, err := fn(ctx)
	duration := time.Since(started)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, duration)
	if err != nil {
		s.logger.Warn("service operation failed", "operation", op, "entity_id", entityID, "error", err)
		s.recordAuditError(ctx, op, entityID, duration, err)
		return err
	}
	s.logger.Debug("service operation completed", "operation", op, "entity_id", entityID, "duration", duration)
	s.recordAuditSuccess(ctx, op, entityID, duration)
	return nil
}

func (s *Service) recordAuditSuccess(ctx context.Context, op, entityID string, duration time.Duration) {
	s.recordAudit(ctx, op, entityID, duration, nil)
}

func (s *Service) recordAuditError(ctx context.Context, op, entityID string, duration time.Duration, err error) {
	s.recordAudit(ctx, op, entityID, duration, err)
}

func (s *Service) recordAudit(ctx context.Context, op, entityID string, duration time.Duration, err error) {
	meta, ok := auditedOperations[op]
	if !ok {
		return
	}
	entry := AuditEntry{
		Operation: op,
		Entity:    meta.entity,
		Action:    meta.action,
		EntityID:  entityID,
		Status:    AuditStatusSuccess,
		Duration:  duration,
		Timestamp: s.clock.Now(),
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
	}
	s.audit.Record(ctx, entry)
}
