// Package gateway provides domain.Gateway implementations used by editing
// sessions: an in-process gateway over core.Service, an HTTP client for the
// REST API, and a list-caching decorator.
package gateway

import (
	"context"

	"fpoadmin/internal/core"
	"fpoadmin/pkg/domain"
	"fpoadmin/pkg/domain/attribute"
)

// Local calls a core.Service in the same process.
type Local struct {
	svc *core.Service
}

var _ domain.Gateway = (*Local)(nil)

// NewLocal wraps svc.
func NewLocal(svc *core.Service) *Local {
	return &Local{svc: svc}
}

// Create implements domain.Gateway.
func (l *Local) Create(ctx context.Context, category attribute.Category, parentID string, details attribute.Bag) (string, error) {
	rec, _, err := l.svc.CreateRecord(ctx, category, parentID, details)
	if err != nil {
		return "", err
	}
	return rec.ID, nil
}

// Update implements domain.Gateway.
func (l *Local) Update(ctx context.Context, recordID string, changes domain.ChangeSet) error {
	_, _, err := l.svc.ApplyChangeSet(ctx, recordID, changes)
	return err
}

// List implements domain.Gateway.
func (l *Local) List(ctx context.Context, parentID string) ([]domain.Record, error) {
	return l.svc.ListRecords(ctx, parentID)
}

// Delete implements domain.Gateway.
func (l *Local) Delete(ctx context.Context, recordID string) error {
	_, err := l.svc.DeleteRecord(ctx, recordID)
	return err
}
