// Package archive exports organization records to the blob store as JSON
// and XLSX snapshots.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"fpoadmin/internal/blob/core"
	"fpoadmin/pkg/domain"
	"fpoadmin/pkg/domain/attribute"
)

const (
	snapshotLayout = "20060102T150405.000Z"
	jsonName       = "records.json"
	xlsxName       = "records.xlsx"
	manifestPrefix = "manifests/"
	contentXLSX    = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// ErrIncomplete marks an organization whose export task never finished.
var ErrIncomplete = errors.New("archive: export did not complete")

// Lister reads the records of one organization. domain.Gateway satisfies it.
type Lister interface {
	List(ctx context.Context, parentID string) ([]domain.Record, error)
}

// Logger is the structured logger used by the exporter.
type Logger interface {
	Info(msg string, kv ...any)
	Error(msg string, kv ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Snapshot is the JSON document written per organization.
type Snapshot struct {
	ParentID    string          `json:"parent_id"`
	GeneratedAt time.Time       `json:"generated_at"`
	Records     []domain.Record `json:"records"`
}

// OrgExport reports the outcome for one organization.
type OrgExport struct {
	ParentID string      `json:"parent_id"`
	Records  int         `json:"records"`
	Objects  []core.Info `json:"objects,omitempty"`
	Error    string      `json:"error,omitempty"`
}

// Manifest summarizes one export run.
type Manifest struct {
	Snapshot      string      `json:"snapshot"`
	GeneratedAt   time.Time   `json:"generated_at"`
	Organizations []OrgExport `json:"organizations"`
}

// Exporter writes snapshots using a bounded worker pool.
type Exporter struct {
	source   Lister
	registry *attribute.Registry
	store    core.Store
	workers  int
	logger   Logger
	now      func() time.Time
}

// Option customizes an Exporter.
type Option func(*Exporter)

// WithWorkers bounds the number of organizations exported concurrently.
func WithWorkers(n int) Option {
	return func(e *Exporter) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l Logger) Option {
	return func(e *Exporter) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithRegistry sets the schema registry used for XLSX columns.
func WithRegistry(r *attribute.Registry) Option {
	return func(e *Exporter) {
		if r != nil {
			e.registry = r
		}
	}
}

// WithClock overrides the snapshot clock.
func WithClock(now func() time.Time) Option {
	return func(e *Exporter) {
		if now != nil {
			e.now = now
		}
	}
}

// NewExporter reads from source and writes to store.
func NewExporter(source Lister, store core.Store, opts ...Option) *Exporter {
	e := &Exporter{
		source:   source,
		registry: attribute.DefaultRegistry(),
		store:    store,
		workers:  4,
		logger:   noopLogger{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Export snapshots every organization in parentIDs. Failures of individual
// organizations are recorded in the manifest and joined into the returned
// error; the manifest is written whenever at least one organization succeeded.
func (e *Exporter) Export(ctx context.Context, parentIDs []string) (Manifest, error) {
	ids := uniqueIDs(parentIDs)
	if len(ids) == 0 {
		return Manifest{}, errors.New("archive: no organizations to export")
	}
	generated := e.now().UTC()
	m := Manifest{
		Snapshot:      generated.Format(snapshotLayout),
		GeneratedAt:   generated,
		Organizations: make([]OrgExport, len(ids)),
	}

	pool, err := ants.NewPool(min(e.workers, len(ids)), ants.WithPanicHandler(func(p any) {
		e.logger.Error("archive worker panic", "panic", p)
	}))
	if err != nil {
		return Manifest{}, fmt.Errorf("archive: worker pool: %w", err)
	}
	defer pool.Release()

	var wg sync.WaitGroup
	errs := make([]error, len(ids))
	for i, id := range ids {
		// Entries stay failed until their task finishes.
		m.Organizations[i] = OrgExport{ParentID: id, Error: ErrIncomplete.Error()}
		errs[i] = fmt.Errorf("archive %s: %w", id, ErrIncomplete)
		wg.Add(1)
		task := func() {
			defer wg.Done()
			out, err := e.exportOne(ctx, id, m.Snapshot, generated)
			out.ParentID = id
			errs[i] = nil
			if err != nil {
				out.Error = err.Error()
				errs[i] = fmt.Errorf("archive %s: %w", id, err)
			}
			m.Organizations[i] = out
		}
		if err := pool.Submit(task); err != nil {
			wg.Done()
			m.Organizations[i].Error = err.Error()
			errs[i] = fmt.Errorf("archive %s: %w", id, err)
		}
	}
	wg.Wait()

	exportErr := errors.Join(errs...)
	succeeded := 0
	for _, o := range m.Organizations {
		if o.Error == "" {
			succeeded++
		}
	}
	if succeeded > 0 {
		if err := e.putJSON(ctx, manifestPrefix+m.Snapshot+".json", m); err != nil {
			exportErr = errors.Join(exportErr, fmt.Errorf("archive manifest: %w", err))
		}
	}
	e.logger.Info("archive export finished", "snapshot", m.Snapshot, "organizations", len(ids), "succeeded", succeeded)
	return m, exportErr
}

func (e *Exporter) exportOne(ctx context.Context, parentID, snapshot string, generated time.Time) (OrgExport, error) {
	if err := ctx.Err(); err != nil {
		return OrgExport{}, err
	}
	records, err := e.source.List(ctx, parentID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return OrgExport{}, err
	}
	if records == nil {
		records = []domain.Record{}
	}
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Category != records[j].Category {
			return records[i].Category < records[j].Category
		}
		return records[i].ID < records[j].ID
	})

	out := OrgExport{ParentID: parentID, Records: len(records)}
	prefix := snapshotPrefix(parentID, snapshot)

	snap := Snapshot{ParentID: parentID, GeneratedAt: generated, Records: records}
	if err := e.putJSON(ctx, prefix+jsonName, snap); err != nil {
		return out, err
	}
	var buf bytes.Buffer
	if err := WriteXLSX(&buf, e.registry, records); err != nil {
		return out, fmt.Errorf("render xlsx: %w", err)
	}
	if _, err := e.store.Put(ctx, prefix+xlsxName, &buf, core.PutOptions{
		ContentType: contentXLSX,
		Metadata:    map[string]string{"parent_id": parentID, "records": fmt.Sprint(len(records))},
	}); err != nil {
		return out, err
	}
	for _, name := range []string{jsonName, xlsxName} {
		info, err := e.store.Head(ctx, prefix+name)
		if err != nil {
			return out, err
		}
		if u, err := e.store.PresignURL(ctx, info.Key, core.SignedURLOptions{Expiry: 24 * time.Hour}); err == nil {
			info.URL = u
		} else if !errors.Is(err, core.ErrUnsupported) {
			return out, err
		}
		out.Objects = append(out.Objects, info)
	}
	e.logger.Info("archive organization exported", "parent_id", parentID, "records", len(records), "snapshot", snapshot)
	return out, nil
}

func (e *Exporter) putJSON(ctx context.Context, key string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = e.store.Put(ctx, key, bytes.NewReader(b), core.PutOptions{ContentType: "application/json"})
	return err
}

// Snapshots lists the snapshot names stored for parentID, oldest first.
func (e *Exporter) Snapshots(ctx context.Context, parentID string) ([]string, error) {
	infos, err := e.store.List(ctx, orgPrefix(parentID))
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var out []string
	for _, info := range infos {
		rest := strings.TrimPrefix(info.Key, orgPrefix(parentID))
		name, _, ok := strings.Cut(rest, "/")
		if !ok {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// Prune deletes all but the newest keep snapshots of parentID and returns
// the number of objects removed.
func (e *Exporter) Prune(ctx context.Context, parentID string, keep int) (int, error) {
	if keep < 0 {
		return 0, fmt.Errorf("archive: keep must not be negative, got %d", keep)
	}
	snapshots, err := e.Snapshots(ctx, parentID)
	if err != nil {
		return 0, err
	}
	if len(snapshots) <= keep {
		return 0, nil
	}
	removed := 0
	for _, name := range snapshots[:len(snapshots)-keep] {
		infos, err := e.store.List(ctx, snapshotPrefix(parentID, name))
		if err != nil {
			return removed, err
		}
		for _, info := range infos {
			ok, err := e.store.Delete(ctx, info.Key)
			if err != nil {
				return removed, err
			}
			if ok {
				removed++
			}
		}
	}
	e.logger.Info("archive pruned", "parent_id", parentID, "kept", keep, "removed_objects", removed)
	return removed, nil
}

func orgPrefix(parentID string) string {
	return "organizations/" + parentID + "/"
}

func snapshotPrefix(parentID, snapshot string) string {
	return path.Join("organizations", parentID, snapshot) + "/"
}

func uniqueIDs(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, id := range in {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
