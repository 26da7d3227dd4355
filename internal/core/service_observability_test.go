package core

import (
	"bytes"
	"context"
	"expvar"
	"strings"
	"sync"
	"testing"
	"time"

	"fpoadmin/pkg/domain"
	"fpoadmin/pkg/domain/attribute"
)

type captureAuditRecorder struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (c *captureAuditRecorder) Record(_ context.Context, entry AuditEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entry)
}

func (c *captureAuditRecorder) has(op string, status AuditStatus, predicate func(AuditEntry) bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, entry := range c.entries {
		if entry.Operation == op && entry.Status == status {
			if predicate == nil || predicate(entry) {
				return true
			}
		}
	}
	return false
}

type metricsCall struct {
	op      string
	success bool
}

type captureMetricsRecorder struct {
	calls []metricsCall
}

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, _ time.Duration) {
	c.calls = append(c.calls, metricsCall{op: op, success: success})
}

func (c *captureMetricsRecorder) has(op string, success bool) bool {
	for _, call := range c.calls {
		if call.op == op && call.success == success {
			return true
		}
	}
	return false
}

type captureTracer struct {
	ended map[string][]error
}

func (c *captureTracer) Start(ctx context.Context, op string) (context.Context, TraceSpan) {
	return ctx, &captureSpan{tracer: c, op: op}
}

type captureSpan struct {
	tracer *captureTracer
	op     string
}

func (s *captureSpan) End(err error) {
	if s.tracer.ended == nil {
		s.tracer.ended = make(map[string][]error)
	}
	s.tracer.ended[s.op] = append(s.tracer.ended[s.op], err)
}

type captureLogger struct {
	noopLogger
	warnings []string
}

func (l *captureLogger) Warn(msg string, _ ...any) {
	l.warnings = append(l.warnings, msg)
}

func TestServiceObservabilityRecordLifecycle(t *testing.T) {
	ctx := context.Background()
	audit := &captureAuditRecorder{}
	metrics := &captureMetricsRecorder{}
	tracer := &captureTracer{}
	logger := &captureLogger{}

	svc := NewInMemoryService(NewDefaultRulesEngine(),
		WithAuditRecorder(audit),
		WithMetricsRecorder(metrics),
		WithTracer(tracer),
		WithLogger(logger),
	)

	rec, _, err := svc.CreateRecord(ctx, attribute.OfficeEquipment, "fpo-1", officeDesk())
	if err != nil {
		t.Fatalf("create record: %v", err)
	}
	if !audit.has(OpCreateRecord, AuditStatusSuccess, func(e AuditEntry) bool {
		return e.EntityID == rec.ID && e.Action == domain.ActionCreate && e.Entity == domain.EntityRecord
	}) {
		t.Fatalf("expected audit entry for create_record success")
	}

	cs := domain.ChangeSet{
		IdentifierFields: attribute.BagOf(domain.FieldID, rec.ID, domain.FieldParentID, "fpo-1"),
		ChangedFields:    attribute.BagOf("remarks", "moved to store room"),
	}
	if _, _, err := svc.ApplyChangeSet(ctx, rec.ID, cs); err != nil {
		t.Fatalf("apply change set: %v", err)
	}
	if !audit.has(OpUpdateRecord, AuditStatusSuccess, nil) {
		t.Fatalf("expected audit entry for update_record success")
	}

	if _, err := svc.DeleteRecord(ctx, "missing-record"); err == nil {
		t.Fatalf("expected delete error for missing id")
	}
	if !audit.has(OpDeleteRecord, AuditStatusError, func(e AuditEntry) bool { return e.Error != "" }) {
		t.Fatalf("expected audit error entry for delete_record")
	}
	if !metrics.has(OpDeleteRecord, false) {
		t.Fatalf("expected metrics entry for failed delete_record")
	}
	if errs := tracer.ended[OpDeleteRecord]; len(errs) != 1 || errs[0] == nil {
		t.Fatalf("expected failed span for delete_record, got %v", errs)
	}
	if len(logger.warnings) != 1 {
		t.Fatalf("expected one warning, got %v", logger.warnings)
	}

	if _, err := svc.ListRecords(ctx, "fpo-1"); err != nil {
		t.Fatalf("list: %v", err)
	}
	if !metrics.has(OpListRecords, true) {
		t.Fatalf("expected metrics entry for list_records")
	}
	if audit.has(OpListRecords, AuditStatusSuccess, nil) {
		t.Fatalf("reads must not be audited")
	}
}

func TestRecordAuditSuccessUsesMetadata(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC)
	recorder := &captureAuditRecorder{}
	svc := NewInMemoryService(NewDefaultRulesEngine(),
		WithAuditRecorder(recorder),
		WithClock(ClockFunc(func() time.Time { return fixed })),
	)

	duration := 42 * time.Millisecond
	svc.recordAuditSuccess(context.Background(), OpDeleteRecord, "rec-123", duration)

	if len(recorder.entries) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(recorder.entries))
	}
	entry := recorder.entries[0]
	if entry.Entity != domain.EntityRecord || entry.Action != domain.ActionDelete {
		t.Fatalf("unexpected metadata: %+v", entry)
	}
	if entry.EntityID != "rec-123" || entry.Duration != duration || !entry.Timestamp.Equal(fixed) {
		t.Fatalf("unexpected entry: %+v", entry)
	}
}

func TestRecordAuditSuccessIgnoresUnknownOperation(t *testing.T) {
	recorder := &captureAuditRecorder{}
	svc := NewInMemoryService(NewDefaultRulesEngine(), WithAuditRecorder(recorder))

	svc.recordAuditSuccess(context.Background(), "unknown_operation", "entity", time.Second)

	if len(recorder.entries) != 0 {
		t.Fatalf("expected no audit entries for unknown operation, got %d", len(recorder.entries))
	}
}

func TestNilOptionsKeepDefaults(t *testing.T) {
	svc := NewInMemoryService(nil, nil, WithLogger(nil), WithTracer(nil), WithMetricsRecorder(nil), WithAuditRecorder(nil), WithClock(nil))
	if _, _, err := svc.CreateRecord(context.Background(), attribute.OfficeEquipment, "fpo-1", officeDesk()); err != nil {
		t.Fatalf("create with defaults: %v", err)
	}
}

func TestNoopLogger(_ *testing.T) {
	logger := NoopLogger()
	logger.Debug("debug", "key", "value")
	logger.Info("info", "key", "value")
	logger.Warn("warn", "key", "value")
	logger.Error("error", "key", "value")
}

type lineLogger struct {
	noopLogger
	lines []string
	args  [][]any
}

func (l *lineLogger) Info(msg string, args ...any) {
	l.lines = append(l.lines, msg)
	l.args = append(l.args, args)
}

func TestLogAuditRecorder(t *testing.T) {
	logger := &lineLogger{}
	LogAuditRecorder{Logger: logger}.Record(context.Background(), AuditEntry{
		Operation: OpCreateRecord,
		EntityID:  "rec-1",
		Status:    AuditStatusError,
		Error:     "boom",
	})
	LogAuditRecorder{}.Record(context.Background(), AuditEntry{})

	if len(logger.lines) != 1 || logger.lines[0] != "audit" {
		t.Fatalf("unexpected lines %v", logger.lines)
	}
	args := logger.args[0]
	if args[len(args)-2] != "error" || args[len(args)-1] != "boom" {
		t.Fatalf("expected error field, got %v", args)
	}
}

func TestExpvarMetricsRecorderExports(t *testing.T) {
	recorder := NewExpvarMetricsRecorder("")
	if recorder.Name() == "" {
		t.Fatalf("expected recorder to have export name")
	}
	recorder.Observe(context.Background(), "test_op", true, 10*time.Millisecond)
	recorder.Observe(context.Background(), "test_op", false, 5*time.Millisecond)
	recorder.Observe(context.Background(), "", true, time.Millisecond)

	snapshot := recorder.Snapshot()
	if snapshot.DurationsMS["test_op"] != 15 {
		t.Fatalf("expected 15ms total, snapshot=%+v", snapshot)
	}
	if snapshot.Results["test_op"][statusSuccess] != 1 || snapshot.Results["test_op"][statusError] != 1 {
		t.Fatalf("unexpected results snapshot=%+v", snapshot)
	}
	if len(snapshot.Results) != 1 {
		t.Fatalf("empty operation must be ignored: %+v", snapshot.Results)
	}

	if v := expvar.Get(recorder.Name()); v == nil {
		t.Fatalf("expected expvar export to be registered")
	} else if !strings.Contains(v.String(), "test_op") {
		t.Fatalf("expected expvar output to contain operation: %s", v.String())
	}
}

func TestJSONTraceTracerExports(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)
	_, span := tracer.Start(context.Background(), "trace_op")
	span.End(nil)
	span.End(nil)

	_, failed := tracer.Start(context.Background(), "failing_op")
	failed.End(domain.ErrNetworkFailure)

	entries := tracer.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected two span entries, got %d", len(entries))
	}
	if entries[0].Operation != "trace_op" || entries[0].Status != statusSuccess {
		t.Fatalf("unexpected span entry: %+v", entries[0])
	}
	if entries[1].Status != statusError || entries[1].Error == "" {
		t.Fatalf("unexpected failed entry: %+v", entries[1])
	}
	if !strings.Contains(buf.String(), `"operation":"trace_op"`) {
		t.Fatalf("expected JSON output to contain operation: %q", buf.String())
	}
	if NewJSONTracer(nil).Entries() == nil {
		t.Fatalf("entries must be non-nil")
	}
}
