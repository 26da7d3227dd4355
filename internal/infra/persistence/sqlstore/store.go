// Package sqlstore persists facility records to a SQL database while reusing
// the in-memory store for transactions and rule evaluation. Each committed
// transaction is written row by row inside the store lock, so the database
// never observes a state the rules engine rejected.
package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pressly/goose/v3"

	"fpoadmin/internal/infra/persistence/memory"
	"fpoadmin/pkg/domain"
	"fpoadmin/pkg/domain/attribute"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const recordsTable = "facility_records"

var recordColumns = []string{"id", "parent_id", "category", "details", "created_at", "updated_at"}

// Dialect captures the differences between supported SQL backends.
type Dialect struct {
	Name        string
	Goose       goose.Dialect
	Placeholder sq.PlaceholderFormat
}

var (
	// SQLite targets modernc.org/sqlite.
	SQLite = Dialect{Name: "sqlite", Goose: goose.DialectSQLite3, Placeholder: sq.Question}
	// Postgres targets the pgx database/sql driver.
	Postgres = Dialect{Name: "postgres", Goose: goose.DialectPostgres, Placeholder: sq.Dollar}
)

// Store embeds the memory store and mirrors its committed changes to SQL.
type Store struct {
	*memory.Store
	db      *sql.DB
	dialect Dialect
	builder sq.StatementBuilderType
}

// Open migrates db, hydrates a memory store from the records table and wires
// the commit hook that writes subsequent changes back.
func Open(ctx context.Context, db *sql.DB, dialect Dialect, engine *domain.RulesEngine, registry *attribute.Registry) (*Store, error) {
	if err := Migrate(ctx, db, dialect); err != nil {
		return nil, err
	}
	s := &Store{
		Store:   memory.NewStore(engine, registry),
		db:      db,
		dialect: dialect,
		builder: sq.StatementBuilder.PlaceholderFormat(dialect.Placeholder),
	}
	snapshot, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	s.ImportState(snapshot)
	s.SetCommitHook(s.persist)
	return s, nil
}

// Migrate applies the embedded goose migrations.
func Migrate(ctx context.Context, db *sql.DB, dialect Dialect) error {
	fsys, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("migrations fs: %w", err)
	}
	provider, err := goose.NewProvider(dialect.Goose, db, fsys)
	if err != nil {
		return fmt.Errorf("%s migrations: %w", dialect.Name, err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("%s migrate up: %w", dialect.Name, err)
	}
	return nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Dialect reports the backend dialect.
func (s *Store) Dialect() Dialect { return s.dialect }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) load(ctx context.Context) (memory.Snapshot, error) {
	query, args, err := s.builder.Select(recordColumns...).From(recordsTable).ToSql()
	if err != nil {
		return memory.Snapshot{}, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("select records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	snapshot := memory.Snapshot{Records: make(map[string]domain.Record)}
	for rows.Next() {
		var (
			rec                  domain.Record
			category, details    string
			createdAt, updatedAt string
		)
		if err := rows.Scan(&rec.ID, &rec.ParentID, &category, &details, &createdAt, &updatedAt); err != nil {
			return memory.Snapshot{}, fmt.Errorf("scan record: %w", err)
		}
		rec.Category = attribute.Category(category)
		rec.Attributes = attribute.DecodeDetails([]byte(details))
		if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return memory.Snapshot{}, fmt.Errorf("record %s created_at: %w", rec.ID, err)
		}
		if rec.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
			return memory.Snapshot{}, fmt.Errorf("record %s updated_at: %w", rec.ID, err)
		}
		snapshot.Records[rec.ID] = rec
	}
	if err := rows.Err(); err != nil {
		return memory.Snapshot{}, fmt.Errorf("iterate records: %w", err)
	}
	return snapshot, nil
}

func (s *Store) persist(ctx context.Context, changes []domain.Change) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	for _, change := range changes {
		if change.Entity != domain.EntityRecord {
			continue
		}
		stmt, err := s.statement(change)
		if err != nil {
			return err
		}
		query, args, err := stmt.ToSql()
		if err != nil {
			return fmt.Errorf("build %s: %w", change.Action, err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("%s record: %w", change.Action, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

func (s *Store) statement(change domain.Change) (sq.Sqlizer, error) {
	switch change.Action {
	case domain.ActionCreate:
		rec, ok := change.After.(domain.Record)
		if !ok {
			return nil, fmt.Errorf("create change carries %T", change.After)
		}
		details, err := json.Marshal(rec.Attributes)
		if err != nil {
			return nil, fmt.Errorf("encode details: %w", err)
		}
		return s.builder.Insert(recordsTable).Columns(recordColumns...).Values(
			rec.ID, rec.ParentID, string(rec.Category), string(details),
			formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt),
		), nil
	case domain.ActionUpdate:
		rec, ok := change.After.(domain.Record)
		if !ok {
			return nil, fmt.Errorf("update change carries %T", change.After)
		}
		details, err := json.Marshal(rec.Attributes)
		if err != nil {
			return nil, fmt.Errorf("encode details: %w", err)
		}
		return s.builder.Update(recordsTable).
			Set("details", string(details)).
			Set("updated_at", formatTime(rec.UpdatedAt)).
			Where(sq.Eq{"id": rec.ID}), nil
	case domain.ActionDelete:
		rec, ok := change.Before.(domain.Record)
		if !ok {
			return nil, fmt.Errorf("delete change carries %T", change.Before)
		}
		return s.builder.Delete(recordsTable).Where(sq.Eq{"id": rec.ID}), nil
	default:
		return nil, fmt.Errorf("unsupported change action %q", change.Action)
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
