package core

import (
	"context"
	"fmt"
	"io"

	"fpoadmin/internal/infra/persistence/memory"
	"fpoadmin/internal/infra/persistence/postgres"
	"fpoadmin/internal/infra/persistence/sqlite"
	"fpoadmin/pkg/domain/attribute"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// StorageOptions selects and configures a backend.
type StorageOptions struct {
	Driver      StorageDriver
	SQLitePath  string
	PostgresDSN string
}

// OpenPersistentStore opens the backend named by opts.Driver, defaulting to
// sqlite. The returned closer releases database handles and is never nil.
func OpenPersistentStore(ctx context.Context, opts StorageOptions, engine *RulesEngine, registry *attribute.Registry) (PersistentStore, io.Closer, error) {
	driver := opts.Driver
	if driver == "" {
		driver = StorageSQLite
	}
	switch driver {
	case StorageMemory:
		return memory.NewStore(engine, registry), nopCloser{}, nil
	case StorageSQLite:
		store, err := sqlite.NewStore(opts.SQLitePath, engine, registry)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	case StoragePostgres:
		store, err := postgres.NewStore(ctx, opts.PostgresDSN, engine, registry)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
