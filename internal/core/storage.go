package core

import (
	"context"
	"fmt"
	"os"

	"stancore/internal/infra/persistence/memory"
	"stancore/internal/infra/persistence/postgres"
	"stancore/internal/infra/persistence/sqlite"
	"stancore/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// OpenPersistentStore selects a backend using environment variables.
// Defaults to sqlite when unset. Stores holding a database connection
// implement io.Closer.
//
//	STAN_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	STAN_SQLITE_PATH: path to sqlite file (default ./stancore.db)
//	STAN_POSTGRES_DSN: postgres DSN when driver=postgres
func OpenPersistentStore(ctx context.Context, engine *domain.RulesEngine) (domain.PersistentStore, error) {
	driver := os.Getenv("STAN_STORAGE_DRIVER")
	if driver == "" {
		driver = string(StorageSQLite)
	}
	switch StorageDriver(driver) {
	case StorageMemory:
		return memory.NewStore(engine), nil
	case StorageSQLite:
		store, err := sqlite.NewStore(os.Getenv("STAN_SQLITE_PATH"), engine)
		if err != nil {
			return nil, err
		}
		return store, nil
	case StoragePostgres:
		store, err := postgres.NewStore(ctx, os.Getenv("STAN_POSTGRES_DSN"), engine)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
