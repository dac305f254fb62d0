// Package blob is the only entry point to the blob drivers. Callers depend on
// blob.Store and select a driver through Open.
package blob

import (
	"context"
	"fmt"
	"os"

	"stancore/internal/blob/core"
	memorystore "stancore/internal/infra/blob/memory"
	s3store "stancore/internal/infra/blob/s3"
)

type (
	// Driver identifies a blob backend driver.
	Driver = core.Driver
	// PutOptions configures a blob write.
	PutOptions = core.PutOptions
	// Info describes stored blob metadata.
	Info = core.Info
	// Store is the interface for blob storage backends.
	Store = core.Store
	// S3Config configures the S3 driver.
	S3Config = s3store.Config
)

const (
	DriverMemory = core.DriverMemory
	DriverS3     = core.DriverS3
)

var (
	ErrExists   = core.ErrExists
	ErrNotFound = core.ErrNotFound
)

// Open selects a Store using environment variables.
//
//	STAN_BLOB_DRIVER: memory|s3 (default memory)
//	STAN_BLOB_S3_*: see NewS3
func Open(ctx context.Context) (Store, error) {
	driver := os.Getenv("STAN_BLOB_DRIVER")
	if driver == "" {
		driver = string(DriverMemory)
	}
	switch Driver(driver) {
	case DriverMemory:
		return NewMemory(), nil
	case DriverS3:
		return s3store.OpenFromEnv(ctx)
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}

// NewMemory returns an in-memory Store.
func NewMemory() Store { return memorystore.New() }

// NewS3 returns an S3-backed Store.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) {
	return s3store.New(ctx, cfg)
}

// NewMockS3ForTests returns an S3 Store talking to an in-process fake endpoint.
func NewMockS3ForTests() Store { return s3store.NewMockForTests() }
