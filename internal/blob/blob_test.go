package blob

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()

	t.Setenv("STAN_BLOB_DRIVER", "")
	store, err := Open(ctx)
	if err != nil || store.Driver() != DriverMemory {
		t.Fatalf("default driver: %v %v", store, err)
	}

	t.Setenv("STAN_BLOB_DRIVER", "s3")
	t.Setenv("STAN_BLOB_S3_BUCKET", "")
	if _, err := Open(ctx); err == nil {
		t.Fatalf("expected s3 driver to require a bucket")
	}

	t.Setenv("STAN_BLOB_DRIVER", "floppy")
	if _, err := Open(ctx); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}

func TestDriversShareContract(t *testing.T) {
	ctx := context.Background()
	for _, store := range []Store{NewMemory(), NewMockS3ForTests()} {
		t.Run(string(store.Driver()), func(t *testing.T) {
			if _, err := store.Put(ctx, "k", bytes.NewReader([]byte("v")), PutOptions{}); err != nil {
				t.Fatalf("put: %v", err)
			}
			if _, err := store.Put(ctx, "k", bytes.NewReader([]byte("v")), PutOptions{}); !errors.Is(err, ErrExists) {
				t.Fatalf("expected ErrExists, got %v", err)
			}
			if _, err := store.Head(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
			list, err := store.List(ctx, "")
			if err != nil || len(list) != 1 || list[0].Key != "k" {
				t.Fatalf("list: %v %+v", err, list)
			}
		})
	}
}
