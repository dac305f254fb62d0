package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"stancore/internal/infra/persistence/memory"
	"stancore/internal/infra/persistence/postgres/testutil"
	"stancore/pkg/domain"
)

func openStub(t *testing.T) (*sql.DB, *testutil.StubConn) {
	t.Helper()
	db, conn := testutil.NewStubDB()
	restore := OverrideSQLOpen(func(driverName, _ string) (*sql.DB, error) {
		if driverName != defaultDriver {
			t.Fatalf("expected driver %s, got %s", defaultDriver, driverName)
		}
		return db, nil
	})
	t.Cleanup(restore)
	return db, conn
}

func TestNewStoreCreatesStateTable(t *testing.T) {
	_, conn := openStub(t)
	store, err := NewStore(context.Background(), "", domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if store.DB() == nil {
		t.Fatalf("expected db handle")
	}
	var sawDDL bool
	for _, stmt := range conn.Execs {
		if strings.Contains(strings.ToUpper(stmt), "CREATE TABLE IF NOT EXISTS STATE") {
			sawDDL = true
		}
	}
	if !sawDDL {
		t.Fatalf("expected state table DDL, got %v", conn.Execs)
	}
	if len(store.ListLabware()) != 0 {
		t.Fatalf("expected empty store")
	}
}

func TestRunInTransactionPersistsAndReloads(t *testing.T) {
	_, conn := openStub(t)
	store, err := NewStore(context.Background(), "ignored", domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		lt, err := tx.CreateLabwareType(domain.LabwareType{Name: "Plate", NumRows: 2, NumColumns: 2})
		if err != nil {
			return err
		}
		_, err = tx.CreateLabware(domain.Labware{LabwareType: lt, Barcode: "PLATE-1"})
		return err
	})
	if err != nil {
		t.Fatalf("RunInTransaction: %v", err)
	}
	if got := len(conn.Tables["state"]); got != len(memory.Buckets) {
		t.Fatalf("expected %d buckets persisted, got %d", len(memory.Buckets), got)
	}

	reloaded, err := NewStore(context.Background(), "ignored", domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	lw, ok := reloaded.GetLabwareByBarcode("plate-1")
	if !ok {
		t.Fatalf("expected labware after reload")
	}
	if len(lw.Slots) != 4 {
		t.Fatalf("expected 4 slots, got %d", len(lw.Slots))
	}
}

func TestNewStorePropagatesFailures(t *testing.T) {
	t.Run("ping", func(t *testing.T) {
		_, conn := openStub(t)
		conn.FailPing = true
		if _, err := NewStore(context.Background(), "", nil); err == nil || !strings.Contains(err.Error(), "ping") {
			t.Fatalf("expected ping error, got %v", err)
		}
	})
	t.Run("select", func(t *testing.T) {
		_, conn := openStub(t)
		conn.FailTables = map[string]bool{"state": true}
		if _, err := NewStore(context.Background(), "", nil); err == nil || !strings.Contains(err.Error(), "select state") {
			t.Fatalf("expected select error, got %v", err)
		}
	})
	t.Run("open", func(t *testing.T) {
		restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return nil, errors.New("dial") })
		defer restore()
		if _, err := NewStore(context.Background(), "", nil); err == nil || !strings.Contains(err.Error(), "open postgres") {
			t.Fatalf("expected open error, got %v", err)
		}
	})
}

func TestPersistFailureIsReported(t *testing.T) {
	_, conn := openStub(t)
	store, err := NewStore(context.Background(), "", nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	conn.FailCommit = true
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, e := tx.CreateWork(domain.Work{WorkNumber: "SGP2"})
		return e
	})
	if err == nil || !strings.Contains(err.Error(), "commit") {
		t.Fatalf("expected commit error, got %v", err)
	}
}
