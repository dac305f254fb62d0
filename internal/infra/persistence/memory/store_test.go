package memory

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"stancore/pkg/domain"
)

func seedBasics(t *testing.T, store *Store) (domain.LabwareType, domain.Tissue, domain.BioState, domain.OperationType) {
	t.Helper()
	var (
		lt  domain.LabwareType
		tis domain.Tissue
		bs  domain.BioState
		ot  domain.OperationType
	)
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		var err error
		if lt, err = tx.CreateLabwareType(domain.LabwareType{Name: "lt", NumRows: 1, NumColumns: 3}); err != nil {
			return err
		}
		if tis, err = tx.CreateTissue(domain.Tissue{ExternalName: "TISSUE1"}); err != nil {
			return err
		}
		if bs, err = tx.CreateBioState(domain.BioState{Name: "Tissue"}); err != nil {
			return err
		}
		ot, err = tx.CreateOperationType(domain.OperationType{Name: "Transfer"})
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return lt, tis, bs, ot
}

func TestStoreRunInTransactionAndSnapshots(t *testing.T) {
	store := NewStore(nil)
	lt, tis, bs, _ := seedBasics(t, store)
	ctx := context.Background()
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		sample, err := tx.CreateSample(domain.Sample{TissueID: tis.ID, BioStateID: bs.ID})
		if err != nil {
			return err
		}
		lw, err := tx.CreateLabware(domain.Labware{LabwareType: lt})
		if err != nil {
			return err
		}
		if len(lw.Slots) != 3 {
			t.Fatalf("expected one slot per address, got %d", len(lw.Slots))
		}
		if !strings.HasPrefix(lw.Barcode, "STAN-") {
			t.Fatalf("expected issued barcode, got %s", lw.Barcode)
		}
		slot := lw.Slots[0]
		slot.SampleIDs = []int{sample.ID}
		refreshed, err := tx.SaveSlots(lw.ID, []domain.Slot{slot})
		if err != nil {
			return err
		}
		if refreshed.Slots[0].IsEmpty() {
			t.Fatalf("expected refreshed labware to contain the sample")
		}
		view := tx.Snapshot()
		if got, ok := view.FindLabwareByBarcode(strings.ToLower(lw.Barcode)); !ok || got.ID != lw.ID {
			t.Fatalf("expected case-insensitive barcode lookup")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("run transaction: %v", err)
	}
	if len(store.ListLabware()) != 1 {
		t.Fatalf("expected persisted labware")
	}
	snapshot := store.ExportState()
	store.ImportState(Snapshot{})
	if len(store.ListLabware()) != 0 {
		t.Fatalf("expected cleared state")
	}
	store.ImportState(snapshot)
	if len(store.ListLabware()) != 1 || len(store.ListSamples()) != 1 {
		t.Fatalf("expected restored state")
	}
	if store.RulesEngine() == nil {
		t.Fatalf("expected rules engine")
	}
	if store.NowFunc() == nil {
		t.Fatalf("expected now func")
	}
}

func TestStoreFailedTransactionLeavesStateUntouched(t *testing.T) {
	store := NewStore(nil)
	lt, _, _, _ := seedBasics(t, store)
	boom := errors.New("boom")
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.CreateLabware(domain.Labware{LabwareType: lt}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if len(store.ListLabware()) != 0 {
		t.Fatalf("expected rollback of labware creation")
	}
}

func TestStoreRuleViolation(t *testing.T) {
	store := NewStore(domain.NewRulesEngine())
	lt, _, _, _ := seedBasics(t, store)
	store.RulesEngine().Register(blockingRule{})
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, e := tx.CreateLabware(domain.Labware{LabwareType: lt})
		return e
	})
	var violation domain.RuleViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected rule violation error, got %v", err)
	}
	if len(store.ListLabware()) != 0 {
		t.Fatalf("expected blocked transaction not to commit")
	}
}

type blockingRule struct{}

func (blockingRule) Name() string { return "block" }

func (blockingRule) Evaluate(_ context.Context, _ domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity == domain.EntityLabware {
			res.Violations = append(res.Violations, domain.Violation{Rule: "block", Severity: domain.SeverityBlock, Message: "no labware"})
		}
	}
	return res, nil
}

func TestCreateLabwareRejectsDuplicateBarcodes(t *testing.T) {
	store := NewStore(nil)
	lt, _, _, _ := seedBasics(t, store)
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.CreateLabware(domain.Labware{LabwareType: lt, Barcode: "ext-1", ExternalBarcode: "EXT-1"}); err != nil {
			return err
		}
		_, err := tx.CreateLabware(domain.Labware{LabwareType: lt, Barcode: "EXT-1"})
		return err
	})
	if err == nil || !strings.Contains(err.Error(), "already in use") {
		t.Fatalf("expected duplicate barcode error, got %v", err)
	}
}

func TestSaveSlotsRejectsForeignSlot(t *testing.T) {
	store := NewStore(nil)
	lt, _, _, _ := seedBasics(t, store)
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		first, err := tx.CreateLabware(domain.Labware{LabwareType: lt})
		if err != nil {
			return err
		}
		second, err := tx.CreateLabware(domain.Labware{LabwareType: lt})
		if err != nil {
			return err
		}
		_, err = tx.SaveSlots(first.ID, []domain.Slot{second.Slots[0]})
		return err
	})
	if err == nil || !strings.Contains(err.Error(), "does not belong") {
		t.Fatalf("expected foreign slot error, got %v", err)
	}
}

func TestUpdateLabwareKeepsIdentity(t *testing.T) {
	store := NewStore(nil)
	lt, _, _, _ := seedBasics(t, store)
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		lw, err := tx.CreateLabware(domain.Labware{LabwareType: lt})
		if err != nil {
			return err
		}
		updated, err := tx.UpdateLabware([]int{lw.ID}, func(l *domain.Labware) error {
			l.Discarded = true
			l.Barcode = "HIJACK"
			l.Slots = nil
			return nil
		})
		if err != nil {
			return err
		}
		if !updated[0].Discarded || updated[0].Barcode != lw.Barcode || len(updated[0].Slots) != 3 {
			t.Fatalf("unexpected update result: %+v", updated[0])
		}
		return nil
	})
	if err != nil {
		t.Fatalf("update labware: %v", err)
	}
}

func TestCreateOperationAssignsActionIDs(t *testing.T) {
	store := NewStore(nil)
	fixed := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	store.SetNowFunc(func() time.Time { return fixed })
	_, _, _, ot := seedBasics(t, store)
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		op, err := tx.CreateOperation(domain.Operation{
			OperationTypeID: ot.ID,
			Username:        "user1",
			Actions:         []domain.Action{{SourceSlotID: 1, DestinationSlotID: 2}, {SourceSlotID: 1, DestinationSlotID: 3}},
		})
		if err != nil {
			return err
		}
		if op.ID == 0 || op.Actions[0].ID == 0 || op.Actions[1].ID == op.Actions[0].ID {
			t.Fatalf("expected ids assigned: %+v", op)
		}
		if op.Actions[1].OperationID != op.ID {
			t.Fatalf("expected actions linked to operation")
		}
		if !op.PerformedAt.Equal(fixed) {
			t.Fatalf("expected performed at %v, got %v", fixed, op.PerformedAt)
		}
		_, err = tx.CreateOperation(domain.Operation{OperationTypeID: ot.ID})
		if err == nil {
			t.Fatalf("expected error for operation without actions")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("create operation: %v", err)
	}
}

func TestImportStateRaisesSequences(t *testing.T) {
	store := NewStore(nil)
	store.ImportState(Snapshot{
		LabwareTypes: map[int]domain.LabwareType{7: {ID: 7, Name: "plate", NumRows: 2, NumColumns: 2}},
		Tissues:      map[int]domain.Tissue{3: {ID: 3, ExternalName: "T"}},
	})
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		lt, err := tx.CreateLabwareType(domain.LabwareType{Name: "tube", NumRows: 1, NumColumns: 1})
		if err != nil {
			return err
		}
		if lt.ID != 8 {
			t.Fatalf("expected id after imported max, got %d", lt.ID)
		}
		if _, err := tx.CreateLabwareType(domain.LabwareType{Name: "PLATE", NumRows: 1, NumColumns: 1}); err == nil {
			t.Fatalf("expected case-insensitive duplicate name error")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
}

func TestCreateOperationTypeRejectsConflictingFlags(t *testing.T) {
	store := NewStore(nil)
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateOperationType(domain.OperationType{Name: "Bad", DiscardSource: true, MarkSourceUsed: true})
		return err
	})
	if err == nil {
		t.Fatalf("expected conflicting flags error")
	}
}
