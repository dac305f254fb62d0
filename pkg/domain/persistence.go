package domain

import (
	"context"
	"fmt"
)

// ChangeAction describes what happened to an entity within a transaction.
type ChangeAction string

// Change actions recorded by transactions for rule evaluation.
const (
	ChangeCreate ChangeAction = "create"
	ChangeUpdate ChangeAction = "update"
)

// Change captures a single mutation applied within a transaction.
type Change struct {
	Entity EntityType
	Action ChangeAction
	Before any
	After  any
}

// ErrNotFound is returned when a referenced record does not exist.
type ErrNotFound struct {
	Entity EntityType
	Key    string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.Key)
}

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	CreateLabwareType(LabwareType) (LabwareType, error)
	CreateBioState(BioState) (BioState, error)
	CreateTissue(Tissue) (Tissue, error)
	CreateOperationType(OperationType) (OperationType, error)
	CreateWork(Work) (Work, error)
	UpdateWork(id int, mutator func(*Work) error) (Work, error)
	CreateSample(Sample) (Sample, error)
	// CreateLabware assigns ids to the labware and its slots, issuing a
	// barcode when none is given.
	CreateLabware(Labware) (Labware, error)
	// SaveSlots persists the given slots of one labware item and returns the
	// refreshed labware.
	SaveSlots(labwareID int, slots []Slot) (Labware, error)
	// UpdateLabware applies mutator to each labware item and saves them together.
	UpdateLabware(ids []int, mutator func(*Labware) error) ([]Labware, error)
	// CreateOperation assigns ids to the operation and its actions.
	CreateOperation(Operation) (Operation, error)
}

// TransactionView provides read-only access to snapshot data for rules,
// resolution and validation.
type TransactionView interface {
	ListLabwareTypes() []LabwareType
	FindLabwareTypeByName(name string) (LabwareType, bool)
	ListLabware() []Labware
	FindLabware(id int) (Labware, bool)
	FindLabwareByBarcode(barcode string) (Labware, bool)
	FindSlot(id int) (Slot, bool)
	// BarcodeInUse reports whether any labware carries the barcode as its
	// primary or external barcode.
	BarcodeInUse(barcode string) bool
	ListSamples() []Sample
	FindSample(id int) (Sample, bool)
	FindTissue(id int) (Tissue, bool)
	FindBioState(id int) (BioState, bool)
	FindBioStateByName(name string) (BioState, bool)
	FindOperationType(id int) (OperationType, bool)
	FindOperationTypeByName(name string) (OperationType, bool)
	FindWorkByNumber(workNumber string) (Work, bool)
	ListOperations() []Operation
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetLabwareByBarcode(barcode string) (Labware, bool)
	ListLabware() []Labware
	ListSamples() []Sample
	ListOperations() []Operation
	GetWork(workNumber string) (Work, bool)
}
