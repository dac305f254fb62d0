package transfer

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"stancore/pkg/domain"
)

// Operation note names recorded per destination labware.
const (
	NoteLotNumber      = "lot number"
	NoteProbeLotNumber = "probe lot number"
	NoteCosting        = "costing"
	NoteLPNumber       = "LP number"
)

// Executor performs a validated request inside a transaction.
type Executor interface {
	Execute(ctx context.Context, tx domain.Transaction, user domain.User, resolved Resolved, req Request) (Result, error)
}

// TransferExecutor is the default Executor.
type TransferExecutor struct {
	creator     LabwareCreator
	linker      WorkLinker
	derivations DerivationFactory
	clock       domain.Clock
}

// ExecutorOption configures a TransferExecutor.
type ExecutorOption func(*TransferExecutor)

// WithLabwareCreator overrides how destination labware is created.
func WithLabwareCreator(c LabwareCreator) ExecutorOption {
	return func(e *TransferExecutor) {
		if c != nil {
			e.creator = c
		}
	}
}

// WithWorkLinker overrides how operations are linked to work.
func WithWorkLinker(l WorkLinker) ExecutorOption {
	return func(e *TransferExecutor) {
		if l != nil {
			e.linker = l
		}
	}
}

// WithDerivationFactory overrides the request-scoped sample derivation.
func WithDerivationFactory(f DerivationFactory) ExecutorOption {
	return func(e *TransferExecutor) {
		if f != nil {
			e.derivations = f
		}
	}
}

// WithExecutorClock sets the clock used to stamp operations.
func WithExecutorClock(c domain.Clock) ExecutorOption {
	return func(e *TransferExecutor) {
		if c != nil {
			e.clock = c
		}
	}
}

// NewExecutor builds an executor with store-backed collaborators.
func NewExecutor(opts ...ExecutorOption) *TransferExecutor {
	e := &TransferExecutor{
		creator:     StoreLabwareCreator{},
		linker:      StoreWorkLinker{},
		derivations: NewSampleDeriver,
		clock:       domain.SystemClock(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute implements Executor. Any store error is returned as is and must
// abort the surrounding transaction.
func (e *TransferExecutor) Execute(ctx context.Context, tx domain.Transaction, user domain.User, resolved Resolved, req Request) (Result, error) {
	if resolved.OperationType == nil {
		return Result{}, fmt.Errorf("execute transfer: operation type not resolved")
	}
	opType := *resolved.OperationType
	derive := e.derivations(tx)
	now := e.clock.Now()

	result := Result{}
	for _, d := range req.Destinations {
		lw, err := e.destinationLabware(ctx, tx, resolved, d)
		if err != nil {
			return Result{}, err
		}
		lw, actions, err := e.writeContents(tx, derive, resolved, d, lw)
		if err != nil {
			return Result{}, err
		}
		op, err := tx.CreateOperation(domain.Operation{
			OperationTypeID: opType.ID,
			Username:        user.Username,
			PerformedAt:     now,
			Actions:         actions,
			Notes:           destinationNotes(lw.ID, d),
		})
		if err != nil {
			return Result{}, fmt.Errorf("record operation for %s: %w", lw.Barcode, err)
		}
		result.Operations = append(result.Operations, op)
		result.Labware = append(result.Labware, lw)
	}

	if err := applySourceEffects(tx, opType, resolved, req); err != nil {
		return Result{}, err
	}
	if resolved.Work != nil {
		if err := e.linker.Link(ctx, tx, *resolved.Work, result.Operations); err != nil {
			return Result{}, err
		}
	}
	return result, nil
}

func (e *TransferExecutor) destinationLabware(ctx context.Context, tx domain.Transaction, resolved Resolved, d Destination) (domain.Labware, error) {
	if d.IsExisting() {
		snap, ok := resolved.Destinations.Get(d.Barcode)
		if !ok {
			return domain.Labware{}, fmt.Errorf("destination labware %s not resolved", d.Barcode)
		}
		lw, ok := tx.Snapshot().FindLabware(snap.Labware().ID)
		if !ok {
			return domain.Labware{}, domain.ErrNotFound{Entity: domain.EntityLabware, Key: snap.Barcode()}
		}
		return lw, nil
	}
	lt, ok := resolved.LabwareTypes.Get(d.LabwareType)
	if !ok {
		return domain.Labware{}, fmt.Errorf("labware type %s not resolved", d.LabwareType)
	}
	return e.creator.CreateLabware(ctx, tx, lt, d.PreBarcode)
}

// writeContents appends the (possibly derived) samples to the destination
// slots, saves only the slots written to and returns the refreshed labware
// with one action per source sample copied.
func (e *TransferExecutor) writeContents(tx domain.Transaction, derive Derivation, resolved Resolved, d Destination, lw domain.Labware) (domain.Labware, []domain.Action, error) {
	view := tx.Snapshot()
	target := resolved.TargetBioState(d)
	slotIndex := make(map[domain.Address]int, len(lw.Slots))
	for i, slot := range lw.Slots {
		slotIndex[slot.Address] = i
	}
	touched := make(map[int]struct{})
	var actions []domain.Action
	for _, c := range d.Contents {
		src, ok := resolved.Sources.Get(c.SourceBarcode)
		if !ok {
			return domain.Labware{}, nil, fmt.Errorf("source labware %s not resolved", c.SourceBarcode)
		}
		srcSlot, ok := src.SlotAt(c.SourceAddress)
		if !ok {
			return domain.Labware{}, nil, fmt.Errorf("source labware %s has no slot %s", src.Barcode(), c.SourceAddress)
		}
		i, ok := slotIndex[c.DestinationAddress]
		if !ok {
			return domain.Labware{}, nil, fmt.Errorf("labware %s has no slot %s", lw.Barcode, c.DestinationAddress)
		}
		dstSlot := &lw.Slots[i]
		for _, sampleID := range srcSlot.SampleIDs {
			sample, ok := view.FindSample(sampleID)
			if !ok {
				return domain.Labware{}, nil, domain.ErrNotFound{Entity: domain.EntitySample, Key: fmt.Sprint(sampleID)}
			}
			dstSample, err := derive.Derive(sample, target)
			if err != nil {
				return domain.Labware{}, nil, err
			}
			dstSlot.SampleIDs = append(dstSlot.SampleIDs, dstSample.ID)
			touched[i] = struct{}{}
			actions = append(actions, domain.Action{
				SourceSlotID:        srcSlot.ID,
				DestinationSlotID:   dstSlot.ID,
				SourceSampleID:      sample.ID,
				DestinationSampleID: dstSample.ID,
			})
		}
	}
	slots := make([]domain.Slot, 0, len(touched))
	indices := make([]int, 0, len(touched))
	for i := range touched {
		indices = append(indices, i)
	}
	slices.Sort(indices)
	for _, i := range indices {
		slots = append(slots, lw.Slots[i])
	}
	refreshed, err := tx.SaveSlots(lw.ID, slots)
	if err != nil {
		return domain.Labware{}, nil, fmt.Errorf("save slots of %s: %w", lw.Barcode, err)
	}
	return refreshed, actions, nil
}

// applySourceEffects discards or marks used every distinct source once, in
// one batched update.
func applySourceEffects(tx domain.Transaction, opType domain.OperationType, resolved Resolved, req Request) error {
	if !opType.DiscardSource && !opType.MarkSourceUsed {
		return nil
	}
	var ids []int
	for _, bc := range req.SourceBarcodes() {
		if src, ok := resolved.Sources.Get(bc); ok {
			ids = append(ids, src.Labware().ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	_, err := tx.UpdateLabware(ids, func(lw *domain.Labware) error {
		if opType.DiscardSource {
			lw.Discarded = true
		} else {
			lw.Used = true
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("update source labware: %w", err)
	}
	return nil
}

func destinationNotes(labwareID int, d Destination) []domain.OperationNote {
	var notes []domain.OperationNote
	add := func(name, value string) {
		if value = strings.TrimSpace(value); value != "" {
			notes = append(notes, domain.OperationNote{LabwareID: labwareID, Name: name, Value: value})
		}
	}
	add(NoteLotNumber, d.LotNumber)
	add(NoteProbeLotNumber, d.ProbeLotNumber)
	if costing, ok := NormaliseCosting(d.Costing); ok {
		add(NoteCosting, costing)
	}
	if strings.TrimSpace(d.LPNumber) != "" {
		if lp, ok := NormaliseLPNumber(d.LPNumber); ok {
			add(NoteLPNumber, lp)
		}
	}
	return notes
}
