package memory

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"stancore/pkg/domain"
)

// transaction represents a mutation set applied to a cloned store state.
type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

// helper to record and append change entries.
func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the live transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// CreateLabwareType stores a new labware type.
func (tx *transaction) CreateLabwareType(lt LabwareType) (LabwareType, error) {
	lt.Name = strings.TrimSpace(lt.Name)
	if lt.Name == "" {
		return LabwareType{}, errors.New("labware type requires a name")
	}
	if lt.NumRows <= 0 || lt.NumColumns <= 0 {
		return LabwareType{}, fmt.Errorf("labware type %q requires positive dimensions", lt.Name)
	}
	if _, exists := tx.Snapshot().FindLabwareTypeByName(lt.Name); exists {
		return LabwareType{}, fmt.Errorf("labware type %q already exists", lt.Name)
	}
	tx.state.seq.LabwareType++
	lt.ID = tx.state.seq.LabwareType
	tx.state.labwareTypes[lt.ID] = domain.CloneLabwareType(lt)
	tx.recordChange(Change{Entity: domain.EntityLabwareType, Action: domain.ChangeCreate, After: domain.CloneLabwareType(lt)})
	return domain.CloneLabwareType(lt), nil
}

// CreateBioState stores a new bio state.
func (tx *transaction) CreateBioState(bs BioState) (BioState, error) {
	bs.Name = strings.TrimSpace(bs.Name)
	if bs.Name == "" {
		return BioState{}, errors.New("bio state requires a name")
	}
	if _, exists := tx.Snapshot().FindBioStateByName(bs.Name); exists {
		return BioState{}, fmt.Errorf("bio state %q already exists", bs.Name)
	}
	tx.state.seq.BioState++
	bs.ID = tx.state.seq.BioState
	tx.state.bioStates[bs.ID] = bs
	tx.recordChange(Change{Entity: domain.EntityBioState, Action: domain.ChangeCreate, After: bs})
	return bs, nil
}

// CreateTissue stores a new tissue.
func (tx *transaction) CreateTissue(t Tissue) (Tissue, error) {
	t.ExternalName = strings.TrimSpace(t.ExternalName)
	if t.ExternalName == "" {
		return Tissue{}, errors.New("tissue requires an external name")
	}
	tx.state.seq.Tissue++
	t.ID = tx.state.seq.Tissue
	tx.state.tissues[t.ID] = t
	tx.recordChange(Change{Entity: domain.EntityTissue, Action: domain.ChangeCreate, After: t})
	return t, nil
}

// CreateOperationType stores a new operation type.
func (tx *transaction) CreateOperationType(ot OperationType) (OperationType, error) {
	ot.Name = strings.TrimSpace(ot.Name)
	if ot.Name == "" {
		return OperationType{}, errors.New("operation type requires a name")
	}
	if ot.DiscardSource && ot.MarkSourceUsed {
		return OperationType{}, fmt.Errorf("operation type %q cannot both discard and mark sources used", ot.Name)
	}
	if _, exists := tx.Snapshot().FindOperationTypeByName(ot.Name); exists {
		return OperationType{}, fmt.Errorf("operation type %q already exists", ot.Name)
	}
	tx.state.seq.OperationType++
	ot.ID = tx.state.seq.OperationType
	tx.state.operationTypes[ot.ID] = cloneOperationType(ot)
	tx.recordChange(Change{Entity: domain.EntityOperationType, Action: domain.ChangeCreate, After: cloneOperationType(ot)})
	return cloneOperationType(ot), nil
}

// CreateWork stores a new work number. Work defaults to active.
func (tx *transaction) CreateWork(w Work) (Work, error) {
	w.WorkNumber = strings.ToUpper(strings.TrimSpace(w.WorkNumber))
	if w.WorkNumber == "" {
		return Work{}, errors.New("work requires a work number")
	}
	if _, exists := tx.Snapshot().FindWorkByNumber(w.WorkNumber); exists {
		return Work{}, fmt.Errorf("work %q already exists", w.WorkNumber)
	}
	if w.Status == "" {
		w.Status = domain.WorkStatusActive
	}
	tx.state.seq.Work++
	w.ID = tx.state.seq.Work
	tx.state.works[w.ID] = cloneWork(w)
	tx.recordChange(Change{Entity: domain.EntityWork, Action: domain.ChangeCreate, After: cloneWork(w)})
	return cloneWork(w), nil
}

// UpdateWork mutates a work using the provided mutator function.
func (tx *transaction) UpdateWork(id int, mutator func(*Work) error) (Work, error) {
	current, ok := tx.state.works[id]
	if !ok {
		return Work{}, domain.ErrNotFound{Entity: domain.EntityWork, Key: fmt.Sprint(id)}
	}
	before := cloneWork(current)
	if err := mutator(&current); err != nil {
		return Work{}, err
	}
	current.ID = id
	tx.state.works[id] = cloneWork(current)
	tx.recordChange(Change{Entity: domain.EntityWork, Action: domain.ChangeUpdate, Before: before, After: cloneWork(current)})
	return cloneWork(current), nil
}

// CreateSample stores a new sample. Samples are never updated afterwards.
func (tx *transaction) CreateSample(s Sample) (Sample, error) {
	if _, ok := tx.state.tissues[s.TissueID]; !ok {
		return Sample{}, domain.ErrNotFound{Entity: domain.EntityTissue, Key: fmt.Sprint(s.TissueID)}
	}
	if _, ok := tx.state.bioStates[s.BioStateID]; !ok {
		return Sample{}, domain.ErrNotFound{Entity: domain.EntityBioState, Key: fmt.Sprint(s.BioStateID)}
	}
	tx.state.seq.Sample++
	s.ID = tx.state.seq.Sample
	tx.state.samples[s.ID] = cloneSample(s)
	tx.recordChange(Change{Entity: domain.EntitySample, Action: domain.ChangeCreate, After: cloneSample(s)})
	return cloneSample(s), nil
}

func (tx *transaction) issueBarcode() string {
	for {
		tx.state.seq.Barcode++
		bc := fmt.Sprintf("STAN-%04X", tx.state.seq.Barcode)
		if !barcodeInUse(&tx.state, bc) {
			return bc
		}
	}
}

// CreateLabware stores new labware, creating one slot per grid address when
// no slots are supplied.
func (tx *transaction) CreateLabware(lw Labware) (Labware, error) {
	lt, ok := tx.state.labwareTypes[lw.LabwareType.ID]
	if !ok {
		return Labware{}, domain.ErrNotFound{Entity: domain.EntityLabwareType, Key: lw.LabwareType.Name}
	}
	lw.LabwareType = domain.CloneLabwareType(lt)
	lw.Barcode = strings.ToUpper(strings.TrimSpace(lw.Barcode))
	lw.ExternalBarcode = strings.ToUpper(strings.TrimSpace(lw.ExternalBarcode))
	if lw.Barcode == "" {
		lw.Barcode = tx.issueBarcode()
	} else if barcodeInUse(&tx.state, lw.Barcode) {
		return Labware{}, fmt.Errorf("barcode %s already in use", lw.Barcode)
	}
	if lw.ExternalBarcode != "" && lw.ExternalBarcode != lw.Barcode && barcodeInUse(&tx.state, lw.ExternalBarcode) {
		return Labware{}, fmt.Errorf("external barcode %s already in use", lw.ExternalBarcode)
	}
	tx.state.seq.Labware++
	lw.ID = tx.state.seq.Labware
	grid := lt.Grid()
	if len(lw.Slots) == 0 {
		for _, addr := range grid.Addresses() {
			lw.Slots = append(lw.Slots, Slot{Address: addr})
		}
	}
	seen := make(map[domain.Address]struct{}, len(lw.Slots))
	for i := range lw.Slots {
		addr := lw.Slots[i].Address
		if !grid.IsValid(addr) {
			return Labware{}, fmt.Errorf("slot %s is outside labware type %s", addr, lt.Name)
		}
		if _, dup := seen[addr]; dup {
			return Labware{}, fmt.Errorf("slot %s repeated in labware %s", addr, lw.Barcode)
		}
		seen[addr] = struct{}{}
		for _, sampleID := range lw.Slots[i].SampleIDs {
			if _, ok := tx.state.samples[sampleID]; !ok {
				return Labware{}, domain.ErrNotFound{Entity: domain.EntitySample, Key: fmt.Sprint(sampleID)}
			}
		}
		tx.state.seq.Slot++
		lw.Slots[i].ID = tx.state.seq.Slot
		lw.Slots[i].LabwareID = lw.ID
	}
	if lw.Created.IsZero() {
		lw.Created = tx.now
	}
	tx.state.labware[lw.ID] = domain.CloneLabware(lw)
	tx.recordChange(Change{Entity: domain.EntityLabware, Action: domain.ChangeCreate, After: domain.CloneLabware(lw)})
	return domain.CloneLabware(lw), nil
}

// SaveSlots replaces the given slots of one labware item, matched by slot id.
func (tx *transaction) SaveSlots(labwareID int, slots []Slot) (Labware, error) {
	current, ok := tx.state.labware[labwareID]
	if !ok {
		return Labware{}, domain.ErrNotFound{Entity: domain.EntityLabware, Key: fmt.Sprint(labwareID)}
	}
	before := domain.CloneLabware(current)
	updated := domain.CloneLabware(current)
	index := make(map[int]int, len(updated.Slots))
	for i, slot := range updated.Slots {
		index[slot.ID] = i
	}
	for _, slot := range slots {
		i, ok := index[slot.ID]
		if !ok {
			return Labware{}, fmt.Errorf("slot %d does not belong to labware %s", slot.ID, current.Barcode)
		}
		if slot.Address != updated.Slots[i].Address {
			return Labware{}, fmt.Errorf("slot %d of labware %s cannot change address", slot.ID, current.Barcode)
		}
		for _, sampleID := range slot.SampleIDs {
			if _, ok := tx.state.samples[sampleID]; !ok {
				return Labware{}, domain.ErrNotFound{Entity: domain.EntitySample, Key: fmt.Sprint(sampleID)}
			}
		}
		slot.LabwareID = labwareID
		slot.SampleIDs = append([]int(nil), slot.SampleIDs...)
		updated.Slots[i] = slot
	}
	tx.state.labware[labwareID] = updated
	tx.recordChange(Change{Entity: domain.EntityLabware, Action: domain.ChangeUpdate, Before: before, After: domain.CloneLabware(updated)})
	return domain.CloneLabware(updated), nil
}

// UpdateLabware applies mutator to every listed labware item. Identity,
// type and slot layout cannot be changed through the mutator.
func (tx *transaction) UpdateLabware(ids []int, mutator func(*Labware) error) ([]Labware, error) {
	out := make([]Labware, 0, len(ids))
	for _, id := range ids {
		current, ok := tx.state.labware[id]
		if !ok {
			return nil, domain.ErrNotFound{Entity: domain.EntityLabware, Key: fmt.Sprint(id)}
		}
		before := domain.CloneLabware(current)
		working := domain.CloneLabware(current)
		if err := mutator(&working); err != nil {
			return nil, err
		}
		working.ID = id
		working.Barcode = before.Barcode
		working.LabwareType = before.LabwareType
		working.Slots = before.Slots
		tx.state.labware[id] = domain.CloneLabware(working)
		tx.recordChange(Change{Entity: domain.EntityLabware, Action: domain.ChangeUpdate, Before: before, After: domain.CloneLabware(working)})
		out = append(out, domain.CloneLabware(working))
	}
	return out, nil
}

// CreateOperation stores a new operation, assigning ids to its actions.
func (tx *transaction) CreateOperation(op Operation) (Operation, error) {
	if _, ok := tx.state.operationTypes[op.OperationTypeID]; !ok {
		return Operation{}, domain.ErrNotFound{Entity: domain.EntityOperationType, Key: fmt.Sprint(op.OperationTypeID)}
	}
	if len(op.Actions) == 0 {
		return Operation{}, errors.New("operation requires at least one action")
	}
	tx.state.seq.Operation++
	op.ID = tx.state.seq.Operation
	if op.PerformedAt.IsZero() {
		op.PerformedAt = tx.now
	}
	op.Actions = append([]domain.Action(nil), op.Actions...)
	for i := range op.Actions {
		tx.state.seq.Action++
		op.Actions[i].ID = tx.state.seq.Action
		op.Actions[i].OperationID = op.ID
	}
	tx.state.operations[op.ID] = cloneOperation(op)
	tx.recordChange(Change{Entity: domain.EntityOperation, Action: domain.ChangeCreate, After: cloneOperation(op)})
	return cloneOperation(op), nil
}
