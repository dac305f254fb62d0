package memory

import (
	"strings"

	"stancore/pkg/domain"
)

// transactionView exposes a read-only snapshot of the transactional state.
type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

// ListLabwareTypes returns all labware types ordered by id.
func (v transactionView) ListLabwareTypes() []LabwareType {
	out := make([]LabwareType, 0, len(v.state.labwareTypes))
	for _, id := range sortedIDs(v.state.labwareTypes) {
		out = append(out, domain.CloneLabwareType(v.state.labwareTypes[id]))
	}
	return out
}

// FindLabwareTypeByName looks a labware type up case-insensitively.
func (v transactionView) FindLabwareTypeByName(name string) (LabwareType, bool) {
	for _, lt := range v.state.labwareTypes {
		if strings.EqualFold(lt.Name, strings.TrimSpace(name)) {
			return domain.CloneLabwareType(lt), true
		}
	}
	return LabwareType{}, false
}

// ListLabware returns all labware ordered by id.
func (v transactionView) ListLabware() []Labware {
	out := make([]Labware, 0, len(v.state.labware))
	for _, id := range sortedIDs(v.state.labware) {
		out = append(out, domain.CloneLabware(v.state.labware[id]))
	}
	return out
}

// FindLabware retrieves labware by id.
func (v transactionView) FindLabware(id int) (Labware, bool) {
	lw, ok := v.state.labware[id]
	if !ok {
		return Labware{}, false
	}
	return domain.CloneLabware(lw), true
}

// FindLabwareByBarcode retrieves labware by primary barcode, case-insensitively.
func (v transactionView) FindLabwareByBarcode(barcode string) (Labware, bool) {
	bc := strings.TrimSpace(barcode)
	if bc == "" {
		return Labware{}, false
	}
	for _, lw := range v.state.labware {
		if strings.EqualFold(lw.Barcode, bc) {
			return domain.CloneLabware(lw), true
		}
	}
	return Labware{}, false
}

// FindSlot retrieves a slot by id from whichever labware owns it.
func (v transactionView) FindSlot(id int) (Slot, bool) {
	for _, lw := range v.state.labware {
		for _, slot := range lw.Slots {
			if slot.ID == id {
				slot.SampleIDs = append([]int(nil), slot.SampleIDs...)
				return slot, true
			}
		}
	}
	return Slot{}, false
}

// BarcodeInUse reports whether a primary or external barcode matches.
func (v transactionView) BarcodeInUse(barcode string) bool {
	return barcodeInUse(v.state, barcode)
}

func barcodeInUse(state *memoryState, barcode string) bool {
	bc := strings.TrimSpace(barcode)
	if bc == "" {
		return false
	}
	for _, lw := range state.labware {
		if strings.EqualFold(lw.Barcode, bc) || (lw.ExternalBarcode != "" && strings.EqualFold(lw.ExternalBarcode, bc)) {
			return true
		}
	}
	return false
}

// ListSamples returns all samples ordered by id.
func (v transactionView) ListSamples() []Sample {
	out := make([]Sample, 0, len(v.state.samples))
	for _, id := range sortedIDs(v.state.samples) {
		out = append(out, cloneSample(v.state.samples[id]))
	}
	return out
}

// FindSample retrieves a sample by id.
func (v transactionView) FindSample(id int) (Sample, bool) {
	s, ok := v.state.samples[id]
	if !ok {
		return Sample{}, false
	}
	return cloneSample(s), true
}

// FindTissue retrieves a tissue by id.
func (v transactionView) FindTissue(id int) (Tissue, bool) {
	t, ok := v.state.tissues[id]
	return t, ok
}

// FindBioState retrieves a bio state by id.
func (v transactionView) FindBioState(id int) (BioState, bool) {
	bs, ok := v.state.bioStates[id]
	return bs, ok
}

// FindBioStateByName looks a bio state up case-insensitively.
func (v transactionView) FindBioStateByName(name string) (BioState, bool) {
	for _, bs := range v.state.bioStates {
		if strings.EqualFold(bs.Name, strings.TrimSpace(name)) {
			return bs, true
		}
	}
	return BioState{}, false
}

// FindOperationType retrieves an operation type by id.
func (v transactionView) FindOperationType(id int) (OperationType, bool) {
	ot, ok := v.state.operationTypes[id]
	if !ok {
		return OperationType{}, false
	}
	return cloneOperationType(ot), true
}

// FindOperationTypeByName looks an operation type up case-insensitively.
func (v transactionView) FindOperationTypeByName(name string) (OperationType, bool) {
	for _, ot := range v.state.operationTypes {
		if strings.EqualFold(ot.Name, strings.TrimSpace(name)) {
			return cloneOperationType(ot), true
		}
	}
	return OperationType{}, false
}

// FindWorkByNumber looks a work up by work number, case-insensitively.
func (v transactionView) FindWorkByNumber(workNumber string) (Work, bool) {
	for _, w := range v.state.works {
		if strings.EqualFold(w.WorkNumber, strings.TrimSpace(workNumber)) {
			return cloneWork(w), true
		}
	}
	return Work{}, false
}

// ListOperations returns all operations ordered by id.
func (v transactionView) ListOperations() []Operation {
	out := make([]Operation, 0, len(v.state.operations))
	for _, id := range sortedIDs(v.state.operations) {
		out = append(out, cloneOperation(v.state.operations[id]))
	}
	return out
}
