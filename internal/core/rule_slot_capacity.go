package core

import (
	"context"
	"fmt"

	"stancore/pkg/domain"
)

// NewSlotCapacityRule blocks commits that leave a changed labware slot
// holding more than capacity samples.
func NewSlotCapacityRule(capacity int) domain.Rule {
	return slotCapacityRule{capacity: capacity}
}

type slotCapacityRule struct {
	capacity int
}

func (slotCapacityRule) Name() string { return "slot_capacity" }

func (r slotCapacityRule) Evaluate(_ context.Context, view domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	if r.capacity <= 0 {
		return res, nil
	}
	for _, id := range changedLabwareIDs(changes) {
		lw, ok := view.FindLabware(id)
		if !ok {
			continue
		}
		for _, slot := range lw.Slots {
			if len(slot.SampleIDs) <= r.capacity {
				continue
			}
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "slot_capacity",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("slot %s of labware %s over capacity: %d/%d samples", slot.Address, lw.Barcode, len(slot.SampleIDs), r.capacity),
				Entity:   domain.EntityLabware,
				EntityID: lw.ID,
			})
		}
	}
	return res, nil
}
