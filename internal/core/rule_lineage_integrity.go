package core

import (
	"context"
	"fmt"

	"stancore/pkg/domain"
)

// LineageIntegrityRule checks the actions of operations recorded in the
// transaction: both slots and both samples must exist, the destination slot
// must hold the destination sample, and a destination sample must come from
// the same tissue as its source.
func LineageIntegrityRule() domain.Rule {
	return lineageIntegrityRule{}
}

type lineageIntegrityRule struct{}

func (lineageIntegrityRule) Name() string { return "lineage_integrity" }

func (lineageIntegrityRule) Evaluate(_ context.Context, view domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityOperation || change.Action != domain.ChangeCreate {
			continue
		}
		op, ok := change.After.(domain.Operation)
		if !ok {
			continue
		}
		for _, action := range op.Actions {
			for _, msg := range checkAction(view, action) {
				res.Violations = append(res.Violations, lineageViolation(op.ID, fmt.Sprintf("operation %d action %d: %s", op.ID, action.ID, msg)))
			}
		}
	}
	return res, nil
}

func checkAction(view domain.TransactionView, action domain.Action) []string {
	var out []string
	if _, ok := view.FindSlot(action.SourceSlotID); !ok {
		out = append(out, fmt.Sprintf("source slot %d does not exist", action.SourceSlotID))
	}
	dst, dstOK := view.FindSlot(action.DestinationSlotID)
	if !dstOK {
		out = append(out, fmt.Sprintf("destination slot %d does not exist", action.DestinationSlotID))
	}
	src, srcOK := view.FindSample(action.SourceSampleID)
	if !srcOK {
		out = append(out, fmt.Sprintf("source sample %d does not exist", action.SourceSampleID))
	}
	derived, derivedOK := view.FindSample(action.DestinationSampleID)
	if !derivedOK {
		out = append(out, fmt.Sprintf("destination sample %d does not exist", action.DestinationSampleID))
	}
	if dstOK && derivedOK && !containsID(dst.SampleIDs, derived.ID) {
		out = append(out, fmt.Sprintf("destination slot %s does not hold sample %d", dst.Address, derived.ID))
	}
	if srcOK && derivedOK && src.TissueID != derived.TissueID {
		out = append(out, fmt.Sprintf("sample %d is not from the tissue of sample %d", derived.ID, src.ID))
	}
	return out
}

func containsID(ids []int, id int) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func lineageViolation(operationID int, msg string) domain.Violation {
	return domain.Violation{
		Rule:     "lineage_integrity",
		Severity: domain.SeverityBlock,
		Message:  msg,
		Entity:   domain.EntityOperation,
		EntityID: operationID,
	}
}
