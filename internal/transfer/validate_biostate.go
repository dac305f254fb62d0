package transfer

import (
	"strconv"

	"stancore/pkg/domain"
)

// checkBioStates enforces the operation type's bio state restriction and
// keeps reused labware from mixing bio states.
func checkBioStates(problems domain.ProblemSink, view domain.TransactionView, resolved Resolved, req Request) {
	notAllowed := newKeyList()
	for _, d := range req.Destinations {
		target := resolved.TargetBioState(d)
		if target != nil && resolved.OperationType != nil && !resolved.OperationType.BioStateAllowed(target.Name) {
			notAllowed.add(target.Name)
		}
		if !d.IsExisting() {
			continue
		}
		snap, ok := resolved.Destinations.Get(d.Barcode)
		if !ok {
			continue
		}
		existing := snap.ExistingBioStates(view.FindSample)
		if len(existing) == 0 {
			continue
		}
		for _, id := range incomingBioStates(view, resolved, d, target) {
			if _, ok := existing[id]; !ok {
				problems.Addf("Labware %s already contains samples in a different bio state from %s.", snap.Barcode(), bioStateName(view, id))
			}
		}
	}
	if notAllowed.len() > 0 && resolved.OperationType != nil {
		problems.Addf("Bio state not permitted for operation %s: %s", resolved.OperationType.Name, notAllowed)
	}
}

// incomingBioStates lists the bio state ids the destination would receive.
func incomingBioStates(view domain.TransactionView, resolved Resolved, d Destination, target *domain.BioState) []int {
	if target != nil {
		return []int{target.ID}
	}
	seen := make(map[int]struct{})
	var out []int
	for _, c := range d.Contents {
		src, ok := resolved.Sources.Get(c.SourceBarcode)
		if !ok {
			continue
		}
		slot, ok := src.SlotAt(c.SourceAddress)
		if !ok {
			continue
		}
		for _, sampleID := range slot.SampleIDs {
			sample, ok := view.FindSample(sampleID)
			if !ok {
				continue
			}
			if _, dup := seen[sample.BioStateID]; dup {
				continue
			}
			seen[sample.BioStateID] = struct{}{}
			out = append(out, sample.BioStateID)
		}
	}
	return out
}

func bioStateName(view domain.TransactionView, id int) string {
	if bs, ok := view.FindBioState(id); ok {
		return bs.Name
	}
	return "#" + strconv.Itoa(id)
}
