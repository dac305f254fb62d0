package transfer

import (
	"context"
	"fmt"
	"strings"

	"stancore/pkg/domain"
)

// checkPreBarcodes requires a pre-barcode exactly for prebarcoded types and
// rejects malformed, persisted or repeated ones.
func (v *RequestValidator) checkPreBarcodes(problems domain.ProblemSink, view domain.TransactionView, resolved Resolved, req Request) {
	required := newKeyList()
	forbidden := newKeyList()
	inUse := newKeyList()
	repeated := newKeyList()
	seen := newKeyList()
	for _, d := range req.Destinations {
		bc := strings.TrimSpace(d.PreBarcode)
		if d.IsExisting() {
			if bc != "" {
				problems.Addf("A barcode cannot be given for existing labware %s.", strings.TrimSpace(d.Barcode))
			}
			continue
		}
		if lt, ok := resolved.LabwareTypes.Get(d.LabwareType); ok {
			if lt.Prebarcoded && bc == "" {
				required.add(lt.Name)
			}
			if !lt.Prebarcoded && bc != "" {
				forbidden.add(lt.Name)
			}
		}
		if bc == "" {
			continue
		}
		if seen.has(bc) {
			repeated.add(strings.ToUpper(bc))
			continue
		}
		seen.add(bc)
		if !v.barcodes.Validate(bc, problems) {
			continue
		}
		if view.BarcodeInUse(bc) {
			inUse.add(strings.ToUpper(bc))
		}
	}
	if required.len() > 0 {
		problems.Addf("A barcode is required for labware type: %s", required)
	}
	if forbidden.len() > 0 {
		problems.Addf("A barcode is not expected for labware type: %s", forbidden)
	}
	if inUse.len() > 0 {
		problems.Addf("Barcode already in use: %s", inUse)
	}
	if repeated.len() > 0 {
		problems.Addf("Barcode specified multiple times: %s", repeated)
	}
}

// checkExistingDestinations requires reused labware to be active and of the
// labware type the request names.
func checkExistingDestinations(problems domain.ProblemSink, resolved Resolved, req Request) {
	inactive := newKeyList()
	seen := newKeyList()
	repeated := newKeyList()
	for _, d := range req.Destinations {
		if !d.IsExisting() {
			continue
		}
		bc := strings.TrimSpace(d.Barcode)
		if seen.has(bc) {
			repeated.add(bc)
			continue
		}
		seen.add(bc)
		snap, ok := resolved.Destinations.Get(d.Barcode)
		if !ok {
			continue
		}
		lw := snap.Labware()
		if !lw.IsActive() {
			inactive.add(lw.Barcode)
		}
		name := strings.TrimSpace(d.LabwareType)
		if name != "" && !strings.EqualFold(name, lw.LabwareType.Name) {
			problems.Addf("Labware %s is of type %s, not %s.", lw.Barcode, lw.LabwareType.Name, name)
		}
	}
	if inactive.len() > 0 {
		problems.Addf("Destination labware is not active: %s", inactive)
	}
	if repeated.len() > 0 {
		problems.Addf("Destination labware specified multiple times: %s", repeated)
	}
}

// checkCleanedOut rejects content aimed at cleaned-out slots of reused labware.
func (v *RequestValidator) checkCleanedOut(ctx context.Context, problems domain.ProblemSink, resolved Resolved, req Request) error {
	cleanedByBarcode := domain.NewUCMap[map[domain.Address]struct{}]()
	hits := newKeyList()
	for _, d := range req.Destinations {
		if !d.IsExisting() {
			continue
		}
		snap, ok := resolved.Destinations.Get(d.Barcode)
		if !ok {
			continue
		}
		cleaned, looked := cleanedByBarcode.Get(snap.Barcode())
		if !looked {
			found, err := v.cleaned.CleanedOutAddresses(ctx, snap.Labware())
			if err != nil {
				return fmt.Errorf("look up cleaned out slots of %s: %w", snap.Barcode(), err)
			}
			cleaned = found
			cleanedByBarcode.Put(snap.Barcode(), cleaned)
		}
		for _, c := range d.Contents {
			if _, hit := cleaned[c.DestinationAddress]; hit {
				hits.add(snap.Barcode() + " " + c.DestinationAddress.String())
			}
		}
	}
	if hits.len() > 0 {
		problems.Addf("Cannot add content to cleaned out slots: %s", hits)
	}
	return nil
}
