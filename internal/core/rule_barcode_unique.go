package core

import (
	"context"
	"fmt"
	"strings"

	"stancore/pkg/domain"
)

// NewBarcodeUniqueRule blocks commits that leave two labware items sharing a
// primary or external barcode, compared case-insensitively.
func NewBarcodeUniqueRule() domain.Rule {
	return barcodeUniqueRule{}
}

type barcodeUniqueRule struct{}

func (barcodeUniqueRule) Name() string { return "labware_barcode_unique" }

func (barcodeUniqueRule) Evaluate(_ context.Context, view domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	changed := changedLabwareIDs(changes)
	if len(changed) == 0 {
		return res, nil
	}
	owners := make(map[string][]int)
	for _, lw := range view.ListLabware() {
		for _, bc := range labwareBarcodes(lw) {
			owners[bc] = append(owners[bc], lw.ID)
		}
	}
	reported := make(map[string]struct{})
	for _, id := range changed {
		lw, ok := view.FindLabware(id)
		if !ok {
			continue
		}
		for _, bc := range labwareBarcodes(lw) {
			if len(owners[bc]) < 2 {
				continue
			}
			if _, done := reported[bc]; done {
				continue
			}
			reported[bc] = struct{}{}
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "labware_barcode_unique",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("barcode %s is shared by labware %s", bc, domain.ListDescription(owners[bc])),
				Entity:   domain.EntityLabware,
				EntityID: lw.ID,
			})
		}
	}
	return res, nil
}

func labwareBarcodes(lw domain.Labware) []string {
	primary := strings.ToUpper(strings.TrimSpace(lw.Barcode))
	external := strings.ToUpper(strings.TrimSpace(lw.ExternalBarcode))
	out := []string{primary}
	if external != "" && external != primary {
		out = append(out, external)
	}
	return out
}
