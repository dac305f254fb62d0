// Package transfer implements the slot-copy engine: it resolves the entities a
// transfer request names, validates every rule before any write, then copies
// or derives samples into destination labware and records the lineage as
// operations and actions inside one store transaction.
package transfer

import (
	"regexp"
	"strings"

	"stancore/pkg/domain"
)

// Request asks for the contents of source slots to be copied into
// destination labware.
type Request struct {
	OperationType string        `json:"operation_type"`
	WorkNumber    string        `json:"work_number,omitempty"`
	Destinations  []Destination `json:"destinations"`
	// SourceStates asserts the state each named source is expected to be in.
	SourceStates []SourceState `json:"source_states,omitempty"`
}

// Destination groups the content items written into one labware item. When
// Barcode is set the content is added to that existing labware, otherwise a
// new labware item of LabwareType is created.
type Destination struct {
	Barcode        string    `json:"barcode,omitempty"`
	LabwareType    string    `json:"labware_type,omitempty"`
	PreBarcode     string    `json:"pre_barcode,omitempty"`
	BioState       string    `json:"bio_state,omitempty"`
	Costing        string    `json:"costing,omitempty"`
	LotNumber      string    `json:"lot_number,omitempty"`
	ProbeLotNumber string    `json:"probe_lot_number,omitempty"`
	LPNumber       string    `json:"lp_number,omitempty"`
	Contents       []Content `json:"contents"`
}

// IsExisting reports whether the destination reuses existing labware.
func (d Destination) IsExisting() bool {
	return strings.TrimSpace(d.Barcode) != ""
}

// Content is one requested copy of a source slot into a destination address.
type Content struct {
	SourceBarcode      string         `json:"source_barcode"`
	SourceAddress      domain.Address `json:"source_address"`
	DestinationAddress domain.Address `json:"destination_address"`
}

// SourceState declares the state a source labware item must be in.
type SourceState struct {
	Barcode string              `json:"barcode"`
	State   domain.LabwareState `json:"state"`
}

// Result lists what a committed transfer produced, in the order the
// destinations were declared.
type Result struct {
	Operations []domain.Operation `json:"operations"`
	Labware    []domain.Labware   `json:"labware"`
}

// ContentCount returns the number of content items across all destinations.
func (r Request) ContentCount() int {
	n := 0
	for _, d := range r.Destinations {
		n += len(d.Contents)
	}
	return n
}

// SourceBarcodes lists the distinct source barcodes in first-seen order,
// keeping the spelling of their first occurrence. Blank barcodes are skipped.
func (r Request) SourceBarcodes() []string {
	seen := domain.NewUCMap[struct{}]()
	var out []string
	for _, d := range r.Destinations {
		for _, c := range d.Contents {
			bc := strings.TrimSpace(c.SourceBarcode)
			if bc == "" || seen.Has(bc) {
				continue
			}
			seen.Put(bc, struct{}{})
			out = append(out, bc)
		}
	}
	return out
}

// Costing values accepted on a destination.
const (
	CostingFaculty             = "FACULTY"
	CostingSGP                 = "SGP"
	CostingWarrantyReplacement = "WARRANTY_REPLACEMENT"
)

var knownCostings = map[string]struct{}{
	CostingFaculty:             {},
	CostingSGP:                 {},
	CostingWarrantyReplacement: {},
}

// NormaliseCosting folds a costing value to its canonical spelling.
func NormaliseCosting(value string) (string, bool) {
	v := strings.ToUpper(strings.TrimSpace(value))
	v = strings.ReplaceAll(v, " ", "_")
	_, ok := knownCostings[v]
	return v, ok
}

var (
	lpNumberPattern = regexp.MustCompile(`^LP\d+$`)
	digitsPattern   = regexp.MustCompile(`^\d+$`)
)

// NormaliseLPNumber trims and upper-cases an LP number, prefixing bare
// numbers with "LP". The second result is false for unrecognised values.
func NormaliseLPNumber(value string) (string, bool) {
	v := strings.ToUpper(strings.TrimSpace(value))
	if digitsPattern.MatchString(v) {
		v = "LP" + v
	}
	return v, lpNumberPattern.MatchString(v)
}
