package transfer

import (
	"context"
	"strconv"

	"stancore/pkg/domain"
)

// NoContentsProblem is reported for a request without any content items.
const NoContentsProblem = "No contents specified."

// Validator checks a resolved request. It only reads: problems go to the
// sink and an error is returned only when a collaborator fails.
type Validator interface {
	Validate(ctx context.Context, problems domain.ProblemSink, view domain.TransactionView, resolved Resolved, req Request) error
}

// RequestValidator is the default Validator.
type RequestValidator struct {
	barcodes     FormatValidator
	lots         FormatValidator
	cleaned      CleanedSlotLookup
	sourceStates SourceStateValidator
}

// ValidatorOption configures a RequestValidator.
type ValidatorOption func(*RequestValidator)

// WithBarcodeValidator overrides the pre-barcode format check.
func WithBarcodeValidator(v FormatValidator) ValidatorOption {
	return func(rv *RequestValidator) {
		if v != nil {
			rv.barcodes = v
		}
	}
}

// WithLotValidator overrides the lot and probe lot number format check.
func WithLotValidator(v FormatValidator) ValidatorOption {
	return func(rv *RequestValidator) {
		if v != nil {
			rv.lots = v
		}
	}
}

// WithCleanedSlotLookup overrides how cleaned-out slots are found.
func WithCleanedSlotLookup(l CleanedSlotLookup) ValidatorOption {
	return func(rv *RequestValidator) {
		if l != nil {
			rv.cleaned = l
		}
	}
}

// WithSourceStateValidator overrides the source usability check.
func WithSourceStateValidator(v SourceStateValidator) ValidatorOption {
	return func(rv *RequestValidator) {
		if v != nil {
			rv.sourceStates = v
		}
	}
}

// NewValidator builds a validator with default collaborators.
func NewValidator(opts ...ValidatorOption) *RequestValidator {
	v := &RequestValidator{
		barcodes:     DefaultBarcodeValidator(),
		lots:         DefaultLotValidator(),
		cleaned:      SlotFlagLookup{},
		sourceStates: DefaultSourceStateValidator{},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate implements Validator. Every check runs even when earlier ones
// found problems, except that a request without content reports only that.
func (v *RequestValidator) Validate(ctx context.Context, problems domain.ProblemSink, view domain.TransactionView, resolved Resolved, req Request) error {
	if !checkStructure(problems, req) {
		return nil
	}
	v.checkPreBarcodes(problems, view, resolved, req)
	checkExistingDestinations(problems, resolved, req)
	v.checkSources(problems, resolved, req)
	checkContents(problems, resolved, req)
	if err := v.checkCleanedOut(ctx, problems, resolved, req); err != nil {
		return err
	}
	checkBioStates(problems, view, resolved, req)
	v.checkMetadata(problems, resolved, req)
	checkLPNumbers(problems, req)
	return nil
}

func checkStructure(problems domain.ProblemSink, req Request) bool {
	if req.ContentCount() == 0 {
		problems.Add(NoContentsProblem)
		return false
	}
	for i, d := range req.Destinations {
		if len(d.Contents) == 0 {
			problems.Addf("No contents specified for %s.", destinationLabel(i, d))
		}
	}
	return true
}

func destinationLabel(index int, d Destination) string {
	switch {
	case d.IsExisting():
		return "labware " + d.Barcode
	case d.PreBarcode != "":
		return "labware " + d.PreBarcode
	}
	return "destination " + strconv.Itoa(index+1)
}
