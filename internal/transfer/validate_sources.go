package transfer

import (
	"strings"

	"stancore/pkg/domain"
)

var declarableStates = map[domain.LabwareState]struct{}{
	domain.LabwareStateActive:    {},
	domain.LabwareStateDiscarded: {},
	domain.LabwareStateDestroyed: {},
	domain.LabwareStateReleased:  {},
	domain.LabwareStateUsed:      {},
}

// checkSources validates declared source states and then hands every
// loaded source to the source state validator.
func (v *RequestValidator) checkSources(problems domain.ProblemSink, resolved Resolved, req Request) {
	sources := domain.NewUCMap[struct{}]()
	for _, bc := range req.SourceBarcodes() {
		sources.Put(bc, struct{}{})
	}
	declared := domain.NewUCMap[domain.LabwareState]()
	unknownStates := newKeyList()
	repeated := newKeyList()
	notSources := newKeyList()
	for _, ss := range req.SourceStates {
		bc := strings.TrimSpace(ss.Barcode)
		if bc == "" {
			problems.Add("Source state given without a barcode.")
			continue
		}
		state := domain.LabwareState(strings.ToLower(strings.TrimSpace(string(ss.State))))
		if _, ok := declarableStates[state]; !ok {
			unknownStates.add(string(ss.State))
			continue
		}
		if declared.Has(bc) {
			repeated.add(bc)
			continue
		}
		declared.Put(bc, state)
		if !sources.Has(bc) {
			notSources.add(bc)
		}
	}
	if unknownStates.len() > 0 {
		problems.Addf("Unknown labware state: %s", unknownStates)
	}
	if repeated.len() > 0 {
		problems.Addf("Source state specified multiple times: %s", repeated)
	}
	if notSources.len() > 0 {
		problems.Addf("Source state given for labware that is not a source: %s", notSources)
	}
	v.sourceStates.ValidateSources(problems, resolved.Sources.Values(), declared)
}
