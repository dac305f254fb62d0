package transfer

import (
	"strings"

	"stancore/pkg/domain"
)

// checkMetadata validates costing and lot numbers. Missing required
// costing and unrecognised costing are reported separately.
func (v *RequestValidator) checkMetadata(problems domain.ProblemSink, resolved Resolved, req Request) {
	missingCosting := false
	unknownCosting := newKeyList()
	for _, d := range req.Destinations {
		costing := strings.TrimSpace(d.Costing)
		if costing == "" {
			if resolved.OperationType != nil && resolved.OperationType.RequiresCosting {
				missingCosting = true
			}
		} else if _, ok := NormaliseCosting(costing); !ok {
			unknownCosting.add(costing)
		}
		for _, lot := range []string{d.LotNumber, d.ProbeLotNumber} {
			if lot = strings.TrimSpace(lot); lot != "" {
				v.lots.Validate(lot, problems)
			}
		}
	}
	if missingCosting {
		problems.Addf("Costing is required for operation %s.", resolved.OperationType.Name)
	}
	if unknownCosting.len() > 0 {
		problems.Addf("Unknown costing: %s", unknownCosting)
	}
}

// checkLPNumbers reports every LP number that does not normalise, upper-cased.
func checkLPNumbers(problems domain.ProblemSink, req Request) {
	bad := newKeyList()
	for _, d := range req.Destinations {
		if strings.TrimSpace(d.LPNumber) == "" {
			continue
		}
		if normalised, ok := NormaliseLPNumber(d.LPNumber); !ok {
			bad.add(normalised)
		}
	}
	if bad.len() > 0 {
		problems.Addf("Unrecognised LP number: %s", bad)
	}
}
