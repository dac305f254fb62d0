package transfer

import (
	"context"
	"slices"
	"testing"

	"stancore/pkg/domain"
)

// countingView records every lookup other than labware types.
type countingView struct {
	domain.TransactionView
	lookups []string
}

func (v *countingView) FindLabwareByBarcode(bc string) (domain.Labware, bool) {
	v.lookups = append(v.lookups, "labware "+bc)
	return v.TransactionView.FindLabwareByBarcode(bc)
}

func (v *countingView) FindOperationTypeByName(name string) (domain.OperationType, bool) {
	v.lookups = append(v.lookups, "operation type "+name)
	return v.TransactionView.FindOperationTypeByName(name)
}

func (v *countingView) FindBioStateByName(name string) (domain.BioState, bool) {
	v.lookups = append(v.lookups, "bio state "+name)
	return v.TransactionView.FindBioStateByName(name)
}

func (v *countingView) FindWorkByNumber(number string) (domain.Work, bool) {
	v.lookups = append(v.lookups, "work "+number)
	return v.TransactionView.FindWorkByNumber(number)
}

func (v *countingView) BarcodeInUse(bc string) bool {
	v.lookups = append(v.lookups, "barcode "+bc)
	return v.TransactionView.BarcodeInUse(bc)
}

// check runs the default resolver and validator against committed state.
func check(t *testing.T, f *fixture, req Request, opts ...ValidatorOption) []string {
	t.Helper()
	var items []string
	err := f.store.View(context.Background(), func(view domain.TransactionView) error {
		problems := domain.NewProblems()
		resolved := NewResolver().Resolve(context.Background(), problems, view, req)
		if err := NewValidator(opts...).Validate(context.Background(), problems, view, resolved, req); err != nil {
			return err
		}
		items = problems.Items()
		return nil
	})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	return items
}

func expectProblems(t *testing.T, got []string, want ...string) {
	t.Helper()
	if !slices.Equal(got, want) {
		t.Fatalf("problems = %q, want %q", got, want)
	}
}

func TestZeroContentsReportsOnlyThat(t *testing.T) {
	f := newFixture(t)
	req := Request{
		OperationType: "Unknown op",
		WorkNumber:    "SGP404",
		Destinations: []Destination{
			{LabwareType: "lt", BioState: "nope", PreBarcode: "x"},
			{Barcode: "STAN-X"},
		},
	}
	var lookups []string
	var items []string
	err := f.store.View(context.Background(), func(view domain.TransactionView) error {
		cv := &countingView{TransactionView: view}
		problems := domain.NewProblems()
		resolved := NewResolver().Resolve(context.Background(), problems, cv, req)
		if err := NewValidator().Validate(context.Background(), problems, cv, resolved, req); err != nil {
			return err
		}
		if _, ok := resolved.LabwareTypes.Get("lt"); !ok {
			t.Errorf("labware type should still be looked up")
		}
		lookups = cv.lookups
		items = problems.Items()
		return nil
	})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	expectProblems(t, items, NoContentsProblem)
	if len(lookups) != 0 {
		t.Fatalf("unexpected lookups %q", lookups)
	}
}

func TestEmptyDestinationReported(t *testing.T) {
	f := newFixture(t)
	got := check(t, f, copyRequest("Transfer",
		Destination{LabwareType: "lt", Contents: []Content{content("STAN-S", "A1", "A1")}},
		Destination{LabwareType: "lt"},
	))
	expectProblems(t, got, "No contents specified for destination 2.")
}

func TestResolverReportsUnknownEntities(t *testing.T) {
	f := newFixture(t)
	req := Request{
		OperationType: "Transfer",
		WorkNumber:    "SGP9",
		Destinations: []Destination{
			{LabwareType: "plate", BioState: "RNA", Contents: []Content{content("STAN-404", "A1", "A1")}},
			{Contents: []Content{content("", "A1", "A1")}},
		},
	}
	got := check(t, f, req)
	for _, want := range []string{
		"Labware type not specified.",
		"Unknown labware type: [plate]",
		"Unknown work number: SGP9",
		"Source barcode not specified.",
		"Unknown labware barcode: [STAN-404]",
		"Unknown bio state: [RNA]",
	} {
		if !containsProblem(got, want) {
			t.Fatalf("missing %q in %q", want, got)
		}
	}

	req.OperationType = " "
	if got := check(t, f, req); !containsProblem(got, "No operation type specified.") {
		t.Fatalf("missing operation type problem in %q", got)
	}
}

func TestInvalidAddressesBatchedPerType(t *testing.T) {
	f := newFixture(t)
	f.labware("STAN-T", f.lt, map[string][]int{"A1": {f.s1.ID}})
	got := check(t, f, copyRequest("Transfer",
		Destination{LabwareType: "lt", Contents: []Content{content("STAN-S", "A1", "A4"), content("STAN-S", "A1", "B1")}},
		Destination{LabwareType: "LT", Contents: []Content{content("STAN-T", "A1", "A4")}},
	))
	expectProblems(t, got, "Invalid address for labware type lt: [A4, B1]")
}

func TestSourceAddressChecks(t *testing.T) {
	f := newFixture(t)
	got := check(t, f, copyRequest("Transfer", Destination{
		LabwareType: "lt",
		Contents: []Content{
			content("STAN-S", "A2", "A1"),
			content("STAN-S", "C7", "A2"),
			{SourceBarcode: "STAN-S", DestinationAddress: addr("A3")},
		},
	}))
	expectProblems(t, got,
		"Missing source address.",
		"Invalid address for source labware STAN-S: [C7]",
		"Slot is empty: [STAN-S A2]",
	)
}

func TestRepeatedCopyReportedOnce(t *testing.T) {
	f := newFixture(t)
	got := check(t, f, copyRequest("Transfer",
		Destination{LabwareType: "lt", Contents: []Content{content("STAN-S", "A1", "A1"), content("stan-s", "A1", "A1")}},
		Destination{LabwareType: "lt", Contents: []Content{content("STAN-S", "A1", "A1")}},
	))
	expectProblems(t, got,
		"Repeated destination address: [A1]",
		"Repeated copy specified: [STAN-S A1 to A1]",
	)
}

func TestRepeatedCopyAcrossDestinations(t *testing.T) {
	f := newFixture(t)
	got := check(t, f, copyRequest("Transfer",
		Destination{LabwareType: "lt", Contents: []Content{content("STAN-S", "A1", "A1")}},
		Destination{LabwareType: "lt", Contents: []Content{content("STAN-S", "A1", "A1")}},
	))
	expectProblems(t, got, "Repeated copy specified: [STAN-S A1 to A1]")
}

func TestDisallowedAndChannelRows(t *testing.T) {
	f := newFixture(t)
	f.labwareType(domain.LabwareType{
		Name: "slide", NumRows: 4, NumColumns: 2,
		DisallowedAddresses: []domain.Address{addr("B2")},
		ChannelRows:         []int{1, 4},
	})
	got := check(t, f, copyRequest("Transfer", Destination{
		LabwareType: "slide",
		Contents: []Content{
			content("STAN-S", "A1", "B2"),
			content("STAN-S", "A1", "C1"),
			content("STAN-S", "A1", "C2"),
			content("STAN-S", "A1", "D1"),
		},
	}))
	expectProblems(t, got,
		"Labware type slide only permits content in rows [1, 4].",
		"Address not permitted for labware type slide: [B2]",
	)
}

func TestPreBarcodeRules(t *testing.T) {
	f := newFixture(t)
	f.labwareType(domain.LabwareType{Name: "tube", NumRows: 1, NumColumns: 1, Prebarcoded: true})
	f.labware("TUBE-USED", f.lt, nil)
	f.labware("STAN-M", f.lt, map[string][]int{"A1": {f.s1.ID}, "A2": {f.s1.ID}, "A3": {f.s1.ID}})
	f.labware("STAN-N", f.lt, map[string][]int{"A1": {f.s1.ID}})

	got := check(t, f, copyRequest("Transfer",
		Destination{LabwareType: "tube", Contents: []Content{content("STAN-S", "A1", "A1")}},
		Destination{LabwareType: "lt", PreBarcode: "LT-000001", Contents: []Content{content("STAN-S", "A1", "A2")}},
		Destination{LabwareType: "tube", PreBarcode: "tube-used", Contents: []Content{content("STAN-M", "A1", "A1")}},
		Destination{LabwareType: "tube", PreBarcode: "TUBE-002", Contents: []Content{content("STAN-M", "A2", "A1")}},
		Destination{LabwareType: "tube", PreBarcode: "tube-002", Contents: []Content{content("STAN-M", "A3", "A1")}},
		Destination{LabwareType: "tube", PreBarcode: "bad!", Contents: []Content{content("STAN-N", "A1", "A1")}},
	))
	expectProblems(t, got,
		`Barcode "bad!" is shorter than 6 characters.`,
		`Barcode "bad!" contains invalid characters. Only letters, digits, hyphens and underscores are allowed.`,
		"A barcode is required for labware type: [tube]",
		"A barcode is not expected for labware type: [lt]",
		"Barcode already in use: [TUBE-USED]",
		"Barcode specified multiple times: [TUBE-002]",
	)
}

func TestExistingDestinationChecks(t *testing.T) {
	f := newFixture(t)
	f.operationType(domain.OperationType{Name: "Top up", AllowActiveDestination: true})
	tube := f.labwareType(domain.LabwareType{Name: "tube", NumRows: 1, NumColumns: 1})
	f.labware("STAN-X", f.lt, nil)
	dead := f.labware("STAN-D", tube, nil)
	f.tx(func(tx domain.Transaction) error {
		_, err := tx.UpdateLabware([]int{dead.ID}, func(lw *domain.Labware) error {
			lw.Destroyed = true
			return nil
		})
		return err
	})

	f.labware("STAN-M", f.lt, map[string][]int{"A1": {f.s1.ID}})

	got := check(t, f, copyRequest("Top up",
		Destination{Barcode: "STAN-X", LabwareType: "tube", PreBarcode: "NEW-0001", Contents: []Content{content("STAN-S", "A1", "A3")}},
		Destination{Barcode: "STAN-D", Contents: []Content{content("STAN-S", "A1", "A1")}},
		Destination{Barcode: "stan-x", Contents: []Content{content("STAN-S", "A1", "A2")}},
		Destination{Barcode: "STAN-404", Contents: []Content{content("STAN-M", "A1", "A1")}},
	))
	expectProblems(t, got,
		"Unknown destination labware barcode: [STAN-404]",
		"A barcode cannot be given for existing labware STAN-X.",
		"Labware STAN-X is of type lt, not tube.",
		"Destination labware is not active: [STAN-D]",
		"Destination labware specified multiple times: [stan-x]",
	)
}

func TestSourceStates(t *testing.T) {
	f := newFixture(t)
	used := f.labware("STAN-U", f.lt, map[string][]int{"A1": {f.s1.ID}})
	gone := f.labware("STAN-G", f.lt, map[string][]int{"A1": {f.s1.ID}})
	f.tx(func(tx domain.Transaction) error {
		if _, err := tx.UpdateLabware([]int{used.ID}, func(lw *domain.Labware) error {
			lw.Used = true
			return nil
		}); err != nil {
			return err
		}
		_, err := tx.UpdateLabware([]int{gone.ID}, func(lw *domain.Labware) error {
			lw.Discarded = true
			return nil
		})
		return err
	})
	req := copyRequest("Transfer", Destination{LabwareType: "lt", Contents: []Content{
		content("STAN-S", "A1", "A1"),
		content("STAN-U", "A1", "A2"),
		content("STAN-G", "A1", "A3"),
	}})

	// Undeclared used labware is fine; discarded labware is not.
	expectProblems(t, check(t, f, req), "Labware is discarded: [STAN-G]")

	req.SourceStates = []SourceState{
		{Barcode: "STAN-U", State: "Active"},
		{Barcode: "stan-g", State: domain.LabwareStateDiscarded},
		{Barcode: "STAN-G", State: domain.LabwareStateDiscarded},
		{Barcode: "STAN-Q", State: domain.LabwareStateUsed},
		{Barcode: "STAN-S", State: "melted"},
		{State: domain.LabwareStateActive},
	}
	expectProblems(t, check(t, f, req),
		"Source state given without a barcode.",
		"Unknown labware state: [melted]",
		"Source state specified multiple times: [STAN-G]",
		"Source state given for labware that is not a source: [STAN-Q]",
		"Labware STAN-U is used, expected active.",
	)
}

func TestBioStateRestrictions(t *testing.T) {
	f := newFixture(t)
	f.operationType(domain.OperationType{Name: "Make cDNA", AllowActiveDestination: true, AllowedBioStates: []string{"cDNA"}})
	f.labware("STAN-X", f.lt, map[string][]int{"A1": {f.sample(f.bsCDNA).ID}})

	got := check(t, f, copyRequest("Make cDNA",
		Destination{LabwareType: "lt", BioState: "Tissue", Contents: []Content{content("STAN-S", "A1", "A1")}},
		Destination{Barcode: "STAN-X", Contents: []Content{content("STAN-S", "A1", "A2")}},
	))
	expectProblems(t, got,
		"Labware STAN-X already contains samples in a different bio state from Tissue.",
		"Bio state not permitted for operation Make cDNA: [Tissue]",
	)

	got = check(t, f, copyRequest("Make cDNA",
		Destination{Barcode: "STAN-X", BioState: "cdna", Contents: []Content{content("STAN-S", "A1", "A2")}},
	))
	expectProblems(t, got)
}

func TestMetadataChecks(t *testing.T) {
	f := newFixture(t)
	f.operationType(domain.OperationType{Name: "Probe", RequiresCosting: true})

	got := check(t, f, copyRequest("Probe",
		Destination{LabwareType: "lt", LotNumber: "lot-1", LPNumber: "lp12x", Contents: []Content{content("STAN-S", "A1", "A1")}},
		Destination{LabwareType: "lt", Costing: "free", LPNumber: "12345", Contents: []Content{content("STAN-S", "A1", "A2")}},
		Destination{LabwareType: "lt", Costing: "warranty replacement", ProbeLotNumber: "P1", LPNumber: "x1", Contents: []Content{content("STAN-S", "A1", "A3")}},
	))
	expectProblems(t, got,
		`Lot number "lot-1" contains invalid characters. Only letters and digits are allowed.`,
		"Costing is required for operation Probe.",
		"Unknown costing: [free]",
		"Unrecognised LP number: [LP12X, X1]",
	)
}

func TestNormaliseLPNumber(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"12", "LP12", true},
		{" lp3 ", "LP3", true},
		{"LP0001", "LP0001", true},
		{"LP", "LP", false},
		{"12345", "LP12345", true},
		{"LP12345", "LP12345", true},
		{"LPX", "LPX", false},
		{"lp-1", "LP-1", false},
	}
	for _, tc := range cases {
		got, ok := NormaliseLPNumber(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("NormaliseLPNumber(%q) = %q, %v; want %q, %v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestNormaliseCosting(t *testing.T) {
	if got, ok := NormaliseCosting(" faculty "); !ok || got != CostingFaculty {
		t.Fatalf("faculty normalised to %q, %v", got, ok)
	}
	if got, ok := NormaliseCosting("Warranty replacement"); !ok || got != CostingWarrantyReplacement {
		t.Fatalf("warranty normalised to %q, %v", got, ok)
	}
	if _, ok := NormaliseCosting("gratis"); ok {
		t.Fatalf("unknown costing accepted")
	}
}
