package transfer

import (
	"context"
	"errors"
	"testing"
	"time"

	"stancore/internal/infra/persistence/memory"
	"stancore/pkg/domain"
)

var testUser = domain.User{Username: "user1"}

func addr(text string) domain.Address {
	a, err := domain.ParseAddress(text)
	if err != nil {
		panic(err)
	}
	return a
}

type fixture struct {
	t      *testing.T
	store  *memory.Store
	lt     domain.LabwareType
	tissue domain.Tissue
	bsTis  domain.BioState
	bsCDNA domain.BioState
	s1     domain.Sample
	source domain.Labware
}

// newFixture seeds labware type "lt" (1x3), bio states Tissue and cDNA, the
// operation type "Transfer" and source STAN-S holding S1 in A1.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{t: t, store: memory.NewStore(nil)}
	f.store.SetNowFunc(func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) })
	f.tx(func(tx domain.Transaction) error {
		var err error
		if f.lt, err = tx.CreateLabwareType(domain.LabwareType{Name: "lt", NumRows: 1, NumColumns: 3}); err != nil {
			return err
		}
		if f.tissue, err = tx.CreateTissue(domain.Tissue{ExternalName: "TISSUE1"}); err != nil {
			return err
		}
		if f.bsTis, err = tx.CreateBioState(domain.BioState{Name: "Tissue"}); err != nil {
			return err
		}
		if f.bsCDNA, err = tx.CreateBioState(domain.BioState{Name: "cDNA"}); err != nil {
			return err
		}
		if _, err = tx.CreateOperationType(domain.OperationType{Name: "Transfer"}); err != nil {
			return err
		}
		section := 3
		f.s1, err = tx.CreateSample(domain.Sample{Section: &section, TissueID: f.tissue.ID, BioStateID: f.bsTis.ID})
		return err
	})
	f.source = f.labware("STAN-S", f.lt, map[string][]int{"A1": {f.s1.ID}})
	return f
}

func (f *fixture) tx(fn func(tx domain.Transaction) error) {
	f.t.Helper()
	if _, err := f.store.RunInTransaction(context.Background(), fn); err != nil {
		f.t.Fatalf("fixture transaction: %v", err)
	}
}

// labware creates labware with one slot per grid address and the given contents.
func (f *fixture) labware(barcode string, lt domain.LabwareType, contents map[string][]int) domain.Labware {
	f.t.Helper()
	var lw domain.Labware
	f.tx(func(tx domain.Transaction) error {
		var slots []domain.Slot
		for _, a := range lt.Grid().Addresses() {
			slots = append(slots, domain.Slot{Address: a, SampleIDs: contents[a.String()]})
		}
		var err error
		lw, err = tx.CreateLabware(domain.Labware{LabwareType: lt, Barcode: barcode, Slots: slots})
		return err
	})
	return lw
}

func (f *fixture) labwareType(lt domain.LabwareType) domain.LabwareType {
	f.t.Helper()
	f.tx(func(tx domain.Transaction) error {
		var err error
		lt, err = tx.CreateLabwareType(lt)
		return err
	})
	return lt
}

func (f *fixture) operationType(ot domain.OperationType) domain.OperationType {
	f.t.Helper()
	f.tx(func(tx domain.Transaction) error {
		var err error
		ot, err = tx.CreateOperationType(ot)
		return err
	})
	return ot
}

func (f *fixture) work(number string, status domain.WorkStatus) domain.Work {
	f.t.Helper()
	var w domain.Work
	f.tx(func(tx domain.Transaction) error {
		var err error
		w, err = tx.CreateWork(domain.Work{WorkNumber: number, Status: status})
		return err
	})
	return w
}

func (f *fixture) sample(bs domain.BioState) domain.Sample {
	f.t.Helper()
	var s domain.Sample
	f.tx(func(tx domain.Transaction) error {
		var err error
		s, err = tx.CreateSample(domain.Sample{TissueID: f.tissue.ID, BioStateID: bs.ID})
		return err
	})
	return s
}

func (f *fixture) cleanOut(barcode string, a domain.Address) {
	f.t.Helper()
	f.tx(func(tx domain.Transaction) error {
		lw, ok := tx.Snapshot().FindLabwareByBarcode(barcode)
		if !ok {
			return errors.New("no labware " + barcode)
		}
		for _, slot := range lw.Slots {
			if slot.Address == a {
				slot.CleanedOut = true
				_, err := tx.SaveSlots(lw.ID, []domain.Slot{slot})
				return err
			}
		}
		return errors.New("no slot " + a.String())
	})
}

func (f *fixture) mustLabware(barcode string) domain.Labware {
	f.t.Helper()
	lw, ok := f.store.GetLabwareByBarcode(barcode)
	if !ok {
		f.t.Fatalf("labware %s not found", barcode)
	}
	return lw
}

func slotAt(lw domain.Labware, a domain.Address) domain.Slot {
	for _, slot := range lw.Slots {
		if slot.Address == a {
			return slot
		}
	}
	return domain.Slot{}
}

func copyRequest(opType string, dests ...Destination) Request {
	return Request{OperationType: opType, Destinations: dests}
}

func content(source, from, to string) Content {
	return Content{SourceBarcode: source, SourceAddress: addr(from), DestinationAddress: addr(to)}
}

func problemsOf(t *testing.T, err error) []string {
	t.Helper()
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	return verr.Problems
}

func containsProblem(problems []string, want string) bool {
	for _, p := range problems {
		if p == want {
			return true
		}
	}
	return false
}

// countingStore counts every write made through its transactions.
type countingStore struct {
	*memory.Store
	writes map[string]int
}

func newCountingStore(store *memory.Store) *countingStore {
	return &countingStore{Store: store, writes: make(map[string]int)}
}

func (s *countingStore) total() int {
	n := 0
	for _, c := range s.writes {
		n += c
	}
	return n
}

func (s *countingStore) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	return s.Store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return fn(&countingTx{Transaction: tx, writes: s.writes})
	})
}

type countingTx struct {
	domain.Transaction
	writes map[string]int
}

func (t *countingTx) CreateSample(s domain.Sample) (domain.Sample, error) {
	t.writes["sample"]++
	return t.Transaction.CreateSample(s)
}

func (t *countingTx) CreateLabware(lw domain.Labware) (domain.Labware, error) {
	t.writes["labware"]++
	return t.Transaction.CreateLabware(lw)
}

func (t *countingTx) SaveSlots(id int, slots []domain.Slot) (domain.Labware, error) {
	t.writes["slots"]++
	return t.Transaction.SaveSlots(id, slots)
}

func (t *countingTx) UpdateLabware(ids []int, fn func(*domain.Labware) error) ([]domain.Labware, error) {
	t.writes["update_labware"]++
	return t.Transaction.UpdateLabware(ids, fn)
}

func (t *countingTx) CreateOperation(op domain.Operation) (domain.Operation, error) {
	t.writes["operation"]++
	return t.Transaction.CreateOperation(op)
}

func (t *countingTx) UpdateWork(id int, fn func(*domain.Work) error) (domain.Work, error) {
	t.writes["work"]++
	return t.Transaction.UpdateWork(id, fn)
}
