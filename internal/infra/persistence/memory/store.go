// Package memory provides an in-memory implementation of the core persistence
// store used for tests and ephemeral environments.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"stancore/pkg/domain"
)

// Compile-time contract assertions ensuring memory.Store adheres to the domain persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// LabwareType aliases domain.LabwareType for in-memory persistence operations.
	LabwareType = domain.LabwareType
	// Labware aliases domain.Labware.
	Labware = domain.Labware
	// Slot aliases domain.Slot.
	Slot = domain.Slot
	// Sample aliases domain.Sample.
	Sample = domain.Sample
	// Tissue aliases domain.Tissue.
	Tissue = domain.Tissue
	// BioState aliases domain.BioState.
	BioState = domain.BioState
	// OperationType aliases domain.OperationType.
	OperationType = domain.OperationType
	// Operation aliases domain.Operation.
	Operation = domain.Operation
	// Work aliases domain.Work.
	Work = domain.Work
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

// Sequences holds the next-id counters of every bucket. Ids are small
// integers so that lineage can be stored as an arena keyed by id.
type Sequences struct {
	LabwareType   int `json:"labware_type"`
	Labware       int `json:"labware"`
	Slot          int `json:"slot"`
	Sample        int `json:"sample"`
	Tissue        int `json:"tissue"`
	BioState      int `json:"bio_state"`
	OperationType int `json:"operation_type"`
	Operation     int `json:"operation"`
	Action        int `json:"action"`
	Work          int `json:"work"`
	Barcode       int `json:"barcode"`
}

type memoryState struct {
	labwareTypes   map[int]LabwareType
	labware        map[int]Labware
	samples        map[int]Sample
	tissues        map[int]Tissue
	bioStates      map[int]BioState
	operationTypes map[int]OperationType
	operations     map[int]Operation
	works          map[int]Work
	seq            Sequences
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	LabwareTypes   map[int]LabwareType   `json:"labware_types"`
	Labware        map[int]Labware       `json:"labware"`
	Samples        map[int]Sample        `json:"samples"`
	Tissues        map[int]Tissue        `json:"tissues"`
	BioStates      map[int]BioState      `json:"bio_states"`
	OperationTypes map[int]OperationType `json:"operation_types"`
	Operations     map[int]Operation     `json:"operations"`
	Works          map[int]Work          `json:"works"`
	Sequences      Sequences             `json:"sequences"`
}

func newMemoryState() memoryState {
	return memoryState{
		labwareTypes:   make(map[int]LabwareType),
		labware:        make(map[int]Labware),
		samples:        make(map[int]Sample),
		tissues:        make(map[int]Tissue),
		bioStates:      make(map[int]BioState),
		operationTypes: make(map[int]OperationType),
		operations:     make(map[int]Operation),
		works:          make(map[int]Work),
	}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	cloned := state.clone()
	return Snapshot{
		LabwareTypes:   cloned.labwareTypes,
		Labware:        cloned.labware,
		Samples:        cloned.samples,
		Tissues:        cloned.tissues,
		BioStates:      cloned.bioStates,
		OperationTypes: cloned.operationTypes,
		Operations:     cloned.operations,
		Works:          cloned.works,
		Sequences:      cloned.seq,
	}
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := memoryState{
		labwareTypes:   s.LabwareTypes,
		labware:        s.Labware,
		samples:        s.Samples,
		tissues:        s.Tissues,
		bioStates:      s.BioStates,
		operationTypes: s.OperationTypes,
		operations:     s.Operations,
		works:          s.Works,
		seq:            s.Sequences,
	}
	return state.clone()
}

// migrateSnapshot fills missing buckets and raises sequences so that ids
// issued after an import never collide with imported records.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	if snapshot.LabwareTypes == nil {
		snapshot.LabwareTypes = map[int]LabwareType{}
	}
	if snapshot.Labware == nil {
		snapshot.Labware = map[int]Labware{}
	}
	if snapshot.Samples == nil {
		snapshot.Samples = map[int]Sample{}
	}
	if snapshot.Tissues == nil {
		snapshot.Tissues = map[int]Tissue{}
	}
	if snapshot.BioStates == nil {
		snapshot.BioStates = map[int]BioState{}
	}
	if snapshot.OperationTypes == nil {
		snapshot.OperationTypes = map[int]OperationType{}
	}
	if snapshot.Operations == nil {
		snapshot.Operations = map[int]Operation{}
	}
	if snapshot.Works == nil {
		snapshot.Works = map[int]Work{}
	}

	seq := &snapshot.Sequences
	for id := range snapshot.LabwareTypes {
		seq.LabwareType = max(seq.LabwareType, id)
	}
	for id, lw := range snapshot.Labware {
		seq.Labware = max(seq.Labware, id)
		for i, slot := range lw.Slots {
			seq.Slot = max(seq.Slot, slot.ID)
			if slot.LabwareID == 0 {
				lw.Slots[i].LabwareID = id
			}
		}
		lw.Barcode = strings.ToUpper(lw.Barcode)
		snapshot.Labware[id] = lw
	}
	for id := range snapshot.Samples {
		seq.Sample = max(seq.Sample, id)
	}
	for id := range snapshot.Tissues {
		seq.Tissue = max(seq.Tissue, id)
	}
	for id := range snapshot.BioStates {
		seq.BioState = max(seq.BioState, id)
	}
	for id := range snapshot.OperationTypes {
		seq.OperationType = max(seq.OperationType, id)
	}
	for id, op := range snapshot.Operations {
		seq.Operation = max(seq.Operation, id)
		for _, a := range op.Actions {
			seq.Action = max(seq.Action, a.ID)
		}
	}
	for id := range snapshot.Works {
		seq.Work = max(seq.Work, id)
	}
	return snapshot
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.labwareTypes {
		cloned.labwareTypes[k] = domain.CloneLabwareType(v)
	}
	for k, v := range s.labware {
		cloned.labware[k] = domain.CloneLabware(v)
	}
	for k, v := range s.samples {
		cloned.samples[k] = cloneSample(v)
	}
	for k, v := range s.tissues {
		cloned.tissues[k] = v
	}
	for k, v := range s.bioStates {
		cloned.bioStates[k] = v
	}
	for k, v := range s.operationTypes {
		cloned.operationTypes[k] = cloneOperationType(v)
	}
	for k, v := range s.operations {
		cloned.operations[k] = cloneOperation(v)
	}
	for k, v := range s.works {
		cloned.works[k] = cloneWork(v)
	}
	cloned.seq = s.seq
	return cloned
}

func cloneSample(s Sample) Sample {
	cp := s
	if s.Section != nil {
		section := *s.Section
		cp.Section = &section
	}
	return cp
}

func cloneOperationType(ot OperationType) OperationType {
	cp := ot
	cp.AllowedBioStates = append([]string(nil), ot.AllowedBioStates...)
	return cp
}

func cloneOperation(op Operation) Operation {
	cp := op
	cp.Actions = append([]domain.Action(nil), op.Actions...)
	cp.Notes = append([]domain.OperationNote(nil), op.Notes...)
	return cp
}

func cloneWork(w Work) Work {
	cp := w
	cp.OperationIDs = append([]int(nil), w.OperationIDs...)
	return cp
}

func sortedIDs[V any](m map[int]V) []int {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Store provides an in-memory transactional store for the core domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(migrateSnapshot(snapshot))
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// SetNowFunc overrides the time provider used to stamp records.
func (s *Store) SetNowFunc(fn func() time.Time) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFn = fn
}

// RunInTransaction executes fn within a transactional copy of the store state.
// The copy replaces the committed state only when fn succeeds and no
// blocking rule violation is found.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	view := newTransactionView(&snapshot)
	return fn(view)
}

// Read helpers ---------------------------------------------------------------

// GetLabwareByBarcode retrieves labware by primary barcode from committed state.
func (s *Store) GetLabwareByBarcode(barcode string) (Labware, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).FindLabwareByBarcode(barcode)
}

// ListLabware returns all labware from committed state ordered by id.
func (s *Store) ListLabware() []Labware {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListLabware()
}

// ListSamples returns all samples from committed state ordered by id.
func (s *Store) ListSamples() []Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListSamples()
}

// ListOperations returns all operations from committed state ordered by id.
func (s *Store) ListOperations() []Operation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListOperations()
}

// GetWork retrieves a work by its work number.
func (s *Store) GetWork(workNumber string) (Work, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).FindWorkByNumber(workNumber)
}

func (s *Store) String() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fmt.Sprintf("memory.Store{labware=%d samples=%d operations=%d}", len(s.state.labware), len(s.state.samples), len(s.state.operations))
}
