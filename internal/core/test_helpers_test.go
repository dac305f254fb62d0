package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"stancore/internal/transfer"
	"stancore/pkg/domain"
)

var (
	testUser  = domain.User{Username: "user1"}
	fixedTime = time.Date(2024, 10, 1, 8, 30, 0, 0, time.UTC)
)

func fixedClock() Clock {
	return ClockFunc(func() time.Time { return fixedTime })
}

func addr(text string) domain.Address {
	a, err := domain.ParseAddress(text)
	if err != nil {
		panic(err)
	}
	return a
}

// baseSeed registers a 1x3 tube rack "rack", bio states Tissue and cDNA, the
// operation types Transfer and Move (discards sources from storage), active
// work SGP1 and source STAN-SRC holding s1 in A1 and s2 in A2.
func baseSeed() Seed {
	section := 1
	return Seed{
		LabwareTypes: []domain.LabwareType{{Name: "rack", NumRows: 1, NumColumns: 3}},
		BioStates:    []domain.BioState{{Name: "Tissue"}, {Name: "cDNA"}},
		OperationTypes: []domain.OperationType{
			{Name: "Transfer"},
			{Name: "Move", DiscardSource: true, DiscardSourcesFromStorage: true},
		},
		Tissues: []domain.Tissue{{ExternalName: "TISSUE1"}},
		Works:   []domain.Work{{WorkNumber: "SGP1", Status: domain.WorkStatusActive}},
		Samples: []SeedSample{
			{Key: "s1", Tissue: "TISSUE1", BioState: "Tissue", Section: &section},
			{Key: "s2", Tissue: "TISSUE1", BioState: "Tissue"},
		},
		Labware: []SeedLabware{{
			Barcode:     "STAN-SRC",
			LabwareType: "rack",
			Contents: []SeedSlot{
				{Address: addr("A1"), Samples: []string{"s1"}},
				{Address: addr("A2"), Samples: []string{"s2"}},
			},
		}},
	}
}

func newSeededService(t *testing.T, opts ...Option) (*Service, SeedResult) {
	t.Helper()
	svc := NewInMemoryService(NewDefaultRulesEngine(0), append([]Option{WithClock(fixedClock())}, opts...)...)
	seeded, _, err := svc.ApplySeed(context.Background(), baseSeed())
	if err != nil {
		t.Fatalf("apply seed: %v", err)
	}
	return svc, seeded
}

func transferRequest(opType string, contents ...transfer.Content) transfer.Request {
	return transfer.Request{
		OperationType: opType,
		Destinations:  []transfer.Destination{{LabwareType: "rack", Contents: contents}},
	}
}

func content(src, from, to string) transfer.Content {
	return transfer.Content{SourceBarcode: src, SourceAddress: addr(from), DestinationAddress: addr(to)}
}

func slotAt(t *testing.T, lw domain.Labware, a string) domain.Slot {
	t.Helper()
	slot, ok := domain.NewLabwareSnapshot(lw).SlotAt(addr(a))
	if !ok {
		t.Fatalf("labware %s has no slot %s", lw.Barcode, a)
	}
	return slot
}

type auditRecorderStub struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (r *auditRecorderStub) Record(_ context.Context, entry AuditEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
}

type metricsObservation struct {
	operation string
	success   bool
}

type metricsStub struct {
	observations []metricsObservation
}

func (m *metricsStub) Observe(_ context.Context, operation string, success bool, _ time.Duration) {
	m.observations = append(m.observations, metricsObservation{operation: operation, success: success})
}

type logEntry struct {
	level string
	msg   string
	args  []any
}

type captureLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *captureLogger) add(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, args: args})
}

func (l *captureLogger) Debug(msg string, args ...any) { l.add("debug", msg, args) }
func (l *captureLogger) Info(msg string, args ...any)  { l.add("info", msg, args) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.add("warn", msg, args) }
func (l *captureLogger) Error(msg string, args ...any) { l.add("error", msg, args) }

func (l *captureLogger) has(level, msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.level == level && e.msg == msg {
			return true
		}
	}
	return false
}

type failingDiscarder struct {
	calls int
}

func (d *failingDiscarder) DiscardStorage(context.Context, domain.User, []string) error {
	d.calls++
	return errors.New("storage tracker unavailable")
}

func labwareCount(svc *Service) int { return len(svc.Store().ListLabware()) }

func mustLabware(t *testing.T, svc *Service, barcode string) domain.Labware {
	t.Helper()
	lw, ok := svc.Labware(barcode)
	if !ok {
		t.Fatalf("labware %s not found", barcode)
	}
	return lw
}

func describe(v any) string { return fmt.Sprintf("%+v", v) }
