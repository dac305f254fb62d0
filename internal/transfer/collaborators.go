package transfer

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"stancore/pkg/domain"
)

// Logger captures structured log output from the coordinator. *slog.Logger
// satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// FormatValidator checks the format of a free-text identifier, reporting
// problems to the sink. It returns false when the value is malformed.
type FormatValidator interface {
	Validate(value string, problems domain.ProblemSink) bool
}

// PatternValidator checks length bounds and a character pattern.
type PatternValidator struct {
	Field   string
	MinLen  int
	MaxLen  int
	Pattern *regexp.Regexp
	// Describe explains the accepted characters in problem messages.
	Describe string
}

// Validate implements FormatValidator.
func (v PatternValidator) Validate(value string, problems domain.ProblemSink) bool {
	ok := true
	if v.MinLen > 0 && len(value) < v.MinLen {
		problems.Addf("%s %q is shorter than %d characters.", v.Field, value, v.MinLen)
		ok = false
	}
	if v.MaxLen > 0 && len(value) > v.MaxLen {
		problems.Addf("%s %q is longer than %d characters.", v.Field, value, v.MaxLen)
		ok = false
	}
	if v.Pattern != nil && !v.Pattern.MatchString(value) {
		problems.Addf("%s %q contains invalid characters. %s", v.Field, value, v.Describe)
		ok = false
	}
	return ok
}

// DefaultBarcodeValidator accepts pre-barcodes of 6 to 20 letters, digits,
// hyphens and underscores.
func DefaultBarcodeValidator() FormatValidator {
	return PatternValidator{
		Field:    "Barcode",
		MinLen:   6,
		MaxLen:   20,
		Pattern:  regexp.MustCompile(`^[A-Za-z0-9_-]+$`),
		Describe: "Only letters, digits, hyphens and underscores are allowed.",
	}
}

// DefaultLotValidator accepts lot numbers of 1 to 25 letters and digits.
func DefaultLotValidator() FormatValidator {
	return PatternValidator{
		Field:    "Lot number",
		MinLen:   1,
		MaxLen:   25,
		Pattern:  regexp.MustCompile(`^[A-Za-z0-9]+$`),
		Describe: "Only letters and digits are allowed.",
	}
}

// CleanedSlotLookup reports which slots of a labware item have been
// cleaned out and may not receive content.
type CleanedSlotLookup interface {
	CleanedOutAddresses(ctx context.Context, lw domain.Labware) (map[domain.Address]struct{}, error)
}

// SlotFlagLookup reads the cleaned-out flag stored on each slot.
type SlotFlagLookup struct{}

// CleanedOutAddresses implements CleanedSlotLookup.
func (SlotFlagLookup) CleanedOutAddresses(_ context.Context, lw domain.Labware) (map[domain.Address]struct{}, error) {
	out := make(map[domain.Address]struct{})
	for _, slot := range lw.Slots {
		if slot.CleanedOut {
			out[slot.Address] = struct{}{}
		}
	}
	return out, nil
}

// SourceStateValidator checks that the loaded source labware is usable.
// declared holds the caller's asserted state per source barcode.
type SourceStateValidator interface {
	ValidateSources(problems domain.ProblemSink, sources []domain.LabwareSnapshot, declared *domain.UCMap[domain.LabwareState])
}

// DefaultSourceStateValidator requires each source to be in its declared
// state, or active when no state was declared.
type DefaultSourceStateValidator struct{}

// ValidateSources implements SourceStateValidator.
func (DefaultSourceStateValidator) ValidateSources(problems domain.ProblemSink, sources []domain.LabwareSnapshot, declared *domain.UCMap[domain.LabwareState]) {
	byState := make(map[domain.LabwareState][]string)
	var order []domain.LabwareState
	for _, src := range sources {
		state := src.State()
		if want, ok := declared.Get(src.Barcode()); ok {
			if state != want {
				problems.Addf("Labware %s is %s, expected %s.", src.Barcode(), state, want)
			}
			continue
		}
		flags := src.StateFlags()
		if !flags.Discarded && !flags.Destroyed && !flags.Released {
			continue
		}
		if _, seen := byState[state]; !seen {
			order = append(order, state)
		}
		byState[state] = append(byState[state], src.Barcode())
	}
	for _, state := range order {
		problems.Addf("Labware is %s: %s", state, domain.ListDescription(byState[state]))
	}
}

// LabwareCreator creates new destination labware.
type LabwareCreator interface {
	CreateLabware(ctx context.Context, tx domain.Transaction, lt domain.LabwareType, preBarcode string) (domain.Labware, error)
}

// StoreLabwareCreator creates labware through the transaction. A
// pre-barcode becomes both the primary and the external barcode.
type StoreLabwareCreator struct{}

// CreateLabware implements LabwareCreator.
func (StoreLabwareCreator) CreateLabware(_ context.Context, tx domain.Transaction, lt domain.LabwareType, preBarcode string) (domain.Labware, error) {
	bc := strings.ToUpper(strings.TrimSpace(preBarcode))
	lw, err := tx.CreateLabware(domain.Labware{LabwareType: lt, Barcode: bc, ExternalBarcode: bc})
	if err != nil {
		return domain.Labware{}, fmt.Errorf("create labware of type %s: %w", lt.Name, err)
	}
	return lw, nil
}

// WorkLinker associates recorded operations with a work number.
type WorkLinker interface {
	Link(ctx context.Context, tx domain.Transaction, work domain.Work, ops []domain.Operation) error
}

// StoreWorkLinker appends the operation ids to the work record.
type StoreWorkLinker struct{}

// Link implements WorkLinker.
func (StoreWorkLinker) Link(_ context.Context, tx domain.Transaction, work domain.Work, ops []domain.Operation) error {
	if len(ops) == 0 {
		return nil
	}
	_, err := tx.UpdateWork(work.ID, func(w *domain.Work) error {
		for _, op := range ops {
			w.OperationIDs = append(w.OperationIDs, op.ID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("link work %s: %w", work.WorkNumber, err)
	}
	return nil
}

// StorageDiscarder tells the external storage tracker that labware has been
// removed from storage. It runs after commit and cannot undo the transfer.
type StorageDiscarder interface {
	DiscardStorage(ctx context.Context, user domain.User, barcodes []string) error
}
