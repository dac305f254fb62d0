package core

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"stancore/pkg/domain"
)

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
// A slotCapacity of zero or less leaves slot occupancy unlimited.
func NewDefaultRulesEngine(slotCapacity int) *domain.RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(LineageIntegrityRule())
	engine.Register(NewBarcodeUniqueRule())
	if slotCapacity > 0 {
		engine.Register(NewSlotCapacityRule(slotCapacity))
	}
	return engine
}

// RulesEngineFromEnv builds the default engine, reading the slot capacity from
// STAN_SLOT_CAPACITY (0 or unset means unlimited).
func RulesEngineFromEnv() (*domain.RulesEngine, error) {
	capacity := 0
	if raw := strings.TrimSpace(os.Getenv("STAN_SLOT_CAPACITY")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid STAN_SLOT_CAPACITY %q", raw)
		}
		capacity = n
	}
	return NewDefaultRulesEngine(capacity), nil
}

// changedLabwareIDs lists the labware created or updated in a transaction.
func changedLabwareIDs(changes []domain.Change) []int {
	seen := make(map[int]struct{})
	var ids []int
	for _, change := range changes {
		if change.Entity != domain.EntityLabware {
			continue
		}
		lw, ok := change.After.(domain.Labware)
		if !ok {
			continue
		}
		if _, dup := seen[lw.ID]; dup {
			continue
		}
		seen[lw.ID] = struct{}{}
		ids = append(ids, lw.ID)
	}
	return ids
}
