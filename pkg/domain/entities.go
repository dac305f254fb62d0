// Package domain defines the core persistent entities, value types, and
// rule evaluation primitives used by stancore.
package domain

import "time"

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityLabwareType identifies a labware type (plate, tube, slide layout).
	EntityLabwareType EntityType = "labware_type"
	// EntityLabware identifies a labware item and its slots.
	EntityLabware EntityType = "labware"
	// EntitySample identifies a sample record.
	EntitySample EntityType = "sample"
	// EntityTissue identifies a tissue record.
	EntityTissue EntityType = "tissue"
	// EntityBioState identifies a bio state record.
	EntityBioState EntityType = "bio_state"
	// EntityOperationType identifies an operation type record.
	EntityOperationType EntityType = "operation_type"
	// EntityOperation identifies a recorded operation with its actions.
	EntityOperation EntityType = "operation"
	// EntityWork identifies a work (tracking/billing code) record.
	EntityWork EntityType = "work"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// LabwareState summarises the state flags of a labware item.
type LabwareState string

// Labware states, most severe first when several flags are set.
const (
	LabwareStateActive    LabwareState = "active"
	LabwareStateDiscarded LabwareState = "discarded"
	LabwareStateDestroyed LabwareState = "destroyed"
	LabwareStateReleased  LabwareState = "released"
	LabwareStateUsed      LabwareState = "used"
)

// WorkStatus enumerates the states of a work number.
type WorkStatus string

// Only active work may have operations linked to it.
const (
	WorkStatusUnstarted WorkStatus = "unstarted"
	WorkStatusActive    WorkStatus = "active"
	WorkStatusPaused    WorkStatus = "paused"
	WorkStatusCompleted WorkStatus = "completed"
	WorkStatusFailed    WorkStatus = "failed"
	WorkStatusWithdrawn WorkStatus = "withdrawn"
)

// User identifies the person performing an operation.
type User struct {
	Username string `json:"username"`
}

// LabwareType describes the geometry and handling rules of a kind of labware.
type LabwareType struct {
	ID                  int       `json:"id"`
	Name                string    `json:"name"`
	NumRows             int       `json:"num_rows"`
	NumColumns          int       `json:"num_columns"`
	Prebarcoded         bool      `json:"prebarcoded"`
	DisallowedAddresses []Address `json:"disallowed_addresses,omitempty"`
	// ChannelRows lists the only rows a capture device channel may use.
	// Empty means every row is usable.
	ChannelRows []int `json:"channel_rows,omitempty"`
}

// Grid returns the address geometry of the labware type.
func (lt LabwareType) Grid() AddressGrid {
	return NewAddressGrid(lt.NumRows, lt.NumColumns, lt.DisallowedAddresses)
}

// RowPermitted reports whether the channel layout allows the given row.
func (lt LabwareType) RowPermitted(row int) bool {
	if len(lt.ChannelRows) == 0 {
		return true
	}
	for _, r := range lt.ChannelRows {
		if r == row {
			return true
		}
	}
	return false
}

// Labware is a physical container with one slot per grid address.
type Labware struct {
	ID              int         `json:"id"`
	Barcode         string      `json:"barcode"`
	ExternalBarcode string      `json:"external_barcode,omitempty"`
	LabwareType     LabwareType `json:"labware_type"`
	Slots           []Slot      `json:"slots"`
	Discarded       bool        `json:"discarded"`
	Destroyed       bool        `json:"destroyed"`
	Released        bool        `json:"released"`
	Used            bool        `json:"used"`
	Created         time.Time   `json:"created"`
}

// State reports the dominant state flag of the labware.
func (lw Labware) State() LabwareState {
	switch {
	case lw.Destroyed:
		return LabwareStateDestroyed
	case lw.Released:
		return LabwareStateReleased
	case lw.Discarded:
		return LabwareStateDiscarded
	case lw.Used:
		return LabwareStateUsed
	}
	return LabwareStateActive
}

// IsActive reports whether none of discarded, destroyed or released is set.
func (lw Labware) IsActive() bool {
	return !lw.Discarded && !lw.Destroyed && !lw.Released
}

// IsEmpty reports whether no slot in the labware holds a sample.
func (lw Labware) IsEmpty() bool {
	for _, slot := range lw.Slots {
		if !slot.IsEmpty() {
			return false
		}
	}
	return true
}

// Slot is one addressed compartment of a labware item.
type Slot struct {
	ID        int     `json:"id"`
	LabwareID int     `json:"labware_id"`
	Address   Address `json:"address"`
	SampleIDs []int   `json:"sample_ids"`
	// CleanedOut marks the slot as permanently unusable for new content.
	CleanedOut bool `json:"cleaned_out"`
}

// IsEmpty reports whether the slot holds no samples.
func (s Slot) IsEmpty() bool {
	return len(s.SampleIDs) == 0
}

// Sample is an immutable record of material at a given bio state.
type Sample struct {
	ID         int  `json:"id"`
	Section    *int `json:"section,omitempty"`
	TissueID   int  `json:"tissue_id"`
	BioStateID int  `json:"bio_state_id"`
}

// Tissue is the biological origin shared by every sample derived from it.
type Tissue struct {
	ID           int    `json:"id"`
	ExternalName string `json:"external_name"`
}

// BioState is the processing stage of a sample (Tissue, RNA, cDNA, ...).
type BioState struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// OperationType configures how operations of that type are validated and
// what they do to source labware.
type OperationType struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	// AllowActiveDestination permits adding content to existing labware.
	AllowActiveDestination bool `json:"allow_active_destination"`
	// DiscardSource and MarkSourceUsed are mutually exclusive.
	DiscardSource  bool `json:"discard_source"`
	MarkSourceUsed bool `json:"mark_source_used"`
	// DiscardSourcesFromStorage asks the storage tracker to unstore sources after commit.
	DiscardSourcesFromStorage bool `json:"discard_sources_from_storage"`
	// AllowedBioStates restricts destination bio states by name; empty allows any.
	AllowedBioStates []string `json:"allowed_bio_states,omitempty"`
	RequiresCosting  bool     `json:"requires_costing"`
}

// BioStateAllowed reports whether the named bio state may be targeted.
func (ot OperationType) BioStateAllowed(name string) bool {
	if len(ot.AllowedBioStates) == 0 {
		return true
	}
	for _, allowed := range ot.AllowedBioStates {
		if equalFoldKey(allowed, name) {
			return true
		}
	}
	return false
}

// Action is one immutable lineage edge of an operation.
type Action struct {
	ID                  int `json:"id"`
	OperationID         int `json:"operation_id"`
	SourceSlotID        int `json:"source_slot_id"`
	DestinationSlotID   int `json:"destination_slot_id"`
	SourceSampleID      int `json:"source_sample_id"`
	DestinationSampleID int `json:"destination_sample_id"`
}

// OperationNote is an auxiliary key/value record attached to an operation
// for one labware item (lot numbers, costing, LP number).
type OperationNote struct {
	LabwareID int    `json:"labware_id"`
	Name      string `json:"name"`
	Value     string `json:"value"`
}

// Operation records one unit of work. Operations are append-only.
type Operation struct {
	ID              int             `json:"id"`
	OperationTypeID int             `json:"operation_type_id"`
	Username        string          `json:"username"`
	PerformedAt     time.Time       `json:"performed_at"`
	Actions         []Action        `json:"actions"`
	Notes           []OperationNote `json:"notes,omitempty"`
}

// DestinationSlotIDs lists the distinct destination slots of the actions in order.
func (op Operation) DestinationSlotIDs() []int {
	seen := make(map[int]struct{}, len(op.Actions))
	var out []int
	for _, a := range op.Actions {
		if _, ok := seen[a.DestinationSlotID]; ok {
			continue
		}
		seen[a.DestinationSlotID] = struct{}{}
		out = append(out, a.DestinationSlotID)
	}
	return out
}

// Work is a tracking/billing code that operations are linked to.
type Work struct {
	ID           int        `json:"id"`
	WorkNumber   string     `json:"work_number"`
	Status       WorkStatus `json:"status"`
	OperationIDs []int      `json:"operation_ids,omitempty"`
}

// IsUsable reports whether operations may be linked to the work.
func (w Work) IsUsable() bool {
	return w.Status == WorkStatusActive
}
