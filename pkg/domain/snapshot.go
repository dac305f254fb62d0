package domain

// LabwareStateFlags is the set of state flags carried by a labware item.
type LabwareStateFlags struct {
	Discarded bool
	Destroyed bool
	Released  bool
	Used      bool
}

// LabwareSnapshot is a read-only view of a labware item's slot contents.
// It clones the labware on construction so later mutation of the source
// value cannot leak into validation.
type LabwareSnapshot struct {
	labware Labware
	slots   map[Address]Slot
}

// NewLabwareSnapshot wraps a loaded labware item.
func NewLabwareSnapshot(lw Labware) LabwareSnapshot {
	cloned := CloneLabware(lw)
	slots := make(map[Address]Slot, len(cloned.Slots))
	for _, slot := range cloned.Slots {
		slots[slot.Address] = slot
	}
	return LabwareSnapshot{labware: cloned, slots: slots}
}

// Barcode returns the labware barcode.
func (s LabwareSnapshot) Barcode() string { return s.labware.Barcode }

// Labware returns a copy of the wrapped labware.
func (s LabwareSnapshot) Labware() Labware { return CloneLabware(s.labware) }

// SlotAt returns the slot at the address, if the labware has one there.
func (s LabwareSnapshot) SlotAt(a Address) (Slot, bool) {
	slot, ok := s.slots[a]
	if !ok {
		return Slot{}, false
	}
	slot.SampleIDs = append([]int(nil), slot.SampleIDs...)
	return slot, true
}

// IsEmpty reports whether the slot at the address holds no samples.
// Addresses without a slot count as empty.
func (s LabwareSnapshot) IsEmpty(a Address) bool {
	slot, ok := s.slots[a]
	return !ok || slot.IsEmpty()
}

// SampleIDs lists every distinct sample id in the labware in slot order.
func (s LabwareSnapshot) SampleIDs() []int {
	seen := make(map[int]struct{})
	var out []int
	for _, slot := range s.labware.Slots {
		for _, id := range slot.SampleIDs {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

// ExistingBioStates returns the bio state ids of the samples present, using
// the lookup to resolve sample ids. Unknown samples are skipped.
func (s LabwareSnapshot) ExistingBioStates(lookup func(id int) (Sample, bool)) map[int]struct{} {
	out := make(map[int]struct{})
	for _, id := range s.SampleIDs() {
		sample, ok := lookup(id)
		if !ok {
			continue
		}
		out[sample.BioStateID] = struct{}{}
	}
	return out
}

// StateFlags returns the labware state flags.
func (s LabwareSnapshot) StateFlags() LabwareStateFlags {
	return LabwareStateFlags{
		Discarded: s.labware.Discarded,
		Destroyed: s.labware.Destroyed,
		Released:  s.labware.Released,
		Used:      s.labware.Used,
	}
}

// State returns the dominant labware state.
func (s LabwareSnapshot) State() LabwareState { return s.labware.State() }

// CloneLabware deep-copies a labware item including its slots.
func CloneLabware(lw Labware) Labware {
	cp := lw
	cp.LabwareType = CloneLabwareType(lw.LabwareType)
	if lw.Slots != nil {
		cp.Slots = make([]Slot, len(lw.Slots))
		for i, slot := range lw.Slots {
			cp.Slots[i] = slot
			cp.Slots[i].SampleIDs = append([]int(nil), slot.SampleIDs...)
		}
	}
	return cp
}

// CloneLabwareType deep-copies a labware type.
func CloneLabwareType(lt LabwareType) LabwareType {
	cp := lt
	cp.DisallowedAddresses = append([]Address(nil), lt.DisallowedAddresses...)
	cp.ChannelRows = append([]int(nil), lt.ChannelRows...)
	return cp
}
