package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"stancore/pkg/domain"
)

// Seed is a registry fixture applied in one transaction. Samples are named by
// key and placed into labware slots by address.
type Seed struct {
	LabwareTypes   []domain.LabwareType   `json:"labware_types,omitempty"`
	BioStates      []domain.BioState      `json:"bio_states,omitempty"`
	OperationTypes []domain.OperationType `json:"operation_types,omitempty"`
	Tissues        []domain.Tissue        `json:"tissues,omitempty"`
	Works          []domain.Work          `json:"works,omitempty"`
	Samples        []SeedSample           `json:"samples,omitempty"`
	Labware        []SeedLabware          `json:"labware,omitempty"`
}

// SeedSample describes a sample of a seeded tissue.
type SeedSample struct {
	Key      string `json:"key"`
	Tissue   string `json:"tissue"`
	BioState string `json:"bio_state"`
	Section  *int   `json:"section,omitempty"`
}

// SeedLabware describes a labware item and the samples in its slots.
type SeedLabware struct {
	Barcode         string              `json:"barcode,omitempty"`
	ExternalBarcode string              `json:"external_barcode,omitempty"`
	LabwareType     string              `json:"labware_type"`
	State           domain.LabwareState `json:"state,omitempty"`
	Contents        []SeedSlot          `json:"contents,omitempty"`
	CleanedOut      []domain.Address    `json:"cleaned_out,omitempty"`
}

// SeedSlot lists the sample keys placed at an address.
type SeedSlot struct {
	Address domain.Address `json:"address"`
	Samples []string       `json:"samples"`
}

// SeedResult reports what a seed created.
type SeedResult struct {
	Samples map[string]int   `json:"samples"`
	Labware []domain.Labware `json:"labware"`
}

// DecodeSeed reads a JSON seed, rejecting unknown fields.
func DecodeSeed(r io.Reader) (Seed, error) {
	var seed Seed
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&seed); err != nil {
		return Seed{}, fmt.Errorf("decode seed: %w", err)
	}
	return seed, nil
}

// ApplySeed creates every record of the seed in one transaction.
func (s *Service) ApplySeed(ctx context.Context, seed Seed) (SeedResult, Result, error) {
	var (
		out SeedResult
		res Result
	)
	err := s.run(ctx, opApplySeed, func(ctx context.Context) error {
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var err error
			out, err = applySeed(tx, seed)
			return err
		})
		return err
	})
	if err != nil {
		return SeedResult{}, res, err
	}
	return out, res, nil
}

func applySeed(tx domain.Transaction, seed Seed) (SeedResult, error) {
	out := SeedResult{Samples: make(map[string]int, len(seed.Samples))}
	for _, lt := range seed.LabwareTypes {
		if _, err := tx.CreateLabwareType(lt); err != nil {
			return out, fmt.Errorf("seed labware type %s: %w", lt.Name, err)
		}
	}
	for _, bs := range seed.BioStates {
		if _, err := tx.CreateBioState(bs); err != nil {
			return out, fmt.Errorf("seed bio state %s: %w", bs.Name, err)
		}
	}
	for _, ot := range seed.OperationTypes {
		if _, err := tx.CreateOperationType(ot); err != nil {
			return out, fmt.Errorf("seed operation type %s: %w", ot.Name, err)
		}
	}
	tissues := domain.NewUCMap[domain.Tissue]()
	for _, t := range seed.Tissues {
		created, err := tx.CreateTissue(t)
		if err != nil {
			return out, fmt.Errorf("seed tissue %s: %w", t.ExternalName, err)
		}
		tissues.Put(created.ExternalName, created)
	}
	for _, w := range seed.Works {
		if _, err := tx.CreateWork(w); err != nil {
			return out, fmt.Errorf("seed work %s: %w", w.WorkNumber, err)
		}
	}

	view := tx.Snapshot()
	for _, ss := range seed.Samples {
		key := strings.TrimSpace(ss.Key)
		if key == "" {
			return out, errors.New("seed sample requires a key")
		}
		if _, dup := out.Samples[key]; dup {
			return out, fmt.Errorf("seed sample %s repeated", key)
		}
		tissue, ok := tissues.Get(ss.Tissue)
		if !ok {
			return out, domain.ErrNotFound{Entity: domain.EntityTissue, Key: ss.Tissue}
		}
		bs, ok := view.FindBioStateByName(ss.BioState)
		if !ok {
			return out, domain.ErrNotFound{Entity: domain.EntityBioState, Key: ss.BioState}
		}
		created, err := tx.CreateSample(domain.Sample{TissueID: tissue.ID, BioStateID: bs.ID, Section: ss.Section})
		if err != nil {
			return out, fmt.Errorf("seed sample %s: %w", key, err)
		}
		out.Samples[key] = created.ID
	}

	for _, sl := range seed.Labware {
		lw, err := seedLabware(tx, sl, out.Samples)
		if err != nil {
			return out, err
		}
		out.Labware = append(out.Labware, lw)
	}
	return out, nil
}

func seedLabware(tx domain.Transaction, sl SeedLabware, samples map[string]int) (domain.Labware, error) {
	lt, ok := tx.Snapshot().FindLabwareTypeByName(sl.LabwareType)
	if !ok {
		return domain.Labware{}, domain.ErrNotFound{Entity: domain.EntityLabwareType, Key: sl.LabwareType}
	}
	lw, err := tx.CreateLabware(domain.Labware{
		Barcode:         sl.Barcode,
		ExternalBarcode: sl.ExternalBarcode,
		LabwareType:     lt,
	})
	if err != nil {
		return domain.Labware{}, fmt.Errorf("seed labware %s: %w", sl.Barcode, err)
	}
	if len(sl.Contents) > 0 {
		snapshot := domain.NewLabwareSnapshot(lw)
		slots := make([]domain.Slot, 0, len(sl.Contents))
		for _, content := range sl.Contents {
			slot, ok := snapshot.SlotAt(content.Address)
			if !ok {
				return domain.Labware{}, fmt.Errorf("seed labware %s has no slot %s", lw.Barcode, content.Address)
			}
			for _, key := range content.Samples {
				id, ok := samples[strings.TrimSpace(key)]
				if !ok {
					return domain.Labware{}, domain.ErrNotFound{Entity: domain.EntitySample, Key: key}
				}
				slot.SampleIDs = append(slot.SampleIDs, id)
			}
			slots = append(slots, slot)
		}
		barcode := lw.Barcode
		if lw, err = tx.SaveSlots(lw.ID, slots); err != nil {
			return domain.Labware{}, fmt.Errorf("seed labware %s contents: %w", barcode, err)
		}
	}
	if lw, err = markCleanedOut(tx, lw, sl.CleanedOut); err != nil {
		return domain.Labware{}, err
	}
	if sl.State != "" && sl.State != domain.LabwareStateActive {
		if lw, err = setLabwareState(tx, lw, sl.State); err != nil {
			return domain.Labware{}, err
		}
	}
	return lw, nil
}
