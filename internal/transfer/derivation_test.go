package transfer

import (
	"errors"
	"testing"

	"stancore/pkg/domain"
)

type countingCreator struct {
	created []domain.Sample
	err     error
}

func (c *countingCreator) CreateSample(s domain.Sample) (domain.Sample, error) {
	if c.err != nil {
		return domain.Sample{}, c.err
	}
	s.ID = 100 + len(c.created)
	c.created = append(c.created, s)
	return s, nil
}

func TestSampleDeriverIsIdempotentPerTarget(t *testing.T) {
	creator := &countingCreator{}
	derive := NewSampleDeriver(creator)
	section := 4
	src := domain.Sample{ID: 1, Section: &section, TissueID: 7, BioStateID: 1}
	cdna := &domain.BioState{ID: 2, Name: "cDNA"}
	rna := &domain.BioState{ID: 3, Name: "RNA"}

	first, err := derive.Derive(src, cdna)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	again, err := derive.Derive(src, cdna)
	if err != nil {
		t.Fatalf("derive again: %v", err)
	}
	if first.ID != again.ID || len(creator.created) != 1 {
		t.Fatalf("expected one derived sample, created %d (%d vs %d)", len(creator.created), first.ID, again.ID)
	}
	if first.TissueID != 7 || first.BioStateID != 2 || first.Section == nil || *first.Section != 4 {
		t.Fatalf("unexpected derived sample %+v", first)
	}
	section = 9
	if *first.Section != 4 {
		t.Fatalf("derived section shares memory with source")
	}

	other, err := derive.Derive(src, rna)
	if err != nil {
		t.Fatalf("derive rna: %v", err)
	}
	if other.ID == first.ID || len(creator.created) != 2 {
		t.Fatalf("expected a separate sample per target bio state")
	}
}

func TestSampleDeriverKeepsSourceWithoutChange(t *testing.T) {
	creator := &countingCreator{}
	derive := NewSampleDeriver(creator)
	src := domain.Sample{ID: 1, TissueID: 7, BioStateID: 2}

	for _, target := range []*domain.BioState{nil, {ID: 2, Name: "cDNA"}} {
		got, err := derive.Derive(src, target)
		if err != nil {
			t.Fatalf("derive: %v", err)
		}
		if got.ID != src.ID {
			t.Fatalf("expected source sample, got %+v", got)
		}
	}
	if len(creator.created) != 0 {
		t.Fatalf("no sample should be created")
	}
}

func TestSampleDeriverReturnsCreateFailure(t *testing.T) {
	boom := errors.New("disk full")
	derive := NewSampleDeriver(&countingCreator{err: boom})
	_, err := derive.Derive(domain.Sample{ID: 1, BioStateID: 1}, &domain.BioState{ID: 2, Name: "cDNA"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected create failure, got %v", err)
	}
}
