package transfer

import (
	"fmt"

	"stancore/pkg/domain"
)

// SampleCreator persists new samples. domain.Transaction satisfies it.
type SampleCreator interface {
	CreateSample(domain.Sample) (domain.Sample, error)
}

// Derivation maps a source sample to the sample written into a destination.
type Derivation interface {
	Derive(source domain.Sample, target *domain.BioState) (domain.Sample, error)
}

// DerivationFactory builds a request-scoped Derivation.
type DerivationFactory func(creator SampleCreator) Derivation

type derivationKey struct {
	sampleID   int
	bioStateID int
}

// SampleDeriver creates at most one derived sample per source sample and
// target bio state within one request.
type SampleDeriver struct {
	creator SampleCreator
	memo    map[derivationKey]domain.Sample
}

// NewSampleDeriver is the default DerivationFactory.
func NewSampleDeriver(creator SampleCreator) Derivation {
	return &SampleDeriver{creator: creator, memo: make(map[derivationKey]domain.Sample)}
}

// Derive returns the source sample when no bio state change is needed,
// otherwise a new sample with the same tissue and section.
func (d *SampleDeriver) Derive(source domain.Sample, target *domain.BioState) (domain.Sample, error) {
	if target == nil || target.ID == source.BioStateID {
		return source, nil
	}
	key := derivationKey{sampleID: source.ID, bioStateID: target.ID}
	if derived, ok := d.memo[key]; ok {
		return derived, nil
	}
	derived := domain.Sample{TissueID: source.TissueID, BioStateID: target.ID}
	if source.Section != nil {
		section := *source.Section
		derived.Section = &section
	}
	created, err := d.creator.CreateSample(derived)
	if err != nil {
		return domain.Sample{}, fmt.Errorf("derive sample %d as %s: %w", source.ID, target.Name, err)
	}
	d.memo[key] = created
	return created, nil
}
