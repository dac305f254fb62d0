package transfer

import (
	"context"
	"strings"

	"stancore/pkg/domain"
)

// Resolved holds the entities a request refers to, keyed case-insensitively
// by the spelling used in the request. Only entities that were found are
// present.
type Resolved struct {
	OperationType *domain.OperationType
	Work          *domain.Work
	LabwareTypes  *domain.UCMap[domain.LabwareType]
	// Destinations holds existing labware named as destinations.
	Destinations *domain.UCMap[domain.LabwareSnapshot]
	Sources      *domain.UCMap[domain.LabwareSnapshot]
	BioStates    *domain.UCMap[domain.BioState]
}

// DestinationType returns the labware type a destination will have: the
// type of the existing labware when one is reused, otherwise the named type.
func (r Resolved) DestinationType(d Destination) (domain.LabwareType, bool) {
	if d.IsExisting() {
		if snap, ok := r.Destinations.Get(d.Barcode); ok {
			return snap.Labware().LabwareType, true
		}
		return domain.LabwareType{}, false
	}
	return r.LabwareTypes.Get(d.LabwareType)
}

// TargetBioState returns the bio state a destination asks its samples to
// be in, or nil when samples keep their own.
func (r Resolved) TargetBioState(d Destination) *domain.BioState {
	if strings.TrimSpace(d.BioState) == "" {
		return nil
	}
	bs, ok := r.BioStates.Get(d.BioState)
	if !ok {
		return nil
	}
	return &bs
}

// Resolver loads every entity a request names and reports unknown or
// missing keys. It never fails on missing data.
type Resolver interface {
	Resolve(ctx context.Context, problems domain.ProblemSink, view domain.TransactionView, req Request) Resolved
}

// EntityResolver resolves requests against a transaction view.
type EntityResolver struct{}

// NewResolver returns the default resolver.
func NewResolver() *EntityResolver { return &EntityResolver{} }

// Resolve implements Resolver. A request without any content only has its
// labware types looked up.
func (r *EntityResolver) Resolve(_ context.Context, problems domain.ProblemSink, view domain.TransactionView, req Request) Resolved {
	if req.ContentCount() == 0 {
		return Resolved{LabwareTypes: lookupLabwareTypes(view, req)}
	}
	resolved := Resolved{
		LabwareTypes: r.resolveLabwareTypes(problems, view, req),
		Destinations: domain.NewUCMap[domain.LabwareSnapshot](),
		Sources:      domain.NewUCMap[domain.LabwareSnapshot](),
		BioStates:    domain.NewUCMap[domain.BioState](),
	}
	resolved.OperationType = r.resolveOperationType(problems, view, req)
	resolved.Work = r.resolveWork(problems, view, req)
	r.resolveDestinations(problems, view, req, &resolved)
	r.resolveSources(problems, view, req, &resolved)
	r.resolveBioStates(problems, view, req, &resolved)
	return resolved
}

func lookupLabwareTypes(view domain.TransactionView, req Request) *domain.UCMap[domain.LabwareType] {
	out := domain.NewUCMap[domain.LabwareType]()
	for _, d := range req.Destinations {
		name := strings.TrimSpace(d.LabwareType)
		if name == "" || out.Has(name) {
			continue
		}
		if lt, ok := view.FindLabwareTypeByName(name); ok {
			out.Put(name, lt)
		}
	}
	return out
}

func (r *EntityResolver) resolveLabwareTypes(problems domain.ProblemSink, view domain.TransactionView, req Request) *domain.UCMap[domain.LabwareType] {
	out := domain.NewUCMap[domain.LabwareType]()
	unknown := newKeyList()
	missing := false
	for _, d := range req.Destinations {
		name := strings.TrimSpace(d.LabwareType)
		if name == "" {
			if !d.IsExisting() {
				missing = true
			}
			continue
		}
		if out.Has(name) || unknown.has(name) {
			continue
		}
		lt, ok := view.FindLabwareTypeByName(name)
		if !ok {
			unknown.add(name)
			continue
		}
		out.Put(name, lt)
	}
	if missing {
		problems.Add("Labware type not specified.")
	}
	if unknown.len() > 0 {
		problems.Addf("Unknown labware type: %s", unknown)
	}
	return out
}

func (r *EntityResolver) resolveOperationType(problems domain.ProblemSink, view domain.TransactionView, req Request) *domain.OperationType {
	name := strings.TrimSpace(req.OperationType)
	if name == "" {
		problems.Add("No operation type specified.")
		return nil
	}
	ot, ok := view.FindOperationTypeByName(name)
	if !ok {
		problems.Addf("Unknown operation type: %s", name)
		return nil
	}
	return &ot
}

func (r *EntityResolver) resolveWork(problems domain.ProblemSink, view domain.TransactionView, req Request) *domain.Work {
	number := strings.TrimSpace(req.WorkNumber)
	if number == "" {
		return nil
	}
	work, ok := view.FindWorkByNumber(number)
	if !ok {
		problems.Addf("Unknown work number: %s", number)
		return nil
	}
	if !work.IsUsable() {
		problems.Addf("Work %s is not usable because it is %s.", work.WorkNumber, work.Status)
	}
	return &work
}

// resolveDestinations loads existing destination labware, but only when the
// operation type permits adding to existing labware.
func (r *EntityResolver) resolveDestinations(problems domain.ProblemSink, view domain.TransactionView, req Request, resolved *Resolved) {
	barcodes := newKeyList()
	for _, d := range req.Destinations {
		if d.IsExisting() {
			barcodes.add(strings.TrimSpace(d.Barcode))
		}
	}
	if barcodes.len() == 0 || resolved.OperationType == nil {
		return
	}
	if !resolved.OperationType.AllowActiveDestination {
		problems.Addf("Operation type %s cannot be used to add to existing labware: %s", resolved.OperationType.Name, barcodes)
		return
	}
	unknown := newKeyList()
	for _, bc := range barcodes.items {
		lw, ok := view.FindLabwareByBarcode(bc)
		if !ok {
			unknown.add(bc)
			continue
		}
		resolved.Destinations.Put(bc, domain.NewLabwareSnapshot(lw))
	}
	if unknown.len() > 0 {
		problems.Addf("Unknown destination labware barcode: %s", unknown)
	}
}

func (r *EntityResolver) resolveSources(problems domain.ProblemSink, view domain.TransactionView, req Request, resolved *Resolved) {
	for _, d := range req.Destinations {
		for _, c := range d.Contents {
			if strings.TrimSpace(c.SourceBarcode) == "" {
				problems.Add("Source barcode not specified.")
			}
		}
	}
	unknown := newKeyList()
	for _, bc := range req.SourceBarcodes() {
		lw, ok := view.FindLabwareByBarcode(bc)
		if !ok {
			unknown.add(bc)
			continue
		}
		resolved.Sources.Put(bc, domain.NewLabwareSnapshot(lw))
	}
	if unknown.len() > 0 {
		problems.Addf("Unknown labware barcode: %s", unknown)
	}
}

func (r *EntityResolver) resolveBioStates(problems domain.ProblemSink, view domain.TransactionView, req Request, resolved *Resolved) {
	unknown := newKeyList()
	for _, d := range req.Destinations {
		name := strings.TrimSpace(d.BioState)
		if name == "" || resolved.BioStates.Has(name) || unknown.has(name) {
			continue
		}
		bs, ok := view.FindBioStateByName(name)
		if !ok {
			unknown.add(name)
			continue
		}
		resolved.BioStates.Put(name, bs)
	}
	if unknown.len() > 0 {
		problems.Addf("Unknown bio state: %s", unknown)
	}
}

// keyList is an ordered, case-insensitively de-duplicated list of keys
// keeping the first spelling seen.
type keyList struct {
	seen  *domain.UCMap[struct{}]
	items []string
}

func newKeyList() *keyList {
	return &keyList{seen: domain.NewUCMap[struct{}]()}
}

func (k *keyList) add(key string) {
	if k.seen.Has(key) {
		return
	}
	k.seen.Put(key, struct{}{})
	k.items = append(k.items, key)
}

func (k *keyList) has(key string) bool { return k.seen.Has(key) }

func (k *keyList) len() int { return len(k.items) }

func (k *keyList) String() string { return domain.ListDescription(k.items) }
