package transfer

import (
	"fmt"
	"strings"

	"stancore/pkg/domain"
)

type copyKey struct {
	barcode     string
	source      domain.Address
	destination domain.Address
}

// addressBatch groups distinct addresses under a key in first-seen order so
// that one problem per key can be raised.
type addressBatch struct {
	keys  []string
	addrs map[string][]domain.Address
}

func (b *addressBatch) add(key string, a domain.Address) {
	if b.addrs == nil {
		b.addrs = make(map[string][]domain.Address)
	}
	existing, ok := b.addrs[key]
	if !ok {
		b.keys = append(b.keys, key)
	}
	for _, e := range existing {
		if e == a {
			return
		}
	}
	b.addrs[key] = append(existing, a)
}

func (b *addressBatch) report(problems domain.ProblemSink, format string) {
	for _, key := range b.keys {
		problems.Addf(format, key, domain.ListDescription(b.addrs[key]))
	}
}

// checkContents runs the per-item address checks across every destination.
// Copy triples are unique across the whole request; destination addresses
// are unique within one destination.
func checkContents(problems domain.ProblemSink, resolved Resolved, req Request) {
	var (
		missingSource, missingDestination bool
		invalidSource, invalidDestination addressBatch
		disallowed                        addressBatch
	)
	empty := newKeyList()
	repeatedDestination := newKeyList()
	repeatedCopy := newKeyList()
	copies := make(map[copyKey]struct{})
	for _, d := range req.Destinations {
		lt, haveType := resolved.DestinationType(d)
		written := make(map[domain.Address]struct{})
		for _, c := range d.Contents {
			key := copyKey{strings.ToUpper(strings.TrimSpace(c.SourceBarcode)), c.SourceAddress, c.DestinationAddress}
			if _, dup := copies[key]; dup {
				repeatedCopy.add(fmt.Sprintf("%s %s to %s", key.barcode, c.SourceAddress, c.DestinationAddress))
			}
			copies[key] = struct{}{}

			if c.SourceAddress.IsZero() {
				missingSource = true
			} else if src, ok := resolved.Sources.Get(c.SourceBarcode); ok {
				if !src.Labware().LabwareType.Grid().IsValid(c.SourceAddress) {
					invalidSource.add(src.Barcode(), c.SourceAddress)
				} else if src.IsEmpty(c.SourceAddress) {
					empty.add(src.Barcode() + " " + c.SourceAddress.String())
				}
			}

			if c.DestinationAddress.IsZero() {
				missingDestination = true
				continue
			}
			if haveType {
				grid := lt.Grid()
				switch {
				case !grid.IsValid(c.DestinationAddress):
					invalidDestination.add(lt.Name, c.DestinationAddress)
				case grid.IsDisallowed(c.DestinationAddress):
					disallowed.add(lt.Name, c.DestinationAddress)
				case !lt.RowPermitted(c.DestinationAddress.Row):
					problems.Addf("Labware type %s only permits content in rows %s.", lt.Name, domain.ListDescription(lt.ChannelRows))
				}
			}
			if _, dup := written[c.DestinationAddress]; dup {
				repeatedDestination.add(c.DestinationAddress.String())
			}
			written[c.DestinationAddress] = struct{}{}
		}
	}
	if missingSource {
		problems.Add("Missing source address.")
	}
	if missingDestination {
		problems.Add("Missing destination address.")
	}
	invalidSource.report(problems, "Invalid address for source labware %s: %s")
	invalidDestination.report(problems, "Invalid address for labware type %s: %s")
	disallowed.report(problems, "Address not permitted for labware type %s: %s")
	if empty.len() > 0 {
		problems.Addf("Slot is empty: %s", empty)
	}
	if repeatedDestination.len() > 0 {
		problems.Addf("Repeated destination address: %s", repeatedDestination)
	}
	if repeatedCopy.len() > 0 {
		problems.Addf("Repeated copy specified: %s", repeatedCopy)
	}
}
