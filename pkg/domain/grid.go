package domain

// AddressGrid answers geometry questions for a labware type. It is a pure
// value: no I/O and no reference back to the owning type.
type AddressGrid struct {
	rows       int
	columns    int
	disallowed map[Address]struct{}
}

// NewAddressGrid builds a grid of rows x columns with an optional disallow list.
func NewAddressGrid(rows, columns int, disallowed []Address) AddressGrid {
	g := AddressGrid{rows: rows, columns: columns}
	if len(disallowed) > 0 {
		g.disallowed = make(map[Address]struct{}, len(disallowed))
		for _, a := range disallowed {
			g.disallowed[a] = struct{}{}
		}
	}
	return g
}

// Rows returns the number of rows in the grid.
func (g AddressGrid) Rows() int { return g.rows }

// Columns returns the number of columns in the grid.
func (g AddressGrid) Columns() int { return g.columns }

// IsValid reports whether the address lies within the grid bounds.
// Disallow-list membership does not affect the answer.
func (g AddressGrid) IsValid(a Address) bool {
	return a.Row >= 1 && a.Column >= 1 && a.Row <= g.rows && a.Column <= g.columns
}

// IsDisallowed reports whether the address is on the type's disallow list.
// Out-of-bounds addresses are never reported as disallowed.
func (g AddressGrid) IsDisallowed(a Address) bool {
	if !g.IsValid(a) {
		return false
	}
	_, ok := g.disallowed[a]
	return ok
}

// Addresses lists every in-bounds address in row-major order.
func (g AddressGrid) Addresses() []Address {
	if g.rows <= 0 || g.columns <= 0 {
		return nil
	}
	out := make([]Address, 0, g.rows*g.columns)
	for r := 1; r <= g.rows; r++ {
		for c := 1; c <= g.columns; c++ {
			out = append(out, Address{Row: r, Column: c})
		}
	}
	return out
}
