package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Address identifies a slot within a labware grid. Rows and columns are
// 1-indexed; the zero value means "no address given".
type Address struct {
	Row    int `json:"row"`
	Column int `json:"column"`
}

// NewAddress builds an address from 1-based row and column numbers.
func NewAddress(row, column int) Address {
	return Address{Row: row, Column: column}
}

// IsZero reports whether the address was left unset.
func (a Address) IsZero() bool {
	return a.Row == 0 && a.Column == 0
}

// Compare orders addresses by row, then column.
func (a Address) Compare(other Address) int {
	switch {
	case a.Row < other.Row:
		return -1
	case a.Row > other.Row:
		return 1
	case a.Column < other.Column:
		return -1
	case a.Column > other.Column:
		return 1
	}
	return 0
}

// String renders the address in the lab's A1 notation. Rows beyond Z use
// the spreadsheet convention (AA, AB, ...).
func (a Address) String() string {
	if a.Row <= 0 || a.Column <= 0 {
		return fmt.Sprintf("%d,%d", a.Row, a.Column)
	}
	return rowLetters(a.Row) + strconv.Itoa(a.Column)
}

func rowLetters(row int) string {
	var b []byte
	for row > 0 {
		row--
		b = append([]byte{byte('A' + row%26)}, b...)
		row /= 26
	}
	return string(b)
}

// ParseAddress accepts "A1" notation (case-insensitive) or "row,column".
func ParseAddress(text string) (Address, error) {
	s := strings.ToUpper(strings.TrimSpace(text))
	if s == "" {
		return Address{}, fmt.Errorf("empty address")
	}
	if idx := strings.IndexByte(s, ','); idx >= 0 {
		row, err := strconv.Atoi(strings.TrimSpace(s[:idx]))
		if err != nil {
			return Address{}, fmt.Errorf("invalid address %q", text)
		}
		col, err := strconv.Atoi(strings.TrimSpace(s[idx+1:]))
		if err != nil {
			return Address{}, fmt.Errorf("invalid address %q", text)
		}
		if row <= 0 || col <= 0 {
			return Address{}, fmt.Errorf("invalid address %q", text)
		}
		return Address{Row: row, Column: col}, nil
	}
	i := 0
	row := 0
	for i < len(s) && s[i] >= 'A' && s[i] <= 'Z' {
		row = row*26 + int(s[i]-'A'+1)
		i++
	}
	if i == 0 || i == len(s) {
		return Address{}, fmt.Errorf("invalid address %q", text)
	}
	col, err := strconv.Atoi(s[i:])
	if err != nil || col <= 0 {
		return Address{}, fmt.Errorf("invalid address %q", text)
	}
	return Address{Row: row, Column: col}, nil
}

// MarshalText implements encoding.TextMarshaler so addresses travel as "A1".
func (a Address) MarshalText() ([]byte, error) {
	if a.IsZero() {
		return []byte{}, nil
	}
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. An empty string yields
// the zero address so that missing values can be reported by validation.
func (a *Address) UnmarshalText(text []byte) error {
	if strings.TrimSpace(string(text)) == "" {
		*a = Address{}
		return nil
	}
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
