package domain

import (
	"fmt"
	"sort"
	"strings"
)

// ProblemSink accumulates user-facing validation problems. Implementations
// are append-only, keep insertion order and drop exact duplicates.
type ProblemSink interface {
	Add(problem string)
	Addf(format string, args ...any)
	Len() int
}

// Problems is the default ProblemSink.
type Problems struct {
	items []string
	seen  map[string]struct{}
}

// NewProblems returns an empty problem collection.
func NewProblems() *Problems {
	return &Problems{seen: make(map[string]struct{})}
}

// Add appends a problem unless an identical one was already recorded.
func (p *Problems) Add(problem string) {
	if p.seen == nil {
		p.seen = make(map[string]struct{})
	}
	if _, dup := p.seen[problem]; dup {
		return
	}
	p.seen[problem] = struct{}{}
	p.items = append(p.items, problem)
}

// Addf formats and appends a problem.
func (p *Problems) Addf(format string, args ...any) {
	p.Add(fmt.Sprintf(format, args...))
}

// Len returns the number of distinct problems.
func (p *Problems) Len() int { return len(p.items) }

// Items returns a copy of the problems in the order they were raised.
func (p *Problems) Items() []string {
	return append([]string(nil), p.items...)
}

// Err returns a *ValidationError when any problem was recorded, nil otherwise.
func (p *Problems) Err() error {
	if p.Len() == 0 {
		return nil
	}
	return &ValidationError{Problems: p.Items()}
}

// ValidationError is returned when a request fails validation. It carries
// every problem found so the caller can fix them in one round trip.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return "request failed validation: " + e.Problems[0]
	}
	return fmt.Sprintf("request failed validation with %d problems: %s", len(e.Problems), strings.Join(e.Problems, "; "))
}

// ListDescription renders values as "[a, b, c]" for batched problem messages.
func ListDescription[T any](values []T) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprint(v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// SortedKeys returns the keys of a string set in ascending order.
func SortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
