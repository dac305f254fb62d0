package domain

import "strings"

func normalizeKey(key string) string {
	return strings.ToUpper(strings.TrimSpace(key))
}

func equalFoldKey(a, b string) bool {
	return normalizeKey(a) == normalizeKey(b)
}

// UCMap is a case-insensitive keyed map. Keys are folded to upper case on
// insert and lookup; values keep their original spelling.
type UCMap[V any] struct {
	entries map[string]V
	order   []string
}

// NewUCMap returns an empty map.
func NewUCMap[V any]() *UCMap[V] {
	return &UCMap[V]{entries: make(map[string]V)}
}

// UCMapOf indexes values by the key derived from each one.
func UCMapOf[V any](values []V, key func(V) string) *UCMap[V] {
	m := NewUCMap[V]()
	for _, v := range values {
		m.Put(key(v), v)
	}
	return m
}

// Put stores value under key, replacing any case variant of it.
func (m *UCMap[V]) Put(key string, value V) {
	k := normalizeKey(key)
	if _, ok := m.entries[k]; !ok {
		m.order = append(m.order, k)
	}
	m.entries[k] = value
}

// Get returns the value stored under any case variant of key.
func (m *UCMap[V]) Get(key string) (V, bool) {
	if m == nil {
		var zero V
		return zero, false
	}
	v, ok := m.entries[normalizeKey(key)]
	return v, ok
}

// Has reports whether key is present.
func (m *UCMap[V]) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

// Len returns the number of entries.
func (m *UCMap[V]) Len() int {
	if m == nil {
		return 0
	}
	return len(m.entries)
}

// Values returns values in insertion order.
func (m *UCMap[V]) Values() []V {
	if m == nil {
		return nil
	}
	out := make([]V, 0, len(m.order))
	for _, k := range m.order {
		out = append(out, m.entries[k])
	}
	return out
}
