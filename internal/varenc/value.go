// Package varenc encodes a nested value tree — the task's wrapper
// environment — into the idiomatic surface of each supported wrapper
// script language (shell, batch, make, perl, python, ruby, wsh, ant,
// nant). The tree is a closed union of three shapes: a scalar string, an
// order-preserving map, and an ordered sequence.
package varenc

// Value is the closed union String | *Map | *Seq.
type Value interface {
	isValue()
}

// String is a scalar leaf value.
type String string

func (String) isValue() {}

// Map is an insertion-ordered string-keyed map of values.
type Map struct {
	keys []string
	vals map[string]Value
}

func (*Map) isValue() {}

// NewMap returns an empty ordered map.
func NewMap() *Map {
	return &Map{vals: make(map[string]Value)}
}

// Set inserts or updates key, preserving first-insertion order.
func (m *Map) Set(key string, v Value) *Map {
	if _, exists := m.vals[key]; !exists {
		m.keys = append(m.keys, key)
	}
	m.vals[key] = v
	return m
}

// SetString is a convenience wrapper around Set for scalar values.
func (m *Map) SetString(key, value string) *Map {
	return m.Set(key, String(value))
}

// Keys returns the keys in insertion order.
func (m *Map) Keys() []string {
	return m.keys
}

// Get returns the value at key, or nil if absent.
func (m *Map) Get(key string) Value {
	return m.vals[key]
}

// Len returns the number of entries.
func (m *Map) Len() int {
	return len(m.keys)
}

// Seq is an ordered sequence of values.
type Seq []Value

func (*Seq) isValue() {}

// NewSeq builds a Seq from string items.
func NewSeq(items ...string) *Seq {
	s := make(Seq, len(items))
	for i, it := range items {
		s[i] = String(it)
	}
	return &s
}

// NewValueSeq builds a Seq from arbitrary values.
func NewValueSeq(items ...Value) *Seq {
	s := Seq(items)
	return &s
}

// AllStrings reports whether every element of the sequence is a scalar
// string, and returns them in order if so.
func (s *Seq) AllStrings() ([]string, bool) {
	out := make([]string, 0, len(*s))
	for _, v := range *s {
		sv, ok := v.(String)
		if !ok {
			return nil, false
		}
		out = append(out, string(sv))
	}
	return out, true
}
