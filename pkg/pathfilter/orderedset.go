package pathfilter

import (
	"encoding/json"
	"fmt"
)

// OrderedSet is a set of strings that remembers insertion order.
// It serializes as a JSON array and never shrinks.
type OrderedSet struct {
	items []string
	index map[string]struct{}
}

// Add inserts item and reports whether it was new.
func (s *OrderedSet) Add(item string) bool {
	if s.index == nil {
		s.index = make(map[string]struct{})
	}

	if _, ok := s.index[item]; ok {
		return false
	}

	s.index[item] = struct{}{}
	s.items = append(s.items, item)

	return true
}

// Has reports whether item is in the set.
func (s *OrderedSet) Has(item string) bool {
	_, ok := s.index[item]

	return ok
}

// Len returns the number of items.
func (s *OrderedSet) Len() int {
	return len(s.items)
}

// Items returns a copy of the items in insertion order.
func (s *OrderedSet) Items() []string {
	out := make([]string, len(s.items))
	copy(out, s.items)

	return out
}

// MarshalJSON encodes the set as an array; an empty set is [] rather than null.
func (s OrderedSet) MarshalJSON() ([]byte, error) {
	items := s.items
	if items == nil {
		items = []string{}
	}

	data, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("marshal ordered set: %w", err)
	}

	return data, nil
}

// UnmarshalJSON decodes an array, dropping duplicates.
func (s *OrderedSet) UnmarshalJSON(data []byte) error {
	var items []string

	err := json.Unmarshal(data, &items)
	if err != nil {
		return fmt.Errorf("unmarshal ordered set: %w", err)
	}

	*s = OrderedSet{}
	for _, item := range items {
		s.Add(item)
	}

	return nil
}

// MarshalYAML encodes the set as a sequence.
func (s OrderedSet) MarshalYAML() (any, error) {
	if s.items == nil {
		return []string{}, nil
	}

	return s.items, nil
}
