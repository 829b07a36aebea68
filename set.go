package authz

import "sort"

// IDSet is an unordered set of resource ids.
type IDSet map[string]struct{}

// NewIDSet builds a set from the given ids.
func NewIDSet(ids ...string) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s IDSet) Add(id string) { s[id] = struct{}{} }

func (s IDSet) AddAll(ids []string) {
	for _, id := range ids {
		s[id] = struct{}{}
	}
}

func (s IDSet) Contains(id string) bool {
	_, ok := s[id]
	return ok
}

func (s IDSet) Len() int { return len(s) }

// Union merges other into s in place and returns s.
func (s IDSet) Union(other IDSet) IDSet {
	for id := range other {
		s[id] = struct{}{}
	}
	return s
}

// Subtract removes every id in other from s in place and returns s.
func (s IDSet) Subtract(other IDSet) IDSet {
	for id := range other {
		delete(s, id)
	}
	return s
}

// Clone returns an independent copy.
func (s IDSet) Clone() IDSet {
	out := make(IDSet, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

// Equal reports whether both sets hold exactly the same ids.
func (s IDSet) Equal(other IDSet) bool {
	if len(s) != len(other) {
		return false
	}
	for id := range s {
		if _, ok := other[id]; !ok {
			return false
		}
	}
	return true
}

// Sorted returns the ids in lexical order, for stable output and tests.
func (s IDSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
