package feasibility

import "sort"

// IDSet is an unordered, deduplicated set of patient identifiers.
type IDSet map[string]struct{}

// NewIDSet returns a set holding ids.
func NewIDSet(ids ...string) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s IDSet) Add(id string) { s[id] = struct{}{} }

func (s IDSet) Contains(id string) bool {
	_, ok := s[id]
	return ok
}

func (s IDSet) Len() int { return len(s) }

// Union returns a new set with the members of s and o.
func (s IDSet) Union(o IDSet) IDSet {
	out := make(IDSet, len(s)+len(o))
	for id := range s {
		out[id] = struct{}{}
	}
	for id := range o {
		out[id] = struct{}{}
	}
	return out
}

// Intersect returns a new set with the members present in both s and o.
func (s IDSet) Intersect(o IDSet) IDSet {
	small, large := s, o
	if len(large) < len(small) {
		small, large = large, small
	}
	out := make(IDSet, len(small))
	for id := range small {
		if _, ok := large[id]; ok {
			out[id] = struct{}{}
		}
	}
	return out
}

// Difference returns a new set with the members of s not in o.
func (s IDSet) Difference(o IDSet) IDSet {
	out := make(IDSet, len(s))
	for id := range s {
		if _, ok := o[id]; !ok {
			out[id] = struct{}{}
		}
	}
	return out
}

// Sorted lists the members in ascending order.
func (s IDSet) Sorted() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// UnionAll returns the union of sets; the union of no sets is empty.
func UnionAll(sets []IDSet) IDSet {
	out := NewIDSet()
	for _, s := range sets {
		for id := range s {
			out[id] = struct{}{}
		}
	}
	return out
}

// IntersectAll returns the intersection of sets. The intersection of no sets
// is empty, never the universe of patients.
func IntersectAll(sets []IDSet) IDSet {
	if len(sets) == 0 {
		return NewIDSet()
	}
	out := sets[0].Union(nil)
	for _, s := range sets[1:] {
		out = out.Intersect(s)
		if len(out) == 0 {
			break
		}
	}
	return out
}
