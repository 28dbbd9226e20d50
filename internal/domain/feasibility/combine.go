package feasibility

// GroupCombinator folds the identifier sets of one criteria group's members.
type GroupCombinator interface {
	Name() string
	Combine(members []IDSet) IDSet
}

// UnionGroup matches a patient matched by any member. Inclusion groups use it.
type UnionGroup struct{}

func (UnionGroup) Name() string                   { return "union-group" }
func (UnionGroup) Combine(members []IDSet) IDSet { return UnionAll(members) }

// IntersectionGroup matches a patient matched by every member. Exclusion
// groups use it.
type IntersectionGroup struct{}

func (IntersectionGroup) Name() string                   { return "intersection-group" }
func (IntersectionGroup) Combine(members []IDSet) IDSet { return IntersectAll(members) }

// Polarity selects how a list of criteria groups is combined.
//
// Inclusion is conjunctive normal form: members of a group are OR-ed and
// groups are AND-ed. Exclusion is disjunctive normal form: members are AND-ed
// and groups are OR-ed, so any fully matched exclusion group disqualifies.
type Polarity int

const (
	Inclusion Polarity = iota
	Exclusion
)

func (p Polarity) String() string {
	if p == Exclusion {
		return "exclusion"
	}
	return "inclusion"
}

// Group returns the combinator applied within each group of this polarity.
func (p Polarity) Group() GroupCombinator {
	if p == Exclusion {
		return IntersectionGroup{}
	}
	return UnionGroup{}
}

// Fold combines the results of all groups of this polarity.
func (p Polarity) Fold(groups []IDSet) IDSet {
	if p == Exclusion {
		return UnionAll(groups)
	}
	return IntersectAll(groups)
}
