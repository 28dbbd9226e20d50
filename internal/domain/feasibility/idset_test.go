package feasibility

import (
	"reflect"
	"testing"
)

func TestIDSet_Operations(t *testing.T) {
	a := NewIDSet("p1", "p2", "p3")
	b := NewIDSet("p2", "p3", "p4")

	tests := []struct {
		name string
		got  IDSet
		want []string
	}{
		{"union", a.Union(b), []string{"p1", "p2", "p3", "p4"}},
		{"intersect", a.Intersect(b), []string{"p2", "p3"}},
		{"difference", a.Difference(b), []string{"p1"}},
		{"union all", UnionAll([]IDSet{NewIDSet("p1"), NewIDSet("p2"), NewIDSet("p1")}), []string{"p1", "p2"}},
		{"intersect all", IntersectAll([]IDSet{a, b, NewIDSet("p3", "p9")}), []string{"p3"}},
		{"union of none", UnionAll(nil), []string{}},
		{"intersect of none", IntersectAll(nil), []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.got.Sorted(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}

	if a.Len() != 3 || !a.Contains("p1") || a.Contains("p4") {
		t.Errorf("inputs were mutated: %v", a.Sorted())
	}
}

func TestPolarity_CombinationLaws(t *testing.T) {
	g1 := []IDSet{NewIDSet("p1", "p2"), NewIDSet("p3")}
	g2 := []IDSet{NewIDSet("p2", "p3"), NewIDSet("p4")}

	in := Inclusion.Fold([]IDSet{Inclusion.Group().Combine(g1), Inclusion.Group().Combine(g2)})
	if got := in.Sorted(); !reflect.DeepEqual(got, []string{"p2", "p3"}) {
		t.Errorf("inclusion = %v, want [p2 p3]", got)
	}

	ex := Exclusion.Fold([]IDSet{Exclusion.Group().Combine(g1), Exclusion.Group().Combine(g2)})
	if ex.Len() != 0 {
		t.Errorf("exclusion = %v, want empty", ex.Sorted())
	}

	if Inclusion.Group().Name() != "union-group" || Exclusion.Group().Name() != "intersection-group" {
		t.Error("unexpected combinator for polarity")
	}
}
