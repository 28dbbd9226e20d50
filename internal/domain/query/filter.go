package query

import (
	"fmt"
)

// FilterType is the wire tag of a value filter.
type FilterType string

const (
	FilterConcept            FilterType = "concept"
	FilterQuantityComparator FilterType = "quantity-comparator"
	FilterQuantityRange      FilterType = "quantity-range"
)

// Comparator is a FHIR ordered-value search prefix.
type Comparator string

const (
	ComparatorEq Comparator = "eq"
	ComparatorNe Comparator = "ne"
	ComparatorGt Comparator = "gt"
	ComparatorGe Comparator = "ge"
	ComparatorLt Comparator = "lt"
	ComparatorLe Comparator = "le"
)

var validComparators = map[Comparator]bool{
	ComparatorEq: true, ComparatorNe: true,
	ComparatorGt: true, ComparatorGe: true,
	ComparatorLt: true, ComparatorLe: true,
}

// Valid reports whether c is a supported comparator.
func (c Comparator) Valid() bool {
	return validComparators[c]
}

// ValueFilter constrains the value attached to a matched record. The concrete
// variants are ConceptFilter, ComparatorFilter and RangeFilter.
type ValueFilter interface {
	Type() FilterType
	valueFilter()
}

// ConceptFilter matches records whose coded value is any of Codes.
type ConceptFilter struct {
	Codes []TerminologyCode
}

// ComparatorFilter matches records whose quantity compares to Value.
type ComparatorFilter struct {
	Comparator Comparator
	Value      float64
	Unit       *TerminologyCode
}

// RangeFilter matches records whose quantity lies in [Min, Max].
type RangeFilter struct {
	Min  float64
	Max  float64
	Unit *TerminologyCode
}

func (ConceptFilter) Type() FilterType    { return FilterConcept }
func (ComparatorFilter) Type() FilterType { return FilterQuantityComparator }
func (RangeFilter) Type() FilterType      { return FilterQuantityRange }

func (ConceptFilter) valueFilter()    {}
func (ComparatorFilter) valueFilter() {}
func (RangeFilter) valueFilter()      {}

// valueFilterJSON is the flat wire shape of every variant.
type valueFilterJSON struct {
	Type             FilterType        `json:"type"`
	SelectedConcepts []TerminologyCode `json:"selectedConcepts,omitempty"`
	Comparator       Comparator        `json:"comparator,omitempty"`
	Value            *float64          `json:"value,omitempty"`
	Unit             *TerminologyCode  `json:"unit,omitempty"`
	Minimum          *float64          `json:"minimum,omitempty"`
	Maximum          *float64          `json:"maximum,omitempty"`
}

func encodeValueFilter(vf ValueFilter) *valueFilterJSON {
	switch f := vf.(type) {
	case ConceptFilter:
		return &valueFilterJSON{Type: FilterConcept, SelectedConcepts: f.Codes}
	case ComparatorFilter:
		v := f.Value
		return &valueFilterJSON{Type: FilterQuantityComparator, Comparator: f.Comparator, Value: &v, Unit: f.Unit}
	case RangeFilter:
		lo, hi := f.Min, f.Max
		return &valueFilterJSON{Type: FilterQuantityRange, Minimum: &lo, Maximum: &hi, Unit: f.Unit}
	default:
		return nil
	}
}

func (w *valueFilterJSON) decode() (ValueFilter, error) {
	if w == nil {
		return nil, nil
	}
	switch w.Type {
	case FilterConcept:
		return ConceptFilter{Codes: w.SelectedConcepts}, nil
	case FilterQuantityComparator:
		if w.Value == nil {
			return nil, fmt.Errorf("valueFilter: %s requires value", w.Type)
		}
		return ComparatorFilter{Comparator: w.Comparator, Value: *w.Value, Unit: w.Unit}, nil
	case FilterQuantityRange:
		if w.Minimum == nil || w.Maximum == nil {
			return nil, fmt.Errorf("valueFilter: %s requires minimum and maximum", w.Type)
		}
		return RangeFilter{Min: *w.Minimum, Max: *w.Maximum, Unit: w.Unit}, nil
	default:
		return nil, fmt.Errorf("valueFilter: unknown type %q", w.Type)
	}
}
