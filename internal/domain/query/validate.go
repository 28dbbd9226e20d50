package query

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrEmptyGroup is returned for a criteria group without criteria.
var ErrEmptyGroup = errors.New("criteria group has no criteria")

// ValidationError points at the first malformed part of a query.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Validate checks the structural invariants the engine relies on.
func (q *Query) Validate() error {
	if q == nil {
		return &ValidationError{Field: "query", Message: "is required"}
	}
	if err := validateGroups("inclusionCriteria", q.Inclusion); err != nil {
		return err
	}
	return validateGroups("exclusionCriteria", q.Exclusion)
}

func validateGroups(list string, groups []CriteriaGroup) error {
	for i, g := range groups {
		field := fmt.Sprintf("%s[%d]", list, i)
		if len(g.Criteria) == 0 {
			return &ValidationError{Field: field, Message: ErrEmptyGroup.Error(), Err: ErrEmptyGroup}
		}
		for j, c := range g.Criteria {
			if err := c.validate(fmt.Sprintf("%s.criteria[%d]", field, j)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c Criterion) validate(field string) error {
	if len(c.TermCodes) == 0 {
		return &ValidationError{Field: field + ".termCodes", Message: "at least one term code is required"}
	}
	for k, tc := range c.TermCodes {
		if tc.Code == "" {
			return &ValidationError{Field: fmt.Sprintf("%s.termCodes[%d].code", field, k), Message: "is required"}
		}
	}
	if c.Mapping.ResourceType == "" {
		return &ValidationError{Field: field + ".mapping.fhirResourceType", Message: "is required"}
	}
	switch f := c.ValueFilter.(type) {
	case ConceptFilter:
		if len(f.Codes) == 0 {
			return &ValidationError{Field: field + ".valueFilter.selectedConcepts", Message: "at least one concept is required"}
		}
	case ComparatorFilter:
		if !f.Comparator.Valid() {
			return &ValidationError{Field: field + ".valueFilter.comparator", Message: fmt.Sprintf("unsupported comparator %q", f.Comparator)}
		}
	case RangeFilter:
		if f.Min > f.Max {
			return &ValidationError{Field: field + ".valueFilter", Message: "minimum must not exceed maximum"}
		}
	}
	return nil
}

// Decode reads a canonical query document and validates it.
func Decode(r io.Reader) (*Query, error) {
	var q Query
	dec := json.NewDecoder(r)
	if err := dec.Decode(&q); err != nil {
		return nil, fmt.Errorf("decode query: %w", err)
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return &q, nil
}

// LoadFile decodes the query stored at path.
func LoadFile(path string) (*Query, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open query file: %w", err)
	}
	defer f.Close()
	return Decode(f)
}
