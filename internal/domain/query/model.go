// Package query holds the canonical, already-mapped eligibility expression that
// the feasibility engine executes. Values are built by the parsing and mapping
// collaborators and only read afterwards.
package query

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Query separates inclusion requirements from exclusion requirements. A nil or
// empty list means "no groups", never "match everything".
type Query struct {
	Inclusion []CriteriaGroup `json:"inclusionCriteria,omitempty"`
	Exclusion []CriteriaGroup `json:"exclusionCriteria,omitempty"`
}

// CriteriaGroup is a non-empty list of criteria. Whether its members are OR-ed
// or AND-ed depends on the list the group sits in.
type CriteriaGroup struct {
	Criteria []Criterion `json:"criteria"`
}

// TerminologyCode is a (code, system) pair. Display is informational and does
// not take part in equality.
type TerminologyCode struct {
	Code    string `json:"code"`
	System  string `json:"system"`
	Display string `json:"display,omitempty"`
}

// Key returns the value identity of the code.
func (t TerminologyCode) Key() string {
	return t.System + "|" + t.Code
}

// Equal compares codes by code and system.
func (t TerminologyCode) Equal(o TerminologyCode) bool {
	return t.Code == o.Code && t.System == o.System
}

func (t TerminologyCode) String() string {
	return t.Key()
}

// Criterion is one atomic matching request against the remote store.
type Criterion struct {
	// TermCodes are alternate codings of the same concept; any one matching is enough.
	TermCodes       []TerminologyCode
	ValueFilter     ValueFilter
	Mapping         Mapping
	TimeRestriction *TimeRestriction
}

// Mapping tells the resolver where a criterion lives in the remote store.
type Mapping struct {
	ResourceType             string           `json:"fhirResourceType"`
	TermCodeSearchParameter  string           `json:"termCodeSearchParameter,omitempty"`
	ValueSearchParameter     string           `json:"valueSearchParameter,omitempty"`
	TimeRestrictionParameter string           `json:"timeRestrictionParameter,omitempty"`
	FixedCriteria            []FixedCriterion `json:"fixedCriteria,omitempty"`
}

// FixedCriterion is a search constraint that always accompanies a mapped concept,
// e.g. an Observation status.
type FixedCriterion struct {
	SearchParameter string            `json:"searchParameter"`
	Values          []TerminologyCode `json:"value"`
}

// TimeRestriction bounds the clinical date of the matched record. Dates are
// FHIR date strings and either bound may be empty.
type TimeRestriction struct {
	AfterDate  string `json:"afterDate,omitempty"`
	BeforeDate string `json:"beforeDate,omitempty"`
}

// String returns a short label for logs and error messages.
func (c Criterion) String() string {
	codes := make([]string, len(c.TermCodes))
	for i, tc := range c.TermCodes {
		codes[i] = tc.Key()
	}
	rt := c.Mapping.ResourceType
	if rt == "" {
		rt = "?"
	}
	return fmt.Sprintf("%s[%s]", rt, strings.Join(codes, ","))
}

type criterionJSON struct {
	TermCodes       []TerminologyCode `json:"termCodes"`
	ValueFilter     *valueFilterJSON  `json:"valueFilter,omitempty"`
	Mapping         Mapping           `json:"mapping"`
	TimeRestriction *TimeRestriction  `json:"timeRestriction,omitempty"`
}

func (c Criterion) MarshalJSON() ([]byte, error) {
	return json.Marshal(criterionJSON{
		TermCodes:       c.TermCodes,
		ValueFilter:     encodeValueFilter(c.ValueFilter),
		Mapping:         c.Mapping,
		TimeRestriction: c.TimeRestriction,
	})
}

func (c *Criterion) UnmarshalJSON(data []byte) error {
	var raw criterionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	vf, err := raw.ValueFilter.decode()
	if err != nil {
		return err
	}
	*c = Criterion{
		TermCodes:       raw.TermCodes,
		ValueFilter:     vf,
		Mapping:         raw.Mapping,
		TimeRestriction: raw.TimeRestriction,
	}
	return nil
}

// CriterionCount returns the number of criteria across both lists.
func (q *Query) CriterionCount() int {
	n := 0
	for _, g := range q.Inclusion {
		n += len(g.Criteria)
	}
	for _, g := range q.Exclusion {
		n += len(g.Criteria)
	}
	return n
}
