package fhir

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/flare-fhir/flare/internal/domain/query"
)

// SearchPrefix represents a FHIR search prefix for ordered values.
type SearchPrefix string

const (
	PrefixEq SearchPrefix = "eq"
	PrefixNe SearchPrefix = "ne"
	PrefixGt SearchPrefix = "gt"
	PrefixLt SearchPrefix = "lt"
	PrefixGe SearchPrefix = "ge"
	PrefixLe SearchPrefix = "le"
)

var (
	ErrMissingResourceType  = errors.New("mapping has no FHIR resource type")
	ErrMissingTermCodeParam = errors.New("mapping has no term code search parameter")
	ErrMissingValueParam    = errors.New("value filter without value search parameter")
	ErrUnsupportedFilter    = errors.New("unsupported value filter")
)

var prefixes = map[query.Comparator]SearchPrefix{
	query.ComparatorEq: PrefixEq,
	query.ComparatorNe: PrefixNe,
	query.ComparatorGt: PrefixGt,
	query.ComparatorLt: PrefixLt,
	query.ComparatorGe: PrefixGe,
	query.ComparatorLe: PrefixLe,
}

// PrefixFor maps a comparator to its search prefix.
func PrefixFor(c query.Comparator) (SearchPrefix, bool) {
	p, ok := prefixes[c]
	return p, ok
}

// searchValueEscaper restores the characters FHIR token and quantity values
// use as separators after query escaping.
var searchValueEscaper = strings.NewReplacer("%7C", "|", "%2C", ",", "%3A", ":", "%2F", "/")

func escapeValue(s string) string {
	return searchValueEscaper.Replace(url.QueryEscape(s))
}

// tokenEscaper escapes the search separators inside a single system or code,
// so "A,B" stays one code instead of two alternatives.
var tokenEscaper = strings.NewReplacer(`\`, `\\`, ",", `\,`, "|", `\|`, "$", `\$`)

func token(tc query.TerminologyCode) string {
	return tokenEscaper.Replace(tc.System) + "|" + tokenEscaper.Replace(tc.Code)
}

func tokenList(codes []query.TerminologyCode) string {
	vals := make([]string, len(codes))
	for i, tc := range codes {
		vals[i] = escapeValue(token(tc))
	}
	return strings.Join(vals, ",")
}

func quantity(prefix SearchPrefix, v float64, unit *query.TerminologyCode) string {
	s := string(prefix) + strconv.FormatFloat(v, 'f', -1, 64)
	if unit != nil {
		s += "|" + token(*unit)
	}
	return escapeValue(s)
}

// BuildSearch renders a criterion as a relative FHIR search URL, for example
// "Observation?code=http://loinc.org|718-7&value-quantity=gt12.5|http://unitsofmeasure.org|g/dL".
func BuildSearch(c query.Criterion) (string, error) {
	m := c.Mapping
	if m.ResourceType == "" {
		return "", ErrMissingResourceType
	}

	var params []string
	add := func(name, value string) {
		params = append(params, url.QueryEscape(name)+"="+value)
	}

	switch {
	case m.TermCodeSearchParameter != "":
		add(m.TermCodeSearchParameter, tokenList(c.TermCodes))
	case m.ResourceType != "Patient":
		return "", ErrMissingTermCodeParam
	}

	if c.ValueFilter != nil && m.ValueSearchParameter == "" {
		return "", ErrMissingValueParam
	}
	switch f := c.ValueFilter.(type) {
	case nil:
	case query.ConceptFilter:
		add(m.ValueSearchParameter, tokenList(f.Codes))
	case query.ComparatorFilter:
		prefix, ok := PrefixFor(f.Comparator)
		if !ok {
			return "", fmt.Errorf("%w: comparator %q", ErrUnsupportedFilter, f.Comparator)
		}
		add(m.ValueSearchParameter, quantity(prefix, f.Value, f.Unit))
	case query.RangeFilter:
		add(m.ValueSearchParameter, quantity(PrefixGe, f.Min, f.Unit))
		add(m.ValueSearchParameter, quantity(PrefixLe, f.Max, f.Unit))
	default:
		return "", fmt.Errorf("%w: %T", ErrUnsupportedFilter, f)
	}

	for _, fc := range m.FixedCriteria {
		add(fc.SearchParameter, tokenList(fc.Values))
	}

	if tr := c.TimeRestriction; tr != nil && m.TimeRestrictionParameter != "" {
		if tr.AfterDate != "" {
			add(m.TimeRestrictionParameter, string(PrefixGe)+escapeValue(tr.AfterDate))
		}
		if tr.BeforeDate != "" {
			add(m.TimeRestrictionParameter, string(PrefixLe)+escapeValue(tr.BeforeDate))
		}
	}

	if len(params) == 0 {
		return m.ResourceType, nil
	}
	return m.ResourceType + "?" + strings.Join(params, "&"), nil
}
