package fhir

import (
	"encoding/json"
	"fmt"
	"time"
)

// Bundle represents a FHIR Bundle resource.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	ID           string        `json:"id,omitempty"`
	Type         string        `json:"type"`
	Total        *int          `json:"total,omitempty"`
	Link         []BundleLink  `json:"link,omitempty"`
	Entry        []BundleEntry `json:"entry,omitempty"`
	Timestamp    *time.Time    `json:"timestamp,omitempty"`
}

type BundleLink struct {
	Relation string `json:"relation"`
	URL      string `json:"url"`
}

type BundleEntry struct {
	FullURL  string          `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource,omitempty"`
	Search   *BundleSearch   `json:"search,omitempty"`
}

type BundleSearch struct {
	Mode  string   `json:"mode,omitempty"`
	Score *float64 `json:"score,omitempty"`
}

// LinkURL returns the URL of the link with the given relation, or "".
func (b *Bundle) LinkURL(relation string) string {
	for _, l := range b.Link {
		if l.Relation == relation {
			return l.URL
		}
	}
	return ""
}

// IsMatch reports whether the entry is a search match rather than an
// included resource or an outcome.
func (e BundleEntry) IsMatch() bool {
	return e.Search == nil || e.Search.Mode == "" || e.Search.Mode == "match"
}

// patientLinks holds the fields used to attribute a resource to a patient.
type patientLinks struct {
	ResourceType string     `json:"resourceType"`
	ID           string     `json:"id"`
	Subject      *Reference `json:"subject,omitempty"`
	Patient      *Reference `json:"patient,omitempty"`
}

// PatientID returns the id of the patient the entry's resource belongs to:
// the resource id for a Patient, otherwise its subject or patient reference.
func (e BundleEntry) PatientID() (string, error) {
	var r patientLinks
	if err := json.Unmarshal(e.Resource, &r); err != nil {
		return "", fmt.Errorf("decode entry resource: %w", err)
	}
	if r.ResourceType == "Patient" {
		if r.ID == "" {
			return "", fmt.Errorf("patient resource without id")
		}
		return r.ID, nil
	}
	for _, ref := range []*Reference{r.Subject, r.Patient} {
		if ref != nil && ref.Reference != "" {
			return ref.ID("Patient")
		}
	}
	return "", fmt.Errorf("%s has no patient reference", FormatReference(r.ResourceType, r.ID))
}
