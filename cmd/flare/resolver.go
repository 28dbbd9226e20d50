package main

import (
	"context"
	"errors"

	"github.com/flare-fhir/flare/internal/domain/feasibility"
	"github.com/flare-fhir/flare/internal/domain/query"
	"github.com/flare-fhir/flare/internal/platform/fhir"
)

var errNoFHIRClient = errors.New("no FHIR server configured")

// fhirResolver resolves criteria with FHIR searches. Translate works without
// a client.
type fhirResolver struct {
	client *fhir.Client
}

func (r fhirResolver) Resolve(ctx context.Context, c query.Criterion) (feasibility.RecordIterator, error) {
	if r.client == nil {
		return nil, errNoFHIRClient
	}
	it, err := r.client.Search(ctx, c)
	if err != nil {
		return nil, err
	}
	return entryIterator{it}, nil
}

func (r fhirResolver) Translate(c query.Criterion) (string, error) {
	return fhir.BuildSearch(c)
}

// entryIterator exposes search matches as feasibility records.
type entryIterator struct {
	*fhir.SearchIterator
}

func (it entryIterator) Record() feasibility.Record { return it.Entry() }
