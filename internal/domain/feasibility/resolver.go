package feasibility

import (
	"context"

	"github.com/flare-fhir/flare/internal/domain/query"
)

// Record is one matched resource from the data source.
type Record interface {
	PatientID() (string, error)
}

// RecordIterator walks a lazily fetched, finite sequence of records.
// Next returns false when the sequence ends or fails; Err tells which.
type RecordIterator interface {
	Next() bool
	Record() Record
	Err() error
	Close() error
}

// Resolver looks up the records matching a single criterion.
type Resolver interface {
	Resolve(ctx context.Context, c query.Criterion) (RecordIterator, error)
	Translate(c query.Criterion) (string, error)
}

// PatientRecord is a Record with a known identifier.
type PatientRecord string

func (r PatientRecord) PatientID() (string, error) { return string(r), nil }

type sliceIterator struct {
	records []Record
	pos     int
}

// NewSliceIterator iterates over records already in memory.
func NewSliceIterator(records ...Record) RecordIterator {
	return &sliceIterator{records: records, pos: -1}
}

func (it *sliceIterator) Next() bool {
	if it.pos+1 >= len(it.records) {
		it.pos = len(it.records)
		return false
	}
	it.pos++
	return true
}

func (it *sliceIterator) Record() Record { return it.records[it.pos] }
func (it *sliceIterator) Err() error     { return nil }
func (it *sliceIterator) Close() error   { return nil }
