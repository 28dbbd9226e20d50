package feasibility

import (
	"errors"
	"fmt"

	"github.com/flare-fhir/flare/internal/domain/query"
	"github.com/flare-fhir/flare/internal/platform/workerpool"
)

// InterruptedError is returned when the caller stops waiting for a result.
type InterruptedError = workerpool.InterruptedError

// AggregationError wraps the failure of an input of a combination step.
type AggregationError = workerpool.AggregationError

// ResolutionError is a transport, authentication or parse failure while
// resolving one criterion.
type ResolutionError struct {
	Criterion query.Criterion
	Err       error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %s: %v", e.Criterion, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// TranslationError is returned when a criterion cannot be rendered as a
// backend search expression.
type TranslationError struct {
	Criterion query.Criterion
	Err       error
}

func (e *TranslationError) Error() string {
	return fmt.Sprintf("translate %s: %v", e.Criterion, e.Err)
}

func (e *TranslationError) Unwrap() error { return e.Err }

// IsInterrupted reports whether err is, or wraps, an *InterruptedError.
func IsInterrupted(err error) bool {
	var ie *InterruptedError
	return errors.As(err, &ie)
}
