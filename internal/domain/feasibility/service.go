package feasibility

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/flare-fhir/flare/internal/domain/query"
)

// Service runs queries for API callers and keeps an audit trail of runs.
type Service struct {
	exec   *Executor
	runs   RunRepository
	logger zerolog.Logger
}

// NewService wires the executor to an optional run repository; runs may be nil.
func NewService(exec *Executor, runs RunRepository, logger zerolog.Logger) *Service {
	return &Service{exec: exec, runs: runs, logger: logger}
}

// Execute counts the patients matching q. The returned Run describes the
// execution even when err is non-nil, except for invalid queries.
func (s *Service) Execute(ctx context.Context, q *query.Query, requestedBy string) (*Run, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	hash, err := HashQuery(q)
	if err != nil {
		return nil, fmt.Errorf("hash query: %w", err)
	}

	start := time.Now()
	run := &Run{
		ID:          uuid.New(),
		RequestedBy: requestedBy,
		QueryHash:   hash,
		CreatedAt:   start.UTC(),
	}
	n, err := s.exec.Count(ctx, q)
	run.DurationMS = time.Since(start).Milliseconds()
	if err != nil {
		msg := err.Error()
		run.Status, run.Error = RunFailed, &msg
	} else {
		run.Status, run.Count = RunCompleted, &n
	}

	if s.runs != nil {
		if rerr := s.runs.Create(context.WithoutCancel(ctx), run); rerr != nil {
			s.logger.Warn().Err(rerr).Str("run_id", run.ID.String()).Msg("failed to record feasibility run")
		}
	}
	return run, err
}

func (s *Service) Translate(q *query.Query) (Translation, error) {
	if err := q.Validate(); err != nil {
		return Translation{}, err
	}
	return s.exec.TranslateMappedQuery(q)
}

func (s *Service) GetRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	if s.runs == nil {
		return nil, ErrRunStoreMissing
	}
	return s.runs.GetByID(ctx, id)
}

func (s *Service) ListRuns(ctx context.Context, limit, offset int) ([]*Run, int, error) {
	if s.runs == nil {
		return nil, 0, ErrRunStoreMissing
	}
	return s.runs.List(ctx, limit, offset)
}
