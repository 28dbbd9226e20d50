// Package feasibility counts the patients of a FHIR data source that satisfy
// a structured eligibility query.
//
// Every criterion of a query is dispatched to the worker pool up front. Group
// and polarity steps wait for all of their inputs and then combine the
// identifier sets; a single failed lookup fails the whole count.
package feasibility

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/flare-fhir/flare/internal/domain/query"
	"github.com/flare-fhir/flare/internal/platform/workerpool"
)

// Translation is the search expression of every criterion, nested by group.
type Translation struct {
	Inclusion [][]string `json:"inclusion"`
	Exclusion [][]string `json:"exclusion"`
}

// Executor evaluates queries against a Resolver on a shared worker pool.
type Executor struct {
	pool     *workerpool.Pool
	resolver Resolver
	logger   zerolog.Logger
	metrics  *Metrics
}

func NewExecutor(pool *workerpool.Pool, resolver Resolver, logger zerolog.Logger) *Executor {
	return &Executor{
		pool:     pool,
		resolver: resolver,
		logger:   logger.With().Str("component", "feasibility").Logger(),
	}
}

// SetMetrics attaches optional Prometheus collectors.
func (e *Executor) SetMetrics(m *Metrics) {
	e.metrics = m
}

// CalculatePatientCount starts evaluating q and returns the handle of its
// patient count. ctx is handed to the resolver for every lookup.
func (e *Executor) CalculatePatientCount(ctx context.Context, q *query.Query) *workerpool.Future[int] {
	if err := q.Validate(); err != nil {
		return workerpool.Failed[int](err)
	}

	start := time.Now()
	log := e.logger.With().Str("execution_id", uuid.NewString()).Logger()
	log.Debug().
		Int("inclusion_groups", len(q.Inclusion)).
		Int("exclusion_groups", len(q.Exclusion)).
		Int("criteria", q.CriterionCount()).
		Msg("dispatching query")

	// Submitting blocks while the pool is saturated, so the fan-out runs off
	// the caller's goroutine.
	count := workerpool.Dispatch(func() *workerpool.Future[int] {
		included := e.aggregate(ctx, log, Inclusion, q.Inclusion)
		excluded := e.aggregate(ctx, log, Exclusion, q.Exclusion)
		return workerpool.Then2(e.pool, "difference", included, excluded, func(in, ex IDSet) (int, error) {
			return in.Difference(ex).Len(), nil
		})
	})

	go func() {
		<-count.Done()
		n, err := count.Await(context.Background())
		elapsed := time.Since(start)
		e.metrics.observeExecution(elapsed, err)
		if err != nil {
			log.Error().Err(err).Dur("duration", elapsed).Msg("query execution failed")
			return
		}
		log.Info().Int("count", n).Dur("duration", elapsed).Msg("query executed")
	}()
	return count
}

// Count evaluates q and waits for the result.
func (e *Executor) Count(ctx context.Context, q *query.Query) (int, error) {
	return e.CalculatePatientCount(ctx, q).Await(ctx)
}

// aggregate resolves every group of one polarity. An empty list resolves to
// the empty set without touching the resolver.
func (e *Executor) aggregate(ctx context.Context, log zerolog.Logger, p Polarity, groups []query.CriteriaGroup) *workerpool.Future[IDSet] {
	if len(groups) == 0 {
		return workerpool.Completed(NewIDSet())
	}
	comb := p.Group()
	results := make([]*workerpool.Future[IDSet], len(groups))
	for i, g := range groups {
		results[i] = e.group(ctx, log, comb, g)
	}
	return workerpool.Then(e.pool, p.String(), results, func(sets []IDSet) (IDSet, error) {
		out := p.Fold(sets)
		log.Debug().Str("polarity", p.String()).Int("patients", out.Len()).Msg("polarity combined")
		return out, nil
	})
}

func (e *Executor) group(ctx context.Context, log zerolog.Logger, comb GroupCombinator, g query.CriteriaGroup) *workerpool.Future[IDSet] {
	members := make([]*workerpool.Future[IDSet], len(g.Criteria))
	for i, c := range g.Criteria {
		members[i] = e.criterionTask(ctx, log, c)
	}
	return workerpool.Then(e.pool, comb.Name(), members, func(sets []IDSet) (IDSet, error) {
		return comb.Combine(sets), nil
	})
}

func (e *Executor) criterionTask(ctx context.Context, log zerolog.Logger, c query.Criterion) *workerpool.Future[IDSet] {
	return workerpool.Submit(e.pool, func() (IDSet, error) {
		if err := ctx.Err(); err != nil {
			return nil, &ResolutionError{Criterion: c, Err: err}
		}
		ids, err := e.resolve(ctx, c)
		e.metrics.observeCriterion(err)
		if err != nil {
			return nil, &ResolutionError{Criterion: c, Err: err}
		}
		log.Debug().Stringer("criterion", c).Int("patients", ids.Len()).Msg("criterion resolved")
		return ids, nil
	})
}

func (e *Executor) resolve(ctx context.Context, c query.Criterion) (IDSet, error) {
	it, err := e.resolver.Resolve(ctx, c)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	ids := NewIDSet()
	for it.Next() {
		id, err := it.Record().PatientID()
		if err != nil {
			return nil, err
		}
		ids.Add(id)
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

// TranslateMappedQuery renders every criterion of q without executing it.
func (e *Executor) TranslateMappedQuery(q *query.Query) (Translation, error) {
	if q == nil {
		return Translation{}, &query.ValidationError{Field: "query", Message: "is required"}
	}
	in, err := e.translateGroups(q.Inclusion)
	if err != nil {
		return Translation{}, err
	}
	ex, err := e.translateGroups(q.Exclusion)
	if err != nil {
		return Translation{}, err
	}
	return Translation{Inclusion: in, Exclusion: ex}, nil
}

func (e *Executor) translateGroups(groups []query.CriteriaGroup) ([][]string, error) {
	out := make([][]string, 0, len(groups))
	for _, g := range groups {
		exprs := make([]string, 0, len(g.Criteria))
		for _, c := range g.Criteria {
			s, err := e.resolver.Translate(c)
			if err != nil {
				return nil, &TranslationError{Criterion: c, Err: err}
			}
			exprs = append(exprs, s)
		}
		out = append(out, exprs)
	}
	return out, nil
}
