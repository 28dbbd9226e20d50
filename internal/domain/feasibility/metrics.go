package feasibility

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the engine's Prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	criterionRequests *prometheus.CounterVec
	executions        *prometheus.CounterVec
	duration          prometheus.Histogram
}

// NewMetrics registers the engine collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		criterionRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "flare_criterion_requests_total",
			Help: "Criterion lookups against the data source, by outcome.",
		}, []string{"outcome"}),
		executions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "flare_executions_total",
			Help: "Query executions, by outcome.",
		}, []string{"outcome"}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "flare_execution_duration_seconds",
			Help:    "Wall time of a query execution.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
	}
}

func outcome(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

func (m *Metrics) observeCriterion(err error) {
	if m == nil {
		return
	}
	m.criterionRequests.WithLabelValues(outcome(err)).Inc()
}

func (m *Metrics) observeExecution(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.executions.WithLabelValues(outcome(err)).Inc()
	m.duration.Observe(d.Seconds())
}
