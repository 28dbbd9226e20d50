package workerpool

import "github.com/prometheus/client_golang/prometheus"

// RegisterMetrics exposes the live worker count and queue depth on reg.
func (p *Pool) RegisterMetrics(reg prometheus.Registerer) error {
	workers := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "flare_pool_workers",
		Help: "Goroutines currently owned by the worker pool.",
	}, func() float64 { return float64(p.Stats().Workers) })
	queued := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "flare_pool_queue_depth",
		Help: "Tasks waiting for a worker.",
	}, func() float64 { return float64(p.Stats().Queued) })

	for _, c := range []prometheus.Collector{workers, queued} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
