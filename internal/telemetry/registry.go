package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles every metrics surface the scheduler and hosts report
// into, plus the Prometheus registerer backing them. Construct one per
// process; NewRegistry wires Tick, Program and Queue against the same
// prometheus.Registry so a single Handler scrape sees all of them.
type Registry struct {
	Tick    *TickMetrics
	Program *ProgramMetrics
	Queue   *QueueDepth

	prom *prometheus.Registry
}

// NewRegistry constructs a Registry backed by a fresh prometheus.Registry.
func NewRegistry() (*Registry, error) {
	reg := prometheus.NewRegistry()

	tick, err := NewTickMetrics(reg)
	if err != nil {
		return nil, err
	}
	prog, err := NewProgramMetrics(reg)
	if err != nil {
		return nil, err
	}
	queue, err := NewQueueDepth(reg)
	if err != nil {
		return nil, err
	}
	return &Registry{Tick: tick, Program: prog, Queue: queue, prom: reg}, nil
}

// Handler returns the http.Handler to mount on the configured metrics
// listen address for Prometheus scraping.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.prom, promhttp.HandlerOpts{})
}
