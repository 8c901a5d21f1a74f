package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// quantiles every Distribution in this package tracks, matching
// SPEC_FULL.md A3's P50/P90/P95/P99/max requirement (max is tracked
// separately from the marker set).
var trackedQuantiles = []float64{0.5, 0.9, 0.95, 0.99}

const (
	idxP50 = 0
	idxP90 = 1
	idxP95 = 2
	idxP99 = 3
)

// Snapshot reports a point-in-time read of a Distribution.
type Snapshot struct {
	Count int
	P50   float64
	P90   float64
	P95   float64
	P99   float64
	Max   float64
	Mean  float64
}

// TickMetrics tracks scheduler-wide tick cadence and duration, and exports
// the same data as Prometheus gauges. Safe for concurrent use: one
// scheduler goroutine writes via Observe/IncOverrun, any number of readers
// call Snapshot or scrape the registered gauges concurrently.
type TickMetrics struct {
	mu       sync.Mutex
	duration *Distribution
	ticks    int64
	overruns int64

	promTicks      prometheus.Counter
	promOverruns   prometheus.Counter
	promDurationP50 prometheus.Gauge
	promDurationP90 prometheus.Gauge
	promDurationP95 prometheus.Gauge
	promDurationP99 prometheus.Gauge
	promDurationMax prometheus.Gauge
}

// NewTickMetrics returns a TickMetrics and registers its gauges/counters
// against reg. reg may be nil, in which case Prometheus export is skipped
// and only the programmatic Snapshot API is available.
func NewTickMetrics(reg prometheus.Registerer) (*TickMetrics, error) {
	t := &TickMetrics{duration: NewDistribution(trackedQuantiles...)}
	if reg == nil {
		return t, nil
	}

	t.promTicks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kaleidoscope_ticks_total",
		Help: "Total number of scheduler ticks executed.",
	})
	t.promOverruns = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kaleidoscope_tick_overruns_total",
		Help: "Total number of ticks whose evaluation ran past the next tick boundary.",
	})
	t.promDurationP50 = prometheus.NewGauge(prometheus.GaugeOpts{Name: "kaleidoscope_tick_duration_seconds_p50", Help: "P50 tick duration, seconds."})
	t.promDurationP90 = prometheus.NewGauge(prometheus.GaugeOpts{Name: "kaleidoscope_tick_duration_seconds_p90", Help: "P90 tick duration, seconds."})
	t.promDurationP95 = prometheus.NewGauge(prometheus.GaugeOpts{Name: "kaleidoscope_tick_duration_seconds_p95", Help: "P95 tick duration, seconds."})
	t.promDurationP99 = prometheus.NewGauge(prometheus.GaugeOpts{Name: "kaleidoscope_tick_duration_seconds_p99", Help: "P99 tick duration, seconds."})
	t.promDurationMax = prometheus.NewGauge(prometheus.GaugeOpts{Name: "kaleidoscope_tick_duration_seconds_max", Help: "Max observed tick duration, seconds."})

	for _, c := range []prometheus.Collector{t.promTicks, t.promOverruns, t.promDurationP50, t.promDurationP90, t.promDurationP95, t.promDurationP99, t.promDurationMax} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Observe records one tick's wall-clock evaluation duration, in seconds.
func (t *TickMetrics) Observe(durationSeconds float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ticks++
	t.duration.Observe(durationSeconds)
	if t.promTicks != nil {
		t.promTicks.Inc()
		t.promDurationP50.Set(t.duration.Quantile(idxP50))
		t.promDurationP90.Set(t.duration.Quantile(idxP90))
		t.promDurationP95.Set(t.duration.Quantile(idxP95))
		t.promDurationP99.Set(t.duration.Quantile(idxP99))
		t.promDurationMax.Set(t.duration.Max())
	}
}

// IncOverrun records a tick that ran past its next scheduled boundary.
func (t *TickMetrics) IncOverrun() {
	t.mu.Lock()
	t.overruns++
	if t.promOverruns != nil {
		t.promOverruns.Inc()
	}
	t.mu.Unlock()
}

// Snapshot returns the current tick-duration distribution and overrun
// count.
func (t *TickMetrics) Snapshot() (Snapshot, int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{
		Count: t.duration.Count(),
		P50:   t.duration.Quantile(idxP50),
		P90:   t.duration.Quantile(idxP90),
		P95:   t.duration.Quantile(idxP95),
		P99:   t.duration.Quantile(idxP99),
		Max:   t.duration.Max(),
		Mean:  t.duration.Mean(),
	}, t.overruns
}

// Ticks returns the total number of ticks observed so far.
func (t *TickMetrics) Ticks() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ticks
}

// ProgramMetrics tracks per-program tick duration and consecutive-failure
// state, exported as Prometheus vectors keyed by program name. Safe for
// concurrent use.
type ProgramMetrics struct {
	mu       sync.Mutex
	programs map[string]*programState

	promDuration *prometheus.GaugeVec
	promFailures *prometheus.GaugeVec
}

type programState struct {
	duration            *Distribution
	consecutiveFailures int
	lastErr             string
}

// NewProgramMetrics returns a ProgramMetrics and registers its vectors
// against reg, which may be nil to skip Prometheus export.
func NewProgramMetrics(reg prometheus.Registerer) (*ProgramMetrics, error) {
	p := &ProgramMetrics{programs: make(map[string]*programState)}
	if reg == nil {
		return p, nil
	}

	p.promDuration = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "kaleidoscope_program_tick_duration_seconds_p99",
		Help: "P99 tick duration per program, seconds.",
	}, []string{"program"})
	p.promFailures = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "kaleidoscope_program_consecutive_failures",
		Help: "Current consecutive-tick-failure count per program.",
	}, []string{"program"})

	if err := reg.Register(p.promDuration); err != nil {
		return nil, err
	}
	if err := reg.Register(p.promFailures); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *ProgramMetrics) stateFor(name string) *programState {
	s, ok := p.programs[name]
	if !ok {
		s = &programState{duration: NewDistribution(trackedQuantiles...)}
		p.programs[name] = s
	}
	return s
}

// ObserveSuccess records a successful tick's duration and resets the
// program's consecutive-failure counter.
func (p *ProgramMetrics) ObserveSuccess(name string, durationSeconds float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.stateFor(name)
	s.duration.Observe(durationSeconds)
	s.consecutiveFailures = 0
	s.lastErr = ""
	if p.promDuration != nil {
		p.promDuration.WithLabelValues(name).Set(s.duration.Quantile(idxP99))
		p.promFailures.WithLabelValues(name).Set(0)
	}
}

// ObserveFailure records a failed tick, incrementing the program's
// consecutive-failure counter and remembering err's message.
func (p *ProgramMetrics) ObserveFailure(name string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.stateFor(name)
	s.consecutiveFailures++
	if err != nil {
		s.lastErr = err.Error()
	}
	if p.promFailures != nil {
		p.promFailures.WithLabelValues(name).Set(float64(s.consecutiveFailures))
	}
}

// Snapshot returns the per-program tick-duration distribution,
// consecutive-failure count, and last error message, if any.
func (p *ProgramMetrics) Snapshot(name string) (Snapshot, int, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.programs[name]
	if !ok {
		return Snapshot{}, 0, ""
	}
	return Snapshot{
		Count: s.duration.Count(),
		P50:   s.duration.Quantile(idxP50),
		P90:   s.duration.Quantile(idxP90),
		P95:   s.duration.Quantile(idxP95),
		P99:   s.duration.Quantile(idxP99),
		Max:   s.duration.Max(),
		Mean:  s.duration.Mean(),
	}, s.consecutiveFailures, s.lastErr
}

// Forget drops tracked state for name, e.g. once a program is removed from
// its fixture's catalog.
func (p *ProgramMetrics) Forget(name string) {
	p.mu.Lock()
	delete(p.programs, name)
	p.mu.Unlock()
	if p.promDuration != nil {
		p.promDuration.DeleteLabelValues(name)
		p.promFailures.DeleteLabelValues(name)
	}
}

// QueueDepth is a simple gauge for the control-plane and input-event queue
// depths the scheduler reports each tick.
type QueueDepth struct {
	mu   sync.Mutex
	last map[string]int

	prom *prometheus.GaugeVec
}

func NewQueueDepth(reg prometheus.Registerer) (*QueueDepth, error) {
	q := &QueueDepth{last: make(map[string]int)}
	if reg == nil {
		return q, nil
	}
	q.prom = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "kaleidoscope_queue_depth",
		Help: "Depth of a named queue, sampled at the last tick boundary.",
	}, []string{"queue"})
	if err := reg.Register(q.prom); err != nil {
		return nil, err
	}
	return q, nil
}

// Set records queue's depth as of the current tick.
func (q *QueueDepth) Set(queue string, depth int) {
	q.mu.Lock()
	q.last[queue] = depth
	q.mu.Unlock()
	if q.prom != nil {
		q.prom.WithLabelValues(queue).Set(float64(depth))
	}
}

// Get returns the last recorded depth for queue.
func (q *QueueDepth) Get(queue string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.last[queue]
}
