package scheduler

import (
	"runtime"
	"time"
)

// options holds configuration for a Scheduler, resolved by New from zero or
// more Option values.
type options struct {
	tickRate    time.Duration
	workerCount int
	start       time.Time
	drainWindow time.Duration
}

// Option configures a Scheduler.
type Option interface {
	apply(*options)
}

type optionFunc func(*options)

func (f optionFunc) apply(o *options) { f(o) }

// WithTickRate sets the fixed tick period (spec.md §4.8's TICK_HZ,
// expressed as a period rather than a frequency). Defaults to 5ms (200Hz).
func WithTickRate(d time.Duration) Option {
	return optionFunc(func(o *options) { o.tickRate = d })
}

// WithWorkerCount overrides the size of the worker pool used to evaluate
// selected programs concurrently within a tick (spec.md §5's "program
// evaluations within a tick are parallelizable across a worker pool").
// Defaults to GOMAXPROCS.
func WithWorkerCount(n int) Option {
	return optionFunc(func(o *options) { o.workerCount = n })
}

// WithStart fixes the process-start timestamp passed to programs as
// TickInput.Start. Scripted hosts bind START from their own Config.Start.
// Defaults to time.Now() at New.
func WithStart(t time.Time) Option {
	return optionFunc(func(o *options) { o.start = t })
}

// WithDrainWindow overrides the partial-timeout used when draining the
// control-plane mutation and input-event queues at each tick boundary.
// Must be small relative to the tick period; defaults to 200 microseconds.
func WithDrainWindow(d time.Duration) Option {
	return optionFunc(func(o *options) { o.drainWindow = d })
}

func resolveOptions(opts []Option) *options {
	cfg := &options{
		tickRate:    5 * time.Millisecond,
		workerCount: runtime.GOMAXPROCS(0),
		start:       time.Now(),
		drainWindow: 200 * time.Microsecond,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.apply(cfg)
	}
	if cfg.workerCount < 1 {
		cfg.workerCount = 1
	}
	return cfg
}
