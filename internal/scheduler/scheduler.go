// Package scheduler implements the Tick Scheduler (C8): the fixed-rate
// loop that drives one full tick per spec.md §4.8 — time advance, queue
// drains, global reconciliation, arbitration, concurrent program
// evaluation, output merge, actuator emit, and overrun-capped sleep.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/joeycumines/go-longpoll"
	"github.com/mrd0ll4r/kaleidoscope/internal/address"
	"github.com/mrd0ll4r/kaleidoscope/internal/arbiter"
	"github.com/mrd0ll4r/kaleidoscope/internal/event"
	"github.com/mrd0ll4r/kaleidoscope/internal/fixture"
	"github.com/mrd0ll4r/kaleidoscope/internal/global"
	"github.com/mrd0ll4r/kaleidoscope/internal/logging"
	"github.com/mrd0ll4r/kaleidoscope/internal/param"
	"github.com/mrd0ll4r/kaleidoscope/internal/program"
	"github.com/mrd0ll4r/kaleidoscope/internal/telemetry"
)

// Standard errors.
var (
	ErrAlreadyRunning = errors.New("scheduler: already running")
	ErrTerminated     = errors.New("scheduler: terminated")
)

// ActuatorSink is the destination for each tick's composed output vector.
// Submit must not block the scheduler thread for longer than a tick
// budget; implementations that talk to a remote service (internal/sink)
// decouple the network call from this call via their own queue.
type ActuatorSink interface {
	Submit(vector map[address.Addr]address.Value)
}

// eventRouter is implemented by program.Program values that accept routed
// input events — currently only *host.Host. Native builtins do not
// subscribe to events, so a type assertion against this interface is used
// rather than adding Route to the program.Program contract itself.
type eventRouter interface {
	Router() *event.Router
}

// Mutation is one control-plane-originated change, applied at a tick
// boundary. Closures let the control-plane adapter (C9) capture whatever
// concrete state (a *fixture.Fixture, the *param.Registry, ...) a given
// request needs without the scheduler knowing about HTTP at all.
type Mutation func(*Scheduler) error

// Scheduler owns the fixed-rate tick loop.
type Scheduler struct {
	opts *options

	space   *address.Space
	globals *global.Store
	params  *param.Registry
	logger  *logging.Logger

	fixtures []*fixture.Fixture

	sink ActuatorSink

	mutations chan Mutation
	events    chan event.Event

	tickMetrics    *telemetry.TickMetrics
	programMetrics *telemetry.ProgramMetrics
	queueDepth     *telemetry.QueueDepth

	state    fastState
	loopDone chan struct{}

	tickCount uint64
}

// Config is the fixed, setup-time configuration for a Scheduler.
type Config struct {
	Space    *address.Space
	Globals  *global.Store
	Params   *param.Registry
	Logger   *logging.Logger
	Fixtures []*fixture.Fixture
	Sink     ActuatorSink
	Metrics  *telemetry.Registry

	// MutationQueueSize and EventQueueSize bound the control-plane and
	// input-event channels. Zero means a reasonable default (256).
	MutationQueueSize int
	EventQueueSize    int
}

// New constructs a Scheduler. Call Run to start the tick loop.
func New(cfg Config, opts ...Option) *Scheduler {
	resolved := resolveOptions(opts)

	mutSize := cfg.MutationQueueSize
	if mutSize <= 0 {
		mutSize = 256
	}
	evtSize := cfg.EventQueueSize
	if evtSize <= 0 {
		evtSize = 256
	}

	metrics := cfg.Metrics
	if metrics == nil {
		metrics, _ = telemetry.NewRegistry()
	}

	return &Scheduler{
		opts:           resolved,
		space:          cfg.Space,
		globals:        cfg.Globals,
		params:         cfg.Params,
		logger:         cfg.Logger,
		fixtures:       cfg.Fixtures,
		sink:           cfg.Sink,
		mutations:      make(chan Mutation, mutSize),
		events:         make(chan event.Event, evtSize),
		tickMetrics:    metrics.Tick,
		programMetrics: metrics.Program,
		queueDepth:     metrics.Queue,
		loopDone:       make(chan struct{}),
	}
}

// SubmitMutation enqueues a control-plane mutation for application at the
// next tick boundary. Never blocks the caller past the queue's capacity;
// a full queue drops the mutation and returns false (the HTTP handler
// should surface this as a 503).
func (s *Scheduler) SubmitMutation(m Mutation) bool {
	select {
	case s.mutations <- m:
		return true
	default:
		return false
	}
}

// SubmitEvent enqueues one input event for routing at the next tick
// boundary. Never blocks; a full queue drops the event.
func (s *Scheduler) SubmitEvent(e event.Event) bool {
	select {
	case s.events <- e:
		return true
	default:
		return false
	}
}

// Params returns the shared parameter registry, for the control-plane
// adapter's parameter read/write routes.
func (s *Scheduler) Params() *param.Registry { return s.params }

// Fixtures returns the configured fixtures, for the control-plane
// adapter's fixture/program metadata routes.
func (s *Scheduler) Fixtures() []*fixture.Fixture { return s.fixtures }

// Metrics exposes the tick/program/queue-depth metrics for programmatic
// inspection; Prometheus scraping reads them through the registry instead.
func (s *Scheduler) Metrics() (tick *telemetry.TickMetrics, prog *telemetry.ProgramMetrics, queue *telemetry.QueueDepth) {
	return s.tickMetrics, s.programMetrics, s.queueDepth
}

// TickCount returns the number of ticks executed so far.
func (s *Scheduler) TickCount() uint64 { return s.tickCount }

// Run executes the tick loop until ctx is cancelled. Returns ctx.Err() on
// cancellation, or ErrAlreadyRunning/ErrTerminated if called out of order.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.state.cas(stateAwake, stateRunning) {
		if s.state.load() == stateTerminated {
			return ErrTerminated
		}
		return ErrAlreadyRunning
	}
	defer close(s.loopDone)
	defer s.state.store(stateTerminated)

	start := s.opts.start
	ticker := time.NewTicker(s.opts.tickRate)
	defer ticker.Stop()

	var debt time.Duration
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case tickTime := <-ticker.C:
			if s.state.load() == stateTerminating {
				return nil
			}
			tickStart := time.Now()
			s.runOneTick(ctx, start, tickTime)
			elapsed := time.Since(tickStart)
			s.tickMetrics.Observe(elapsed.Seconds())

			// Overrun policy (spec.md §4.8 step 8): a tick that exceeds its
			// budget emits a metric and proceeds immediately, never
			// skipping a tick outright, but catch-up debt is capped at one
			// tick's worth so a pathological stall cannot cause an
			// unbounded burst of immediate re-firings.
			if over := elapsed - s.opts.tickRate; over > 0 {
				s.tickMetrics.IncOverrun()
				debt += over
				if debt > s.opts.tickRate {
					debt = s.opts.tickRate
				}
				if s.logger != nil {
					s.logger.Warning().Str("component", "scheduler").Int("overrun_micros", int(over.Microseconds())).Log("tick exceeded budget")
				}
			} else if debt > 0 {
				debt -= s.opts.tickRate
				if debt < 0 {
					debt = 0
				}
			}
		}
	}
}

// Shutdown requests the loop stop and waits for it to actually exit, or
// for ctx to expire.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	for {
		cur := s.state.load()
		if cur == stateTerminated || cur == stateTerminating {
			break
		}
		if s.state.cas(cur, stateTerminating) {
			break
		}
	}
	select {
	case <-s.loopDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runOneTick executes the 8-step per-tick protocol.
func (s *Scheduler) runOneTick(ctx context.Context, start time.Time, tickTime time.Time) {
	// Step 1: time advance.
	nowUnix := float64(tickTime.UnixNano()) / 1e9
	timeOfDay := secondsSinceLocalMidnight(tickTime)
	startUnix := float64(start.UnixNano()) / 1e9

	// Step 2: drain control plane queue, then commit any pending fixture
	// switches and queued foreign parameter writes those mutations made.
	s.drainMutations(ctx)
	for _, f := range s.fixtures {
		f.ApplyPendingSwitch()
	}
	s.params.ApplyQueued()

	// Step 3: drain and route input events.
	s.drainEvents(ctx)

	// Step 4: reconcile global deltas.
	s.globals.Reconcile()

	// Gather this tick's full candidate list.
	var candidates []program.Program
	for _, f := range s.fixtures {
		candidates = append(candidates, f.Programs()...)
	}

	// Step 5: arbitrate.
	selected := arbiter.Select(candidates)

	// Step 6: evaluate selected programs across a bounded worker pool.
	harvested := s.evaluate(selected, program.TickInput{Start: startUnix, Now: nowUnix, TimeOfDay: timeOfDay})

	// Step 7: compose output vector; hand to actuator sink.
	vector := arbiter.Merge(harvested)
	if s.sink != nil {
		s.sink.Submit(vector)
	}

	for _, f := range s.fixtures {
		f.EndTick()
	}

	s.queueDepth.Set("control-plane", len(s.mutations))
	s.queueDepth.Set("input-events", len(s.events))

	s.tickCount++
}

func secondsSinceLocalMidnight(t time.Time) float64 {
	t = t.Local()
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return t.Sub(midnight).Seconds()
}

func (s *Scheduler) drainMutations(ctx context.Context) {
	cctx, cancel := context.WithTimeout(ctx, s.opts.drainWindow*4)
	defer cancel()
	cfg := &longpoll.ChannelConfig{MaxSize: -1, MinSize: -1, PartialTimeout: s.opts.drainWindow}
	err := longpoll.Channel(cctx, cfg, s.mutations, func(m Mutation) error {
		if m == nil {
			return nil
		}
		if err := m(s); err != nil && s.logger != nil {
			s.logger.Err().Str("component", "scheduler").Log(fmt.Sprintf("mutation: %s", err.Error()))
		}
		return nil
	})
	if err != nil && s.logger != nil && ctx.Err() == nil {
		s.logger.Debug().Str("component", "scheduler").Log(fmt.Sprintf("drainMutations: %s", err.Error()))
	}
}

func (s *Scheduler) drainEvents(ctx context.Context) {
	cctx, cancel := context.WithTimeout(ctx, s.opts.drainWindow*4)
	defer cancel()
	cfg := &longpoll.ChannelConfig{MaxSize: -1, MinSize: -1, PartialTimeout: s.opts.drainWindow}
	err := longpoll.Channel(cctx, cfg, s.events, func(e event.Event) error {
		s.routeEvent(e)
		return nil
	})
	if err != nil && s.logger != nil && ctx.Err() == nil {
		s.logger.Debug().Str("component", "scheduler").Log(fmt.Sprintf("drainEvents: %s", err.Error()))
	}
}

func (s *Scheduler) routeEvent(e event.Event) {
	for _, f := range s.fixtures {
		for _, p := range f.Programs() {
			if r, ok := p.(eventRouter); ok {
				r.Router().Route(e)
			}
		}
	}
}

// evaluate runs every selected program's Tick, bounded by opts.workerCount
// concurrent workers, and collects each program's Harvest once its Tick
// call returns, in arbiter.Harvested form ready for arbiter.Merge.
func (s *Scheduler) evaluate(selected []program.Program, base program.TickInput) []arbiter.Harvested {
	results := make([]arbiter.Harvested, len(selected))

	workers := s.opts.workerCount
	if workers > len(selected) {
		workers = len(selected)
	}
	if workers < 1 {
		workers = 1
	}

	jobs := make(chan int, len(selected))
	for i := range selected {
		jobs <- i
	}
	close(jobs)

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				p := selected[i]
				in := base
				in.Inputs = s.space.Snapshot(p.Inputs())
				tickStart := time.Now()
				_, err := p.Tick(in)
				elapsed := time.Since(tickStart)
				if err != nil {
					s.programMetrics.ObserveFailure(p.Name(), err)
				} else {
					s.programMetrics.ObserveSuccess(p.Name(), elapsed.Seconds())
				}
				results[i] = arbiter.Harvested{Program: p, Values: p.Harvest()}
			}
		}()
	}
	wg.Wait()
	return results
}
