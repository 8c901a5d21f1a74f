// Package host implements the Program Host (C5): one isolated goja.Runtime
// per scripted program, the setup/tick/handler contract, output/parameter/
// global harvesting, slow-mode scheduling, and failure escalation.
package host

import (
	"fmt"
	"time"

	"github.com/dop251/goja"
	"github.com/joeycumines/go-catrate"
	"github.com/mrd0ll4r/kaleidoscope/internal/address"
	"github.com/mrd0ll4r/kaleidoscope/internal/event"
	"github.com/mrd0ll4r/kaleidoscope/internal/global"
	"github.com/mrd0ll4r/kaleidoscope/internal/logging"
	"github.com/mrd0ll4r/kaleidoscope/internal/param"
)

// DefaultSlowModePeriod is the tick count a slow-mode program may go
// without being forced to run (spec.md §4.5's SLOW_MODE_PERIOD default).
const DefaultSlowModePeriod = 1000

// DefaultMaxConsecutiveFailures is the default N in "disabled after N
// consecutive failures" (spec.md §4.5's suggested default).
const DefaultMaxConsecutiveFailures = 5

// Config is the setup-time configuration for one Host.
type Config struct {
	Name     string
	Priority int
	SlowMode bool
	// SlowModePeriod overrides DefaultSlowModePeriod; zero means default.
	SlowModePeriod int
	// MaxConsecutiveFailures overrides DefaultMaxConsecutiveFailures; zero
	// means default.
	MaxConsecutiveFailures int
	// FailureRateWindow and FailureRateLimit configure the sliding-window
	// error-rate escalation (A8): if more than FailureRateLimit tick
	// failures occur within FailureRateWindow, the program is disabled
	// even if its raw consecutive-failure streak hasn't reached
	// MaxConsecutiveFailures (e.g. a program alternating success/failure
	// never trips the streak counter but is still unhealthy).
	FailureRateWindow time.Duration
	FailureRateLimit  int

	Start   time.Time
	Space   *address.Space
	Globals *global.Store
	Params  *param.Registry
	Logger  *logging.Logger
}

// Host is one Program Host: an isolated goja.Runtime plus the
// bookkeeping spec.md §4.5 requires around it.
type Host struct {
	name     string
	priority int
	slowMode bool
	slowModePeriod int

	start time.Time

	space   *address.Space
	globals *global.Store
	params  *param.Registry
	logger  *logging.Logger

	queue  *event.Queue
	router *event.Router

	state *fastState

	vm      *goja.Runtime
	tickFn  goja.Callable
	handlers map[string]goja.Callable // handler name -> function

	inputs       []address.Addr
	outputs      map[address.Addr]struct{}
	eventSubs    map[address.Addr]map[event.Kind]string // addr -> kind -> handler name
	paramHandlers map[string]string                      // param name -> handler name

	outputValues map[address.Addr]address.Value

	slowCounter         int
	consecutiveFailures int
	maxConsecutiveFailures int
	limiter              *catrate.Limiter

	// per-tick scratch state, valid only for the duration of one Tick call.
	tickNow     float64
	tickInputs  map[address.Addr]address.Value
	selfEnable  bool
	selfDisable bool
	// justEnabled is set when Enable() transitions Disabled -> Enabled, or
	// Start(true) transitions Ready -> Enabled; it
	// forces one tick() invocation even in slow mode (spec.md §4.5's
	// "enable transitioned to true this tick" forced-run trigger), then
	// clears.
	justEnabled bool
}

// New constructs an unloaded Host. Call Load to compile and run the setup
// phase before the host can be scheduled.
func New(cfg Config) *Host {
	maxFail := cfg.MaxConsecutiveFailures
	if maxFail <= 0 {
		maxFail = DefaultMaxConsecutiveFailures
	}
	period := cfg.SlowModePeriod
	if period <= 0 {
		period = DefaultSlowModePeriod
	}

	h := &Host{
		name:                   cfg.Name,
		priority:               cfg.Priority,
		slowMode:               cfg.SlowMode,
		slowModePeriod:         period,
		start:                  cfg.Start,
		space:                  cfg.Space,
		globals:                cfg.Globals,
		params:                 cfg.Params,
		logger:                 cfg.Logger,
		state:                  &fastState{},
		outputs:                make(map[address.Addr]struct{}),
		eventSubs:              make(map[address.Addr]map[event.Kind]string),
		paramHandlers:          make(map[string]string),
		outputValues:           make(map[address.Addr]address.Value),
		handlers:               make(map[string]goja.Callable),
		maxConsecutiveFailures: maxFail,
	}
	h.queue = event.NewQueue()
	h.router = event.NewRouter(h.queue)
	if cfg.FailureRateWindow > 0 && cfg.FailureRateLimit > 0 {
		h.limiter = catrate.NewLimiter(map[time.Duration]int{cfg.FailureRateWindow: cfg.FailureRateLimit})
	}
	if h.globals != nil {
		h.globals.Register(h.name)
	}
	return h
}

// Name returns the program's unique name.
func (h *Host) Name() string { return h.name }

// Priority returns the program's fixed priority.
func (h *Host) Priority() int { return h.priority }

// SlowMode reports whether this program opted into slow-mode scheduling.
func (h *Host) SlowMode() bool { return h.slowMode }

// Outputs returns the set of addresses declared during setup.
func (h *Host) Outputs() map[address.Addr]struct{} {
	return h.outputs
}

// Inputs returns the ordered set of addresses declared as inputs during
// setup.
func (h *Host) Inputs() []address.Addr {
	return h.inputs
}

// Enabled reports whether the host is in the Enabled lifecycle state
// (including the Failed sub-state, which remains scheduled).
func (h *Host) Enabled() bool {
	return h.state.load() == stateEnabled
}

// State exposes the raw lifecycle state, for diagnostics and the control
// plane's program-metadata responses.
func (h *Host) State() string { return h.state.load().String() }

// ConsecutiveFailures reports the current failure streak, for metrics.
func (h *Host) ConsecutiveFailures() int { return h.consecutiveFailures }

// Router returns the event router backing this host's queue, so the
// fixture/control-plane layer can wire external event sources to it.
func (h *Host) Router() *event.Router { return h.router }

// Queue exposes the per-program event queue, primarily for depth metrics.
func (h *Host) Queue() *event.Queue { return h.queue }

// Load compiles source, runs it once (populating setup-declared state via
// the restricted setup API surface), and invokes the setup() entry point
// if present. On success the host transitions Loading -> Ready. Any error
// leaves the host in Loading permanently; it is never scheduled.
func (h *Host) Load(name, source string) error {
	if !h.state.cas(stateUnloaded, stateLoading) {
		return fmt.Errorf("host: %s: Load called out of order (state %s)", h.name, h.state.load())
	}

	vm := goja.New()
	h.vm = vm
	h.bindSetupAPI()

	prg, err := goja.Compile(name, source, true)
	if err != nil {
		return fmt.Errorf("host: %s: compile: %w", h.name, err)
	}
	if _, err := vm.RunProgram(prg); err != nil {
		return fmt.Errorf("host: %s: run: %w", h.name, err)
	}

	if setupVal := vm.Get("setup"); setupVal != nil && !goja.IsUndefined(setupVal) {
		setupFn, ok := goja.AssertFunction(setupVal)
		if !ok {
			return fmt.Errorf("host: %s: setup is not a function", h.name)
		}
		if _, err := setupFn(goja.Undefined()); err != nil {
			return fmt.Errorf("host: %s: setup: %w", h.name, err)
		}
	}

	if tickVal := vm.Get("tick"); tickVal != nil && !goja.IsUndefined(tickVal) {
		tickFn, ok := goja.AssertFunction(tickVal)
		if !ok {
			return fmt.Errorf("host: %s: tick is not a function", h.name)
		}
		h.tickFn = tickFn
	} else {
		return fmt.Errorf("host: %s: no tick function declared", h.name)
	}

	h.bindRuntimeAPI()

	if !h.state.cas(stateLoading, stateReady) {
		return fmt.Errorf("host: %s: Load raced with another transition", h.name)
	}
	return nil
}

// Start transitions the host from Ready to either Enabled or Disabled,
// per the initial configuration (e.g. a program may start disabled via
// fixture configuration).
func (h *Host) Start(enabled bool) error {
	target := stateDisabled
	if enabled {
		target = stateEnabled
	}
	if !h.state.cas(stateReady, target) {
		return fmt.Errorf("host: %s: Start called out of order (state %s)", h.name, h.state.load())
	}
	if enabled {
		h.justEnabled = true
	}
	return nil
}

// Enable transitions Disabled -> Enabled. A no-op (returns true) if
// already Enabled.
func (h *Host) Enable() bool {
	if h.state.load() == stateEnabled {
		return true
	}
	ok := h.state.cas(stateDisabled, stateEnabled)
	if ok {
		h.justEnabled = true
	}
	return ok
}

// Disable transitions Enabled -> Disabled. A no-op (returns true) if
// already Disabled. Disabling clears the slow-mode counter and any
// uncommitted output values, since a disabled program's queue is cleared
// without dispatch and it reserves nothing for the arbitrator.
func (h *Host) Disable() bool {
	if h.state.load() == stateDisabled {
		return true
	}
	ok := h.state.cas(stateEnabled, stateDisabled)
	if ok {
		h.slowCounter = 0
		clear(h.outputValues)
		h.queue.Drain() // discard, per spec.md §4.2
	}
	return ok
}

