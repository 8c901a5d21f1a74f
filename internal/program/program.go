// Package program defines the contract shared by every schedulable unit of
// work: scripted programs hosted in internal/host and the native built-in
// programs (OFF/ON/MANUAL) constructed by internal/fixture. The Tick
// Scheduler (internal/scheduler) and Priority Arbitrator (internal/arbiter)
// depend only on this interface, never on the concrete implementations.
package program

import "github.com/mrd0ll4r/kaleidoscope/internal/address"

// TickInput carries everything a program may read during a single tick.
// It is constructed fresh by the scheduler each tick and handed to exactly
// one program; a program must not retain references into it past Tick.
type TickInput struct {
	// Start is the process-start timestamp, seconds since the Unix epoch.
	Start float64
	// Now is the current tick's timestamp, seconds since the Unix epoch.
	Now float64
	// TimeOfDay is seconds since local midnight for Now.
	TimeOfDay float64
	// Inputs is the Address Space snapshot restricted to the addresses the
	// program declared as inputs at setup time.
	Inputs map[address.Addr]address.Value
	// Events are the events queued for this program since its last tick,
	// in enqueue order.
	Events []InputEvent
	// ParamNotifications are pending change notifications for this
	// program's own parameters (from local or foreign writes).
	ParamNotifications []ParamNotification
}

// InputEvent is the program-facing view of an event.Event; it is defined
// here (rather than imported from internal/event) to keep this package free
// of a dependency on the event queue's internal routing types.
type InputEvent struct {
	Address address.Addr
	Kind    string
	Value   float64
	HasValue bool
}

// ParamNotification is the program-facing view of a parameter change.
type ParamNotification struct {
	Name     string
	Handler  string
	NewValue float64
}

// Program is one schedulable unit: a scripted program or a fixture builtin.
type Program interface {
	// Name is the program's unique name within its fixture.
	Name() string
	// Priority is fixed at setup time, higher wins ties broken by Name.
	Priority() int
	// Outputs is the set of addresses this program declared at setup.
	// It never changes after setup.
	Outputs() map[address.Addr]struct{}
	// Inputs is the ordered set of addresses this program declared as
	// inputs at setup time, used by the scheduler to build this program's
	// TickInput.Inputs snapshot. Never changes after setup; empty for
	// programs that declare none (e.g. the native builtins).
	Inputs() []address.Addr
	// SlowMode reports whether this program opted into slow-mode scheduling.
	SlowMode() bool
	// Enabled reports whether the program is currently eligible for
	// scheduling. Disabled programs are skipped by the arbitrator and do
	// not reserve their output addresses.
	Enabled() bool
	// Tick evaluates the program if the per-tick protocol calls for it
	// (see internal/host for the scripted implementation's decision
	// logic), given in. ran reports whether the program's tick function
	// actually executed (false means: skipped this tick, slow-mode
	// reservation still applies). err is non-nil only for a script error
	// that was caught; the program remains scheduled unless it has now
	// escalated to disabled.
	Tick(in TickInput) (ran bool, err error)
	// Harvest returns the output values written during the most recent
	// Tick call that actually ran. It reflects only addresses written
	// during that run; an address not written is absent from the map, never
	// defaulted. A skipped Tick leaves it unchanged.
	Harvest() map[address.Addr]address.Value
}
