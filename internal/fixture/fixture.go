// Package fixture implements the Fixture Manager (C6): a disjoint bundle
// of output addresses with a named catalog of programs, of which exactly
// one is active at a time, plus the OFF/ON/MANUAL builtins every fixture
// carries unless disabled by configuration.
package fixture

import (
	"fmt"
	"sort"
	"sync"

	"github.com/mrd0ll4r/kaleidoscope/internal/address"
	"github.com/mrd0ll4r/kaleidoscope/internal/program"
)

// enabler is satisfied by every native builtin and by host.Host; Fixture
// uses it to flip the active/outgoing catalog entries without depending
// on either concrete type.
type enabler interface {
	Enable() bool
	Disable() bool
}

// Fixture owns a disjoint set of output addresses and a named catalog of
// programs. Switching the active entry is a two-phase operation:
// RequestSwitch queues it (the control-plane mutation), ApplyPendingSwitch
// commits it at the next tick boundary.
type Fixture struct {
	name    string
	outputs map[address.Addr]struct{}

	mu        sync.Mutex
	catalog   map[string]program.Program
	active    string
	pending   string
	quiescing program.Program
}

// New returns an empty Fixture owning outputs. Register every catalog
// entry (including builtins, unless the fixture's configuration disables
// them) before calling SetActive.
func New(name string, outputs []address.Addr) *Fixture {
	set := make(map[address.Addr]struct{}, len(outputs))
	for _, a := range outputs {
		set[a] = struct{}{}
	}
	return &Fixture{name: name, outputs: set, catalog: make(map[string]program.Program)}
}

// Name returns the fixture's configured name.
func (f *Fixture) Name() string { return f.name }

// Outputs returns the fixture's owned output set.
func (f *Fixture) Outputs() map[address.Addr]struct{} { return f.outputs }

// Register adds p to the catalog. p must declare exactly the fixture's
// owned output set: catalog members are mutually exclusive alternatives
// for driving the same outputs, never a partial subset of them.
func (f *Fixture) Register(p program.Program) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.catalog[p.Name()]; exists {
		return fmt.Errorf("fixture: %s: duplicate catalog entry %q", f.name, p.Name())
	}
	outputs := p.Outputs()
	if len(outputs) != len(f.outputs) {
		return fmt.Errorf("fixture: %s: catalog entry %q does not declare the fixture's full output set", f.name, p.Name())
	}
	for a := range outputs {
		if _, ok := f.outputs[a]; !ok {
			return fmt.Errorf("fixture: %s: catalog entry %q declares output %d outside the fixture", f.name, p.Name(), a)
		}
	}
	f.catalog[p.Name()] = p
	return nil
}

// SetActive sets the initially active catalog entry and enables it. Call
// once at startup, before the scheduler's first tick; use RequestSwitch
// for every subsequent, control-plane-driven change.
func (f *Fixture) SetActive(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.catalog[name]
	if !ok {
		return fmt.Errorf("fixture: %s: unknown catalog entry %q", f.name, name)
	}
	f.active = name
	if e, ok := p.(enabler); ok {
		e.Enable()
	}
	return nil
}

// RequestSwitch queues a change of the active program. Validated against
// the catalog immediately; applied by the next ApplyPendingSwitch call.
func (f *Fixture) RequestSwitch(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.catalog[name]; !ok {
		return fmt.Errorf("fixture: %s: unknown catalog entry %q", f.name, name)
	}
	f.pending = name
	return nil
}

// ApplyPendingSwitch commits a queued switch, if any, and reports whether
// one was applied. The outgoing program is wrapped in a one-shot no-op for
// exactly one more tick — spec.md §4.6's "outgoing program gets one final
// tick to no-op-output before being quiesced" — so its reserved outputs
// fall through to whatever the arbiter selects next rather than holding a
// stale value across the handoff. Call once per tick, during the
// scheduler's control-plane-drain step; call EndTick after that tick's
// merge completes.
func (f *Fixture) ApplyPendingSwitch() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pending == "" || f.pending == f.active {
		f.pending = ""
		return false
	}
	if outgoing, ok := f.catalog[f.active]; ok {
		if e, ok := outgoing.(enabler); ok {
			e.Disable()
		}
		f.quiescing = &quiesceOnce{Program: outgoing}
	}
	if incoming, ok := f.catalog[f.pending]; ok {
		if e, ok := incoming.(enabler); ok {
			e.Enable()
		}
	}
	f.active = f.pending
	f.pending = ""
	return true
}

// EndTick clears the one-shot quiescing wrapper after its single tick.
// Call once per tick, after the scheduler's merge step.
func (f *Fixture) EndTick() {
	f.mu.Lock()
	f.quiescing = nil
	f.mu.Unlock()
}

// Programs returns every program.Program this fixture contributes to this
// tick's arbitration: the active catalog entry, plus a transient
// quiescing entry immediately after a switch.
func (f *Fixture) Programs() []program.Program {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]program.Program, 0, 2)
	if p, ok := f.catalog[f.active]; ok {
		out = append(out, p)
	}
	if f.quiescing != nil {
		out = append(out, f.quiescing)
	}
	return out
}

// ActiveName reports the name of the currently active catalog entry.
func (f *Fixture) ActiveName() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

// CatalogNames returns every registered catalog entry's name, sorted, for
// the control plane's program-listing route.
func (f *Fixture) CatalogNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.catalog))
	for name := range f.catalog {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// CatalogEntry returns a named catalog entry, for program-metadata and
// parameter-route lookups.
func (f *Fixture) CatalogEntry(name string) (program.Program, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.catalog[name]
	return p, ok
}

// NextCatalogName returns the catalog entry that cycle_active_program
// should switch to: the next entry (by sorted name) after the current
// active one, skipping any *Manual entry (spec.md §6's "skip MANUAL,
// EXTERNAL" — this implementation has no concrete EXTERNAL program kind,
// see DESIGN.md). Wraps around; returns ok=false if no eligible entry
// exists (e.g. only MANUAL and the active entry are registered).
func (f *Fixture) NextCatalogName() (string, bool) {
	names := f.CatalogNames()
	if len(names) == 0 {
		return "", false
	}
	start := 0
	f.mu.Lock()
	active := f.active
	f.mu.Unlock()
	for i, n := range names {
		if n == active {
			start = i
			break
		}
	}
	for i := 1; i <= len(names); i++ {
		candidate := names[(start+i)%len(names)]
		p, ok := f.CatalogEntry(candidate)
		if !ok {
			continue
		}
		if _, isManual := p.(*Manual); isManual {
			continue
		}
		if candidate == active {
			continue
		}
		return candidate, true
	}
	return "", false
}

// quiesceOnce wraps an outgoing program for its final tick: it reports
// ran=false and an empty harvest regardless of the wrapped program's own
// tick logic, since the point of this tick is to relinquish the fixture's
// outputs cleanly rather than to keep driving them. It also declares no
// outputs or inputs of its own, so arbiter.Select never lets it claim (and
// thereby block) any address the incoming program needs on the same tick.
type quiesceOnce struct {
	program.Program
}

func (q *quiesceOnce) Tick(in program.TickInput) (ran bool, err error) { return false, nil }

func (q *quiesceOnce) Harvest() map[address.Addr]address.Value { return nil }

func (q *quiesceOnce) Enabled() bool { return true }

func (q *quiesceOnce) Outputs() map[address.Addr]struct{} { return nil }

func (q *quiesceOnce) Inputs() []address.Addr { return nil }
