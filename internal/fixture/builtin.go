package fixture

import (
	"fmt"

	"github.com/mrd0ll4r/kaleidoscope/internal/address"
	"github.com/mrd0ll4r/kaleidoscope/internal/param"
	"github.com/mrd0ll4r/kaleidoscope/internal/program"
)

// base carries the bookkeeping common to every native builtin: it
// implements every program.Program method except Tick, which each builtin
// overrides with its own one-line behavior.
type base struct {
	name     string
	priority int
	outputs  map[address.Addr]struct{}
	ordered  []address.Addr
	enabled  bool
	values   map[address.Addr]address.Value
}

func newBase(name string, priority int, outputs []address.Addr) base {
	set := make(map[address.Addr]struct{}, len(outputs))
	ordered := make([]address.Addr, len(outputs))
	copy(ordered, outputs)
	for _, a := range outputs {
		set[a] = struct{}{}
	}
	return base{
		name:     name,
		priority: priority,
		outputs:  set,
		ordered:  ordered,
		values:   make(map[address.Addr]address.Value, len(outputs)),
	}
}

func (b *base) Name() string { return b.name }

// Inputs is always empty: builtins drive their outputs from parameters
// and constants only, never from the address space directly.
func (b *base) Inputs() []address.Addr { return nil }

func (b *base) Priority() int { return b.priority }

// SlowMode is always false: builtins perform a single fixed write with no
// script evaluation cost, so there is nothing to gain by skipping ticks.
func (b *base) SlowMode() bool { return false }

func (b *base) Outputs() map[address.Addr]struct{} { return b.outputs }

func (b *base) Enabled() bool { return b.enabled }

// Enable and Disable match host.Host's bool-returning signature, so both
// satisfy the same enabler interface Fixture switches through.
func (b *base) Enable() bool {
	b.enabled = true
	return true
}

func (b *base) Disable() bool {
	b.enabled = false
	clear(b.values)
	return true
}

func (b *base) Harvest() map[address.Addr]address.Value {
	out := make(map[address.Addr]address.Value, len(b.values))
	for a, v := range b.values {
		out[a] = v
	}
	return out
}

// Off writes LOW to every owned output each tick.
type Off struct{ base }

// NewOff constructs a disabled Off builtin. Call Enable (via Fixture) to
// activate it.
func NewOff(name string, priority int, outputs []address.Addr) *Off {
	return &Off{base: newBase(name, priority, outputs)}
}

func (o *Off) Tick(in program.TickInput) (ran bool, err error) {
	if !o.enabled {
		return false, nil
	}
	for _, a := range o.ordered {
		o.values[a] = address.Low
	}
	return true, nil
}

// On writes HIGH to every owned output each tick.
type On struct{ base }

// NewOn constructs a disabled On builtin.
func NewOn(name string, priority int, outputs []address.Addr) *On {
	return &On{base: newBase(name, priority, outputs)}
}

func (o *On) Tick(in program.TickInput) (ran bool, err error) {
	if !o.enabled {
		return false, nil
	}
	for _, a := range o.ordered {
		o.values[a] = address.High
	}
	return true, nil
}

// Manual declares one continuous parameter per owned output (bounds
// [LOW, HIGH]) and copies each parameter's current value to its output
// every tick, per spec.md §4.6.
type Manual struct {
	base
	params  *param.Registry
	paramOf map[address.Addr]string
}

// NewManual declares Manual's per-output parameters against params and
// returns the constructed builtin, disabled.
func NewManual(name string, priority int, outputs []address.Addr, params *param.Registry) (*Manual, error) {
	m := &Manual{
		base:    newBase(name, priority, outputs),
		params:  params,
		paramOf: make(map[address.Addr]string, len(outputs)),
	}
	for _, a := range m.ordered {
		pname := fmt.Sprintf("output_%d", a)
		if err := params.Declare(param.Spec{
			Program: name,
			Name:    pname,
			Kind:    param.KindContinuous,
			Lower:   float64(address.Low),
			Upper:   float64(address.High),
		}); err != nil {
			return nil, err
		}
		if err := params.SetInitial(name, pname, float64(address.Low)); err != nil {
			return nil, err
		}
		m.paramOf[a] = pname
	}
	return m, nil
}

func (m *Manual) Tick(in program.TickInput) (ran bool, err error) {
	if !m.enabled {
		return false, nil
	}
	for _, a := range m.ordered {
		v, err := m.params.Get(m.name, m.paramOf[a])
		if err != nil {
			return true, err
		}
		m.values[a] = clampToValue(v)
	}
	return true, nil
}

func clampToValue(v float64) address.Value {
	if v < float64(address.Low) {
		return address.Low
	}
	if v > float64(address.High) {
		return address.High
	}
	return address.Value(v)
}
