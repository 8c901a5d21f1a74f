// Package address implements the authoritative address space (C1):
// alias/group resolution and the last-known input value for every address.
package address

import (
	"fmt"
	"sync"
)

// Value is a single 16-bit-per-address sample.
type Value = uint16

const (
	// Low is the minimum addressable value.
	Low Value = 0
	// High is the maximum addressable value.
	High Value = 65535
)

// Addr identifies a single input or output channel.
type Addr uint16

// UnknownAddressError is returned by runtime lookups against an address,
// alias, or group that was never declared or never observed.
type UnknownAddressError struct {
	Kind string // "alias", "group", or "address"
	Name string
}

func (e *UnknownAddressError) Error() string {
	return fmt.Sprintf("address: unknown %s %q", e.Kind, e.Name)
}

// Space is the process-wide address space: alias/group name tables plus the
// last-known input snapshot. It is safe for concurrent use; the scheduler
// rebuilds the input snapshot once per tick, and programs read it
// concurrently during their own tick evaluation.
type Space struct {
	mu      sync.RWMutex
	inputs  map[string]Addr   // alias -> input address
	outputs map[string]Addr   // alias -> output address
	groups  map[string][]Addr // group name -> ordered addresses
	values  map[Addr]Value    // last-known input sample per address
}

// NewSpace returns an empty address space.
func NewSpace() *Space {
	return &Space{
		inputs:  make(map[string]Addr),
		outputs: make(map[string]Addr),
		groups:  make(map[string][]Addr),
		values:  make(map[Addr]Value),
	}
}

// DeclareInputAlias registers alias as a name for addr. Declaring the same
// alias twice with the same address is a no-op; declaring it with a
// different address is an error, since alias resolution must be
// unambiguous for the lifetime of the process.
func (s *Space) DeclareInputAlias(alias string, addr Addr) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.inputs[alias]; ok && existing != addr {
		return fmt.Errorf("address: input alias %q already bound to address %d", alias, existing)
	}
	s.inputs[alias] = addr
	return nil
}

// DeclareOutputAlias registers alias as a name for addr.
func (s *Space) DeclareOutputAlias(alias string, addr Addr) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.outputs[alias]; ok && existing != addr {
		return fmt.Errorf("address: output alias %q already bound to address %d", alias, existing)
	}
	s.outputs[alias] = addr
	return nil
}

// DeclareGroup registers name as an ordered sequence of addresses.
func (s *Space) DeclareGroup(name string, addrs []Addr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]Addr, len(addrs))
	copy(cp, addrs)
	s.groups[name] = cp
}

// ResolveInput resolves an input alias to its address. Unknown aliases are
// a setup-time fatal error for the caller.
func (s *Space) ResolveInput(alias string) (Addr, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.inputs[alias]
	if !ok {
		return 0, &UnknownAddressError{Kind: "alias", Name: alias}
	}
	return a, nil
}

// ResolveOutput resolves an output alias to its address.
func (s *Space) ResolveOutput(alias string) (Addr, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.outputs[alias]
	if !ok {
		return 0, &UnknownAddressError{Kind: "alias", Name: alias}
	}
	return a, nil
}

// ResolveGroup resolves a group name to its ordered address sequence.
func (s *Space) ResolveGroup(name string) ([]Addr, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[name]
	if !ok {
		return nil, &UnknownAddressError{Kind: "group", Name: name}
	}
	cp := make([]Addr, len(g))
	copy(cp, g)
	return cp, nil
}

// CurrentInput returns the last-known input sample for addr. An address
// that has never been observed is a well-defined runtime error, never a
// silent default.
func (s *Space) CurrentInput(addr Addr) (Value, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[addr]
	if !ok {
		return 0, &UnknownAddressError{Kind: "address", Name: fmt.Sprintf("%d", addr)}
	}
	return v, nil
}

// SetInput records a new input sample. Called by the input-hardware
// adapter (external to the core); never called from within a program.
func (s *Space) SetInput(addr Addr, v Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[addr] = v
}

// Snapshot returns an immutable, point-in-time copy of the input values
// for the given addresses, suitable for handing to a single program for
// the duration of one tick.
func (s *Space) Snapshot(addrs []Addr) map[Addr]Value {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[Addr]Value, len(addrs))
	for _, a := range addrs {
		if v, ok := s.values[a]; ok {
			out[a] = v
		}
	}
	return out
}
