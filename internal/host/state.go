package host

import "sync/atomic"

// lifecycleState is one state of a program's lifecycle, per spec.md §4.5:
// Unloaded -> Loading -> Ready -> (Enabled <-> Disabled). Failed is not a
// distinct lifecycleState: it is tracked by consecutiveFailures (and the
// optional failure-rate limiter), since a failed program remains scheduled within
// Enabled, retried every tick, until escalation disables it.
type lifecycleState uint32

const (
	stateUnloaded lifecycleState = iota
	stateLoading
	stateReady
	stateEnabled
	stateDisabled
)

func (s lifecycleState) String() string {
	switch s {
	case stateUnloaded:
		return "unloaded"
	case stateLoading:
		return "loading"
	case stateReady:
		return "ready"
	case stateEnabled:
		return "enabled"
	case stateDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// fastState is a lock-free CAS state machine, modeled on the donor
// eventloop package's FastState: the lifecycle only ever needs atomic
// load/compare-and-swap, never a mutex.
type fastState struct {
	v atomic.Uint32
}

func (s *fastState) load() lifecycleState {
	return lifecycleState(s.v.Load())
}

func (s *fastState) store(v lifecycleState) {
	s.v.Store(uint32(v))
}

func (s *fastState) cas(from, to lifecycleState) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}
