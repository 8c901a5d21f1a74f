package scheduler

import "sync/atomic"

// schedState is one state of the scheduler's own run lifecycle, modeled on
// the donor eventloop package's FastState: a lock-free CAS state machine
// needs no mutex for a linear Awake -> Running -> Terminating -> Terminated
// progression.
type schedState uint32

const (
	stateAwake schedState = iota
	stateRunning
	stateTerminating
	stateTerminated
)

func (s schedState) String() string {
	switch s {
	case stateAwake:
		return "awake"
	case stateRunning:
		return "running"
	case stateTerminating:
		return "terminating"
	case stateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

type fastState struct {
	v atomic.Uint32
}

func (s *fastState) load() schedState {
	return schedState(s.v.Load())
}

func (s *fastState) store(v schedState) {
	s.v.Store(uint32(v))
}

func (s *fastState) cas(from, to schedState) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}
