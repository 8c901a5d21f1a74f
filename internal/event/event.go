// Package event implements the event queue (C2): typed input records,
// routed by subscribed alias to per-program FIFO queues.
package event

import (
	"sync"

	"github.com/mrd0ll4r/kaleidoscope/internal/address"
)

// Kind identifies the category of an Event.
type Kind int

const (
	// KindUpdate is the canonical update event. "change" is accepted as a
	// legacy synonym on input only (see FromLegacyKind).
	KindUpdate Kind = iota
	KindButtonDown
	KindButtonUp
	// KindButtonClicked carries the press duration, in seconds, as Value.
	KindButtonClicked
	// KindButtonLongPress carries the press duration, in seconds, as Value.
	KindButtonLongPress
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindUpdate:
		return "update"
	case KindButtonDown:
		return "button_down"
	case KindButtonUp:
		return "button_up"
	case KindButtonClicked:
		return "button_clicked"
	case KindButtonLongPress:
		return "button_long_press"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// FromLegacyKind maps the legacy "change" synonym onto the canonical
// KindUpdate; every other name is passed through to ParseKind.
func FromLegacyKind(name string) (Kind, bool) {
	if name == "change" {
		return KindUpdate, true
	}
	return ParseKind(name)
}

// ParseKind resolves a wire-level event kind name to a Kind.
func ParseKind(name string) (Kind, bool) {
	switch name {
	case "update":
		return KindUpdate, true
	case "button_down":
		return KindButtonDown, true
	case "button_up":
		return KindButtonUp, true
	case "button_clicked":
		return KindButtonClicked, true
	case "button_long_press":
		return KindButtonLongPress, true
	case "error":
		return KindError, true
	default:
		return 0, false
	}
}

// HasValue reports whether events of this kind carry a value.
// button_down, button_up, and error never carry a value.
func (k Kind) HasValue() bool {
	switch k {
	case KindButtonDown, KindButtonUp, KindError:
		return false
	default:
		return true
	}
}

// Event is one discrete occurrence produced between ticks.
type Event struct {
	Address address.Addr
	Kind    Kind
	// Value holds the press duration in seconds for button_clicked and
	// button_long_press and the new value for update; zero and unused for
	// button_down, button_up and error.
	Value float64
}

// Queue is an unbounded per-program FIFO. Producers append via Queue.Push
// (called by the router at enqueue time); the program host drains it,
// exactly once per tick, via Queue.Drain.
type Queue struct {
	mu      sync.Mutex
	pending []Event
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Push enqueues an event. Safe to call from any goroutine (event producers
// are external to the core).
func (q *Queue) Push(e Event) {
	q.mu.Lock()
	q.pending = append(q.pending, e)
	q.mu.Unlock()
}

// Drain removes and returns all currently queued events, in FIFO order.
// Events are destroyed (not retained) once drained, per spec: a queue
// belonging to a disabled program is cleared without dispatch by having
// the caller discard the drained slice.
func (q *Queue) Drain() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil
	}
	out := q.pending
	q.pending = nil
	return out
}

// Len reports the number of events currently queued, for queue-depth
// metrics.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Router dispatches events addressed to subscribed aliases of a given
// program into that program's Queue. One Router instance per program;
// a single logical "subscribe to this address" registration per
// (address -> program queue) pair is all that's required since the core
// only ever routes to one program's queue here - fan-out across multiple
// programs subscribed to the same address is handled by the caller
// holding one Router per program and calling Route on each that matches.
type Router struct {
	mu    sync.RWMutex
	queue *Queue
	subs  map[address.Addr]struct{}
}

// NewRouter returns a Router that feeds the given queue.
func NewRouter(q *Queue) *Router {
	return &Router{queue: q, subs: make(map[address.Addr]struct{})}
}

// Subscribe declares a durable, setup-time-fixed subscription to addr.
func (r *Router) Subscribe(addr address.Addr) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[addr] = struct{}{}
}

// Subscribed reports whether addr is subscribed.
func (r *Router) Subscribed(addr address.Addr) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.subs[addr]
	return ok
}

// Route delivers e to the backing queue if and only if e.Address is
// subscribed. Call this once per Router for every produced Event.
func (r *Router) Route(e Event) {
	if r.Subscribed(e.Address) {
		r.queue.Push(e)
	}
}
