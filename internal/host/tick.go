package host

import (
	"github.com/dop251/goja"
	"github.com/mrd0ll4r/kaleidoscope/internal/address"
	"github.com/mrd0ll4r/kaleidoscope/internal/event"
	"github.com/mrd0ll4r/kaleidoscope/internal/param"
	"github.com/mrd0ll4r/kaleidoscope/internal/program"
)

// Tick implements spec.md §4.5's per-tick protocol. Host owns its own
// event queue and is the sole drainer of its own parameter-change
// notifications, so in.Events and in.ParamNotifications (populated for
// other program.Program implementers) are not consulted here; in.Inputs,
// in.Now, and in.TimeOfDay are. in.Start is not read either: START is bound
// once at load from Config.Start.
func (h *Host) Tick(in program.TickInput) (ran bool, err error) {
	if h.state.load() != stateEnabled {
		// Drain and discard rather than accumulate: a disabled program
		// that is later re-enabled must not burst-dispatch every event
		// routed to it while it was down.
		h.queue.Drain()
		h.params.DrainNotifications(h.name)
		return false, nil
	}

	h.tickInputs = in.Inputs
	h.tickNow = in.Now
	_ = h.vm.Set("NOW", in.Now)
	_ = h.vm.Set("TIME_OF_DAY", in.TimeOfDay)

	events := h.queue.Drain()
	notifs := h.params.DrainNotifications(h.name)

	fired := false
	for _, e := range events {
		if h.dispatchEvent(e) {
			fired = true
		}
	}
	for _, n := range notifs {
		if h.dispatchParamNotification(n) {
			fired = true
		}
	}

	forced := !h.slowMode || h.slowCounter >= h.slowModePeriod || fired || h.justEnabled
	h.justEnabled = false
	if !forced {
		h.slowCounter++
		return false, nil
	}
	h.slowCounter = 0

	clear(h.outputValues)
	h.selfEnable = false
	h.selfDisable = false

	_, callErr := h.tickFn(goja.Undefined(), h.vm.ToValue(in.Now))
	ran = true
	if callErr != nil {
		h.onFailure(callErr)
		return ran, callErr
	}
	h.onSuccess()

	if h.selfEnable {
		h.Enable()
	}
	if h.selfDisable {
		h.Disable()
	}
	return ran, nil
}

// Harvest returns a defensive copy of the output values written during
// the most recent Tick call that actually ran. An address this program
// declared but did not write this tick is absent, never defaulted.
func (h *Host) Harvest() map[address.Addr]address.Value {
	out := make(map[address.Addr]address.Value, len(h.outputValues))
	for a, v := range h.outputValues {
		out[a] = v
	}
	return out
}

// dispatchEvent delivers one event to its subscribed handler, if a handler
// name was registered via add_event_subscription. Returns true if a
// handler was actually invoked (a forced-run trigger).
func (h *Host) dispatchEvent(e event.Event) bool {
	byKind, ok := h.eventSubs[e.Address]
	if !ok {
		return false
	}
	handler, ok := byKind[e.Kind]
	if !ok || handler == "" {
		return false
	}
	fn, ok := h.lookupHandler(handler)
	if !ok {
		return false
	}
	var arg goja.Value = goja.Undefined()
	if e.Kind.HasValue() {
		arg = h.vm.ToValue(e.Value)
	}
	if _, err := fn(goja.Undefined(), arg); err != nil {
		h.onFailure(err)
	}
	return true
}

// dispatchParamNotification delivers one change notification to its
// handler. Returns true (a forced-run trigger) whenever a notification was
// pending, regardless of whether a handler was registered for it.
func (h *Host) dispatchParamNotification(n param.ChangeNotification) bool {
	if n.Handler == "" {
		return true
	}
	fn, ok := h.lookupHandler(n.Handler)
	if !ok {
		return true
	}
	if _, err := fn(goja.Undefined(), h.vm.ToValue(n.NewValue)); err != nil {
		h.onFailure(err)
	}
	return true
}

func (h *Host) lookupHandler(name string) (goja.Callable, bool) {
	if fn, ok := h.handlers[name]; ok {
		return fn, true
	}
	v := h.vm.Get(name)
	if v == nil || goja.IsUndefined(v) {
		return nil, false
	}
	fn, ok := goja.AssertFunction(v)
	if !ok {
		return nil, false
	}
	h.handlers[name] = fn
	return fn, true
}

func (h *Host) onFailure(err error) {
	h.consecutiveFailures++
	clear(h.outputValues)
	if h.logger != nil {
		h.logger.Err().Str("program", h.name).Int("consecutive_failures", h.consecutiveFailures).Log(err.Error())
	}
	disable := h.consecutiveFailures >= h.maxConsecutiveFailures
	if h.limiter != nil {
		if _, allowed := h.limiter.Allow(h.name); !allowed {
			disable = true
		}
	}
	if disable {
		h.Disable()
	}
}

func (h *Host) onSuccess() {
	h.consecutiveFailures = 0
}
