package host

import (
	"fmt"

	"github.com/dop251/goja"
	"github.com/mrd0ll4r/kaleidoscope/internal/address"
	"github.com/mrd0ll4r/kaleidoscope/internal/event"
	"github.com/mrd0ll4r/kaleidoscope/internal/global"
	"github.com/mrd0ll4r/kaleidoscope/internal/param"
	"github.com/mrd0ll4r/kaleidoscope/internal/scriptapi"
)

// bindSetupAPI installs the constants and setup-time declaration functions,
// following the donor adapter's pattern of binding plain Go closures via
// runtime.Set (see goja-eventloop's Adapter.Bind). The runtime-only
// functions (set_alias, get_global, parameter access, ...) are
// deliberately NOT bound yet: a setup() body that calls them fails with a
// goja ReferenceError, which is how "writing outputs during setup is a
// fatal load error" is enforced, structurally rather than by a runtime
// check.
func (h *Host) bindSetupAPI() {
	vm := h.vm

	must := func(name string, fn any) {
		if err := vm.Set(name, fn); err != nil {
			panic(fmt.Sprintf("host: bind %s: %v", name, err))
		}
	}

	must("LOW", address.Low)
	must("HIGH", address.High)
	must("START", h.start.Unix())

	must("set_priority", func(p int) { h.priority = p })
	must("set_slow_mode", func(b bool) { h.slowMode = b })

	must("add_input_alias", func(alias string, addr int) {
		a := address.Addr(addr)
		if err := h.space.DeclareInputAlias(alias, a); err != nil {
			panic(h.vm.NewGoError(err))
		}
		h.inputs = append(h.inputs, a)
	})

	must("add_output_alias", func(alias string, addr int) {
		a := address.Addr(addr)
		if err := h.space.DeclareOutputAlias(alias, a); err != nil {
			panic(h.vm.NewGoError(err))
		}
		h.outputs[a] = struct{}{}
	})

	must("add_output_group", func(name string, addrs []int) {
		as := make([]address.Addr, len(addrs))
		for i, v := range addrs {
			as[i] = address.Addr(v)
			h.outputs[as[i]] = struct{}{}
		}
		h.space.DeclareGroup(name, as)
	})

	must("add_event_subscription", func(call goja.FunctionCall) goja.Value {
		alias := call.Argument(0).String()
		kindName := call.Argument(1).String()
		handler := ""
		if len(call.Arguments) > 2 {
			handler = call.Argument(2).String()
		}
		addr, err := h.space.ResolveInput(alias)
		if err != nil {
			panic(h.vm.NewGoError(err))
		}
		kind, ok := event.FromLegacyKind(kindName)
		if !ok {
			panic(h.vm.NewTypeError(fmt.Sprintf("add_event_subscription: unknown event kind %q", kindName)))
		}
		h.router.Subscribe(addr)
		if h.eventSubs[addr] == nil {
			h.eventSubs[addr] = make(map[event.Kind]string)
		}
		h.eventSubs[addr][kind] = handler
		return goja.Undefined()
	})

	must("declare_discrete_parameter", func(call goja.FunctionCall) goja.Value {
		name := call.Argument(0).String()
		levelsVal := call.Argument(1).Export()
		initial := call.Argument(2).ToFloat()
		handler := ""
		if len(call.Arguments) > 3 {
			handler = call.Argument(3).String()
		}
		levels, err := exportDiscreteLevels(levelsVal)
		if err != nil {
			panic(h.vm.NewGoError(err))
		}
		if err := h.params.Declare(param.Spec{Program: h.name, Name: name, Kind: param.KindDiscrete, Levels: levels, Handler: handler}); err != nil {
			panic(h.vm.NewGoError(err))
		}
		if err := h.params.SetInitial(h.name, name, initial); err != nil {
			panic(h.vm.NewGoError(err))
		}
		if handler != "" {
			h.paramHandlers[name] = handler
		}
		return goja.Undefined()
	})

	must("declare_continuous_parameter", func(call goja.FunctionCall) goja.Value {
		name := call.Argument(0).String()
		lower := call.Argument(1).ToFloat()
		upper := call.Argument(2).ToFloat()
		initial := call.Argument(3).ToFloat()
		handler := ""
		if len(call.Arguments) > 4 {
			handler = call.Argument(4).String()
		}
		if err := h.params.Declare(param.Spec{Program: h.name, Name: name, Kind: param.KindContinuous, Lower: lower, Upper: upper, Handler: handler}); err != nil {
			panic(h.vm.NewGoError(err))
		}
		if err := h.params.SetInitial(h.name, name, initial); err != nil {
			panic(h.vm.NewGoError(err))
		}
		if handler != "" {
			h.paramHandlers[name] = handler
		}
		return goja.Undefined()
	})

	must("clamp", scriptapi.Clamp)
	must("lerp", scriptapi.Lerp)
	must("map_range", scriptapi.MapRange)
	must("map_to_value", scriptapi.MapToValue)
	must("map_from_value", scriptapi.MapFromValue)
	must("noise2d", scriptapi.Noise2D)
	must("noise3d", scriptapi.Noise3D)
	must("noise4d", scriptapi.Noise4D)

	must("input_alias_to_address", func(alias string) int {
		a, err := h.space.ResolveInput(alias)
		if err != nil {
			panic(h.vm.NewGoError(err))
		}
		return int(a)
	})
	must("output_alias_to_address", func(alias string) int {
		a, err := h.space.ResolveOutput(alias)
		if err != nil {
			panic(h.vm.NewGoError(err))
		}
		return int(a)
	})
	must("group_to_addresses", func(name string) []int {
		as, err := h.space.ResolveGroup(name)
		if err != nil {
			panic(h.vm.NewGoError(err))
		}
		out := make([]int, len(as))
		for i, a := range as {
			out[i] = int(a)
		}
		return out
	})
}

// bindRuntimeAPI installs the functions that are live only once setup has
// completed: output writes, global/parameter read-write, and program
// enable/disable. It is called once, immediately after setup() returns
// successfully.
func (h *Host) bindRuntimeAPI() {
	vm := h.vm

	must := func(name string, fn any) {
		if err := vm.Set(name, fn); err != nil {
			panic(fmt.Sprintf("host: bind %s: %v", name, err))
		}
	}

	must("now", func() float64 { return h.tickNow })

	must("set_alias", func(alias string, value int) {
		a, err := h.space.ResolveOutput(alias)
		if err != nil {
			panic(h.vm.NewGoError(err))
		}
		if _, ok := h.outputs[a]; !ok {
			panic(h.vm.NewTypeError(fmt.Sprintf("set_alias: address %d was not declared as an output", a)))
		}
		h.outputValues[a] = clampAddressValue(value)
	})

	must("get_alias", func(alias string) goja.Value {
		a, err := h.space.ResolveOutput(alias)
		if err != nil {
			panic(h.vm.NewGoError(err))
		}
		if v, ok := h.outputValues[a]; ok {
			return h.vm.ToValue(v)
		}
		return goja.Undefined()
	})

	must("set_group", func(name string, value int) {
		as, err := h.space.ResolveGroup(name)
		if err != nil {
			panic(h.vm.NewGoError(err))
		}
		v := clampAddressValue(value)
		for _, a := range as {
			if _, ok := h.outputs[a]; !ok {
				panic(h.vm.NewTypeError(fmt.Sprintf("set_group: address %d was not declared as an output", a)))
			}
			h.outputValues[a] = v
		}
	})

	must("current_input", func(addr int) int {
		v, ok := h.tickInputs[address.Addr(addr)]
		if !ok {
			panic(h.vm.NewGoError(&address.UnknownAddressError{Kind: "address", Name: fmt.Sprint(addr)}))
		}
		return int(v)
	})

	must("get_global", func(key string) goja.Value {
		v, ok := h.globals.Get(key)
		if !ok {
			return goja.Undefined()
		}
		return h.vm.ToValue(v.Any())
	})
	must("set_global", func(key string, val goja.Value) {
		h.globals.Set(h.name, key, exportGlobalValue(val))
	})

	must("get_parameter_value", func(name string) float64 {
		v, err := h.params.Get(h.name, name)
		if err != nil {
			panic(h.vm.NewGoError(err))
		}
		return v
	})
	must("set_parameter_value", func(name string, value float64) {
		if err := h.params.SetLocal(h.name, name, value); err != nil {
			panic(h.vm.NewGoError(err))
		}
	})
	must("increment_parameter_value", func(name string, delta int) {
		if err := h.params.Increment(h.name, name, int64(delta)); err != nil {
			panic(h.vm.NewGoError(err))
		}
	})

	must("get_foreign_parameter_value", func(program, name string) float64 {
		v, err := h.params.Get(program, name)
		if err != nil {
			panic(h.vm.NewGoError(err))
		}
		return v
	})
	// Foreign parameter writes are queued and applied by the scheduler at
	// the next tick boundary (param.Registry.ApplyQueued); blocking here on
	// the result channel would deadlock a program waiting on its own tick's
	// completion, so these fire-and-forget.
	must("set_foreign_parameter_value", func(program, name string, value float64) {
		h.params.QueueForeignSet(program, name, value)
	})
	must("increment_foreign_parameter_value", func(program, name string, delta int) {
		h.params.QueueForeignIncrement(program, name, int64(delta))
	})

	must("program_enable", func() { h.selfEnable = true; h.selfDisable = false })
	must("program_disable", func() { h.selfDisable = true; h.selfEnable = false })
	must("program_enable_toggle", func() {
		if h.Enabled() {
			h.selfDisable = true
			h.selfEnable = false
		} else {
			h.selfEnable = true
			h.selfDisable = false
		}
	})
	// enable_tick/disable_tick are accepted as legacy synonyms for
	// program_enable/program_disable (the donor pack's own event kinds
	// carry a documented legacy synonym in the same style; see
	// event.FromLegacyKind).
	must("enable_tick", func() { h.selfEnable = true; h.selfDisable = false })
	must("disable_tick", func() { h.selfDisable = true; h.selfEnable = false })

	must("get_alias_address", func(alias string) int {
		if a, err := h.space.ResolveOutput(alias); err == nil {
			return int(a)
		}
		a, err := h.space.ResolveInput(alias)
		if err != nil {
			panic(h.vm.NewGoError(err))
		}
		return int(a)
	})
}

func clampAddressValue(v int) address.Value {
	if v < 0 {
		return address.Low
	}
	if v > int(address.High) {
		return address.High
	}
	return address.Value(v)
}

func exportGlobalValue(v goja.Value) global.Value {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return global.Null()
	}
	switch ev := v.Export().(type) {
	case string:
		return global.String(ev)
	case bool:
		return global.Bool(ev)
	case int64:
		return global.Int(ev)
	case float64:
		if ev == float64(int64(ev)) {
			return global.Int(int64(ev))
		}
		return global.Real(ev)
	default:
		return global.String(v.String())
	}
}

func exportDiscreteLevels(v any) ([]param.DiscreteLevel, error) {
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("host: declare_discrete_parameter: levels must be an array")
	}
	out := make([]param.DiscreteLevel, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("host: declare_discrete_parameter: each level must be an object with label/value")
		}
		label, _ := m["label"].(string)
		var value int64
		switch n := m["value"].(type) {
		case int64:
			value = n
		case float64:
			value = int64(n)
		default:
			return nil, fmt.Errorf("host: declare_discrete_parameter: level value must be numeric")
		}
		out = append(out, param.DiscreteLevel{Label: label, Value: value})
	}
	return out, nil
}
