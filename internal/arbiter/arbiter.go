// Package arbiter implements the Priority Arbitrator (C7): spec.md §4.7's
// greedy minimal-cover selection and priority-ordered output merge.
package arbiter

import (
	"sort"

	"github.com/mrd0ll4r/kaleidoscope/internal/address"
	"github.com/mrd0ll4r/kaleidoscope/internal/program"
)

// Select implements the greedy, deterministic minimal-cover algorithm over
// the enabled subset of programs: partition by priority descending (ties
// broken lexicographically by name), then walk in that order, selecting a
// program only if it would
// claim at least one address not already assigned to a higher-priority
// (or earlier same-priority) program. A slow-mode program that is merely
// skipped this tick (not forced) is still a candidate here and is still
// selected if it uniquely owns any address: its Tick call will no-op and
// its Harvest will return whatever it last actually wrote, which is
// exactly the "reserved, not flickered to a lower-priority value"
// behavior spec.md §4.7 requires — no separate reservation bookkeeping is
// needed because Host.Tick never clears its output buffer on a skipped
// tick.
func Select(programs []program.Program) []program.Program {
	ordered := make([]program.Program, 0, len(programs))
	for _, p := range programs {
		if p.Enabled() {
			ordered = append(ordered, p)
		}
	}
	sort.Slice(ordered, func(i, j int) bool {
		pi, pj := ordered[i].Priority(), ordered[j].Priority()
		if pi != pj {
			return pi > pj
		}
		return ordered[i].Name() < ordered[j].Name()
	})

	assigned := make(map[address.Addr]struct{})
	selected := make([]program.Program, 0, len(ordered))
	for _, p := range ordered {
		claims := false
		for a := range p.Outputs() {
			if _, ok := assigned[a]; !ok {
				claims = true
				break
			}
		}
		if !claims {
			continue
		}
		for a := range p.Outputs() {
			assigned[a] = struct{}{}
		}
		selected = append(selected, p)
	}
	return selected
}

// Harvested pairs a selected program with the output map it produced on
// its most recent Tick call (which may be stale, carried over from an
// earlier tick, for a program that was skipped this cycle).
type Harvested struct {
	Program program.Program
	Values  map[address.Addr]address.Value
}

// Merge composes the final output vector: for every address, the value
// written by its highest-priority contributing program wins. An address a
// selected program declared but did not harvest a value for this round
// (absent from its Values map) is left for whichever other selected
// program, if any, also claims it and did write one.
func Merge(harvested []Harvested) map[address.Addr]address.Value {
	out := make(map[address.Addr]address.Value)
	winnerPriority := make(map[address.Addr]int)
	for _, h := range harvested {
		prio := h.Program.Priority()
		for a, v := range h.Values {
			if cur, ok := winnerPriority[a]; !ok || prio > cur {
				out[a] = v
				winnerPriority[a] = prio
			}
		}
	}
	return out
}
