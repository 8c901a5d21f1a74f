package arbiter

import (
	"testing"

	"github.com/mrd0ll4r/kaleidoscope/internal/address"
	"github.com/mrd0ll4r/kaleidoscope/internal/program"
)

type fakeProgram struct {
	name     string
	priority int
	outputs  map[address.Addr]struct{}
}

func newFake(name string, priority int, addrs ...address.Addr) *fakeProgram {
	set := make(map[address.Addr]struct{}, len(addrs))
	for _, a := range addrs {
		set[a] = struct{}{}
	}
	return &fakeProgram{name: name, priority: priority, outputs: set}
}

func (f *fakeProgram) Name() string                            { return f.name }
func (f *fakeProgram) Priority() int                            { return f.priority }
func (f *fakeProgram) Outputs() map[address.Addr]struct{}       { return f.outputs }
func (f *fakeProgram) Inputs() []address.Addr                   { return nil }
func (f *fakeProgram) SlowMode() bool                           { return false }
func (f *fakeProgram) Enabled() bool                            { return true }
func (f *fakeProgram) Tick(program.TickInput) (bool, error)     { return true, nil }
func (f *fakeProgram) Harvest() map[address.Addr]address.Value { return nil }

func names(progs []program.Program) []string {
	out := make([]string, len(progs))
	for i, p := range progs {
		out[i] = p.Name()
	}
	return out
}

func TestSelectMinimalCover(t *testing.T) {
	high := newFake("high", 10, 1, 2)
	mid := newFake("mid", 5, 2, 3)
	low := newFake("low", 1, 3, 4)

	selected := Select([]program.Program{low, high, mid})
	got := names(selected)
	want := []string{"high", "mid", "low"}
	if len(got) != len(want) {
		t.Fatalf("Select: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Select: got %v, want %v", got, want)
		}
	}
}

func TestSelectSkipsFullyCoveredProgram(t *testing.T) {
	high := newFake("high", 10, 1, 2)
	fullyCovered := newFake("covered", 5, 1, 2) // every address already owned by high
	selected := Select([]program.Program{high, fullyCovered})
	if len(selected) != 1 || selected[0].Name() != "high" {
		t.Fatalf("Select: got %v, want only [high]", names(selected))
	}
}

func TestSelectDeterministicTieBreak(t *testing.T) {
	a := newFake("bravo", 5, 1)
	b := newFake("alpha", 5, 2)
	selected := Select([]program.Program{a, b})
	got := names(selected)
	if got[0] != "alpha" || got[1] != "bravo" {
		t.Fatalf("Select: got %v, want lexicographic [alpha bravo] for equal priority", got)
	}
}

func TestMergeHigherPriorityWins(t *testing.T) {
	high := newFake("high", 10, 1)
	low := newFake("low", 1, 1)
	out := Merge([]Harvested{
		{Program: low, Values: map[address.Addr]address.Value{1: 100}},
		{Program: high, Values: map[address.Addr]address.Value{1: 200}},
	})
	if out[1] != 200 {
		t.Fatalf("Merge: out[1] = %d, want 200 (higher priority wins regardless of order)", out[1])
	}
}

func TestMergeFallsThroughWhenHigherDidNotWrite(t *testing.T) {
	high := newFake("high", 10, 1, 2)
	low := newFake("low", 1, 2)
	out := Merge([]Harvested{
		{Program: high, Values: map[address.Addr]address.Value{1: 42}}, // did not write address 2
		{Program: low, Values: map[address.Addr]address.Value{2: 7}},
	})
	if out[2] != 7 {
		t.Fatalf("Merge: out[2] = %d, want 7 (fall through to low since high left it absent)", out[2])
	}
	if out[1] != 42 {
		t.Fatalf("Merge: out[1] = %d, want 42", out[1])
	}
}
