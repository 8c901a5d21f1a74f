package param

import "testing"

func declareDiscrete(t *testing.T, r *Registry, program, name string, values ...int64) {
	t.Helper()
	levels := make([]DiscreteLevel, len(values))
	for i, v := range values {
		levels[i] = DiscreteLevel{Label: "l", Value: v}
	}
	if err := r.Declare(Spec{Program: program, Name: name, Kind: KindDiscrete, Levels: levels}); err != nil {
		t.Fatal(err)
	}
}

func TestDiscreteIncrementWrap(t *testing.T) {
	// spec.md scenario 6: levels [0,1,2,3], current value 2, increment(+5)
	// -> current value 3 (2+5 mod 4 = 3), handler invoked once.
	r := NewRegistry()
	declareDiscrete(t, r, "P", "mode", 0, 1, 2, 3)
	if err := r.SetInitial("P", "mode", 2); err != nil {
		t.Fatal(err)
	}
	if err := r.Increment("P", "mode", 5); err != nil {
		t.Fatal(err)
	}
	v, err := r.Get("P", "mode")
	if err != nil {
		t.Fatal(err)
	}
	if v != 3 {
		t.Fatalf("got %v, want 3", v)
	}
	notifs := r.DrainNotifications("P")
	if len(notifs) != 1 {
		t.Fatalf("expected exactly one notification, got %d", len(notifs))
	}
	if notifs[0].NewValue != 3 {
		t.Fatalf("handler argument = %v, want 3", notifs[0].NewValue)
	}
}

func TestIncrementNEquivalentToNTimesIncrementOne(t *testing.T) {
	k := 5
	for start := 0; start < k; start++ {
		for n := -7; n <= 7; n++ {
			r1 := NewRegistry()
			declareDiscrete(t, r1, "P", "m", 0, 1, 2, 3, 4)
			_ = r1.SetInitial("P", "m", float64(start))
			_ = r1.Increment("P", "m", int64(n))
			got, _ := r1.Get("P", "m")

			r2 := NewRegistry()
			declareDiscrete(t, r2, "P", "m", 0, 1, 2, 3, 4)
			_ = r2.SetInitial("P", "m", float64(start))
			steps := ((n % k) + k) % k
			for i := 0; i < steps; i++ {
				_ = r2.Increment("P", "m", 1)
			}
			want, _ := r2.Get("P", "m")

			if got != want {
				t.Fatalf("start=%d n=%d: increment(n)=%v != %d*increment(1)=%v", start, n, got, steps, want)
			}
		}
	}
}

func TestDiscreteOutOfSetRejected(t *testing.T) {
	r := NewRegistry()
	declareDiscrete(t, r, "P", "m", 0, 1, 2)
	_ = r.SetInitial("P", "m", 0)
	if err := r.Set("P", "m", 99); err != ErrOutOfRange {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
}

func TestContinuousClampsWrites(t *testing.T) {
	r := NewRegistry()
	if err := r.Declare(Spec{Program: "P", Name: "level", Kind: KindContinuous, Lower: 0, Upper: 1}); err != nil {
		t.Fatal(err)
	}
	_ = r.SetInitial("P", "level", 0.5)
	if err := r.Set("P", "level", 5.0); err != nil {
		t.Fatal(err)
	}
	v, _ := r.Get("P", "level")
	if v != 1.0 {
		t.Fatalf("expected clamp to upper bound 1.0, got %v", v)
	}
	if err := r.Set("P", "level", -5.0); err != nil {
		t.Fatal(err)
	}
	v, _ = r.Get("P", "level")
	if v != 0.0 {
		t.Fatalf("expected clamp to lower bound 0.0, got %v", v)
	}
}

func TestForeignMutationsQueuedUntilApply(t *testing.T) {
	r := NewRegistry()
	declareDiscrete(t, r, "P", "m", 0, 1, 2)
	_ = r.SetInitial("P", "m", 0)

	done := r.QueueForeignSet("P", "m", 2)
	// not applied yet
	v, _ := r.Get("P", "m")
	if v != 0 {
		t.Fatal("foreign mutation must not apply before ApplyQueued")
	}
	r.ApplyQueued()
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	v, _ = r.Get("P", "m")
	if v != 2 {
		t.Fatalf("expected foreign mutation applied, got %v", v)
	}
}

func TestUnknownParameterError(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Get("nope", "nope"); err != ErrUnknownParameter {
		t.Fatalf("expected ErrUnknownParameter, got %v", err)
	}
}

func TestDuplicateDeclarationRejected(t *testing.T) {
	r := NewRegistry()
	declareDiscrete(t, r, "P", "m", 0, 1)
	if err := r.Declare(Spec{Program: "P", Name: "m", Kind: KindDiscrete, Levels: []DiscreteLevel{{Value: 0}}}); err == nil {
		t.Fatal("expected duplicate declaration error")
	}
}
