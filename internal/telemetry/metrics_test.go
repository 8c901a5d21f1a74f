package telemetry

import (
	"errors"
	"testing"
)

func TestTickMetricsObserveAndSnapshot(t *testing.T) {
	reg, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	for i := 0; i < 10; i++ {
		reg.Tick.Observe(float64(i) / 1000)
	}
	reg.Tick.IncOverrun()

	snap, overruns := reg.Tick.Snapshot()
	if snap.Count != 10 {
		t.Fatalf("Snapshot.Count = %d, want 10", snap.Count)
	}
	if overruns != 1 {
		t.Fatalf("overruns = %d, want 1", overruns)
	}
	if reg.Tick.Ticks() != 10 {
		t.Fatalf("Ticks() = %d, want 10", reg.Tick.Ticks())
	}
}

func TestProgramMetricsTracksFailuresAndResets(t *testing.T) {
	reg, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	reg.Program.ObserveFailure("lamp.strobe", errors.New("boom"))
	reg.Program.ObserveFailure("lamp.strobe", errors.New("boom again"))

	_, failures, lastErr := reg.Program.Snapshot("lamp.strobe")
	if failures != 2 {
		t.Fatalf("consecutive failures = %d, want 2", failures)
	}
	if lastErr != "boom again" {
		t.Fatalf("lastErr = %q, want %q", lastErr, "boom again")
	}

	reg.Program.ObserveSuccess("lamp.strobe", 0.001)
	snap, failures, lastErr := reg.Program.Snapshot("lamp.strobe")
	if failures != 0 {
		t.Fatalf("consecutive failures after success = %d, want 0", failures)
	}
	if lastErr != "" {
		t.Fatalf("lastErr after success = %q, want empty", lastErr)
	}
	if snap.Count != 1 {
		t.Fatalf("Snapshot.Count = %d, want 1", snap.Count)
	}
}

func TestProgramMetricsUnknownNameReturnsZeroValue(t *testing.T) {
	reg, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	snap, failures, lastErr := reg.Program.Snapshot("nope")
	if snap.Count != 0 || failures != 0 || lastErr != "" {
		t.Fatalf("unknown program snapshot should be zero value, got %+v %d %q", snap, failures, lastErr)
	}
}

func TestProgramMetricsForget(t *testing.T) {
	reg, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	reg.Program.ObserveSuccess("p", 0.001)
	reg.Program.Forget("p")
	snap, _, _ := reg.Program.Snapshot("p")
	if snap.Count != 0 {
		t.Fatalf("Snapshot after Forget should be zero value, got %+v", snap)
	}
}

func TestQueueDepthSetAndGet(t *testing.T) {
	reg, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	reg.Queue.Set("control-plane", 3)
	if got := reg.Queue.Get("control-plane"); got != 3 {
		t.Fatalf("Get(control-plane) = %d, want 3", got)
	}
	if got := reg.Queue.Get("unknown"); got != 0 {
		t.Fatalf("Get(unknown) = %d, want 0", got)
	}
}

func TestRegistryHandlerNotNil(t *testing.T) {
	reg, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if reg.Handler() == nil {
		t.Fatalf("Handler() returned nil")
	}
}
