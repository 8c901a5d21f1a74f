package telemetry

import (
	"math"
	"testing"
)

func TestDistributionApproximatesMedianOfUniform(t *testing.T) {
	d := NewDistribution(0.5, 0.9, 0.99)
	for i := 1; i <= 1000; i++ {
		d.Observe(float64(i))
	}
	if d.Count() != 1000 {
		t.Fatalf("Count() = %d, want 1000", d.Count())
	}
	p50 := d.QuantileFor(0.5)
	if math.Abs(p50-500) > 50 {
		t.Fatalf("QuantileFor(0.5) = %v, want near 500", p50)
	}
	p99 := d.QuantileFor(0.99)
	if p99 < 900 || p99 > 1000 {
		t.Fatalf("QuantileFor(0.99) = %v, want in [900,1000]", p99)
	}
	if d.Max() != 1000 {
		t.Fatalf("Max() = %v, want 1000", d.Max())
	}
	if d.Mean() != 500.5 {
		t.Fatalf("Mean() = %v, want 500.5", d.Mean())
	}
}

func TestDistributionFewSamples(t *testing.T) {
	d := NewDistribution(0.5)
	d.Observe(10)
	d.Observe(20)
	d.Observe(30)
	if d.Count() != 3 {
		t.Fatalf("Count() = %d, want 3", d.Count())
	}
	// With fewer than 5 samples, Quantile falls back to a sorted-buffer
	// lookup rather than the P² marker estimate.
	if v := d.Quantile(0); v != 20 {
		t.Fatalf("Quantile(0) = %v, want 20 (median of [10,20,30])", v)
	}
}

func TestDistributionEmpty(t *testing.T) {
	d := NewDistribution(0.5)
	if d.Count() != 0 || d.Mean() != 0 || d.Max() != 0 || d.Quantile(0) != 0 {
		t.Fatalf("empty Distribution should report zero values")
	}
}

func TestQuantileForUnknownTargetReturnsZero(t *testing.T) {
	d := NewDistribution(0.5)
	d.Observe(1)
	if v := d.QuantileFor(0.75); v != 0 {
		t.Fatalf("QuantileFor(unknown) = %v, want 0", v)
	}
}
