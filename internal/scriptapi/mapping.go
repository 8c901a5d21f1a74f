// Package scriptapi implements the numeric and noise helpers exposed to
// scripts: clamp, lerp, map_range, map_to_value, map_from_value, and the
// noise2d/3d/4d family. These are plain value functions with no program
// state, shared by every program's bound script API (see internal/host).
package scriptapi

import (
	"math"
	"math/big"

	"github.com/joeycumines/floater"
)

// Clamp restricts x to [lower, upper].
func Clamp(lower, upper, x float64) float64 {
	if lower > upper {
		lower, upper = upper, lower
	}
	return min(max(x, lower), upper)
}

// Lerp linearly interpolates between a and b by t (t is not clamped; the
// caller may feed an out-of-[0,1] t to extrapolate, matching common
// lighting-script usage).
func Lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// MapRange rescales x from [inMin, inMax] to [outMin, outMax], without
// clamping the result to the output range (use Clamp to additionally
// restrict it).
func MapRange(inMin, inMax, outMin, outMax, x float64) float64 {
	if inMax == inMin {
		return outMin
	}
	t := (x - inMin) / (inMax - inMin)
	return outMin + t*(outMax-outMin)
}

// MapToValue maps x on [from, to] to a 16-bit output value, monotone
// non-decreasing, satisfying MapToValue(a,b,a)=LOW and
// MapToValue(a,b,b)=HIGH. Internally normalizes via floater's
// half-open-range arithmetic (the same routine the donor pack uses to
// avoid the accumulated-rounding bias of a naive multiply-then-round) and
// then rounds to the nearest address.Value.
func MapToValue(from, to, x float64) uint16 {
	if from == to {
		return 0
	}
	clamped := Clamp(from, to, x)
	f := (clamped - from) / (to - from) // in [0, 1], monotone in x

	// f==1 is the sole excluded endpoint of FloatFromHalfOpenRange's
	// contract ([x,y) half-open); handle it directly so map_to_value(b)=HIGH
	// holds exactly, per spec.md §8.
	if f >= 1 {
		return 65535
	}
	if f <= 0 {
		return 0
	}
	z := floater.FloatFromHalfOpenRange(nil, big.NewFloat(0), big.NewFloat(65535), big.NewFloat(f))
	v, _ := z.Float64()
	if v < 0 {
		v = 0
	}
	if v > 65535 {
		v = 65535
	}
	return uint16(math.Round(v))
}

// MapFromValue is the (approximate) inverse of MapToValue: given a value
// produced by MapToValue(from, to, x), recovers x to within one
// quantization step (1/65535th of the range).
func MapFromValue(from, to, value float64) float64 {
	f := value / 65535
	return MapRange(0, 1, from, to, f)
}
