package scriptapi

import "math"

// Noise2D, Noise3D, Noise4D are deterministic placeholder value-noise
// functions satisfying the noise2d/3d/4d script API surface named in
// spec.md §6. spec.md explicitly excludes the specific Perlin-noise
// implementation of the original system (§1 Non-goals); this is a plain
// hash-based value noise, not Perlin noise, and is not intended to be
// bit-compatible with any prior implementation. Output is in [-1, 1].
func Noise2D(x, y float64) float64 {
	return valueNoise(hash2(x, y))
}

func Noise3D(x, y, z float64) float64 {
	return valueNoise(hash3(x, y, z))
}

func Noise4D(x, y, z, w float64) float64 {
	return valueNoise(hash4(x, y, z, w))
}

func valueNoise(h uint64) float64 {
	// map the top 53 bits of the hash onto [-1, 1]
	const mantissaBits = 53
	frac := float64(h>>(64-mantissaBits)) / float64(uint64(1)<<mantissaBits)
	return frac*2 - 1
}

func hash2(x, y float64) uint64 {
	return mix(mix(splitmix64(math.Float64bits(x)) ^ math.Float64bits(y)))
}

func hash3(x, y, z float64) uint64 {
	return mix(hash2(x, y) ^ splitmix64(math.Float64bits(z)))
}

func hash4(x, y, z, w float64) uint64 {
	return mix(hash3(x, y, z) ^ splitmix64(math.Float64bits(w)))
}

// splitmix64 and mix are a standard 64-bit integer hash finisher (SplitMix64),
// used here purely as an avalanche mixer, not as a PRNG stream.
func splitmix64(x uint64) uint64 {
	x += 0x9E3779B97F4A7C15
	x = (x ^ (x >> 30)) * 0xBF58476D1CE4E5B9
	x = (x ^ (x >> 27)) * 0x94D049BB133111EB
	return x ^ (x >> 31)
}

func mix(x uint64) uint64 {
	return splitmix64(x)
}
