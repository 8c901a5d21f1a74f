// Package telemetry implements the soft-realtime observability surface: a
// streaming quantile estimator for tick-duration and per-program-latency
// histograms (C8/A3), plus a Prometheus export surface for scraping.
package telemetry

import "math"

// quantileMarker implements the P² (P-Square) algorithm for streaming
// quantile estimation in O(1) time and O(1) space per observation, without
// storing the observation stream.
//
// Reference: Jain, R. and Chlamtac, I. (1985). "The P² Algorithm for
// Dynamic Calculation of Quantiles and Histograms Without Storing
// Observations". Communications of the ACM, 28(10), pp. 1076-1085.
//
// Not safe for concurrent use; callers serialize access (TickMetrics and
// ProgramMetrics do so with a mutex).
type quantileMarker struct {
	target float64 // target quantile, in [0,1]

	height   [5]float64 // marker heights (the estimate lives at height[2])
	pos      [5]int     // marker positions
	desired  [5]float64 // desired (idealized) marker positions
	incr     [5]float64 // increments applied to desired positions per observation

	ready bool
	n     int
	seed  [5]float64 // buffers the first 5 observations until ready
}

func newQuantileMarker(target float64) *quantileMarker {
	if target < 0 {
		target = 0
	}
	if target > 1 {
		target = 1
	}
	return &quantileMarker{
		target: target,
		incr:   [5]float64{0, target / 2, target, (1 + target) / 2, 1},
	}
}

func (m *quantileMarker) Observe(x float64) {
	m.n++
	if m.n <= 5 {
		m.seed[m.n-1] = x
		if m.n == 5 {
			m.seedMarkers()
		}
		return
	}

	var k int
	switch {
	case x < m.height[0]:
		m.height[0] = x
		k = 0
	case x >= m.height[4]:
		m.height[4] = x
		k = 3
	default:
		for k = 0; k < 4; k++ {
			if m.height[k] <= x && x < m.height[k+1] {
				break
			}
		}
	}

	for i := k + 1; i < 5; i++ {
		m.pos[i]++
	}
	for i := 0; i < 5; i++ {
		m.desired[i] += m.incr[i]
	}

	for i := 1; i < 4; i++ {
		d := m.desired[i] - float64(m.pos[i])
		if (d >= 1 && m.pos[i+1]-m.pos[i] > 1) || (d <= -1 && m.pos[i-1]-m.pos[i] < -1) {
			sign := 1
			if d < 0 {
				sign = -1
			}
			adjusted := m.parabolic(i, sign)
			if m.height[i-1] < adjusted && adjusted < m.height[i+1] {
				m.height[i] = adjusted
			} else {
				m.height[i] = m.linear(i, sign)
			}
			m.pos[i] += sign
		}
	}
}

func (m *quantileMarker) seedMarkers() {
	seed := m.seed
	for i := 1; i < 5; i++ {
		key := seed[i]
		j := i - 1
		for j >= 0 && seed[j] > key {
			seed[j+1] = seed[j]
			j--
		}
		seed[j+1] = key
	}
	for i := 0; i < 5; i++ {
		m.height[i] = seed[i]
		m.pos[i] = i
	}
	m.desired = [5]float64{0, 2 * m.target, 4 * m.target, 2 + 2*m.target, 4}
	m.ready = true
}

func (m *quantileMarker) parabolic(i, d int) float64 {
	df := float64(d)
	ni, prev, next := float64(m.pos[i]), float64(m.pos[i-1]), float64(m.pos[i+1])
	a := df / (next - prev)
	b := (ni - prev + df) * (m.height[i+1] - m.height[i]) / (next - ni)
	c := (next - ni - df) * (m.height[i] - m.height[i-1]) / (ni - prev)
	return m.height[i] + a*(b+c)
}

func (m *quantileMarker) linear(i, d int) float64 {
	if d == 1 {
		return m.height[i] + (m.height[i+1]-m.height[i])/float64(m.pos[i+1]-m.pos[i])
	}
	return m.height[i] - (m.height[i]-m.height[i-1])/float64(m.pos[i]-m.pos[i-1])
}

// Value returns the current quantile estimate.
func (m *quantileMarker) Value() float64 {
	if m.n == 0 {
		return 0
	}
	if m.n < 5 {
		sorted := make([]float64, m.n)
		copy(sorted, m.seed[:m.n])
		for i := 1; i < m.n; i++ {
			key := sorted[i]
			j := i - 1
			for j >= 0 && sorted[j] > key {
				sorted[j+1] = sorted[j]
				j--
			}
			sorted[j+1] = key
		}
		idx := int(float64(m.n-1) * m.target)
		if idx >= m.n {
			idx = m.n - 1
		}
		return sorted[idx]
	}
	return m.height[2]
}

// Distribution tracks several quantiles plus count/sum/max of the same
// observation stream, reusing one quantileMarker per tracked quantile.
//
// Not safe for concurrent use.
type Distribution struct {
	markers []*quantileMarker
	targets []float64
	count   int
	sum     float64
	max     float64
}

// NewDistribution returns a Distribution tracking the given quantiles
// (each in [0,1]), e.g. NewDistribution(0.5, 0.9, 0.99).
func NewDistribution(quantiles ...float64) *Distribution {
	d := &Distribution{
		markers: make([]*quantileMarker, len(quantiles)),
		targets: append([]float64(nil), quantiles...),
		max:     -math.MaxFloat64,
	}
	for i, q := range quantiles {
		d.markers[i] = newQuantileMarker(q)
	}
	return d
}

// Observe records a new sample.
func (d *Distribution) Observe(x float64) {
	d.count++
	d.sum += x
	if x > d.max {
		d.max = x
	}
	for _, m := range d.markers {
		m.Observe(x)
	}
}

// Quantile returns the estimate for the quantile at targets[i], or 0 if i
// is out of range.
func (d *Distribution) Quantile(i int) float64 {
	if i < 0 || i >= len(d.markers) {
		return 0
	}
	return d.markers[i].Value()
}

// QuantileFor returns the estimate for target, which must exactly equal one
// of the values passed to NewDistribution; any other target yields 0.
func (d *Distribution) QuantileFor(target float64) float64 {
	for i, t := range d.targets {
		if t == target {
			return d.markers[i].Value()
		}
	}
	return 0
}

func (d *Distribution) Count() int { return d.count }
func (d *Distribution) Sum() float64 { return d.sum }

func (d *Distribution) Mean() float64 {
	if d.count == 0 {
		return 0
	}
	return d.sum / float64(d.count)
}

func (d *Distribution) Max() float64 {
	if d.count == 0 {
		return 0
	}
	return d.max
}
