package telemetry

import (
	"math"
	"math/rand"
)

const (
	// DefaultFlipProbability is the per-tick chance that a device toggles status.
	DefaultFlipProbability = 0.05

	walkSpan       = 10.0 // perturbation is drawn from [-walkSpan/2, +walkSpan/2]
	bandwidthFloor = 1.0
	resampleSpan   = 5.0 // resampled bandwidth lies in [floor, floor+resampleSpan]
)

// Generator advances device runtime state with bounded randomness.
type Generator struct {
	FlipProbability float64
	rand            *rand.Rand
}

// NewGenerator creates a generator drawing from r.
func NewGenerator(r *rand.Rand, flipProbability float64) *Generator {
	if flipProbability < 0 {
		flipProbability = 0
	} else if flipProbability > 1 {
		flipProbability = 1
	}
	return &Generator{FlipProbability: flipProbability, rand: r}
}

// Step advances d by one tick.
func (g *Generator) Step(d *Device) {
	if g.FlipProbability > 0 && g.rand.Float64() < g.FlipProbability {
		d.Status = d.Status.Toggle()
	}
	if d.Status != StatusOnline {
		d.Bandwidth = 0
		return
	}
	d.Bandwidth = g.walk(d.Bandwidth)
}

// InitialBandwidth draws a starting bandwidth from the floor range.
func (g *Generator) InitialBandwidth() float64 {
	return round1(g.rand.Float64()*resampleSpan + bandwidthFloor)
}

// walk applies one random-walk step, resampling when the result falls below the floor.
func (g *Generator) walk(bw float64) float64 {
	delta := (g.rand.Float64() - 0.5) * walkSpan
	bw = round1(math.Max(0, bw+delta))
	if bw < bandwidthFloor {
		bw = g.InitialBandwidth()
	}
	return bw
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
