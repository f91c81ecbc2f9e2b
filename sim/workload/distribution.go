package workload

import (
	"math/rand"

	"github.com/emergency-sim/edsim/sim"
)

// Sample draws uniformly from the inclusive range.
func (r Range) Sample(rng *rand.Rand) int {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + rng.Intn(r.Max-r.Min+1)
}

// PrioritySampler draws priorities 1..5 from relative weights.
type PrioritySampler struct {
	cumulative [sim.NumPriorities]float64
}

// NewPrioritySampler builds a sampler from weights for priorities 1..5.
// Empty weights mean uniform.
func NewPrioritySampler(weights []float64) *PrioritySampler {
	s := &PrioritySampler{}
	total := 0.0
	for i := 0; i < sim.NumPriorities; i++ {
		w := 1.0
		if len(weights) == sim.NumPriorities {
			w = weights[i]
		}
		total += w
		s.cumulative[i] = total
	}
	for i := range s.cumulative {
		s.cumulative[i] /= total
	}
	return s
}

// Sample returns a priority in [1, 5].
func (s *PrioritySampler) Sample(rng *rand.Rand) sim.Priority {
	u := rng.Float64()
	for i, c := range s.cumulative {
		if u < c {
			return sim.Priority(i + 1)
		}
	}
	return sim.LowestPriority
}
