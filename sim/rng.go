package sim

import (
	"hash/fnv"
	"math/rand"
)

// RNG subsystems used by synthetic workload generation.
const (
	// SubsystemArrivals draws inter-arrival gaps. It uses the seed directly so
	// the arrival schedule for a seed does not change when patient attributes
	// are drawn differently.
	SubsystemArrivals = "arrivals"

	// SubsystemPatients draws processing times and priorities.
	SubsystemPatients = "patients"
)

// PartitionedRNG hands out one deterministically seeded *rand.Rand per named
// subsystem, so draws in one subsystem never shift the sequence of another.
//
// Not safe for concurrent use.
type PartitionedRNG struct {
	seed       int64
	subsystems map[string]*rand.Rand
}

// NewPartitionedRNG creates a PartitionedRNG from a seed.
func NewPartitionedRNG(seed int64) *PartitionedRNG {
	return &PartitionedRNG{
		seed:       seed,
		subsystems: make(map[string]*rand.Rand),
	}
}

// ForSubsystem returns the RNG for name, creating it on first use. The derived
// seed is the master seed for SubsystemArrivals and seed XOR fnv1a64(name)
// otherwise.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if rng, ok := p.subsystems[name]; ok {
		return rng
	}
	derived := p.seed
	if name != SubsystemArrivals {
		derived ^= fnv1a64(name)
	}
	rng := rand.New(rand.NewSource(derived))
	p.subsystems[name] = rng
	return rng
}

// Seed returns the master seed.
func (p *PartitionedRNG) Seed() int64 {
	return p.seed
}

func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
