package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPartitionedRNG_SameSeed_SameSequence(t *testing.T) {
	// GIVEN two RNGs built from the same seed
	a := NewPartitionedRNG(42)
	b := NewPartitionedRNG(42)

	// WHEN three values are drawn from the patients subsystem of each
	// THEN the sequences are identical
	for i := 0; i < 3; i++ {
		assert.Equal(t, a.ForSubsystem(SubsystemPatients).Int63(), b.ForSubsystem(SubsystemPatients).Int63(), "draw %d", i)
	}
}

func TestPartitionedRNG_SubsystemsAreIsolated(t *testing.T) {
	// GIVEN two RNGs with the same seed
	a := NewPartitionedRNG(7)
	b := NewPartitionedRNG(7)

	// WHEN only a draws from the patients subsystem first
	for i := 0; i < 10; i++ {
		a.ForSubsystem(SubsystemPatients).Float64()
	}

	// THEN the arrivals subsystem of both still yields the same values
	for i := 0; i < 5; i++ {
		assert.Equal(t, b.ForSubsystem(SubsystemArrivals).Float64(), a.ForSubsystem(SubsystemArrivals).Float64())
	}
}

func TestPartitionedRNG_ForSubsystem_IsCached(t *testing.T) {
	rng := NewPartitionedRNG(1)
	assert.Same(t, rng.ForSubsystem(SubsystemArrivals), rng.ForSubsystem(SubsystemArrivals))
	assert.NotSame(t, rng.ForSubsystem(SubsystemArrivals), rng.ForSubsystem(SubsystemPatients))
	assert.Equal(t, int64(1), rng.Seed())
}
