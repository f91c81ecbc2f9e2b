package workload

import (
	"fmt"
	"time"

	"github.com/emergency-sim/edsim/sim"
)

// Arrival is one generated patient and when it arrives, relative to the
// start of the stream.
type Arrival struct {
	Offset  time.Duration
	Patient sim.Patient
}

// Generate creates spec.Count arrivals in non-decreasing Offset order.
// Deterministic for a given spec, seed included.
func Generate(spec *Spec) ([]Arrival, error) {
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid workload spec: %w", err)
	}
	rng := sim.NewPartitionedRNG(spec.Seed)
	arrivalRNG := rng.ForSubsystem(sim.SubsystemArrivals)
	patientRNG := rng.ForSubsystem(sim.SubsystemPatients)

	gaps := NewArrivalSampler(spec.Arrival, spec.RatePerSecond)
	priorities := NewPrioritySampler(spec.PriorityWeights)
	prefix := spec.NamePrefix
	if prefix == "" {
		prefix = "patient"
	}

	out := make([]Arrival, 0, spec.Count)
	var offset time.Duration
	for i := 1; i <= spec.Count; i++ {
		if i > 1 {
			offset += gaps.SampleGap(arrivalRNG)
		}
		p, err := sim.NewPatient(
			fmt.Sprintf("%s-%03d", prefix, i),
			spec.TriageMs.Sample(patientRNG),
			spec.ServiceMs.Sample(patientRNG),
			int(priorities.Sample(patientRNG)),
		)
		if err != nil {
			return nil, fmt.Errorf("patient %d: %w", i, err)
		}
		out = append(out, Arrival{Offset: offset, Patient: p})
	}
	return out, nil
}
