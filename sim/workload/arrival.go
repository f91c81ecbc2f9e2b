package workload

import (
	"math"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
)

// ArrivalSampler draws the gap between two consecutive patient arrivals.
type ArrivalSampler interface {
	// SampleGap returns the next inter-arrival gap. Always >= 1µs.
	SampleGap(rng *rand.Rand) time.Duration
}

// PoissonSampler draws exponential gaps (CV = 1).
type PoissonSampler struct {
	meanMicros float64
}

func (s *PoissonSampler) SampleGap(rng *rand.Rand) time.Duration {
	return micros(rng.ExpFloat64() * s.meanMicros)
}

// GammaSampler draws Gamma-distributed gaps. A CV above 1 gives bursty
// arrivals: ambulances in convoys, quiet stretches in between.
type GammaSampler struct {
	shape float64 // 1/CV²
	scale float64 // mean·CV², in microseconds
}

func (s *GammaSampler) SampleGap(rng *rand.Rand) time.Duration {
	return micros(gammaRand(rng, s.shape, s.scale))
}

// ConstantSampler spaces arrivals evenly.
type ConstantSampler struct {
	gap time.Duration
}

func (s *ConstantSampler) SampleGap(_ *rand.Rand) time.Duration {
	if s.gap < time.Microsecond {
		return time.Microsecond
	}
	return s.gap
}

// gammaRand samples Gamma(shape, scale) with Marsaglia-Tsang, boosting
// shape < 1 through Gamma(a) = Gamma(a+1)·U^(1/a).
func gammaRand(rng *rand.Rand, shape, scale float64) float64 {
	if shape < 1 {
		u := rng.Float64()
		return gammaRand(rng, shape+1, scale) * math.Pow(u, 1/shape)
	}
	d := shape - 1.0/3.0
	c := 1 / math.Sqrt(9*d)
	for {
		var x, v float64
		for v <= 0 {
			x = rng.NormFloat64()
			v = 1 + c*x
		}
		v = v * v * v
		u := rng.Float64()
		if u < 1-0.0331*(x*x)*(x*x) || math.Log(u) < 0.5*x*x+d*(1-v+math.Log(v)) {
			return d * v * scale
		}
	}
}

func micros(v float64) time.Duration {
	if v < 1 {
		return time.Microsecond
	}
	return time.Duration(v) * time.Microsecond
}

// NewArrivalSampler builds the sampler for spec at ratePerSecond arrivals.
func NewArrivalSampler(spec ArrivalSpec, ratePerSecond float64) ArrivalSampler {
	if ratePerSecond < 1e-9 {
		ratePerSecond = 1e-9
	}
	mean := 1e6 / ratePerSecond
	switch spec.Process {
	case "gamma":
		cv := spec.CV
		if cv <= 0 {
			cv = 1
		}
		shape := 1 / (cv * cv)
		if shape < 0.01 {
			logrus.Warnf("gamma shape %.4f (cv=%.1f) is too small, using poisson arrivals", shape, cv)
			return &PoissonSampler{meanMicros: mean}
		}
		return &GammaSampler{shape: shape, scale: mean * cv * cv}
	case "constant":
		return &ConstantSampler{gap: time.Duration(mean) * time.Microsecond}
	default:
		return &PoissonSampler{meanMicros: mean}
	}
}
