package workload

import (
	"bytes"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/emergency-sim/edsim/sim"
)

var validArrivalProcesses = map[string]bool{"poisson": true, "gamma": true, "constant": true}

// Spec describes a synthetic stream of patient arrivals.
// Loaded from YAML via LoadSpec(path).
type Spec struct {
	Seed          int64       `yaml:"seed"`
	Count         int         `yaml:"count"`           // number of patients to generate
	RatePerSecond float64     `yaml:"rate_per_second"` // mean arrival rate
	Arrival       ArrivalSpec `yaml:"arrival"`
	TriageMs      Range       `yaml:"triage_ms"`
	ServiceMs     Range       `yaml:"service_ms"`

	// PriorityWeights gives the relative frequency of priorities 1..5.
	// Empty means uniform.
	PriorityWeights []float64 `yaml:"priority_weights,omitempty"`

	// NamePrefix labels patients "<prefix>-<NNN>". Defaults to "patient".
	NamePrefix string `yaml:"name_prefix,omitempty"`
}

// ArrivalSpec selects the inter-arrival process.
type ArrivalSpec struct {
	Process string  `yaml:"process"`      // poisson, gamma or constant
	CV      float64 `yaml:"cv,omitempty"` // coefficient of variation, gamma only
}

// Range is an inclusive integer interval in milliseconds.
type Range struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

// LoadSpec reads and strictly parses a workload spec, then validates it.
func LoadSpec(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading workload spec: %w", err)
	}
	var spec Spec
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&spec); err != nil {
		return nil, fmt.Errorf("parsing workload spec: %w", err)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

// Validate checks that every field of the spec is usable.
func (s *Spec) Validate() error {
	if s.Count <= 0 {
		return fmt.Errorf("count must be positive, got %d", s.Count)
	}
	if err := validateFinitePositive("rate_per_second", s.RatePerSecond); err != nil {
		return err
	}
	if !validArrivalProcesses[s.Arrival.Process] {
		return fmt.Errorf("unknown arrival process %q; valid: poisson, gamma, constant", s.Arrival.Process)
	}
	if s.Arrival.CV != 0 {
		if err := validateFinitePositive("arrival.cv", s.Arrival.CV); err != nil {
			return err
		}
	}
	if err := s.TriageMs.validate("triage_ms"); err != nil {
		return err
	}
	if err := s.ServiceMs.validate("service_ms"); err != nil {
		return err
	}
	if n := len(s.PriorityWeights); n != 0 && n != sim.NumPriorities {
		return fmt.Errorf("priority_weights must have %d entries, got %d", sim.NumPriorities, n)
	}
	total := 0.0
	for i, w := range s.PriorityWeights {
		if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
			return fmt.Errorf("priority_weights[%d] must be a finite non-negative number, got %f", i, w)
		}
		total += w
	}
	if len(s.PriorityWeights) > 0 && total == 0 {
		return fmt.Errorf("priority_weights must not all be zero")
	}
	return nil
}

func (r Range) validate(name string) error {
	if r.Min < 0 {
		return fmt.Errorf("%s.min must be non-negative, got %d", name, r.Min)
	}
	if r.Max < r.Min {
		return fmt.Errorf("%s.max (%d) must be >= min (%d)", name, r.Max, r.Min)
	}
	return nil
}

func validateFinitePositive(name string, val float64) error {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return fmt.Errorf("%s must be a finite number, got %f", name, val)
	}
	if val <= 0 {
		return fmt.Errorf("%s must be positive, got %f", name, val)
	}
	return nil
}
