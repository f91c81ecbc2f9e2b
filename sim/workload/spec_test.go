package workload

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempYAML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "workload.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func validSpec() *Spec {
	return &Spec{
		Seed:          42,
		Count:         20,
		RatePerSecond: 5,
		Arrival:       ArrivalSpec{Process: "poisson"},
		TriageMs:      Range{Min: 100, Max: 300},
		ServiceMs:     Range{Min: 500, Max: 1500},
	}
}

func TestLoadSpec_ValidYAML(t *testing.T) {
	path := writeTempYAML(t, `
seed: 7
count: 50
rate_per_second: 2.5
arrival:
  process: gamma
  cv: 2.0
triage_ms: {min: 100, max: 200}
service_ms: {min: 1000, max: 3000}
priority_weights: [1, 2, 4, 2, 1]
name_prefix: ambulance
`)
	spec, err := LoadSpec(path)
	require.NoError(t, err)
	assert.Equal(t, int64(7), spec.Seed)
	assert.Equal(t, 50, spec.Count)
	assert.Equal(t, "gamma", spec.Arrival.Process)
	assert.Equal(t, 2.0, spec.Arrival.CV)
	assert.Equal(t, Range{Min: 1000, Max: 3000}, spec.ServiceMs)
	assert.Equal(t, []float64{1, 2, 4, 2, 1}, spec.PriorityWeights)
	assert.Equal(t, "ambulance", spec.NamePrefix)
}

func TestLoadSpec_UnknownKey_Rejected(t *testing.T) {
	path := writeTempYAML(t, `
count: 5
rate_per_second: 1
arival: {process: poisson}
`)
	_, err := LoadSpec(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "arival")
}

func TestLoadSpec_MissingFile(t *testing.T) {
	_, err := LoadSpec(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestSpec_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Spec)
		wantErr string
	}{
		{"valid", func(*Spec) {}, ""},
		{"zero count", func(s *Spec) { s.Count = 0 }, "count"},
		{"negative rate", func(s *Spec) { s.RatePerSecond = -1 }, "rate_per_second"},
		{"unknown process", func(s *Spec) { s.Arrival.Process = "weibull" }, "arrival process"},
		{"negative cv", func(s *Spec) { s.Arrival.CV = -2 }, "arrival.cv"},
		{"inverted triage range", func(s *Spec) { s.TriageMs = Range{Min: 10, Max: 5} }, "triage_ms"},
		{"negative service min", func(s *Spec) { s.ServiceMs.Min = -1 }, "service_ms"},
		{"wrong weight count", func(s *Spec) { s.PriorityWeights = []float64{1, 1} }, "priority_weights"},
		{"all zero weights", func(s *Spec) { s.PriorityWeights = make([]float64, 5) }, "priority_weights"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := validSpec()
			tt.mutate(spec)
			err := spec.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
