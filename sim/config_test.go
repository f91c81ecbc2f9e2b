package sim

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
intake_queue_capacity: 20
initial_triage_workers: 3
permanent_service_workers: 2
shift_length_seconds: 60
dispatch_high_water_mark: 10
`)

	cfg, err := LoadConfig(path)

	require.NoError(t, err)
	assert.Equal(t, 20, cfg.IntakeQueueCapacity)
	assert.Equal(t, time.Minute, cfg.ShiftLength())
	assert.Equal(t, 8, cfg.LowWaterMark())
	assert.Equal(t, DefaultAutoscaleInterval, cfg.AutoscaleInterval)
	assert.Equal(t, DefaultAutoscaleMode, cfg.AutoscaleMode)
	assert.Equal(t, DefaultLogFile, cfg.LogFile)
	assert.Equal(t, 1.0, cfg.TimeScale)
}

func TestLoadConfig_OptionalKeys(t *testing.T) {
	path := writeConfig(t, `
intake_queue_capacity: 5
initial_triage_workers: 1
permanent_service_workers: 1
shift_length_seconds: 0
dispatch_high_water_mark: 4
max_temporary_workers: 3
autoscale_interval: 250ms
autoscale_mode: watch
time_scale: 10
metrics_addr: ":9090"
`)

	cfg, err := LoadConfig(path)

	require.NoError(t, err)
	assert.Equal(t, 3, cfg.MaxTemporaryWorkers)
	assert.Equal(t, 250*time.Millisecond, cfg.AutoscaleInterval)
	assert.Equal(t, "watch", cfg.AutoscaleMode)
	assert.Equal(t, 10.0, cfg.TimeScale)
	assert.Equal(t, ":9090", cfg.MetricsAddr)
}

func TestLoadConfig_UnknownKeyRejected(t *testing.T) {
	path := writeConfig(t, `
intake_queue_capacity: 5
initial_triage_workers: 1
permanent_service_workers: 1
shift_length_seconds: 10
dispatch_high_water_mark: 4
intake_queue_capcity: 9
`)

	_, err := LoadConfig(path)

	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(*Config)
		field string
	}{
		{name: "zero intake capacity", edit: func(c *Config) { c.IntakeQueueCapacity = 0 }, field: "intake_queue_capacity"},
		{name: "zero triage workers", edit: func(c *Config) { c.InitialTriageWorkers = 0 }, field: "initial_triage_workers"},
		{name: "zero service workers", edit: func(c *Config) { c.PermanentServiceWorkers = 0 }, field: "permanent_service_workers"},
		{name: "negative shift", edit: func(c *Config) { c.ShiftLengthSeconds = -1 }, field: "shift_length_seconds"},
		{name: "zero high water", edit: func(c *Config) { c.DispatchHighWaterMark = 0 }, field: "dispatch_high_water_mark"},
		{name: "negative max temporary", edit: func(c *Config) { c.MaxTemporaryWorkers = -1 }, field: "max_temporary_workers"},
		{name: "unknown mode", edit: func(c *Config) { c.AutoscaleMode = "cron" }, field: "autoscale_mode"},
		{name: "negative time scale", edit: func(c *Config) { c.TimeScale = -2 }, field: "time_scale"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.edit(&cfg)

			err := cfg.Validate()

			var cerr *ConfigError
			require.True(t, errors.As(err, &cerr), "want *ConfigError, got %v", err)
			assert.Equal(t, tc.field, cerr.Field)
			assert.ErrorIs(t, err, ErrConfiguration)
		})
	}

	cfg := testConfig()
	assert.NoError(t, cfg.Validate())
}

func TestLowWaterMark_Truncates(t *testing.T) {
	assert.Equal(t, 8, LowWaterMark(10))
	assert.Equal(t, 3, LowWaterMark(4))
	assert.Equal(t, 0, LowWaterMark(1))
}
