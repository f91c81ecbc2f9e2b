package sim

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults for the optional configuration keys.
const (
	DefaultAutoscaleInterval = 500 * time.Millisecond
	DefaultAutoscaleMode     = "poll"
	DefaultLogFile           = "DEI_Emergency.log"

	// lowWaterRatio places the temporary-worker retirement threshold at 80%
	// of the high-water mark.
	lowWaterRatio = 0.8
)

// ValidAutoscaleModes is the set of recognized autoscale_mode values.
var ValidAutoscaleModes = map[string]bool{"": true, "poll": true, "watch": true}

// Config is the engine configuration, loadable from a YAML file.
//
// The first five fields are required; the rest are optional and filled by
// ApplyDefaults when left at their zero value.
type Config struct {
	IntakeQueueCapacity     int `yaml:"intake_queue_capacity"`     // capacity of the intake queue (> 0)
	InitialTriageWorkers    int `yaml:"initial_triage_workers"`    // triage pool size at start (> 0)
	PermanentServiceWorkers int `yaml:"permanent_service_workers"` // permanent service workers (> 0)
	ShiftLengthSeconds      int `yaml:"shift_length_seconds"`      // permanent worker shift (>= 0)
	DispatchHighWaterMark   int `yaml:"dispatch_high_water_mark"`  // autoscale threshold and dispatch capacity (> 0)

	MaxTemporaryWorkers int           `yaml:"max_temporary_workers"` // 0 = unbounded
	AutoscaleInterval   time.Duration `yaml:"autoscale_interval"`    // poll cadence of the autoscale driver
	AutoscaleMode       string        `yaml:"autoscale_mode"`        // "poll" or "watch"
	TimeScale           float64       `yaml:"time_scale"`            // divides simulated processing times
	LogFile             string        `yaml:"log_file"`              // mirrored log file path
	MetricsAddr         string        `yaml:"metrics_addr"`          // Prometheus listen address, empty = off
}

// LoadConfig reads, strictly decodes, defaults and validates a YAML config.
// Unknown keys are rejected so typos surface at startup.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("%w: parsing config: %v", ErrConfiguration, err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills zero-valued optional fields.
func (c *Config) ApplyDefaults() {
	if c.AutoscaleInterval == 0 {
		c.AutoscaleInterval = DefaultAutoscaleInterval
	}
	if c.AutoscaleMode == "" {
		c.AutoscaleMode = DefaultAutoscaleMode
	}
	if c.TimeScale == 0 {
		c.TimeScale = 1
	}
	if c.LogFile == "" {
		c.LogFile = DefaultLogFile
	}
}

// Validate checks every field. The returned error is a *ConfigError and
// matches ErrConfiguration under errors.Is.
func (c *Config) Validate() error {
	if c.IntakeQueueCapacity <= 0 {
		return &ConfigError{Field: "intake_queue_capacity", Msg: fmt.Sprintf("must be >= 1, got %d", c.IntakeQueueCapacity)}
	}
	if c.InitialTriageWorkers <= 0 {
		return &ConfigError{Field: "initial_triage_workers", Msg: fmt.Sprintf("must be >= 1, got %d", c.InitialTriageWorkers)}
	}
	if c.PermanentServiceWorkers <= 0 {
		return &ConfigError{Field: "permanent_service_workers", Msg: fmt.Sprintf("must be >= 1, got %d", c.PermanentServiceWorkers)}
	}
	if c.ShiftLengthSeconds < 0 {
		return &ConfigError{Field: "shift_length_seconds", Msg: fmt.Sprintf("must be >= 0, got %d", c.ShiftLengthSeconds)}
	}
	if c.DispatchHighWaterMark <= 0 {
		return &ConfigError{Field: "dispatch_high_water_mark", Msg: fmt.Sprintf("must be >= 1, got %d", c.DispatchHighWaterMark)}
	}
	if c.MaxTemporaryWorkers < 0 {
		return &ConfigError{Field: "max_temporary_workers", Msg: fmt.Sprintf("must be >= 0, got %d", c.MaxTemporaryWorkers)}
	}
	if c.AutoscaleInterval < 0 {
		return &ConfigError{Field: "autoscale_interval", Msg: fmt.Sprintf("must be positive, got %s", c.AutoscaleInterval)}
	}
	if !ValidAutoscaleModes[c.AutoscaleMode] {
		return &ConfigError{Field: "autoscale_mode", Msg: fmt.Sprintf("unknown mode %q", c.AutoscaleMode)}
	}
	if c.TimeScale < 0 {
		return &ConfigError{Field: "time_scale", Msg: fmt.Sprintf("must be positive, got %g", c.TimeScale)}
	}
	return nil
}

// ShiftLength returns the permanent worker shift as a duration.
func (c *Config) ShiftLength() time.Duration {
	return time.Duration(c.ShiftLengthSeconds) * time.Second
}

// LowWaterMark is the depth below which temporary workers retire:
// 80% of the high-water mark, truncated.
func (c *Config) LowWaterMark() int {
	return LowWaterMark(c.DispatchHighWaterMark)
}

// LowWaterMark derives the retirement threshold from a high-water mark.
func LowWaterMark(high int) int {
	return int(float64(high) * lowWaterRatio)
}
