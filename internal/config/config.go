// YAML config loader with CUE validation integration
package config

import (
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied when the configuration leaves a field empty.
const (
	DefaultClusterID       = "lab-01"
	DefaultTickInterval    = 2000 * time.Millisecond
	DefaultFlipProbability = 0.05
	DefaultHistoryCapacity = 200
	DefaultLogCapacity     = 1000
)

// Device is one registry seed entry.
type Device struct {
	ID               string            `yaml:"id" validate:"required"`
	Name             string            `yaml:"name" validate:"required"`
	Address          string            `yaml:"address" validate:"required,ip|hostname_rfc1123"`
	Meta             map[string]string `yaml:"meta,omitempty"`
	InitialStatus    string            `yaml:"initial_status,omitempty" validate:"omitempty,oneof=online offline"`
	InitialBandwidth *float64          `yaml:"initial_bandwidth,omitempty" validate:"omitempty,gte=0"`
}

// SimulationConfig is the root configuration for the simulated fleet.
type SimulationConfig struct {
	ClusterID       string   `yaml:"cluster_id"`
	TickIntervalMs  int      `yaml:"tick_interval_ms" validate:"gte=0"`
	FlipProbability *float64 `yaml:"flip_probability,omitempty" validate:"omitempty,gte=0,lte=1"`
	HistoryCapacity int      `yaml:"history_capacity" validate:"gte=0"`
	LogCapacity     int      `yaml:"log_capacity" validate:"gte=0"`
	Devices         []Device `yaml:"devices" validate:"required,min=1,unique=ID,dive"`
}

// TickInterval returns the configured interval or the default.
func (c *SimulationConfig) TickInterval() time.Duration {
	if c.TickIntervalMs <= 0 {
		return DefaultTickInterval
	}
	return time.Duration(c.TickIntervalMs) * time.Millisecond
}

// Flip returns the configured flip probability or the default.
func (c *SimulationConfig) Flip() float64 {
	if c.FlipProbability == nil {
		return DefaultFlipProbability
	}
	return *c.FlipProbability
}

func (c *SimulationConfig) applyDefaults() {
	if c.ClusterID == "" {
		c.ClusterID = DefaultClusterID
	}
	if c.HistoryCapacity <= 0 {
		c.HistoryCapacity = DefaultHistoryCapacity
	}
	if c.LogCapacity <= 0 {
		c.LogCapacity = DefaultLogCapacity
	}
}

// Default returns the built-in three device lab.
func Default() *SimulationConfig {
	bw := func(v float64) *float64 { return &v }
	cfg := &SimulationConfig{
		Devices: []Device{
			{ID: "dev-1", Name: "Gateway-1", Address: "127.0.0.1", Meta: map[string]string{"location": "Lab"}, InitialBandwidth: bw(12)},
			{ID: "dev-2", Name: "Google-DNS", Address: "8.8.8.8", Meta: map[string]string{"location": "Internet"}, InitialBandwidth: bw(30)},
			{ID: "dev-3", Name: "Unreachable-Host", Address: "10.255.255.1", Meta: map[string]string{"location": "Remote"}, InitialBandwidth: bw(5)},
		},
	}
	cfg.applyDefaults()
	return cfg
}

// Load loads YAML config and validates it against a CUE schema.
// An empty cueSchemaPath selects the embedded schema.
func Load(configPath, cueSchemaPath string) (*SimulationConfig, error) {
	if err := ValidateWithCue(configPath, cueSchemaPath); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, &ConfigError{Field: "file", Reason: "unreadable", Err: err}
	}
	var cfg SimulationConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &ConfigError{Field: "file", Reason: "malformed yaml", Err: err}
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	slog.Info("loaded configuration", "path", configPath, "cluster_id", cfg.ClusterID, "devices", len(cfg.Devices))
	return &cfg, nil
}
