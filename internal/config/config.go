// Package config loads the trillscan sensor setup file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Bus is the I2C bus name, empty for the first available bus.
	Bus     string         `yaml:"bus"`
	Sensors []SensorConfig `yaml:"sensors"`
}

type SensorConfig struct {
	// Type is the sensor model name: Bar, Square, Craft, Ring or Hex.
	Type string `yaml:"type"`
	// Address overrides the model's default bus address (optional).
	Address uint16 `yaml:"address"`
	// Mode is the scan mode, default Centroid.
	Mode string `yaml:"mode"`
	// SettleMs overrides the settle delay in milliseconds (optional).
	SettleMs int `yaml:"settle_ms"`

	// Optional tuning commands, sent after Configure when present.
	Speed            *int `yaml:"speed"`
	Resolution       *int `yaml:"resolution"`
	Prescaler        *int `yaml:"prescaler"`
	NoiseThreshold   *int `yaml:"noise_threshold"`
	IDAC             *int `yaml:"idac"`
	MinimumTouchSize *int `yaml:"minimum_touch_size"`
	AutoScanInterval *int `yaml:"auto_scan_interval"`
}

// Load reads and validates a setup file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := new(Config)
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}
