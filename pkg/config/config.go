package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the operational input configuration (input_config.yaml). Unlike
// the bootstrap file it can be replaced at runtime.
type Config struct {
	Version     string      `yaml:"version" json:"version"`
	ConfigID    string      `yaml:"config_id" json:"config_id"`
	LastUpdated string      `yaml:"lastUpdated" json:"lastUpdated"`
	Input       InputConfig `yaml:"input" json:"input"`
}

// InputConfig tunes the command pipeline.
type InputConfig struct {
	Deadzone     float64      `yaml:"deadzone" json:"deadzone"`
	MaxVelocity  float64      `yaml:"max_velocity" json:"max_velocity"`
	UpdateRateHz float64      `yaml:"update_rate_hz" json:"update_rate_hz"`
	Precedence   string       `yaml:"precedence" json:"precedence"`
	AxisMapping  AxisMapping  `yaml:"axis_mapping" json:"axis_mapping"`
	Keymap       []KeyBinding `yaml:"keymap,omitempty" json:"keymap,omitempty"`
}

// AxisMapping gives the raw analog axis index for each logical axis.
type AxisMapping struct {
	Strafe  int `yaml:"strafe" json:"strafe"`
	Forward int `yaml:"forward" json:"forward"`
	Rotate  int `yaml:"rotate" json:"rotate"`
}

// KeyBinding maps a key to a value on one of x_vel, y_vel or ang_vel.
type KeyBinding struct {
	Key   string  `yaml:"key" json:"key"`
	Axis  string  `yaml:"axis" json:"axis"`
	Value float64 `yaml:"value" json:"value"`
}

// LoadConfig loads configuration from the specified file path
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML and checks the metadata fields.
func ParseConfig(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, &ValidationError{Reason: fmt.Sprintf("invalid YAML format: %v", err)}
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks the metadata required on every input config.
func (c *Config) Validate() error {
	if c.ConfigID == "" || c.Version == "" {
		return &ValidationError{Reason: "missing required fields (config_id, version)"}
	}
	if c.Input.UpdateRateHz < 0 {
		return &ValidationError{Reason: "input.update_rate_hz must not be negative"}
	}
	return nil
}

// ValidationError marks configuration content the caller should fix, as
// opposed to I/O failures.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "validation failed: " + e.Reason }

// IsValidationError lets handlers map the error to 400.
func (e *ValidationError) IsValidationError() bool { return true }
