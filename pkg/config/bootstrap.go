package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// BootstrapFileName is read from the config directory at startup.
const BootstrapFileName = "operator_config.yaml"

// BackendURLEnv overrides backend.url when set.
const BackendURLEnv = "GO2_WS_URL"

// BootstrapConfig holds the initial configuration loaded from operator_config.yaml
type BootstrapConfig struct {
	Logging   LoggingConfig         `yaml:"logging"`
	Server    BootstrapServerConfig `yaml:"server"`
	Backend   BackendConfig         `yaml:"backend"`
	Reconnect ReconnectConfig       `yaml:"reconnect"`
	Render    RenderConfig          `yaml:"render"`
	ZeroMQ    ZeroMQBootstrap       `yaml:"zeromq"`
	Data      DataConfig            `yaml:"data"`
	Joystick  JoystickConfig        `yaml:"joystick"`
}

// LoggingConfig holds logging settings from bootstrap
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogPath string `yaml:"log_path,omitempty"`
}

// BootstrapServerConfig is the operator-facing HTTP server.
type BootstrapServerConfig struct {
	HTTPPort int `yaml:"http_port"`
}

// BackendConfig describes the robot backend websocket.
type BackendConfig struct {
	URL                string `yaml:"url"`
	HandshakeTimeoutMs int    `yaml:"handshake_timeout_ms"`
	WriteTimeoutMs     int    `yaml:"write_timeout_ms"`
	OutboundBuffer     int    `yaml:"outbound_buffer"`
}

// ReconnectConfig is the exponential backoff policy.
type ReconnectConfig struct {
	BaseIntervalMs int     `yaml:"base_interval_ms"`
	MaxIntervalMs  int     `yaml:"max_interval_ms"`
	GrowthFactor   float64 `yaml:"growth_factor"`
}

// RenderConfig sets the display refresh driving analog polling and pose updates.
type RenderConfig struct {
	RefreshHz int `yaml:"refresh_hz"`
}

// ZeroMQBootstrap holds ZeroMQ settings from bootstrap
type ZeroMQBootstrap struct {
	Enabled            bool   `yaml:"enabled"`
	RequestBindAddress string `yaml:"request_bind_address"`
	PublishBindAddress string `yaml:"publish_bind_address"`
}

// DataConfig holds data directory settings from bootstrap
type DataConfig struct {
	Directory           string `yaml:"directory"`
	InputConfigFilename string `yaml:"input_config_file"`
	AssetsDirectory     string `yaml:"assets_directory,omitempty"`
}

// JoystickConfig names an optional Linux joystick device, e.g. /dev/input/js0.
type JoystickConfig struct {
	Device string `yaml:"device,omitempty"`
}

// DefaultBootstrapConfig returns the values used for anything the file omits.
func DefaultBootstrapConfig() BootstrapConfig {
	return BootstrapConfig{
		Logging: LoggingConfig{Level: "info"},
		Server:  BootstrapServerConfig{HTTPPort: 8081},
		Backend: BackendConfig{
			URL:                "ws://localhost:8000/ws",
			HandshakeTimeoutMs: 5000,
			WriteTimeoutMs:     2000,
			OutboundBuffer:     64,
		},
		Reconnect: ReconnectConfig{
			BaseIntervalMs: 1000,
			MaxIntervalMs:  10000,
			GrowthFactor:   1.5,
		},
		Render: RenderConfig{RefreshHz: 60},
		ZeroMQ: ZeroMQBootstrap{
			RequestBindAddress: "tcp://*:5557",
			PublishBindAddress: "tcp://*:5558",
		},
		Data: DataConfig{
			Directory:           "./config",
			InputConfigFilename: "input_config.yaml",
		},
	}
}

// LoadBootstrapConfig loads the bootstrap configuration from operator_config.yaml
// on top of the defaults, then applies the GO2_WS_URL override.
func LoadBootstrapConfig(configDir string) (*BootstrapConfig, error) {
	bootstrapConfigPath := filepath.Join(configDir, BootstrapFileName)

	data, err := os.ReadFile(bootstrapConfigPath)
	if err != nil {
		return nil, fmt.Errorf("error reading bootstrap config file '%s': %w", bootstrapConfigPath, err)
	}

	bootstrapCfg := DefaultBootstrapConfig()
	if err := yaml.Unmarshal(data, &bootstrapCfg); err != nil {
		return nil, fmt.Errorf("error parsing bootstrap config file '%s': %w", bootstrapConfigPath, err)
	}

	if url := os.Getenv(BackendURLEnv); url != "" {
		bootstrapCfg.Backend.URL = url
	}

	if err := bootstrapCfg.Validate(); err != nil {
		return nil, err
	}
	return &bootstrapCfg, nil
}

// Validate checks required fields and value ranges.
func (c *BootstrapConfig) Validate() error {
	if c.Backend.URL == "" {
		return fmt.Errorf("missing required field in bootstrap config: backend.url")
	}
	if c.Data.Directory == "" {
		return fmt.Errorf("missing required field in bootstrap config: data.directory")
	}
	if c.Data.InputConfigFilename == "" {
		return fmt.Errorf("missing required field in bootstrap config: data.input_config_file")
	}
	if c.ZeroMQ.Enabled {
		if c.ZeroMQ.RequestBindAddress == "" {
			return fmt.Errorf("missing required field in bootstrap config: zeromq.request_bind_address")
		}
		if c.ZeroMQ.PublishBindAddress == "" {
			return fmt.Errorf("missing required field in bootstrap config: zeromq.publish_bind_address")
		}
	}

	r := c.Reconnect
	if r.BaseIntervalMs <= 0 || r.MaxIntervalMs < r.BaseIntervalMs {
		return fmt.Errorf("invalid reconnect intervals: base=%dms max=%dms", r.BaseIntervalMs, r.MaxIntervalMs)
	}
	if r.GrowthFactor < 1 {
		return fmt.Errorf("invalid reconnect growth_factor %v: must be >= 1", r.GrowthFactor)
	}
	if c.Render.RefreshHz <= 0 || c.Render.RefreshHz > 1000 {
		return fmt.Errorf("invalid render refresh_hz %d", c.Render.RefreshHz)
	}
	return nil
}

// InputConfigPath returns the full path of the operational input file.
func (c *BootstrapConfig) InputConfigPath() string {
	return filepath.Join(c.Data.Directory, c.Data.InputConfigFilename)
}
