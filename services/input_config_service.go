package services

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/open-teleop/go2bridge/domain/teleop"
	"github.com/open-teleop/go2bridge/pkg/config"
	customlog "github.com/open-teleop/go2bridge/pkg/log"
)

// ConfigPublisher defines the interface for publishing configuration updates.
type ConfigPublisher interface {
	PublishConfigUpdatedNotification(cfg *config.Config) error
}

// SettingsApplier pushes validated settings into the running input pipeline.
type SettingsApplier func(teleop.Settings) error

// InputConfigService manages the operational input configuration.
type InputConfigService interface {
	LoadConfig() error
	GetCurrentConfig() *config.Config
	GetCurrentConfigYAML() ([]byte, error)
	CurrentSettings() (teleop.Settings, error)
	UpdateConfig(newConfigYAML []byte) error
	PersistConfig(yamlData []byte) error
	SetPublisher(p ConfigPublisher)
	SetApplier(apply SettingsApplier)
}

type inputConfigService struct {
	operationalConfigPath string
	logger                customlog.Logger
	configPublisher       ConfigPublisher
	applier               SettingsApplier
	currentConfig         *config.Config
	mu                    sync.RWMutex
}

// NewInputConfigService creates the service and loads the file at path. A
// missing or unreadable file leaves the built-in defaults in effect.
func NewInputConfigService(operationalConfigPath string, logger customlog.Logger) (InputConfigService, error) {
	if operationalConfigPath == "" {
		return nil, fmt.Errorf("operational configuration path cannot be empty")
	}
	if logger == nil {
		logger = customlog.NewDiscardLogger()
	}

	service := &inputConfigService{
		operationalConfigPath: operationalConfigPath,
		logger:                logger.WithField("component", "input-config"),
	}

	if err := service.LoadConfig(); err != nil {
		service.logger.Warnf("Initial load of input config '%s' failed: %v. Using defaults.", operationalConfigPath, err)
		service.currentConfig = DefaultInputConfig()
		return service, nil
	}

	service.logger.Infof("InputConfigService initialized for path: %s", operationalConfigPath)
	return service, nil
}

// DefaultInputConfig mirrors teleop.DefaultSettings.
func DefaultInputConfig() *config.Config {
	return FromSettings(teleop.DefaultSettings(), "default", "1.0")
}

// LoadConfig reads the operational config file from disk and updates the currentConfig.
func (s *inputConfigService) LoadConfig() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Infof("Loading input configuration from: %s", s.operationalConfigPath)
	cfg, err := config.LoadConfig(s.operationalConfigPath)
	if err != nil {
		return err
	}
	if _, err := ToSettings(cfg); err != nil {
		return err
	}

	s.currentConfig = cfg
	s.logger.Infof("Loaded input configuration ID: %s, Version: %s", cfg.ConfigID, cfg.Version)
	return nil
}

// GetCurrentConfig returns the configuration in effect. Callers must not modify it.
func (s *inputConfigService) GetCurrentConfig() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentConfig
}

// CurrentSettings converts the configuration in effect.
func (s *inputConfigService) CurrentSettings() (teleop.Settings, error) {
	return ToSettings(s.GetCurrentConfig())
}

// GetCurrentConfigYAML returns the file content, or the in-memory
// configuration rendered as YAML when no file exists yet.
func (s *inputConfigService) GetCurrentConfigYAML() ([]byte, error) {
	s.mu.RLock()
	path := s.operationalConfigPath
	current := s.currentConfig
	s.mu.RUnlock()

	s.logger.Debugf("Reading raw input configuration YAML from: %s", path)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) && current != nil {
		return yaml.Marshal(current)
	}
	if err != nil {
		return nil, fmt.Errorf("error reading input config file '%s': %w", path, err)
	}
	return data, nil
}

// UpdateConfig validates, persists and applies the new configuration, then
// publishes a notification.
func (s *inputConfigService) UpdateConfig(newConfigYAML []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	newCfg, err := config.ParseConfig(newConfigYAML)
	if err != nil {
		s.logger.Errorf("Rejected input configuration: %v", err)
		return err
	}
	settings, err := ToSettings(newCfg)
	if err != nil {
		s.logger.Errorf("Rejected input configuration: %v", err)
		return err
	}

	if err := s.persistConfigUnlocked(newConfigYAML); err != nil {
		return err
	}

	if s.applier != nil {
		if err := s.applier(settings); err != nil {
			return fmt.Errorf("failed to apply input settings: %w", err)
		}
	}

	oldCfgID := "N/A"
	if s.currentConfig != nil {
		oldCfgID = s.currentConfig.ConfigID
	}
	s.currentConfig = newCfg
	s.logger.Infof("Updated input configuration. ID %s -> %s, Version: %s", oldCfgID, newCfg.ConfigID, newCfg.Version)

	if s.configPublisher != nil {
		go func(publisher ConfigPublisher, cfg *config.Config) {
			if err := publisher.PublishConfigUpdatedNotification(cfg); err != nil {
				s.logger.Warnf("Failed to publish config update notification: %v", err)
			} else {
				s.logger.Debugf("Published config update notification")
			}
		}(s.configPublisher, newCfg)
	}
	return nil
}

// PersistConfig writes the given YAML data to the operational config file path.
func (s *inputConfigService) PersistConfig(yamlData []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistConfigUnlocked(yamlData)
}

// persistConfigUnlocked writes through a temp file so a crash never leaves a
// truncated config. The caller holds the lock.
func (s *inputConfigService) persistConfigUnlocked(yamlData []byte) error {
	dir := filepath.Dir(s.operationalConfigPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory '%s': %w", dir, err)
	}
	tmp := s.operationalConfigPath + ".tmp"
	if err := os.WriteFile(tmp, yamlData, 0644); err != nil {
		return fmt.Errorf("error writing input config file '%s': %w", tmp, err)
	}
	if err := os.Rename(tmp, s.operationalConfigPath); err != nil {
		return fmt.Errorf("error replacing input config file '%s': %w", s.operationalConfigPath, err)
	}
	s.logger.Infof("Persisted input configuration to %s", s.operationalConfigPath)
	return nil
}

func (s *inputConfigService) SetPublisher(p ConfigPublisher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configPublisher = p
}

func (s *inputConfigService) SetApplier(apply SettingsApplier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applier = apply
}

// ToSettings converts and validates a configuration. Zero-valued tuning
// fields fall back to the defaults; an empty keymap keeps the default keymap.
func ToSettings(cfg *config.Config) (teleop.Settings, error) {
	if cfg == nil {
		return teleop.Settings{}, fmt.Errorf("no input configuration loaded")
	}
	in := cfg.Input
	s := teleop.DefaultSettings()
	if in.Deadzone != 0 {
		s.Deadzone = in.Deadzone
	}
	if in.MaxVelocity != 0 {
		s.MaxVelocity = in.MaxVelocity
	}
	if in.UpdateRateHz != 0 {
		s.UpdateRateHz = in.UpdateRateHz
	}
	if in.Precedence != "" {
		s.Precedence = teleop.Precedence(in.Precedence)
	}
	if in.AxisMapping != (config.AxisMapping{}) {
		s.AxisMapping = teleop.AxisMapping{
			Strafe:  in.AxisMapping.Strafe,
			Forward: in.AxisMapping.Forward,
			Rotate:  in.AxisMapping.Rotate,
		}
	}
	if len(in.Keymap) > 0 {
		km := make(teleop.Keymap, len(in.Keymap))
		for i, b := range in.Keymap {
			km[i] = teleop.KeyBinding{Key: b.Key, Axis: teleop.Axis(b.Axis), Value: b.Value}
		}
		s.Keymap = km
	}
	if err := s.Validate(); err != nil {
		return teleop.Settings{}, &config.ValidationError{Reason: err.Error()}
	}
	return s, nil
}

// FromSettings renders settings as a configuration document.
func FromSettings(s teleop.Settings, configID, version string) *config.Config {
	km := make([]config.KeyBinding, len(s.Keymap))
	for i, b := range s.Keymap {
		km[i] = config.KeyBinding{Key: b.Key, Axis: string(b.Axis), Value: b.Value}
	}
	return &config.Config{
		Version:     version,
		ConfigID:    configID,
		LastUpdated: time.Now().UTC().Format(time.RFC3339),
		Input: config.InputConfig{
			Deadzone:     s.Deadzone,
			MaxVelocity:  s.MaxVelocity,
			UpdateRateHz: s.UpdateRateHz,
			Precedence:   string(s.Precedence),
			AxisMapping: config.AxisMapping{
				Strafe:  s.AxisMapping.Strafe,
				Forward: s.AxisMapping.Forward,
				Rotate:  s.AxisMapping.Rotate,
			},
			Keymap: km,
		},
	}
}
