// Package config handles configuration loading and management
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// CurrentVersion is the only supported configuration version.
const CurrentVersion = "1.0"

// Infinite is the value of a Duration that never elapses.
const Infinite = Duration(-1)

var (
	// ErrUnsupportedVersion is returned for configurations of another version.
	ErrUnsupportedVersion = errors.New("unsupported config version")

	// ErrInvalidDuration is returned for durations that cannot be parsed.
	ErrInvalidDuration = errors.New("invalid duration")
)

// Config is the taskmon configuration.
type Config struct {
	Version       string              `json:"version" yaml:"version"`
	Shutdown      ShutdownConfig      `json:"shutdown" yaml:"shutdown"`
	Logging       LoggingConfig       `json:"logging" yaml:"logging"`
	Notifications *NotificationConfig `json:"notifications,omitempty" yaml:"notifications,omitempty"`
}

// ShutdownConfig holds the two phases of Dispose.
type ShutdownConfig struct {
	WaitingTimeout   Duration `json:"waitingTimeout" yaml:"waitingTimeout"`
	CancelingTimeout Duration `json:"cancelingTimeout" yaml:"cancelingTimeout"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level string `json:"level" yaml:"level"`
	File  string `json:"file,omitempty" yaml:"file,omitempty"`
}

// NotificationConfig configures desktop notifications about shutdown.
type NotificationConfig struct {
	Enabled      *bool  `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	SuccessSound string `json:"successSound,omitempty" yaml:"successSound,omitempty"`
	FailureSound string `json:"failureSound,omitempty" yaml:"failureSound,omitempty"`
}

// Duration is a time.Duration that reads "1.5s" style strings, "infinite" or a
// number of milliseconds.
type Duration time.Duration

// ParseDuration parses the textual form of a Duration.
func ParseDuration(s string) (Duration, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "infinite") {
		return Infinite, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%w %q: %v", ErrInvalidDuration, s, err)
	}
	return Duration(d), nil
}

// Std returns the duration as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string {
	if d < 0 {
		return "infinite"
	}
	return time.Duration(d).String()
}

// MarshalJSON implements json.Marshaler
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON implements json.Unmarshaler
func (d *Duration) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := ParseDuration(s)
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	}

	var ms float64
	if err := json.Unmarshal(data, &ms); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidDuration, data)
	}
	if ms < 0 {
		*d = Infinite
		return nil
	}
	*d = Duration(ms * float64(time.Millisecond))
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// Manager handles configuration operations
type Manager struct{}

// NewManager creates a new configuration manager
func NewManager() *Manager {
	return &Manager{}
}

// LoadConfig loads configuration from a JSON or YAML file. Missing sections keep
// their defaults.
func (m *Manager) LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return m.ParseConfig(data)
}

// ParseConfig parses configuration data in JSON or YAML.
func (m *Manager) ParseConfig(data []byte) (*Config, error) {
	cfg := m.GetDefaultConfig()

	// Try JSON first
	jsonErr := json.Unmarshal(data, cfg)
	if jsonErr == nil {
		return m.validateConfig(cfg)
	}

	// YAML goes through JSON so that Duration is parsed in one place.
	var yamlData map[string]interface{}
	if err := yaml.Unmarshal(data, &yamlData); err != nil {
		return nil, fmt.Errorf("failed to parse config as JSON or YAML: %w", jsonErr)
	}
	jsonData, err := json.Marshal(yamlData)
	if err != nil {
		return nil, fmt.Errorf("failed to convert YAML config: %w", err)
	}
	cfg = m.GetDefaultConfig()
	if err := json.Unmarshal(jsonData, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return m.validateConfig(cfg)
}

// ValidateConfig validates a configuration
func (m *Manager) ValidateConfig(config *Config) error {
	if config.Version != CurrentVersion {
		return fmt.Errorf("%w: %s", ErrUnsupportedVersion, config.Version)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[config.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	for name, d := range map[string]Duration{
		"waitingTimeout":   config.Shutdown.WaitingTimeout,
		"cancelingTimeout": config.Shutdown.CancelingTimeout,
	} {
		if d < 0 && d != Infinite {
			return fmt.Errorf("shutdown.%s: negative durations other than infinite are not allowed", name)
		}
	}

	return nil
}

// GetDefaultConfig returns the default configuration
func (m *Manager) GetDefaultConfig() *Config {
	enabled := false

	return &Config{
		Version: CurrentVersion,
		Shutdown: ShutdownConfig{
			WaitingTimeout:   Duration(5 * time.Second),
			CancelingTimeout: Duration(5 * time.Second),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Notifications: &NotificationConfig{
			Enabled:      &enabled,
			SuccessSound: "Glass",
			FailureSound: "Basso",
		},
	}
}

// NotificationsEnabled reports whether desktop notifications are switched on.
func (c *Config) NotificationsEnabled() bool {
	return c.Notifications != nil && c.Notifications.Enabled != nil && *c.Notifications.Enabled
}

func (m *Manager) validateConfig(cfg *Config) (*Config, error) {
	if err := m.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
