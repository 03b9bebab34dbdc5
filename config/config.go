// Package config holds the tunables of the LE Audio client core.
//
// Defaults mirror the platform values; deployments can override them
// with a YAML file and individual platform properties can be injected
// through the Properties map.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Property key for the audio suspend keep-alive timeout, in integer
// milliseconds.
const SuspendTimeoutProperty = "persist.bluetooth.leaudio.audio.suspend.timeoutms"

// Defaults.
const (
	// DefaultSuspendTimeout keeps the ISO plane alive after both audio
	// directions suspended, so a quick resume does not rebuild the CIG.
	DefaultSuspendTimeout = 5000 * time.Millisecond

	// DefaultSetStateTimeout bounds a single group state transition.
	DefaultSetStateTimeout = 3000 * time.Millisecond

	// DefaultPreferredMTU is requested when the peer came up with the
	// default ATT MTU.
	DefaultPreferredMTU = 240
)

// Config is the root configuration of the client core.
type Config struct {
	// SuspendTimeout is how long the stream is kept alive after the
	// audio framework suspended both directions.
	SuspendTimeout time.Duration `yaml:"-"`

	// SetStateTimeout guards every group state transition.
	SetStateTimeout time.Duration `yaml:"-"`

	// PreferredMTU is the ATT MTU requested on connection.
	PreferredMTU uint16 `yaml:"preferred_mtu"`

	// Properties models the platform property store. Keys present here
	// take precedence over the YAML values above.
	Properties map[string]string `yaml:"-"`
}

// overlay is the YAML file shape; durations are integer milliseconds.
type overlay struct {
	SuspendTimeoutMs  int    `yaml:"suspend_timeout_ms"`
	SetStateTimeoutMs int    `yaml:"set_state_timeout_ms"`
	PreferredMTU      uint16 `yaml:"preferred_mtu"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		SuspendTimeout:  DefaultSuspendTimeout,
		SetStateTimeout: DefaultSetStateTimeout,
		PreferredMTU:    DefaultPreferredMTU,
		Properties:      make(map[string]string),
	}
}

// Load reads a YAML overlay on top of the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var ov overlay
	if err := yaml.Unmarshal(data, &ov); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if ov.SuspendTimeoutMs > 0 {
		cfg.SuspendTimeout = time.Duration(ov.SuspendTimeoutMs) * time.Millisecond
	}
	if ov.SetStateTimeoutMs > 0 {
		cfg.SetStateTimeout = time.Duration(ov.SetStateTimeoutMs) * time.Millisecond
	}
	if ov.PreferredMTU > 0 {
		cfg.PreferredMTU = ov.PreferredMTU
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function": "Load",
		"path":     path,
	}).Info("Configuration loaded")

	return cfg, nil
}

// Validate rejects values the core cannot operate with.
func (c *Config) Validate() error {
	if c.SuspendTimeout <= 0 {
		return fmt.Errorf("suspend_timeout must be positive, got %v", c.SuspendTimeout)
	}
	if c.SetStateTimeout <= 0 {
		return fmt.Errorf("set_state_timeout must be positive, got %v", c.SetStateTimeout)
	}
	if c.PreferredMTU < 23 {
		return fmt.Errorf("preferred_mtu below ATT minimum: %d", c.PreferredMTU)
	}
	return nil
}

// SetProperty injects a platform property value.
func (c *Config) SetProperty(key, value string) {
	if c.Properties == nil {
		c.Properties = make(map[string]string)
	}
	c.Properties[key] = value
}

// PropertyMs returns a property interpreted as integer milliseconds,
// or fallback when absent or malformed.
func (c *Config) PropertyMs(key string, fallback time.Duration) time.Duration {
	raw, ok := c.Properties[key]
	if !ok {
		return fallback
	}

	ms, err := strconv.Atoi(raw)
	if err != nil || ms <= 0 {
		logrus.WithFields(logrus.Fields{
			"function": "PropertyMs",
			"key":      key,
			"value":    raw,
		}).Warn("Ignoring malformed property value")
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

// EffectiveSuspendTimeout resolves the suspend keep-alive, letting the
// platform property override the configured value.
func (c *Config) EffectiveSuspendTimeout() time.Duration {
	return c.PropertyMs(SuspendTimeoutProperty, c.SuspendTimeout)
}
