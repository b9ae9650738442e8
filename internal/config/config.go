// Package config loads brickmon settings from YAML.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that reads Go duration strings ("5s", "2m").
type Duration time.Duration

// UnmarshalYAML accepts "1m30s" style strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML writes the duration back as a string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// D returns the underlying time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

// Config models brickmon.yml.
type Config struct {
	DataDir    string `yaml:"data_dir"`
	OwnPackage string `yaml:"own_package"`

	Log struct {
		Path      string `yaml:"path"`
		ErrorPath string `yaml:"error_path"`
		Level     string `yaml:"level"`
	} `yaml:"log"`

	Enforcement struct {
		SafetyTick      Duration `yaml:"safety_tick"`
		AppCooldown     Duration `yaml:"app_cooldown"`
		WebsiteCooldown Duration `yaml:"website_cooldown"`
		PermissionCheck Duration `yaml:"permission_check"`
	} `yaml:"enforcement"`

	Session struct {
		MonitorInterval   Duration `yaml:"monitor_interval"`
		ReconcileInterval Duration `yaml:"reconcile_interval"`
	} `yaml:"session"`

	Schedule struct {
		PollInterval Duration `yaml:"poll_interval"`
	} `yaml:"schedule"`

	Overlay struct {
		LaunchTimeout    Duration `yaml:"launch_timeout"`
		LaunchPoll       Duration `yaml:"launch_poll"`
		TrailingGrace    Duration `yaml:"trailing_grace"`
		SessionPoll      Duration `yaml:"session_poll"`
		EmergencyEnabled bool     `yaml:"emergency_enabled"`
		EmergencyTaps    int      `yaml:"emergency_taps"`
	} `yaml:"overlay"`

	Essentials struct {
		TTL           Duration `yaml:"ttl"`
		LookupTimeout Duration `yaml:"lookup_timeout"`
	} `yaml:"essentials"`

	Foreground struct {
		Freshness   Duration `yaml:"freshness"`
		UsageWindow Duration `yaml:"usage_window"`
	} `yaml:"foreground"`

	Challenge struct {
		TemporaryUnlock Duration `yaml:"temporary_unlock"`
		BypassTaps      int      `yaml:"bypass_taps"`
	} `yaml:"challenge"`

	SystemRoles []string `yaml:"system_roles"`
}

// Default returns the built-in configuration.
func Default() *Config {
	var c Config
	home, _ := os.UserHomeDir()
	c.DataDir = filepath.Join(home, ".brickmon")
	c.OwnPackage = "brickmon"

	c.Log.Path = "/var/tmp/brickmon.log"
	c.Log.ErrorPath = "/var/tmp/brickmon.error.log"
	c.Log.Level = "info"

	c.Enforcement.SafetyTick = Duration(2 * time.Second)
	c.Enforcement.AppCooldown = Duration(5 * time.Second)
	c.Enforcement.WebsiteCooldown = Duration(2 * time.Second)
	c.Enforcement.PermissionCheck = Duration(30 * time.Second)

	c.Session.MonitorInterval = Duration(10 * time.Second)
	c.Session.ReconcileInterval = Duration(5 * time.Second)

	c.Schedule.PollInterval = Duration(60 * time.Second)

	c.Overlay.LaunchTimeout = Duration(3 * time.Second)
	c.Overlay.LaunchPoll = Duration(100 * time.Millisecond)
	c.Overlay.TrailingGrace = Duration(2 * time.Second)
	c.Overlay.SessionPoll = Duration(500 * time.Millisecond)
	c.Overlay.EmergencyEnabled = true
	c.Overlay.EmergencyTaps = 500

	c.Essentials.TTL = Duration(5 * time.Minute)
	c.Essentials.LookupTimeout = Duration(500 * time.Millisecond)

	c.Foreground.Freshness = Duration(5 * time.Second)
	c.Foreground.UsageWindow = Duration(10 * time.Second)

	c.Challenge.TemporaryUnlock = Duration(15 * time.Minute)
	c.Challenge.BypassTaps = 100

	return &c
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate ensures every interval is positive and tap targets are sane.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("config.data_dir is required")
	}
	durations := map[string]Duration{
		"enforcement.safety_tick":      c.Enforcement.SafetyTick,
		"enforcement.app_cooldown":     c.Enforcement.AppCooldown,
		"enforcement.website_cooldown": c.Enforcement.WebsiteCooldown,
		"enforcement.permission_check": c.Enforcement.PermissionCheck,
		"session.monitor_interval":     c.Session.MonitorInterval,
		"session.reconcile_interval":   c.Session.ReconcileInterval,
		"schedule.poll_interval":       c.Schedule.PollInterval,
		"overlay.launch_timeout":       c.Overlay.LaunchTimeout,
		"overlay.launch_poll":          c.Overlay.LaunchPoll,
		"overlay.trailing_grace":       c.Overlay.TrailingGrace,
		"overlay.session_poll":         c.Overlay.SessionPoll,
		"essentials.ttl":               c.Essentials.TTL,
		"essentials.lookup_timeout":    c.Essentials.LookupTimeout,
		"foreground.freshness":         c.Foreground.Freshness,
		"foreground.usage_window":      c.Foreground.UsageWindow,
		"challenge.temporary_unlock":   c.Challenge.TemporaryUnlock,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("config.%s must be positive", name)
		}
	}
	if c.Overlay.EmergencyTaps <= 0 {
		return fmt.Errorf("config.overlay.emergency_taps must be positive")
	}
	if c.Challenge.BypassTaps <= 0 {
		return fmt.Errorf("config.challenge.bypass_taps must be positive")
	}
	return nil
}

// DBPath is where the encrypted store lives.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "brickmon.db")
}
