package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds timing and safety parameters shared by the engine components.
type Config struct {
	// Countdown is how long the user has to abort before the alert is sent.
	Countdown time.Duration `yaml:"countdown"`
	// TickInterval is the countdown tick period.
	TickInterval time.Duration `yaml:"tick_interval"`
	// BroadcastPeriod is how often location is sampled while an alert is active.
	BroadcastPeriod time.Duration `yaml:"broadcast_period"`
	// MaxCancelAttempts is how many consecutive failed secret checks lock the gate.
	MaxCancelAttempts int `yaml:"max_cancel_attempts"`
	// LockoutAutoCancelDelay is how long a locked alert stays active before it
	// is force-cancelled. Zero keeps a locked alert active indefinitely.
	LockoutAutoCancelDelay time.Duration `yaml:"lockout_auto_cancel_delay"`
	// RequireSecret gates active-alert cancellation behind the stored secret.
	RequireSecret bool `yaml:"require_secret"`
	// HistoryFile is the path to the JSON file storing alert records.
	HistoryFile string `yaml:"history_file"`
	// LogLevel is the minimum level for engine logs.
	LogLevel string `yaml:"log_level"`
}

const (
	// DefaultConfigFilename is the default filename for engine settings.
	DefaultConfigFilename = "alert-engine-settings.yaml"

	// DefaultHistoryFilename is the default filename for alert history JSON.
	DefaultHistoryFilename = "alert-history.json"

	// DefaultCountdown is the default pre-send countdown duration.
	DefaultCountdown = 3 * time.Second

	// DefaultTickInterval is the default countdown tick period.
	DefaultTickInterval = 1 * time.Second

	// DefaultBroadcastPeriod is the default location sampling period.
	DefaultBroadcastPeriod = 30 * time.Second

	// DefaultMaxCancelAttempts is how many failed secret checks lock the gate.
	DefaultMaxCancelAttempts = 3

	// DefaultLockoutAutoCancelDelay is how long a locked alert stays active
	// before the automatic force-cancel.
	DefaultLockoutAutoCancelDelay = 60 * time.Second

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errNegativeLockoutDelay is returned for a negative auto-cancel delay.
	errNegativeLockoutDelay = errors.New("lockout auto-cancel delay must not be negative")
)

// Default returns a configuration populated with the stock engine timings.
func Default() *Config {
	return &Config{
		Countdown:              DefaultCountdown,
		TickInterval:           DefaultTickInterval,
		BroadcastPeriod:        DefaultBroadcastPeriod,
		MaxCancelAttempts:      DefaultMaxCancelAttempts,
		LockoutAutoCancelDelay: DefaultLockoutAutoCancelDelay,
		RequireSecret:          true,
		HistoryFile:            DefaultHistoryFilename,
		LogLevel:               "info",
	}
}

// Load reads configuration from the provided path and validates essential fields.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the provided settings and fills in defaults for
// unset timing fields.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	// Set default timings if not specified.
	if cfg.Countdown <= 0 {
		cfg.Countdown = DefaultCountdown
	}

	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}

	if cfg.BroadcastPeriod <= 0 {
		cfg.BroadcastPeriod = DefaultBroadcastPeriod
	}

	if cfg.MaxCancelAttempts <= 0 {
		cfg.MaxCancelAttempts = DefaultMaxCancelAttempts
	}

	if cfg.LockoutAutoCancelDelay < 0 {
		return errNegativeLockoutDelay
	}

	if cfg.HistoryFile == "" {
		cfg.HistoryFile = DefaultHistoryFilename
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	return nil
}
