package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	DefaultTheme          = "default"
	DefaultStage          = "IN_PROGRESS"
	DefaultLogLevel       = "info"
	DefaultHistorySize    = 10
	DefaultQueueThreshold = 1000
	DefaultQueueDelay     = 250 * time.Millisecond
	DefaultRatePerSecond  = 20.0
	DefaultRateBurst      = 10
)

// History event types.
const (
	EventViewed     = "viewed"
	EventEdited     = "edited"
	EventBookmarked = "bookmarked"
	EventReleased   = "released"
)

var validate = validator.New()

// Config holds CLI configuration stored at ~/.kgeditor/config.
type Config struct {
	ServerURL   string        `yaml:"server_url" validate:"omitempty,url"`
	Token       string        `yaml:"token"`
	Username    string        `yaml:"username"`
	Workspace   string        `yaml:"workspace,omitempty"`
	Theme       string        `yaml:"theme" validate:"oneof=default bright"`
	Stage       string        `yaml:"stage" validate:"oneof=IN_PROGRESS RELEASED"`
	History     HistoryConfig `yaml:"history"`
	Queue       QueueConfig   `yaml:"queue"`
	RateLimit   RateLimit     `yaml:"rate_limit"`
	LogLevel    string        `yaml:"log_level" validate:"oneof=debug info warn error"`
	MetricsAddr string        `yaml:"metrics_addr,omitempty" validate:"omitempty,hostname_port"`
}

// HistoryConfig controls which instance events are remembered.
type HistoryConfig struct {
	Size       int             `yaml:"size" validate:"gte=1,lte=100"`
	EventTypes map[string]bool `yaml:"event_types" validate:"dive,keys,oneof=viewed edited bookmarked released,endkeys"`
}

// QueueConfig tunes the batched fetch queues.
type QueueConfig struct {
	Threshold int           `yaml:"threshold" validate:"gte=1,lte=1000"`
	Delay     time.Duration `yaml:"delay" validate:"gte=0"`
}

// RateLimit caps requests sent to the server.
type RateLimit struct {
	PerSecond float64 `yaml:"per_second" validate:"gt=0,lte=1000"`
	Burst     int     `yaml:"burst" validate:"gte=1,lte=1000"`
}

// Default returns a config with every optional field filled in.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// DefaultEventTypes returns the history event types enabled out of the box.
func DefaultEventTypes() map[string]bool {
	return map[string]bool{
		EventViewed:     false,
		EventEdited:     true,
		EventBookmarked: true,
		EventReleased:   false,
	}
}

func (c *Config) applyDefaults() {
	if c.Theme == "" {
		c.Theme = DefaultTheme
	}
	if c.Stage == "" {
		c.Stage = DefaultStage
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.History.Size == 0 {
		c.History.Size = DefaultHistorySize
	}
	if c.History.EventTypes == nil {
		c.History.EventTypes = DefaultEventTypes()
	}
	if c.Queue.Threshold == 0 {
		c.Queue.Threshold = DefaultQueueThreshold
	}
	if c.Queue.Delay == 0 {
		c.Queue.Delay = DefaultQueueDelay
	}
	if c.RateLimit.PerSecond == 0 {
		c.RateLimit.PerSecond = DefaultRatePerSecond
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = DefaultRateBurst
	}
}

// Validate checks field values against their constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Path returns the config file path.
func Path() string {
	return filepath.Join(Dir(), "config")
}

// Dir returns the directory holding config, logs and local state.
func Dir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".kgeditor")
}

// Load reads and parses the config file. Returns error if missing or insecure.
func Load() (*Config, error) {
	path := Path()

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("config not found: %w", err)
	}

	perm := info.Mode().Perm()
	if perm != 0600 {
		return nil, fmt.Errorf("config permissions too open: %04o (want 0600)", perm)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if cfg.Token == "" {
		return nil, fmt.Errorf("config missing token")
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the config to disk with secure permissions.
func (c *Config) Save() error {
	path := Path()
	dir := filepath.Dir(path)

	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	// WriteFile keeps the mode of an existing file.
	return os.Chmod(path, 0600)
}
