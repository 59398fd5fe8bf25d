// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ihor-metko/courtflow/internal/booking"
)

type DatabaseConfig struct {
	// Driver is "sqlite" or "memory". The memory driver backs local
	// development and tests; nothing is persisted across restarts.
	Driver   string `yaml:"driver"`
	Filename string `yaml:"filename"`
}

type BookingConfig struct {
	// HoldTTL is how long a hold blocks its slot before expiring,
	// as a Go duration string ("5m").
	HoldTTL string `yaml:"hold_ttl"`
	// ExpiryPolicy is "lazy" (retain expired holds, exclude them from
	// overlap checks) or "eager" (delete them before checking and sweep
	// in the background).
	ExpiryPolicy string `yaml:"expiry_policy"`
	// SweepInterval is how often the eager sweep job runs.
	SweepInterval string `yaml:"sweep_interval"`
}

type RealtimeConfig struct {
	// Heartbeat is the server ping interval on websocket connections.
	Heartbeat string `yaml:"heartbeat"`
}

type Config struct {
	App struct {
		Name        string `yaml:"name"`
		Environment string `yaml:"environment"`
		Port        int    `yaml:"port"`
		SecretKey   string `yaml:"-"` // Loaded from environment
	} `yaml:"app"`

	Database DatabaseConfig `yaml:"database"`
	Booking  BookingConfig  `yaml:"booking"`
	Realtime RealtimeConfig `yaml:"realtime"`

	Features struct {
		EnableMetrics bool `yaml:"enable_metrics"`
		EnableDebug   bool `yaml:"enable_debug"`
	} `yaml:"features"`
}

// Load loads both .env and yaml configuration.
func Load(configPath string) (*Config, error) {
	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	cfg.applyDefaults()
	cfg.App.SecretKey = os.Getenv("APP_SECRET_KEY")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Default returns a development configuration backed by the memory store.
func Default() *Config {
	cfg := &Config{}
	cfg.App.Name = "courtflow"
	cfg.App.Environment = "development"
	cfg.App.Port = 8080
	cfg.App.SecretKey = os.Getenv("APP_SECRET_KEY")
	cfg.Database.Driver = "memory"
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Booking.HoldTTL == "" {
		c.Booking.HoldTTL = "5m"
	}
	if c.Booking.ExpiryPolicy == "" {
		c.Booking.ExpiryPolicy = string(booking.PolicyLazy)
	}
	if c.Booking.SweepInterval == "" {
		c.Booking.SweepInterval = "1m"
	}
	if c.Realtime.Heartbeat == "" {
		c.Realtime.Heartbeat = "30s"
	}
}

func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app name is required")
	}
	if c.App.Port == 0 {
		return fmt.Errorf("app port is required")
	}
	if c.App.SecretKey == "" {
		return fmt.Errorf("APP_SECRET_KEY is required")
	}

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Filename == "" {
			return fmt.Errorf("database filename is required for sqlite")
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	if _, err := time.ParseDuration(c.Booking.HoldTTL); err != nil {
		return fmt.Errorf("invalid hold_ttl: %w", err)
	}
	if !booking.ExpiryPolicy(c.Booking.ExpiryPolicy).Valid() {
		return fmt.Errorf("unsupported expiry policy: %s", c.Booking.ExpiryPolicy)
	}
	if _, err := time.ParseDuration(c.Booking.SweepInterval); err != nil {
		return fmt.Errorf("invalid sweep_interval: %w", err)
	}
	if _, err := time.ParseDuration(c.Realtime.Heartbeat); err != nil {
		return fmt.Errorf("invalid heartbeat: %w", err)
	}
	return nil
}

// HoldTTL returns the parsed hold TTL. Call only after Validate.
func (c *Config) HoldTTL() time.Duration {
	d, _ := time.ParseDuration(c.Booking.HoldTTL)
	return d
}

func (c *Config) SweepInterval() time.Duration {
	d, _ := time.ParseDuration(c.Booking.SweepInterval)
	return d
}

func (c *Config) Heartbeat() time.Duration {
	d, _ := time.ParseDuration(c.Realtime.Heartbeat)
	return d
}
