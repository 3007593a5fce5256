// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/codr1/VolleySmart/internal/scheduler"
)

type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Filename string `yaml:"filename"`
}

// SyncConfig tunes the membership polling fallback used by clients.
type SyncConfig struct {
	InitialDelay time.Duration `yaml:"initial_delay"`
	MinInterval  time.Duration `yaml:"min_interval"`
	MaxInterval  time.Duration `yaml:"max_interval"`
	StrictPoll   bool          `yaml:"strict_poll"`
	// Heartbeat is the keep-alive period on event streams.
	Heartbeat time.Duration `yaml:"heartbeat"`
	// HubBuffer is the per-subscriber event buffer before events are dropped.
	HubBuffer int `yaml:"hub_buffer"`
}

type SchedulerConfig struct {
	Enabled           bool          `yaml:"enabled"`
	MembershipExpiry  string        `yaml:"membership_expiry_cron"`
	PendingRequestTTL time.Duration `yaml:"pending_request_ttl"`
}

type RateLimitConfig struct {
	JoinCooldown     time.Duration `yaml:"join_cooldown"`
	JoinMaxPerHour   int           `yaml:"join_max_per_hour"`
	JoinMaxIPPerHour int           `yaml:"join_max_ip_per_hour"`
	CodeMaxFailures  int           `yaml:"code_max_failures"`
	CodeLockout      time.Duration `yaml:"code_lockout"`
}

type Config struct {
	App struct {
		Name        string `yaml:"name"`
		Environment string `yaml:"environment"`
		Port        int    `yaml:"port"`
		BaseURL     string `yaml:"base_url"`
		// TrustProxy takes client addresses from X-Forwarded-For.
		TrustProxy bool   `yaml:"trust_proxy"`
		SecretKey  string `yaml:"-"` // Loaded from environment
	} `yaml:"app"`

	Database  DatabaseConfig  `yaml:"database"`
	Sync      SyncConfig      `yaml:"sync"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`

	Features struct {
		EnableDebug bool `yaml:"enable_debug"`
	} `yaml:"features"`
}

// Default returns a configuration with every optional value filled in.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// Load loads both .env and yaml configuration
func Load(configPath string) (*Config, error) {
	// Load .env file if it exists
	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	cfg.App.SecretKey = os.Getenv("APP_SECRET_KEY")
	if filename := os.Getenv("DATABASE_FILENAME"); filename != "" {
		cfg.Database.Filename = filename
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Parse decodes YAML and fills in defaults without validating.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "volleysmart"
	}
	if c.App.Environment == "" {
		c.App.Environment = "development"
	}
	if c.App.Port == 0 {
		c.App.Port = 8080
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}

	if c.Sync.InitialDelay == 0 {
		c.Sync.InitialDelay = 5 * time.Second
	}
	if c.Sync.MinInterval == 0 {
		c.Sync.MinInterval = 30 * time.Second
	}
	if c.Sync.MaxInterval == 0 {
		c.Sync.MaxInterval = 120 * time.Second
	}
	if c.Sync.Heartbeat == 0 {
		c.Sync.Heartbeat = 25 * time.Second
	}
	if c.Sync.HubBuffer == 0 {
		c.Sync.HubBuffer = 64
	}

	if c.Scheduler.MembershipExpiry == "" {
		c.Scheduler.MembershipExpiry = "0 * * * *"
	}
	if c.Scheduler.PendingRequestTTL == 0 {
		c.Scheduler.PendingRequestTTL = 14 * 24 * time.Hour
	}

	if c.RateLimit.JoinCooldown == 0 {
		c.RateLimit.JoinCooldown = 10 * time.Second
	}
	if c.RateLimit.JoinMaxPerHour == 0 {
		c.RateLimit.JoinMaxPerHour = 10
	}
	if c.RateLimit.JoinMaxIPPerHour == 0 {
		c.RateLimit.JoinMaxIPPerHour = 30
	}
	if c.RateLimit.CodeMaxFailures == 0 {
		c.RateLimit.CodeMaxFailures = 5
	}
	if c.RateLimit.CodeLockout == 0 {
		c.RateLimit.CodeLockout = 15 * time.Minute
	}
}

func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app name is required")
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		return fmt.Errorf("app port must be between 1 and 65535, got %d", c.App.Port)
	}
	if c.Database.Driver == "" {
		return fmt.Errorf("database driver is required")
	}

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Filename == "" {
			return fmt.Errorf("database filename is required for sqlite")
		}
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	if c.Sync.InitialDelay < 0 {
		return fmt.Errorf("sync initial_delay must not be negative")
	}
	if c.Sync.MinInterval <= 0 || c.Sync.MaxInterval < c.Sync.MinInterval {
		return fmt.Errorf("sync intervals invalid: min %s, max %s", c.Sync.MinInterval, c.Sync.MaxInterval)
	}
	if c.Sync.Heartbeat <= 0 {
		return fmt.Errorf("sync heartbeat must be positive")
	}
	if c.Sync.HubBuffer <= 0 {
		return fmt.Errorf("sync hub_buffer must be positive")
	}

	if c.Scheduler.Enabled {
		if err := scheduler.ValidateCron(c.Scheduler.MembershipExpiry); err != nil {
			return fmt.Errorf("scheduler membership_expiry_cron: %w", err)
		}
	}
	if c.Scheduler.PendingRequestTTL <= 0 {
		return fmt.Errorf("scheduler pending_request_ttl must be positive")
	}

	if c.RateLimit.JoinMaxPerHour <= 0 || c.RateLimit.JoinMaxIPPerHour <= 0 || c.RateLimit.CodeMaxFailures <= 0 {
		return fmt.Errorf("ratelimit limits must be positive")
	}
	if c.RateLimit.JoinCooldown < 0 || c.RateLimit.CodeLockout <= 0 {
		return fmt.Errorf("ratelimit durations invalid: cooldown %s, lockout %s", c.RateLimit.JoinCooldown, c.RateLimit.CodeLockout)
	}

	return nil
}

// IsDevelopment reports whether the app runs in the development environment.
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}
