package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Env      string         `yaml:"env"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Rollover RolloverConfig `yaml:"rollover"`
	Timer    TimerConfig    `yaml:"timer"`
	Notify   NotifyConfig   `yaml:"notify"`
	Export   ExportConfig   `yaml:"export"`
}

// ServerConfig holds the ops API configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// DatabaseConfig holds the database connection configuration. Driver is
// "postgres" or "sqlite".
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"`
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// RedisConfig holds the optional Redis cache backend. An empty Addr
// selects the in-process cache.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// RolloverConfig tunes the daily reset driver.
type RolloverConfig struct {
	TickSeconds         int           `yaml:"tick_seconds"`
	Tick                time.Duration `yaml:"-"`
	MaxConcurrentGroups int           `yaml:"max_concurrent_groups"`
}

// TimerConfig tunes the activity session loops.
type TimerConfig struct {
	PollSeconds         int           `yaml:"poll_seconds"`
	ErrorBackoffSeconds int           `yaml:"error_backoff_seconds"`
	Poll                time.Duration `yaml:"-"`
	ErrorBackoff        time.Duration `yaml:"-"`
}

// NotifyConfig holds the chat-gateway webhook settings. An empty
// WebhookURL logs notifications instead of sending them.
type NotifyConfig struct {
	WebhookURL         string        `yaml:"webhook_url"`
	DedupWindowSeconds int           `yaml:"dedup_window_seconds"`
	DedupWindow        time.Duration `yaml:"-"`
}

// ExportConfig holds the reset export settings.
type ExportConfig struct {
	Dir string `yaml:"dir"`
}

// Load reads the configuration from the given path and applies
// defaults.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, err
	}

	if cfg.Env == "" {
		cfg.Env = "local"
	}
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 10
	}

	switch cfg.Database.Driver {
	case "postgres", "sqlite":
	case "":
		cfg.Database.Driver = "sqlite"
	default:
		return nil, fmt.Errorf("database.driver must be postgres or sqlite, got %q", cfg.Database.Driver)
	}
	if cfg.Database.DSN == "" {
		if cfg.Database.Driver == "sqlite" {
			cfg.Database.DSN = "attendance.db"
		} else {
			return nil, fmt.Errorf("database.dsn is required for driver %q", cfg.Database.Driver)
		}
	}
	if cfg.Database.MaxOpenConns <= 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns <= 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetimeMinutes <= 0 {
		cfg.Database.ConnMaxLifetimeMinutes = 30
	}

	if cfg.Rollover.TickSeconds <= 0 {
		cfg.Rollover.TickSeconds = 30
	}
	cfg.Rollover.Tick = time.Duration(cfg.Rollover.TickSeconds) * time.Second
	if cfg.Rollover.MaxConcurrentGroups <= 0 {
		cfg.Rollover.MaxConcurrentGroups = 10
	}

	if cfg.Timer.PollSeconds <= 0 {
		cfg.Timer.PollSeconds = 10
	}
	if cfg.Timer.ErrorBackoffSeconds <= 0 {
		cfg.Timer.ErrorBackoffSeconds = 30
	}
	cfg.Timer.Poll = time.Duration(cfg.Timer.PollSeconds) * time.Second
	cfg.Timer.ErrorBackoff = time.Duration(cfg.Timer.ErrorBackoffSeconds) * time.Second

	if cfg.Notify.DedupWindowSeconds <= 0 {
		cfg.Notify.DedupWindowSeconds = 60
	}
	cfg.Notify.DedupWindow = time.Duration(cfg.Notify.DedupWindowSeconds) * time.Second

	if cfg.Export.Dir == "" {
		cfg.Export.Dir = "exports"
	}

	return &cfg, nil
}
