package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server" validate:"required"`
	Database   DatabaseConfig   `yaml:"database" validate:"required"`
	Cache      CacheConfig      `yaml:"cache"`
	Tracking   TrackingConfig   `yaml:"tracking"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	Log        LogConfig        `yaml:"log"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Port            int     `yaml:"port" validate:"required,min=1,max=65535"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn" validate:"required"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	EnableGeoIndexes       bool   `yaml:"enable_geo_indexes"`
}

// CacheConfig selects and tunes the TTL cache backend.
type CacheConfig struct {
	Backend            string        `yaml:"backend" validate:"omitempty,oneof=memory redis"`
	RedisAddr          string        `yaml:"redis_addr"`
	RedisPassword      string        `yaml:"redis_password"`
	RedisDB            int           `yaml:"redis_db"`
	LocationTTLSeconds int           `yaml:"location_ttl_seconds"`
	SessionTTLSeconds  int           `yaml:"session_ttl_seconds"`
	LocationTTL        time.Duration `yaml:"-"`
	SessionTTL         time.Duration `yaml:"-"`
}

// TrackingConfig bounds the ingestion surface.
type TrackingConfig struct {
	MaxBatchSize       int `yaml:"max_batch_size"`
	DefaultIntervalSec int `yaml:"default_interval_sec"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// WorkerPoolConfig sizes the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// LogConfig controls the rotating log file.
type LogConfig struct {
	File       string `yaml:"file"`
	Level      string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Load reads, defaults and validates the configuration at the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 60
	}

	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = "memory"
	}
	if cfg.Cache.LocationTTLSeconds <= 0 {
		cfg.Cache.LocationTTLSeconds = 300
	}
	if cfg.Cache.SessionTTLSeconds <= 0 {
		cfg.Cache.SessionTTLSeconds = 3600
	}
	cfg.Cache.LocationTTL = time.Duration(cfg.Cache.LocationTTLSeconds) * time.Second
	cfg.Cache.SessionTTL = time.Duration(cfg.Cache.SessionTTLSeconds) * time.Second

	if cfg.Tracking.MaxBatchSize <= 0 {
		cfg.Tracking.MaxBatchSize = 100
	}
	if cfg.Tracking.DefaultIntervalSec <= 0 {
		cfg.Tracking.DefaultIntervalSec = 15
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}
	if cfg.WorkerPool.Size <= 0 {
		cfg.WorkerPool.Size = 1
	}

	if cfg.Log.File == "" {
		cfg.Log.File = "./logs/trackd.log"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.MaxSizeMB <= 0 {
		cfg.Log.MaxSizeMB = 10
	}
	if cfg.Log.MaxBackups <= 0 {
		cfg.Log.MaxBackups = 7
	}
	if cfg.Log.MaxAgeDays <= 0 {
		cfg.Log.MaxAgeDays = 7
	}
}
