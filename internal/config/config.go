// Package config holds the filmbot configuration: the reusable core sections
// plus the database, session, event, metrics and catalog settings.
package config

import (
	"fmt"
	"strings"
	"time"

	coreconfig "github.com/m3rciful/filmbot/core/config"
	coredatabase "github.com/m3rciful/filmbot/core/database"
)

// Session backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

const defaultSessionTTL = 30 * time.Minute

// RedisConfig points at the Redis server that stores drafts.
type RedisConfig struct {
	Addr     string `yaml:"addr" envconfig:"REDIS_ADDR"`
	Password string `yaml:"password" envconfig:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" envconfig:"REDIS_DB"`
	Prefix   string `yaml:"prefix" envconfig:"REDIS_PREFIX"`
}

// SessionsConfig selects where in-progress drafts live. TTL drops drafts
// abandoned for that long.
type SessionsConfig struct {
	Backend string        `yaml:"backend" envconfig:"SESSIONS_BACKEND"`
	TTL     time.Duration `yaml:"ttl" envconfig:"SESSIONS_TTL"`
	Redis   RedisConfig   `yaml:"redis"`
}

// EventsConfig enables catalog change events on an AMQP queue when URL is set.
type EventsConfig struct {
	URL   string `yaml:"url" envconfig:"AMQP_URL"`
	Queue string `yaml:"queue" envconfig:"AMQP_QUEUE"`
}

// MetricsConfig enables the /metrics and /healthz listener when Listen is set.
type MetricsConfig struct {
	Listen string `yaml:"listen" envconfig:"METRICS_LISTEN"`
}

// CatalogConfig tunes catalog access.
type CatalogConfig struct {
	// RestrictWrites limits /add, /update and /delete to telegram.admin_id.
	RestrictWrites bool `yaml:"restrict_writes" envconfig:"CATALOG_RESTRICT_WRITES"`
}

// Config is the complete filmbot configuration.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Database coredatabase.Config `yaml:"database"`
	Sessions SessionsConfig      `yaml:"sessions"`
	Events   EventsConfig        `yaml:"events"`
	Metrics  MetricsConfig       `yaml:"metrics"`
	Catalog  CatalogConfig       `yaml:"catalog"`
}

// CoreConfig exposes the sections shared with the core packages.
func (c *Config) CoreConfig() *coreconfig.Config {
	if c == nil {
		return nil
	}
	return &c.Config
}

// Load reads path (optional) and the environment, then validates the result.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates every section and fills defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	if err := coreconfig.Normalize(&cfg.Config); err != nil {
		return err
	}
	if err := NormalizeStorage(cfg); err != nil {
		return err
	}

	s := &cfg.Sessions
	s.Backend = strings.ToLower(strings.TrimSpace(s.Backend))
	switch s.Backend {
	case "":
		s.Backend = BackendMemory
	case BackendMemory:
	case BackendRedis:
		if strings.TrimSpace(s.Redis.Addr) == "" {
			return fmt.Errorf("sessions.redis.addr is required when sessions.backend is 'redis'")
		}
		if s.Redis.DB < 0 {
			return fmt.Errorf("sessions.redis.db must be >= 0")
		}
	default:
		return fmt.Errorf("invalid sessions.backend %q; allowed: memory, redis", s.Backend)
	}
	switch {
	case s.TTL < 0:
		return fmt.Errorf("sessions.ttl must be >= 0")
	case s.TTL == 0:
		s.TTL = defaultSessionTTL
	}

	cfg.Events.URL = strings.TrimSpace(cfg.Events.URL)
	cfg.Metrics.Listen = strings.TrimSpace(cfg.Metrics.Listen)

	if cfg.Catalog.RestrictWrites && cfg.Telegram.AdminID == 0 {
		return fmt.Errorf("catalog.restrict_writes needs telegram.admin_id")
	}
	return nil
}

// NormalizeStorage validates only what schema commands need, so `migrate`
// works without a bot token.
func NormalizeStorage(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	if err := cfg.Database.Normalize(); err != nil {
		return err
	}
	return nil
}

// LoadStorage reads the configuration for schema commands.
func LoadStorage(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := NormalizeStorage(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
