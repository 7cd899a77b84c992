package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Environment string `toml:"environment"`
	Host        string `toml:"host"`
	Port        int    `toml:"port"`

	// logging
	LogLevel      string `toml:"log_level"`
	LogsPath      string `toml:"logs_path"`
	LogToStdout   bool   `toml:"log_to_stdout"`
	SentryEnabled bool   `toml:"sentry_enabled"`

	// postgres - the entity store
	PostgresHost   string `toml:"postgres_host"`
	PostgresPort   string `toml:"postgres_port"`
	PostgresDBName string `toml:"postgres_db_name"`

	// redis - sessions, broadcast fan-out, rate limiting
	RedisHost string `toml:"redis_host"`
	RedisPort string `toml:"redis_port"`

	// prometheus metrics server
	PrometheusMetricsHost string `toml:"prom_metrics_host"`
	PrometheusMetricsPort string `toml:"prom_metrics_port"`

	// live tracking
	PositionUpdatesAllowedPerMin int `toml:"position_updates_allowed_per_min"`
	FreshnessWindowMinutes       int `toml:"freshness_window_minutes"`
	LatestPositionsCacheSeconds  int `toml:"latest_positions_cache_seconds"`

	// retention sweep for ready marks and position samples
	RetentionSweepIntervalMinutes int `toml:"retention_sweep_interval_minutes"`
	RetentionMaxAgeHours          int `toml:"retention_max_age_hours"`
}

func (c *Config) FreshnessWindow() time.Duration {
	if c.FreshnessWindowMinutes <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.FreshnessWindowMinutes) * time.Minute
}

func (c *Config) RetentionSweepInterval() time.Duration {
	if c.RetentionSweepIntervalMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.RetentionSweepIntervalMinutes) * time.Minute
}

func (c *Config) RetentionMaxAge() time.Duration {
	if c.RetentionMaxAgeHours <= 0 {
		return 48 * time.Hour
	}
	return time.Duration(c.RetentionMaxAgeHours) * time.Hour
}

type Toml struct {
	Development *Config
	Production  *Config
}

func (t *Toml) Get(env string) (*Config, error) {
	switch strings.ToLower(env) {
	case "dev", "development":
		return t.Development, nil
	case "prod", "production":
		return t.Production, nil
	default:
		return nil, fmt.Errorf("unknown env: %s", env)
	}
}

func Load(env, path string) (*Config, error) {
	var cfgToml Toml
	if _, err := toml.DecodeFile(path, &cfgToml); err != nil {
		return nil, fmt.Errorf("decode config file: %w", err)
	}

	cfg, err := cfgToml.Get(env)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, fmt.Errorf("config section for env [%s] is empty", env)
	}

	cfg.Environment = env
	return cfg, nil
}
