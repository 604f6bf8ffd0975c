package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures runtime configuration for the calendar service.
//
// Values come from an optional YAML file named by CALENDAR_CONFIG, with
// individual CALENDAR_* environment variables taking precedence.
type Config struct {
	HTTPPort       int
	SQLiteDSN      string
	Timezone       string
	PurgeCron      string
	PurgeRetention time.Duration
}

// fileConfig mirrors Config for YAML decoding. Durations are strings in the
// file ("72h") and parsed with time.ParseDuration.
type fileConfig struct {
	HTTPPort       *int    `yaml:"http_port"`
	SQLiteDSN      *string `yaml:"sqlite_dsn"`
	Timezone       *string `yaml:"timezone"`
	PurgeCron      *string `yaml:"purge_cron"`
	PurgeRetention *string `yaml:"purge_retention"`
}

func defaultConfig() Config {
	return Config{
		HTTPPort:       8080,
		SQLiteDSN:      "file:calendar.db?_foreign_keys=on",
		Timezone:       "UTC",
		PurgeCron:      "@daily",
		PurgeRetention: 30 * 24 * time.Hour,
	}
}

// Load resolves configuration from the YAML file (if any) and the process
// environment. Defaults cover every field, so an empty environment yields a
// working local configuration.
func Load() (Config, error) {
	cfg := defaultConfig()

	if path := strings.TrimSpace(os.Getenv("CALENDAR_CONFIG")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
		var file fileConfig
		if err := yaml.Unmarshal(raw, &file); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
		if err := file.apply(&cfg); err != nil {
			return Config{}, fmt.Errorf("config file %s: %w", path, err)
		}
	}

	invalid := make([]string, 0, 2)

	if portValue := strings.TrimSpace(os.Getenv("CALENDAR_HTTP_PORT")); portValue != "" {
		port, err := strconv.Atoi(portValue)
		if err != nil || port <= 0 {
			invalid = append(invalid, "CALENDAR_HTTP_PORT")
		} else {
			cfg.HTTPPort = port
		}
	}

	if dsn := strings.TrimSpace(os.Getenv("CALENDAR_SQLITE_DSN")); dsn != "" {
		cfg.SQLiteDSN = dsn
	}

	if zone := strings.TrimSpace(os.Getenv("CALENDAR_TIMEZONE")); zone != "" {
		cfg.Timezone = zone
	}

	if spec := strings.TrimSpace(os.Getenv("CALENDAR_PURGE_CRON")); spec != "" {
		cfg.PurgeCron = spec
	}

	if retentionValue := strings.TrimSpace(os.Getenv("CALENDAR_PURGE_RETENTION")); retentionValue != "" {
		retention, err := time.ParseDuration(retentionValue)
		if err != nil || retention < 0 {
			invalid = append(invalid, "CALENDAR_PURGE_RETENTION")
		} else {
			cfg.PurgeRetention = retention
		}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("invalid environment values: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

func (f fileConfig) apply(cfg *Config) error {
	if f.HTTPPort != nil {
		cfg.HTTPPort = *f.HTTPPort
	}
	if f.SQLiteDSN != nil {
		cfg.SQLiteDSN = *f.SQLiteDSN
	}
	if f.Timezone != nil {
		cfg.Timezone = *f.Timezone
	}
	if f.PurgeCron != nil {
		cfg.PurgeCron = *f.PurgeCron
	}
	if f.PurgeRetention != nil {
		retention, err := time.ParseDuration(strings.TrimSpace(*f.PurgeRetention))
		if err != nil {
			return fmt.Errorf("purge_retention: %w", err)
		}
		cfg.PurgeRetention = retention
	}
	return nil
}

func (c Config) validate() error {
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("http_port %d is out of range", c.HTTPPort)
	}
	if strings.TrimSpace(c.SQLiteDSN) == "" {
		return fmt.Errorf("sqlite_dsn must not be empty")
	}
	if strings.TrimSpace(c.PurgeCron) == "" {
		return fmt.Errorf("purge_cron must not be empty")
	}
	if c.PurgeRetention < 0 {
		return fmt.Errorf("purge_retention must not be negative")
	}
	return nil
}
