// Package config loads bridgesync settings from an optional YAML file,
// applies BRIDGE_* environment overrides and validates the result.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

type Config struct {
	Bridge    BridgeConfig    `yaml:"bridge"`
	Storage   StorageConfig   `yaml:"storage"`
	Cache     CacheConfig     `yaml:"cache"`
	Schedules SchedulesConfig `yaml:"schedules"`
	Reports   ReportsConfig   `yaml:"reports"`
	Reminders RemindersConfig `yaml:"reminders"`
	Logging   LoggingConfig   `yaml:"logging"`
	Sentry    SentryConfig    `yaml:"sentry"`
}

type BridgeConfig struct {
	BaseURL      string        `yaml:"base_url" validate:"required,url"`
	AppID        string        `yaml:"app_id" validate:"required"`
	SessionToken string        `yaml:"session_token"`
	Timeout      time.Duration `yaml:"timeout" validate:"gte=0"`
	PageSize     int           `yaml:"page_size" validate:"gte=1,lte=100"`
}

type StorageConfig struct {
	Path string `yaml:"path" validate:"required"`
}

type CacheConfig struct {
	Backend  string        `yaml:"backend" validate:"oneof=sqlite redis"`
	TTL      time.Duration `yaml:"ttl" validate:"gt=0"`
	RedisURL string        `yaml:"redis_url" validate:"required_if=Backend redis"`
}

type SchedulesConfig struct {
	ChunkDays     int `yaml:"chunk_days" validate:"gte=1,lte=14"`
	LookbackDays  int `yaml:"lookback_days" validate:"gte=1"`
	LookaheadDays int `yaml:"lookahead_days" validate:"gte=1"`
	Concurrency   int `yaml:"concurrency" validate:"gte=1,lte=16"`
}

// ReportsConfig names the identifiers that are not timestamped.
type ReportsConfig struct {
	GroupByDay []string `yaml:"group_by_day" validate:"dive,required"`
	Singleton  []string `yaml:"singleton" validate:"dive,required"`
}

type RemindersConfig struct {
	Buffer int `yaml:"buffer" validate:"gte=1"`
}

type LoggingConfig struct {
	Level       string `yaml:"level" validate:"oneof=debug info warn error"`
	Development bool   `yaml:"development"`
}

type SentryConfig struct {
	DSN         string `yaml:"dsn" validate:"omitempty,url"`
	Environment string `yaml:"environment"`
}

func Default() Config {
	return Config{
		Bridge: BridgeConfig{
			BaseURL:  "https://webservices.sagebridge.org",
			Timeout:  30 * time.Second,
			PageSize: 50,
		},
		Storage: StorageConfig{Path: ".bridgesync.db"},
		Cache: CacheConfig{
			Backend: "sqlite",
			TTL:     24 * time.Hour,
		},
		Schedules: SchedulesConfig{
			ChunkDays:     14,
			LookbackDays:  14,
			LookaheadDays: 14,
			Concurrency:   4,
		},
		Reminders: RemindersConfig{Buffer: 64},
		Logging:   LoggingConfig{Level: "info"},
		Sentry:    SentryConfig{Environment: "production"},
	}
}

// Load reads path over the defaults, applies the environment and validates.
// An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	cfg = FromEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("config: %s failed %q", verrs[0].Namespace(), verrs[0].Tag())
		}
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
