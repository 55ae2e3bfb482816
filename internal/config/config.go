// Package config loads gopool program settings from flags, environment
// variables and an optional YAML file.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	gferrors "github.com/vnykmshr/gopool/pkg/common/errors"
	"github.com/vnykmshr/gopool/pkg/common/validation"
)

// EnvPrefix is prepended to every environment variable, e.g. GOPOOL_WORKERS.
const EnvPrefix = "GOPOOL"

// Keys shared by flags, environment variables and config files.
const (
	KeyWorkers      = "workers"
	KeyTasks        = "tasks"
	KeyTaskDuration = "task-duration"
	KeyPermits      = "permits"
	KeyLogLevel     = "log-level"
	KeyLogFormat    = "log-format"
	KeyMetricsAddr  = "metrics-addr"
	KeyRedisAddr    = "redis-addr"
	KeyRedisKey     = "redis-key"
	KeySchedule     = "schedule"
	KeyRunFor       = "run-for"
)

// Config represents the program configuration.
type Config struct {
	Workers      int           `mapstructure:"workers"`
	Tasks        int           `mapstructure:"tasks"`
	TaskDuration time.Duration `mapstructure:"task-duration"`

	// Permits bounds how many tasks hold the shared resource at once.
	// Zero disables the semaphore.
	Permits int `mapstructure:"permits"`

	LogLevel  string `mapstructure:"log-level"`
	LogFormat string `mapstructure:"log-format"`

	// MetricsAddr serves /metrics when non-empty.
	MetricsAddr string `mapstructure:"metrics-addr"`

	// RedisAddr switches the semaphore to a Redis-backed one shared by every
	// process using RedisKey.
	RedisAddr string `mapstructure:"redis-addr"`
	RedisKey  string `mapstructure:"redis-key"`

	// Schedule is the cron expression used by the schedule command.
	Schedule string `mapstructure:"schedule"`

	// RunFor stops the schedule command after this long. Zero runs until interrupted.
	RunFor time.Duration `mapstructure:"run-for"`
}

// New creates a configuration with default values.
func New() *Config {
	return &Config{
		Workers:      4,
		Tasks:        10,
		TaskDuration: time.Second,
		Permits:      0,
		LogLevel:     "info",
		LogFormat:    "text",
		RedisKey:     "gopool:permits",
		Schedule:     "@every 5s",
	}
}

// SetDefaults registers the values of New with v so that keys without a
// bound flag still resolve from the environment.
func SetDefaults(v *viper.Viper) {
	d := New()
	v.SetDefault(KeyWorkers, d.Workers)
	v.SetDefault(KeyTasks, d.Tasks)
	v.SetDefault(KeyTaskDuration, d.TaskDuration)
	v.SetDefault(KeyPermits, d.Permits)
	v.SetDefault(KeyLogLevel, d.LogLevel)
	v.SetDefault(KeyLogFormat, d.LogFormat)
	v.SetDefault(KeyMetricsAddr, d.MetricsAddr)
	v.SetDefault(KeyRedisAddr, d.RedisAddr)
	v.SetDefault(KeyRedisKey, d.RedisKey)
	v.SetDefault(KeySchedule, d.Schedule)
	v.SetDefault(KeyRunFor, d.RunFor)
}

// Load resolves the configuration from v. Precedence, highest first: flags
// set on the command line, GOPOOL_* environment variables, the config file,
// defaults.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every field and returns the first problem found.
func (c *Config) Validate() error {
	if err := validation.ValidatePositive("config", KeyWorkers, c.Workers); err != nil {
		return err
	}
	if err := validation.ValidateNonNegativeInt("config", KeyTasks, c.Tasks); err != nil {
		return err
	}
	if err := validation.ValidateNonNegativeInt("config", KeyPermits, c.Permits); err != nil {
		return err
	}
	if c.TaskDuration < 0 {
		return gferrors.NewValidationError("config", KeyTaskDuration, c.TaskDuration, "cannot be negative")
	}
	if c.RunFor < 0 {
		return gferrors.NewValidationError("config", KeyRunFor, c.RunFor, "cannot be negative")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return gferrors.NewValidationError("config", KeyLogFormat, c.LogFormat, "unknown format").
			WithHint("use text or json")
	}
	if c.RedisAddr != "" {
		if err := validation.ValidateNotEmpty("config", KeyRedisKey, c.RedisKey); err != nil {
			return err
		}
	}
	return nil
}

// ParseLevel converts a level name such as "debug" or "WARN" to a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return 0, gferrors.NewValidationError("config", KeyLogLevel, name, "unknown level").
			WithHint("use debug, info, warn or error")
	}
	return level, nil
}
