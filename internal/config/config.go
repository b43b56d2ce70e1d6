// Package config loads process configuration.
//
// Precedence, lowest to highest: built-in defaults, an optional config
// file (mediascribe.yaml in the working directory or ~/.mediascribe),
// MEDIASCRIBE_* environment variables, then explicit overrides from
// flags. Job manifests are separate; they configure one run, not the
// process.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/scribeworks/mediascribe/pkg/retry"
	"github.com/scribeworks/mediascribe/pkg/status"
)

// EnvPrefix is the environment variable prefix (MEDIASCRIBE_LOG_LEVEL,
// MEDIASCRIBE_RETRY_MAX_RETRIES, ...).
const EnvPrefix = "MEDIASCRIBE"

// Config is the resolved process configuration.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Retry   RetryConfig   `mapstructure:"retry"`
	Status  StatusConfig  `mapstructure:"status"`
	Server  ServerConfig  `mapstructure:"server"`

	// RateLimit caps provider calls per second. Zero means unlimited.
	RateLimit float64 `mapstructure:"rate_limit"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	// Level is a zap level name.
	Level string `mapstructure:"level"`

	// Format is "console" or "json".
	Format string `mapstructure:"format"`
}

// RetryConfig configures the resilience layer defaults.
type RetryConfig struct {
	MaxRetries     int           `mapstructure:"max_retries"`
	InitialDelay   time.Duration `mapstructure:"initial_delay"`
	MaxDelay       time.Duration `mapstructure:"max_delay"`
	Multiplier     float64       `mapstructure:"multiplier"`
	JitterFraction float64       `mapstructure:"jitter_fraction"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout"`
}

// Policy converts the configured values into a retry policy.
func (r RetryConfig) Policy() retry.Policy {
	return retry.Policy{
		MaxRetries:     r.MaxRetries,
		InitialDelay:   r.InitialDelay,
		MaxDelay:       r.MaxDelay,
		Multiplier:     r.Multiplier,
		JitterFraction: r.JitterFraction,
		AttemptTimeout: r.AttemptTimeout,
	}
}

// StatusConfig configures the live status reporter.
type StatusConfig struct {
	// Interval is the status file poll interval.
	Interval time.Duration `mapstructure:"interval"`
}

// ServerConfig configures the read-only status server.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Load resolves configuration. cfgFile, when non-empty, names an
// explicit config file; otherwise the default search paths apply and a
// missing file is not an error.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	d := retry.DefaultPolicy()
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("retry.max_retries", d.MaxRetries)
	v.SetDefault("retry.initial_delay", d.InitialDelay)
	v.SetDefault("retry.max_delay", d.MaxDelay)
	v.SetDefault("retry.multiplier", d.Multiplier)
	v.SetDefault("retry.jitter_fraction", d.JitterFraction)
	v.SetDefault("retry.attempt_timeout", d.AttemptTimeout)
	v.SetDefault("status.interval", status.DefaultInterval)
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8080)
	v.SetDefault("rate_limit", 0.0)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("mediascribe")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.mediascribe")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// A missing file is fine only when using the default search paths.
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	decode := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, decode); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}
