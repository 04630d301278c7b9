// Package config loads the watcher configuration from a YAML file, SCREENLOCK_*
// environment variables and defaults.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MatthiasKunnen/screenlock/pkg/lock"
	"github.com/MatthiasKunnen/screenlock/pkg/watcher"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. SCREENLOCK_RETRY_MAX_ATTEMPTS for
// retry.max_attempts.
const EnvPrefix = "SCREENLOCK"

// Config represents the complete watcher configuration
type Config struct {
	// Interval is the poll cadence of polling backends and the throttle of
	// notification backends. It is shared by all backends.
	Interval time.Duration `mapstructure:"interval"`
	// Session is the logind session ID to watch on Linux.
	// Empty means XDG_SESSION_ID or the caller's own session.
	Session string `mapstructure:"session"`
	// Listen is the address of the websocket event endpoint; empty disables it.
	Listen  string        `mapstructure:"listen"`
	Retry   RetryConfig   `mapstructure:"retry"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// RetryConfig controls reopening the backend after it is exhausted
type RetryConfig struct {
	// MaxAttempts is the number of reopen attempts. 0 stops at the first exhaustion.
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
}

// LoggingConfig controls log output
type LoggingConfig struct {
	// Level is one of "debug", "info", "warn", "error"
	Level string `mapstructure:"level"`
	// Format is "text" or "json"
	Format string `mapstructure:"format"`
}

// Default returns a Config with default values
func Default() *Config {
	return &Config{
		Interval: lock.DefaultInterval,
		Retry: RetryConfig{
			MaxAttempts:     0,
			InitialInterval: time.Second,
			MaxInterval:     30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// SetDefaults registers default values with v
func SetDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("interval", defaults.Interval)
	v.SetDefault("session", defaults.Session)
	v.SetDefault("listen", defaults.Listen)

	v.SetDefault("retry.max_attempts", defaults.Retry.MaxAttempts)
	v.SetDefault("retry.initial_interval", defaults.Retry.InitialInterval)
	v.SetDefault("retry.max_interval", defaults.Retry.MaxInterval)

	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.format", defaults.Logging.Format)
}

// NewViper returns a viper instance with defaults and environment overrides set up
// that reads configFile, or config.yaml from the usual locations when configFile is
// empty. A missing default config file is not an error.
func NewViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(ConfigDir())
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	// Replace dots with underscores for nested keys in env vars
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	return v, nil
}

// Load reads the configuration from v into a Config struct and validates it
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "screenlock")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".screenlock"
	}
	return filepath.Join(home, ".config", "screenlock")
}

// LockOptions returns the backend options described by c.
func (c *Config) LockOptions(logger *slog.Logger) lock.Options {
	return lock.Options{
		Interval:  c.Interval,
		SessionID: c.Session,
		Logger:    logger,
	}
}

// WatcherOptions returns the watcher options described by c.
func (c *Config) WatcherOptions(logger *slog.Logger) watcher.Options {
	return watcher.Options{
		Logger: logger,
		Retry: watcher.RetryPolicy{
			MaxAttempts:     c.Retry.MaxAttempts,
			InitialInterval: c.Retry.InitialInterval,
			MaxInterval:     c.Retry.MaxInterval,
		},
	}
}

// NewLogger creates a logger writing to w in the configured format and level.
func (c LoggingConfig) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(c.Level),
	}

	if strings.EqualFold(c.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// parseLevel converts a string log level to slog.Level.
// Defaults to INFO if the level string is not recognized.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
