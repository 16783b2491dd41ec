// Package config provides configuration management for the flag scanner.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"flag-scanner/internal/analysis/patterns"
	apperrors "flag-scanner/internal/errors"
	"flag-scanner/internal/logging"
)

// Config holds all application configuration.
type Config struct {
	Scanner     ScannerConfig `mapstructure:"scanner"`
	Store       StoreConfig   `mapstructure:"store"`
	Watch       WatchConfig   `mapstructure:"watch"`
	Redis       RedisConfig   `mapstructure:"redis"`
	API         APIConfig     `mapstructure:"api"`
	Log         LogConfig     `mapstructure:"log"`
	UI          UIConfig      `mapstructure:"ui"`
	Credentials Credentials   `mapstructure:"-" json:"-"` // Loaded separately

	dir string
}

// ScannerConfig holds the pattern search limits.
type ScannerConfig struct {
	Window        int     `mapstructure:"window"`
	MinBars       int     `mapstructure:"min_bars"`
	MaxT3Span     int     `mapstructure:"max_t3_span"`
	MaxT4Span     int     `mapstructure:"max_t4_span"`
	PoleLookback  int     `mapstructure:"pole_lookback"`
	FreshnessBars int     `mapstructure:"freshness_bars"`
	DedupDistance int     `mapstructure:"dedup_distance"`
	ChannelBuffer float64 `mapstructure:"channel_buffer"`
	Workers       int     `mapstructure:"workers"`
	Lookback      int     `mapstructure:"lookback"` // stored bars loaded per series

	// Per-timeframe overrides keyed by timeframe label.
	Tolerance      map[string]float64 `mapstructure:"tolerance"`
	MinPolePercent map[string]float64 `mapstructure:"min_pole_percent"`
}

// StoreConfig holds the database location.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// WatchConfig holds the scheduled scan configuration.
type WatchConfig struct {
	Schedule   string   `mapstructure:"schedule"` // cron spec or descriptor
	Watchlist  string   `mapstructure:"watchlist"`
	Timeframes []string `mapstructure:"timeframes"`
	MinQuality int      `mapstructure:"min_quality"`
}

// RedisConfig holds the Redis signal channel configuration.
type RedisConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Addr    string        `mapstructure:"addr"`
	DB      int           `mapstructure:"db"`
	Channel string        `mapstructure:"channel"`
	Prefix  string        `mapstructure:"prefix"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// APIConfig holds the HTTP server configuration.
type APIConfig struct {
	Listen string `mapstructure:"listen"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level    string `mapstructure:"level"`
	File     bool   `mapstructure:"file"`
	FilePath string `mapstructure:"file_path"`
}

// UIConfig holds terminal output configuration.
type UIConfig struct {
	ColorEnabled bool `mapstructure:"color_enabled"`
	Bell         bool `mapstructure:"bell"`
}

// Credentials holds secrets kept out of config.toml.
type Credentials struct {
	Redis RedisCredentials `mapstructure:"redis"`
}

// RedisCredentials holds the Redis password.
type RedisCredentials struct {
	Password string `mapstructure:"password"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/flag-scanner"
	}
	return filepath.Join(home, ".config", "flag-scanner")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
// Missing files are created from templates and then loaded.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	// Variables already set in the environment win over .env entries.
	if err := godotenv.Load(filepath.Join(configDir, ".env")); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := &Config{dir: configDir}

	if err := loadConfigFile(configDir, cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	if err := loadCredentials(configDir, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	applyEnvOverrides(cfg)

	if cfg.Store.Path == "" {
		cfg.Store.Path = filepath.Join(configDir, "flagscan.db")
	}
	if cfg.Log.FilePath == "" {
		cfg.Log.FilePath = filepath.Join(configDir, "logs", "flagscan.log")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := patterns.DefaultConfig()
	v.SetDefault("scanner.window", d.Window)
	v.SetDefault("scanner.min_bars", d.MinBars)
	v.SetDefault("scanner.max_t3_span", d.MaxT3Span)
	v.SetDefault("scanner.max_t4_span", d.MaxT4Span)
	v.SetDefault("scanner.pole_lookback", d.PoleLookback)
	v.SetDefault("scanner.freshness_bars", d.FreshnessBars)
	v.SetDefault("scanner.dedup_distance", d.DedupDistance)
	v.SetDefault("scanner.channel_buffer", d.ChannelBuffer)
	v.SetDefault("scanner.workers", 4)
	v.SetDefault("scanner.lookback", 500)

	v.SetDefault("watch.schedule", "@every 15m")
	v.SetDefault("watch.watchlist", "default")
	v.SetDefault("watch.timeframes", []string{"1h"})
	v.SetDefault("watch.min_quality", 0)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.channel", "flagscan:signals")
	v.SetDefault("redis.prefix", "flagscan:")
	v.SetDefault("redis.ttl", "24h")

	v.SetDefault("api.listen", "127.0.0.1:8080")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", true)

	v.SetDefault("ui.color_enabled", true)
}

func loadConfigFile(configDir string, cfg *Config) error {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
		if err := createTemplate(configDir, "config.toml", configTemplate, 0644); err != nil {
			return err
		}
	}

	return v.Unmarshal(cfg)
}

func loadCredentials(configDir string, creds *Credentials) error {
	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Use restricted permissions for credentials file
			return createTemplate(configDir, "credentials.toml", credentialsTemplate, 0600)
		}
		return err
	}

	return v.Unmarshal(creds)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FLAGSCAN_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("FLAGSCAN_REDIS_PASSWORD"); v != "" {
		cfg.Credentials.Redis.Password = v
	}
	if v := os.Getenv("FLAGSCAN_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("FLAGSCAN_LOG_LEVEL"); v != "" {
		cfg.Log.Level = strings.ToLower(v)
	}
	if v := os.Getenv("FLAGSCAN_API_LISTEN"); v != "" {
		cfg.API.Listen = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	s := c.Scanner
	if s.Window <= 0 {
		return invalid("scanner.window must be positive")
	}
	if s.MaxT3Span <= 0 || s.MaxT4Span <= 0 || s.PoleLookback <= 0 {
		return invalid("scanner spans (max_t3_span, max_t4_span, pole_lookback) must be positive")
	}
	if s.FreshnessBars < 0 || s.DedupDistance < 0 || s.Workers < 0 || s.Lookback < 0 {
		return invalid("scanner counts must not be negative")
	}
	if s.ChannelBuffer < 0 {
		return invalid("scanner.channel_buffer must not be negative")
	}
	for tf, tol := range s.Tolerance {
		if tol < 0 {
			return invalid(fmt.Sprintf("scanner.tolerance.%s must not be negative", tf))
		}
	}
	for tf, pct := range s.MinPolePercent {
		if pct < 0 {
			return invalid(fmt.Sprintf("scanner.min_pole_percent.%s must not be negative", tf))
		}
	}

	if c.Watch.Schedule != "" {
		if _, err := cron.ParseStandard(c.Watch.Schedule); err != nil {
			return invalid(fmt.Sprintf("watch.schedule %q: %v", c.Watch.Schedule, err))
		}
	}
	if c.Watch.MinQuality < 0 || c.Watch.MinQuality > 100 {
		return invalid("watch.min_quality must be between 0 and 100")
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return invalid("redis.addr is required when redis is enabled")
	}
	if c.Redis.TTL < 0 {
		return invalid("redis.ttl must not be negative")
	}

	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return invalid(fmt.Sprintf("invalid log level: %s (must be debug, info, warn or error)", c.Log.Level))
	}

	return nil
}

func invalid(msg string) error {
	return apperrors.Wrap(apperrors.ErrConfigInvalid, msg)
}

// Dir returns the directory the configuration was loaded from.
func (c *Config) Dir() string {
	return c.dir
}

// ScannerConfig converts the scanner section to search limits.
func (c *Config) ScannerConfig() patterns.Config {
	s := c.Scanner
	return patterns.Config{
		Window:         s.Window,
		MinBars:        s.MinBars,
		MaxT3Span:      s.MaxT3Span,
		MaxT4Span:      s.MaxT4Span,
		PoleLookback:   s.PoleLookback,
		FreshnessBars:  s.FreshnessBars,
		DedupDistance:  s.DedupDistance,
		ChannelBuffer:  s.ChannelBuffer,
		Tolerance:      s.Tolerance,
		MinPolePercent: s.MinPolePercent,
	}
}

// LogConfig converts the log section to logger settings.
func (c *Config) LogConfig() logging.LogConfig {
	lc := logging.DefaultLogConfig()
	if c.Log.Level != "" {
		lc.Level = c.Log.Level
	}
	lc.File = c.Log.File
	if c.Log.FilePath != "" {
		lc.FilePath = c.Log.FilePath
	}
	return lc
}
