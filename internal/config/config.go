package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rewired-gh/strikewatch/internal/analyzer"
	"github.com/rewired-gh/strikewatch/internal/models"
)

// Config represents the complete application configuration
type Config struct {
	Feed     FeedConfig     `mapstructure:"feed"`
	Analyzer AnalyzerConfig `mapstructure:"analyzer"`
	Server   ServerConfig   `mapstructure:"server"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// FeedConfig holds the snapshot feed configuration
type FeedConfig struct {
	BaseURL             string        `mapstructure:"base_url"`
	Path                string        `mapstructure:"path"`
	Token               string        `mapstructure:"token"`
	PollInterval        time.Duration `mapstructure:"poll_interval"`
	Timeout             time.Duration `mapstructure:"timeout"`
	RatePerSec          float64       `mapstructure:"rate_per_sec"`
	MaxRetries          int           `mapstructure:"max_retries"`
	RetryDelayBase      time.Duration `mapstructure:"retry_delay_base"`
	MaxIdleConns        int           `mapstructure:"max_idle_conns"`
	MaxIdleConnsPerHost int           `mapstructure:"max_idle_conns_per_host"`
	IdleConnTimeout     time.Duration `mapstructure:"idle_conn_timeout"`
}

// AnalyzerConfig holds pairing, sorting and signal settings
type AnalyzerConfig struct {
	IncompleteStrikes string       `mapstructure:"incomplete_strikes"` // zero_leg | drop
	DefaultSort       string       `mapstructure:"default_sort"`
	Bell              bool         `mapstructure:"bell"`
	Signal            SignalConfig `mapstructure:"signal"`
}

// SignalConfig holds the thresholds of the buy-signal pattern
type SignalConfig struct {
	MaxDiffLtpVol float64 `mapstructure:"max_diff_ltp_vol"`
	MinDiffAvgVol float64 `mapstructure:"min_diff_avg_vol"`
	MinAvgRatio   float64 `mapstructure:"min_avg_ratio"`
	MaxAvgRatio   float64 `mapstructure:"max_avg_ratio"`
	MinDiffAvgOi  float64 `mapstructure:"min_diff_avg_oi"`
}

// ServerConfig holds the dashboard HTTP server configuration
type ServerConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// RedisConfig holds the latest-view cache and pub/sub configuration
type RedisConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	URL     string        `mapstructure:"url"`
	Key     string        `mapstructure:"key"`
	Channel string        `mapstructure:"channel"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// StorageConfig holds storage and persistence configuration
type StorageConfig struct {
	MaxCycles int    `mapstructure:"max_cycles"`
	DBPath    string `mapstructure:"db_path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
// An empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("STRIKEWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Feed defaults
	v.SetDefault("feed.base_url", "http://localhost:3000")
	v.SetDefault("feed.path", "/api/auth/get-fyers-data")
	v.SetDefault("feed.token", "")
	v.SetDefault("feed.poll_interval", "10s")
	v.SetDefault("feed.timeout", "8s")
	v.SetDefault("feed.rate_per_sec", 1.0)
	v.SetDefault("feed.max_retries", 3)
	v.SetDefault("feed.retry_delay_base", "1s")
	v.SetDefault("feed.max_idle_conns", 10)
	v.SetDefault("feed.max_idle_conns_per_host", 2)
	v.SetDefault("feed.idle_conn_timeout", "90s")

	// Analyzer defaults
	v.SetDefault("analyzer.incomplete_strikes", "zero_leg")
	v.SetDefault("analyzer.default_sort", "") // empty = unsorted, strike order
	v.SetDefault("analyzer.bell", true)
	def := analyzer.DefaultSignalRule()
	v.SetDefault("analyzer.signal.max_diff_ltp_vol", def.MaxDiffLtpVol)
	v.SetDefault("analyzer.signal.min_diff_avg_vol", def.MinDiffAvgVol)
	v.SetDefault("analyzer.signal.min_avg_ratio", def.MinAvgRatio)
	v.SetDefault("analyzer.signal.max_avg_ratio", def.MaxAvgRatio)
	v.SetDefault("analyzer.signal.min_diff_avg_oi", def.MinDiffAvgOi)

	// Server defaults
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.shutdown_timeout", "5s")
	v.SetDefault("server.cors_origins", []string{"*"})

	// Telegram defaults
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.key", "strikewatch:view")
	v.SetDefault("redis.channel", "strikewatch:views")
	v.SetDefault("redis.ttl", "0s")

	// Storage defaults
	v.SetDefault("storage.max_cycles", 5000)
	v.SetDefault("storage.db_path", "./data/strikewatch.db")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Feed config
	if c.Feed.BaseURL == "" {
		return fmt.Errorf("feed.base_url is required")
	}
	if c.Feed.PollInterval < 1*time.Second {
		return fmt.Errorf("feed.poll_interval must be at least 1 second")
	}
	if c.Feed.Timeout <= 0 {
		return fmt.Errorf("feed.timeout must be positive")
	}
	if c.Feed.Timeout >= c.Feed.PollInterval {
		return fmt.Errorf("feed.timeout must be shorter than feed.poll_interval")
	}
	if c.Feed.RatePerSec < 0 {
		return fmt.Errorf("feed.rate_per_sec must not be negative")
	}
	if c.Feed.MaxRetries < 1 {
		return fmt.Errorf("feed.max_retries must be at least 1")
	}

	// Validate Analyzer config
	if _, err := analyzer.ParsePolicy(c.Analyzer.IncompleteStrikes); err != nil {
		return fmt.Errorf("analyzer.incomplete_strikes: %w", err)
	}
	if c.Analyzer.DefaultSort != "" && !models.Field(c.Analyzer.DefaultSort).Valid() {
		return fmt.Errorf("analyzer.default_sort %q is not a known field", c.Analyzer.DefaultSort)
	}
	if c.Analyzer.Signal.MinAvgRatio > c.Analyzer.Signal.MaxAvgRatio {
		return fmt.Errorf("analyzer.signal.min_avg_ratio must not exceed max_avg_ratio")
	}

	// Validate Server config
	if c.Server.Enabled && c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required when server is enabled")
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	// Validate Redis config
	if c.Redis.Enabled {
		if c.Redis.URL == "" {
			return fmt.Errorf("redis.url is required when redis is enabled")
		}
		if c.Redis.Key == "" && c.Redis.Channel == "" {
			return fmt.Errorf("redis.key or redis.channel is required when redis is enabled")
		}
	}

	// Validate Storage config
	if c.Storage.MaxCycles < 1 {
		return fmt.Errorf("storage.max_cycles must be at least 1")
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// SignalRule converts the configured thresholds to an analyzer rule.
func (c *Config) SignalRule() analyzer.SignalRule {
	s := c.Analyzer.Signal
	return analyzer.SignalRule{
		MaxDiffLtpVol: s.MaxDiffLtpVol,
		MinDiffAvgVol: s.MinDiffAvgVol,
		MinAvgRatio:   s.MinAvgRatio,
		MaxAvgRatio:   s.MaxAvgRatio,
		MinDiffAvgOi:  s.MinDiffAvgOi,
	}
}

// Policy returns the parsed incomplete-strike policy. Call after Validate.
func (c *Config) Policy() analyzer.Policy {
	p, _ := analyzer.ParsePolicy(c.Analyzer.IncompleteStrikes)
	return p
}
