// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	Cleaner   CleanerConfig   `mapstructure:"cleaner"`
	Feedback  FeedbackConfig  `mapstructure:"feedback"`
	Cache     CacheConfig     `mapstructure:"cache"`
	DB        DBConfig        `mapstructure:"db"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Directory DirectoryConfig `mapstructure:"directory"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// CrawlerConfig governs the sweep loop.
type CrawlerConfig struct {
	ChunkSize             int `mapstructure:"chunk_size"`
	ChunkIntervalMs       int `mapstructure:"chunk_interval_ms"`
	AcceleratedIntervalMs int `mapstructure:"accelerated_interval_ms"`
	LeaseTTLSeconds       int `mapstructure:"lease_ttl_seconds"`
	ListenerTimeoutMs     int `mapstructure:"listener_timeout_ms"`
}

// CleanerConfig governs account expiry policy.
type CleanerConfig struct {
	RetentionDays      int `mapstructure:"retention_days"`
	MaxUpdatesPerChunk int `mapstructure:"max_updates_per_chunk"`
}

// FeedbackConfig governs push uninstall feedback handling.
type FeedbackConfig struct {
	IntervalDays int `mapstructure:"interval_days"`
}

// CacheConfig points at the shared Redis cache cluster.
type CacheConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// DBConfig controls access to the accounts database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// PubSubConfig holds metadata for the directory queue topic.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// DirectoryConfig toggles directory reconciliation.
type DirectoryConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("crawler.chunk_size", 1000)
	v.SetDefault("crawler.chunk_interval_ms", 8000)
	v.SetDefault("crawler.accelerated_interval_ms", 10)
	v.SetDefault("crawler.lease_ttl_seconds", 60)
	v.SetDefault("crawler.listener_timeout_ms", 16000)
	v.SetDefault("cleaner.retention_days", 366)
	v.SetDefault("cleaner.max_updates_per_chunk", 40)
	v.SetDefault("feedback.interval_days", 2)
	v.SetDefault("cache.db", 0)
	v.SetDefault("directory.enabled", true)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.ChunkSize <= 0 {
		return fmt.Errorf("crawler.chunk_size must be > 0")
	}
	if c.Crawler.ChunkIntervalMs <= 0 {
		return fmt.Errorf("crawler.chunk_interval_ms must be > 0")
	}
	if c.Crawler.AcceleratedIntervalMs < 0 {
		return fmt.Errorf("crawler.accelerated_interval_ms must be >= 0")
	}
	if c.Crawler.LeaseTTLSeconds <= 0 {
		return fmt.Errorf("crawler.lease_ttl_seconds must be > 0")
	}
	if c.Crawler.ListenerTimeoutMs <= 0 {
		return fmt.Errorf("crawler.listener_timeout_ms must be > 0")
	}
	if c.Cleaner.RetentionDays <= 0 {
		return fmt.Errorf("cleaner.retention_days must be > 0")
	}
	if c.Cleaner.MaxUpdatesPerChunk < 0 {
		return fmt.Errorf("cleaner.max_updates_per_chunk must be >= 0")
	}
	if c.Feedback.IntervalDays <= 0 {
		return fmt.Errorf("feedback.interval_days must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// ChunkInterval returns the idle delay between chunks.
func (c Config) ChunkInterval() time.Duration {
	return time.Duration(c.Crawler.ChunkIntervalMs) * time.Millisecond
}

// AcceleratedInterval returns the delay used while acceleration is enabled.
func (c Config) AcceleratedInterval() time.Duration {
	return time.Duration(c.Crawler.AcceleratedIntervalMs) * time.Millisecond
}

// LeaseTTL returns the crawl lease time-to-live.
func (c Config) LeaseTTL() time.Duration {
	return time.Duration(c.Crawler.LeaseTTLSeconds) * time.Second
}

// ListenerTimeout returns the soft deadline applied to each listener call.
func (c Config) ListenerTimeout() time.Duration {
	return time.Duration(c.Crawler.ListenerTimeoutMs) * time.Millisecond
}

// Retention returns the account expiry threshold.
func (c Config) Retention() time.Duration {
	return time.Duration(c.Cleaner.RetentionDays) * 24 * time.Hour
}

// FeedbackInterval returns the age uninstall feedback must reach before
// the device is disabled.
func (c Config) FeedbackInterval() time.Duration {
	return time.Duration(c.Feedback.IntervalDays) * 24 * time.Hour
}
