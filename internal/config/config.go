// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Pool     PoolConfig     `mapstructure:"pool"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Render   RenderConfig   `mapstructure:"render"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int `mapstructure:"port"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// CacheConfig selects the article store backend.
type CacheConfig struct {
	Backend  string `mapstructure:"backend"`
	RedisURL string `mapstructure:"redis_url"`
	TTLHours int    `mapstructure:"ttl_hours"`
}

// PipelineConfig governs stage retry and timeout behavior.
type PipelineConfig struct {
	RenderAttempts       int `mapstructure:"render_attempts"`
	RenderTimeoutSec     int `mapstructure:"render_timeout_seconds"`
	ExtractAttempts      int `mapstructure:"extract_attempts"`
	ExtractTimeoutSec    int `mapstructure:"extract_timeout_seconds"`
	BackoffInitialMs     int `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs         int `mapstructure:"backoff_max_ms"`
	OverallBudgetSeconds int `mapstructure:"overall_budget_seconds"`
	MinWordCount         int `mapstructure:"min_word_count"`
}

// PoolConfig sizes the pipeline worker pool.
type PoolConfig struct {
	Workers    int `mapstructure:"workers"`
	QueueDepth int `mapstructure:"queue_depth"`
}

// MonitorConfig controls the change-monitoring loop.
type MonitorConfig struct {
	IntervalSeconds  int `mapstructure:"interval_seconds"`
	SourceTTLSeconds int `mapstructure:"source_ttl_seconds"`
	MaxEvents        int `mapstructure:"max_events"`
}

// RenderConfig configures the probe fetch and headless promotion.
type RenderConfig struct {
	UserAgent          string  `mapstructure:"user_agent"`
	ProbeTimeoutSec    int     `mapstructure:"probe_timeout_seconds"`
	HeadlessEnabled    bool    `mapstructure:"headless_enabled"`
	HeadlessParallel   int     `mapstructure:"headless_parallel"`
	NavTimeoutSec      int     `mapstructure:"nav_timeout_seconds"`
	PerDomainRPS       float64 `mapstructure:"per_domain_rps"`
	PerDomainBurst     int     `mapstructure:"per_domain_burst"`
	PromotionThreshold int     `mapstructure:"promotion_threshold"`
}

// WebhookConfig controls change-event callback delivery.
type WebhookConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ASPL")
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
	v.SetDefault("server.timeout_seconds", 150)
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.ttl_hours", 24)
	v.SetDefault("pipeline.render_attempts", 2)
	v.SetDefault("pipeline.render_timeout_seconds", 30)
	v.SetDefault("pipeline.extract_attempts", 2)
	v.SetDefault("pipeline.extract_timeout_seconds", 20)
	v.SetDefault("pipeline.backoff_initial_ms", 250)
	v.SetDefault("pipeline.backoff_max_ms", 5000)
	v.SetDefault("pipeline.overall_budget_seconds", 120)
	v.SetDefault("pipeline.min_word_count", 25)
	v.SetDefault("pool.workers", 4)
	v.SetDefault("pool.queue_depth", 64)
	v.SetDefault("monitor.interval_seconds", 300)
	v.SetDefault("monitor.source_ttl_seconds", 300)
	v.SetDefault("monitor.max_events", 10000)
	v.SetDefault("render.user_agent", "aspl-bot/0.1")
	v.SetDefault("render.probe_timeout_seconds", 15)
	v.SetDefault("render.headless_enabled", false)
	v.SetDefault("render.headless_parallel", 1)
	v.SetDefault("render.nav_timeout_seconds", 25)
	v.SetDefault("render.per_domain_rps", 1)
	v.SetDefault("render.per_domain_burst", 2)
	v.SetDefault("render.promotion_threshold", 2048)
	v.SetDefault("webhook.timeout_seconds", 10)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	switch c.Cache.Backend {
	case "memory":
	case "redis":
		if c.Cache.RedisURL == "" {
			return fmt.Errorf("cache.redis_url must be set when backend is redis")
		}
	default:
		return fmt.Errorf("cache.backend must be memory or redis, got %q", c.Cache.Backend)
	}
	if c.Cache.TTLHours <= 0 {
		return fmt.Errorf("cache.ttl_hours must be > 0")
	}
	if c.Pool.Workers <= 0 {
		return fmt.Errorf("pool.workers must be > 0")
	}
	if c.Pool.QueueDepth <= 0 {
		return fmt.Errorf("pool.queue_depth must be > 0")
	}
	if c.Monitor.IntervalSeconds <= 0 {
		return fmt.Errorf("monitor.interval_seconds must be > 0")
	}
	if c.Render.HeadlessEnabled && c.Render.HeadlessParallel <= 0 {
		return fmt.Errorf("render.headless_parallel must be > 0 when headless is enabled")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// CacheTTL returns the configured article TTL.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLHours) * time.Hour
}

// OverallBudget returns the wall-clock limit for one pipeline run.
func (c Config) OverallBudget() time.Duration {
	return time.Duration(c.Pipeline.OverallBudgetSeconds) * time.Second
}
