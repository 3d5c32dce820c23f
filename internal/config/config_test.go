package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Cache.Backend != "memory" {
		t.Fatalf("expected memory backend, got %q", cfg.Cache.Backend)
	}
	if got := cfg.CacheTTL(); got != 24*time.Hour {
		t.Fatalf("expected 24h TTL, got %v", got)
	}
	if got := cfg.OverallBudget(); got != 2*time.Minute {
		t.Fatalf("expected 2m budget, got %v", got)
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
cache:
  backend: redis
  redis_url: redis://localhost:6379/0
  ttl_hours: 6
pipeline:
  render_attempts: 3
  overall_budget_seconds: 90
pool:
  workers: 8
  queue_depth: 256
monitor:
  interval_seconds: 60
render:
  headless_enabled: true
  headless_parallel: 2
  user_agent: custom-agent
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if cfg.Cache.Backend != "redis" || cfg.Cache.RedisURL == "" {
		t.Fatalf("expected redis cache overrides to apply: %+v", cfg.Cache)
	}
	if cfg.Pipeline.RenderAttempts != 3 {
		t.Fatalf("expected render_attempts 3, got %d", cfg.Pipeline.RenderAttempts)
	}
	if cfg.Pool.Workers != 8 || cfg.Pool.QueueDepth != 256 {
		t.Fatalf("expected pool overrides to apply: %+v", cfg.Pool)
	}
	if !cfg.Render.HeadlessEnabled || cfg.Render.UserAgent != "custom-agent" {
		t.Fatalf("expected render overrides to apply: %+v", cfg.Render)
	}
	if cfg.Logging.Development {
		t.Fatalf("expected development logging off")
	}
	if got := cfg.CacheTTL(); got != 6*time.Hour {
		t.Fatalf("expected 6h TTL, got %v", got)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:  ServerConfig{Port: 8080},
		Cache:   CacheConfig{Backend: "memory", TTLHours: 24},
		Pool:    PoolConfig{Workers: 4, QueueDepth: 64},
		Monitor: MonitorConfig{IntervalSeconds: 300},
	}

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "invalid port",
			cfg: func() Config {
				c := base
				c.Server.Port = 0
				return c
			}(),
			want: "server.port",
		},
		{
			name: "unknown cache backend",
			cfg: func() Config {
				c := base
				c.Cache.Backend = "dynamo"
				return c
			}(),
			want: "cache.backend",
		},
		{
			name: "redis without url",
			cfg: func() Config {
				c := base
				c.Cache.Backend = "redis"
				return c
			}(),
			want: "cache.redis_url",
		},
		{
			name: "invalid workers",
			cfg: func() Config {
				c := base
				c.Pool.Workers = 0
				return c
			}(),
			want: "pool.workers",
		},
		{
			name: "invalid queue depth",
			cfg: func() Config {
				c := base
				c.Pool.QueueDepth = 0
				return c
			}(),
			want: "pool.queue_depth",
		},
		{
			name: "headless missing parallel",
			cfg: func() Config {
				c := base
				c.Render.HeadlessEnabled = true
				return c
			}(),
			want: "render.headless_parallel",
		},
		{
			name: "auth missing api key",
			cfg: func() Config {
				c := base
				c.Auth.Enabled = true
				return c
			}(),
			want: "auth.api_key",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
