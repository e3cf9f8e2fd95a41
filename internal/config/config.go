// Package config provides configuration types for the policy decision
// point.
//
// Configuration is process-wide, read once at startup (spec section 6):
// cache tuning, the durable policy/audit store connection, the shared
// cache connection, rate-limit window shape, and evaluation performance
// ceilings. It intentionally excludes anything belonging to an
// enforcement/transport layer:
//
//   - NO upstream/proxy targets (this is a decision point, not an enforcement point)
//   - NO TLS inspection or CA management
//   - NO file-based identity/API-key auth
//   - NO MCP/HTTP gateway routing
//
// Rate-limit *enforcement* and request auth are middleware layered in front
// of this service; only their configuration shape lives here.
package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration for the policy decision point.
type Config struct {
	// Server configures the decision API's HTTP/gRPC listeners.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Database configures the durable policy/audit store (C7/C8).
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`

	// Redis configures the Tier 2 shared evaluation cache (C6).
	Redis RedisConfig `yaml:"redis" mapstructure:"redis"`

	// Cache tunes the two-tier evaluation cache (C6).
	Cache CacheConfig `yaml:"cache" mapstructure:"cache"`

	// RateLimit carries the window/threshold shape consumed by middleware
	// in front of the decision API. The PDP itself never enforces it.
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`

	// Performance bounds evaluation cost (spec 4.4/4.9).
	Performance PerformanceConfig `yaml:"performance" mapstructure:"performance"`

	// Audit configures where evaluation records (C8) are written.
	Audit AuditConfig `yaml:"audit" mapstructure:"audit"`

	// LogLevel sets the minimum structured-log level.
	// Valid values: "debug", "info", "warn", "error". Defaults to "info".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`

	// DevMode enables permissive defaults suitable for local development.
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ServerConfig configures the decision API's listeners.
type ServerConfig struct {
	// Host is the address to bind to. Defaults to "127.0.0.1" (localhost
	// only); set "0.0.0.0" to accept non-local connections.
	Host string `yaml:"host" mapstructure:"host"`

	// Port is the HTTP port the serve command listens on for /livez,
	// /readyz and /metrics. Defaults to 8080.
	Port int `yaml:"port" mapstructure:"port" validate:"omitempty,min=1,max=65535"`

	// GRPCPort is a gRPC port setting. Defaults to 9090. No listener in
	// this build binds it.
	GRPCPort int `yaml:"grpc_port" mapstructure:"grpc_port" validate:"omitempty,min=1,max=65535"`

	// ShutdownGrace bounds how long in-flight requests are drained for on
	// SIGTERM/SIGINT before stores and caches are closed.
	ShutdownGrace time.Duration `yaml:"shutdown_grace" mapstructure:"shutdown_grace"`
}

// DatabaseConfig is the durable policy/audit store connection.
type DatabaseConfig struct {
	// URL is a database/sql-style DSN. Required.
	URL string `yaml:"url" mapstructure:"url" validate:"required"`

	// PoolMin/PoolMax bound the connection pool size.
	PoolMin int `yaml:"pool_min" mapstructure:"pool_min" validate:"omitempty,min=0"`
	PoolMax int `yaml:"pool_max" mapstructure:"pool_max" validate:"omitempty,gtefield=PoolMin"`

	// SSL requires a TLS connection to the database.
	SSL bool `yaml:"ssl" mapstructure:"ssl"`
}

// RedisConfig is the Tier 2 shared cache connection.
type RedisConfig struct {
	// URL is a redis:// connection string. Empty disables Tier 2 (local-only caching).
	URL string `yaml:"url" mapstructure:"url"`

	DB        int    `yaml:"db" mapstructure:"db" validate:"omitempty,min=0"`
	KeyPrefix string `yaml:"key_prefix" mapstructure:"key_prefix"`
	Password  string `yaml:"password" mapstructure:"password"`
}

// CacheConfig tunes the two-tier evaluation cache.
type CacheConfig struct {
	// Enabled turns the evaluation cache on or off. Defaults to true.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// TTL is the default entry lifetime in seconds. Defaults to 300.
	TTL int `yaml:"ttl" mapstructure:"ttl" validate:"omitempty,min=1"`

	// MaxSize bounds the local (Tier 1) LRU. Defaults to 10000.
	MaxSize int `yaml:"max_size" mapstructure:"max_size" validate:"omitempty,min=1"`
}

// RateLimitConfig is the rate-limit window shape. Enforcement lives in
// middleware in front of the decision API, not in this module.
type RateLimitConfig struct {
	WindowMs    int `yaml:"window_ms" mapstructure:"window_ms" validate:"omitempty,min=1"`
	MaxRequests int `yaml:"max_requests" mapstructure:"max_requests" validate:"omitempty,min=1"`
}

// PerformanceConfig bounds evaluation cost.
type PerformanceConfig struct {
	// MaxEvaluationTimeMs is a soft ceiling evaluations are expected to
	// finish under; exceeding it is logged, not rejected. Defaults to 100.
	MaxEvaluationTimeMs int `yaml:"max_evaluation_time_ms" mapstructure:"max_evaluation_time_ms" validate:"omitempty,min=1"`

	// MaxPolicySizeMB bounds the size of a single parsed policy document.
	// Defaults to 10.
	MaxPolicySizeMB int `yaml:"max_policy_size_mb" mapstructure:"max_policy_size_mb" validate:"omitempty,min=1"`
}

// AuditConfig configures evaluation-record output.
type AuditConfig struct {
	// Output is "stdout" or "file:///absolute/path/to/audit.log". Defaults
	// to "stdout". It is defaulted and validated only: no component writes
	// evaluation records to it; records go to the durable sqlite store.
	Output string `yaml:"output" mapstructure:"output" validate:"omitempty,audit_output"`

	// RetentionDays bounds how long records are kept before DeleteOlderThan
	// purges them. Defaults to 90.
	RetentionDays int `yaml:"retention_days" mapstructure:"retention_days" validate:"omitempty,min=1"`

	// FlushInterval is how often the serve command purges records older
	// than RetentionDays. Defaults to 5s.
	FlushInterval time.Duration `yaml:"flush_interval" mapstructure:"flush_interval"`
}

// SetDefaults applies sensible default values to unset fields. viper.IsSet
// distinguishes "not set" from "explicitly false" for cache.enabled, the
// one boolean that defaults to true.
func (c *Config) SetDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.GRPCPort == 0 {
		c.Server.GRPCPort = 9090
	}
	if c.Server.ShutdownGrace == 0 {
		c.Server.ShutdownGrace = 10 * time.Second
	}

	if !viper.IsSet("cache.enabled") {
		c.Cache.Enabled = true
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = 300
	}
	if c.Cache.MaxSize == 0 {
		c.Cache.MaxSize = 10000
	}

	if c.RateLimit.WindowMs == 0 {
		c.RateLimit.WindowMs = 60000
	}
	if c.RateLimit.MaxRequests == 0 {
		c.RateLimit.MaxRequests = 100
	}

	if c.Performance.MaxEvaluationTimeMs == 0 {
		c.Performance.MaxEvaluationTimeMs = 100
	}
	if c.Performance.MaxPolicySizeMB == 0 {
		c.Performance.MaxPolicySizeMB = 10
	}

	if c.Audit.Output == "" {
		c.Audit.Output = "stdout"
	}
	if c.Audit.RetentionDays == 0 {
		c.Audit.RetentionDays = 90
	}
	if c.Audit.FlushInterval == 0 {
		c.Audit.FlushInterval = 5 * time.Second
	}

	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = "policy-engine:"
	}

	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// SetDevDefaults applies permissive defaults for local development, run
// before validation so `--dev` needs no config file at all.
func (c *Config) SetDevDefaults() {
	if !c.DevMode {
		return
	}
	if c.Database.URL == "" {
		c.Database.URL = "file:policy-engine.db?mode=memory&cache=shared"
	}
	if c.Audit.Output == "" {
		c.Audit.Output = "stdout"
	}
	c.Cache.Enabled = true
}
