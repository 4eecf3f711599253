// Package config defines the gateway configuration model and its YAML
// loader, validator and file watcher.
package config

import (
	"time"

	"github.com/vyrodovalexey/edgegate/internal/observability"
)

// Defaults applied by Validate when a field is unset.
const (
	DefaultListenAddr      = ":8080"
	DefaultAdminListenAddr = ":9090"
	DefaultShutdownGrace   = 15 * time.Second
	DefaultServiceTimeout  = 30 * time.Second
	DefaultHealthInterval  = 10 * time.Second
	DefaultHealthTimeout   = 2 * time.Second
	DefaultUnhealthyAfter  = 3
	DefaultJWTAlgorithm    = "HS256"
)

// Rate limit algorithm names accepted in tier configuration.
const (
	AlgorithmSlidingWindow = "sliding_window"
	AlgorithmTokenBucket   = "token_bucket"
)

// Config is the root gateway configuration.
type Config struct {
	Listen        string                `yaml:"listen"`
	AdminListen   string                `yaml:"admin_listen"`
	ShutdownGrace Duration              `yaml:"shutdown_grace"`
	Logging       LoggingConfig         `yaml:"logging"`
	Tracing       TracingConfig         `yaml:"tracing"`
	JWT           JWTConfig             `yaml:"jwt"`
	Services      []ServiceConfig       `yaml:"services"`
	Routes        []RouteConfig         `yaml:"routes"`
	RateLimit     RateLimitConfig       `yaml:"rate_limit"`
	HealthCheck   HealthCheckConfig     `yaml:"health_check"`
}

// LoggingConfig controls structured log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// ToLogConfig converts to the observability package representation.
func (c LoggingConfig) ToLogConfig() observability.LogConfig {
	cfg := observability.DefaultLogConfig()
	if c.Level != "" {
		cfg.Level = c.Level
	}
	if c.Format != "" {
		cfg.Format = c.Format
	}
	if c.Output != "" {
		cfg.Output = c.Output
	}
	return cfg
}

// TracingConfig controls OpenTelemetry trace export.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	ServiceName  string  `yaml:"service_name"`
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// JWTConfig holds token verification settings.
type JWTConfig struct {
	Secret         string   `yaml:"secret"`
	Algorithm      string   `yaml:"algorithm"`
	AcceptableSkew Duration `yaml:"acceptable_skew"`
}

// CircuitBreakerConfig enables an optional per-service breaker on upstream
// dispatch.
type CircuitBreakerConfig struct {
	Enabled     bool     `yaml:"enabled"`
	MaxFailures uint32   `yaml:"max_failures"`
	OpenTimeout Duration `yaml:"open_timeout"`
}

// ServiceConfig describes one upstream service.
type ServiceConfig struct {
	ID             string               `yaml:"id"`
	BaseURL        string               `yaml:"base_url"`
	HealthPath     string               `yaml:"health_path"`
	Timeout        Duration             `yaml:"timeout"`
	FailFast       bool                 `yaml:"fail_fast"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// RouteConfig binds a path prefix to a service with its auth and rate limit
// policy.
type RouteConfig struct {
	PathPrefix   string   `yaml:"path_prefix"`
	Service      string   `yaml:"service"`
	AuthRequired bool     `yaml:"auth_required"`
	AllowedRoles []string `yaml:"allowed_roles"`
	Class        string   `yaml:"class"`
}

// RateLimitTier configures one rate limit class.
type RateLimitTier struct {
	Window    Duration `yaml:"window"`
	Max       int      `yaml:"max"`
	Algorithm string   `yaml:"algorithm"`
}

// RedisConfig configures the optional distributed rate limit store.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// RateLimitConfig holds the per-class tiers and store settings.
type RateLimitConfig struct {
	ExemptRoles []string                 `yaml:"exempt_roles"`
	Redis       RedisConfig              `yaml:"redis"`
	Tiers       map[string]RateLimitTier `yaml:"tiers"`
}

// HealthCheckConfig controls the background health monitor.
type HealthCheckConfig struct {
	Interval           Duration `yaml:"interval"`
	Timeout            Duration `yaml:"timeout"`
	UnhealthyThreshold int      `yaml:"unhealthy_threshold"`
}
