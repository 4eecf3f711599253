package config

import (
	"net/url"
	"strings"
	"time"

	"github.com/vyrodovalexey/edgegate/internal/util"
)

// Validate checks the configuration for consistency and applies defaults.
// Conflicting registrations and dangling route references are load-time
// failures rather than request-time surprises.
func (c *Config) Validate() error {
	c.applyDefaults()

	if len(c.Services) == 0 {
		return util.NewConfigError("services", "at least one service is required", nil)
	}

	seen := make(map[string]string, len(c.Services))
	for i := range c.Services {
		svc := &c.Services[i]
		if svc.ID == "" {
			return util.NewConfigError("services.id", "service id must not be empty", nil)
		}
		if svc.BaseURL == "" {
			return util.NewConfigError("services."+svc.ID+".base_url", "base url must not be empty", nil)
		}
		u, err := url.Parse(svc.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return util.NewConfigError("services."+svc.ID+".base_url", "base url must be an absolute http(s) url", err)
		}
		if prev, ok := seen[svc.ID]; ok && prev != svc.BaseURL {
			return util.NewConfigError("services."+svc.ID, "duplicate service id with conflicting base url", nil)
		}
		seen[svc.ID] = svc.BaseURL
	}

	for i := range c.Routes {
		rt := &c.Routes[i]
		if !strings.HasPrefix(rt.PathPrefix, "/") {
			return util.NewConfigError("routes.path_prefix", "path prefix must start with /", nil)
		}
		if _, ok := seen[rt.Service]; !ok {
			return util.NewConfigError("routes."+rt.PathPrefix, "route references unknown service "+rt.Service, nil)
		}
		if rt.Class == "" {
			rt.Class = "standard"
		}
		if _, ok := c.RateLimit.Tiers[rt.Class]; !ok {
			return util.NewConfigError("routes."+rt.PathPrefix, "route class "+rt.Class+" has no rate limit tier", nil)
		}
	}

	for class, tier := range c.RateLimit.Tiers {
		if tier.Max <= 0 {
			return util.NewConfigError("rate_limit.tiers."+class+".max", "tier max must be positive", nil)
		}
		if tier.Window.Std() <= 0 {
			return util.NewConfigError("rate_limit.tiers."+class+".window", "tier window must be positive", nil)
		}
		switch tier.Algorithm {
		case "", AlgorithmSlidingWindow, AlgorithmTokenBucket:
		default:
			return util.NewConfigError("rate_limit.tiers."+class+".algorithm", "unknown algorithm "+tier.Algorithm, nil)
		}
	}

	if alg := c.JWT.Algorithm; alg != "" && alg != "HS256" && alg != "HS384" && alg != "HS512" {
		return util.NewConfigError("jwt.algorithm", "unsupported algorithm "+alg, nil)
	}

	return nil
}

// applyDefaults fills unset fields with their defaults.
func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = DefaultListenAddr
	}
	if c.AdminListen == "" {
		c.AdminListen = DefaultAdminListenAddr
	}
	if c.ShutdownGrace.Std() == 0 {
		c.ShutdownGrace = Duration(DefaultShutdownGrace)
	}
	if c.JWT.Algorithm == "" {
		c.JWT.Algorithm = DefaultJWTAlgorithm
	}
	if c.HealthCheck.Interval.Std() == 0 {
		c.HealthCheck.Interval = Duration(DefaultHealthInterval)
	}
	if c.HealthCheck.Timeout.Std() == 0 {
		c.HealthCheck.Timeout = Duration(DefaultHealthTimeout)
	}
	if c.HealthCheck.UnhealthyThreshold == 0 {
		c.HealthCheck.UnhealthyThreshold = DefaultUnhealthyAfter
	}
	for i := range c.Services {
		if c.Services[i].Timeout.Std() == 0 {
			c.Services[i].Timeout = Duration(DefaultServiceTimeout)
		}
		if c.Services[i].HealthPath == "" {
			c.Services[i].HealthPath = "/health"
		}
	}
	if c.RateLimit.Tiers == nil {
		c.RateLimit.Tiers = map[string]RateLimitTier{}
	}
	if _, ok := c.RateLimit.Tiers["standard"]; !ok {
		c.RateLimit.Tiers["standard"] = RateLimitTier{
			Window: Duration(time.Minute),
			Max:    100,
		}
	}
}
