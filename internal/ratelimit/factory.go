package ratelimit

import (
	"github.com/vyrodovalexey/edgegate/internal/observability"
	"github.com/vyrodovalexey/edgegate/internal/ratelimit/store"
	"github.com/vyrodovalexey/edgegate/internal/util"
)

// New creates a limiter from configuration. The store may be nil for
// purely local limiting; the token bucket algorithm is always local.
func New(cfg Config, s store.Store, logger observability.Logger) (Limiter, error) {
	if cfg.Requests <= 0 || cfg.Window <= 0 {
		return nil, util.NewConfigError("rate_limit", "requests and window must be positive", nil)
	}

	switch cfg.Algorithm {
	case "", AlgorithmSlidingWindow:
		return NewSlidingWindowLimiter(s, cfg.Requests, cfg.Window, logger), nil
	case AlgorithmTokenBucket:
		return NewTokenBucketLimiter(cfg.Requests, cfg.Window), nil
	default:
		return nil, util.NewConfigError("rate_limit.algorithm", "unknown algorithm "+string(cfg.Algorithm), nil)
	}
}
