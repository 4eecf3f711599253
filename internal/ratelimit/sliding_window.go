package ratelimit

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/vyrodovalexey/edgegate/internal/observability"
	"github.com/vyrodovalexey/edgegate/internal/ratelimit/store"
)

// subWindowPrecision is the number of counter buckets used when the
// backing store cannot evaluate an exact window atomically.
const subWindowPrecision = 10

// SlidingWindowLimiter admits at most limit requests per key within any
// window-sized interval. With no store it keeps exact request timestamps in
// memory; state for different keys is independent, so checks for distinct
// keys never contend on a shared lock.
type SlidingWindowLimiter struct {
	store  store.Store
	limit  int
	window time.Duration
	logger observability.Logger

	windows sync.Map
}

// windowState holds the in-memory timestamps for one key.
type windowState struct {
	mu       sync.Mutex
	requests []time.Time
}

// NewSlidingWindowLimiter creates a sliding window limiter. A nil store
// selects the in-memory implementation.
func NewSlidingWindowLimiter(s store.Store, limit int, window time.Duration, logger observability.Logger) *SlidingWindowLimiter {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &SlidingWindowLimiter{
		store:  s,
		limit:  limit,
		window: window,
		logger: logger,
	}
}

// Allow implements Limiter.
func (l *SlidingWindowLimiter) Allow(ctx context.Context, key string) (*Result, error) {
	if l.store == nil {
		return l.allowLocal(key), nil
	}
	if ws, ok := l.store.(store.WindowStore); ok {
		return l.allowWindowStore(ctx, ws, key)
	}
	return l.allowCounters(ctx, key)
}

// allowLocal evaluates the window against in-memory timestamps.
func (l *SlidingWindowLimiter) allowLocal(key string) *Result {
	now := time.Now()

	value, _ := l.windows.LoadOrStore(key, &windowState{})
	ws := value.(*windowState)

	ws.mu.Lock()
	defer ws.mu.Unlock()

	windowStart := now.Add(-l.window)
	live := ws.requests[:0]
	for _, t := range ws.requests {
		if t.After(windowStart) {
			live = append(live, t)
		}
	}
	ws.requests = live

	count := len(ws.requests)
	allowed := count < l.limit
	var retryAfter time.Duration

	if allowed {
		ws.requests = append(ws.requests, now)
		count++
	} else if count > 0 {
		// The next slot opens when the oldest timestamp ages out.
		retryAfter = ws.requests[0].Add(l.window).Sub(now)
		if retryAfter < 0 {
			retryAfter = 0
		}
	}

	return &Result{
		Allowed:    allowed,
		Limit:      l.limit,
		Remaining:  remaining(l.limit, count),
		RetryAfter: retryAfter,
	}
}

// allowWindowStore evaluates the window atomically in the store.
func (l *SlidingWindowLimiter) allowWindowStore(ctx context.Context, ws store.WindowStore, key string) (*Result, error) {
	decision, err := ws.SlidingWindowAllow(ctx, key, l.limit, l.window)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Allowed:   decision.Allowed,
		Limit:     l.limit,
		Remaining: remaining(l.limit, int(decision.Count)),
	}
	if !decision.Allowed {
		res.RetryAfter = decision.RetryAfter
	}
	return res, nil
}

// allowCounters approximates the window with sub-window counters for
// stores without atomic window support.
func (l *SlidingWindowLimiter) allowCounters(ctx context.Context, key string) (*Result, error) {
	nowMs := time.Now().UnixMilli()
	subWindowMs := l.window.Milliseconds() / subWindowPrecision
	if subWindowMs < 1 {
		subWindowMs = 1
	}
	current := nowMs / subWindowMs

	var total int64
	for i := 0; i < subWindowPrecision; i++ {
		subKey := key + ":sw:" + strconv.FormatInt(current-int64(i), 10)
		count, err := l.store.Get(ctx, subKey)
		if err != nil && !store.IsKeyNotFound(err) {
			return nil, err
		}
		total += count
	}

	allowed := int(total) < l.limit
	if allowed {
		subKey := key + ":sw:" + strconv.FormatInt(current, 10)
		expiration := l.window + time.Duration(subWindowMs)*time.Millisecond
		if _, err := l.store.IncrementWithExpiry(ctx, subKey, 1, expiration); err != nil {
			return nil, err
		}
		total++
	}

	res := &Result{
		Allowed:   allowed,
		Limit:     l.limit,
		Remaining: remaining(l.limit, int(total)),
	}
	if !allowed {
		// The oldest sub-window expires within one bucket interval.
		res.RetryAfter = time.Duration(subWindowMs) * time.Millisecond
	}
	return res, nil
}

// Reset implements Limiter.
func (l *SlidingWindowLimiter) Reset(ctx context.Context, key string) error {
	l.windows.Delete(key)

	if l.store == nil {
		return nil
	}
	if _, ok := l.store.(store.WindowStore); ok {
		return l.store.Delete(ctx, key)
	}

	nowMs := time.Now().UnixMilli()
	subWindowMs := l.window.Milliseconds() / subWindowPrecision
	if subWindowMs < 1 {
		subWindowMs = 1
	}
	current := nowMs / subWindowMs
	for i := 0; i < subWindowPrecision; i++ {
		subKey := key + ":sw:" + strconv.FormatInt(current-int64(i), 10)
		if err := l.store.Delete(ctx, subKey); err != nil {
			l.logger.Warn("failed to delete sub-window", observability.Error(err))
		}
	}
	return nil
}

// Cleanup drops in-memory state for keys idle longer than maxAge. The
// gateway runs this periodically so one-off clients do not accumulate.
func (l *SlidingWindowLimiter) Cleanup(maxAge time.Duration) {
	cutoff := time.Now().Add(-maxAge)

	l.windows.Range(func(key, value interface{}) bool {
		ws := value.(*windowState)
		ws.mu.Lock()
		idle := true
		for _, t := range ws.requests {
			if t.After(cutoff) {
				idle = false
				break
			}
		}
		if idle {
			l.windows.Delete(key)
		}
		ws.mu.Unlock()
		return true
	})
}

// remaining clamps limit-count at zero.
func remaining(limit, count int) int {
	r := limit - count
	if r < 0 {
		r = 0
	}
	return r
}
