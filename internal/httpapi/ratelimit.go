package httpapi

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// bucket is a token bucket refilled continuously at the tenant's rate.
type bucket struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	lastAccess time.Time
}

func newBucket(perMinute, burst int, now time.Time) *bucket {
	return &bucket{
		tokens:     float64(burst),
		maxTokens:  float64(burst),
		refillRate: float64(perMinute) / 60.0,
		lastRefill: now,
		lastAccess: now,
	}
}

func (b *bucket) allow(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens += elapsed * b.refillRate
	if b.tokens > b.maxTokens {
		b.tokens = b.maxTokens
	}
	b.lastRefill = now
	b.lastAccess = now

	if b.tokens >= 1.0 {
		b.tokens -= 1.0
		return true
	}
	return false
}

func (b *bucket) last() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastAccess
}

// RateLimiter tracks one token bucket per tenant. Buckets for tenants that
// stop sending are evicted so the map does not grow without bound.
type RateLimiter struct {
	defaultPerMinute int
	burst            int
	log              *slog.Logger
	now              func() time.Time

	mu      sync.RWMutex
	buckets map[string]*bucket
}

// NewRateLimiter creates a limiter. defaultPerMinute applies to tenants with
// no rate override; burst is the shared burst capacity.
func NewRateLimiter(defaultPerMinute, burst int, log *slog.Logger) *RateLimiter {
	if defaultPerMinute <= 0 {
		defaultPerMinute = 120
	}
	if burst <= 0 {
		burst = 20
	}
	if log == nil {
		log = slog.Default()
	}
	return &RateLimiter{
		defaultPerMinute: defaultPerMinute,
		burst:            burst,
		log:              log,
		now:              time.Now,
		buckets:          make(map[string]*bucket),
	}
}

// Allow consumes one token from the tenant's bucket. perMinute overrides the
// default rate when positive.
func (rl *RateLimiter) Allow(tenantID string, perMinute int) bool {
	if perMinute <= 0 {
		perMinute = rl.defaultPerMinute
	}
	return rl.getBucket(tenantID, perMinute).allow(rl.now())
}

// StartEviction periodically drops buckets idle longer than maxAge. It stops
// when ctx is cancelled.
func (rl *RateLimiter) StartEviction(ctx context.Context, interval, maxAge time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.EvictStale(maxAge)
			}
		}
	}()
}

// EvictStale removes buckets not used within maxAge.
func (rl *RateLimiter) EvictStale(maxAge time.Duration) {
	cutoff := rl.now().Add(-maxAge)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	evicted := 0
	for id, b := range rl.buckets {
		if b.last().Before(cutoff) {
			delete(rl.buckets, id)
			evicted++
		}
	}
	if evicted > 0 {
		rl.log.Debug("httpapi: evicted stale rate buckets", "evicted", evicted, "remaining", len(rl.buckets))
	}
}

// BucketCount reports how many tenants currently hold a bucket.
func (rl *RateLimiter) BucketCount() int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return len(rl.buckets)
}

func (rl *RateLimiter) getBucket(tenantID string, perMinute int) *bucket {
	rl.mu.RLock()
	b, ok := rl.buckets[tenantID]
	rl.mu.RUnlock()
	if ok {
		return b
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if b, ok = rl.buckets[tenantID]; ok {
		return b
	}
	b = newBucket(perMinute, rl.burst, rl.now())
	rl.buckets[tenantID] = b
	return b
}
