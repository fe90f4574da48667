package httpapi

import (
	"testing"
	"time"
)

// ─── TestRateLimiter_BurstThenRefill ───

func TestRateLimiter_BurstThenRefill(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(60, 2, nil)
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }

	if !rl.Allow("t1", 0) || !rl.Allow("t1", 0) {
		t.Fatal("burst requests denied")
	}
	if rl.Allow("t1", 0) {
		t.Fatal("third request allowed with empty bucket")
	}

	// 60/min refills one token per second.
	now = now.Add(time.Second)
	if !rl.Allow("t1", 0) {
		t.Error("request denied after refill")
	}
	if rl.Allow("t1", 0) {
		t.Error("second request allowed after single-token refill")
	}
}

// ─── TestRateLimiter_TenantOverride ───

func TestRateLimiter_TenantOverride(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(60, 1, nil)
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }

	// 600/min refills ten tokens per second.
	if !rl.Allow("fast", 600) {
		t.Fatal("first request denied")
	}
	now = now.Add(100 * time.Millisecond)
	if !rl.Allow("fast", 600) {
		t.Error("request denied despite 10/s refill rate")
	}
}

// ─── TestRateLimiter_IsolatesTenants ───

func TestRateLimiter_IsolatesTenants(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(60, 1, nil)
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }

	if !rl.Allow("t1", 0) {
		t.Fatal("t1 denied")
	}
	if rl.Allow("t1", 0) {
		t.Fatal("t1 second request allowed")
	}
	if !rl.Allow("t2", 0) {
		t.Error("t2 throttled by t1's bucket")
	}
}

// ─── TestRateLimiter_EvictStale ───

func TestRateLimiter_EvictStale(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(60, 1, nil)
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }

	rl.Allow("old", 0)
	now = now.Add(time.Hour)
	rl.Allow("fresh", 0)

	rl.EvictStale(30 * time.Minute)
	if got := rl.BucketCount(); got != 1 {
		t.Errorf("buckets = %d, want 1 (stale evicted)", got)
	}
	// Evicted tenants start over with a full bucket.
	if !rl.Allow("old", 0) {
		t.Error("re-created bucket denied first request")
	}
}
