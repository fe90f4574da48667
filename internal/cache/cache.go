// Package cache implements the two-tier response cache: an in-process LRU in
// front of the shared KV tier. Entries are serialized responses keyed by the
// request fingerprint, so a hit is guaranteed to carry the exact persona and
// language the request demanded.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aikyo-ai/aikyo/pkg/kv"
)

// DefaultLRUSize is the per-instance first-tier capacity.
const DefaultLRUSize = 10000

// DefaultTTL is the shared-tier entry lifetime.
const DefaultTTL = 3600 * time.Second

// keyPrefix namespaces response entries in the shared KV tier.
const keyPrefix = "resp:"

// TwoTier is the response cache. Reads check the LRU first and fall through
// to the KV tier, re-populating the LRU on a second-tier hit. Writes go to
// both tiers; KV write failures are swallowed so the LRU still serves local
// hits when the shared tier is down.
//
// Safe for concurrent use.
type TwoTier struct {
	local  *lru.Cache[string, []byte]
	shared kv.Store
	ttl    time.Duration
	log    *slog.Logger
}

// Option configures a [TwoTier].
type Option func(*TwoTier)

// WithTTL overrides the shared-tier TTL.
func WithTTL(ttl time.Duration) Option {
	return func(c *TwoTier) { c.ttl = ttl }
}

// WithLogger sets the logger used to report swallowed shared-tier failures.
func WithLogger(log *slog.Logger) Option {
	return func(c *TwoTier) { c.log = log }
}

// New creates a TwoTier cache with the given LRU capacity over the shared
// store. shared may be nil, in which case only the local tier is used.
func New(lruSize int, shared kv.Store, opts ...Option) (*TwoTier, error) {
	if lruSize <= 0 {
		lruSize = DefaultLRUSize
	}
	local, err := lru.New[string, []byte](lruSize)
	if err != nil {
		return nil, fmt.Errorf("cache: create lru: %w", err)
	}
	c := &TwoTier{
		local:  local,
		shared: shared,
		ttl:    DefaultTTL,
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Get returns the serialized response for fingerprint, or (nil, false) on a
// miss. Shared-tier read failures degrade to a miss.
func (c *TwoTier) Get(ctx context.Context, fingerprint string) ([]byte, bool) {
	if v, ok := c.local.Get(fingerprint); ok {
		return v, true
	}
	if c.shared == nil {
		return nil, false
	}
	v, ok, err := c.shared.Get(ctx, keyPrefix+fingerprint)
	if err != nil {
		c.log.Debug("cache: shared tier read failed", "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	c.local.Add(fingerprint, v)
	return v, true
}

// Put stores the serialized response under fingerprint in both tiers. A
// shared-tier write failure is logged and otherwise ignored.
func (c *TwoTier) Put(ctx context.Context, fingerprint string, response []byte) {
	c.local.Add(fingerprint, response)
	if c.shared == nil {
		return
	}
	if err := c.shared.Put(ctx, keyPrefix+fingerprint, response, c.ttl); err != nil {
		c.log.Warn("cache: shared tier write failed", "error", err)
	}
}

// Invalidate removes fingerprint from both tiers. Used when a response must
// not be cached after the fact (invariant violations).
func (c *TwoTier) Invalidate(ctx context.Context, fingerprint string) {
	c.local.Remove(fingerprint)
	if c.shared == nil {
		return
	}
	if err := c.shared.Delete(ctx, keyPrefix+fingerprint); err != nil {
		c.log.Debug("cache: shared tier delete failed", "error", err)
	}
}

// Len returns the number of entries in the local tier.
func (c *TwoTier) Len() int { return c.local.Len() }
