package recall

import (
	"context"
	"fmt"
	"time"

	"github.com/aikyo-ai/aikyo/internal/tenant"
)

// MaintenanceConfig tunes the engine's background tasks. Zero values take
// the defaults.
type MaintenanceConfig struct {
	// DecayInterval is how often the importance decay runs. Decay is
	// idempotent for a fixed point in time, so running it more often than
	// daily only costs one UPDATE. Default: 1h.
	DecayInterval time.Duration

	// RetryInterval is how often pending embeddings are retried. Default: 1m.
	RetryInterval time.Duration

	// RetryBatch is how many pending records one retry pass picks up.
	// Default: 64.
	RetryBatch int
}

func (c *MaintenanceConfig) applyDefaults() {
	if c.DecayInterval <= 0 {
		c.DecayInterval = time.Hour
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = time.Minute
	}
	if c.RetryBatch <= 0 {
		c.RetryBatch = 64
	}
}

// WithTenantStore lets the background embedding retrier resolve tenants for
// budget admission. Without it, retried embeddings are skipped for records
// whose tenant cannot be resolved.
func WithTenantStore(ts tenant.Store) Option {
	return func(e *Engine) { e.tenants = ts }
}

// StartMaintenance launches the decay and embedding-retry loops. The
// returned stop function blocks until both loops have exited. Cancelling ctx
// stops them as well.
func (e *Engine) StartMaintenance(ctx context.Context, cfg MaintenanceConfig) (stop func()) {
	cfg.applyDefaults()
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{}, 2)

	go func() {
		defer func() { done <- struct{}{} }()
		t := time.NewTicker(cfg.DecayInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if n, err := e.Decay(ctx); err != nil {
					e.log.Warn("recall: decay pass failed", "error", err)
				} else if n > 0 {
					e.log.Debug("recall: decay pass", "records", n)
				}
			}
		}
	}()

	go func() {
		defer func() { done <- struct{}{} }()
		t := time.NewTicker(cfg.RetryInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if n, err := e.RetryPendingEmbeddings(ctx, cfg.RetryBatch); err != nil {
					e.log.Warn("recall: embedding retry pass failed", "error", err)
				} else if n > 0 {
					e.log.Debug("recall: embedding retry pass", "embedded", n)
				}
			}
		}
	}()

	return func() {
		cancel()
		<-done
		<-done
	}
}

// RetryPendingEmbeddings embeds up to limit records that were stored without
// a vector. Records whose tenant cannot be resolved, or whose embedding is
// denied or fails again, stay pending for the next pass. Returns how many
// records received an embedding.
func (e *Engine) RetryPendingEmbeddings(ctx context.Context, limit int) (int, error) {
	if e.embedder == nil {
		return 0, nil
	}
	pending, err := e.store.PendingEmbeddings(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("recall: retry embeddings: %w", err)
	}

	embedded := 0
	for _, rec := range pending {
		var t *tenant.Tenant
		if e.tenants != nil {
			t, err = e.tenants.Get(ctx, rec.Tenant)
			if err != nil {
				continue
			}
		}
		vec, ok := e.embed(ctx, t, rec.Content)
		if !ok {
			continue
		}
		if err := e.store.SetEmbedding(ctx, rec.ID, vec); err != nil {
			e.log.Warn("recall: set embedding failed",
				"record", rec.ID, "error", err)
			continue
		}
		embedded++
	}
	return embedded, nil
}
