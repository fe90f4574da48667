package costsink

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ Writer = (*PGWriter)(nil)

const ddlUsageMetrics = `
CREATE TABLE IF NOT EXISTS usage_metrics (
    id          BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    tenant_id   TEXT             NOT NULL,
    game_id     TEXT             NOT NULL DEFAULT '',
    player_id   TEXT             NOT NULL DEFAULT '',
    component   TEXT             NOT NULL,
    operation   TEXT             NOT NULL,
    latency_ms  BIGINT           NOT NULL,
    status_code INT              NOT NULL,
    cost_usd    DOUBLE PRECISION NOT NULL,
    cache_hit   BOOLEAN          NOT NULL,
    recorded_at TIMESTAMPTZ      NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_usage_metrics_tenant_time
    ON usage_metrics (tenant_id, recorded_at DESC);

CREATE INDEX IF NOT EXISTS idx_usage_metrics_time
    ON usage_metrics (recorded_at DESC);
`

// PGWriter persists metric batches to the usage_metrics table and serves the
// analytics aggregations.
type PGWriter struct {
	pool *pgxpool.Pool
}

// NewPGWriter wraps pool and ensures the usage_metrics table exists.
func NewPGWriter(ctx context.Context, pool *pgxpool.Pool) (*PGWriter, error) {
	if _, err := pool.Exec(ctx, ddlUsageMetrics); err != nil {
		return nil, fmt.Errorf("costsink: migrate: %w", err)
	}
	return &PGWriter{pool: pool}, nil
}

// WriteBatch implements [Writer] with a bulk copy.
func (w *PGWriter) WriteBatch(ctx context.Context, batch []Metric) error {
	_, err := w.pool.CopyFrom(ctx,
		pgx.Identifier{"usage_metrics"},
		[]string{"tenant_id", "game_id", "player_id", "component", "operation",
			"latency_ms", "status_code", "cost_usd", "cache_hit", "recorded_at"},
		pgx.CopyFromSlice(len(batch), func(i int) ([]any, error) {
			m := batch[i]
			return []any{m.Tenant, m.Game, m.Player, m.Component, m.Operation,
				m.LatencyMS, m.StatusCode, m.CostUSD, m.CacheHit, m.Timestamp}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("costsink: write batch: %w", err)
	}
	return nil
}

// PlatformStats is the aggregate backing /v1/analytics/platform.
type PlatformStats struct {
	Requests     int64   `json:"requests"`
	CacheHits    int64   `json:"cache_hits"`
	TotalCostUSD float64 `json:"total_cost_usd"`
	AvgLatencyMS float64 `json:"avg_latency_ms"`
	P95LatencyMS float64 `json:"p95_latency_ms"`
}

// Platform aggregates dispatcher metrics over the trailing window.
func (w *PGWriter) Platform(ctx context.Context, days int) (PlatformStats, error) {
	if days <= 0 {
		days = 7
	}
	const q = `
		SELECT count(*),
		       count(*) FILTER (WHERE cache_hit),
		       COALESCE(sum(cost_usd), 0),
		       COALESCE(avg(latency_ms), 0),
		       COALESCE(percentile_cont(0.95) WITHIN GROUP (ORDER BY latency_ms), 0)
		FROM   usage_metrics
		WHERE  component = $1 AND recorded_at > now() - $2::interval`

	var s PlatformStats
	err := w.pool.QueryRow(ctx, q, ComponentDispatcher,
		fmt.Sprintf("%d days", days)).
		Scan(&s.Requests, &s.CacheHits, &s.TotalCostUSD, &s.AvgLatencyMS, &s.P95LatencyMS)
	if err != nil {
		return PlatformStats{}, fmt.Errorf("costsink: platform stats: %w", err)
	}
	return s, nil
}

// ComponentCost is one row of the per-tenant cost rollup.
type ComponentCost struct {
	Component string  `json:"component"`
	Operation string  `json:"operation"`
	Calls     int64   `json:"calls"`
	CostUSD   float64 `json:"cost_usd"`
}

// TenantCosts rolls up a tenant's paid spend by component and operation over
// the trailing window.
func (w *PGWriter) TenantCosts(ctx context.Context, tenantID string, days int) ([]ComponentCost, error) {
	if days <= 0 {
		days = 7
	}
	const q = `
		SELECT component, operation, count(*), COALESCE(sum(cost_usd), 0)
		FROM   usage_metrics
		WHERE  tenant_id = $1 AND recorded_at > now() - $2::interval
		GROUP  BY component, operation
		ORDER  BY sum(cost_usd) DESC, component, operation`

	rows, err := w.pool.Query(ctx, q, tenantID, fmt.Sprintf("%d days", days))
	if err != nil {
		return nil, fmt.Errorf("costsink: tenant costs: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (ComponentCost, error) {
		var c ComponentCost
		err := row.Scan(&c.Component, &c.Operation, &c.Calls, &c.CostUSD)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("costsink: tenant costs: %w", err)
	}
	return out, nil
}

// Prune deletes metrics older than the retention window.
func (w *PGWriter) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	tag, err := w.pool.Exec(ctx,
		`DELETE FROM usage_metrics WHERE recorded_at < $1`, time.Now().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("costsink: prune: %w", err)
	}
	return tag.RowsAffected(), nil
}
