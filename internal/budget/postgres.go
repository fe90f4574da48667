package budget

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ Ledger = (*PostgresLedger)(nil)

const ddlBudgetBuckets = `
CREATE TABLE IF NOT EXISTS budget_buckets (
    tenant_id        TEXT             NOT NULL,
    day              TEXT             NOT NULL,
    spent_usd        DOUBLE PRECISION NOT NULL DEFAULT 0,
    reserved_usd     DOUBLE PRECISION NOT NULL DEFAULT 0,
    denied_count     BIGINT           NOT NULL DEFAULT 0,
    generative_count BIGINT           NOT NULL DEFAULT 0,
    classifier_count BIGINT           NOT NULL DEFAULT 0,
    PRIMARY KEY (tenant_id, day)
);
`

// PostgresLedger is the shared-tier [Ledger]. Atomicity of [Ledger.Reserve]
// comes from a single conditional UPDATE on the bucket row: the reservation
// succeeds only when the row version it reads still satisfies the ceiling.
type PostgresLedger struct {
	pool *pgxpool.Pool
}

// NewPostgresLedger wraps pool and ensures the budget_buckets table exists.
func NewPostgresLedger(ctx context.Context, pool *pgxpool.Pool) (*PostgresLedger, error) {
	if _, err := pool.Exec(ctx, ddlBudgetBuckets); err != nil {
		return nil, fmt.Errorf("budget: migrate: %w", err)
	}
	return &PostgresLedger{pool: pool}, nil
}

// Reserve implements [Ledger]. The bucket row is created on first use; the
// conditional UPDATE either reserves or matches zero rows, and a zero-row
// outcome increments the denied counter.
func (l *PostgresLedger) Reserve(ctx context.Context, tenant, day string, amount, ceiling float64) (bool, error) {
	const ensure = `
		INSERT INTO budget_buckets (tenant_id, day)
		VALUES ($1, $2)
		ON CONFLICT (tenant_id, day) DO NOTHING`
	if _, err := l.pool.Exec(ctx, ensure, tenant, day); err != nil {
		return false, fmt.Errorf("budget: ensure bucket: %w", err)
	}

	const reserve = `
		UPDATE budget_buckets
		SET    reserved_usd = reserved_usd + $3
		WHERE  tenant_id = $1 AND day = $2
		  AND  spent_usd + reserved_usd + $3 <= $4`
	tag, err := l.pool.Exec(ctx, reserve, tenant, day, amount, ceiling)
	if err != nil {
		return false, fmt.Errorf("budget: reserve: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	const deny = `
		UPDATE budget_buckets
		SET    denied_count = denied_count + 1
		WHERE  tenant_id = $1 AND day = $2`
	if _, err := l.pool.Exec(ctx, deny, tenant, day); err != nil {
		return false, fmt.Errorf("budget: record denial: %w", err)
	}
	return false, nil
}

// Commit implements [Ledger].
func (l *PostgresLedger) Commit(ctx context.Context, tenant, day string, reserved, actual float64, component Component) error {
	col := ""
	switch component {
	case ComponentGenerative:
		col = ", generative_count = generative_count + 1"
	case ComponentClassifier:
		col = ", classifier_count = classifier_count + 1"
	}
	q := fmt.Sprintf(`
		UPDATE budget_buckets
		SET    spent_usd    = spent_usd + $3,
		       reserved_usd = GREATEST(reserved_usd - $4, 0)%s
		WHERE  tenant_id = $1 AND day = $2`, col)

	if _, err := l.pool.Exec(ctx, q, tenant, day, actual, reserved); err != nil {
		return fmt.Errorf("budget: commit: %w", err)
	}
	return nil
}

// Release implements [Ledger].
func (l *PostgresLedger) Release(ctx context.Context, tenant, day string, reserved float64) error {
	const q = `
		UPDATE budget_buckets
		SET    reserved_usd = GREATEST(reserved_usd - $3, 0)
		WHERE  tenant_id = $1 AND day = $2`
	if _, err := l.pool.Exec(ctx, q, tenant, day, reserved); err != nil {
		return fmt.Errorf("budget: release: %w", err)
	}
	return nil
}

// Snapshot implements [Ledger].
func (l *PostgresLedger) Snapshot(ctx context.Context, tenant, day string) (Snapshot, error) {
	const q = `
		SELECT spent_usd, reserved_usd, denied_count, generative_count, classifier_count
		FROM   budget_buckets
		WHERE  tenant_id = $1 AND day = $2`

	var s Snapshot
	err := l.pool.QueryRow(ctx, q, tenant, day).Scan(
		&s.SpentUSD, &s.ReservedUSD, &s.DeniedCount, &s.GenerativeCount, &s.ClassifierCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return Snapshot{}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("budget: snapshot: %w", err)
	}
	return s, nil
}
