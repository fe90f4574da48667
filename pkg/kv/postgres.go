package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ Store = (*Postgres)(nil)

const ddlKVEntries = `
CREATE TABLE IF NOT EXISTS kv_entries (
    key        TEXT         PRIMARY KEY,
    value      BYTEA        NOT NULL,
    expires_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_kv_entries_expires
    ON kv_entries (expires_at) WHERE expires_at IS NOT NULL;
`

// Postgres is a [Store] backed by a single kv_entries table. It shares the
// application's existing connection pool; expired rows are filtered on read
// and reaped opportunistically by [Postgres.Purge].
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps pool and ensures the kv_entries table exists.
func NewPostgres(ctx context.Context, pool *pgxpool.Pool) (*Postgres, error) {
	if _, err := pool.Exec(ctx, ddlKVEntries); err != nil {
		return nil, fmt.Errorf("kv: migrate: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Get implements [Store].
func (p *Postgres) Get(ctx context.Context, key string) ([]byte, bool, error) {
	const q = `
		SELECT value FROM kv_entries
		WHERE  key = $1 AND (expires_at IS NULL OR expires_at > now())`

	var value []byte
	err := p.pool.QueryRow(ctx, q, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("kv: get: %w", err)
	}
	return value, true, nil
}

// Put implements [Store].
func (p *Postgres) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var expires *time.Time
	if ttl > 0 {
		t := time.Now().Add(ttl)
		expires = &t
	}
	const q = `
		INSERT INTO kv_entries (key, value, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET
		    value      = EXCLUDED.value,
		    expires_at = EXCLUDED.expires_at`

	if _, err := p.pool.Exec(ctx, q, key, value, expires); err != nil {
		return fmt.Errorf("kv: put: %w", err)
	}
	return nil
}

// Delete implements [Store].
func (p *Postgres) Delete(ctx context.Context, key string) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM kv_entries WHERE key = $1`, key); err != nil {
		return fmt.Errorf("kv: delete: %w", err)
	}
	return nil
}

// Purge removes expired rows. Intended to run periodically; reads never
// return expired values regardless of whether Purge has run.
func (p *Postgres) Purge(ctx context.Context) (int64, error) {
	tag, err := p.pool.Exec(ctx,
		`DELETE FROM kv_entries WHERE expires_at IS NOT NULL AND expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("kv: purge: %w", err)
	}
	return tag.RowsAffected(), nil
}
