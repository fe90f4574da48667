package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/aikyo-ai/aikyo/pkg/memory"
)

var _ memory.Store = (*Store)(nil)

// Store is the PostgreSQL-backed [memory.Store]. It holds a single
// [pgxpool.Pool]; all operations are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store, establishes a connection pool to the PostgreSQL
// database at dsn, registers pgvector types on every connection, and runs
// [Migrate] to ensure the schema exists.
func NewStore(ctx context.Context, dsn string, embeddingDimensions int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("memory store: parse dsn: %w", err)
	}

	// Register pgvector types on every new connection so that vector columns
	// can be scanned into and inserted from pgvector.Vector values.
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("memory store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("memory store: ping: %w", err)
	}

	if err := Migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("memory store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// NewStoreWithPool wraps an existing pool without running migrations.
// Intended for callers that share one pool across subsystems.
func NewStoreWithPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Pool exposes the underlying connection pool for subsystems that share it
// (KV tier, budget ledger, metric sink).
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Close releases all connections held by the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping verifies database connectivity. Used by readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Append implements [memory.Store].
func (s *Store) Append(ctx context.Context, rec memory.Record) error {
	const q = `
		INSERT INTO memories
		    (id, tenant_id, player_id, kind, content, emotion,
		     importance, initial_importance, context, embedding,
		     embedding_pending, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	var vec any
	if rec.Embedding != nil {
		vec = pgvector.NewVector(rec.Embedding)
	}
	ctxMap := rec.Context
	if ctxMap == nil {
		ctxMap = map[string]any{}
	}
	_, err := s.pool.Exec(ctx, q,
		rec.ID,
		rec.Tenant,
		rec.Player,
		string(rec.Kind),
		rec.Content,
		rec.Emotion,
		rec.Importance,
		rec.InitialImportance,
		ctxMap,
		vec,
		rec.EmbeddingPending,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("memory store: append: %w", err)
	}
	return nil
}

const recordColumns = `
	id, tenant_id, player_id, kind, content, emotion,
	importance, initial_importance, context, embedding,
	embedding_pending, created_at`

func scanRecord(row pgx.CollectableRow) (memory.Record, error) {
	var (
		rec memory.Record
		vec *pgvector.Vector
	)
	if err := row.Scan(
		&rec.ID,
		&rec.Tenant,
		&rec.Player,
		(*string)(&rec.Kind),
		&rec.Content,
		&rec.Emotion,
		&rec.Importance,
		&rec.InitialImportance,
		&rec.Context,
		&vec,
		&rec.EmbeddingPending,
		&rec.CreatedAt,
	); err != nil {
		return memory.Record{}, err
	}
	if vec != nil {
		rec.Embedding = vec.Slice()
	}
	return rec, nil
}

// Recent implements [memory.Store].
func (s *Store) Recent(ctx context.Context, tenant, player string, k int, minImportance float64) ([]memory.Record, error) {
	q := fmt.Sprintf(`
		SELECT %s
		FROM   memories
		WHERE  tenant_id = $1 AND player_id = $2 AND importance >= $3
		ORDER  BY created_at DESC
		LIMIT  $4`, recordColumns)

	rows, err := s.pool.Query(ctx, q, tenant, player, minImportance, k)
	if err != nil {
		return nil, fmt.Errorf("memory store: recent: %w", err)
	}
	recs, err := pgx.CollectRows(rows, scanRecord)
	if err != nil {
		return nil, fmt.Errorf("memory store: recent: scan: %w", err)
	}
	if recs == nil {
		recs = []memory.Record{}
	}
	return recs, nil
}

// SemanticSearch implements [memory.Store]. Cosine distance from pgvector's
// <=> operator is converted to similarity as 1 - distance.
func (s *Store) SemanticSearch(ctx context.Context, tenant, player string, embedding []float32, k int, minImportance float64) ([]memory.Scored, error) {
	q := fmt.Sprintf(`
		SELECT %s, 1 - (embedding <=> $4) AS similarity
		FROM   memories
		WHERE  tenant_id = $1 AND player_id = $2
		  AND  importance >= $3
		  AND  embedding IS NOT NULL
		ORDER  BY embedding <=> $4
		LIMIT  $5`, recordColumns)

	rows, err := s.pool.Query(ctx, q, tenant, player, minImportance, pgvector.NewVector(embedding), k)
	if err != nil {
		return nil, fmt.Errorf("memory store: semantic search: %w", err)
	}
	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (memory.Scored, error) {
		var (
			sc  memory.Scored
			vec *pgvector.Vector
		)
		if err := row.Scan(
			&sc.Record.ID,
			&sc.Record.Tenant,
			&sc.Record.Player,
			(*string)(&sc.Record.Kind),
			&sc.Record.Content,
			&sc.Record.Emotion,
			&sc.Record.Importance,
			&sc.Record.InitialImportance,
			&sc.Record.Context,
			&vec,
			&sc.Record.EmbeddingPending,
			&sc.Record.CreatedAt,
			&sc.Score,
		); err != nil {
			return memory.Scored{}, err
		}
		if vec != nil {
			sc.Record.Embedding = vec.Slice()
		}
		return sc, nil
	})
	if err != nil {
		return nil, fmt.Errorf("memory store: semantic search: scan: %w", err)
	}
	if results == nil {
		results = []memory.Scored{}
	}
	return results, nil
}

// UpdateImportance implements [memory.Store].
func (s *Store) UpdateImportance(ctx context.Context, id string, importance float64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE memories SET importance = $2 WHERE id = $1`, id, importance)
	if err != nil {
		return fmt.Errorf("memory store: update importance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return memory.ErrNotFound
	}
	return nil
}

// Decay implements [memory.Store]. The decayed value is recomputed from
// created_at and initial_importance on every run, which makes the task
// idempotent for a fixed point in time.
func (s *Store) Decay(ctx context.Context, floorMult float64) (int64, error) {
	const q = `
		UPDATE memories
		SET    importance = GREATEST(
		           initial_importance * $1,
		           initial_importance
		               - 0.01 * floor(extract(epoch FROM (now() - created_at)) / 86400))
		WHERE  importance > GREATEST(
		           initial_importance * $1,
		           initial_importance
		               - 0.01 * floor(extract(epoch FROM (now() - created_at)) / 86400))`

	tag, err := s.pool.Exec(ctx, q, floorMult)
	if err != nil {
		return 0, fmt.Errorf("memory store: decay: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteBelow implements [memory.Store]. The vector lives in the same row,
// so record and embedding are removed together.
func (s *Store) DeleteBelow(ctx context.Context, tenant, player string, minImportance float64, maxAge time.Duration) (int64, error) {
	q := `
		DELETE FROM memories
		WHERE  tenant_id = $1 AND player_id = $2
		  AND  importance < $3`
	args := []any{tenant, player, minImportance}
	if maxAge > 0 {
		q = `
		DELETE FROM memories
		WHERE  tenant_id = $1 AND player_id = $2
		  AND  (importance < $3 OR created_at < $4)`
		args = append(args, time.Now().Add(-maxAge))
	}

	tag, err := s.pool.Exec(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("memory store: delete below: %w", err)
	}
	return tag.RowsAffected(), nil
}

// PendingEmbeddings implements [memory.Store].
func (s *Store) PendingEmbeddings(ctx context.Context, limit int) ([]memory.Record, error) {
	q := fmt.Sprintf(`
		SELECT %s
		FROM   memories
		WHERE  embedding_pending
		ORDER  BY created_at
		LIMIT  $1`, recordColumns)

	rows, err := s.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("memory store: pending embeddings: %w", err)
	}
	recs, err := pgx.CollectRows(rows, scanRecord)
	if err != nil {
		return nil, fmt.Errorf("memory store: pending embeddings: scan: %w", err)
	}
	if recs == nil {
		recs = []memory.Record{}
	}
	return recs, nil
}

// SetEmbedding implements [memory.Store].
func (s *Store) SetEmbedding(ctx context.Context, id string, embedding []float32) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE memories SET embedding = $2, embedding_pending = false WHERE id = $1`,
		id, pgvector.NewVector(embedding))
	if err != nil {
		return fmt.Errorf("memory store: set embedding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return memory.ErrNotFound
	}
	return nil
}

// Count implements [memory.Store].
func (s *Store) Count(ctx context.Context, tenant, player string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM memories WHERE tenant_id = $1 AND player_id = $2`,
		tenant, player).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("memory store: count: %w", err)
	}
	return n, nil
}
