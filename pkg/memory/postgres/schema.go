// Package postgres provides the PostgreSQL/pgvector implementation of the
// Aikyo player-memory store.
//
// The pgvector extension must be available in the target database; [Migrate]
// installs it automatically via CREATE EXTENSION IF NOT EXISTS.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn, 1536)
//	if err != nil { … }
//	defer store.Close()
//
//	_ = store.Append(ctx, rec)
//	recent, _ := store.Recent(ctx, tenantID, playerID, 5, 0.3)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ddlMemories returns the memories DDL with the embedding dimension
// substituted. The vector dimension is baked into the column type at schema
// creation time.
func ddlMemories(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS memories (
    id                  TEXT         PRIMARY KEY,
    tenant_id           TEXT         NOT NULL,
    player_id           TEXT         NOT NULL,
    kind                TEXT         NOT NULL,
    content             TEXT         NOT NULL,
    emotion             TEXT         NOT NULL DEFAULT '',
    importance          DOUBLE PRECISION NOT NULL,
    initial_importance  DOUBLE PRECISION NOT NULL,
    context             JSONB        NOT NULL DEFAULT '{}',
    embedding           vector(%d),
    embedding_pending   BOOLEAN      NOT NULL DEFAULT false,
    created_at          TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_memories_player
    ON memories (tenant_id, player_id, created_at DESC);

CREATE INDEX IF NOT EXISTS idx_memories_importance
    ON memories (tenant_id, player_id, importance);

CREATE INDEX IF NOT EXISTS idx_memories_pending
    ON memories (created_at) WHERE embedding_pending;

CREATE INDEX IF NOT EXISTS idx_memories_embedding
    ON memories USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)
}

// Migrate creates or ensures all required tables and extensions exist. It is
// idempotent (CREATE TABLE IF NOT EXISTS / CREATE INDEX IF NOT EXISTS) and
// safe to call on every application start.
//
// embeddingDimensions must match the vector model configured for the
// deployment (e.g., 1536 for OpenAI text-embedding-3-small, 768 for
// nomic-embed-text). Changing this value after the first migration requires
// a manual schema update.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	if _, err := pool.Exec(ctx, ddlMemories(embeddingDimensions)); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}
