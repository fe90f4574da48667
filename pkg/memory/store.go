// Package memory defines the persistent player-memory model of the Aikyo
// pipeline: structured records with an importance score and an optional
// embedding vector, retrievable both by recency and by semantic similarity.
//
// The interfaces are public so that external packages can supply alternative
// storage backends (Postgres/pgvector, in-memory, …) without depending on
// aikyo internals. Every implementation must be safe for concurrent use.
package memory

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a record id does not exist.
var ErrNotFound = errors.New("memory: record not found")

// Store is the persistence interface for player memories.
//
// Append calls for a single player are serialized by the dispatcher; reads
// are concurrent. Implementations must be safe for concurrent use.
type Store interface {
	// Append persists a new record. The caller supplies the ID and all
	// scoring fields; Append performs no computation beyond storage.
	Append(ctx context.Context, rec Record) error

	// Recent returns up to k records for the player with importance ≥
	// minImportance, newest first.
	// Returns an empty (non-nil) slice when nothing matches.
	Recent(ctx context.Context, tenant, player string, k int, minImportance float64) ([]Record, error)

	// SemanticSearch returns up to k records for the player whose embeddings
	// are closest to the query embedding by cosine similarity, filtered by
	// importance ≥ minImportance. Records without an embedding never match.
	// Results are ordered by descending similarity; Score is the similarity
	// in [0, 1].
	// Returns an empty (non-nil) slice when nothing matches.
	SemanticSearch(ctx context.Context, tenant, player string, embedding []float32, k int, minImportance float64) ([]Scored, error)

	// UpdateImportance overrides a record's importance. The value is clamped
	// to [0, 1] by the caller. Returns [ErrNotFound] for unknown ids.
	UpdateImportance(ctx context.Context, id string, importance float64) error

	// Decay applies the daily importance decay to every record: importance
	// drops by 0.01 per day since creation, floored at
	// InitialImportance × floorMult. Idempotent for a fixed point in time.
	// Returns the number of records whose importance changed.
	Decay(ctx context.Context, floorMult float64) (int64, error)

	// DeleteBelow removes the player's records with importance <
	// minImportance and, when maxAge > 0, records older than maxAge
	// regardless of importance. The record and its vector are removed
	// together. Returns the number of deleted records.
	DeleteBelow(ctx context.Context, tenant, player string, minImportance float64, maxAge time.Duration) (int64, error)

	// PendingEmbeddings returns up to limit records across all players that
	// are awaiting an embedding, oldest first.
	PendingEmbeddings(ctx context.Context, limit int) ([]Record, error)

	// SetEmbedding stores the embedding for a record and clears its pending
	// flag. Returns [ErrNotFound] for unknown ids.
	SetEmbedding(ctx context.Context, id string, embedding []float32) error

	// Count returns the number of records stored for the player.
	Count(ctx context.Context, tenant, player string) (int, error)
}
