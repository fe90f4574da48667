// Package mock provides an in-memory test double for [memory.Store].
//
// The mock records every method call for assertion in tests, keeps appended
// records so Recent/Count/PendingEmbeddings behave like a real store, and
// exposes exported fields that force errors or canned semantic results.
// Safe for concurrent use via an internal [sync.Mutex].
package mock

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aikyo-ai/aikyo/pkg/memory"
)

var _ memory.Store = (*Store)(nil)

// Call records the name and arguments of a single method invocation.
type Call struct {
	// Method is the name of the interface method that was called.
	Method string

	// Args holds the non-context arguments passed to the method, in order.
	Args []any
}

// Store is a configurable test double for [memory.Store]. All exported *Err
// fields default to nil (success).
type Store struct {
	mu    sync.Mutex
	calls []Call
	recs  []memory.Record

	// AppendErr is returned by [Store.Append] when non-nil.
	AppendErr error

	// RecentErr is returned by [Store.Recent] when non-nil.
	RecentErr error

	// SemanticResult is returned by [Store.SemanticSearch]. The mock stores
	// no vectors, so semantic results are always canned.
	SemanticResult []memory.Scored

	// SemanticErr is returned by [Store.SemanticSearch] when non-nil.
	SemanticErr error

	// SetEmbeddingErr is returned by [Store.SetEmbedding] when non-nil.
	SetEmbeddingErr error
}

// Calls returns a copy of all recorded method invocations.
func (m *Store) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times the named method was invoked.
func (m *Store) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Records returns a copy of all appended records in append order.
func (m *Store) Records() []memory.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]memory.Record, len(m.recs))
	copy(out, m.recs)
	return out
}

// Append implements [memory.Store].
func (m *Store) Append(_ context.Context, rec memory.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "Append", Args: []any{rec}})
	if m.AppendErr != nil {
		return m.AppendErr
	}
	m.recs = append(m.recs, rec)
	return nil
}

// Recent implements [memory.Store]. It filters the appended records like a
// real store would.
func (m *Store) Recent(_ context.Context, tenant, player string, k int, minImportance float64) ([]memory.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "Recent", Args: []any{tenant, player, k, minImportance}})
	if m.RecentErr != nil {
		return nil, m.RecentErr
	}
	out := []memory.Record{}
	for _, r := range m.recs {
		if r.Tenant == tenant && r.Player == player && r.Importance >= minImportance {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// SemanticSearch implements [memory.Store].
func (m *Store) SemanticSearch(_ context.Context, tenant, player string, embedding []float32, k int, minImportance float64) ([]memory.Scored, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "SemanticSearch", Args: []any{tenant, player, k, minImportance}})
	if m.SemanticErr != nil {
		return nil, m.SemanticErr
	}
	if m.SemanticResult == nil {
		return []memory.Scored{}, nil
	}
	out := make([]memory.Scored, len(m.SemanticResult))
	copy(out, m.SemanticResult)
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// UpdateImportance implements [memory.Store].
func (m *Store) UpdateImportance(_ context.Context, id string, importance float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "UpdateImportance", Args: []any{id, importance}})
	for i := range m.recs {
		if m.recs[i].ID == id {
			m.recs[i].Importance = importance
			return nil
		}
	}
	return memory.ErrNotFound
}

// Decay implements [memory.Store]. Time is measured from CreatedAt to now.
func (m *Store) Decay(_ context.Context, floorMult float64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "Decay", Args: []any{floorMult}})
	var changed int64
	for i := range m.recs {
		days := float64(int(time.Since(m.recs[i].CreatedAt).Hours() / 24))
		next := m.recs[i].InitialImportance - 0.01*days
		if floor := m.recs[i].InitialImportance * floorMult; next < floor {
			next = floor
		}
		if next < m.recs[i].Importance {
			m.recs[i].Importance = next
			changed++
		}
	}
	return changed, nil
}

// DeleteBelow implements [memory.Store].
func (m *Store) DeleteBelow(_ context.Context, tenant, player string, minImportance float64, maxAge time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "DeleteBelow", Args: []any{tenant, player, minImportance, maxAge}})
	var kept []memory.Record
	var deleted int64
	cutoff := time.Time{}
	if maxAge > 0 {
		cutoff = time.Now().Add(-maxAge)
	}
	for _, r := range m.recs {
		doomed := r.Tenant == tenant && r.Player == player &&
			(r.Importance < minImportance || (!cutoff.IsZero() && r.CreatedAt.Before(cutoff)))
		if doomed {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	m.recs = kept
	return deleted, nil
}

// PendingEmbeddings implements [memory.Store].
func (m *Store) PendingEmbeddings(_ context.Context, limit int) ([]memory.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "PendingEmbeddings", Args: []any{limit}})
	out := []memory.Record{}
	for _, r := range m.recs {
		if r.EmbeddingPending {
			out = append(out, r)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// SetEmbedding implements [memory.Store].
func (m *Store) SetEmbedding(_ context.Context, id string, embedding []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "SetEmbedding", Args: []any{id, embedding}})
	if m.SetEmbeddingErr != nil {
		return m.SetEmbeddingErr
	}
	for i := range m.recs {
		if m.recs[i].ID == id {
			m.recs[i].Embedding = embedding
			m.recs[i].EmbeddingPending = false
			return nil
		}
	}
	return memory.ErrNotFound
}

// Count implements [memory.Store].
func (m *Store) Count(_ context.Context, tenant, player string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "Count", Args: []any{tenant, player}})
	n := 0
	for _, r := range m.recs {
		if r.Tenant == tenant && r.Player == player {
			n++
		}
	}
	return n, nil
}
