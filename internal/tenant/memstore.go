package tenant

import (
	"context"
	"fmt"
	"sync"
)

var _ Store = (*MemStore)(nil)

// MemStore is an in-memory [Store] seeded from configuration. It serves as
// the reference implementation for single-node deployments and tests; a
// production deployment replaces it with a client for the tenant service.
//
// Safe for concurrent use.
type MemStore struct {
	mu    sync.RWMutex
	byID  map[string]*Tenant
	byKey map[string]*Tenant
}

// NewMemStore builds a MemStore from the given tenants. Duplicate ids or
// API keys are an error so misconfiguration fails at startup, not at
// request time.
func NewMemStore(tenants []Tenant) (*MemStore, error) {
	s := &MemStore{
		byID:  make(map[string]*Tenant, len(tenants)),
		byKey: make(map[string]*Tenant, len(tenants)),
	}
	for i := range tenants {
		t := tenants[i]
		if t.ID == "" || t.APIKey == "" {
			return nil, fmt.Errorf("tenant: memstore: tenant %d: id and api key are required", i)
		}
		if _, dup := s.byID[t.ID]; dup {
			return nil, fmt.Errorf("tenant: memstore: duplicate tenant id %q", t.ID)
		}
		if _, dup := s.byKey[t.APIKey]; dup {
			return nil, fmt.Errorf("tenant: memstore: duplicate api key for tenant %q", t.ID)
		}
		s.byID[t.ID] = &t
		s.byKey[t.APIKey] = &t
	}
	return s, nil
}

// Authenticate implements [Store].
func (s *MemStore) Authenticate(_ context.Context, apiKey string) (*Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.byKey[apiKey]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

// Get implements [Store].
func (s *MemStore) Get(_ context.Context, id string) (*Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

// Upsert inserts or replaces a tenant. Used by config hot reload and tests;
// production tenant management lives outside the core.
func (s *MemStore) Upsert(t Tenant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.byID[t.ID]; ok && old.APIKey != t.APIKey {
		delete(s.byKey, old.APIKey)
	}
	s.byID[t.ID] = &t
	s.byKey[t.APIKey] = &t
}

// Remove deletes a tenant by id. Unknown ids are a no-op. In-flight requests
// keep the tenant copy they authenticated with.
func (s *MemStore) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.byID[id]; ok {
		delete(s.byKey, t.APIKey)
		delete(s.byID, id)
	}
}
