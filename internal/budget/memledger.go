package budget

import (
	"context"
	"sync"
)

var _ Ledger = (*MemLedger)(nil)

type bucket struct {
	spent      float64
	reserved   float64
	denied     int64
	generative int64
	classifier int64
}

// MemLedger is an in-memory [Ledger] for tests and single-node development.
// The mutex gives the same atomicity the Postgres ledger gets from its
// conditional UPDATE. Safe for concurrent use.
type MemLedger struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

// NewMemLedger returns an empty MemLedger.
func NewMemLedger() *MemLedger {
	return &MemLedger{buckets: make(map[string]*bucket)}
}

func (l *MemLedger) bucketLocked(tenant, day string) *bucket {
	key := tenant + "|" + day
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{}
		l.buckets[key] = b
	}
	return b
}

// Reserve implements [Ledger].
func (l *MemLedger) Reserve(_ context.Context, tenant, day string, amount, ceiling float64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.bucketLocked(tenant, day)
	if b.spent+b.reserved+amount > ceiling {
		b.denied++
		return false, nil
	}
	b.reserved += amount
	return true, nil
}

// Commit implements [Ledger].
func (l *MemLedger) Commit(_ context.Context, tenant, day string, reserved, actual float64, component Component) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.bucketLocked(tenant, day)
	b.spent += actual
	b.reserved -= reserved
	if b.reserved < 0 {
		b.reserved = 0
	}
	switch component {
	case ComponentGenerative:
		b.generative++
	case ComponentClassifier:
		b.classifier++
	}
	return nil
}

// Release implements [Ledger].
func (l *MemLedger) Release(_ context.Context, tenant, day string, reserved float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.bucketLocked(tenant, day)
	b.reserved -= reserved
	if b.reserved < 0 {
		b.reserved = 0
	}
	return nil
}

// Snapshot implements [Ledger].
func (l *MemLedger) Snapshot(_ context.Context, tenant, day string) (Snapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.bucketLocked(tenant, day)
	return Snapshot{
		SpentUSD:        b.spent,
		ReservedUSD:     b.reserved,
		DeniedCount:     b.denied,
		GenerativeCount: b.generative,
		ClassifierCount: b.classifier,
	}, nil
}
