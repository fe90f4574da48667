package budget_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aikyo-ai/aikyo/internal/budget"
	"github.com/aikyo-ai/aikyo/internal/tenant"
)

func proTenant(dailyUSD float64) *tenant.Tenant {
	return &tenant.Tenant{ID: "t1", Tier: tenant.TierPro, DailyBudgetUSD: dailyUSD, Active: true}
}

// ─── TestReserveCommitSnapshot ───────────────────────────────────────────────

func TestReserveCommitSnapshot(t *testing.T) {
	t.Parallel()
	ledger := budget.NewMemLedger()
	ctx := context.Background()

	ok, err := ledger.Reserve(ctx, "t1", "2026-08-24", 0.01, 1.0)
	if err != nil || !ok {
		t.Fatalf("Reserve: ok=%v err=%v", ok, err)
	}
	if err := ledger.Commit(ctx, "t1", "2026-08-24", 0.01, 0.008, budget.ComponentGenerative); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	snap, err := ledger.Snapshot(ctx, "t1", "2026-08-24")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.SpentUSD != 0.008 {
		t.Errorf("SpentUSD: want 0.008, got %v", snap.SpentUSD)
	}
	if snap.ReservedUSD != 0 {
		t.Errorf("ReservedUSD: want 0 after commit, got %v", snap.ReservedUSD)
	}
	if snap.GenerativeCount != 1 {
		t.Errorf("GenerativeCount: want 1, got %d", snap.GenerativeCount)
	}
}

// ─── TestReserveDenied ───────────────────────────────────────────────────────

func TestReserveDenied(t *testing.T) {
	t.Parallel()
	ledger := budget.NewMemLedger()
	ctx := context.Background()

	// Spend 0.99 of a 1.00 ceiling, then ask for 0.02 more.
	if ok, _ := ledger.Reserve(ctx, "t1", "d", 0.99, 1.0); !ok {
		t.Fatal("initial reserve denied")
	}
	_ = ledger.Commit(ctx, "t1", "d", 0.99, 0.99, budget.ComponentGenerative)

	ok, err := ledger.Reserve(ctx, "t1", "d", 0.02, 1.0)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if ok {
		t.Error("Reserve: admitted past the ceiling")
	}
	snap, _ := ledger.Snapshot(ctx, "t1", "d")
	if snap.DeniedCount != 1 {
		t.Errorf("DeniedCount: want 1, got %d", snap.DeniedCount)
	}
	if snap.SpentUSD != 0.99 {
		t.Errorf("SpentUSD: denial must not change spend, got %v", snap.SpentUSD)
	}
}

// ─── TestReserveAtomicUnderConcurrency ───────────────────────────────────────

// TestReserveAtomicUnderConcurrency verifies that N concurrent reservations
// of cost c admit at most floor(ceiling/c) callers.
func TestReserveAtomicUnderConcurrency(t *testing.T) {
	t.Parallel()
	ledger := budget.NewMemLedger()
	ctx := context.Background()

	const (
		workers = 50
		cost    = 0.1
		ceiling = 1.0 // admits at most 10
	)
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := ledger.Reserve(ctx, "t1", "d", cost, ceiling)
			if err != nil {
				t.Errorf("Reserve: %v", err)
				return
			}
			if ok {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if admitted > 10 {
		t.Errorf("admitted %d reservations; ceiling allows 10", admitted)
	}
	if admitted < 10 {
		t.Errorf("admitted %d reservations; ceiling had room for 10", admitted)
	}
}

// ─── TestGovernorPolicyBands ─────────────────────────────────────────────────

// TestGovernorPolicyBands verifies the 80% high-value band and the hard
// ceiling.
func TestGovernorPolicyBands(t *testing.T) {
	t.Parallel()
	ledger := budget.NewMemLedger()
	g := budget.NewGovernor(ledger)
	ctx := context.Background()
	ten := proTenant(1.0)

	// Push spend to 85% of the ceiling.
	if ok, _ := ledger.Reserve(ctx, "t1", budget.Day(nowUTC()), 0.85, 1.0); !ok {
		t.Fatal("seed reserve denied")
	}
	_ = ledger.Commit(ctx, "t1", budget.Day(nowUTC()), 0.85, 0.85, budget.ComponentGenerative)

	// Normal call: denied (over the 80% band).
	res, err := g.Admit(ctx, ten, budget.ComponentGenerative, false)
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if res != nil {
		t.Error("Admit: normal call admitted above the 80% band")
		_ = res.Release(ctx)
	}

	// High-value call: admitted up to the full ceiling.
	res, err = g.Admit(ctx, ten, budget.ComponentGenerative, true)
	if err != nil {
		t.Fatalf("Admit high-value: %v", err)
	}
	if res == nil {
		t.Fatal("Admit: high-value call denied below the ceiling")
	}
	_ = res.Release(ctx)

	// Exhaust the ceiling: even high-value is denied.
	_ = ledger.Commit(ctx, "t1", budget.Day(nowUTC()), 0, 0.15, budget.ComponentGenerative)
	res, err = g.Admit(ctx, ten, budget.ComponentGenerative, true)
	if err != nil {
		t.Fatalf("Admit at ceiling: %v", err)
	}
	if res != nil {
		t.Error("Admit: high-value call admitted at a full ceiling")
		_ = res.Release(ctx)
	}
}

// ─── TestReservationReleaseIdempotent ────────────────────────────────────────

func TestReservationReleaseIdempotent(t *testing.T) {
	t.Parallel()
	ledger := budget.NewMemLedger()
	g := budget.NewGovernor(ledger)
	ctx := context.Background()

	res, err := g.Admit(ctx, proTenant(1.0), budget.ComponentClassifier, false)
	if err != nil || res == nil {
		t.Fatalf("Admit: res=%v err=%v", res, err)
	}
	if err := res.Release(ctx); err != nil {
		t.Fatalf("Release: %v", err)
	}
	// Second release and a late commit are both no-ops.
	if err := res.Release(ctx); err != nil {
		t.Fatalf("Release twice: %v", err)
	}
	if err := res.Commit(ctx, 0.5); err != nil {
		t.Fatalf("Commit after release: %v", err)
	}

	snap, _ := g.Snapshot(ctx, "t1")
	if snap.SpentUSD != 0 || snap.ReservedUSD != 0 {
		t.Errorf("bucket not clean after release: %+v", snap)
	}
}

// ─── TestOverrunHook ─────────────────────────────────────────────────────────

func TestOverrunHook(t *testing.T) {
	t.Parallel()
	ledger := budget.NewMemLedger()

	var gotActual float64
	g := budget.NewGovernor(ledger, budget.WithOverrunHook(
		func(_ string, _ budget.Component, _ float64, actual float64) {
			gotActual = actual
		}))
	ctx := context.Background()

	res, err := g.Admit(ctx, proTenant(10.0), budget.ComponentGenerative, false)
	if err != nil || res == nil {
		t.Fatalf("Admit: res=%v err=%v", res, err)
	}
	// More than 25% over the estimate triggers the hook.
	over := budget.EstimateGenerativeUSD * 2
	if err := res.Commit(ctx, over); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if gotActual != over {
		t.Errorf("overrun hook: want actual %v, got %v", over, gotActual)
	}
}

// ─── TestDenialHook ──────────────────────────────────────────────────────────

func TestDenialHook(t *testing.T) {
	t.Parallel()
	ledger := budget.NewMemLedger()

	var denials []budget.Component
	g := budget.NewGovernor(ledger, budget.WithDenialHook(
		func(tenantID string, component budget.Component) {
			if tenantID != "t1" {
				t.Errorf("denial hook tenant: want t1, got %q", tenantID)
			}
			denials = append(denials, component)
		}))
	ctx := context.Background()

	// A ceiling below the estimate denies by policy.
	res, err := g.Admit(ctx, proTenant(budget.EstimateGenerativeUSD/2), budget.ComponentGenerative, true)
	if err != nil || res != nil {
		t.Fatalf("Admit: res=%v err=%v, want policy denial", res, err)
	}
	if len(denials) != 1 || denials[0] != budget.ComponentGenerative {
		t.Fatalf("denials = %v, want [generative]", denials)
	}

	// Admitted calls do not fire the hook.
	res, err = g.Admit(ctx, proTenant(10.0), budget.ComponentClassifier, false)
	if err != nil || res == nil {
		t.Fatalf("Admit: res=%v err=%v", res, err)
	}
	_ = res.Release(ctx)
	if len(denials) != 1 {
		t.Errorf("denials = %v after an admitted call, want unchanged", denials)
	}
}

func nowUTC() time.Time { return time.Now() }
