package budget

import (
	"context"
	"log/slog"
	"time"

	"github.com/aikyo-ai/aikyo/internal/tenant"
)

// Cost estimates per paid call, in USD. Reservations use these; the commit
// reconciles with the provider-reported actual. The values assume compact
// prompts (the pipeline sends a few hundred tokens per call) at current
// hosted-model list prices.
const (
	EstimateClassifierUSD = 0.0004
	EstimateGenerativeUSD = 0.0025
	EstimateEmbeddingUSD  = 0.00002
)

// Estimate returns the reservation amount for a component.
func Estimate(component Component) float64 {
	switch component {
	case ComponentClassifier:
		return EstimateClassifierUSD
	case ComponentGenerative:
		return EstimateGenerativeUSD
	case ComponentEmbedding:
		return EstimateEmbeddingUSD
	}
	return 0
}

// overrunTolerance is how far the actual cost may exceed the estimate before
// a warning is emitted.
const overrunTolerance = 1.25

// highValueShare is the spend fraction above which only high-value calls are
// admitted. Normal calls reserve against ceiling×highValueShare; high-value
// calls (≥2 special-case reasons, or the classifier running on rule
// abstention) get the full ceiling.
const highValueShare = 0.80

// Governor applies the admission policy over a [Ledger].
type Governor struct {
	ledger     Ledger
	defaultUSD float64
	log        *slog.Logger
	now        func() time.Time

	// onOverrun is invoked when an actual cost exceeds its estimate by more
	// than the tolerance. Wired to a warning metric by the app.
	onOverrun func(tenantID string, component Component, estimated, actual float64)

	// onDeny is invoked whenever Admit refuses a paid call, whether by
	// policy or because the ledger failed. Wired to a counter by the app.
	onDeny func(tenantID string, component Component)
}

// GovernorOption configures a [Governor].
type GovernorOption func(*Governor)

// WithDefaultDailyUSD sets the ceiling used for tenants without one.
func WithDefaultDailyUSD(usd float64) GovernorOption {
	return func(g *Governor) { g.defaultUSD = usd }
}

// WithLogger sets the governor's logger.
func WithLogger(log *slog.Logger) GovernorOption {
	return func(g *Governor) { g.log = log }
}

// WithOverrunHook registers a callback for estimate overruns.
func WithOverrunHook(fn func(tenantID string, component Component, estimated, actual float64)) GovernorOption {
	return func(g *Governor) { g.onOverrun = fn }
}

// WithDenialHook registers a callback for denied admissions.
func WithDenialHook(fn func(tenantID string, component Component)) GovernorOption {
	return func(g *Governor) { g.onDeny = fn }
}

// WithClock replaces the governor's clock. Test hook for UTC-day rollover.
func WithClock(now func() time.Time) GovernorOption {
	return func(g *Governor) { g.now = now }
}

// NewGovernor creates a Governor over ledger.
func NewGovernor(ledger Ledger, opts ...GovernorOption) *Governor {
	g := &Governor{
		ledger:     ledger,
		defaultUSD: 15.0,
		log:        slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Ceiling returns the effective daily ceiling for a tenant.
func (g *Governor) Ceiling(t *tenant.Tenant) float64 {
	if t != nil && t.DailyBudgetUSD > 0 {
		return t.DailyBudgetUSD
	}
	return g.defaultUSD
}

// Reservation is an admitted paid call. Exactly one of Commit or Release
// must be called; Release is safe to call after a failed provider call or a
// deadline expiry.
type Reservation struct {
	g         *Governor
	tenantID  string
	day       string
	component Component
	amount    float64
	settled   bool
}

// Admit asks whether a paid call for the tenant may proceed. A nil
// Reservation with a nil error means the call was denied by policy; the
// caller takes the cheap path. Ledger errors also deny (fail closed on
// cost), with the error returned for logging.
//
// highValue marks calls that stay admissible in the top spend band:
// dialogue with ≥2 special-case reasons, or the emotion classifier running
// on rule abstention.
func (g *Governor) Admit(ctx context.Context, t *tenant.Tenant, component Component, highValue bool) (*Reservation, error) {
	ceiling := g.Ceiling(t)
	if !highValue {
		ceiling *= highValueShare
	}
	amount := Estimate(component)
	day := Day(g.now())

	ok, err := g.ledger.Reserve(ctx, t.ID, day, amount, ceiling)
	if err != nil {
		g.log.Warn("budget: reserve failed, denying paid call",
			"tenant", t.ID, "component", string(component), "error", err)
		if g.onDeny != nil {
			g.onDeny(t.ID, component)
		}
		return nil, err
	}
	if !ok {
		if g.onDeny != nil {
			g.onDeny(t.ID, component)
		}
		return nil, nil
	}
	return &Reservation{
		g:         g,
		tenantID:  t.ID,
		day:       day,
		component: component,
		amount:    amount,
	}, nil
}

// Commit settles the reservation with the actual cost reported by the
// provider.
func (r *Reservation) Commit(ctx context.Context, actualUSD float64) error {
	if r == nil || r.settled {
		return nil
	}
	r.settled = true
	if actualUSD > r.amount*overrunTolerance {
		r.g.log.Warn("budget: actual cost exceeded estimate",
			"tenant", r.tenantID, "component", string(r.component),
			"estimated", r.amount, "actual", actualUSD)
		if r.g.onOverrun != nil {
			r.g.onOverrun(r.tenantID, r.component, r.amount, actualUSD)
		}
	}
	return r.g.ledger.Commit(ctx, r.tenantID, r.day, r.amount, actualUSD, r.component)
}

// Release returns the reservation without spending. Idempotent.
func (r *Reservation) Release(ctx context.Context) error {
	if r == nil || r.settled {
		return nil
	}
	r.settled = true
	return r.g.ledger.Release(ctx, r.tenantID, r.day, r.amount)
}

// Snapshot reads the tenant's bucket for today.
func (g *Governor) Snapshot(ctx context.Context, tenantID string) (Snapshot, error) {
	return g.ledger.Snapshot(ctx, tenantID, Day(g.now()))
}
