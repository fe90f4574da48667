// Package budget enforces the per-tenant daily cost ceiling on paid AI
// calls. The [Ledger] keeps the authoritative spend per {tenant, UTC day};
// the [Governor] layers the admission policy on top: estimate a call's
// cost, atomically reserve it against the ceiling, and reconcile with the
// actual cost afterwards.
//
// Budget exhaustion is a policy outcome, not an error: callers that are
// denied skip the paid branch and produce the reply via the cheap path.
package budget

import (
	"context"
	"time"
)

// Component identifies which paid branch a reservation belongs to.
type Component string

const (
	// ComponentClassifier is the Emotion Engine's paid classifier pass.
	ComponentClassifier Component = "classifier"

	// ComponentGenerative is the Dialogue Engine's paid generative path.
	ComponentGenerative Component = "generative"

	// ComponentEmbedding is the Memory Engine's embedding call.
	ComponentEmbedding Component = "embedding"
)

// Day formats t as the UTC-day bucket key. All budget accounting resets at
// UTC midnight.
func Day(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// Snapshot is a point-in-time view of one budget bucket.
type Snapshot struct {
	// SpentUSD is the committed spend for the day.
	SpentUSD float64

	// ReservedUSD is the sum of outstanding (uncommitted) reservations.
	ReservedUSD float64

	// DeniedCount counts admission denials.
	DeniedCount int64

	// GenerativeCount counts committed generative calls.
	GenerativeCount int64

	// ClassifierCount counts committed classifier calls.
	ClassifierCount int64
}

// Ledger is the authoritative per-tenant per-UTC-day cost store.
//
// Reserve must be atomic: across concurrent calls the sum of spent and
// reserved never exceeds the ceiling, so two requests cannot both squeeze
// under it. Implementations must be safe for concurrent use.
type Ledger interface {
	// Reserve attempts to set aside amount USD under the given ceiling.
	// It returns false (with no error) when the reservation would push
	// spent+reserved past the ceiling; in that case the bucket's denied
	// counter is incremented.
	Reserve(ctx context.Context, tenant, day string, amount, ceiling float64) (bool, error)

	// Commit converts a reservation into spend: reserved drops by the
	// reserved amount, spent grows by the actual amount, and the per-
	// component counter is incremented.
	Commit(ctx context.Context, tenant, day string, reserved, actual float64, component Component) error

	// Release returns a reservation without spending (cancelled or timed-out
	// paid call).
	Release(ctx context.Context, tenant, day string, reserved float64) error

	// Snapshot reads the bucket. A bucket that was never written reads as
	// all zeroes.
	Snapshot(ctx context.Context, tenant, day string) (Snapshot, error)
}
