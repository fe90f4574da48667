// Package tenant defines the tenant boundary of the pipeline: the read-only
// view of a tenant that the core consumes (tier, daily budget, feature
// flags) and the player profile defaults resolved per request.
//
// The authoritative tenant store lives outside the core; this package only
// specifies the [Store] interface plus an in-memory reference implementation
// loaded from configuration.
package tenant

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no tenant matches the given key or id.
var ErrNotFound = errors.New("tenant: not found")

// Tier classifies a tenant's subscription level.
type Tier string

const (
	TierFree       Tier = "free"
	TierStandard   Tier = "standard"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

// IsValid reports whether t is a known tier.
func (t Tier) IsValid() bool {
	switch t {
	case TierFree, TierStandard, TierPro, TierEnterprise:
		return true
	}
	return false
}

// Tenant is the pipeline's read-only view of a platform tenant.
type Tenant struct {
	// ID is the stable tenant identifier.
	ID string

	// Name is the human-readable tenant name.
	Name string

	// Tier is the subscription level.
	Tier Tier

	// APIKey authenticates SDK requests for this tenant.
	APIKey string

	// DailyBudgetUSD is the paid-call ceiling per UTC day. Zero means the
	// operator default applies.
	DailyBudgetUSD float64

	// Active gates all traffic. Inactive tenants are rejected at the edge.
	Active bool

	// ForceGenerativeOff disables the generative dialogue path regardless of
	// budget or special-case signals.
	ForceGenerativeOff bool

	// Languages whitelists response languages. Empty allows all supported
	// languages.
	Languages []string

	// RatePerMinute caps inbound events per minute. Zero means the operator
	// default applies.
	RatePerMinute int
}

// AllowsLanguage reports whether lang passes the tenant's language
// whitelist. An empty whitelist allows everything.
func (t *Tenant) AllowsLanguage(lang Language) bool {
	if len(t.Languages) == 0 {
		return true
	}
	for _, l := range t.Languages {
		if Language(l) == lang {
			return true
		}
	}
	return false
}

// Store is the boundary interface to the external tenant service.
// Implementations must be safe for concurrent use.
type Store interface {
	// Authenticate resolves an API key to its tenant.
	// Returns [ErrNotFound] for unknown keys. Inactive tenants are returned
	// with Active=false; rejecting them is the caller's decision (the edge
	// distinguishes auth failure from an inactive tenant).
	Authenticate(ctx context.Context, apiKey string) (*Tenant, error)

	// Get resolves a tenant id. Returns [ErrNotFound] for unknown ids.
	Get(ctx context.Context, id string) (*Tenant, error)
}
