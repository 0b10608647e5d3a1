package policy

import (
	"context"
	"time"
)

// Repository is the persistence interface for policies and offers.
//
// InsertPolicy owns the check-then-insert sequence required by the
// monotonicity invariant: the duplicate, retroactivity, and range checks and
// the insert itself must execute under exclusion scoped to the policy's
// scope, so two concurrent inserts cannot both pass against a stale
// snapshot. Checks run in a fixed order — duplicate version, retroactive
// effectiveFrom, invalid range — and report the matching sentinel error.
type Repository interface {
	InsertPolicy(ctx context.Context, p *Policy) error

	// DeprecatePolicy shortens the matched policy's EffectiveUntil.
	// ErrPolicyNotFound when (policyID, version) does not exist;
	// ErrInvalidDeprecationRange when until <= the policy's EffectiveFrom.
	DeprecatePolicy(ctx context.Context, policyID, version string, until time.Time) error

	// PoliciesByScope returns all policies for scope ascending by
	// EffectiveFrom, insertion order within ties.
	PoliciesByScope(ctx context.Context, scope string) ([]*Policy, error)

	// InsertOffer validates the offer's effective range
	// (ErrInvalidEffectiveRange) and persists it. No uniqueness constraint.
	InsertOffer(ctx context.Context, o *Offer) error

	// OffersActiveAt returns offers active at the given instant whose scope
	// is ScopeAll or equals scope.
	OffersActiveAt(ctx context.Context, scope string, at time.Time) ([]*Offer, error)
}
