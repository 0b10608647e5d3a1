package policy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/provenant/chainledger/internal/metrics"
	"go.uber.org/zap"
)

// Verifier checks a policy's signature. It is an external capability: the
// registry consumes it but does not implement it. A nil Verifier disables
// signature enforcement entirely.
type Verifier interface {
	Verify(p *Policy) bool
}

// Registry is the temporal policy and offer registry. Billing events are
// resolved through it before they are appended to the ledger, so every
// rejection here is surfaced synchronously — no charge is applied against an
// unresolved or invalid policy.
type Registry struct {
	repo     Repository
	verifier Verifier // nil = no signature enforcement
	logger   *zap.Logger
}

// NewRegistry creates a Registry. verifier may be nil to disable signature
// enforcement.
func NewRegistry(repo Repository, verifier Verifier, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{repo: repo, verifier: verifier, logger: logger}
}

// AddPolicy validates and persists a policy. Checks run in a fixed order:
// signature, duplicate version, retroactive effectiveFrom, invalid range.
// The last three execute atomically inside the repository under per-scope
// exclusion.
func (r *Registry) AddPolicy(ctx context.Context, p *Policy) error {
	if r.verifier != nil {
		if p.Signature == "" {
			metrics.RecordPolicyRejection("missing_signature")
			return ErrMissingSignature
		}
		if !r.verifier.Verify(p) {
			metrics.RecordPolicyRejection("invalid_signature")
			return ErrInvalidSignature
		}
	}

	if err := r.repo.InsertPolicy(ctx, p); err != nil {
		switch {
		case errors.Is(err, ErrDuplicateVersion):
			metrics.RecordPolicyRejection("duplicate_version")
		case errors.Is(err, ErrRetroactiveEffectiveFrom):
			metrics.RecordPolicyRejection("retroactive_effective_from")
		case errors.Is(err, ErrInvalidEffectiveRange):
			metrics.RecordPolicyRejection("invalid_effective_range")
		}
		return err
	}

	r.logger.Info("policy added",
		zap.String("policy_id", p.PolicyID),
		zap.String("version", p.Version),
		zap.String("scope", p.Scope),
		zap.Time("effective_from", p.EffectiveFrom),
	)
	return nil
}

// DeprecatePolicy shortens a policy's effectiveUntil. The new bound must lie
// strictly after the policy's effectiveFrom.
func (r *Registry) DeprecatePolicy(ctx context.Context, policyID, version string, until time.Time) error {
	if err := r.repo.DeprecatePolicy(ctx, policyID, version, until); err != nil {
		return err
	}
	r.logger.Info("policy deprecated",
		zap.String("policy_id", policyID),
		zap.String("version", version),
		zap.Time("effective_until", until),
	)
	return nil
}

// ResolvePolicy returns the policy governing scope at the given instant: the
// active policy with the greatest effectiveFrom, ties broken by the most
// recent insertion. Returns nil when no policy applies.
func (r *Registry) ResolvePolicy(ctx context.Context, scope string, at time.Time) (*Policy, error) {
	candidates, err := r.repo.PoliciesByScope(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("resolve policy for %q: %w", scope, err)
	}
	return pickLatest(candidates, at), nil
}

// ResolvePolicyForEngine resolves the policy governing an engine using
// two-tier resolution. Tier 1 considers the exact "activity:<engine>" scope
// and always wins when it has any active policy, regardless of recency.
// Tier 2 falls back to "activity"-scoped policies whose payload names the
// engine.
func (r *Registry) ResolvePolicyForEngine(ctx context.Context, engine string, at time.Time) (*Policy, error) {
	exact, err := r.ResolvePolicy(ctx, activityScopePrefix+engine, at)
	if err != nil {
		return nil, err
	}
	if exact != nil {
		return exact, nil
	}

	generic, err := r.repo.PoliciesByScope(ctx, activityScope)
	if err != nil {
		return nil, fmt.Errorf("resolve policy for engine %q: %w", engine, err)
	}

	var matching []*Policy
	for _, p := range generic {
		if payloadEngine(p.Payload) == engine {
			matching = append(matching, p)
		}
	}
	return pickLatest(matching, at), nil
}

// EligibleOffers returns the offers active at the given instant whose scope
// is ScopeAll or equals scope.
func (r *Registry) EligibleOffers(ctx context.Context, scope string, at time.Time) ([]*Offer, error) {
	return r.repo.OffersActiveAt(ctx, scope, at)
}

// AddOffer validates and persists an offer.
func (r *Registry) AddOffer(ctx context.Context, o *Offer) error {
	if err := r.repo.InsertOffer(ctx, o); err != nil {
		if errors.Is(err, ErrInvalidEffectiveRange) {
			metrics.RecordPolicyRejection("invalid_effective_range")
		}
		return err
	}
	return nil
}

// PolicyHistory returns a scope's full policy audit trail, ascending by
// effectiveFrom.
func (r *Registry) PolicyHistory(ctx context.Context, scope string) ([]*Policy, error) {
	return r.repo.PoliciesByScope(ctx, scope)
}

// pickLatest returns the candidate active at `at` with the greatest
// EffectiveFrom; on equal EffectiveFrom the later insertion wins.
// Candidates must be in insertion order for a scope.
func pickLatest(candidates []*Policy, at time.Time) *Policy {
	var best *Policy
	for _, p := range candidates {
		if !p.ActiveAt(at) {
			continue
		}
		if best == nil || !p.EffectiveFrom.Before(best.EffectiveFrom) {
			best = p
		}
	}
	return best
}
