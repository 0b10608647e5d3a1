package policy

import (
	"context"
	"sync"
	"time"
)

// MemoryRepository is an in-memory, thread-safe Repository for testing and
// development. A single mutex covers all policy sets, which trivially gives
// the per-scope exclusion InsertPolicy requires.
type MemoryRepository struct {
	mu       sync.RWMutex
	policies []*Policy
	offers   []*Offer
	nextSeq  int64
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

// InsertPolicy implements Repository.
func (r *MemoryRepository) InsertPolicy(_ context.Context, p *Policy) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.policies {
		if existing.PolicyID == p.PolicyID && existing.Version == p.Version {
			return ErrDuplicateVersion
		}
	}

	var latest *time.Time
	for _, existing := range r.policies {
		if existing.Scope != p.Scope {
			continue
		}
		if latest == nil || existing.EffectiveFrom.After(*latest) {
			from := existing.EffectiveFrom
			latest = &from
		}
	}
	if latest != nil && p.EffectiveFrom.Before(*latest) {
		return ErrRetroactiveEffectiveFrom
	}

	if p.EffectiveUntil != nil && !p.EffectiveUntil.After(p.EffectiveFrom) {
		return ErrInvalidEffectiveRange
	}

	cp := *p
	r.nextSeq++
	cp.Seq = r.nextSeq
	r.policies = append(r.policies, &cp)
	p.Seq = cp.Seq
	return nil
}

// DeprecatePolicy implements Repository.
func (r *MemoryRepository) DeprecatePolicy(_ context.Context, policyID, version string, until time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.policies {
		if p.PolicyID != policyID || p.Version != version {
			continue
		}
		if !until.After(p.EffectiveFrom) {
			return ErrInvalidDeprecationRange
		}
		u := until
		p.EffectiveUntil = &u
		return nil
	}
	return ErrPolicyNotFound
}

// PoliciesByScope implements Repository. Because inserts enforce
// non-decreasing EffectiveFrom per scope, insertion order is already
// ascending by EffectiveFrom with stable ties.
func (r *MemoryRepository) PoliciesByScope(_ context.Context, scope string) ([]*Policy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Policy
	for _, p := range r.policies {
		if p.Scope == scope {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

// InsertOffer implements Repository.
func (r *MemoryRepository) InsertOffer(_ context.Context, o *Offer) error {
	if o.EffectiveUntil != nil && !o.EffectiveUntil.After(o.EffectiveFrom) {
		return ErrInvalidEffectiveRange
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *o
	r.offers = append(r.offers, &cp)
	return nil
}

// OffersActiveAt implements Repository.
func (r *MemoryRepository) OffersActiveAt(_ context.Context, scope string, at time.Time) ([]*Offer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Offer
	for _, o := range r.offers {
		if o.Scope != ScopeAll && o.Scope != scope {
			continue
		}
		if !o.ActiveAt(at) {
			continue
		}
		cp := *o
		out = append(out, &cp)
	}
	return out, nil
}
