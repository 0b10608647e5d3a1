// Package policy implements the temporal policy and offer registry: signed
// governance rules with effective-time ranges, resolved per scope at an
// instant.
//
// Policies for a scope are insert-ordered with non-decreasing effectiveFrom
// (no retroactive inserts), so a scope's history file reads forward in time.
// Resolution picks the active policy with the greatest effectiveFrom;
// engine resolution prefers an exact "activity:<engine>" scope over the
// generic "activity" scope regardless of recency.
package policy

import (
	"encoding/json"
	"time"
)

// ScopeAll marks an offer as applicable to every scope.
const ScopeAll = "all"

// activityScope policies govern engines generically; their payload names the
// engine they apply to.
const (
	activityScope       = "activity"
	activityScopePrefix = "activity:"
)

// Policy is a signed governance rule with an effective-time range.
// EffectiveUntil == nil means open-ended.
type Policy struct {
	PolicyID       string          `json:"policy_id"`
	Version        string          `json:"version"`
	Scope          string          `json:"scope"`
	EffectiveFrom  time.Time       `json:"effective_from"`
	EffectiveUntil *time.Time      `json:"effective_until,omitempty"`
	Payload        json.RawMessage `json:"payload"`
	Signature      string          `json:"signature,omitempty"`

	// Seq is the insertion sequence assigned by the repository; it breaks
	// ties between policies sharing an EffectiveFrom (latest insert wins).
	Seq int64 `json:"-"`
}

// ActiveAt reports whether the policy's effective range covers at:
// effectiveFrom <= at < effectiveUntil.
func (p *Policy) ActiveAt(at time.Time) bool {
	if at.Before(p.EffectiveFrom) {
		return false
	}
	return p.EffectiveUntil == nil || at.Before(*p.EffectiveUntil)
}

// Offer is a time-ranged promotion. Offers carry no signature and have no
// uniqueness constraint; Scope is either ScopeAll or a specific scope.
type Offer struct {
	OfferID        string          `json:"offer_id"`
	Scope          string          `json:"scope"`
	EffectiveFrom  time.Time       `json:"effective_from"`
	EffectiveUntil *time.Time      `json:"effective_until,omitempty"`
	Payload        json.RawMessage `json:"payload"`
}

// ActiveAt reports whether the offer's effective range covers at.
func (o *Offer) ActiveAt(at time.Time) bool {
	if at.Before(o.EffectiveFrom) {
		return false
	}
	return o.EffectiveUntil == nil || at.Before(*o.EffectiveUntil)
}

// payloadEngine extracts the "engine" field from a policy payload, or ""
// when absent or unparseable.
func payloadEngine(raw json.RawMessage) string {
	var body struct {
		Engine string `json:"engine"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	return body.Engine
}
