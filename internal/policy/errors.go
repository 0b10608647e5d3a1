package policy

import "errors"

// Registry rejections are deterministic business-rule failures. They are
// returned synchronously to the caller and never retried internally.
var (
	ErrMissingSignature         = errors.New("policy signature missing")
	ErrInvalidSignature         = errors.New("policy signature invalid")
	ErrDuplicateVersion         = errors.New("duplicate policy version")
	ErrRetroactiveEffectiveFrom = errors.New("retroactive effective-from")
	ErrInvalidEffectiveRange    = errors.New("invalid effective range")
	ErrPolicyNotFound           = errors.New("policy not found")
	ErrInvalidDeprecationRange  = errors.New("invalid deprecation range")
)
