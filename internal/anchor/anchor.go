// Package anchor implements periodic Merkle-root anchoring over the ledger.
//
// Each anchor is a checkpoint: the Merkle root of every entry hash in the
// ledger, ordered by creation time across all scopes, plus the count of
// entries covered. Anchoring is deliberately not idempotent — every run
// snapshots the full current history, and repeated runs over an unchanged
// ledger produce duplicate anchors with identical roots. Anchors form a
// verifiable log of snapshots, not a deduplicated state.
package anchor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/provenant/chainledger/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	// ErrNotFound is returned when no anchor exists for the requested ID.
	ErrNotFound = errors.New("anchor not found")

	// ErrMismatch is returned when an anchor's stored root does not match
	// the root recomputed over the entries it covers.
	ErrMismatch = errors.New("anchor root mismatch")

	// ErrRateLimited is returned when Anchor is invoked faster than the
	// configured minimum interval allows.
	ErrRateLimited = errors.New("anchor rate limited")
)

// Anchor is a persisted Merkle checkpoint over the ledger.
type Anchor struct {
	ID         uuid.UUID `json:"id"`
	RootHash   string    `json:"root_hash"`
	EntryCount int       `json:"entry_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// EntrySource supplies the ordered entry hashes to anchor over. Both ledger
// store implementations satisfy this interface.
type EntrySource interface {
	ListHashes(ctx context.Context) ([]string, error)
}

// Store is the persistence interface for anchors.
type Store interface {
	Save(ctx context.Context, a *Anchor) error
	Get(ctx context.Context, id uuid.UUID) (*Anchor, error)
}

// Service computes and verifies Merkle anchors.
type Service struct {
	entries EntrySource
	store   Store
	logger  *zap.Logger

	mu      sync.Mutex // excludes concurrent Anchor runs
	limiter *rate.Limiter
}

// NewService creates a Service. By default at most one anchor per minute is
// allowed; use SetMinInterval to tune.
func NewService(entries EntrySource, store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		entries: entries,
		store:   store,
		logger:  logger,
		limiter: rate.NewLimiter(rate.Every(time.Minute), 1),
	}
}

// SetMinInterval sets the minimum spacing between Anchor invocations.
// Zero or negative disables rate limiting.
func (s *Service) SetMinInterval(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d <= 0 {
		s.limiter = nil
		return
	}
	s.limiter = rate.NewLimiter(rate.Every(d), 1)
}

// Anchor snapshots the full ledger history into a new persisted anchor.
// Concurrent invocations are mutually excluded; invocations arriving faster
// than the minimum interval fail with ErrRateLimited.
func (s *Service) Anchor(ctx context.Context) (*Anchor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.limiter != nil && !s.limiter.Allow() {
		return nil, ErrRateLimited
	}

	hashes, err := s.entries.ListHashes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list entry hashes: %w", err)
	}

	a := &Anchor{
		ID:         uuid.New(),
		RootHash:   ComputeRoot(hashes),
		EntryCount: len(hashes),
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.store.Save(ctx, a); err != nil {
		return nil, fmt.Errorf("save anchor: %w", err)
	}

	metrics.RecordAnchor(a.EntryCount)
	s.logger.Info("ledger anchored",
		zap.String("anchor_id", a.ID.String()),
		zap.String("root", a.RootHash),
		zap.Int("entries", a.EntryCount),
	)
	return a, nil
}

// VerifyAnchor recomputes the Merkle root over the first EntryCount entry
// hashes as ordered today and compares it to the stored root. A mismatch
// means the anchored prefix of the ledger has changed since the anchor was
// issued.
func (s *Service) VerifyAnchor(ctx context.Context, id uuid.UUID) error {
	a, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}

	hashes, err := s.entries.ListHashes(ctx)
	if err != nil {
		return fmt.Errorf("list entry hashes: %w", err)
	}
	if len(hashes) < a.EntryCount {
		return fmt.Errorf("%w: anchor covers %d entries, ledger has %d",
			ErrMismatch, a.EntryCount, len(hashes))
	}

	if root := ComputeRoot(hashes[:a.EntryCount]); root != a.RootHash {
		return fmt.Errorf("%w: stored %q, recomputed %q", ErrMismatch, a.RootHash, root)
	}
	return nil
}
