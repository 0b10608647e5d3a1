// Package ledger implements the tamper-evident billing ledger: one
// append-only, hash-linked chain of entries per scope key.
//
// Every entry's hash covers its predecessor's hash, so a retroactive edit
// anywhere in a scope's history is detectable by VerifyChain. Chains start
// from GenesisHash (the SHA-256 of the empty string). Appends to the same
// scope are serialised by a compare-and-set on the chain head; appends to
// different scopes proceed in parallel.
//
// Two Store implementations are provided:
//   - MemoryStore: in-process, for testing and development.
//   - PostgresStore: durable, for production use.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/provenant/chainledger/internal/metrics"
	"go.uber.org/zap"
)

// ErrConcurrentAppend is returned when an append loses the head race for its
// scope and the bounded retry budget is exhausted.
var ErrConcurrentAppend = errors.New("concurrent append conflict")

// ErrChainVerification is returned by VerifyChain when a stored entry does
// not match its recomputed hash or its predecessor's hash.
var ErrChainVerification = errors.New("chain verification failed")

// appendRetries bounds how many times Append refreshes the head and retries
// after losing a CAS race before surfacing ErrConcurrentAppend.
const appendRetries = 3

// Store is the persistence interface for ledger entries.
type Store interface {
	// Head returns the current chain tip hash for a scope, or "" when the
	// scope has no entries.
	Head(ctx context.Context, scopeKey string) (string, error)

	// Insert persists e if and only if the scope's head still equals
	// expectedHead ("" for an empty scope). Returns ErrConcurrentAppend
	// when another append won the race.
	Insert(ctx context.Context, e *Entry, expectedHead string) error

	// List returns a scope's entries in chain order (ascending CreatedAt).
	List(ctx context.Context, scopeKey string) ([]*Entry, error)

	// ListHashes returns every entry hash across all scopes, ascending by
	// CreatedAt. This is the ordering the anchor service snapshots.
	ListHashes(ctx context.Context) ([]string, error)
}

// Ledger provides append and audit operations over a Store.
type Ledger struct {
	store  Store
	feed   *Feed // nil = no event distribution
	logger *zap.Logger
}

// New creates a Ledger. feed may be nil to disable event distribution.
func New(store Store, feed *Feed, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{store: store, feed: feed, logger: logger}
}

// Append adds a new entry to scopeKey's chain. The entry hash is computed
// from the observed head and the payload, and the insert is guarded by a
// compare-and-set on that head. A lost race is retried with a refreshed head
// up to appendRetries times before ErrConcurrentAppend is surfaced.
func (l *Ledger) Append(ctx context.Context, scopeKey string, payload []byte) (*Entry, error) {
	var lastErr error
	for attempt := 0; attempt < appendRetries; attempt++ {
		head, err := l.store.Head(ctx, scopeKey)
		if err != nil {
			return nil, fmt.Errorf("read chain head: %w", err)
		}

		prev := head
		if prev == "" {
			prev = GenesisHash
		}

		e := &Entry{
			ScopeKey:  scopeKey,
			PrevHash:  prev,
			Payload:   payload,
			CreatedAt: time.Now().UTC(),
		}
		e.EntryHash = chainHash(e.PrevHash, e.Payload)

		err = l.store.Insert(ctx, e, head)
		if err == nil {
			metrics.RecordAppend()
			if l.feed != nil {
				l.feed.Publish(e)
			}
			l.logger.Debug("ledger entry appended",
				zap.String("scope", scopeKey),
				zap.String("hash", e.EntryHash),
				zap.Int("attempt", attempt+1),
			)
			return e, nil
		}
		if !errors.Is(err, ErrConcurrentAppend) {
			return nil, fmt.Errorf("insert ledger entry: %w", err)
		}

		metrics.RecordAppendConflict()
		lastErr = err
	}
	return nil, fmt.Errorf("append to scope %q: %w", scopeKey, lastErr)
}

// Head returns the current chain tip for scopeKey, or "" when the scope has
// no entries.
func (l *Ledger) Head(ctx context.Context, scopeKey string) (string, error) {
	return l.store.Head(ctx, scopeKey)
}

// VerifyChain recomputes every entry hash in scopeKey's chain from genesis
// forward and compares against the stored values. Any mismatch is tampering
// and is reported as ErrChainVerification with position detail; it is never
// corrected.
func (l *Ledger) VerifyChain(ctx context.Context, scopeKey string) error {
	entries, err := l.store.List(ctx, scopeKey)
	if err != nil {
		return fmt.Errorf("list scope %q: %w", scopeKey, err)
	}

	prev := GenesisHash
	for i, e := range entries {
		if e.PrevHash != prev {
			metrics.RecordVerifyFailure()
			return fmt.Errorf("%w: scope %q entry %d links to %q, want %q",
				ErrChainVerification, scopeKey, i, e.PrevHash, prev)
		}
		if got := chainHash(e.PrevHash, e.Payload); got != e.EntryHash {
			metrics.RecordVerifyFailure()
			return fmt.Errorf("%w: scope %q entry %d stored hash %q, recomputed %q",
				ErrChainVerification, scopeKey, i, e.EntryHash, got)
		}
		prev = e.EntryHash
	}
	return nil
}
