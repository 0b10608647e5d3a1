package anchor_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/provenant/chainledger/internal/anchor"
	"github.com/provenant/chainledger/internal/ledger"
)

var ctx = context.Background()

// newFixture returns a service anchored over a live ledger store, with rate
// limiting disabled.
func newFixture() (*anchor.Service, *ledger.Ledger, *ledger.MemoryStore) {
	entries := ledger.NewMemoryStore()
	l := ledger.New(entries, nil, nil)
	svc := anchor.NewService(entries, anchor.NewMemoryStore(), nil)
	svc.SetMinInterval(0)
	return svc, l, entries
}

func TestAnchor_emptyLedger(t *testing.T) {
	svc, _, _ := newFixture()

	a, err := svc.Anchor(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if a.EntryCount != 0 {
		t.Errorf("entry count: got %d, want 0", a.EntryCount)
	}
	if want := sha256Hex(nil); a.RootHash != want {
		t.Errorf("root of empty ledger: got %q, want %q", a.RootHash, want)
	}
}

func TestAnchor_coversAllScopes(t *testing.T) {
	svc, l, entries := newFixture()
	for i := 0; i < 5; i++ {
		scope := fmt.Sprintf("acct-%d", i%2)
		if _, err := l.Append(ctx, scope, fmt.Appendf(nil, "p%d", i)); err != nil {
			t.Fatal(err)
		}
	}

	a, err := svc.Anchor(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if a.EntryCount != 5 {
		t.Errorf("entry count: got %d, want 5", a.EntryCount)
	}

	hashes, _ := entries.ListHashes(ctx)
	if want := anchor.ComputeRoot(hashes); a.RootHash != want {
		t.Errorf("root: got %q, want %q", a.RootHash, want)
	}
}

func TestVerifyAnchor_ok(t *testing.T) {
	svc, l, _ := newFixture()
	for i := 0; i < 3; i++ {
		if _, err := l.Append(ctx, "acct-1", fmt.Appendf(nil, "p%d", i)); err != nil {
			t.Fatal(err)
		}
	}

	a, err := svc.Anchor(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.VerifyAnchor(ctx, a.ID); err != nil {
		t.Errorf("VerifyAnchor on intact ledger: %v", err)
	}
}

func TestVerifyAnchor_survivesLaterAppends(t *testing.T) {
	svc, l, _ := newFixture()
	_, _ = l.Append(ctx, "acct-1", []byte("p0"))
	_, _ = l.Append(ctx, "acct-1", []byte("p1"))

	a, err := svc.Anchor(ctx)
	if err != nil {
		t.Fatal(err)
	}

	// Growth after the anchor does not invalidate it: verification covers
	// only the first EntryCount hashes.
	_, _ = l.Append(ctx, "acct-2", []byte("p2"))
	if err := svc.VerifyAnchor(ctx, a.ID); err != nil {
		t.Errorf("anchor should still verify after later appends: %v", err)
	}
}

func TestVerifyAnchor_notFound(t *testing.T) {
	svc, _, _ := newFixture()
	err := svc.VerifyAnchor(ctx, uuid.New())
	if !errors.Is(err, anchor.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

// shrinkingSource simulates history rewritten under an existing anchor.
type shrinkingSource struct {
	hashes []string
}

func (s *shrinkingSource) ListHashes(context.Context) ([]string, error) {
	return s.hashes, nil
}

func TestVerifyAnchor_detectsRewrittenHistory(t *testing.T) {
	src := &shrinkingSource{hashes: []string{
		sha256Hex([]byte("a")), sha256Hex([]byte("b")), sha256Hex([]byte("c")),
	}}
	svc := anchor.NewService(src, anchor.NewMemoryStore(), nil)
	svc.SetMinInterval(0)

	a, err := svc.Anchor(ctx)
	if err != nil {
		t.Fatal(err)
	}

	src.hashes[1] = sha256Hex([]byte("doctored"))
	if err := svc.VerifyAnchor(ctx, a.ID); !errors.Is(err, anchor.ErrMismatch) {
		t.Errorf("got %v, want ErrMismatch", err)
	}

	src.hashes = src.hashes[:1]
	if err := svc.VerifyAnchor(ctx, a.ID); !errors.Is(err, anchor.ErrMismatch) {
		t.Errorf("truncated history: got %v, want ErrMismatch", err)
	}
}

func TestAnchor_repeatedRunsProduceDuplicateAnchors(t *testing.T) {
	svc, l, _ := newFixture()
	_, _ = l.Append(ctx, "acct-1", []byte("p"))

	a1, err := svc.Anchor(ctx)
	if err != nil {
		t.Fatal(err)
	}
	a2, err := svc.Anchor(ctx)
	if err != nil {
		t.Fatal(err)
	}

	// Not idempotent: distinct anchors, identical roots and counts.
	if a1.ID == a2.ID {
		t.Error("repeated anchors must be distinct records")
	}
	if a1.RootHash != a2.RootHash || a1.EntryCount != a2.EntryCount {
		t.Error("repeated anchors over an unchanged ledger must agree on root and count")
	}
}

func TestAnchor_rateLimited(t *testing.T) {
	entries := ledger.NewMemoryStore()
	svc := anchor.NewService(entries, anchor.NewMemoryStore(), nil)
	svc.SetMinInterval(time.Hour)

	if _, err := svc.Anchor(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Anchor(ctx); !errors.Is(err, anchor.ErrRateLimited) {
		t.Errorf("got %v, want ErrRateLimited", err)
	}
}
