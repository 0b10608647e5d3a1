package ledger_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/provenant/chainledger/internal/ledger"
)

var ctx = context.Background()

func sha256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// foldHash recomputes the expected head after appending payloads in order.
func foldHash(payloads [][]byte) string {
	head := ledger.GenesisHash
	for _, p := range payloads {
		h := sha256.New()
		h.Write([]byte(head))
		h.Write(p)
		head = hex.EncodeToString(h.Sum(nil))
	}
	return head
}

func TestGenesisHash_isEmptyStringDigest(t *testing.T) {
	if got := sha256Hex(nil); got != ledger.GenesisHash {
		t.Errorf("GenesisHash: got %q, want %q", ledger.GenesisHash, got)
	}
}

func TestHead_emptyScope(t *testing.T) {
	l := ledger.New(ledger.NewMemoryStore(), nil, nil)

	head, err := l.Head(ctx, "acct-1")
	if err != nil {
		t.Fatal(err)
	}
	if head != "" {
		t.Errorf("head of empty scope: got %q, want empty", head)
	}
}

func TestAppend_chainsAndVerifies(t *testing.T) {
	l := ledger.New(ledger.NewMemoryStore(), nil, nil)

	payloads := [][]byte{
		[]byte(`{"amount":100}`),
		[]byte(`{"amount":250}`),
		[]byte(`{"amount":-30}`),
	}
	var last *ledger.Entry
	for _, p := range payloads {
		e, err := l.Append(ctx, "acct-1", p)
		if err != nil {
			t.Fatal(err)
		}
		if last != nil && e.PrevHash != last.EntryHash {
			t.Errorf("chain broken: PrevHash=%q, want %q", e.PrevHash, last.EntryHash)
		}
		last = e
	}

	head, err := l.Head(ctx, "acct-1")
	if err != nil {
		t.Fatal(err)
	}
	if want := foldHash(payloads); head != want {
		t.Errorf("head: got %q, want folded %q", head, want)
	}

	if err := l.VerifyChain(ctx, "acct-1"); err != nil {
		t.Errorf("VerifyChain on intact chain: %v", err)
	}
}

func TestAppend_firstEntryLinksToGenesis(t *testing.T) {
	l := ledger.New(ledger.NewMemoryStore(), nil, nil)

	e, err := l.Append(ctx, "acct-1", []byte("p"))
	if err != nil {
		t.Fatal(err)
	}
	if e.PrevHash != ledger.GenesisHash {
		t.Errorf("first entry PrevHash: got %q, want GenesisHash", e.PrevHash)
	}
}

func TestAppend_scopesAreIndependent(t *testing.T) {
	store := ledger.NewMemoryStore()
	l := ledger.New(store, nil, nil)

	a, _ := l.Append(ctx, "acct-a", []byte("a1"))
	b, _ := l.Append(ctx, "acct-b", []byte("b1"))

	if a.PrevHash != ledger.GenesisHash || b.PrevHash != ledger.GenesisHash {
		t.Error("each scope must start its own chain from genesis")
	}

	hashes, err := store.ListHashes(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(hashes) != 2 || hashes[0] != a.EntryHash || hashes[1] != b.EntryHash {
		t.Errorf("ListHashes: got %v, want [%s %s] in creation order", hashes, a.EntryHash, b.EntryHash)
	}
}

func TestInsert_casAllowsExactlyOneWinner(t *testing.T) {
	store := ledger.NewMemoryStore()

	mk := func(payload string) *ledger.Entry {
		e := &ledger.Entry{
			ScopeKey: "acct-1",
			PrevHash: ledger.GenesisHash,
			Payload:  []byte(payload),
		}
		h := sha256.New()
		h.Write([]byte(e.PrevHash))
		h.Write(e.Payload)
		e.EntryHash = hex.EncodeToString(h.Sum(nil))
		return e
	}

	// Both writers observed the same (empty) head.
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, payload := range []string{"one", "two"} {
		wg.Add(1)
		go func(i int, payload string) {
			defer wg.Done()
			errs[i] = store.Insert(ctx, mk(payload), "")
		}(i, payload)
	}
	wg.Wait()

	var conflicts, wins int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ledger.ErrConcurrentAppend):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 || conflicts != 1 {
		t.Errorf("got %d winners and %d conflicts, want exactly 1 of each", wins, conflicts)
	}
}

// raceStore loses the CAS race a fixed number of times before delegating.
type raceStore struct {
	ledger.Store
	mu        sync.Mutex
	conflicts int
}

func (s *raceStore) Insert(ctx context.Context, e *ledger.Entry, expectedHead string) error {
	s.mu.Lock()
	if s.conflicts > 0 {
		s.conflicts--
		s.mu.Unlock()
		return ledger.ErrConcurrentAppend
	}
	s.mu.Unlock()
	return s.Store.Insert(ctx, e, expectedHead)
}

func TestAppend_retriesLostRace(t *testing.T) {
	store := &raceStore{Store: ledger.NewMemoryStore(), conflicts: 2}
	l := ledger.New(store, nil, nil)

	if _, err := l.Append(ctx, "acct-1", []byte("p")); err != nil {
		t.Errorf("Append should win after retrying: %v", err)
	}
}

func TestAppend_surfacesConflictWhenRetriesExhausted(t *testing.T) {
	store := &raceStore{Store: ledger.NewMemoryStore(), conflicts: 10}
	l := ledger.New(store, nil, nil)

	_, err := l.Append(ctx, "acct-1", []byte("p"))
	if !errors.Is(err, ledger.ErrConcurrentAppend) {
		t.Errorf("got %v, want ErrConcurrentAppend", err)
	}
}

// tamperStore corrupts one entry's payload on read, simulating an edit made
// behind the ledger's back.
type tamperStore struct {
	ledger.Store
	index int
}

func (s *tamperStore) List(ctx context.Context, scopeKey string) ([]*ledger.Entry, error) {
	entries, err := s.Store.List(ctx, scopeKey)
	if err != nil {
		return nil, err
	}
	if s.index < len(entries) {
		entries[s.index].Payload = []byte("doctored")
	}
	return entries, nil
}

func TestVerifyChain_detectsTampering(t *testing.T) {
	mem := ledger.NewMemoryStore()
	l := ledger.New(mem, nil, nil)
	for i := 0; i < 3; i++ {
		if _, err := l.Append(ctx, "acct-1", fmt.Appendf(nil, "payload-%d", i)); err != nil {
			t.Fatal(err)
		}
	}

	audited := ledger.New(&tamperStore{Store: mem, index: 1}, nil, nil)
	err := audited.VerifyChain(ctx, "acct-1")
	if !errors.Is(err, ledger.ErrChainVerification) {
		t.Errorf("got %v, want ErrChainVerification", err)
	}
}
