package anchor_test

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/provenant/chainledger/internal/anchor"
)

func sha256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func TestComputeRoot_empty(t *testing.T) {
	if got, want := anchor.ComputeRoot(nil), sha256Hex(nil); got != want {
		t.Errorf("ComputeRoot(nil): got %q, want hash of empty string %q", got, want)
	}
}

func TestComputeRoot_singlePassthrough(t *testing.T) {
	h := sha256Hex([]byte("leaf"))
	if got := anchor.ComputeRoot([]string{h}); got != h {
		t.Errorf("single hash must pass through unchanged: got %q, want %q", got, h)
	}
}

func TestComputeRoot_pair(t *testing.T) {
	h1 := sha256Hex([]byte("a"))
	h2 := sha256Hex([]byte("b"))
	want := sha256Hex([]byte(h1 + h2))
	if got := anchor.ComputeRoot([]string{h1, h2}); got != want {
		t.Errorf("ComputeRoot([h1,h2]): got %q, want Hash(h1‖h2) %q", got, want)
	}
}

func TestComputeRoot_oddNodeSelfPairs(t *testing.T) {
	h1 := sha256Hex([]byte("a"))
	h2 := sha256Hex([]byte("b"))
	h3 := sha256Hex([]byte("c"))

	left := sha256Hex([]byte(h1 + h2))
	right := sha256Hex([]byte(h3 + h3)) // unpaired node combines with itself
	want := sha256Hex([]byte(left + right))

	if got := anchor.ComputeRoot([]string{h1, h2, h3}); got != want {
		t.Errorf("ComputeRoot([h1,h2,h3]): got %q, want %q", got, want)
	}
}

func TestComputeRoot_doesNotMutateInput(t *testing.T) {
	hashes := []string{sha256Hex([]byte("a")), sha256Hex([]byte("b")), sha256Hex([]byte("c"))}
	orig := make([]string, len(hashes))
	copy(orig, hashes)

	anchor.ComputeRoot(hashes)
	for i := range hashes {
		if hashes[i] != orig[i] {
			t.Fatalf("input slice mutated at %d", i)
		}
	}
}

func TestComputeRoot_deterministic(t *testing.T) {
	hashes := []string{
		sha256Hex([]byte("a")), sha256Hex([]byte("b")),
		sha256Hex([]byte("c")), sha256Hex([]byte("d")),
		sha256Hex([]byte("e")),
	}
	if anchor.ComputeRoot(hashes) != anchor.ComputeRoot(hashes) {
		t.Error("ComputeRoot must be deterministic for equal input")
	}
}
