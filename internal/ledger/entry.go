package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// GenesisHash is the well-known previous-hash of the first entry in every
// scope: the SHA-256 digest of the empty string. All per-scope chains are
// anchored to this constant rather than to a computed value.
const GenesisHash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

// Entry is a single immutable record in a scope's hash chain.
type Entry struct {
	ScopeKey  string    `json:"scope_key"`
	EntryHash string    `json:"entry_hash"`
	PrevHash  string    `json:"prev_hash"`
	Payload   []byte    `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}

// chainHash computes the hash of an entry: SHA-256 over the hex-encoded
// previous hash concatenated with the raw payload bytes.
func chainHash(prevHash string, payload []byte) string {
	h := sha256.New()
	h.Write([]byte(prevHash))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
