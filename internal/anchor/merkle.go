package anchor

import (
	"crypto/sha256"
	"encoding/hex"
)

// ComputeRoot reduces an ordered list of hex hashes to a single Merkle root.
//
// An empty input yields the hash of the empty string. A single hash passes
// through unchanged. For two or more, pairs are combined left to right as
// SHA-256(left ‖ right); when a layer has an odd count the last node is
// combined with itself rather than carried forward. Previously issued
// anchors were computed with exactly these rules, so they must not change.
func ComputeRoot(hashes []string) string {
	if len(hashes) == 0 {
		return sha256Hex(nil)
	}

	layer := make([]string, len(hashes))
	copy(layer, hashes)

	for len(layer) > 1 {
		next := make([]string, 0, (len(layer)+1)/2)
		for i := 0; i < len(layer); i += 2 {
			left := layer[i]
			right := left // odd layer: duplicate the last node
			if i+1 < len(layer) {
				right = layer[i+1]
			}
			next = append(next, sha256Hex([]byte(left+right)))
		}
		layer = next
	}
	return layer[0]
}

// sha256Hex returns the hex-encoded SHA-256 digest of data.
func sha256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
