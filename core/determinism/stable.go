// Package determinism provides primitives for guaranteeing deterministic output.
// Report writers iterate maps through these helpers, never with a bare range.
package determinism

import (
	"cmp"
	"crypto/sha256"
	"encoding/hex"
	"slices"

	"profit-engine/core/types"
)

// ContentHash is a SHA-256 hash for content integrity
type ContentHash [32]byte

// Hex returns the hash as a hex string
func (h ContentHash) Hex() string {
	return hex.EncodeToString(h[:])
}

// String implements Stringer
func (h ContentHash) String() string {
	return h.Hex()[:16] + "..."
}

// Fingerprint hashes report rows at full precision. Identical rows in
// identical order always hash the same.
func Fingerprint(rows []types.OutputRow) ContentHash {
	h := sha256.New()
	for _, row := range rows {
		for _, field := range row.Record(-1) {
			h.Write([]byte(field))
			h.Write([]byte{0})
		}
		h.Write([]byte{'\n'})
	}
	var out ContentHash
	copy(out[:], h.Sum(nil))
	return out
}

// SortedKeys returns map keys in ascending order.
func SortedKeys[K cmp.Ordered, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// SortedMetrics returns the metrics present in m in canonical display order.
func SortedMetrics[V any](m map[types.Metric]V) []types.Metric {
	out := make([]types.Metric, 0, len(m))
	for _, metric := range types.CanonicalMetrics {
		if _, ok := m[metric]; ok {
			out = append(out, metric)
		}
	}
	return out
}
