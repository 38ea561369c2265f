// Package checksum fingerprints source data for change detection.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strings"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Combine folds per-file digests keyed by path into one digest that changes
// when any file is added, removed or modified.
func Combine(sums map[string]string) string {
	paths := make([]string, 0, len(sums))
	for p := range sums {
		paths = append(paths, p)
	}
	slices.Sort(paths)

	var b strings.Builder
	for _, p := range paths {
		b.WriteString(p)
		b.WriteByte(0)
		b.WriteString(sums[p])
		b.WriteByte('\n')
	}
	return Sum([]byte(b.String()))
}
