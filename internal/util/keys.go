package util

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// StorageKey returns a deterministic provider key for an ordered tuple of
// already-normalised parts: prefix + ":" + first 128 bits of the hash in hex.
// Order matters; parts are length-prefixed so ("ab","c") != ("a","bc").
func StorageKey(prefix string, parts []string) string {
	var b strings.Builder
	for _, p := range parts {
		fmt.Fprintf(&b, "%d:%s;", len(p), p)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return fmt.Sprintf("%s:%x", prefix, sum[:16])
}
