package loader

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// CacheKey fingerprints a pipeline run: the full resource string and each
// loader identifier in chain order. Runs with equal keys produce equal
// results as long as the loaders are pure and the resource is unchanged.
func CacheKey(resource ResourceData, chain []Loader) string {
	parts := make([]string, 0, 1+len(chain))
	parts = append(parts, resource.String())
	for _, l := range chain {
		parts = append(parts, l.Identifier().String())
	}
	h := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(h[:])
}

// ContentHash returns the SHA-256 of data, used to detect changed resources
// behind an unchanged cache key.
func ContentHash(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
