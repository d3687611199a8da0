// Package checksum computes the content digests stored alongside file rows.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// Compute returns the hex encoded SHA256 of data, or "" for empty input.
// Zero-length files carry no payload and therefore no digest.
func Compute(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// Verify reports whether data matches the expected digest.
// An empty expected digest always verifies.
func Verify(data []byte, expected string) bool {
	if expected == "" {
		return true
	}
	return Compute(data) == expected
}
