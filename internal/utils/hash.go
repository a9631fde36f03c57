package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// ContentHash returns the SHA-256 hex digest of a document's raw content.
// The hash is the identity of a version: saves whose content hashes to the
// current version's digest are no-ops.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
