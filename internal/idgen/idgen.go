// Package idgen generates the random identifiers used across the
// platform. All randomness comes from crypto/rand; a failure there
// means the process has no business issuing IDs at all.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
)

// WithPrefix returns prefix + 24 hex chars (12 random bytes). The
// prefix names the entity kind: "org_", "usr_", "role_", "sub_",
// "pat_".
func WithPrefix(prefix string) string {
	return prefix + Hex(12)
}

// Hex returns a random hex string of the given byte length.
func Hex(numBytes int) string {
	b := make([]byte, numBytes)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return hex.EncodeToString(b)
}
