package common

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Digest hashes parts joined by "|" and returns lowercase hex. It is used to
// build fixed-length Redis keys out of caller-supplied values.
func Digest(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
