package codec

import (
	"crypto/sha256"
	"encoding/hex"
)

// ComputeHash returns the hex-encoded SHA-256 digest of a shard, used for
// integrity verification before trusting a downloaded shard.
func ComputeHash(shard []byte) string {
	sum := sha256.Sum256(shard)
	return hex.EncodeToString(sum[:])
}

// VerifyHash reports whether a shard matches its expected digest.
func VerifyHash(shard []byte, expected string) bool {
	return ComputeHash(shard) == expected
}
