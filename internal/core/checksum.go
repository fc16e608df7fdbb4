package core

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
)

// Checksum returns the SHA-256 hash of data as a lower-hex string.
// This is the content hash used for both per-chunk and final-file
// integrity verification.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// VerifyChecksum reports whether data hashes to expected.
// The comparison is byte-for-byte on the hex string, so the expected
// value must be lower-case.
func VerifyChecksum(data []byte, expected string) bool {
	return Checksum(data) == expected
}

// NewChecksumHash returns a hash.Hash for incremental checksumming,
// used during assembly to avoid hashing the whole file twice.
func NewChecksumHash() hash.Hash {
	return sha256.New()
}

// HexChecksum encodes a finished hash.Hash as a lower-hex string.
func HexChecksum(h hash.Hash) string {
	return hex.EncodeToString(h.Sum(nil))
}
