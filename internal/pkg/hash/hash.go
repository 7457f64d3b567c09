// Package hash holds the digests used for artifact checksums, corpus
// fingerprints and feature hashing.
package hash

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash/fnv"
)

// SHA256 returns the hex encoded SHA-256 digest of data.
func SHA256(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Fingerprint hashes an ordered list of parts. Parts are length-prefixed so
// ("ab", "c") and ("a", "bc") differ.
func Fingerprint(parts ...string) string {
	h := sha256.New()
	var prefix [8]byte
	for _, p := range parts {
		binary.LittleEndian.PutUint64(prefix[:], uint64(len(p)))
		h.Write(prefix[:])
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Bucket maps s onto [0, n) with FNV-1a followed by a multiply-shift
// reduction. It is stable across processes and platforms.
func Bucket(s string, n uint32) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return uint32((uint64(h.Sum32()) * uint64(n)) >> 32)
}
