// Package kvhash supplies the coordinator's key-to-fingerprint mixers.
package kvhash

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// FingerprintFunc mixes a key's string representation into a 64-bit
// fingerprint. Users may supply their own; the zero value of Options
// falls back to Default.
type FingerprintFunc func(repr string) uint64

// Default hashes the key's string representation with xxhash, the same
// mixer the retrieval pack's compactindexsized format uses to bucket
// on-disk index keys. It is a better mixer than the reference design's
// truncated-prefix scheme while keeping FingerprintFunc pluggable, as
// the design notes require.
func Default(repr string) uint64 {
	return xxhash.Sum64String(repr)
}

// WeakReference reproduces the reference design's mixer exactly: the
// first seven bytes of the string representation, padded with '0', read
// back as a little-endian uint64. It is deliberately weak — two keys
// that agree on their first seven bytes collide — and is kept around so
// tests can construct an exact fingerprint collision deterministically
// (see the root package's TestStoreFingerprintCollision).
func WeakReference(repr string) uint64 {
	var buf [8]byte
	for i := range buf {
		buf[i] = '0'
	}
	n := len(repr)
	if n > 7 {
		n = 7
	}
	copy(buf[:n], repr[:n])
	return binary.LittleEndian.Uint64(buf[:])
}
