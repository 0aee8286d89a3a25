// Package hash provides xxHash64 helpers used as lookup keys and
// diagnostic fingerprints, not as part of the on-disk format.
package hash

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// TagKey combines a 4-character structure tag and a version number into a
// single lookup key, used to report each unknown (tag, version) pair
// only once while loading sections.
func TagKey(tag string, version uint32) uint64 {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], version)

	d := xxhash.New()
	_, _ = d.WriteString(tag)
	_, _ = d.Write(buf[:])

	return d.Sum64()
}

// Fingerprint digests raw bytes for attachment to orphan/unknown-section
// diagnostics, so two diagnostics referring to identical content are easy
// to spot without comparing the full payload.
func Fingerprint(data []byte) uint64 {
	return xxhash.Sum64(data)
}
