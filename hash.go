package setsketch

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/spaolacci/murmur3"
	"github.com/zeebo/xxh3"
)

// HashFamilyID identifies the 64-bit hash family used for filter probes.
// This is stored in the serialized filter as its hash-functor state.
type HashFamilyID uint16

const (
	// FamilyXXH3 uses xxHash3-64. This is the default.
	FamilyXXH3 HashFamilyID = 0

	// FamilyXXH64 uses the classic xxHash64.
	FamilyXXH64 HashFamilyID = 1

	// FamilyMurmur3 uses MurmurHash3's 64-bit digest.
	FamilyMurmur3 HashFamilyID = 2
)

// String returns the hash family name.
func (h HashFamilyID) String() string {
	switch h {
	case FamilyXXH3:
		return "xxh3"
	case FamilyXXH64:
		return "xxh64"
	case FamilyMurmur3:
		return "murmur3"
	default:
		return "unknown"
	}
}

func (h HashFamilyID) valid() bool {
	switch h {
	case FamilyXXH3, FamilyXXH64, FamilyMurmur3:
		return true
	}
	return false
}

// mix64 hashes a 64-bit value through the selected family. The input is
// fed as 8 little-endian bytes so the result is stable across platforms.
func (h HashFamilyID) mix64(v uint64) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	switch h {
	case FamilyXXH64:
		return xxhash.Sum64(buf[:])
	case FamilyMurmur3:
		return murmur3.Sum64(buf[:])
	default:
		return xxh3.Hash(buf[:])
	}
}
