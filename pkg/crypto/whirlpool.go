package crypto

import "github.com/jzelinskie/whirlpool"

// WhirlpoolDigestSize is the fixed output size of the Whirlpool digest, as
// stored per-entry in a reference table and appended to a checksum table.
const WhirlpoolDigestSize = 64

// Whirlpool computes the 64-byte Whirlpool digest of data. The algorithm
// itself is treated as opaque per spec; this is a thin wrapper around the
// external implementation.
func Whirlpool(data []byte) [WhirlpoolDigestSize]byte {
	h := whirlpool.New()
	h.Write(data)
	var out [WhirlpoolDigestSize]byte
	copy(out[:], h.Sum(nil))
	return out
}
