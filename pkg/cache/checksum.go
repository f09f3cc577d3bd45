package cache

import (
	"fmt"

	"github.com/sectorfs/cachefs/pkg/crypto"
)

// ChecksumEntry is one index file's row in a ChecksumTable, per spec.md §3.
type ChecksumEntry struct {
	CRC          int32
	Version      int32
	FileCount    int32
	ArchiveSize  int32
	Whirlpool    [64]byte
}

// ChecksumTable is the "update keys" digest: one ChecksumEntry per
// data-plane index file.
type ChecksumTable struct {
	Entries []ChecksumEntry
}

// EncodeCompact serialises the compact shape: CRC + version per entry,
// no file count, size, or whirlpool digest.
func (ct *ChecksumTable) EncodeCompact() []byte {
	buf := make([]byte, 0, len(ct.Entries)*8)
	for _, e := range ct.Entries {
		buf = appendI32(buf, e.CRC)
		buf = appendI32(buf, e.Version)
	}
	return buf
}

// DecodeCompact parses the compact shape produced by EncodeCompact.
func DecodeCompact(data []byte) (*ChecksumTable, error) {
	if len(data)%8 != 0 {
		return nil, fmt.Errorf("%w: compact checksum table length not a multiple of 8", ErrMalformed)
	}
	ct := &ChecksumTable{}
	for i := 0; i < len(data); i += 8 {
		ct.Entries = append(ct.Entries, ChecksumEntry{
			CRC:     int32(be32(data[i : i+4])),
			Version: int32(be32(data[i+4 : i+8])),
		})
	}
	return ct, nil
}

// EncodeWhirlpool serialises the full "whirlpool" shape: every field of
// every entry, followed by a trailing Whirlpool digest of all preceding
// bytes. When rsaExponent and rsaModulus are both non-nil, the digest is
// RSA-wrapped before being appended (spec.md §4.6/§4.5).
func (ct *ChecksumTable) EncodeWhirlpool(rsaExponent, rsaModulus []byte) []byte {
	var buf []byte
	buf = append(buf, byte(len(ct.Entries)))
	for _, e := range ct.Entries {
		buf = appendI32(buf, e.CRC)
		buf = appendI32(buf, e.Version)
		buf = appendI32(buf, e.FileCount)
		buf = appendI32(buf, e.ArchiveSize)
		buf = append(buf, e.Whirlpool[:]...)
	}

	digest := crypto.Whirlpool(buf)
	digestBytes := digest[:]
	if rsaExponent != nil && rsaModulus != nil {
		digestBytes = crypto.RSAExp(digestBytes, rsaExponent, rsaModulus)
	}
	return append(buf, digestBytes...)
}

// DecodeWhirlpool parses the whirlpool shape and verifies the trailing
// digest against the preceding bytes. When rsaExponent and rsaModulus are
// both non-nil, the trailing bytes are first unwrapped with RSA before
// comparison.
func DecodeWhirlpool(data []byte, rsaExponent, rsaModulus []byte) (*ChecksumTable, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("%w: empty whirlpool checksum table", ErrMalformed)
	}
	count := int(data[0])
	bodyLen := 1 + count*(4*4+64)
	if bodyLen > len(data) {
		return nil, fmt.Errorf("%w: whirlpool checksum table too short", ErrMalformed)
	}

	body := data[:bodyLen]
	trailer := data[bodyLen:]
	if rsaExponent != nil && rsaModulus != nil {
		trailer = crypto.RSAExp(trailer, rsaExponent, rsaModulus)
	}
	if len(trailer) != crypto.WhirlpoolDigestSize {
		return nil, fmt.Errorf("%w: whirlpool digest wrong size", ErrMalformed)
	}

	want := crypto.Whirlpool(body)
	for i := 0; i < crypto.WhirlpoolDigestSize; i++ {
		if want[i] != trailer[i] {
			return nil, fmt.Errorf("%w: whirlpool digest mismatch", ErrMalformed)
		}
	}

	ct := &ChecksumTable{}
	pos := 1
	for i := 0; i < count; i++ {
		e := ChecksumEntry{
			CRC:         int32(be32(body[pos : pos+4])),
			Version:     int32(be32(body[pos+4 : pos+8])),
			FileCount:   int32(be32(body[pos+8 : pos+12])),
			ArchiveSize: int32(be32(body[pos+12 : pos+16])),
		}
		copy(e.Whirlpool[:], body[pos+16:pos+80])
		pos += 80
		ct.Entries = append(ct.Entries, e)
	}
	return ct, nil
}

func appendI32(buf []byte, v int32) []byte {
	return append(buf, byte(uint32(v)>>24), byte(uint32(v)>>16), byte(uint32(v)>>8), byte(v))
}
