package cache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChecksumTableCompactRoundTrip(t *testing.T) {
	ct := &ChecksumTable{Entries: []ChecksumEntry{
		{CRC: 111, Version: 1},
		{CRC: 222, Version: 2},
	}}

	encoded := ct.EncodeCompact()
	decoded, err := DecodeCompact(encoded)
	require.NoError(t, err)
	require.Equal(t, ct, decoded)
}

func TestChecksumTableCompactMisalignedLength(t *testing.T) {
	_, err := DecodeCompact([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrMalformed)
}

func TestChecksumTableWhirlpoolRoundTrip(t *testing.T) {
	ct := &ChecksumTable{Entries: []ChecksumEntry{
		{CRC: 111, Version: 1, FileCount: 5, ArchiveSize: 1024},
		{CRC: 222, Version: 2, FileCount: 7, ArchiveSize: 2048},
	}}

	encoded := ct.EncodeWhirlpool(nil, nil)
	decoded, err := DecodeWhirlpool(encoded, nil, nil)
	require.NoError(t, err)
	require.Equal(t, ct, decoded)
}

func TestChecksumTableWhirlpoolTamperedRejected(t *testing.T) {
	ct := &ChecksumTable{Entries: []ChecksumEntry{{CRC: 1, Version: 1}}}
	encoded := ct.EncodeWhirlpool(nil, nil)

	// Flip a byte inside the CRC field, well before the trailing digest,
	// so the corruption doesn't change the declared entry count.
	encoded[1] ^= 0xFF

	_, err := DecodeWhirlpool(encoded, nil, nil)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestChecksumTableWhirlpoolTooShort(t *testing.T) {
	_, err := DecodeWhirlpool([]byte{5}, nil, nil)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestChecksumTableWhirlpoolRSAWrapped(t *testing.T) {
	// Toy exponent e=5 and a 4-byte modulus n=0x05EBF54B (99349835). The
	// modulus is far smaller than a 64-byte digest, so the wrapped digest
	// is reduced mod n; this only exercises the RSA-wrapped encode path
	// and does not decode the result.
	e := []byte{5}
	n := []byte{0x05, 0xEB, 0xF5, 0x4B}

	ct := &ChecksumTable{Entries: []ChecksumEntry{{CRC: 1, Version: 1}}}
	encoded := ct.EncodeWhirlpool(e, n)
	require.NotEmpty(t, encoded)
}
