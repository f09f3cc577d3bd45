package cache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeSectorNormal(t *testing.T) {
	s := sector{archiveID: 7, position: 0, nextSector: 12, indexFileID: 2, payload: []byte{0xAA, 0xBB, 0xCC}}
	raw := encodeSector(s)
	require.Len(t, raw, SectorSize)

	decoded, err := decodeSector(raw, 2, 7, 0)
	require.NoError(t, err)
	require.Equal(t, 7, decoded.archiveID)
	require.Equal(t, 0, decoded.position)
	require.Equal(t, 12, decoded.nextSector)
	require.Equal(t, 2, decoded.indexFileID)
	require.Equal(t, []byte{0xAA, 0xBB, 0xCC}, decoded.payload[:3])
}

func TestDecodeSectorExtended(t *testing.T) {
	s := sector{archiveID: 0x10001, position: 1, nextSector: 0, indexFileID: 5, payload: []byte{1, 2, 3, 4}}
	raw := encodeSector(s)

	decoded, err := decodeSector(raw, 5, 0x10001, 1)
	require.NoError(t, err)
	require.Equal(t, 0x10001, decoded.archiveID)
	require.Len(t, decoded.payload, SectorSize-extendedHeaderSize)
}

func TestDecodeSectorHeaderMismatch(t *testing.T) {
	s := sector{archiveID: 7, position: 0, nextSector: 0, indexFileID: 2, payload: make([]byte, 512)}
	raw := encodeSector(s)

	_, err := decodeSector(raw, 2, 7, 1) // wrong expected position
	require.ErrorIs(t, err, ErrMalformed)
}

func TestExtendedVsNormalBoundary(t *testing.T) {
	require.False(t, extendedLayout(0xFFFF))
	require.True(t, extendedLayout(0x10000))

	// Using the normal decode path on bytes written for an extended
	// archive id must fail the header check: decodeSector picks its
	// layout from the *expected* archive id, so the normal layout reads the
	// high half of 0x10001 (0x0001) as the archive id, which matches the
	// expectation, but then reads the low half (0x0001) as the position,
	// which disagrees with the expected position 0.
	s := sector{archiveID: 0x10001, position: 0, nextSector: 0, indexFileID: 1, payload: make([]byte, 510)}
	raw := encodeSector(s)
	_, err := decodeSector(raw, 1, 0x10001&0xFFFF, 0)
	require.ErrorIs(t, err, ErrMalformed)
}
