package cache

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sectorfs/cachefs/pkg/crypto"
)

func buildTestTable(format byte, flags byte) *ReferenceTable {
	rt := newReferenceTable()
	rt.Format = format
	rt.Flags = flags
	if format >= 6 {
		rt.Version = 99
	}

	ids := []int{0, 3, 17}
	for i, id := range ids {
		e := &Entry{
			ID:           id,
			SlotIndex:    i,
			Identifier:   -1,
			CRC:          int32(1000 + id),
			Compressed:   int32(10 + id),
			Uncompressed: int32(20 + id),
			Hash:         int32(30 + id),
			Version:      int32(40 + id),
		}
		if flags&FlagIdentifiers != 0 {
			e.Identifier = crypto.Djb2("entry")
		}
		if flags&FlagWhirlpool != 0 {
			for i := range e.Whirlpool {
				e.Whirlpool[i] = byte(i)
			}
		}
		rt.entries.Set(e)
	}

	if flags&FlagIdentifiers != 0 {
		var idents []int32
		rt.Each(func(e *Entry) bool {
			idents = append(idents, e.Identifier)
			return true
		})
		rt.identifiers = BuildIdentifierTable(idents)
	}

	return rt
}

func TestReferenceTableRoundTrip(t *testing.T) {
	formats := []byte{5, 6, 7}
	flagCombos := []byte{
		0,
		FlagIdentifiers,
		FlagWhirlpool,
		FlagSizes,
		FlagHash,
		FlagIdentifiers | FlagHash,
		FlagIdentifiers | FlagWhirlpool | FlagSizes | FlagHash,
	}

	for _, format := range formats {
		for _, flags := range flagCombos {
			rt := buildTestTable(format, flags)

			encoded, err := EncodeReferenceTable(rt)
			require.NoError(t, err)

			decoded, err := DecodeReferenceTable(encoded)
			require.NoError(t, err)

			require.Equal(t, rt.Format, decoded.Format)
			require.Equal(t, rt.Version, decoded.Version)
			require.Equal(t, rt.Flags, decoded.Flags)
			require.Equal(t, rt.Capacity(), decoded.Capacity())

			rt.Each(func(want *Entry) bool {
				got, ok := decoded.Entry(want.ID)
				require.True(t, ok)
				require.Equal(t, want.CRC, got.CRC)
				require.Equal(t, want.Version, got.Version)
				if flags&FlagIdentifiers != 0 {
					require.Equal(t, want.Identifier, got.Identifier)
				}
				if flags&FlagHash != 0 {
					require.Equal(t, want.Hash, got.Hash)
				}
				if flags&FlagWhirlpool != 0 {
					require.Equal(t, want.Whirlpool, got.Whirlpool)
				}
				if flags&FlagSizes != 0 {
					require.Equal(t, want.Compressed, got.Compressed)
					require.Equal(t, want.Uncompressed, got.Uncompressed)
				}
				return true
			})
		}
	}
}

func TestReferenceTableGapsInCapacity(t *testing.T) {
	rt := buildTestTable(7, 0)
	require.Equal(t, 18, rt.Capacity()) // max id 17, +1

	_, ok := rt.Entry(1)
	require.False(t, ok)
	_, ok = rt.Entry(0)
	require.True(t, ok)
}

func TestReferenceTableEmptyCapacityZero(t *testing.T) {
	rt := newReferenceTable()
	rt.Format = 6
	require.Equal(t, 0, rt.Capacity())
	require.EqualValues(t, 0, rt.TotalArchivesSize())
}

func TestReferenceTableUnsupportedFormat(t *testing.T) {
	_, err := DecodeReferenceTable([]byte{9, 0})
	require.ErrorIs(t, err, ErrMalformed)
}

func TestReferenceTableIdentifierLookupEndToEnd(t *testing.T) {
	rt := newReferenceTable()
	rt.Format = 7
	rt.Flags = FlagIdentifiers | FlagSizes

	foo := &Entry{ID: 0, SlotIndex: 0, Identifier: crypto.Djb2("foo"), Uncompressed: 1}
	bar := &Entry{ID: 3, SlotIndex: 1, Identifier: crypto.Djb2("bar"), Uncompressed: 2}
	rt.entries.Set(foo)
	rt.entries.Set(bar)
	rt.identifiers = BuildIdentifierTable([]int32{foo.Identifier, bar.Identifier})

	encoded, err := EncodeReferenceTable(rt)
	require.NoError(t, err)

	decoded, err := DecodeReferenceTable(encoded)
	require.NoError(t, err)

	require.EqualValues(t, 0, decoded.FindByIdentifier(crypto.Djb2("foo")))
	require.EqualValues(t, -1, decoded.FindByIdentifier(crypto.Djb2("baz")))
}
