package cache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIndexRoundTrip(t *testing.T) {
	idx := Index{Size: 3, StartSector: 0}
	raw := encodeIndex(idx)
	require.Len(t, raw, indexRecordSize)
	require.Equal(t, idx, decodeIndex(raw))
}
