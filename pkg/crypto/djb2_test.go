package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDjb2Empty(t *testing.T) {
	require.EqualValues(t, 0, Djb2(""))
}

func TestDjb2Incremental(t *testing.T) {
	s := "foo"
	base := Djb2(s)
	next := Djb2(s + "x")
	require.EqualValues(t, int32('x')+((base<<5)-base), next)
}

func TestDjb2KnownValues(t *testing.T) {
	// Regression values pinned against the reference algorithm so a future
	// refactor can't silently change the hash.
	require.EqualValues(t, 104069929, Djb2("model"))
	require.NotEqual(t, Djb2("model"), Djb2("models"))
}
