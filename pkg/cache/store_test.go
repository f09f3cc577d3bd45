package cache

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/btree"

	"github.com/sectorfs/cachefs/pkg/crypto"
)

// buildTestCacheRoot synthesises a one-index-file cache: reference table at
// (255,0) describing a single archive id=5 with two container members and a
// name, plus the matching container archive at (0,5).
func buildTestCacheRoot(t *testing.T) string {
	t.Helper()
	dir := newTestRoot(t, 1)

	fs, err := OpenFileStore(dir)
	require.NoError(t, err)

	members := [][]byte{[]byte("first member"), []byte("second member")}
	containerBytes, err := EncodeContainer(members)
	require.NoError(t, err)

	containerPayload, err := EncodePayload(ArchivePayload{
		Compression: CompressionNone,
		Data:        containerBytes,
		Version:     -1,
	}, crypto.Key{})
	require.NoError(t, err)
	require.NoError(t, fs.WriteArchive(0, 5, containerPayload))

	rt := newReferenceTable()
	rt.Format = 7
	rt.Flags = FlagIdentifiers | FlagSizes

	entry := &Entry{
		ID:           5,
		Identifier:   crypto.Djb2("my-archive"),
		CRC:          crypto.CRC32(containerPayload),
		Uncompressed: int32(len(containerBytes)),
		children:     btree.New(childLess),
	}
	entry.children.Set(&ChildEntry{ID: 0})
	entry.children.Set(&ChildEntry{ID: 1})
	rt.entries.Set(entry)
	rt.identifiers = BuildIdentifierTable([]int32{entry.Identifier})

	rtBytes, err := EncodeReferenceTable(rt)
	require.NoError(t, err)

	rtPayload, err := EncodePayload(ArchivePayload{
		Compression: CompressionNone,
		Data:        rtBytes,
		Version:     -1,
	}, crypto.Key{})
	require.NoError(t, err)
	require.NoError(t, fs.WriteArchive(metaIndexFileID, 0, rtPayload))

	require.NoError(t, fs.Close())
	return dir
}

func TestCacheStoreOpenDecodesReferenceTables(t *testing.T) {
	dir := buildTestCacheRoot(t)

	store, err := Open(OpenOptions{RootDir: dir})
	require.NoError(t, err)
	defer store.Close()

	rt, err := store.ReferenceTable(0)
	require.NoError(t, err)
	require.Equal(t, 6, rt.Capacity())

	entry, ok := rt.Entry(5)
	require.True(t, ok)
	require.Equal(t, 2, entry.ChildCount())
}

func TestCacheStoreReadAndReadMember(t *testing.T) {
	dir := buildTestCacheRoot(t)
	store, err := Open(OpenOptions{RootDir: dir})
	require.NoError(t, err)
	defer store.Close()

	payload, err := store.Read(0, 5, nil)
	require.NoError(t, err)

	members, err := DecodeContainer(payload.Data, 2)
	require.NoError(t, err)
	require.Equal(t, []byte("first member"), members[0])
	require.Equal(t, []byte("second member"), members[1])

	m0, err := store.ReadMember(0, 5, 0, nil)
	require.NoError(t, err)
	require.Equal(t, []byte("first member"), m0)

	m1, err := store.ReadMember(0, 5, 1, nil)
	require.NoError(t, err)
	require.Equal(t, []byte("second member"), m1)

	_, err = store.ReadMember(0, 5, 2, nil)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCacheStoreReadRejectsMetaIndex(t *testing.T) {
	dir := buildTestCacheRoot(t)
	store, err := Open(OpenOptions{RootDir: dir})
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Read(metaIndexFileID, 0, nil)
	require.ErrorIs(t, err, ErrUnsupported)
}

func TestCacheStoreFileIdByNameMemoizesPerInstance(t *testing.T) {
	dir := buildTestCacheRoot(t)
	storeA, err := Open(OpenOptions{RootDir: dir})
	require.NoError(t, err)
	defer storeA.Close()

	storeB, err := Open(OpenOptions{RootDir: dir})
	require.NoError(t, err)
	defer storeB.Close()

	idA := storeA.FileIdByName(0, "my-archive")
	require.EqualValues(t, 5, idA)

	// A second, independent store resolves the same name freshly rather
	// than sharing a process-wide cache.
	idB := storeB.FileIdByName(0, "my-archive")
	require.EqualValues(t, 5, idB)

	require.EqualValues(t, -1, storeA.FileIdByName(0, "no-such-archive"))
}

func TestFileNameHashMatchesDjb2(t *testing.T) {
	require.Equal(t, crypto.Djb2("config"), FileNameHash("config"))
}

func TestCacheStoreCreateChecksumTable(t *testing.T) {
	dir := buildTestCacheRoot(t)
	store, err := Open(OpenOptions{RootDir: dir})
	require.NoError(t, err)
	defer store.Close()

	ct := store.CreateChecksumTable()
	require.Len(t, ct.Entries, 1)
	require.EqualValues(t, 6, ct.Entries[0].FileCount)
	require.NotZero(t, ct.Entries[0].CRC)
}
