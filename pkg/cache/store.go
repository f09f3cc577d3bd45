package cache

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/sectorfs/cachefs/pkg/crypto"
)

// OpenOptions configures CacheStore.Open.
type OpenOptions struct {
	RootDir string
	// Keys maps a region id to its 4-word XTEA key. A region with no
	// entry here reads with a null key (no decryption), per spec.md §6.
	Keys map[int]crypto.Key
}

// CacheStore is the façade that wires FileStore, ArchivePayload, Container
// and ReferenceTable together, and owns the eagerly-decoded reference
// tables for the lifetime of the store (spec.md §4.5/§5).
type CacheStore struct {
	fs   *FileStore
	keys map[int]crypto.Key

	referenceTables []*ReferenceTable // one per data-plane index file

	mu         sync.Mutex
	nameCache  map[int]map[string]int32 // per-index name -> id memoisation, scoped to this store (spec.md §9)
}

// Open opens the file store at opts.RootDir and eagerly decodes every
// reference table (one per data-plane index file) by reading archive
// (255, indexId) with null keys. A single malformed reference table
// aborts construction, per spec.md §7.
func Open(opts OpenOptions) (*CacheStore, error) {
	fs, err := OpenFileStore(opts.RootDir)
	if err != nil {
		return nil, err
	}

	store := &CacheStore{
		fs:        fs,
		keys:      opts.Keys,
		nameCache: make(map[int]map[string]int32),
	}

	n := fs.IndexFileCount()
	store.referenceTables = make([]*ReferenceTable, n)
	for i := 0; i < n; i++ {
		raw, err := fs.ReadArchive(metaIndexFileID, i)
		if err != nil {
			fs.Close()
			return nil, fmt.Errorf("reading reference table for index %d: %w", i, err)
		}

		payload, err := DecodePayload(raw, crypto.Key{})
		if err != nil {
			fs.Close()
			return nil, fmt.Errorf("decoding reference table payload for index %d: %w", i, err)
		}

		rt, err := DecodeReferenceTable(payload.Data)
		if err != nil {
			fs.Close()
			return nil, fmt.Errorf("decoding reference table for index %d: %w", i, err)
		}

		store.referenceTables[i] = rt
	}

	log.Info().Int("indexFiles", n).Msg("cache store opened")
	return store, nil
}

// Close releases the underlying file store's handles.
func (s *CacheStore) Close() error {
	return s.fs.Close()
}

// ReferenceTable returns the decoded reference table for index idx.
func (s *CacheStore) ReferenceTable(idx int) (*ReferenceTable, error) {
	if idx < 0 || idx >= len(s.referenceTables) {
		return nil, fmt.Errorf("%w: index %d has no reference table", ErrNotFound, idx)
	}
	return s.referenceTables[idx], nil
}

func (s *CacheStore) keyFor(region int, override *crypto.Key) crypto.Key {
	if override != nil {
		return *override
	}
	if s.keys != nil {
		if k, ok := s.keys[region]; ok {
			return k
		}
	}
	return crypto.Key{}
}

// Read decodes the payload for archive (idx, aid). idx == 255 is rejected;
// use the low-level FileStore API for meta-index archives, per spec.md
// §4.5.
func (s *CacheStore) Read(idx, aid int, keys *crypto.Key) (ArchivePayload, error) {
	if idx == metaIndexFileID {
		return ArchivePayload{}, fmt.Errorf("%w: use FileStore for meta index reads", ErrUnsupported)
	}
	raw, err := s.fs.ReadArchive(idx, aid)
	if err != nil {
		return ArchivePayload{}, err
	}
	return DecodePayload(raw, s.keyFor(idx, keys))
}

// ReadMember decodes archive (idx, aid) as a container and returns member
// memberID, using the entry's child count from the reference table as the
// expected member count.
func (s *CacheStore) ReadMember(idx, aid, memberID int, keys *crypto.Key) ([]byte, error) {
	rt, err := s.ReferenceTable(idx)
	if err != nil {
		return nil, err
	}
	entry, ok := rt.Entry(aid)
	if !ok {
		return nil, fmt.Errorf("%w: no reference table entry for archive %d", ErrNotFound, aid)
	}

	capacity := entry.ChildCount()
	if memberID < 0 || memberID >= capacity {
		return nil, fmt.Errorf("%w: member %d out of range [0,%d)", ErrNotFound, memberID, capacity)
	}

	payload, err := s.Read(idx, aid, keys)
	if err != nil {
		return nil, err
	}

	members, err := DecodeContainer(payload.Data, capacity)
	if err != nil {
		return nil, err
	}
	return members[memberID], nil
}

// FileIdByName resolves name to an archive id via the identifier hash
// table of referenceTables[idx], memoising the result in a per-store cache
// scoped to this CacheStore instance (not process-wide, per spec.md §9).
func (s *CacheStore) FileIdByName(idx int, name string) int32 {
	s.mu.Lock()
	if cached, ok := s.nameCache[idx]; ok {
		if id, ok := cached[name]; ok {
			s.mu.Unlock()
			return id
		}
	} else {
		s.nameCache[idx] = make(map[string]int32)
	}
	s.mu.Unlock()

	rt, err := s.ReferenceTable(idx)
	if err != nil {
		return -1
	}

	id := rt.FindByIdentifier(crypto.Djb2(name))

	s.mu.Lock()
	s.nameCache[idx][name] = id
	s.mu.Unlock()

	return id
}

// FileNameHash exposes the djb2 primitive directly so offline tooling can
// hash names without opening a store.
func FileNameHash(name string) int32 {
	return crypto.Djb2(name)
}

// CreateChecksumTable builds the "update keys" digest across every
// data-plane index file, per spec.md §4.5.
func (s *CacheStore) CreateChecksumTable() *ChecksumTable {
	ct := &ChecksumTable{Entries: make([]ChecksumEntry, len(s.referenceTables))}

	for i, rt := range s.referenceTables {
		if !s.fs.HasData() {
			continue
		}

		raw, err := s.fs.ReadArchive(metaIndexFileID, i)
		if err != nil {
			log.Warn().Err(err).Int("index", i).Msg("failed to read reference table archive for checksum table")
			continue
		}

		digest := crypto.Whirlpool(raw)
		ct.Entries[i] = ChecksumEntry{
			CRC:         crypto.CRC32(raw),
			Version:     rt.Version,
			FileCount:   int32(rt.Capacity()),
			ArchiveSize: rt.TotalArchivesSize(),
			Whirlpool:   digest,
		}
	}

	return ct
}
