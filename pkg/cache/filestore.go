package cache

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog/log"
)

const dataFileName = "main_file_cache.dat2"

func indexFileName(id int) string {
	return fmt.Sprintf("main_file_cache.idx%d", id)
}

// FileStore is the byte-level access layer over one data file and up to
// 256 index files. It owns every file handle it opens and is responsible
// for releasing them exactly once.
type FileStore struct {
	dataFile  *os.File
	dataLock  *flock.Flock
	indexes   []*os.File // indexes[i] is main_file_cache.idx{i}, i in [0, len)
	metaIndex *os.File   // main_file_cache.idx255
}

// OpenFileStore locates main_file_cache.dat2 and the contiguous prefix of
// main_file_cache.idx0..idxN-1 (stopping at the first gap), plus the
// required meta index file idx255. At least one data-plane index file
// must exist.
func OpenFileStore(rootDir string) (*FileStore, error) {
	dataPath := filepath.Join(rootDir, dataFileName)
	dataFile, err := os.OpenFile(dataPath, os.O_RDWR, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, dataPath)
		}
		return nil, fmt.Errorf("%w: opening %s: %v", ErrIOFailure, dataPath, err)
	}

	lock := flock.New(dataPath)
	if locked, lockErr := lock.TryLock(); lockErr != nil || !locked {
		// Advisory only: a cache that's already open elsewhere on this
		// host is still safe to read, so a failed lock is logged, not
		// fatal. See spec.md §5's explicit non-goal around concurrent
		// access to a single instance.
		log.Warn().Str("path", dataPath).Msg("could not acquire advisory lock on data file")
	}

	fs := &FileStore{dataFile: dataFile, dataLock: lock}

	for i := 0; i < metaIndexFileID; i++ {
		p := filepath.Join(rootDir, indexFileName(i))
		f, err := os.OpenFile(p, os.O_RDWR, 0)
		if err != nil {
			break
		}
		fs.indexes = append(fs.indexes, f)
	}

	metaPath := filepath.Join(rootDir, indexFileName(metaIndexFileID))
	metaFile, err := os.OpenFile(metaPath, os.O_RDWR, 0)
	if err != nil {
		fs.Close()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, metaPath)
	}
	fs.metaIndex = metaFile

	if len(fs.indexes) == 0 {
		fs.Close()
		return nil, fmt.Errorf("%w: no data-plane index files found under %s", ErrNotFound, rootDir)
	}

	log.Info().Int("indexFiles", len(fs.indexes)).Str("root", rootDir).Msg("opened cache file store")
	return fs, nil
}

// Close releases every file handle the store owns. It is safe to call
// exactly once; a second call is not guaranteed to be safe (the caller is
// expected not to double-close, per spec.md §7).
func (fs *FileStore) Close() error {
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if fs.dataLock != nil {
		_ = fs.dataLock.Unlock()
	}
	if fs.dataFile != nil {
		record(fs.dataFile.Close())
	}
	for _, f := range fs.indexes {
		record(f.Close())
	}
	if fs.metaIndex != nil {
		record(fs.metaIndex.Close())
	}
	return firstErr
}

// IndexFileCount returns the number of data-plane index files found at
// open time (not counting the meta index).
func (fs *FileStore) IndexFileCount() int {
	return len(fs.indexes)
}

// HasData reports whether the data file is non-empty.
func (fs *FileStore) HasData() bool {
	st, err := fs.dataFile.Stat()
	if err != nil {
		return false
	}
	return st.Size() > 0
}

func (fs *FileStore) indexHandle(idx int) (*os.File, error) {
	if idx == metaIndexFileID {
		return fs.metaIndex, nil
	}
	if idx < 0 || idx >= len(fs.indexes) {
		return nil, fmt.Errorf("%w: index file %d out of range", ErrNotFound, idx)
	}
	return fs.indexes[idx], nil
}

// IndexEntryCount returns the number of Index records in index file idx,
// i.e. file length / 6.
func (fs *FileStore) IndexEntryCount(idx int) (int, error) {
	f, err := fs.indexHandle(idx)
	if err != nil {
		return 0, err
	}
	st, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrIOFailure, err)
	}
	return int(st.Size()) / indexRecordSize, nil
}

// ReadIndex reads the 6-byte Index record for archiveID from index file
// idx (255 routes to the meta index).
func (fs *FileStore) ReadIndex(idx, archiveID int) (Index, error) {
	f, err := fs.indexHandle(idx)
	if err != nil {
		return Index{}, err
	}
	if archiveID < 0 {
		return Index{}, fmt.Errorf("%w: negative archive id %d", ErrNotFound, archiveID)
	}

	offset := int64(archiveID) * indexRecordSize
	st, err := f.Stat()
	if err != nil {
		return Index{}, fmt.Errorf("%w: %v", ErrIOFailure, err)
	}
	if offset >= st.Size() {
		return Index{}, fmt.Errorf("%w: archive id %d not in index file %d", ErrNotFound, archiveID, idx)
	}

	buf := make([]byte, indexRecordSize)
	if err := readFullyAt(f, buf, offset); err != nil {
		return Index{}, err
	}
	return decodeIndex(buf), nil
}

// ReadArchive walks the sector chain for (idx, archiveID) starting at the
// Index record's startSector, validating each hop and collecting exactly
// Index.Size bytes.
func (fs *FileStore) ReadArchive(idx, archiveID int) ([]byte, error) {
	index, err := fs.ReadIndex(idx, archiveID)
	if err != nil {
		return nil, err
	}
	if index.Size <= 0 {
		return nil, fmt.Errorf("%w: archive (%d,%d) has no data", ErrNotFound, idx, archiveID)
	}

	out := make([]byte, index.Size)
	remaining := index.Size
	filled := 0
	sectorNum := index.StartSector
	position := 0

	raw := make([]byte, SectorSize)
	for remaining > 0 {
		if sectorNum == 0 {
			return nil, fmt.Errorf("%w: sector chain ended early for (%d,%d)", ErrMalformed, idx, archiveID)
		}

		offset := int64(sectorNum) * SectorSize
		if err := readFullyAt(fs.dataFile, raw, offset); err != nil {
			return nil, err
		}

		s, err := decodeSector(raw, idx, archiveID, position)
		if err != nil {
			return nil, err
		}

		n := len(s.payload)
		if n > remaining {
			n = remaining
		}
		copy(out[filled:filled+n], s.payload[:n])
		filled += n
		remaining -= n

		sectorNum = s.nextSector
		position++
		if remaining > 0 && sectorNum == 0 {
			return nil, fmt.Errorf("%w: sector chain ended early for (%d,%d)", ErrMalformed, idx, archiveID)
		}
	}

	return out, nil
}

// WriteArchive chunks data into sectors and appends them to the data file,
// allocating new sector numbers past the current end of file, then patches
// the Index record for (idx, archiveID). This is the inverse of
// ReadArchive; it never reuses or frees existing sectors (spec.md §1
// explicitly places sector reclamation out of scope).
func (fs *FileStore) WriteArchive(idx, archiveID int, data []byte) error {
	f, err := fs.indexHandle(idx)
	if err != nil {
		return err
	}

	headerSize := normalHeaderSize
	if extendedLayout(archiveID) {
		headerSize = extendedHeaderSize
	}
	payloadSize := SectorSize - headerSize

	st, err := fs.dataFile.Stat()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIOFailure, err)
	}
	nextFreeSector := int(st.Size() / SectorSize)
	if nextFreeSector == 0 {
		nextFreeSector = 1 // sector 0 is reserved to mean "end of chain"
	}

	startSector := nextFreeSector
	remaining := len(data)
	position := 0
	written := 0
	sectorNum := nextFreeSector

	for remaining > 0 {
		n := payloadSize
		if n > remaining {
			n = remaining
		}

		isLast := remaining-n == 0
		next := 0
		if !isLast {
			next = sectorNum + 1
		}

		s := sector{
			archiveID:   archiveID,
			position:    position,
			nextSector:  next,
			indexFileID: idx,
			payload:     data[written : written+n],
		}
		raw := encodeSector(s)
		if err := writeFullyAt(fs.dataFile, raw, int64(sectorNum)*SectorSize); err != nil {
			return err
		}

		written += n
		remaining -= n
		position++
		sectorNum++
	}

	indexBuf := encodeIndex(Index{Size: len(data), StartSector: startSector})
	offset := int64(archiveID) * indexRecordSize
	if err := writeFullyAt(f, indexBuf, offset); err != nil {
		return err
	}
	return nil
}

// readFullyAt reads exactly len(buf) bytes starting at offset, looping
// over short reads. Hitting EOF (or any other read error) before buf is
// full, or a read that makes no progress, fails the call with
// ErrIOFailure.
func readFullyAt(f *os.File, buf []byte, offset int64) error {
	read := 0
	for read < len(buf) {
		n, err := f.ReadAt(buf[read:], offset+int64(read))
		if n > 0 {
			read += n
		}
		if err != nil {
			if read < len(buf) {
				return fmt.Errorf("%w: short read at offset %d: %v", ErrIOFailure, offset, err)
			}
			break
		}
		if n == 0 {
			return fmt.Errorf("%w: no progress reading at offset %d", ErrIOFailure, offset)
		}
	}
	return nil
}

func writeFullyAt(f *os.File, buf []byte, offset int64) error {
	written := 0
	for written < len(buf) {
		n, err := f.WriteAt(buf[written:], offset+int64(written))
		if err != nil {
			return fmt.Errorf("%w: short write at offset %d: %v", ErrIOFailure, offset, err)
		}
		written += n
	}
	return nil
}
