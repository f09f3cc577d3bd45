package cache

// indexRecordSize is the fixed size of one Index record: u24 size + u24
// startSector.
const indexRecordSize = 6

// metaIndexFileID is the index file id whose archives are reference tables
// for the real data-plane index files.
const metaIndexFileID = 255

// Index describes where one archive's bytes begin and how long they are.
type Index struct {
	Size        int
	StartSector int
}

func decodeIndex(raw []byte) Index {
	return Index{
		Size:        int(be24(raw[0:3])),
		StartSector: int(be24(raw[3:6])),
	}
}

func encodeIndex(idx Index) []byte {
	raw := make([]byte, indexRecordSize)
	putBE24(raw[0:3], uint32(idx.Size))
	putBE24(raw[3:6], uint32(idx.StartSector))
	return raw
}
