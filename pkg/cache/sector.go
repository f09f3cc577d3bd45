package cache

import (
	"fmt"
)

// SectorSize is the fixed on-disk size of every sector (a.k.a.
// DataSegment) in the data file, regardless of layout.
const SectorSize = 520

// normalHeaderSize is the header length of a normal-layout sector
// (archiveId <= 0xFFFF): u16 archiveId, u16 position, u24 next, u8 idx.
const normalHeaderSize = 8

// extendedHeaderSize is the header length of an extended-layout sector
// (archiveId > 0xFFFF): u32 archiveId, u16 position, u24 next, u8 idx.
const extendedHeaderSize = 10

// sector is one decoded 520-byte record from the data file.
type sector struct {
	archiveID   int
	position    int
	nextSector  int
	indexFileID int
	payload     []byte
}

// extendedLayout reports whether archiveId requires the 4-byte-archive-id
// sector layout. This is the sole criterion; the data file mixes both
// layouts freely by archive id magnitude (spec.md §4.1).
func extendedLayout(archiveID int) bool {
	return archiveID > 0xFFFF
}

// decodeSector parses one raw 520-byte block according to the layout
// selected by expectedArchiveID, and validates its header against
// (expectedIndexFileID, expectedArchiveID, expectedPosition). Any mismatch
// is fatal for the read in progress.
func decodeSector(raw []byte, expectedIndexFileID, expectedArchiveID, expectedPosition int) (sector, error) {
	if len(raw) != SectorSize {
		return sector{}, fmt.Errorf("%w: short sector (%d bytes)", ErrMalformed, len(raw))
	}

	var s sector
	var off int

	if extendedLayout(expectedArchiveID) {
		s.archiveID = int(be32(raw[0:4]))
		off = 4
	} else {
		s.archiveID = int(be16(raw[0:2]))
		off = 2
	}

	s.position = int(be16(raw[off : off+2]))
	off += 2
	s.nextSector = int(be24(raw[off : off+3]))
	off += 3
	s.indexFileID = int(raw[off])
	off++

	s.payload = raw[off:]

	if s.indexFileID != expectedIndexFileID || s.archiveID != expectedArchiveID || s.position != expectedPosition {
		return sector{}, fmt.Errorf(
			"%w: sector header mismatch: got (idx=%d aid=%d pos=%d) want (idx=%d aid=%d pos=%d)",
			ErrMalformed, s.indexFileID, s.archiveID, s.position,
			expectedIndexFileID, expectedArchiveID, expectedPosition,
		)
	}

	return s, nil
}

// encodeSector serialises a sector using the layout implied by
// s.archiveID, zero-padding the payload to fill the fixed sector size.
func encodeSector(s sector) []byte {
	raw := make([]byte, SectorSize)
	var off int

	if extendedLayout(s.archiveID) {
		putBE32(raw[0:4], uint32(s.archiveID))
		off = 4
	} else {
		putBE16(raw[0:2], uint16(s.archiveID))
		off = 2
	}

	putBE16(raw[off:off+2], uint16(s.position))
	off += 2
	putBE24(raw[off:off+3], uint32(s.nextSector))
	off += 3
	raw[off] = byte(s.indexFileID)
	off++

	copy(raw[off:], s.payload)
	return raw
}

func be16(b []byte) uint16 { return uint16(b[0])<<8 | uint16(b[1]) }
func be24(b []byte) uint32 { return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2]) }
func be32(b []byte) uint32 { return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]) }

func putBE16(b []byte, v uint16) { b[0] = byte(v >> 8); b[1] = byte(v) }
func putBE24(b []byte, v uint32) { b[0] = byte(v >> 16); b[1] = byte(v >> 8); b[2] = byte(v) }
func putBE32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}
