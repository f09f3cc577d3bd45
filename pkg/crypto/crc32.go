package crypto

import "hash/crc32"

// CRC32 computes the IEEE-polynomial CRC32 of data, as used for both
// reference-table entry checksums and the checksum table's per-index
// archive CRC.
func CRC32(data []byte) int32 {
	return int32(crc32.ChecksumIEEE(data))
}
