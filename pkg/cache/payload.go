package cache

import (
	"fmt"

	"github.com/sectorfs/cachefs/pkg/crypto"
)

// ArchivePayload is the decoded form of the envelope wrapped around every
// archive's raw bytes: a compression tag, the uncompressed data, and an
// optional trailing version word.
type ArchivePayload struct {
	Compression CompressionTag
	Data        []byte
	Version     int16 // -1 if absent
}

// DecodePayload parses raw archive bytes into an ArchivePayload, applying
// XTEA decipherment (when key is non-null) and decompression per
// spec.md §4.2.
func DecodePayload(raw []byte, key crypto.Key) (ArchivePayload, error) {
	if len(raw) < 5 {
		return ArchivePayload{}, fmt.Errorf("%w: payload shorter than header", ErrMalformed)
	}

	buf := append([]byte(nil), raw...) // decipher in place on a private copy
	tag := CompressionTag(buf[0])
	compressedLen := int(be32(buf[1:5]))

	cipherEnd := 5 + compressedLen
	if tag != CompressionNone {
		cipherEnd = 9 + compressedLen
	}
	if cipherEnd > len(buf) {
		return ArchivePayload{}, fmt.Errorf("%w: declared length overruns buffer", ErrMalformed)
	}

	// "Null key" per spec.md §4.6/§9 means any zero word, not just the
	// all-zero key — this is bit-compat with the (likely buggy) reference
	// behavior and must not be "fixed".
	if !keyDisablesEncryption(key) {
		crypto.XTEACipher(buf, key, 5, cipherEnd, false)
	}

	var payload ArchivePayload
	payload.Compression = tag

	if tag == CompressionNone {
		payload.Data = buf[5 : 5+compressedLen]
		off := 5 + compressedLen
		payload.Version = trailingVersion(buf, off)
		return payload, nil
	}

	if len(buf) < 9 {
		return ArchivePayload{}, fmt.Errorf("%w: missing uncompressed length field", ErrMalformed)
	}
	uncompressedLen := int(be32(buf[5:9]))
	bodyStart := 9
	bodyEnd := bodyStart + compressedLen
	if bodyEnd > len(buf) {
		return ArchivePayload{}, fmt.Errorf("%w: compressed body overruns buffer", ErrMalformed)
	}

	decompressed, err := decompress(tag, buf[bodyStart:bodyEnd])
	if err != nil {
		return ArchivePayload{}, err
	}
	if len(decompressed) != uncompressedLen {
		return ArchivePayload{}, fmt.Errorf(
			"%w: uncompressed size mismatch: got %d want %d", ErrMalformed, len(decompressed), uncompressedLen,
		)
	}

	payload.Data = decompressed
	payload.Version = trailingVersion(buf, bodyEnd)
	return payload, nil
}

func trailingVersion(buf []byte, off int) int16 {
	if len(buf)-off >= 2 {
		return int16(be16(buf[off : off+2]))
	}
	return -1
}

// keyDisablesEncryption reports whether key should be treated as "do not
// encipher": true when any of the four words is zero, matching the
// reference implementation's literal (and likely buggy) check rather than
// the stricter "all zero" test. See spec.md §9.
func keyDisablesEncryption(key crypto.Key) bool {
	return key[0] == 0 || key[1] == 0 || key[2] == 0 || key[3] == 0
}

// EncodePayload is the mirror of DecodePayload: it compresses (if
// requested), enciphers the same byte range DecodePayload deciphers, and
// emits the version trailer only when version != -1.
func EncodePayload(p ArchivePayload, key crypto.Key) ([]byte, error) {
	var body []byte
	var uncompressedLen int

	if p.Compression == CompressionNone {
		body = p.Data
	} else {
		uncompressedLen = len(p.Data)
		compressed, err := compress(p.Compression, p.Data)
		if err != nil {
			return nil, err
		}
		body = compressed
	}

	headerSize := 5
	if p.Compression != CompressionNone {
		headerSize = 9
	}

	total := headerSize + len(body)
	if p.Version != -1 {
		total += 2
	}

	buf := make([]byte, total)
	buf[0] = byte(p.Compression)
	putBE32(buf[1:5], uint32(len(body)))

	bodyStart := 5
	if p.Compression != CompressionNone {
		putBE32(buf[5:9], uint32(uncompressedLen))
		bodyStart = 9
	}
	copy(buf[bodyStart:bodyStart+len(body)], body)

	if p.Version != -1 {
		putBE16(buf[bodyStart+len(body):], uint16(p.Version))
	}

	cipherEnd := bodyStart + len(body)
	if !keyDisablesEncryption(key) {
		crypto.XTEACipher(buf, key, 5, cipherEnd, true)
	}

	return buf, nil
}
