package crypto

// Key is the 4-word XTEA key used to encipher/decipher archive payload
// ranges. A Key with any zero element is treated as "no encryption" by the
// payload codec (see ArchivePayload in pkg/cache); that check lives with
// the caller, not here, since XTEA itself has no notion of a null key.
type Key [4]uint32

// IsNull reports whether every word of the key is zero. The payload codec
// in pkg/cache does not call it: its own check treats a key with *any*
// zero word as disabling encryption.
func (k Key) IsNull() bool {
	return k[0] == 0 && k[1] == 0 && k[2] == 0 && k[3] == 0
}

const xteaGoldenRatio = -0x61C88647 // 0x9E3779B9 as a wrapping int32

// XTEACipher enciphers or deciphers the byte range buf[start:end] in place,
// 8 bytes at a time. Any trailing fragment shorter than 8 bytes is left
// untouched. All arithmetic is wrapping 32-bit signed, matching the
// reference implementation bit-for-bit.
func XTEACipher(buf []byte, key Key, start, end int, encipher bool) {
	numBlocks := (end - start) / 8
	for b := 0; b < numBlocks; b++ {
		off := start + b*8
		v0 := int32(beUint32(buf[off:]))
		v1 := int32(beUint32(buf[off+4:]))

		if encipher {
			v0, v1 = xteaEncipherBlock(v0, v1, key)
		} else {
			v0, v1 = xteaDecipherBlock(v0, v1, key)
		}

		putBeUint32(buf[off:], uint32(v0))
		putBeUint32(buf[off+4:], uint32(v1))
	}
}

func xteaEncipherBlock(v0, v1 int32, key Key) (int32, int32) {
	var sum int32
	const delta = xteaGoldenRatio
	for i := 0; i < 32; i++ {
		v0 += ((v1<<4)^(int32(uint32(v1)>>5))+v1)^(sum+int32(key[sum&3]))
		sum += delta
		v1 += ((v0<<4)^(int32(uint32(v0)>>5))+v0)^(sum+int32(key[(int32(uint32(sum)>>11))&3]))
	}
	return v0, v1
}

func xteaDecipherBlock(v0, v1 int32, key Key) (int32, int32) {
	delta := int32(xteaGoldenRatio)
	sum := delta * 32
	for i := 0; i < 32; i++ {
		v1 -= ((v0<<4)^(int32(uint32(v0)>>5))+v0)^(sum+int32(key[(int32(uint32(sum)>>11))&3]))
		sum -= delta
		v0 -= ((v1<<4)^(int32(uint32(v1)>>5))+v1)^(sum+int32(key[sum&3]))
	}
	return v0, v1
}

func beUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func putBeUint32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}
