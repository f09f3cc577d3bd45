package crypto

import "math/big"

// RSAExp computes ciphertext = input^exponent mod modulus over signed,
// big-endian, two's-complement byte buffers, matching the reference
// library's BigInteger(byte[]) constructor: a buffer whose leading bit is
// set is read as a negative two's-complement value. On the way out, a zero
// sign byte is prepended when a non-negative result's leading bit would
// otherwise be set.
//
// This wraps math/big's modular exponentiation as an opaque "modpow" per
// spec; nothing else about RSA (key generation, padding schemes) is
// implemented here because the cache format only ever uses raw modpow to
// wrap/unwrap a checksum-table digest.
func RSAExp(input, exponent, modulus []byte) []byte {
	x := bigIntFromSignedBytes(input)
	e := bigIntFromSignedBytes(exponent)
	m := bigIntFromSignedBytes(modulus)

	result := new(big.Int).Exp(x, e, m)
	return signedBytesFromBigInt(result)
}

func bigIntFromSignedBytes(b []byte) *big.Int {
	if len(b) == 0 {
		return big.NewInt(0)
	}
	if b[0]&0x80 == 0 {
		return new(big.Int).SetBytes(b)
	}

	// Negative: two's complement. Invert and add one, then negate.
	inv := make([]byte, len(b))
	for i, v := range b {
		inv[i] = ^v
	}
	mag := new(big.Int).SetBytes(inv)
	mag.Add(mag, big.NewInt(1))
	return mag.Neg(mag)
}

func signedBytesFromBigInt(n *big.Int) []byte {
	if n.Sign() >= 0 {
		b := n.Bytes()
		if len(b) == 0 {
			return []byte{0}
		}
		if b[0]&0x80 != 0 {
			// Would read as negative; prepend a sign byte.
			out := make([]byte, len(b)+1)
			copy(out[1:], b)
			return out
		}
		return b
	}

	mag := new(big.Int).Neg(n)
	b := mag.Bytes()
	// Two's complement of the magnitude, sized to fit the sign bit.
	out := make([]byte, len(b)+1)
	copy(out[1:], b)
	for i := range out {
		out[i] = ^out[i]
	}
	// add one
	for i := len(out) - 1; i >= 0; i-- {
		out[i]++
		if out[i] != 0 {
			break
		}
	}
	// trim a redundant leading 0xFF byte if the next byte still has the
	// sign bit set.
	if len(out) > 1 && out[0] == 0xFF && out[1]&0x80 != 0 {
		out = out[1:]
	}
	return out
}
