package field

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"math/bits"
)

const (
	// p128 is 2^128 - 28*2^64 + 1, split into 64-bit limbs.
	p128Hi uint64 = 0xffffffffffffffe4
	p128Lo uint64 = 0x0000000000000001

	// c128 = 2^128 mod p128 = 28*2^64 - 1.
	c128Hi uint64 = 27
	c128Lo uint64 = 0xffffffffffffffff

	twoAdicity128  = 66
	encodedSize128 = 16
)

// root128 is a primitive 2^66-th root of unity.
var root128 Fp128

func init() {
	p := F128.Modulus()
	root128 = fp128FromBig(twoAdicRoot(p, twoAdicity128))
}

// Fp128 is an element of the 128-bit field GF(2^128 - 28*2^64 + 1).
type Fp128 struct {
	hi uint64 // hi holds bits 64..127
	lo uint64 // lo holds bits 0..63
}

// geP reports whether (hi, lo) >= p128.
func geP(hi, lo uint64) bool {
	return hi > p128Hi || (hi == p128Hi && lo >= p128Lo)
}

// subP returns (hi, lo) - p128 modulo 2^128.
func subP(hi, lo uint64) (uint64, uint64) {
	lo, borrow := bits.Sub64(lo, p128Lo, 0)
	hi, _ = bits.Sub64(hi, p128Hi, borrow)
	return hi, lo
}

// Add returns a + b.
func (a Fp128) Add(b Fp128) Fp128 {
	lo, carry := bits.Add64(a.lo, b.lo, 0)
	hi, carry := bits.Add64(a.hi, b.hi, carry)

	if carry != 0 || geP(hi, lo) {
		hi, lo = subP(hi, lo)
	}

	return Fp128{hi: hi, lo: lo}
}

// Sub returns a - b.
func (a Fp128) Sub(b Fp128) Fp128 {
	lo, borrow := bits.Sub64(a.lo, b.lo, 0)
	hi, borrow := bits.Sub64(a.hi, b.hi, borrow)

	if borrow != 0 {
		var carry uint64
		lo, carry = bits.Add64(lo, p128Lo, 0)
		hi, _ = bits.Add64(hi, p128Hi, carry)
	}

	return Fp128{hi: hi, lo: lo}
}

// Mul returns a * b.
func (a Fp128) Mul(b Fp128) Fp128 {
	r := mul128(a.hi, a.lo, b.hi, b.lo)
	return reduce256(r)
}

// Neg returns -a.
func (a Fp128) Neg() Fp128 {
	return Fp128{}.Sub(a)
}

// Inv returns the multiplicative inverse of a. The inverse of zero is zero.
func (a Fp128) Inv() Fp128 {
	// exponent p-2
	eLo, borrow := bits.Sub64(p128Lo, 2, 0)
	eHi, _ := bits.Sub64(p128Hi, 0, borrow)

	result := Fp128{lo: 1}
	base := a

	for _, limb := range [2]uint64{eLo, eHi} {
		for i := 0; i < 64; i++ {
			if limb&1 == 1 {
				result = result.Mul(base)
			}
			base = base.Mul(base)
			limb >>= 1
		}
	}

	return result
}

// IsZero reports whether a is the additive identity.
func (a Fp128) IsZero() bool {
	return a.hi == 0 && a.lo == 0
}

// String formats the element as a decimal integer.
func (a Fp128) String() string {
	return F128.BigInt(a).String()
}

// mul128 returns the 256-bit product of (aHi, aLo) and (bHi, bLo) as four
// little-endian limbs.
func mul128(aHi, aLo, bHi, bLo uint64) [4]uint64 {
	h00, l00 := bits.Mul64(aLo, bLo)
	h01, l01 := bits.Mul64(aLo, bHi)
	h10, l10 := bits.Mul64(aHi, bLo)
	h11, l11 := bits.Mul64(aHi, bHi)

	r1, c1 := bits.Add64(h00, l01, 0)
	r1, c2 := bits.Add64(r1, l10, 0)
	r2, c3 := bits.Add64(h01, h10, c1)
	r2, c4 := bits.Add64(r2, l11, c2)
	r3 := h11 + c3 + c4

	return [4]uint64{l00, r1, r2, r3}
}

// reduce256 reduces a 256-bit value modulo p128 using 2^128 = c128 (mod p).
// Each folding step strictly shrinks the high half, so the loop runs at most a
// handful of times.
func reduce256(r [4]uint64) Fp128 {
	for r[2] != 0 || r[3] != 0 {
		folded := mul128(r[3], r[2], c128Hi, c128Lo)

		lo, carry := bits.Add64(folded[0], r[0], 0)
		mid, carry := bits.Add64(folded[1], r[1], carry)
		hi, carry := bits.Add64(folded[2], 0, carry)
		top := folded[3] + carry

		r = [4]uint64{lo, mid, hi, top}
	}

	hi, lo := r[1], r[0]
	if geP(hi, lo) {
		hi, lo = subP(hi, lo)
	}

	return Fp128{hi: hi, lo: lo}
}

func fp128FromBig(v *big.Int) Fp128 {
	var buf [encodedSize128]byte
	v.FillBytes(buf[:])

	return Fp128{
		hi: binary.BigEndian.Uint64(buf[0:8]),
		lo: binary.BigEndian.Uint64(buf[8:16]),
	}
}

// Field128 is the descriptor of Fp128.
type Field128 struct{}

// F128 is the shared Field128 descriptor.
var F128 Field128

func (Field128) Name() string { return "Field128" }

func (Field128) EncodedSize() int { return encodedSize128 }

func (Field128) Modulus() *big.Int {
	p := new(big.Int).SetUint64(p128Hi)
	p.Lsh(p, 64)
	return p.Or(p, new(big.Int).SetUint64(p128Lo))
}

func (Field128) Zero() Fp128 { return Fp128{} }

func (Field128) One() Fp128 { return Fp128{lo: 1} }

func (Field128) FromUint64(v uint64) Fp128 { return Fp128{lo: v} }

func (Field128) BigInt(e Fp128) *big.Int {
	v := new(big.Int).SetUint64(e.hi)
	v.Lsh(v, 64)
	return v.Or(v, new(big.Int).SetUint64(e.lo))
}

// MaxRootOrder saturates at 2^63; roots up to 2^66 exist but no circuit needs them.
func (Field128) MaxRootOrder() uint64 { return 1 << 63 }

func (Field128) RootOfUnity(n int) Fp128 {
	k := log2(n)
	if k < 0 || k > twoAdicity128 {
		panic(fmt.Sprintf("field: no root of unity of order %d in Field128", n))
	}

	r := root128
	for i := twoAdicity128; i > k; i-- {
		r = r.Mul(r)
	}

	return r
}

func (Field128) Append(dst []byte, e Fp128) []byte {
	dst = binary.LittleEndian.AppendUint64(dst, e.lo)
	return binary.LittleEndian.AppendUint64(dst, e.hi)
}

func (Field128) Decode(b []byte) (Fp128, error) {
	if len(b) != encodedSize128 {
		return Fp128{}, fmt.Errorf("Field128: encoded length %d, want %d", len(b), encodedSize128)
	}

	e, ok := F128.Candidate(b)
	if !ok {
		return Fp128{}, ErrNonCanonical
	}

	return e, nil
}

func (Field128) Candidate(b []byte) (Fp128, bool) {
	lo := binary.LittleEndian.Uint64(b[0:8])
	hi := binary.LittleEndian.Uint64(b[8:16])
	return Fp128{hi: hi, lo: lo}, !geP(hi, lo)
}
