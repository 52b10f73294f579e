package field

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"math/bits"
)

const (
	// p64 is 2^64 - 2^32 + 1.
	p64 uint64 = 0xffffffff00000001

	// twoAdicity64 is the largest s with 2^s dividing p64-1.
	twoAdicity64 = 32

	// encodedSize64 is the byte length of an encoded Fp64.
	encodedSize64 = 8
)

// root64 is a primitive 2^32-th root of unity.
var root64 Fp64

func init() {
	root64 = Fp64(twoAdicRoot(new(big.Int).SetUint64(p64), twoAdicity64).Uint64())
}

// Fp64 is an element of the 64-bit field GF(2^64 - 2^32 + 1).
type Fp64 uint64

// Add returns a + b.
func (a Fp64) Add(b Fp64) Fp64 {
	s, carry := bits.Add64(uint64(a), uint64(b), 0)
	if carry != 0 || s >= p64 {
		s -= p64
	}
	return Fp64(s)
}

// Sub returns a - b.
func (a Fp64) Sub(b Fp64) Fp64 {
	d, borrow := bits.Sub64(uint64(a), uint64(b), 0)
	if borrow != 0 {
		d += p64
	}
	return Fp64(d)
}

// Mul returns a * b.
func (a Fp64) Mul(b Fp64) Fp64 {
	// Both operands are below p, so hi < p and Div64 cannot panic.
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	_, rem := bits.Div64(hi, lo, p64)
	return Fp64(rem)
}

// Neg returns -a.
func (a Fp64) Neg() Fp64 {
	if a == 0 {
		return 0
	}
	return Fp64(p64 - uint64(a))
}

// Inv returns the multiplicative inverse of a. The inverse of zero is zero.
func (a Fp64) Inv() Fp64 {
	return Exp[Fp64](F64, a, p64-2)
}

// IsZero reports whether a is the additive identity.
func (a Fp64) IsZero() bool {
	return a == 0
}

// String formats the element as a decimal integer.
func (a Fp64) String() string {
	return fmt.Sprintf("%d", uint64(a))
}

// Field64 is the descriptor of Fp64.
type Field64 struct{}

// F64 is the shared Field64 descriptor.
var F64 Field64

func (Field64) Name() string { return "Field64" }

func (Field64) EncodedSize() int { return encodedSize64 }

func (Field64) Modulus() *big.Int { return new(big.Int).SetUint64(p64) }

func (Field64) Zero() Fp64 { return 0 }

func (Field64) One() Fp64 { return 1 }

func (Field64) FromUint64(v uint64) Fp64 {
	if v >= p64 {
		v -= p64
	}
	return Fp64(v)
}

func (Field64) BigInt(e Fp64) *big.Int { return new(big.Int).SetUint64(uint64(e)) }

func (Field64) MaxRootOrder() uint64 { return 1 << twoAdicity64 }

func (Field64) RootOfUnity(n int) Fp64 {
	k := log2(n)
	if k < 0 || k > twoAdicity64 {
		panic(fmt.Sprintf("field: no root of unity of order %d in Field64", n))
	}

	r := root64
	for i := twoAdicity64; i > k; i-- {
		r = r.Mul(r)
	}

	return r
}

func (Field64) Append(dst []byte, e Fp64) []byte {
	return binary.LittleEndian.AppendUint64(dst, uint64(e))
}

func (Field64) Decode(b []byte) (Fp64, error) {
	if len(b) != encodedSize64 {
		return 0, fmt.Errorf("Field64: encoded length %d, want %d", len(b), encodedSize64)
	}

	v := binary.LittleEndian.Uint64(b)
	if v >= p64 {
		return 0, ErrNonCanonical
	}

	return Fp64(v), nil
}

func (Field64) Candidate(b []byte) (Fp64, bool) {
	v := binary.LittleEndian.Uint64(b)
	return Fp64(v), v < p64
}
