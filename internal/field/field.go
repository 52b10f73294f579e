package field

import (
	"errors"
	"math/big"
)

// ErrNonCanonical is returned when an encoded element is not reduced modulo p.
var ErrNonCanonical = errors.New("field element not canonical")

// Elem is the arithmetic every field element type provides.
// Implementations are value types kept in canonical form, so == is field equality.
type Elem[E any] interface {
	comparable

	Add(E) E
	Sub(E) E
	Mul(E) E
	Neg() E
	Inv() E
	IsZero() bool
}

// Field describes a prime field whose elements have type E.
type Field[E Elem[E]] interface {
	// Name identifies the field in logs and errors.
	Name() string

	// EncodedSize is the number of bytes of one encoded element.
	EncodedSize() int

	// Modulus returns a fresh copy of the field prime.
	Modulus() *big.Int

	Zero() E
	One() E

	// FromUint64 reduces v modulo p.
	FromUint64(v uint64) E

	// BigInt returns the canonical integer representative of e.
	BigInt(e E) *big.Int

	// RootOfUnity returns a primitive n-th root of unity. n must be a power of
	// two not larger than MaxRootOrder.
	RootOfUnity(n int) E

	// MaxRootOrder is the largest power-of-two order with supported roots.
	MaxRootOrder() uint64

	// Append appends the little-endian encoding of e to dst.
	Append(dst []byte, e E) []byte

	// Decode parses exactly EncodedSize bytes, rejecting values >= p.
	Decode(b []byte) (E, error)

	// Candidate interprets EncodedSize bytes as a sampling candidate.
	// It reports false when the candidate must be rejected.
	Candidate(b []byte) (E, bool)
}

// Exp raises e to the power k.
func Exp[E Elem[E]](f Field[E], e E, k uint64) E {
	result := f.One()

	for base := e; k > 0; k >>= 1 {
		if k&1 == 1 {
			result = result.Mul(base)
		}
		base = base.Mul(base)
	}

	return result
}

// twoAdicRoot finds a primitive 2^s-th root of unity for the prime p where
// p-1 = q*2^s with q odd. It uses the least quadratic non-residue g, for which
// g^q has order exactly 2^s.
func twoAdicRoot(p *big.Int, s uint) *big.Int {
	one := big.NewInt(1)
	pMinusOne := new(big.Int).Sub(p, one)
	half := new(big.Int).Rsh(pMinusOne, 1)
	q := new(big.Int).Rsh(pMinusOne, s)

	for g := int64(2); ; g++ {
		candidate := big.NewInt(g)
		if new(big.Int).Exp(candidate, half, p).Cmp(pMinusOne) == 0 {
			return candidate.Exp(candidate, q, p)
		}
	}
}

// log2 returns log2(n) for a power of two n, or -1 otherwise.
func log2(n int) int {
	if n <= 0 || n&(n-1) != 0 {
		return -1
	}

	k := 0
	for n > 1 {
		n >>= 1
		k++
	}

	return k
}
