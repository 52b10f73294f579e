package field

import (
	"bytes"
	"crypto/rand"
	"errors"
	"math/big"
	"testing"
)

// randomBig returns a uniform integer in [0, p).
func randomBig(t *testing.T, p *big.Int) *big.Int {
	t.Helper()

	v, err := rand.Int(rand.Reader, p)
	if err != nil {
		t.Fatalf("random int: %v", err)
	}

	return v
}

// TestFp64MatchesBigInt checks Fp64 arithmetic against math/big.
func TestFp64MatchesBigInt(t *testing.T) {
	p := F64.Modulus()

	for i := 0; i < 500; i++ {
		x, y := randomBig(t, p), randomBig(t, p)
		a, b := Fp64(x.Uint64()), Fp64(y.Uint64())

		checkOp(t, "add", F64.BigInt(a.Add(b)), new(big.Int).Mod(new(big.Int).Add(x, y), p))
		checkOp(t, "sub", F64.BigInt(a.Sub(b)), new(big.Int).Mod(new(big.Int).Sub(x, y), p))
		checkOp(t, "mul", F64.BigInt(a.Mul(b)), new(big.Int).Mod(new(big.Int).Mul(x, y), p))
		checkOp(t, "neg", F64.BigInt(a.Neg()), new(big.Int).Mod(new(big.Int).Neg(x), p))

		if !a.IsZero() {
			checkOp(t, "inv", F64.BigInt(a.Inv()), new(big.Int).ModInverse(x, p))
		}
	}
}

// TestFp128MatchesBigInt checks Fp128 arithmetic against math/big.
func TestFp128MatchesBigInt(t *testing.T) {
	p := F128.Modulus()

	for i := 0; i < 500; i++ {
		x, y := randomBig(t, p), randomBig(t, p)
		a, b := fp128FromBig(x), fp128FromBig(y)

		checkOp(t, "add", F128.BigInt(a.Add(b)), new(big.Int).Mod(new(big.Int).Add(x, y), p))
		checkOp(t, "sub", F128.BigInt(a.Sub(b)), new(big.Int).Mod(new(big.Int).Sub(x, y), p))
		checkOp(t, "mul", F128.BigInt(a.Mul(b)), new(big.Int).Mod(new(big.Int).Mul(x, y), p))
		checkOp(t, "neg", F128.BigInt(a.Neg()), new(big.Int).Mod(new(big.Int).Neg(x), p))

		if !a.IsZero() {
			checkOp(t, "inv", F128.BigInt(a.Inv()), new(big.Int).ModInverse(x, p))
		}
	}
}

// TestFp128EdgeValues exercises carries around the modulus.
func TestFp128EdgeValues(t *testing.T) {
	p := F128.Modulus()
	pMinusOne := fp128FromBig(new(big.Int).Sub(p, big.NewInt(1)))

	if got := pMinusOne.Add(F128.One()); !got.IsZero() {
		t.Errorf("(p-1)+1: got %v, want 0", got)
	}

	if got := pMinusOne.Mul(pMinusOne); got != F128.One() {
		t.Errorf("(p-1)^2: got %v, want 1", got)
	}

	if got := F128.Zero().Sub(F128.One()); got != pMinusOne {
		t.Errorf("0-1: got %v, want p-1", got)
	}
}

// checkOp compares an operation result with the expected integer.
func checkOp(t *testing.T, op string, got, want *big.Int) {
	t.Helper()

	if got.Cmp(want) != 0 {
		t.Fatalf("%s: got %s, want %s", op, got, want)
	}
}

// TestRootsOfUnity checks that RootOfUnity(n) has order exactly n.
func TestRootsOfUnity(t *testing.T) {
	for _, n := range []int{1, 2, 4, 64, 1 << 20} {
		r64 := F64.RootOfUnity(n)
		if Exp[Fp64](F64, r64, uint64(n)) != F64.One() {
			t.Errorf("Field64 root of order %d: r^n != 1", n)
		}
		if n > 1 && Exp[Fp64](F64, r64, uint64(n/2)) == F64.One() {
			t.Errorf("Field64 root of order %d is not primitive", n)
		}

		r128 := F128.RootOfUnity(n)
		if Exp[Fp128](F128, r128, uint64(n)) != F128.One() {
			t.Errorf("Field128 root of order %d: r^n != 1", n)
		}
		if n > 1 && Exp[Fp128](F128, r128, uint64(n/2)) == F128.One() {
			t.Errorf("Field128 root of order %d is not primitive", n)
		}
	}
}

// TestVecEncodeDecode round-trips a vector through its encoding.
func TestVecEncodeDecode(t *testing.T) {
	v := []Fp128{F128.FromUint64(0), F128.FromUint64(1), F128.One().Neg()}

	encoded := AppendVec[Fp128](F128, nil, v)
	if len(encoded) != len(v)*F128.EncodedSize() {
		t.Fatalf("encoded length: got %d, want %d", len(encoded), len(v)*F128.EncodedSize())
	}

	decoded, err := DecodeVec[Fp128](F128, encoded, len(v))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	for i := range v {
		if decoded[i] != v[i] {
			t.Errorf("element %d: got %v, want %v", i, decoded[i], v[i])
		}
	}

	if _, err := DecodeVec[Fp128](F128, encoded[1:], len(v)); err == nil {
		t.Error("short input should fail")
	}
}

// TestDecodeRejectsNonCanonical checks that encodings of values >= p fail.
func TestDecodeRejectsNonCanonical(t *testing.T) {
	b64 := bytes.Repeat([]byte{0xff}, F64.EncodedSize())
	if _, err := F64.Decode(b64); !errors.Is(err, ErrNonCanonical) {
		t.Errorf("Field64: got %v, want ErrNonCanonical", err)
	}

	b128 := F128.Append(nil, Fp128{hi: p128Hi, lo: p128Lo})
	if _, err := F128.Decode(b128); !errors.Is(err, ErrNonCanonical) {
		t.Errorf("Field128: got %v, want ErrNonCanonical", err)
	}
}

// TestAddVecLengthMismatch checks the defensive length check.
func TestAddVecLengthMismatch(t *testing.T) {
	if err := AddVec(ZeroVec[Fp64](2), ZeroVec[Fp64](3)); err == nil {
		t.Error("mismatched lengths should fail")
	}
}

// TestSampleVec checks that sampling yields canonical elements.
func TestSampleVec(t *testing.T) {
	v, err := SampleVec[Fp128](F128, rand.Reader, 32)
	if err != nil {
		t.Fatalf("sample: %v", err)
	}

	p := F128.Modulus()
	for i, e := range v {
		if F128.BigInt(e).Cmp(p) >= 0 {
			t.Errorf("element %d not reduced", i)
		}
	}
}
