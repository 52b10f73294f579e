package flp

import (
	"crypto/rand"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"VDAF/internal/field"
)

// randVec samples n uniform field elements.
func randVec[E field.Elem[E]](t *testing.T, f field.Field[E], n int) []E {
	t.Helper()

	v, err := field.SampleVec(f, rand.Reader, n)
	require.NoError(t, err)

	return v
}

// split returns numShares random vectors summing to v.
func split[E field.Elem[E]](t *testing.T, f field.Field[E], v []E, numShares int) [][]E {
	t.Helper()

	shares := make([][]E, numShares)
	shares[0] = append([]E(nil), v...)

	for i := 1; i < numShares; i++ {
		shares[i] = randVec(t, f, len(v))
		require.NoError(t, field.SubVec(shares[0], shares[i]))
	}

	return shares
}

// proveAndVerify runs the proof system on input with numShares verifiers and
// returns the decision.
func proveAndVerify[E field.Elem[E], M, R any](t *testing.T, typ Type[E, M, R], input []E, numShares int) bool {
	t.Helper()

	f := typ.Field()
	proveRand := randVec(t, f, typ.ProveRandLen())
	jointRand := randVec(t, f, typ.JointRandLen())
	queryRand := randVec(t, f, typ.QueryRandLen())

	proof, err := typ.Prove(input, proveRand, jointRand)
	require.NoError(t, err)
	require.Len(t, proof, typ.ProofLen())

	inputShares := split(t, f, input, numShares)
	proofShares := split(t, f, proof, numShares)

	verifier := field.ZeroVec[E](typ.VerifierLen())
	for i := 0; i < numShares; i++ {
		share, err := typ.Query(inputShares[i], proofShares[i], queryRand, jointRand, numShares)
		require.NoError(t, err)
		require.Len(t, share, typ.VerifierLen())
		require.NoError(t, field.AddVec(verifier, share))
	}

	ok, err := typ.Decide(verifier)
	require.NoError(t, err)

	return ok
}

func TestCountProof(t *testing.T) {
	typ, err := NewCount()
	require.NoError(t, err)

	for _, m := range []uint64{0, 1} {
		input, err := typ.EncodeMeasurement(m)
		require.NoError(t, err)

		for _, n := range []int{1, 2, 3} {
			require.True(t, proveAndVerify[field.Fp64, uint64, uint64](t, typ, input, n), "count %d with %d shares", m, n)
		}
	}

	_, err = typ.EncodeMeasurement(2)
	require.ErrorIs(t, err, ErrInvalidMeasurement)

	require.False(t, proveAndVerify[field.Fp64, uint64, uint64](t, typ, []field.Fp64{2}, 2))
}

func TestSumProof(t *testing.T) {
	typ, err := NewSum(8)
	require.NoError(t, err)

	for _, m := range []uint64{0, 1, 200, 255} {
		input, err := typ.EncodeMeasurement(m)
		require.NoError(t, err)
		require.True(t, proveAndVerify[field.Fp128, uint64, *big.Int](t, typ, input, 2))

		out, err := typ.Truncate(input)
		require.NoError(t, err)
		require.Equal(t, field.F128.FromUint64(m), out[0])
	}

	_, err = typ.EncodeMeasurement(256)
	require.ErrorIs(t, err, ErrInvalidMeasurement)

	bad := make([]field.Fp128, 8)
	bad[3] = field.F128.FromUint64(2)
	require.False(t, proveAndVerify[field.Fp128, uint64, *big.Int](t, typ, bad, 2))
}

func TestSumBitWidthBounds(t *testing.T) {
	for _, bits := range []int{0, -1, 65} {
		_, err := NewSum(bits)
		require.ErrorIs(t, err, ErrInvalidParameter, "bits %d", bits)
	}

	typ, err := NewSum(64)
	require.NoError(t, err)

	input, err := typ.EncodeMeasurement(^uint64(0))
	require.NoError(t, err)
	require.True(t, proveAndVerify[field.Fp128, uint64, *big.Int](t, typ, input, 2))
}

func TestSumVecProof(t *testing.T) {
	typ, err := NewSumVec(3, 4, 5)
	require.NoError(t, err)

	input, err := typ.EncodeMeasurement([]uint64{15, 0, 7})
	require.NoError(t, err)
	require.True(t, proveAndVerify[field.Fp128, []uint64, []*big.Int](t, typ, input, 3))

	out, err := typ.Truncate(input)
	require.NoError(t, err)
	require.Equal(t, []field.Fp128{field.F128.FromUint64(15), field.F128.FromUint64(0), field.F128.FromUint64(7)}, out)

	_, err = typ.EncodeMeasurement([]uint64{16, 0, 0})
	require.ErrorIs(t, err, ErrInvalidMeasurement)

	_, err = typ.EncodeMeasurement([]uint64{1})
	require.ErrorIs(t, err, ErrInvalidMeasurement)

	bad := make([]field.Fp128, 12)
	bad[11] = field.F128.FromUint64(3)
	require.False(t, proveAndVerify[field.Fp128, []uint64, []*big.Int](t, typ, bad, 2))
}

func TestHistogramProof(t *testing.T) {
	typ, err := NewHistogram(5, 2)
	require.NoError(t, err)

	for m := 0; m < 5; m++ {
		input, err := typ.EncodeMeasurement(m)
		require.NoError(t, err)
		require.True(t, proveAndVerify[field.Fp128, int, []uint64](t, typ, input, 2), "bucket %d", m)
	}

	_, err = typ.EncodeMeasurement(5)
	require.ErrorIs(t, err, ErrInvalidMeasurement)

	// two buckets set passes the range check but fails the sum check
	twoHot := make([]field.Fp128, 5)
	twoHot[0], twoHot[4] = field.F128.One(), field.F128.One()
	require.False(t, proveAndVerify[field.Fp128, int, []uint64](t, typ, twoHot, 2))

	// zero buckets set
	require.False(t, proveAndVerify[field.Fp128, int, []uint64](t, typ, make([]field.Fp128, 5), 2))
}

func TestAverageDecode(t *testing.T) {
	typ, err := NewAverage(64)
	require.NoError(t, err)

	mean, err := typ.DecodeResult([]field.Fp128{field.F128.FromUint64(25)}, 2)
	require.NoError(t, err)
	require.Equal(t, 12.5, mean)

	_, err = typ.DecodeResult([]field.Fp128{field.F128.FromUint64(25)}, 0)
	require.ErrorIs(t, err, ErrInvalidParameter)
}

func TestTamperedProofRejected(t *testing.T) {
	typ, err := NewHistogram(4, 2)
	require.NoError(t, err)

	f := typ.Field()
	input, err := typ.EncodeMeasurement(1)
	require.NoError(t, err)

	proveRand := randVec(t, f, typ.ProveRandLen())
	jointRand := randVec(t, f, typ.JointRandLen())
	queryRand := randVec(t, f, typ.QueryRandLen())

	proof, err := typ.Prove(input, proveRand, jointRand)
	require.NoError(t, err)

	for i := range proof {
		tampered := append([]field.Fp128(nil), proof...)
		tampered[i] = tampered[i].Add(f.One())

		verifier, err := typ.Query(input, tampered, queryRand, jointRand, 1)
		require.NoError(t, err)

		ok, err := typ.Decide(verifier)
		require.NoError(t, err)
		require.False(t, ok, "tampered proof element %d accepted", i)
	}
}

func TestLengthChecks(t *testing.T) {
	typ, err := NewCount()
	require.NoError(t, err)

	_, err = typ.Prove([]field.Fp64{1, 0}, make([]field.Fp64, typ.ProveRandLen()), nil)
	require.ErrorIs(t, err, ErrLength)

	_, err = typ.Query([]field.Fp64{1}, make([]field.Fp64, typ.ProofLen()-1), make([]field.Fp64, 1), nil, 1)
	require.ErrorIs(t, err, ErrLength)

	_, err = typ.Decide(make([]field.Fp64, typ.VerifierLen()+1))
	require.ErrorIs(t, err, ErrLength)
}

func TestQueryRejectsRootOfUnity(t *testing.T) {
	typ, err := NewCount()
	require.NoError(t, err)

	proof := make([]field.Fp64, typ.ProofLen())
	_, err = typ.Query([]field.Fp64{0}, proof, []field.Fp64{field.F64.One()}, nil, 1)
	require.ErrorIs(t, err, ErrQueryRand)
}

func TestInterpolate(t *testing.T) {
	f := field.F128
	values := randVec[field.Fp128](t, f, 8)
	alpha := f.RootOfUnity(8)

	coeffs := interpolate[field.Fp128](f, values, alpha)

	x := f.One()
	for k := range values {
		require.Equal(t, values[k], polyEval[field.Fp128](f, coeffs, x), "point %d", k)
		x = x.Mul(alpha)
	}
}

func TestPolyEvalGadgetComposition(t *testing.T) {
	f := field.F64
	gadget := NewPolyEval([]field.Fp64{3, 0, 5, 0})
	require.Equal(t, 2, gadget.Degree())

	in := randVec[field.Fp64](t, f, 4)
	composed := gadget.EvalPoly(f, [][]field.Fp64{in})
	require.Len(t, composed, 2*(len(in)-1)+1)

	x := randVec[field.Fp64](t, f, 1)[0]
	want := gadget.Eval(f, []field.Fp64{polyEval[field.Fp64](f, in, x)})
	require.Equal(t, want, polyEval[field.Fp64](f, composed, x))
}

func TestProofLengths(t *testing.T) {
	typ, err := NewHistogram(4, 2)
	require.NoError(t, err)

	// ParallelSum(Mul, 2): arity 4, degree 2, 2 calls -> 4 points
	require.Equal(t, 4+2*3+1, typ.ProofLen())
	require.Equal(t, 1+4+1, typ.VerifierLen())
	require.Equal(t, 4, typ.ProveRandLen())
	require.Equal(t, 1, typ.QueryRandLen())
	require.Equal(t, 2, typ.JointRandLen())
}
