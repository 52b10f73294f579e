package flp

import (
	"fmt"
	"math/big"

	"VDAF/internal/field"
)

// chunkedRangeCheck evaluates sum_i r^(i+1) * x_i * (x_i - 1) over input using a
// ParallelSum(Mul, chunk) gadget. Inputs past the end are padded with zero.
func chunkedRangeCheck(f field.Field128, g GadgetFunc[field.Fp128], input []field.Fp128, r field.Fp128, chunk, calls, numShares int) field.Fp128 {
	inv := sharesInv[field.Fp128](f, numShares)
	inputs := make([]field.Fp128, 2*chunk)
	rPower := r
	out := f.Zero()

	for i := 0; i < calls; i++ {
		for j := 0; j < chunk; j++ {
			x := f.Zero()
			if idx := i*chunk + j; idx < len(input) {
				x = input[idx]
			}

			inputs[2*j] = rPower.Mul(x)
			inputs[2*j+1] = x.Sub(inv)
			rPower = rPower.Mul(r)
		}

		out = out.Add(g(inputs))
	}

	return out
}

// chunkCalls returns the number of gadget calls covering n inputs.
func chunkCalls(n, chunk int) int {
	return (n + chunk - 1) / chunk
}

// SumVec adds up vectors of integers, each entry in [0, 2^bits).
type SumVec struct {
	*Generic[field.Fp128]
	length int
	bits   int
}

// NewSumVec returns the SumVec type for vectors of length entries of the given
// bit width, range checked chunk bits per gadget call.
func NewSumVec(length, bits, chunk int) (*SumVec, error) {
	if length <= 0 {
		return nil, fmt.Errorf("%w: vector length %d", ErrInvalidParameter, length)
	}
	if bits <= 0 || bits > maxSumBits {
		return nil, fmt.Errorf("%w: bit width %d outside [1, %d]", ErrInvalidParameter, bits, maxSumBits)
	}
	if chunk <= 0 {
		return nil, fmt.Errorf("%w: chunk length %d", ErrInvalidParameter, chunk)
	}

	f := field.F128
	inputLen := length * bits
	calls := chunkCalls(inputLen, chunk)

	g, err := NewGeneric(Circuit[field.Fp128]{
		Field:        f,
		Gadgets:      []Gadget[field.Fp128]{NewParallelSum[field.Fp128](Mul[field.Fp128]{}, chunk)},
		Calls:        []int{calls},
		InputLen:     inputLen,
		JointRandLen: 1,
		OutputLen:    length,
		Eval: func(g []GadgetFunc[field.Fp128], input, jointRand []field.Fp128, numShares int) field.Fp128 {
			return chunkedRangeCheck(f, g[0], input, jointRand[0], chunk, calls, numShares)
		},
	})
	if err != nil {
		return nil, err
	}

	return &SumVec{Generic: g, length: length, bits: bits}, nil
}

func (s *SumVec) EncodeMeasurement(m []uint64) ([]field.Fp128, error) {
	if len(m) != s.length {
		return nil, fmt.Errorf("%w: vector of length %d, want %d", ErrInvalidMeasurement, len(m), s.length)
	}

	out := make([]field.Fp128, s.length*s.bits)
	for i, v := range m {
		if err := checkBitRange(v, s.bits); err != nil {
			return nil, fmt.Errorf("entry %d:\n%w", i, err)
		}
		encodeBits(field.F128, out[i*s.bits:(i+1)*s.bits], v)
	}

	return out, nil
}

func (s *SumVec) Truncate(input []field.Fp128) ([]field.Fp128, error) {
	if err := checkLen("input", len(input), s.length*s.bits); err != nil {
		return nil, err
	}

	out := make([]field.Fp128, s.length)
	for i := range out {
		out[i] = decodeBits(field.F128, input[i*s.bits:(i+1)*s.bits])
	}

	return out, nil
}

func (s *SumVec) DecodeResult(data []field.Fp128, _ int) ([]*big.Int, error) {
	if err := checkLen("aggregate", len(data), s.length); err != nil {
		return nil, err
	}

	out := make([]*big.Int, len(data))
	for i, e := range data {
		out[i] = field.F128.BigInt(e)
	}

	return out, nil
}

// Histogram counts measurements per bucket. A measurement is a bucket index.
type Histogram struct {
	*Generic[field.Fp128]
	length int
}

// NewHistogram returns the Histogram type with length buckets, range checked
// chunk buckets per gadget call.
func NewHistogram(length, chunk int) (*Histogram, error) {
	if length <= 0 {
		return nil, fmt.Errorf("%w: histogram length %d", ErrInvalidParameter, length)
	}
	if chunk <= 0 {
		return nil, fmt.Errorf("%w: chunk length %d", ErrInvalidParameter, chunk)
	}

	f := field.F128
	calls := chunkCalls(length, chunk)

	g, err := NewGeneric(Circuit[field.Fp128]{
		Field:        f,
		Gadgets:      []Gadget[field.Fp128]{NewParallelSum[field.Fp128](Mul[field.Fp128]{}, chunk)},
		Calls:        []int{calls},
		InputLen:     length,
		JointRandLen: 2,
		OutputLen:    length,
		Eval: func(g []GadgetFunc[field.Fp128], input, jointRand []field.Fp128, numShares int) field.Fp128 {
			rangeCheck := chunkedRangeCheck(f, g[0], input, jointRand[0], chunk, calls, numShares)

			// exactly one bucket is set
			sumCheck := sharesInv[field.Fp128](f, numShares).Neg()
			for _, b := range input {
				sumCheck = sumCheck.Add(b)
			}

			r := jointRand[1]
			return r.Mul(rangeCheck).Add(r.Mul(r).Mul(sumCheck))
		},
	})
	if err != nil {
		return nil, err
	}

	return &Histogram{Generic: g, length: length}, nil
}

func (h *Histogram) EncodeMeasurement(m int) ([]field.Fp128, error) {
	if m < 0 || m >= h.length {
		return nil, fmt.Errorf("%w: bucket %d outside [0, %d)", ErrInvalidMeasurement, m, h.length)
	}

	out := make([]field.Fp128, h.length)
	out[m] = field.F128.One()

	return out, nil
}

func (h *Histogram) Truncate(input []field.Fp128) ([]field.Fp128, error) {
	if err := checkLen("input", len(input), h.length); err != nil {
		return nil, err
	}

	out := make([]field.Fp128, len(input))
	copy(out, input)

	return out, nil
}

func (h *Histogram) DecodeResult(data []field.Fp128, _ int) ([]uint64, error) {
	if err := checkLen("aggregate", len(data), h.length); err != nil {
		return nil, err
	}

	out := make([]uint64, len(data))
	for i, e := range data {
		v := field.F128.BigInt(e)
		if !v.IsUint64() {
			return nil, fmt.Errorf("bucket %d count %s overflows uint64", i, v)
		}
		out[i] = v.Uint64()
	}

	return out, nil
}
