package flp

import (
	"fmt"
	"math/big"

	"VDAF/internal/field"
)

// maxSumBits bounds the bit width of scalar measurements.
const maxSumBits = 64

// Sum adds up integer measurements in [0, 2^bits).
type Sum struct {
	*Generic[field.Fp128]
	bits int
}

// NewSum returns the Sum type for measurements of the given bit width.
func NewSum(bits int) (*Sum, error) {
	g, err := newBitRangeGeneric(bits)
	if err != nil {
		return nil, err
	}

	return &Sum{Generic: g, bits: bits}, nil
}

// newBitRangeGeneric builds the circuit shared by Sum and Average: every input
// element is a bit, checked with the gadget x^2 - x and combined with powers of
// one joint randomness element.
func newBitRangeGeneric(bits int) (*Generic[field.Fp128], error) {
	if bits <= 0 || bits > maxSumBits {
		return nil, fmt.Errorf("%w: bit width %d outside [1, %d]", ErrInvalidParameter, bits, maxSumBits)
	}

	f := field.F128
	rangeCheck := NewPolyEval([]field.Fp128{f.Zero(), f.One().Neg(), f.One()})

	return NewGeneric(Circuit[field.Fp128]{
		Field:        f,
		Gadgets:      []Gadget[field.Fp128]{rangeCheck},
		Calls:        []int{bits},
		InputLen:     bits,
		JointRandLen: 1,
		OutputLen:    1,
		Eval: func(g []GadgetFunc[field.Fp128], input, jointRand []field.Fp128, _ int) field.Fp128 {
			out := f.Zero()
			r := jointRand[0]

			for _, b := range input {
				out = out.Add(r.Mul(g[0]([]field.Fp128{b})))
				r = r.Mul(jointRand[0])
			}

			return out
		},
	})
}

// encodeBits writes the low bits of m, least significant first.
func encodeBits(f field.Field128, dst []field.Fp128, m uint64) {
	for i := range dst {
		dst[i] = f.FromUint64((m >> uint(i)) & 1)
	}
}

// decodeBits returns sum(2^i * bits[i]).
func decodeBits(f field.Field128, bits []field.Fp128) field.Fp128 {
	out := f.Zero()
	for i, b := range bits {
		out = out.Add(f.FromUint64(1 << uint(i)).Mul(b))
	}
	return out
}

// checkBitRange verifies m fits in bits bits.
func checkBitRange(m uint64, bits int) error {
	if bits < 64 && m>>uint(bits) != 0 {
		return fmt.Errorf("%w: %d does not fit in %d bits", ErrInvalidMeasurement, m, bits)
	}
	return nil
}

func (s *Sum) EncodeMeasurement(m uint64) ([]field.Fp128, error) {
	if err := checkBitRange(m, s.bits); err != nil {
		return nil, err
	}

	out := make([]field.Fp128, s.bits)
	encodeBits(field.F128, out, m)

	return out, nil
}

func (s *Sum) Truncate(input []field.Fp128) ([]field.Fp128, error) {
	if err := checkLen("input", len(input), s.bits); err != nil {
		return nil, err
	}
	return []field.Fp128{decodeBits(field.F128, input)}, nil
}

func (s *Sum) DecodeResult(data []field.Fp128, _ int) (*big.Int, error) {
	if err := checkLen("aggregate", len(data), 1); err != nil {
		return nil, err
	}
	return field.F128.BigInt(data[0]), nil
}

// Average computes the mean of integer measurements in [0, 2^bits).
type Average struct {
	*Generic[field.Fp128]
	bits int
}

// NewAverage returns the Average type for measurements of the given bit width.
func NewAverage(bits int) (*Average, error) {
	g, err := newBitRangeGeneric(bits)
	if err != nil {
		return nil, err
	}

	return &Average{Generic: g, bits: bits}, nil
}

func (a *Average) EncodeMeasurement(m uint64) ([]field.Fp128, error) {
	if err := checkBitRange(m, a.bits); err != nil {
		return nil, err
	}

	out := make([]field.Fp128, a.bits)
	encodeBits(field.F128, out, m)

	return out, nil
}

func (a *Average) Truncate(input []field.Fp128) ([]field.Fp128, error) {
	if err := checkLen("input", len(input), a.bits); err != nil {
		return nil, err
	}
	return []field.Fp128{decodeBits(field.F128, input)}, nil
}

// DecodeResult divides the aggregate sum by the number of measurements.
func (a *Average) DecodeResult(data []field.Fp128, numMeasurements int) (float64, error) {
	if err := checkLen("aggregate", len(data), 1); err != nil {
		return 0, err
	}
	if numMeasurements <= 0 {
		return 0, fmt.Errorf("%w: average over %d measurements", ErrInvalidParameter, numMeasurements)
	}

	sum := new(big.Float).SetInt(field.F128.BigInt(data[0]))
	mean, _ := sum.Quo(sum, new(big.Float).SetInt64(int64(numMeasurements))).Float64()

	return mean, nil
}
