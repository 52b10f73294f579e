package flp

import (
	"fmt"

	"VDAF/internal/field"
)

// Count counts measurements equal to 1. Measurements must be 0 or 1.
type Count struct {
	*Generic[field.Fp64]
}

// NewCount returns the Count type over Field64.
func NewCount() (*Count, error) {
	f := field.F64

	g, err := NewGeneric(Circuit[field.Fp64]{
		Field:     f,
		Gadgets:   []Gadget[field.Fp64]{Mul[field.Fp64]{}},
		Calls:     []int{1},
		InputLen:  1,
		OutputLen: 1,
		Eval: func(g []GadgetFunc[field.Fp64], input, _ []field.Fp64, _ int) field.Fp64 {
			// x*x - x vanishes exactly on {0, 1}
			return g[0]([]field.Fp64{input[0], input[0]}).Sub(input[0])
		},
	})
	if err != nil {
		return nil, err
	}

	return &Count{Generic: g}, nil
}

func (c *Count) EncodeMeasurement(m uint64) ([]field.Fp64, error) {
	if m > 1 {
		return nil, fmt.Errorf("%w: count measurement %d is not 0 or 1", ErrInvalidMeasurement, m)
	}
	return []field.Fp64{field.F64.FromUint64(m)}, nil
}

func (c *Count) Truncate(input []field.Fp64) ([]field.Fp64, error) {
	if err := checkLen("input", len(input), 1); err != nil {
		return nil, err
	}
	return []field.Fp64{input[0]}, nil
}

func (c *Count) DecodeResult(data []field.Fp64, _ int) (uint64, error) {
	if err := checkLen("aggregate", len(data), 1); err != nil {
		return 0, err
	}
	return uint64(data[0]), nil
}
