package prio3

import (
	"fmt"

	"VDAF/internal/field"
)

// Aggregate sums output shares into a fresh aggregate share.
func (p *Prio3[E, M, R]) Aggregate(outs []OutputShare[E]) (AggregateShare[E], error) {
	agg := p.NewAggregateShare()

	for _, out := range outs {
		if err := p.Accumulate(agg, out); err != nil {
			return nil, err
		}
	}

	return agg, nil
}

// NewAggregateShare returns the empty aggregate share.
func (p *Prio3[E, M, R]) NewAggregateShare() AggregateShare[E] {
	return field.ZeroVec[E](p.typ.OutputLen())
}

// Accumulate adds out into agg in place.
func (p *Prio3[E, M, R]) Accumulate(agg AggregateShare[E], out OutputShare[E]) error {
	if err := field.AddVec[E](agg, out); err != nil {
		return opWrap("Aggregate", ErrShareLength, err)
	}
	return nil
}

// Merge adds the aggregate share src into dst in place.
func (p *Prio3[E, M, R]) Merge(dst, src AggregateShare[E]) error {
	if err := field.AddVec[E](dst, src); err != nil {
		return opWrap("Merge", ErrShareLength, err)
	}
	return nil
}

// Unshard combines the aggregate shares of all aggregators, in any order, and
// decodes the aggregate of numMeasurements measurements.
func (p *Prio3[E, M, R]) Unshard(shares []AggregateShare[E], numMeasurements int) (R, error) {
	const op = "Unshard"
	var zero R

	if len(shares) != p.numAggregators {
		return zero, opErrorf(op, ErrShareCount, "got %d aggregate shares, want %d", len(shares), p.numAggregators)
	}

	sum := p.NewAggregateShare()
	for i, share := range shares {
		if err := field.AddVec[E](sum, share); err != nil {
			return zero, opWrap(op, ErrShareLength, fmt.Errorf("aggregator %d:\n%w", i, err))
		}
	}

	result, err := p.typ.DecodeResult(sum, numMeasurements)
	if err != nil {
		return zero, opWrap(op, classify(err), err)
	}

	return result, nil
}
