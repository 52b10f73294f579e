package aggregation

import (
	"errors"
	"fmt"

	"VDAF/internal/field"
	"VDAF/internal/prio3"
	"VDAF/internal/storage"
)

var (
	// ErrBatchMissing is returned when an aggregator has no aggregate for the batch.
	ErrBatchMissing = errors.New("batch missing from aggregate snapshot")

	// ErrCountMismatch is returned when aggregators disagree on a batch's report count.
	ErrCountMismatch = errors.New("aggregators disagree on report count")
)

// Collector combines the aggregate shares of all aggregators into the result.
type Collector[E field.Elem[E], M, R any] struct {
	vdaf *prio3.Prio3[E, M, R] // vdaf is the shared Prio3 instance
}

// NewCollector creates a Collector.
func NewCollector[E field.Elem[E], M, R any](vdaf *prio3.Prio3[E, M, R]) *Collector[E, M, R] {
	return &Collector[E, M, R]{vdaf: vdaf}
}

// Collect unshards encoded aggregate shares, one per aggregator in any order,
// covering numMeasurements reports.
func (c *Collector[E, M, R]) Collect(shares [][]byte, numMeasurements uint64) (R, error) {
	var zero R

	decoded := make([]prio3.AggregateShare[E], len(shares))
	for i, data := range shares {
		share, err := c.vdaf.DecodeAggregateShare(data)
		if err != nil {
			return zero, fmt.Errorf("aggregate share %d:\n%w", i, err)
		}
		decoded[i] = share
	}

	result, err := c.vdaf.Unshard(decoded, int(numMeasurements))
	if err != nil {
		return zero, fmt.Errorf("unshard:\n%w", err)
	}

	return result, nil
}

// CollectSnapshots reads batch from every aggregator's storage snapshot and
// returns the aggregate result with the number of reports it covers.
func (c *Collector[E, M, R]) CollectSnapshots(batch string, snapshots [][]byte) (R, uint64, error) {
	var zero R

	shares := make([][]byte, len(snapshots))
	var count uint64

	for i, snap := range snapshots {
		records, err := storage.ReadSnapshot(snap)
		if err != nil {
			return zero, 0, fmt.Errorf("snapshot %d:\n%w", i, err)
		}

		rec, ok := records[batch]
		if !ok {
			return zero, 0, fmt.Errorf("snapshot %d batch %s:\n%w", i, batch, ErrBatchMissing)
		}

		if i > 0 && rec.Count != count {
			return zero, 0, fmt.Errorf("%w: %d and %d", ErrCountMismatch, count, rec.Count)
		}

		count = rec.Count
		shares[i] = rec.Share
	}

	result, err := c.Collect(shares, count)
	if err != nil {
		return zero, 0, err
	}

	return result, count, nil
}
