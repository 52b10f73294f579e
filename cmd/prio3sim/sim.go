package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"VDAF/internal/aggregation"
	"VDAF/internal/field"
	"VDAF/internal/logger"
	"VDAF/internal/prio3"
	"VDAF/internal/storage"
)

// dispatch builds the Prio3 variant named by cfg and simulates it over the
// configured measurements. It returns the printable aggregate result.
func dispatch(ctx context.Context, cfg *Config) (string, error) {
	opts, err := cfg.options()
	if err != nil {
		return "", err
	}

	switch cfg.Type {
	case "count":
		vdaf, err := prio3.NewCount(cfg.Aggregators, opts...)
		if err != nil {
			return "", err
		}
		ms, err := parseUints(cfg.Measurements)
		if err != nil {
			return "", err
		}
		return report(ctx, cfg, vdaf, ms)

	case "sum":
		vdaf, err := prio3.NewSum(cfg.Aggregators, cfg.Bits, opts...)
		if err != nil {
			return "", err
		}
		ms, err := parseUints(cfg.Measurements)
		if err != nil {
			return "", err
		}
		return report(ctx, cfg, vdaf, ms)

	case "sumvec":
		vdaf, err := prio3.NewSumVec(cfg.Aggregators, cfg.Length, cfg.Bits, cfg.Chunk, opts...)
		if err != nil {
			return "", err
		}
		ms, err := parseVectors(cfg.Measurements)
		if err != nil {
			return "", err
		}
		return report(ctx, cfg, vdaf, ms)

	case "histogram":
		vdaf, err := prio3.NewHistogram(cfg.Aggregators, cfg.Length, cfg.Chunk, opts...)
		if err != nil {
			return "", err
		}
		ms, err := parseInts(cfg.Measurements)
		if err != nil {
			return "", err
		}
		return report(ctx, cfg, vdaf, ms)

	case "average":
		vdaf, err := prio3.NewAverage(cfg.Aggregators, cfg.Bits, opts...)
		if err != nil {
			return "", err
		}
		ms, err := parseUints(cfg.Measurements)
		if err != nil {
			return "", err
		}
		return report(ctx, cfg, vdaf, ms)

	default:
		return "", fmt.Errorf("unknown type %q", cfg.Type)
	}
}

// report simulates vdaf over ms and renders the result.
func report[E field.Elem[E], M, R any](ctx context.Context, cfg *Config, vdaf *prio3.Prio3[E, M, R], ms []M) (string, error) {
	result, count, err := simulate(ctx, cfg, vdaf, ms)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%v (%d reports)", result, count), nil
}

// simulate runs the full pipeline: the client shards every measurement, each
// aggregator prepares its input shares against its own store, the prepare
// frames are exchanged in wire form, and the collector unshards the
// aggregator snapshots.
func simulate[E field.Elem[E], M, R any](ctx context.Context, cfg *Config, vdaf *prio3.Prio3[E, M, R], measurements []M) (R, uint64, error) {
	var zero R
	start := time.Now()

	stores, err := openStores(cfg.DataPath, vdaf.NumAggregators())
	if err != nil {
		return zero, 0, err
	}
	defer closeStores(stores)

	aggs := make([]*aggregation.Aggregator[E, M, R], len(stores))
	for i, store := range stores {
		aggs[i], err = aggregation.NewAggregator(vdaf, uint8(i), cfg.VerifyKey, store, cfg.Workers)
		if err != nil {
			return zero, 0, err
		}
	}

	reports, err := shardAll(vdaf, measurements)
	if err != nil {
		return zero, 0, err
	}

	// each aggregator broadcasts its frames in wire form
	frames := make([][]aggregation.Frame, len(aggs))
	for i, agg := range aggs {
		out, err := agg.Init(ctx, cfg.Batch, reports[i])
		if err != nil {
			return zero, 0, err
		}

		frames[i], err = aggregation.DecodeFrames(aggregation.EncodeFrames(out))
		if err != nil {
			return zero, 0, fmt.Errorf("aggregator %d frames:\n%w", i, err)
		}
	}

	msgs, err := aggregation.Combine(vdaf, frames)
	if err != nil {
		return zero, 0, fmt.Errorf("combine:\n%w", err)
	}

	wire := aggregation.EncodeFrames(msgs)

	snapshots := make([][]byte, len(aggs))
	for i, agg := range aggs {
		received, err := aggregation.DecodeFrames(wire)
		if err != nil {
			return zero, 0, fmt.Errorf("aggregator %d messages:\n%w", i, err)
		}

		if _, err := agg.Finish(ctx, cfg.Batch, received); err != nil {
			return zero, 0, err
		}

		if _, err := agg.Expire(cfg.Batch); err != nil {
			return zero, 0, err
		}

		snapshots[i], err = stores[i].Snapshot()
		if err != nil {
			return zero, 0, fmt.Errorf("aggregator %d snapshot:\n%w", i, err)
		}
	}

	result, count, err := aggregation.NewCollector(vdaf).CollectSnapshots(cfg.Batch, snapshots)
	if err != nil {
		return zero, 0, fmt.Errorf("collect:\n%w", err)
	}

	logger.Info("simulation complete",
		"measurements", len(measurements),
		"aggregated", count,
		logger.Timed(start),
	)

	return result, count, nil
}

// shardAll shards every measurement and returns reports[i] for aggregator i.
// An invalid measurement is logged and skipped, as a client would refuse it.
func shardAll[E field.Elem[E], M, R any](vdaf *prio3.Prio3[E, M, R], measurements []M) ([][]aggregation.Report, error) {
	reports := make([][]aggregation.Report, vdaf.NumAggregators())

	for n, m := range measurements {
		nonce, err := newNonce()
		if err != nil {
			return nil, err
		}

		public, inputs, err := vdaf.Shard(m, nonce)
		if err != nil {
			logger.Warn("measurement skipped", "index", n, "err", err)
			continue
		}

		encodedPublic := vdaf.EncodePublicShare(public)
		for i, input := range inputs {
			reports[i] = append(reports[i], aggregation.Report{
				Nonce:       nonce,
				PublicShare: encodedPublic,
				InputShare:  vdaf.EncodeInputShare(input),
			})
		}
	}

	return reports, nil
}

// newNonce draws a random report nonce.
func newNonce() (prio3.Nonce, error) {
	var nonce prio3.Nonce
	if _, err := rand.Read(nonce[:]); err != nil {
		return nonce, fmt.Errorf("generate nonce:\n%w", err)
	}
	return nonce, nil
}

// openStores opens one store per aggregator under dataPath.
func openStores(dataPath string, n int) ([]*storage.Storage, error) {
	if err := os.MkdirAll(dataPath, 0755); err != nil {
		return nil, fmt.Errorf("create data directory:\n%w", err)
	}

	stores := make([]*storage.Storage, 0, n)
	for i := 0; i < n; i++ {
		store, err := storage.New(filepath.Join(dataPath, fmt.Sprintf("aggregator-%d", i)))
		if err != nil {
			closeStores(stores)
			return nil, fmt.Errorf("init storage %d:\n%w", i, err)
		}
		stores = append(stores, store)
	}

	return stores, nil
}

func closeStores(stores []*storage.Storage) {
	for i, store := range stores {
		if err := store.Close(); err != nil {
			logger.Error("close storage", "aggregator", i, "err", err)
		}
	}
}
