// Package aggregation runs Prio3 preparation over batches of reports for one
// aggregator, checkpointing per-report state and accumulating output shares
// into a persisted aggregate share per batch.
//
// A batch goes through three steps:
//  1. every aggregator runs Init on its reports and broadcasts the resulting frames
//  2. any party runs Combine over all aggregators' frames to get prepare messages
//  3. every aggregator runs Finish on the prepare messages
//
// A report that fails any check is dropped and never retried.
package aggregation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"VDAF/internal/field"
	"VDAF/internal/logger"
	"VDAF/internal/prio3"
	"VDAF/internal/storage"
)

// Aggregator prepares and aggregates reports on behalf of one aggregator id.
type Aggregator[E field.Elem[E], M, R any] struct {
	vdaf      *prio3.Prio3[E, M, R] // vdaf is the shared Prio3 instance
	aggID     uint8                 // aggID is this aggregator's id, 0 for the leader
	verifyKey prio3.VerifyKey       // verifyKey is shared by all aggregators
	store     *storage.Storage      // store holds checkpoints and aggregates
	workers   int                   // workers bounds per-batch parallelism
	log       *slog.Logger
}

// NewAggregator creates the aggregator with id aggID. workers <= 0 selects
// one worker per CPU.
func NewAggregator[E field.Elem[E], M, R any](vdaf *prio3.Prio3[E, M, R], aggID uint8, verifyKey prio3.VerifyKey, store *storage.Storage, workers int) (*Aggregator[E, M, R], error) {
	if int(aggID) >= vdaf.NumAggregators() {
		return nil, fmt.Errorf("aggregator id %d outside [0, %d)", aggID, vdaf.NumAggregators())
	}

	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	return &Aggregator[E, M, R]{
		vdaf:      vdaf,
		aggID:     aggID,
		verifyKey: verifyKey,
		store:     store,
		workers:   workers,
		log:       logger.With("aggregator", aggID),
	}, nil
}

// ID returns the aggregator id.
func (a *Aggregator[E, M, R]) ID() uint8 { return a.aggID }

// Init runs PrepareInit on every report of batch. It returns one frame per
// report, in report order: a FrameShare with the encoded prepare share, or a
// FrameReject. Prepare states are checkpointed in storage for Finish. Every
// report whose nonce repeats within the call, or is still pending in batch, is
// rejected. Only a storage failure or cancellation fails the call.
func (a *Aggregator[E, M, R]) Init(ctx context.Context, batch string, reports []Report) ([]Frame, error) {
	start := time.Now()
	frames := make([]Frame, len(reports))

	repeated := repeatedNonces(len(reports), func(i int) prio3.Nonce { return reports[i].Nonce })

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)

	for i := range reports {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			if repeated[reports[i].Nonce] {
				frames[i] = a.reject(batch, reports[i].Nonce, ErrDuplicateNonce)
				return nil
			}

			frame, err := a.initReport(batch, reports[i])
			if err != nil {
				return err
			}

			frames[i] = frame
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("init batch %s:\n%w", batch, err)
	}

	a.log.Debug("batch initialized", "batch", batch, "reports", len(reports), logger.Timed(start))

	return frames, nil
}

// initReport prepares one report. Protocol failures become a reject frame;
// only storage errors are returned.
func (a *Aggregator[E, M, R]) initReport(batch string, r Report) (Frame, error) {
	public, err := a.vdaf.DecodePublicShare(r.PublicShare)
	if err != nil {
		return a.reject(batch, r.Nonce, err), nil
	}

	input, err := a.vdaf.DecodeInputShare(a.aggID, r.InputShare)
	if err != nil {
		return a.reject(batch, r.Nonce, err), nil
	}

	state, share, err := a.vdaf.PrepareInit(a.verifyKey, a.aggID, r.Nonce, public, input)
	if err != nil {
		return a.reject(batch, r.Nonce, err), nil
	}

	err = a.store.PutPrepareState(batch, r.Nonce, a.vdaf.EncodePrepareState(*state))
	if errors.Is(err, storage.ErrExists) {
		return a.reject(batch, r.Nonce, fmt.Errorf("%w: report still pending", ErrDuplicateNonce)), nil
	}
	if err != nil {
		return Frame{}, fmt.Errorf("checkpoint report %x:\n%w", r.Nonce, err)
	}

	return Frame{
		Type:    FrameShare,
		Nonce:   r.Nonce,
		AggID:   a.aggID,
		Payload: a.vdaf.EncodePrepareShare(*share),
	}, nil
}

// reject logs a dropped report and builds its frame.
func (a *Aggregator[E, M, R]) reject(batch string, nonce prio3.Nonce, err error) Frame {
	a.log.Warn("report rejected", "batch", batch, "nonce", fmt.Sprintf("%x", nonce), "err", err)
	return rejectFrame(nonce, a.aggID, err)
}

// Finish runs PrepareNext for every prepare message of batch and adds the
// resulting output shares to the batch aggregate. Reject frames, and every
// frame whose nonce repeats, discard the report's checkpoint. Only a storage
// failure or cancellation fails the call.
func (a *Aggregator[E, M, R]) Finish(ctx context.Context, batch string, msgs []Frame) (*FinishSummary, error) {
	start := time.Now()
	agg := a.vdaf.NewAggregateShare()
	summary := &FinishSummary{}

	repeated := repeatedNonces(len(msgs), func(i int) prio3.Nonce { return msgs[i].Nonce })

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)

	for _, msg := range msgs {
		msg := msg
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			if repeated[msg.Nonce] {
				msg = rejectFrame(msg.Nonce, a.aggID, ErrDuplicateNonce)
			}

			out, err := a.finishReport(batch, msg)
			if err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()

			if out == nil {
				summary.Rejected++
				return nil
			}

			if err := a.vdaf.Accumulate(agg, out); err != nil {
				return err
			}
			summary.Accepted++

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("finish batch %s:\n%w", batch, err)
	}

	err := a.store.UpdateAggregate(batch, func(rec *storage.AggregateRecord) error {
		if len(rec.Share) > 0 {
			stored, err := a.vdaf.DecodeAggregateShare(rec.Share)
			if err != nil {
				return err
			}
			if err := a.vdaf.Merge(agg, stored); err != nil {
				return err
			}
		}

		rec.Count += uint64(summary.Accepted)
		rec.Share = a.vdaf.EncodeAggregateShare(agg)

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update aggregate of batch %s:\n%w", batch, err)
	}

	a.log.Info("batch finished",
		"batch", batch,
		"accepted", summary.Accepted,
		"rejected", summary.Rejected,
		logger.Timed(start),
	)

	return summary, nil
}

// finishReport completes one report. It returns nil without error when the
// report is dropped.
func (a *Aggregator[E, M, R]) finishReport(batch string, msg Frame) (prio3.OutputShare[E], error) {
	encoded, err := a.store.TakePrepareState(batch, msg.Nonce)
	if errors.Is(err, storage.ErrNotFound) {
		a.log.Warn("no prepare state", "batch", batch, "nonce", fmt.Sprintf("%x", msg.Nonce))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load state of report %x:\n%w", msg.Nonce, err)
	}

	if msg.Type != FrameMessage {
		a.log.Debug("report dropped", "batch", batch, "nonce", fmt.Sprintf("%x", msg.Nonce), "reason", string(msg.Payload))
		return nil, nil
	}

	state, err := a.vdaf.DecodePrepareState(a.aggID, encoded)
	if err != nil {
		return nil, fmt.Errorf("decode state of report %x:\n%w", msg.Nonce, err)
	}

	prepMsg, err := a.vdaf.DecodePrepareMessage(msg.Payload)
	if err != nil {
		a.reject(batch, msg.Nonce, err)
		return nil, nil
	}

	out, err := a.vdaf.PrepareNext(&state, prepMsg)
	if err != nil {
		a.reject(batch, msg.Nonce, err)
		return nil, nil
	}

	return out, nil
}

// Expire discards the checkpoints of batch whose prepare message never arrived.
func (a *Aggregator[E, M, R]) Expire(batch string) (int, error) {
	n, err := a.store.DiscardPrepareStates(batch)
	if err != nil {
		return 0, fmt.Errorf("expire batch %s:\n%w", batch, err)
	}

	if n > 0 {
		a.log.Warn("discarded unfinished reports", "batch", batch, "reports", n)
	}

	return n, nil
}

// AggregateShare returns the encoded aggregate share of batch and the number
// of reports in it.
func (a *Aggregator[E, M, R]) AggregateShare(batch string) ([]byte, uint64, error) {
	rec, err := a.store.Aggregate(batch)
	if err != nil {
		return nil, 0, fmt.Errorf("load aggregate of batch %s:\n%w", batch, err)
	}

	if rec == nil {
		return a.vdaf.EncodeAggregateShare(a.vdaf.NewAggregateShare()), 0, nil
	}

	return rec.Share, rec.Count, nil
}

// repeatedNonces returns the nonces that occur more than once among n items.
func repeatedNonces(n int, nonce func(i int) prio3.Nonce) map[prio3.Nonce]bool {
	seen := make(map[prio3.Nonce]bool, n)
	repeated := make(map[prio3.Nonce]bool)

	for i := 0; i < n; i++ {
		if seen[nonce(i)] {
			repeated[nonce(i)] = true
		}
		seen[nonce(i)] = true
	}

	return repeated
}
