package aggregation

import (
	"errors"
	"fmt"

	"VDAF/internal/field"
	"VDAF/internal/prio3"
)

var (
	// ErrUnknownReport is returned when an aggregator sent a frame for a report
	// the first aggregator never initialized.
	ErrUnknownReport = errors.New("unknown report")

	// ErrDuplicateNonce rejects reports sharing a nonce within one batch.
	ErrDuplicateNonce = errors.New("duplicate report nonce")
)

// Combine turns the Init frames of all aggregators into one prepare message
// frame per report, in the report order of aggregator 0. frames[i] holds the
// frames of aggregator i. A report rejected by any aggregator, missing at any
// aggregator, sent twice by any aggregator, or failing the proof check gets a
// FrameReject.
func Combine[E field.Elem[E], M, R any](vdaf *prio3.Prio3[E, M, R], frames [][]Frame) ([]Frame, error) {
	n := vdaf.NumAggregators()
	if len(frames) != n {
		return nil, fmt.Errorf("got frames from %d aggregators, want %d", len(frames), n)
	}

	repeated := make(map[prio3.Nonce]bool)
	index := make(map[prio3.Nonce]int, len(frames[0]))
	for i, f := range frames[0] {
		if _, ok := index[f.Nonce]; ok {
			repeated[f.Nonce] = true
		}
		index[f.Nonce] = i
	}

	// byReport[r][j] is aggregator j's frame for report r
	byReport := make([][]*Frame, len(frames[0]))
	for r := range byReport {
		byReport[r] = make([]*Frame, n)
	}

	for j, aggFrames := range frames {
		for k := range aggFrames {
			f := &aggFrames[k]

			if int(f.AggID) != j {
				return nil, fmt.Errorf("frame from aggregator %d in position %d", f.AggID, j)
			}

			r, ok := index[f.Nonce]
			if !ok {
				return nil, fmt.Errorf("aggregator %d report %x:\n%w", j, f.Nonce, ErrUnknownReport)
			}

			if byReport[r][j] != nil {
				repeated[f.Nonce] = true
			}
			byReport[r][j] = f
		}
	}

	out := make([]Frame, len(byReport))
	for r, reportFrames := range byReport {
		nonce := frames[0][r].Nonce
		if repeated[nonce] {
			out[r] = rejectFrame(nonce, 0, ErrDuplicateNonce)
			continue
		}
		out[r] = combineReport(vdaf, nonce, reportFrames)
	}

	return out, nil
}

// combineReport computes the prepare message of one report.
func combineReport[E field.Elem[E], M, R any](vdaf *prio3.Prio3[E, M, R], nonce prio3.Nonce, frames []*Frame) Frame {
	shares := make([]prio3.PrepareShare[E], len(frames))

	for j, f := range frames {
		if f == nil {
			return rejectFrame(nonce, 0, fmt.Errorf("aggregator %d sent no prepare share", j))
		}

		if f.Type != FrameShare {
			return rejectFrame(nonce, 0, fmt.Errorf("rejected by aggregator %d: %s", j, f.Payload))
		}

		share, err := vdaf.DecodePrepareShare(f.Payload)
		if err != nil {
			return rejectFrame(nonce, 0, fmt.Errorf("aggregator %d:\n%w", j, err))
		}

		shares[j] = share
	}

	msg, err := vdaf.PrepareSharesToPrepareMessage(shares)
	if err != nil {
		return rejectFrame(nonce, 0, err)
	}

	return Frame{Type: FrameMessage, Nonce: nonce, Payload: vdaf.EncodePrepareMessage(msg)}
}
