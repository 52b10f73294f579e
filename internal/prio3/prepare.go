package prio3

import (
	"VDAF/internal/field"
	"VDAF/internal/xof"
)

// PrepareInit starts preparation of one report at aggregator aggID. It
// expands the input share, derives the joint randomness this aggregator
// believes in, and computes its verifier share.
//
// The aggregator's own joint randomness part is recomputed from its share and
// replaces the one in the public share, so a Client that publishes an
// inconsistent part is caught in PrepareNext.
func (p *Prio3[E, M, R]) PrepareInit(verifyKey VerifyKey, aggID uint8, nonce Nonce, public PublicShare, input InputShare[E]) (*PrepareState[E], *PrepareShare[E], error) {
	const op = "PrepareInit"

	if err := p.checkAggID(op, aggID); err != nil {
		return nil, nil, err
	}

	measurement, err := p.measurementShare(aggID, input.MeasurementShare)
	if err != nil {
		return nil, nil, opError(op, err)
	}

	proof, err := p.proofShare(aggID, input.ProofShare)
	if err != nil {
		return nil, nil, opError(op, err)
	}

	state := &PrepareState[E]{
		MeasurementShare: input.MeasurementShare,
		AggID:            aggID,
		VerifierLen:      p.typ.VerifierLen(),
	}
	share := &PrepareShare[E]{}

	var jointRand []E
	if p.jointRand {
		if input.JointRandBlind == nil {
			return nil, nil, opErrorf(op, ErrJointRandMissing, "input share has no blind")
		}
		if len(public.JointRandParts) != p.numAggregators {
			return nil, nil, opErrorf(op, ErrJointRandMissing, "public share has %d parts, want %d", len(public.JointRandParts), p.numAggregators)
		}

		part := p.jointRandPart(*input.JointRandBlind, aggID, nonce, measurement)

		parts := append([]xof.Seed(nil), public.JointRandParts...)
		parts[aggID] = part
		seed := p.jointRandSeed(parts)

		jointRand = p.jointRandVec(seed)
		state.JointRandSeed = &seed
		share.JointRandPart = &part
	} else if input.JointRandBlind != nil || len(public.JointRandParts) != 0 {
		return nil, nil, opError(op, ErrJointRandUnused)
	}

	queryRand := p.queryRandVec(verifyKey, nonce)

	verifier, err := p.typ.Query(measurement, proof, queryRand, jointRand, p.numAggregators)
	if err != nil {
		return nil, nil, opWrap(op, classify(err), err)
	}
	share.Verifier = verifier

	return state, share, nil
}

// PrepareSharesToPrepareMessage combines the prepare shares of all aggregators,
// in aggregator id order, and checks the proof. It fails if any aggregator's
// share is missing or malformed, or if the combined verifier rejects.
func (p *Prio3[E, M, R]) PrepareSharesToPrepareMessage(shares []PrepareShare[E]) (PrepareMessage, error) {
	const op = "PrepareSharesToPrepareMessage"

	if len(shares) != p.numAggregators {
		return PrepareMessage{}, opErrorf(op, ErrShareCount, "got %d prepare shares, want %d", len(shares), p.numAggregators)
	}

	verifierLen := p.typ.VerifierLen()
	verifier := field.ZeroVec[E](verifierLen)

	for i, share := range shares {
		if len(share.Verifier) != verifierLen {
			return PrepareMessage{}, opErrorf(op, ErrVerifierLength, "aggregator %d sent %d elements, want %d", i, len(share.Verifier), verifierLen)
		}
		if err := field.AddVec[E](verifier, share.Verifier); err != nil {
			return PrepareMessage{}, opWrap(op, ErrVerifierLength, err)
		}
	}

	ok, err := p.typ.Decide(verifier)
	if err != nil {
		return PrepareMessage{}, opWrap(op, classify(err), err)
	}
	if !ok {
		return PrepareMessage{}, opError(op, ErrVerifierCheck)
	}

	if !p.jointRand {
		for i, share := range shares {
			if share.JointRandPart != nil {
				return PrepareMessage{}, opErrorf(op, ErrJointRandUnused, "aggregator %d sent a joint randomness part", i)
			}
		}
		return PrepareMessage{}, nil
	}

	parts := make([]xof.Seed, len(shares))
	for i, share := range shares {
		if share.JointRandPart == nil {
			return PrepareMessage{}, opErrorf(op, ErrJointRandMissing, "aggregator %d sent no joint randomness part", i)
		}
		parts[i] = *share.JointRandPart
	}

	seed := p.jointRandSeed(parts)

	return PrepareMessage{JointRandSeed: &seed}, nil
}

// PrepareNext finishes preparation. The joint randomness this aggregator used
// must equal the one every aggregator's part combines into; on success the
// measurement share is truncated to an output share.
func (p *Prio3[E, M, R]) PrepareNext(state *PrepareState[E], msg PrepareMessage) (OutputShare[E], error) {
	const op = "PrepareNext"

	if state == nil {
		return nil, opErrorf(op, ErrProtocol, "no prepare state")
	}
	if err := p.checkAggID(op, state.AggID); err != nil {
		return nil, err
	}

	if p.jointRand {
		if state.JointRandSeed == nil || msg.JointRandSeed == nil {
			return nil, opError(op, ErrJointRandMissing)
		}
		if !state.JointRandSeed.Equal(*msg.JointRandSeed) {
			return nil, opError(op, ErrJointRandMismatch)
		}
	} else if state.JointRandSeed != nil || msg.JointRandSeed != nil {
		return nil, opError(op, ErrJointRandUnused)
	}

	measurement, err := p.measurementShare(state.AggID, state.MeasurementShare)
	if err != nil {
		return nil, opError(op, err)
	}

	out, err := p.typ.Truncate(measurement)
	if err != nil {
		return nil, opWrap(op, classify(err), err)
	}

	return OutputShare[E](out), nil
}

// measurementShare returns the explicit measurement share of aggregator aggID.
func (p *Prio3[E, M, R]) measurementShare(aggID uint8, s Share[E]) ([]E, error) {
	return p.expandShare(aggID, s, p.typ.InputLen(), p.expandMeasurementShare)
}

// proofShare returns the explicit proof share of aggregator aggID.
func (p *Prio3[E, M, R]) proofShare(aggID uint8, s Share[E]) ([]E, error) {
	return p.expandShare(aggID, s, p.typ.ProofLen(), p.expandProofShare)
}

// expandShare resolves a share to its vector. The leader must hold a
// LeaderShare of length n; every helper must hold a HelperShare.
func (p *Prio3[E, M, R]) expandShare(aggID uint8, s Share[E], n int, expand func(xof.Seed, uint8) []E) ([]E, error) {
	switch s := s.(type) {
	case LeaderShare[E]:
		if aggID != 0 {
			return nil, errorf(ErrShareRole, "aggregator %d holds a leader share", aggID)
		}
		if len(s.Data) != n {
			return nil, errorf(ErrShareLength, "leader share has %d elements, want %d", len(s.Data), n)
		}
		return s.Data, nil

	case HelperShare:
		if aggID == 0 {
			return nil, errorf(ErrShareRole, "leader holds a helper share")
		}
		return expand(s.Seed, aggID), nil

	default:
		return nil, errorf(ErrShareRole, "aggregator %d holds no share", aggID)
	}
}
