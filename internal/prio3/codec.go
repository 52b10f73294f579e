package prio3

import (
	"fmt"

	"VDAF/internal/field"
	"VDAF/internal/xof"
)

// Wire encodings. Messages are plain concatenations with no framing, so
// decoding needs the instance parameters (and, for input shares and prepare
// states, the aggregator id) to know where each field ends.

// EncodePublicShare encodes a public share.
// Format: [N x 16B joint randomness part], or nothing without joint randomness.
func (p *Prio3[E, M, R]) EncodePublicShare(s PublicShare) []byte {
	buf := make([]byte, 0, len(s.JointRandParts)*xof.SeedSize)
	for _, part := range s.JointRandParts {
		buf = append(buf, part[:]...)
	}
	return buf
}

// DecodePublicShare decodes a public share.
func (p *Prio3[E, M, R]) DecodePublicShare(data []byte) (PublicShare, error) {
	const op = "DecodePublicShare"

	if !p.jointRand {
		if len(data) != 0 {
			return PublicShare{}, opErrorf(op, ErrDecode, "%d bytes, want 0", len(data))
		}
		return PublicShare{}, nil
	}

	want := p.numAggregators * xof.SeedSize
	if len(data) != want {
		return PublicShare{}, opErrorf(op, ErrDecode, "%d bytes, want %d", len(data), want)
	}

	parts := make([]xof.Seed, p.numAggregators)
	for i := range parts {
		copy(parts[i][:], data[i*xof.SeedSize:])
	}

	return PublicShare{JointRandParts: parts}, nil
}

// EncodeInputShare encodes an input share.
// Format: [measurement share] [proof share] [16B blind, with joint randomness]
// where a leader share is its field elements and a helper share is its seed.
// Both shares must have the same role.
func (p *Prio3[E, M, R]) EncodeInputShare(s InputShare[E]) []byte {
	if isLeader[E](s.MeasurementShare) != isLeader[E](s.ProofShare) {
		panic("prio3: input share mixes leader and helper shares")
	}

	buf := p.appendShare(nil, s.MeasurementShare)
	buf = p.appendShare(buf, s.ProofShare)

	if s.JointRandBlind != nil {
		buf = append(buf, s.JointRandBlind[:]...)
	}

	return buf
}

// DecodeInputShare decodes the input share of aggregator aggID.
func (p *Prio3[E, M, R]) DecodeInputShare(aggID uint8, data []byte) (InputShare[E], error) {
	const op = "DecodeInputShare"

	if err := p.checkAggID(op, aggID); err != nil {
		return InputShare[E]{}, err
	}

	measLen := p.shareLen(aggID, p.typ.InputLen())
	proofLen := p.shareLen(aggID, p.typ.ProofLen())

	want := measLen + proofLen + p.seedLen()
	if len(data) != want {
		return InputShare[E]{}, opErrorf(op, ErrDecode, "%d bytes, want %d", len(data), want)
	}

	meas, err := p.decodeShare(aggID, data[:measLen], p.typ.InputLen())
	if err != nil {
		return InputShare[E]{}, opWrap(op, ErrDecode, fmt.Errorf("measurement share:\n%w", err))
	}

	proof, err := p.decodeShare(aggID, data[measLen:measLen+proofLen], p.typ.ProofLen())
	if err != nil {
		return InputShare[E]{}, opWrap(op, ErrDecode, fmt.Errorf("proof share:\n%w", err))
	}

	s := InputShare[E]{MeasurementShare: meas, ProofShare: proof}
	if p.jointRand {
		s.JointRandBlind = decodeSeed(data[measLen+proofLen:])
	}

	return s, nil
}

// EncodePrepareShare encodes a prepare share.
// Format: [verifier field elements] [16B joint randomness part, with joint randomness]
func (p *Prio3[E, M, R]) EncodePrepareShare(s PrepareShare[E]) []byte {
	buf := field.AppendVec(p.f, nil, s.Verifier)
	if s.JointRandPart != nil {
		buf = append(buf, s.JointRandPart[:]...)
	}
	return buf
}

// DecodePrepareShare decodes a prepare share.
func (p *Prio3[E, M, R]) DecodePrepareShare(data []byte) (PrepareShare[E], error) {
	const op = "DecodePrepareShare"

	verifierLen := p.typ.VerifierLen() * p.f.EncodedSize()
	want := verifierLen + p.seedLen()
	if len(data) != want {
		return PrepareShare[E]{}, opErrorf(op, ErrDecode, "%d bytes, want %d", len(data), want)
	}

	verifier, err := field.DecodeVec(p.f, data[:verifierLen], p.typ.VerifierLen())
	if err != nil {
		return PrepareShare[E]{}, opWrap(op, ErrDecode, err)
	}

	s := PrepareShare[E]{Verifier: verifier}
	if p.jointRand {
		s.JointRandPart = decodeSeed(data[verifierLen:])
	}

	return s, nil
}

// EncodePrepareMessage encodes a prepare message.
// Format: [16B joint randomness seed, with joint randomness]
func (p *Prio3[E, M, R]) EncodePrepareMessage(msg PrepareMessage) []byte {
	if msg.JointRandSeed == nil {
		return []byte{}
	}
	return append([]byte(nil), msg.JointRandSeed[:]...)
}

// DecodePrepareMessage decodes a prepare message.
func (p *Prio3[E, M, R]) DecodePrepareMessage(data []byte) (PrepareMessage, error) {
	if len(data) != p.seedLen() {
		return PrepareMessage{}, opErrorf("DecodePrepareMessage", ErrDecode, "%d bytes, want %d", len(data), p.seedLen())
	}

	if !p.jointRand {
		return PrepareMessage{}, nil
	}

	return PrepareMessage{JointRandSeed: decodeSeed(data)}, nil
}

// EncodePrepareState encodes a prepare state for checkpointing.
// Format: [measurement share] [16B joint randomness seed, with joint randomness]
func (p *Prio3[E, M, R]) EncodePrepareState(s PrepareState[E]) []byte {
	buf := p.appendShare(nil, s.MeasurementShare)
	if s.JointRandSeed != nil {
		buf = append(buf, s.JointRandSeed[:]...)
	}
	return buf
}

// DecodePrepareState decodes the prepare state of aggregator aggID.
func (p *Prio3[E, M, R]) DecodePrepareState(aggID uint8, data []byte) (PrepareState[E], error) {
	const op = "DecodePrepareState"

	if err := p.checkAggID(op, aggID); err != nil {
		return PrepareState[E]{}, err
	}

	measLen := p.shareLen(aggID, p.typ.InputLen())
	want := measLen + p.seedLen()
	if len(data) != want {
		return PrepareState[E]{}, opErrorf(op, ErrDecode, "%d bytes, want %d", len(data), want)
	}

	meas, err := p.decodeShare(aggID, data[:measLen], p.typ.InputLen())
	if err != nil {
		return PrepareState[E]{}, opWrap(op, ErrDecode, err)
	}

	s := PrepareState[E]{
		MeasurementShare: meas,
		AggID:            aggID,
		VerifierLen:      p.typ.VerifierLen(),
	}
	if p.jointRand {
		s.JointRandSeed = decodeSeed(data[measLen:])
	}

	return s, nil
}

// EncodeAggregateShare encodes an aggregate share as OutputLen field elements.
func (p *Prio3[E, M, R]) EncodeAggregateShare(s AggregateShare[E]) []byte {
	return field.AppendVec[E](p.f, nil, s)
}

// DecodeAggregateShare decodes an aggregate share.
func (p *Prio3[E, M, R]) DecodeAggregateShare(data []byte) (AggregateShare[E], error) {
	v, err := field.DecodeVec(p.f, data, p.typ.OutputLen())
	if err != nil {
		return nil, opWrap("DecodeAggregateShare", ErrDecode, err)
	}
	return v, nil
}

// appendShare appends the encoding of one share.
func (p *Prio3[E, M, R]) appendShare(dst []byte, s Share[E]) []byte {
	switch s := s.(type) {
	case LeaderShare[E]:
		return field.AppendVec(p.f, dst, s.Data)
	case HelperShare:
		return append(dst, s.Seed[:]...)
	default:
		panic(fmt.Sprintf("prio3: cannot encode share of type %T", s))
	}
}

// decodeShare parses a share of n elements held by aggID.
func (p *Prio3[E, M, R]) decodeShare(aggID uint8, data []byte, n int) (Share[E], error) {
	if aggID != 0 {
		return HelperShare{Seed: *decodeSeed(data)}, nil
	}

	v, err := field.DecodeVec(p.f, data, n)
	if err != nil {
		return nil, err
	}

	return LeaderShare[E]{Data: v}, nil
}

// shareLen is the encoded length of a share of n elements held by aggID.
func (p *Prio3[E, M, R]) shareLen(aggID uint8, n int) int {
	if aggID == 0 {
		return n * p.f.EncodedSize()
	}
	return xof.SeedSize
}

// seedLen is the length of an optional joint randomness seed.
func (p *Prio3[E, M, R]) seedLen() int {
	if p.jointRand {
		return xof.SeedSize
	}
	return 0
}

// isLeader reports whether s is an explicit leader share.
func isLeader[E field.Elem[E]](s Share[E]) bool {
	_, ok := s.(LeaderShare[E])
	return ok
}

// decodeSeed copies the first SeedSize bytes of data.
func decodeSeed(data []byte) *xof.Seed {
	var s xof.Seed
	copy(s[:], data)
	return &s
}
