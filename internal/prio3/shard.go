package prio3

import (
	"fmt"
	"io"

	"VDAF/internal/field"
	"VDAF/internal/xof"
)

// helperSeeds are the seeds the Client draws for one helper.
type helperSeeds struct {
	measurement xof.Seed // measurement expands into the helper's measurement share
	proof       xof.Seed // proof expands into the helper's proof share
	blind       xof.Seed // blind keys the helper's joint randomness part
}

// Shard splits m into a public share and one input share per aggregator,
// drawing RandomSize bytes from the configured entropy source.
func (p *Prio3[E, M, R]) Shard(m M, nonce Nonce) (PublicShare, []InputShare[E], error) {
	random := make([]byte, p.RandomSize())
	if _, err := io.ReadFull(p.random, random); err != nil {
		return PublicShare{}, nil, opWrap("Shard", ErrRandomness, err)
	}

	return p.ShardWithRandom(m, nonce, random)
}

// ShardWithRandom is Shard with caller-supplied randomness. random must be
// exactly RandomSize bytes:
// per helper [measurement seed] [proof seed] [blind], then [leader blind], then [prove seed].
// Blinds are present only when the type uses joint randomness.
func (p *Prio3[E, M, R]) ShardWithRandom(m M, nonce Nonce, random []byte) (PublicShare, []InputShare[E], error) {
	if len(random) != p.RandomSize() {
		return PublicShare{}, nil, opErrorf("Shard", ErrRandomness, "got %d random bytes, want %d", len(random), p.RandomSize())
	}

	input, err := p.typ.EncodeMeasurement(m)
	if err != nil {
		return PublicShare{}, nil, opWrap("Shard", classify(err), err)
	}

	seeds := seedReader{buf: random}
	helpers := make([]helperSeeds, p.numAggregators-1)

	for i := range helpers {
		helpers[i].measurement = seeds.next()
		helpers[i].proof = seeds.next()
		if p.jointRand {
			helpers[i].blind = seeds.next()
		}
	}

	var leaderBlind xof.Seed
	if p.jointRand {
		leaderBlind = seeds.next()
	}
	proveSeed := seeds.next()

	leaderMeasurement := append([]E(nil), input...)
	var parts []xof.Seed
	if p.jointRand {
		parts = make([]xof.Seed, p.numAggregators)
	}

	for i, h := range helpers {
		aggID := uint8(i + 1)
		share := p.expandMeasurementShare(h.measurement, aggID)

		if err := field.SubVec[E](leaderMeasurement, share); err != nil {
			return PublicShare{}, nil, opWrap("Shard", ErrInvalidConfig, err)
		}

		if p.jointRand {
			parts[aggID] = p.jointRandPart(h.blind, aggID, nonce, share)
		}
	}

	var jointRand []E
	if p.jointRand {
		parts[0] = p.jointRandPart(leaderBlind, 0, nonce, leaderMeasurement)
		jointRand = p.jointRandVec(p.jointRandSeed(parts))
	}

	proof, err := p.typ.Prove(input, p.proveRandVec(proveSeed), jointRand)
	if err != nil {
		return PublicShare{}, nil, opWrap("Shard", classify(err), err)
	}

	leaderProof := proof
	for i, h := range helpers {
		if err := field.SubVec[E](leaderProof, p.expandProofShare(h.proof, uint8(i+1))); err != nil {
			return PublicShare{}, nil, opWrap("Shard", ErrInvalidConfig, err)
		}
	}

	inputs := make([]InputShare[E], p.numAggregators)
	inputs[0] = InputShare[E]{
		MeasurementShare: LeaderShare[E]{Data: leaderMeasurement},
		ProofShare:       LeaderShare[E]{Data: leaderProof},
	}
	for i, h := range helpers {
		inputs[i+1] = InputShare[E]{
			MeasurementShare: HelperShare{Seed: h.measurement},
			ProofShare:       HelperShare{Seed: h.proof},
		}
	}

	if !p.jointRand {
		return PublicShare{}, inputs, nil
	}

	inputs[0].JointRandBlind = &leaderBlind
	for i := range helpers {
		blind := helpers[i].blind
		inputs[i+1].JointRandBlind = &blind
	}

	return PublicShare{JointRandParts: parts}, inputs, nil
}

// seedReader cuts consecutive seeds out of a random buffer sized by RandomSize.
type seedReader struct {
	buf []byte
	off int
}

func (r *seedReader) next() xof.Seed {
	if r.off+xof.SeedSize > len(r.buf) {
		panic(fmt.Sprintf("prio3: randomness exhausted at offset %d", r.off))
	}

	var s xof.Seed
	copy(s[:], r.buf[r.off:])
	r.off += xof.SeedSize

	return s
}
