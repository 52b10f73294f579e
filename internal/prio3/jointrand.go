package prio3

import (
	"VDAF/internal/field"
	"VDAF/internal/xof"
)

// Derivations shared by the Client and the Aggregators. Each one keys the Xof
// with a distinct usage tag.

// expandMeasurementShare regenerates a helper's measurement share.
func (p *Prio3[E, M, R]) expandMeasurementShare(seed xof.Seed, aggID uint8) []E {
	return xof.ExpandVec(p.xof, p.f, seed[:], p.dst(usageMeasurementShare), []byte{aggID}, p.typ.InputLen())
}

// expandProofShare regenerates a helper's proof share.
func (p *Prio3[E, M, R]) expandProofShare(seed xof.Seed, aggID uint8) []E {
	return xof.ExpandVec(p.xof, p.f, seed[:], p.dst(usageProofShare), []byte{aggID}, p.typ.ProofLen())
}

// jointRandPart binds one aggregator's measurement share to the joint randomness:
// Xof(blind, part tag) absorbing [1B agg id] [nonce] [encoded share].
func (p *Prio3[E, M, R]) jointRandPart(blind xof.Seed, aggID uint8, nonce Nonce, measurementShare []E) xof.Seed {
	binder := append([]byte{aggID}, nonce[:]...)
	binder = field.AppendVec(p.f, binder, measurementShare)

	return xof.DeriveSeed(p.xof, blind[:], p.dst(usageJointRandPart), binder)
}

// jointRandSeed combines all parts, in aggregator id order, into one seed.
func (p *Prio3[E, M, R]) jointRandSeed(parts []xof.Seed) xof.Seed {
	var zero xof.Seed

	binder := make([]byte, 0, len(parts)*xof.SeedSize)
	for _, part := range parts {
		binder = append(binder, part[:]...)
	}

	return xof.DeriveSeed(p.xof, zero[:], p.dst(usageJointRandSeed), binder)
}

// jointRandVec expands a joint randomness seed into the vector the FLP consumes.
func (p *Prio3[E, M, R]) jointRandVec(seed xof.Seed) []E {
	return xof.ExpandVec(p.xof, p.f, seed[:], p.dst(usageJointRandomness), nil, p.typ.JointRandLen())
}

// proveRandVec expands the Client's prove seed.
func (p *Prio3[E, M, R]) proveRandVec(seed xof.Seed) []E {
	return xof.ExpandVec(p.xof, p.f, seed[:], p.dst(usageProveRandomness), nil, p.typ.ProveRandLen())
}

// queryRandVec derives the query randomness every aggregator uses for one report.
func (p *Prio3[E, M, R]) queryRandVec(verifyKey VerifyKey, nonce Nonce) []E {
	return xof.ExpandVec(p.xof, p.f, verifyKey[:], p.dst(usageQueryRandomness), nonce[:], p.typ.QueryRandLen())
}
