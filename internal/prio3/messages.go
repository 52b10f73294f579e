package prio3

import (
	"VDAF/internal/field"
	"VDAF/internal/xof"
)

// Share is one aggregator's share of a vector. It is either a LeaderShare
// holding the data explicitly or a HelperShare holding the seed it expands from.
type Share[E field.Elem[E]] interface {
	isShare()
}

// LeaderShare is the explicit share held by aggregator 0.
type LeaderShare[E field.Elem[E]] struct {
	Data []E
}

// HelperShare is the compressed share held by aggregators 1..N-1.
type HelperShare struct {
	Seed xof.Seed
}

func (LeaderShare[E]) isShare() {}
func (HelperShare) isShare()    {}

// PublicShare is broadcast to all aggregators. JointRandParts holds one seed per
// aggregator when the type uses joint randomness and is nil otherwise.
type PublicShare struct {
	JointRandParts []xof.Seed
}

// InputShare is sent privately to one aggregator.
type InputShare[E field.Elem[E]] struct {
	MeasurementShare Share[E]
	ProofShare       Share[E]
	JointRandBlind   *xof.Seed // JointRandBlind is set iff joint randomness is used
}

// PrepareState is retained by an aggregator between PrepareInit and PrepareNext.
type PrepareState[E field.Elem[E]] struct {
	MeasurementShare Share[E]
	JointRandSeed    *xof.Seed // JointRandSeed is the locally corrected seed
	AggID            uint8
	VerifierLen      int // VerifierLen is the length of the verifier this aggregator broadcast; informational
}

// PrepareShare is broadcast by each aggregator after PrepareInit.
type PrepareShare[E field.Elem[E]] struct {
	Verifier      []E
	JointRandPart *xof.Seed
}

// PrepareMessage is the combined value all aggregators must agree on.
type PrepareMessage struct {
	JointRandSeed *xof.Seed
}

// OutputShare is one aggregator's share of one report's aggregatable output.
type OutputShare[E field.Elem[E]] []E

// AggregateShare is one aggregator's running sum of output shares.
type AggregateShare[E field.Elem[E]] []E
