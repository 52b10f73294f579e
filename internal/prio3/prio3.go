// Package prio3 implements the Prio3 verifiable distributed aggregation function.
//
// A Client shards a measurement into one public share and one input share per
// Aggregator. Each Aggregator runs a two-step preparation: PrepareInit derives
// its verifier share and joint randomness part, the parties exchange
// PrepareShares, PrepareSharesToPrepareMessage checks the combined proof, and
// PrepareNext checks joint randomness agreement and yields an output share.
// Output shares are summed locally into aggregate shares, which the Collector
// combines with Unshard.
//
// Operation:
//
//	vdaf, _ := prio3.NewCount(2)
//	public, inputs, _ := vdaf.Shard(1, nonce)
//	// at aggregator i
//	state, share, _ := vdaf.PrepareInit(verifyKey, i, nonce, public, inputs[i])
//	// once all shares are known
//	msg, _ := vdaf.PrepareSharesToPrepareMessage(shares)
//	out, _ := vdaf.PrepareNext(state, msg)
//
// All operations are pure functions of their arguments. A *Prio3 is immutable
// and may be used from any number of goroutines.
package prio3

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"math/big"

	"VDAF/internal/field"
	"VDAF/internal/flp"
	"VDAF/internal/xof"
)

const (
	// NonceSize is the byte length of a report nonce.
	NonceSize = 16

	// MaxAggregators is the largest supported number of aggregators.
	MaxAggregators = 254

	// dstVersion is the protocol version byte of every domain separation tag.
	dstVersion = 7

	// dstLen is the byte length of a domain separation tag.
	dstLen = 8
)

// Domain separation usages, one per distinct Xof purpose.
const (
	usageMeasurementShare uint16 = 1
	usageProofShare       uint16 = 2
	usageJointRandomness  uint16 = 3
	usageProveRandomness  uint16 = 4
	usageQueryRandomness  uint16 = 5
	usageJointRandSeed    uint16 = 6
	usageJointRandPart    uint16 = 7
)

// Algorithm identifiers.
const (
	AlgorithmCount     uint32 = 0x00000000
	AlgorithmSum       uint32 = 0x00000001
	AlgorithmSumVec    uint32 = 0x00000002
	AlgorithmHistogram uint32 = 0x00000003
	AlgorithmAverage   uint32 = 0xFFFF0000
)

// Nonce is the per-report public nonce chosen by the Client.
type Nonce [NonceSize]byte

// VerifyKey is the secret shared by all Aggregators ahead of time.
type VerifyKey = xof.Seed

// Option configures a Prio3 instance.
type Option func(*options)

type options struct {
	xof    xof.Algorithm
	random io.Reader
}

// WithXof selects the Xof construction. The default is xof.Shake128.
func WithXof(alg xof.Algorithm) Option {
	return func(o *options) { o.xof = alg }
}

// WithRandom sets the entropy source used by Shard. The default is crypto/rand.
func WithRandom(r io.Reader) Option {
	return func(o *options) { o.random = r }
}

// Prio3 is one Prio3 instantiation: a Type, an Xof and an aggregator count.
type Prio3[E field.Elem[E], M, R any] struct {
	typ            flp.Type[E, M, R] // typ is the aggregation function
	f              field.Field[E]    // f is typ's field
	xof            xof.Algorithm     // xof derives all pseudorandomness
	random         io.Reader         // random feeds Shard
	numAggregators int               // numAggregators is N
	algorithmID    uint32            // algorithmID is bound into every dst
	jointRand      bool              // jointRand is the protocol mode, typ.JointRandLen() > 0
}

// New returns a Prio3 instance for typ with numAggregators aggregators.
func New[E field.Elem[E], M, R any](typ flp.Type[E, M, R], numAggregators int, algorithmID uint32, opts ...Option) (*Prio3[E, M, R], error) {
	if numAggregators < 1 || numAggregators > MaxAggregators {
		return nil, opErrorf("New", ErrInvalidConfig, "%d aggregators outside [1, %d]", numAggregators, MaxAggregators)
	}

	o := options{xof: xof.Shake128, random: rand.Reader}
	for _, opt := range opts {
		opt(&o)
	}

	if o.xof == nil || o.random == nil {
		return nil, opErrorf("New", ErrInvalidConfig, "nil xof or entropy source")
	}

	return &Prio3[E, M, R]{
		typ:            typ,
		f:              typ.Field(),
		xof:            o.xof,
		random:         o.random,
		numAggregators: numAggregators,
		algorithmID:    algorithmID,
		jointRand:      typ.JointRandLen() > 0,
	}, nil
}

// NumAggregators returns N.
func (p *Prio3[E, M, R]) NumAggregators() int { return p.numAggregators }

// Type returns the aggregation function.
func (p *Prio3[E, M, R]) Type() flp.Type[E, M, R] { return p.typ }

// UsesJointRand reports whether the type requires joint randomness.
func (p *Prio3[E, M, R]) UsesJointRand() bool { return p.jointRand }

// RandomSize is the number of random bytes Shard consumes.
func (p *Prio3[E, M, R]) RandomSize() int {
	seeds := 1 + 2*(p.numAggregators-1)
	if p.jointRand {
		seeds += p.numAggregators
	}
	return seeds * xof.SeedSize
}

// String identifies the instance in logs.
func (p *Prio3[E, M, R]) String() string {
	return fmt.Sprintf("prio3(0x%08x, %s, %d aggregators)", p.algorithmID, p.xof.Name(), p.numAggregators)
}

// dst returns the domain separation tag for one usage:
// [1B version] [1B algorithm class] [4B algorithm id] [2B usage].
func (p *Prio3[E, M, R]) dst(usage uint16) []byte {
	dst := make([]byte, dstLen)
	dst[0] = dstVersion
	dst[1] = 0
	binary.BigEndian.PutUint32(dst[2:6], p.algorithmID)
	binary.BigEndian.PutUint16(dst[6:8], usage)
	return dst
}

// checkAggID validates an aggregator id.
func (p *Prio3[E, M, R]) checkAggID(op string, aggID uint8) error {
	if int(aggID) >= p.numAggregators {
		return opErrorf(op, ErrInvalidConfig, "aggregator id %d outside [0, %d)", aggID, p.numAggregators)
	}
	return nil
}

// Instantiations of the standard aggregation types.
type (
	Count     = Prio3[field.Fp64, uint64, uint64]
	Sum       = Prio3[field.Fp128, uint64, *big.Int]
	SumVec    = Prio3[field.Fp128, []uint64, []*big.Int]
	Histogram = Prio3[field.Fp128, int, []uint64]
	Average   = Prio3[field.Fp128, uint64, float64]
)

// NewCount returns Prio3Count: the number of measurements equal to 1.
func NewCount(numAggregators int, opts ...Option) (*Count, error) {
	typ, err := flp.NewCount()
	if err != nil {
		return nil, opWrap("NewCount", ErrInvalidConfig, err)
	}
	return New[field.Fp64, uint64, uint64](typ, numAggregators, AlgorithmCount, opts...)
}

// NewSum returns Prio3Sum over measurements of the given bit width.
func NewSum(numAggregators, bits int, opts ...Option) (*Sum, error) {
	typ, err := flp.NewSum(bits)
	if err != nil {
		return nil, opWrap("NewSum", ErrInvalidConfig, err)
	}
	return New[field.Fp128, uint64, *big.Int](typ, numAggregators, AlgorithmSum, opts...)
}

// NewSumVec returns Prio3SumVec over vectors of length entries of the given bit width.
func NewSumVec(numAggregators, length, bits, chunk int, opts ...Option) (*SumVec, error) {
	typ, err := flp.NewSumVec(length, bits, chunk)
	if err != nil {
		return nil, opWrap("NewSumVec", ErrInvalidConfig, err)
	}
	return New[field.Fp128, []uint64, []*big.Int](typ, numAggregators, AlgorithmSumVec, opts...)
}

// NewHistogram returns Prio3Histogram with length buckets.
func NewHistogram(numAggregators, length, chunk int, opts ...Option) (*Histogram, error) {
	typ, err := flp.NewHistogram(length, chunk)
	if err != nil {
		return nil, opWrap("NewHistogram", ErrInvalidConfig, err)
	}
	return New[field.Fp128, int, []uint64](typ, numAggregators, AlgorithmHistogram, opts...)
}

// NewAverage returns Prio3Average over measurements of the given bit width.
func NewAverage(numAggregators, bits int, opts ...Option) (*Average, error) {
	typ, err := flp.NewAverage(bits)
	if err != nil {
		return nil, opWrap("NewAverage", ErrInvalidConfig, err)
	}
	return New[field.Fp128, uint64, float64](typ, numAggregators, AlgorithmAverage, opts...)
}
