// Package flp implements fully linear proofs over secret-shared inputs and the
// concrete aggregation types built on them.
//
// A Type fixes one aggregation function: how a measurement is encoded into a
// field vector, how the client proves the encoding is valid, how each share
// holder computes its verifier share, and how the aggregate is decoded. The
// protocol engine in package prio3 sees nothing but this interface.
//
// # Proof system
//
// Validity is expressed as an arithmetic circuit that evaluates to zero on valid
// inputs. Non-affine parts of the circuit are isolated in gadgets. The prover
// interpolates each gadget's wire values into polynomials and sends the composed
// gadget polynomial; verifiers replay the circuit on their shares using that
// polynomial in place of the gadget, and check the identity at one random point.
package flp

import (
	"errors"

	"VDAF/internal/field"
)

var (
	// ErrInvalidParameter indicates a type was constructed with unsupported parameters.
	ErrInvalidParameter = errors.New("flp: invalid parameter")

	// ErrInvalidMeasurement indicates a measurement outside the type's domain.
	ErrInvalidMeasurement = errors.New("flp: invalid measurement")

	// ErrLength indicates an input vector of the wrong length.
	ErrLength = errors.New("flp: vector length mismatch")

	// ErrQueryRand indicates a query point colliding with a root of unity.
	ErrQueryRand = errors.New("flp: query randomness is a root of unity")
)

// Type is an aggregation function together with its validity proof system.
// E is the field element type, M the measurement type and R the aggregate
// result type.
type Type[E field.Elem[E], M, R any] interface {
	// Field returns the field the type operates in.
	Field() field.Field[E]

	InputLen() int
	ProofLen() int
	VerifierLen() int
	JointRandLen() int
	QueryRandLen() int
	ProveRandLen() int
	OutputLen() int

	// EncodeMeasurement encodes m into InputLen field elements.
	EncodeMeasurement(m M) ([]E, error)

	// Prove generates a proof that input is a valid encoding.
	Prove(input, proveRand, jointRand []E) ([]E, error)

	// Query computes one holder's verifier share from its input and proof shares.
	Query(input, proof, queryRand, jointRand []E, numShares int) ([]E, error)

	// Decide reports whether the combined verifier accepts.
	Decide(verifier []E) (bool, error)

	// Truncate projects an input (share) onto the OutputLen aggregatable values.
	Truncate(input []E) ([]E, error)

	// DecodeResult decodes the combined aggregate of numMeasurements outputs.
	DecodeResult(data []E, numMeasurements int) (R, error)
}
