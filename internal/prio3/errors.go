package prio3

import (
	"errors"
	"fmt"

	"VDAF/internal/flp"
)

// Error kinds. Every error returned by this package matches exactly one of
// them under errors.Is.
var (
	// ErrInvalidConfig indicates unsupported construction parameters, such as an
	// aggregator count outside [1, 254]. It is never transient.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrRandomness indicates the entropy source failed while sharding.
	ErrRandomness = errors.New("randomness unavailable")

	// ErrProtocol indicates a report failed preparation. The report must be
	// dropped by the caller; nothing of it may be aggregated.
	ErrProtocol = errors.New("protocol failure")

	// ErrDecode indicates a malformed message encoding.
	ErrDecode = errors.New("malformed encoding")

	// ErrInvalidMeasurement indicates a measurement the type cannot encode.
	ErrInvalidMeasurement = errors.New("invalid measurement")
)

// protocolError is a specific preparation failure. It also matches ErrProtocol.
type protocolError string

func (e protocolError) Error() string { return string(e) }

func (e protocolError) Is(target error) bool { return target == ErrProtocol }

// Preparation failures.
var (
	ErrShareCount        error = protocolError("wrong number of shares")
	ErrShareRole         error = protocolError("share role does not match aggregator id")
	ErrShareLength       error = protocolError("share length mismatch")
	ErrVerifierLength    error = protocolError("verifier length mismatch")
	ErrVerifierCheck     error = protocolError("proof verifier check failed")
	ErrJointRandMismatch error = protocolError("joint randomness mismatch")
	ErrJointRandMissing  error = protocolError("joint randomness missing")
	ErrJointRandUnused   error = protocolError("joint randomness given to a type without it")
)

// Error records the operation that failed.
type Error struct {
	Op  string // Op is the VDAF operation, e.g. "PrepareNext"
	Err error  // Err matches one of the error kinds
}

func (e *Error) Error() string {
	return fmt.Sprintf("prio3 %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// opError wraps err for operation op. err must already match an error kind.
func opError(op string, err error) error {
	return &Error{Op: op, Err: err}
}

// opErrorf builds an error of the given kind for operation op.
func opErrorf(op string, kind error, format string, args ...any) error {
	return &Error{Op: op, Err: errorf(kind, format, args...)}
}

// errorf annotates kind with a formatted detail.
func errorf(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

// opWrap classifies an underlying error as kind for operation op.
func opWrap(op string, kind error, err error) error {
	return &Error{Op: op, Err: fmt.Errorf("%w:\n%w", kind, err)}
}

// classify maps an error from the aggregation type onto an error kind.
func classify(err error) error {
	switch {
	case errors.Is(err, flp.ErrInvalidMeasurement):
		return ErrInvalidMeasurement
	case errors.Is(err, flp.ErrInvalidParameter):
		return ErrInvalidConfig
	default:
		return ErrProtocol
	}
}
