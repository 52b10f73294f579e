// Package xof provides the seeded extendable-output functions used to derive
// every pseudorandom value in the protocol: share expansion, joint randomness,
// and proof and query randomness.
//
// An Xof is initialised with a key (usually a Seed) and a domain-separation tag,
// absorbs arbitrary context bytes through Update, and is then finished either
// into a single Seed or into an unbounded byte stream.
package xof

import (
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"

	"VDAF/internal/field"
)

// SeedSize is the byte length of every seed.
const SeedSize = 16

// Seed is a fixed-size secret used to key an Xof.
type Seed [SeedSize]byte

// Equal compares two seeds in constant time.
func (s Seed) Equal(other Seed) bool {
	return subtle.ConstantTimeCompare(s[:], other[:]) == 1
}

// String returns the hex encoding of the seed.
func (s Seed) String() string {
	return hex.EncodeToString(s[:])
}

// Xof is one keyed XOF instance.
type Xof interface {
	// Update absorbs context bytes. It must not be called after finishing.
	Update(p []byte)

	// IntoSeed finishes the Xof and returns the first SeedSize output bytes.
	IntoSeed() Seed

	// IntoStream finishes the Xof and returns its output stream.
	IntoStream() io.Reader
}

// Algorithm constructs Xof instances of one construction.
type Algorithm interface {
	Name() string
	New(key, dst []byte) Xof
}

// ByName returns the construction registered under name.
func ByName(name string) (Algorithm, bool) {
	switch name {
	case Shake128.Name():
		return Shake128, true
	case Blake3.Name():
		return Blake3, true
	default:
		return nil, false
	}
}

// RandomSeed reads a fresh seed from r.
func RandomSeed(r io.Reader) (Seed, error) {
	var s Seed
	if _, err := io.ReadFull(r, s[:]); err != nil {
		return Seed{}, fmt.Errorf("read seed:\n%w", err)
	}
	return s, nil
}

// DeriveSeed is Xof(key, dst) absorbing binder, finished into a seed.
func DeriveSeed(alg Algorithm, key, dst, binder []byte) Seed {
	x := alg.New(key, dst)
	x.Update(binder)
	return x.IntoSeed()
}

// ExpandVec is Xof(key, dst) absorbing binder, finished into n field elements.
func ExpandVec[E field.Elem[E]](alg Algorithm, f field.Field[E], key, dst, binder []byte, n int) []E {
	x := alg.New(key, dst)
	x.Update(binder)

	out, err := field.SampleVec(f, x.IntoStream(), n)
	if err != nil {
		// XOF streams are unbounded; a read error means a broken Algorithm.
		panic(fmt.Sprintf("xof %s: %v", alg.Name(), err))
	}

	return out
}

// frame returns the bytes every construction absorbs first:
// [1B len(dst)] [dst] [key].
func frame(key, dst []byte) []byte {
	if len(dst) > 255 {
		panic("xof: domain separation tag longer than 255 bytes")
	}

	buf := make([]byte, 0, 1+len(dst)+len(key))
	buf = append(buf, byte(len(dst)))
	buf = append(buf, dst...)
	return append(buf, key...)
}
