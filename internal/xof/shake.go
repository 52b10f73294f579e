package xof

import (
	"io"

	"golang.org/x/crypto/sha3"
)

// Shake128 is the SHAKE128-based construction.
var Shake128 Algorithm = shake128{}

type shake128 struct{}

func (shake128) Name() string { return "shake128" }

func (shake128) New(key, dst []byte) Xof {
	h := sha3.NewShake128()
	h.Write(frame(key, dst))
	return &shakeXof{h: h}
}

// shakeXof wraps a SHAKE128 sponge.
type shakeXof struct {
	h sha3.ShakeHash // h is the sponge in absorbing state until finished
}

func (x *shakeXof) Update(p []byte) {
	x.h.Write(p)
}

func (x *shakeXof) IntoSeed() Seed {
	var s Seed
	x.h.Read(s[:])
	return s
}

func (x *shakeXof) IntoStream() io.Reader {
	return x.h
}
