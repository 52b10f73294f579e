package xof

import (
	"io"

	"github.com/zeebo/blake3"
)

// Blake3 is the BLAKE3 construction run in extendable-output mode.
var Blake3 Algorithm = blake3Alg{}

type blake3Alg struct{}

func (blake3Alg) Name() string { return "blake3" }

func (blake3Alg) New(key, dst []byte) Xof {
	h := blake3.New()
	h.Write(frame(key, dst))
	return &blake3Xof{h: h}
}

// blake3Xof absorbs into a BLAKE3 hasher and reads from its digest.
type blake3Xof struct {
	h *blake3.Hasher // h accumulates the framed input
}

func (x *blake3Xof) Update(p []byte) {
	x.h.Write(p)
}

func (x *blake3Xof) IntoSeed() Seed {
	var s Seed
	x.h.Digest().Read(s[:])
	return s
}

func (x *blake3Xof) IntoStream() io.Reader {
	return x.h.Digest()
}
