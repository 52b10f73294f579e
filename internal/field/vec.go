package field

import (
	"fmt"
	"io"
)

// ZeroVec returns a vector of n zero elements.
func ZeroVec[E Elem[E]](n int) []E {
	return make([]E, n)
}

// AddVec sets dst[i] += src[i] for every i.
func AddVec[E Elem[E]](dst, src []E) error {
	if len(dst) != len(src) {
		return fmt.Errorf("vector length mismatch: %d != %d", len(dst), len(src))
	}

	for i := range dst {
		dst[i] = dst[i].Add(src[i])
	}

	return nil
}

// SubVec sets dst[i] -= src[i] for every i.
func SubVec[E Elem[E]](dst, src []E) error {
	if len(dst) != len(src) {
		return fmt.Errorf("vector length mismatch: %d != %d", len(dst), len(src))
	}

	for i := range dst {
		dst[i] = dst[i].Sub(src[i])
	}

	return nil
}

// AppendVec appends the encoding of every element of v to dst.
func AppendVec[E Elem[E]](f Field[E], dst []byte, v []E) []byte {
	for _, e := range v {
		dst = f.Append(dst, e)
	}
	return dst
}

// DecodeVec parses exactly n encoded elements from b.
func DecodeVec[E Elem[E]](f Field[E], b []byte, n int) ([]E, error) {
	size := f.EncodedSize()
	if len(b) != n*size {
		return nil, fmt.Errorf("%s vector: got %d bytes, want %d", f.Name(), len(b), n*size)
	}

	out := make([]E, n)
	for i := range out {
		e, err := f.Decode(b[i*size : (i+1)*size])
		if err != nil {
			return nil, fmt.Errorf("%s vector element %d:\n%w", f.Name(), i, err)
		}
		out[i] = e
	}

	return out, nil
}

// SampleVec draws n uniformly distributed elements from r by rejection sampling.
func SampleVec[E Elem[E]](f Field[E], r io.Reader, n int) ([]E, error) {
	out := make([]E, 0, n)
	buf := make([]byte, f.EncodedSize())

	for len(out) < n {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("read field candidate:\n%w", err)
		}

		if e, ok := f.Candidate(buf); ok {
			out = append(out, e)
		}
	}

	return out, nil
}
