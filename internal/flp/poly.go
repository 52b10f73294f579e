package flp

import "VDAF/internal/field"

// Polynomials are coefficient slices, lowest degree first.

// polyEval evaluates p at x with Horner's rule.
func polyEval[E field.Elem[E]](f field.Field[E], p []E, x E) E {
	acc := f.Zero()
	for i := len(p) - 1; i >= 0; i-- {
		acc = acc.Mul(x).Add(p[i])
	}
	return acc
}

// polyAdd returns a + b.
func polyAdd[E field.Elem[E]](a, b []E) []E {
	if len(a) < len(b) {
		a, b = b, a
	}

	out := make([]E, len(a))
	copy(out, a)
	for i := range b {
		out[i] = out[i].Add(b[i])
	}

	return out
}

// polyMul returns a * b.
func polyMul[E field.Elem[E]](f field.Field[E], a, b []E) []E {
	if len(a) == 0 || len(b) == 0 {
		return nil
	}

	out := make([]E, len(a)+len(b)-1)
	for i := range out {
		out[i] = f.Zero()
	}

	for i := range a {
		if a[i].IsZero() {
			continue
		}
		for j := range b {
			out[i+j] = out[i+j].Add(a[i].Mul(b[j]))
		}
	}

	return out
}

// interpolate returns the coefficients of the unique polynomial of degree
// < len(values) taking values[k] at alpha^k, where alpha is a primitive
// len(values)-th root of unity. It is an inverse DFT.
func interpolate[E field.Elem[E]](f field.Field[E], values []E, alpha E) []E {
	n := len(values)
	alphaInv := alpha.Inv()
	nInv := f.FromUint64(uint64(n)).Inv()

	coeffs := make([]E, n)
	step := f.One() // alpha^-i

	for i := 0; i < n; i++ {
		acc := f.Zero()
		w := f.One() // alpha^-ik

		for k := 0; k < n; k++ {
			acc = acc.Add(values[k].Mul(w))
			w = w.Mul(step)
		}

		coeffs[i] = acc.Mul(nInv)
		step = step.Mul(alphaInv)
	}

	return coeffs
}

// nextPowerOfTwo returns the least power of two >= n.
func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
