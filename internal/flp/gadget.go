package flp

import (
	"VDAF/internal/field"
)

// Gadget is a non-affine sub-circuit of a validity circuit. Its evaluations
// are what the proof attests to.
type Gadget[E field.Elem[E]] interface {
	// Arity is the number of inputs.
	Arity() int

	// Degree is the arithmetic degree of the gadget.
	Degree() int

	// Eval evaluates the gadget on field elements.
	Eval(f field.Field[E], in []E) E

	// EvalPoly evaluates the gadget on input polynomials.
	EvalPoly(f field.Field[E], in [][]E) []E
}

// Mul multiplies its two inputs.
type Mul[E field.Elem[E]] struct{}

func (Mul[E]) Arity() int  { return 2 }
func (Mul[E]) Degree() int { return 2 }

func (Mul[E]) Eval(_ field.Field[E], in []E) E {
	return in[0].Mul(in[1])
}

func (Mul[E]) EvalPoly(f field.Field[E], in [][]E) []E {
	return polyMul(f, in[0], in[1])
}

// PolyEval evaluates a fixed univariate polynomial on its single input.
type PolyEval[E field.Elem[E]] struct {
	coeffs []E // coeffs has no trailing zero coefficient
}

// NewPolyEval returns the gadget x -> p(x). Trailing zero coefficients are dropped.
func NewPolyEval[E field.Elem[E]](p []E) PolyEval[E] {
	n := len(p)
	for n > 0 && p[n-1].IsZero() {
		n--
	}

	coeffs := make([]E, n)
	copy(coeffs, p)

	return PolyEval[E]{coeffs: coeffs}
}

func (PolyEval[E]) Arity() int { return 1 }

func (g PolyEval[E]) Degree() int {
	if len(g.coeffs) == 0 {
		return 0
	}
	return len(g.coeffs) - 1
}

func (g PolyEval[E]) Eval(f field.Field[E], in []E) E {
	return polyEval(f, g.coeffs, in[0])
}

// EvalPoly composes the gadget polynomial with in[0] using Horner's rule.
func (g PolyEval[E]) EvalPoly(f field.Field[E], in [][]E) []E {
	if len(g.coeffs) == 0 {
		return []E{f.Zero()}
	}

	acc := []E{g.coeffs[len(g.coeffs)-1]}
	for i := len(g.coeffs) - 2; i >= 0; i-- {
		acc = polyAdd(polyMul(f, acc, in[0]), []E{g.coeffs[i]})
	}

	return acc
}

// ParallelSum sums an inner gadget over consecutive chunks of its inputs.
type ParallelSum[E field.Elem[E]] struct {
	inner Gadget[E] // inner is applied to each chunk
	count int       // count is the number of chunks
}

// NewParallelSum returns a gadget summing count copies of inner.
func NewParallelSum[E field.Elem[E]](inner Gadget[E], count int) ParallelSum[E] {
	return ParallelSum[E]{inner: inner, count: count}
}

func (g ParallelSum[E]) Arity() int  { return g.inner.Arity() * g.count }
func (g ParallelSum[E]) Degree() int { return g.inner.Degree() }

func (g ParallelSum[E]) Eval(f field.Field[E], in []E) E {
	a := g.inner.Arity()
	out := f.Zero()

	for i := 0; i < g.count; i++ {
		out = out.Add(g.inner.Eval(f, in[i*a:(i+1)*a]))
	}

	return out
}

func (g ParallelSum[E]) EvalPoly(f field.Field[E], in [][]E) []E {
	a := g.inner.Arity()
	var out []E

	for i := 0; i < g.count; i++ {
		out = polyAdd(out, g.inner.EvalPoly(f, in[i*a:(i+1)*a]))
	}

	return out
}
