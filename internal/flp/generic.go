package flp

import (
	"fmt"

	"VDAF/internal/field"
)

// GadgetFunc is how a circuit invokes gadget i. During proving it evaluates
// the gadget; during querying it reads the gadget polynomial from the proof.
type GadgetFunc[E any] func(in []E) E

// Circuit is a validity circuit. Eval must use only affine operations outside
// the gadget calls, and must divide every constant it adds by numShares so that
// evaluation on shares yields shares of the result.
type Circuit[E field.Elem[E]] struct {
	Field        field.Field[E]
	Gadgets      []Gadget[E]
	Calls        []int // Calls[i] is the exact number of calls to Gadgets[i] per evaluation
	InputLen     int
	JointRandLen int
	OutputLen    int

	Eval func(g []GadgetFunc[E], input, jointRand []E, numShares int) E
}

// gadgetLayout holds the derived sizes for one gadget.
type gadgetLayout struct {
	arity   int // arity is the number of wires
	degree  int // degree is the gadget degree
	calls   int // calls is the number of gadget invocations
	points  int // points is the interpolation domain size, a power of two > calls
	polyLen int // polyLen is the number of gadget polynomial coefficients
}

// Generic runs the proof system for a circuit. It is immutable after
// construction and safe for concurrent use.
type Generic[E field.Elem[E]] struct {
	c      Circuit[E]
	layout []gadgetLayout

	proofLen     int
	verifierLen  int
	proveRandLen int
}

// NewGeneric derives the proof layout for c.
func NewGeneric[E field.Elem[E]](c Circuit[E]) (*Generic[E], error) {
	if len(c.Gadgets) != len(c.Calls) {
		return nil, fmt.Errorf("%w: %d gadgets but %d call counts", ErrInvalidParameter, len(c.Gadgets), len(c.Calls))
	}

	g := &Generic[E]{c: c, verifierLen: 1}

	for i, gadget := range c.Gadgets {
		if c.Calls[i] <= 0 {
			return nil, fmt.Errorf("%w: gadget %d is never called", ErrInvalidParameter, i)
		}

		points := nextPowerOfTwo(1 + c.Calls[i])
		if uint64(points) > c.Field.MaxRootOrder() {
			return nil, fmt.Errorf("%w: %d gadget calls exceed %s roots of unity", ErrInvalidParameter, c.Calls[i], c.Field.Name())
		}

		l := gadgetLayout{
			arity:   gadget.Arity(),
			degree:  gadget.Degree(),
			calls:   c.Calls[i],
			points:  points,
			polyLen: gadget.Degree()*(points-1) + 1,
		}
		g.layout = append(g.layout, l)

		g.proofLen += l.arity + l.polyLen
		g.verifierLen += l.arity + 1
		g.proveRandLen += l.arity
	}

	return g, nil
}

func (g *Generic[E]) Field() field.Field[E] { return g.c.Field }
func (g *Generic[E]) InputLen() int         { return g.c.InputLen }
func (g *Generic[E]) ProofLen() int         { return g.proofLen }
func (g *Generic[E]) VerifierLen() int      { return g.verifierLen }
func (g *Generic[E]) JointRandLen() int     { return g.c.JointRandLen }
func (g *Generic[E]) QueryRandLen() int     { return len(g.layout) }
func (g *Generic[E]) ProveRandLen() int     { return g.proveRandLen }
func (g *Generic[E]) OutputLen() int        { return g.c.OutputLen }

// wireRecorder collects the inputs of every call to one gadget.
type wireRecorder[E field.Elem[E]] struct {
	l     gadgetLayout
	wires [][]E // wires[j][k] is input j of call k; k = 0 holds the wire seed
	calls int
}

func newWireRecorder[E field.Elem[E]](l gadgetLayout, seeds []E) *wireRecorder[E] {
	r := &wireRecorder[E]{l: l, wires: make([][]E, l.arity)}

	for j := range r.wires {
		r.wires[j] = make([]E, l.points)
		r.wires[j][0] = seeds[j]
	}

	return r
}

// record stores the inputs of the next call and returns its index (from 1).
func (r *wireRecorder[E]) record(in []E) int {
	if len(in) != r.l.arity {
		panic(fmt.Sprintf("flp: gadget called with %d inputs, arity %d", len(in), r.l.arity))
	}

	r.calls++
	if r.calls > r.l.calls {
		panic(fmt.Sprintf("flp: gadget called more than %d times", r.l.calls))
	}

	for j, x := range in {
		r.wires[j][r.calls] = x
	}

	return r.calls
}

// wirePolys interpolates every recorded wire.
func (r *wireRecorder[E]) wirePolys(f field.Field[E]) [][]E {
	alpha := f.RootOfUnity(r.l.points)

	polys := make([][]E, len(r.wires))
	for j, w := range r.wires {
		polys[j] = interpolate(f, w, alpha)
	}

	return polys
}

// checkLen reports a length mismatch for the named vector.
func checkLen(name string, got, want int) error {
	if got != want {
		return fmt.Errorf("%w: %s has length %d, want %d", ErrLength, name, got, want)
	}
	return nil
}

// Prove evaluates the circuit on input and returns the proof:
// for each gadget, [arity wire seeds] [gadget polynomial coefficients].
func (g *Generic[E]) Prove(input, proveRand, jointRand []E) ([]E, error) {
	if err := checkLen("input", len(input), g.c.InputLen); err != nil {
		return nil, err
	}
	if err := checkLen("prove randomness", len(proveRand), g.proveRandLen); err != nil {
		return nil, err
	}
	if err := checkLen("joint randomness", len(jointRand), g.c.JointRandLen); err != nil {
		return nil, err
	}

	f := g.c.Field
	recorders := make([]*wireRecorder[E], len(g.layout))
	funcs := make([]GadgetFunc[E], len(g.layout))

	offset := 0
	for i, l := range g.layout {
		rec := newWireRecorder(l, proveRand[offset:offset+l.arity])
		gadget := g.c.Gadgets[i]
		offset += l.arity

		recorders[i] = rec
		funcs[i] = func(in []E) E {
			rec.record(in)
			return gadget.Eval(f, in)
		}
	}

	g.c.Eval(funcs, input, jointRand, 1)

	proof := make([]E, 0, g.proofLen)
	for i, rec := range recorders {
		if rec.calls != rec.l.calls {
			return nil, fmt.Errorf("%w: gadget %d called %d times, want %d", ErrInvalidParameter, i, rec.calls, rec.l.calls)
		}

		poly := g.c.Gadgets[i].EvalPoly(f, rec.wirePolys(f))
		for j := range rec.wires {
			proof = append(proof, rec.wires[j][0])
		}
		proof = append(proof, fitPoly(f, poly, rec.l.polyLen)...)
	}

	return proof, nil
}

// fitPoly pads or trims p to exactly n coefficients. Coefficients beyond the
// bound are zero for a correctly composed gadget polynomial.
func fitPoly[E field.Elem[E]](f field.Field[E], p []E, n int) []E {
	out := make([]E, n)
	for i := range out {
		out[i] = f.Zero()
	}
	copy(out, p)

	return out
}

// Query replays the circuit on a share and returns the verifier share:
// [circuit output] then, per gadget, [wire values at t] [gadget polynomial at t].
func (g *Generic[E]) Query(input, proof, queryRand, jointRand []E, numShares int) ([]E, error) {
	if err := checkLen("input", len(input), g.c.InputLen); err != nil {
		return nil, err
	}
	if err := checkLen("proof", len(proof), g.proofLen); err != nil {
		return nil, err
	}
	if err := checkLen("query randomness", len(queryRand), len(g.layout)); err != nil {
		return nil, err
	}
	if err := checkLen("joint randomness", len(jointRand), g.c.JointRandLen); err != nil {
		return nil, err
	}
	if numShares <= 0 {
		return nil, fmt.Errorf("%w: %d shares", ErrInvalidParameter, numShares)
	}

	f := g.c.Field
	recorders := make([]*wireRecorder[E], len(g.layout))
	polys := make([][]E, len(g.layout))
	funcs := make([]GadgetFunc[E], len(g.layout))

	offset := 0
	for i, l := range g.layout {
		rec := newWireRecorder(l, proof[offset:offset+l.arity])
		poly := proof[offset+l.arity : offset+l.arity+l.polyLen]
		alpha := f.RootOfUnity(l.points)
		offset += l.arity + l.polyLen

		recorders[i] = rec
		polys[i] = poly

		point := f.One()
		funcs[i] = func(in []E) E {
			rec.record(in)
			point = point.Mul(alpha)
			return polyEval(f, poly, point)
		}
	}

	v := g.c.Eval(funcs, input, jointRand, numShares)

	verifier := make([]E, 0, g.verifierLen)
	verifier = append(verifier, v)

	for i, rec := range recorders {
		if rec.calls != rec.l.calls {
			return nil, fmt.Errorf("%w: gadget %d called %d times, want %d", ErrInvalidParameter, i, rec.calls, rec.l.calls)
		}

		t := queryRand[i]
		if field.Exp(f, t, uint64(rec.l.points)) == f.One() {
			return nil, ErrQueryRand
		}

		for _, wire := range rec.wirePolys(f) {
			verifier = append(verifier, polyEval(f, wire, t))
		}
		verifier = append(verifier, polyEval(f, polys[i], t))
	}

	return verifier, nil
}

// Decide checks a combined verifier.
func (g *Generic[E]) Decide(verifier []E) (bool, error) {
	if err := checkLen("verifier", len(verifier), g.verifierLen); err != nil {
		return false, err
	}

	if !verifier[0].IsZero() {
		return false, nil
	}

	f := g.c.Field
	offset := 1

	for i, l := range g.layout {
		x := verifier[offset : offset+l.arity]
		y := verifier[offset+l.arity]
		offset += l.arity + 1

		if g.c.Gadgets[i].Eval(f, x) != y {
			return false, nil
		}
	}

	return true, nil
}

// sharesInv returns 1/numShares, the per-share weight of an affine constant.
func sharesInv[E field.Elem[E]](f field.Field[E], numShares int) E {
	return f.FromUint64(uint64(numShares)).Inv()
}
