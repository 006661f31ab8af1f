package rl

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Policy is a two-layer ReLU network mapping an observation to one score per
// action. All parameters live in one flat slice so the optimizer can treat
// them uniformly; the layer matrices and bias vectors are views into it, and
// the gradient views mirror them over grads.
type Policy struct {
	in, hidden, out int

	params []float64
	grads  []float64
	w1     *mat.Dense // hidden x in
	b1     *mat.VecDense
	w2     *mat.Dense // out x hidden
	b2     *mat.VecDense
	gw1    *mat.Dense
	gb1    *mat.VecDense
	gw2    *mat.Dense
	gb2    *mat.VecDense

	// forward-pass cache for the last observation
	x      *mat.VecDense
	preAct *mat.VecDense
	act    *mat.VecDense
	scores *mat.VecDense
}

// NewPolicy initializes weights uniformly in ±1/sqrt(fan_in), the same
// scheme common deep learning frameworks use for linear layers.
func NewPolicy(in, hidden, out int, rng *rand.Rand) *Policy {
	n := hidden*in + hidden + out*hidden + out
	p := &Policy{
		in:     in,
		hidden: hidden,
		out:    out,
		params: make([]float64, n),
		grads:  make([]float64, n),
		preAct: mat.NewVecDense(hidden, nil),
		act:    mat.NewVecDense(hidden, nil),
		scores: mat.NewVecDense(out, nil),
	}
	p.w1, p.b1, p.w2, p.b2 = p.layers(p.params)
	p.gw1, p.gb1, p.gw2, p.gb2 = p.layers(p.grads)

	fill := func(xs []float64, fanIn int) {
		bound := 1 / math.Sqrt(float64(fanIn))
		for i := range xs {
			xs[i] = (rng.Float64()*2 - 1) * bound
		}
	}
	fill(p.w1.RawMatrix().Data, in)
	fill(p.b1.RawVector().Data, in)
	fill(p.w2.RawMatrix().Data, hidden)
	fill(p.b2.RawVector().Data, hidden)
	return p
}

// layers slices a flat parameter vector into the two weight matrices and
// their biases, sharing its backing array.
func (p *Policy) layers(flat []float64) (w1 *mat.Dense, b1 *mat.VecDense, w2 *mat.Dense, b2 *mat.VecDense) {
	off := 0
	w1, off = mat.NewDense(p.hidden, p.in, flat[off:off+p.hidden*p.in]), off+p.hidden*p.in
	b1, off = mat.NewVecDense(p.hidden, flat[off:off+p.hidden]), off+p.hidden
	w2, off = mat.NewDense(p.out, p.hidden, flat[off:off+p.out*p.hidden]), off+p.out*p.hidden
	b2 = mat.NewVecDense(p.out, flat[off:off+p.out])
	return w1, b1, w2, b2
}

// Forward scores x and caches the activations for Backward. The returned
// slice is owned by the policy and overwritten by the next call.
func (p *Policy) Forward(x []float64) []float64 {
	p.x = mat.NewVecDense(len(x), x)

	p.preAct.MulVec(p.w1, p.x)
	p.preAct.AddVec(p.preAct, p.b1)
	for h := 0; h < p.hidden; h++ {
		p.act.SetVec(h, math.Max(0, p.preAct.AtVec(h)))
	}

	p.scores.MulVec(p.w2, p.act)
	p.scores.AddVec(p.scores, p.b2)
	return p.scores.RawVector().Data
}

// Backward computes parameter gradients for the loss gradient dScores with
// respect to the scores of the last Forward call.
func (p *Policy) Backward(dScores []float64) {
	d := mat.NewVecDense(len(dScores), dScores)

	p.gb2.CopyVec(d)
	p.gw2.Outer(1, d, p.act)

	dAct := mat.NewVecDense(p.hidden, nil)
	dAct.MulVec(p.w2.T(), d)
	for h := 0; h < p.hidden; h++ {
		if p.preAct.AtVec(h) <= 0 {
			dAct.SetVec(h, 0)
		}
	}
	p.gb1.CopyVec(dAct)
	p.gw1.Outer(1, dAct, p.x)
}

// Adam is the Kingma & Ba optimizer over a flat parameter vector.
type Adam struct {
	lr, beta1, beta2, eps float64
	m, v                  []float64
	t                     int
}

func NewAdam(size int, lr float64) *Adam {
	return &Adam{
		lr:    lr,
		beta1: 0.9,
		beta2: 0.999,
		eps:   1e-8,
		m:     make([]float64, size),
		v:     make([]float64, size),
	}
}

// Step applies one update to params in place using grads.
func (a *Adam) Step(params, grads []float64) {
	a.t++
	c1 := 1 - math.Pow(a.beta1, float64(a.t))
	c2 := 1 - math.Pow(a.beta2, float64(a.t))
	for i, g := range grads {
		a.m[i] = a.beta1*a.m[i] + (1-a.beta1)*g
		a.v[i] = a.beta2*a.v[i] + (1-a.beta2)*g*g
		mHat := a.m[i] / c1
		vHat := a.v[i] / c2
		params[i] -= a.lr * mHat / (math.Sqrt(vHat) + a.eps)
	}
}
