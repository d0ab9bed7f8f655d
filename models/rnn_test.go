package models

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomSequence(rng *rand.Rand, T, dim int) [][]float64 {
	xs := make([][]float64, T)
	for t := range xs {
		xs[t] = make([]float64, dim)
		for i := range xs[t] {
			xs[t][i] = rng.Float64()*2 - 1
		}
	}
	return xs
}

// sumStates is the scalar objective used by the gradient checks: the sum
// of every hidden state component, whose gradient per state is all ones.
func sumStates(hs [][]float64) float64 {
	total := 0.0
	for _, h := range hs {
		for _, v := range h {
			total += v
		}
	}
	return total
}

func onesLike(T, dim int) [][]float64 {
	out := make([][]float64, T)
	for t := range out {
		out[t] = make([]float64, dim)
		for i := range out[t] {
			out[t][i] = 1
		}
	}
	return out
}

const gradEps = 1e-6

func checkCellGradients(t *testing.T, c cell, vs *varSet, inDim int) {
	t.Helper()
	const T = 3
	rng := rand.New(rand.NewSource(31))
	xs := randomSequence(rng, T, inDim)

	loss := func() float64 { return sumStates(c.run(xs).hs) }

	vs.zeroGrads()
	run := c.run(xs)
	dxs := c.backprop(run, onesLike(T, c.units()))

	numeric := func(x *float64) float64 {
		old := *x
		*x = old + gradEps
		up := loss()
		*x = old - gradEps
		down := loss()
		*x = old
		return (up - down) / (2 * gradEps)
	}

	for _, v := range vs.list {
		for i := range v.Data {
			assert.InDelta(t, numeric(&v.Data[i]), v.Grad[i], 1e-5,
				"parameter gradient %s[%d]", v.Name, i)
		}
	}
	for tt := 0; tt < T; tt++ {
		for i := range xs[tt] {
			assert.InDelta(t, numeric(&xs[tt][i]), dxs[tt][i], 1e-5,
				"input gradient at t=%d i=%d", tt, i)
		}
	}
}

func TestGRUGradients(t *testing.T) {
	vs := newVarSet(41)
	c := newGRUCell(vs, "g", 3, 4)
	checkCellGradients(t, c, vs, 3)
}

func TestLSTMGradients(t *testing.T) {
	vs := newVarSet(43)
	c := newLSTMCell(vs, "l", 3, 4)
	checkCellGradients(t, c, vs, 3)
}

func TestBiRNNGradients(t *testing.T) {
	vs := newVarSet(47)
	b := newBiRNN(vs, "b", EncoderGRU, 2, 3)

	const T = 3
	rng := rand.New(rand.NewSource(53))
	xs := randomSequence(rng, T, 2)

	loss := func() float64 { return sumStates(b.run(xs).out) }

	vs.zeroGrads()
	run := b.run(xs)
	dxs := b.backprop(run, onesLike(T, b.outDim()))

	numeric := func(x *float64) float64 {
		old := *x
		*x = old + gradEps
		up := loss()
		*x = old - gradEps
		down := loss()
		*x = old
		return (up - down) / (2 * gradEps)
	}

	for _, v := range vs.list {
		for i := range v.Data {
			assert.InDelta(t, numeric(&v.Data[i]), v.Grad[i], 1e-5,
				"parameter gradient %s[%d]", v.Name, i)
		}
	}
	for tt := 0; tt < T; tt++ {
		for i := range xs[tt] {
			assert.InDelta(t, numeric(&xs[tt][i]), dxs[tt][i], 1e-5,
				"input gradient at t=%d i=%d", tt, i)
		}
	}
}

func TestBiRNNShapes(t *testing.T) {
	vs := newVarSet(59)
	b := newBiRNN(vs, "b", EncoderLSTM, 4, 3)
	assert.Equal(t, 6, b.outDim())

	xs := randomSequence(rand.New(rand.NewSource(61)), 5, 4)
	run := b.run(xs)
	require.Len(t, run.out, 5)
	for _, o := range run.out {
		assert.Len(t, o, 6)
	}

	// The backward half of position t encodes the suffix from t on, so
	// position 0 carries the full backward summary.
	assert.Equal(t, run.bwdRun.hs[4], run.out[0][3:])
	assert.Equal(t, run.fwdRun.hs[4], run.out[4][:3])
}

func TestCharEncoderGradients(t *testing.T) {
	vs := newVarSet(67)
	ce := newCharEncoder(vs, EncoderGRU, 6, 2, 3)

	ids := []int{4, 0, 5, 2}
	loss := func() float64 {
		feat, _ := ce.encode(ids)
		total := 0.0
		for _, v := range feat {
			total += v
		}
		return total
	}

	vs.zeroGrads()
	feat, run := ce.encode(ids)
	require.Len(t, feat, ce.featureDim())
	dfeat := make([]float64, len(feat))
	for i := range dfeat {
		dfeat[i] = 1
	}
	ce.backprop(run, dfeat)

	numeric := func(x *float64) float64 {
		old := *x
		*x = old + gradEps
		up := loss()
		*x = old - gradEps
		down := loss()
		*x = old
		return (up - down) / (2 * gradEps)
	}

	for _, v := range vs.list {
		for i := range v.Data {
			assert.InDelta(t, numeric(&v.Data[i]), v.Grad[i], 1e-5,
				"gradient %s[%d]", v.Name, i)
		}
	}
}

func TestCharEncoderEmptyToken(t *testing.T) {
	vs := newVarSet(71)
	ce := newCharEncoder(vs, EncoderGRU, 4, 2, 3)

	feat, run := ce.encode(nil)
	assert.Nil(t, run)
	assert.Equal(t, make([]float64, 6), feat)

	// Backprop of an empty token is a no-op.
	ce.backprop(run, make([]float64, 6))
}

func TestRunDeterminism(t *testing.T) {
	build := func() cell {
		vs := newVarSet(73)
		return newGRUCell(vs, "g", 2, 3)
	}
	xs := randomSequence(rand.New(rand.NewSource(79)), 4, 2)

	a := build().run(xs)
	b := build().run(xs)
	assert.Equal(t, a.hs, b.hs, "same seed and input give identical states")
}
