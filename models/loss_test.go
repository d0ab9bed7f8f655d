package models

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenCrossEntropyUniform(t *testing.T) {
	ce := &tokenCrossEntropy{numLabels: 3}
	emissions := [][]float64{{0, 0, 0}}
	loss, demis, err := ce.LossAndGrad(emissions, []int{1}, 1)
	require.NoError(t, err)
	assert.InDelta(t, math.Log(3), loss, 1e-12)

	third := 1.0 / 3
	assert.InDelta(t, third, demis[0][0], 1e-12)
	assert.InDelta(t, third-1, demis[0][1], 1e-12)
	assert.InDelta(t, third, demis[0][2], 1e-12)
}

func TestTokenCrossEntropyGradients(t *testing.T) {
	ce := &tokenCrossEntropy{numLabels: 3}
	rng := rand.New(rand.NewSource(83))
	emissions := randomSequence(rng, 4, 3)
	labels := []int{0, 2, 1, 2}

	loss := func() float64 {
		l, _, err := ce.LossAndGrad(emissions, labels, 1)
		require.NoError(t, err)
		return l
	}
	_, demis, err := ce.LossAndGrad(emissions, labels, 1)
	require.NoError(t, err)

	for tt := range emissions {
		for y := range emissions[tt] {
			x := &emissions[tt][y]
			old := *x
			*x = old + gradEps
			up := loss()
			*x = old - gradEps
			down := loss()
			*x = old
			assert.InDelta(t, (up-down)/(2*gradEps), demis[tt][y], 1e-6,
				"gradient at t=%d y=%d", tt, y)
		}
	}
}

func TestTokenCrossEntropyScale(t *testing.T) {
	ce := &tokenCrossEntropy{numLabels: 3}
	rng := rand.New(rand.NewSource(89))
	emissions := randomSequence(rng, 3, 3)
	labels := []int{2, 0, 1}

	lossFull, full, err := ce.LossAndGrad(emissions, labels, 1)
	require.NoError(t, err)
	lossHalf, half, err := ce.LossAndGrad(emissions, labels, 0.5)
	require.NoError(t, err)

	assert.Equal(t, lossFull, lossHalf, "the returned loss is unscaled")
	for tt := range full {
		for y := range full[tt] {
			assert.InDelta(t, full[tt][y]*0.5, half[tt][y], 1e-12)
		}
	}
}

func TestTokenCrossEntropyErrors(t *testing.T) {
	ce := &tokenCrossEntropy{numLabels: 2}

	_, _, err := ce.LossAndGrad([][]float64{{0, 0}}, []int{0, 1}, 1)
	assert.ErrorContains(t, err, "labels")

	_, _, err = ce.LossAndGrad([][]float64{{0, 0}}, []int{5}, 1)
	assert.ErrorContains(t, err, "outside")
}

func TestTokenCrossEntropyDecode(t *testing.T) {
	ce := &tokenCrossEntropy{numLabels: 3}
	got := ce.Decode([][]float64{
		{0.1, 2.0, -1},
		{3.0, 3.0, 0}, // earliest index wins ties
		{-5, -4, -3},
	})
	assert.Equal(t, []int{1, 0, 2}, got)
}

func TestSoftmaxStability(t *testing.T) {
	probs := softmax([]float64{1000, 1001, 1002})
	sum := 0.0
	for _, p := range probs {
		require.False(t, math.IsNaN(p))
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-12)
	assert.Greater(t, probs[2], probs[1])
}
