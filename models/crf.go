package models

import (
	"math"

	"github.com/pkg/errors"
)

// crfLayer is a linear-chain CRF output layer with boundary energies. It
// doubles as the Loss of networks built with UseCRF: the sentence loss is
// the negative joint log-likelihood of the gold path, and Decode runs
// Viterbi over the learned transition scores.
type crfLayer struct {
	numLabels   int
	transitions *Variable // [L][L], entry (i, j) scores label i followed by j
	start       *Variable // [L]
	end         *Variable // [L]
}

var _ Loss = &crfLayer{}

func newCRFLayer(vs *varSet, numLabels int) *crfLayer {
	return &crfLayer{
		numLabels:   numLabels,
		transitions: vs.zeros("crf.transitions", numLabels, numLabels),
		start:       vs.zeros("crf.start", numLabels),
		end:         vs.zeros("crf.end", numLabels),
	}
}

func (c *crfLayer) Name() string { return "crf_nll" }

func (c *crfLayer) LossAndGrad(emissions [][]float64, labels []int, scale float64) (float64, [][]float64, error) {
	T := len(emissions)
	if len(labels) != T {
		return 0, nil, errors.Errorf("got %d emission rows but %d labels", T, len(labels))
	}
	if T == 0 {
		return 0, nil, nil
	}
	L := c.numLabels
	for t, gold := range labels {
		if gold < 0 || gold >= L {
			return 0, nil, errors.Errorf("label %d at position %d outside [0, %d)", gold, t, L)
		}
	}

	trans := c.transitions.Data
	start := c.start.Data
	end := c.end.Data

	// Forward pass in log space.
	alpha := make([][]float64, T)
	alpha[0] = make([]float64, L)
	for y := 0; y < L; y++ {
		alpha[0][y] = start[y] + emissions[0][y]
	}
	buf := make([]float64, L)
	for t := 1; t < T; t++ {
		alpha[t] = make([]float64, L)
		for y := 0; y < L; y++ {
			for yp := 0; yp < L; yp++ {
				buf[yp] = alpha[t-1][yp] + trans[yp*L+y]
			}
			alpha[t][y] = emissions[t][y] + logSumExp(buf)
		}
	}
	for y := 0; y < L; y++ {
		buf[y] = alpha[T-1][y] + end[y]
	}
	logZ := logSumExp(buf)

	// Backward pass. beta[t][y] scores completing the sequence from
	// position t with label y, excluding the emission at t.
	beta := make([][]float64, T)
	beta[T-1] = make([]float64, L)
	copy(beta[T-1], end)
	for t := T - 2; t >= 0; t-- {
		beta[t] = make([]float64, L)
		for y := 0; y < L; y++ {
			for yn := 0; yn < L; yn++ {
				buf[yn] = trans[y*L+yn] + emissions[t+1][yn] + beta[t+1][yn]
			}
			beta[t][y] = logSumExp(buf)
		}
	}

	// Score of the gold path.
	gold := start[labels[0]] + emissions[0][labels[0]]
	for t := 1; t < T; t++ {
		gold += trans[labels[t-1]*L+labels[t]] + emissions[t][labels[t]]
	}
	gold += end[labels[T-1]]

	loss := logZ - gold

	// Emission gradients from unary marginals.
	demis := make([][]float64, T)
	for t := 0; t < T; t++ {
		d := make([]float64, L)
		for y := 0; y < L; y++ {
			d[y] = scale * math.Exp(alpha[t][y]+beta[t][y]-logZ)
		}
		d[labels[t]] -= scale
		demis[t] = d
	}

	// Boundary gradients.
	for y := 0; y < L; y++ {
		c.start.Grad[y] += scale * math.Exp(alpha[0][y]+beta[0][y]-logZ)
		c.end.Grad[y] += scale * math.Exp(alpha[T-1][y]+beta[T-1][y]-logZ)
	}
	c.start.Grad[labels[0]] -= scale
	c.end.Grad[labels[T-1]] -= scale

	// Transition gradients from pairwise marginals.
	for t := 0; t < T-1; t++ {
		for y := 0; y < L; y++ {
			base := alpha[t][y]
			for yn := 0; yn < L; yn++ {
				p := math.Exp(base + trans[y*L+yn] + emissions[t+1][yn] + beta[t+1][yn] - logZ)
				c.transitions.Grad[y*L+yn] += scale * p
			}
		}
		c.transitions.Grad[labels[t]*L+labels[t+1]] -= scale
	}

	return loss, demis, nil
}

// Decode runs Viterbi decoding over the emissions. Ties keep the lowest
// label id.
func (c *crfLayer) Decode(emissions [][]float64) []int {
	T := len(emissions)
	if T == 0 {
		return nil
	}
	L := c.numLabels
	trans := c.transitions.Data

	delta := make([]float64, L)
	for y := 0; y < L; y++ {
		delta[y] = c.start.Data[y] + emissions[0][y]
	}
	backptr := make([][]int, T)

	next := make([]float64, L)
	for t := 1; t < T; t++ {
		backptr[t] = make([]int, L)
		for y := 0; y < L; y++ {
			bestScore := math.Inf(-1)
			bestPrev := 0
			for yp := 0; yp < L; yp++ {
				score := delta[yp] + trans[yp*L+y]
				if score > bestScore {
					bestScore = score
					bestPrev = yp
				}
			}
			next[y] = bestScore + emissions[t][y]
			backptr[t][y] = bestPrev
		}
		delta, next = next, delta
	}

	for y := 0; y < L; y++ {
		delta[y] += c.end.Data[y]
	}

	path := make([]int, T)
	path[T-1] = argmax(delta)
	for t := T - 1; t > 0; t-- {
		path[t-1] = backptr[t][path[t]]
	}
	return path
}
