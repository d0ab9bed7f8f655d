package models

import (
	"math"

	"github.com/pkg/errors"
)

// Loss scores one sentence's emission matrix against gold label ids and
// produces the gradient of scale*loss with respect to the emissions.
// Losses that own parameters, like the CRF transitions, accumulate their
// parameter gradients with the same scale. Decode turns emissions into
// the best label sequence under the same output model.
type Loss interface {
	Name() string
	LossAndGrad(emissions [][]float64, labels []int, scale float64) (float64, [][]float64, error)
	Decode(emissions [][]float64) []int
}

// tokenCrossEntropy is the softmax output head: positions are independent
// and the sentence loss is the mean per-token cross-entropy.
type tokenCrossEntropy struct {
	numLabels int
}

var _ Loss = &tokenCrossEntropy{}

func (s *tokenCrossEntropy) Name() string { return "softmax_cross_entropy" }

func (s *tokenCrossEntropy) LossAndGrad(emissions [][]float64, labels []int, scale float64) (float64, [][]float64, error) {
	T := len(emissions)
	if len(labels) != T {
		return 0, nil, errors.Errorf("got %d emission rows but %d labels", T, len(labels))
	}
	if T == 0 {
		return 0, nil, nil
	}

	loss := 0.0
	demis := make([][]float64, T)
	posScale := scale / float64(T)
	for t, e := range emissions {
		gold := labels[t]
		if gold < 0 || gold >= s.numLabels {
			return 0, nil, errors.Errorf("label %d at position %d outside [0, %d)", gold, t, s.numLabels)
		}

		probs := softmax(e)
		loss -= math.Log(math.Max(probs[gold], 1e-300))

		d := make([]float64, len(e))
		for y, p := range probs {
			d[y] = posScale * p
		}
		d[gold] -= posScale
		demis[t] = d
	}
	return loss / float64(T), demis, nil
}

func (s *tokenCrossEntropy) Decode(emissions [][]float64) []int {
	out := make([]int, len(emissions))
	for t, e := range emissions {
		out[t] = argmax(e)
	}
	return out
}

func softmax(logits []float64) []float64 {
	max := math.Inf(-1)
	for _, v := range logits {
		if v > max {
			max = v
		}
	}
	probs := make([]float64, len(logits))
	sum := 0.0
	for i, v := range logits {
		p := math.Exp(v - max)
		probs[i] = p
		sum += p
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}
