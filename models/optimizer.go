package models

import (
	"math"

	"github.com/pkg/errors"
)

// Optimizer applies accumulated gradients to variables.
type Optimizer interface {
	// Step updates every variable in place from its gradient.
	Step(vars []*Variable)
	// Reset drops all internal state, as if freshly constructed.
	Reset()
}

// NewOptimizer builds the optimizer named by the configuration.
func NewOptimizer(cfg Config) (Optimizer, error) {
	switch cfg.Optimizer {
	case OptimizerAdam:
		return newAdam(cfg.LearningRate), nil
	case OptimizerSGD:
		return &sgd{lr: cfg.LearningRate}, nil
	default:
		return nil, errors.Errorf("unknown optimizer %q", cfg.Optimizer)
	}
}

// sgd is plain stochastic gradient descent.
type sgd struct {
	lr float64
}

func (s *sgd) Step(vars []*Variable) {
	for _, v := range vars {
		for i, g := range v.Grad {
			v.Data[i] -= s.lr * g
		}
	}
}

func (s *sgd) Reset() {}

// adam implements Adam with bias correction. Moment buffers are keyed by
// variable name and allocated lazily on first sight.
type adam struct {
	lr, beta1, beta2, eps float64
	step                  int
	m, v                  map[string][]float64
}

func newAdam(lr float64) *adam {
	return &adam{
		lr:    lr,
		beta1: 0.9,
		beta2: 0.999,
		eps:   1e-8,
		m:     make(map[string][]float64),
		v:     make(map[string][]float64),
	}
}

func (a *adam) Step(vars []*Variable) {
	a.step++
	bc1 := 1 - math.Pow(a.beta1, float64(a.step))
	bc2 := 1 - math.Pow(a.beta2, float64(a.step))

	for _, variable := range vars {
		m, ok := a.m[variable.Name]
		if !ok {
			m = make([]float64, variable.Size())
			a.m[variable.Name] = m
		}
		v, ok := a.v[variable.Name]
		if !ok {
			v = make([]float64, variable.Size())
			a.v[variable.Name] = v
		}

		for i, g := range variable.Grad {
			m[i] = a.beta1*m[i] + (1-a.beta1)*g
			v[i] = a.beta2*v[i] + (1-a.beta2)*g*g
			mHat := m[i] / bc1
			vHat := v[i] / bc2
			variable.Data[i] -= a.lr * mHat / (math.Sqrt(vHat) + a.eps)
		}
	}
}

func (a *adam) Reset() {
	a.step = 0
	a.m = make(map[string][]float64)
	a.v = make(map[string][]float64)
}
