package models

import (
	"math"
	"math/rand"

	"github.com/pkg/errors"
)

// Variable is a named trainable parameter together with its accumulated
// gradient. Data and Grad are flat row-major buffers of the same length.
type Variable struct {
	Name  string
	Shape []int
	Data  []float64
	Grad  []float64
}

// Size returns the number of elements.
func (v *Variable) Size() int { return len(v.Data) }

// ZeroGrad clears the accumulated gradient.
func (v *Variable) ZeroGrad() {
	for i := range v.Grad {
		v.Grad[i] = 0
	}
}

// varSet owns the variables of one network in creation order. Creation
// order is deterministic for a given Config, which lets a saved weight
// file be matched back onto a freshly built network by name.
type varSet struct {
	list   []*Variable
	byName map[string]*Variable
	rng    *rand.Rand
}

func newVarSet(seed int64) *varSet {
	return &varSet{
		byName: make(map[string]*Variable),
		rng:    rand.New(rand.NewSource(seed)),
	}
}

func (s *varSet) register(name string, shape ...int) *Variable {
	if _, exists := s.byName[name]; exists {
		panic("duplicate variable name " + name)
	}
	size := 1
	for _, dim := range shape {
		size *= dim
	}
	v := &Variable{
		Name:  name,
		Shape: shape,
		Data:  make([]float64, size),
		Grad:  make([]float64, size),
	}
	s.list = append(s.list, v)
	s.byName[name] = v
	return v
}

// glorot creates a [fanOut][fanIn] matrix with Glorot-uniform entries.
func (s *varSet) glorot(name string, fanOut, fanIn int) *Variable {
	v := s.register(name, fanOut, fanIn)
	limit := math.Sqrt(6.0 / float64(fanIn+fanOut))
	for i := range v.Data {
		v.Data[i] = (s.rng.Float64()*2 - 1) * limit
	}
	return v
}

// uniform creates a variable with entries drawn from U(-scale, scale).
func (s *varSet) uniform(name string, scale float64, shape ...int) *Variable {
	v := s.register(name, shape...)
	for i := range v.Data {
		v.Data[i] = (s.rng.Float64()*2 - 1) * scale
	}
	return v
}

// zeros creates a zero-initialized variable.
func (s *varSet) zeros(name string, shape ...int) *Variable {
	return s.register(name, shape...)
}

// constant creates a variable with every entry set to value.
func (s *varSet) constant(name string, value float64, shape ...int) *Variable {
	v := s.register(name, shape...)
	for i := range v.Data {
		v.Data[i] = value
	}
	return v
}

// zeroGrads clears every gradient buffer.
func (s *varSet) zeroGrads() {
	for _, v := range s.list {
		v.ZeroGrad()
	}
}

// get returns the variable registered under name.
func (s *varSet) get(name string) (*Variable, bool) {
	v, ok := s.byName[name]
	return v, ok
}

// copyDataFrom copies parameter data from src, matched by name. Both sets
// must hold the same variables with the same shapes.
func (s *varSet) copyDataFrom(src *varSet) error {
	if len(s.list) != len(src.list) {
		return errors.Errorf("variable count mismatch: %d vs %d", len(s.list), len(src.list))
	}
	for _, v := range s.list {
		sv, ok := src.byName[v.Name]
		if !ok {
			return errors.Errorf("variable %s missing in source", v.Name)
		}
		if len(sv.Data) != len(v.Data) {
			return errors.Errorf("variable %s size mismatch: %d vs %d", v.Name, len(sv.Data), len(v.Data))
		}
		copy(v.Data, sv.Data)
	}
	return nil
}
