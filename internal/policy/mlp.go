// Package policy holds the parametric models optimized by workers. Models
// read their weights from a flat parameter vector so a trial vector can be
// evaluated without copying it into a structured form.
package policy

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"evostrat/internal/model"

	"gonum.org/v1/gonum/floats"
)

var ErrParameterCount = errors.New("parameter count mismatch")

// initStream keeps weight initialization off the noise streams.
const initStream = 0x696e6974

type Layer struct {
	Size       int
	Activation string
}

type denseLayer struct {
	in, out    int
	activation ActivationFunc
}

// MLP is a fully connected feed-forward network. Each layer occupies
// out*in row-major weights followed by out biases in the parameter vector.
type MLP struct {
	inputs    int
	layers    []denseLayer
	numParams int
}

func NewMLP(inputs int, layers []Layer) (*MLP, error) {
	if inputs <= 0 {
		return nil, fmt.Errorf("mlp needs at least one input, got %d", inputs)
	}
	if len(layers) == 0 {
		return nil, errors.New("mlp needs at least one layer")
	}
	m := &MLP{inputs: inputs}
	in := inputs
	for i, l := range layers {
		if l.Size <= 0 {
			return nil, fmt.Errorf("layer %d size must be positive, got %d", i, l.Size)
		}
		name := l.Activation
		if name == "" {
			name = "identity"
		}
		fn, err := GetActivation(name)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
		m.layers = append(m.layers, denseLayer{in: in, out: l.Size, activation: fn})
		m.numParams += l.Size*in + l.Size
		in = l.Size
	}
	return m, nil
}

func (m *MLP) NumParams() int { return m.numParams }

func (m *MLP) Inputs() int { return m.inputs }

func (m *MLP) Outputs() int { return m.layers[len(m.layers)-1].out }

func (m *MLP) Forward(params, input []float64) ([]float64, error) {
	if len(params) != m.numParams {
		return nil, fmt.Errorf("%w: have %d, want %d", ErrParameterCount, len(params), m.numParams)
	}
	if len(input) != m.inputs {
		return nil, fmt.Errorf("mlp expects %d inputs, got %d", m.inputs, len(input))
	}
	x := input
	offset := 0
	for _, l := range m.layers {
		weights := params[offset : offset+l.out*l.in]
		bias := params[offset+l.out*l.in : offset+l.out*l.in+l.out]
		offset += l.out*l.in + l.out

		y := make([]float64, l.out)
		for o := 0; o < l.out; o++ {
			y[o] = l.activation(floats.Dot(weights[o*l.in:(o+1)*l.in], x) + bias[o])
		}
		x = y
	}
	return x, nil
}

// Init draws weights from N(0, 1/fan_in) and zeroes biases. Every worker
// calling Init with the same seed gets the same vector.
func (m *MLP) Init(seed int64) model.ParameterVector {
	r := rand.New(rand.NewPCG(uint64(seed), initStream))
	params := make(model.ParameterVector, 0, m.numParams)
	for _, l := range m.layers {
		scale := 1 / math.Sqrt(float64(l.in))
		for i := 0; i < l.out*l.in; i++ {
			params = append(params, r.NormFloat64()*scale)
		}
		params = append(params, make([]float64, l.out)...)
	}
	return params
}
