package scape

import (
	"context"
	"fmt"

	"evostrat/internal/model"

	"gonum.org/v1/gonum/floats"
)

const SphereName = "sphere"

const defaultSphereDim = 8

// Sphere rewards closeness to a fixed target: reward = -||p - target||².
type Sphere struct {
	Target []float64
}

func NewSphere(dim int) (*Sphere, error) {
	if dim == 0 {
		dim = defaultSphereDim
	}
	if dim < 0 {
		return nil, fmt.Errorf("sphere dimension must be positive, got %d", dim)
	}
	target := make([]float64, dim)
	for i := range target {
		target[i] = 1
	}
	return &Sphere{Target: target}, nil
}

func (*Sphere) Name() string { return SphereName }

func (s *Sphere) NumParams() int { return len(s.Target) }

func (s *Sphere) InitialParameters(int64) model.ParameterVector {
	return make(model.ParameterVector, len(s.Target))
}

func (s *Sphere) Evaluate(ctx context.Context, params []float64) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(params) != len(s.Target) {
		return 0, fmt.Errorf("sphere expects %d parameters, got %d", len(s.Target), len(params))
	}
	diff := make([]float64, len(params))
	floats.SubTo(diff, params, s.Target)
	return -floats.Dot(diff, diff), nil
}
