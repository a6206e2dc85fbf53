// Package optim implements the per-parameter update rules a worker applies
// after reconstructing a block gradient.
package optim

import (
	"fmt"
	"strings"
)

const (
	NameSGD  = "sgd"
	NameAdam = "adam"
)

// Optimizer turns one full gradient sweep into a parameter update. Stateful
// implementations are owned by a single worker.
type Optimizer interface {
	Name() string
	Step(gradient []float64) []float64
}

func New(name string, alpha float64) (Optimizer, error) {
	if alpha <= 0 {
		return nil, fmt.Errorf("alpha must be > 0, got %v", alpha)
	}
	switch strings.TrimSpace(strings.ToLower(name)) {
	case NameSGD:
		return NewSGD(alpha), nil
	case "", NameAdam:
		return NewAdam(AdamConfig{Alpha: alpha}), nil
	default:
		return nil, fmt.Errorf("unsupported optimizer: %s", name)
	}
}

type SGD struct {
	Alpha float64
}

func NewSGD(alpha float64) *SGD {
	return &SGD{Alpha: alpha}
}

func (s *SGD) Name() string { return NameSGD }

func (s *SGD) Step(gradient []float64) []float64 {
	out := make([]float64, len(gradient))
	for k, g := range gradient {
		out[k] = g * s.Alpha
	}
	return out
}
