package es

import (
	"errors"
	"fmt"

	"evostrat/internal/model"
	"evostrat/internal/noise"
	"evostrat/internal/optim"
)

// ErrUninitialized is returned when a block arrives before hyperparameters
// are known.
var ErrUninitialized = errors.New("optimizer is not initialized")

// OptimizerFactory builds a fresh optimizer once alpha is known.
type OptimizerFactory func(alpha float64) (optim.Optimizer, error)

// State is one worker's replicated copy of the optimization: head
// parameters, the pending update vector and the optimizer trajectory. Given
// the same initial vector, seed and ordered blocks, two States end in the
// same place bit for bit.
type State struct {
	initial   model.ParameterVector
	head      model.ParameterVector
	update    []float64
	gen       noise.Generator
	factory   OptimizerFactory
	optimizer optim.Optimizer
	hyper     model.Hyperparameters
	ready     bool
	applied   int
}

func NewState(initial model.ParameterVector, gen noise.Generator, factory OptimizerFactory) (*State, error) {
	if gen == nil {
		return nil, errors.New("noise generator is required")
	}
	if factory == nil {
		return nil, errors.New("optimizer factory is required")
	}
	return &State{
		initial: initial.Clone(),
		head:    initial.Clone(),
		update:  make([]float64, len(initial)),
		gen:     gen,
		factory: factory,
	}, nil
}

// NamedOptimizer adapts optim.New to an OptimizerFactory.
func NamedOptimizer(name string) OptimizerFactory {
	return func(alpha float64) (optim.Optimizer, error) {
		return optim.New(name, alpha)
	}
}

// Initialize rebuilds the state from scratch: head is reset to base (or the
// initial vector when base is nil), a new optimizer is built for alpha, and
// history is replayed in order.
func (s *State) Initialize(hyper model.Hyperparameters, base model.ParameterVector, history []model.Block) error {
	if hyper.Sigma <= 0 {
		return fmt.Errorf("sigma must be > 0, got %v", hyper.Sigma)
	}
	start := s.initial
	if base != nil {
		if len(base) != len(s.initial) {
			return fmt.Errorf("warm start has %d parameters, expected %d", len(base), len(s.initial))
		}
		start = base
	}
	optimizer, err := s.factory(hyper.Alpha)
	if err != nil {
		return fmt.Errorf("build optimizer: %w", err)
	}
	s.head = start.Clone()
	clear(s.update)
	s.optimizer = optimizer
	s.hyper = hyper
	s.applied = 0
	s.ready = true

	for i, block := range history {
		if err := s.ApplyBlock(block); err != nil {
			return fmt.Errorf("replay block %d: %w", i, err)
		}
	}
	return nil
}

// ApplyBlock reconstructs the block gradient and applies one optimizer step:
// head[k] += step[k] / (len(block) * sigma).
func (s *State) ApplyBlock(block model.Block) error {
	if !s.ready || s.optimizer == nil {
		return ErrUninitialized
	}
	if len(block) == 0 {
		return nil
	}
	grad := BlockGradient(s.gen, len(s.head), block)
	for k, g := range grad {
		s.update[k] += g
	}
	step := s.optimizer.Step(s.update)
	scale := float64(len(block)) * s.hyper.Sigma
	for k := range s.head {
		s.head[k] += step[k] / scale
		s.update[k] = 0
	}
	s.applied++
	return nil
}

// Trial returns head + sigma * noise(index), the vector a worker evaluates.
func (s *State) Trial(index int64) (model.ParameterVector, error) {
	if !s.ready {
		return nil, ErrUninitialized
	}
	trial := s.gen.Sample(index, len(s.head))
	for k := range trial {
		trial[k] = s.head[k] + s.hyper.Sigma*trial[k]
	}
	return trial, nil
}

func (s *State) Parameters() model.ParameterVector {
	return s.head.Clone()
}

func (s *State) Hyperparameters() model.Hyperparameters {
	return s.hyper
}

func (s *State) Initialized() bool {
	return s.ready
}

func (s *State) BlocksApplied() int {
	return s.applied
}

func (s *State) NumParams() int {
	return len(s.initial)
}
