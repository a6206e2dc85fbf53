// Package scape holds the fitness evaluators workers score trial parameter
// vectors against. Evaluations may take arbitrarily long; the returned
// reward is the single report for that trial.
package scape

import (
	"context"
	"fmt"
	"sort"
	"time"

	"evostrat/internal/model"
	"evostrat/internal/policy"
	"evostrat/internal/scapeid"
)

type Evaluator interface {
	Name() string
	NumParams() int
	// InitialParameters is the starting vector shared by every worker that
	// uses the same seed.
	InitialParameters(seed int64) model.ParameterVector
	Evaluate(ctx context.Context, params []float64) (float64, error)
}

type Options struct {
	// Hidden layer sizes for MLP-backed scapes.
	Hidden []int
	// Dim is the sphere dimensionality.
	Dim int
	// Latency delays every evaluation, simulating a slow environment.
	Latency time.Duration
}

type constructor func(Options) (Evaluator, error)

var builtIns = map[string]constructor{
	SphereName:          func(o Options) (Evaluator, error) { return NewSphere(o.Dim) },
	CartPoleLiteName:    func(o Options) (Evaluator, error) { return NewCartPoleLite(o.Hidden) },
	XORName:             func(o Options) (Evaluator, error) { return NewXOR(o.Hidden) },
	RegressionMimicName: func(o Options) (Evaluator, error) { return NewRegressionMimic(o.Hidden) },
}

// Lookup builds the named evaluator. Names are matched after alias
// normalization, so "CartPole" and "cart_pole_lite" resolve the same scape.
func Lookup(name string, opts Options) (Evaluator, error) {
	build, ok := builtIns[scapeid.Normalize(name)]
	if !ok {
		return nil, fmt.Errorf("unknown scape %q (have %v)", name, Names())
	}
	e, err := build(opts)
	if err != nil {
		return nil, fmt.Errorf("build scape %s: %w", name, err)
	}
	if opts.Latency > 0 {
		e = WithLatency(e, opts.Latency)
	}
	return e, nil
}

func Names() []string {
	names := make([]string, 0, len(builtIns))
	for name := range builtIns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// mlpScape supplies the parameter plumbing shared by network-driven scapes.
type mlpScape struct {
	net *policy.MLP
}

func newMLPScape(inputs, outputs int, hidden []int, outputActivation string) (mlpScape, error) {
	layers := make([]policy.Layer, 0, len(hidden)+1)
	for _, size := range hidden {
		layers = append(layers, policy.Layer{Size: size, Activation: "tanh"})
	}
	layers = append(layers, policy.Layer{Size: outputs, Activation: outputActivation})
	net, err := policy.NewMLP(inputs, layers)
	if err != nil {
		return mlpScape{}, err
	}
	return mlpScape{net: net}, nil
}

func (s mlpScape) NumParams() int { return s.net.NumParams() }

func (s mlpScape) InitialParameters(seed int64) model.ParameterVector {
	return s.net.Init(seed)
}

func (s mlpScape) predict(params, in []float64) (float64, error) {
	out, err := s.net.Forward(params, in)
	if err != nil {
		return 0, err
	}
	return out[0], nil
}

type latency struct {
	Evaluator
	delay time.Duration
}

func WithLatency(e Evaluator, delay time.Duration) Evaluator {
	return latency{Evaluator: e, delay: delay}
}

func (l latency) Evaluate(ctx context.Context, params []float64) (float64, error) {
	timer := time.NewTimer(l.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-timer.C:
	}
	return l.Evaluator.Evaluate(ctx, params)
}
