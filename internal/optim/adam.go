package optim

import "math"

type AdamConfig struct {
	Alpha   float64
	Beta1   float64
	Beta2   float64
	Epsilon float64
}

func DefaultAdamConfig(alpha float64) AdamConfig {
	return AdamConfig{Alpha: alpha, Beta1: 0.9, Beta2: 0.999, Epsilon: 1e-8}
}

// Adam keeps first and second moment estimates per parameter and one step
// counter advanced once per sweep.
type Adam struct {
	cfg AdamConfig
	m   []float64
	v   []float64
	t   int
}

func NewAdam(cfg AdamConfig) *Adam {
	def := DefaultAdamConfig(cfg.Alpha)
	if cfg.Beta1 == 0 {
		cfg.Beta1 = def.Beta1
	}
	if cfg.Beta2 == 0 {
		cfg.Beta2 = def.Beta2
	}
	if cfg.Epsilon == 0 {
		cfg.Epsilon = def.Epsilon
	}
	return &Adam{cfg: cfg}
}

func (a *Adam) Name() string { return NameAdam }

func (a *Adam) Step(gradient []float64) []float64 {
	if len(a.m) < len(gradient) {
		a.m = append(a.m, make([]float64, len(gradient)-len(a.m))...)
		a.v = append(a.v, make([]float64, len(gradient)-len(a.v))...)
	}
	a.t++
	b1, b2 := a.cfg.Beta1, a.cfg.Beta2
	step := a.cfg.Alpha * math.Sqrt(1-math.Pow(b2, float64(a.t))) / (1 - math.Pow(b1, float64(a.t)))

	out := make([]float64, len(gradient))
	for k, g := range gradient {
		a.m[k] = b1*a.m[k] + (1-b1)*g
		a.v[k] = b2*a.v[k] + (1-b2)*g*g
		out[k] = step * a.m[k] / (math.Sqrt(a.v[k]) + a.cfg.Epsilon)
	}
	return out
}

// Steps reports how many sweeps have been applied.
func (a *Adam) Steps() int {
	return a.t
}
