package scape

import (
	"context"
	"math"
)

const CartPoleLiteName = "cart-pole-lite"

const cartPoleLiteSteps = 60

var cartPoleLiteStarts = []float64{-0.8, -0.4, 0.0, 0.4, 0.8}

// CartPoleLite is a simplified 1D balancing task. The policy reads
// (position, velocity) and outputs a force in [-1, 1].
type CartPoleLite struct {
	mlpScape
}

func NewCartPoleLite(hidden []int) (*CartPoleLite, error) {
	s, err := newMLPScape(2, 1, hidden, "tanh")
	if err != nil {
		return nil, err
	}
	return &CartPoleLite{mlpScape: s}, nil
}

func (*CartPoleLite) Name() string { return CartPoleLiteName }

func (c *CartPoleLite) Evaluate(ctx context.Context, params []float64) (float64, error) {
	return evaluateCartPoleLite(ctx, func(x, v float64) (float64, error) {
		return c.predict(params, []float64{x, v})
	})
}

// evaluateCartPoleLite returns the average per-step reward over every start
// position. An episode ends early once the cart leaves [-2, 2].
func evaluateCartPoleLite(ctx context.Context, chooseForce func(x, v float64) (float64, error)) (float64, error) {
	totalReward := 0.0
	stepsSurvived := 0

	for _, start := range cartPoleLiteStarts {
		x := start
		v := 0.0
		for step := 0; step < cartPoleLiteSteps; step++ {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
			force, err := chooseForce(x, v)
			if err != nil {
				return 0, err
			}
			var reward float64
			x, v, reward = cartPoleLiteStep(x, v, force)
			totalReward += reward
			stepsSurvived++
			if math.Abs(x) > 2.0 {
				break
			}
		}
	}
	if stepsSurvived == 0 {
		return 0, nil
	}
	return totalReward / float64(stepsSurvived), nil
}

func cartPoleLiteStep(x, v, force float64) (nextX, nextV, reward float64) {
	const (
		dt       = 0.1
		kPos     = 0.45
		kVel     = 0.15
		forceK   = 1.25
		maxForce = 1.0
	)
	force = math.Max(-maxForce, math.Min(maxForce, force))

	acc := forceK*force - kPos*x - kVel*v
	v = v + acc*dt
	x = x + v*dt
	reward = 1.0 - math.Min(1.0, math.Abs(x)/2.0)
	return x, v, reward
}
