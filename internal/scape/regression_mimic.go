package scape

import (
	"context"
)

const RegressionMimicName = "regression-mimic"

var regressionInputs = []float64{0.0, 0.25, 0.5, 0.75, 1.0}

// RegressionMimic fits y = x on a handful of points; reward is 1 - MSE.
type RegressionMimic struct {
	mlpScape
}

func NewRegressionMimic(hidden []int) (*RegressionMimic, error) {
	s, err := newMLPScape(1, 1, hidden, "identity")
	if err != nil {
		return nil, err
	}
	return &RegressionMimic{mlpScape: s}, nil
}

func (*RegressionMimic) Name() string { return RegressionMimicName }

func (r *RegressionMimic) Evaluate(ctx context.Context, params []float64) (float64, error) {
	var squaredErr float64
	for _, x := range regressionInputs {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		predicted, err := r.predict(params, []float64{x})
		if err != nil {
			return 0, err
		}
		delta := predicted - x
		squaredErr += delta * delta
	}
	return 1.0 - squaredErr/float64(len(regressionInputs)), nil
}
