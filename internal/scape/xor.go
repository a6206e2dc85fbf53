package scape

import (
	"context"
)

const XORName = "xor"

type xorCase struct {
	in   []float64
	want float64
}

var xorCases = []xorCase{
	{in: []float64{0, 0}, want: 0},
	{in: []float64{0, 1}, want: 1},
	{in: []float64{1, 0}, want: 1},
	{in: []float64{1, 1}, want: 0},
}

// XOR scores a two-input network by reciprocal summed squared error.
type XOR struct {
	mlpScape
}

func NewXOR(hidden []int) (*XOR, error) {
	s, err := newMLPScape(2, 1, hidden, "sigmoid")
	if err != nil {
		return nil, err
	}
	return &XOR{mlpScape: s}, nil
}

func (*XOR) Name() string { return XORName }

func (x *XOR) Evaluate(ctx context.Context, params []float64) (float64, error) {
	var sse float64
	for _, c := range xorCases {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		predicted, err := x.predict(params, c.in)
		if err != nil {
			return 0, err
		}
		delta := predicted - c.want
		sse += delta * delta
	}
	return 1.0 / (sse + 0.000001), nil
}
