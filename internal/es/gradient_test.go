package es

import (
	"math"
	"testing"

	"evostrat/internal/model"
	"evostrat/internal/noise"

	"pgregory.net/rapid"
)

func TestNormalizeRewardsFiveSteps(t *testing.T) {
	got := NormalizeRewards([]float64{1, 2, 3, 4, 5})
	want := []float64{-1.41421356, -0.70710678, 0, 0.70710678, 1.41421356}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-6 {
			t.Fatalf("normalized[%d]=%v want %v", i, got[i], want[i])
		}
	}
}

func TestNormalizeRewardsDegenerateBlock(t *testing.T) {
	got := NormalizeRewards([]float64{3, 3, 3, 3, 3})
	for i, v := range got {
		if v != 0 || math.IsNaN(v) {
			t.Fatalf("expected zero normalized return at %d, got %v", i, v)
		}
	}
}

func TestNormalizeRewardsNearFloatLimit(t *testing.T) {
	got := NormalizeRewards([]float64{1e308, 1e308, -1e308, 0})
	want := NormalizeRewards([]float64{1, 1, -1, 0})
	for i := range want {
		if math.IsNaN(got[i]) || math.IsInf(got[i], 0) {
			t.Fatalf("normalized[%d] is not finite: %v", i, got[i])
		}
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Fatalf("normalized[%d]=%v want %v", i, got[i], want[i])
		}
	}
	if !(got[0] > 0 && got[1] > 0 && got[2] < 0) {
		t.Fatalf("unexpected signs: %v", got)
	}

	equal := NormalizeRewards([]float64{math.MaxFloat64, math.MaxFloat64})
	for i, v := range equal {
		if v != 0 {
			t.Fatalf("expected zero for equal extreme rewards at %d, got %v", i, v)
		}
	}
}

func TestNormalizeRewardsEmpty(t *testing.T) {
	if got := NormalizeRewards(nil); len(got) != 0 {
		t.Fatalf("expected empty result, got %v", got)
	}
}

func TestNormalizeRewardsCentered(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		rewards := rapid.SliceOfN(rapid.Float64Range(-1000, 1000), 1, 64).Draw(rt, "rewards")
		normalized := NormalizeRewards(rewards)
		sum := 0.0
		for _, v := range normalized {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				rt.Fatalf("non-finite normalized value %v for %v", v, rewards)
			}
			sum += v
		}
		if math.Abs(sum/float64(len(normalized))) > 1e-6 {
			rt.Fatalf("normalized rewards not centered: mean=%v", sum/float64(len(normalized)))
		}
	})
}

func TestBlockGradientMatchesWeightedNoiseSum(t *testing.T) {
	gen := noise.NewLive(17, 0)
	const numParams = 6
	block := model.Block{
		{NoiseIndex: 10, Reward: 1},
		{NoiseIndex: 500, Reward: -2},
		{NoiseIndex: 42, Reward: 0.5},
		{NoiseIndex: 9000, Reward: 4},
	}

	rewards := block.Rewards()
	mean := 0.0
	for _, r := range rewards {
		mean += r
	}
	mean /= float64(len(rewards))
	variance := 0.0
	for _, r := range rewards {
		variance += (r - mean) * (r - mean)
	}
	std := math.Sqrt(variance / float64(len(rewards)))

	want := make([]float64, numParams)
	for _, ep := range block {
		vec := gen.Sample(ep.NoiseIndex, numParams)
		norm := (ep.Reward - mean) / math.Max(std, Epsilon)
		for k := range want {
			want[k] += norm * vec[k]
		}
	}

	got := BlockGradient(gen, numParams, block)
	for k := range want {
		if math.Abs(got[k]-want[k]) > 1e-12 {
			t.Fatalf("gradient[%d]=%v want %v", k, got[k], want[k])
		}
	}
}

func TestBlockGradientDegenerateIsZero(t *testing.T) {
	gen := noise.NewLive(1, 0)
	block := model.Block{{NoiseIndex: 1, Reward: 3}, {NoiseIndex: 2, Reward: 3}, {NoiseIndex: 3, Reward: 3}}
	for k, g := range BlockGradient(gen, 4, block) {
		if g != 0 {
			t.Fatalf("expected zero gradient at %d, got %v", k, g)
		}
	}
}
