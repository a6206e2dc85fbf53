// Package es holds the reconstruction scheme shared by every worker: reward
// normalization, gradient estimation from noise indices, and the replayable
// parameter state.
package es

import (
	"math"

	"evostrat/internal/model"
	"evostrat/internal/noise"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Epsilon floors the reward standard deviation so a block of equal rewards
// normalizes to zeros instead of dividing by zero.
const Epsilon = 1e-6

// NormalizeRewards returns z-scores using the population standard deviation.
// Rewards must be finite. Blocks whose moments overflow float64 are rescaled
// by their largest magnitude first, which leaves the z-scores unchanged.
func NormalizeRewards(rewards []float64) []float64 {
	out := make([]float64, len(rewards))
	if len(rewards) == 0 {
		return out
	}
	floor := Epsilon
	mean, std := stat.PopMeanStdDev(rewards, nil)
	if !isFinite(mean) || !isFinite(std) {
		scale := floats.Norm(rewards, math.Inf(1))
		scaled := make([]float64, len(rewards))
		for i, r := range rewards {
			scaled[i] = r / scale
		}
		rewards = scaled
		mean, std = stat.PopMeanStdDev(rewards, nil)
		floor = math.Max(Epsilon/scale, math.SmallestNonzeroFloat64)
	}
	if !(std > floor) {
		std = floor
	}
	for i, r := range rewards {
		out[i] = (r - mean) / std
		if !isFinite(out[i]) {
			out[i] = 0
		}
	}
	return out
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// BlockGradient sums normalizedReturn_k * noise_k over the block without
// scaling; the caller divides by blockSize*sigma after the optimizer step.
func BlockGradient(gen noise.Generator, numParams int, block model.Block) []float64 {
	grad := make([]float64, numParams)
	if len(block) == 0 {
		return grad
	}
	normalized := NormalizeRewards(block.Rewards())
	for k, ep := range block {
		if normalized[k] == 0 {
			continue
		}
		floats.AddScaled(grad, normalized[k], gen.Sample(ep.NoiseIndex, numParams))
	}
	return grad
}
