package stats

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

type RunSummary struct {
	RunID           string  `json:"run_id"`
	Blocks          int     `json:"blocks"`
	Episodes        int     `json:"episodes"`
	InitialSmoothed float64 `json:"initial_smoothed_reward"`
	FinalSmoothed   float64 `json:"final_smoothed_reward"`
	BestBlockMean   float64 `json:"best_block_mean_reward"`
	WorstBlockMean  float64 `json:"worst_block_mean_reward"`
	BlockMeanMean   float64 `json:"block_mean_reward_mean"`
	BlockMeanStd    float64 `json:"block_mean_reward_std"`
	Improvement     float64 `json:"improvement"`
}

// Summarize reduces per-block mean rewards and the smoothed series of a run.
// Std is the unbiased estimate and is zero for fewer than two blocks.
func Summarize(runID string, episodes int, blockMeans, smoothed []float64) RunSummary {
	summary := RunSummary{RunID: runID, Blocks: len(blockMeans), Episodes: episodes}
	if len(smoothed) > 0 {
		summary.InitialSmoothed = smoothed[0]
		summary.FinalSmoothed = smoothed[len(smoothed)-1]
		summary.Improvement = summary.FinalSmoothed - summary.InitialSmoothed
	}
	if len(blockMeans) == 0 {
		return summary
	}
	summary.BestBlockMean = floats.Max(blockMeans)
	summary.WorstBlockMean = floats.Min(blockMeans)
	if len(blockMeans) == 1 {
		summary.BlockMeanMean = blockMeans[0]
		return summary
	}
	mean, std := stat.MeanStdDev(blockMeans, nil)
	summary.BlockMeanMean = mean
	if !math.IsNaN(std) {
		summary.BlockMeanStd = std
	}
	return summary
}
