package storage

import (
	"context"
	"errors"
	"fmt"
	"math"

	"evostrat/internal/model"
)

var ErrInvalidRecord = errors.New("invalid record")

// Store persists warm-start checkpoints and the smoothed reward history of a
// run. Failures are reported to the caller, who treats them as non-fatal.
type Store interface {
	Init(ctx context.Context) error
	SaveCheckpoint(ctx context.Context, checkpoint model.Checkpoint) error
	GetCheckpoint(ctx context.Context, key string) (model.Checkpoint, bool, error)
	SaveRewardHistory(ctx context.Context, runID string, history []float64) error
	GetRewardHistory(ctx context.Context, runID string) ([]float64, bool, error)
}

// validateCheckpoint rejects checkpoints a warm start could not resume from.
func validateCheckpoint(c model.Checkpoint) error {
	switch {
	case c.Key == "":
		return fmt.Errorf("%w: checkpoint key is required", ErrInvalidRecord)
	case len(c.Parameters) == 0:
		return fmt.Errorf("%w: checkpoint %s has no parameters", ErrInvalidRecord, c.Key)
	case c.BlockCount < 0:
		return fmt.Errorf("%w: checkpoint %s has negative block count %d", ErrInvalidRecord, c.Key, c.BlockCount)
	}
	for i, v := range c.Parameters {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: checkpoint %s parameter %d is %v", ErrInvalidRecord, c.Key, i, v)
		}
	}
	return nil
}

// validateRewardHistory requires one finite smoothed reward per block.
func validateRewardHistory(runID string, history []float64) error {
	for i, v := range history {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: run %q block %d smoothed reward is %v", ErrInvalidRecord, runID, i+1, v)
		}
	}
	return nil
}
