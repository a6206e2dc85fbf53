package coordinator

import (
	"fmt"
	"math"
)

const (
	PolicyFixed   = "fixed"
	PolicyWorkers = "workers"
)

// BlockSizePolicy decides how many episodes close the open block given the
// number of currently connected workers. Thresholds are at least 1.
type BlockSizePolicy interface {
	Threshold(workers int) int
}

type FixedBlockSize int

func (f FixedBlockSize) Threshold(int) int {
	return max(1, int(f))
}

// PerWorkerBlockSize scales the threshold with the live pool.
type PerWorkerBlockSize struct {
	EpisodesPerWorker float64
}

func (p PerWorkerBlockSize) Threshold(workers int) int {
	mult := p.EpisodesPerWorker
	if !(mult > 0) {
		mult = 1
	}
	return max(1, int(math.Ceil(float64(workers)*mult)))
}

func NewBlockSizePolicy(name string, size int, episodesPerWorker float64) (BlockSizePolicy, error) {
	switch name {
	case PolicyFixed:
		if size <= 0 {
			return nil, fmt.Errorf("fixed block size must be positive, got %d", size)
		}
		return FixedBlockSize(size), nil
	case "", PolicyWorkers:
		return PerWorkerBlockSize{EpisodesPerWorker: episodesPerWorker}, nil
	default:
		return nil, fmt.Errorf("unknown block size policy %q", name)
	}
}
