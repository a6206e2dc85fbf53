package noise

import (
	"fmt"
	"math/rand/v2"
)

// Cached generates one pool of standard-normal values up front and serves
// contiguous windows from it. The pool is read-only after construction, so a
// single instance can be shared by goroutines.
type Cached struct {
	pool      []float64
	numParams int
}

func NewCached(seed int64, cacheSize, numParams int) (*Cached, error) {
	if numParams < 0 {
		return nil, fmt.Errorf("parameter count must be >= 0, got %d", numParams)
	}
	if cacheSize <= numParams {
		return nil, fmt.Errorf("%w: cache=%d params=%d", ErrCacheTooSmall, cacheSize, numParams)
	}
	src := rand.NewPCG(uint64(seed), cachedStream)
	pool := make([]float64, cacheSize)
	for i := range pool {
		pool[i] = standardNormal(src)
	}
	return &Cached{pool: pool, numParams: numParams}, nil
}

// Sample returns length values starting at index, wrapping around the end of
// the pool.
func (c *Cached) Sample(index int64, length int) []float64 {
	out := make([]float64, length)
	size := int64(len(c.pool))
	start := index % size
	if start < 0 {
		start += size
	}
	pos := int(start)
	for i := range out {
		out[i] = c.pool[pos]
		pos++
		if pos == len(c.pool) {
			pos = 0
		}
	}
	return out
}

func (c *Cached) NoiseIndex(r *rand.Rand) int64 {
	return r.Int64N(c.Bound())
}

// Bound keeps every window of numParams values inside the pool.
func (c *Cached) Bound() int64 {
	return int64(len(c.pool) - c.numParams)
}

func (c *Cached) Size() int {
	return len(c.pool)
}
