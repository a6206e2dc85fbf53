// Package noise derives the perturbation vectors workers evaluate. A vector
// is never sent over the network: every process regenerates it from the
// shared seed and an integer noise index.
package noise

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"

	"gonum.org/v1/gonum/stat/distuv"
)

const (
	StrategyLive   = "live"
	StrategyCached = "cached"

	DefaultLiveBound = int64(100_000_000)
	DefaultCacheSize = 10_000_000
)

// PCG stream selectors. Changing either breaks compatibility with every
// history recorded under the old values.
const (
	liveStream   uint64 = 0x9e3779b97f4a7c15
	cachedStream uint64 = 0xbf58476d1ce4e5b9
)

var (
	ErrCacheTooSmall   = errors.New("noise cache must be larger than the parameter count")
	ErrUnknownStrategy = errors.New("unknown noise strategy")
)

// Generator maps (shared seed, index) to a standard-normal vector.
// Implementations must be pure: the same index yields the same values in
// every process constructed with the same seed.
type Generator interface {
	Sample(index int64, length int) []float64
	// NoiseIndex draws a uniform index in [0, Bound()) from r.
	NoiseIndex(r *rand.Rand) int64
	Bound() int64
}

type Config struct {
	Strategy  string
	Seed      int64
	NumParams int
	CacheSize int
	LiveBound int64
}

func New(cfg Config) (Generator, error) {
	switch strings.TrimSpace(strings.ToLower(cfg.Strategy)) {
	case "", StrategyCached:
		size := cfg.CacheSize
		if size <= 0 {
			size = DefaultCacheSize
		}
		return NewCached(cfg.Seed, size, cfg.NumParams)
	case StrategyLive:
		return NewLive(cfg.Seed, cfg.LiveBound), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownStrategy, cfg.Strategy)
	}
}

// standardNormal consumes one draw from src and maps it through the unit
// normal quantile. The uniform is taken from the top 53 bits and shifted by
// half a step so it never reaches 0 or 1.
func standardNormal(src rand.Source) float64 {
	u := (float64(src.Uint64()>>11) + 0.5) / (1 << 53)
	return distuv.UnitNormal.Quantile(u)
}
