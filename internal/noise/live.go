package noise

import "math/rand/v2"

// Live reseeds a generator per element with seed+position+index. It holds no
// pool, so the index space is bounded only by the configured bound.
type Live struct {
	seed  int64
	bound int64
}

func NewLive(seed, bound int64) *Live {
	if bound <= 0 {
		bound = DefaultLiveBound
	}
	return &Live{seed: seed, bound: bound}
}

func (l *Live) Sample(index int64, length int) []float64 {
	out := make([]float64, length)
	for i := range out {
		out[i] = standardNormal(rand.NewPCG(uint64(l.seed+int64(i)+index), liveStream))
	}
	return out
}

func (l *Live) NoiseIndex(r *rand.Rand) int64 {
	return r.Int64N(l.bound)
}

func (l *Live) Bound() int64 {
	return l.bound
}
