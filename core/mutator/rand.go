package mutator

import "math/rand/v2"

// Rand is the randomness source used by every operator. *rand.Rand from
// math/rand/v2 satisfies it.
type Rand interface {
	IntN(n int) int
	Uint64() uint64
}

// NewRand returns a deterministic source for the given seed. Two sources
// created with the same seed produce the same stream.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// below returns a value in [0,n), or 0 when n <= 0.
func below(rng Rand, n int) int {
	if n <= 1 {
		return 0
	}
	return rng.IntN(n)
}

func chance(rng Rand, n int) bool {
	return below(rng, n) == 0
}
