// Package scheduler picks the packet positions a mutation round targets.
package scheduler

// Rand is the randomness the scheduler draws from.
type Rand interface {
	IntN(n int) int
	Uint64() uint64
}

// Policy supplies per-index weights for a sequence of length n. A nil
// result means uniform selection.
type Policy interface {
	Weights(n int) []float64
}

// Uniform is the default policy: every position is equally likely.
type Uniform struct{}

// Weights implements Policy.
func (Uniform) Weights(int) []float64 { return nil }

// Pick returns an index in [0,n). Selection is uniform when weights is nil,
// has a length other than n, or sums to zero; otherwise index i is chosen
// with probability weights[i]/sum. Negative weights count as zero. For n < 1
// Pick returns 0.
func Pick(n int, weights []float64, rng Rand) int {
	if n <= 1 {
		return 0
	}
	if len(weights) != n {
		return rng.IntN(n)
	}
	var total float64
	for _, w := range weights {
		if w > 0 {
			total += w
		}
	}
	if total <= 0 {
		return rng.IntN(n)
	}

	target := unitFloat(rng) * total
	var acc float64
	last := 0
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		acc += w
		last = i
		if target < acc {
			return i
		}
	}
	// floating point rounding can leave target == total
	return last
}

// unitFloat returns a float64 in [0,1) built from the top 53 bits.
func unitFloat(rng Rand) float64 {
	return float64(rng.Uint64()>>11) / (1 << 53)
}

// Scheduler couples a Policy with Pick.
type Scheduler struct {
	policy Policy
}

// New creates a scheduler. A nil policy selects uniformly.
func New(policy Policy) *Scheduler {
	if policy == nil {
		policy = Uniform{}
	}
	return &Scheduler{policy: policy}
}

// Policy returns the weighting policy in use.
func (s *Scheduler) Policy() Policy {
	return s.policy
}

// Pick chooses one target index for a sequence of length n.
func (s *Scheduler) Pick(n int, rng Rand) int {
	return Pick(n, s.policy.Weights(n), rng)
}

// PickPair chooses two distinct indices for n >= 2. For n < 2 both are 0.
func (s *Scheduler) PickPair(n int, rng Rand) (int, int) {
	if n < 2 {
		return 0, 0
	}
	weights := s.policy.Weights(n)
	first := Pick(n, weights, rng)
	if len(weights) == n {
		rest := append([]float64(nil), weights...)
		rest[first] = 0
		second := Pick(n, rest, rng)
		if second != first {
			return first, second
		}
	}
	// uniform over the n-1 other positions
	second := (first + 1 + rng.IntN(n-1)) % n
	return first, second
}

// PickInsertion chooses an insertion point in [0,n].
func (s *Scheduler) PickInsertion(n int, rng Rand) int {
	if n <= 0 {
		return 0
	}
	return Pick(n+1, nil, rng)
}
