package scheduler

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed+1))
}

func TestPickStaysInRange(t *testing.T) {
	rng := newRand(1)
	for n := 1; n < 20; n++ {
		for i := 0; i < 200; i++ {
			idx := Pick(n, nil, rng)
			require.GreaterOrEqual(t, idx, 0)
			require.Less(t, idx, n)
		}
	}
	assert.Equal(t, 0, Pick(0, nil, rng))
	assert.Equal(t, 0, Pick(-3, nil, rng))
}

func TestPickRespectsWeights(t *testing.T) {
	rng := newRand(7)
	weights := []float64{0, 0, 5, 0}
	for i := 0; i < 100; i++ {
		assert.Equal(t, 2, Pick(4, weights, rng))
	}
}

func TestPickFallsBackToUniform(t *testing.T) {
	tests := []struct {
		name    string
		weights []float64
	}{
		{"nil", nil},
		{"length_mismatch", []float64{1, 2}},
		{"all_zero", []float64{0, 0, 0, 0}},
		{"negative", []float64{-1, -1, -1, -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen := make(map[int]bool)
			rng := newRand(3)
			for i := 0; i < 400; i++ {
				seen[Pick(4, tt.weights, rng)] = true
			}
			assert.Len(t, seen, 4, "every position should be reachable")
		})
	}
}

func TestPickIsDeterministic(t *testing.T) {
	weights := []float64{1, 3, 0.5, 2, 0}
	a, b := newRand(42), newRand(42)
	for i := 0; i < 100; i++ {
		assert.Equal(t, Pick(5, weights, a), Pick(5, weights, b))
	}
}

func TestPickPairDistinct(t *testing.T) {
	s := New(nil)
	rng := newRand(9)
	for i := 0; i < 500; i++ {
		a, b := s.PickPair(3, rng)
		require.NotEqual(t, a, b)
		require.Less(t, a, 3)
		require.Less(t, b, 3)
	}
	a, b := s.PickPair(1, rng)
	assert.Equal(t, 0, a)
	assert.Equal(t, 0, b)
}

func TestPickPairWithSingleWeightedIndex(t *testing.T) {
	bias := NewNoveltyBias(8, 100)
	bias.Credit(1)
	s := New(bias)
	rng := newRand(11)
	for i := 0; i < 100; i++ {
		a, b := s.PickPair(2, rng)
		require.NotEqual(t, a, b)
	}
}

func TestPickInsertionCoversEnd(t *testing.T) {
	s := New(Uniform{})
	rng := newRand(5)
	seen := make(map[int]bool)
	for i := 0; i < 300; i++ {
		idx := s.PickInsertion(3, rng)
		require.LessOrEqual(t, idx, 3)
		seen[idx] = true
	}
	assert.True(t, seen[3], "insertion after the last packet should be possible")
	assert.Equal(t, 0, s.PickInsertion(0, rng))
}

func TestNoveltyBiasWeights(t *testing.T) {
	bias := NewNoveltyBias(4, 2)
	assert.Nil(t, bias.Weights(3), "no credit means uniform")

	bias.Credit(1)
	bias.Credit(1)
	bias.Credit(5)
	assert.Equal(t, []float64{1, 5, 1}, bias.Weights(3))
	assert.Nil(t, bias.Weights(1), "credit outside the sequence is ignored")

	// window of 4: the next two credits evict both credits for index 1
	bias.Credit(0)
	bias.Credit(0)
	bias.Credit(0)
	assert.Equal(t, 0, bias.Hits(1))
	assert.Equal(t, 3, bias.Hits(0))
	assert.Equal(t, []float64{7, 1, 1}, bias.Weights(3))
}

func TestNoveltyBiasSkewsSelection(t *testing.T) {
	bias := NewNoveltyBias(16, 50)
	for i := 0; i < 10; i++ {
		bias.Credit(3)
	}
	s := New(bias)
	rng := newRand(21)
	hits := 0
	for i := 0; i < 1000; i++ {
		if s.Pick(4, rng) == 3 {
			hits++
		}
	}
	assert.Greater(t, hits, 900)
}
