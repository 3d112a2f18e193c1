package scheduler

import "sync"

// NoveltyBias weights positions by how often they recently produced new
// state-graph nodes or edges. Only the last Window credited indices count,
// so old discoveries fade out. Weight of index i is 1 + Boost*hits(i), so
// positions without credit keep a non-zero chance.
//
// NoveltyBias is safe for concurrent use by several workers.
type NoveltyBias struct {
	mu     sync.Mutex
	boost  float64
	window []int
	next   int
	filled bool
	counts map[int]int
}

// NewNoveltyBias creates the policy. window <= 0 defaults to 256 and a
// negative boost is treated as 0.
func NewNoveltyBias(window int, boost float64) *NoveltyBias {
	if window <= 0 {
		window = 256
	}
	if boost < 0 {
		boost = 0
	}
	return &NoveltyBias{
		boost:  boost,
		window: make([]int, window),
		counts: make(map[int]int),
	}
}

// Credit records that the packet at index produced novelty.
func (b *NoveltyBias) Credit(index int) {
	if index < 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.filled {
		evicted := b.window[b.next]
		if b.counts[evicted]--; b.counts[evicted] <= 0 {
			delete(b.counts, evicted)
		}
	}
	b.window[b.next] = index
	b.counts[index]++
	b.next++
	if b.next == len(b.window) {
		b.next = 0
		b.filled = true
	}
}

// Hits returns how many of the remembered credits belong to index.
func (b *NoveltyBias) Hits(index int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts[index]
}

// Weights implements Policy. It returns nil (uniform) while nothing inside
// [0,n) has been credited.
func (b *NoveltyBias) Weights(n int) []float64 {
	if n <= 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	var weights []float64
	for i := 0; i < n; i++ {
		hits := b.counts[i]
		if hits == 0 {
			continue
		}
		if weights == nil {
			weights = make([]float64, n)
			for j := range weights {
				weights[j] = 1
			}
		}
		weights[i] += b.boost * float64(hits)
	}
	return weights
}
