package core

import (
	"sync"

	"github.com/gocircum/statefuzz/core/observer"
	"github.com/gocircum/statefuzz/core/packet"
)

// Entry is one admitted sequence.
type Entry struct {
	Sequence packet.Sequence
	// Verdict is the novelty the sequence had when it was admitted.
	Verdict observer.Verdict
	// Parent is the index of the entry it was mutated from, or -1 for seeds.
	Parent int
}

// Corpus is the in-memory set of admitted sequences. It is safe for
// concurrent use.
type Corpus struct {
	mu      sync.RWMutex
	entries []Entry
}

// Add admits a sequence and returns its index.
func (c *Corpus) Add(e Entry) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, e)
	return len(c.entries) - 1
}

// Len returns the number of admitted sequences.
func (c *Corpus) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Get returns entry i. The sequence is shared; callers mutate copies only.
func (c *Corpus) Get(i int) Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries[i]
}

// Pick returns a uniformly chosen entry and its index. ok is false for an
// empty corpus.
func (c *Corpus) Pick(rng interface{ IntN(int) int }) (Entry, int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.entries) == 0 {
		return Entry{}, -1, false
	}
	i := rng.IntN(len(c.entries))
	return c.entries[i], i, true
}

// Entries returns a snapshot of the admitted entries.
func (c *Corpus) Entries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Entry(nil), c.entries...)
}
