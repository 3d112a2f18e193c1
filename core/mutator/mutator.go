// Package mutator implements packet-sequence mutation: byte-level havoc
// within one packet and protocol-aware edits across packets.
package mutator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gocircum/statefuzz/core/packet"
	"github.com/gocircum/statefuzz/core/scheduler"
)

// Kind identifies a mutation operator.
type Kind int

const (
	KindHavoc Kind = iota
	KindInsert
	KindDelete
	KindReorder
	KindDuplicate
	KindSplice
	KindCrossoverInsert
	KindCrossoverReplace
	numKinds
)

var kindNames = [...]string{
	KindHavoc:            "havoc",
	KindInsert:           "insert",
	KindDelete:           "delete",
	KindReorder:          "reorder",
	KindDuplicate:        "duplicate",
	KindSplice:           "splice",
	KindCrossoverInsert:  "crossover_insert",
	KindCrossoverReplace: "crossover_replace",
}

func (k Kind) String() string {
	if k < 0 || k >= numKinds {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// Kinds returns every operator kind in declaration order.
func Kinds() []Kind {
	out := make([]Kind, numKinds)
	for i := range out {
		out[i] = Kind(i)
	}
	return out
}

// ParseKind maps an operator name to its Kind.
func ParseKind(name string) (Kind, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range kindNames {
		if n == name {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown mutation kind %q", name)
}

// Protocol reports whether the kind edits the sequence structure rather than
// bytes within one packet.
func (k Kind) Protocol() bool {
	return k != KindHavoc && k != KindCrossoverReplace
}

// Options bound the operators.
type Options struct {
	// MinPackets is the smallest length deletion and splicing may leave.
	// Values below 1 are raised to 1.
	MinPackets int
	// MaxPackets caps insertion and duplication. 0 means no cap.
	MaxPackets int
	// MaxPacketSize caps byte growth of one packet. 0 means no cap.
	MaxPacketSize int
	// MaxHavocStack is the largest number of byte ops per havoc round.
	MaxHavocStack int
	// MaxAttempts is how many operators Mutate draws before giving up.
	MaxAttempts int
	// SynthMaxLen is the largest synthesized packet for insertion.
	SynthMaxLen int
}

// DefaultOptions mirrors the defaults of the configuration file.
func DefaultOptions() Options {
	return Options{
		MinPackets:    1,
		MaxHavocStack: 16,
		MaxAttempts:   4,
		SynthMaxLen:   16,
	}
}

func (o Options) normalized() Options {
	d := DefaultOptions()
	if o.MinPackets < 1 {
		o.MinPackets = 1
	}
	if o.MaxPackets < 0 {
		o.MaxPackets = 0
	}
	if o.MaxPacketSize < 0 {
		o.MaxPacketSize = 0
	}
	if o.MaxHavocStack <= 0 {
		o.MaxHavocStack = d.MaxHavocStack
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = d.MaxAttempts
	}
	if o.SynthMaxLen <= 0 {
		o.SynthMaxLen = d.SynthMaxLen
	}
	return o
}

// Dispatch chooses which operator to try next.
type Dispatch interface {
	Next(rng Rand) Kind
}

// WeightedDispatch picks kinds proportionally to their weights.
type WeightedDispatch struct {
	kinds   []Kind
	weights []float64
}

// NewWeightedDispatch builds a dispatch table. Kinds with a weight <= 0 are
// never chosen. An empty or all-zero table falls back to equal weights for
// every kind.
func NewWeightedDispatch(weights map[Kind]float64) *WeightedDispatch {
	d := &WeightedDispatch{}
	for k, w := range weights {
		if w > 0 && k >= 0 && k < numKinds {
			d.kinds = append(d.kinds, k)
		}
	}
	if len(d.kinds) == 0 {
		d.kinds = Kinds()
		d.weights = make([]float64, len(d.kinds))
		for i := range d.weights {
			d.weights[i] = 1
		}
		return d
	}
	// map order is random; the table must not be
	sort.Slice(d.kinds, func(i, j int) bool { return d.kinds[i] < d.kinds[j] })
	d.weights = make([]float64, len(d.kinds))
	for i, k := range d.kinds {
		d.weights[i] = weights[k]
	}
	return d
}

// Next implements Dispatch.
func (d *WeightedDispatch) Next(rng Rand) Kind {
	return d.kinds[scheduler.Pick(len(d.kinds), d.weights, rng)]
}

// Fixed always dispatches the same kind.
type Fixed Kind

// Next implements Dispatch.
func (f Fixed) Next(Rand) Kind { return Kind(f) }

// Outcome describes one mutation.
type Outcome struct {
	Sequence packet.Sequence
	Changed  bool
	Kind     Kind
	// Targets are the packet indices the operator touched, in the mutated
	// sequence.
	Targets []int
}

// Mutator applies operators to private copies of sequences. A Mutator holds
// no per-call state; it is safe for concurrent use as long as each caller
// passes its own Rand.
type Mutator struct {
	opts     Options
	sched    *scheduler.Scheduler
	dispatch Dispatch
}

// New creates a Mutator. A nil scheduler selects positions uniformly and a
// nil dispatch weighs every kind equally.
func New(opts Options, sched *scheduler.Scheduler, dispatch Dispatch) *Mutator {
	if sched == nil {
		sched = scheduler.New(nil)
	}
	if dispatch == nil {
		dispatch = NewWeightedDispatch(nil)
	}
	return &Mutator{
		opts:     opts.normalized(),
		sched:    sched,
		dispatch: dispatch,
	}
}

// Options returns the effective bounds.
func (m *Mutator) Options() Options {
	return m.opts
}

// Apply runs one operator on a copy of seq. The input is never modified.
// When nothing changed the returned Outcome carries seq itself.
func (m *Mutator) Apply(kind Kind, seq packet.Sequence, rng Rand) Outcome {
	work := seq.Clone()

	var (
		changed bool
		targets []int
	)
	switch kind {
	case KindHavoc:
		changed, targets = m.havoc(&work, rng)
	case KindInsert:
		changed, targets = m.insertPacket(&work, rng)
	case KindDelete:
		changed, targets = m.deletePacket(&work, rng)
	case KindReorder:
		changed, targets = m.reorderPacket(&work, rng)
	case KindDuplicate:
		changed, targets = m.duplicatePacket(&work, rng)
	case KindSplice:
		changed, targets = m.splicePackets(&work, rng)
	case KindCrossoverInsert:
		changed, targets = m.crossoverInsert(&work, rng)
	case KindCrossoverReplace:
		changed, targets = m.crossoverReplace(&work, rng)
	}

	if !changed || work.Equal(&seq) {
		return Outcome{Sequence: seq, Kind: kind}
	}
	return Outcome{Sequence: work, Changed: true, Kind: kind, Targets: targets}
}

// MutateOutcome draws operators from the dispatch policy until one changes
// the sequence or MaxAttempts is reached.
func (m *Mutator) MutateOutcome(seq packet.Sequence, rng Rand) Outcome {
	var out Outcome
	for attempt := 0; attempt < m.opts.MaxAttempts; attempt++ {
		out = m.Apply(m.dispatch.Next(rng), seq, rng)
		if out.Changed {
			return out
		}
	}
	return out
}

// Mutate returns a mutated copy of seq and whether anything changed. With
// changed == false the original sequence is returned.
func (m *Mutator) Mutate(seq packet.Sequence, rng Rand) (packet.Sequence, bool) {
	out := m.MutateOutcome(seq, rng)
	return out.Sequence, out.Changed
}
