// Package observer turns the per-packet signals of one execution into
// state-graph updates and a novelty verdict for the host fuzzer.
package observer

import (
	"fmt"

	"github.com/gocircum/statefuzz/core/stategraph"
	"github.com/gocircum/statefuzz/pkg/logging"
)

// Verdict is the novelty of one execution. Later values are more novel.
type Verdict int

const (
	Known Verdict = iota
	NewEdge
	NewNode
)

func (v Verdict) String() string {
	switch v {
	case Known:
		return "known"
	case NewEdge:
		return "new_edge"
	case NewNode:
		return "new_node"
	}
	return fmt.Sprintf("verdict(%d)", int(v))
}

// Interesting reports whether the execution discovered anything.
func (v Verdict) Interesting() bool {
	return v > Known
}

// DefaultMaxSignalBytes bounds the canonical size of a signal.
const DefaultMaxSignalBytes = 4096

const maxLabelLen = 48

// Options configure an Observer.
type Options struct {
	Normalize Normalizer
	// MaxSignalBytes rejects larger canonical signals with
	// ErrSignatureComputation. 0 selects DefaultMaxSignalBytes.
	MaxSignalBytes int
}

// Observer shares one state graph between executions. It is safe for
// concurrent use; each execution keeps its own cursor.
type Observer struct {
	graph     *stategraph.Graph
	normalize Normalizer
	maxSignal int
	logger    logging.Logger
}

// New creates an observer over graph.
func New(graph *stategraph.Graph, opts Options, logger logging.Logger) *Observer {
	if opts.Normalize == nil {
		opts.Normalize = Raw
	}
	if opts.MaxSignalBytes <= 0 {
		opts.MaxSignalBytes = DefaultMaxSignalBytes
	}
	return &Observer{
		graph:     graph,
		normalize: opts.Normalize,
		maxSignal: opts.MaxSignalBytes,
		logger:    logging.OrGlobal(logger).With("component", "observer"),
	}
}

// Graph returns the shared state graph.
func (o *Observer) Graph() *stategraph.Graph {
	return o.graph
}

// Signature normalizes a signal and hashes it.
func (o *Observer) Signature(sig Signal) (stategraph.Signature, string, error) {
	norm, err := o.normalize(sig)
	if err != nil {
		return 0, "", err
	}
	if norm == nil {
		return 0, "", fmt.Errorf("%w: normalizer returned nil", ErrSignatureComputation)
	}
	canonical := norm.Canonical()
	if len(canonical) > o.maxSignal {
		return 0, "", fmt.Errorf("%w: signal of %d bytes exceeds limit %d", ErrSignatureComputation, len(canonical), o.maxSignal)
	}
	label := norm.String()
	if len(label) > maxLabelLen {
		label = label[:maxLabelLen]
	}
	return stategraph.SignatureOf(canonical), label, nil
}

// Begin starts an execution of a sequence with expected packets. expected
// <= 0 leaves the end open; Finish then closes it.
func (o *Observer) Begin(expected int) *Execution {
	return &Execution{
		obs:      o,
		cur:      stategraph.StartNode,
		expected: expected,
	}
}

// Result summarizes one finished execution.
type Result struct {
	Verdict  Verdict
	NewNodes int
	NewEdges int
	// NovelIndices are the packet indices whose transition created a node
	// or an edge.
	NovelIndices []int
	// Recorded is the number of signals committed to the graph.
	Recorded int
	// Truncated is set when the execution ended before the expected number
	// of packets.
	Truncated bool
	// Final is the node the execution ended in.
	Final stategraph.NodeID
	// Err holds a signature computation failure, if any.
	Err error
}

// Execution follows one replay through the graph. It is owned by a single
// worker and must not be shared.
type Execution struct {
	obs      *Observer
	cur      stategraph.NodeID
	index    int
	expected int
	done     bool
	res      Result
}

// Record commits the signal observed after the current packet. alive=false
// means the target died or the connection broke; the signal is discarded
// and the execution ends. Record returns the verdict so far and whether the
// execution accepts further signals.
func (e *Execution) Record(sig Signal, alive bool) (Verdict, bool) {
	if e.done {
		return e.res.Verdict, false
	}
	if !alive {
		e.obs.logger.Debug("target not alive, ending execution", "index", e.index)
		e.end()
		return e.res.Verdict, false
	}

	signature, label, err := e.obs.Signature(sig)
	if err != nil {
		e.res.Err = fmt.Errorf("packet %d: %w", e.index, err)
		e.obs.logger.Warn("dropping execution tail", "index", e.index, "error", err)
		e.end()
		return e.res.Verdict, false
	}

	next, newNode, newEdge := e.obs.graph.Transition(e.cur, signature, e.index, label)
	if newNode {
		e.res.NewNodes++
		e.bump(NewNode)
		e.obs.logger.Debug("new state", "node", next, "signature", signature, "label", label, "index", e.index)
	}
	if newEdge {
		e.res.NewEdges++
		e.bump(NewEdge)
	}
	if newNode || newEdge {
		e.res.NovelIndices = append(e.res.NovelIndices, e.index)
	}
	e.cur = next
	e.index++
	e.res.Recorded++

	if e.expected > 0 && e.index >= e.expected {
		e.end()
		return e.res.Verdict, false
	}
	return e.res.Verdict, true
}

// Index is the packet index the next signal belongs to.
func (e *Execution) Index() int {
	return e.index
}

// Done reports whether the execution stopped accepting signals.
func (e *Execution) Done() bool {
	return e.done
}

// Finish closes the execution and returns its result. It may be called more
// than once.
func (e *Execution) Finish() Result {
	if !e.done {
		e.end()
	}
	return e.res
}

func (e *Execution) bump(v Verdict) {
	if v > e.res.Verdict {
		e.res.Verdict = v
	}
}

func (e *Execution) end() {
	e.done = true
	e.res.Final = e.cur
	if e.expected > 0 && e.index < e.expected {
		e.res.Truncated = true
	}
}

// Observe records a complete list of signals, all alive, and returns the
// result.
func (o *Observer) Observe(signals []Signal) Result {
	exec := o.Begin(len(signals))
	for _, sig := range signals {
		if _, more := exec.Record(sig, true); !more {
			break
		}
	}
	return exec.Finish()
}
