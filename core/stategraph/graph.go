// Package stategraph keeps the inferred state machine of a target: one node
// per distinct state signature and one edge per observed transition at a
// given packet index.
//
// The graph is append-only for the lifetime of a campaign. Nodes and edges
// live in slices and are addressed by small integer ids; lookups go through
// a signature table and an edge-key table.
package stategraph

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Signature identifies an inferred target state. Equal signals always hash
// to the same signature.
type Signature uint64

func (s Signature) String() string {
	return fmt.Sprintf("%016x", uint64(s))
}

// SignatureOf hashes canonical signal bytes.
func SignatureOf(canonical []byte) Signature {
	return Signature(xxhash.Sum64(canonical))
}

// SignatureOfUint hashes an integer signal such as a status code.
func SignatureOfUint(v uint64) Signature {
	var buf [9]byte
	buf[0] = 'i'
	binary.BigEndian.PutUint64(buf[1:], v)
	return SignatureOf(buf[:])
}

// NodeID addresses a node inside one Graph.
type NodeID uint32

// StartNode is the implicit node every execution starts from. It has no
// signature and is never returned by a lookup.
const StartNode NodeID = 0

// Node is one inferred state.
type Node struct {
	ID        NodeID
	Signature Signature
	// FirstSeen is the graph generation in which the node was created.
	FirstSeen uint64
	// Label is a short human-readable rendering of the first signal that
	// produced this node. It is informational only.
	Label string
}

// EdgeKey identifies an edge: a transition between two nodes at a packet
// index bucket.
type EdgeKey struct {
	From  NodeID
	To    NodeID
	Index int
}

// Edge is one observed transition.
type Edge struct {
	EdgeKey
	Hits uint64
}

// Stats summarizes the graph size.
type Stats struct {
	Nodes       int
	Edges       int
	Transitions uint64
	Generation  uint64
}

// Option configures a Graph.
type Option func(*Graph)

// WithIndexBucketLimit folds every packet index >= limit into the bucket
// limit. Without it each index keeps its own edge. limit <= 0 disables
// bucketing.
func WithIndexBucketLimit(limit int) Option {
	return func(g *Graph) {
		if limit > 0 {
			g.bucketLimit = limit
		}
	}
}

// Graph is the state graph. It is safe for concurrent use; the lock is held
// only for the duration of one Transition or one read.
type Graph struct {
	mu sync.Mutex

	nodes []Node
	edges []Edge
	bySig map[Signature]NodeID
	byKey map[EdgeKey]int

	generation  uint64
	transitions uint64
	bucketLimit int
}

// New creates a graph holding only the start node.
func New(opts ...Option) *Graph {
	g := &Graph{
		nodes: []Node{{ID: StartNode, Label: "start"}},
		bySig: make(map[Signature]NodeID),
		byKey: make(map[EdgeKey]int),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Bucket maps a packet index to the index stored on edges.
func (g *Graph) Bucket(index int) int {
	if index < 0 {
		return 0
	}
	if g.bucketLimit > 0 && index > g.bucketLimit {
		return g.bucketLimit
	}
	return index
}

// Transition records that, from node from, packet index produced a state
// with signature sig. It returns the node reached and whether the node or
// the edge were created by this call.
func (g *Graph) Transition(from NodeID, sig Signature, index int, label string) (to NodeID, newNode, newEdge bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if int(from) >= len(g.nodes) {
		from = StartNode
	}

	to, ok := g.bySig[sig]
	if !ok {
		to = NodeID(len(g.nodes))
		g.nodes = append(g.nodes, Node{
			ID:        to,
			Signature: sig,
			FirstSeen: g.generation,
			Label:     label,
		})
		g.bySig[sig] = to
		newNode = true
	}

	key := EdgeKey{From: from, To: to, Index: g.Bucket(index)}
	slot, ok := g.byKey[key]
	if !ok {
		slot = len(g.edges)
		g.edges = append(g.edges, Edge{EdgeKey: key})
		g.byKey[key] = slot
		newEdge = true
	}
	g.edges[slot].Hits++
	g.transitions++
	return to, newNode, newEdge
}

// Lookup returns the node for a signature.
func (g *Graph) Lookup(sig Signature) (NodeID, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id, ok := g.bySig[sig]
	return id, ok
}

// Node returns a copy of node id.
func (g *Graph) Node(id NodeID) (Node, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if int(id) >= len(g.nodes) {
		return Node{}, false
	}
	return g.nodes[id], true
}

// Edge returns a copy of the edge with the given key. The index is bucketed
// the same way Transition buckets it.
func (g *Graph) Edge(from, to NodeID, index int) (Edge, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	slot, ok := g.byKey[EdgeKey{From: from, To: to, Index: g.Bucket(index)}]
	if !ok {
		return Edge{}, false
	}
	return g.edges[slot], true
}

// NextGeneration advances the generation stamped on new nodes and returns
// the new value.
func (g *Graph) NextGeneration() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.generation++
	return g.generation
}

// Stats returns the current graph size. Nodes counts the start node.
func (g *Graph) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Stats{
		Nodes:       len(g.nodes),
		Edges:       len(g.edges),
		Transitions: g.transitions,
		Generation:  g.generation,
	}
}

// Nodes returns a copy of every node, in id order.
func (g *Graph) Nodes() []Node {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Node(nil), g.nodes...)
}

// Edges returns a copy of every edge, in creation order.
func (g *Graph) Edges() []Edge {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Edge(nil), g.edges...)
}
