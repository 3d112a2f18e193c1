package stategraph

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/emicklei/dot"
	"gopkg.in/yaml.v3"
)

// SnapshotNode is the persisted form of a node.
type SnapshotNode struct {
	ID        NodeID `json:"id" yaml:"id"`
	Signature string `json:"signature" yaml:"signature"`
	Label     string `json:"label,omitempty" yaml:"label,omitempty"`
}

// SnapshotEdge is the persisted form of an edge.
type SnapshotEdge struct {
	Source NodeID `json:"source" yaml:"source"`
	Dest   NodeID `json:"dest" yaml:"dest"`
	Index  int    `json:"index" yaml:"index"`
	Hits   uint64 `json:"hits" yaml:"hits"`
}

// Snapshot is a point-in-time copy of the graph for inspection. The start
// node is not listed; edges reference it as id 0.
type Snapshot struct {
	Nodes []SnapshotNode `json:"nodes" yaml:"nodes"`
	Edges []SnapshotEdge `json:"edges" yaml:"edges"`
}

// Snapshot copies the graph under the lock.
func (g *Graph) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	s := Snapshot{
		Nodes: make([]SnapshotNode, 0, len(g.nodes)-1),
		Edges: make([]SnapshotEdge, 0, len(g.edges)),
	}
	for _, n := range g.nodes[1:] {
		s.Nodes = append(s.Nodes, SnapshotNode{ID: n.ID, Signature: n.Signature.String(), Label: n.Label})
	}
	for _, e := range g.edges {
		s.Edges = append(s.Edges, SnapshotEdge{Source: e.From, Dest: e.To, Index: e.Index, Hits: e.Hits})
	}
	return s
}

// WriteJSON writes the snapshot as indented JSON.
func (s Snapshot) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("failed to encode graph snapshot: %w", err)
	}
	return nil
}

// WriteYAML writes the snapshot as YAML.
func (s Snapshot) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("failed to encode graph snapshot: %w", err)
	}
	return enc.Close()
}

// WriteDOT renders the snapshot as a Graphviz digraph. Edge labels read
// "index/hits".
func (s Snapshot) WriteDOT(w io.Writer) error {
	g := dot.NewGraph(dot.Directed)
	g.Attr("rankdir", "LR")

	nodes := make(map[NodeID]dot.Node, len(s.Nodes)+1)
	nodes[StartNode] = g.Node("n0").Attr("label", "start").Attr("shape", "doublecircle")
	for _, n := range s.Nodes {
		label := n.Label
		if label == "" {
			label = n.Signature
		}
		nodes[n.ID] = g.Node("n" + strconv.FormatUint(uint64(n.ID), 10)).Attr("label", label)
	}
	for _, e := range s.Edges {
		from, ok := nodes[e.Source]
		if !ok {
			return fmt.Errorf("edge references unknown node %d", e.Source)
		}
		to, ok := nodes[e.Dest]
		if !ok {
			return fmt.Errorf("edge references unknown node %d", e.Dest)
		}
		g.Edge(from, to, fmt.Sprintf("%d/%d", e.Index, e.Hits))
	}

	if _, err := io.WriteString(w, g.String()); err != nil {
		return fmt.Errorf("failed to write dot graph: %w", err)
	}
	return nil
}
