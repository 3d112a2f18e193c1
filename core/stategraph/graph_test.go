package stategraph

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// walk replays signals from the start node the way one execution does.
func walk(g *Graph, sigs ...Signature) (newNodes, newEdges int) {
	cur := StartNode
	for i, sig := range sigs {
		next, nn, ne := g.Transition(cur, sig, i, "")
		if nn {
			newNodes++
		}
		if ne {
			newEdges++
		}
		cur = next
	}
	return newNodes, newEdges
}

func TestGraphABAScenario(t *testing.T) {
	g := New()
	a, b := SignatureOf([]byte("A")), SignatureOf([]byte("B"))

	nn, ne := walk(g, a, b, a)
	assert.Equal(t, 2, nn)
	assert.Equal(t, 3, ne)

	idA, ok := g.Lookup(a)
	require.True(t, ok)
	idB, ok := g.Lookup(b)
	require.True(t, ok)
	assert.Equal(t, 3, g.Stats().Nodes, "start, A and B")

	want := []EdgeKey{
		{From: StartNode, To: idA, Index: 0},
		{From: idA, To: idB, Index: 1},
		{From: idB, To: idA, Index: 2},
	}
	for _, k := range want {
		e, ok := g.Edge(k.From, k.To, k.Index)
		require.True(t, ok, "edge %+v", k)
		assert.Equal(t, uint64(1), e.Hits)
	}

	nn, ne = walk(g, a, b, a)
	assert.Zero(t, nn)
	assert.Zero(t, ne)
	for _, k := range want {
		e, _ := g.Edge(k.From, k.To, k.Index)
		assert.Equal(t, uint64(2), e.Hits)
	}
	assert.Equal(t, 3, g.Stats().Edges)
}

func TestGraphRecordsSelfLoops(t *testing.T) {
	g := New()
	a := SignatureOf([]byte("A"))
	walk(g, a, a)

	id, _ := g.Lookup(a)
	e, ok := g.Edge(id, id, 1)
	require.True(t, ok)
	assert.Equal(t, uint64(1), e.Hits)
}

func TestGraphIndexDistinguishesEdges(t *testing.T) {
	g := New()
	a, b := SignatureOf([]byte("A")), SignatureOf([]byte("B"))
	walk(g, a, b)
	_, ne := walk(g, a, a, b)
	assert.Equal(t, 2, ne, "A->A at 1 and A->B at 2 are new")
}

func TestGraphIndexBucketLimit(t *testing.T) {
	g := New(WithIndexBucketLimit(2))
	a := SignatureOf([]byte("A"))
	walk(g, a, a, a, a, a)

	assert.Equal(t, 2, g.Bucket(7))
	assert.Equal(t, 1, g.Bucket(1))
	id, _ := g.Lookup(a)
	e, ok := g.Edge(id, id, 9)
	require.True(t, ok)
	assert.Equal(t, uint64(3), e.Hits, "indices 2, 3 and 4 share one bucket")
}

func TestGraphMonotonic(t *testing.T) {
	g := New()
	prev := g.Stats()
	for i := 0; i < 50; i++ {
		walk(g, SignatureOf([]byte{byte(i % 7)}), SignatureOf([]byte{byte(i % 3)}))
		cur := g.Stats()
		require.GreaterOrEqual(t, cur.Nodes, prev.Nodes)
		require.GreaterOrEqual(t, cur.Edges, prev.Edges)
		require.Greater(t, cur.Transitions, prev.Transitions)
		prev = cur
	}
}

func TestGraphConcurrentTransitions(t *testing.T) {
	g := New()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				walk(g, SignatureOf([]byte{byte(i % 5)}), SignatureOf([]byte{byte(i % 4)}))
			}
		}()
	}
	wg.Wait()

	stats := g.Stats()
	assert.Equal(t, 1+5, stats.Nodes)
	assert.Equal(t, uint64(8*200*2), stats.Transitions)

	var hits uint64
	for _, e := range g.Edges() {
		hits += e.Hits
	}
	assert.Equal(t, stats.Transitions, hits)
}

func TestGraphGenerationStampsNodes(t *testing.T) {
	g := New()
	walk(g, SignatureOf([]byte("A")))
	assert.Equal(t, uint64(1), g.NextGeneration())
	walk(g, SignatureOf([]byte("B")))

	nodes := g.Nodes()
	require.Len(t, nodes, 3)
	assert.Equal(t, uint64(0), nodes[1].FirstSeen)
	assert.Equal(t, uint64(1), nodes[2].FirstSeen)
}

func TestSignatureOfUintDiffersFromBytes(t *testing.T) {
	assert.Equal(t, SignatureOfUint(220), SignatureOfUint(220))
	assert.NotEqual(t, SignatureOfUint(220), SignatureOfUint(230))
	assert.NotEqual(t, SignatureOfUint(220), SignatureOf([]byte("220")))
}

func TestSnapshotFormats(t *testing.T) {
	g := New()
	cur := StartNode
	for i, s := range []string{"220", "331", "230"} {
		cur, _, _ = g.Transition(cur, SignatureOf([]byte(s)), i, s)
	}
	snap := g.Snapshot()
	require.Len(t, snap.Nodes, 3)
	require.Len(t, snap.Edges, 3)
	assert.Equal(t, NodeID(0), snap.Edges[0].Source)

	var js bytes.Buffer
	require.NoError(t, snap.WriteJSON(&js))
	var fromJSON Snapshot
	require.NoError(t, json.Unmarshal(js.Bytes(), &fromJSON))
	assert.Equal(t, snap, fromJSON)
	assert.Contains(t, js.String(), `"source": 0`)

	var ys bytes.Buffer
	require.NoError(t, snap.WriteYAML(&ys))
	var fromYAML Snapshot
	require.NoError(t, yaml.Unmarshal(ys.Bytes(), &fromYAML))
	assert.Equal(t, snap, fromYAML)

	var ds bytes.Buffer
	require.NoError(t, snap.WriteDOT(&ds))
	out := ds.String()
	assert.Contains(t, out, "digraph")
	assert.Contains(t, out, "331")
	for _, e := range snap.Edges {
		assert.Contains(t, out, fmt.Sprintf("%d/%d", e.Index, e.Hits))
	}
}

func TestSnapshotDOTRejectsDanglingEdge(t *testing.T) {
	snap := Snapshot{Edges: []SnapshotEdge{{Source: 0, Dest: 4}}}
	assert.Error(t, snap.WriteDOT(&bytes.Buffer{}))
}
