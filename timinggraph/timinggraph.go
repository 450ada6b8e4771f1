// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

// Package timinggraph builds the per-access dependency graph of timing events
// described in §4.6. Unlike the event-recorder arena the engine was
// originally modeled on, nodes here are immutable once created and edges are
// appended through a single mutable Builder handle (§9's design note), which
// keeps the graph's shape easy to reason about and to export.
package timinggraph

import (
	"fmt"

	"github.com/emicklei/dot"

	"github.com/erigontech/llcache/internal/mathutil"
)

// Kind names a timing-event node type.
type Kind uint8

const (
	KindMissStart Kind = iota
	KindMissResponse
	KindMissWriteback
	KindHit
	KindHitWriteback
	KindDelay
)

func (k Kind) String() string {
	switch k {
	case KindMissStart:
		return "MissStart"
	case KindMissResponse:
		return "MissResponse"
	case KindMissWriteback:
		return "MissWriteback"
	case KindHit:
		return "Hit"
	case KindHitWriteback:
		return "HitWriteback"
	case KindDelay:
		return "Delay"
	default:
		return "Unknown"
	}
}

// Node is one immutable timing event.
type Node struct {
	ID         int
	Kind       Kind
	MinStart   uint64
	Duration   uint64
}

// DoneCycle is the cycle at which this node's effect is visible downstream.
func (n *Node) DoneCycle() uint64 {
	return n.MinStart + n.Duration
}

// Builder accumulates nodes and edges for one access. A fresh Builder is used
// per request; the caller retrieves the finished Graph via Graph().
type Builder struct {
	nodes []*Node
	edges map[int][]int
}

// NewBuilder starts an empty graph builder.
func NewBuilder() *Builder {
	return &Builder{edges: make(map[int][]int)}
}

func (b *Builder) newNode(kind Kind, minStart, duration uint64) *Node {
	n := &Node{ID: len(b.nodes), Kind: kind, MinStart: minStart, Duration: duration}
	b.nodes = append(b.nodes, n)
	return n
}

// MissStart, MissResponse, MissWriteback, Hit, HitWriteback, Delay construct
// the six node kinds from §4.6.
func (b *Builder) MissStart(reqCycle uint64, accLat uint64) *Node {
	return b.newNode(KindMissStart, reqCycle, accLat)
}
func (b *Builder) MissResponse(respCycle uint64) *Node {
	return b.newNode(KindMissResponse, respCycle, 0)
}
func (b *Builder) MissWriteback(minStart uint64, accLat uint64) *Node {
	return b.newNode(KindMissWriteback, minStart, 2*accLat)
}
func (b *Builder) Hit(reqCycle, respCycle uint64) *Node {
	return b.newNode(KindHit, reqCycle, respCycle-reqCycle)
}
func (b *Builder) HitWriteback(minStart uint64, accLat uint64) *Node {
	return b.newNode(KindHitWriteback, minStart, 3*accLat)
}
func (b *Builder) Delay(minStart, duration uint64) *Node {
	return b.newNode(KindDelay, minStart, duration)
}

// AddEdge records a dependency: end must not start before start is done.
func (b *Builder) AddEdge(start, end *Node) {
	b.edges[start.ID] = append(b.edges[start.ID], end.ID)
}

// Connect implements the `connect(start, end, startCycle, endCycle)`
// edge-construction pattern of §4.6: start and end are joined directly when
// the cycles coincide, or via a single Delay node absorbing the slack
// between them otherwise. This single-level model never recurses into a
// child access (there is no lower cache level to splice a sub-access's
// timing from), so unlike the original's `connect`, there is no record
// parameter to splice in — every gap Connect closes is slack between two
// nodes of the same access's own graph.
func (b *Builder) Connect(start, end *Node, startCycle, endCycle uint64) {
	if endCycle <= startCycle {
		b.AddEdge(start, end)
		return
	}
	d := b.Delay(startCycle, endCycle-startCycle)
	b.AddEdge(start, d)
	b.AddEdge(d, end)
}

// MaxDoneCycle is mathutil.Max applied to every writeback's completion
// cycle, used to compute a MissWriteback/HitWriteback node's min-start per
// §4.6's "converging on ... max(lastEvDone, tagEvDone)".
func MaxDoneCycle(cycles ...uint64) uint64 {
	var m uint64
	for _, c := range cycles {
		m = mathutil.Max(m, c)
	}
	return m
}

// Graph is the finished, read-only timing DAG for one access.
type Graph struct {
	Nodes []*Node
	Edges map[int][]int
}

// Graph finalizes the builder into an immutable Graph.
func (b *Builder) Graph() *Graph {
	return &Graph{Nodes: b.nodes, Edges: b.edges}
}

// DOT renders the graph as a Graphviz document, for debugging/visualization —
// a concrete use of the abstract "dependency graph of timing events".
func (g *Graph) DOT() string {
	gr := dot.NewGraph(dot.Directed)
	nodes := make([]dot.Node, len(g.Nodes))
	for _, n := range g.Nodes {
		label := fmt.Sprintf("%s\\nstart=%d dur=%d", n.Kind, n.MinStart, n.Duration)
		nodes[n.ID] = gr.Node(fmt.Sprintf("n%d", n.ID)).Label(label)
	}
	for from, tos := range g.Edges {
		for _, to := range tos {
			gr.Edge(nodes[from], nodes[to])
		}
	}
	return gr.String()
}
