// Package hnsw implements the incremental Hierarchical Navigable Small World
// index: a layered proximity graph over the collection's vectors supporting
// approximate nearest-neighbor search, single-record insertion and deletion,
// vector re-linking and parallel bulk construction.
//
// Nodes are addressed by their dense 32-bit record IDs and live in a slice
// arena; the graph holds no pointers between nodes, so mutation never
// invalidates references (the cyclic structure is expressed through IDs
// only).
package hnsw

import (
	"sync"

	"github.com/oasysai/oasysdb/pkg/core/vector"
)

// Node is a single graph node. It participates in layers 0 through Level,
// with a bounded neighbor list per layer; layer 0 is the densest.
type Node struct {
	// ID is the record ID this node mirrors.
	ID vector.ID
	// Level is the node's top layer.
	Level int
	// Vector is the stored embedding. Shared with the record store;
	// treated as immutable while the node is linked.
	Vector vector.Vector
	// Connections[l] holds the neighbor IDs at layer l, capped at the
	// per-layer maximum out-degree.
	Connections [][]vector.ID

	// mu guards Connections during the commit phase of a parallel bulk
	// build. Single-writer operations do not take it.
	mu sync.Mutex
}

// newNode allocates a node with empty neighbor lists for layers 0..level.
func newNode(id vector.ID, vec vector.Vector, level int, m, m0 int) *Node {
	conns := make([][]vector.ID, level+1)
	for l := range conns {
		max := m
		if l == 0 {
			max = m0
		}
		conns[l] = make([]vector.ID, 0, max)
	}
	return &Node{ID: id, Level: level, Vector: vec, Connections: conns}
}
