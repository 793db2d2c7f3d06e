package hnsw

import (
	"runtime"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/oasysai/oasysdb/pkg/core/types"
	"github.com/oasysai/oasysdb/pkg/core/vector"
)

// BatchEntry is one record of a bulk build: an already-allocated ID and its
// stored vector.
type BatchEntry struct {
	ID     vector.ID
	Vector vector.Vector
}

// linkRequest carries one computed neighbor list from the compute phase to
// the commit phase of a parallel bulk build.
type linkRequest struct {
	nodeID    vector.ID
	level     int
	neighbors []vector.ID
}

// batchChunk bounds how many nodes are computed against the same frozen
// graph. Smaller chunks keep the graph the workers search close to the
// final one; larger chunks amortize the fan-out.
const batchChunk = 256

// AddBatch links a batch of records into the graph. Large batches fan out
// across workers: each chunk's neighbor lists are computed in parallel
// against a frozen graph, then committed with every touched neighbor list
// rebuilt under its node's lock. Callers needing deterministic graphs use
// AddBatchSequential instead.
func (ix *Index) AddBatch(entries []BatchEntry) {
	if len(entries) < batchChunk || runtime.NumCPU() == 1 {
		ix.AddBatchSequential(entries)
		return
	}

	// Seed the graph sequentially until the candidate search has enough
	// nodes to be meaningful.
	live := ix.NodeCount()
	i := 0
	for ; i < len(entries) && live < ix.efConstruction; i++ {
		ix.Insert(entries[i].ID, entries[i].Vector)
		live++
	}

	for i < len(entries) {
		end := i + batchChunk
		if end > len(entries) {
			end = len(entries)
		}
		ix.addChunk(entries[i:end])
		i = end
	}
}

// AddBatchSequential inserts the batch one record at a time, preserving the
// deterministic correspondence between input order and graph shape.
func (ix *Index) AddBatchSequential(entries []BatchEntry) {
	for _, e := range entries {
		ix.Insert(e.ID, e.Vector)
	}
}

func (ix *Index) addChunk(chunk []BatchEntry) {
	// Allocate nodes with levels drawn up front; the RNG is not shared
	// with the workers.
	fresh := make([]*Node, len(chunk))
	for i, e := range chunk {
		node := newNode(e.ID, e.Vector, ix.randomLevel(), M, M0)
		ix.grow(e.ID)
		ix.nodes[e.ID] = node
		fresh[i] = node
	}

	// Compute phase: read-only against the frozen graph. The fresh nodes
	// are in the arena but unreachable until commit.
	requests := make(chan linkRequest, len(chunk))
	reqs := make([]linkRequest, 0, len(chunk)*2)
	collected := make(chan struct{})
	go func() {
		for req := range requests {
			reqs = append(reqs, req)
		}
		close(collected)
	}()

	workers := runtime.NumCPU()
	if workers > len(fresh) {
		workers = len(fresh)
	}
	per := (len(fresh) + workers - 1) / workers

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start := w * per
		end := start + per
		if end > len(fresh) {
			end = len(fresh)
		}
		if start >= end {
			break
		}
		wg.Add(1)
		go func(part []*Node) {
			defer wg.Done()
			for _, node := range part {
				ix.computeLinks(node, requests)
			}
		}(fresh[start:end])
	}
	wg.Wait()
	close(requests)
	<-collected

	ix.commitLinks(reqs, fresh)
}

// computeLinks runs the insertion search for one node without touching the
// graph, emitting the selected neighbors per layer.
func (ix *Index) computeLinks(node *Node, out chan<- linkRequest) {
	entryNode := ix.nodes[ix.entrypoint]
	curr := types.Candidate{ID: entryNode.ID, Distance: ix.distFn(node.Vector, entryNode.Vector)}

	for l := entryNode.Level; l > node.Level; l-- {
		curr = ix.greedyLayer(node.Vector, curr, l)
	}

	for l := minInt(node.Level, entryNode.Level); l >= 0; l-- {
		found := ix.searchLayer(node.Vector, curr, ix.efConstruction, l)
		selected := ix.selectNeighbors(found, ix.maxConns(l), node.ID)

		ids := make([]vector.ID, len(selected))
		for i, c := range selected {
			ids[i] = c.ID
		}
		out <- linkRequest{nodeID: node.ID, level: l, neighbors: ids}

		if len(found) > 0 {
			curr = found[0]
		}
	}
}

// commitLinks merges the computed lists with their reverse direction and
// rebuilds every touched neighbor list, pruning back to the per-layer caps.
// Each job owns exactly one node; the node lock still guards the final
// write against concurrent readers of a shared build.
func (ix *Index) commitLinks(reqs []linkRequest, fresh []*Node) {
	cand := make(map[vector.ID]map[int][]vector.ID, len(fresh)*2)
	add := func(id vector.ID, level int, neighbors ...vector.ID) {
		levels, ok := cand[id]
		if !ok {
			levels = make(map[int][]vector.ID)
			cand[id] = levels
		}
		levels[level] = append(levels[level], neighbors...)
	}
	for _, req := range reqs {
		add(req.nodeID, req.level, req.neighbors...)
		for _, nb := range req.neighbors {
			add(nb, req.level, req.nodeID)
		}
	}

	jobs := make([]vector.ID, 0, len(cand))
	for id := range cand {
		jobs = append(jobs, id)
	}

	var next uint64
	var wg sync.WaitGroup
	for w := 0; w < runtime.NumCPU(); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := atomic.AddUint64(&next, 1) - 1
				if i >= uint64(len(jobs)) {
					return
				}
				ix.rebuildLists(jobs[i], cand[jobs[i]])
			}
		}()
	}
	wg.Wait()

	// Promote the entry point if a fresh node tops the graph.
	for _, node := range fresh {
		if node.Level > ix.maxLevel {
			ix.maxLevel = node.Level
			ix.entrypoint = node.ID
		}
	}
}

// rebuildLists merges a node's existing neighbors with the batch candidates
// at each touched layer and restores the out-degree caps.
func (ix *Index) rebuildLists(id vector.ID, levels map[int][]vector.ID) {
	node := ix.Node(id)
	if node == nil {
		return
	}

	for level, candidates := range levels {
		if level > node.Level {
			continue
		}

		seen := make(map[vector.ID]struct{}, len(candidates)+len(node.Connections[level]))
		merged := make([]vector.ID, 0, len(candidates)+len(node.Connections[level]))
		for _, nbID := range node.Connections[level] {
			if _, ok := seen[nbID]; ok {
				continue
			}
			seen[nbID] = struct{}{}
			merged = append(merged, nbID)
		}
		for _, nbID := range candidates {
			if nbID == id {
				continue
			}
			if _, ok := seen[nbID]; ok {
				continue
			}
			seen[nbID] = struct{}{}
			merged = append(merged, nbID)
		}

		max := ix.maxConns(level)
		if len(merged) > max {
			merged = ix.pruneNeighbors(node, merged, max)
		} else {
			sort.Slice(merged, func(i, j int) bool { return merged[i] < merged[j] })
		}

		node.mu.Lock()
		node.Connections[level] = merged
		node.mu.Unlock()
	}
}
