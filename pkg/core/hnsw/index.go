package hnsw

import (
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/oasysai/oasysdb/pkg/core/distance"
	"github.com/oasysai/oasysdb/pkg/core/oaserr"
	"github.com/oasysai/oasysdb/pkg/core/types"
	"github.com/oasysai/oasysdb/pkg/core/vector"
)

const (
	// M is the target out-degree per node on the upper layers.
	M = 32
	// M0 is the target out-degree on layer 0.
	M0 = 2 * M
)

// Index is the layered proximity graph. It is not self-synchronizing: the
// collection façade serializes writers and allows shared readers, matching
// the single-writer contract of the public API.
type Index struct {
	efConstruction int
	efSearch       int
	ml             float64
	metric         distance.Metric
	distFn         distance.Func

	// rng drives level assignment. Collection-scoped; seedable for
	// deterministic builds.
	rng *rand.Rand

	// entrypoint is the root of every descent: the live node with the
	// highest top level, or the invalid sentinel when the graph is empty.
	entrypoint vector.ID
	maxLevel   int

	// nodes is a dense arena indexed by record ID. A nil slot is a
	// tombstoned or never-allocated ID.
	nodes []*Node

	visitedPool sync.Pool
}

// New creates an empty index. A zero seed selects a time-based seed; any
// other value makes level assignment (and therefore sequential builds)
// reproducible.
func New(efConstruction, efSearch int, ml float64, metric distance.Metric, seed uint64) (*Index, error) {
	distFn, err := distance.Get(metric)
	if err != nil {
		return nil, err
	}
	if efConstruction < 1 {
		return nil, oaserr.New(oaserr.KindInvalidConfig, "ef_construction must be at least 1, got %d", efConstruction)
	}
	if efSearch < 1 {
		return nil, oaserr.New(oaserr.KindInvalidConfig, "ef_search must be at least 1, got %d", efSearch)
	}
	if ml <= 0 || math.IsNaN(ml) {
		return nil, oaserr.New(oaserr.KindInvalidConfig, "ml must be positive, got %v", ml)
	}

	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	ix := &Index{
		efConstruction: efConstruction,
		efSearch:       efSearch,
		ml:             ml,
		metric:         metric,
		distFn:         distFn,
		rng:            rand.New(rand.NewSource(int64(seed))),
		entrypoint:     vector.Invalid,
		maxLevel:       -1,
		nodes:          make([]*Node, 0, 1024),
	}
	ix.visitedPool = sync.Pool{
		New: func() any { return newBitSet(1024) },
	}
	return ix, nil
}

// maxConns returns the out-degree cap for a layer.
func (ix *Index) maxConns(level int) int {
	if level == 0 {
		return M0
	}
	return M
}

// randomLevel draws a top level from the geometric-like distribution
// floor(-ln(u) * ml), u uniform in (0, 1].
func (ix *Index) randomLevel() int {
	u := 1 - ix.rng.Float64()
	return int(-math.Log(u) * ix.ml)
}

// grow extends the arena so that id is addressable.
func (ix *Index) grow(id vector.ID) {
	need := int(id) + 1
	if len(ix.nodes) >= need {
		return
	}
	if cap(ix.nodes) >= need {
		ix.nodes = ix.nodes[:need]
		return
	}
	newCap := cap(ix.nodes)
	if newCap == 0 {
		newCap = 1024
	}
	for newCap < need {
		newCap *= 2
	}
	next := make([]*Node, need, newCap)
	copy(next, ix.nodes)
	ix.nodes = next
}

// Node returns the live node for an ID, or nil.
func (ix *Index) Node(id vector.ID) *Node {
	if !id.IsValid() || int(id) >= len(ix.nodes) {
		return nil
	}
	return ix.nodes[id]
}

// EntryPoint returns the current entry point ID (invalid when empty).
func (ix *Index) EntryPoint() vector.ID { return ix.entrypoint }

// MaxLevel returns the highest top level present, or -1 when empty.
func (ix *Index) MaxLevel() int { return ix.maxLevel }

// Metric returns the configured distance metric.
func (ix *Index) Metric() distance.Metric { return ix.metric }

// NodeCount returns the number of live nodes.
func (ix *Index) NodeCount() int {
	count := 0
	for _, n := range ix.nodes {
		if n != nil {
			count++
		}
	}
	return count
}

// IterNodes calls fn for every live node in ascending ID order until fn
// returns false.
func (ix *Index) IterNodes(fn func(n *Node) bool) {
	for _, n := range ix.nodes {
		if n == nil {
			continue
		}
		if !fn(n) {
			return
		}
	}
}

// Insert links a new record into the graph at a freshly drawn level.
func (ix *Index) Insert(id vector.ID, vec vector.Vector) {
	node := newNode(id, vec, ix.randomLevel(), M, M0)
	ix.addNode(node)
}

func (ix *Index) addNode(node *Node) {
	ix.grow(node.ID)
	ix.nodes[node.ID] = node

	if !ix.entrypoint.IsValid() {
		ix.entrypoint = node.ID
		ix.maxLevel = node.Level
		return
	}
	ix.link(node)
}

// link wires node into the graph: greedy descent through the layers above
// its level, then per-layer candidate search, heuristic selection and
// back-linking. The entry point is promoted if the node tops the graph.
func (ix *Index) link(node *Node) {
	entry := ix.entrypoint
	if entry == node.ID {
		// Re-linking the entry point: descend from the best other node.
		alt, ok := ix.bestOther(node.ID)
		if !ok {
			return
		}
		entry = alt
	}

	entryNode := ix.nodes[entry]
	curr := types.Candidate{ID: entry, Distance: ix.distFn(node.Vector, entryNode.Vector)}

	top := entryNode.Level
	for l := top; l > node.Level; l-- {
		curr = ix.greedyLayer(node.Vector, curr, l)
	}

	for l := minInt(node.Level, top); l >= 0; l-- {
		found := ix.searchLayer(node.Vector, curr, ix.efConstruction, l)
		selected := ix.selectNeighbors(found, ix.maxConns(l), node.ID)

		conns := node.Connections[l][:0]
		for _, c := range selected {
			conns = append(conns, c.ID)
		}
		node.Connections[l] = conns

		for _, c := range selected {
			ix.backLink(ix.nodes[c.ID], node, l)
		}

		if len(found) > 0 {
			curr = found[0]
		}
	}

	if node.Level > ix.maxLevel {
		ix.maxLevel = node.Level
		ix.entrypoint = node.ID
	}
}

// greedyLayer walks a single layer toward q, repeatedly moving to a
// strictly better neighbor until none exists. Ties fall to the smaller ID,
// which keeps the walk finite and deterministic.
func (ix *Index) greedyLayer(q vector.Vector, entry types.Candidate, level int) types.Candidate {
	curr := entry
	for {
		node := ix.nodes[curr.ID]
		if node == nil || level > node.Level {
			return curr
		}
		next := curr
		for _, nbID := range node.Connections[level] {
			nb := ix.Node(nbID)
			if nb == nil {
				continue
			}
			c := types.Candidate{ID: nbID, Distance: ix.distFn(q, nb.Vector)}
			if candidateLess(c, next) {
				next = c
			}
		}
		if next.ID == curr.ID {
			return curr
		}
		curr = next
	}
}

// searchLayer runs the bounded candidate-set search: a beam of the ef
// closest known nodes, expanded from a min-heap frontier. Returns the beam
// sorted ascending by distance.
func (ix *Index) searchLayer(q vector.Vector, entry types.Candidate, ef, level int) []types.Candidate {
	visited := ix.visitedPool.Get().(*bitSet)
	defer func() {
		visited.reset()
		ix.visitedPool.Put(visited)
	}()
	visited.grow(uint32(len(ix.nodes)))

	frontier := make(minHeap, 0, ef)
	results := make(maxHeap, 0, ef+1)

	frontier.push(entry)
	results.push(entry)
	visited.add(uint32(entry.ID))

	for len(frontier) > 0 {
		curr := frontier.pop()

		// The closest unexpanded candidate is already worse than the
		// worst retained result: nothing on this path can improve.
		if len(results) >= ef && distance.Less(results.peek().Distance, curr.Distance) {
			break
		}

		node := ix.Node(curr.ID)
		if node == nil || level > node.Level {
			continue
		}

		for _, nbID := range node.Connections[level] {
			if visited.has(uint32(nbID)) {
				continue
			}
			visited.add(uint32(nbID))

			nb := ix.Node(nbID)
			if nb == nil {
				continue
			}

			d := ix.distFn(q, nb.Vector)
			if len(results) < ef || distance.Less(d, results.peek().Distance) {
				c := types.Candidate{ID: nbID, Distance: d}
				frontier.push(c)
				results.push(c)
				if len(results) > ef {
					results.pop()
				}
			}
		}
	}

	out := make([]types.Candidate, len(results))
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = results.pop()
	}
	return out
}

// selectNeighbors applies the diversification heuristic: walking the pool
// in ascending distance, a candidate is accepted iff it is closer to the
// target than to every already-accepted neighbor. Stops at m accepted or
// pool exhaustion. The pool must be sorted ascending (distance, then ID).
func (ix *Index) selectNeighbors(pool []types.Candidate, m int, skip vector.ID) []types.Candidate {
	selected := make([]types.Candidate, 0, minInt(m, len(pool)))
	for _, c := range pool {
		if len(selected) == m {
			break
		}
		if c.ID == skip {
			continue
		}
		cn := ix.Node(c.ID)
		if cn == nil {
			continue
		}
		accepted := true
		for _, r := range selected {
			if !distance.Less(c.Distance, ix.distFn(cn.Vector, ix.nodes[r.ID].Vector)) {
				accepted = false
				break
			}
		}
		if accepted {
			selected = append(selected, c)
		}
	}
	return selected
}

// backLink adds node to nb's list at the given layer, restoring the
// out-degree cap with the selection heuristic when it overflows.
func (ix *Index) backLink(nb *Node, node *Node, level int) {
	if nb == nil || level > nb.Level {
		return
	}
	conns := append(nb.Connections[level], node.ID)
	if max := ix.maxConns(level); len(conns) > max {
		conns = ix.pruneNeighbors(nb, conns, max)
	}
	nb.Connections[level] = conns
}

// pruneNeighbors re-runs the selection heuristic over an overfull neighbor
// list, backfilling with the closest discarded candidates so the node keeps
// its full out-degree.
func (ix *Index) pruneNeighbors(nb *Node, conns []vector.ID, max int) []vector.ID {
	pool := make([]types.Candidate, 0, len(conns))
	for _, id := range conns {
		other := ix.Node(id)
		if other == nil || id == nb.ID {
			continue
		}
		pool = append(pool, types.Candidate{ID: id, Distance: ix.distFn(nb.Vector, other.Vector)})
	}
	sort.Slice(pool, func(i, j int) bool { return candidateLess(pool[i], pool[j]) })

	selected := ix.selectNeighbors(pool, max, nb.ID)
	if len(selected) < max && len(pool) > len(selected) {
		chosen := make(map[vector.ID]struct{}, len(selected))
		for _, c := range selected {
			chosen[c.ID] = struct{}{}
		}
		for _, c := range pool {
			if len(selected) == max {
				break
			}
			if _, ok := chosen[c.ID]; ok {
				continue
			}
			selected = append(selected, c)
		}
	}

	out := make([]vector.ID, len(selected))
	for i, c := range selected {
		out[i] = c.ID
	}
	return out
}

// Delete unlinks a node from every layer and tombstones its slot. The
// departed node's former neighbors are not re-linked; callers may rebuild
// if recall degrades after massed deletions.
func (ix *Index) Delete(id vector.ID) error {
	if ix.Node(id) == nil {
		return oaserr.RecordNotFound(uint32(id))
	}
	ix.unlink(id)
	ix.nodes[id] = nil
	if ix.entrypoint == id {
		ix.reelectEntrypoint()
	}
	return nil
}

// unlink scrubs id from every live node's neighbor lists. Pruning erodes
// link symmetry over time, so the sweep covers the whole arena rather than
// trusting the departing node's own lists.
func (ix *Index) unlink(id vector.ID) {
	for _, n := range ix.nodes {
		if n == nil || n.ID == id {
			continue
		}
		for l, conns := range n.Connections {
			out := conns[:0]
			for _, nbID := range conns {
				if nbID != id {
					out = append(out, nbID)
				}
			}
			n.Connections[l] = out
		}
	}
}

// reelectEntrypoint scans for the live node with the highest top level,
// smallest ID winning ties. Leaves the invalid sentinel when empty.
func (ix *Index) reelectEntrypoint() {
	ix.entrypoint = vector.Invalid
	ix.maxLevel = -1
	for _, n := range ix.nodes {
		if n == nil {
			continue
		}
		if n.Level > ix.maxLevel {
			ix.maxLevel = n.Level
			ix.entrypoint = n.ID
		}
	}
}

// bestOther returns the live node with the highest top level excluding id,
// smallest ID winning ties.
func (ix *Index) bestOther(id vector.ID) (vector.ID, bool) {
	best := vector.Invalid
	bestLevel := -1
	for _, n := range ix.nodes {
		if n == nil || n.ID == id {
			continue
		}
		if n.Level > bestLevel {
			bestLevel = n.Level
			best = n.ID
		}
	}
	return best, best.IsValid()
}

// Relink replaces a node's vector and re-wires it as if newly inserted,
// retaining its existing level. Used when an update changes the vector.
func (ix *Index) Relink(id vector.ID, vec vector.Vector) error {
	node := ix.Node(id)
	if node == nil {
		return oaserr.RecordNotFound(uint32(id))
	}

	ix.unlink(id)
	node.Vector = vec
	for l := range node.Connections {
		node.Connections[l] = node.Connections[l][:0]
	}
	ix.link(node)
	return nil
}

// Search returns the k approximate nearest neighbors of q, ascending by
// distance, using a layer-0 beam of max(efSearch, k).
func (ix *Index) Search(q vector.Vector, k int) []types.Candidate {
	if !ix.entrypoint.IsValid() {
		return nil
	}

	ep := ix.nodes[ix.entrypoint]
	curr := types.Candidate{ID: ep.ID, Distance: ix.distFn(q, ep.Vector)}
	for l := ix.maxLevel; l >= 1; l-- {
		curr = ix.greedyLayer(q, curr, l)
	}

	ef := ix.efSearch
	if ef < k {
		ef = k
	}
	results := ix.searchLayer(q, curr, ef, 0)
	if len(results) > k {
		results = results[:k]
	}
	return results
}

// RestoreNode places a node rebuilt from a snapshot directly into the
// arena, bypassing linking. The caller re-checks graph invariants after
// the full restore.
func (ix *Index) RestoreNode(id vector.ID, vec vector.Vector, level int, conns [][]vector.ID) {
	ix.grow(id)
	ix.nodes[id] = &Node{ID: id, Level: level, Vector: vec, Connections: conns}
}

// SetEntryPoint restores the entry point and top level from a snapshot.
func (ix *Index) SetEntryPoint(id vector.ID, maxLevel int) {
	ix.entrypoint = id
	ix.maxLevel = maxLevel
}

// CheckInvariants verifies the structural invariants of the graph: every
// neighbor reference resolves to a live node, out-degrees respect the
// per-layer caps, neighbor layers exist on both ends, and the entry point
// is live at the graph's top level (or invalid iff the graph is empty).
func (ix *Index) CheckInvariants() error {
	maxLevel := -1
	count := 0
	for _, n := range ix.nodes {
		if n == nil {
			continue
		}
		count++
		if n.Level > maxLevel {
			maxLevel = n.Level
		}
		if len(n.Connections) != n.Level+1 {
			return oaserr.Corrupt("node %d has %d layers for level %d", n.ID, len(n.Connections), n.Level)
		}
		for l, conns := range n.Connections {
			if len(conns) > ix.maxConns(l) {
				return oaserr.Corrupt("node %d exceeds the out-degree cap at layer %d", n.ID, l)
			}
			for _, nbID := range conns {
				nb := ix.Node(nbID)
				if nb == nil {
					return oaserr.Corrupt("node %d references dead neighbor %d at layer %d", n.ID, nbID, l)
				}
				if nb.Level < l {
					return oaserr.Corrupt("node %d references neighbor %d above its level at layer %d", n.ID, nbID, l)
				}
			}
		}
	}

	if count == 0 {
		if ix.entrypoint.IsValid() {
			return oaserr.Corrupt("empty graph has entry point %d", ix.entrypoint)
		}
		return nil
	}
	ep := ix.Node(ix.entrypoint)
	if ep == nil {
		return oaserr.Corrupt("entry point %d is not a live node", ix.entrypoint)
	}
	if ep.Level != maxLevel || ix.maxLevel != maxLevel {
		return oaserr.Corrupt("entry point %d is not at the graph's top level", ix.entrypoint)
	}
	return nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
