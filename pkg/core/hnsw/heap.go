package hnsw

import (
	"container/heap"

	"github.com/oasysai/oasysdb/pkg/core/distance"
	"github.com/oasysai/oasysdb/pkg/core/types"
)

// The candidate-set search keeps two priority structures: a min-heap
// frontier of nodes still to expand and a max-heap of the best ef results
// seen so far, whose root is the worst of the best and therefore the next
// to evict. Both store candidates by value and order NaN distances last so
// a NaN can never win a ranking. Ties order by smaller ID to keep
// traversal deterministic.

func candidateLess(a, b types.Candidate) bool {
	if a.Distance != b.Distance {
		return distance.Less(a.Distance, b.Distance)
	}
	return a.ID < b.ID
}

// minHeap keeps the nearest candidate on top.
type minHeap []types.Candidate

func (h minHeap) Len() int           { return len(h) }
func (h minHeap) Less(i, j int) bool { return candidateLess(h[i], h[j]) }
func (h minHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *minHeap) Push(x any) { *h = append(*h, x.(types.Candidate)) }
func (h *minHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func (h *minHeap) push(c types.Candidate) { heap.Push(h, c) }
func (h *minHeap) pop() types.Candidate   { return heap.Pop(h).(types.Candidate) }

// maxHeap keeps the farthest candidate on top.
type maxHeap []types.Candidate

func (h maxHeap) Len() int           { return len(h) }
func (h maxHeap) Less(i, j int) bool { return candidateLess(h[j], h[i]) }
func (h maxHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *maxHeap) Push(x any) { *h = append(*h, x.(types.Candidate)) }
func (h *maxHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func (h *maxHeap) push(c types.Candidate) { heap.Push(h, c) }
func (h *maxHeap) pop() types.Candidate   { return heap.Pop(h).(types.Candidate) }

// peek returns the worst retained candidate without removing it.
func (h maxHeap) peek() types.Candidate { return h[0] }
