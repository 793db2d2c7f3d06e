package hnsw

import (
	"math/rand"
	"testing"

	"github.com/oasysai/oasysdb/pkg/core/types"
	"github.com/oasysai/oasysdb/pkg/core/vector"
)

func TestMinHeapOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	h := make(minHeap, 0, 64)
	for i := 0; i < 64; i++ {
		h.push(types.Candidate{ID: vector.ID(i), Distance: rng.Float32()})
	}

	prev := h.pop()
	for len(h) > 0 {
		next := h.pop()
		if candidateLess(next, prev) {
			t.Fatalf("min-heap out of order: %v after %v", next, prev)
		}
		prev = next
	}
}

func TestMaxHeapOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	h := make(maxHeap, 0, 64)
	for i := 0; i < 64; i++ {
		h.push(types.Candidate{ID: vector.ID(i), Distance: rng.Float32()})
	}

	prev := h.pop()
	for len(h) > 0 {
		next := h.pop()
		if candidateLess(prev, next) {
			t.Fatalf("max-heap out of order: %v after %v", next, prev)
		}
		prev = next
	}
}

func TestMaxHeapPeekIsWorst(t *testing.T) {
	h := make(maxHeap, 0, 8)
	h.push(types.Candidate{ID: 1, Distance: 0.5})
	h.push(types.Candidate{ID: 2, Distance: 0.1})
	h.push(types.Candidate{ID: 3, Distance: 0.9})

	if h.peek().ID != 3 {
		t.Fatalf("peek = %v, want the farthest candidate", h.peek())
	}
}

func TestCandidateLessTieBreaksOnID(t *testing.T) {
	a := types.Candidate{ID: 1, Distance: 0.5}
	b := types.Candidate{ID: 2, Distance: 0.5}

	if !candidateLess(a, b) || candidateLess(b, a) {
		t.Fatal("equal distances must order by smaller ID")
	}
}

func TestBitSet(t *testing.T) {
	bs := newBitSet(64)

	for _, n := range []uint32{0, 1, 63, 64, 1000} {
		if bs.has(n) {
			t.Fatalf("fresh set has %d", n)
		}
		bs.add(n)
		if !bs.has(n) {
			t.Fatalf("set lost %d", n)
		}
	}

	bs.reset()
	for _, n := range []uint32{0, 63, 1000} {
		if bs.has(n) {
			t.Fatalf("reset kept %d", n)
		}
	}
}
