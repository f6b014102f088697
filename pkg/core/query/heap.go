package query

import (
	"container/heap"

	"github.com/sanonone/streamrpq/pkg/core/types"
)

// candidate is a pending expansion (vb, sb) -> (vd, sd) over an edge with
// timestamp edgeTime.
type candidate struct {
	vb       types.Vertex
	sb       types.State
	vd       types.Vertex
	sd       types.State
	edgeTime int64
	seq      uint64
}

// candidateHeap is a max-heap on edgeTime: the freshest evidence is expanded
// first. Ties are broken by insertion order.
type candidateHeap []candidate

func (h candidateHeap) Len() int { return len(h) }

func (h candidateHeap) Less(i, j int) bool {
	if h[i].edgeTime != h[j].edgeTime {
		return h[i].edgeTime > h[j].edgeTime
	}
	return h[i].seq < h[j].seq
}

func (h candidateHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *candidateHeap) Push(x any) { *h = append(*h, x.(candidate)) }

func (h *candidateHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[0 : n-1]
	return x
}

// newCandidateHeap creates an empty heap with the given initial capacity.
func newCandidateHeap(capacity int) *candidateHeap {
	h := make(candidateHeap, 0, capacity)
	heap.Init(&h)
	return &h
}
