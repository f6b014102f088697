// Package query implements the per-edge incremental matching algorithm.
//
// For every accepted edge the Handler relaxes each spanning tree that contains
// the edge's source in a state with a transition on the edge's label. The
// relaxation is a label-correcting bottleneck search: candidates are expanded
// freshest first and only a strict improvement of a node's timestamp causes
// its successors to be re-examined, which bounds the work per edge.
package query

import (
	"container/heap"
	"fmt"

	"github.com/sanonone/streamrpq/pkg/core/automaton"
	"github.com/sanonone/streamrpq/pkg/core/forest"
	"github.com/sanonone/streamrpq/pkg/core/graph"
	"github.com/sanonone/streamrpq/pkg/core/sink"
	"github.com/sanonone/streamrpq/pkg/core/types"
)

// Result summarises the forest updates caused by one edge.
type Result struct {
	TreeCreated  bool
	TreesTouched int
	Attached     int
	Reparented   int
	Emitted      int
}

// Handler drives forest updates and reports completed matches to a sink.
type Handler struct {
	automaton *automaton.Automaton
	graph     *graph.Graph
	forest    *forest.Forest
	sink      *sink.Sink

	queue *candidateHeap
	seq   uint64
}

// NewHandler wires a handler over the shared pipeline structures.
func NewHandler(a *automaton.Automaton, g *graph.Graph, f *forest.Forest, s *sink.Sink) *Handler {
	return &Handler{
		automaton: a,
		graph:     g,
		forest:    f,
		sink:      s,
		queue:     newCandidateHeap(64),
	}
}

// Match processes an edge already inserted in the graph.
func (h *Handler) Match(e *graph.Edge) (Result, error) {
	var res Result
	initial := h.automaton.InitialState()

	if _, ok := h.automaton.NextState(initial, e.Label); ok && !h.forest.HasTree(e.Source) {
		if _, err := h.forest.AddTree(e.ID, e.Source, initial, e.Timestamp); err != nil {
			return res, err
		}
		res.TreeCreated = true
	}

	for _, pair := range h.automaton.StatePairsWithTransition(e.Label) {
		for _, t := range h.forest.FindTreesWithNode(e.Source, pair.From) {
			res.TreesTouched++
			seed := candidate{vb: e.Source, sb: pair.From, vd: e.Dest, sd: pair.To, edgeTime: e.Timestamp}
			if err := h.relax(t.RootVertex, seed, e.Timestamp, &res); err != nil {
				return res, fmt.Errorf("relax tree %d on %s: %w", t.RootVertex, edgeString(e), err)
			}
		}
	}
	return res, nil
}

func (h *Handler) relax(root types.Vertex, seed candidate, trigger int64, res *Result) error {
	h.push(seed)
	for h.queue.Len() > 0 {
		c := heap.Pop(h.queue).(candidate)

		parent := h.forest.FindNodeInTree(root, c.vb, c.sb)
		if parent == nil {
			continue
		}
		existing := h.forest.FindNodeInTree(root, c.vd, c.sd)

		var updated *forest.Node
		switch {
		case existing == nil:
			child, ok := h.forest.AddChildToParent(root, parent, c.vd, c.sd, c.edgeTime)
			if !ok {
				continue
			}
			updated = child
			res.Attached++
		case existing.Timestamp < min(c.edgeTime, parent.Timestamp):
			ok, err := h.forest.ChangeParent(existing, parent, min(c.edgeTime, parent.Timestamp))
			if err != nil {
				h.drain()
				return err
			}
			if !ok {
				continue
			}
			updated = existing
			res.Reparented++
		default:
			continue
		}

		if h.automaton.IsFinalState(updated.State) && h.sink.Add(root, updated.Vertex, trigger) {
			res.Emitted++
		}

		for succ := range h.graph.Successors(updated.Vertex) {
			next, ok := h.automaton.NextState(updated.State, succ.Label)
			if !ok {
				continue
			}
			h.push(candidate{vb: updated.Vertex, sb: updated.State, vd: succ.Dest, sd: next, edgeTime: succ.Timestamp})
		}
	}
	return nil
}

func (h *Handler) push(c candidate) {
	h.seq++
	c.seq = h.seq
	heap.Push(h.queue, c)
}

func (h *Handler) drain() {
	*h.queue = (*h.queue)[:0]
}

func edgeString(e *graph.Edge) string {
	return types.Arrival{Source: e.Source, Dest: e.Dest, Label: e.Label, Time: e.Timestamp}.String()
}
