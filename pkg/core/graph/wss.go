package graph

import (
	"container/list"
	"iter"
)

// The window state store is a doubly linked list of every live edge in
// arrival order. Windows reference contiguous ranges of it by edge.

// AppendToWSS pushes e at the tail of the WSS. It is a no-op when e is
// already stored.
func (g *Graph) AppendToWSS(e *Edge) {
	if e.elem != nil {
		return
	}
	e.elem = g.wss.PushBack(e)
}

// DeleteFromWSS unlinks e from the WSS.
func (g *Graph) DeleteFromWSS(e *Edge) {
	if e.elem == nil {
		return
	}
	g.wss.Remove(e.elem)
	e.elem = nil
}

// RelocateInWSS moves e to immediately follow after. The moved edge inherits
// the anchor's timestamp and close bound so that it lives as long as the
// window it was migrated into. It reports false when either edge is not in
// the WSS.
func (g *Graph) RelocateInWSS(e, after *Edge) bool {
	if e.elem == nil || after.elem == nil {
		return false
	}
	if e != after {
		g.wss.MoveAfter(e.elem, after.elem)
	}
	e.Timestamp = after.Timestamp
	e.CloseBound = after.CloseBound
	return true
}

// MoveToWSSTail moves e to the tail of the WSS.
func (g *Graph) MoveToWSSTail(e *Edge) {
	if e.elem == nil {
		g.AppendToWSS(e)
		return
	}
	g.wss.MoveToBack(e.elem)
}

// InWSS reports whether e is currently stored in the WSS.
func (g *Graph) InWSS(e *Edge) bool { return e != nil && e.elem != nil }

// WSSFront returns the oldest edge of the WSS, or nil.
func (g *Graph) WSSFront() *Edge { return edgeOf(g.wss.Front()) }

// WSSBack returns the newest edge of the WSS, or nil.
func (g *Graph) WSSBack() *Edge { return edgeOf(g.wss.Back()) }

// NextInWSS returns the edge following e, or nil.
func (g *Graph) NextInWSS(e *Edge) *Edge {
	if e == nil || e.elem == nil {
		return nil
	}
	return edgeOf(e.elem.Next())
}

// PrevInWSS returns the edge preceding e, or nil.
func (g *Graph) PrevInWSS(e *Edge) *Edge {
	if e == nil || e.elem == nil {
		return nil
	}
	return edgeOf(e.elem.Prev())
}

// WSSLen returns the number of edges in the WSS.
func (g *Graph) WSSLen() int { return g.wss.Len() }

// WSS yields the WSS from oldest to newest. The store must not be modified
// while ranging.
func (g *Graph) WSS() iter.Seq[*Edge] {
	return func(yield func(*Edge) bool) {
		for el := g.wss.Front(); el != nil; el = el.Next() {
			if !yield(el.Value.(*Edge)) {
				return
			}
		}
	}
}

func edgeOf(el *list.Element) *Edge {
	if el == nil {
		return nil
	}
	return el.Value.(*Edge)
}
