// Package graph implements the windowed streaming graph: an adjacency
// structure keyed by (source, destination, label), a time-ordered window state
// store (WSS) holding every live edge, and running out-degree statistics used
// by the retention policy to score vertices.
//
// A Graph is owned by the single processing goroutine and is not safe for
// concurrent use.
package graph

import (
	"container/list"
	"iter"
	"slices"

	"github.com/sanonone/streamrpq/pkg/core/automaton"
	"github.com/sanonone/streamrpq/pkg/core/types"
)

// Edge is a live labelled edge. Identity (Source, Dest, Label) never changes;
// Timestamp is refreshed by repeat arrivals, Lives and CloseBound are owned by
// the retention policy.
type Edge struct {
	ID         int64
	Source     types.Vertex
	Dest       types.Vertex
	Label      types.Label
	Timestamp  int64
	CloseBound int64
	Lives      int

	elem *list.Element
}

// Successor is one outgoing edge as seen by the matching algorithm.
type Successor struct {
	Dest      types.Vertex
	Label     types.Label
	Timestamp int64
	ID        int64
}

type edgeKey struct {
	source types.Vertex
	dest   types.Vertex
	label  types.Label
}

// Options configures a Graph.
type Options struct {
	// Lives is the number of evictions a new edge may survive through
	// retention before it is deleted. Values below 1 are treated as 1.
	Lives int
}

// DefaultOptions returns Options with a single life per edge.
func DefaultOptions() Options {
	return Options{Lives: 1}
}

// Graph is the streaming graph plus its window state store.
type Graph struct {
	adj   map[types.Vertex][]*Edge
	edges map[edgeKey]*Edge
	wss   *list.List

	outDeg   map[types.Vertex]int
	inDeg    map[types.Vertex]int
	incident map[types.Vertex]int

	stats     welford
	maxDegree int

	initLabel   types.Label
	trackInit   bool
	initCount   int
	defaultLife int
}

// New creates an empty graph. The automaton is consulted only for the label
// of its first transition, which InitCount tracks. a may be nil.
func New(a *automaton.Automaton, opts Options) *Graph {
	g := &Graph{
		adj:         make(map[types.Vertex][]*Edge),
		edges:       make(map[edgeKey]*Edge),
		wss:         list.New(),
		outDeg:      make(map[types.Vertex]int),
		inDeg:       make(map[types.Vertex]int),
		incident:    make(map[types.Vertex]int),
		defaultLife: max(opts.Lives, 1),
	}
	if a != nil {
		g.initLabel, g.trackInit = a.FirstLabel()
	}
	return g
}

// InsertEdge upserts the edge (s, d, label). A repeat arrival refreshes the
// timestamp (when newer) and close bound of the existing edge and returns it
// with created == false. A new edge is appended to the WSS tail.
func (g *Graph) InsertEdge(id int64, s, d types.Vertex, label types.Label, time, closeBound int64) (e *Edge, created bool) {
	k := edgeKey{s, d, label}
	if e, ok := g.edges[k]; ok {
		if time > e.Timestamp {
			e.Timestamp = time
		}
		e.CloseBound = closeBound
		return e, false
	}

	e = &Edge{
		ID:         id,
		Source:     s,
		Dest:       d,
		Label:      label,
		Timestamp:  time,
		CloseBound: closeBound,
		Lives:      g.defaultLife,
	}
	g.edges[k] = e
	g.adj[s] = append(g.adj[s], e)
	g.link(e)
	g.AppendToWSS(e)
	return e, true
}

// RemoveEdge removes (s, d, label) from the adjacency structure and the degree
// statistics. The WSS is left untouched; use DeleteFromWSS for that.
func (g *Graph) RemoveEdge(s, d types.Vertex, label types.Label) bool {
	k := edgeKey{s, d, label}
	e, ok := g.edges[k]
	if !ok {
		return false
	}
	delete(g.edges, k)

	out := g.adj[s]
	if i := slices.Index(out, e); i >= 0 {
		out = slices.Delete(out, i, i+1)
	}
	if len(out) == 0 {
		delete(g.adj, s)
	} else {
		g.adj[s] = out
	}
	g.unlink(e)
	return true
}

// Lookup returns the live edge (s, d, label), if any.
func (g *Graph) Lookup(s, d types.Vertex, label types.Label) (*Edge, bool) {
	e, ok := g.edges[edgeKey{s, d, label}]
	return e, ok
}

// Contains reports whether e is still part of the adjacency structure.
func (g *Graph) Contains(e *Edge) bool {
	cur, ok := g.edges[edgeKey{e.Source, e.Dest, e.Label}]
	return ok && cur == e
}

// Successors yields the outgoing edges of v in insertion order. The sequence
// is finite and may be ranged over more than once.
func (g *Graph) Successors(v types.Vertex) iter.Seq[Successor] {
	return func(yield func(Successor) bool) {
		for _, e := range g.adj[v] {
			if !yield(Successor{Dest: e.Dest, Label: e.Label, Timestamp: e.Timestamp, ID: e.ID}) {
				return
			}
		}
	}
}

// EdgeCount returns the number of edges in the adjacency structure.
func (g *Graph) EdgeCount() int { return len(g.edges) }

// VertexCount returns the number of vertices with at least one incident edge.
func (g *Graph) VertexCount() int { return len(g.incident) }

// InitCount returns how many live edges carry the label of the automaton's
// first transition.
func (g *Graph) InitCount() int { return g.initCount }

// Density returns the out-degree of v.
func (g *Graph) Density(v types.Vertex) int { return g.outDeg[v] }

// InDegree returns the in-degree of v.
func (g *Graph) InDegree(v types.Vertex) int { return g.inDeg[v] }

// MaxDensity returns the largest out-degree observed since the graph was
// created.
func (g *Graph) MaxDensity() int { return g.maxDegree }

func (g *Graph) link(e *Edge) {
	old := g.outDeg[e.Source]
	g.outDeg[e.Source] = old + 1
	if old == 0 {
		g.stats.add(1)
	} else {
		g.stats.replace(float64(old), float64(old+1))
	}
	g.maxDegree = max(g.maxDegree, old+1)

	g.inDeg[e.Dest]++
	g.incident[e.Source]++
	g.incident[e.Dest]++

	if g.trackInit && e.Label == g.initLabel {
		g.initCount++
	}
}

func (g *Graph) unlink(e *Edge) {
	old := g.outDeg[e.Source]
	if old <= 1 {
		delete(g.outDeg, e.Source)
		g.stats.remove(float64(old))
	} else {
		g.outDeg[e.Source] = old - 1
		g.stats.replace(float64(old), float64(old-1))
	}

	if g.inDeg[e.Dest] <= 1 {
		delete(g.inDeg, e.Dest)
	} else {
		g.inDeg[e.Dest]--
	}
	for _, v := range [2]types.Vertex{e.Source, e.Dest} {
		if g.incident[v] <= 1 {
			delete(g.incident, v)
		} else {
			g.incident[v]--
		}
	}

	if g.trackInit && e.Label == g.initLabel {
		g.initCount--
	}
}
