package forest

import (
	"cmp"
	"slices"

	"github.com/sanonone/streamrpq/pkg/core/types"
)

// sweepThreshold bounds how many expired trees may wait for lazy collection
// before ExpireTimestamped forces a full sweep.
const sweepThreshold = 1024

// ExpireReport summarises one ExpireTimestamped call.
type ExpireReport struct {
	Candidates   int
	NodesRemoved int
	TreesExpired int
	ExpiredRoots []types.Vertex
}

// ExpireTimestamped removes every forest node at the endpoints of pairs whose
// bottleneck timestamp is older than evictionTime. A stale non-root node is
// deleted together with its subtree; a root whose RootTimestamp is older than
// evictionTime expires its whole tree, which then waits in the pending set
// until its index entries have been swept.
//
// Deletions are collected during the scan and applied afterwards.
func (f *Forest) ExpireTimestamped(evictionTime int64, pairs []types.VertexPair) ExpireReport {
	var (
		rep     ExpireReport
		seen    = make(map[types.Vertex]struct{}, 2*len(pairs))
		expired = make(map[TreeID]struct{})
		roots   []*Tree
		stale   []NodeID
	)

	for _, p := range pairs {
		for _, v := range [2]types.Vertex{p.Source, p.Dest} {
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}

			for _, t := range f.sweepVertex(v) {
				for s := range t.atVertex[v] {
					n := f.nodes[t.nodes[productKey{v, s}]]
					if n == nil || !n.Valid {
						continue
					}
					if n.IsRoot {
						if _, ok := expired[t.ID]; !ok && n.RootTimestamp < evictionTime {
							expired[t.ID] = struct{}{}
							roots = append(roots, t)
						}
						continue
					}
					if n.Timestamp < evictionTime {
						stale = append(stale, n.ID)
					}
				}
			}
		}
	}
	rep.Candidates = len(seen)

	slices.SortFunc(roots, func(a, b *Tree) int { return cmp.Compare(a.ID, b.ID) })
	for _, t := range roots {
		rep.NodesRemoved += f.expireTree(t)
		rep.TreesExpired++
		rep.ExpiredRoots = append(rep.ExpiredRoots, t.RootVertex)
	}
	for _, id := range stale {
		n := f.nodes[id]
		if n == nil || !n.Valid {
			// already gone with an ancestor or an expired tree
			continue
		}
		rep.NodesRemoved += f.deleteSubtree(n)
	}

	if len(f.pending) > sweepThreshold {
		f.Sweep()
	}
	return rep
}

// deleteSubtree detaches n from its parent and frees n and all its
// descendants, removing their index entries.
func (f *Forest) deleteSubtree(n *Node) int {
	if p := f.nodes[n.Parent]; p != nil {
		if i := slices.Index(p.Children, n.ID); i >= 0 {
			p.Children = slices.Delete(p.Children, i, i+1)
		}
	}
	t := n.tree

	removed := 0
	stack := []NodeID{n.ID}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		cur := f.nodes[id]
		if cur == nil {
			continue
		}
		stack = append(stack, cur.Children...)

		f.unregister(t, cur.Vertex, cur.State)
		delete(t.nodes, productKey{cur.Vertex, cur.State})
		delete(f.nodes, id)
		cur.Valid = false
		cur.Children = nil
		removed++
	}
	return removed
}

// expireTree invalidates the whole tree. Its index entries are left for the
// lazy sweep.
func (f *Forest) expireTree(t *Tree) int {
	t.Expired = true
	removed := 0
	for _, id := range t.nodes {
		if n := f.nodes[id]; n != nil {
			n.Valid = false
			n.Children = nil
			delete(f.nodes, id)
			removed++
		}
	}
	t.nodes = nil
	t.atVertex = nil

	if f.trees[t.RootVertex] == t {
		delete(f.trees, t.RootVertex)
	}
	if t.refs > 0 {
		f.pending[t.ID] = t
	}
	return removed
}
