// Package forest implements the spanning forest over the product graph
// (vertex, automaton state) that backs incremental RPQ evaluation.
//
// Every tree is rooted at a vertex that accepted the automaton's initial
// transition. A node (v, s) in the tree rooted at r means that v is reachable
// from r by a path whose label sequence drives the automaton into s; the
// node's Timestamp is the bottleneck reach time of the best known such path,
// i.e. the largest, over represented paths, of the smallest edge timestamp.
//
// Nodes live in an arena and are addressed by NodeID. A node owns the list of
// its children and refers to its parent by ID only, so detaching and
// re-attaching subtrees is a matter of rewriting IDs.
//
// Two reverse indices (vertex -> trees and (vertex, state) -> trees) answer
// "which trees contain this node" without scanning the forest. Entries that
// point at expired trees are not removed eagerly; they are swept the next time
// the entry is read. Each tree counts how many index entries still point at
// it and is released once that count drops to zero.
package forest

import (
	"cmp"
	"errors"
	"fmt"
	"iter"
	"math"
	"slices"

	"github.com/sanonone/streamrpq/pkg/core/types"
)

var (
	ErrDuplicateRoot = errors.New("tree already exists for root vertex")
	ErrChildNotFound = errors.New("child not found in parent's child list")
	ErrCycle         = errors.New("re-parenting would create a cycle")
	ErrOrphanNode    = errors.New("node refers to a missing parent")
)

// InvariantError reports a broken forest invariant together with the product
// node that exposed it. These errors indicate a defect in the incremental
// algorithm, not bad input, and callers are expected to abort.
type InvariantError struct {
	Err    error
	Root   types.Vertex
	Vertex types.Vertex
	State  types.State
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("forest invariant violated: %v (root=%d vertex=%d state=%d)",
		e.Err, e.Root, e.Vertex, e.State)
}

func (e *InvariantError) Unwrap() error { return e.Err }

// NodeID addresses a node in the forest arena. The zero value means "none".
type NodeID uint64

// TreeID is a generation handle: every tree ever created gets a fresh ID, so
// an index entry for an old tree never aliases a newer tree with the same
// root vertex.
type TreeID uint64

// NoTimestamp is the timestamp of a root node: a root is never stale by path,
// only by its own RootTimestamp.
const NoTimestamp int64 = math.MaxInt64

// Node is a product graph node (Vertex, State) inside one tree.
type Node struct {
	ID            NodeID
	Vertex        types.Vertex
	State         types.State
	IsRoot        bool
	Valid         bool
	Timestamp     int64
	RootTimestamp int64
	EdgeID        int64

	Parent   NodeID
	Children []NodeID

	tree *Tree
}

// Tree returns the tree that owns n.
func (n *Node) Tree() *Tree { return n.tree }

type productKey struct {
	vertex types.Vertex
	state  types.State
}

// Tree is one spanning tree of the forest.
type Tree struct {
	ID         TreeID
	RootVertex types.Vertex
	Root       NodeID
	Expired    bool

	nodes    map[productKey]NodeID
	atVertex map[types.Vertex]map[types.State]struct{}
	refs     int
}

// Size returns the number of nodes in the tree, root included.
func (t *Tree) Size() int { return len(t.nodes) }

// Forest owns every tree and node. It is not safe for concurrent use.
type Forest struct {
	nodes    map[NodeID]*Node
	nextNode NodeID
	nextTree TreeID

	trees   map[types.Vertex]*Tree
	pending map[TreeID]*Tree

	byVertex  map[types.Vertex]map[TreeID]*Tree
	byProduct map[productKey]map[TreeID]*Tree
}

// New returns an empty forest.
func New() *Forest {
	return &Forest{
		nodes:     make(map[NodeID]*Node),
		trees:     make(map[types.Vertex]*Tree),
		pending:   make(map[TreeID]*Tree),
		byVertex:  make(map[types.Vertex]map[TreeID]*Tree),
		byProduct: make(map[productKey]map[TreeID]*Tree),
	}
}

// HasTree reports whether a live tree is rooted at root.
func (f *Forest) HasTree(root types.Vertex) bool {
	_, ok := f.trees[root]
	return ok
}

// Tree returns the live tree rooted at root, or nil.
func (f *Forest) Tree(root types.Vertex) *Tree { return f.trees[root] }

// Node returns the node with the given ID, or nil if it was freed.
func (f *Forest) Node(id NodeID) *Node { return f.nodes[id] }

// NodeCount returns the number of live nodes across all trees.
func (f *Forest) NodeCount() int { return len(f.nodes) }

// TreeCount returns the number of live trees.
func (f *Forest) TreeCount() int { return len(f.trees) }

// PendingCollection returns the number of expired trees still referenced by
// index entries that have not been swept yet.
func (f *Forest) PendingCollection() int { return len(f.pending) }

// AddTree creates a tree rooted at root with the root node in rootState.
// Adding a second tree for the same root vertex is an invariant violation.
func (f *Forest) AddTree(edgeID int64, root types.Vertex, rootState types.State, arrival int64) (*Tree, error) {
	if _, ok := f.trees[root]; ok {
		return nil, &InvariantError{Err: ErrDuplicateRoot, Root: root, Vertex: root, State: rootState}
	}

	f.nextTree++
	t := &Tree{
		ID:         f.nextTree,
		RootVertex: root,
		nodes:      make(map[productKey]NodeID),
		atVertex:   make(map[types.Vertex]map[types.State]struct{}),
	}
	n := f.newNode(t, root, rootState)
	n.IsRoot = true
	n.Timestamp = NoTimestamp
	n.RootTimestamp = arrival
	n.EdgeID = edgeID
	t.Root = n.ID

	f.trees[root] = t
	return t, nil
}

// FindNodeInTree returns the node (v, s) of the tree rooted at root, or nil.
func (f *Forest) FindNodeInTree(root, v types.Vertex, s types.State) *Node {
	t := f.trees[root]
	if t == nil {
		return nil
	}
	id, ok := t.nodes[productKey{v, s}]
	if !ok {
		return nil
	}
	return f.nodes[id]
}

// FindTreesWithNode returns the live trees containing the product node
// (v, s), ordered by creation. Index entries of expired trees met along the
// way are swept.
func (f *Forest) FindTreesWithNode(v types.Vertex, s types.State) []*Tree {
	if len(f.sweepVertex(v)) == 0 {
		return nil
	}
	m := f.sweepProduct(productKey{v, s})
	if len(m) == 0 {
		return nil
	}
	out := make([]*Tree, 0, len(m))
	for _, t := range m {
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b *Tree) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// AddChildToParent attaches a new node (v, s) under parent in the tree rooted
// at root. The child's timestamp is min(parent.Timestamp, edgeTs). It fails
// when parent is missing or invalid, belongs to another tree, or the tree
// already holds (v, s).
func (f *Forest) AddChildToParent(root types.Vertex, parent *Node, v types.Vertex, s types.State, edgeTs int64) (*Node, bool) {
	if parent == nil || !parent.Valid || parent.tree.RootVertex != root || parent.tree.Expired {
		return nil, false
	}
	t := parent.tree
	if _, ok := t.nodes[productKey{v, s}]; ok {
		return nil, false
	}

	child := f.newNode(t, v, s)
	child.Timestamp = min(parent.Timestamp, edgeTs)
	child.Parent = parent.ID
	parent.Children = append(parent.Children, child.ID)
	return child, true
}

// ChangeParent moves child under newParent and overwrites its timestamp. It
// returns false without error when newParent is missing or invalid, or when
// child is a root.
func (f *Forest) ChangeParent(child, newParent *Node, ts int64) (bool, error) {
	if newParent == nil || !newParent.Valid || child == nil || !child.Valid || child.IsRoot {
		return false, nil
	}
	if child.tree != newParent.tree {
		return false, nil
	}
	inv := func(err error) error {
		return &InvariantError{Err: err, Root: child.tree.RootVertex, Vertex: child.Vertex, State: child.State}
	}

	for cur := newParent; cur != nil; cur = f.nodes[cur.Parent] {
		if cur.ID == child.ID {
			return false, inv(ErrCycle)
		}
	}

	old := f.nodes[child.Parent]
	if old == nil {
		return false, inv(ErrOrphanNode)
	}
	i := slices.Index(old.Children, child.ID)
	if i < 0 {
		return false, inv(ErrChildNotFound)
	}
	old.Children = slices.Delete(old.Children, i, i+1)

	newParent.Children = append(newParent.Children, child.ID)
	child.Parent = newParent.ID
	child.Timestamp = ts
	return true, nil
}

// Supports reports whether the tree rooted at root contains v in a state
// accepted by isFinal.
func (f *Forest) Supports(root, v types.Vertex, isFinal func(types.State) bool) bool {
	t := f.trees[root]
	if t == nil {
		return false
	}
	for s := range t.atVertex[v] {
		if isFinal(s) {
			return true
		}
	}
	return false
}

// Nodes yields the live nodes of the tree rooted at root, parents before
// children.
func (f *Forest) Nodes(root types.Vertex) iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		t := f.trees[root]
		if t == nil {
			return
		}
		stack := []NodeID{t.Root}
		for len(stack) > 0 {
			n := f.nodes[stack[len(stack)-1]]
			stack = stack[:len(stack)-1]
			if n == nil {
				continue
			}
			if !yield(n) {
				return
			}
			stack = append(stack, n.Children...)
		}
	}
}

// Roots yields the root vertex of every live tree.
func (f *Forest) Roots() iter.Seq[types.Vertex] {
	return func(yield func(types.Vertex) bool) {
		for r := range f.trees {
			if !yield(r) {
				return
			}
		}
	}
}

func (f *Forest) newNode(t *Tree, v types.Vertex, s types.State) *Node {
	f.nextNode++
	n := &Node{ID: f.nextNode, Vertex: v, State: s, Valid: true, tree: t}
	f.nodes[n.ID] = n
	t.nodes[productKey{v, s}] = n.ID
	f.register(t, v, s)
	return n
}
