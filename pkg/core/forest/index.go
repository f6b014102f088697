package forest

import (
	"log/slog"

	"github.com/sanonone/streamrpq/pkg/core/types"
)

// register records (v, s) of t in both reverse indices.
func (f *Forest) register(t *Tree, v types.Vertex, s types.State) {
	pk := productKey{v, s}
	pm := f.byProduct[pk]
	if pm == nil {
		pm = make(map[TreeID]*Tree)
		f.byProduct[pk] = pm
	}
	if _, ok := pm[t.ID]; !ok {
		pm[t.ID] = t
		t.refs++
	}

	states := t.atVertex[v]
	if states == nil {
		states = make(map[types.State]struct{})
		t.atVertex[v] = states

		vm := f.byVertex[v]
		if vm == nil {
			vm = make(map[TreeID]*Tree)
			f.byVertex[v] = vm
		}
		vm[t.ID] = t
		t.refs++
	}
	states[s] = struct{}{}
}

// unregister drops (v, s) of a live tree from both reverse indices.
func (f *Forest) unregister(t *Tree, v types.Vertex, s types.State) {
	pk := productKey{v, s}
	if pm := f.byProduct[pk]; pm != nil {
		if _, ok := pm[t.ID]; ok {
			delete(pm, t.ID)
			f.release(t)
		}
		if len(pm) == 0 {
			delete(f.byProduct, pk)
		}
	}

	states := t.atVertex[v]
	delete(states, s)
	if len(states) > 0 {
		return
	}
	delete(t.atVertex, v)
	if vm := f.byVertex[v]; vm != nil {
		if _, ok := vm[t.ID]; ok {
			delete(vm, t.ID)
			f.release(t)
		}
		if len(vm) == 0 {
			delete(f.byVertex, v)
		}
	}
}

// release drops one index reference to t and collects it once expired and
// unreferenced.
func (f *Forest) release(t *Tree) {
	t.refs--
	if t.refs < 0 {
		slog.Warn("Negative tree reference count", "tree", t.ID, "root", t.RootVertex, "refs", t.refs)
		t.refs = 0
	}
	if t.refs == 0 && t.Expired {
		delete(f.pending, t.ID)
	}
}

// sweepVertex removes entries of expired trees from the vertex index and
// returns the surviving set.
func (f *Forest) sweepVertex(v types.Vertex) map[TreeID]*Tree {
	vm := f.byVertex[v]
	for id, t := range vm {
		if t.Expired {
			delete(vm, id)
			f.release(t)
		}
	}
	if vm != nil && len(vm) == 0 {
		delete(f.byVertex, v)
		return nil
	}
	return vm
}

// sweepProduct is sweepVertex for the (vertex, state) index.
func (f *Forest) sweepProduct(pk productKey) map[TreeID]*Tree {
	pm := f.byProduct[pk]
	for id, t := range pm {
		if t.Expired {
			delete(pm, id)
			f.release(t)
		}
	}
	if pm != nil && len(pm) == 0 {
		delete(f.byProduct, pk)
		return nil
	}
	return pm
}

// Sweep walks both indices and drops every entry that points at an expired
// tree. It returns the number of entries removed.
func (f *Forest) Sweep() int {
	removed := 0
	for v, vm := range f.byVertex {
		n := len(vm)
		f.sweepVertex(v)
		removed += n - len(vm)
	}
	for pk, pm := range f.byProduct {
		n := len(pm)
		f.sweepProduct(pk)
		removed += n - len(pm)
	}
	return removed
}
