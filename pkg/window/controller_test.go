package window

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanonone/streamrpq/pkg/core/automaton"
	"github.com/sanonone/streamrpq/pkg/core/forest"
	"github.com/sanonone/streamrpq/pkg/core/graph"
	"github.com/sanonone/streamrpq/pkg/core/query"
	"github.com/sanonone/streamrpq/pkg/core/sink"
	"github.com/sanonone/streamrpq/pkg/core/types"
)

type pipeline struct {
	g *graph.Graph
	f *forest.Forest
	s *sink.Sink
	h *query.Handler
	c *Controller
}

func newPipeline(t *testing.T, opts Options, lives int) *pipeline {
	t.Helper()
	a, err := automaton.FromQuery(1, []types.Label{1})
	require.NoError(t, err)

	p := &pipeline{
		g: graph.New(a, graph.Options{Lives: lives}),
		f: forest.New(),
		s: sink.New(),
	}
	p.h = query.NewHandler(a, p.g, p.f, p.s)
	p.c, err = NewController(opts, a, p.g, p.f, p.s)
	require.NoError(t, err)
	return p
}

// step runs one arrival through insert, match and eviction.
func (p *pipeline) step(t *testing.T, s, d types.Vertex, ts int64) []Eviction {
	t.Helper()
	e, err := p.c.Insert(types.Arrival{Source: s, Dest: d, Label: 1, Time: ts})
	require.NoError(t, err)
	_, err = p.h.Match(e)
	require.NoError(t, err)

	var out []Eviction
	for p.c.HasPending() {
		ev, err := p.c.Evict()
		require.NoError(t, err)
		out = append(out, ev)
	}
	return out
}

func TestNewController_Validation(t *testing.T) {
	_, err := NewController(Options{Size: 0, Slide: 1}, nil, nil, nil, nil)
	require.Error(t, err)
	_, err = NewController(Options{Size: 1, Slide: 2}, nil, nil, nil, nil)
	require.Error(t, err)
	_, err = NewController(Options{Size: 4, Slide: 2, Retention: RetentionOptions{Enabled: true, Threshold: -1}}, nil, nil, nil, nil)
	require.Error(t, err)
}

func TestInsert_WindowCoverage(t *testing.T) {
	p := newPipeline(t, Options{Size: 4, Slide: 2}, 1)

	times := []int64{0, 1, 3, 4, 7, 8, 13}
	for i, ts := range times {
		p.step(t, types.Vertex(i), types.Vertex(i+1), ts)

		var covering []int64
		for _, w := range p.c.Windows() {
			if w.Contains(ts) {
				covering = append(covering, w.Open)
			}
		}
		// Every grid window [o, o+4) with o <= ts < o+4 exists exactly once.
		var want []int64
		for o := int64(0); o <= ts; o += 2 {
			if o+4 > ts {
				want = append(want, o)
			}
		}
		assert.Equal(t, want, covering, "arrival at %d", ts)
	}

	opens := make(map[int64]int)
	for i, w := range p.c.Windows() {
		opens[w.Open]++
		assert.Equal(t, i, w.Index)
		if i > 0 {
			assert.Greater(t, w.Open, p.c.Windows()[i-1].Open, "windows are created in increasing order")
		}
	}
	for o, n := range opens {
		assert.Equal(t, 1, n, "window at %d created twice", o)
	}
}

func TestEvict_Monotonic(t *testing.T) {
	p := newPipeline(t, Options{Size: 3, Slide: 1}, 1)

	var evicted []int
	for ts := range int64(20) {
		for _, ev := range p.step(t, types.Vertex(ts%5), types.Vertex((ts+1)%5), ts) {
			for _, w := range ev.Windows {
				evicted = append(evicted, w.Index)
			}
		}
		for i, w := range p.c.Windows() {
			if i < p.c.Offset() {
				assert.Equal(t, Evicted, w.State)
			} else {
				assert.NotEqual(t, Evicted, w.State)
			}
		}
	}
	require.NotEmpty(t, evicted)
	assert.True(t, slices.IsSorted(evicted))
	for i := range evicted {
		assert.Equal(t, i, evicted[i], "no window is skipped")
	}
	assert.LessOrEqual(t, p.c.LiveWindows(), 3)

	_, err := p.c.Evict()
	require.ErrorIs(t, err, ErrNotScheduled)
}

func TestEndToEnd_PlusPattern(t *testing.T) {
	p := newPipeline(t, Options{Size: 3, Slide: 1}, 1)

	assert.Empty(t, p.step(t, 1, 2, 0))
	assert.Empty(t, p.step(t, 2, 3, 1))
	assert.Empty(t, p.step(t, 3, 4, 2))

	want := []types.Match{
		{Source: 1, Destination: 2}, {Source: 1, Destination: 3}, {Source: 1, Destination: 4},
		{Source: 2, Destination: 3}, {Source: 2, Destination: 4}, {Source: 3, Destination: 4},
	}
	assert.Equal(t, want, pairsOf(p.s.Entries()))

	evs := p.step(t, 5, 6, 3)
	require.Len(t, evs, 1)
	ev := evs[0]
	require.Len(t, ev.Windows, 1)
	assert.Equal(t, int64(0), ev.Windows[0].Open)
	assert.Equal(t, int64(1), ev.Time)
	assert.Equal(t, 1, ev.Deleted)
	assert.Equal(t, []types.Vertex{1}, ev.Forest.ExpiredRoots)

	for _, m := range p.s.Entries() {
		assert.NotEqual(t, types.Vertex(1), m.Source, "matches rooted at 1 are purged")
	}
	assert.Equal(t, []types.Match{
		{Source: 2, Destination: 3}, {Source: 2, Destination: 4},
		{Source: 3, Destination: 4}, {Source: 5, Destination: 6},
	}, pairsOf(p.s.Entries()))
	assert.False(t, p.f.HasTree(1))
	assert.Equal(t, 3, p.g.EdgeCount())
}

func TestEvict_RetentionDeletesDenseMigratesSparse(t *testing.T) {
	opts := Options{Size: 2, Slide: 2, Retention: RetentionOptions{Enabled: true, Threshold: 0.5}}
	p := newPipeline(t, opts, 2)

	p.step(t, 1, 10, 0)
	p.step(t, 1, 11, 0)
	p.step(t, 2, 20, 1)

	// Vertex 1 reaches out-degree 3 against 1 for vertex 2, z = 1. Each
	// deletion lowers it: 1->10 and 1->11 go as dense, after which the
	// degrees are equal and 2->20 spends a life.
	evs := p.step(t, 1, 12, 2)
	require.Len(t, evs, 1)
	assert.Equal(t, 2, evs[0].Deleted)
	assert.Equal(t, 2, evs[0].Dense)
	assert.Equal(t, 1, evs[0].Migrated)

	for _, d := range []types.Vertex{10, 11} {
		_, ok := p.g.Lookup(1, d, 1)
		assert.False(t, ok, "dense edge 1->%d deleted despite spare lives", d)
	}
	sparse, ok := p.g.Lookup(2, 20, 1)
	require.True(t, ok, "sparse edge retained")
	assert.Equal(t, 1, sparse.Lives)
	assert.Equal(t, int64(2), sparse.Timestamp, "takes the anchor's time")

	hub, ok := p.g.Lookup(1, 12, 1)
	require.True(t, ok)
	assert.Equal(t, []*graph.Edge{hub, sparse}, slices.Collect(p.g.WSS()))

	w0, w1 := p.c.Windows()[0], p.c.Windows()[1]
	assert.Equal(t, Evicted, w0.State)
	assert.Nil(t, w0.First)
	assert.Nil(t, w0.Last)
	assert.Same(t, sparse, w1.Last)
	assert.Equal(t, 2, w1.Count)

	// Out of lives: the sparse edge is deleted, not counted as dense.
	evs = p.step(t, 3, 30, 4)
	require.Len(t, evs, 1)
	assert.Equal(t, 1, evs[0].Migrated)
	assert.Equal(t, 1, evs[0].Deleted)
	assert.Zero(t, evs[0].Dense)
	_, ok = p.g.Lookup(2, 20, 1)
	assert.False(t, ok)
	assert.Equal(t, 2, p.g.EdgeCount())
}

func TestShiftedIndex(t *testing.T) {
	tests := []struct {
		z         float64
		threshold float64
		want      int
	}{
		{z: -1, threshold: 1, want: 6},
		{z: -5, threshold: 1, want: 6},
		{z: 0, threshold: 1, want: 4},
		{z: 1, threshold: 1, want: 2},
		{z: 3, threshold: 1, want: 2},
		{z: 0.5, threshold: 2, want: 4},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, shiftedIndex(2, 6, tt.z, tt.threshold), "z=%v threshold=%v", tt.z, tt.threshold)
	}
	assert.Equal(t, 3, shiftedIndex(3, 3, 0, 2))
}

func TestEvict_RetentionDisabledDeletes(t *testing.T) {
	p := newPipeline(t, Options{Size: 2, Slide: 2}, 5)
	p.step(t, 1, 10, 0)
	p.step(t, 1, 11, 0)
	p.step(t, 2, 20, 1)

	evs := p.step(t, 3, 30, 2)
	require.Len(t, evs, 1)
	assert.Zero(t, evs[0].Migrated)
	assert.Equal(t, 3, evs[0].Deleted)
}

func TestInsert_RearrivalRepairsWindows(t *testing.T) {
	p := newPipeline(t, Options{Size: 3, Slide: 1}, 1)
	e1 := mustInsert(t, p, 1, 2, 0)
	e2 := mustInsert(t, p, 2, 3, 1)
	again := mustInsert(t, p, 1, 2, 2)
	require.Same(t, e1, again)

	assert.Equal(t, []*graph.Edge{e2, e1}, slices.Collect(p.g.WSS()))
	w0 := p.c.Windows()[0]
	assert.Same(t, e2, w0.First)
	assert.Same(t, e1, w0.Last)
	assert.Equal(t, int64(2), e1.Timestamp)

	w2 := p.c.Windows()[2]
	assert.Same(t, e1, w2.First)
	assert.Equal(t, 1, w2.Count)
	assert.Equal(t, 2, p.g.EdgeCount())
}

func TestForceClose(t *testing.T) {
	p := newPipeline(t, Options{Size: 10, Slide: 5}, 1)
	for ts := range int64(6) {
		p.step(t, types.Vertex(ts), types.Vertex(ts+1), ts)
	}
	require.Equal(t, 6, p.g.WSSLen())

	ev, err := p.c.ForceClose(6, 2)
	require.NoError(t, err)
	assert.Equal(t, 4, ev.Deleted)
	assert.Equal(t, int64(4), ev.Time, "new head timestamp")
	assert.NotEmpty(t, ev.Windows)
	for _, w := range ev.Windows {
		assert.Equal(t, Evicted, w.State)
		assert.LessOrEqual(t, w.Close, int64(6))
	}

	assert.Equal(t, 2, p.g.WSSLen())
	w := p.c.Newest()
	assert.Equal(t, int64(6), w.Open)
	assert.Equal(t, int64(16), w.Close)
	assert.Equal(t, 2, w.Count)
	assert.Equal(t, Open, w.State)
	assert.Equal(t, 1, p.c.LiveWindows())
	assert.Equal(t, len(p.c.Windows())-1, p.c.Offset())

	// Matches not supported by the kept edges are gone.
	for _, m := range p.s.Entries() {
		assert.GreaterOrEqual(t, m.Source, types.Vertex(4))
	}
}

func TestSetSize(t *testing.T) {
	p := newPipeline(t, Options{Size: 4, Slide: 2}, 1)
	p.step(t, 1, 2, 0)
	p.c.SetSize(8)
	p.step(t, 2, 3, 2)

	ws := p.c.Windows()
	assert.Equal(t, int64(4), ws[0].Size())
	assert.Equal(t, int64(8), ws[len(ws)-1].Size())

	p.c.SetSize(1)
	assert.Equal(t, int64(2), p.c.Size(), "never below one slide")
}

func TestSetSize_ShrinkKeepsOpenWindows(t *testing.T) {
	p := newPipeline(t, Options{Size: 8, Slide: 2}, 1)
	p.step(t, 1, 2, 0)
	p.c.SetSize(4)
	p.step(t, 2, 3, 2)

	ws := p.c.Windows()
	require.Len(t, ws, 2)
	assert.Equal(t, int64(8), ws[0].Close)
	assert.Equal(t, Open, ws[0].State)
	assert.Equal(t, 2, ws[0].Count)
	assert.Equal(t, int64(2), ws[1].Open)
	assert.Equal(t, int64(6), ws[1].Close)
}

func mustInsert(t *testing.T, p *pipeline, s, d types.Vertex, ts int64) *graph.Edge {
	t.Helper()
	e, err := p.c.Insert(types.Arrival{Source: s, Dest: d, Label: 1, Time: ts})
	require.NoError(t, err)
	return e
}

func pairsOf(ms []types.Match) []types.Match {
	out := make([]types.Match, len(ms))
	for i, m := range ms {
		out[i] = types.Match{Source: m.Source, Destination: m.Destination}
	}
	return out
}
