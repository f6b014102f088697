package window

import (
	"log/slog"
	"math"

	"github.com/sanonone/streamrpq/pkg/core/graph"
	"github.com/sanonone/streamrpq/pkg/core/types"
)

// minZScore is the low end of the z-score range spread over the surviving
// windows.
const minZScore = -1.0

// Evict evicts every window scheduled by Insert. Edges of the WSS that only
// belong to evicted windows go through the retention policy; the forest is
// then expired at the open time of the first surviving window and the sink
// is pruned of matches the forest no longer supports.
func (c *Controller) Evict() (Eviction, error) {
	if !c.HasPending() {
		return Eviction{}, ErrNotScheduled
	}

	last := c.cursor - 1
	ev := Eviction{Time: c.windows[last].Close}
	if c.cursor < len(c.windows) {
		ev.Time = c.windows[c.cursor].Open
	}

	stop := c.boundary()
	if stop == nil {
		slog.Warn("Evict end point is null, evicting the whole buffer",
			"window", last, "wss", c.graph.WSSLen())
	}
	var victims []*graph.Edge
	for e := c.graph.WSSFront(); e != nil && e != stop; e = c.graph.NextInWSS(e) {
		victims = append(victims, e)
	}

	var pairs []types.VertexPair
	for _, e := range victims {
		idx, dense, ok := c.retain(e)
		if ok {
			c.migrate(e, idx)
			ev.Migrated++
			continue
		}
		c.graph.RemoveEdge(e.Source, e.Dest, e.Label)
		c.graph.DeleteFromWSS(e)
		pairs = append(pairs, types.VertexPair{Source: e.Source, Dest: e.Dest})
		ev.Deleted++
		if dense {
			ev.Dense++
		}
	}

	ev.Forest = c.forest.ExpireTimestamped(ev.Time, pairs)
	if ev.Forest.NodesRemoved > 0 {
		ev.Pruned = c.pruneSink()
	}

	ev.Windows = c.retire(c.windows[c.offset:c.cursor])
	c.offset = c.cursor
	c.dropStaleRefs()
	return ev, nil
}

// retain decides whether e survives eviction and, if so, the index of the
// window it migrates into. Edges out of lives or with a dense endpoint are
// deleted; dense reports the latter. Z-scores are read as edges leave, so
// earlier deletions in the same eviction shift them.
func (c *Controller) retain(e *graph.Edge) (idx int, dense, ok bool) {
	r := c.opts.Retention
	if !r.Enabled || !c.graph.Contains(e) {
		return 0, false, false
	}
	z := max(c.graph.ZScore(e.Source), c.graph.ZScore(e.Dest))
	if z > r.Threshold {
		return 0, true, false
	}
	if e.Lives <= 1 {
		return 0, false, false
	}

	first, last := c.cursor, len(c.windows)-1
	if last < first {
		return 0, false, false
	}
	return shiftedIndex(first, last, z, r.Threshold), false, true
}

// shiftedIndex maps z from [minZScore, threshold] onto [first, last], the
// lowest score landing on last. Scores outside the range are clamped.
func shiftedIndex(first, last int, z, threshold float64) int {
	z = math.Min(math.Max(z, minZScore), threshold)
	frac := (z - minZScore) / (threshold - minZScore)
	return first + int(math.Round((1-frac)*float64(last-first)))
}

// migrate relocates e after the last element of window idx.
func (c *Controller) migrate(e *graph.Edge, idx int) {
	w := c.windows[idx]
	anchor := w.Last
	if anchor == nil || !c.graph.InWSS(anchor) {
		anchor = c.graph.WSSBack()
	}
	e.Lives--
	c.graph.RelocateInWSS(e, anchor)
	if w.First == nil {
		w.First = e
	}
	w.Last = e
	w.Count++
	slog.Debug("Edge migrated", "edge", e.ID, "window", idx, "lives", e.Lives)
}

// ForceClose ends every live window at t regardless of the clock schedule,
// keeps only the newest keep edges of the WSS and opens a fresh window
// [t, t+size) over them.
func (c *Controller) ForceClose(t int64, keep int) (Eviction, error) {
	ev := Eviction{Time: t}
	keep = max(keep, 1)

	var pairs []types.VertexPair
	for c.graph.WSSLen() > keep {
		e := c.graph.WSSFront()
		c.graph.RemoveEdge(e.Source, e.Dest, e.Label)
		c.graph.DeleteFromWSS(e)
		pairs = append(pairs, types.VertexPair{Source: e.Source, Dest: e.Dest})
		ev.Deleted++
	}
	if head := c.graph.WSSFront(); head != nil {
		ev.Time = head.Timestamp
	}

	ev.Forest = c.forest.ExpireTimestamped(ev.Time, pairs)
	if ev.Forest.NodesRemoved > 0 {
		ev.Pruned = c.pruneSink()
	}

	for _, w := range c.windows[c.offset:] {
		if w.Close > t {
			w.Close = t
		}
	}
	ev.Windows = c.retire(c.windows[c.offset:])
	c.offset = len(c.windows)
	c.cursor = c.offset

	w := c.open(t, t+c.size)
	w.First = c.graph.WSSFront()
	w.Last = c.graph.WSSBack()
	w.Count = c.graph.WSSLen()
	for e := range c.graph.WSS() {
		e.CloseBound = w.Close
		w.MaxDegree = max(w.MaxDegree, c.graph.Density(e.Source))
	}
	slog.Info("Windows force-closed", "time", t, "evicted", len(ev.Windows), "kept", w.Count)
	return ev, nil
}

// retire marks windows evicted and stamps their result counters.
func (c *Controller) retire(ws []*Window) []*Window {
	now := c.now()
	matched := c.sink.MatchedPaths()
	out := make([]*Window, 0, len(ws))
	for _, w := range ws {
		w.State = Evicted
		w.First, w.Last = nil, nil
		w.Latency = now.Sub(w.started)
		w.Emitted = c.sink.Size()
		w.Matched = matched - c.lastMatched
		c.lastMatched = matched
		c.live.Delete(w)
		out = append(out, w)
	}
	return out
}

func (c *Controller) pruneSink() int {
	return c.sink.Prune(func(root, dst types.Vertex) bool {
		return c.forest.Supports(root, dst, c.automaton.IsFinalState)
	})
}

// dropStaleRefs clears window references to edges that left the WSS.
func (c *Controller) dropStaleRefs() {
	for _, w := range c.windows[c.offset:] {
		if w.First != nil && !c.graph.InWSS(w.First) {
			w.First = nil
		}
		if w.Last != nil && !c.graph.InWSS(w.Last) {
			w.Last = nil
		}
	}
}
