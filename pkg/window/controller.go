package window

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/tidwall/btree"

	"github.com/sanonone/streamrpq/pkg/core/automaton"
	"github.com/sanonone/streamrpq/pkg/core/forest"
	"github.com/sanonone/streamrpq/pkg/core/graph"
	"github.com/sanonone/streamrpq/pkg/core/sink"
	"github.com/sanonone/streamrpq/pkg/core/types"
)

// RetentionOptions configures z-score based retention at eviction.
type RetentionOptions struct {
	// Enabled turns migration on. When off every evicted edge is deleted.
	Enabled bool
	// Threshold is the z-score above which an edge counts as dense and is
	// deleted even with lives left. Sparser edges migrate; scores in
	// [-1, Threshold] map linearly from the newest surviving window down to
	// the oldest.
	Threshold float64
}

// Options configures a Controller.
type Options struct {
	Size  int64
	Slide int64
	// MaxSize bounds how far back a window can start and still contain a
	// given time. It defaults to Size.
	MaxSize   int64
	Retention RetentionOptions
}

// DefaultOptions returns a size 10, slide 1 window with retention disabled.
func DefaultOptions() Options {
	return Options{
		Size:  10,
		Slide: 1,
		Retention: RetentionOptions{
			Threshold: 2,
		},
	}
}

// Eviction summarises one call to Evict or ForceClose.
type Eviction struct {
	Windows  []*Window
	Time     int64
	Deleted  int
	Migrated int
	// Dense counts deleted edges that had an endpoint above the retention
	// threshold.
	Dense  int
	Pruned int
	Forest   forest.ExpireReport
}

// Controller assigns arriving edges to windows and evicts closed windows in
// order. It owns no data structure besides the windows themselves; the
// graph, forest and sink are shared with the query handler.
type Controller struct {
	opts Options
	size int64

	automaton *automaton.Automaton
	graph     *graph.Graph
	forest    *forest.Forest
	sink      *sink.Sink

	windows  []*Window
	live     *btree.BTreeG[*Window]
	offset   int
	cursor   int
	lastOpen int64
	nextID   int64

	lastMatched int64
	now         func() time.Time
}

// NewController creates a controller with no windows; the first window is
// created by the first Insert.
func NewController(opts Options, a *automaton.Automaton, g *graph.Graph, f *forest.Forest, s *sink.Sink) (*Controller, error) {
	if opts.Slide <= 0 || opts.Size <= 0 {
		return nil, fmt.Errorf("window size and slide must be positive (size=%d slide=%d)", opts.Size, opts.Slide)
	}
	if opts.Size < opts.Slide {
		return nil, fmt.Errorf("window size %d is smaller than slide %d", opts.Size, opts.Slide)
	}
	if opts.MaxSize < opts.Size {
		opts.MaxSize = opts.Size
	}
	if opts.Retention.Enabled && opts.Retention.Threshold <= minZScore {
		return nil, fmt.Errorf("retention threshold %.3f must exceed %.0f", opts.Retention.Threshold, minZScore)
	}

	return &Controller{
		opts:      opts,
		size:      opts.Size,
		automaton: a,
		graph:     g,
		forest:    f,
		sink:      s,
		live:      btree.NewBTreeGOptions(func(a, b *Window) bool { return a.Open < b.Open }, btree.Options{NoLocks: true}),
		lastOpen:  math.MinInt64,
		now:       time.Now,
	}, nil
}

// Size returns the size used for windows created from now on.
func (c *Controller) Size() int64 { return c.size }

// Slide returns the slide.
func (c *Controller) Slide() int64 { return c.opts.Slide }

// SetSize changes the size of windows created from now on. Existing windows
// keep their bounds.
func (c *Controller) SetSize(size int64) {
	if size < c.opts.Slide {
		size = c.opts.Slide
	}
	c.size = size
	if size > c.opts.MaxSize {
		c.opts.MaxSize = size
	}
}

// Windows returns every window created so far, evicted ones included.
func (c *Controller) Windows() []*Window { return c.windows }

// Offset returns the index of the oldest window not yet evicted.
func (c *Controller) Offset() int { return c.offset }

// Newest returns the most recently created window, or nil.
func (c *Controller) Newest() *Window {
	if len(c.windows) == 0 {
		return nil
	}
	return c.windows[len(c.windows)-1]
}

// LiveWindows returns the number of windows not yet evicted.
func (c *Controller) LiveWindows() int { return c.live.Len() }

// MaxLiveDegree returns the largest out-degree recorded by any window not yet
// evicted, and at least 1.
func (c *Controller) MaxLiveDegree() int {
	m := 1
	c.live.Scan(func(w *Window) bool {
		m = max(m, w.MaxDegree)
		return true
	})
	return m
}

// HasPending reports whether Evict has work to do.
func (c *Controller) HasPending() bool { return c.cursor > c.offset }

// Insert assigns the arrival to its windows, upserts it in the graph and
// schedules every window that closed at or before its time.
func (c *Controller) Insert(a types.Arrival) (*graph.Edge, error) {
	t := a.Time
	c.tile(t)

	closeBound := t + c.size
	if w := c.Newest(); w != nil {
		closeBound = w.Close
	}

	c.nextID++
	e, created := c.graph.InsertEdge(c.nextID, a.Source, a.Dest, a.Label, t, closeBound)
	if !created {
		c.repair(e)
		c.graph.MoveToWSSTail(e)
	}

	deg := c.graph.Density(a.Source)
	c.live.Descend(&Window{Open: t}, func(w *Window) bool {
		if w.Open+c.opts.MaxSize <= t {
			return false
		}
		if w.State == Open && w.Contains(t) {
			if w.First == nil {
				w.First = e
			}
			w.Last = e
			w.Count++
			w.MaxDegree = max(w.MaxDegree, deg)
		}
		return true
	})

	return e, c.schedule(t)
}

// tile creates, in increasing order, every window on the slide grid that
// contains t and starts after the newest existing window.
func (c *Controller) tile(t int64) {
	slide := c.opts.Slide
	span := (c.size+slide-1)/slide - 1
	o := floorDiv(t, slide)*slide - span*slide
	if o < 0 {
		o = 0
	}
	for ; o <= t; o += slide {
		if o <= c.lastOpen || o+c.size <= t {
			continue
		}
		c.open(o, o+c.size)
	}
}

func (c *Controller) open(openTime, closeTime int64) *Window {
	w := &Window{
		Index:   len(c.windows),
		Open:    openTime,
		Close:   closeTime,
		State:   Open,
		started: c.now(),
	}
	c.windows = append(c.windows, w)
	c.live.Set(w)
	c.lastOpen = openTime
	slog.Debug("Window opened", "index", w.Index, "open", w.Open, "close", w.Close)
	return w
}

// repair moves window references off e before it is moved to the WSS tail.
func (c *Controller) repair(e *graph.Edge) {
	next := c.graph.NextInWSS(e)
	prev := c.graph.PrevInWSS(e)
	for _, w := range c.windows[c.offset:] {
		if w.First == e && w.Last == e {
			w.First, w.Last = nil, nil
			continue
		}
		if w.First == e {
			w.First = next
		}
		if w.Last == e {
			w.Last = prev
		}
	}
}

// schedule marks closed windows as pending, in creation order, stopping at
// the first window still open at t.
func (c *Controller) schedule(t int64) error {
	for c.cursor < len(c.windows) {
		w := c.windows[c.cursor]
		if w.Close > t {
			break
		}
		if w.Count == 0 {
			return &InvariantError{Err: ErrEmptyWindow, Index: w.Index, Open: w.Open, Close: w.Close}
		}
		w.State = PendingEviction
		c.cursor++
	}
	return nil
}

// boundary returns the first WSS edge that belongs to a window after the
// pending prefix, or nil when every edge is evictable.
func (c *Controller) boundary() *graph.Edge {
	for _, w := range c.windows[c.cursor:] {
		if w.First != nil && c.graph.InWSS(w.First) {
			return w.First
		}
	}
	return nil
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
