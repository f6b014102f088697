// Package window implements the sliding window and eviction controller.
//
// Windows tile the time axis on a slide grid and reference contiguous ranges
// of the graph's window state store (WSS); they own no edges. Windows move
// Open -> PendingEviction -> Evicted strictly in creation order. Evicting a
// window runs the retention policy over the oldest WSS edges, which either
// deletes an edge or migrates it into a later window, and then expires the
// forest at the eviction boundary.
package window

import (
	"errors"
	"fmt"
	"time"

	"github.com/sanonone/streamrpq/pkg/core/graph"
)

var (
	// ErrEmptyWindow is reported when a window with no elements is scheduled
	// for eviction.
	ErrEmptyWindow = errors.New("window has no elements")
	// ErrNotScheduled is returned by Evict when no window is pending.
	ErrNotScheduled = errors.New("no window pending eviction")
)

// InvariantError carries the index of the window that exposed a broken
// invariant.
type InvariantError struct {
	Err   error
	Index int
	Open  int64
	Close int64
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("window invariant violated: %v (index=%d open=%d close=%d)", e.Err, e.Index, e.Open, e.Close)
}

func (e *InvariantError) Unwrap() error { return e.Err }

// State is the lifecycle state of a window.
type State int

const (
	Open State = iota
	PendingEviction
	Evicted
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case PendingEviction:
		return "pending"
	case Evicted:
		return "evicted"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Window is a time interval [Open, Close) over the WSS range [First, Last].
type Window struct {
	Index int
	Open  int64
	Close int64
	First *graph.Edge
	Last  *graph.Edge
	Count int
	State State

	// Filled in at eviction.
	Emitted   int
	Matched   int64
	Latency   time.Duration
	Cost      float64
	MaxDegree int

	started time.Time
}

// Size returns the window length.
func (w *Window) Size() int64 { return w.Close - w.Open }

// Contains reports whether t falls in [Open, Close).
func (w *Window) Contains(t int64) bool { return w.Open <= t && t < w.Close }
