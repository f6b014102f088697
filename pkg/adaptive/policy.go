// Package adaptive implements the per-edge admission policies of the
// pipeline. Every policy shares the same admission path (window insert,
// matching, eviction) and differs only in how it reacts to the cost of the
// current window state: not at all, by resizing windows, by force-closing
// them on drift, or by shedding edges.
package adaptive

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sanonone/streamrpq/pkg/core/graph"
	"github.com/sanonone/streamrpq/pkg/core/query"
	"github.com/sanonone/streamrpq/pkg/core/sink"
	"github.com/sanonone/streamrpq/pkg/core/types"
	"github.com/sanonone/streamrpq/pkg/drift"
	"github.com/sanonone/streamrpq/pkg/window"
)

// ErrUnknownMode is returned by New for an unrecognised mode.
var ErrUnknownMode = errors.New("unknown adaptation mode")

// Modes.
const (
	ModeFixed  = "fixed"
	ModeResize = "resize"
	ModeDrift  = "drift"
	ModeShed   = "shed"
)

// Policy decides how an arrival is processed. ProcessEdge returns the edge
// as stored in the graph, or nil when the arrival was shed.
type Policy interface {
	Name() string
	ProcessEdge(a types.Arrival, env *Env) (*graph.Edge, error)
}

// Env is the pipeline state a policy operates on.
type Env struct {
	Controller *window.Controller
	Handler    *query.Handler
	Graph      *graph.Graph
	Sink       *sink.Sink
	Stats      *Statistics

	// OnEvict, if set, is called after every eviction, forced or scheduled.
	OnEvict func(window.Eviction)

	// LastMatch is the matching result of the last admitted edge.
	LastMatch query.Result
}

// Config selects and parameterises a policy.
type Config struct {
	Mode string
	// Cost names the cost function, see CostNames.
	Cost string
	// Warmup is the number of evaluations (evictions for resize and shed,
	// edges for drift) ignored before the policy starts reacting.
	Warmup  int
	MinSize int64
	MaxSize int64
	Shed    ShedOptions
}

// New returns the policy selected by cfg.Mode. detector is only used by the
// drift policy and may be nil otherwise.
func New(cfg Config, detector drift.Detector) (Policy, error) {
	cost, err := CostByName(cfg.Cost)
	if err != nil {
		return nil, err
	}
	fb := feedback{cost: cost, warmup: cfg.Warmup}

	switch cfg.Mode {
	case ModeFixed, "":
		return &Fixed{feedback: fb}, nil
	case ModeResize:
		if cfg.MinSize <= 0 || cfg.MaxSize < cfg.MinSize {
			return nil, fmt.Errorf("resize bounds invalid (min=%d max=%d)", cfg.MinSize, cfg.MaxSize)
		}
		return &Resize{feedback: fb, minSize: cfg.MinSize, maxSize: cfg.MaxSize}, nil
	case ModeDrift:
		if detector == nil {
			return nil, errors.New("drift mode needs a detector")
		}
		return &Drift{feedback: fb, detector: detector}, nil
	case ModeShed:
		return newShed(fb, cfg.Shed)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, cfg.Mode)
	}
}

// admit runs the shared admission path and returns the evictions it caused.
func admit(a types.Arrival, env *Env) (*graph.Edge, []window.Eviction, error) {
	start := time.Now()
	e, err := env.Controller.Insert(a)
	if err != nil {
		return nil, nil, fmt.Errorf("insert %s: %w", a, err)
	}
	res, err := env.Handler.Match(e)
	if err != nil {
		return nil, nil, fmt.Errorf("match %s: %w", a, err)
	}
	env.LastMatch = res

	var evs []window.Eviction
	for env.Controller.HasPending() {
		ev, err := env.Controller.Evict()
		if err != nil {
			return nil, nil, fmt.Errorf("evict at %d: %w", a.Time, err)
		}
		env.notify(ev)
		evs = append(evs, ev)
	}
	env.Stats.ObserveEdge(env.Controller.Size(), time.Since(start))
	return e, evs, nil
}

func (env *Env) notify(ev window.Eviction) {
	for _, w := range ev.Windows {
		env.Stats.ObserveLatency(w.Latency)
	}
	if env.OnEvict != nil {
		env.OnEvict(ev)
	}
}

// feedback is the cost evaluation shared by every policy.
type feedback struct {
	cost   CostFunc
	warmup int
}

// evaluate computes, normalizes and smooths the current cost. ok is false
// during warm-up, in which case nothing is recorded.
func (f *feedback) evaluate(env *Env) (norm, diff float64, ok bool) {
	env.Stats.Warmup++
	if env.Stats.Warmup <= f.warmup {
		return 0, 0, false
	}
	norm, diff = env.Stats.Update(f.cost(snapshot(env.Graph, env.Controller)))
	if w := env.Controller.Newest(); w != nil {
		w.Cost = norm
	}
	return norm, diff, true
}

// steps converts a normalized cost change into a number of adjustment steps,
// at least one.
func steps(diff float64) int64 {
	if diff < 0 {
		diff = -diff
	}
	return max(1, int64(math.Ceil(diff*10)))
}
