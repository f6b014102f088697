package adaptive

import (
	"fmt"
	"log/slog"

	"github.com/sanonone/streamrpq/pkg/core/graph"
	"github.com/sanonone/streamrpq/pkg/core/types"
	"github.com/sanonone/streamrpq/pkg/drift"
)

// Drift feeds the normalized cost of every admitted edge to a change
// detector and force-closes the live windows when it signals, keeping only
// as many edges as the detector's current window.
type Drift struct {
	feedback
	detector drift.Detector
	drifts   int
}

func (p *Drift) Name() string { return ModeDrift }

// Drifts returns how many changes triggered a force close.
func (p *Drift) Drifts() int { return p.drifts }

func (p *Drift) ProcessEdge(a types.Arrival, env *Env) (*graph.Edge, error) {
	e, _, err := admit(a, env)
	if err != nil {
		return nil, err
	}

	env.Stats.Warmup++
	norm := env.Stats.Normalize(p.cost(snapshot(env.Graph, env.Controller)))
	env.Stats.Normalized = norm
	if !p.detector.Update(norm*10) || env.Stats.Warmup <= p.warmup {
		return e, nil
	}

	p.drifts++
	slog.Info("Drift detected", "time", a.Time, "estimate", p.detector.Estimate(), "length", p.detector.Length())
	ev, err := env.Controller.ForceClose(a.Time, p.detector.Length())
	if err != nil {
		return nil, fmt.Errorf("force close at %d: %w", a.Time, err)
	}
	env.notify(ev)
	return e, nil
}
