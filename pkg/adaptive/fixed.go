package adaptive

import (
	"github.com/sanonone/streamrpq/pkg/core/graph"
	"github.com/sanonone/streamrpq/pkg/core/types"
)

// Fixed admits every edge and never changes the window size. The cost is
// still evaluated at each eviction so that traces are comparable across
// modes.
type Fixed struct {
	feedback
}

func (p *Fixed) Name() string { return ModeFixed }

func (p *Fixed) ProcessEdge(a types.Arrival, env *Env) (*graph.Edge, error) {
	e, evs, err := admit(a, env)
	if err != nil {
		return nil, err
	}
	if len(evs) > 0 {
		p.evaluate(env)
	}
	return e, nil
}
