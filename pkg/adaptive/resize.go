package adaptive

import (
	"log/slog"

	"github.com/sanonone/streamrpq/pkg/core/graph"
	"github.com/sanonone/streamrpq/pkg/core/types"
)

const (
	// resizeDelta is the smallest smoothed cost change that triggers a resize.
	resizeDelta = 0.01
	highCost    = 0.95
	lowCost     = 0.05
)

// Resize shrinks windows while the normalized cost rises and grows them
// while it falls, one or more slides at a time, within [minSize, maxSize].
type Resize struct {
	feedback
	minSize int64
	maxSize int64
	resizes int
}

func (p *Resize) Name() string { return ModeResize }

// Resizes returns how many times the window size changed.
func (p *Resize) Resizes() int { return p.resizes }

func (p *Resize) ProcessEdge(a types.Arrival, env *Env) (*graph.Edge, error) {
	e, evs, err := admit(a, env)
	if err != nil {
		return nil, err
	}
	if len(evs) > 0 {
		p.adjust(env)
	}
	return e, nil
}

func (p *Resize) adjust(env *Env) {
	norm, diff, ok := p.evaluate(env)
	if !ok {
		return
	}
	c := env.Controller
	size := c.Size()
	switch {
	case diff >= resizeDelta || norm >= highCost:
		size -= steps(diff) * c.Slide()
	case diff <= -resizeDelta || norm <= lowCost:
		size += steps(diff) * c.Slide()
	default:
		return
	}
	size = min(max(size, p.minSize), p.maxSize)
	if size == c.Size() {
		return
	}
	slog.Debug("Window resized", "from", c.Size(), "to", size, "cost", norm, "diff", diff)
	c.SetSize(size)
	p.resizes++
}
