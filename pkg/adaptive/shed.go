package adaptive

import (
	"fmt"
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/sanonone/streamrpq/pkg/core/graph"
	"github.com/sanonone/streamrpq/pkg/core/types"
)

// Shedding conditions.
const (
	ShedProbabilistic = "probabilistic"
	ShedLatency       = "latency"
)

// ShedOptions configures the load shedding policy.
type ShedOptions struct {
	Condition string
	// Granularity scales each probability adjustment step.
	Granularity float64
	// MaxProbability caps the shedding probability.
	MaxProbability float64
	// InitialProbability is the probability before the first adjustment.
	InitialProbability float64
	// LatencyMax is the mean per-edge processing time above which the
	// latency condition sheds.
	LatencyMax time.Duration
	Seed       uint64
}

// Shed drops arrivals before they reach the graph. The probabilistic
// condition draws from a Bernoulli whose parameter follows the cost
// derivative at each eviction; the latency condition sheds while the mean
// processing time exceeds a bound. The newest window always gets at least
// one edge.
type Shed struct {
	feedback
	opts ShedOptions
	bern distuv.Bernoulli
}

// newShed validates opts and returns a shedding policy.
func newShed(fb feedback, opts ShedOptions) (*Shed, error) {
	if opts.Condition == "" {
		opts.Condition = ShedProbabilistic
	}
	if opts.Condition != ShedProbabilistic && opts.Condition != ShedLatency {
		return nil, fmt.Errorf("unknown shedding condition %q", opts.Condition)
	}
	if opts.MaxProbability < 0 || opts.MaxProbability > 1 {
		return nil, fmt.Errorf("max shedding probability %.3f outside [0,1]", opts.MaxProbability)
	}
	if opts.Granularity <= 0 {
		opts.Granularity = 0.01
	}
	p := min(max(opts.InitialProbability, 0), opts.MaxProbability)
	return &Shed{
		feedback: fb,
		opts:     opts,
		bern:     distuv.Bernoulli{P: p, Src: rand.NewPCG(opts.Seed, opts.Seed)},
	}, nil
}

func (p *Shed) Name() string { return ModeShed }

// Probability returns the current shedding probability.
func (p *Shed) Probability() float64 { return p.bern.P }

func (p *Shed) ProcessEdge(a types.Arrival, env *Env) (*graph.Edge, error) {
	if p.shed(env) {
		if w := env.Controller.Newest(); w != nil && w.Count > 0 {
			env.Stats.Shed++
			return nil, nil
		}
	}

	e, evs, err := admit(a, env)
	if err != nil {
		return nil, err
	}
	if len(evs) > 0 {
		p.adjust(env)
	}
	return e, nil
}

func (p *Shed) shed(env *Env) bool {
	if p.opts.Condition == ShedLatency {
		return env.Stats.AvgProcessing() > p.opts.LatencyMax
	}
	return p.bern.Rand() == 1
}

func (p *Shed) adjust(env *Env) {
	norm, diff, ok := p.evaluate(env)
	if !ok {
		return
	}
	step := float64(steps(diff)) * p.opts.Granularity
	prob := p.bern.P
	switch {
	case diff > 0 || norm >= highCost:
		prob += step
	case diff < 0 || norm <= lowCost:
		prob -= step
	}
	p.bern.P = min(max(prob, 0), p.opts.MaxProbability)
	env.Stats.ShedProbability = p.bern.P
}
