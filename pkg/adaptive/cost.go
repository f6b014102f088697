package adaptive

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/sanonone/streamrpq/pkg/core/graph"
	"github.com/sanonone/streamrpq/pkg/window"
)

// ErrUnknownCost is returned for an unrecognised cost function name.
var ErrUnknownCost = errors.New("unknown cost function")

// Cost function names.
const (
	CostInitOverMaxDegree = "n_over_max_degree"
	CostAvgDegree         = "avg_degree"
	CostInitPaths         = "n"
	CostMaxDegree         = "max_degree"
	CostInitTimesEdges    = "init_times_edges"
)

// CostInputs is a snapshot of the quantities every cost function reads.
type CostInputs struct {
	// Edges is the number of edges in the graph.
	Edges int
	// Init is the number of edges labelled with the first transition.
	Init int
	// MaxDegree is the largest out-degree seen by a live window, at least 1.
	MaxDegree int
	// AvgDegree is the mean out-degree over vertices with outgoing edges.
	AvgDegree float64
}

// InitPaths returns the sum over i < Init of (Edges - i), the number of
// candidate paths started by initial edges.
func (in CostInputs) InitPaths() float64 {
	e, n := float64(in.Edges), float64(in.Init)
	return n*e - n*(n-1)/2
}

// CostFunc maps a snapshot to a scalar cost.
type CostFunc func(in CostInputs) float64

var costFuncs = map[string]CostFunc{
	CostInitOverMaxDegree: func(in CostInputs) float64 { return in.InitPaths() / float64(max(in.MaxDegree, 1)) },
	CostAvgDegree:         func(in CostInputs) float64 { return in.AvgDegree },
	CostInitPaths:         func(in CostInputs) float64 { return in.InitPaths() },
	CostMaxDegree:         func(in CostInputs) float64 { return float64(in.MaxDegree) },
	CostInitTimesEdges:    func(in CostInputs) float64 { return float64(in.Init) * float64(in.Edges) },
}

// CostByName returns the named cost function. The empty name selects
// n_over_max_degree.
func CostByName(name string) (CostFunc, error) {
	if name == "" {
		name = CostInitOverMaxDegree
	}
	fn, ok := costFuncs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %v)", ErrUnknownCost, name, CostNames())
	}
	return fn, nil
}

// CostNames lists the recognised cost function names.
func CostNames() []string {
	return slices.Sorted(maps.Keys(costFuncs))
}

func snapshot(g *graph.Graph, c *window.Controller) CostInputs {
	return CostInputs{
		Edges:     g.EdgeCount(),
		Init:      g.InitCount(),
		MaxDegree: c.MaxLiveDegree(),
		AvgDegree: g.Mean(),
	}
}
