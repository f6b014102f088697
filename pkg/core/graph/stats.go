package graph

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/sanonone/streamrpq/pkg/core/types"
)

// welford keeps the population mean and variance of a multiset of values
// under insertion, removal and in-place replacement.
type welford struct {
	n    int
	mean float64
	m2   float64
}

func (w *welford) add(x float64) {
	w.n++
	delta := x - w.mean
	w.mean += delta / float64(w.n)
	w.m2 += delta * (x - w.mean)
}

func (w *welford) remove(x float64) {
	if w.n <= 1 {
		*w = welford{}
		return
	}
	mean := (float64(w.n)*w.mean - x) / float64(w.n-1)
	w.m2 -= (x - w.mean) * (x - mean)
	w.mean = mean
	w.n--
	if w.m2 < 0 {
		w.m2 = 0
	}
}

func (w *welford) replace(old, x float64) {
	if w.n == 0 {
		w.add(x)
		return
	}
	delta := x - old
	mean := w.mean + delta/float64(w.n)
	w.m2 += delta * (x - mean + old - w.mean)
	w.mean = mean
	if w.m2 < 0 {
		w.m2 = 0
	}
}

func (w *welford) variance() float64 {
	if w.n == 0 {
		return 0
	}
	return w.m2 / float64(w.n)
}

// Mean returns the mean out-degree over vertices with at least one outgoing
// edge.
func (g *Graph) Mean() float64 { return g.stats.mean }

// StdDev returns the population standard deviation of the out-degree.
func (g *Graph) StdDev() float64 { return math.Sqrt(g.stats.variance()) }

// ZScore returns the standardised out-degree of v, or 0 when the degree
// distribution has no spread.
func (g *Graph) ZScore(v types.Vertex) float64 {
	std := g.StdDev()
	if std == 0 {
		return 0
	}
	return stat.StdScore(float64(g.outDeg[v]), g.stats.mean, std)
}
