package adaptive

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Statistics holds the running accumulators of the cost-feedback loop. One
// value is owned by each pipeline.
type Statistics struct {
	CostMin, CostMax       float64
	LatencyMin, LatencyMax float64

	// Cost is the last raw cost, Normalized the last smoothed normalized
	// cost and Diff its change since the previous evaluation.
	Cost       float64
	Normalized float64
	Diff       float64
	LastDiff   float64

	// Warmup counts evaluations requested so far, including those skipped
	// during warm-up.
	Warmup int

	Edges           int64
	Shed            int64
	cumulativeSize  float64
	processing      time.Duration
	ShedProbability float64

	buffer    []float64
	bufferCap int
}

// NewStatistics returns empty statistics whose smoothing buffer keeps the
// last buffer samples.
func NewStatistics(buffer int) *Statistics {
	return &Statistics{
		CostMin:    math.Inf(1),
		CostMax:    math.Inf(-1),
		LatencyMin: math.Inf(1),
		LatencyMax: math.Inf(-1),
		bufferCap:  max(buffer, 1),
	}
}

// ObserveEdge records one admitted edge processed under the given window
// size in d.
func (s *Statistics) ObserveEdge(size int64, d time.Duration) {
	s.Edges++
	s.cumulativeSize += float64(size)
	s.processing += d
}

// AvgSize returns the mean window size over admitted edges.
func (s *Statistics) AvgSize() float64 {
	if s.Edges == 0 {
		return 0
	}
	return s.cumulativeSize / float64(s.Edges)
}

// AvgProcessing returns the mean time spent on an admitted edge.
func (s *Statistics) AvgProcessing() time.Duration {
	if s.Edges == 0 {
		return 0
	}
	return s.processing / time.Duration(s.Edges)
}

// ObserveLatency folds a window latency into the running bounds and returns
// it normalized into [0,1].
func (s *Statistics) ObserveLatency(d time.Duration) float64 {
	lat := d.Seconds()
	s.LatencyMin = math.Min(s.LatencyMin, lat)
	s.LatencyMax = math.Max(s.LatencyMax, lat)
	return normalize(lat, s.LatencyMin, s.LatencyMax)
}

// Normalize folds cost into the running bounds and returns it normalized,
// without smoothing.
func (s *Statistics) Normalize(cost float64) float64 {
	s.Cost = cost
	s.CostMin = math.Min(s.CostMin, cost)
	s.CostMax = math.Max(s.CostMax, cost)
	return normalize(cost, s.CostMin, s.CostMax)
}

// Update normalizes cost, pushes it into the smoothing buffer and returns
// the smoothed value and its change since the previous Update.
func (s *Statistics) Update(cost float64) (norm, diff float64) {
	n := s.Normalize(cost)
	s.buffer = append(s.buffer, n)
	if len(s.buffer) > s.bufferCap {
		s.buffer = s.buffer[1:]
	}
	norm = stat.Mean(s.buffer, nil)

	diff = norm - s.Normalized
	if math.IsNaN(diff) {
		diff = 0
	}
	s.LastDiff = s.Diff
	s.Normalized = norm
	s.Diff = diff
	return norm, diff
}

// normalize maps x into [0,1] against [lo,hi]; a degenerate range maps to 0.
func normalize(x, lo, hi float64) float64 {
	if hi <= lo {
		return 0
	}
	v := (x - lo) / (hi - lo)
	if math.IsNaN(v) {
		return 0
	}
	return v
}
