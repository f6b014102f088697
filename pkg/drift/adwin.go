// Package drift detects distribution changes in a stream of samples.
//
// The pipeline only relies on the Detector interface; ADWIN is the detector
// used by the drift-triggered window policy.
package drift

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Detector consumes one sample at a time and reports when the distribution
// of recent samples has changed.
type Detector interface {
	// Update adds a sample and reports whether a change was detected.
	Update(sample float64) bool
	// Length returns the number of samples in the current window.
	Length() int
	// Estimate returns the mean of the current window.
	Estimate() float64
}

// Options configures ADWIN.
type Options struct {
	// Delta is the confidence parameter of the cut test.
	Delta float64
	// MaxWindow caps the number of samples kept.
	MaxWindow int
	// MinSubWindow is the smallest sub-window either side of a cut.
	MinSubWindow int
	// Clock runs the cut test every Clock updates.
	Clock int
}

// DefaultOptions returns the usual ADWIN parameters.
func DefaultOptions() Options {
	return Options{
		Delta:        0.002,
		MaxWindow:    4096,
		MinSubWindow: 5,
		Clock:        32,
	}
}

// ADWIN is an adaptive sliding window: it keeps the longest suffix of the
// stream whose two halves, at every split point, have statistically
// indistinguishable means, dropping the older part when they do not.
type ADWIN struct {
	opts    Options
	window  []float64
	ticks   int
	changes int
}

var _ Detector = (*ADWIN)(nil)

// NewADWIN returns an empty detector. Zero fields of opts fall back to
// DefaultOptions.
func NewADWIN(opts Options) *ADWIN {
	def := DefaultOptions()
	if opts.Delta <= 0 || opts.Delta >= 1 {
		opts.Delta = def.Delta
	}
	if opts.MaxWindow <= 0 {
		opts.MaxWindow = def.MaxWindow
	}
	if opts.MinSubWindow <= 0 {
		opts.MinSubWindow = def.MinSubWindow
	}
	if opts.Clock <= 0 {
		opts.Clock = def.Clock
	}
	return &ADWIN{opts: opts}
}

// Update adds sample and runs the cut test on clock ticks.
func (a *ADWIN) Update(sample float64) bool {
	if math.IsNaN(sample) || math.IsInf(sample, 0) {
		return false
	}
	a.window = append(a.window, sample)
	if over := len(a.window) - a.opts.MaxWindow; over > 0 {
		a.window = a.window[over:]
	}

	a.ticks++
	if a.ticks%a.opts.Clock != 0 {
		return false
	}

	detected := false
	for a.cut() {
		detected = true
	}
	if detected {
		a.changes++
	}
	return detected
}

// Length returns the current window length.
func (a *ADWIN) Length() int { return len(a.window) }

// Estimate returns the mean of the current window.
func (a *ADWIN) Estimate() float64 {
	if len(a.window) == 0 {
		return 0
	}
	return stat.Mean(a.window, nil)
}

// Changes returns how many changes have been detected so far.
func (a *ADWIN) Changes() int { return a.changes }

// cut looks for a split point where the two sub-windows differ by more than
// the Hoeffding-style bound and drops the older part. It reports whether a
// cut was made.
func (a *ADWIN) cut() bool {
	n := len(a.window)
	minSub := a.opts.MinSubWindow
	if n < 2*minSub {
		return false
	}

	_, variance := stat.PopMeanVariance(a.window, nil)
	deltaPrime := a.opts.Delta / float64(n)
	logTerm := math.Log(2 / deltaPrime)

	total := 0.0
	for _, x := range a.window {
		total += x
	}

	head := 0.0
	for i := 1; i < n; i++ {
		head += a.window[i-1]
		n0, n1 := float64(i), float64(n-i)
		if i < minSub || n-i < minSub {
			continue
		}
		mean0 := head / n0
		mean1 := (total - head) / n1

		m := 1 / (1/n0 + 1/n1)
		eps := math.Sqrt(2/m*variance*logTerm) + 2/(3*m)*logTerm
		if math.Abs(mean0-mean1) > eps {
			a.window = append(a.window[:0:0], a.window[i:]...)
			return true
		}
	}
	return false
}
