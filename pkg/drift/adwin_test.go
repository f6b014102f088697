package drift

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestADWIN_StableStream(t *testing.T) {
	a := NewADWIN(Options{})
	for range 2000 {
		assert.False(t, a.Update(0.3))
	}
	assert.Equal(t, 2000, a.Length())
	assert.InDelta(t, 0.3, a.Estimate(), 1e-9)
	assert.Zero(t, a.Changes())
}

func TestADWIN_DetectsShift(t *testing.T) {
	a := NewADWIN(DefaultOptions())
	detected := 0
	for range 500 {
		if a.Update(0) {
			detected++
		}
	}
	assert.Zero(t, detected)

	for range 300 {
		if a.Update(1) {
			detected++
		}
	}
	assert.Positive(t, detected)
	assert.Less(t, a.Length(), 800, "older samples dropped")
	assert.Greater(t, a.Estimate(), 0.5)
}

func TestADWIN_MaxWindowAndBadSamples(t *testing.T) {
	a := NewADWIN(Options{MaxWindow: 100})
	for i := range 250 {
		a.Update(float64(i % 2))
	}
	assert.Equal(t, 100, a.Length())

	assert.False(t, a.Update(math.NaN()))
	assert.False(t, a.Update(math.Inf(1)))
	assert.Equal(t, 100, a.Length())
	assert.Zero(t, NewADWIN(Options{}).Estimate())
}
