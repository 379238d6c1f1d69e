package shared

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPercentile_LinearInterpolation(t *testing.T) {
	values := []float64{40, 10, 30, 20}

	p0, ok := Percentile(values, 0)
	assert.True(t, ok)
	assert.Equal(t, 10.0, p0)

	p100, _ := Percentile(values, 100)
	assert.Equal(t, 40.0, p100)

	// index = 0.5 * 3 = 1.5 -> halfway between 20 and 30
	p50, _ := Percentile(values, 50)
	assert.InDelta(t, 25.0, p50, 1e-9)

	// index = 0.25 * 3 = 0.75 -> 10 + 0.75*10
	p25, _ := Percentile(values, 25)
	assert.InDelta(t, 17.5, p25, 1e-9)

	// input left untouched
	assert.Equal(t, []float64{40, 10, 30, 20}, values)
}

func TestPercentile_InvalidInput(t *testing.T) {
	_, ok := Percentile(nil, 50)
	assert.False(t, ok)

	_, ok = Percentile([]float64{1}, 101)
	assert.False(t, ok)

	_, ok = Percentile([]float64{1}, -1)
	assert.False(t, ok)

	single, ok := Percentile([]float64{7}, 90)
	assert.True(t, ok)
	assert.Equal(t, 7.0, single)
}
