package trend

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/grade-analytics/internal/domain/score"
	"github.com/alem-hub/grade-analytics/internal/domain/shared"
	"github.com/alem-hub/grade-analytics/pkg/timeutil"
)

func linearSeries(n int) []Point {
	out := make([]Point, n)
	for i := range out {
		out[i] = Point{Time: timeutil.Date(2024, 1, 1+7*i), Value: 10 + 2*float64(i)}
	}
	return out
}

func TestBuildSeries_GroupsByExamDate(t *testing.T) {
	d1 := timeutil.Date(2024, 3, 1)
	d2 := timeutil.Date(2024, 2, 1)
	recs := []score.Record{
		{StudentID: "a", ExamDate: d1, Score: 80},
		{StudentID: "b", ExamDate: d1.Add(5 * time.Hour), Score: 60},
		{StudentID: "a", ExamDate: d2, Score: 90},
		{StudentID: "c", Score: 10}, // no date
	}

	series, err := BuildSeries(recs, score.FieldScore, "")
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.True(t, series[0].Time.Equal(d2))
	assert.Equal(t, 90.0, series[0].Value)
	assert.Equal(t, 70.0, series[1].Value)
	assert.Equal(t, 2, series[1].Count)

	series, err = BuildSeries(recs, score.FieldScore, AggregationMax)
	require.NoError(t, err)
	assert.Equal(t, 80.0, series[1].Value)

	_, err = BuildSeries(recs, score.FieldSubject, AggregationAvg)
	assert.True(t, shared.IsValidation(err))
	_, err = BuildSeries(recs, score.FieldScore, "median")
	assert.True(t, shared.IsValidation(err))
}

func TestSmooth_KeepsFullWindowsOnly(t *testing.T) {
	series := []Point{{Value: 1}, {Value: 2}, {Value: 3}, {Value: 4}, {Value: 5}}

	got := Smooth(series, 3)
	assert.Equal(t, []float64{2, 3, 4}, Values(got))

	assert.Equal(t, Values(series), Values(Smooth(series, 1)))
	assert.Equal(t, Values(series), Values(Smooth(series, 6)))

	copied := Smooth(series, 0)
	copied[0].Value = 99
	assert.Equal(t, 1.0, series[0].Value)
}

func TestAnalyze(t *testing.T) {
	a, err := Analyze(linearSeries(5)) // 10 → 18
	require.NoError(t, err)
	assert.Equal(t, DirectionIncreasing, a.Direction)
	assert.InDelta(t, 80.0, a.ChangeRate, 1e-9)
	assert.InDelta(t, 14.0, a.Mean, 1e-9)
	// population sd of 10,12,14,16,18 = sqrt(8)
	assert.InDelta(t, 2.8284271/14, a.Volatility, 1e-6)

	a, err = Analyze([]Point{{Value: 100}, {Value: 104}})
	require.NoError(t, err)
	assert.Equal(t, DirectionStable, a.Direction)

	a, err = Analyze([]Point{{Value: 100}, {Value: 90}})
	require.NoError(t, err)
	assert.Equal(t, DirectionDecreasing, a.Direction)

	a, err = Analyze([]Point{{Value: 0}, {Value: 0}})
	require.NoError(t, err)
	assert.Equal(t, 0.0, a.ChangeRate)
	assert.Equal(t, 0.0, a.Volatility)

	_, err = Analyze(nil)
	assert.True(t, shared.IsDataInsufficiency(err))
}

func TestForecast_LinearAndExponential(t *testing.T) {
	series := linearSeries(4) // 10 12 14 16, weekly

	for _, m := range []Method{MethodLinear, MethodExponential} {
		fc, err := Forecast(series, 3, m)
		require.NoError(t, err, m)
		require.Len(t, fc, 3)
		assert.InDelta(t, 18.0, fc[0].Value, 1e-9, m)
		assert.InDelta(t, 22.0, fc[2].Value, 1e-9, m)
		assert.InDelta(t, 0.1, fc[0].Uncertainty, 1e-12)
		assert.InDelta(t, 0.3, fc[2].Uncertainty, 1e-12)
		assert.True(t, fc[0].Time.Equal(timeutil.Date(2024, 1, 29)))
		assert.Equal(t, 3, fc[2].Horizon)
	}
}

func TestForecast_DefaultStepAndErrors(t *testing.T) {
	series := []Point{{Value: 1}, {Value: 2}}
	fc, err := Forecast(series, 1, "")
	require.NoError(t, err)
	assert.Equal(t, DefaultStep, fc[0].Time.Sub(series[1].Time))

	_, err = Forecast(series, 0, MethodLinear)
	assert.True(t, shared.IsValidation(err))
	_, err = Forecast(series, 1, "arima")
	assert.True(t, shared.IsValidation(err))
	_, err = Forecast(series[:1], 1, MethodLinear)
	assert.True(t, shared.IsDataInsufficiency(err))
}

func TestHolt_TracksLinearInput(t *testing.T) {
	level, slope := Holt([]float64{5, 8, 11, 14}, 0.5, 0.3)
	assert.InDelta(t, 14.0, level, 1e-9)
	assert.InDelta(t, 3.0, slope, 1e-9)

	level, slope = Holt([]float64{7}, 0.5, 0.3)
	assert.Equal(t, 7.0, level)
	assert.Equal(t, 0.0, slope)
}

func TestFitHolt_Residuals(t *testing.T) {
	m := FitHolt([]float64{5, 8, 11, 15}, 0.5, 0.3)
	require.Len(t, m.Residuals, 3)
	assert.InDelta(t, 0.0, m.Residuals[0], 1e-12)
	assert.InDelta(t, 0.0, m.Residuals[1], 1e-12)
	assert.InDelta(t, 1.0, m.Residuals[2], 1e-12)
	assert.InDelta(t, m.Level+1.5*m.Slope, m.At(1.5), 1e-12)
}
