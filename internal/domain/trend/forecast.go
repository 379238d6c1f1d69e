package trend

import (
	"time"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"

	"github.com/alem-hub/grade-analytics/internal/domain/shared"
	"github.com/alem-hub/grade-analytics/pkg/timeutil"
)

// ChangeThreshold is the change rate, in percent, separating a stable
// series from an increasing or decreasing one.
const ChangeThreshold = 5.0

// UncertaintyStep is the uncertainty added per forecast period.
const UncertaintyStep = 0.1

// DefaultStep is the forecast spacing when the series has no usable spacing.
const DefaultStep = 30 * 24 * time.Hour

// Holt smoothing factors.
const (
	DefaultLevelSmoothing = 0.5
	DefaultTrendSmoothing = 0.3
)

// Direction of a series.
type Direction string

const (
	DirectionIncreasing Direction = "increasing"
	DirectionDecreasing Direction = "decreasing"
	DirectionStable     Direction = "stable"
)

// Method selects the forecasting model.
type Method string

const (
	// MethodLinear projects a least-squares line of value against index.
	MethodLinear Method = "linear"

	// MethodExponential projects Holt's double exponential smoothing.
	MethodExponential Method = "exponential"
)

// IsValid checks if the method is known.
func (m Method) IsValid() bool {
	return m == MethodLinear || m == MethodExponential
}

// Analysis describes the overall movement of a series.
type Analysis struct {
	Direction  Direction `json:"direction"`
	ChangeRate float64   `json:"change_rate"`
	Volatility float64   `json:"volatility"`
	Mean       float64   `json:"mean"`
	Points     int       `json:"points"`
}

// ForecastPoint is one projected value. Uncertainty grows linearly with
// Horizon.
type ForecastPoint struct {
	Time        time.Time `json:"timestamp"`
	Value       float64   `json:"value"`
	Uncertainty float64   `json:"uncertainty"`
	Horizon     int       `json:"horizon"`
}

// Analyze computes the change rate (last-first)/first*100, the direction
// and the volatility (population stddev over mean). A first value of 0
// gives a change rate of 0; a mean of 0 gives a volatility of 0.
func Analyze(series []Point) (Analysis, error) {
	const op = "Analyze"

	if len(series) == 0 {
		return Analysis{}, shared.NewInsufficientDataError(domainName, op, 0, 1)
	}
	values := Values(series)

	mean, err := stats.Mean(values)
	if err != nil {
		return Analysis{}, shared.WrapError(domainName, op, shared.ErrComputation, "mean", err)
	}
	sd, err := stats.StandardDeviationPopulation(values)
	if err != nil {
		return Analysis{}, shared.WrapError(domainName, op, shared.ErrComputation, "standard deviation", err)
	}

	a := Analysis{Direction: DirectionStable, Mean: mean, Points: len(values)}
	if first := values[0]; first != 0 {
		a.ChangeRate = (values[len(values)-1] - first) / first * 100
	}
	switch {
	case a.ChangeRate > ChangeThreshold:
		a.Direction = DirectionIncreasing
	case a.ChangeRate < -ChangeThreshold:
		a.Direction = DirectionDecreasing
	}
	if mean != 0 {
		a.Volatility = sd / mean
	}
	return a, nil
}

// Forecast projects periods points past the end of series. Timestamps
// continue at the mean spacing of the input.
func Forecast(series []Point, periods int, method Method) ([]ForecastPoint, error) {
	const op = "Forecast"

	if method == "" {
		method = MethodLinear
	}
	if !method.IsValid() {
		return nil, shared.NewValidationError(domainName, op, "unknown forecast method %q", method)
	}
	if periods < 1 {
		return nil, shared.NewValidationError(domainName, op, "periods must be positive, got %d", periods)
	}
	if len(series) < 2 {
		return nil, shared.NewInsufficientDataError(domainName, op, len(series), 2)
	}

	values := Values(series)
	var project func(h int) float64
	switch method {
	case MethodExponential:
		level, slope := Holt(values, DefaultLevelSmoothing, DefaultTrendSmoothing)
		project = func(h int) float64 { return level + float64(h)*slope }
	default:
		intercept, slope := LinearFit(values)
		last := float64(len(values) - 1)
		project = func(h int) float64 { return intercept + slope*(last+float64(h)) }
	}

	step := timeutil.MeanSpacing(times(series), DefaultStep)
	end := series[len(series)-1].Time
	out := make([]ForecastPoint, periods)
	for i := 1; i <= periods; i++ {
		out[i-1] = ForecastPoint{
			Time:        end.Add(time.Duration(i) * step),
			Value:       project(i),
			Uncertainty: UncertaintyStep * float64(i),
			Horizon:     i,
		}
	}
	return out, nil
}

// LinearFit returns the least-squares intercept and slope of values
// against their index.
func LinearFit(values []float64) (intercept, slope float64) {
	x := make([]float64, len(values))
	for i := range x {
		x[i] = float64(i)
	}
	return stat.LinearRegression(x, values, nil, false)
}

// HoltModel is a fitted double exponential smoothing model.
type HoltModel struct {
	Level float64
	Slope float64

	// Residuals are the one-step-ahead errors from the second point on.
	Residuals []float64
}

// At projects the model h periods past the last fitted point. h may be
// fractional.
func (m HoltModel) At(h float64) float64 {
	return m.Level + h*m.Slope
}

// FitHolt runs double exponential smoothing over values. The level starts
// at the first value and the trend at the first difference.
func FitHolt(values []float64, alpha, beta float64) HoltModel {
	var m HoltModel
	if len(values) == 0 {
		return m
	}
	m.Level = values[0]
	if len(values) > 1 {
		m.Slope = values[1] - values[0]
	}
	m.Residuals = make([]float64, 0, len(values)-1)
	for _, v := range values[1:] {
		m.Residuals = append(m.Residuals, v-(m.Level+m.Slope))
		prev := m.Level
		m.Level = alpha*v + (1-alpha)*(m.Level+m.Slope)
		m.Slope = beta*(m.Level-prev) + (1-beta)*m.Slope
	}
	return m
}

// Holt returns the final level and trend of FitHolt.
func Holt(values []float64, alpha, beta float64) (level, slope float64) {
	m := FitHolt(values, alpha, beta)
	return m.Level, m.Slope
}
