package prediction

import (
	"math"
	"time"

	"github.com/alem-hub/grade-analytics/internal/domain/score"
	"github.com/alem-hub/grade-analytics/internal/domain/shared"
	"github.com/alem-hub/grade-analytics/internal/domain/trend"
	"github.com/alem-hub/grade-analytics/pkg/timeutil"
)

// HoldOutFraction is the trailing share of series points used for
// validation; at least one point is always held out.
const HoldOutFraction = 0.2

// MinSeriesPoints is the shortest series a time_series model is fitted on.
const MinSeriesPoints = 3

func (p *Predictor) timeSeries(records []score.Record, req Request) (*Result, error) {
	const op = "Predict"

	scoped := records
	if req.Target.Subject != "" {
		scoped = make([]score.Record, 0, len(records))
		for _, r := range records {
			if r.Subject == req.Target.Subject {
				scoped = append(scoped, r)
			}
		}
	}
	series, err := trend.BuildSeries(scoped, req.Target.ValueField(), trend.AggregationAvg)
	if err != nil {
		return nil, err
	}
	n := len(series)
	if n < MinSeriesPoints {
		return nil, shared.NewInsufficientDataError(domainName, op, n, MinSeriesPoints)
	}

	holdOut := int(math.Floor(float64(n) * HoldOutFraction))
	if holdOut < 1 {
		holdOut = 1
	}
	values := trend.Values(series)
	train, test := values[:n-holdOut], values[n-holdOut:]

	valModel := trend.FitHolt(train, trend.DefaultLevelSmoothing, trend.DefaultTrendSmoothing)
	estimates := make([]float64, len(test))
	for h := range test {
		estimates[h] = valModel.At(float64(h + 1))
	}

	model := trend.FitHolt(values, trend.DefaultLevelSmoothing, trend.DefaultTrendSmoothing)
	sigma := rootMeanSquare(model.Residuals)

	times := make([]time.Time, n)
	for i, pt := range series {
		times[i] = pt.Time
	}
	step := timeutil.MeanSpacing(times, trend.DefaultStep)
	last := times[n-1]

	points := req.TimePoints
	if len(points) == 0 {
		points = []time.Time{last.Add(step)}
	}

	z := tQuantile(0)
	res := &Result{
		Validation:  Evaluate(estimates, test),
		Predictions: make([]Prediction, 0, len(points)),
		Model: ModelInfo{
			Type:             ModelTimeSeries,
			TrainingSamples:  n,
			Level:            model.Level,
			Slope:            model.Slope,
			LevelSmoothing:   trend.DefaultLevelSmoothing,
			TrendSmoothing:   trend.DefaultTrendSmoothing,
			ResidualStdError: sigma,
		},
	}
	for _, at := range points {
		h := float64(at.Sub(last)) / float64(step)
		v := model.At(h)
		at := at
		res.Predictions = append(res.Predictions, Prediction{
			Time:       &at,
			Value:      v,
			Confidence: ConfidenceLevel,
			Interval:   interval(v, z*sigma*math.Sqrt(math.Max(h, 1))),
		})
	}
	return res, nil
}

func rootMeanSquare(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var s float64
	for _, v := range values {
		s += v * v
	}
	return math.Sqrt(s / float64(len(values)))
}
