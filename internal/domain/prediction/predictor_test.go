package prediction

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/grade-analytics/internal/domain/correlation"
	"github.com/alem-hub/grade-analytics/internal/domain/score"
	"github.com/alem-hub/grade-analytics/internal/domain/shared"
	"github.com/alem-hub/grade-analytics/pkg/timeutil"
)

// students builds math and physics scores where physics = 10 + 0.5*math
// plus noise(i).
func students(n int, noise func(i int) float64) []score.Record {
	out := make([]score.Record, 0, 2*n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("s%02d", i)
		m := 40 + 2*float64(i)
		out = append(out,
			score.Record{StudentID: id, Subject: "math", Score: m},
			score.Record{StudentID: id, Subject: "physics", Score: 10 + 0.5*m + noise(i)},
		)
	}
	return out
}

func linearRequest() Request {
	return Request{
		Model:    ModelLinearRegression,
		Target:   correlation.VariableRef{Name: "physics", Subject: "physics"},
		Features: []correlation.VariableRef{{Name: "math", Subject: "math"}},
	}
}

func TestLinear_RecoversExactRelation(t *testing.T) {
	req := linearRequest()
	req.Students = []string{"s03", "ghost"}

	res, err := NewPredictor(Options{}).Predict(students(20, func(int) float64 { return 0 }), req)
	require.NoError(t, err)

	assert.Equal(t, ModelLinearRegression, res.Model.Type)
	assert.Equal(t, 16, res.Model.TrainingSamples)
	assert.InDelta(t, 10.0, res.Model.Intercept, 1e-9)
	assert.InDelta(t, 0.5, res.Model.Coefficients["math"], 1e-9)
	assert.InDelta(t, 1.0, res.Model.FeatureImportance["math"], 1e-9)
	assert.InDelta(t, 1.0, res.Model.Correlations["math"], 1e-9)

	assert.Equal(t, 4, res.Validation.Samples)
	assert.InDelta(t, 0.0, res.Validation.RMSE, 1e-9)
	assert.InDelta(t, 1.0, res.Validation.R2, 1e-9)

	require.Len(t, res.Predictions, 1)
	p := res.Predictions[0]
	assert.Equal(t, "s03", p.StudentID)
	assert.InDelta(t, 33.0, p.Value, 1e-9)
	assert.Equal(t, ConfidenceLevel, p.Confidence)
	assert.Equal(t, []string{"ghost"}, res.Skipped)
}

func TestLinear_NoisyDataHasIntervals(t *testing.T) {
	recs := students(25, func(i int) float64 { return float64(i%3) - 1 })

	res, err := NewPredictor(Options{}).Predict(recs, linearRequest())
	require.NoError(t, err)
	require.Len(t, res.Predictions, 25)
	assert.Greater(t, res.Model.ResidualStdError, 0.0)
	for _, p := range res.Predictions {
		assert.Less(t, p.Interval.Lower, p.Value)
		assert.Greater(t, p.Interval.Upper, p.Value)
		assert.InDelta(t, p.Value-p.Interval.Lower, p.Interval.Upper-p.Value, 1e-9)
	}
	assert.Greater(t, res.Validation.RMSE, 0.0)
	assert.Greater(t, res.Validation.R2, 0.9)
}

func TestLinear_SingularDesignIsComputationError(t *testing.T) {
	req := linearRequest()
	req.Features = append(req.Features, correlation.VariableRef{Name: "math_again", Subject: "math"})

	_, err := NewPredictor(Options{}).Predict(students(20, func(int) float64 { return 0 }), req)
	assert.True(t, shared.IsComputation(err), "got %v", err)
}

func TestPredict_InsufficientData(t *testing.T) {
	p := NewPredictor(Options{})

	_, err := p.Predict(students(4, func(int) float64 { return 0 }), linearRequest())
	assert.True(t, shared.IsDataInsufficiency(err), "8 records")

	// 12 records but only 4 joined students leaves nothing to hold out
	recs := students(4, func(int) float64 { return 0 })
	for i := 0; i < 4; i++ {
		recs = append(recs, score.Record{StudentID: fmt.Sprintf("s%02d", i), Subject: "art", Score: 70})
	}
	_, err = p.Predict(recs, linearRequest())
	assert.True(t, shared.IsDataInsufficiency(err), "4 students")
}

func TestPredict_Validation(t *testing.T) {
	p := NewPredictor(Options{})
	recs := students(20, func(int) float64 { return 0 })

	req := linearRequest()
	req.Model = "neural_net"
	_, err := p.Predict(recs, req)
	assert.True(t, shared.IsValidation(err))

	req = linearRequest()
	req.Features = nil
	_, err = p.Predict(recs, req)
	assert.True(t, shared.IsValidation(err))

	req = linearRequest()
	req.Target.Field = score.FieldSubject
	_, err = p.Predict(recs, req)
	assert.True(t, shared.IsValidation(err))

	req = linearRequest()
	req.Features[0].Name = "physics"
	_, err = p.Predict(recs, req)
	assert.True(t, shared.IsValidation(err))
}

// weekly exams whose math average is 60 + 3i; art records are noise.
func examSeries(weeks int) []score.Record {
	var out []score.Record
	for i := 0; i < weeks; i++ {
		d := timeutil.Date(2024, 3, 4+7*i)
		avg := 60 + 3*float64(i)
		out = append(out,
			score.Record{StudentID: "a", Subject: "math", ExamDate: d, Score: avg - 1},
			score.Record{StudentID: "b", Subject: "math", ExamDate: d, Score: avg + 1},
			score.Record{StudentID: "a", Subject: "art", ExamDate: d, Score: 5},
		)
	}
	return out
}

func TestTimeSeries_ProjectsTrend(t *testing.T) {
	recs := examSeries(6)
	last := timeutil.Date(2024, 4, 8)

	req := Request{
		Model:      ModelTimeSeries,
		Target:     correlation.VariableRef{Name: "math", Subject: "math"},
		TimePoints: []time.Time{last.Add(14 * 24 * time.Hour)},
	}
	res, err := NewPredictor(Options{}).Predict(recs, req)
	require.NoError(t, err)

	assert.Equal(t, ModelTimeSeries, res.Model.Type)
	assert.Equal(t, 1, res.Validation.Samples)
	assert.InDelta(t, 0.0, res.Validation.RMSE, 1e-9)
	assert.InDelta(t, 75.0, res.Model.Level, 1e-9)
	assert.InDelta(t, 3.0, res.Model.Slope, 1e-9)

	require.Len(t, res.Predictions, 1)
	p := res.Predictions[0]
	require.NotNil(t, p.Time)
	assert.InDelta(t, 81.0, p.Value, 1e-9)
	assert.InDelta(t, 0.0, p.Interval.Upper-p.Interval.Lower, 1e-9)

	req.TimePoints = nil
	res, err = NewPredictor(Options{}).Predict(recs, req)
	require.NoError(t, err)
	require.Len(t, res.Predictions, 1)
	assert.InDelta(t, 78.0, res.Predictions[0].Value, 1e-9)
	assert.True(t, res.Predictions[0].Time.Equal(last.Add(7*24*time.Hour)))
}

func TestTimeSeries_TooFewPoints(t *testing.T) {
	recs := examSeries(2)
	recs = append(recs, examSeries(2)...) // 12 records over 2 dates
	_, err := NewPredictor(Options{}).Predict(recs, Request{
		Model:  ModelTimeSeries,
		Target: correlation.VariableRef{Name: "math", Subject: "math"},
	})
	assert.True(t, shared.IsDataInsufficiency(err))
}

func TestEvaluate(t *testing.T) {
	v := Evaluate([]float64{1, 2, 3}, []float64{1, 2, 4})
	assert.Equal(t, 3, v.Samples)
	assert.InDelta(t, math.Sqrt(1.0/3), v.RMSE, 1e-12)
	assert.InDelta(t, 1.0/3, v.MAE, 1e-12)
	assert.InDelta(t, 1-1/(42.0/9), v.R2, 1e-12)

	// constant actuals: R² is reported as 0
	assert.Equal(t, 0.0, Evaluate([]float64{1}, []float64{2}).R2)
	assert.Equal(t, Validation{}, Evaluate(nil, nil))
}
