package prediction

import (
	"math"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/mat"

	"github.com/alem-hub/grade-analytics/internal/domain/correlation"
	"github.com/alem-hub/grade-analytics/internal/domain/score"
	"github.com/alem-hub/grade-analytics/internal/domain/shared"
)

// HoldOutEvery puts every n-th student, by sorted id, in the validation set.
const HoldOutEvery = 5

// MaxCondition is the design matrix condition number above which it is
// treated as singular.
const MaxCondition = 1e10

type olsFit struct {
	coef []float64 // intercept first
	rse  float64
	df   float64
}

func (f olsFit) predict(x []float64) float64 {
	y := f.coef[0]
	for j, v := range x {
		y += f.coef[j+1] * v
	}
	return y
}

func (p *Predictor) linear(records []score.Record, req Request) (*Result, error) {
	const op = "Predict"

	if len(req.Features) == 0 {
		return nil, shared.NewValidationError(domainName, op, "linear_regression needs at least one feature")
	}
	vars := append([]correlation.VariableRef{req.Target}, req.Features...)
	seen := make(map[string]bool, len(vars))
	for _, v := range vars {
		if v.Name == "" {
			return nil, shared.NewValidationError(domainName, op, "variable name must not be empty")
		}
		if seen[v.Name] {
			return nil, shared.NewValidationError(domainName, op, "duplicate variable name %q", v.Name)
		}
		seen[v.Name] = true
		if !v.ValueField().IsNumeric() {
			return nil, shared.NewValidationError(domainName, op, "variable %q: field %q is not numeric", v.Name, v.Field)
		}
	}

	ids, vectors, _ := correlation.JoinVariables(records, vars)
	k := len(req.Features)
	y, xs := vectors[0], vectors[1:]

	// every held-out row leaves the training set, which needs k+2 rows to
	// leave a residual degree of freedom
	var trainIdx, testIdx []int
	for i := range ids {
		if i%HoldOutEvery == HoldOutEvery-1 {
			testIdx = append(testIdx, i)
		} else {
			trainIdx = append(trainIdx, i)
		}
	}
	if len(testIdx) == 0 || len(trainIdx) < k+2 {
		need := HoldOutEvery
		for need-need/HoldOutEvery < k+2 {
			need++
		}
		return nil, shared.NewInsufficientDataError(domainName, op, len(ids), need)
	}

	row := func(i int) []float64 {
		x := make([]float64, k)
		for j := range xs {
			x[j] = xs[j][i]
		}
		return x
	}

	fit, err := fitOLS(trainIdx, row, y)
	if err != nil {
		return nil, err
	}

	estimates := make([]float64, len(testIdx))
	actual := make([]float64, len(testIdx))
	for n, i := range testIdx {
		estimates[n] = fit.predict(row(i))
		actual[n] = y[i]
	}

	res := &Result{
		Validation: Evaluate(estimates, actual),
		Model:      linearInfo(req, fit, trainIdx, xs, y),
	}

	half := tQuantile(fit.df) * fit.rse
	index := make(map[string]int, len(ids))
	for i, id := range ids {
		index[id] = i
	}
	targets := req.Students
	if len(targets) == 0 {
		targets = ids
	}
	res.Predictions = make([]Prediction, 0, len(targets))
	for _, id := range targets {
		i, ok := index[id]
		if !ok {
			res.Skipped = append(res.Skipped, id)
			continue
		}
		v := fit.predict(row(i))
		res.Predictions = append(res.Predictions, Prediction{
			StudentID:  id,
			Value:      v,
			Confidence: ConfidenceLevel,
			Interval:   interval(v, half),
		})
	}
	return res, nil
}

// fitOLS solves the least-squares problem on the training rows by QR.
func fitOLS(trainIdx []int, row func(int) []float64, y []float64) (olsFit, error) {
	const op = "Predict"

	n := len(trainIdx)
	cols := len(row(trainIdx[0])) + 1
	X := mat.NewDense(n, cols, nil)
	Y := mat.NewDense(n, 1, nil)
	for r, i := range trainIdx {
		X.Set(r, 0, 1)
		for j, v := range row(i) {
			X.Set(r, j+1, v)
		}
		Y.Set(r, 0, y[i])
	}

	var qr mat.QR
	qr.Factorize(X)
	if c := qr.Cond(); math.IsNaN(c) || c > MaxCondition {
		return olsFit{}, shared.NewComputationError(domainName, op, "design matrix is singular (condition %.3g)", c)
	}
	var beta mat.Dense
	if err := qr.SolveTo(&beta, false, Y); err != nil {
		return olsFit{}, shared.WrapError(domainName, op, shared.ErrComputation, "least squares solve", err)
	}

	fit := olsFit{coef: make([]float64, cols), df: float64(n - cols)}
	for j := range fit.coef {
		fit.coef[j] = beta.At(j, 0)
	}

	var sse float64
	for _, i := range trainIdx {
		e := y[i] - fit.predict(row(i))
		sse += e * e
	}
	if fit.df > 0 {
		fit.rse = math.Sqrt(sse / fit.df)
	}
	return fit, nil
}

// linearInfo reports coefficients, |standardised coefficient| importance
// and feature-target correlation over the training rows.
func linearInfo(req Request, fit olsFit, trainIdx []int, xs [][]float64, y []float64) ModelInfo {
	info := ModelInfo{
		Type:              ModelLinearRegression,
		TrainingSamples:   len(trainIdx),
		Intercept:         fit.coef[0],
		Coefficients:      make(map[string]float64, len(xs)),
		FeatureImportance: make(map[string]float64, len(xs)),
		Correlations:      make(map[string]float64, len(xs)),
		ResidualStdError:  fit.rse,
	}

	ty := pick(y, trainIdx)
	sdY, _ := stats.StandardDeviationSample(ty)
	for j, f := range req.Features {
		tx := pick(xs[j], trainIdx)
		coef := fit.coef[j+1]
		info.Coefficients[f.Name] = coef

		sdX, _ := stats.StandardDeviationSample(tx)
		if sdY > 0 {
			info.FeatureImportance[f.Name] = math.Abs(coef * sdX / sdY)
		} else {
			info.FeatureImportance[f.Name] = 0
		}
		info.Correlations[f.Name] = correlation.Pearson(tx, ty)
	}
	return info
}

func pick(values []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for n, i := range idx {
		out[n] = values[i]
	}
	return out
}
