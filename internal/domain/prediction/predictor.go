// Package prediction fits small per-request models over score records and
// returns point predictions with intervals, validated on held-out data.
//
// Two models are supported:
//
//   - linear_regression: ordinary least squares over per-student variables.
//   - time_series: Holt smoothing over the per-exam-date series of a target.
package prediction

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/alem-hub/grade-analytics/internal/domain/correlation"
	"github.com/alem-hub/grade-analytics/internal/domain/score"
	"github.com/alem-hub/grade-analytics/internal/domain/shared"
)

const domainName = "prediction"

// MinTrainingRecords is the default minimum number of input records.
const MinTrainingRecords = 10

// ConfidenceLevel is the coverage of reported intervals.
const ConfidenceLevel = 0.95

// ══════════════════════════════════════════════════════════════════════════════
// TYPES
// ══════════════════════════════════════════════════════════════════════════════

// ModelType selects the estimator.
type ModelType string

const (
	ModelLinearRegression ModelType = "linear_regression"
	ModelTimeSeries       ModelType = "time_series"
)

// IsValid checks if the model type is known.
func (m ModelType) IsValid() bool {
	return m == ModelLinearRegression || m == ModelTimeSeries
}

// Request describes what to predict.
type Request struct {
	Model  ModelType
	Target correlation.VariableRef

	// Features are the regressors; ignored by time_series.
	Features []correlation.VariableRef

	// Students limits linear predictions; empty means every eligible student.
	Students []string

	// TimePoints are the instants to predict for time_series; empty means
	// one step past the last observation.
	TimePoints []time.Time
}

// Interval is a two-sided confidence interval.
type Interval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// Prediction is one point prediction.
type Prediction struct {
	StudentID  string     `json:"student_id,omitempty"`
	Time       *time.Time `json:"timestamp,omitempty"`
	Value      float64    `json:"value"`
	Confidence float64    `json:"confidence"`
	Interval   Interval   `json:"confidence_interval"`
}

// Validation holds hold-out accuracy metrics.
type Validation struct {
	RMSE    float64 `json:"rmse"`
	MAE     float64 `json:"mae"`
	R2      float64 `json:"r2"`
	Samples int     `json:"samples"`
}

// ModelInfo describes a fitted model.
type ModelInfo struct {
	Type            ModelType `json:"type"`
	TrainingSamples int       `json:"training_samples"`

	Intercept         float64            `json:"intercept,omitempty"`
	Coefficients      map[string]float64 `json:"coefficients,omitempty"`
	FeatureImportance map[string]float64 `json:"feature_importance,omitempty"`
	Correlations      map[string]float64 `json:"feature_target_correlation,omitempty"`

	Level          float64 `json:"level,omitempty"`
	Slope          float64 `json:"slope,omitempty"`
	LevelSmoothing float64 `json:"level_smoothing,omitempty"`
	TrendSmoothing float64 `json:"trend_smoothing,omitempty"`

	ResidualStdError float64 `json:"residual_std_error"`
}

// Result is the output of Predict.
type Result struct {
	Predictions []Prediction `json:"predictions"`
	Validation  Validation   `json:"validation"`
	Model       ModelInfo    `json:"model"`

	// Skipped lists requested students lacking the target or a feature.
	Skipped []string `json:"skipped,omitempty"`
}

// ══════════════════════════════════════════════════════════════════════════════
// PREDICTOR
// ══════════════════════════════════════════════════════════════════════════════

// Options configures a Predictor.
type Options struct {
	MinTrainingRecords int
}

// Predictor fits a model per call. Safe for concurrent use.
type Predictor struct {
	minRecords int
}

// NewPredictor creates a predictor.
func NewPredictor(opts Options) *Predictor {
	if opts.MinTrainingRecords <= 0 {
		opts.MinTrainingRecords = MinTrainingRecords
	}
	return &Predictor{minRecords: opts.MinTrainingRecords}
}

// Predict validates req, fits the selected model and predicts.
func (p *Predictor) Predict(records []score.Record, req Request) (*Result, error) {
	const op = "Predict"

	if !req.Model.IsValid() {
		return nil, shared.NewValidationError(domainName, op, "unknown model type %q", req.Model)
	}
	if req.Target.Name == "" {
		return nil, shared.NewValidationError(domainName, op, "target name must not be empty")
	}
	if !req.Target.ValueField().IsNumeric() {
		return nil, shared.NewValidationError(domainName, op, "target field %q is not numeric", req.Target.Field)
	}
	if len(records) < p.minRecords {
		return nil, shared.NewInsufficientDataError(domainName, op, len(records), p.minRecords)
	}

	if req.Model == ModelTimeSeries {
		return p.timeSeries(records, req)
	}
	return p.linear(records, req)
}

// ══════════════════════════════════════════════════════════════════════════════
// METRICS
// ══════════════════════════════════════════════════════════════════════════════

// Evaluate computes RMSE, MAE and R² of estimates against actual values.
// R² is 0 when the actual values have no variance.
func Evaluate(estimates, actual []float64) Validation {
	v := Validation{Samples: len(actual)}
	if len(actual) == 0 || len(estimates) != len(actual) {
		return v
	}
	var se, ae float64
	for i := range actual {
		e := actual[i] - estimates[i]
		se += e * e
		ae += math.Abs(e)
	}
	n := float64(len(actual))
	v.RMSE = math.Sqrt(se / n)
	v.MAE = ae / n

	r2 := stat.RSquaredFrom(estimates, actual, nil)
	if math.IsNaN(r2) || math.IsInf(r2, 0) {
		r2 = 0
	}
	v.R2 = r2
	return v
}

func interval(value, halfWidth float64) Interval {
	return Interval{Lower: value - halfWidth, Upper: value + halfWidth}
}

// tQuantile returns the two-sided critical value at ConfidenceLevel; a df
// below 1 falls back to the normal quantile.
func tQuantile(df float64) float64 {
	q := 1 - (1-ConfidenceLevel)/2
	if df < 1 {
		return distuv.UnitNormal.Quantile(q)
	}
	return distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}.Quantile(q)
}
