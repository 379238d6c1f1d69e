package query

import (
	"context"
	"time"

	"github.com/alem-hub/grade-analytics/internal/domain/correlation"
	"github.com/alem-hub/grade-analytics/internal/domain/prediction"
	"github.com/alem-hub/grade-analytics/internal/domain/score"
)

// ══════════════════════════════════════════════════════════════════════════════
// PREDICTION QUERY
// ══════════════════════════════════════════════════════════════════════════════

// PredictionQuery parameters.
type PredictionQuery struct {
	Filter    score.Filter         `json:"filter" yaml:"filter"`
	ModelType prediction.ModelType `json:"model_type" yaml:"model_type" validate:"required,oneof=linear_regression time_series"`

	Target   correlation.VariableRef   `json:"target" yaml:"target"`
	Features []correlation.VariableRef `json:"features,omitempty" yaml:"features,omitempty" validate:"required_if=ModelType linear_regression"`

	// Students limits linear predictions; empty means every eligible student.
	Students []string `json:"students,omitempty" yaml:"students,omitempty"`

	// TimePoints are the instants for time_series predictions.
	TimePoints []time.Time `json:"time_points,omitempty" yaml:"time_points,omitempty"`
}

// PredictionHandler handles prediction queries.
type PredictionHandler struct {
	deps      Dependencies
	predictor *prediction.Predictor
}

// NewPredictionHandler creates a new handler.
func NewPredictionHandler(deps Dependencies, opts prediction.Options) *PredictionHandler {
	return &PredictionHandler{deps: deps, predictor: prediction.NewPredictor(opts)}
}

// Handle runs the query.
func (h *PredictionHandler) Handle(ctx context.Context, q PredictionQuery) Result[prediction.Result] {
	return execute(ctx, h.deps, "Prediction", q, func(ctx context.Context) (prediction.Result, bool, error) {
		records, err := h.deps.fetch(ctx, q.Filter)
		if err != nil {
			return prediction.Result{}, false, err
		}

		res, err := h.predictor.Predict(records, prediction.Request{
			Model:      q.ModelType,
			Target:     q.Target,
			Features:   q.Features,
			Students:   q.Students,
			TimePoints: q.TimePoints,
		})
		if err != nil {
			return prediction.Result{}, false, err
		}
		return *res, false, nil
	})
}
