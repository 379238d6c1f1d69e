package query

import (
	"context"

	"github.com/alem-hub/grade-analytics/internal/domain/score"
	"github.com/alem-hub/grade-analytics/internal/domain/shared"
	"github.com/alem-hub/grade-analytics/internal/domain/trend"
)

// ══════════════════════════════════════════════════════════════════════════════
// TREND ANALYSIS QUERY
// Builds a per-exam-date series, optionally smooths it, then classifies the
// trend and projects it forward. Statistics and forecast read the smoothed
// line.
// ══════════════════════════════════════════════════════════════════════════════

// TrendAnalysisQuery parameters.
type TrendAnalysisQuery struct {
	Filter score.Filter `json:"filter" yaml:"filter"`

	// Field is the numeric field to follow; empty means score.
	Field       score.Field       `json:"field,omitempty" yaml:"field,omitempty"`
	Aggregation trend.Aggregation `json:"aggregation,omitempty" yaml:"aggregation,omitempty" validate:"omitempty,oneof=avg sum min max"`

	// SmoothingWindow is the moving-average window; 0 or 1 disables it.
	SmoothingWindow int `json:"smoothing_window,omitempty" yaml:"smoothing_window,omitempty" validate:"gte=0"`

	// ForecastPeriods is the number of projected points; 0 skips the forecast.
	ForecastPeriods int          `json:"forecast_periods,omitempty" yaml:"forecast_periods,omitempty" validate:"gte=0,lte=365"`
	ForecastMethod  trend.Method `json:"forecast_method,omitempty" yaml:"forecast_method,omitempty" validate:"omitempty,oneof=linear exponential"`
}

// TrendAnalysisResult is the payload of a trend query.
type TrendAnalysisResult struct {
	DataPoints []trend.Point         `json:"data_points"`
	TrendLine  []trend.Point         `json:"trend_line"`
	Statistics trend.Analysis        `json:"statistics"`
	Forecast   []trend.ForecastPoint `json:"forecast,omitempty"`
}

// TrendAnalysisHandler handles trend queries.
type TrendAnalysisHandler struct {
	deps Dependencies
}

// NewTrendAnalysisHandler creates a new handler.
func NewTrendAnalysisHandler(deps Dependencies) *TrendAnalysisHandler {
	return &TrendAnalysisHandler{deps: deps}
}

// Handle runs the query.
func (h *TrendAnalysisHandler) Handle(ctx context.Context, q TrendAnalysisQuery) Result[TrendAnalysisResult] {
	return execute(ctx, h.deps, "TrendAnalysis", q, func(ctx context.Context) (TrendAnalysisResult, bool, error) {
		field := q.Field
		if field == "" {
			field = score.FieldScore
		}
		if !field.IsNumeric() {
			return TrendAnalysisResult{}, false, shared.NewValidationError("query", "TrendAnalysis", "field %q is not numeric", field)
		}

		records, err := h.deps.fetch(ctx, q.Filter)
		if err != nil {
			return TrendAnalysisResult{}, false, err
		}

		series, err := trend.BuildSeries(records, field, q.Aggregation)
		if err != nil {
			return TrendAnalysisResult{}, false, err
		}
		line := trend.Smooth(series, q.SmoothingWindow)

		analysis, err := trend.Analyze(line)
		if err != nil {
			return TrendAnalysisResult{}, false, err
		}

		res := TrendAnalysisResult{DataPoints: series, TrendLine: line, Statistics: analysis}
		if q.ForecastPeriods > 0 {
			res.Forecast, err = trend.Forecast(line, q.ForecastPeriods, q.ForecastMethod)
			if err != nil {
				return TrendAnalysisResult{}, false, err
			}
		}
		return res, false, nil
	})
}
