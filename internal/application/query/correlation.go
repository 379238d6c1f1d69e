package query

import (
	"context"

	"github.com/alem-hub/grade-analytics/internal/domain/correlation"
	"github.com/alem-hub/grade-analytics/internal/domain/score"
)

// ══════════════════════════════════════════════════════════════════════════════
// CORRELATION QUERY
// ══════════════════════════════════════════════════════════════════════════════

// CorrelationQuery parameters.
type CorrelationQuery struct {
	Filter    score.Filter              `json:"filter" yaml:"filter"`
	Variables []correlation.VariableRef `json:"variables" yaml:"variables" validate:"min=2"`

	// Method is the correlation coefficient; only pearson is supported.
	Method string `json:"method,omitempty" yaml:"method,omitempty" validate:"omitempty,oneof=pearson"`

	IncludeSignificance bool `json:"include_significance" yaml:"include_significance"`

	// SignificanceMethod overrides the handler default.
	SignificanceMethod correlation.SignificanceMethod `json:"significance_method,omitempty" yaml:"significance_method,omitempty" validate:"omitempty,oneof=student_t normal"`
}

// CorrelationHandler handles correlation queries.
type CorrelationHandler struct {
	deps     Dependencies
	defaults correlation.Options
}

// NewCorrelationHandler creates a new handler. defaults apply when a query
// leaves the significance method empty.
func NewCorrelationHandler(deps Dependencies, defaults correlation.Options) *CorrelationHandler {
	return &CorrelationHandler{deps: deps, defaults: defaults}
}

// Handle runs the query.
func (h *CorrelationHandler) Handle(ctx context.Context, q CorrelationQuery) Result[correlation.Result] {
	return execute(ctx, h.deps, "Correlation", q, func(ctx context.Context) (correlation.Result, bool, error) {
		if err := correlation.ValidateVariables(q.Variables); err != nil {
			return correlation.Result{}, false, err
		}
		records, err := h.deps.fetch(ctx, q.Filter)
		if err != nil {
			return correlation.Result{}, false, err
		}

		opts := h.defaults
		if q.SignificanceMethod != "" {
			opts.Significance = q.SignificanceMethod
		}
		res, err := correlation.NewAnalyzer(opts).Correlate(records, q.Variables, q.IncludeSignificance)
		if err != nil {
			return correlation.Result{}, false, err
		}
		return *res, false, nil
	})
}
