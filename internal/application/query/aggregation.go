package query

import (
	"context"

	"github.com/alem-hub/grade-analytics/internal/domain/aggregation"
	"github.com/alem-hub/grade-analytics/internal/domain/score"
)

// ══════════════════════════════════════════════════════════════════════════════
// MULTI-DIMENSIONAL AGGREGATION QUERY
// ══════════════════════════════════════════════════════════════════════════════

// AggregationQuery parameters.
type AggregationQuery struct {
	Filter     score.Filter             `json:"filter" yaml:"filter"`
	Dimensions []score.Field            `json:"dimensions" yaml:"dimensions" validate:"min=1"`
	Metrics    []aggregation.MetricSpec `json:"metrics" yaml:"metrics" validate:"min=1"`
	Having     []aggregation.Condition  `json:"having,omitempty" yaml:"having,omitempty"`
	Sort       []aggregation.SortKey    `json:"sort,omitempty" yaml:"sort,omitempty"`
	Limit      int                      `json:"limit,omitempty" yaml:"limit,omitempty" validate:"gte=0"`

	Cache CacheOptions `json:"-" yaml:"cache"`
}

func (q AggregationQuery) request() aggregation.Request {
	return aggregation.Request{
		Dimensions: q.Dimensions,
		Metrics:    q.Metrics,
		Having:     q.Having,
		Sort:       q.Sort,
		Limit:      q.Limit,
	}
}

// AggregationHandler handles aggregation queries.
type AggregationHandler struct {
	deps   Dependencies
	engine *aggregation.Engine
}

// NewAggregationHandler creates a new handler.
func NewAggregationHandler(deps Dependencies) *AggregationHandler {
	return &AggregationHandler{deps: deps, engine: aggregation.NewEngine()}
}

// Handle runs the query. The request is validated before the cache is
// consulted.
func (h *AggregationHandler) Handle(ctx context.Context, q AggregationQuery) Result[aggregation.Result] {
	return execute(ctx, h.deps, "Aggregation", q, func(ctx context.Context) (aggregation.Result, bool, error) {
		req := q.request()
		if err := req.Validate(); err != nil {
			return aggregation.Result{}, false, err
		}

		return withCache(ctx, h.deps, q.Cache, "aggregation", q, func() (aggregation.Result, error) {
			records, err := h.deps.fetch(ctx, q.Filter)
			if err != nil {
				return aggregation.Result{}, err
			}
			res, err := h.engine.Aggregate(records, req)
			if err != nil {
				return aggregation.Result{}, err
			}
			return *res, nil
		})
	})
}
