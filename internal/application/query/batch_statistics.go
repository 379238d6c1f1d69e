package query

import (
	"context"

	"github.com/alem-hub/grade-analytics/internal/domain/aggregation"
	"github.com/alem-hub/grade-analytics/internal/domain/score"
	"github.com/alem-hub/grade-analytics/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// BATCH STATISTICS QUERY
// Groups the filtered records and computes descriptive metrics per group,
// each row tagged with a confidence level derived from its sample size.
// ══════════════════════════════════════════════════════════════════════════════

// BatchStatisticsQuery parameters.
type BatchStatisticsQuery struct {
	Filter  score.Filter             `json:"filter" yaml:"filter"`
	GroupBy []score.Field            `json:"group_by" yaml:"group_by" validate:"min=1"`
	Metrics []aggregation.MetricSpec `json:"metrics" yaml:"metrics" validate:"min=1"`

	// MinScore and MaxScore drop records outside the inclusive range
	// before grouping.
	MinScore *float64 `json:"min_score,omitempty" yaml:"min_score,omitempty"`
	MaxScore *float64 `json:"max_score,omitempty" yaml:"max_score,omitempty"`

	Cache CacheOptions `json:"-" yaml:"cache"`
}

// StatisticsRow is one group of a batch statistics result.
type StatisticsRow struct {
	// DimensionValues is keyed by grouping field.
	DimensionValues map[string]string  `json:"dimension_values"`
	MetricValues    map[string]float64 `json:"metric_values"`
	SampleSize      int                `json:"sample_size"`
	Confidence      float64            `json:"confidence"`
}

// StatisticsSummary counts the records seen by a batch statistics query.
type StatisticsSummary struct {
	TotalRecords     int `json:"total_records"`
	ProcessedRecords int `json:"processed_records"`
	Groups           int `json:"groups"`
}

// BatchStatisticsResult is the payload of a batch statistics query.
type BatchStatisticsResult struct {
	Rows    []StatisticsRow   `json:"data"`
	Summary StatisticsSummary `json:"summary"`
}

// BatchStatisticsHandler handles batch statistics queries.
type BatchStatisticsHandler struct {
	deps   Dependencies
	engine *aggregation.Engine
}

// NewBatchStatisticsHandler creates a new handler.
func NewBatchStatisticsHandler(deps Dependencies) *BatchStatisticsHandler {
	return &BatchStatisticsHandler{deps: deps, engine: aggregation.NewEngine()}
}

// Handle runs the query.
func (h *BatchStatisticsHandler) Handle(ctx context.Context, q BatchStatisticsQuery) Result[BatchStatisticsResult] {
	return execute(ctx, h.deps, "BatchStatistics", q, func(ctx context.Context) (BatchStatisticsResult, bool, error) {
		req := aggregation.Request{Dimensions: q.GroupBy, Metrics: q.Metrics}
		if err := req.Validate(); err != nil {
			return BatchStatisticsResult{}, false, err
		}
		if q.MinScore != nil && q.MaxScore != nil && *q.MinScore > *q.MaxScore {
			return BatchStatisticsResult{}, false, shared.NewValidationError("query", "BatchStatistics",
				"min_score %g exceeds max_score %g", *q.MinScore, *q.MaxScore)
		}

		return withCache(ctx, h.deps, q.Cache, "batch_statistics", q, func() (BatchStatisticsResult, error) {
			records, err := h.deps.fetch(ctx, q.Filter)
			if err != nil {
				return BatchStatisticsResult{}, err
			}
			return h.compute(records, q, req)
		})
	})
}

func (h *BatchStatisticsHandler) compute(records []score.Record, q BatchStatisticsQuery, req aggregation.Request) (BatchStatisticsResult, error) {
	kept := make([]score.Record, 0, len(records))
	for _, r := range records {
		if q.MinScore != nil && r.Score < *q.MinScore {
			continue
		}
		if q.MaxScore != nil && r.Score > *q.MaxScore {
			continue
		}
		kept = append(kept, r)
	}

	agg, err := h.engine.Aggregate(kept, req)
	if err != nil {
		return BatchStatisticsResult{}, err
	}

	rows := make([]StatisticsRow, 0, len(agg.Groups))
	for _, g := range agg.Groups {
		dims := make(map[string]string, len(q.GroupBy))
		for i, f := range q.GroupBy {
			dims[string(f)] = g.DimensionValues[i]
		}
		rows = append(rows, StatisticsRow{
			DimensionValues: dims,
			MetricValues:    g.Metrics,
			SampleSize:      g.SampleSize,
			Confidence:      ConfidenceLevel(g.SampleSize),
		})
	}

	return BatchStatisticsResult{
		Rows: rows,
		Summary: StatisticsSummary{
			TotalRecords:     len(records),
			ProcessedRecords: len(kept),
			Groups:           len(rows),
		},
	}, nil
}

// ConfidenceLevel grades how far a group's statistics can be trusted by
// its sample size.
func ConfidenceLevel(sampleSize int) float64 {
	switch {
	case sampleSize >= 100:
		return 0.99
	case sampleSize >= 50:
		return 0.95
	case sampleSize >= 30:
		return 0.90
	case sampleSize >= 10:
		return 0.80
	default:
		return 0.50
	}
}
