package query

import (
	"context"

	"github.com/alem-hub/grade-analytics/internal/domain/anomaly"
	"github.com/alem-hub/grade-analytics/internal/domain/score"
)

// ══════════════════════════════════════════════════════════════════════════════
// ANOMALY DETECTION QUERY
// ══════════════════════════════════════════════════════════════════════════════

// DefaultSensitivity applies when neither the query nor the handler sets one.
const DefaultSensitivity = 0.5

// AnomalyDetectionQuery parameters.
type AnomalyDetectionQuery struct {
	Filter    score.Filter      `json:"filter" yaml:"filter"`
	Algorithm anomaly.Algorithm `json:"algorithm,omitempty" yaml:"algorithm,omitempty" validate:"omitempty,oneof=statistical zscore"`

	// Sensitivity in [0, 1]; higher flags more records. Nil uses the
	// handler default.
	Sensitivity *float64 `json:"sensitivity,omitempty" yaml:"sensitivity,omitempty" validate:"omitempty,gte=0,lte=1"`

	// Dimensions are numeric fields to scan; empty means score.
	Dimensions []score.Field `json:"dimensions,omitempty" yaml:"dimensions,omitempty"`
}

// AnomalyDetectionHandler handles anomaly detection queries.
type AnomalyDetectionHandler struct {
	deps        Dependencies
	opts        anomaly.Options
	sensitivity float64
}

// NewAnomalyDetectionHandler creates a new handler. opts carries the
// detector defaults; sensitivity applies to queries that leave it unset
// (values outside [0, 1] fall back to DefaultSensitivity).
func NewAnomalyDetectionHandler(deps Dependencies, opts anomaly.Options, sensitivity float64) *AnomalyDetectionHandler {
	if !(sensitivity >= 0 && sensitivity <= 1) {
		sensitivity = DefaultSensitivity
	}
	return &AnomalyDetectionHandler{deps: deps, opts: opts, sensitivity: sensitivity}
}

// Handle runs the query.
func (h *AnomalyDetectionHandler) Handle(ctx context.Context, q AnomalyDetectionQuery) Result[anomaly.Report] {
	return execute(ctx, h.deps, "AnomalyDetection", q, func(ctx context.Context) (anomaly.Report, bool, error) {
		opts := h.opts
		if q.Algorithm != "" {
			opts.Algorithm = q.Algorithm
		}
		sensitivity := h.sensitivity
		if q.Sensitivity != nil {
			sensitivity = *q.Sensitivity
		}
		detector := anomaly.NewDetector(opts)

		if _, err := detector.Validate(sensitivity, q.Dimensions); err != nil {
			return anomaly.Report{}, false, err
		}

		records, err := h.deps.fetch(ctx, q.Filter)
		if err != nil {
			return anomaly.Report{}, false, err
		}
		report, err := detector.Detect(records, sensitivity, q.Dimensions)
		if err != nil {
			return anomaly.Report{}, false, err
		}
		return *report, false, nil
	})
}
