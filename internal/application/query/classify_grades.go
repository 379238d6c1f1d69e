package query

import (
	"context"

	"github.com/alem-hub/grade-analytics/internal/domain/grading"
	"github.com/alem-hub/grade-analytics/internal/domain/score"
)

// ══════════════════════════════════════════════════════════════════════════════
// CLASSIFY GRADES QUERY
// Resolves the canonical level of every record: imported grade, then cohort
// rank, then the default.
// ══════════════════════════════════════════════════════════════════════════════

// ClassifyGradesQuery parameters.
type ClassifyGradesQuery struct {
	Filter score.Filter `json:"filter" yaml:"filter"`

	// AssignMissingRanks ranks cohorts by score when none of their records
	// carries a rank.
	AssignMissingRanks bool `json:"assign_missing_ranks" yaml:"assign_missing_ranks"`
}

// ClassifyGradesResult is the payload of a classify query.
type ClassifyGradesResult struct {
	Records      []grading.ClassifiedRecord `json:"records"`
	Distribution []grading.LevelShare       `json:"distribution"`
	Sources      map[grading.Source]int     `json:"sources"`
	Total        int                        `json:"total"`
}

// ClassifyGradesHandler handles classify queries.
type ClassifyGradesHandler struct {
	deps       Dependencies
	classifier *grading.Classifier
}

// NewClassifyGradesHandler creates a new handler.
func NewClassifyGradesHandler(deps Dependencies) *ClassifyGradesHandler {
	return &ClassifyGradesHandler{deps: deps, classifier: grading.NewClassifier()}
}

// Handle runs the query.
func (h *ClassifyGradesHandler) Handle(ctx context.Context, q ClassifyGradesQuery) Result[ClassifyGradesResult] {
	return execute(ctx, h.deps, "ClassifyGrades", q, func(ctx context.Context) (ClassifyGradesResult, bool, error) {
		records, err := h.deps.fetch(ctx, q.Filter)
		if err != nil {
			return ClassifyGradesResult{}, false, err
		}
		if q.AssignMissingRanks {
			records = grading.FillMissingRanks(records)
		}

		classified := h.classifier.ResolveAll(records)
		return ClassifyGradesResult{
			Records:      classified,
			Distribution: grading.Distribution(classified),
			Sources:      grading.SourceCounts(classified),
			Total:        len(classified),
		}, false, nil
	})
}
