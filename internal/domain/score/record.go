// Package score contains the score record model consumed by every analytics
// component, together with the data-access contract used to fetch records.
//
// Records are values: once fetched they are never mutated by the engine.
package score

import (
	"sort"
	"strconv"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// SCORE RECORD
// ══════════════════════════════════════════════════════════════════════════════

// Record is one student's result for one subject of one exam.
type Record struct {
	// StudentID identifies the student across exams.
	StudentID string `json:"student_id" yaml:"student_id"`

	// StudentName is the display name (optional).
	StudentName string `json:"student_name,omitempty" yaml:"student_name,omitempty"`

	// CohortKey is the comparison scope, e.g. "class-3|math|midterm-2024".
	CohortKey string `json:"cohort_key" yaml:"cohort_key"`

	// Subject is the subject name ("math", "数学", "total").
	Subject string `json:"subject" yaml:"subject"`

	// ClassName is the class the student sat the exam in.
	ClassName string `json:"class_name,omitempty" yaml:"class_name,omitempty"`

	// ExamID identifies the exam.
	ExamID string `json:"exam_id,omitempty" yaml:"exam_id,omitempty"`

	// ExamDate is the day the exam took place (zero when unknown).
	ExamDate time.Time `json:"exam_date,omitempty" yaml:"exam_date,omitempty"`

	// Score is the raw numeric score.
	Score float64 `json:"score" yaml:"score"`

	// ImportedGrade is the grade token shipped with the source data.
	// Empty means absent.
	ImportedGrade string `json:"imported_grade,omitempty" yaml:"imported_grade,omitempty"`

	// RankInCohort is the 1-based rank inside the cohort. 0 means absent.
	RankInCohort int `json:"rank_in_cohort,omitempty" yaml:"rank_in_cohort,omitempty"`
}

// HasImportedGrade reports whether a grade token was supplied.
func (r Record) HasImportedGrade() bool {
	return r.ImportedGrade != ""
}

// HasRank reports whether a usable rank was supplied.
func (r Record) HasRank() bool {
	return r.RankInCohort > 0
}

// ══════════════════════════════════════════════════════════════════════════════
// FIELDS
// ══════════════════════════════════════════════════════════════════════════════

// Field names a record attribute usable as a grouping dimension or a metric input.
type Field string

const (
	FieldStudentID     Field = "student_id"
	FieldStudentName   Field = "student_name"
	FieldCohortKey     Field = "cohort_key"
	FieldSubject       Field = "subject"
	FieldClassName     Field = "class_name"
	FieldExamID        Field = "exam_id"
	FieldExamDate      Field = "exam_date"
	FieldImportedGrade Field = "imported_grade"
	FieldScore         Field = "score"
	FieldRankInCohort  Field = "rank_in_cohort"
)

// DateLayout is the format of exam dates used as dimension values.
const DateLayout = "2006-01-02"

var dimensionFields = map[Field]bool{
	FieldStudentID:     true,
	FieldStudentName:   true,
	FieldCohortKey:     true,
	FieldSubject:       true,
	FieldClassName:     true,
	FieldExamID:        true,
	FieldExamDate:      true,
	FieldImportedGrade: true,
}

var numericFields = map[Field]bool{
	FieldScore:        true,
	FieldRankInCohort: true,
}

// IsDimension reports whether f can be used to group records.
func (f Field) IsDimension() bool {
	return dimensionFields[f]
}

// IsNumeric reports whether f yields a number.
func (f Field) IsNumeric() bool {
	return numericFields[f]
}

// DimensionValue returns the string value of a dimension field.
// ok is false when f is not a dimension field.
func (r Record) DimensionValue(f Field) (string, bool) {
	switch f {
	case FieldStudentID:
		return r.StudentID, true
	case FieldStudentName:
		return r.StudentName, true
	case FieldCohortKey:
		return r.CohortKey, true
	case FieldSubject:
		return r.Subject, true
	case FieldClassName:
		return r.ClassName, true
	case FieldExamID:
		return r.ExamID, true
	case FieldExamDate:
		if r.ExamDate.IsZero() {
			return "", true
		}
		return r.ExamDate.Format(DateLayout), true
	case FieldImportedGrade:
		return r.ImportedGrade, true
	default:
		return "", false
	}
}

// NumericValue returns the value of a numeric field. ok is false when the
// field is not numeric or the value is absent (rank 0).
func (r Record) NumericValue(f Field) (float64, bool) {
	switch f {
	case FieldScore:
		return r.Score, true
	case FieldRankInCohort:
		if !r.HasRank() {
			return 0, false
		}
		return float64(r.RankInCohort), true
	default:
		return 0, false
	}
}

// FieldNames returns the sorted list of known field names, for error messages.
func FieldNames(numeric bool) []string {
	src := dimensionFields
	if numeric {
		src = numericFields
	}
	names := make([]string, 0, len(src))
	for f := range src {
		names = append(names, string(f))
	}
	sort.Strings(names)
	return names
}

// ══════════════════════════════════════════════════════════════════════════════
// COHORTS
// ══════════════════════════════════════════════════════════════════════════════

// CohortSizes counts records per cohort key.
func CohortSizes(records []Record) map[string]int {
	sizes := make(map[string]int)
	for _, r := range records {
		sizes[r.CohortKey]++
	}
	return sizes
}

// GroupByCohort splits records by cohort key, preserving input order inside
// each cohort.
func GroupByCohort(records []Record) map[string][]Record {
	cohorts := make(map[string][]Record)
	for _, r := range records {
		cohorts[r.CohortKey] = append(cohorts[r.CohortKey], r)
	}
	return cohorts
}

// String returns a compact description for logs.
func (r Record) String() string {
	return r.StudentID + "/" + r.Subject + "=" + strconv.FormatFloat(r.Score, 'f', -1, 64)
}
