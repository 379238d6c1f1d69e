package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/grade-analytics/internal/domain/score"
	"github.com/alem-hub/grade-analytics/internal/domain/shared"
	"github.com/alem-hub/grade-analytics/pkg/timeutil"
)

const scoreTable = "score_records"

var scoreColumns = []string{
	"student_id", "student_name", "cohort_key", "subject", "class_name",
	"exam_id", "exam_date", "score", "imported_grade", "rank_in_cohort",
}

// ══════════════════════════════════════════════════════════════════════════════
// SCORE REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// ScoreRepository implements score.Provider over the score_records table.
type ScoreRepository struct {
	conn *Connection
}

var _ score.Provider = (*ScoreRepository)(nil)

// NewScoreRepository creates a new ScoreRepository.
func NewScoreRepository(conn *Connection) *ScoreRepository {
	return &ScoreRepository{conn: conn}
}

// SourceID identifies the shared score store. Writers clear cached results
// after changing it.
func (r *ScoreRepository) SourceID() string {
	return "postgres"
}

// FetchScores returns the records matching filter ordered by exam, subject
// and student.
func (r *ScoreRepository) FetchScores(ctx context.Context, filter score.Filter) ([]score.Record, error) {
	query, args := buildScoreQuery(filter)

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, shared.WrapError("postgres", "FetchScores", shared.ErrDataAccess, "query score records", err)
	}
	defer rows.Close()

	var records []score.Record
	for rows.Next() {
		rec, err := scanScore(rows)
		if err != nil {
			return nil, shared.WrapError("postgres", "FetchScores", shared.ErrDataAccess, "scan score record", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.WrapError("postgres", "FetchScores", shared.ErrDataAccess, "iterate score records", err)
	}
	return records, nil
}

// ImportScores replaces every exam present in records with the given rows,
// in one transaction, using COPY. It returns the number of rows written.
func (r *ScoreRepository) ImportScores(ctx context.Context, records []score.Record) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	exams := make([]string, 0)
	seen := make(map[string]bool)
	for _, rec := range records {
		if !seen[rec.ExamID] {
			seen[rec.ExamID] = true
			exams = append(exams, rec.ExamID)
		}
	}

	var written int64
	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "DELETE FROM "+scoreTable+" WHERE exam_id = ANY($1)", exams); err != nil {
			return fmt.Errorf("failed to clear exams: %w", err)
		}
		n, err := tx.CopyFrom(ctx, pgx.Identifier{scoreTable}, scoreColumns, pgx.CopyFromSlice(len(records), func(i int) ([]any, error) {
			return scoreRow(records[i]), nil
		}))
		if err != nil {
			return fmt.Errorf("failed to copy score records: %w", err)
		}
		written = n
		return nil
	})
	if err != nil {
		return 0, shared.WrapError("postgres", "ImportScores", shared.ErrDataAccess, "import score records", err)
	}
	return written, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Query building
// ─────────────────────────────────────────────────────────────────────────────

// buildScoreQuery renders the SELECT for filter with positional arguments.
func buildScoreQuery(filter score.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if len(filter.ExamIDs) > 0 {
		add("exam_id = ANY($%d)", filter.ExamIDs)
	}
	if len(filter.ClassNames) > 0 {
		add("class_name = ANY($%d)", filter.ClassNames)
	}
	if len(filter.Subjects) > 0 {
		add("subject = ANY($%d)", filter.Subjects)
	}
	if !filter.From.IsZero() {
		add("exam_date >= $%d", dateArg(filter.From))
	}
	if !filter.To.IsZero() {
		add("exam_date <= $%d", dateArg(filter.To))
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(scoreColumns, ", "))
	b.WriteString(" FROM ")
	b.WriteString(scoreTable)
	if len(conds) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conds, " AND "))
	}
	b.WriteString(" ORDER BY exam_id, subject, student_id")
	return b.String(), args
}

// dateArg converts an instant to the calendar day it falls on in the
// school timezone, expressed as UTC midnight for the DATE codec.
func dateArg(t time.Time) time.Time {
	local := t.In(timeutil.SchoolTZ)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

func scoreRow(rec score.Record) []any {
	var (
		examDate any
		grade    any
		rank     any
	)
	if !rec.ExamDate.IsZero() {
		examDate = dateArg(rec.ExamDate)
	}
	if rec.HasImportedGrade() {
		grade = rec.ImportedGrade
	}
	if rec.HasRank() {
		rank = int32(rec.RankInCohort)
	}
	return []any{
		rec.StudentID, rec.StudentName, rec.CohortKey, rec.Subject, rec.ClassName,
		rec.ExamID, examDate, rec.Score, grade, rank,
	}
}

func scanScore(row pgx.Row) (score.Record, error) {
	var (
		rec      score.Record
		examDate *time.Time
		grade    *string
		rank     *int32
	)
	err := row.Scan(
		&rec.StudentID, &rec.StudentName, &rec.CohortKey, &rec.Subject, &rec.ClassName,
		&rec.ExamID, &examDate, &rec.Score, &grade, &rank,
	)
	if err != nil {
		return score.Record{}, err
	}
	if examDate != nil {
		rec.ExamDate = timeutil.Date(examDate.Year(), int(examDate.Month()), examDate.Day())
	}
	if grade != nil {
		rec.ImportedGrade = *grade
	}
	if rank != nil {
		rec.RankInCohort = int(*rank)
	}
	return rec, nil
}
