package postgres

// GetMigrations returns all embedded migrations in version order.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_score_records",
			UpSQL:   migration001Up,
			DownSQL: migration001Down,
		},
		{
			Version: 2,
			Name:    "score_records_filter_indexes",
			UpSQL:   migration002Up,
			DownSQL: migration002Down,
		},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: SCORE RECORDS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- One row per student per exam subject. Rows are immutable once imported;
-- re-imports replace the exam.
CREATE TABLE IF NOT EXISTS score_records (
    id BIGSERIAL PRIMARY KEY,
    student_id VARCHAR(64) NOT NULL,
    student_name VARCHAR(100) NOT NULL DEFAULT '',
    cohort_key VARCHAR(200) NOT NULL DEFAULT '',
    subject VARCHAR(50) NOT NULL,
    class_name VARCHAR(50) NOT NULL DEFAULT '',
    exam_id VARCHAR(64) NOT NULL,
    exam_date DATE,
    score DOUBLE PRECISION NOT NULL,
    imported_grade VARCHAR(20),
    rank_in_cohort INTEGER,
    imported_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_rank CHECK (rank_in_cohort IS NULL OR rank_in_cohort > 0),
    UNIQUE (exam_id, subject, student_id)
);
`

const migration001Down = `
DROP TABLE IF EXISTS score_records;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: FILTER INDEXES
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE INDEX IF NOT EXISTS idx_score_records_exam_id ON score_records(exam_id);
CREATE INDEX IF NOT EXISTS idx_score_records_class_name ON score_records(class_name);
CREATE INDEX IF NOT EXISTS idx_score_records_exam_date ON score_records(exam_date);
CREATE INDEX IF NOT EXISTS idx_score_records_cohort ON score_records(cohort_key);
`

const migration002Down = `
DROP INDEX IF EXISTS idx_score_records_cohort;
DROP INDEX IF EXISTS idx_score_records_exam_date;
DROP INDEX IF EXISTS idx_score_records_class_name;
DROP INDEX IF EXISTS idx_score_records_exam_id;
`
