package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/alem-hub/grade-analytics/internal/domain/score"
	"github.com/alem-hub/grade-analytics/pkg/timeutil"
)

// datasetRecord is the on-disk shape of a score record. Dates are plain
// YYYY-MM-DD strings read in the school timezone.
type datasetRecord struct {
	StudentID     string  `json:"student_id" yaml:"student_id"`
	StudentName   string  `json:"student_name" yaml:"student_name"`
	CohortKey     string  `json:"cohort_key" yaml:"cohort_key"`
	Subject       string  `json:"subject" yaml:"subject"`
	ClassName     string  `json:"class_name" yaml:"class_name"`
	ExamID        string  `json:"exam_id" yaml:"exam_id"`
	ExamDate      string  `json:"exam_date" yaml:"exam_date"`
	Score         float64 `json:"score" yaml:"score"`
	ImportedGrade string  `json:"imported_grade" yaml:"imported_grade"`
	RankInCohort  int     `json:"rank_in_cohort" yaml:"rank_in_cohort"`
}

// dataset is a file of records: either {"records": [...]} or a bare list.
type dataset struct {
	Records []datasetRecord `json:"records" yaml:"records"`
}

// loadDataset reads a YAML or JSON dataset. The format follows the file
// extension; anything but .json is parsed as YAML.
func loadDataset(path string) ([]score.Record, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	return parseDataset(raw, strings.EqualFold(filepath.Ext(path), ".json"))
}

func parseDataset(raw []byte, isJSON bool) ([]score.Record, error) {
	var ds dataset
	trimmed := bytes.TrimSpace(raw)

	if isJSON {
		var err error
		if bytes.HasPrefix(trimmed, []byte("[")) {
			err = json.Unmarshal(trimmed, &ds.Records)
		} else {
			err = json.Unmarshal(trimmed, &ds)
		}
		if err != nil {
			return nil, fmt.Errorf("parse json dataset: %w", err)
		}
	} else {
		var err error
		if bytes.HasPrefix(trimmed, []byte("-")) {
			err = yaml.Unmarshal(trimmed, &ds.Records)
		} else {
			err = yaml.Unmarshal(trimmed, &ds)
		}
		if err != nil {
			return nil, fmt.Errorf("parse yaml dataset: %w", err)
		}
	}

	out := make([]score.Record, 0, len(ds.Records))
	for i, r := range ds.Records {
		rec, err := r.toRecord()
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i+1, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r datasetRecord) toRecord() (score.Record, error) {
	if strings.TrimSpace(r.StudentID) == "" {
		return score.Record{}, fmt.Errorf("student_id is required")
	}
	date, err := timeutil.ParseDate(r.ExamDate)
	if err != nil {
		return score.Record{}, err
	}
	if r.RankInCohort < 0 {
		return score.Record{}, fmt.Errorf("rank_in_cohort must not be negative")
	}

	cohort := r.CohortKey
	if cohort == "" {
		cohort = defaultCohortKey(r)
	}
	return score.Record{
		StudentID:     r.StudentID,
		StudentName:   r.StudentName,
		CohortKey:     cohort,
		Subject:       r.Subject,
		ClassName:     r.ClassName,
		ExamID:        r.ExamID,
		ExamDate:      date,
		Score:         r.Score,
		ImportedGrade: r.ImportedGrade,
		RankInCohort:  r.RankInCohort,
	}, nil
}

// defaultCohortKey compares a student with the same class, subject and exam.
func defaultCohortKey(r datasetRecord) string {
	return strings.Join([]string{r.ClassName, r.Subject, r.ExamID}, "|")
}
