package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/grade-analytics/pkg/timeutil"
)

const yamlDataset = `
records:
  - student_id: s1
    student_name: Alice
    subject: Math
    class_name: 3A
    exam_id: mid
    exam_date: "2024-03-10"
    score: 91.5
    imported_grade: A+
  - student_id: s2
    cohort_key: custom
    subject: Math
    score: 70
    rank_in_cohort: 2
`

func TestParseDataset_YAML(t *testing.T) {
	records, err := parseDataset([]byte(yamlDataset), false)
	require.NoError(t, err)
	require.Len(t, records, 2)

	first := records[0]
	assert.Equal(t, "s1", first.StudentID)
	assert.Equal(t, "Alice", first.StudentName)
	assert.Equal(t, "3A|Math|mid", first.CohortKey)
	assert.True(t, first.ExamDate.Equal(timeutil.Date(2024, 3, 10)))
	assert.InDelta(t, 91.5, first.Score, 1e-9)
	assert.Equal(t, "A+", first.ImportedGrade)

	second := records[1]
	assert.Equal(t, "custom", second.CohortKey)
	assert.True(t, second.ExamDate.IsZero())
	assert.Equal(t, 2, second.RankInCohort)
}

func TestParseDataset_BareLists(t *testing.T) {
	records, err := parseDataset([]byte("- student_id: s1\n  score: 10\n- student_id: s2\n  score: 20\n"), false)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	records, err = parseDataset([]byte(`[{"student_id":"s1","score":10,"exam_date":"2024-01-02"}]`), true)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].ExamDate.Equal(timeutil.Date(2024, 1, 2)))
}

func TestParseDataset_JSONObject(t *testing.T) {
	records, err := parseDataset([]byte(`{"records":[{"student_id":"s1","subject":"Math","score":55}]}`), true)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Math", records[0].Subject)
}

func TestParseDataset_Errors(t *testing.T) {
	tests := map[string]struct {
		raw    string
		isJSON bool
	}{
		"missing student":  {"- score: 10\n", false},
		"bad date":         {"- student_id: s1\n  exam_date: \"10.03.2024\"\n", false},
		"negative rank":    {"- student_id: s1\n  rank_in_cohort: -1\n", false},
		"malformed json":   {`{"records": [`, true},
		"wrong score type": {"- student_id: s1\n  score: high\n", false},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := parseDataset([]byte(tt.raw), tt.isJSON)
			assert.Error(t, err)
		})
	}
}

func TestLoadDataset_ByExtension(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "scores.JSON")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`[{"student_id":"s1","score":1}]`), 0o600))
	records, err := loadDataset(jsonPath)
	require.NoError(t, err)
	assert.Len(t, records, 1)

	yamlPath := filepath.Join(dir, "scores.yml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(yamlDataset), 0o600))
	records, err = loadDataset(yamlPath)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	_, err = loadDataset(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
