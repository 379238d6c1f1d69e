package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/grade-analytics/internal/domain/aggregation"
	"github.com/alem-hub/grade-analytics/internal/domain/correlation"
	"github.com/alem-hub/grade-analytics/internal/domain/score"
)

func TestParseMetric(t *testing.T) {
	tests := []struct {
		in   string
		want aggregation.MetricSpec
	}{
		{"count", aggregation.MetricSpec{Kind: aggregation.KindCount}},
		{"avg:score", aggregation.MetricSpec{Kind: aggregation.KindAvg, Field: score.FieldScore}},
		{"AVG : score", aggregation.MetricSpec{Kind: aggregation.KindAvg, Field: score.FieldScore}},
		{"p90:score", aggregation.MetricSpec{Kind: aggregation.KindPercentile, Field: score.FieldScore, P: 90}},
		{"p12.5:score=low", aggregation.MetricSpec{Kind: aggregation.KindPercentile, Field: score.FieldScore, P: 12.5, Alias: "low"}},
		{"distinct:student_id", aggregation.MetricSpec{Kind: aggregation.KindDistinct, Field: "student_id"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseMetric(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseMetric_Errors(t *testing.T) {
	for _, in := range []string{"", ":score", "pxx:score"} {
		_, err := parseMetric(in)
		assert.Error(t, err, in)
	}
}

func TestParseCondition(t *testing.T) {
	tests := []struct {
		in   string
		want aggregation.Condition
	}{
		{"avg_score>=60", aggregation.Condition{Metric: "avg_score", Op: aggregation.OpGreaterEqual, Value: 60}},
		{"count < 3", aggregation.Condition{Metric: "count", Op: aggregation.OpLess, Value: 3}},
		{"max_score!=100", aggregation.Condition{Metric: "max_score", Op: aggregation.OpNotEqual, Value: 100}},
		{"min_score=0", aggregation.Condition{Metric: "min_score", Op: aggregation.OpEqual, Value: 0}},
		{"avg_score<=-1.5", aggregation.Condition{Metric: "avg_score", Op: aggregation.OpLessEqual, Value: -1.5}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseCondition(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := parseCondition("avg_score 60")
	assert.Error(t, err)
	_, err = parseCondition("avg_score>=sixty")
	assert.Error(t, err)
}

func TestParseSortKey(t *testing.T) {
	k, err := parseSortKey("avg_score:desc")
	require.NoError(t, err)
	assert.Equal(t, aggregation.SortKey{Field: "avg_score", Order: aggregation.Desc}, k)

	k, err = parseSortKey("class_name")
	require.NoError(t, err)
	assert.Equal(t, aggregation.Asc, k.Order)

	_, err = parseSortKey("avg_score:sideways")
	assert.Error(t, err)
	_, err = parseSortKey(":desc")
	assert.Error(t, err)
}

func TestParseVariable(t *testing.T) {
	tests := []struct {
		in   string
		want correlation.VariableRef
	}{
		{"math=Math", correlation.VariableRef{Name: "math", Subject: "Math"}},
		{"Physics", correlation.VariableRef{Name: "Physics", Subject: "Physics"}},
		{"rank=Math:rank_in_cohort", correlation.VariableRef{Name: "rank", Subject: "Math", Field: score.FieldRankInCohort}},
		{"Math:rank_in_cohort", correlation.VariableRef{Name: "Math_rank_in_cohort", Subject: "Math", Field: score.FieldRankInCohort}},
		{"all=", correlation.VariableRef{Name: "all"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseVariable(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := parseVariable("  ")
	assert.Error(t, err)
}

func TestParseFields(t *testing.T) {
	got := parseFields([]string{"class_name, subject", "", "exam_id"})
	assert.Equal(t, []score.Field{"class_name", "subject", "exam_id"}, got)
	assert.Nil(t, parseFields(nil))
}
