package aggregation

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/grade-analytics/internal/domain/score"
	"github.com/alem-hub/grade-analytics/internal/domain/shared"
)

func fixture() []score.Record {
	return []score.Record{
		{StudentID: "s1", ClassName: "1", Subject: "math", Score: 90, RankInCohort: 1},
		{StudentID: "s2", ClassName: "1", Subject: "math", Score: 70, RankInCohort: 2},
		{StudentID: "s3", ClassName: "1", Subject: "art", Score: 60},
		{StudentID: "s4", ClassName: "2", Subject: "math", Score: 80, RankInCohort: 1},
		{StudentID: "s5", ClassName: "2", Subject: "math", Score: 80, RankInCohort: 1},
		{StudentID: "s6", ClassName: "2", Subject: "math", Score: 50, RankInCohort: 3},
	}
}

func TestAggregate_GroupsAndMetrics(t *testing.T) {
	res, err := NewEngine().Aggregate(fixture(), Request{
		Dimensions: []score.Field{score.FieldClassName, score.FieldSubject},
		Metrics: []MetricSpec{
			{Kind: KindCount},
			{Kind: KindAvg, Field: score.FieldScore},
			{Kind: KindSum, Field: score.FieldScore},
			{Kind: KindPercentile, Field: score.FieldScore, P: 50},
			{Kind: KindMode, Field: score.FieldScore},
			{Kind: KindDistinct, Field: score.FieldStudentID},
		},
	})
	require.NoError(t, err)
	require.Len(t, res.Groups, 3)

	// ascending tuple order without sort keys
	assert.Equal(t, []string{"1", "art"}, res.Groups[0].DimensionValues)
	assert.Equal(t, []string{"1", "math"}, res.Groups[1].DimensionValues)
	assert.Equal(t, []string{"2", "math"}, res.Groups[2].DimensionValues)

	g := res.Groups[2]
	assert.Equal(t, 3, g.SampleSize)
	assert.Equal(t, 3.0, g.Metrics["count"])
	assert.InDelta(t, 70.0, g.Metrics["avg_score"], 1e-9)
	assert.Equal(t, 210.0, g.Metrics["sum_score"])
	assert.Equal(t, 80.0, g.Metrics["p50_score"])
	assert.Equal(t, 80.0, g.Metrics["mode_score"])
	assert.Equal(t, 3.0, g.Metrics["distinct_student_id"])
	assert.InDelta(t, 50.0, g.PercentageOfTotal, 1e-9)

	assert.Equal(t, map[string]float64{"count": 6, "sum_score": 430}, res.Totals)
	assert.Equal(t, Metadata{TotalRecords: 6, TotalGroups: 3, FilteredGroups: 3, ReturnedGroups: 3}, res.Metadata)
}

func TestAggregate_OrderIndependent(t *testing.T) {
	req := Request{
		Dimensions: []score.Field{score.FieldClassName},
		Metrics: []MetricSpec{
			{Kind: KindAvg, Field: score.FieldScore},
			{Kind: KindStdDev, Field: score.FieldScore},
			{Kind: KindMedian, Field: score.FieldScore},
		},
	}
	base, err := NewEngine().Aggregate(fixture(), req)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		shuffled := fixture()
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		got, err := NewEngine().Aggregate(shuffled, req)
		require.NoError(t, err)
		require.Len(t, got.Groups, len(base.Groups))
		for j := range base.Groups {
			assert.Equal(t, base.Groups[j].DimensionValues, got.Groups[j].DimensionValues)
			for name, v := range base.Groups[j].Metrics {
				assert.InDelta(t, v, got.Groups[j].Metrics[name], 1e-9, name)
			}
		}
	}
}

func TestAggregate_SeparatorInValuesDoesNotCollide(t *testing.T) {
	records := []score.Record{
		{StudentID: "a", ClassName: "x|y", Subject: "z", Score: 1},
		{StudentID: "b", ClassName: "x", Subject: "y|z", Score: 2},
	}
	res, err := NewEngine().Aggregate(records, Request{
		Dimensions: []score.Field{score.FieldClassName, score.FieldSubject},
		Metrics:    []MetricSpec{{Kind: KindCount}},
	})
	require.NoError(t, err)
	assert.Len(t, res.Groups, 2)
}

func TestAggregate_HavingIsConjunctive(t *testing.T) {
	metrics := []MetricSpec{
		{Kind: KindCount},
		{Kind: KindAvg, Field: score.FieldScore},
	}
	dims := []score.Field{score.FieldClassName, score.FieldSubject}

	both, err := NewEngine().Aggregate(fixture(), Request{
		Dimensions: dims,
		Metrics:    metrics,
		Having: []Condition{
			{Metric: "count", Op: OpGreaterEqual, Value: 2},
			{Metric: "avg_score", Op: OpGreater, Value: 75},
		},
	})
	require.NoError(t, err)
	require.Len(t, both.Groups, 1)
	assert.Equal(t, []string{"1", "math"}, both.Groups[0].DimensionValues)
	assert.Equal(t, 3, both.Metadata.TotalGroups)
	assert.Equal(t, 1, both.Metadata.FilteredGroups)

	one, err := NewEngine().Aggregate(fixture(), Request{
		Dimensions: dims,
		Metrics:    metrics,
		Having:     []Condition{{Metric: "count", Op: OpGreaterEqual, Value: 2}},
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(one.Groups), len(both.Groups))

	kept := map[string]bool{}
	for _, g := range one.Groups {
		kept[g.DimensionValues[0]+"/"+g.DimensionValues[1]] = true
	}
	for _, g := range both.Groups {
		assert.True(t, kept[g.DimensionValues[0]+"/"+g.DimensionValues[1]])
	}
}

func TestAggregate_SortLimitAndPostLimitTotals(t *testing.T) {
	res, err := NewEngine().Aggregate(fixture(), Request{
		Dimensions: []score.Field{score.FieldStudentID},
		Metrics:    []MetricSpec{{Kind: KindSum, Field: score.FieldScore, Alias: "total"}},
		Sort: []SortKey{
			{Field: "total", Order: Desc},
			{Field: "student_id", Order: Desc},
		},
		Limit: 3,
	})
	require.NoError(t, err)
	require.Len(t, res.Groups, 3)

	ids := []string{res.Groups[0].DimensionValues[0], res.Groups[1].DimensionValues[0], res.Groups[2].DimensionValues[0]}
	assert.Equal(t, []string{"s1", "s5", "s4"}, ids)
	assert.Equal(t, 250.0, res.Totals["total"], "totals cover the returned page only")
	assert.Equal(t, 6, res.Metadata.FilteredGroups)
	assert.Equal(t, 3, res.Metadata.ReturnedGroups)
}

func TestAggregate_EmptyDatasetWithHaving(t *testing.T) {
	res, err := NewEngine().Aggregate(nil, Request{
		Dimensions: []score.Field{score.FieldClassName},
		Metrics:    []MetricSpec{{Kind: KindCount}},
		Having:     []Condition{{Metric: "count", Op: OpGreater, Value: 0}},
	})
	require.NoError(t, err)
	assert.NotNil(t, res.Groups)
	assert.Empty(t, res.Groups)
	assert.Equal(t, 0.0, res.Totals["count"])
}

func TestAggregate_RankMetricSkipsAbsentRanks(t *testing.T) {
	res, err := NewEngine().Aggregate(fixture(), Request{
		Dimensions: []score.Field{score.FieldSubject},
		Metrics: []MetricSpec{
			{Kind: KindCount, Field: score.FieldRankInCohort},
			{Kind: KindMax, Field: score.FieldRankInCohort},
		},
		Having: []Condition{{Metric: "count_rank_in_cohort", Op: OpGreater, Value: 0}},
	})
	require.Error(t, err, "art has no ranks, max over an empty value set")
	assert.True(t, shared.IsComputation(err))

	res, err = NewEngine().Aggregate(fixture(), Request{
		Dimensions: []score.Field{score.FieldSubject},
		Metrics:    []MetricSpec{{Kind: KindCount, Field: score.FieldRankInCohort}},
	})
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Groups[0].Metrics["count_rank_in_cohort"])
	assert.Equal(t, 5.0, res.Groups[1].Metrics["count_rank_in_cohort"])
}

func TestAggregate_ValidationErrors(t *testing.T) {
	count := []MetricSpec{{Kind: KindCount}}
	dims := []score.Field{score.FieldClassName}

	cases := map[string]Request{
		"no dimensions":     {Metrics: count},
		"unknown dimension": {Dimensions: []score.Field{"color"}, Metrics: count},
		"numeric dimension": {Dimensions: []score.Field{score.FieldScore}, Metrics: count},
		"no metrics":        {Dimensions: dims},
		"unknown kind":      {Dimensions: dims, Metrics: []MetricSpec{{Kind: "geomean", Field: score.FieldScore}}},
		"non-numeric avg":   {Dimensions: dims, Metrics: []MetricSpec{{Kind: KindAvg, Field: score.FieldSubject}}},
		"bad percentile":    {Dimensions: dims, Metrics: []MetricSpec{{Kind: KindPercentile, Field: score.FieldScore, P: 120}}},
		"having metric":     {Dimensions: dims, Metrics: count, Having: []Condition{{Metric: "avg_score", Op: OpGreater}}},
		"having operator":   {Dimensions: dims, Metrics: count, Having: []Condition{{Metric: "count", Op: "~"}}},
		"sort field":        {Dimensions: dims, Metrics: count, Sort: []SortKey{{Field: "subject"}}},
		"negative limit":    {Dimensions: dims, Metrics: count, Limit: -1},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewEngine().Aggregate(fixture(), req)
			require.Error(t, err)
			assert.True(t, shared.IsValidation(err), err.Error())
		})
	}
}

func TestEvaluate_PopulationStatistics(t *testing.T) {
	values := []float64{2, 4, 4, 4, 5, 5, 7, 9}

	v, err := Evaluate(KindVariance, values, 0)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, v, 1e-9)

	sd, err := Evaluate(KindStdDev, values, 0)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, sd, 1e-9)

	m, err := Evaluate(KindMode, []float64{3, 1, 2}, 0)
	require.NoError(t, err)
	assert.Equal(t, 1.0, m, "all unique: smallest value")

	_, err = Evaluate(KindAvg, nil, 0)
	assert.True(t, shared.IsComputation(err))
}
