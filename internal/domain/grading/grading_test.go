package grading

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/grade-analytics/internal/domain/score"
)

func TestLevelForRank_CohortOf100(t *testing.T) {
	expect := func(rank int) Level {
		switch {
		case rank <= 5:
			return LevelAPlus
		case rank <= 25:
			return LevelA
		case rank <= 50:
			return LevelBPlus
		case rank <= 75:
			return LevelB
		case rank <= 95:
			return LevelCPlus
		default:
			return LevelC
		}
	}

	for rank := 1; rank <= 100; rank++ {
		level, ok := LevelForRank(rank, 100)
		require.True(t, ok)
		assert.Equal(t, expect(rank), level, "rank %d", rank)
	}
}

func TestLevelForRank_CohortOf4(t *testing.T) {
	want := []Level{LevelA, LevelBPlus, LevelB, LevelC}
	for i, w := range want {
		level, ok := LevelForRank(i+1, 4)
		assert.True(t, ok)
		assert.Equal(t, w, level, "rank %d", i+1)
	}
}

func TestLevelForRank_EveryRankMapsAndIsMonotonic(t *testing.T) {
	for size := 1; size <= 250; size++ {
		prev := LevelAPlus
		for rank := 1; rank <= size; rank++ {
			level, ok := LevelForRank(rank, size)
			require.True(t, ok)
			require.True(t, level.IsValid())
			assert.False(t, level.Better(prev), "size %d rank %d got %s after %s", size, rank, level, prev)
			prev = level
		}
		last, _ := LevelForRank(size, size)
		assert.Equal(t, LevelC, last)
	}
}

func TestLevelForRank_Degenerate(t *testing.T) {
	cases := []struct{ rank, size int }{
		{0, 10}, {-1, 10}, {1, 0}, {1, -5},
	}
	for _, c := range cases {
		level, ok := LevelForRank(c.rank, c.size)
		assert.False(t, ok)
		assert.Equal(t, LevelC, level)
	}
}

func TestBands_PartitionRange(t *testing.T) {
	bs := Bands()
	require.Len(t, bs, 6)
	assert.Equal(t, 0, bs[0].Lower)
	assert.Equal(t, 100, bs[len(bs)-1].Upper)

	width := 0
	for i, b := range bs {
		if i > 0 {
			assert.Equal(t, bs[i-1].Upper, b.Lower, "gap or overlap at band %d", i)
		}
		width += b.Upper - b.Lower
	}
	assert.Equal(t, 100, width)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		token string
		want  Level
	}{
		{"A+", LevelAPlus},
		{" a+ ", LevelAPlus},
		{"A＋", LevelAPlus},
		{"b +", LevelBPlus},
		{"c", LevelC},
		{"优秀", LevelAPlus},
		{"优", LevelAPlus},
		{" 良好 ", LevelA},
		{"中等", LevelB},
		{"及格", LevelCPlus},
		{"不及格", LevelC},
		{"甲", LevelAPlus},
		{"乙", LevelA},
		{"丙", LevelB},
		{"丁", LevelC},
	}
	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			got, ok := Normalize(tt.token)
			assert.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalize_Unknown(t *testing.T) {
	for _, token := range []string{"", "   ", "D", "A++", "excellent", "戊"} {
		got, ok := Normalize(token)
		assert.False(t, ok, token)
		assert.Empty(t, got)
	}
}

func TestNormalize_IdempotentAndCaseInsensitive(t *testing.T) {
	for token, level := range Vocabulary() {
		got, ok := Normalize(token)
		require.True(t, ok, token)
		assert.Equal(t, level, got)

		again, ok := Normalize(string(got))
		require.True(t, ok)
		assert.Equal(t, got, again, "normalize(normalize(%q))", token)

		lower, ok := Normalize("  " + strings.ToLower(token) + " ")
		require.True(t, ok)
		assert.Equal(t, level, lower)
	}
}

func TestClassifier_FallbackPriority(t *testing.T) {
	c := NewClassifier()

	imported := c.Resolve(score.Record{StudentID: "s", ImportedGrade: "丙", RankInCohort: 1}, 100)
	assert.Equal(t, SourceImported, imported.Source)
	assert.Equal(t, LevelB, imported.Level)

	calculated := c.Resolve(score.Record{StudentID: "s", ImportedGrade: "??", RankInCohort: 1}, 100)
	assert.Equal(t, SourceCalculated, calculated.Source)
	assert.Equal(t, LevelAPlus, calculated.Level)
	assert.Equal(t, 1.0, calculated.Percentile)

	noRank := c.Resolve(score.Record{StudentID: "s"}, 100)
	assert.Equal(t, SourceDefault, noRank.Source)
	assert.Equal(t, LevelC, noRank.Level)

	badCohort := c.Resolve(score.Record{StudentID: "s", RankInCohort: 3}, 0)
	assert.Equal(t, SourceDefault, badCohort.Source)

	rankBeyondCohort := c.Resolve(score.Record{StudentID: "s", RankInCohort: 5}, 4)
	assert.Equal(t, SourceCalculated, rankBeyondCohort.Source)
	assert.Equal(t, LevelC, rankBeyondCohort.Level)
	assert.Equal(t, 125.0, rankBeyondCohort.Percentile)
}

func TestLevelForRank_BeyondCohort(t *testing.T) {
	level, ok := LevelForRank(11, 10)
	assert.True(t, ok)
	assert.Equal(t, LevelC, level)
}

func TestClassifier_ResolveAllUsesCohortSizes(t *testing.T) {
	records := []score.Record{
		{StudentID: "a", CohortKey: "x", RankInCohort: 1},
		{StudentID: "b", CohortKey: "x", RankInCohort: 2},
		{StudentID: "c", CohortKey: "x", RankInCohort: 3},
		{StudentID: "d", CohortKey: "x", RankInCohort: 4},
		{StudentID: "e", CohortKey: "y", RankInCohort: 1},
	}
	out := NewClassifier().ResolveAll(records)
	require.Len(t, out, 5)

	got := make([]Level, 0, 5)
	for _, c := range out {
		got = append(got, c.Level)
	}
	// cohort y has size 1: rank 1 is the 100th percentile
	assert.Equal(t, []Level{LevelA, LevelBPlus, LevelB, LevelC, LevelC}, got)
	assert.Equal(t, "e", out[4].Record.StudentID)
}

func TestAssignRanks_CompetitionRanking(t *testing.T) {
	records := []score.Record{
		{StudentID: "a", CohortKey: "x", Score: 70},
		{StudentID: "b", CohortKey: "x", Score: 90},
		{StudentID: "c", CohortKey: "x", Score: 90},
		{StudentID: "d", CohortKey: "x", Score: 50},
		{StudentID: "e", CohortKey: "y", Score: 10},
	}
	ranked := AssignRanks(records)

	ranks := map[string]int{}
	for _, r := range ranked {
		ranks[r.StudentID] = r.RankInCohort
	}
	assert.Equal(t, map[string]int{"a": 3, "b": 1, "c": 1, "d": 4, "e": 1}, ranks)
	assert.Zero(t, records[0].RankInCohort, "input must not be mutated")
}

func TestFillMissingRanks_KeepsSuppliedCohorts(t *testing.T) {
	records := []score.Record{
		{StudentID: "a", CohortKey: "x", Score: 70, RankInCohort: 2},
		{StudentID: "b", CohortKey: "x", Score: 90},
		{StudentID: "c", CohortKey: "y", Score: 40},
		{StudentID: "d", CohortKey: "y", Score: 60},
	}
	out := FillMissingRanks(records)
	assert.Equal(t, 2, out[0].RankInCohort)
	assert.Equal(t, 0, out[1].RankInCohort)
	assert.Equal(t, 2, out[2].RankInCohort)
	assert.Equal(t, 1, out[3].RankInCohort)
}

func TestDistribution_KeepsAllLevels(t *testing.T) {
	classified := []ClassifiedRecord{
		{Level: LevelA}, {Level: LevelA}, {Level: LevelC}, {Level: LevelBPlus},
	}
	dist := Distribution(classified)
	require.Len(t, dist, 6)
	assert.Equal(t, LevelAPlus, dist[0].Level)
	assert.Equal(t, 0, dist[0].Count)
	assert.Equal(t, 2, dist[1].Count)
	assert.InDelta(t, 50.0, dist[1].Percentage, 1e-9)
	assert.Equal(t, LevelC, dist[5].Level)
	assert.InDelta(t, 25.0, dist[5].Percentage, 1e-9)

	empty := Distribution(nil)
	require.Len(t, empty, 6)
	for _, s := range empty {
		assert.Zero(t, s.Percentage)
	}
}
