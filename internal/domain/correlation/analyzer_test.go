package correlation

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/grade-analytics/internal/domain/score"
	"github.com/alem-hub/grade-analytics/internal/domain/shared"
)

// records builds math/physics/art scores for n students; physics tracks
// math, art runs opposite.
func records(n int) []score.Record {
	out := make([]score.Record, 0, 3*n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("s%02d", i)
		m := 50 + float64(i)*4
		out = append(out,
			score.Record{StudentID: id, Subject: "math", Score: m},
			score.Record{StudentID: id, Subject: "physics", Score: m*0.8 + float64(i%3)},
			score.Record{StudentID: id, Subject: "art", Score: 100 - m},
		)
	}
	return out
}

func TestCorrelate_SelfAndNegation(t *testing.T) {
	res, err := NewAnalyzer(Options{}).Correlate(records(10), []VariableRef{
		{Name: "x", Subject: "math"},
		{Name: "x_again", Subject: "math"},
		{Name: "minus_x", Subject: "art"},
	}, true)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, res.Matrix[0][1], 1e-12)
	assert.InDelta(t, -1.0, res.Matrix[0][2], 1e-12)
	assert.InDelta(t, 0.0, res.PValues[0][1], 1e-9)
	assert.Equal(t, 10, res.SampleSize)
	assert.Equal(t, 0, res.DroppedEntities)
}

func TestCorrelate_MatrixProperties(t *testing.T) {
	vars := []VariableRef{
		{Name: "math", Subject: "math"},
		{Name: "physics", Subject: "physics"},
		{Name: "art", Subject: "art"},
		{Name: "overall"},
	}
	res, err := NewAnalyzer(Options{}).Correlate(records(12), vars, false)
	require.NoError(t, err)
	assert.Nil(t, res.PValues)

	for i := range res.Matrix {
		assert.Equal(t, 1.0, res.Matrix[i][i])
		for j := range res.Matrix {
			assert.Equal(t, res.Matrix[i][j], res.Matrix[j][i])
			assert.GreaterOrEqual(t, res.Matrix[i][j], -1.0)
			assert.LessOrEqual(t, res.Matrix[i][j], 1.0)
		}
	}
	assert.Len(t, res.Interpretations, 6)
	assert.Contains(t, res.Interpretations[0], "math and physics: strong positive correlation")
	assert.NotContains(t, res.Interpretations[0], "p=")
}

func TestCorrelate_InnerJoinDropsIncompleteStudents(t *testing.T) {
	recs := records(6)
	recs = append(recs, score.Record{StudentID: "only-math", Subject: "math", Score: 70})

	res, err := NewAnalyzer(Options{}).Correlate(recs, []VariableRef{
		{Name: "math", Subject: "math"},
		{Name: "physics", Subject: "physics"},
	}, false)
	require.NoError(t, err)
	assert.Equal(t, 6, res.SampleSize)
	assert.Equal(t, 1, res.DroppedEntities)
}

func TestCorrelate_ConstantVectorIsZero(t *testing.T) {
	recs := []score.Record{}
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("s%d", i)
		recs = append(recs,
			score.Record{StudentID: id, Subject: "math", Score: float64(60 + i)},
			score.Record{StudentID: id, Subject: "pe", Score: 100},
		)
	}
	res, err := NewAnalyzer(Options{}).Correlate(recs, []VariableRef{
		{Name: "math", Subject: "math"},
		{Name: "pe", Subject: "pe"},
	}, true)
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Matrix[0][1])
	assert.Equal(t, 1.0, res.PValues[0][1])
	assert.Contains(t, res.Interpretations[0], "pe: no linear correlation")
}

func TestCorrelate_Errors(t *testing.T) {
	a := NewAnalyzer(Options{})

	_, err := a.Correlate(records(5), []VariableRef{{Name: "math", Subject: "math"}}, false)
	assert.True(t, shared.IsValidation(err))

	_, err = a.Correlate(records(5), []VariableRef{{Name: "m", Subject: "math"}, {Name: "m", Subject: "art"}}, false)
	assert.True(t, shared.IsValidation(err))

	_, err = a.Correlate(records(5), []VariableRef{{Name: "m", Field: score.FieldSubject}, {Name: "a"}}, false)
	assert.True(t, shared.IsValidation(err))

	_, err = a.Correlate(records(2), []VariableRef{{Name: "m", Subject: "math"}, {Name: "a", Subject: "art"}}, false)
	assert.True(t, shared.IsDataInsufficiency(err))
}

func TestPValue_StudentTVersusNormal(t *testing.T) {
	exact := NewAnalyzer(Options{Significance: SignificanceStudentT})
	approx := NewAnalyzer(Options{Significance: SignificanceNormalApprox})

	// r=0.6, n=10: t = 0.6*sqrt(8/0.64) = 2.1213; two-tailed t(8) p ≈ 0.0667
	assert.InDelta(t, 0.0667, exact.PValue(0.6, 10), 0.001)
	// the normal approximation is anti-conservative for small n
	assert.InDelta(t, 0.0339, approx.PValue(0.6, 10), 0.001)
	assert.Less(t, approx.PValue(0.6, 10), exact.PValue(0.6, 10))

	assert.Equal(t, 1.0, exact.PValue(0.9, 2))
	assert.Equal(t, 0.0, exact.PValue(-1, 50))
	assert.InDelta(t, 1.0, exact.PValue(0, 30), 1e-12)
}

func TestStrengthAndDirection(t *testing.T) {
	assert.Equal(t, "strong", Strength(-0.71))
	assert.Equal(t, "moderate", Strength(0.7))
	assert.Equal(t, "weak", Strength(0.3))
	assert.Equal(t, "negative", Direction(-0.1))
	assert.False(t, math.IsNaN(Pearson([]float64{1}, []float64{2})))
}
