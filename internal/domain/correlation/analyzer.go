// Package correlation computes Pearson correlation matrices between
// per-student variables built from score records.
package correlation

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/alem-hub/grade-analytics/internal/domain/score"
	"github.com/alem-hub/grade-analytics/internal/domain/shared"
)

const domainName = "correlation"

// MinEntities is the smallest joined sample a matrix is computed for.
const MinEntities = 3

// Interpretation thresholds on |r|.
const (
	StrongThreshold   = 0.7
	ModerateThreshold = 0.3
)

// DefaultAlpha is the significance level used for interpretations.
const DefaultAlpha = 0.05

// ══════════════════════════════════════════════════════════════════════════════
// TYPES
// ══════════════════════════════════════════════════════════════════════════════

// VariableRef selects one per-student variable: the mean of Field over the
// student's records of Subject (all subjects when Subject is empty).
type VariableRef struct {
	Name    string      `json:"name" yaml:"name" validate:"required"`
	Subject string      `json:"subject,omitempty" yaml:"subject,omitempty"`
	Field   score.Field `json:"field,omitempty" yaml:"field,omitempty"`
}

// ValueField returns the field the variable averages, score by default.
func (v VariableRef) ValueField() score.Field {
	if v.Field == "" {
		return score.FieldScore
	}
	return v.Field
}

// SignificanceMethod selects how p-values are derived from t.
type SignificanceMethod string

const (
	// SignificanceStudentT uses the exact Student-t CDF with n-2 degrees of
	// freedom.
	SignificanceStudentT SignificanceMethod = "student_t"

	// SignificanceNormalApprox approximates the t CDF by the standard
	// normal. Biased for small n.
	SignificanceNormalApprox SignificanceMethod = "normal"
)

// Pair is the interpretation of one off-diagonal cell (i < j).
type Pair struct {
	A           string   `json:"a"`
	B           string   `json:"b"`
	R           float64  `json:"r"`
	PValue      *float64 `json:"p_value,omitempty"`
	Strength    string   `json:"strength"`
	Direction   string   `json:"direction"`
	Significant *bool    `json:"significant,omitempty"`
}

// Result is a correlation matrix with optional p-values.
type Result struct {
	Method    string      `json:"method"`
	Variables []string    `json:"variables"`
	Matrix    [][]float64 `json:"matrix"`
	PValues   [][]float64 `json:"p_values,omitempty"`

	Pairs           []Pair   `json:"pairs"`
	Interpretations []string `json:"interpretations"`

	// SampleSize is the number of students having every variable.
	SampleSize int `json:"sample_size"`

	// DroppedEntities counts students missing at least one variable.
	DroppedEntities int `json:"dropped_entities"`
}

// ══════════════════════════════════════════════════════════════════════════════
// ANALYZER
// ══════════════════════════════════════════════════════════════════════════════

// Options configures an Analyzer.
type Options struct {
	Significance SignificanceMethod
	Alpha        float64
}

// Analyzer computes correlation matrices. Safe for concurrent use.
type Analyzer struct {
	significance SignificanceMethod
	alpha        float64
}

// NewAnalyzer creates an analyzer; zero options mean Student-t at 0.05.
func NewAnalyzer(opts Options) *Analyzer {
	if opts.Significance == "" {
		opts.Significance = SignificanceStudentT
	}
	if opts.Alpha <= 0 || opts.Alpha >= 1 {
		opts.Alpha = DefaultAlpha
	}
	return &Analyzer{significance: opts.Significance, alpha: opts.Alpha}
}

// Correlate builds one vector per variable over the students that have a
// value for every variable, then computes the Pearson matrix.
//
// Students missing any variable are dropped; the shrinkage is reported in
// Result.DroppedEntities. The diagonal is exactly 1, every entry lies in
// [-1, 1], and a constant vector correlates 0 with everything else.
func (a *Analyzer) Correlate(records []score.Record, variables []VariableRef, includeSignificance bool) (*Result, error) {
	const op = "Correlate"

	if err := ValidateVariables(variables); err != nil {
		return nil, err
	}
	if a.significance != SignificanceStudentT && a.significance != SignificanceNormalApprox {
		return nil, shared.NewValidationError(domainName, op, "unknown significance method %q", a.significance)
	}

	ids, vectors, total := JoinVariables(records, variables)
	n := len(ids)
	if n < MinEntities {
		return nil, shared.NewInsufficientDataError(domainName, op, n, MinEntities)
	}

	k := len(variables)
	res := &Result{
		Method:          "pearson",
		Variables:       make([]string, k),
		Matrix:          square(k),
		SampleSize:      n,
		DroppedEntities: total - n,
	}
	for i, v := range variables {
		res.Variables[i] = v.Name
	}
	if includeSignificance {
		res.PValues = square(k)
	}

	for i := 0; i < k; i++ {
		res.Matrix[i][i] = 1
		for j := i + 1; j < k; j++ {
			r := Pearson(vectors[i], vectors[j])
			res.Matrix[i][j], res.Matrix[j][i] = r, r
			if includeSignificance {
				p := a.PValue(r, n)
				res.PValues[i][j], res.PValues[j][i] = p, p
			}
		}
	}

	res.Pairs, res.Interpretations = a.interpret(res, includeSignificance)
	return res, nil
}

// ValidateVariables checks names are present and unique and fields numeric.
func ValidateVariables(variables []VariableRef) error {
	const op = "Correlate"

	if len(variables) < 2 {
		return shared.NewValidationError(domainName, op, "at least 2 variables are required, got %d", len(variables))
	}
	seen := make(map[string]bool, len(variables))
	for _, v := range variables {
		if strings.TrimSpace(v.Name) == "" {
			return shared.NewValidationError(domainName, op, "variable name must not be empty")
		}
		if seen[v.Name] {
			return shared.NewValidationError(domainName, op, "duplicate variable name %q", v.Name)
		}
		seen[v.Name] = true
		if !v.ValueField().IsNumeric() {
			return shared.NewValidationError(domainName, op, "variable %q: field %q is not numeric", v.Name, v.Field)
		}
	}
	return nil
}

// JoinVariables returns the sorted ids of students having every variable,
// the aligned value vectors (one per variable), and the number of distinct
// students seen.
func JoinVariables(records []score.Record, variables []VariableRef) ([]string, [][]float64, int) {
	type acc struct{ sum, count float64 }

	perStudent := make(map[string][]acc)
	for _, r := range records {
		row, ok := perStudent[r.StudentID]
		if !ok {
			row = make([]acc, len(variables))
			perStudent[r.StudentID] = row
		}
		for i, v := range variables {
			if v.Subject != "" && v.Subject != r.Subject {
				continue
			}
			val, ok := r.NumericValue(v.ValueField())
			if !ok || !shared.IsFinite(val) {
				continue
			}
			row[i].sum += val
			row[i].count++
		}
	}

	ids := make([]string, 0, len(perStudent))
	for id, row := range perStudent {
		complete := true
		for _, c := range row {
			if c.count == 0 {
				complete = false
				break
			}
		}
		if complete {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	vectors := make([][]float64, len(variables))
	for i := range vectors {
		vectors[i] = make([]float64, len(ids))
		for j, id := range ids {
			c := perStudent[id][i]
			vectors[i][j] = c.sum / c.count
		}
	}
	return ids, vectors, len(perStudent)
}

// Pearson returns the correlation of x and y clamped to [-1, 1].
// A zero-variance input yields 0.
func Pearson(x, y []float64) float64 {
	if len(x) < 2 || len(x) != len(y) {
		return 0
	}
	r := stat.Correlation(x, y, nil)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0
	}
	return shared.Clamp(r, -1, 1)
}

// PValue returns the two-tailed p-value of r over n pairs using the
// analyzer's significance method. n ≤ 2 gives 1, |r| = 1 gives 0.
func (a *Analyzer) PValue(r float64, n int) float64 {
	if n <= 2 {
		return 1
	}
	if math.Abs(r) >= 1 {
		return 0
	}
	df := float64(n - 2)
	t := math.Abs(r * math.Sqrt(df/(1-r*r)))

	var cdf float64
	switch a.significance {
	case SignificanceNormalApprox:
		cdf = distuv.UnitNormal.CDF(t)
	default:
		cdf = distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}.CDF(t)
	}
	return shared.Clamp(2*(1-cdf), 0, 1)
}

func (a *Analyzer) interpret(res *Result, withP bool) ([]Pair, []string) {
	k := len(res.Variables)
	pairs := make([]Pair, 0, k*(k-1)/2)
	texts := make([]string, 0, k*(k-1)/2)

	for i := 0; i < k; i++ {
		for j := i + 1; j < k; j++ {
			r := res.Matrix[i][j]
			p := Pair{
				A:         res.Variables[i],
				B:         res.Variables[j],
				R:         r,
				Strength:  Strength(r),
				Direction: Direction(r),
			}
			text := fmt.Sprintf("%s and %s: %s %s correlation (r=%.3f", p.A, p.B, p.Strength, p.Direction, r)
			if r == 0 {
				text = fmt.Sprintf("%s and %s: no linear correlation (r=%.3f", p.A, p.B, r)
			}
			if withP {
				pv := res.PValues[i][j]
				sig := pv < a.alpha
				p.PValue, p.Significant = &pv, &sig
				text += fmt.Sprintf(", p=%.3f", pv)
				if sig {
					text += ", significant"
				} else {
					text += ", not significant"
				}
			}
			text += ")"
			pairs = append(pairs, p)
			texts = append(texts, text)
		}
	}
	return pairs, texts
}

// Strength classifies |r| as strong, moderate or weak.
func Strength(r float64) string {
	switch abs := math.Abs(r); {
	case abs > StrongThreshold:
		return "strong"
	case abs > ModerateThreshold:
		return "moderate"
	default:
		return "weak"
	}
}

// Direction returns positive, negative or none for r = 0.
func Direction(r float64) string {
	switch {
	case r > 0:
		return "positive"
	case r < 0:
		return "negative"
	default:
		return "none"
	}
}

func square(k int) [][]float64 {
	m := make([][]float64, k)
	for i := range m {
		m[i] = make([]float64, k)
	}
	return m
}
