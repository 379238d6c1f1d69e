package aggregation

import (
	"sort"

	"github.com/montanaflynn/stats"

	"github.com/alem-hub/grade-analytics/internal/domain/score"
	"github.com/alem-hub/grade-analytics/internal/domain/shared"
)

// computeMetrics evaluates every metric over one group's records.
func computeMetrics(records []score.Record, specs []MetricSpec) (map[string]float64, error) {
	out := make(map[string]float64, len(specs))
	for _, m := range specs {
		v, err := computeMetric(records, m)
		if err != nil {
			return nil, err
		}
		out[m.Name()] = v
	}
	return out, nil
}

func computeMetric(records []score.Record, m MetricSpec) (float64, error) {
	switch m.Kind {
	case KindCount:
		return countValues(records, m.Field), nil
	case KindDistinct:
		return distinctValues(records, m.Field), nil
	}

	values, err := NumericValues(records, m.Field)
	if err != nil {
		return 0, err
	}

	if m.Kind == KindSum {
		sum, _ := stats.Sum(values)
		return sum, nil
	}
	if len(values) == 0 {
		return 0, shared.NewComputationError(domainName, "Aggregate", "%s over %s: group has no values", m.Kind, m.Field)
	}

	return Evaluate(m.Kind, values, m.P)
}

// Evaluate computes a numeric metric kind over a non-empty slice.
// Variance and standard deviation are population statistics.
// Percentiles use linear interpolation on index p/100*(n-1).
func Evaluate(kind MetricKind, values []float64, p float64) (float64, error) {
	if len(values) == 0 {
		return 0, shared.NewComputationError(domainName, "Evaluate", "%s of empty set", kind)
	}
	var (
		v   float64
		err error
	)
	switch kind {
	case KindSum:
		v, err = stats.Sum(values)
	case KindAvg:
		v, err = stats.Mean(values)
	case KindMin:
		v, err = stats.Min(values)
	case KindMax:
		v, err = stats.Max(values)
	case KindMedian:
		v, err = stats.Median(values)
	case KindVariance:
		v, err = stats.PopulationVariance(values)
	case KindStdDev:
		v, err = stats.StandardDeviationPopulation(values)
	case KindMode:
		v, err = mode(values)
	case KindPercentile:
		pv, ok := shared.Percentile(values, p)
		if !ok {
			return 0, shared.NewComputationError(domainName, "Evaluate", "percentile %v out of range", p)
		}
		v = pv
	default:
		return 0, shared.NewValidationError(domainName, "Evaluate", "unknown metric kind %q", kind)
	}
	if err != nil {
		return 0, shared.WrapError(domainName, "Evaluate", shared.ErrComputation, string(kind)+" failed", err)
	}
	return v, nil
}

// mode returns the smallest of the most frequent values.
func mode(values []float64) (float64, error) {
	modes, err := stats.Mode(values)
	if err != nil {
		return 0, err
	}
	if len(modes) == 0 {
		// every value occurs once
		return stats.Min(values)
	}
	sort.Float64s(modes)
	return modes[0], nil
}

// countValues counts records carrying a value for field. An empty field
// counts all records.
func countValues(records []score.Record, field score.Field) float64 {
	if field == "" || field.IsDimension() || field == score.FieldScore {
		return float64(len(records))
	}
	n := 0
	for _, r := range records {
		if _, ok := r.NumericValue(field); ok {
			n++
		}
	}
	return float64(n)
}

// distinctValues counts distinct values of field within the group.
func distinctValues(records []score.Record, field score.Field) float64 {
	if field.IsDimension() {
		seen := make(map[string]struct{})
		for _, r := range records {
			v, _ := r.DimensionValue(field)
			seen[v] = struct{}{}
		}
		return float64(len(seen))
	}
	seen := make(map[float64]struct{})
	for _, r := range records {
		if v, ok := r.NumericValue(field); ok {
			seen[v] = struct{}{}
		}
	}
	return float64(len(seen))
}
