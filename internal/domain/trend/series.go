// Package trend builds per-exam-date time series from score records,
// smooths them, classifies their direction and projects them forward.
package trend

import (
	"sort"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/alem-hub/grade-analytics/internal/domain/score"
	"github.com/alem-hub/grade-analytics/internal/domain/shared"
	"github.com/alem-hub/grade-analytics/pkg/timeutil"
)

const domainName = "trend"

// Point is one observation of a series.
type Point struct {
	Time  time.Time `json:"timestamp"`
	Value float64   `json:"value"`

	// Count is the number of records aggregated into the point.
	Count int `json:"count,omitempty"`
}

// Aggregation folds the values of one exam date into a point.
type Aggregation string

const (
	AggregationAvg Aggregation = "avg"
	AggregationSum Aggregation = "sum"
	AggregationMin Aggregation = "min"
	AggregationMax Aggregation = "max"
)

// IsValid checks if the aggregation is known.
func (a Aggregation) IsValid() bool {
	switch a {
	case AggregationAvg, AggregationSum, AggregationMin, AggregationMax:
		return true
	}
	return false
}

// BuildSeries groups records by exam date and aggregates field per date.
// Records without an exam date or a value are skipped. Points are in
// ascending time order. An empty agg means avg.
func BuildSeries(records []score.Record, field score.Field, agg Aggregation) ([]Point, error) {
	const op = "BuildSeries"

	if agg == "" {
		agg = AggregationAvg
	}
	if !agg.IsValid() {
		return nil, shared.NewValidationError(domainName, op, "unknown aggregation %q", agg)
	}
	if !field.IsNumeric() {
		return nil, shared.NewValidationError(domainName, op, "field %q is not numeric", field)
	}

	byDay := make(map[time.Time][]float64)
	for _, r := range records {
		if r.ExamDate.IsZero() {
			continue
		}
		v, ok := r.NumericValue(field)
		if !ok || !shared.IsFinite(v) {
			continue
		}
		day := timeutil.StartOfDay(r.ExamDate)
		byDay[day] = append(byDay[day], v)
	}

	days := make([]time.Time, 0, len(byDay))
	for d := range byDay {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	series := make([]Point, 0, len(days))
	for _, d := range days {
		values := byDay[d]
		v, err := fold(agg, values)
		if err != nil {
			return nil, shared.WrapError(domainName, op, shared.ErrComputation, "aggregate "+timeutil.FormatDate(d), err)
		}
		series = append(series, Point{Time: d, Value: v, Count: len(values)})
	}
	return series, nil
}

func fold(agg Aggregation, values []float64) (float64, error) {
	switch agg {
	case AggregationSum:
		return stats.Sum(values)
	case AggregationMin:
		return stats.Min(values)
	case AggregationMax:
		return stats.Max(values)
	default:
		return stats.Mean(values)
	}
}

// Smooth returns the simple moving average over window points. Only full
// windows are kept, so the result has len(series)-window+1 points, each
// stamped with the time of its last input. A window of 1 or less, or a
// series shorter than the window, is returned as a copy.
func Smooth(series []Point, window int) []Point {
	if window <= 1 || len(series) < window {
		out := make([]Point, len(series))
		copy(out, series)
		return out
	}

	out := make([]Point, 0, len(series)-window+1)
	sum := 0.0
	for i, p := range series {
		sum += p.Value
		if i >= window {
			sum -= series[i-window].Value
		}
		if i >= window-1 {
			out = append(out, Point{Time: p.Time, Value: sum / float64(window), Count: window})
		}
	}
	return out
}

// Values extracts the point values.
func Values(series []Point) []float64 {
	out := make([]float64, len(series))
	for i, p := range series {
		out[i] = p.Value
	}
	return out
}

func times(series []Point) []time.Time {
	out := make([]time.Time, len(series))
	for i, p := range series {
		out[i] = p.Time
	}
	return out
}
