// Package aggregation groups score records along arbitrary dimension tuples
// and computes per-group metrics with having, sort and limit semantics.
package aggregation

import (
	"sort"

	"github.com/alem-hub/grade-analytics/internal/domain/score"
	"github.com/alem-hub/grade-analytics/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RESULT
// ══════════════════════════════════════════════════════════════════════════════

// Group is one output row.
type Group struct {
	// DimensionValues follows the order of Request.Dimensions.
	DimensionValues []string `json:"dimension_values"`

	// Metrics is keyed by MetricSpec.Name().
	Metrics map[string]float64 `json:"metrics"`

	// SampleSize is the number of records in the group.
	SampleSize int `json:"sample_size"`

	// PercentageOfTotal is SampleSize relative to all input records.
	PercentageOfTotal float64 `json:"percentage_of_total"`
}

// Metadata describes how many groups survived each stage.
type Metadata struct {
	TotalRecords   int `json:"total_records"`
	TotalGroups    int `json:"total_groups"`
	FilteredGroups int `json:"filtered_groups"`
	ReturnedGroups int `json:"returned_groups"`
}

// Result is the outcome of Aggregate.
type Result struct {
	Dimensions []score.Field `json:"dimensions"`
	Groups     []Group       `json:"groups"`

	// Totals holds, for every sum and count metric, the sum of that metric
	// over the returned rows only. With a Limit set, totals describe the
	// returned page and not the full group set.
	Totals map[string]float64 `json:"totals"`

	Metadata Metadata `json:"metadata"`
}

// ══════════════════════════════════════════════════════════════════════════════
// ENGINE
// ══════════════════════════════════════════════════════════════════════════════

// Engine performs aggregations. It holds no state and is safe for
// concurrent use.
type Engine struct{}

// NewEngine creates an aggregation engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Aggregate validates req, groups records by the requested dimension tuple,
// computes metrics, then applies having, sort and limit in that order.
//
// Groups are produced in ascending dimension-tuple order, so the result does
// not depend on input order. An empty record set yields an empty result.
func (e *Engine) Aggregate(records []score.Record, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	index := newTupleIndex(len(req.Dimensions))
	for _, r := range records {
		values := make([]string, len(req.Dimensions))
		for i, d := range req.Dimensions {
			values[i], _ = r.DimensionValue(d)
		}
		index.add(values, r)
	}

	buckets := index.buckets()
	sort.Slice(buckets, func(i, j int) bool {
		return compareTuples(buckets[i].key, buckets[j].key) < 0
	})

	groups := make([]Group, 0, len(buckets))
	for _, b := range buckets {
		metrics, err := computeMetrics(b.records, req.Metrics)
		if err != nil {
			return nil, err
		}
		g := Group{
			DimensionValues: b.key,
			Metrics:         metrics,
			SampleSize:      len(b.records),
		}
		if len(records) > 0 {
			g.PercentageOfTotal = float64(g.SampleSize) / float64(len(records)) * 100
		}
		groups = append(groups, g)
	}

	meta := Metadata{TotalRecords: len(records), TotalGroups: len(groups)}

	groups = applyHaving(groups, req.Having)
	meta.FilteredGroups = len(groups)

	sortGroups(groups, req.Sort, req.Dimensions)

	if req.Limit > 0 && len(groups) > req.Limit {
		groups = groups[:req.Limit]
	}
	meta.ReturnedGroups = len(groups)

	return &Result{
		Dimensions: req.Dimensions,
		Groups:     groups,
		Totals:     totals(groups, req.Metrics),
		Metadata:   meta,
	}, nil
}

// applyHaving keeps groups satisfying every condition.
func applyHaving(groups []Group, having []Condition) []Group {
	if len(having) == 0 {
		return groups
	}
	out := groups[:0:0]
	for _, g := range groups {
		if passes(g, having) {
			out = append(out, g)
		}
	}
	return out
}

func passes(g Group, having []Condition) bool {
	for _, c := range having {
		ok, _ := c.Op.Apply(g.Metrics[c.Metric], c.Value)
		if !ok {
			return false
		}
	}
	return true
}

// sortGroups orders rows by keys; the first non-equal key decides and
// equal rows keep their tuple order.
func sortGroups(groups []Group, keys []SortKey, dims []score.Field) {
	if len(keys) == 0 {
		return
	}
	dimPos := make(map[string]int, len(dims))
	for i, d := range dims {
		dimPos[string(d)] = i
	}

	sort.SliceStable(groups, func(i, j int) bool {
		for _, k := range keys {
			c := compareOn(groups[i], groups[j], k.Field, dimPos)
			if c == 0 {
				continue
			}
			if k.Order == Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

func compareOn(a, b Group, field string, dimPos map[string]int) int {
	switch field {
	case SortBySampleSize:
		return compareFloat(float64(a.SampleSize), float64(b.SampleSize))
	case SortByPercentage:
		return compareFloat(a.PercentageOfTotal, b.PercentageOfTotal)
	}
	if av, ok := a.Metrics[field]; ok {
		return compareFloat(av, b.Metrics[field])
	}
	if pos, ok := dimPos[field]; ok {
		return compareString(a.DimensionValues[pos], b.DimensionValues[pos])
	}
	return 0
}

// totals sums every sum/count metric over the given rows.
func totals(groups []Group, metrics []MetricSpec) map[string]float64 {
	out := make(map[string]float64)
	for _, m := range metrics {
		if !m.Kind.totalled() {
			continue
		}
		name := m.Name()
		out[name] = 0
		for _, g := range groups {
			out[name] += g.Metrics[name]
		}
	}
	return out
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// NumericValues extracts the finite numeric values of field from records.
// Records without a value (rank 0) are skipped; a non-finite value is a
// computation error.
func NumericValues(records []score.Record, field score.Field) ([]float64, error) {
	values := make([]float64, 0, len(records))
	for _, r := range records {
		v, ok := r.NumericValue(field)
		if !ok {
			continue
		}
		if !shared.IsFinite(v) {
			return nil, shared.NewComputationError(domainName, "NumericValues", "non-finite %s for student %q", field, r.StudentID)
		}
		values = append(values, v)
	}
	return values, nil
}
