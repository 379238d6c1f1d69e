package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alem-hub/grade-analytics/internal/domain/aggregation"
	"github.com/alem-hub/grade-analytics/internal/domain/correlation"
	"github.com/alem-hub/grade-analytics/internal/domain/score"
)

// ─────────────────────────────────────────────────────────────────────────────
// Flag mini-languages
// ─────────────────────────────────────────────────────────────────────────────

// parseFields parses "class_name,subject" into fields. Empty items are
// ignored.
func parseFields(values []string) []score.Field {
	var out []score.Field
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, score.Field(part))
			}
		}
	}
	return out
}

// parseMetric parses "kind[:field][=alias]". Percentiles are written
// "p90:score".
//
//	count            avg:score          p90:score=top_decile
func parseMetric(s string) (aggregation.MetricSpec, error) {
	var m aggregation.MetricSpec
	s = strings.TrimSpace(s)
	if i := strings.LastIndex(s, "="); i >= 0 {
		m.Alias = strings.TrimSpace(s[i+1:])
		s = strings.TrimSpace(s[:i])
	}

	kind, field, _ := strings.Cut(s, ":")
	kind = strings.ToLower(strings.TrimSpace(kind))
	m.Field = score.Field(strings.TrimSpace(field))

	if len(kind) > 1 && kind[0] == 'p' && kind != "percentile" {
		p, err := strconv.ParseFloat(kind[1:], 64)
		if err != nil {
			return m, fmt.Errorf("metric %q: bad percentile", s)
		}
		m.Kind = aggregation.KindPercentile
		m.P = p
		return m, nil
	}
	if kind == "" {
		return m, fmt.Errorf("metric %q: missing kind", s)
	}
	m.Kind = aggregation.MetricKind(kind)
	return m, nil
}

func parseMetrics(values []string) ([]aggregation.MetricSpec, error) {
	out := make([]aggregation.MetricSpec, 0, len(values))
	for _, v := range values {
		m, err := parseMetric(v)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// havingOperators is ordered so two-character operators match first.
var havingOperators = []aggregation.Operator{
	aggregation.OpGreaterEqual, aggregation.OpLessEqual, aggregation.OpNotEqual,
	aggregation.OpGreater, aggregation.OpLess, aggregation.OpEqual,
}

// parseCondition parses "avg_score>=60".
func parseCondition(s string) (aggregation.Condition, error) {
	for _, op := range havingOperators {
		metric, value, ok := strings.Cut(s, string(op))
		if !ok {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return aggregation.Condition{}, fmt.Errorf("having %q: bad value", s)
		}
		return aggregation.Condition{Metric: strings.TrimSpace(metric), Op: op, Value: v}, nil
	}
	return aggregation.Condition{}, fmt.Errorf("having %q: missing operator", s)
}

func parseConditions(values []string) ([]aggregation.Condition, error) {
	out := make([]aggregation.Condition, 0, len(values))
	for _, v := range values {
		c, err := parseCondition(v)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// parseSortKey parses "field[:asc|desc]".
func parseSortKey(s string) (aggregation.SortKey, error) {
	field, order, _ := strings.Cut(strings.TrimSpace(s), ":")
	key := aggregation.SortKey{Field: strings.TrimSpace(field), Order: aggregation.Asc}
	switch strings.ToLower(strings.TrimSpace(order)) {
	case "", "asc":
	case "desc":
		key.Order = aggregation.Desc
	default:
		return key, fmt.Errorf("sort %q: order must be asc or desc", s)
	}
	if key.Field == "" {
		return key, fmt.Errorf("sort %q: missing field", s)
	}
	return key, nil
}

func parseSortKeys(values []string) ([]aggregation.SortKey, error) {
	out := make([]aggregation.SortKey, 0, len(values))
	for _, v := range values {
		k, err := parseSortKey(v)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, nil
}

// parseVariable parses "name=subject[:field]". A bare "subject" names the
// variable after the subject.
func parseVariable(s string) (correlation.VariableRef, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return correlation.VariableRef{}, fmt.Errorf("empty variable")
	}
	name, rest, ok := strings.Cut(s, "=")
	if !ok {
		rest = name
	}
	subject, field, _ := strings.Cut(rest, ":")
	v := correlation.VariableRef{
		Name:    strings.TrimSpace(name),
		Subject: strings.TrimSpace(subject),
		Field:   score.Field(strings.TrimSpace(field)),
	}
	if !ok && v.Field != "" {
		v.Name = v.Subject + "_" + string(v.Field)
	}
	return v, nil
}

func parseVariables(values []string) ([]correlation.VariableRef, error) {
	out := make([]correlation.VariableRef, 0, len(values))
	for _, s := range values {
		v, err := parseVariable(s)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
