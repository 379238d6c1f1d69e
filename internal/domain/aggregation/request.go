package aggregation

import (
	"fmt"
	"math"
	"strconv"

	"github.com/alem-hub/grade-analytics/internal/domain/score"
	"github.com/alem-hub/grade-analytics/internal/domain/shared"
)

const domainName = "aggregation"

// ══════════════════════════════════════════════════════════════════════════════
// METRICS
// ══════════════════════════════════════════════════════════════════════════════

// MetricKind is an aggregate function.
type MetricKind string

const (
	KindSum        MetricKind = "sum"
	KindAvg        MetricKind = "avg"
	KindMin        MetricKind = "min"
	KindMax        MetricKind = "max"
	KindCount      MetricKind = "count"
	KindDistinct   MetricKind = "distinct"
	KindPercentile MetricKind = "percentile"
	KindMedian     MetricKind = "median"
	KindMode       MetricKind = "mode"
	KindVariance   MetricKind = "variance"
	KindStdDev     MetricKind = "stddev"
)

var knownKinds = map[MetricKind]bool{
	KindSum: true, KindAvg: true, KindMin: true, KindMax: true,
	KindCount: true, KindDistinct: true, KindPercentile: true,
	KindMedian: true, KindMode: true, KindVariance: true, KindStdDev: true,
}

// IsKnown reports whether k is a supported metric kind.
func (k MetricKind) IsKnown() bool {
	return knownKinds[k]
}

// numeric reports whether the kind needs numeric field values.
func (k MetricKind) numeric() bool {
	return k != KindCount && k != KindDistinct
}

// totalled reports whether the kind contributes to Result.Totals.
func (k MetricKind) totalled() bool {
	return k == KindSum || k == KindCount
}

// MetricSpec describes one metric to compute per group.
type MetricSpec struct {
	Kind MetricKind `json:"kind" yaml:"kind"`

	// Field is the record field the metric reads. count may leave it empty
	// to count records; count and distinct accept dimension fields too.
	Field score.Field `json:"field,omitempty" yaml:"field,omitempty"`

	// P is the percentile (0..100), used only by KindPercentile.
	P float64 `json:"p,omitempty" yaml:"p,omitempty"`

	// Alias overrides the generated metric name.
	Alias string `json:"alias,omitempty" yaml:"alias,omitempty"`
}

// Name returns the key under which the metric is reported:
// the alias when set, otherwise "<kind>_<field>" ("p<p>_<field>" for
// percentiles, bare "count" for a record count).
func (m MetricSpec) Name() string {
	if m.Alias != "" {
		return m.Alias
	}
	if m.Kind == KindPercentile {
		return "p" + strconv.FormatFloat(m.P, 'f', -1, 64) + "_" + string(m.Field)
	}
	if m.Field == "" {
		return string(m.Kind)
	}
	return string(m.Kind) + "_" + string(m.Field)
}

// ══════════════════════════════════════════════════════════════════════════════
// HAVING / SORT
// ══════════════════════════════════════════════════════════════════════════════

// Operator compares a metric value with a literal.
type Operator string

const (
	OpGreater      Operator = ">"
	OpLess         Operator = "<"
	OpGreaterEqual Operator = ">="
	OpLessEqual    Operator = "<="
	OpEqual        Operator = "="
	OpNotEqual     Operator = "!="
)

// Apply evaluates "left op right". ok is false for an unknown operator.
func (op Operator) Apply(left, right float64) (result bool, ok bool) {
	switch op {
	case OpGreater:
		return left > right, true
	case OpLess:
		return left < right, true
	case OpGreaterEqual:
		return left >= right, true
	case OpLessEqual:
		return left <= right, true
	case OpEqual:
		return left == right, true
	case OpNotEqual:
		return left != right, true
	default:
		return false, false
	}
}

// Condition is one having clause: metric op value.
type Condition struct {
	Metric string   `json:"metric" yaml:"metric"`
	Op     Operator `json:"op" yaml:"op"`
	Value  float64  `json:"value" yaml:"value"`
}

// SortOrder is asc or desc.
type SortOrder string

const (
	Asc  SortOrder = "asc"
	Desc SortOrder = "desc"
)

// Special sort fields besides metric names and grouping dimensions.
const (
	SortBySampleSize = "sample_size"
	SortByPercentage = "percentage"
)

// SortKey orders result rows by a metric name, a grouping dimension,
// sample_size or percentage.
type SortKey struct {
	Field string    `json:"field" yaml:"field"`
	Order SortOrder `json:"order,omitempty" yaml:"order,omitempty"`
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST
// ══════════════════════════════════════════════════════════════════════════════

// Request is a complete aggregation request.
type Request struct {
	Dimensions []score.Field `json:"dimensions" yaml:"dimensions"`
	Metrics    []MetricSpec  `json:"metrics" yaml:"metrics"`
	Having     []Condition   `json:"having,omitempty" yaml:"having,omitempty"`
	Sort       []SortKey     `json:"sort,omitempty" yaml:"sort,omitempty"`

	// Limit caps the number of returned rows after sorting. 0 means no limit.
	Limit int `json:"limit,omitempty" yaml:"limit,omitempty"`
}

// Validate checks the request before any grouping work.
func (r Request) Validate() error {
	const op = "Validate"

	if len(r.Dimensions) == 0 {
		return shared.NewValidationError(domainName, op, "at least one dimension is required")
	}
	dims := make(map[string]bool, len(r.Dimensions))
	for _, d := range r.Dimensions {
		if !d.IsDimension() {
			return shared.NewValidationError(domainName, op, "unknown dimension field %q (known: %v)", d, score.FieldNames(false))
		}
		if dims[string(d)] {
			return shared.NewValidationError(domainName, op, "dimension %q listed twice", d)
		}
		dims[string(d)] = true
	}

	if len(r.Metrics) == 0 {
		return shared.NewValidationError(domainName, op, "at least one metric is required")
	}
	names := make(map[string]bool, len(r.Metrics))
	for _, m := range r.Metrics {
		if err := m.validate(); err != nil {
			return err
		}
		if names[m.Name()] {
			return shared.NewValidationError(domainName, op, "duplicate metric name %q", m.Name())
		}
		names[m.Name()] = true
	}

	for _, c := range r.Having {
		if !names[c.Metric] {
			return shared.NewValidationError(domainName, op, "having references unknown metric %q", c.Metric)
		}
		if _, ok := c.Op.Apply(0, 0); !ok {
			return shared.NewValidationError(domainName, op, "having uses unknown operator %q", c.Op)
		}
		if math.IsNaN(c.Value) {
			return shared.NewValidationError(domainName, op, "having value for %q is not a number", c.Metric)
		}
	}

	for _, s := range r.Sort {
		if s.Order != "" && s.Order != Asc && s.Order != Desc {
			return shared.NewValidationError(domainName, op, "unknown sort order %q", s.Order)
		}
		if names[s.Field] || dims[s.Field] || s.Field == SortBySampleSize || s.Field == SortByPercentage {
			continue
		}
		return shared.NewValidationError(domainName, op, "unknown sort field %q", s.Field)
	}

	if r.Limit < 0 {
		return shared.NewValidationError(domainName, op, "limit must not be negative, got %d", r.Limit)
	}
	return nil
}

func (m MetricSpec) validate() error {
	const op = "Validate"

	if !m.Kind.IsKnown() {
		return shared.NewValidationError(domainName, op, "unknown metric kind %q", m.Kind)
	}
	if m.Kind.numeric() && !m.Field.IsNumeric() {
		return shared.NewValidationError(domainName, op, "metric %s needs a numeric field, got %q (known: %v)", m.Kind, m.Field, score.FieldNames(true))
	}
	if !m.Kind.numeric() {
		if m.Kind == KindDistinct && m.Field == "" {
			return shared.NewValidationError(domainName, op, "distinct needs a field")
		}
		if m.Field != "" && !m.Field.IsNumeric() && !m.Field.IsDimension() {
			return shared.NewValidationError(domainName, op, "unknown metric field %q", m.Field)
		}
	}
	if m.Kind == KindPercentile && (m.P < 0 || m.P > 100 || math.IsNaN(m.P)) {
		return shared.NewValidationError(domainName, op, "percentile must be within [0,100], got %s", fmt.Sprint(m.P))
	}
	return nil
}
