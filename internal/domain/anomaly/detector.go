// Package anomaly flags score records that lie far from the rest of their
// dataset, either outside Tukey fences or beyond a z-score threshold.
package anomaly

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"

	"github.com/alem-hub/grade-analytics/internal/domain/score"
	"github.com/alem-hub/grade-analytics/internal/domain/shared"
)

const domainName = "anomaly"

// Default fence parameters: multiplier = BaseFactor - sensitivity*ScaleFactor,
// so sensitivity 0 gives 3 (far out) and 1 gives 1.
const (
	DefaultBaseFactor  = 3.0
	DefaultScaleFactor = 2.0
)

// HighSeverityDeviation is the distance from the mean, in points, beyond
// which an anomaly is reported as high severity.
const HighSeverityDeviation = 100.0

// ══════════════════════════════════════════════════════════════════════════════
// TYPES
// ══════════════════════════════════════════════════════════════════════════════

// Algorithm selects the detection rule.
type Algorithm string

const (
	// AlgorithmStatistical uses interquartile-range fences.
	AlgorithmStatistical Algorithm = "statistical"

	// AlgorithmZScore flags values whose |z| exceeds the multiplier.
	AlgorithmZScore Algorithm = "zscore"
)

// IsValid checks if the algorithm is known.
func (a Algorithm) IsValid() bool {
	return a == AlgorithmStatistical || a == AlgorithmZScore
}

// Type classifies an anomaly by the rule that produced it.
type Type string

const (
	TypeOutlier   Type = "outlier"
	TypeDeviation Type = "deviation"
)

// Severity of an anomaly.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
)

// Anomaly is one flagged record value.
type Anomaly struct {
	ID          string      `json:"id"`
	Type        Type        `json:"type"`
	Severity    Severity    `json:"severity"`
	Score       float64     `json:"score"`
	StudentID   string      `json:"student_id"`
	ExamID      string      `json:"exam_id,omitempty"`
	Subject     string      `json:"subject,omitempty"`
	Dimension   score.Field `json:"dimension"`
	Reason      string      `json:"reason"`
	Suggestions []string    `json:"suggestions"`
}

// Pattern summarises anomalies of one type.
type Pattern struct {
	Type             Type     `json:"pattern"`
	Count            int      `json:"count"`
	AffectedStudents []string `json:"affected_students"`
}

// Stats summarises a detection run.
type Stats struct {
	TotalRecords int     `json:"total_records"`
	AnomalyCount int     `json:"anomaly_count"`
	AnomalyRate  float64 `json:"anomaly_rate"`
}

// Bounds are the acceptance limits computed for one dimension.
type Bounds struct {
	Dimension score.Field `json:"dimension"`
	Lower     float64     `json:"lower"`
	Upper     float64     `json:"upper"`
	Mean      float64     `json:"mean"`
	Samples   int         `json:"samples"`
}

// Report is the result of Detect.
type Report struct {
	Algorithm   Algorithm `json:"algorithm"`
	Sensitivity float64   `json:"sensitivity"`
	Multiplier  float64   `json:"multiplier"`
	Anomalies   []Anomaly `json:"anomalies"`
	Patterns    []Pattern `json:"patterns"`
	Bounds      []Bounds  `json:"bounds"`
	Stats       Stats     `json:"statistics"`
}

// ══════════════════════════════════════════════════════════════════════════════
// DETECTOR
// ══════════════════════════════════════════════════════════════════════════════

// Options configures a Detector. Zero values take the package defaults.
type Options struct {
	Algorithm             Algorithm
	BaseFactor            float64
	ScaleFactor           float64
	HighSeverityDeviation float64
}

// Detector finds anomalous record values. Safe for concurrent use.
type Detector struct {
	opts Options
}

// NewDetector creates a detector.
func NewDetector(opts Options) *Detector {
	if opts.Algorithm == "" {
		opts.Algorithm = AlgorithmStatistical
	}
	if opts.BaseFactor <= 0 {
		opts.BaseFactor = DefaultBaseFactor
	}
	if opts.ScaleFactor <= 0 {
		opts.ScaleFactor = DefaultScaleFactor
	}
	if opts.HighSeverityDeviation <= 0 {
		opts.HighSeverityDeviation = HighSeverityDeviation
	}
	return &Detector{opts: opts}
}

// Multiplier returns the fence multiplier for a sensitivity.
func (d *Detector) Multiplier(sensitivity float64) float64 {
	return d.opts.BaseFactor - sensitivity*d.opts.ScaleFactor
}

// Validate checks the detector algorithm, the sensitivity and the
// dimensions, returning the dimensions Detect would scan.
func (d *Detector) Validate(sensitivity float64, dimensions []score.Field) ([]score.Field, error) {
	const op = "Detect"

	if !d.opts.Algorithm.IsValid() {
		return nil, shared.NewValidationError(domainName, op, "unknown algorithm %q", d.opts.Algorithm)
	}
	if math.IsNaN(sensitivity) || sensitivity < 0 || sensitivity > 1 {
		return nil, shared.NewValidationError(domainName, op, "sensitivity must be within [0, 1], got %v", sensitivity)
	}
	return normalizeDimensions(dimensions)
}

// Detect examines every requested numeric dimension (score by default) over
// all records. Records lacking a dimension value are skipped for it.
// Anomalies are reported in dimension order, then input order.
func (d *Detector) Detect(records []score.Record, sensitivity float64, dimensions []score.Field) (*Report, error) {
	dims, err := d.Validate(sensitivity, dimensions)
	if err != nil {
		return nil, err
	}

	m := d.Multiplier(sensitivity)
	report := &Report{
		Algorithm:   d.opts.Algorithm,
		Sensitivity: sensitivity,
		Multiplier:  m,
		Anomalies:   []Anomaly{},
		Patterns:    []Pattern{},
		Bounds:      []Bounds{},
	}

	for _, dim := range dims {
		idx, values := collect(records, dim)
		if len(values) == 0 {
			continue
		}
		b, err := d.bounds(values, m)
		if err != nil {
			return nil, err
		}
		b.Dimension = dim
		report.Bounds = append(report.Bounds, b)

		for k, v := range values {
			if v >= b.Lower && v <= b.Upper {
				continue
			}
			report.Anomalies = append(report.Anomalies, d.anomaly(len(report.Anomalies), records[idx[k]], dim, v, b))
		}
	}

	report.Patterns = Patterns(report.Anomalies)
	report.Stats = Stats{TotalRecords: len(records), AnomalyCount: len(report.Anomalies)}
	if len(records) > 0 {
		report.Stats.AnomalyRate = float64(len(report.Anomalies)) / float64(len(records))
	}
	return report, nil
}

func normalizeDimensions(dimensions []score.Field) ([]score.Field, error) {
	if len(dimensions) == 0 {
		return []score.Field{score.FieldScore}, nil
	}
	seen := make(map[score.Field]bool, len(dimensions))
	out := make([]score.Field, 0, len(dimensions))
	for _, dim := range dimensions {
		if !dim.IsNumeric() {
			return nil, shared.NewValidationError(domainName, "Detect", "dimension %q is not numeric", dim)
		}
		if seen[dim] {
			continue
		}
		seen[dim] = true
		out = append(out, dim)
	}
	return out, nil
}

// collect returns the finite values of dim and the record index of each.
func collect(records []score.Record, dim score.Field) ([]int, []float64) {
	idx := make([]int, 0, len(records))
	values := make([]float64, 0, len(records))
	for i, r := range records {
		v, ok := r.NumericValue(dim)
		if !ok || !shared.IsFinite(v) {
			continue
		}
		idx = append(idx, i)
		values = append(values, v)
	}
	return idx, values
}

func (d *Detector) bounds(values []float64, m float64) (Bounds, error) {
	mean, err := stats.Mean(values)
	if err != nil {
		return Bounds{}, shared.WrapError(domainName, "Detect", shared.ErrComputation, "mean", err)
	}
	b := Bounds{Mean: mean, Samples: len(values)}

	switch d.opts.Algorithm {
	case AlgorithmZScore:
		sd, err := stats.StandardDeviationPopulation(values)
		if err != nil {
			return Bounds{}, shared.WrapError(domainName, "Detect", shared.ErrComputation, "standard deviation", err)
		}
		b.Lower, b.Upper = mean-m*sd, mean+m*sd
	default:
		q1, _ := shared.Percentile(values, 25)
		q3, _ := shared.Percentile(values, 75)
		iqr := q3 - q1
		b.Lower, b.Upper = q1-m*iqr, q3+m*iqr
	}
	return b, nil
}

func (d *Detector) anomaly(n int, r score.Record, dim score.Field, v float64, b Bounds) Anomaly {
	a := Anomaly{
		ID:        fmt.Sprintf("anomaly_%d", n),
		Severity:  SeverityMedium,
		Score:     v,
		StudentID: r.StudentID,
		ExamID:    r.ExamID,
		Subject:   r.Subject,
		Dimension: dim,
	}
	if math.Abs(v-b.Mean) > d.opts.HighSeverityDeviation {
		a.Severity = SeverityHigh
	}

	if d.opts.Algorithm == AlgorithmZScore {
		a.Type = TypeDeviation
		a.Reason = fmt.Sprintf("%s %g deviates from the mean %.1f beyond the limits [%.1f, %.1f]", dim, v, b.Mean, b.Lower, b.Upper)
	} else {
		a.Type = TypeOutlier
		a.Reason = fmt.Sprintf("%s %g lies outside the expected range [%.1f, %.1f]", dim, v, b.Lower, b.Upper)
	}

	if v < b.Lower {
		a.Suggestions = []string{"check the record for data entry errors", "follow up on the student's recent learning"}
	} else {
		a.Suggestions = []string{"check the record for data entry errors", "confirm the result with the exam marker"}
	}
	return a
}

// Patterns groups anomalies by type in first-seen order. Affected student
// ids are deduplicated and keep first-seen order.
func Patterns(anomalies []Anomaly) []Pattern {
	out := []Pattern{}
	pos := make(map[Type]int)
	seen := make(map[Type]map[string]bool)

	for _, a := range anomalies {
		i, ok := pos[a.Type]
		if !ok {
			i = len(out)
			pos[a.Type] = i
			seen[a.Type] = make(map[string]bool)
			out = append(out, Pattern{Type: a.Type, AffectedStudents: []string{}})
		}
		out[i].Count++
		if a.StudentID != "" && !seen[a.Type][a.StudentID] {
			seen[a.Type][a.StudentID] = true
			out[i].AffectedStudents = append(out[i].AffectedStudents, a.StudentID)
		}
	}
	return out
}
