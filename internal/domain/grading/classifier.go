package grading

import (
	"sort"

	"github.com/alem-hub/grade-analytics/internal/domain/score"
)

// ══════════════════════════════════════════════════════════════════════════════
// CLASSIFIED RECORD
// ══════════════════════════════════════════════════════════════════════════════

// ClassifiedRecord is a score record with its resolved level.
// It is derived on demand and never stored.
type ClassifiedRecord struct {
	Record score.Record `json:"record"`
	Level  Level        `json:"level"`
	Source Source       `json:"source"`

	// Percentile is rank/cohortSize*100 when Source is calculated, 0 otherwise.
	Percentile float64 `json:"percentile,omitempty"`
}

// ══════════════════════════════════════════════════════════════════════════════
// CLASSIFIER
// ══════════════════════════════════════════════════════════════════════════════

// Classifier applies the fallback policy imported → calculated → default.
type Classifier struct{}

// NewClassifier creates a classifier.
func NewClassifier() *Classifier {
	return &Classifier{}
}

// Resolve classifies a single record inside a cohort of cohortSize.
//
// A recognised imported token always wins, even when a valid rank is
// present. An unrecognised token is not an error: resolution falls through
// to the rank and then to the default.
func (c *Classifier) Resolve(record score.Record, cohortSize int) ClassifiedRecord {
	if record.HasImportedGrade() {
		if level, ok := Normalize(record.ImportedGrade); ok {
			return ClassifiedRecord{Record: record, Level: level, Source: SourceImported}
		}
	}

	if record.HasRank() && cohortSize > 0 {
		if level, ok := LevelForRank(record.RankInCohort, cohortSize); ok {
			return ClassifiedRecord{
				Record:     record,
				Level:      level,
				Source:     SourceCalculated,
				Percentile: RankPercentile(record.RankInCohort, cohortSize),
			}
		}
	}

	return ClassifiedRecord{Record: record, Level: LevelC, Source: SourceDefault}
}

// ResolveAll classifies every record, using the number of records sharing
// its cohort key as the cohort size. Output order follows input order.
func (c *Classifier) ResolveAll(records []score.Record) []ClassifiedRecord {
	sizes := score.CohortSizes(records)
	out := make([]ClassifiedRecord, len(records))
	for i, r := range records {
		out[i] = c.Resolve(r, sizes[r.CohortKey])
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// RANKING
// ══════════════════════════════════════════════════════════════════════════════

// AssignRanks returns a copy of records where every record is ranked inside
// its cohort by score, highest first. Equal scores share the best rank and
// the next distinct score skips (1, 2, 2, 4).
func AssignRanks(records []score.Record) []score.Record {
	out := make([]score.Record, len(records))
	copy(out, records)

	byCohort := make(map[string][]int)
	for i, r := range out {
		byCohort[r.CohortKey] = append(byCohort[r.CohortKey], i)
	}

	for _, idx := range byCohort {
		sort.SliceStable(idx, func(a, b int) bool {
			return out[idx[a]].Score > out[idx[b]].Score
		})
		for pos, i := range idx {
			if pos > 0 && out[i].Score == out[idx[pos-1]].Score {
				out[i].RankInCohort = out[idx[pos-1]].RankInCohort
				continue
			}
			out[i].RankInCohort = pos + 1
		}
	}
	return out
}

// FillMissingRanks ranks only the cohorts in which no record carries a rank.
// Cohorts with at least one supplied rank are left untouched.
func FillMissingRanks(records []score.Record) []score.Record {
	ranked := make(map[string]bool)
	for _, r := range records {
		if r.HasRank() {
			ranked[r.CohortKey] = true
		}
	}

	assigned := AssignRanks(records)
	out := make([]score.Record, len(records))
	for i, r := range records {
		if ranked[r.CohortKey] {
			out[i] = r
		} else {
			out[i] = assigned[i]
		}
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// DISTRIBUTION
// ══════════════════════════════════════════════════════════════════════════════

// LevelShare is the count and share of one level in a classified set.
type LevelShare struct {
	Level      Level   `json:"level"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// Distribution counts classified records per level. All six levels are
// returned from best to worst, including those with zero records.
func Distribution(classified []ClassifiedRecord) []LevelShare {
	counts := make(map[Level]int, 6)
	for _, c := range classified {
		counts[c.Level]++
	}

	total := len(classified)
	out := make([]LevelShare, 0, 6)
	for _, l := range Levels() {
		share := LevelShare{Level: l, Count: counts[l]}
		if total > 0 {
			share.Percentage = float64(share.Count) / float64(total) * 100
		}
		out = append(out, share)
	}
	return out
}

// SourceCounts counts classified records per source.
func SourceCounts(classified []ClassifiedRecord) map[Source]int {
	out := map[Source]int{SourceImported: 0, SourceCalculated: 0, SourceDefault: 0}
	for _, c := range classified {
		out[c.Source]++
	}
	return out
}
